// Package instrument rewrites JVM class files so that configured methods
// call into a hook dispatcher.
//
// A Config selects classes by name pattern and binds method signatures to
// instrumentation points:
//
//	cfg := instrument.Config{
//		Class: "com.acme.Service",
//		Methods: []instrument.MethodMatch{{
//			Name:       "handle",
//			ReturnType: "int",
//			Parameters: []string{"java.lang.String"},
//			Points:     []instrument.Point{instrument.SensorPoint{ID: 7}},
//		}},
//	}
//	res, err := instrument.New(instrument.Options{}).Instrument(data, []instrument.Config{cfg})
//
// Sensor points add before, after and exception hooks; several sensors may
// be stacked on one method. Special points add hooks whose results may
// replace the method's return value. Class loader delegation points make a
// loadClass method ask the agent first. Select maps each point to the
// rewriter that applies it.
//
// Rewritten methods keep their StackMapTable valid: existing frames are
// widened with the locals the hooks use and frames are added at every new
// branch target. Hooks are static methods on Options.Dispatcher; see
// HookDescriptor for their signatures.
package instrument
