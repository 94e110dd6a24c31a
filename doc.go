// Package jvminstrument is a Go implementation of a JVM bytecode
// instrumentation engine.
//
// It reads compiled class files, builds a structural model of the types they
// declare, and rewrites selected methods so that they call into a hook
// dispatcher before their body runs, after it returns and when an exception
// escapes it. The rewritten classes stay verifiable: stack map frames are
// maintained for class files that carry them.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	jvminstrument/
//	├── classfile/       Class file decoding and encoding, bytecode and stack maps
//	│   └── classtest/   In-memory class builder and a small interpreter for tests
//	├── typemodel/       Types, methods and the registry linking them
//	├── analyzer/        Class file to type model
//	├── instrument/      Configuration, point selection and method rewriters
//	├── errors/          Structured error types for debugging
//	└── cmd/instrument/  Command line tool for analysis and batch rewriting
//
// # Quick Start
//
// Describe what to instrument and rewrite a class:
//
//	cfg := instrument.Config{
//	    Class: "com.acme.**",
//	    Methods: []instrument.MethodMatch{{
//	        Name:       "handle",
//	        ReturnType: "void",
//	        Parameters: []string{"java.lang.String"},
//	        Points:     []instrument.Point{instrument.SensorPoint{ID: 1}},
//	    }},
//	}
//
//	ci := instrument.New(instrument.Options{Dispatcher: "com/acme/agent/Hooks"})
//	res, err := ci.Instrument(classBytes, []instrument.Config{cfg})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if res.Modified {
//	    os.WriteFile(path, res.Bytes, 0o644)
//	}
//
// Build a type model of a set of classes:
//
//	reg := typemodel.NewRegistry()
//	a := analyzer.New(hash)
//	for _, data := range classes {
//	    if _, err := a.AnalyzeInto(reg, data); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	subs := reg.SubClasses("com.acme.Base")
//
// # Thread Safety
//
// Registry methods are safe for concurrent use; read the hashes of a shared
// node through Registry.Hashes and Registry.HasHash while other goroutines
// may still be adding. Analyzer is stateless. A
// ClassInstrumenter tracks its current phase and should be used by a single
// goroutine; create one per worker.
package jvminstrument
