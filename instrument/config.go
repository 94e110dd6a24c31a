package instrument

import (
	"go.uber.org/zap"
)

// Config is the instrumentation configuration for the classes matching
// Class, a ClassMatcher pattern. The engine only reads it.
type Config struct {
	Class   string
	Methods []MethodMatch
}

// MethodMatch binds one method signature to the points applied to it.
// Type names use the source form produced by the analyzer: "int",
// "long[]", "java.lang.String". Constructors are named "<init>" and static
// initializers "<clinit>", both returning "void".
type MethodMatch struct {
	Name       string
	ReturnType string
	Parameters []string
	Points     []Point
}

// Matches reports whether the match selects the given method.
func (m *MethodMatch) Matches(name, returnType string, params []string) bool {
	if m.Name != name || m.ReturnType != returnType || len(m.Parameters) != len(params) {
		return false
	}
	for i := range params {
		if m.Parameters[i] != params[i] {
			return false
		}
	}
	return true
}

// Options configures a ClassInstrumenter.
type Options struct {
	// Logger overrides the package logger.
	Logger *zap.Logger
	// Dispatcher is the internal name of the hook class. Defaults to
	// DefaultDispatcher.
	Dispatcher string
	// EnhancedExceptionSensor reports escaping exceptions through the
	// on-throw hooks and adds a before-catch hook to every typed catch
	// handler of instrumented methods.
	EnhancedExceptionSensor bool
}

func (o Options) withDefaults() Options {
	if o.Dispatcher == "" {
		o.Dispatcher = DefaultDispatcher
	}
	if o.Logger == nil {
		o.Logger = Logger()
	}
	return o
}

// configSet resolves the points configured for a class's methods.
type configSet struct {
	configs  []Config
	matchers []*ClassMatcher
}

func newConfigSet(configs []Config) *configSet {
	s := &configSet{configs: configs, matchers: make([]*ClassMatcher, len(configs))}
	for i := range configs {
		s.matchers[i] = NewClassMatcher([]string{configs[i].Class})
	}
	return s
}

// forClass returns the method matches of every config selecting class.
func (s *configSet) forClass(class string) []*MethodMatch {
	var out []*MethodMatch
	for i := range s.configs {
		if !s.matchers[i].Match(class) {
			continue
		}
		for j := range s.configs[i].Methods {
			out = append(out, &s.configs[i].Methods[j])
		}
	}
	return out
}

// points collects the points of every match selecting the method, in
// configuration order.
func points(matches []*MethodMatch, name, returnType string, params []string) []Point {
	var out []Point
	for _, m := range matches {
		if m.Matches(name, returnType, params) {
			out = append(out, m.Points...)
		}
	}
	return out
}
