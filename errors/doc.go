// Package errors provides structured error types for the instrumentation engine.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes context: field path, class and method, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseInstrument, errors.KindUnsupported).
//		Class("com/acme/Service").
//		Method("handle(Ljava/lang/String;)V").
//		Detail("wide branch offset").
//		Build()
//
// Or use convenience constructors for the engine's taxonomy:
//
//	err := errors.MalformedInput(errors.PhaseParse, "bad magic", nil)
//	err := errors.UnsupportedPoint("special", true)
//
// Kind-only sentinels match errors of any phase:
//
//	if errors.Is(err, errors.ErrMalformedInput) { ... }
package errors
