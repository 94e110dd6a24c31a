package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParse      Phase = "parse"      // class file decoding
	PhaseAnalyze    Phase = "analyze"    // type model construction
	PhaseInstrument Phase = "instrument" // method rewriting
	PhaseEncode     Phase = "encode"     // class file encoding
	PhaseConfig     Phase = "config"     // instrumentation configuration
)

// Kind categorizes the error
type Kind string

const (
	KindMalformedInput             Kind = "malformed_input"
	KindUnsupportedPoint           Kind = "unsupported_point"
	KindConflictingInstrumentation Kind = "conflicting_instrumentation"
	KindUnsupported                Kind = "unsupported"
	KindOutOfBounds                Kind = "out_of_bounds"
	KindInvalidData                Kind = "invalid_data"
	KindNotFound                   Kind = "not_found"
	KindOverflow                   Kind = "overflow"
)

// Sentinels for errors.Is checks that only care about the kind.
var (
	ErrMalformedInput             = &Error{Kind: KindMalformedInput}
	ErrUnsupportedPoint           = &Error{Kind: KindUnsupportedPoint}
	ErrConflictingInstrumentation = &Error{Kind: KindConflictingInstrumentation}
)

// Error is the structured error type used throughout the engine
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Class  string
	Method string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Class != "" || e.Method != "" {
		b.WriteString(": ")
		if e.Class != "" && e.Method != "" {
			b.WriteString(e.Class)
			b.WriteByte('#')
			b.WriteString(e.Method)
		} else if e.Class != "" {
			b.WriteString(e.Class)
		} else {
			b.WriteString("method ")
			b.WriteString(e.Method)
		}
	}

	if e.Detail != "" {
		if e.Class != "" || e.Method != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a phase
// matches any phase of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase == "" {
			return e.Kind == t.Kind
		}
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Class sets the class name
func (b *Builder) Class(name string) *Builder {
	b.err.Class = name
	return b
}

// Method sets the method name and descriptor
func (b *Builder) Method(m string) *Builder {
	b.err.Method = m
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// MalformedInput creates an error for undecodable class bytes
func MalformedInput(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMalformedInput,
		Detail: detail,
		Cause:  cause,
	}
}

// UnsupportedPoint creates an error for an instrumentation point that cannot
// be applied to the given method kind
func UnsupportedPoint(point string, constructor bool) *Error {
	target := "method"
	if constructor {
		target = "constructor"
	}
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindUnsupportedPoint,
		Detail: fmt.Sprintf("point %s not supported on %s", point, target),
		Value:  point,
	}
}

// ConflictingInstrumentation creates an error for a method matched by
// instrumentation points that cannot be combined
func ConflictingInstrumentation(class, method string, kinds []string) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindConflictingInstrumentation,
		Class:  class,
		Method: method,
		Detail: "cannot combine " + strings.Join(kinds, ", "),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, limit string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Detail: fmt.Sprintf("value %v overflows %s", value, limit),
		Value:  value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// InMethod returns a copy of err annotated with the class and method it
// occurred in. Non-structured errors are wrapped as instrumentation errors.
func InMethod(err error, class, method string) *Error {
	if e, ok := err.(*Error); ok {
		c := *e
		c.Class = class
		c.Method = method
		return &c
	}
	return &Error{
		Phase:  PhaseInstrument,
		Kind:   KindInvalidData,
		Class:  class,
		Method: method,
		Cause:  err,
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
