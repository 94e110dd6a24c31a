package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseInstrument,
				Kind:   KindUnsupported,
				Path:   []string{"code", "stack_map"},
				Class:  "com/acme/Foo",
				Method: "bar()V",
				Detail: "frame out of order",
			},
			contains: []string{"[instrument]", "unsupported", "code.stack_map", "com/acme/Foo#bar()V", "frame out of order"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseParse,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[parse]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseParse,
				Kind:   KindMalformedInput,
				Detail: "truncated constant pool",
				Cause:  errors.New("unexpected EOF"),
			},
			contains: []string{"[parse]", "malformed_input", "truncated constant pool", "caused by", "unexpected EOF"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseEncode,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseParse,
		Kind:  KindMalformedInput,
		Path:  []string{"constant_pool"},
	}

	if !err.Is(&Error{Phase: PhaseParse, Kind: KindMalformedInput}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseAnalyze, Kind: KindMalformedInput}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseParse, Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrMalformedInput) {
		t.Error("errors.Is should match the phase-less sentinel")
	}
	if errors.Is(err, ErrUnsupportedPoint) {
		t.Error("errors.Is should not match another sentinel")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseInstrument, KindUnsupported).
		Path("code").
		Class("com/acme/Foo").
		Method("<init>()V").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "ireturn", "areturn").
		Build()

	if err.Phase != PhaseInstrument {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseInstrument)
	}
	if err.Kind != KindUnsupported {
		t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
	}
	if len(err.Path) != 1 || err.Path[0] != "code" {
		t.Errorf("Path = %v, want [code]", err.Path)
	}
	if err.Class != "com/acme/Foo" || err.Method != "<init>()V" {
		t.Errorf("Class=%v Method=%v", err.Class, err.Method)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected ireturn, got areturn" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("MalformedInput", func(t *testing.T) {
		err := MalformedInput(PhaseParse, "bad magic", nil)
		if !errors.Is(err, ErrMalformedInput) {
			t.Errorf("Kind = %v, want %v", err.Kind, KindMalformedInput)
		}
	})

	t.Run("UnsupportedPoint", func(t *testing.T) {
		err := UnsupportedPoint("special", true)
		if !errors.Is(err, ErrUnsupportedPoint) {
			t.Errorf("Kind = %v", err.Kind)
		}
		if !strings.Contains(err.Error(), "constructor") {
			t.Errorf("message %q should name the constructor target", err.Error())
		}
	})

	t.Run("ConflictingInstrumentation", func(t *testing.T) {
		err := ConflictingInstrumentation("a/B", "c()V", []string{"sensor", "special"})
		if !errors.Is(err, ErrConflictingInstrumentation) {
			t.Errorf("Kind = %v", err.Kind)
		}
		if !strings.Contains(err.Error(), "sensor, special") {
			t.Errorf("message %q should list the kinds", err.Error())
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseParse, []string{"cp"}, 10, 5)
		if err.Kind != KindOutOfBounds || err.Value != 10 {
			t.Errorf("Kind=%v Value=%v", err.Kind, err.Value)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		err := Overflow(PhaseEncode, nil, 70000, "u2")
		if err.Kind != KindOverflow {
			t.Errorf("Kind = %v", err.Kind)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseInstrument, "label", "L3")
		if !strings.Contains(err.Detail, `"L3"`) {
			t.Errorf("Detail = %q", err.Detail)
		}
	})
}

func TestInMethod(t *testing.T) {
	base := Unsupported(PhaseInstrument, "jsr")
	got := InMethod(base, "a/B", "m()V")
	if got.Class != "a/B" || got.Method != "m()V" {
		t.Errorf("Class=%v Method=%v", got.Class, got.Method)
	}
	if base.Class != "" {
		t.Error("InMethod must not mutate the original error")
	}

	plain := errors.New("boom")
	wrapped := InMethod(plain, "a/B", "m()V")
	if !errors.Is(wrapped, plain) {
		t.Error("wrapped plain error should unwrap to its cause")
	}
}
