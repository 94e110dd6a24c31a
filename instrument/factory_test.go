package instrument_test

import (
	"testing"

	"github.com/wippyai/jvm-instrument/errors"
	"github.com/wippyai/jvm-instrument/instrument"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		name        string
		point       instrument.Point
		constructor bool
		want        instrument.InstrumenterKind
		wantErr     bool
	}{
		{"sensor on method", instrument.SensorPoint{ID: 1}, false, instrument.MethodInstrumenter, false},
		{"sensor on constructor", instrument.SensorPoint{ID: 1}, true, instrument.ConstructorInstrumenter, false},
		{"special on method", instrument.SpecialPoint{ID: 2}, false, instrument.SpecialMethodInstrumenter, false},
		{"special on constructor", instrument.SpecialPoint{ID: 2}, true, 0, true},
		{"delegation on method", instrument.ClassLoaderDelegationPoint{}, false, instrument.ClassLoaderDelegationInstrumenter, false},
		{"delegation on constructor", instrument.ClassLoaderDelegationPoint{}, true, 0, true},
		{"nil point", nil, false, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := instrument.Select(tt.point, tt.constructor)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrUnsupportedPoint) {
					t.Fatalf("error = %v, want unsupported point", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if got != tt.want {
				t.Errorf("Select = %v, want %v", got, tt.want)
			}
		})
	}
}
