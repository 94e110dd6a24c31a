package instrument

import (
	"fmt"

	"github.com/wippyai/jvm-instrument/errors"
)

// InstrumenterKind names the rewriter applied for a point.
type InstrumenterKind uint8

const (
	MethodInstrumenter InstrumenterKind = iota + 1
	ConstructorInstrumenter
	SpecialMethodInstrumenter
	ClassLoaderDelegationInstrumenter
)

func (k InstrumenterKind) String() string {
	switch k {
	case MethodInstrumenter:
		return "method"
	case ConstructorInstrumenter:
		return "constructor"
	case SpecialMethodInstrumenter:
		return "special"
	case ClassLoaderDelegationInstrumenter:
		return "classloader-delegation"
	}
	return fmt.Sprintf("instrumenter(%d)", uint8(k))
}

// Select maps a point and the kind of method it is applied to onto the
// instrumenter that handles it. Static initializers count as constructors.
func Select(p Point, isConstructor bool) (InstrumenterKind, error) {
	if p == nil {
		return 0, errors.UnsupportedPoint("<nil>", isConstructor)
	}
	switch p.(type) {
	case SensorPoint:
		if isConstructor {
			return ConstructorInstrumenter, nil
		}
		return MethodInstrumenter, nil
	case SpecialPoint:
		if !isConstructor {
			return SpecialMethodInstrumenter, nil
		}
	case ClassLoaderDelegationPoint:
		if !isConstructor {
			return ClassLoaderDelegationInstrumenter, nil
		}
	}
	return 0, errors.UnsupportedPoint(p.Kind().String(), isConstructor)
}
