package instrument

import "fmt"

// PointKind enumerates the instrumentation point variants.
type PointKind uint8

const (
	PointSensor PointKind = iota + 1
	PointSpecial
	PointClassLoaderDelegation
)

func (k PointKind) String() string {
	switch k {
	case PointSensor:
		return "sensor"
	case PointSpecial:
		return "special"
	case PointClassLoaderDelegation:
		return "classloader-delegation"
	}
	return fmt.Sprintf("point(%d)", uint8(k))
}

// Point is a configured request to inject hook calls around one method.
// The set of implementations is closed: SensorPoint, SpecialPoint and
// ClassLoaderDelegationPoint.
type Point interface {
	Kind() PointKind
	point()
}

// SensorPoint injects before, after and exception hooks without result
// override. ID is passed through to every hook.
type SensorPoint struct {
	ID uint64
}

// SpecialPoint injects before and after hooks whose return values may
// replace the method's result.
type SpecialPoint struct {
	ID uint64
}

// ClassLoaderDelegationPoint marks a class loader's loadClass method: the
// agent's loader is asked first and its non-null answer is returned.
type ClassLoaderDelegationPoint struct{}

func (SensorPoint) Kind() PointKind                { return PointSensor }
func (SpecialPoint) Kind() PointKind               { return PointSpecial }
func (ClassLoaderDelegationPoint) Kind() PointKind { return PointClassLoaderDelegation }

func (SensorPoint) point()                {}
func (SpecialPoint) point()               {}
func (ClassLoaderDelegationPoint) point() {}

func (p SensorPoint) String() string              { return fmt.Sprintf("sensor(%d)", p.ID) }
func (p SpecialPoint) String() string             { return fmt.Sprintf("special(%d)", p.ID) }
func (ClassLoaderDelegationPoint) String() string { return "classloader-delegation" }
