package instrument

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/jvm-instrument/classfile"
	"github.com/wippyai/jvm-instrument/errors"
)

// State is the phase a ClassInstrumenter is in.
type State uint8

const (
	StateIdle State = iota
	StateScanning
	StateRewriting
	StateSkipping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateRewriting:
		return "rewriting"
	case StateSkipping:
		return "skipping"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Result is the outcome of instrumenting one class.
type Result struct {
	// Bytes is the rewritten class, or the input itself when Modified is
	// false.
	Bytes []byte
	// Methods lists the rewritten methods as name+descriptor.
	Methods  []string
	Modified bool
}

// ClassInstrumenter rewrites the methods of a class that match the
// supplied configurations. An instance keeps no state between calls but
// must not be shared by concurrent callers; use one per goroutine.
type ClassInstrumenter struct {
	logger *zap.Logger
	opts   Options
	state  State
}

// New creates a ClassInstrumenter.
func New(opts Options) *ClassInstrumenter {
	opts = opts.withDefaults()
	return &ClassInstrumenter{opts: opts, logger: opts.Logger}
}

// State returns the current phase. It is Idle outside of Instrument.
func (ci *ClassInstrumenter) State() State {
	return ci.state
}

func (ci *ClassInstrumenter) enter(s State) {
	if ci.state != s {
		ci.logger.Debug("instrumenter state", zap.Stringer("from", ci.state), zap.Stringer("to", s))
		ci.state = s
	}
}

// Instrument applies the points configured for the class in data. The input
// is never modified. Undecodable input fails with a malformed input error;
// a point that cannot be applied to its method fails with an unsupported
// point error, and incompatible points on one method with a conflicting
// instrumentation error. No partial output is produced on error.
func (ci *ClassInstrumenter) Instrument(data []byte, configs []Config) (Result, error) {
	defer ci.enter(StateIdle)

	cf, err := classfile.Parse(data)
	if err != nil {
		return Result{}, err
	}
	fqn := classfile.JavaClassName(cf.Name())

	ci.enter(StateScanning)
	matches := newConfigSet(configs).forClass(fqn)
	if len(matches) == 0 {
		return Result{Bytes: data}, nil
	}

	var rewritten []string
	for i := range cf.Methods {
		m := &cf.Methods[i]
		name, desc := cf.MemberName(m), cf.MemberDescriptor(m)
		params, ret, err := classfile.ParseMethodDescriptor(desc)
		if err != nil {
			return Result{}, errors.InMethod(
				errors.MalformedInput(errors.PhaseInstrument, "method descriptor", err), fqn, name+desc)
		}
		paramNames := make([]string, len(params))
		for j, p := range params {
			paramNames[j] = p.JavaName()
		}

		pts := points(matches, name, ret.JavaName(), paramNames)
		if len(pts) == 0 {
			ci.enter(StateSkipping)
			continue
		}
		if m.AccessFlags&(classfile.AccAbstract|classfile.AccNative) != 0 {
			ci.enter(StateSkipping)
			ci.logger.Debug("skipping method without code",
				zap.String("class", fqn), zap.String("method", name+desc))
			continue
		}

		kinds, err := plan(pts, name == classfile.ConstructorName || name == classfile.StaticInitializerName)
		if err != nil {
			return Result{}, errors.InMethod(err, fqn, name+desc)
		}

		ci.enter(StateRewriting)
		if err := ci.rewrite(cf, m, pts, kinds); err != nil {
			return Result{}, errors.InMethod(err, fqn, name+desc)
		}
		rewritten = append(rewritten, name+desc)
		ci.logger.Debug("instrumented method",
			zap.String("class", fqn),
			zap.String("method", name+desc),
			zap.Int("points", len(pts)),
			zap.Stringer("outer", kinds[0]))
	}

	if len(rewritten) == 0 {
		return Result{Bytes: data}, nil
	}
	out, err := classfile.Encode(cf)
	if err != nil {
		return Result{}, err
	}
	return Result{Bytes: out, Methods: rewritten, Modified: true}, nil
}

// plan selects the instrumenter for every point of one method. Sensor
// points stack; a special or class loader delegation point must be alone.
func plan(pts []Point, isConstructor bool) ([]InstrumenterKind, error) {
	if len(pts) > 1 {
		for _, p := range pts {
			if p == nil || p.Kind() == PointSensor {
				continue
			}
			names := make([]string, len(pts))
			for i, q := range pts {
				names[i] = "<nil>"
				if q != nil {
					names[i] = q.Kind().String()
				}
			}
			return nil, errors.ConflictingInstrumentation("", "", names)
		}
	}
	kinds := make([]InstrumenterKind, len(pts))
	for i, p := range pts {
		k, err := Select(p, isConstructor)
		if err != nil {
			return nil, err
		}
		kinds[i] = k
	}
	return kinds, nil
}

func (ci *ClassInstrumenter) rewrite(cf *classfile.ClassFile, m *classfile.Member, pts []Point, kinds []InstrumenterKind) error {
	code, err := cf.DecodeCode(m)
	if err != nil {
		return err
	}
	for _, name := range code.Dropped {
		ci.logger.Warn("dropping code attribute",
			zap.String("class", cf.Name()),
			zap.String("method", cf.MemberName(m)+cf.MemberDescriptor(m)),
			zap.String("attribute", name))
	}
	meth, err := newMethod(cf, m, code, ci.opts)
	if err != nil {
		return err
	}

	// The first point ends up outermost: its before hook runs first and its
	// after hooks last.
	for i := len(pts) - 1; i >= 0; i-- {
		if err := applyPoint(meth, pts[i], kinds[i]); err != nil {
			return err
		}
	}
	return cf.EncodeCode(m, code)
}

func applyPoint(m *method, pt Point, kind InstrumenterKind) error {
	if kind == ClassLoaderDelegationInstrumenter {
		return m.delegateLoading()
	}

	var id uint64
	switch p := pt.(type) {
	case SensorPoint:
		id = p.ID
	case SpecialPoint:
		id = p.ID
	}
	ps, err := m.pass(id)
	if err != nil {
		return err
	}
	switch kind {
	case MethodInstrumenter:
		return ps.wrap(methodSensor{})
	case ConstructorInstrumenter:
		return ps.wrap(constructorSensor{})
	case SpecialMethodInstrumenter:
		return ps.wrap(specialMethod{})
	}
	return errors.UnsupportedPoint(pt.Kind().String(), m.isConstructor())
}
