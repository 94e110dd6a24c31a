package instrument

import (
	"github.com/wippyai/jvm-instrument/classfile"
	"github.com/wippyai/jvm-instrument/errors"
)

// delegateLoading implements the class loader delegation instrumenter: the
// method first offers its arguments to the dispatcher's loadClass and
// returns a non-null answer; a null answer falls through to the original
// body.
func (m *method) delegateLoading() error {
	if m.ret != classfile.Reference(classClass) {
		return errors.New(errors.PhaseInstrument, errors.KindUnsupported).
			Detail("class loader delegation needs a %s return type, got %s",
				classfile.JavaClassName(classClass), m.ret.JavaName()).
			Build()
	}

	c := m.code
	a := newAsm(m.cf.ConstantPool)
	fallback := c.NewLabel()

	a.argsArray(m.params, m.firstParam())
	a.hook(m.opts.Dispatcher, HookLoadClass)
	a.op(classfile.OpDup)
	a.branch(classfile.OpIfnull, fallback)
	a.op(classfile.OpAreturn)
	a.mark(fallback)
	a.op(classfile.OpPop)
	a.emit(c.Instrs...)
	if a.err != nil {
		return a.err
	}

	if m.frames {
		locals, err := m.initialLocals()
		if err != nil {
			return err
		}
		c.Frames = append(c.Frames, classfile.Frame{
			Label:  fallback,
			Locals: locals,
			Stack:  []classfile.VType{classfile.ObjectType(classClass)},
		})
	}
	c.Instrs = a.out
	return m.growStack(extraStack)
}
