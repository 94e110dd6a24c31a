package instrument

import (
	"github.com/wippyai/jvm-instrument/classfile"
	"github.com/wippyai/jvm-instrument/errors"
)

// specialMethod implements the special method instrumenter. Both hooks may
// return a value replacing the method's result. A value is used only if it
// is an instance of the declared return type's check type (the wrapper for
// primitives, the exact array type for arrays); anything else is silently
// ignored. Void methods never take an override. Exceptions are not
// reported.
type specialMethod struct{}

// checkReturns rejects bodies that return with extra operands on the stack:
// the override branches need an empty stack to carry a frame.
func (specialMethod) checkReturns(p *pass) error {
	heights, err := classfile.StackHeights(p.cf.ConstantPool, p.code)
	if err != nil {
		return err
	}
	for i, ins := range p.code.Instrs {
		if classfile.IsReturn(ins.Opcode) && heights[i] > p.ret.Size() {
			return errors.New(errors.PhaseInstrument, errors.KindUnsupported).
				Detail("%s with %d operand slots on the stack", classfile.OpName(ins.Opcode), heights[i]).
				Build()
		}
	}
	return nil
}

// override emits the check of the hook result on top of the stack. On a
// compatible value the method returns it; otherwise control continues at
// the returned label, which the caller must place.
func (specialMethod) override(p *pass, a *asm) (classfile.Label, error) {
	check := p.ret.CheckTag()
	if !classfile.Compatible(p.ret, check) {
		return 0, errors.Unsupported(errors.PhaseInstrument, "override of "+p.ret.JavaName())
	}
	next := p.code.NewLabel()
	a.local(classfile.OpAstore, p.override)
	a.local(classfile.OpAload, p.override)
	a.class(classfile.OpInstanceof, p.ret.CheckType())
	a.branch(classfile.OpIfeq, next)
	a.local(classfile.OpAload, p.override)
	a.unbox(p.ret)
	a.op(p.ret.ReturnOp())
	return next, nil
}

func (s specialMethod) before(p *pass, a *asm) error {
	p.hookArgs(a)
	a.hook(p.opts.Dispatcher, HookSpecialMethodBeforeBody)
	if p.ret.Sort == classfile.SortVoid {
		a.op(classfile.OpPop)
		return nil
	}
	if err := s.checkReturns(p); err != nil {
		return err
	}
	next, err := s.override(p, a)
	if err != nil {
		return err
	}
	a.mark(next)
	locals, err := p.initialLocals()
	if err != nil {
		return err
	}
	p.addFrame(next, append(classfile.PadLocals(locals, p.base), p.recvType, classfile.ObjectType(objectArrayDesc)), nil)
	return nil
}

func (s specialMethod) after(p *pass, a *asm) error {
	p.storeResult(a)
	p.hookArgs(a)
	p.pushBoxedResult(a)
	a.hook(p.opts.Dispatcher, HookSpecialMethodAfterBody)
	if p.ret.Sort == classfile.SortVoid {
		a.op(classfile.OpPop, classfile.OpReturn)
		return nil
	}
	real, err := s.override(p, a)
	if err != nil {
		return err
	}
	a.mark(real)
	p.addFrame(real, append(p.savedLocals(), classfile.VTypeOf(p.ret)), nil)
	p.returnResult(a)
	return nil
}
