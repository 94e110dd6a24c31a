package instrument

import (
	"github.com/wippyai/jvm-instrument/classfile"
)

// methodSensor implements the method instrumenter: before hook on entry,
// both after hooks on every return and an exception hook when an
// exception escapes.
type methodSensor struct{}

func (methodSensor) before(p *pass, a *asm) error {
	p.hookArgs(a)
	a.hook(p.opts.Dispatcher, HookMethodBeforeBody)
	return nil
}

func (methodSensor) after(p *pass, a *asm) error {
	p.storeResult(a)
	for _, h := range []string{HookFirstMethodAfterBody, HookSecondMethodAfterBody} {
		p.hookArgs(a)
		p.pushBoxedResult(a)
		a.hook(p.opts.Dispatcher, h)
	}
	p.returnResult(a)
	return nil
}

func (methodSensor) escape(p *pass, a *asm) {
	if p.opts.EnhancedExceptionSensor {
		p.hookArgs(a)
		a.local(classfile.OpAload, p.exc)
		a.hook(p.opts.Dispatcher, HookOnThrowInBody)
		return
	}
	a.pushLong(p.id)
	a.local(classfile.OpAload, p.exc)
	a.hook(p.opts.Dispatcher, HookBeforeCatch)
}

func (methodSensor) caught(p *pass, a *asm) {
	a.pushLong(p.id)
	a.local(classfile.OpAload, p.exc)
	a.hook(p.opts.Dispatcher, HookBeforeCatch)
}

// constructorSensor implements the constructor instrumenter. The before
// hook runs once this(...) or super(...) has returned and only receives the
// arguments; the after hook receives the constructed instance. Static
// initializers go through the same hooks with a null instance, the before
// hook on entry.
type constructorSensor struct{}

func (constructorSensor) before(p *pass, a *asm) error {
	a.pushLong(p.id)
	a.local(classfile.OpAload, p.args)
	a.hook(p.opts.Dispatcher, HookConstructorBeforeBody)
	return nil
}

func (constructorSensor) after(p *pass, a *asm) error {
	p.hookArgs(a)
	a.hook(p.opts.Dispatcher, HookConstructorAfterBody)
	a.op(classfile.OpReturn)
	return nil
}

func (constructorSensor) escape(p *pass, a *asm) {
	if p.opts.EnhancedExceptionSensor {
		p.hookArgs(a)
		a.local(classfile.OpAload, p.exc)
		a.hook(p.opts.Dispatcher, HookConstructorOnThrowInBody)
		return
	}
	a.pushLong(p.id)
	a.local(classfile.OpAload, p.exc)
	a.hook(p.opts.Dispatcher, HookConstructorBeforeCatch)
}

func (constructorSensor) caught(p *pass, a *asm) {
	a.pushLong(p.id)
	a.local(classfile.OpAload, p.exc)
	a.hook(p.opts.Dispatcher, HookConstructorBeforeCatch)
}
