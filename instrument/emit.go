package instrument

import (
	"github.com/wippyai/jvm-instrument/classfile"
)

// asm accumulates instructions. Constant pool failures are sticky and
// reported by the caller once the sequence is complete.
type asm struct {
	cp  *classfile.ConstantPool
	err error
	out []classfile.Instruction
}

func newAsm(cp *classfile.ConstantPool) *asm {
	return &asm{cp: cp}
}

func (a *asm) keep(idx uint16, err error) uint16 {
	if err != nil && a.err == nil {
		a.err = err
	}
	return idx
}

func (a *asm) emit(ins ...classfile.Instruction) {
	a.out = append(a.out, ins...)
}

func (a *asm) op(ops ...byte) {
	for _, op := range ops {
		a.out = append(a.out, classfile.Op(op))
	}
}

func (a *asm) mark(l classfile.Label) {
	a.out = append(a.out, classfile.Mark(l))
}

func (a *asm) local(op byte, index int) {
	a.out = append(a.out, classfile.Local(op, index))
}

func (a *asm) branch(op byte, l classfile.Label) {
	a.out = append(a.out, classfile.Branch(op, l))
}

func (a *asm) pushInt(v int) {
	a.out = append(a.out, classfile.PushInt(int32(v)))
}

func (a *asm) pushLong(v uint64) {
	a.out = append(a.out, classfile.CP(classfile.OpLdc2W, a.keep(a.cp.AddLong(int64(v)))))
}

// class emits an instruction taking a class operand: new, anewarray,
// checkcast or instanceof.
func (a *asm) class(op byte, name string) {
	a.out = append(a.out, classfile.CP(op, a.keep(a.cp.AddClass(name))))
}

func (a *asm) invokeStatic(owner, name, desc string) {
	a.out = append(a.out, classfile.CP(classfile.OpInvokestatic, a.keep(a.cp.AddMethodref(owner, name, desc))))
}

func (a *asm) invokeVirtual(owner, name, desc string) {
	a.out = append(a.out, classfile.CP(classfile.OpInvokevirtual, a.keep(a.cp.AddMethodref(owner, name, desc))))
}

// box converts the value of type t on top of the stack to an Object.
// References are left untouched.
func (a *asm) box(t classfile.TypeTag) {
	if !t.IsPrimitive() {
		return
	}
	name, desc := t.BoxMethod()
	a.invokeStatic(t.Wrapper(), name, desc)
}

// unbox converts the Object on top of the stack, already known to be an
// instance of t.CheckType(), to a value of type t.
func (a *asm) unbox(t classfile.TypeTag) {
	a.class(classfile.OpCheckcast, t.CheckType())
	if t.IsPrimitive() {
		name, desc := t.UnboxMethod()
		a.invokeVirtual(t.Wrapper(), name, desc)
	}
}

// argsArray pushes an Object[] holding the method parameters, primitives
// boxed and references passed as is. first is the slot of the first
// parameter.
func (a *asm) argsArray(params []classfile.TypeTag, first int) {
	a.pushInt(len(params))
	a.class(classfile.OpAnewarray, objectClass)
	slot := first
	for i, p := range params {
		a.op(classfile.OpDup)
		a.pushInt(i)
		a.local(p.LoadOp(), slot)
		a.box(p)
		a.op(classfile.OpAastore)
		slot += p.Size()
	}
}

// hook emits the call of a dispatcher hook.
func (a *asm) hook(dispatcher, name string) {
	a.invokeStatic(dispatcher, name, hookDescriptors[name])
}
