package classtest

import (
	"testing"

	"github.com/wippyai/jvm-instrument/classfile"
)

func TestVMArithmeticAndExceptions(t *testing.T) {
	c := New("t/Calc")
	code := &classfile.Code{MaxStack: 2, MaxLocals: 2}
	start, end, handler := code.NewLabel(), code.NewLabel(), code.NewLabel()
	code.Instrs = []classfile.Instruction{
		classfile.Mark(start),
		classfile.Local(classfile.OpIload, 0),
		classfile.Local(classfile.OpIload, 1),
		classfile.Op(classfile.OpIdiv),
		classfile.Op(classfile.OpIreturn),
		classfile.Mark(end),
		classfile.Mark(handler),
		classfile.Op(classfile.OpPop),
		classfile.PushInt(-1),
		classfile.Op(classfile.OpIreturn),
	}
	code.Handlers = []classfile.Handler{{Start: start, End: end, Handler: handler, CatchType: c.ClassRef("java/lang/ArithmeticException")}}
	c.Method(classfile.AccStatic, "div", "(II)I").Code(code)
	data, err := c.Build()
	if err != nil {
		t.Fatal(err)
	}

	vm := NewVM("t/Hooks")
	if err := vm.Load(data); err != nil {
		t.Fatal(err)
	}
	got, err := vm.Invoke("t/Calc", "div", "(II)I", nil, int32(7), int32(2))
	if err != nil || got != int32(3) {
		t.Errorf("div(7,2) = %v, %v", got, err)
	}
	got, err = vm.Invoke("t/Calc", "div", "(II)I", nil, int32(7), int32(0))
	if err != nil || got != int32(-1) {
		t.Errorf("div(7,0) = %v, %v", got, err)
	}
}

func TestVMHooksAndBoxing(t *testing.T) {
	c := New("t/Box")
	c.Method(classfile.AccStatic, "twice", "(J)Ljava/lang/Object;").Body(4, 2,
		classfile.Local(classfile.OpLload, 0),
		classfile.CP(classfile.OpInvokestatic, c.MethodRef("java/lang/Long", "valueOf", "(J)Ljava/lang/Long;")),
		classfile.CP(classfile.OpInvokestatic, c.MethodRef("t/Hooks", "hook", "(Ljava/lang/Object;)Ljava/lang/Object;")),
		classfile.Op(classfile.OpAreturn),
	)
	data, err := c.Build()
	if err != nil {
		t.Fatal(err)
	}
	vm := NewVM("t/Hooks")
	vm.Hook = func(name string, args []any) any { return args[0] }
	if err := vm.Load(data); err != nil {
		t.Fatal(err)
	}
	got, err := vm.Invoke("t/Box", "twice", "(J)Ljava/lang/Object;", nil, int64(21))
	if err != nil {
		t.Fatal(err)
	}
	o, ok := got.(*Object)
	if !ok || o.Class != "java/lang/Long" || o.Value != int64(21) {
		t.Errorf("result = %#v", got)
	}
	if names := vm.HookNames(); len(names) != 1 || names[0] != "hook" {
		t.Errorf("hooks = %v", names)
	}
	if !vm.IsInstance(o, "java/lang/Number") || vm.IsInstance(o, "java/lang/Integer") {
		t.Error("IsInstance on boxed long")
	}
}
