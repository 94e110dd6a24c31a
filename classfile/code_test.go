package classfile_test

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/jvm-instrument/classfile"
	"github.com/wippyai/jvm-instrument/classfile/classtest"
	"github.com/wippyai/jvm-instrument/classfile/internal/binary"
	"github.com/wippyai/jvm-instrument/errors"
)

func codeData(t *testing.T, cf *classfile.ClassFile, m *classfile.Member) []byte {
	t.Helper()
	ai := cf.FindAttribute(m.Attributes, classfile.AttrCode)
	if ai < 0 {
		t.Fatal("no Code attribute")
	}
	return m.Attributes[ai].Data
}

// branchyClass has a static method exercising every operand shape the
// codec rewrites: branches, both switches, wide locals and iinc.
func branchyClass(t *testing.T) []byte {
	t.Helper()
	c := classtest.New("com/acme/Branchy")
	code := &classfile.Code{MaxStack: 2, MaxLocals: 400}
	l1, l2, l3, l4, l5 := code.NewLabel(), code.NewLabel(), code.NewLabel(), code.NewLabel(), code.NewLabel()
	code.Instrs = []classfile.Instruction{
		classfile.Local(classfile.OpIload, 0),
		classfile.Local(classfile.OpIstore, 300),
		{Opcode: classfile.OpIinc, Imm: classfile.IincImm{Index: 300, Delta: 1000}},
		{Opcode: classfile.OpIinc, Imm: classfile.IincImm{Index: 1, Delta: -3}},
		classfile.Local(classfile.OpIload, 0),
		{Opcode: classfile.OpTableswitch, Imm: classfile.TableSwitchImm{Low: 1, High: 3, Default: l4, Targets: []classfile.Label{l1, l2, l3}}},
		classfile.Mark(l1),
		classfile.Local(classfile.OpIload, 0),
		{Opcode: classfile.OpLookupswitch, Imm: classfile.LookupSwitchImm{Keys: []int32{-5, 100000}, Targets: []classfile.Label{l2, l3}, Default: l4}},
		classfile.Mark(l2),
		classfile.PushInt(1000),
		classfile.Op(classfile.OpIreturn),
		classfile.Mark(l3),
		classfile.CP(classfile.OpLdc, c.IntRef(123456)),
		classfile.Op(classfile.OpIreturn),
		classfile.Mark(l4),
		classfile.Local(classfile.OpIload, 300),
		classfile.Branch(classfile.OpIfeq, l5),
		classfile.PushInt(-1),
		classfile.Op(classfile.OpIreturn),
		classfile.Mark(l5),
		classfile.PushInt(100),
		classfile.Op(classfile.OpIreturn),
	}
	c.Method(classfile.AccPublic|classfile.AccStatic, "pick", "(II)I").Code(code)
	data, err := c.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return data
}

func TestCodeRoundTrip(t *testing.T) {
	cf, err := classfile.Parse(branchyClass(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m := cf.FindMethod("pick", "(II)I")
	before := append([]byte(nil), codeData(t, cf, m)...)

	code, err := cf.DecodeCode(m)
	if err != nil {
		t.Fatalf("DecodeCode: %v", err)
	}
	if err := cf.EncodeCode(m, code); err != nil {
		t.Fatalf("EncodeCode: %v", err)
	}
	if !bytes.Equal(before, codeData(t, cf, m)) {
		t.Error("decode/encode changed the Code attribute")
	}

	var sawWideStore, sawSwitch bool
	for _, ins := range code.Instrs {
		if imm, ok := ins.Imm.(classfile.LocalImm); ok && ins.Opcode == classfile.OpIstore && imm.Index == 300 {
			sawWideStore = true
		}
		if imm, ok := ins.Imm.(classfile.LookupSwitchImm); ok && len(imm.Keys) == 2 && imm.Keys[1] == 100000 {
			sawSwitch = true
		}
	}
	if !sawWideStore || !sawSwitch {
		t.Errorf("decoded body lost operands: wide=%v switch=%v", sawWideStore, sawSwitch)
	}
}

func TestCodeShortFormsNormalized(t *testing.T) {
	cf, err := classfile.Parse(sampleClass(t))
	if err != nil {
		t.Fatal(err)
	}
	code, err := cf.DecodeCode(cf.FindMethod("add", "(II)I"))
	if err != nil {
		t.Fatal(err)
	}
	first := code.Instrs[0]
	if first.Opcode != classfile.OpIload {
		t.Fatalf("first = %s, want iload", first)
	}
	if imm := first.Imm.(classfile.LocalImm); imm.Index != 0 {
		t.Errorf("index = %d", imm.Index)
	}
	if raw := codeData(t, cf, cf.FindMethod("add", "(II)I")); raw[8] != classfile.OpIload0 {
		t.Errorf("encoded first opcode = %#x, want iload_0", raw[8])
	}
}

func longJump(op byte) *classfile.Code {
	code := &classfile.Code{MaxStack: 1, MaxLocals: 1}
	target := code.NewLabel()
	code.Instrs = append(code.Instrs, classfile.Local(classfile.OpIload, 0), classfile.Branch(op, target))
	for i := 0; i < 40000; i++ {
		code.Instrs = append(code.Instrs, classfile.Op(classfile.OpNop))
	}
	code.Instrs = append(code.Instrs, classfile.Mark(target), classfile.Op(classfile.OpReturn))
	return code
}

func TestGotoWidening(t *testing.T) {
	c := classtest.New("com/acme/Far")
	c.Method(classfile.AccStatic, "far", "(I)V").Code(longJump(classfile.OpGoto))
	data, err := c.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	cf, err := classfile.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m := cf.FindMethod("far", "(I)V")
	raw := codeData(t, cf, m)
	if raw[9] != classfile.OpGotoW {
		t.Errorf("opcode at 1 = %s, want goto_w", classfile.OpName(raw[9]))
	}

	code, err := cf.DecodeCode(m)
	if err != nil {
		t.Fatalf("DecodeCode: %v", err)
	}
	if code.Instrs[1].Opcode != classfile.OpGoto {
		t.Errorf("goto_w should decode to goto, got %s", code.Instrs[1])
	}
}

func TestConditionalBranchOverflow(t *testing.T) {
	c := classtest.New("com/acme/Far")
	c.Method(classfile.AccStatic, "far", "(I)V").Code(longJump(classfile.OpIfeq))
	_, err := c.Build()
	if err == nil {
		t.Fatal("expected overflow error")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindOverflow {
		t.Errorf("error = %v, want overflow", err)
	}
}

func TestUnplacedLabel(t *testing.T) {
	c := classtest.New("com/acme/Broken")
	code := &classfile.Code{MaxStack: 1, MaxLocals: 1}
	code.Instrs = []classfile.Instruction{classfile.Branch(classfile.OpGoto, code.NewLabel())}
	c.Method(classfile.AccStatic, "m", "()V").Code(code)
	if _, err := c.Build(); err == nil {
		t.Fatal("expected error for unplaced label")
	}
}

// rawStackMapClass builds a method whose StackMapTable uses the compressed
// frame forms, written byte by byte.
func rawStackMapClass(t *testing.T) []byte {
	t.Helper()
	c := classtest.New("com/acme/Frames")
	str := c.ClassRef("java/lang/String")

	sm := binary.NewWriter()
	sm.WriteU2(4)
	sm.Byte(252) // append_frame k=1, offset 2
	sm.WriteU2(2)
	sm.Byte(classfile.VInteger)
	sm.Byte(65) // same_locals_1_stack_item, offset 4
	sm.Byte(classfile.VObject)
	sm.WriteU2(str)
	sm.Byte(250) // chop_frame k=1, offset 6
	sm.WriteU2(1)
	sm.Byte(255) // full_frame, offset 9
	sm.WriteU2(2)
	sm.WriteU2(2)
	sm.Byte(classfile.VLong)
	sm.Byte(classfile.VNull)
	sm.WriteU2(0)

	w := binary.NewWriter()
	w.WriteU2(1)
	w.WriteU2(4)
	w.WriteU4(11)
	for i := 0; i < 10; i++ {
		w.Byte(classfile.OpNop)
	}
	w.Byte(classfile.OpReturn)
	w.WriteU2(0)
	w.WriteU2(1)
	w.WriteU2(c.Utf8(classfile.AttrStackMapTable))
	w.WriteU4(uint32(sm.Len()))
	w.WriteBytes(sm.Bytes())

	c.Method(classfile.AccStatic, "frames", "(I)V").Attribute(classfile.AttrCode, w.Bytes())
	data, err := c.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return data
}

func checkFrames(t *testing.T, code *classfile.Code) {
	t.Helper()
	idx := code.LabelIndex()
	want := []struct {
		pos    int
		locals []classfile.VType
		stack  []classfile.VType
	}{
		{2, []classfile.VType{classfile.IntegerType, classfile.IntegerType}, nil},
		{4, []classfile.VType{classfile.IntegerType, classfile.IntegerType}, []classfile.VType{classfile.ObjectType("java/lang/String")}},
		{6, []classfile.VType{classfile.IntegerType}, nil},
		{9, []classfile.VType{classfile.LongType, classfile.NullType}, nil},
	}
	if len(code.Frames) != len(want) {
		t.Fatalf("frames = %d, want %d", len(code.Frames), len(want))
	}
	for i, w := range want {
		f := code.Frames[i]
		// Count real instructions before the frame's label.
		pos := 0
		for _, ins := range code.Instrs[:idx[f.Label]] {
			if _, ok := ins.Label(); !ok {
				pos++
			}
		}
		if pos != w.pos {
			t.Errorf("frame %d at instruction %d, want %d", i, pos, w.pos)
		}
		if !equalVTypes(f.Locals, w.locals) {
			t.Errorf("frame %d locals = %v, want %v", i, f.Locals, w.locals)
		}
		if !equalVTypes(f.Stack, w.stack) {
			t.Errorf("frame %d stack = %v, want %v", i, f.Stack, w.stack)
		}
	}
}

func equalVTypes(a, b []classfile.VType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStackMapFrames(t *testing.T) {
	cf, err := classfile.Parse(rawStackMapClass(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m := cf.FindMethod("frames", "(I)V")
	code, err := cf.DecodeCode(m)
	if err != nil {
		t.Fatalf("DecodeCode: %v", err)
	}
	checkFrames(t, code)

	// Re-encoded as full frames, the expanded form must be unchanged.
	if err := cf.EncodeCode(m, code); err != nil {
		t.Fatalf("EncodeCode: %v", err)
	}
	again, err := cf.DecodeCode(m)
	if err != nil {
		t.Fatalf("DecodeCode after encode: %v", err)
	}
	checkFrames(t, again)
}

func TestDuplicateFrameFirstWins(t *testing.T) {
	cf, err := classfile.Parse(rawStackMapClass(t))
	if err != nil {
		t.Fatal(err)
	}
	m := cf.FindMethod("frames", "(I)V")
	code, err := cf.DecodeCode(m)
	if err != nil {
		t.Fatal(err)
	}
	// A second label at the position of the first frame, with a different frame.
	first := code.Frames[0].Label
	extra := code.NewLabel()
	pos := code.LabelIndex()[first]
	code.Instrs = append(code.Instrs[:pos+1], append([]classfile.Instruction{classfile.Mark(extra)}, code.Instrs[pos+1:]...)...)
	code.Frames = append(code.Frames, classfile.Frame{Label: extra, Locals: []classfile.VType{classfile.FloatType}})

	if err := cf.EncodeCode(m, code); err != nil {
		t.Fatal(err)
	}
	again, err := cf.DecodeCode(m)
	if err != nil {
		t.Fatal(err)
	}
	checkFrames(t, again)
}

func TestFindInitCall(t *testing.T) {
	c := classtest.New("com/acme/Ctor").Super("com/acme/Base")
	fooInit := c.MethodRef("com/acme/Foo", "<init>", "()V")
	baseInit := c.MethodRef("com/acme/Base", "<init>", "(Lcom/acme/Foo;)V")
	selfInit := c.MethodRef("com/acme/Ctor", "<init>", "(Ljava/lang/String;)V")

	t.Run("super with new argument", func(t *testing.T) {
		code := &classfile.Code{MaxStack: 3, MaxLocals: 1}
		code.Instrs = []classfile.Instruction{
			classfile.Local(classfile.OpAload, 0),
			classfile.CP(classfile.OpNew, c.ClassRef("com/acme/Foo")),
			classfile.Op(classfile.OpDup),
			classfile.CP(classfile.OpInvokespecial, fooInit),
			classfile.CP(classfile.OpInvokespecial, baseInit),
			classfile.Op(classfile.OpReturn),
		}
		got, err := classfile.FindInitCall(c.Pool(), code)
		if err != nil {
			t.Fatal(err)
		}
		if got != 4 {
			t.Errorf("FindInitCall = %d, want 4", got)
		}
	})

	t.Run("this call after conditional", func(t *testing.T) {
		code := &classfile.Code{MaxStack: 2, MaxLocals: 2}
		l1, l2 := code.NewLabel(), code.NewLabel()
		code.Instrs = []classfile.Instruction{
			classfile.Local(classfile.OpAload, 0),
			classfile.Local(classfile.OpIload, 1),
			classfile.Branch(classfile.OpIfeq, l1),
			classfile.CP(classfile.OpLdc, c.StringRef("yes")),
			classfile.Branch(classfile.OpGoto, l2),
			classfile.Mark(l1),
			classfile.CP(classfile.OpLdc, c.StringRef("no")),
			classfile.Mark(l2),
			classfile.CP(classfile.OpInvokespecial, selfInit),
			classfile.Op(classfile.OpReturn),
		}
		got, err := classfile.FindInitCall(c.Pool(), code)
		if err != nil {
			t.Fatal(err)
		}
		if got != 8 {
			t.Errorf("FindInitCall = %d, want 8", got)
		}
	})

	t.Run("missing", func(t *testing.T) {
		code := &classfile.Code{MaxStack: 1, MaxLocals: 1}
		code.Instrs = []classfile.Instruction{classfile.Op(classfile.OpReturn)}
		if _, err := classfile.FindInitCall(c.Pool(), code); err == nil {
			t.Error("expected error")
		}
	})
}

func TestDisassemble(t *testing.T) {
	c := classtest.New("com/acme/Dis")
	c.Method(classfile.AccStatic, "hello", "()V").Body(2, 0,
		classfile.CP(classfile.OpGetstatic, c.FieldRef("java/lang/System", "out", "Ljava/io/PrintStream;")),
		classfile.CP(classfile.OpLdc, c.StringRef("hi")),
		classfile.CP(classfile.OpInvokevirtual, c.MethodRef("java/io/PrintStream", "println", "(Ljava/lang/String;)V")),
		classfile.Op(classfile.OpReturn),
	)
	data, err := c.Build()
	if err != nil {
		t.Fatal(err)
	}
	cf, err := classfile.Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	code, err := cf.DecodeCode(cf.FindMethod("hello", "()V"))
	if err != nil {
		t.Fatal(err)
	}
	out := classfile.Disassemble(cf.ConstantPool, code)
	for _, want := range []string{
		"getstatic",
		"java/lang/System.out:Ljava/io/PrintStream;",
		`String "hi"`,
		"java/io/PrintStream.println:(Ljava/lang/String;)V",
		"return",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}
