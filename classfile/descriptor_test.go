package classfile

import "testing"

func TestParseMethodDescriptor(t *testing.T) {
	tests := []struct {
		desc   string
		params []string
		ret    string
	}{
		{"()V", nil, "void"},
		{"(IJ)Z", []string{"int", "long"}, "boolean"},
		{"([Ljava/lang/String;)V", []string{"java.lang.String[]"}, "void"},
		{"(Ljava/lang/Object;[[[Ljava/lang/Object;D)[J", []string{"java.lang.Object", "java.lang.Object[][][]", "double"}, "long[]"},
		{"(BCSF)Ljava/util/List;", []string{"byte", "char", "short", "float"}, "java.util.List"},
	}
	for _, tt := range tests {
		params, ret, err := ParseMethodDescriptor(tt.desc)
		if err != nil {
			t.Errorf("%s: %v", tt.desc, err)
			continue
		}
		if len(params) != len(tt.params) {
			t.Errorf("%s: %d params, want %d", tt.desc, len(params), len(tt.params))
			continue
		}
		for i, p := range params {
			if p.JavaName() != tt.params[i] {
				t.Errorf("%s: param %d = %s, want %s", tt.desc, i, p.JavaName(), tt.params[i])
			}
		}
		if ret.JavaName() != tt.ret {
			t.Errorf("%s: return = %s, want %s", tt.desc, ret.JavaName(), tt.ret)
		}
	}
}

func TestParseMethodDescriptor_Invalid(t *testing.T) {
	for _, desc := range []string{"", "V", "(", "(I", "(V)V", "(Ljava/lang/String)V", "()", "()VV", "([V)V", "(Q)V"} {
		if _, _, err := ParseMethodDescriptor(desc); err == nil {
			t.Errorf("%q: expected error", desc)
		}
	}
}

func TestTypeTagDescriptorRoundTrip(t *testing.T) {
	for _, desc := range []string{"I", "J", "Z", "Ljava/lang/String;", "[I", "[[J", "[[[Ljava/lang/Object;"} {
		tt, err := ParseFieldDescriptor(desc)
		if err != nil {
			t.Errorf("%s: %v", desc, err)
			continue
		}
		if tt.Descriptor() != desc {
			t.Errorf("Descriptor() = %s, want %s", tt.Descriptor(), desc)
		}
	}
	if _, err := ParseFieldDescriptor("V"); err == nil {
		t.Error("void field descriptor should fail")
	}
}

func TestTypeTagProperties(t *testing.T) {
	tests := []struct {
		tag       TypeTag
		size      int
		load      byte
		ret       byte
		checkType string
	}{
		{Int, 1, OpIload, OpIreturn, "java/lang/Integer"},
		{Boolean, 1, OpIload, OpIreturn, "java/lang/Boolean"},
		{Long, 2, OpLload, OpLreturn, "java/lang/Long"},
		{Float, 1, OpFload, OpFreturn, "java/lang/Float"},
		{Double, 2, OpDload, OpDreturn, "java/lang/Double"},
		{Reference("java/lang/String"), 1, OpAload, OpAreturn, "java/lang/String"},
		{ArrayOf(Int, 1), 1, OpAload, OpAreturn, "[I"},
		{ArrayOf(Reference("java/lang/Object"), 2), 1, OpAload, OpAreturn, "[[Ljava/lang/Object;"},
	}
	for _, tt := range tests {
		if tt.tag.Size() != tt.size {
			t.Errorf("%s: Size = %d, want %d", tt.tag, tt.tag.Size(), tt.size)
		}
		if tt.tag.LoadOp() != tt.load {
			t.Errorf("%s: LoadOp = %s", tt.tag, OpName(tt.tag.LoadOp()))
		}
		if tt.tag.ReturnOp() != tt.ret {
			t.Errorf("%s: ReturnOp = %s", tt.tag, OpName(tt.tag.ReturnOp()))
		}
		if tt.tag.CheckType() != tt.checkType {
			t.Errorf("%s: CheckType = %s, want %s", tt.tag, tt.tag.CheckType(), tt.checkType)
		}
	}
	if Void.ReturnOp() != OpReturn || Void.Size() != 0 {
		t.Error("void return/size")
	}
	name, desc := Int.BoxMethod()
	if name != "valueOf" || desc != "(I)Ljava/lang/Integer;" {
		t.Errorf("BoxMethod = %s%s", name, desc)
	}
	name, desc = Char.UnboxMethod()
	if name != "charValue" || desc != "()C" {
		t.Errorf("UnboxMethod = %s%s", name, desc)
	}
}

func TestCompatible(t *testing.T) {
	str := Reference("java/lang/String")
	tests := []struct {
		name     string
		declared TypeTag
		actual   TypeTag
		want     bool
	}{
		{"same primitive", Int, Int, true},
		{"boxed int", Int, Reference("java/lang/Integer"), true},
		{"boxed double for int", Int, Reference("java/lang/Double"), false},
		{"boxed long for int", Int, Reference("java/lang/Long"), false},
		{"same class", str, str, true},
		{"different class", str, Reference("java/lang/Object"), false},
		{"same int array", ArrayOf(Int, 1), ArrayOf(Int, 1), true},
		{"int array vs long array", ArrayOf(Int, 1), ArrayOf(Long, 1), false},
		{"dimension mismatch", ArrayOf(Reference("java/lang/Object"), 3), ArrayOf(Reference("java/lang/Object"), 2), false},
		{"component class mismatch", ArrayOf(str, 1), ArrayOf(Reference("java/lang/Object"), 1), false},
		{"void", Void, Void, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compatible(tt.declared, tt.actual); got != tt.want {
				t.Errorf("Compatible(%s, %s) = %v, want %v", tt.declared, tt.actual, got, tt.want)
			}
		})
	}
}

func TestCheckTagIsCompatible(t *testing.T) {
	tags := []TypeTag{Boolean, Int, Long, Double, Reference("java/lang/String"), ArrayOf(Int, 1), ArrayOf(Reference("java/lang/Object"), 2)}
	for _, tag := range tags {
		check := tag.CheckTag()
		if !Compatible(tag, check) {
			t.Errorf("Compatible(%s, %s) = false", tag, check)
		}
		if tag.IsPrimitive() && check.Sort != SortReference {
			t.Errorf("%s: CheckTag = %s, want the wrapper", tag, check)
		}
	}
}

func TestInitialLocals(t *testing.T) {
	locals, err := InitialLocals("a/B", ConstructorName, "(J)V", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(locals) != 2 || locals[0] != UninitializedThisType || locals[1] != LongType {
		t.Errorf("constructor locals = %v", locals)
	}
	if SlotCount(locals) != 3 {
		t.Errorf("SlotCount = %d, want 3", SlotCount(locals))
	}

	locals, err = InitialLocals("a/B", "m", "(Ljava/lang/String;[IZ)V", true)
	if err != nil {
		t.Fatal(err)
	}
	want := []VType{ObjectType("java/lang/String"), ObjectType("[I"), IntegerType}
	if len(locals) != len(want) {
		t.Fatalf("locals = %v", locals)
	}
	for i := range want {
		if locals[i] != want[i] {
			t.Errorf("local %d = %v, want %v", i, locals[i], want[i])
		}
	}

	padded := PadLocals(locals, 5)
	if SlotCount(padded) != 5 || padded[3] != TopType || padded[4] != TopType {
		t.Errorf("PadLocals = %v", padded)
	}
	if len(locals) != 3 {
		t.Error("PadLocals must not modify its input")
	}
}
