package classfile_test

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/wippyai/jvm-instrument/classfile"
	"github.com/wippyai/jvm-instrument/classfile/classtest"
	"github.com/wippyai/jvm-instrument/errors"
)

func sampleClass(t *testing.T) []byte {
	t.Helper()
	c := classtest.New("com/acme/Sample").
		Implements("java/io/Serializable").
		Annotate(classtest.Annotation{Desc: "Lcom/acme/Marker;", Visible: true}).
		Field(classfile.AccPrivate, "count", "I").
		DefaultConstructor()
	c.Method(classfile.AccPublic|classfile.AccStatic, "add", "(II)I").Body(2, 2,
		classfile.Local(classfile.OpIload, 0),
		classfile.Local(classfile.OpIload, 1),
		classfile.Op(classfile.OpIadd),
		classfile.Op(classfile.OpIreturn),
	)
	data, err := c.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return data
}

func TestParseEncodeRoundTrip(t *testing.T) {
	data := sampleClass(t)

	cf, err := classfile.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cf.Name() != "com/acme/Sample" {
		t.Errorf("Name = %q", cf.Name())
	}
	if cf.SuperName() != "java/lang/Object" {
		t.Errorf("SuperName = %q", cf.SuperName())
	}
	if got := cf.InterfaceNames(); len(got) != 1 || got[0] != "java/io/Serializable" {
		t.Errorf("InterfaceNames = %v", got)
	}
	if len(cf.Methods) != 2 || len(cf.Fields) != 1 {
		t.Fatalf("methods=%d fields=%d", len(cf.Methods), len(cf.Fields))
	}
	if m := cf.FindMethod("add", "(II)I"); m == nil {
		t.Error("FindMethod(add) = nil")
	}

	out, err := classfile.Encode(cf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("re-encoded class differs from input")
	}
}

func TestParseMalformed(t *testing.T) {
	data := sampleClass(t)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte{0xCA, 0xFE, 0xBA, 0xBF}, data[4:]...)},
		{"truncated", data[:len(data)/2]},
		{"trailing", append(append([]byte(nil), data...), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := classfile.Parse(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !stderrors.Is(err, errors.ErrMalformedInput) {
				t.Errorf("error %v is not a malformed input error", err)
			}
		})
	}
}

func TestModifiedUTF8(t *testing.T) {
	tests := []struct {
		in      string
		encoded []byte
	}{
		{"abc", []byte("abc")},
		{"\x00", []byte{0xC0, 0x80}},
		{"é", []byte{0xC3, 0xA9}},
		{"😀", []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
	}
	for _, tt := range tests {
		got := classfile.EncodeModifiedUTF8(tt.in)
		if !bytes.Equal(got, tt.encoded) {
			t.Errorf("EncodeModifiedUTF8(%q) = %x, want %x", tt.in, got, tt.encoded)
		}
		back, err := classfile.DecodeModifiedUTF8(got)
		if err != nil {
			t.Errorf("DecodeModifiedUTF8(%x): %v", got, err)
			continue
		}
		if back != tt.in {
			t.Errorf("round trip %q -> %q", tt.in, back)
		}
	}

	if _, err := classfile.DecodeModifiedUTF8([]byte{'a', 0}); err == nil {
		t.Error("raw NUL byte should be rejected")
	}
	if _, err := classfile.DecodeModifiedUTF8([]byte{0xE0, 0x80}); err == nil {
		t.Error("truncated sequence should be rejected")
	}
}

func TestConstantPoolIntern(t *testing.T) {
	cp := classfile.NewConstantPool()

	a, err := cp.AddUtf8("x")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := cp.AddUtf8("x")
	if a != b {
		t.Errorf("AddUtf8 not deduplicated: %d vs %d", a, b)
	}

	before := cp.Count()
	if _, err := cp.AddLong(42); err != nil {
		t.Fatal(err)
	}
	if cp.Count() != before+2 {
		t.Errorf("long constant should take two slots: count %d -> %d", before, cp.Count())
	}

	ref, err := cp.AddMethodref("a/B", "m", "()V")
	if err != nil {
		t.Fatal(err)
	}
	owner, name, desc, err := cp.MemberRef(ref)
	if err != nil {
		t.Fatalf("MemberRef: %v", err)
	}
	if owner != "a/B" || name != "m" || desc != "()V" {
		t.Errorf("MemberRef = %s %s %s", owner, name, desc)
	}
	if _, err := cp.Utf8(ref); err == nil {
		t.Error("Utf8 on a method ref should fail")
	}
	if _, err := cp.Get(0); err == nil {
		t.Error("index 0 should be invalid")
	}
}

func TestFindAttribute(t *testing.T) {
	cf, err := classfile.Parse(sampleClass(t))
	if err != nil {
		t.Fatal(err)
	}
	m := cf.FindMethod("add", "(II)I")
	if cf.FindAttribute(m.Attributes, classfile.AttrCode) < 0 {
		t.Error("Code attribute not found")
	}
	if cf.FindAttribute(m.Attributes, classfile.AttrExceptions) >= 0 {
		t.Error("unexpected Exceptions attribute")
	}
	if got := classfile.MethodFlagNames(m.AccessFlags); got != "public static" {
		t.Errorf("MethodFlagNames = %q", got)
	}
}
