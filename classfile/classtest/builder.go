// Package classtest builds class files in memory for tests.
package classtest

import (
	"github.com/wippyai/jvm-instrument/classfile"
	"github.com/wippyai/jvm-instrument/classfile/internal/binary"
)

// Class accumulates a class file. The first error encountered is kept and
// returned by Build.
type Class struct {
	cf  *classfile.ClassFile
	err error
}

// Method is a method under construction.
type Method struct {
	c   *Class
	idx int
}

// ElementValue is an annotation element value. Tag follows the class file
// encoding: 's' string, 'I' int, 'e' enum, 'c' class, '@' nested annotation,
// '[' array.
type ElementValue struct {
	Name   string
	Str    string
	Desc   string
	Elems  []ElementValue
	Nested *Annotation
	Int    int32
	Tag    byte
}

// Annotation is an annotation to attach to a class or method.
type Annotation struct {
	Desc    string
	Values  []ElementValue
	Visible bool
}

// New starts a public class extending java/lang/Object with version 52.
func New(name string) *Class {
	c := &Class{cf: &classfile.ClassFile{
		ConstantPool: classfile.NewConstantPool(),
		MajorVersion: 52,
		AccessFlags:  classfile.AccPublic | classfile.AccSuper,
	}}
	c.cf.ThisClass = c.ClassRef(name)
	c.cf.SuperClass = c.ClassRef("java/lang/Object")
	return c
}

func (c *Class) keep(idx uint16, err error) uint16 {
	if err != nil && c.err == nil {
		c.err = err
	}
	return idx
}

// Pool exposes the constant pool being built.
func (c *Class) Pool() *classfile.ConstantPool {
	return c.cf.ConstantPool
}

// ClassFile exposes the class being built.
func (c *Class) ClassFile() *classfile.ClassFile {
	return c.cf
}

// Utf8 interns a string constant body.
func (c *Class) Utf8(s string) uint16 {
	return c.keep(c.cf.ConstantPool.AddUtf8(s))
}

// ClassRef interns a CONSTANT_Class.
func (c *Class) ClassRef(name string) uint16 {
	return c.keep(c.cf.ConstantPool.AddClass(name))
}

// StringRef interns a CONSTANT_String.
func (c *Class) StringRef(s string) uint16 {
	return c.keep(c.cf.ConstantPool.AddString(s))
}

// IntRef interns a CONSTANT_Integer.
func (c *Class) IntRef(v int32) uint16 {
	return c.keep(c.cf.ConstantPool.AddInteger(v))
}

// LongRef interns a CONSTANT_Long.
func (c *Class) LongRef(v int64) uint16 {
	return c.keep(c.cf.ConstantPool.AddLong(v))
}

// MethodRef interns a CONSTANT_Methodref.
func (c *Class) MethodRef(owner, name, desc string) uint16 {
	return c.keep(c.cf.ConstantPool.AddMethodref(owner, name, desc))
}

// FieldRef interns a CONSTANT_Fieldref.
func (c *Class) FieldRef(owner, name, desc string) uint16 {
	return c.keep(c.cf.ConstantPool.AddFieldref(owner, name, desc))
}

// Super sets the superclass.
func (c *Class) Super(name string) *Class {
	c.cf.SuperClass = c.ClassRef(name)
	return c
}

// Access replaces the class access flags.
func (c *Class) Access(flags uint16) *Class {
	c.cf.AccessFlags = flags
	return c
}

// Version sets the major version.
func (c *Class) Version(major uint16) *Class {
	c.cf.MajorVersion = major
	return c
}

// Implements appends direct superinterfaces.
func (c *Class) Implements(names ...string) *Class {
	for _, n := range names {
		c.cf.Interfaces = append(c.cf.Interfaces, c.ClassRef(n))
	}
	return c
}

// Annotate attaches annotations to the class.
func (c *Class) Annotate(anns ...Annotation) *Class {
	c.cf.Attributes = c.annotationAttrs(c.cf.Attributes, anns)
	return c
}

// Field declares a field.
func (c *Class) Field(flags uint16, name, desc string) *Class {
	c.cf.Fields = append(c.cf.Fields, classfile.Member{
		AccessFlags:     flags,
		NameIndex:       c.Utf8(name),
		DescriptorIndex: c.Utf8(desc),
	})
	return c
}

// Method declares a method without a body.
func (c *Class) Method(flags uint16, name, desc string) *Method {
	c.cf.Methods = append(c.cf.Methods, classfile.Member{
		AccessFlags:     flags,
		NameIndex:       c.Utf8(name),
		DescriptorIndex: c.Utf8(desc),
	})
	return &Method{c: c, idx: len(c.cf.Methods) - 1}
}

// DefaultConstructor declares the constructor javac generates for a class
// without one: it calls the superclass no-arg constructor.
func (c *Class) DefaultConstructor() *Class {
	super := c.cf.SuperName()
	c.Method(classfile.AccPublic, classfile.ConstructorName, "()V").Body(1, 1,
		classfile.Local(classfile.OpAload, 0),
		classfile.CP(classfile.OpInvokespecial, c.MethodRef(super, classfile.ConstructorName, "()V")),
		classfile.Op(classfile.OpReturn),
	)
	return c
}

// Build encodes the class.
func (c *Class) Build() ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return classfile.Encode(c.cf)
}

// Code attaches a decoded body.
func (m *Method) Code(code *classfile.Code) *Method {
	if err := m.c.cf.EncodeCode(&m.c.cf.Methods[m.idx], code); err != nil && m.c.err == nil {
		m.c.err = err
	}
	return m
}

// Body attaches straight-line code. Labels used by the instructions must be
// placed among them; frames are not generated.
func (m *Method) Body(maxStack, maxLocals int, instrs ...classfile.Instruction) *Method {
	return m.Code(&classfile.Code{
		MaxStack:  uint16(maxStack),
		MaxLocals: uint16(maxLocals),
		Instrs:    instrs,
	})
}

// Throws declares checked exceptions.
func (m *Method) Throws(names ...string) *Method {
	w := binary.NewWriter()
	w.WriteU2(uint16(len(names)))
	for _, n := range names {
		w.WriteU2(m.c.ClassRef(n))
	}
	m.attr(classfile.AttrExceptions, w.Bytes())
	return m
}

// Annotate attaches annotations to the method.
func (m *Method) Annotate(anns ...Annotation) *Method {
	mem := &m.c.cf.Methods[m.idx]
	mem.Attributes = m.c.annotationAttrs(mem.Attributes, anns)
	return m
}

// Attribute attaches an arbitrary attribute.
func (m *Method) Attribute(name string, data []byte) *Method {
	m.attr(name, data)
	return m
}

func (m *Method) attr(name string, data []byte) {
	mem := &m.c.cf.Methods[m.idx]
	mem.Attributes = append(mem.Attributes, classfile.Attribute{NameIndex: m.c.Utf8(name), Data: data})
}

func (c *Class) annotationAttrs(attrs []classfile.Attribute, anns []Annotation) []classfile.Attribute {
	var visible, invisible []Annotation
	for _, a := range anns {
		if a.Visible {
			visible = append(visible, a)
		} else {
			invisible = append(invisible, a)
		}
	}
	for _, group := range []struct {
		name string
		anns []Annotation
	}{
		{classfile.AttrRuntimeVisibleAnnotations, visible},
		{classfile.AttrRuntimeInvisibleAnnotations, invisible},
	} {
		if len(group.anns) == 0 {
			continue
		}
		w := binary.NewWriter()
		w.WriteU2(uint16(len(group.anns)))
		for i := range group.anns {
			c.writeAnnotation(w, &group.anns[i])
		}
		attrs = append(attrs, classfile.Attribute{NameIndex: c.Utf8(group.name), Data: w.Bytes()})
	}
	return attrs
}

func (c *Class) writeAnnotation(w *binary.Writer, a *Annotation) {
	w.WriteU2(c.Utf8(a.Desc))
	w.WriteU2(uint16(len(a.Values)))
	for i := range a.Values {
		w.WriteU2(c.Utf8(a.Values[i].Name))
		c.writeElement(w, &a.Values[i])
	}
}

func (c *Class) writeElement(w *binary.Writer, v *ElementValue) {
	w.Byte(v.Tag)
	switch v.Tag {
	case 's':
		w.WriteU2(c.Utf8(v.Str))
	case 'I', 'B', 'C', 'S', 'Z':
		w.WriteU2(c.IntRef(v.Int))
	case 'e':
		w.WriteU2(c.Utf8(v.Desc))
		w.WriteU2(c.Utf8(v.Str))
	case 'c':
		w.WriteU2(c.Utf8(v.Desc))
	case '@':
		c.writeAnnotation(w, v.Nested)
	case '[':
		w.WriteU2(uint16(len(v.Elems)))
		for i := range v.Elems {
			c.writeElement(w, &v.Elems[i])
		}
	}
}
