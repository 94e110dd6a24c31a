package classfile

// ClassFile is a decoded JVM class file. Fields and methods keep their
// attributes as raw bytes; method bodies are decoded on demand with
// DecodeCode.
type ClassFile struct {
	ConstantPool *ConstantPool
	Interfaces   []uint16
	Fields       []Member
	Methods      []Member
	Attributes   []Attribute
	MinorVersion uint16
	MajorVersion uint16
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
}

// Member is a field_info or method_info structure.
type Member struct {
	Attributes      []Attribute
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
}

// Attribute is an undecoded attribute. Data aliases the parsed input until
// the attribute is replaced.
type Attribute struct {
	Data      []byte
	NameIndex uint16
}

// Name returns the internal (slash-separated) name of the class.
func (cf *ClassFile) Name() string {
	name, _ := cf.ConstantPool.ClassName(cf.ThisClass)
	return name
}

// SuperName returns the internal name of the superclass, or "" for
// java/lang/Object and module-info.
func (cf *ClassFile) SuperName() string {
	if cf.SuperClass == 0 {
		return ""
	}
	name, _ := cf.ConstantPool.ClassName(cf.SuperClass)
	return name
}

// InterfaceNames returns the internal names of the directly implemented
// or extended interfaces in declaration order.
func (cf *ClassFile) InterfaceNames() []string {
	names := make([]string, 0, len(cf.Interfaces))
	for _, idx := range cf.Interfaces {
		if name, err := cf.ConstantPool.ClassName(idx); err == nil {
			names = append(names, name)
		}
	}
	return names
}

// MemberName returns the name of a field or method.
func (cf *ClassFile) MemberName(m *Member) string {
	s, _ := cf.ConstantPool.Utf8(m.NameIndex)
	return s
}

// MemberDescriptor returns the descriptor of a field or method.
func (cf *ClassFile) MemberDescriptor(m *Member) string {
	s, _ := cf.ConstantPool.Utf8(m.DescriptorIndex)
	return s
}

// AttributeName returns the name of an attribute.
func (cf *ClassFile) AttributeName(a *Attribute) string {
	s, _ := cf.ConstantPool.Utf8(a.NameIndex)
	return s
}

// FindAttribute returns the index of the first attribute named name, or -1.
func (cf *ClassFile) FindAttribute(attrs []Attribute, name string) int {
	for i := range attrs {
		if cf.AttributeName(&attrs[i]) == name {
			return i
		}
	}
	return -1
}

// FindMethod returns the method with the given name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *Member {
	for i := range cf.Methods {
		m := &cf.Methods[i]
		if cf.MemberName(m) == name && cf.MemberDescriptor(m) == descriptor {
			return m
		}
	}
	return nil
}

// IsInterface reports whether the class is an interface or annotation type.
func (cf *ClassFile) IsInterface() bool {
	return cf.AccessFlags&AccInterface != 0
}

// HasStackMaps reports whether the class version requires StackMapTable
// frames to be maintained.
func (cf *ClassFile) HasStackMaps() bool {
	return cf.MajorVersion >= VersionStackMaps
}
