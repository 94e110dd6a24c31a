package classfile

import (
	"fmt"
	"strings"
)

// Sort classifies a TypeTag.
type Sort uint8

const (
	SortVoid Sort = iota
	SortBoolean
	SortByte
	SortChar
	SortShort
	SortInt
	SortFloat
	SortLong
	SortDouble
	SortReference
	SortArray
)

// TypeTag describes a value type from a descriptor. For arrays, Elem is the
// sort of the innermost component, Class its internal name when that
// component is a reference, and Dims the number of dimensions.
type TypeTag struct {
	Class string
	Dims  int
	Sort  Sort
	Elem  Sort
}

var (
	Void    = TypeTag{Sort: SortVoid}
	Boolean = TypeTag{Sort: SortBoolean}
	Byte    = TypeTag{Sort: SortByte}
	Char    = TypeTag{Sort: SortChar}
	Short   = TypeTag{Sort: SortShort}
	Int     = TypeTag{Sort: SortInt}
	Float   = TypeTag{Sort: SortFloat}
	Long    = TypeTag{Sort: SortLong}
	Double  = TypeTag{Sort: SortDouble}
)

// Reference returns the tag of a class type given its internal name.
func Reference(internalName string) TypeTag {
	return TypeTag{Sort: SortReference, Class: internalName}
}

// ArrayOf returns the tag of a dims-dimensional array of elem.
func ArrayOf(elem TypeTag, dims int) TypeTag {
	if elem.Sort == SortArray {
		elem.Dims += dims
		return elem
	}
	return TypeTag{Sort: SortArray, Elem: elem.Sort, Class: elem.Class, Dims: dims}
}

type primitiveInfo struct {
	desc    byte
	name    string
	wrapper string
	unbox   string
}

var primitives = map[Sort]primitiveInfo{
	SortBoolean: {'Z', "boolean", "java/lang/Boolean", "booleanValue"},
	SortByte:    {'B', "byte", "java/lang/Byte", "byteValue"},
	SortChar:    {'C', "char", "java/lang/Character", "charValue"},
	SortShort:   {'S', "short", "java/lang/Short", "shortValue"},
	SortInt:     {'I', "int", "java/lang/Integer", "intValue"},
	SortFloat:   {'F', "float", "java/lang/Float", "floatValue"},
	SortLong:    {'J', "long", "java/lang/Long", "longValue"},
	SortDouble:  {'D', "double", "java/lang/Double", "doubleValue"},
}

var descSorts = map[byte]Sort{
	'V': SortVoid, 'Z': SortBoolean, 'B': SortByte, 'C': SortChar, 'S': SortShort,
	'I': SortInt, 'F': SortFloat, 'J': SortLong, 'D': SortDouble,
}

// ParseFieldDescriptor parses a single field descriptor such as "I",
// "Ljava/lang/String;" or "[[J".
func ParseFieldDescriptor(desc string) (TypeTag, error) {
	t, n, err := parseType(desc, 0)
	if err != nil {
		return TypeTag{}, err
	}
	if n != len(desc) {
		return TypeTag{}, fmt.Errorf("descriptor %q: trailing characters", desc)
	}
	if t.Sort == SortVoid {
		return TypeTag{}, fmt.Errorf("descriptor %q: void is not a field type", desc)
	}
	return t, nil
}

// ParseMethodDescriptor parses a method descriptor into its parameter and
// return types.
func ParseMethodDescriptor(desc string) (params []TypeTag, ret TypeTag, err error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, TypeTag{}, fmt.Errorf("method descriptor %q: missing '('", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		t, n, err := parseType(desc, i)
		if err != nil {
			return nil, TypeTag{}, err
		}
		if t.Sort == SortVoid {
			return nil, TypeTag{}, fmt.Errorf("method descriptor %q: void parameter", desc)
		}
		params = append(params, t)
		i = n
	}
	if i >= len(desc) {
		return nil, TypeTag{}, fmt.Errorf("method descriptor %q: missing ')'", desc)
	}
	ret, n, err := parseType(desc, i+1)
	if err != nil {
		return nil, TypeTag{}, err
	}
	if n != len(desc) {
		return nil, TypeTag{}, fmt.Errorf("method descriptor %q: trailing characters", desc)
	}
	return params, ret, nil
}

func parseType(desc string, i int) (TypeTag, int, error) {
	dims := 0
	for i < len(desc) && desc[i] == '[' {
		dims++
		i++
	}
	if i >= len(desc) {
		return TypeTag{}, 0, fmt.Errorf("descriptor %q: unexpected end", desc)
	}
	var t TypeTag
	switch c := desc[i]; c {
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end <= 1 {
			return TypeTag{}, 0, fmt.Errorf("descriptor %q: unterminated class name", desc)
		}
		t = Reference(desc[i+1 : i+end])
		i += end + 1
	default:
		s, ok := descSorts[c]
		if !ok {
			return TypeTag{}, 0, fmt.Errorf("descriptor %q: invalid type %q", desc, c)
		}
		t = TypeTag{Sort: s}
		i++
	}
	if dims > 0 {
		if t.Sort == SortVoid {
			return TypeTag{}, 0, fmt.Errorf("descriptor %q: array of void", desc)
		}
		t = ArrayOf(t, dims)
	}
	return t, i, nil
}

// IsPrimitive reports whether t is one of the eight primitive types.
func (t TypeTag) IsPrimitive() bool {
	_, ok := primitives[t.Sort]
	return ok
}

// IsReference reports whether values of t are object references.
func (t TypeTag) IsReference() bool {
	return t.Sort == SortReference || t.Sort == SortArray
}

// Component returns the innermost element type of an array.
func (t TypeTag) Component() TypeTag {
	if t.Sort != SortArray {
		return t
	}
	return TypeTag{Sort: t.Elem, Class: t.Class}
}

// Size returns the number of local variable or operand stack slots a value
// of t occupies.
func (t TypeTag) Size() int {
	switch t.Sort {
	case SortVoid:
		return 0
	case SortLong, SortDouble:
		return 2
	default:
		return 1
	}
}

// Descriptor returns the JVM descriptor of t.
func (t TypeTag) Descriptor() string {
	switch t.Sort {
	case SortVoid:
		return "V"
	case SortReference:
		return "L" + t.Class + ";"
	case SortArray:
		return strings.Repeat("[", t.Dims) + t.Component().Descriptor()
	default:
		return string(primitives[t.Sort].desc)
	}
}

// JavaName returns the source-level name of t: "int", "long[]",
// "java.lang.Object[][][]".
func (t TypeTag) JavaName() string {
	switch t.Sort {
	case SortVoid:
		return "void"
	case SortReference:
		return JavaClassName(t.Class)
	case SortArray:
		return t.Component().JavaName() + strings.Repeat("[]", t.Dims)
	default:
		return primitives[t.Sort].name
	}
}

func (t TypeTag) String() string {
	return t.JavaName()
}

// JavaClassName converts an internal class name to its dotted form.
func JavaClassName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// InternalClassName converts a dotted class name to its internal form.
func InternalClassName(java string) string {
	return strings.ReplaceAll(java, ".", "/")
}

// Wrapper returns the internal name of the box class for a primitive, or ""
// for any other type.
func (t TypeTag) Wrapper() string {
	return primitives[t.Sort].wrapper
}

// BoxMethod returns the name and descriptor of the static valueOf method
// that boxes a primitive.
func (t TypeTag) BoxMethod() (name, descriptor string) {
	p := primitives[t.Sort]
	return "valueOf", "(" + string(p.desc) + ")L" + p.wrapper + ";"
}

// UnboxMethod returns the name and descriptor of the instance method on the
// wrapper that yields the primitive value.
func (t TypeTag) UnboxMethod() (name, descriptor string) {
	p := primitives[t.Sort]
	return p.unbox, "()" + string(p.desc)
}

// CheckTag returns the type an Object must have to stand in for a value of
// type t: the wrapper class for primitives and t itself otherwise.
func (t TypeTag) CheckTag() TypeTag {
	if t.IsPrimitive() {
		return Reference(t.Wrapper())
	}
	return t
}

// CheckType returns the class operand used to test and cast an Object to
// t: the wrapper for primitives, the internal name for classes and the
// descriptor for arrays.
func (t TypeTag) CheckType() string {
	c := t.CheckTag()
	if c.Sort == SortArray {
		return c.Descriptor()
	}
	return c.Class
}

// Compatible reports whether a value of type actual may stand in for a
// value of type declared: identical types, a primitive and its wrapper, or
// arrays with the same component type and dimension.
func Compatible(declared, actual TypeTag) bool {
	if declared == actual {
		return declared.Sort != SortVoid
	}
	if declared.IsPrimitive() && actual.Sort == SortReference {
		return actual.Class == declared.Wrapper()
	}
	if actual.IsPrimitive() && declared.Sort == SortReference {
		return declared.Class == actual.Wrapper()
	}
	return false
}

// LoadOp returns the xLOAD opcode for t.
func (t TypeTag) LoadOp() byte {
	return OpIload + t.kindOffset()
}

// StoreOp returns the xSTORE opcode for t.
func (t TypeTag) StoreOp() byte {
	return OpIstore + t.kindOffset()
}

// ReturnOp returns the xRETURN opcode for t.
func (t TypeTag) ReturnOp() byte {
	if t.Sort == SortVoid {
		return OpReturn
	}
	return OpIreturn + t.kindOffset()
}

// kindOffset orders types as the JVM's typed instruction families do:
// int, long, float, double, reference.
func (t TypeTag) kindOffset() byte {
	switch t.Sort {
	case SortLong:
		return 1
	case SortFloat:
		return 2
	case SortDouble:
		return 3
	case SortReference, SortArray:
		return 4
	default:
		return 0
	}
}

// ArgumentSlots returns the number of local slots the parameters occupy,
// excluding the receiver.
func ArgumentSlots(params []TypeTag) int {
	n := 0
	for _, p := range params {
		n += p.Size()
	}
	return n
}
