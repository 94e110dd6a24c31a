package classfile

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf16"

	"github.com/wippyai/jvm-instrument/errors"
)

// Constant is one constant pool entry. Which fields are meaningful depends
// on Tag:
//
//	Utf8                          Bytes (modified UTF-8)
//	Integer, Float                U4 (raw bits)
//	Long, Double                  U8 (raw bits)
//	Class, String, MethodType,
//	Module, Package               A
//	Fieldref, Methodref,
//	InterfaceMethodref            A = class, B = name and type
//	NameAndType                   A = name, B = descriptor
//	MethodHandle                  A = reference kind, B = reference
//	Dynamic, InvokeDynamic        A = bootstrap method, B = name and type
//
// The slot following a Long or Double has Tag 0.
type Constant struct {
	Bytes []byte
	U8    uint64
	U4    uint32
	A     uint16
	B     uint16
	Tag   uint8
}

// ConstantPool holds the constants of a class. Index 0 is unused.
type ConstantPool struct {
	entries []Constant
	index   map[string]uint16
}

// NewConstantPool returns an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{entries: make([]Constant, 1)}
}

// Count returns constant_pool_count: one more than the highest index.
func (cp *ConstantPool) Count() int {
	return len(cp.entries)
}

// Get returns the entry at index.
func (cp *ConstantPool) Get(index uint16) (*Constant, error) {
	if index == 0 || int(index) >= len(cp.entries) || cp.entries[index].Tag == 0 {
		return nil, errors.OutOfBounds(errors.PhaseParse, []string{"constant_pool"}, int(index), len(cp.entries))
	}
	return &cp.entries[index], nil
}

// Tag returns the tag of the entry at index, or 0 if the index is invalid.
func (cp *ConstantPool) Tag(index uint16) uint8 {
	if int(index) >= len(cp.entries) {
		return 0
	}
	return cp.entries[index].Tag
}

func (cp *ConstantPool) expect(index uint16, tag uint8) (*Constant, error) {
	c, err := cp.Get(index)
	if err != nil {
		return nil, err
	}
	if c.Tag != tag {
		return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
			Path("constant_pool", strconv.Itoa(int(index))).
			Detail("expected tag %d, got %d", tag, c.Tag).
			Build()
	}
	return c, nil
}

// Utf8 returns the decoded string of a CONSTANT_Utf8 entry.
func (cp *ConstantPool) Utf8(index uint16) (string, error) {
	c, err := cp.expect(index, TagUtf8)
	if err != nil {
		return "", err
	}
	return DecodeModifiedUTF8(c.Bytes)
}

// ClassName returns the internal name referenced by a CONSTANT_Class entry.
func (cp *ConstantPool) ClassName(index uint16) (string, error) {
	c, err := cp.expect(index, TagClass)
	if err != nil {
		return "", err
	}
	return cp.Utf8(c.A)
}

// MemberRef returns the owner, name and descriptor of a field or method
// reference.
func (cp *ConstantPool) MemberRef(index uint16) (owner, name, descriptor string, err error) {
	c, err := cp.Get(index)
	if err != nil {
		return "", "", "", err
	}
	switch c.Tag {
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
	default:
		return "", "", "", fmt.Errorf("constant %d is not a member reference (tag %d)", index, c.Tag)
	}
	if owner, err = cp.ClassName(c.A); err != nil {
		return "", "", "", err
	}
	name, descriptor, err = cp.NameAndType(c.B)
	return owner, name, descriptor, err
}

// NameAndType returns the name and descriptor of a CONSTANT_NameAndType entry.
func (cp *ConstantPool) NameAndType(index uint16) (name, descriptor string, err error) {
	c, err := cp.expect(index, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = cp.Utf8(c.A); err != nil {
		return "", "", err
	}
	descriptor, err = cp.Utf8(c.B)
	return name, descriptor, err
}

// InvokeDynamicDescriptor returns the call site descriptor of an
// invokedynamic constant.
func (cp *ConstantPool) InvokeDynamicDescriptor(index uint16) (string, error) {
	c, err := cp.expect(index, TagInvokeDynamic)
	if err != nil {
		return "", err
	}
	_, desc, err := cp.NameAndType(c.B)
	return desc, err
}

// append adds an entry, reserving the extra slot for wide constants.
func (cp *ConstantPool) append(c Constant) (uint16, error) {
	idx := len(cp.entries)
	size := 1
	if c.Tag == TagLong || c.Tag == TagDouble {
		size = 2
	}
	if idx+size > math.MaxUint16 {
		return 0, errors.Overflow(errors.PhaseEncode, []string{"constant_pool"}, idx+size, "constant_pool_count")
	}
	cp.entries = append(cp.entries, c)
	if size == 2 {
		cp.entries = append(cp.entries, Constant{})
	}
	return uint16(idx), nil
}

func entryKey(c *Constant) string {
	switch c.Tag {
	case TagUtf8:
		return "1:" + string(c.Bytes)
	case TagInteger, TagFloat:
		return fmt.Sprintf("%d:%d", c.Tag, c.U4)
	case TagLong, TagDouble:
		return fmt.Sprintf("%d:%d", c.Tag, c.U8)
	default:
		return fmt.Sprintf("%d:%d:%d", c.Tag, c.A, c.B)
	}
}

// intern returns the index of an equal entry, adding c if none exists.
func (cp *ConstantPool) intern(c Constant) (uint16, error) {
	if cp.index == nil {
		cp.index = make(map[string]uint16, len(cp.entries))
		for i := 1; i < len(cp.entries); i++ {
			e := &cp.entries[i]
			if e.Tag == 0 {
				continue
			}
			k := entryKey(e)
			if _, ok := cp.index[k]; !ok {
				cp.index[k] = uint16(i)
			}
		}
	}
	k := entryKey(&c)
	if idx, ok := cp.index[k]; ok {
		return idx, nil
	}
	idx, err := cp.append(c)
	if err != nil {
		return 0, err
	}
	cp.index[k] = idx
	return idx, nil
}

// AddUtf8 interns a CONSTANT_Utf8.
func (cp *ConstantPool) AddUtf8(s string) (uint16, error) {
	return cp.intern(Constant{Tag: TagUtf8, Bytes: EncodeModifiedUTF8(s)})
}

// AddClass interns a CONSTANT_Class for an internal name or array descriptor.
func (cp *ConstantPool) AddClass(name string) (uint16, error) {
	n, err := cp.AddUtf8(name)
	if err != nil {
		return 0, err
	}
	return cp.intern(Constant{Tag: TagClass, A: n})
}

// AddString interns a CONSTANT_String.
func (cp *ConstantPool) AddString(s string) (uint16, error) {
	n, err := cp.AddUtf8(s)
	if err != nil {
		return 0, err
	}
	return cp.intern(Constant{Tag: TagString, A: n})
}

// AddInteger interns a CONSTANT_Integer.
func (cp *ConstantPool) AddInteger(v int32) (uint16, error) {
	return cp.intern(Constant{Tag: TagInteger, U4: uint32(v)})
}

// AddLong interns a CONSTANT_Long.
func (cp *ConstantPool) AddLong(v int64) (uint16, error) {
	return cp.intern(Constant{Tag: TagLong, U8: uint64(v)})
}

// AddNameAndType interns a CONSTANT_NameAndType.
func (cp *ConstantPool) AddNameAndType(name, descriptor string) (uint16, error) {
	n, err := cp.AddUtf8(name)
	if err != nil {
		return 0, err
	}
	d, err := cp.AddUtf8(descriptor)
	if err != nil {
		return 0, err
	}
	return cp.intern(Constant{Tag: TagNameAndType, A: n, B: d})
}

func (cp *ConstantPool) addRef(tag uint8, owner, name, descriptor string) (uint16, error) {
	c, err := cp.AddClass(owner)
	if err != nil {
		return 0, err
	}
	nt, err := cp.AddNameAndType(name, descriptor)
	if err != nil {
		return 0, err
	}
	return cp.intern(Constant{Tag: tag, A: c, B: nt})
}

// AddFieldref interns a CONSTANT_Fieldref.
func (cp *ConstantPool) AddFieldref(owner, name, descriptor string) (uint16, error) {
	return cp.addRef(TagFieldref, owner, name, descriptor)
}

// AddMethodref interns a CONSTANT_Methodref.
func (cp *ConstantPool) AddMethodref(owner, name, descriptor string) (uint16, error) {
	return cp.addRef(TagMethodref, owner, name, descriptor)
}

// AddInterfaceMethodref interns a CONSTANT_InterfaceMethodref.
func (cp *ConstantPool) AddInterfaceMethodref(owner, name, descriptor string) (uint16, error) {
	return cp.addRef(TagInterfaceMethodref, owner, name, descriptor)
}

// DecodeModifiedUTF8 decodes the JVM's modified UTF-8: NUL is encoded in
// two bytes and supplementary characters as surrogate pairs.
func DecodeModifiedUTF8(b []byte) (string, error) {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), nil
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == 0:
			return "", fmt.Errorf("modified utf8: NUL byte at %d", i)
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xe0 == 0xc0:
			if i+1 >= len(b) || b[i+1]&0xc0 != 0x80 {
				return "", fmt.Errorf("modified utf8: bad 2-byte sequence at %d", i)
			}
			units = append(units, uint16(c&0x1f)<<6|uint16(b[i+1]&0x3f))
			i += 2
		case c&0xf0 == 0xe0:
			if i+2 >= len(b) || b[i+1]&0xc0 != 0x80 || b[i+2]&0xc0 != 0x80 {
				return "", fmt.Errorf("modified utf8: bad 3-byte sequence at %d", i)
			}
			units = append(units, uint16(c&0x0f)<<12|uint16(b[i+1]&0x3f)<<6|uint16(b[i+2]&0x3f))
			i += 3
		default:
			return "", fmt.Errorf("modified utf8: invalid byte %#x at %d", c, i)
		}
	}
	return string(utf16.Decode(units)), nil
}

// EncodeModifiedUTF8 encodes s in the JVM's modified UTF-8.
func EncodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u != 0 && u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			out = append(out, 0xc0|byte(u>>6), 0x80|byte(u&0x3f))
		default:
			out = append(out, 0xe0|byte(u>>12), 0x80|byte((u>>6)&0x3f), 0x80|byte(u&0x3f))
		}
	}
	return out
}
