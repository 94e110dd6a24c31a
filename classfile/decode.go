package classfile

import (
	stderrors "errors"
	"fmt"

	"github.com/wippyai/jvm-instrument/classfile/internal/binary"
	"github.com/wippyai/jvm-instrument/errors"
)

// Parsing errors wrapped by Parse.
var (
	ErrInvalidMagic  = stderrors.New("invalid class file magic number")
	ErrTrailingBytes = stderrors.New("trailing bytes after class file")
)

// Parse decodes a class file. Any decoding failure is reported as a
// malformed input error wrapping the underlying cause.
func Parse(data []byte) (*ClassFile, error) {
	cf, err := parse(data)
	if err != nil {
		return nil, errors.MalformedInput(errors.PhaseParse, "cannot decode class file", err)
	}
	return cf, nil
}

func parse(data []byte) (*ClassFile, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU4()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}

	cf := &ClassFile{}
	if cf.MinorVersion, err = r.ReadU2(); err != nil {
		return nil, r.WrapError("header", err)
	}
	if cf.MajorVersion, err = r.ReadU2(); err != nil {
		return nil, r.WrapError("header", err)
	}

	if cf.ConstantPool, err = parseConstantPool(r); err != nil {
		return nil, err
	}

	if cf.AccessFlags, err = r.ReadU2(); err != nil {
		return nil, r.WrapError("access flags", err)
	}
	if cf.ThisClass, err = r.ReadU2(); err != nil {
		return nil, r.WrapError("this class", err)
	}
	if _, err := cf.ConstantPool.ClassName(cf.ThisClass); err != nil {
		return nil, fmt.Errorf("this class: %w", err)
	}
	if cf.SuperClass, err = r.ReadU2(); err != nil {
		return nil, r.WrapError("super class", err)
	}
	if cf.SuperClass != 0 {
		if _, err := cf.ConstantPool.ClassName(cf.SuperClass); err != nil {
			return nil, fmt.Errorf("super class: %w", err)
		}
	}

	count, err := r.ReadU2()
	if err != nil {
		return nil, r.WrapError("interfaces", err)
	}
	cf.Interfaces = make([]uint16, count)
	for i := range cf.Interfaces {
		if cf.Interfaces[i], err = r.ReadU2(); err != nil {
			return nil, r.WrapError("interfaces", err)
		}
		if _, err := cf.ConstantPool.ClassName(cf.Interfaces[i]); err != nil {
			return nil, fmt.Errorf("interface %d: %w", i, err)
		}
	}

	if cf.Fields, err = parseMembers(r, "fields"); err != nil {
		return nil, err
	}
	if cf.Methods, err = parseMembers(r, "methods"); err != nil {
		return nil, err
	}
	if cf.Attributes, err = parseAttributes(r); err != nil {
		return nil, r.WrapError("class attributes", err)
	}
	if r.Len() != 0 {
		return nil, r.WrapError("end", ErrTrailingBytes)
	}
	return cf, nil
}

func parseConstantPool(r *binary.Reader) (*ConstantPool, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, r.WrapError("constant pool", err)
	}
	if count == 0 {
		return nil, r.WrapError("constant pool", fmt.Errorf("constant_pool_count is zero"))
	}
	cp := &ConstantPool{entries: make([]Constant, 1, count)}
	for len(cp.entries) < int(count) {
		idx := len(cp.entries)
		c, err := parseConstant(r)
		if err != nil {
			return nil, r.WrapError(fmt.Sprintf("constant %d", idx), err)
		}
		cp.entries = append(cp.entries, c)
		if c.Tag == TagLong || c.Tag == TagDouble {
			if len(cp.entries) >= int(count) {
				return nil, r.WrapError(fmt.Sprintf("constant %d", idx), fmt.Errorf("wide constant in last slot"))
			}
			cp.entries = append(cp.entries, Constant{})
		}
	}
	return cp, nil
}

func parseConstant(r *binary.Reader) (Constant, error) {
	var c Constant
	var err error
	if c.Tag, err = r.ReadU1(); err != nil {
		return c, err
	}
	switch c.Tag {
	case TagUtf8:
		n, err := r.ReadU2()
		if err != nil {
			return c, err
		}
		c.Bytes, err = r.ReadBytes(int(n))
		return c, err
	case TagInteger, TagFloat:
		c.U4, err = r.ReadU4()
	case TagLong, TagDouble:
		c.U8, err = r.ReadU8()
	case TagClass, TagString, TagMethodType, TagModule, TagPackage:
		c.A, err = r.ReadU2()
	case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
		if c.A, err = r.ReadU2(); err != nil {
			return c, err
		}
		c.B, err = r.ReadU2()
	case TagMethodHandle:
		kind, err := r.ReadU1()
		if err != nil {
			return c, err
		}
		c.A = uint16(kind)
		c.B, err = r.ReadU2()
		return c, err
	default:
		return c, fmt.Errorf("unknown constant tag %d", c.Tag)
	}
	return c, err
}

func parseMembers(r *binary.Reader, section string) ([]Member, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, r.WrapError(section, err)
	}
	members := make([]Member, count)
	for i := range members {
		m := &members[i]
		if m.AccessFlags, err = r.ReadU2(); err != nil {
			return nil, r.WrapError(section, err)
		}
		if m.NameIndex, err = r.ReadU2(); err != nil {
			return nil, r.WrapError(section, err)
		}
		if m.DescriptorIndex, err = r.ReadU2(); err != nil {
			return nil, r.WrapError(section, err)
		}
		if m.Attributes, err = parseAttributes(r); err != nil {
			return nil, r.WrapError(section, err)
		}
	}
	return members, nil
}

func parseAttributes(r *binary.Reader) ([]Attribute, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	attrs := make([]Attribute, count)
	for i := range attrs {
		if attrs[i].NameIndex, err = r.ReadU2(); err != nil {
			return nil, err
		}
		n, err := r.ReadU4()
		if err != nil {
			return nil, err
		}
		if attrs[i].Data, err = r.ReadBytes(int(n)); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}
