package classfile

import (
	"math"

	"github.com/wippyai/jvm-instrument/classfile/internal/binary"
	"github.com/wippyai/jvm-instrument/errors"
)

// Encode serializes a class file.
func Encode(cf *ClassFile) ([]byte, error) {
	w := binary.NewWriter()

	w.WriteU4(Magic)
	w.WriteU2(cf.MinorVersion)
	w.WriteU2(cf.MajorVersion)

	if err := encodeConstantPool(w, cf.ConstantPool); err != nil {
		return nil, err
	}

	w.WriteU2(cf.AccessFlags)
	w.WriteU2(cf.ThisClass)
	w.WriteU2(cf.SuperClass)

	if err := writeCount(w, len(cf.Interfaces), "interfaces"); err != nil {
		return nil, err
	}
	for _, idx := range cf.Interfaces {
		w.WriteU2(idx)
	}

	if err := encodeMembers(w, cf.Fields, "fields"); err != nil {
		return nil, err
	}
	if err := encodeMembers(w, cf.Methods, "methods"); err != nil {
		return nil, err
	}
	if err := encodeAttributes(w, cf.Attributes, "attributes"); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func writeCount(w *binary.Writer, n int, section string) error {
	if n > math.MaxUint16 {
		return errors.Overflow(errors.PhaseEncode, []string{section}, n, "u2 count")
	}
	w.WriteU2(uint16(n))
	return nil
}

func encodeConstantPool(w *binary.Writer, cp *ConstantPool) error {
	if err := writeCount(w, cp.Count(), "constant_pool"); err != nil {
		return err
	}
	for i := 1; i < len(cp.entries); i++ {
		c := &cp.entries[i]
		if c.Tag == 0 {
			continue
		}
		w.Byte(c.Tag)
		switch c.Tag {
		case TagUtf8:
			if err := writeCount(w, len(c.Bytes), "constant_pool"); err != nil {
				return err
			}
			w.WriteBytes(c.Bytes)
		case TagInteger, TagFloat:
			w.WriteU4(c.U4)
		case TagLong, TagDouble:
			w.WriteU8(c.U8)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w.WriteU2(c.A)
		case TagMethodHandle:
			w.Byte(byte(c.A))
			w.WriteU2(c.B)
		default:
			w.WriteU2(c.A)
			w.WriteU2(c.B)
		}
	}
	return nil
}

func encodeMembers(w *binary.Writer, members []Member, section string) error {
	if err := writeCount(w, len(members), section); err != nil {
		return err
	}
	for i := range members {
		m := &members[i]
		w.WriteU2(m.AccessFlags)
		w.WriteU2(m.NameIndex)
		w.WriteU2(m.DescriptorIndex)
		if err := encodeAttributes(w, m.Attributes, section); err != nil {
			return err
		}
	}
	return nil
}

func encodeAttributes(w *binary.Writer, attrs []Attribute, section string) error {
	if err := writeCount(w, len(attrs), section); err != nil {
		return err
	}
	for _, a := range attrs {
		if uint64(len(a.Data)) > math.MaxUint32 {
			return errors.Overflow(errors.PhaseEncode, []string{section}, len(a.Data), "attribute length")
		}
		w.WriteU2(a.NameIndex)
		w.WriteU4(uint32(len(a.Data)))
		w.WriteBytes(a.Data)
	}
	return nil
}
