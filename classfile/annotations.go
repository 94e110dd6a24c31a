package classfile

import (
	"fmt"

	"github.com/wippyai/jvm-instrument/classfile/internal/binary"
	"github.com/wippyai/jvm-instrument/errors"
)

// AnnotationTypes returns the type descriptors of the annotations found in
// the RuntimeVisibleAnnotations and RuntimeInvisibleAnnotations attributes
// of attrs, visible first, in declaration order. Element values are
// validated but not returned.
func (cf *ClassFile) AnnotationTypes(attrs []Attribute) ([]string, error) {
	var out []string
	for _, name := range []string{AttrRuntimeVisibleAnnotations, AttrRuntimeInvisibleAnnotations} {
		for i := range attrs {
			if cf.AttributeName(&attrs[i]) != name {
				continue
			}
			descs, err := cf.readAnnotations(attrs[i].Data)
			if err != nil {
				return nil, errors.MalformedInput(errors.PhaseParse, "cannot decode "+name, err)
			}
			out = append(out, descs...)
		}
	}
	return out, nil
}

func (cf *ClassFile) readAnnotations(data []byte) ([]string, error) {
	r := binary.NewReader(data)
	n, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	descs := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		desc, err := cf.readAnnotation(r, 0)
		if err != nil {
			return nil, r.WrapError("annotation", err)
		}
		descs = append(descs, desc)
	}
	if r.Len() != 0 {
		return nil, ErrTrailingBytes
	}
	return descs, nil
}

// maxAnnotationDepth bounds nested annotation and array values.
const maxAnnotationDepth = 64

func (cf *ClassFile) readAnnotation(r *binary.Reader, depth int) (string, error) {
	if depth > maxAnnotationDepth {
		return "", fmt.Errorf("annotation nesting exceeds %d", maxAnnotationDepth)
	}
	typeIdx, err := r.ReadU2()
	if err != nil {
		return "", err
	}
	desc, err := cf.ConstantPool.Utf8(typeIdx)
	if err != nil {
		return "", err
	}
	pairs, err := r.ReadU2()
	if err != nil {
		return "", err
	}
	for i := 0; i < int(pairs); i++ {
		if _, err := r.ReadU2(); err != nil {
			return "", err
		}
		if err := cf.skipElementValue(r, depth+1); err != nil {
			return "", err
		}
	}
	return desc, nil
}

func (cf *ClassFile) skipElementValue(r *binary.Reader, depth int) error {
	if depth > maxAnnotationDepth {
		return fmt.Errorf("annotation nesting exceeds %d", maxAnnotationDepth)
	}
	tag, err := r.ReadU1()
	if err != nil {
		return err
	}
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's', 'c':
		return r.Skip(2)
	case 'e':
		return r.Skip(4)
	case '@':
		_, err := cf.readAnnotation(r, depth+1)
		return err
	case '[':
		n, err := r.ReadU2()
		if err != nil {
			return err
		}
		for i := 0; i < int(n); i++ {
			if err := cf.skipElementValue(r, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown element value tag %q", tag)
	}
}

// ExceptionNames returns the internal names listed in the Exceptions
// attribute of m, or nil if it has none.
func (cf *ClassFile) ExceptionNames(m *Member) ([]string, error) {
	ai := cf.FindAttribute(m.Attributes, AttrExceptions)
	if ai < 0 {
		return nil, nil
	}
	r := binary.NewReader(m.Attributes[ai].Data)
	n, err := r.ReadU2()
	if err != nil {
		return nil, errors.MalformedInput(errors.PhaseParse, "cannot decode Exceptions", err)
	}
	names := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		idx, err := r.ReadU2()
		if err != nil {
			return nil, errors.MalformedInput(errors.PhaseParse, "cannot decode Exceptions", r.WrapError("exceptions", err))
		}
		name, err := cf.ConstantPool.ClassName(idx)
		if err != nil {
			return nil, errors.MalformedInput(errors.PhaseParse, "cannot decode Exceptions", err)
		}
		names = append(names, name)
	}
	return names, nil
}
