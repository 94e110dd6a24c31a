package classfile

import (
	"fmt"
	"sort"

	"github.com/wippyai/jvm-instrument/classfile/internal/binary"
)

// Verification type tags.
const (
	VTop               uint8 = 0
	VInteger           uint8 = 1
	VFloat             uint8 = 2
	VDouble            uint8 = 3
	VLong              uint8 = 4
	VNull              uint8 = 5
	VUninitializedThis uint8 = 6
	VObject            uint8 = 7
	VUninitialized     uint8 = 8
)

// VType is a verification type. Class is the internal name (or array
// descriptor) of an Object type; Label marks the new instruction of an
// Uninitialized type.
type VType struct {
	Class string
	Label Label
	Tag   uint8
}

// Common verification types.
var (
	TopType               = VType{Tag: VTop}
	IntegerType           = VType{Tag: VInteger}
	FloatType             = VType{Tag: VFloat}
	LongType              = VType{Tag: VLong}
	DoubleType            = VType{Tag: VDouble}
	NullType              = VType{Tag: VNull}
	UninitializedThisType = VType{Tag: VUninitializedThis}
)

// ObjectType returns the verification type of an initialized reference.
func ObjectType(class string) VType {
	return VType{Tag: VObject, Class: class}
}

// Size returns the number of slots the type occupies.
func (v VType) Size() int {
	if v.Tag == VLong || v.Tag == VDouble {
		return 2
	}
	return 1
}

func (v VType) String() string {
	switch v.Tag {
	case VTop:
		return "top"
	case VInteger:
		return "int"
	case VFloat:
		return "float"
	case VDouble:
		return "double"
	case VLong:
		return "long"
	case VNull:
		return "null"
	case VUninitializedThis:
		return "uninitializedThis"
	case VObject:
		return v.Class
	case VUninitialized:
		return "uninitialized(" + v.Label.String() + ")"
	}
	return fmt.Sprintf("vtype(%d)", v.Tag)
}

// VTypeOf returns the verification type of a value of type t.
func VTypeOf(t TypeTag) VType {
	switch t.Sort {
	case SortBoolean, SortByte, SortChar, SortShort, SortInt:
		return IntegerType
	case SortFloat:
		return FloatType
	case SortLong:
		return LongType
	case SortDouble:
		return DoubleType
	case SortReference:
		return ObjectType(t.Class)
	case SortArray:
		return ObjectType(t.Descriptor())
	}
	return TopType
}

// Frame is a stack map frame in expanded form: long and double occupy a
// single entry in Locals and Stack.
type Frame struct {
	Locals []VType
	Stack  []VType
	Label  Label
}

// SlotCount returns the number of local slots the entries cover.
func SlotCount(types []VType) int {
	n := 0
	for _, t := range types {
		n += t.Size()
	}
	return n
}

// PadLocals returns a copy of locals extended with Top entries until they
// cover slots slots.
func PadLocals(locals []VType, slots int) []VType {
	out := make([]VType, len(locals), len(locals)+slots)
	copy(out, locals)
	for n := SlotCount(locals); n < slots; n++ {
		out = append(out, TopType)
	}
	return out
}

// InitialLocals returns the implicit frame locals at method entry.
func InitialLocals(class, name, descriptor string, static bool) ([]VType, error) {
	params, _, err := ParseMethodDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	locals := make([]VType, 0, len(params)+1)
	if !static {
		if name == ConstructorName && class != "java/lang/Object" {
			locals = append(locals, UninitializedThisType)
		} else {
			locals = append(locals, ObjectType(class))
		}
	}
	for _, p := range params {
		locals = append(locals, VTypeOf(p))
	}
	return locals, nil
}

// rawFrame is a frame whose positions are still bytecode offsets; the Label
// of Uninitialized entries holds the offset of the new instruction.
type rawFrame struct {
	Frame
	offset int
}

func decodeStackMap(cp *ConstantPool, data []byte, initial []VType) ([]rawFrame, error) {
	r := binary.NewReader(data)
	count, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	frames := make([]rawFrame, 0, count)
	locals := initial
	offset := -1
	for i := 0; i < int(count); i++ {
		ft, err := r.ReadU1()
		if err != nil {
			return nil, err
		}
		var delta int
		var stack []VType
		switch {
		case ft <= 63:
			delta = int(ft)
		case ft <= 127:
			delta = int(ft - 64)
			vt, err := readVType(r, cp)
			if err != nil {
				return nil, err
			}
			stack = []VType{vt}
		case ft < 247:
			return nil, fmt.Errorf("reserved frame type %d", ft)
		case ft == 247:
			d, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			delta = int(d)
			vt, err := readVType(r, cp)
			if err != nil {
				return nil, err
			}
			stack = []VType{vt}
		case ft <= 250:
			d, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			delta = int(d)
			k := int(251 - ft)
			if k > len(locals) {
				return nil, fmt.Errorf("chop frame removes %d of %d locals", k, len(locals))
			}
			locals = locals[: len(locals)-k : len(locals)-k]
		case ft == 251:
			d, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			delta = int(d)
		case ft <= 254:
			d, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			delta = int(d)
			next := make([]VType, len(locals), len(locals)+int(ft-251))
			copy(next, locals)
			for j := 0; j < int(ft-251); j++ {
				vt, err := readVType(r, cp)
				if err != nil {
					return nil, err
				}
				next = append(next, vt)
			}
			locals = next
		default:
			d, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			delta = int(d)
			if locals, err = readVTypes(r, cp); err != nil {
				return nil, err
			}
			if stack, err = readVTypes(r, cp); err != nil {
				return nil, err
			}
		}
		offset += delta + 1
		frames = append(frames, rawFrame{
			Frame:  Frame{Locals: locals, Stack: stack},
			offset: offset,
		})
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return frames, nil
}

func readVTypes(r *binary.Reader, cp *ConstantPool) ([]VType, error) {
	n, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	out := make([]VType, n)
	for i := range out {
		if out[i], err = readVType(r, cp); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readVType(r *binary.Reader, cp *ConstantPool) (VType, error) {
	tag, err := r.ReadU1()
	if err != nil {
		return VType{}, err
	}
	switch tag {
	case VTop, VInteger, VFloat, VDouble, VLong, VNull, VUninitializedThis:
		return VType{Tag: tag}, nil
	case VObject:
		idx, err := r.ReadU2()
		if err != nil {
			return VType{}, err
		}
		name, err := cp.ClassName(idx)
		if err != nil {
			return VType{}, err
		}
		return ObjectType(name), nil
	case VUninitialized:
		off, err := r.ReadU2()
		if err != nil {
			return VType{}, err
		}
		return VType{Tag: VUninitialized, Label: Label(off)}, nil
	}
	return VType{}, fmt.Errorf("unknown verification type %d", tag)
}

// encodeStackMap writes frames as full_frame entries. Frames are ordered by
// offset; when several frames resolve to one offset the first wins.
func encodeStackMap(cp *ConstantPool, frames []Frame, labels map[Label]int, codeLen int) ([]byte, error) {
	type placed struct {
		f      *Frame
		offset int
		order  int
	}
	list := make([]placed, 0, len(frames))
	for i := range frames {
		off, ok := labels[frames[i].Label]
		if !ok {
			return nil, fmt.Errorf("frame label %s not placed", frames[i].Label)
		}
		if off >= codeLen {
			continue
		}
		list = append(list, placed{f: &frames[i], offset: off, order: i})
	}
	sort.SliceStable(list, func(a, b int) bool { return list[a].offset < list[b].offset })

	w := binary.NewWriter()
	w.WriteU2(0)
	count := 0
	prev := -1
	for _, p := range list {
		if p.offset == prev {
			continue
		}
		delta := p.offset - prev - 1
		if prev < 0 {
			delta = p.offset
		}
		w.Byte(255)
		w.WriteU2(uint16(delta))
		if err := writeVTypes(w, cp, p.f.Locals, labels); err != nil {
			return nil, err
		}
		if err := writeVTypes(w, cp, p.f.Stack, labels); err != nil {
			return nil, err
		}
		prev = p.offset
		count++
	}
	out := w.Bytes()
	out[0] = byte(count >> 8)
	out[1] = byte(count)
	return out, nil
}

func writeVTypes(w *binary.Writer, cp *ConstantPool, types []VType, labels map[Label]int) error {
	w.WriteU2(uint16(len(types)))
	for _, t := range types {
		w.Byte(t.Tag)
		switch t.Tag {
		case VObject:
			idx, err := cp.AddClass(t.Class)
			if err != nil {
				return err
			}
			w.WriteU2(idx)
		case VUninitialized:
			off, ok := labels[t.Label]
			if !ok {
				return fmt.Errorf("uninitialized label %s not placed", t.Label)
			}
			w.WriteU2(uint16(off))
		}
	}
	return nil
}
