package classfile

import (
	"fmt"
	"math"
	"sort"

	"github.com/wippyai/jvm-instrument/classfile/internal/binary"
	"github.com/wippyai/jvm-instrument/errors"
)

// Handler is an exception table entry. CatchType 0 catches everything.
type Handler struct {
	Start     Label
	End       Label
	Handler   Label
	CatchType uint16
}

// LineNumber maps the instruction at Start to a source line.
type LineNumber struct {
	Start Label
	Line  uint16
}

// LocalVar is a LocalVariableTable or LocalVariableTypeTable entry. For the
// latter DescriptorIndex refers to the generic signature.
type LocalVar struct {
	Start           Label
	End             Label
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
}

// Code is a decoded Code attribute. Branch targets, exception ranges, frames
// and debug tables refer to labels placed in Instrs, so instructions can be
// inserted without recomputing offsets by hand.
type Code struct {
	Instrs        []Instruction
	Handlers      []Handler
	Frames        []Frame
	Lines         []LineNumber
	LocalVars     []LocalVar
	LocalVarTypes []LocalVar
	// Dropped lists Code sub-attributes that were not decoded and will not
	// be written back.
	Dropped   []string
	MaxStack  uint16
	MaxLocals uint16
	nextLabel Label
}

// NewLabel allocates a label that is unique within the body.
func (c *Code) NewLabel() Label {
	l := c.nextLabel
	c.nextLabel++
	return l
}

// LabelIndex returns the position of every placed label in Instrs.
func (c *Code) LabelIndex() map[Label]int {
	idx := make(map[Label]int)
	for i, ins := range c.Instrs {
		if l, ok := ins.Label(); ok {
			idx[l] = i
		}
	}
	return idx
}

// FrameAt returns the frame attached to l, if any.
func (c *Code) FrameAt(l Label) *Frame {
	for i := range c.Frames {
		if c.Frames[i].Label == l {
			return &c.Frames[i]
		}
	}
	return nil
}

// DecodeCode decodes the Code attribute of m.
func (cf *ClassFile) DecodeCode(m *Member) (*Code, error) {
	ai := cf.FindAttribute(m.Attributes, AttrCode)
	if ai < 0 {
		return nil, errors.NotFound(errors.PhaseParse, "attribute", AttrCode)
	}
	c, err := cf.decodeCode(m, m.Attributes[ai].Data)
	if err != nil {
		return nil, errors.InMethod(
			errors.MalformedInput(errors.PhaseParse, "cannot decode Code attribute", err),
			cf.Name(), cf.MemberName(m)+cf.MemberDescriptor(m))
	}
	return c, nil
}

type rawInstr struct {
	ins     Instruction
	targets []int
	offset  int
}

func (cf *ClassFile) decodeCode(m *Member, data []byte) (*Code, error) {
	r := binary.NewReader(data)
	c := &Code{}
	var err error
	if c.MaxStack, err = r.ReadU2(); err != nil {
		return nil, err
	}
	if c.MaxLocals, err = r.ReadU2(); err != nil {
		return nil, err
	}
	codeLen, err := r.ReadU4()
	if err != nil {
		return nil, err
	}
	if codeLen == 0 || codeLen > math.MaxUint16 {
		return nil, fmt.Errorf("invalid code length %d", codeLen)
	}
	code, err := r.ReadBytes(int(codeLen))
	if err != nil {
		return nil, err
	}

	var raws []rawInstr
	starts := make(map[int]bool)
	for pc := 0; pc < len(code); {
		ri, next, err := decodeInstr(code, pc)
		if err != nil {
			return nil, err
		}
		starts[pc] = true
		raws = append(raws, ri)
		pc = next
	}
	starts[len(code)] = true

	wanted := make(map[int]bool)
	want := func(off int) error {
		if !starts[off] {
			return fmt.Errorf("offset %d is not an instruction boundary", off)
		}
		wanted[off] = true
		return nil
	}
	for _, ri := range raws {
		for _, t := range ri.targets {
			if err := want(t); err != nil {
				return nil, err
			}
		}
	}

	type rawHandler struct{ start, end, handler, catch uint16 }
	n, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	handlers := make([]rawHandler, n)
	for i := range handlers {
		h := &handlers[i]
		for _, p := range []*uint16{&h.start, &h.end, &h.handler, &h.catch} {
			if *p, err = r.ReadU2(); err != nil {
				return nil, err
			}
		}
		for _, off := range []uint16{h.start, h.end, h.handler} {
			if err := want(int(off)); err != nil {
				return nil, err
			}
		}
	}

	attrs, err := parseAttributes(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes in Code attribute", r.Len())
	}

	type rawLine struct{ start, line uint16 }
	type rawVar struct{ start, length, name, desc, index uint16 }
	var lines []rawLine
	var vars, varTypes []rawVar
	var frames []rawFrame

	readVars := func(data []byte) ([]rawVar, error) {
		vr := binary.NewReader(data)
		n, err := vr.ReadU2()
		if err != nil {
			return nil, err
		}
		out := make([]rawVar, n)
		for i := range out {
			v := &out[i]
			for _, p := range []*uint16{&v.start, &v.length, &v.name, &v.desc, &v.index} {
				if *p, err = vr.ReadU2(); err != nil {
					return nil, err
				}
			}
			if err := want(int(v.start)); err != nil {
				return nil, err
			}
			if err := want(int(v.start) + int(v.length)); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	for i := range attrs {
		name := cf.AttributeName(&attrs[i])
		switch name {
		case AttrLineNumberTable:
			lr := binary.NewReader(attrs[i].Data)
			n, err := lr.ReadU2()
			if err != nil {
				return nil, err
			}
			for j := 0; j < int(n); j++ {
				var l rawLine
				if l.start, err = lr.ReadU2(); err != nil {
					return nil, err
				}
				if l.line, err = lr.ReadU2(); err != nil {
					return nil, err
				}
				if err := want(int(l.start)); err != nil {
					return nil, err
				}
				lines = append(lines, l)
			}
		case AttrLocalVariableTable:
			v, err := readVars(attrs[i].Data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			vars = append(vars, v...)
		case AttrLocalVariableTypeTable:
			v, err := readVars(attrs[i].Data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			varTypes = append(varTypes, v...)
		case AttrStackMapTable:
			initial, err := InitialLocals(cf.Name(), cf.MemberName(m), cf.MemberDescriptor(m), m.AccessFlags&AccStatic != 0)
			if err != nil {
				return nil, err
			}
			if frames, err = decodeStackMap(cf.ConstantPool, attrs[i].Data, initial); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			for _, f := range frames {
				if err := want(f.offset); err != nil {
					return nil, err
				}
				for _, vt := range append(f.Locals[:len(f.Locals):len(f.Locals)], f.Stack...) {
					if vt.Tag == VUninitialized {
						if err := want(int(vt.Label)); err != nil {
							return nil, err
						}
					}
				}
			}
		default:
			c.Dropped = append(c.Dropped, name)
		}
	}

	offsets := make([]int, 0, len(wanted))
	for off := range wanted {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	labelAt := make(map[int]Label, len(offsets))
	for _, off := range offsets {
		labelAt[off] = c.NewLabel()
	}

	c.Instrs = make([]Instruction, 0, len(raws)+len(offsets))
	for _, ri := range raws {
		if l, ok := labelAt[ri.offset]; ok {
			c.Instrs = append(c.Instrs, Mark(l))
		}
		ins := ri.ins
		switch imm := ins.Imm.(type) {
		case BranchImm:
			imm.Target = labelAt[ri.targets[0]]
			ins.Imm = imm
		case TableSwitchImm:
			imm.Default = labelAt[ri.targets[0]]
			imm.Targets = make([]Label, len(ri.targets)-1)
			for j, t := range ri.targets[1:] {
				imm.Targets[j] = labelAt[t]
			}
			ins.Imm = imm
		case LookupSwitchImm:
			imm.Default = labelAt[ri.targets[0]]
			imm.Targets = make([]Label, len(ri.targets)-1)
			for j, t := range ri.targets[1:] {
				imm.Targets[j] = labelAt[t]
			}
			ins.Imm = imm
		}
		c.Instrs = append(c.Instrs, ins)
	}
	if l, ok := labelAt[len(code)]; ok {
		c.Instrs = append(c.Instrs, Mark(l))
	}

	for _, h := range handlers {
		c.Handlers = append(c.Handlers, Handler{
			Start:     labelAt[int(h.start)],
			End:       labelAt[int(h.end)],
			Handler:   labelAt[int(h.handler)],
			CatchType: h.catch,
		})
	}
	for _, l := range lines {
		c.Lines = append(c.Lines, LineNumber{Start: labelAt[int(l.start)], Line: l.line})
	}
	toVar := func(v rawVar) LocalVar {
		return LocalVar{
			Start:           labelAt[int(v.start)],
			End:             labelAt[int(v.start)+int(v.length)],
			NameIndex:       v.name,
			DescriptorIndex: v.desc,
			Index:           v.index,
		}
	}
	for _, v := range vars {
		c.LocalVars = append(c.LocalVars, toVar(v))
	}
	for _, v := range varTypes {
		c.LocalVarTypes = append(c.LocalVarTypes, toVar(v))
	}
	if frames != nil {
		c.Frames = make([]Frame, 0, len(frames))
		relabel := func(types []VType) []VType {
			out := make([]VType, len(types))
			for i, vt := range types {
				if vt.Tag == VUninitialized {
					vt.Label = labelAt[int(vt.Label)]
				}
				out[i] = vt
			}
			return out
		}
		for _, f := range frames {
			c.Frames = append(c.Frames, Frame{
				Label:  labelAt[f.offset],
				Locals: relabel(f.Locals),
				Stack:  relabel(f.Stack),
			})
		}
	}
	return c, nil
}

func decodeInstr(code []byte, pc int) (rawInstr, int, error) {
	r := binary.NewReader(code)
	if err := r.Reset(pc + 1); err != nil {
		return rawInstr{}, 0, err
	}
	op := code[pc]
	ri := rawInstr{offset: pc, ins: Instruction{Opcode: op}}
	fail := func(err error) (rawInstr, int, error) {
		return rawInstr{}, 0, fmt.Errorf("%s at %d: %w", OpName(op), pc, err)
	}

	switch {
	case op == OpBipush:
		b, err := r.ReadU1()
		if err != nil {
			return fail(err)
		}
		ri.ins.Imm = IntImm{Value: int32(int8(b))}
	case op == OpSipush:
		v, err := r.ReadS2()
		if err != nil {
			return fail(err)
		}
		ri.ins.Imm = IntImm{Value: int32(v)}
	case op == OpLdc:
		b, err := r.ReadU1()
		if err != nil {
			return fail(err)
		}
		ri.ins.Imm = CPImm{Index: uint16(b)}
	case op == OpLdcW:
		idx, err := r.ReadU2()
		if err != nil {
			return fail(err)
		}
		ri.ins = CP(OpLdc, idx)
	case op >= OpIload && op <= OpAload, op >= OpIstore && op <= OpAstore, op == OpRet:
		b, err := r.ReadU1()
		if err != nil {
			return fail(err)
		}
		ri.ins.Imm = LocalImm{Index: uint16(b)}
	case op >= OpIload0 && op <= OpAload3:
		k := op - OpIload0
		ri.ins = Local(OpIload+k/4, int(k%4))
	case op >= OpIstore0 && op <= OpAstore3:
		k := op - OpIstore0
		ri.ins = Local(OpIstore+k/4, int(k%4))
	case op == OpIinc:
		idx, err := r.ReadU1()
		if err != nil {
			return fail(err)
		}
		d, err := r.ReadU1()
		if err != nil {
			return fail(err)
		}
		ri.ins.Imm = IincImm{Index: uint16(idx), Delta: int16(int8(d))}
	case IsConditionalBranch(op), op == OpGoto, op == OpJsr:
		d, err := r.ReadS2()
		if err != nil {
			return fail(err)
		}
		ri.ins.Imm = BranchImm{}
		ri.targets = []int{pc + int(d)}
	case op == OpGotoW, op == OpJsrW:
		d, err := r.ReadS4()
		if err != nil {
			return fail(err)
		}
		ri.ins.Opcode = OpGoto
		if op == OpJsrW {
			ri.ins.Opcode = OpJsr
		}
		ri.ins.Imm = BranchImm{}
		ri.targets = []int{pc + int(d)}
	case op == OpTableswitch, op == OpLookupswitch:
		if err := r.Skip((4 - (pc+1)%4) % 4); err != nil {
			return fail(err)
		}
		def, err := r.ReadS4()
		if err != nil {
			return fail(err)
		}
		ri.targets = []int{pc + int(def)}
		if op == OpTableswitch {
			low, err := r.ReadS4()
			if err != nil {
				return fail(err)
			}
			high, err := r.ReadS4()
			if err != nil {
				return fail(err)
			}
			if high < low || int64(high)-int64(low) >= int64(len(code)) {
				return fail(fmt.Errorf("invalid range %d..%d", low, high))
			}
			for i := int64(low); i <= int64(high); i++ {
				d, err := r.ReadS4()
				if err != nil {
					return fail(err)
				}
				ri.targets = append(ri.targets, pc+int(d))
			}
			ri.ins.Imm = TableSwitchImm{Low: low, High: high}
		} else {
			n, err := r.ReadS4()
			if err != nil {
				return fail(err)
			}
			if n < 0 || int(n) > len(code) {
				return fail(fmt.Errorf("invalid pair count %d", n))
			}
			keys := make([]int32, n)
			for i := range keys {
				if keys[i], err = r.ReadS4(); err != nil {
					return fail(err)
				}
				d, err := r.ReadS4()
				if err != nil {
					return fail(err)
				}
				ri.targets = append(ri.targets, pc+int(d))
			}
			ri.ins.Imm = LookupSwitchImm{Keys: keys}
		}
	case op == OpLdc2W, op >= OpGetstatic && op <= OpInvokestatic,
		op == OpNew, op == OpAnewarray, op == OpCheckcast, op == OpInstanceof:
		idx, err := r.ReadU2()
		if err != nil {
			return fail(err)
		}
		ri.ins.Imm = CPImm{Index: idx}
	case op == OpInvokeinterface:
		idx, err := r.ReadU2()
		if err != nil {
			return fail(err)
		}
		count, err := r.ReadU1()
		if err != nil {
			return fail(err)
		}
		if err := r.Skip(1); err != nil {
			return fail(err)
		}
		ri.ins.Imm = InvokeInterfaceImm{Index: idx, Count: count}
	case op == OpInvokedynamic:
		idx, err := r.ReadU2()
		if err != nil {
			return fail(err)
		}
		if err := r.Skip(2); err != nil {
			return fail(err)
		}
		ri.ins.Imm = CPImm{Index: idx}
	case op == OpNewarray:
		t, err := r.ReadU1()
		if err != nil {
			return fail(err)
		}
		ri.ins.Imm = NewArrayImm{Type: t}
	case op == OpMultianewarray:
		idx, err := r.ReadU2()
		if err != nil {
			return fail(err)
		}
		dims, err := r.ReadU1()
		if err != nil {
			return fail(err)
		}
		ri.ins.Imm = MultiANewArrayImm{Index: idx, Dims: dims}
	case op == OpWide:
		sub, err := r.ReadU1()
		if err != nil {
			return fail(err)
		}
		idx, err := r.ReadU2()
		if err != nil {
			return fail(err)
		}
		switch {
		case sub == OpIinc:
			d, err := r.ReadS2()
			if err != nil {
				return fail(err)
			}
			ri.ins = Instruction{Opcode: OpIinc, Imm: IincImm{Index: idx, Delta: d}}
		case sub >= OpIload && sub <= OpAload, sub >= OpIstore && sub <= OpAstore, sub == OpRet:
			ri.ins = Local(sub, int(idx))
		default:
			return fail(fmt.Errorf("invalid wide operand %#x", sub))
		}
	case op > OpJsrW:
		return fail(fmt.Errorf("invalid opcode %#x", op))
	}
	return ri, r.Position(), nil
}

// EncodeCode lays out c and replaces the Code attribute of m with it.
// Frames are written only for classes that carry stack maps.
func (cf *ClassFile) EncodeCode(m *Member, c *Code) error {
	data, err := cf.encodeCode(c)
	if err != nil {
		return errors.InMethod(err, cf.Name(), cf.MemberName(m)+cf.MemberDescriptor(m))
	}
	name, err := cf.ConstantPool.AddUtf8(AttrCode)
	if err != nil {
		return err
	}
	if ai := cf.FindAttribute(m.Attributes, AttrCode); ai >= 0 {
		m.Attributes[ai].Data = data
	} else {
		m.Attributes = append(m.Attributes, Attribute{NameIndex: name, Data: data})
	}
	return nil
}

type layout struct {
	offsets []int
	labels  map[Label]int
	wide    []bool
	size    int
}

func (c *Code) layout() (*layout, error) {
	lay := &layout{
		offsets: make([]int, len(c.Instrs)),
		wide:    make([]bool, len(c.Instrs)),
	}
	for {
		lay.labels = make(map[Label]int)
		pos := 0
		for i, ins := range c.Instrs {
			lay.offsets[i] = pos
			if l, ok := ins.Label(); ok {
				lay.labels[l] = pos
			}
			pos += instrSize(ins, pos, lay.wide[i])
		}
		lay.size = pos

		changed := false
		for i, ins := range c.Instrs {
			for _, t := range ins.Targets() {
				if _, ok := lay.labels[t]; !ok {
					return nil, errors.NotFound(errors.PhaseEncode, "label", t.String())
				}
			}
			b, ok := ins.Imm.(BranchImm)
			if !ok || lay.wide[i] {
				continue
			}
			d := lay.labels[b.Target] - lay.offsets[i]
			if d >= math.MinInt16 && d <= math.MaxInt16 {
				continue
			}
			if ins.Opcode != OpGoto && ins.Opcode != OpJsr {
				return nil, errors.Overflow(errors.PhaseEncode, []string{"code"}, d, OpName(ins.Opcode)+" offset")
			}
			lay.wide[i] = true
			changed = true
		}
		if !changed {
			return lay, nil
		}
	}
}

func isLocalLoadStore(op byte) bool {
	return (op >= OpIload && op <= OpAload) || (op >= OpIstore && op <= OpAstore)
}

func instrSize(ins Instruction, pos int, wide bool) int {
	switch imm := ins.Imm.(type) {
	case LabelImm:
		return 0
	case LocalImm:
		switch {
		case isLocalLoadStore(ins.Opcode) && imm.Index <= 3:
			return 1
		case imm.Index <= 255:
			return 2
		default:
			return 4
		}
	case IincImm:
		if imm.Index <= 255 && imm.Delta >= -128 && imm.Delta <= 127 {
			return 3
		}
		return 6
	case IntImm:
		if ins.Opcode == OpBipush {
			return 2
		}
		return 3
	case NewArrayImm:
		return 2
	case CPImm:
		switch ins.Opcode {
		case OpLdc:
			if imm.Index <= 255 {
				return 2
			}
			return 3
		case OpInvokedynamic:
			return 5
		default:
			return 3
		}
	case InvokeInterfaceImm:
		return 5
	case MultiANewArrayImm:
		return 4
	case BranchImm:
		if wide {
			return 5
		}
		return 3
	case TableSwitchImm:
		return 1 + (4-(pos+1)%4)%4 + 12 + 4*len(imm.Targets)
	case LookupSwitchImm:
		return 1 + (4-(pos+1)%4)%4 + 8 + 8*len(imm.Keys)
	}
	return 1
}

func (cf *ClassFile) encodeCode(c *Code) ([]byte, error) {
	lay, err := c.layout()
	if err != nil {
		return nil, err
	}
	if lay.size == 0 || lay.size > math.MaxUint16 {
		return nil, errors.Overflow(errors.PhaseEncode, []string{"code"}, lay.size, "code length")
	}

	code := binary.NewWriter()
	for i, ins := range c.Instrs {
		emitInstr(code, ins, lay, i)
	}

	w := binary.NewWriter()
	w.WriteU2(c.MaxStack)
	w.WriteU2(c.MaxLocals)
	w.WriteU4(uint32(code.Len()))
	w.WriteBytes(code.Bytes())

	var table []Handler
	for _, h := range c.Handlers {
		start, end := lay.labels[h.Start], lay.labels[h.End]
		if start >= end {
			continue
		}
		if _, ok := lay.labels[h.Handler]; !ok {
			return nil, errors.NotFound(errors.PhaseEncode, "label", h.Handler.String())
		}
		table = append(table, h)
	}
	w.WriteU2(uint16(len(table)))
	for _, h := range table {
		w.WriteU2(uint16(lay.labels[h.Start]))
		w.WriteU2(uint16(lay.labels[h.End]))
		w.WriteU2(uint16(lay.labels[h.Handler]))
		w.WriteU2(h.CatchType)
	}

	var attrs []Attribute
	add := func(name string, data []byte) error {
		idx, err := cf.ConstantPool.AddUtf8(name)
		if err != nil {
			return err
		}
		attrs = append(attrs, Attribute{NameIndex: idx, Data: data})
		return nil
	}
	if len(c.Lines) > 0 {
		lw := binary.NewWriter()
		lw.WriteU2(uint16(len(c.Lines)))
		for _, l := range c.Lines {
			lw.WriteU2(uint16(lay.labels[l.Start]))
			lw.WriteU2(l.Line)
		}
		if err := add(AttrLineNumberTable, lw.Bytes()); err != nil {
			return nil, err
		}
	}
	for _, t := range []struct {
		name string
		vars []LocalVar
	}{{AttrLocalVariableTable, c.LocalVars}, {AttrLocalVariableTypeTable, c.LocalVarTypes}} {
		if len(t.vars) == 0 {
			continue
		}
		vw := binary.NewWriter()
		vw.WriteU2(uint16(len(t.vars)))
		for _, v := range t.vars {
			start := lay.labels[v.Start]
			vw.WriteU2(uint16(start))
			vw.WriteU2(uint16(lay.labels[v.End] - start))
			vw.WriteU2(v.NameIndex)
			vw.WriteU2(v.DescriptorIndex)
			vw.WriteU2(v.Index)
		}
		if err := add(t.name, vw.Bytes()); err != nil {
			return nil, err
		}
	}
	if len(c.Frames) > 0 && cf.HasStackMaps() {
		data, err := encodeStackMap(cf.ConstantPool, c.Frames, lay.labels, lay.size)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "stack map")
		}
		if err := add(AttrStackMapTable, data); err != nil {
			return nil, err
		}
	}
	if err := encodeAttributes(w, attrs, "code"); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func emitInstr(w *binary.Writer, ins Instruction, lay *layout, i int) {
	pos := lay.offsets[i]
	switch imm := ins.Imm.(type) {
	case LabelImm:
	case LocalImm:
		switch {
		case isLocalLoadStore(ins.Opcode) && imm.Index <= 3:
			if ins.Opcode <= OpAload {
				w.Byte(OpIload0 + (ins.Opcode-OpIload)*4 + byte(imm.Index))
			} else {
				w.Byte(OpIstore0 + (ins.Opcode-OpIstore)*4 + byte(imm.Index))
			}
		case imm.Index <= 255:
			w.Byte(ins.Opcode)
			w.Byte(byte(imm.Index))
		default:
			w.Byte(OpWide)
			w.Byte(ins.Opcode)
			w.WriteU2(imm.Index)
		}
	case IincImm:
		if imm.Index <= 255 && imm.Delta >= -128 && imm.Delta <= 127 {
			w.Byte(OpIinc)
			w.Byte(byte(imm.Index))
			w.Byte(byte(int8(imm.Delta)))
		} else {
			w.Byte(OpWide)
			w.Byte(OpIinc)
			w.WriteU2(imm.Index)
			w.WriteU2(uint16(imm.Delta))
		}
	case IntImm:
		w.Byte(ins.Opcode)
		if ins.Opcode == OpBipush {
			w.Byte(byte(int8(imm.Value)))
		} else {
			w.WriteU2(uint16(int16(imm.Value)))
		}
	case NewArrayImm:
		w.Byte(ins.Opcode)
		w.Byte(imm.Type)
	case CPImm:
		switch {
		case ins.Opcode == OpLdc && imm.Index <= 255:
			w.Byte(OpLdc)
			w.Byte(byte(imm.Index))
		case ins.Opcode == OpLdc:
			w.Byte(OpLdcW)
			w.WriteU2(imm.Index)
		case ins.Opcode == OpInvokedynamic:
			w.Byte(ins.Opcode)
			w.WriteU2(imm.Index)
			w.WriteU2(0)
		default:
			w.Byte(ins.Opcode)
			w.WriteU2(imm.Index)
		}
	case InvokeInterfaceImm:
		w.Byte(ins.Opcode)
		w.WriteU2(imm.Index)
		w.Byte(imm.Count)
		w.Byte(0)
	case MultiANewArrayImm:
		w.Byte(ins.Opcode)
		w.WriteU2(imm.Index)
		w.Byte(imm.Dims)
	case BranchImm:
		d := lay.labels[imm.Target] - pos
		if lay.wide[i] {
			op := OpGotoW
			if ins.Opcode == OpJsr {
				op = OpJsrW
			}
			w.Byte(op)
			w.WriteU4(uint32(int32(d)))
		} else {
			w.Byte(ins.Opcode)
			w.WriteU2(uint16(int16(d)))
		}
	case TableSwitchImm:
		w.Byte(ins.Opcode)
		for p := 0; p < (4-(pos+1)%4)%4; p++ {
			w.Byte(0)
		}
		w.WriteU4(uint32(int32(lay.labels[imm.Default] - pos)))
		w.WriteU4(uint32(imm.Low))
		w.WriteU4(uint32(imm.High))
		for _, t := range imm.Targets {
			w.WriteU4(uint32(int32(lay.labels[t] - pos)))
		}
	case LookupSwitchImm:
		w.Byte(ins.Opcode)
		for p := 0; p < (4-(pos+1)%4)%4; p++ {
			w.Byte(0)
		}
		w.WriteU4(uint32(int32(lay.labels[imm.Default] - pos)))
		w.WriteU4(uint32(len(imm.Keys)))
		for j, k := range imm.Keys {
			w.WriteU4(uint32(k))
			w.WriteU4(uint32(int32(lay.labels[imm.Targets[j]] - pos)))
		}
	default:
		w.Byte(ins.Opcode)
	}
}
