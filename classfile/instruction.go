package classfile

import (
	"fmt"
	"strings"
)

// Label identifies a position in a decoded method body. Labels are placed
// in the instruction stream as OpLabel pseudo-instructions.
type Label int

func (l Label) String() string {
	return fmt.Sprintf("L%d", int(l))
}

// Instruction represents a decoded JVM instruction. Short and wide encodings
// of the same instruction decode to one canonical form; the encoder picks the
// smallest encoding that fits.
type Instruction struct {
	Imm    interface{}
	Opcode byte
}

// LabelImm marks a position; used only with OpLabel.
type LabelImm struct {
	Label Label
}

// LocalImm holds the local variable index for xload, xstore and ret.
type LocalImm struct {
	Index uint16
}

// IincImm holds the operands of iinc.
type IincImm struct {
	Index uint16
	Delta int16
}

// IntImm holds the operand of bipush and sipush.
type IntImm struct {
	Value int32
}

// NewArrayImm holds the primitive array type code of newarray.
type NewArrayImm struct {
	Type uint8
}

// CPImm holds a constant pool index for ldc, field, method, type and
// invokedynamic instructions.
type CPImm struct {
	Index uint16
}

// InvokeInterfaceImm holds the operands of invokeinterface.
type InvokeInterfaceImm struct {
	Index uint16
	Count uint8
}

// MultiANewArrayImm holds the operands of multianewarray.
type MultiANewArrayImm struct {
	Index uint16
	Dims  uint8
}

// BranchImm holds the target of a branch instruction.
type BranchImm struct {
	Target Label
}

// TableSwitchImm holds the jump table of tableswitch.
type TableSwitchImm struct {
	Targets []Label
	Default Label
	Low     int32
	High    int32
}

// LookupSwitchImm holds the sorted match table of lookupswitch.
type LookupSwitchImm struct {
	Keys    []int32
	Targets []Label
	Default Label
}

// Op returns an instruction without operands.
func Op(op byte) Instruction {
	return Instruction{Opcode: op}
}

// Mark returns the pseudo-instruction placing l.
func Mark(l Label) Instruction {
	return Instruction{Opcode: OpLabel, Imm: LabelImm{Label: l}}
}

// Local returns a local variable instruction.
func Local(op byte, index int) Instruction {
	return Instruction{Opcode: op, Imm: LocalImm{Index: uint16(index)}}
}

// CP returns an instruction referencing the constant pool.
func CP(op byte, index uint16) Instruction {
	return Instruction{Opcode: op, Imm: CPImm{Index: index}}
}

// Branch returns a branch to l.
func Branch(op byte, l Label) Instruction {
	return Instruction{Opcode: op, Imm: BranchImm{Target: l}}
}

// PushInt returns the shortest instruction pushing v.
func PushInt(v int32) Instruction {
	switch {
	case v >= -1 && v <= 5:
		return Op(byte(int32(OpIconst0) + v))
	case v >= -128 && v <= 127:
		return Instruction{Opcode: OpBipush, Imm: IntImm{Value: v}}
	case v >= -32768 && v <= 32767:
		return Instruction{Opcode: OpSipush, Imm: IntImm{Value: v}}
	}
	panic(fmt.Sprintf("classfile: PushInt(%d) needs a constant pool entry", v))
}

// Label returns the label placed by an OpLabel pseudo-instruction.
func (i Instruction) Label() (Label, bool) {
	if i.Opcode != OpLabel {
		return 0, false
	}
	imm, ok := i.Imm.(LabelImm)
	return imm.Label, ok
}

// Targets returns every label a branch or switch may transfer control to.
func (i Instruction) Targets() []Label {
	switch imm := i.Imm.(type) {
	case BranchImm:
		return []Label{imm.Target}
	case TableSwitchImm:
		return append([]Label{imm.Default}, imm.Targets...)
	case LookupSwitchImm:
		return append([]Label{imm.Default}, imm.Targets...)
	}
	return nil
}

func (i Instruction) String() string {
	if l, ok := i.Label(); ok {
		return l.String() + ":"
	}
	name := OpName(i.Opcode)
	switch imm := i.Imm.(type) {
	case nil:
		return name
	case LocalImm:
		return fmt.Sprintf("%s %d", name, imm.Index)
	case IincImm:
		return fmt.Sprintf("%s %d %d", name, imm.Index, imm.Delta)
	case IntImm:
		return fmt.Sprintf("%s %d", name, imm.Value)
	case NewArrayImm:
		return fmt.Sprintf("%s %d", name, imm.Type)
	case CPImm:
		return fmt.Sprintf("%s #%d", name, imm.Index)
	case InvokeInterfaceImm:
		return fmt.Sprintf("%s #%d %d", name, imm.Index, imm.Count)
	case MultiANewArrayImm:
		return fmt.Sprintf("%s #%d %d", name, imm.Index, imm.Dims)
	case BranchImm:
		return fmt.Sprintf("%s %s", name, imm.Target)
	case TableSwitchImm:
		var b strings.Builder
		fmt.Fprintf(&b, "%s %d..%d [", name, imm.Low, imm.High)
		for j, t := range imm.Targets {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(t.String())
		}
		fmt.Fprintf(&b, "] default %s", imm.Default)
		return b.String()
	case LookupSwitchImm:
		var b strings.Builder
		b.WriteString(name)
		b.WriteString(" [")
		for j, k := range imm.Keys {
			if j > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d:%s", k, imm.Targets[j])
		}
		fmt.Fprintf(&b, "] default %s", imm.Default)
		return b.String()
	}
	return fmt.Sprintf("%s %v", name, i.Imm)
}
