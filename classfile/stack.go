package classfile

import (
	"fmt"

	"github.com/wippyai/jvm-instrument/errors"
)

// StackEffect describes how an instruction changes the operand stack,
// counted in slots.
type StackEffect struct {
	Pops   int
	Pushes int
}

var fixedEffects = map[byte]StackEffect{
	OpNop: {0, 0}, OpAconstNull: {0, 1},
	OpIconstM1: {0, 1}, OpIconst0: {0, 1}, OpIconst1: {0, 1}, OpIconst2: {0, 1},
	OpIconst3: {0, 1}, OpIconst4: {0, 1}, OpIconst5: {0, 1},
	OpLconst0: {0, 2}, OpLconst1: {0, 2},
	OpFconst0: {0, 1}, OpFconst1: {0, 1}, OpFconst2: {0, 1},
	OpDconst0: {0, 2}, OpDconst1: {0, 2},
	OpBipush: {0, 1}, OpSipush: {0, 1}, OpLdc2W: {0, 2},
	OpIload: {0, 1}, OpLload: {0, 2}, OpFload: {0, 1}, OpDload: {0, 2}, OpAload: {0, 1},
	OpIaload: {2, 1}, OpLaload: {2, 2}, OpFaload: {2, 1}, OpDaload: {2, 2},
	OpAaload: {2, 1}, OpBaload: {2, 1}, OpCaload: {2, 1}, OpSaload: {2, 1},
	OpIstore: {1, 0}, OpLstore: {2, 0}, OpFstore: {1, 0}, OpDstore: {2, 0}, OpAstore: {1, 0},
	OpIastore: {3, 0}, OpLastore: {4, 0}, OpFastore: {3, 0}, OpDastore: {4, 0},
	OpAastore: {3, 0}, OpBastore: {3, 0}, OpCastore: {3, 0}, OpSastore: {3, 0},
	OpPop: {1, 0}, OpPop2: {2, 0},
	OpIadd: {2, 1}, OpLadd: {4, 2}, OpFadd: {2, 1}, OpDadd: {4, 2},
	OpIsub: {2, 1}, OpLsub: {4, 2}, OpFsub: {2, 1}, OpDsub: {4, 2},
	OpImul: {2, 1}, OpLmul: {4, 2}, OpFmul: {2, 1}, OpDmul: {4, 2},
	OpIdiv: {2, 1}, OpLdiv: {4, 2}, OpFdiv: {2, 1}, OpDdiv: {4, 2},
	OpIrem: {2, 1}, OpLrem: {4, 2}, OpFrem: {2, 1}, OpDrem: {4, 2},
	OpIneg: {1, 1}, OpLneg: {2, 2}, OpFneg: {1, 1}, OpDneg: {2, 2},
	OpIshl: {2, 1}, OpLshl: {3, 2}, OpIshr: {2, 1}, OpLshr: {3, 2}, OpIushr: {2, 1}, OpLushr: {3, 2},
	OpIand: {2, 1}, OpLand: {4, 2}, OpIor: {2, 1}, OpLor: {4, 2}, OpIxor: {2, 1}, OpLxor: {4, 2},
	OpIinc: {0, 0},
	OpI2l:  {1, 2}, OpI2f: {1, 1}, OpI2d: {1, 2}, OpL2i: {2, 1}, OpL2f: {2, 1}, OpL2d: {2, 2},
	OpF2i: {1, 1}, OpF2l: {1, 2}, OpF2d: {1, 2}, OpD2i: {2, 1}, OpD2l: {2, 2}, OpD2f: {2, 1},
	OpI2b: {1, 1}, OpI2c: {1, 1}, OpI2s: {1, 1},
	OpLcmp: {4, 1}, OpFcmpl: {2, 1}, OpFcmpg: {2, 1}, OpDcmpl: {4, 1}, OpDcmpg: {4, 1},
	OpIfeq: {1, 0}, OpIfne: {1, 0}, OpIflt: {1, 0}, OpIfge: {1, 0}, OpIfgt: {1, 0}, OpIfle: {1, 0},
	OpIfIcmpeq: {2, 0}, OpIfIcmpne: {2, 0}, OpIfIcmplt: {2, 0}, OpIfIcmpge: {2, 0},
	OpIfIcmpgt: {2, 0}, OpIfIcmple: {2, 0}, OpIfAcmpeq: {2, 0}, OpIfAcmpne: {2, 0},
	OpGoto: {0, 0}, OpJsr: {0, 1}, OpRet: {0, 0},
	OpTableswitch: {1, 0}, OpLookupswitch: {1, 0},
	OpIreturn: {1, 0}, OpLreturn: {2, 0}, OpFreturn: {1, 0}, OpDreturn: {2, 0}, OpAreturn: {1, 0}, OpReturn: {0, 0},
	OpNew: {0, 1}, OpNewarray: {1, 1}, OpAnewarray: {1, 1}, OpArraylength: {1, 1},
	OpAthrow: {1, 0}, OpCheckcast: {1, 1}, OpInstanceof: {1, 1},
	OpMonitorenter: {1, 0}, OpMonitorexit: {1, 0},
	OpIfnull: {1, 0}, OpIfnonnull: {1, 0},
}

// GetStackEffect returns the stack effect of ins. Instructions whose effect
// depends on a constant (field access, invocations, ldc) are resolved
// against cp. The dup and swap family is not covered: those instructions
// reorder slots and are simulated directly.
func GetStackEffect(cp *ConstantPool, ins Instruction) (StackEffect, error) {
	if eff, ok := fixedEffects[ins.Opcode]; ok {
		return eff, nil
	}
	switch ins.Opcode {
	case OpLdc:
		imm, _ := ins.Imm.(CPImm)
		c, err := cp.Get(imm.Index)
		if err != nil {
			return StackEffect{}, err
		}
		if c.Tag == TagLong || c.Tag == TagDouble {
			return StackEffect{0, 2}, nil
		}
		if c.Tag == TagDynamic {
			_, desc, err := cp.NameAndType(c.B)
			if err != nil {
				return StackEffect{}, err
			}
			t, err := ParseFieldDescriptor(desc)
			if err != nil {
				return StackEffect{}, err
			}
			return StackEffect{0, t.Size()}, nil
		}
		return StackEffect{0, 1}, nil
	case OpGetstatic, OpPutstatic, OpGetfield, OpPutfield:
		imm, _ := ins.Imm.(CPImm)
		_, _, desc, err := cp.MemberRef(imm.Index)
		if err != nil {
			return StackEffect{}, err
		}
		t, err := ParseFieldDescriptor(desc)
		if err != nil {
			return StackEffect{}, err
		}
		switch ins.Opcode {
		case OpGetstatic:
			return StackEffect{0, t.Size()}, nil
		case OpPutstatic:
			return StackEffect{t.Size(), 0}, nil
		case OpGetfield:
			return StackEffect{1, t.Size()}, nil
		default:
			return StackEffect{1 + t.Size(), 0}, nil
		}
	case OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface, OpInvokedynamic:
		var desc string
		var err error
		switch imm := ins.Imm.(type) {
		case CPImm:
			if ins.Opcode == OpInvokedynamic {
				desc, err = cp.InvokeDynamicDescriptor(imm.Index)
			} else {
				_, _, desc, err = cp.MemberRef(imm.Index)
			}
		case InvokeInterfaceImm:
			_, _, desc, err = cp.MemberRef(imm.Index)
		default:
			err = fmt.Errorf("%s without constant operand", OpName(ins.Opcode))
		}
		if err != nil {
			return StackEffect{}, err
		}
		params, ret, err := ParseMethodDescriptor(desc)
		if err != nil {
			return StackEffect{}, err
		}
		pops := ArgumentSlots(params)
		if ins.Opcode != OpInvokestatic && ins.Opcode != OpInvokedynamic {
			pops++
		}
		return StackEffect{pops, ret.Size()}, nil
	case OpMultianewarray:
		imm, _ := ins.Imm.(MultiANewArrayImm)
		return StackEffect{int(imm.Dims), 1}, nil
	}
	return StackEffect{}, fmt.Errorf("no stack effect for %s", OpName(ins.Opcode))
}

// FindInitCall returns the index in c.Instrs of the invokespecial <init>
// that initializes the receiver of a constructor, i.e. the this(...) or
// super(...) call. Only the receiver's identity is tracked: each stack slot
// records whether it holds the uninitialized this.
func FindInitCall(cp *ConstantPool, c *Code) (int, error) {
	var stack []bool
	thisInLocal0 := true
	saved := make(map[Label][]bool)
	for _, h := range c.Handlers {
		saved[h.Handler] = []bool{false}
	}
	save := func(l Label) {
		if _, ok := saved[l]; !ok {
			saved[l] = append([]bool(nil), stack...)
		}
	}
	pop := func(n int) ([]bool, error) {
		if n > len(stack) {
			return nil, fmt.Errorf("stack underflow")
		}
		top := append([]bool(nil), stack[len(stack)-n:]...)
		stack = stack[:len(stack)-n]
		return top, nil
	}

	reachable := true
	for i, ins := range c.Instrs {
		if l, ok := ins.Label(); ok {
			if s, ok := saved[l]; ok && !reachable {
				stack = append(stack[:0:0], s...)
				reachable = true
			} else if reachable {
				save(l)
			}
			continue
		}
		if !reachable {
			continue
		}

		switch ins.Opcode {
		case OpAload:
			imm, _ := ins.Imm.(LocalImm)
			stack = append(stack, imm.Index == 0 && thisInLocal0)
		case OpAstore:
			imm, _ := ins.Imm.(LocalImm)
			if imm.Index == 0 {
				thisInLocal0 = false
			}
			if _, err := pop(1); err != nil {
				return -1, err
			}
		case OpDup:
			top, err := pop(1)
			if err != nil {
				return -1, err
			}
			stack = append(stack, top[0], top[0])
		case OpDupX1:
			v, err := pop(2)
			if err != nil {
				return -1, err
			}
			stack = append(stack, v[1], v[0], v[1])
		case OpDupX2:
			v, err := pop(3)
			if err != nil {
				return -1, err
			}
			stack = append(stack, v[2], v[0], v[1], v[2])
		case OpDup2:
			v, err := pop(2)
			if err != nil {
				return -1, err
			}
			stack = append(stack, v[0], v[1], v[0], v[1])
		case OpDup2X1:
			v, err := pop(3)
			if err != nil {
				return -1, err
			}
			stack = append(stack, v[1], v[2], v[0], v[1], v[2])
		case OpDup2X2:
			v, err := pop(4)
			if err != nil {
				return -1, err
			}
			stack = append(stack, v[2], v[3], v[0], v[1], v[2], v[3])
		case OpSwap:
			v, err := pop(2)
			if err != nil {
				return -1, err
			}
			stack = append(stack, v[1], v[0])
		default:
			eff, err := GetStackEffect(cp, ins)
			if err != nil {
				return -1, err
			}
			if ins.Opcode == OpInvokespecial {
				imm, _ := ins.Imm.(CPImm)
				if _, name, _, err := cp.MemberRef(imm.Index); err == nil && name == ConstructorName {
					args, err := pop(eff.Pops)
					if err != nil {
						return -1, err
					}
					if args[0] {
						return i, nil
					}
					break
				}
			}
			if _, err := pop(eff.Pops); err != nil {
				return -1, err
			}
			for j := 0; j < eff.Pushes; j++ {
				stack = append(stack, false)
			}
		}

		for _, t := range ins.Targets() {
			save(t)
		}
		if EndsBlock(ins.Opcode) {
			reachable = false
		}
	}
	return -1, errors.NotFound(errors.PhaseInstrument, "constructor call", "this() or super()")
}

// dupGrowth is the number of slots the dup and swap family adds.
var dupGrowth = map[byte]int{
	OpDup: 1, OpDupX1: 1, OpDupX2: 1,
	OpDup2: 2, OpDup2X1: 2, OpDup2X2: 2,
	OpSwap: 0,
}

// StackHeights returns the operand stack height in slots before each
// instruction of c, or -1 where the linear walk could not reach it. Branch
// targets inherit the height at their first branch; handlers start at 1.
func StackHeights(cp *ConstantPool, c *Code) ([]int, error) {
	heights := make([]int, len(c.Instrs))
	saved := make(map[Label]int)
	for _, h := range c.Handlers {
		saved[h.Handler] = 1
	}
	height := 0
	reachable := true
	for i, ins := range c.Instrs {
		if l, ok := ins.Label(); ok {
			if h, ok := saved[l]; ok && !reachable {
				height = h
				reachable = true
			} else if reachable {
				if _, ok := saved[l]; !ok {
					saved[l] = height
				}
			}
		}
		if !reachable {
			heights[i] = -1
			continue
		}
		heights[i] = height
		if ins.Opcode == OpLabel {
			continue
		}

		if grow, ok := dupGrowth[ins.Opcode]; ok {
			height += grow
		} else {
			eff, err := GetStackEffect(cp, ins)
			if err != nil {
				return nil, err
			}
			if eff.Pops > height {
				return nil, fmt.Errorf("stack underflow at %d: %s", i, ins)
			}
			height += eff.Pushes - eff.Pops
		}
		for _, t := range ins.Targets() {
			if _, ok := saved[t]; !ok {
				saved[t] = height
			}
		}
		if EndsBlock(ins.Opcode) {
			reachable = false
		}
	}
	return heights, nil
}
