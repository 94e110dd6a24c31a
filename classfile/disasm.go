package classfile

import (
	"fmt"
	"math"
	"strings"
)

var methodFlagNames = []struct {
	flag uint16
	name string
}{
	{AccPublic, "public"},
	{AccPrivate, "private"},
	{AccProtected, "protected"},
	{AccStatic, "static"},
	{AccFinal, "final"},
	{AccSynchronized, "synchronized"},
	{AccBridge, "bridge"},
	{AccVarargs, "varargs"},
	{AccNative, "native"},
	{AccAbstract, "abstract"},
	{AccStrict, "strict"},
	{AccSynthetic, "synthetic"},
}

// MethodFlagNames renders method access flags as keywords.
func MethodFlagNames(flags uint16) string {
	var parts []string
	for _, f := range methodFlagNames {
		if flags&f.flag != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, " ")
}

// DescribeConstant renders a constant pool entry the way javap comments
// do: class names, member references and literal values.
func (cp *ConstantPool) DescribeConstant(index uint16) string {
	c, err := cp.Get(index)
	if err != nil {
		return fmt.Sprintf("#%d?", index)
	}
	switch c.Tag {
	case TagUtf8:
		s, _ := DecodeModifiedUTF8(c.Bytes)
		return s
	case TagInteger:
		return fmt.Sprintf("int %d", int32(c.U4))
	case TagFloat:
		return fmt.Sprintf("float %g", math.Float32frombits(c.U4))
	case TagLong:
		return fmt.Sprintf("long %d", int64(c.U8))
	case TagDouble:
		return fmt.Sprintf("double %g", math.Float64frombits(c.U8))
	case TagClass:
		name, _ := cp.ClassName(index)
		return "class " + name
	case TagString:
		s, _ := cp.Utf8(c.A)
		return fmt.Sprintf("String %q", s)
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		owner, name, desc, err := cp.MemberRef(index)
		if err != nil {
			return fmt.Sprintf("#%d?", index)
		}
		return owner + "." + name + ":" + desc
	case TagInvokeDynamic, TagDynamic:
		name, desc, _ := cp.NameAndType(c.B)
		return fmt.Sprintf("#%d:%s:%s", c.A, name, desc)
	case TagMethodType:
		s, _ := cp.Utf8(c.A)
		return "MethodType " + s
	}
	return fmt.Sprintf("tag %d", c.Tag)
}

// Disassemble renders a decoded body one instruction per line, with
// constant operands resolved and frames and handlers listed after the code.
func Disassemble(cp *ConstantPool, c *Code) string {
	var b strings.Builder
	fmt.Fprintf(&b, "max_stack=%d max_locals=%d\n", c.MaxStack, c.MaxLocals)
	for _, ins := range c.Instrs {
		if _, ok := ins.Label(); ok {
			b.WriteString(ins.String())
			b.WriteByte('\n')
			continue
		}
		b.WriteString("    ")
		b.WriteString(ins.String())
		var idx uint16
		switch imm := ins.Imm.(type) {
		case CPImm:
			idx = imm.Index
		case InvokeInterfaceImm:
			idx = imm.Index
		case MultiANewArrayImm:
			idx = imm.Index
		}
		if idx != 0 {
			b.WriteString("  // ")
			b.WriteString(cp.DescribeConstant(idx))
		}
		b.WriteByte('\n')
	}
	for _, h := range c.Handlers {
		catch := "any"
		if h.CatchType != 0 {
			catch, _ = cp.ClassName(h.CatchType)
		}
		fmt.Fprintf(&b, "  try %s..%s -> %s %s\n", h.Start, h.End, h.Handler, catch)
	}
	for _, f := range c.Frames {
		fmt.Fprintf(&b, "  frame %s locals=%v stack=%v\n", f.Label, f.Locals, f.Stack)
	}
	return b.String()
}
