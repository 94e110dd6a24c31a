// Package classfile reads and writes JVM class files.
//
// Parse decodes the container (constant pool, members, attributes) and
// Encode writes it back byte for byte. Method bodies are decoded on demand:
//
//	cf, err := classfile.Parse(data)
//	m := cf.FindMethod("run", "()V")
//	code, err := cf.DecodeCode(m)
//
// A decoded Code holds a flat instruction list in which branch targets,
// exception ranges, stack map frames and debug tables refer to Labels
// rather than byte offsets. Instructions may be inserted anywhere; EncodeCode
// recomputes offsets, switch padding and wide forms, widening goto to
// goto_w when needed:
//
//	l := code.NewLabel()
//	code.Instrs = append([]classfile.Instruction{classfile.Mark(l)}, code.Instrs...)
//	err = cf.EncodeCode(m, code)
//
// Stack map frames are kept in expanded form (one entry per long or double)
// and re-emitted as full frames.
//
// TypeTag models descriptor types and the boxing rules used when values
// cross into Object-typed hook arguments; Compatible decides whether a
// value of one type may replace a value of another.
package classfile
