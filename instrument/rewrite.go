package instrument

import (
	"math"

	"github.com/wippyai/jvm-instrument/classfile"
	"github.com/wippyai/jvm-instrument/errors"
)

// extraStack is the operand stack head room one pass needs on top of the
// original body: id, receiver, arguments and a boxed wide value.
const extraStack = 12

// method is a method body being rewritten together with everything the
// rewriters derive from its descriptor.
type method struct {
	cf     *classfile.ClassFile
	member *classfile.Member
	code   *classfile.Code
	class  string
	name   string
	desc   string
	params []classfile.TypeTag
	ret    classfile.TypeTag
	opts   Options
	static bool
	frames bool
}

func newMethod(cf *classfile.ClassFile, m *classfile.Member, code *classfile.Code, opts Options) (*method, error) {
	desc := cf.MemberDescriptor(m)
	params, ret, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		return nil, errors.MalformedInput(errors.PhaseInstrument, "method descriptor", err)
	}
	return &method{
		cf:     cf,
		member: m,
		code:   code,
		class:  cf.Name(),
		name:   cf.MemberName(m),
		desc:   desc,
		params: params,
		ret:    ret,
		opts:   opts,
		static: m.AccessFlags&classfile.AccStatic != 0,
		frames: cf.HasStackMaps(),
	}, nil
}

func (m *method) isConstructor() bool {
	return m.name == classfile.ConstructorName
}

// firstParam is the local slot of the first parameter.
func (m *method) firstParam() int {
	if m.static {
		return 0
	}
	return 1
}

func (m *method) initialLocals() ([]classfile.VType, error) {
	return classfile.InitialLocals(m.class, m.name, m.desc, m.static)
}

func (m *method) growStack(n int) error {
	v := int(m.code.MaxStack) + n
	if v > math.MaxUint16 {
		return errors.Overflow(errors.PhaseInstrument, []string{"max_stack"}, v, "u2")
	}
	m.code.MaxStack = uint16(v)
	return nil
}

// wrapper supplies the hook calls of one wrapping pass. The pass takes care
// of saving the receiver and arguments and splitting return paths.
type wrapper interface {
	// before runs once the receiver and argument array are saved.
	before(p *pass, a *asm) error
	// after replaces a return instruction. The return value, if any, is on
	// top of the stack.
	after(p *pass, a *asm) error
}

// exceptionReporter is implemented by wrappers that observe exceptions.
// The pass installs a catch-all handler around the body for them.
type exceptionReporter interface {
	// escape reports the exception in p.exc leaving the body.
	escape(p *pass, a *asm)
	// caught reports the exception in p.exc entering a typed catch handler.
	caught(p *pass, a *asm)
}

// pass is one application of a wrapper to a method. Every pass allocates
// its own locals past the method's current max_locals, so passes can be
// stacked.
type pass struct {
	*method
	id uint64

	base     int
	recv     int
	args     int
	result   int
	override int
	exc      int
	recvType classfile.VType

	newFrames []classfile.Frame
}

func (m *method) pass(id uint64) (*pass, error) {
	base := int(m.code.MaxLocals)
	p := &pass{
		method:   m,
		id:       id,
		base:     base,
		recv:     base,
		args:     base + 1,
		result:   base + 2,
		override: base + 4,
		exc:      base + 5,
		recvType: classfile.TopType,
	}
	if p.exc+1 > math.MaxUint16 {
		return nil, errors.Overflow(errors.PhaseInstrument, []string{"max_locals"}, p.exc+1, "u2")
	}
	if !m.static {
		p.recvType = classfile.ObjectType(m.class)
	}
	return p, nil
}

func (p *pass) loadReceiver(a *asm) {
	if p.static {
		a.op(classfile.OpAconstNull)
		return
	}
	a.local(classfile.OpAload, p.recv)
}

// hookArgs pushes id, receiver and argument array.
func (p *pass) hookArgs(a *asm) {
	a.pushLong(p.id)
	p.loadReceiver(a)
	a.local(classfile.OpAload, p.args)
}

func (p *pass) storeResult(a *asm) {
	if p.ret.Sort != classfile.SortVoid {
		a.local(p.ret.StoreOp(), p.result)
	}
}

// pushBoxedResult pushes the saved result as an Object, null for void.
func (p *pass) pushBoxedResult(a *asm) {
	if p.ret.Sort == classfile.SortVoid {
		a.op(classfile.OpAconstNull)
		return
	}
	a.local(p.ret.LoadOp(), p.result)
	a.box(p.ret)
}

func (p *pass) returnResult(a *asm) {
	if p.ret.Sort != classfile.SortVoid {
		a.local(p.ret.LoadOp(), p.result)
	}
	a.op(p.ret.ReturnOp())
}

// savedLocals returns frame locals where only the pass's receiver and
// argument slots are known.
func (p *pass) savedLocals() []classfile.VType {
	return append(classfile.PadLocals(nil, p.base), p.recvType, classfile.ObjectType(objectArrayDesc))
}

func (p *pass) addFrame(l classfile.Label, locals, stack []classfile.VType) {
	if p.frames {
		p.newFrames = append(p.newFrames, classfile.Frame{Label: l, Locals: locals, Stack: stack})
	}
}

// wrap rewrites the body so that w's hooks run before it and on every
// return, and, for exception reporters, when an exception escapes it.
func (p *pass) wrap(w wrapper) error {
	c := p.code
	cp := p.cf.ConstantPool

	initAt := -1
	if p.isConstructor() && p.class != objectClass {
		i, err := classfile.FindInitCall(cp, c)
		if err != nil {
			return err
		}
		initAt = i
	}

	argsType := classfile.ObjectType(objectArrayDesc)
	if p.frames {
		index := c.LabelIndex()
		for i := range c.Frames {
			f := &c.Frames[i]
			recv := p.recvType
			if initAt >= 0 && index[f.Label] <= initAt {
				recv = classfile.TopType
			}
			f.Locals = append(classfile.PadLocals(f.Locals, p.base), recv, argsType)
		}
	}

	a := newAsm(cp)
	if !p.static && initAt < 0 {
		a.local(classfile.OpAload, 0)
		a.local(classfile.OpAstore, p.recv)
	}
	a.argsArray(p.params, p.firstParam())
	a.local(classfile.OpAstore, p.args)

	// A constructor's before hook runs once this(...) or super(...) has
	// returned, so delegated constructors report first.
	body, end := c.NewLabel(), c.NewLabel()
	if initAt < 0 {
		if err := w.before(p, a); err != nil {
			return err
		}
		a.mark(body)
	}
	var ranges [][2]classfile.Label
	start := body
	for i, ins := range c.Instrs {
		if classfile.IsReturn(ins.Opcode) {
			hole, resume := c.NewLabel(), c.NewLabel()
			a.mark(hole)
			if err := w.after(p, a); err != nil {
				return err
			}
			a.mark(resume)
			ranges = append(ranges, [2]classfile.Label{start, hole})
			start = resume
			continue
		}
		a.emit(ins)
		if i == initAt {
			a.local(classfile.OpAload, 0)
			a.local(classfile.OpAstore, p.recv)
			if err := w.before(p, a); err != nil {
				return err
			}
			a.mark(body)
		}
	}
	a.mark(end)
	ranges = append(ranges, [2]classfile.Label{start, end})

	if r, ok := w.(exceptionReporter); ok {
		handler := c.NewLabel()
		a.mark(handler)
		p.addFrame(handler, p.savedLocals(), []classfile.VType{classfile.ObjectType(throwableClass)})
		a.local(classfile.OpAstore, p.exc)
		r.escape(p, a)
		a.local(classfile.OpAload, p.exc)
		a.op(classfile.OpAthrow)

		if p.opts.EnhancedExceptionSensor {
			if err := p.prefixCatchHandlers(r, a); err != nil {
				return err
			}
		}
		for _, rg := range ranges {
			c.Handlers = append(c.Handlers, classfile.Handler{Start: rg[0], End: rg[1], Handler: handler})
		}
	}
	c.Instrs = a.out
	c.Frames = append(c.Frames, p.newFrames...)
	c.MaxLocals = uint16(p.exc + 1)
	if err := p.growStack(extraStack); err != nil {
		return err
	}
	return a.err
}

// prefixCatchHandlers routes every typed catch handler through a block
// that reports the caught exception before jumping to the original code.
func (p *pass) prefixCatchHandlers(r exceptionReporter, a *asm) error {
	c := p.code
	prefixes := make(map[classfile.Label]classfile.Label)
	for i := range c.Handlers {
		h := &c.Handlers[i]
		if h.CatchType == 0 {
			continue
		}
		pre, ok := prefixes[h.Handler]
		if !ok {
			pre = c.NewLabel()
			prefixes[h.Handler] = pre
			if p.frames {
				f := c.FrameAt(h.Handler)
				if f == nil {
					return errors.InvalidData(errors.PhaseInstrument, []string{"stack_map"},
						"no frame at catch handler "+h.Handler.String())
				}
				p.addFrame(pre, f.Locals, f.Stack)
			}
			a.mark(pre)
			a.local(classfile.OpAstore, p.exc)
			r.caught(p, a)
			a.local(classfile.OpAload, p.exc)
			a.branch(classfile.OpGoto, h.Handler)
		}
		h.Handler = pre
	}
	return nil
}
