package classtest

import (
	"fmt"
	"strings"

	"github.com/wippyai/jvm-instrument/classfile"
)

// Object is a heap object in the test VM. Boxed primitives and strings keep
// their Go value in Value.
type Object struct {
	Value  any
	Fields map[string]any
	Class  string
}

// Array is a Java array; Desc is its descriptor, e.g. "[I".
type Array struct {
	Desc  string
	Elems []any
}

// Thrown carries a Java exception out of Invoke.
type Thrown struct {
	Object *Object
}

func (t *Thrown) Error() string {
	return "java exception " + t.Object.Class
}

// HookCall records one call into the dispatcher class.
type HookCall struct {
	Name string
	Args []any
}

// Hook handles a dispatcher call and returns the value for non-void hooks.
type Hook func(name string, args []any) any

// VM is a deliberately small interpreter for the bytecode the instrumenter
// and its tests produce. It supports a single thread, loaded classes,
// boxing through the wrapper classes, dispatcher hooks and exceptions.
type VM struct {
	classes    map[string]*classfile.ClassFile
	code       map[*classfile.Member]*classfile.Code
	statics    map[string]any
	hierarchy  map[string]string
	Hook       Hook
	Natives    map[string]func(args []any) (any, error)
	Dispatcher string
	Calls      []HookCall
	// Steps bounds the number of executed instructions per Invoke.
	Steps int
}

// NewVM returns a VM dispatching hooks for the given class.
func NewVM(dispatcher string) *VM {
	return &VM{
		classes: make(map[string]*classfile.ClassFile),
		code:    make(map[*classfile.Member]*classfile.Code),
		statics: make(map[string]any),
		hierarchy: map[string]string{
			"java/lang/Throwable":                "java/lang/Object",
			"java/lang/Exception":                "java/lang/Throwable",
			"java/lang/RuntimeException":         "java/lang/Exception",
			"java/lang/IllegalStateException":    "java/lang/RuntimeException",
			"java/lang/IllegalArgumentException": "java/lang/RuntimeException",
			"java/lang/ArithmeticException":      "java/lang/RuntimeException",
			"java/lang/ClassCastException":       "java/lang/RuntimeException",
			"java/lang/NullPointerException":     "java/lang/RuntimeException",
			"java/lang/ClassLoader":              "java/lang/Object",
			"java/lang/Number":                   "java/lang/Object",
			"java/lang/Integer":                  "java/lang/Number",
			"java/lang/Long":                     "java/lang/Number",
			"java/lang/Double":                   "java/lang/Number",
			"java/lang/Float":                    "java/lang/Number",
			"java/lang/Short":                    "java/lang/Number",
			"java/lang/Byte":                     "java/lang/Number",
			"java/lang/Boolean":                  "java/lang/Object",
			"java/lang/Character":                "java/lang/Object",
			"java/lang/String":                   "java/lang/Object",
			"java/lang/Class":                    "java/lang/Object",
		},
		Natives:    make(map[string]func(args []any) (any, error)),
		Dispatcher: dispatcher,
		Steps:      100000,
	}
}

// Load parses and registers a class.
func (vm *VM) Load(data []byte) error {
	cf, err := classfile.Parse(data)
	if err != nil {
		return err
	}
	vm.classes[cf.Name()] = cf
	vm.hierarchy[cf.Name()] = cf.SuperName()
	return nil
}

// HookNames returns the names of the recorded dispatcher calls.
func (vm *VM) HookNames() []string {
	names := make([]string, len(vm.Calls))
	for i, c := range vm.Calls {
		names[i] = c.Name
	}
	return names
}

// Box returns the wrapper object for a primitive value of type t.
func Box(t classfile.TypeTag, v any) *Object {
	return &Object{Class: t.Wrapper(), Value: v}
}

// String returns a java.lang.String object.
func String(s string) *Object {
	return &Object{Class: "java/lang/String", Value: s}
}

// NewObject allocates an instance without running a constructor.
func (vm *VM) NewObject(class string) *Object {
	return &Object{Class: class, Fields: make(map[string]any)}
}

// IsInstance reports whether v would pass instanceof for class, an internal
// name or array descriptor.
func (vm *VM) IsInstance(v any, class string) bool {
	switch o := v.(type) {
	case *Object:
		for c := o.Class; c != ""; c = vm.hierarchy[c] {
			if c == class {
				return true
			}
			if cf, ok := vm.classes[c]; ok {
				for _, i := range cf.InterfaceNames() {
					if i == class {
						return true
					}
				}
			}
		}
		return class == "java/lang/Object"
	case *Array:
		if class == "java/lang/Object" {
			return true
		}
		declared, err := classfile.ParseFieldDescriptor(class)
		if err != nil {
			return false
		}
		actual, err := classfile.ParseFieldDescriptor(o.Desc)
		return err == nil && classfile.Compatible(declared, actual)
	}
	return false
}

// Invoke runs a static method, or an instance method when receiver is
// non-nil.
func (vm *VM) Invoke(class, name, desc string, receiver *Object, args ...any) (any, error) {
	steps := vm.Steps
	var full []any
	if receiver != nil {
		full = append(full, receiver)
	}
	full = append(full, args...)
	return vm.call(class, name, desc, full, receiver != nil, &steps)
}

// New allocates an instance of class and runs the constructor desc.
func (vm *VM) New(class, desc string, args ...any) (*Object, error) {
	obj := vm.NewObject(class)
	steps := vm.Steps
	_, err := vm.call(class, classfile.ConstructorName, desc, append([]any{obj}, args...), true, &steps)
	return obj, err
}

func (vm *VM) throw(class string) error {
	return &Thrown{Object: vm.NewObject(class)}
}

func (vm *VM) call(owner, name, desc string, args []any, virtual bool, steps *int) (any, error) {
	if owner == vm.Dispatcher {
		vm.Calls = append(vm.Calls, HookCall{Name: name, Args: args})
		if vm.Hook != nil {
			return vm.Hook(name, args), nil
		}
		return nil, nil
	}
	if fn, ok := vm.Natives[owner+"."+name+desc]; ok {
		return fn(args)
	}
	if v, ok, err := vm.builtin(owner, name, desc, args); ok {
		return v, err
	}

	class := owner
	if virtual && name != classfile.ConstructorName && len(args) > 0 {
		if o, ok := args[0].(*Object); ok {
			class = o.Class
		}
	}
	for c := class; c != ""; c = vm.hierarchy[c] {
		cf, ok := vm.classes[c]
		if !ok {
			continue
		}
		if m := cf.FindMethod(name, desc); m != nil {
			return vm.exec(cf, m, args, steps)
		}
	}
	return nil, fmt.Errorf("classtest: no method %s.%s%s", owner, name, desc)
}

func (vm *VM) builtin(owner, name, desc string, args []any) (any, bool, error) {
	if name == classfile.ConstructorName {
		if _, ok := vm.classes[owner]; !ok {
			if o, ok := args[0].(*Object); ok && len(args) > 1 {
				o.Value = args[1]
			}
			return nil, true, nil
		}
	}
	if strings.HasPrefix(owner, "java/lang/") {
		params, _, err := classfile.ParseMethodDescriptor(desc)
		if err != nil {
			return nil, true, err
		}
		if name == "valueOf" && len(params) == 1 && params[0].IsPrimitive() {
			return Box(params[0], args[0]), true, nil
		}
		if strings.HasSuffix(name, "Value") && len(args) == 1 {
			o, ok := args[0].(*Object)
			if !ok {
				return nil, true, vm.throw("java/lang/NullPointerException")
			}
			return o.Value, true, nil
		}
	}
	return nil, false, nil
}

type frame struct {
	locals []any
	stack  []any
}

func (f *frame) push(v any) { f.stack = append(f.stack, v) }

func (f *frame) pop() any {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) popN(n int) []any {
	out := append([]any(nil), f.stack[len(f.stack)-n:]...)
	f.stack = f.stack[:len(f.stack)-n]
	return out
}

func wide(v any) bool {
	switch v.(type) {
	case int64, float64:
		return true
	}
	return false
}

func (vm *VM) decoded(cf *classfile.ClassFile, m *classfile.Member) (*classfile.Code, error) {
	if c, ok := vm.code[m]; ok {
		return c, nil
	}
	c, err := cf.DecodeCode(m)
	if err != nil {
		return nil, err
	}
	vm.code[m] = c
	return c, nil
}

func (vm *VM) exec(cf *classfile.ClassFile, m *classfile.Member, args []any, steps *int) (any, error) {
	c, err := vm.decoded(cf, m)
	if err != nil {
		return nil, err
	}
	cp := cf.ConstantPool
	labels := c.LabelIndex()

	f := &frame{locals: make([]any, int(c.MaxLocals)+2)}
	slot := 0
	for _, a := range args {
		f.locals[slot] = a
		slot++
		if wide(a) {
			slot++
		}
	}

	pc := 0
	for {
		if pc >= len(c.Instrs) {
			return nil, fmt.Errorf("classtest: fell off the end of %s", cf.MemberName(m))
		}
		*steps--
		if *steps < 0 {
			return nil, fmt.Errorf("classtest: step limit exceeded")
		}
		ins := c.Instrs[pc]
		next, ret, done, err := vm.step(cp, c, f, ins, labels, pc, steps)
		if err != nil {
			thrown, ok := err.(*Thrown)
			if !ok {
				return nil, err
			}
			h, ok := vm.findHandler(cp, c, labels, pc, thrown.Object)
			if !ok {
				return nil, err
			}
			f.stack = []any{thrown.Object}
			pc = h
			continue
		}
		if done {
			return ret, nil
		}
		pc = next
	}
}

func (vm *VM) findHandler(cp *classfile.ConstantPool, c *classfile.Code, labels map[classfile.Label]int, pc int, exc *Object) (int, bool) {
	for _, h := range c.Handlers {
		if pc < labels[h.Start] || pc >= labels[h.End] {
			continue
		}
		if h.CatchType != 0 {
			name, err := cp.ClassName(h.CatchType)
			if err != nil || !vm.IsInstance(exc, name) {
				continue
			}
		}
		return labels[h.Handler], true
	}
	return 0, false
}

func cpIndex(ins classfile.Instruction) uint16 {
	switch imm := ins.Imm.(type) {
	case classfile.CPImm:
		return imm.Index
	case classfile.InvokeInterfaceImm:
		return imm.Index
	}
	return 0
}

func branch(labels map[classfile.Label]int, ins classfile.Instruction) int {
	return labels[ins.Imm.(classfile.BranchImm).Target]
}

func (vm *VM) step(cp *classfile.ConstantPool, c *classfile.Code, f *frame, ins classfile.Instruction,
	labels map[classfile.Label]int, pc int, steps *int) (next int, ret any, done bool, err error) {
	next = pc + 1
	op := ins.Opcode
	switch {
	case op == classfile.OpLabel, op == classfile.OpNop:
	case op == classfile.OpAconstNull:
		f.push(nil)
	case op >= classfile.OpIconstM1 && op <= classfile.OpIconst5:
		f.push(int32(op) - int32(classfile.OpIconst0))
	case op == classfile.OpLconst0, op == classfile.OpLconst1:
		f.push(int64(op - classfile.OpLconst0))
	case op >= classfile.OpFconst0 && op <= classfile.OpFconst2:
		f.push(float32(op - classfile.OpFconst0))
	case op == classfile.OpDconst0, op == classfile.OpDconst1:
		f.push(float64(op - classfile.OpDconst0))
	case op == classfile.OpBipush, op == classfile.OpSipush:
		f.push(ins.Imm.(classfile.IntImm).Value)
	case op == classfile.OpLdc, op == classfile.OpLdc2W:
		k, err := cp.Get(cpIndex(ins))
		if err != nil {
			return 0, nil, false, err
		}
		switch k.Tag {
		case classfile.TagInteger:
			f.push(int32(k.U4))
		case classfile.TagLong:
			f.push(int64(k.U8))
		case classfile.TagString:
			s, _ := cp.Utf8(k.A)
			f.push(String(s))
		case classfile.TagClass:
			name, _ := cp.ClassName(cpIndex(ins))
			f.push(&Object{Class: "java/lang/Class", Value: name})
		default:
			return 0, nil, false, fmt.Errorf("classtest: ldc of tag %d", k.Tag)
		}
	case op >= classfile.OpIload && op <= classfile.OpAload:
		f.push(f.locals[ins.Imm.(classfile.LocalImm).Index])
	case op >= classfile.OpIstore && op <= classfile.OpAstore:
		f.locals[ins.Imm.(classfile.LocalImm).Index] = f.pop()
	case op >= classfile.OpIaload && op <= classfile.OpSaload:
		idx := f.pop().(int32)
		arr, ok := f.pop().(*Array)
		if !ok {
			return 0, nil, false, vm.throw("java/lang/NullPointerException")
		}
		f.push(arr.Elems[idx])
	case op >= classfile.OpIastore && op <= classfile.OpSastore:
		v := f.pop()
		idx := f.pop().(int32)
		arr, ok := f.pop().(*Array)
		if !ok {
			return 0, nil, false, vm.throw("java/lang/NullPointerException")
		}
		arr.Elems[idx] = v
	case op == classfile.OpPop:
		f.pop()
	case op == classfile.OpPop2:
		if !wide(f.pop()) {
			f.pop()
		}
	case op == classfile.OpDup:
		v := f.pop()
		f.push(v)
		f.push(v)
	case op == classfile.OpDupX1:
		v := f.popN(2)
		f.push(v[1])
		f.push(v[0])
		f.push(v[1])
	case op == classfile.OpDup2:
		top := f.stack[len(f.stack)-1]
		if wide(top) {
			f.push(top)
		} else {
			v := f.popN(2)
			f.stack = append(f.stack, v[0], v[1], v[0], v[1])
		}
	case op == classfile.OpSwap:
		v := f.popN(2)
		f.push(v[1])
		f.push(v[0])
	case op >= classfile.OpIadd && op <= classfile.OpLxor:
		return next, nil, false, vm.arith(f, op)
	case op == classfile.OpIinc:
		imm := ins.Imm.(classfile.IincImm)
		f.locals[imm.Index] = f.locals[imm.Index].(int32) + int32(imm.Delta)
	case op == classfile.OpI2l:
		f.push(int64(f.pop().(int32)))
	case op == classfile.OpL2i:
		f.push(int32(f.pop().(int64)))
	case op == classfile.OpI2d:
		f.push(float64(f.pop().(int32)))
	case op == classfile.OpD2i:
		f.push(int32(f.pop().(float64)))
	case op == classfile.OpLcmp:
		b := f.pop().(int64)
		a := f.pop().(int64)
		switch {
		case a < b:
			f.push(int32(-1))
		case a > b:
			f.push(int32(1))
		default:
			f.push(int32(0))
		}
	case op >= classfile.OpIfeq && op <= classfile.OpIfle:
		v := f.pop().(int32)
		if compare(op-classfile.OpIfeq, v, 0) {
			next = branch(labels, ins)
		}
	case op >= classfile.OpIfIcmpeq && op <= classfile.OpIfIcmple:
		b := f.pop().(int32)
		a := f.pop().(int32)
		if compare(op-classfile.OpIfIcmpeq, a, b) {
			next = branch(labels, ins)
		}
	case op == classfile.OpIfAcmpeq, op == classfile.OpIfAcmpne:
		b := f.pop()
		a := f.pop()
		if (a == b) == (op == classfile.OpIfAcmpeq) {
			next = branch(labels, ins)
		}
	case op == classfile.OpIfnull, op == classfile.OpIfnonnull:
		if (f.pop() == nil) == (op == classfile.OpIfnull) {
			next = branch(labels, ins)
		}
	case op == classfile.OpGoto:
		next = branch(labels, ins)
	case op == classfile.OpTableswitch:
		imm := ins.Imm.(classfile.TableSwitchImm)
		v := f.pop().(int32)
		next = labels[imm.Default]
		if v >= imm.Low && v <= imm.High {
			next = labels[imm.Targets[v-imm.Low]]
		}
	case op == classfile.OpLookupswitch:
		imm := ins.Imm.(classfile.LookupSwitchImm)
		v := f.pop().(int32)
		next = labels[imm.Default]
		for i, k := range imm.Keys {
			if k == v {
				next = labels[imm.Targets[i]]
			}
		}
	case classfile.IsReturn(op):
		if op == classfile.OpReturn {
			return 0, nil, true, nil
		}
		return 0, f.pop(), true, nil
	case op == classfile.OpGetstatic, op == classfile.OpPutstatic, op == classfile.OpGetfield, op == classfile.OpPutfield:
		owner, name, _, err := cp.MemberRef(cpIndex(ins))
		if err != nil {
			return 0, nil, false, err
		}
		key := owner + "." + name
		switch op {
		case classfile.OpGetstatic:
			f.push(vm.statics[key])
		case classfile.OpPutstatic:
			vm.statics[key] = f.pop()
		case classfile.OpGetfield:
			o, ok := f.pop().(*Object)
			if !ok {
				return 0, nil, false, vm.throw("java/lang/NullPointerException")
			}
			f.push(o.Fields[name])
		default:
			v := f.pop()
			o, ok := f.pop().(*Object)
			if !ok {
				return 0, nil, false, vm.throw("java/lang/NullPointerException")
			}
			if o.Fields == nil {
				o.Fields = make(map[string]any)
			}
			o.Fields[name] = v
		}
	case op >= classfile.OpInvokevirtual && op <= classfile.OpInvokeinterface:
		owner, name, desc, err := cp.MemberRef(cpIndex(ins))
		if err != nil {
			return 0, nil, false, err
		}
		params, rt, err := classfile.ParseMethodDescriptor(desc)
		if err != nil {
			return 0, nil, false, err
		}
		n := len(params)
		if op != classfile.OpInvokestatic {
			n++
		}
		args := f.popN(n)
		if op != classfile.OpInvokestatic && args[0] == nil {
			return 0, nil, false, vm.throw("java/lang/NullPointerException")
		}
		v, err := vm.call(owner, name, desc, args, op == classfile.OpInvokevirtual || op == classfile.OpInvokeinterface, steps)
		if err != nil {
			return 0, nil, false, err
		}
		if rt.Sort != classfile.SortVoid {
			f.push(v)
		}
	case op == classfile.OpNew:
		name, err := cp.ClassName(cpIndex(ins))
		if err != nil {
			return 0, nil, false, err
		}
		f.push(vm.NewObject(name))
	case op == classfile.OpNewarray:
		n := f.pop().(int32)
		desc := map[uint8]string{4: "[Z", 5: "[C", 6: "[F", 7: "[D", 8: "[B", 9: "[S", 10: "[I", 11: "[J"}[ins.Imm.(classfile.NewArrayImm).Type]
		f.push(&Array{Desc: desc, Elems: zeroed(desc, int(n))})
	case op == classfile.OpAnewarray:
		n := f.pop().(int32)
		name, err := cp.ClassName(cpIndex(ins))
		if err != nil {
			return 0, nil, false, err
		}
		desc := "[L" + name + ";"
		if strings.HasPrefix(name, "[") {
			desc = "[" + name
		}
		f.push(&Array{Desc: desc, Elems: make([]any, n)})
	case op == classfile.OpArraylength:
		arr, ok := f.pop().(*Array)
		if !ok {
			return 0, nil, false, vm.throw("java/lang/NullPointerException")
		}
		f.push(int32(len(arr.Elems)))
	case op == classfile.OpAthrow:
		o, ok := f.pop().(*Object)
		if !ok {
			return 0, nil, false, vm.throw("java/lang/NullPointerException")
		}
		return 0, nil, false, &Thrown{Object: o}
	case op == classfile.OpCheckcast, op == classfile.OpInstanceof:
		name, err := cp.ClassName(cpIndex(ins))
		if err != nil {
			return 0, nil, false, err
		}
		v := f.pop()
		ok := vm.IsInstance(v, name)
		if op == classfile.OpInstanceof {
			if ok {
				f.push(int32(1))
			} else {
				f.push(int32(0))
			}
		} else {
			if v != nil && !ok {
				return 0, nil, false, vm.throw("java/lang/ClassCastException")
			}
			f.push(v)
		}
	case op == classfile.OpMonitorenter, op == classfile.OpMonitorexit:
		f.pop()
	default:
		return 0, nil, false, fmt.Errorf("classtest: unsupported opcode %s", classfile.OpName(op))
	}
	return next, nil, false, nil
}

func zeroed(desc string, n int) []any {
	elems := make([]any, n)
	for i := range elems {
		switch desc {
		case "[J":
			elems[i] = int64(0)
		case "[F":
			elems[i] = float32(0)
		case "[D":
			elems[i] = float64(0)
		default:
			elems[i] = int32(0)
		}
	}
	return elems
}

func compare(cond byte, a, b int32) bool {
	switch cond {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	default:
		return a <= b
	}
}

func (vm *VM) arith(f *frame, op byte) error {
	switch op {
	case classfile.OpIneg:
		f.push(-f.pop().(int32))
		return nil
	case classfile.OpLneg:
		f.push(-f.pop().(int64))
		return nil
	}
	b := f.pop()
	a := f.pop()
	switch x := a.(type) {
	case int32:
		y := b.(int32)
		switch op {
		case classfile.OpIadd:
			f.push(x + y)
		case classfile.OpIsub:
			f.push(x - y)
		case classfile.OpImul:
			f.push(x * y)
		case classfile.OpIdiv, classfile.OpIrem:
			if y == 0 {
				return vm.throw("java/lang/ArithmeticException")
			}
			if op == classfile.OpIdiv {
				f.push(x / y)
			} else {
				f.push(x % y)
			}
		case classfile.OpIand:
			f.push(x & y)
		case classfile.OpIor:
			f.push(x | y)
		case classfile.OpIxor:
			f.push(x ^ y)
		default:
			return fmt.Errorf("classtest: unsupported int op %s", classfile.OpName(op))
		}
	case int64:
		y, ok := b.(int64)
		if !ok {
			return fmt.Errorf("classtest: unsupported long op %s", classfile.OpName(op))
		}
		switch op {
		case classfile.OpLadd:
			f.push(x + y)
		case classfile.OpLsub:
			f.push(x - y)
		case classfile.OpLmul:
			f.push(x * y)
		default:
			return fmt.Errorf("classtest: unsupported long op %s", classfile.OpName(op))
		}
	case float64:
		y := b.(float64)
		switch op {
		case classfile.OpDadd:
			f.push(x + y)
		case classfile.OpDsub:
			f.push(x - y)
		case classfile.OpDmul:
			f.push(x * y)
		default:
			return fmt.Errorf("classtest: unsupported double op %s", classfile.OpName(op))
		}
	default:
		return fmt.Errorf("classtest: unsupported operand %T", a)
	}
	return nil
}
