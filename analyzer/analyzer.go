package analyzer

import (
	"go.uber.org/zap"

	"github.com/wippyai/jvm-instrument/classfile"
	"github.com/wippyai/jvm-instrument/errors"
	"github.com/wippyai/jvm-instrument/typemodel"
)

// AnnotationInterface is the marker interface every annotation type
// realizes.
const AnnotationInterface = "java.lang.annotation.Annotation"

const (
	typeModifierMask = typemodel.ModPublic | typemodel.ModPrivate | typemodel.ModProtected |
		typemodel.ModStatic | typemodel.ModFinal | typemodel.ModInterface |
		typemodel.ModAbstract | typemodel.ModSynthetic
	methodModifierMask = typeModifierMask | typemodel.ModSynchronized | typemodel.ModNative
)

// Analyzer turns class bytes into type model nodes.
type Analyzer struct {
	logger *zap.Logger
	hash   string
}

// New returns an analyzer that tags every analyzed type with hash.
func New(hash string) *Analyzer {
	return &Analyzer{hash: hash, logger: Logger()}
}

// WithLogger returns a copy of the analyzer logging to l.
func (a *Analyzer) WithLogger(l *zap.Logger) *Analyzer {
	c := *a
	c.logger = l
	return &c
}

// Analyze decodes data and returns a fully initialized type node.
func (a *Analyzer) Analyze(data []byte) (*typemodel.Type, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, errors.MalformedInput(errors.PhaseAnalyze, "cannot parse class", err)
	}
	return a.AnalyzeClass(cf)
}

// AnalyzeInto analyzes data and merges the result into reg. The returned
// node is the registry's canonical node: on re-analysis of a known type it
// is the existing node with the new hash appended.
func (a *Analyzer) AnalyzeInto(reg *typemodel.Registry, data []byte) (*typemodel.Type, error) {
	t, err := a.Analyze(data)
	if err != nil {
		return nil, err
	}
	node := reg.Add(t)
	if node != t {
		a.logger.Debug("type already known",
			zap.String("type", node.FQN),
			zap.String("hash", a.hash),
			zap.Int("hashes", len(reg.Hashes(node.FQN))))
	}
	return node, nil
}

// AnalyzeClass builds a type node from an already decoded class.
func (a *Analyzer) AnalyzeClass(cf *classfile.ClassFile) (*typemodel.Type, error) {
	name, err := cf.ConstantPool.ClassName(cf.ThisClass)
	if err != nil {
		return nil, errors.MalformedInput(errors.PhaseAnalyze, "this_class", err)
	}
	fqn := classfile.JavaClassName(name)

	var interfaces []string
	for _, idx := range cf.Interfaces {
		n, err := cf.ConstantPool.ClassName(idx)
		if err != nil {
			return nil, malformed(name, "interfaces", err)
		}
		interfaces = append(interfaces, classfile.JavaClassName(n))
	}

	kind := classify(cf.AccessFlags, interfaces)
	t := typemodel.NewType(fqn, kind, typemodel.Modifiers(cf.AccessFlags)&typeModifierMask)

	switch kind {
	case typemodel.KindClass:
		if cf.SuperClass != 0 {
			super, err := cf.ConstantPool.ClassName(cf.SuperClass)
			if err != nil {
				return nil, malformed(name, "super_class", err)
			}
			t.SuperClasses = []string{classfile.JavaClassName(super)}
		}
		t.RealizedInterfaces = interfaces
	case typemodel.KindInterface:
		t.SuperInterfaces = interfaces
	case typemodel.KindAnnotation:
		t.RealizedInterfaces = interfaces
	}

	if t.Annotations, err = annotationNames(cf, cf.Attributes); err != nil {
		return nil, malformed(name, "class annotations", err)
	}

	for i := range cf.Methods {
		m := &cf.Methods[i]
		if m.AccessFlags&classfile.AccSynthetic != 0 {
			continue
		}
		md, err := analyzeMethod(cf, m)
		if err != nil {
			return nil, errors.InMethod(err, name, cf.MemberName(m)+cf.MemberDescriptor(m))
		}
		t.Methods = append(t.Methods, md)
	}

	t.AddHash(a.hash)
	a.logger.Debug("analyzed type",
		zap.String("type", fqn),
		zap.Stringer("kind", kind),
		zap.Int("methods", len(t.Methods)))
	return t, nil
}

func classify(flags uint16, interfaces []string) typemodel.Kind {
	switch {
	case len(interfaces) == 1 && interfaces[0] == AnnotationInterface:
		return typemodel.KindAnnotation
	case flags&classfile.AccInterface != 0:
		return typemodel.KindInterface
	default:
		return typemodel.KindClass
	}
}

func analyzeMethod(cf *classfile.ClassFile, m *classfile.Member) (*typemodel.Method, error) {
	name := cf.MemberName(m)
	params, ret, err := classfile.ParseMethodDescriptor(cf.MemberDescriptor(m))
	if err != nil {
		return nil, errors.MalformedInput(errors.PhaseAnalyze, "method descriptor", err)
	}

	md := &typemodel.Method{
		Name:       name,
		ReturnType: ret.JavaName(),
		Modifiers:  typemodel.Modifiers(m.AccessFlags) & methodModifierMask,
		Parameters: make([]string, len(params)),
	}
	for i, p := range params {
		md.Parameters[i] = p.JavaName()
	}
	switch name {
	case classfile.ConstructorName:
		md.Character = typemodel.CharacterConstructor
	case classfile.StaticInitializerName:
		md.Character = typemodel.CharacterStaticInitializer
	}

	exceptions, err := cf.ExceptionNames(m)
	if err != nil {
		return nil, err
	}
	for _, e := range exceptions {
		md.Exceptions = append(md.Exceptions, classfile.JavaClassName(e))
	}
	if md.Annotations, err = annotationNames(cf, m.Attributes); err != nil {
		return nil, err
	}
	return md, nil
}

// annotationNames returns the dotted names of the annotations in attrs.
func annotationNames(cf *classfile.ClassFile, attrs []classfile.Attribute) ([]string, error) {
	descs, err := cf.AnnotationTypes(attrs)
	if err != nil || len(descs) == 0 {
		return nil, err
	}
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		t, err := classfile.ParseFieldDescriptor(d)
		if err != nil {
			return nil, errors.MalformedInput(errors.PhaseAnalyze, "annotation type", err)
		}
		names = append(names, t.JavaName())
	}
	return names, nil
}

func malformed(class, what string, cause error) *errors.Error {
	e := errors.MalformedInput(errors.PhaseAnalyze, what, cause)
	e.Class = class
	return e
}
