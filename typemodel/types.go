package typemodel

import (
	"strings"
)

// Kind classifies a type.
type Kind uint8

const (
	KindClass Kind = iota
	KindInterface
	KindAnnotation
)

func (k Kind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindInterface:
		return "interface"
	case KindAnnotation:
		return "annotation"
	}
	return "unknown"
}

// Character distinguishes constructors and static initializers from
// ordinary methods.
type Character uint8

const (
	CharacterMethod Character = iota
	CharacterConstructor
	CharacterStaticInitializer
)

func (c Character) String() string {
	switch c {
	case CharacterMethod:
		return "method"
	case CharacterConstructor:
		return "constructor"
	case CharacterStaticInitializer:
		return "static initializer"
	}
	return "unknown"
}

// Modifiers is the access flag bitset of a type or method.
type Modifiers uint16

const (
	ModPublic       Modifiers = 0x0001
	ModPrivate      Modifiers = 0x0002
	ModProtected    Modifiers = 0x0004
	ModStatic       Modifiers = 0x0008
	ModFinal        Modifiers = 0x0010
	ModSynchronized Modifiers = 0x0020
	ModNative       Modifiers = 0x0100
	ModInterface    Modifiers = 0x0200
	ModAbstract     Modifiers = 0x0400
	ModSynthetic    Modifiers = 0x1000
)

func (m Modifiers) IsPublic() bool    { return m&ModPublic != 0 }
func (m Modifiers) IsPrivate() bool   { return m&ModPrivate != 0 }
func (m Modifiers) IsProtected() bool { return m&ModProtected != 0 }
func (m Modifiers) IsStatic() bool    { return m&ModStatic != 0 }
func (m Modifiers) IsFinal() bool     { return m&ModFinal != 0 }
func (m Modifiers) IsAbstract() bool  { return m&ModAbstract != 0 }
func (m Modifiers) IsNative() bool    { return m&ModNative != 0 }
func (m Modifiers) IsInterface() bool { return m&ModInterface != 0 }
func (m Modifiers) IsSynthetic() bool { return m&ModSynthetic != 0 }

// IsPackagePrivate reports whether no access modifier is set.
func (m Modifiers) IsPackagePrivate() bool {
	return m&(ModPublic|ModPrivate|ModProtected) == 0
}

// Method describes a method, constructor or static initializer. Type names
// are source-level: "int", "long[]", "java.lang.Object[][][]".
type Method struct {
	Name        string
	ReturnType  string
	Parameters  []string
	Exceptions  []string
	Annotations []string
	Modifiers   Modifiers
	Character   Character
}

// Signature renders the method as name(param, ...).
func (m *Method) Signature() string {
	return m.Name + "(" + strings.Join(m.Parameters, ", ") + ")"
}

// Matches reports whether the method has the given name and parameter types.
func (m *Method) Matches(name string, params []string) bool {
	if m.Name != name || len(m.Parameters) != len(params) {
		return false
	}
	for i := range params {
		if m.Parameters[i] != params[i] {
			return false
		}
	}
	return true
}

// Type describes a class, interface or annotation. A Type created with
// NewPlaceholder only carries its name until a definition is added to the
// registry that owns it.
type Type struct {
	FQN string
	// SuperClasses holds the direct superclass of a class, so at most one
	// entry. Registry.SuperClassChain resolves the rest of the chain.
	SuperClasses       []string
	SuperInterfaces    []string
	RealizedInterfaces []string
	Annotations        []string
	Methods            []*Method
	hashes             []string
	Modifiers          Modifiers
	Kind               Kind
	initialized        bool
}

// NewType returns a fully defined type.
func NewType(fqn string, kind Kind, modifiers Modifiers) *Type {
	return &Type{FQN: fqn, Kind: kind, Modifiers: modifiers, initialized: true}
}

// NewPlaceholder returns a type known only by name.
func NewPlaceholder(fqn string, kind Kind) *Type {
	return &Type{FQN: fqn, Kind: kind}
}

// Initialized reports whether the type has been populated from a definition.
func (t *Type) Initialized() bool {
	return t.initialized
}

// Hashes returns every content hash the type has been analyzed under, in
// the order they were added.
func (t *Type) Hashes() []string {
	return append([]string(nil), t.hashes...)
}

// HasHash reports whether the type was analyzed under h.
func (t *Type) HasHash(h string) bool {
	for _, x := range t.hashes {
		if x == h {
			return true
		}
	}
	return false
}

// AddHash records h. Hashes are never removed; duplicates are ignored.
func (t *Type) AddHash(h string) {
	if h == "" || t.HasHash(h) {
		return
	}
	t.hashes = append(t.hashes, h)
}

// FindMethod returns the method with the given name and parameter types.
func (t *Type) FindMethod(name string, params []string) *Method {
	for _, m := range t.Methods {
		if m.Matches(name, params) {
			return m
		}
	}
	return nil
}

// Constructors returns the type's constructors in declaration order.
func (t *Type) Constructors() []*Method {
	var out []*Method
	for _, m := range t.Methods {
		if m.Character == CharacterConstructor {
			out = append(out, m)
		}
	}
	return out
}

// SuperClass returns the direct superclass or "".
func (t *Type) SuperClass() string {
	if len(t.SuperClasses) == 0 {
		return ""
	}
	return t.SuperClasses[0]
}
