package typemodel

import (
	"reflect"
	"sync"
	"testing"
)

func TestModifiers(t *testing.T) {
	m := ModPublic | ModStatic | ModFinal
	if !m.IsPublic() || !m.IsStatic() || !m.IsFinal() {
		t.Error("expected public static final")
	}
	if m.IsPrivate() || m.IsAbstract() || m.IsPackagePrivate() {
		t.Error("unexpected modifiers")
	}
	if !Modifiers(0).IsPackagePrivate() {
		t.Error("no access flags should be package-private")
	}
}

func TestTypeHashes(t *testing.T) {
	ty := NewType("a.B", KindClass, ModPublic)
	ty.AddHash("h1")
	ty.AddHash("h1")
	ty.AddHash("")
	ty.AddHash("h2")
	if got := ty.Hashes(); !reflect.DeepEqual(got, []string{"h1", "h2"}) {
		t.Errorf("Hashes = %v", got)
	}
	if !ty.HasHash("h2") || ty.HasHash("h3") {
		t.Error("HasHash")
	}
	got := ty.Hashes()
	got[0] = "mutated"
	if ty.Hashes()[0] != "h1" {
		t.Error("Hashes must return a copy")
	}
}

func TestMethodMatches(t *testing.T) {
	m := &Method{Name: "run", Parameters: []string{"int", "java.lang.String[]"}}
	if !m.Matches("run", []string{"int", "java.lang.String[]"}) {
		t.Error("expected match")
	}
	if m.Matches("run", []string{"int"}) || m.Matches("walk", []string{"int", "java.lang.String[]"}) {
		t.Error("unexpected match")
	}
	if m.Signature() != "run(int, java.lang.String[])" {
		t.Errorf("Signature = %s", m.Signature())
	}
}

func TestRegistryPlaceholderThenDefinition(t *testing.T) {
	r := NewRegistry()

	sub := NewType("a.Sub", KindClass, ModPublic)
	sub.SuperClasses = []string{"a.Base"}
	sub.AddHash("s1")
	r.Add(sub)

	base, ok := r.Lookup("a.Base")
	if !ok {
		t.Fatal("superclass placeholder not created")
	}
	if base.Initialized() {
		t.Error("placeholder must not be initialized")
	}

	def := NewType("a.Base", KindClass, ModPublic|ModAbstract)
	def.AddHash("b1")
	got := r.Add(def)
	if got != base {
		t.Error("definition must populate the existing placeholder node")
	}
	if !base.Initialized() || !base.Modifiers.IsAbstract() {
		t.Error("placeholder was not populated")
	}
	if !reflect.DeepEqual(base.Hashes(), []string{"b1"}) {
		t.Errorf("Hashes = %v", base.Hashes())
	}
	if subs := r.SubClasses("a.Base"); !reflect.DeepEqual(subs, []string{"a.Sub"}) {
		t.Errorf("SubClasses = %v", subs)
	}
}

func TestRegistryReanalysisOnlyAppendsHash(t *testing.T) {
	r := NewRegistry()
	first := NewType("a.C", KindClass, ModPublic)
	first.Methods = []*Method{{Name: "m", ReturnType: "void"}}
	first.AddHash("v1")
	node := r.Add(first)

	second := NewType("a.C", KindInterface, ModPublic|ModInterface)
	second.AddHash("v2")
	if got := r.Add(second); got != node {
		t.Fatal("re-analysis must return the existing node")
	}
	if node.Kind != KindClass || len(node.Methods) != 1 {
		t.Error("re-analysis must not change the finalized shape")
	}
	if !reflect.DeepEqual(node.Hashes(), []string{"v1", "v2"}) {
		t.Errorf("Hashes = %v", node.Hashes())
	}
}

func TestRegistryBackReferences(t *testing.T) {
	r := NewRegistry()

	iface := NewType("a.Sub", KindInterface, ModInterface)
	iface.SuperInterfaces = []string{"a.Super"}
	r.Add(iface)

	cls := NewType("a.Impl", KindClass, ModPublic)
	cls.SuperClasses = []string{"java.lang.Object"}
	cls.RealizedInterfaces = []string{"a.Sub"}
	cls.Annotations = []string{"a.Marker"}
	cls.Methods = []*Method{{
		Name:        "m",
		Exceptions:  []string{"java.io.IOException"},
		Annotations: []string{"a.Timed"},
	}}
	r.Add(cls)

	checks := []struct {
		name string
		got  []string
		want []string
	}{
		{"SubInterfaces", r.SubInterfaces("a.Super"), []string{"a.Sub"}},
		{"RealizingClasses", r.RealizingClasses("a.Sub"), []string{"a.Impl"}},
		{"AnnotatedTypes", r.AnnotatedTypes("a.Marker"), []string{"a.Impl"}},
		{"SubClasses", r.SubClasses("java.lang.Object"), []string{"a.Impl"}},
		{"none", r.SubClasses("a.Impl"), []string{}},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	for name, kind := range map[string]Kind{
		"a.Marker":            KindAnnotation,
		"a.Timed":             KindAnnotation,
		"java.io.IOException": KindClass,
		"a.Super":             KindInterface,
	} {
		ty, ok := r.Lookup(name)
		if !ok {
			t.Errorf("%s: no placeholder", name)
			continue
		}
		if ty.Initialized() || ty.Kind != kind {
			t.Errorf("%s: initialized=%v kind=%v", name, ty.Initialized(), ty.Kind)
		}
	}
	if r.Len() != 7 {
		t.Errorf("Len = %d, want 7", r.Len())
	}
}

func TestRegistryConcurrentAdd(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ty := NewType("a.Shared", KindClass, ModPublic)
			ty.AddHash(string(rune('a' + i)))
			r.Add(ty)
		}(i)
	}
	wg.Wait()
	ty, _ := r.Lookup("a.Shared")
	if len(ty.Hashes()) != 16 {
		t.Errorf("hashes = %d, want 16", len(ty.Hashes()))
	}
}

func TestRegistryHashReadsDuringAdd(t *testing.T) {
	r := NewRegistry()
	r.Add(NewPlaceholder("a.B", KindClass))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			ty := NewType("a.B", KindClass, ModPublic)
			ty.AddHash(string(rune('a' + i)))
			r.Add(ty)
		}(i)
		go func() {
			defer wg.Done()
			_ = r.HasHash("a.B", "a")
			_ = r.Hashes("a.B")
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		if h := string(rune('a' + i)); !r.HasHash("a.B", h) {
			t.Errorf("HasHash(%q) = false", h)
		}
	}
	if got := r.Hashes("a.B"); len(got) != 8 {
		t.Errorf("Hashes = %v, want 8 entries", got)
	}
	if r.Hashes("a.Missing") != nil || r.HasHash("a.Missing", "a") {
		t.Error("unknown type reports hashes")
	}
}

func TestRegistrySuperClassChain(t *testing.T) {
	r := NewRegistry()
	add := func(fqn, super string) {
		ty := NewType(fqn, KindClass, ModPublic)
		if super != "" {
			ty.SuperClasses = []string{super}
		}
		r.Add(ty)
	}
	add("a.C", "a.B")
	add("a.B", "a.A")
	add("a.A", "java.lang.Object")
	add("x.Loop", "x.Back")
	add("x.Back", "x.Loop")

	tests := []struct {
		fqn  string
		want []string
	}{
		{"a.C", []string{"a.B", "a.A", "java.lang.Object"}},
		{"a.A", []string{"java.lang.Object"}},
		{"java.lang.Object", nil},
		{"x.Loop", []string{"x.Back"}},
		{"a.Missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.fqn, func(t *testing.T) {
			if got := r.SuperClassChain(tt.fqn); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SuperClassChain = %v, want %v", got, tt.want)
			}
		})
	}
}
