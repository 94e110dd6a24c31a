package typemodel

import (
	"sort"
	"sync"
)

type nameSet map[string]struct{}

func (s nameSet) sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Registry owns the type nodes built during analysis. Relationships between
// types are stored as name-keyed indexes, never as pointers between nodes,
// so cyclic hierarchies in malformed input cannot create reference cycles.
// The Registry's methods are safe for concurrent use. Nodes handed out by
// Lookup and Types are shared: Add merges hashes and definitions into them
// in place, so while adds are in flight read hashes through Hashes and
// HasHash on the Registry rather than on the node.
type Registry struct {
	types            map[string]*Type
	subClasses       map[string]nameSet
	realizingClasses map[string]nameSet
	subInterfaces    map[string]nameSet
	annotatedTypes   map[string]nameSet
	mu               sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:            make(map[string]*Type),
		subClasses:       make(map[string]nameSet),
		realizingClasses: make(map[string]nameSet),
		subInterfaces:    make(map[string]nameSet),
		annotatedTypes:   make(map[string]nameSet),
	}
}

// Lookup returns the node for fqn.
func (r *Registry) Lookup(fqn string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[fqn]
	return t, ok
}

// Hashes returns the hashes recorded for fqn, or nil if it is unknown.
func (r *Registry) Hashes(fqn string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[fqn]
	if !ok {
		return nil
	}
	return t.Hashes()
}

// HasHash reports whether fqn has been analyzed under h.
func (r *Registry) HasHash(fqn, h string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[fqn]
	return ok && t.HasHash(h)
}

// SuperClassChain returns the superclasses of fqn, direct superclass
// first. The walk ends at a type with no known superclass, such as a
// placeholder, and at the first repeated name.
func (r *Registry) SuperClassChain(fqn string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var chain []string
	seen := map[string]bool{fqn: true}
	t, ok := r.types[fqn]
	for ok {
		s := t.SuperClass()
		if s == "" || seen[s] {
			break
		}
		seen[s] = true
		chain = append(chain, s)
		t, ok = r.types[s]
	}
	return chain
}

// Len returns the number of nodes, placeholders included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Types returns all nodes ordered by name.
func (r *Registry) Types() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FQN < out[j].FQN })
	return out
}

// Add merges t into the registry and returns the canonical node for its
// name. The first initialized definition of a name populates the node
// (replacing a placeholder in place, so earlier references stay valid);
// later definitions only contribute their hashes.
func (r *Registry) Add(t *Type) *Type {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.types[t.FQN]
	switch {
	case !ok:
		r.types[t.FQN] = t
		existing = t
	case existing.initialized:
		for _, h := range t.hashes {
			existing.AddHash(h)
		}
		return existing
	case t.initialized:
		hashes := existing.hashes
		*existing = *t
		existing.hashes = hashes
		for _, h := range t.hashes {
			existing.AddHash(h)
		}
	default:
		for _, h := range t.hashes {
			existing.AddHash(h)
		}
		return existing
	}
	if !existing.initialized {
		return existing
	}

	for _, s := range existing.SuperClasses {
		r.placeholder(s, KindClass)
		link(r.subClasses, s, existing.FQN)
	}
	for _, s := range existing.SuperInterfaces {
		r.placeholder(s, KindInterface)
		link(r.subInterfaces, s, existing.FQN)
	}
	for _, s := range existing.RealizedInterfaces {
		r.placeholder(s, KindInterface)
		link(r.realizingClasses, s, existing.FQN)
	}
	for _, a := range existing.Annotations {
		r.placeholder(a, KindAnnotation)
		link(r.annotatedTypes, a, existing.FQN)
	}
	for _, m := range existing.Methods {
		for _, a := range m.Annotations {
			r.placeholder(a, KindAnnotation)
		}
		for _, e := range m.Exceptions {
			r.placeholder(e, KindClass)
		}
	}
	return existing
}

func (r *Registry) placeholder(fqn string, kind Kind) {
	if _, ok := r.types[fqn]; !ok {
		r.types[fqn] = NewPlaceholder(fqn, kind)
	}
}

func link(index map[string]nameSet, to, from string) {
	s, ok := index[to]
	if !ok {
		s = make(nameSet)
		index[to] = s
	}
	s[from] = struct{}{}
}

func (r *Registry) lookupIndex(index map[string]nameSet, fqn string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return index[fqn].sorted()
}

// SubClasses returns the names of the direct subclasses of fqn.
func (r *Registry) SubClasses(fqn string) []string {
	return r.lookupIndex(r.subClasses, fqn)
}

// RealizingClasses returns the names of classes directly implementing the
// interface fqn.
func (r *Registry) RealizingClasses(fqn string) []string {
	return r.lookupIndex(r.realizingClasses, fqn)
}

// SubInterfaces returns the names of interfaces directly extending fqn.
func (r *Registry) SubInterfaces(fqn string) []string {
	return r.lookupIndex(r.subInterfaces, fqn)
}

// AnnotatedTypes returns the names of types annotated with fqn.
func (r *Registry) AnnotatedTypes(fqn string) []string {
	return r.lookupIndex(r.annotatedTypes, fqn)
}
