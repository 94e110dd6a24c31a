package instrument

import "strings"

// ClassMatcher matches dotted class names against patterns.
//
// Supports patterns like:
//   - "com.acme.Service" - exact match
//   - "Service" - matches the simple name in any package
//   - "com.acme.*" - matches all classes directly in com.acme
//   - "com.acme.**" - matches com.acme and its subpackages
//   - "*" - matches everything
type ClassMatcher struct {
	exact    map[string]bool // fully qualified names
	simple   map[string]bool // unqualified names
	packages map[string]bool // "pkg.*" matches
	prefixes []string        // "pkg.**" matches, stored as "pkg."
	matchAll bool            // "*" matches everything
}

// NewClassMatcher creates a matcher from a list of patterns.
func NewClassMatcher(patterns []string) *ClassMatcher {
	m := &ClassMatcher{
		exact:    make(map[string]bool),
		simple:   make(map[string]bool),
		packages: make(map[string]bool),
	}
	for _, p := range patterns {
		switch {
		case p == "*" || p == "**":
			m.matchAll = true
		case strings.HasSuffix(p, ".**"):
			m.prefixes = append(m.prefixes, strings.TrimSuffix(p, "**"))
		case strings.HasSuffix(p, ".*"):
			m.packages[strings.TrimSuffix(p, ".*")] = true
		case strings.Contains(p, "."):
			m.exact[p] = true
		case p != "":
			m.simple[p] = true
		}
	}
	return m
}

// Match returns true if the class matches any pattern.
func (m *ClassMatcher) Match(class string) bool {
	if m.matchAll || m.exact[class] {
		return true
	}
	pkg, name := "", class
	if i := strings.LastIndexByte(class, '.'); i >= 0 {
		pkg, name = class[:i], class[i+1:]
	}
	if m.simple[name] || m.packages[pkg] {
		return true
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(class, p) {
			return true
		}
	}
	return false
}
