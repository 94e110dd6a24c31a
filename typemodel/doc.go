// Package typemodel describes the structure of analyzed classes: their kind,
// modifiers, supertypes, annotations and methods, plus the set of content
// hashes each type has been seen under.
//
// Types referenced but not yet defined exist as placeholders. A Registry
// keeps one node per name and flips a placeholder to initialized exactly once,
// when its first definition arrives.
package typemodel
