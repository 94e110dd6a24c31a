// Package analyzer builds type model nodes from class file bytes.
//
// An Analyzer makes a single pass over a decoded class: header, super
// types, annotations and declared methods. Every analysis is tagged with a
// hash token so a registry can tell which byte versions of a class it has
// already seen:
//
//	reg := typemodel.NewRegistry()
//	t, err := analyzer.New(sha).AnalyzeInto(reg, data)
//
// Referenced types (super types, annotations, declared exceptions) become
// uninitialized placeholders in the registry. Undecodable input fails with
// an error matching errors.ErrMalformedInput.
package analyzer
