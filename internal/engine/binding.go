package engine

import (
	"strings"

	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

// ResolveBinding evaluates an ArgBinding against the scope. Resolution is
// pure and total: it has no side effects and never fails — an absent path
// or an unknown binding type resolves to nil.
func ResolveBinding(b *schema.ArgBinding, scope *Scope) any {
	if b == nil {
		return nil
	}
	switch b.Type {
	case schema.BindingLiteral:
		return b.Value
	case schema.BindingInput:
		return getPath(scope.Input(), b.Path)
	case schema.BindingStep:
		return getPath(scope.StepOutput(b.StepID), b.Path)
	}
	return nil
}

// ResolveArgs resolves every entry of a named binding map independently.
// Evaluation order is unspecified; bindings have no side effects.
func ResolveArgs(args map[string]schema.ArgBinding, scope *Scope) map[string]any {
	resolved := make(map[string]any, len(args))
	for name := range args {
		b := args[name]
		resolved[name] = ResolveBinding(&b, scope)
	}
	return resolved
}

// getPath walks a dot-notation path into nested maps, short-circuiting to
// nil the moment it hits a missing key or a non-map value. An empty path
// returns the root.
func getPath(root any, path string) any {
	if path == "" {
		return root
	}
	current := root
	for _, key := range strings.Split(path, ".") {
		if current == nil {
			return nil
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}
