package expression

import (
	"go/ast"

	"golang.org/x/tools/go/ast/astutil"
)

// Idents returns the names used in value position, in order of first
// occurrence. Selector names (the y in x.y), struct literal keys, and the
// arguments of old() calls are not included. The old identifier itself is
// included only when it is used other than as a call.
func Idents(t *Tree) []string {
	seen := make(map[string]bool)
	var names []string

	astutil.Apply(t.Root, func(c *astutil.Cursor) bool {
		if _, ok := isOldCall(c.Node()); ok {
			return false
		}
		id, ok := c.Node().(*ast.Ident)
		if !ok || !valuePosition(c) {
			return true
		}
		if !seen[id.Name] {
			seen[id.Name] = true
			names = append(names, id.Name)
		}
		return true
	}, nil)

	return names
}

// Uses reports whether name appears in value position.
func Uses(t *Tree, name string) bool {
	for _, n := range Idents(t) {
		if n == name {
			return true
		}
	}
	return false
}

// valuePosition reports whether the identifier under the cursor denotes a
// value rather than a member name or literal key.
func valuePosition(c *astutil.Cursor) bool {
	switch c.Parent().(type) {
	case *ast.SelectorExpr:
		return c.Name() == "X"
	case *ast.KeyValueExpr:
		return c.Name() != "Key"
	}
	return true
}
