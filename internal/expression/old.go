package expression

import (
	"go/ast"

	"github.com/roach88/covenant/internal/ir"
)

// OldReference is one resolved old(field) occurrence.
type OldReference struct {
	Field     string // operand field name
	Qualified bool   // operand was written as this.field
	Offset    int    // byte offset of the old call in the condition
	End       int    // byte offset just past the closing parenthesis
}

// FindOldReferences collects every old(x) call in source order.
//
// A call with other than exactly one argument fails with InvalidOldArity.
// The operand must be a bare identifier or this.identifier (parentheses are
// allowed around either); anything else fails with InvalidOldOperand. The
// first offending call wins.
func FindOldReferences(t *Tree) ([]OldReference, error) {
	var refs []OldReference
	var firstErr error

	ast.Inspect(t.Root, func(n ast.Node) bool {
		if firstErr != nil {
			return false
		}
		call, ok := isOldCall(n)
		if !ok {
			return true
		}
		ref, err := resolveOld(t, call)
		if err != nil {
			firstErr = err
			return false
		}
		refs = append(refs, ref)
		return false
	})

	if firstErr != nil {
		return nil, firstErr
	}
	return refs, nil
}

// CaptureFields returns the distinct fields referenced by refs, in order of
// first occurrence. Several old() calls on one field share a capture entry.
func CaptureFields(refs []OldReference) []string {
	seen := make(map[string]bool, len(refs))
	var fields []string
	for _, r := range refs {
		if seen[r.Field] {
			continue
		}
		seen[r.Field] = true
		fields = append(fields, r.Field)
	}
	return fields
}

// HasOld reports whether the tree contains any old(...) call, valid or not.
func HasOld(t *Tree) bool {
	found := false
	ast.Inspect(t.Root, func(n ast.Node) bool {
		if _, ok := isOldCall(n); ok {
			found = true
		}
		return !found
	})
	return found
}

func isOldCall(n ast.Node) (*ast.CallExpr, bool) {
	call, ok := n.(*ast.CallExpr)
	if !ok {
		return nil, false
	}
	id, ok := call.Fun.(*ast.Ident)
	if !ok || id.Name != ir.OldName {
		return nil, false
	}
	return call, true
}

func resolveOld(t *Tree, call *ast.CallExpr) (OldReference, error) {
	ref := OldReference{
		Offset: t.Offset(call.Pos()),
		End:    t.Offset(call.End()),
	}
	text := t.Text(call)

	if len(call.Args) != 1 {
		ge := ir.NewGenerationError(ir.ErrInvalidOldArity, t.Source,
			"old() takes exactly one argument, got %d in %s", len(call.Args), text)
		ge.Offset = ref.Offset
		return ref, ge
	}
	if call.Ellipsis.IsValid() {
		ge := ir.NewGenerationError(ir.ErrInvalidOldOperand, t.Source,
			"old() operand cannot be variadic in %s", text)
		ge.Offset = t.Offset(call.Args[0].Pos())
		return ref, ge
	}

	switch op := ast.Unparen(call.Args[0]).(type) {
	case *ast.Ident:
		if !ir.ReservedNames[op.Name] {
			ref.Field = op.Name
			return ref, nil
		}
	case *ast.SelectorExpr:
		if recv, ok := ast.Unparen(op.X).(*ast.Ident); ok && recv.Name == ir.ThisName {
			ref.Field = op.Sel.Name
			ref.Qualified = true
			return ref, nil
		}
	}

	ge := ir.NewGenerationError(ir.ErrInvalidOldOperand, t.Source,
		"old() operand must be a field name, got %s", t.Text(call.Args[0]))
	ge.Offset = t.Offset(call.Args[0].Pos())
	return ref, ge
}
