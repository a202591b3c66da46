package expression

import (
	"cmp"
	"go/ast"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/roach88/covenant/internal/ir"
)

// Strategy decides what replaces each rewritten span.
// Replacements must be primary expressions (identifiers, selectors, calls,
// index expressions) so that operator precedence is unchanged.
type Strategy interface {
	// OldLookup returns the text replacing an old(field) call.
	OldLookup(ref OldReference) string
	// Ident returns the replacement for an identifier in value position,
	// or false to keep it as written. A this.name selector is offered whole
	// as "this.name" before this itself is offered.
	Ident(name string) (string, bool)
}

// LookupStrategy replaces old(x) with lookup("x") and keeps every identifier.
type LookupStrategy struct{}

func (LookupStrategy) OldLookup(ref OldReference) string {
	return ir.LookupName + "(" + strconv.Quote(ref.Field) + ")"
}

func (LookupStrategy) Ident(string) (string, bool) {
	return "", false
}

// Edit is one replaced span of a rewrite.
type Edit struct {
	Start, End int    // replaced span of the original text
	Text       string // replacement
}

// Rewrite returns a new tree in which every old(x) call is replaced by the
// strategy's lookup and identifiers are renamed as the strategy asks.
// Text outside the replaced spans is copied unchanged; the returned tree
// records its edits, and OriginalOffset maps any unmodified byte back to
// its offset in t.
func Rewrite(t *Tree, s Strategy) (*Tree, error) {
	refs, err := FindOldReferences(t)
	if err != nil {
		return nil, err
	}
	byOffset := make(map[int]OldReference, len(refs))
	for _, r := range refs {
		byOffset[r.Offset] = r
	}

	var edits []Edit
	astutil.Apply(t.Root, func(c *astutil.Cursor) bool {
		if call, ok := isOldCall(c.Node()); ok {
			ref := byOffset[t.Offset(call.Pos())]
			edits = append(edits, Edit{Start: ref.Offset, End: ref.End, Text: s.OldLookup(ref)})
			return false
		}
		if sel, ok := c.Node().(*ast.SelectorExpr); ok {
			if x, ok := sel.X.(*ast.Ident); ok && x.Name == ir.ThisName {
				if repl, ok := s.Ident(ir.ThisName + "." + sel.Sel.Name); ok {
					edits = append(edits, Edit{Start: t.Offset(sel.Pos()), End: t.Offset(sel.End()), Text: repl})
					return false
				}
			}
		}
		id, ok := c.Node().(*ast.Ident)
		if !ok || !valuePosition(c) {
			return true
		}
		if repl, ok := s.Ident(id.Name); ok && repl != id.Name {
			start := t.Offset(id.Pos())
			edits = append(edits, Edit{Start: start, End: start + len(id.Name), Text: repl})
		}
		return true
	}, nil)

	if len(edits) == 0 {
		return Parse(t.Source)
	}

	slices.SortFunc(edits, func(a, b Edit) int { return cmp.Compare(a.Start, b.Start) })
	out, err := Parse(splice(t.Source, edits))
	if err != nil {
		ge := err.(*ir.GenerationError)
		ge.Message = "rewritten condition is not valid: " + ge.Message
		ge.Clause = t.Source
		return nil, ge
	}
	out.edits = edits
	return out, nil
}

// Edits returns the replacements that produced t, in source order. A parsed
// tree has none.
func (t *Tree) Edits() []Edit {
	return slices.Clone(t.edits)
}

// OriginalOffset maps a byte offset of t.Source to the offset of the same
// byte in the text t was rewritten from. Offsets inside a replacement have
// no original and report false.
func (t *Tree) OriginalOffset(off int) (int, bool) {
	shift := 0
	for _, e := range t.edits {
		start := e.Start + shift
		if off < start {
			break
		}
		if off < start+len(e.Text) {
			return 0, false
		}
		shift += len(e.Text) - (e.End - e.Start)
	}
	return off - shift, true
}

// splice applies edits, which must be sorted and disjoint.
func splice(src string, edits []Edit) string {
	var b strings.Builder
	last := 0
	for _, e := range edits {
		b.WriteString(src[last:e.Start])
		b.WriteString(e.Text)
		last = e.End
	}
	b.WriteString(src[last:])
	return b.String()
}
