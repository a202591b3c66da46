package expression

import (
	"errors"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"strings"

	"github.com/roach88/covenant/internal/ir"
)

// Tree is a parsed condition together with its source text.
type Tree struct {
	Source string
	Root   ast.Expr
	fset   *token.FileSet
	edits  []Edit // set on rewritten trees
}

// Parse parses a condition in boolean context.
// Syntax errors and expressions that can never be boolean (number, string,
// and composite literals, function literals, type expressions) fail with
// MalformedExpression.
func Parse(text string) (*Tree, error) {
	return parse(text, true)
}

// ParseValue parses an expression in value context, such as a parameter
// default. Any well-formed expression is accepted.
func ParseValue(text string) (*Tree, error) {
	return parse(text, false)
}

func parse(text string, condition bool) (*Tree, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ir.NewGenerationError(ir.ErrMalformedExpression, text, "empty expression")
	}

	fset := token.NewFileSet()
	root, err := parser.ParseExprFrom(fset, "", text, parser.SkipObjectResolution)
	if err != nil {
		ge := ir.NewGenerationError(ir.ErrMalformedExpression, text, "%s", syntaxMessage(err))
		var list scanner.ErrorList
		if errors.As(err, &list) && len(list) > 0 {
			ge.Offset = list[0].Pos.Offset
		}
		return nil, ge
	}

	t := &Tree{Source: text, Root: root, fset: fset}
	if !condition {
		return t, nil
	}
	if reason := nonBoolean(ast.Unparen(root)); reason != "" {
		ge := ir.NewGenerationError(ir.ErrMalformedExpression, text, "%s cannot be used as a condition", reason)
		ge.Offset = t.Offset(root.Pos())
		return nil, ge
	}
	return t, nil
}

// MustParse is like Parse but panics on error. For tests and constants.
func MustParse(text string) *Tree {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

// Offset converts a position inside the tree to a byte offset in Source.
func (t *Tree) Offset(pos token.Pos) int {
	return t.fset.Position(pos).Offset
}

// Text returns the source text spanned by n.
func (t *Tree) Text(n ast.Node) string {
	return t.Source[t.Offset(n.Pos()):t.Offset(n.End())]
}

func (t *Tree) String() string {
	return t.Source
}

func nonBoolean(e ast.Expr) string {
	switch n := e.(type) {
	case *ast.BasicLit:
		return strings.ToLower(n.Kind.String()) + " literal"
	case *ast.CompositeLit:
		return "composite literal"
	case *ast.FuncLit:
		return "function literal"
	case *ast.ArrayType, *ast.MapType, *ast.ChanType, *ast.FuncType, *ast.InterfaceType, *ast.StructType:
		return "type expression"
	}
	return ""
}

func syntaxMessage(err error) string {
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return list[0].Msg
	}
	return err.Error()
}
