package expression

import (
	"go/ast"
	"go/token"
	"strconv"
	"strings"

	"github.com/roach88/covenant/internal/ir"
)

// Helpers called by lowered expressions. The runtime evaluator binds them
// with Go semantics for every operator whose evaluator meaning differs from
// Go's. Conditions may not use identifiers with the reserved prefix.
const (
	HelperPrefix = "__"

	HelperBinary     = HelperPrefix + "binary"     // __binary(op, x, y) for / & | ^ &^ << >>
	HelperComplement = HelperPrefix + "complement" // __complement(x) for unary ^
	HelperIndex      = HelperPrefix + "index"      // __index(x, i)
	HelperSlice      = HelperPrefix + "slice"      // __slice(x, lo, hi); nil bounds are omitted
	HelperConvert    = HelperPrefix + "convert"    // __convert(type, x)
	HelperBuiltin    = HelperPrefix + "builtin"    // __builtin(name, args...)
)

// Builtins are the Go builtin functions a condition may call.
var Builtins = map[string]bool{"len": true, "cap": true, "min": true, "max": true}

// Conversions are the Go types a condition may convert to.
var Conversions = map[string]bool{
	"bool": true, "string": true, "byte": true, "rune": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true, "uintptr": true,
	"float32": true, "float64": true,
}

// evaluatorKeywords cannot be written as bare identifiers in lowered text.
var evaluatorKeywords = map[string]bool{
	"in": true, "not": true, "and": true, "or": true, "matches": true,
	"contains": true, "startsWith": true, "endsWith": true, "let": true,
	"if": true, "else": true, "then": true,
}

// Lower renders t in the syntax of the runtime expression evaluator, such
// that the result evaluates the way the Go expression would.
//
// Operators the evaluator reads differently (integer division, bitwise
// operators, indexing, slicing, conversions, builtins) become helper calls.
// Constructs with no runtime counterpart (type assertions, pointer operations,
// channel receives, composite and function literals, generic instantiation)
// fail with MalformedExpression, so a condition that generates always binds.
func Lower(t *Tree) (string, error) {
	l := &lowerer{tree: t}
	l.expr(t.Root)
	if l.err != nil {
		return "", l.err
	}
	return l.b.String(), nil
}

type lowerer struct {
	tree *Tree
	b    strings.Builder
	err  *ir.GenerationError
}

func (l *lowerer) fail(n ast.Node, format string, args ...any) {
	if l.err != nil {
		return
	}
	l.err = ir.NewGenerationError(ir.ErrMalformedExpression, l.tree.Source, format, args...)
	l.err.Offset = l.tree.Offset(n.Pos())
}

func (l *lowerer) write(parts ...string) {
	for _, p := range parts {
		l.b.WriteString(p)
	}
}

func (l *lowerer) call(name string, args ...func()) {
	l.write(name, "(")
	for i, arg := range args {
		if i > 0 {
			l.write(", ")
		}
		arg()
	}
	l.write(")")
}

func (l *lowerer) sub(e ast.Expr) func() {
	return func() { l.expr(e) }
}

func (l *lowerer) text(s string) func() {
	return func() { l.write(s) }
}

func (l *lowerer) expr(e ast.Expr) {
	if l.err != nil {
		return
	}
	switch n := e.(type) {
	case *ast.Ident:
		l.ident(n)
	case *ast.BasicLit:
		l.literal(n)
	case *ast.ParenExpr:
		l.write("(")
		l.expr(n.X)
		l.write(")")
	case *ast.BinaryExpr:
		l.binary(n)
	case *ast.UnaryExpr:
		l.unary(n)
	case *ast.SelectorExpr:
		l.expr(n.X)
		if evaluatorKeywords[n.Sel.Name] {
			l.write("[", strconv.Quote(n.Sel.Name), "]")
			return
		}
		l.write(".", n.Sel.Name)
	case *ast.IndexExpr:
		l.call(HelperIndex, l.sub(n.X), l.sub(n.Index))
	case *ast.SliceExpr:
		if n.Slice3 {
			l.fail(n, "full slice expressions are not supported in conditions")
			return
		}
		l.call(HelperSlice, l.sub(n.X), l.bound(n.Low), l.bound(n.High))
	case *ast.CallExpr:
		l.callExpr(n)
	case *ast.StarExpr:
		l.fail(n, "pointer indirection is not supported in conditions")
	case *ast.TypeAssertExpr:
		l.fail(n, "type assertions are not supported in conditions")
	case *ast.CompositeLit:
		l.fail(n, "composite literals are not supported in conditions")
	case *ast.FuncLit:
		l.fail(n, "function literals are not supported in conditions")
	case *ast.IndexListExpr:
		l.fail(n, "generic instantiation is not supported in conditions")
	default:
		l.fail(e, "%T is not supported in conditions", e)
	}
}

func (l *lowerer) bound(e ast.Expr) func() {
	if e == nil {
		return l.text("nil")
	}
	return l.sub(e)
}

func (l *lowerer) ident(n *ast.Ident) {
	switch {
	case strings.HasPrefix(n.Name, HelperPrefix):
		l.fail(n, "identifiers beginning with %q are reserved", HelperPrefix)
	case evaluatorKeywords[n.Name]:
		l.write(`$env[`, strconv.Quote(n.Name), `]`)
	default:
		l.write(n.Name)
	}
}

func (l *lowerer) literal(n *ast.BasicLit) {
	switch n.Kind {
	case token.INT:
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			l.fail(n, "integer literal %s does not fit in 64 bits", n.Value)
			return
		}
		l.write(strconv.FormatInt(v, 10))
	case token.FLOAT:
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			l.fail(n, "float literal %s is out of range", n.Value)
			return
		}
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		l.write(s)
	case token.CHAR:
		// a rune literal is an integer
		r, _, _, err := strconv.UnquoteChar(n.Value[1:len(n.Value)-1], '\'')
		if err != nil {
			l.fail(n, "invalid rune literal %s", n.Value)
			return
		}
		l.write(strconv.Itoa(int(r)))
	case token.STRING:
		s, err := strconv.Unquote(n.Value)
		if err != nil {
			l.fail(n, "invalid string literal %s", n.Value)
			return
		}
		l.write(strconv.Quote(s))
	default:
		l.fail(n, "%s literals are not supported in conditions", strings.ToLower(n.Kind.String()))
	}
}

func (l *lowerer) binary(n *ast.BinaryExpr) {
	switch n.Op {
	case token.LAND, token.LOR, token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ,
		token.ADD, token.SUB, token.MUL, token.REM:
		// parenthesized so Go precedence survives the evaluator's
		l.write("(")
		l.expr(n.X)
		l.write(" ", n.Op.String(), " ")
		l.expr(n.Y)
		l.write(")")
	case token.QUO, token.AND, token.OR, token.XOR, token.AND_NOT, token.SHL, token.SHR:
		l.call(HelperBinary, l.text(strconv.Quote(n.Op.String())), l.sub(n.X), l.sub(n.Y))
	default:
		l.fail(n, "operator %s is not supported in conditions", n.Op)
	}
}

func (l *lowerer) unary(n *ast.UnaryExpr) {
	switch n.Op {
	case token.NOT, token.SUB:
		l.write("(", n.Op.String())
		l.expr(n.X)
		l.write(")")
	case token.ADD:
		l.expr(n.X)
	case token.XOR:
		l.call(HelperComplement, l.sub(n.X))
	case token.AND:
		l.fail(n, "taking an address is not supported in conditions")
	case token.ARROW:
		l.fail(n, "channel receives are not supported in conditions")
	default:
		l.fail(n, "operator %s is not supported in conditions", n.Op)
	}
}

func (l *lowerer) callExpr(n *ast.CallExpr) {
	if n.Ellipsis.IsValid() {
		l.fail(n, "variadic calls are not supported in conditions")
		return
	}
	args := make([]func(), 0, len(n.Args)+1)

	switch fn := n.Fun.(type) {
	case *ast.Ident:
		switch {
		case Builtins[fn.Name]:
			args = append(args, l.text(strconv.Quote(fn.Name)))
			for _, a := range n.Args {
				args = append(args, l.sub(a))
			}
			l.call(HelperBuiltin, args...)
			return
		case Conversions[fn.Name]:
			if len(n.Args) != 1 {
				l.fail(n, "conversion to %s takes exactly one argument", fn.Name)
				return
			}
			l.call(HelperConvert, l.text(strconv.Quote(fn.Name)), l.sub(n.Args[0]))
			return
		}
		l.ident(fn)
	case *ast.SelectorExpr:
		l.expr(fn)
	case *ast.ParenExpr:
		l.expr(fn)
	default:
		l.fail(n, "cannot call %T in a condition", n.Fun)
		return
	}

	for _, a := range n.Args {
		args = append(args, l.sub(a))
	}
	l.call("", args...)
}
