// Package codegen renders wrapper descriptors as Go source.
//
// Each wrapper becomes an exported function or method that calls the
// enforce runtime around the unexported implementation it wraps:
//
//	func (l *Ledger) Add(amount int) int {
//		call := enforce.Enter("Ledger", "Add")
//		defer call.Exit()
//
//		call.Require(amount > 0, "amount > 0", "amount must be positive")
//		call.Capture("total", l.total)
//		result := l.add(amount)
//		call.Ensure(result == enforce.Lookup[int](call, "total")+amount, ...)
//		return result
//	}
//
// Go has neither optional nor named parameters, so every parameter is
// emitted positionally in declaration-shape order.
package codegen

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"golang.org/x/tools/imports"

	"github.com/roach88/covenant/internal/expression"
	"github.com/roach88/covenant/internal/ir"
	"github.com/roach88/covenant/internal/signature"
)

// DefaultRuntimeImport is the import path of the enforce runtime.
const DefaultRuntimeImport = "github.com/roach88/covenant/internal/enforce"

// Locals declared by every wrapper. Parameters may not reuse them.
const (
	callVar   = "call"
	resultVar = "result"
	valueVar  = "v"
	errVar    = "err"
)

// Options control the emitted file.
type Options struct {
	Package       string // package clause; required
	RuntimeImport string // defaults to DefaultRuntimeImport
}

// EmitError reports a descriptor that cannot be expressed in Go.
type EmitError struct {
	Callable string
	Message  string
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("emit %s: %s", e.Callable, e.Message)
}

// Emit renders descs as one gofmt-formatted Go file.
//
// Output follows descriptor order. A type's invariant helper is emitted
// before its first wrapper.
func Emit(descs []*ir.Descriptor, opts Options) ([]byte, error) {
	if opts.Package == "" {
		return nil, fmt.Errorf("emit: package name is required")
	}
	if opts.RuntimeImport == "" {
		opts.RuntimeImport = DefaultRuntimeImport
	}

	g := &generator{}
	g.emitLine("// Code generated by covenant. DO NOT EDIT.")
	g.emitLine("")
	g.emitLinef("package %s\n", opts.Package)
	g.emitLine("")
	if path.Base(opts.RuntimeImport) == "enforce" {
		g.emitLinef("import %q\n", opts.RuntimeImport)
	} else {
		g.emitLinef("import enforce %q\n", opts.RuntimeImport)
	}

	helpers := invariantHelpers(descs)
	emitted := make(map[string]bool)
	for _, d := range descs {
		if d.Type != "" && !emitted[d.Type] {
			emitted[d.Type] = true
			if checks, ok := helpers[d.Type]; ok {
				g.emitLine("")
				if err := g.generateInvariantHelper(d, checks); err != nil {
					return nil, err
				}
			}
		}
		g.emitLine("")
		if err := g.generateWrapper(d, helpers[d.Type] != nil); err != nil {
			return nil, err
		}
	}

	out, err := imports.Process("", []byte(g.sb.String()), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("emit: formatting generated source: %w", err)
	}
	return out, nil
}

// invariantHelpers returns the invariant checks of every type that has any.
func invariantHelpers(descs []*ir.Descriptor) map[string][]ir.Check {
	helpers := make(map[string][]ir.Check)
	for _, d := range descs {
		if d.Type == "" {
			continue
		}
		if _, ok := helpers[d.Type]; ok {
			continue
		}
		checks := d.Checks(ir.StepInvariantsAfter)
		if len(checks) == 0 {
			checks = d.Checks(ir.StepInvariantsBefore)
		}
		if len(checks) > 0 {
			helpers[d.Type] = checks
		}
	}
	return helpers
}

func helperName(typeName string) string {
	return "assert" + typeName + "Invariants"
}

type generator struct {
	sb     strings.Builder
	indent int
}

func (g *generator) emit(s string) {
	g.sb.WriteString(s)
}

func (g *generator) emitf(format string, args ...any) {
	g.sb.WriteString(fmt.Sprintf(format, args...))
}

func (g *generator) emitLinef(format string, args ...any) {
	g.sb.WriteString(g.indentStr())
	g.sb.WriteString(fmt.Sprintf(format, args...))
}

func (g *generator) emitLine(s string) {
	if s == "" {
		g.sb.WriteString("\n")
		return
	}
	g.sb.WriteString(g.indentStr())
	g.sb.WriteString(s)
	g.sb.WriteString("\n")
}

func (g *generator) incIndent() { g.indent++ }
func (g *generator) decIndent() { g.indent-- }

func (g *generator) indentStr() string {
	return strings.Repeat("\t", g.indent)
}

func (g *generator) generateInvariantHelper(d *ir.Descriptor, checks []ir.Check) error {
	s := newStrategy(d.Receiver, d.Fields, nil, nil)
	g.emitLinef("// %s panics with an InvariantViolation when an invariant of %s does not hold.\n",
		helperName(d.Type), d.Type)
	g.emitLinef("func (%s *%s) %s(%s *enforce.Call) {\n", d.Receiver, d.Type, helperName(d.Type), callVar)
	g.incIndent()
	for _, c := range checks {
		line, err := g.checkLine(s, "Invariant", c)
		if err != nil {
			return err
		}
		g.emitLine(line)
	}
	g.decIndent()
	g.emitLine("}")
	return nil
}

func (g *generator) generateWrapper(d *ir.Descriptor, hasHelper bool) error {
	if err := checkNames(d); err != nil {
		return err
	}
	s := newStrategy(d.Receiver, d.Fields, d.Signature.Declaration, d.Captures)

	// Render every check up front so a constructor knows whether the
	// remaining checks read the constructed value.
	lines := make([][]string, len(d.Steps))
	for i, step := range d.Steps {
		for _, c := range step.Checks {
			if step.Kind == ir.StepInvariantsBefore || step.Kind == ir.StepInvariantsAfter {
				continue
			}
			line, err := g.checkLine(s, checkFunc(c.Kind), c)
			if err != nil {
				return err
			}
			lines[i] = append(lines[i], line)
		}
	}
	bindsReceiver := d.Role == ir.RoleConstructor && (s.usedRecv || hasHelper)

	g.generateDoc(d)
	g.generateHeader(d)
	g.incIndent()
	g.emitLinef("%s := enforce.Enter(%q, %q)\n", callVar, d.Type, d.PublicName)
	if d.Async {
		g.emitLinef("defer %s.Release()\n", callVar)
	} else {
		g.emitLinef("defer %s.Exit()\n", callVar)
	}
	g.emitLine("")

	for i, step := range d.Steps {
		switch step.Kind {
		case ir.StepInvariantsBefore, ir.StepInvariantsAfter:
			g.emitLinef("%s.%s(%s)\n", d.Receiver, helperName(d.Type), callVar)
		case ir.StepCaptureOld:
			for _, c := range d.Captures {
				g.emitLinef("%s.Capture(%q, %s)\n", callVar, c.Field, access(d.Receiver, c.Field, c.Accessor))
			}
		case ir.StepInvoke:
			if d.Async {
				g.emitLinef("return %s.Then(%s, func(%s any, %s error) (any, error) {\n", callVar, invocation(d), valueVar, errVar)
				g.incIndent()
				g.emitLinef("if %s != nil {\n", errVar)
				g.incIndent()
				g.emitLinef("return nil, %s\n", errVar)
				g.decIndent()
				g.emitLine("}")
				if d.Result != "" {
					g.emitLinef("%s := enforce.Result[%s](%s, %s)\n", resultVar, d.Result, callVar, valueVar)
				}
			} else if d.Result != "" {
				g.emitLinef("%s := %s\n", resultVar, invocation(d))
			} else {
				g.emitLine(invocation(d))
			}
			if bindsReceiver {
				g.emitLinef("%s := %s\n", d.Receiver, resultVar)
			}
		default:
			for _, line := range lines[i] {
				g.emitLine(line)
			}
		}
	}

	switch {
	case d.Async && d.Result != "":
		g.emitLinef("return %s, nil\n", resultVar)
		g.decIndent()
		g.emitLine("})")
	case d.Async:
		g.emitLinef("return %s, nil\n", valueVar)
		g.decIndent()
		g.emitLine("})")
	case d.Result != "":
		g.emitLinef("return %s\n", resultVar)
	}
	g.decIndent()
	g.emitLine("}")
	return nil
}

func (g *generator) generateDoc(d *ir.Descriptor) {
	g.emitLinef("// %s enforces the contract of %s.\n", d.PublicName, d.Implementation)
	for _, p := range d.Signature.Declaration {
		if p.Kind != ir.RequiredPositional {
			g.emitLine("//")
			g.emitLinef("// Declared as %s.\n", signature.Describe(d.Signature))
			break
		}
	}
}

func (g *generator) generateHeader(d *ir.Descriptor) {
	g.emit("func ")
	if d.Role == ir.RoleMethod {
		g.emitf("(%s *%s) ", d.Receiver, d.Type)
	}
	g.emitf("%s%s(%s)", d.PublicName, signature.GoTypeParams(d.Signature), signature.GoParams(d.Signature))
	switch {
	case d.Async:
		g.emit(" *enforce.Future")
	case d.Result != "":
		g.emit(" " + d.Result)
	}
	g.emit(" {\n")
}

// checkLine renders one condition as a runtime call such as
// call.Require(ok, "clause", "message").
func (g *generator) checkLine(s *goStrategy, fn string, c ir.Check) (string, error) {
	tree, err := expression.Parse(c.Source)
	if err != nil {
		return "", err
	}
	out, err := expression.Rewrite(tree, s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s(%s, %s, %s)", callVar, fn, out.Source,
		strconv.Quote(c.Source), strconv.Quote(c.Message)), nil
}

func checkFunc(k ir.ClauseKind) string {
	switch k {
	case ir.KindInvariant:
		return "Invariant"
	case ir.KindPrecondition:
		return "Require"
	default:
		return "Ensure"
	}
}

// invocation renders the call of the wrapped implementation.
func invocation(d *ir.Descriptor) string {
	target := d.Implementation + signature.GoTypeArgs(d.Signature)
	if d.Role == ir.RoleMethod {
		target = d.Receiver + "." + d.Implementation
	}
	return fmt.Sprintf("%s(%s)", target, signature.GoArgs(d.Signature))
}

func checkNames(d *ir.Descriptor) error {
	if d.Role == ir.RoleMethod && len(d.Signature.TypeParams) > 0 {
		return &EmitError{Callable: d.QualifiedName(), Message: "Go methods cannot declare type parameters"}
	}
	reserved := map[string]bool{callVar: true, valueVar: true, errVar: true, "enforce": true}
	if d.Receiver != "" {
		reserved[d.Receiver] = true
	}
	for _, p := range d.Signature.Declaration {
		if reserved[p.Name] {
			return &EmitError{
				Callable: d.QualifiedName(),
				Message:  fmt.Sprintf("parameter %q collides with a name the wrapper declares", p.Name),
			}
		}
	}
	return nil
}

func access(recv, field string, accessor bool) string {
	if accessor {
		return recv + "." + field + "()"
	}
	return recv + "." + field
}

// goStrategy rewrites conditions into Go: fields become receiver selectors
// and old(x) becomes a typed capture-store lookup.
type goStrategy struct {
	recv     string
	fields   map[string]ir.Field
	params   map[string]bool
	captures map[string]string

	usedRecv bool
}

// newStrategy builds the rewrite strategy for one wrapper. Parameters
// shadow fields of the same name.
func newStrategy(recv string, fields []ir.Field, params []ir.Param, captures []ir.Capture) *goStrategy {
	s := &goStrategy{
		recv:     recv,
		fields:   make(map[string]ir.Field, len(fields)),
		params:   make(map[string]bool, len(params)),
		captures: make(map[string]string, len(captures)),
	}
	for _, f := range fields {
		s.fields[f.Name] = f
	}
	for _, p := range params {
		s.params[p.Name] = true
	}
	for _, c := range captures {
		s.captures[c.Field] = c.Type
	}
	return s
}

func (s *goStrategy) OldLookup(ref expression.OldReference) string {
	return fmt.Sprintf("enforce.Lookup[%s](%s, %q)", s.captures[ref.Field], callVar, ref.Field)
}

func (s *goStrategy) Ident(name string) (string, bool) {
	if s.recv == "" {
		return "", false
	}
	if field, ok := strings.CutPrefix(name, ir.ThisName+"."); ok {
		f, ok := s.fields[field]
		if !ok {
			return "", false
		}
		s.usedRecv = true
		return access(s.recv, f.Name, f.Accessor), true
	}
	if name == ir.ThisName {
		s.usedRecv = true
		return s.recv, true
	}
	if s.params[name] {
		return "", false
	}
	if f, ok := s.fields[name]; ok {
		s.usedRecv = true
		return access(s.recv, f.Name, f.Accessor), true
	}
	return "", false
}
