// Package signature reconstructs a callable's parameter contract for its
// enforcement wrapper.
//
// Reconstruction is purely structural and cannot fail. The declaration shape
// orders parameters the way a wrapper declares them; the forwarding shape is
// the argument list used to reach the underlying implementation.
package signature

import (
	"strings"

	"github.com/roach88/covenant/internal/ir"
)

// Reconstruct builds the declaration and forwarding shapes of params.
//
// Declaration shape: required positional parameters, then optional
// positional ones, then named ones, each group in declared order with
// defaults kept. Forwarding shape: every parameter in declared order,
// positional parameters by position and named parameters by name.
// Type parameters are copied verbatim.
func Reconstruct(params []ir.Param, typeParams []ir.TypeParam) ir.Signature {
	sig := ir.Signature{
		Declaration: make([]ir.Param, 0, len(params)),
		Forwarding:  make([]ir.Argument, 0, len(params)),
	}

	for _, group := range []func(ir.ParamKind) bool{
		func(k ir.ParamKind) bool { return k == ir.RequiredPositional },
		func(k ir.ParamKind) bool { return k == ir.OptionalPositional },
		ir.ParamKind.Named,
	} {
		for _, p := range params {
			if group(p.Kind) {
				sig.Declaration = append(sig.Declaration, p)
			}
		}
	}

	for _, p := range params {
		sig.Forwarding = append(sig.Forwarding, ir.Argument{Name: p.Name, ByName: p.Kind.Named()})
	}

	if len(typeParams) > 0 {
		sig.TypeParams = append([]ir.TypeParam(nil), typeParams...)
	}
	return sig
}

// GoParams renders the declaration shape as a Go parameter list.
// Go has neither named nor optional parameters, so every parameter becomes
// an ordinary positional one in declaration-shape order.
func GoParams(sig ir.Signature) string {
	parts := make([]string, len(sig.Declaration))
	for i, p := range sig.Declaration {
		parts[i] = p.Name + " " + p.Type
	}
	return strings.Join(parts, ", ")
}

// GoArgs renders the forwarding shape as a Go argument list.
func GoArgs(sig ir.Signature) string {
	parts := make([]string, len(sig.Forwarding))
	for i, a := range sig.Forwarding {
		parts[i] = a.Name
	}
	return strings.Join(parts, ", ")
}

// GoTypeParams renders "[T any, K comparable]", or "" without type parameters.
func GoTypeParams(sig ir.Signature) string {
	if len(sig.TypeParams) == 0 {
		return ""
	}
	parts := make([]string, len(sig.TypeParams))
	for i, tp := range sig.TypeParams {
		constraint := tp.Constraint
		if constraint == "" {
			constraint = "any"
		}
		parts[i] = tp.Name + " " + constraint
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// GoTypeArgs renders the instantiation "[T, K]", or "" without type parameters.
func GoTypeArgs(sig ir.Signature) string {
	if len(sig.TypeParams) == 0 {
		return ""
	}
	names := make([]string, len(sig.TypeParams))
	for i, tp := range sig.TypeParams {
		names[i] = tp.Name
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// Describe renders the declaration shape in a language-neutral form used in
// diagnostics and generated doc comments, e.g. "(a int, b int = 1, *, c string)".
func Describe(sig ir.Signature) string {
	var b strings.Builder
	b.WriteByte('(')
	namedStarted := false
	for i, p := range sig.Declaration {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.Kind.Named() && !namedStarted {
			b.WriteString("*, ")
			namedStarted = true
		}
		b.WriteString(p.Name)
		if p.Type != "" {
			b.WriteString(" " + p.Type)
		}
		if p.Kind.Optional() && p.Default != "" {
			b.WriteString(" = " + p.Default)
		}
	}
	b.WriteByte(')')
	return b.String()
}
