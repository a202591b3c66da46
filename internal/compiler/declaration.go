package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/covenant/internal/ir"
)

// CompileType parses a CUE value into a ContractedType.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the type struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`type: Account: { fields: balance: "int" }`)
//	typ, err := CompileType(v.LookupPath(cue.ParsePath("type.Account")))
//
// Struct iteration follows CUE declaration order, so fields, clauses, and
// members keep the order they were written in.
func CompileType(v cue.Value) (*ir.ContractedType, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	typ := &ir.ContractedType{Name: labelOf(v)}

	var err error
	if typ.Receiver, err = optionalString(v, "receiver"); err != nil {
		return nil, err
	}
	if typ.Fields, err = parseFields(v); err != nil {
		return nil, err
	}
	if typ.Invariants, err = parseClauses(v, "invariants"); err != nil {
		return nil, err
	}
	if typ.Constructors, err = parseCallables(v, "constructors", ir.RoleConstructor); err != nil {
		return nil, err
	}
	if typ.Callables, err = parseCallables(v, "methods", ir.RoleMethod); err != nil {
		return nil, err
	}

	return typ, nil
}

// CompileFunction parses a CUE value into a free-function ContractedCallable.
func CompileFunction(v cue.Value) (*ir.ContractedCallable, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	c, err := parseCallable(v, labelOf(v), ir.RoleFunction)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CompileDeclarations parses every type under "type" and every function
// under "function". Stops at the first error.
func CompileDeclarations(v cue.Value) (*ir.DeclarationSet, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	set := &ir.DeclarationSet{}
	if err := eachField(v, "type", func(item cue.Value) error {
		typ, err := CompileType(item)
		if err != nil {
			return err
		}
		set.Types = append(set.Types, *typ)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachField(v, "function", func(item cue.Value) error {
		fn, err := CompileFunction(item)
		if err != nil {
			return err
		}
		set.Functions = append(set.Functions, *fn)
		return nil
	}); err != nil {
		return nil, err
	}

	return set, nil
}

func eachField(v cue.Value, path string, fn func(cue.Value) error) error {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return nil
	}
	iter, err := val.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// parseFields reads the field set. A field is either a type string or a
// struct { type: string, accessor: bool }.
func parseFields(v cue.Value) ([]ir.Field, error) {
	var fields []ir.Field

	err := eachField(v, "fields", func(fv cue.Value) error {
		f := ir.Field{Name: labelOf(fv)}

		if s, err := fv.String(); err == nil {
			f.Type = s
			fields = append(fields, f)
			return nil
		}

		typeName, err := requiredString(fv, "type", fmt.Sprintf("fields.%s.type", f.Name))
		if err != nil {
			return err
		}
		f.Type = typeName

		if f.Accessor, err = optionalBool(fv, "accessor"); err != nil {
			return err
		}
		fields = append(fields, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}

// parseCallables reads a struct of callables keyed by internal name.
func parseCallables(v cue.Value, path string, role ir.Role) ([]ir.ContractedCallable, error) {
	var callables []ir.ContractedCallable

	err := eachField(v, path, func(cv cue.Value) error {
		c, err := parseCallable(cv, labelOf(cv), role)
		if err != nil {
			return err
		}
		callables = append(callables, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return callables, nil
}

func parseCallable(v cue.Value, name string, role ir.Role) (ir.ContractedCallable, error) {
	c := ir.ContractedCallable{Name: name, Role: role}

	var err error
	if c.PublicName, err = optionalString(v, "public_name"); err != nil {
		return c, err
	}
	if c.Result, err = optionalString(v, "result"); err != nil {
		return c, err
	}
	if c.Async, err = optionalBool(v, "async"); err != nil {
		return c, err
	}
	if c.CheckInvariants, err = optionalBool(v, "check_invariants"); err != nil {
		return c, err
	}
	if c.Params, err = parseParams(v); err != nil {
		return c, err
	}
	if c.TypeParams, err = parseTypeParams(v); err != nil {
		return c, err
	}
	if c.Requires, err = parseClauses(v, "requires"); err != nil {
		return c, err
	}
	if c.Ensures, err = parseClauses(v, "ensures"); err != nil {
		return c, err
	}
	// Accepted here so that the validator can reject the placement with a
	// proper ContractPlacementError instead of a decode failure.
	if c.Invariants, err = parseClauses(v, "invariants"); err != nil {
		return c, err
	}

	return c, nil
}

// parseParams reads the ordered parameter list. Kind defaults to
// required_positional; unknown kinds are left for the validator.
func parseParams(v cue.Value) ([]ir.Param, error) {
	listVal := v.LookupPath(cue.ParsePath("params"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var params []ir.Param
	for i := 0; iter.Next(); i++ {
		pv := iter.Value()
		field := fmt.Sprintf("params[%d]", i)

		name, err := requiredString(pv, "name", field+".name")
		if err != nil {
			return nil, err
		}
		typeName, err := requiredString(pv, "type", field+".type")
		if err != nil {
			return nil, err
		}
		kind, err := optionalString(pv, "kind")
		if err != nil {
			return nil, err
		}
		if kind == "" {
			kind = string(ir.RequiredPositional)
		}
		def, err := optionalString(pv, "default")
		if err != nil {
			return nil, err
		}

		params = append(params, ir.Param{Name: name, Type: typeName, Kind: ir.ParamKind(kind), Default: def})
	}
	return params, nil
}

func parseTypeParams(v cue.Value) ([]ir.TypeParam, error) {
	listVal := v.LookupPath(cue.ParsePath("type_params"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var tps []ir.TypeParam
	for i := 0; iter.Next(); i++ {
		tv := iter.Value()
		name, err := requiredString(tv, "name", fmt.Sprintf("type_params[%d].name", i))
		if err != nil {
			return nil, err
		}
		constraint, err := optionalString(tv, "constraint")
		if err != nil {
			return nil, err
		}
		if constraint == "" {
			constraint = "any"
		}
		tps = append(tps, ir.TypeParam{Name: name, Constraint: constraint})
	}
	return tps, nil
}

// parseClauses reads a list of clauses. Each entry is either a condition
// string (its own message) or a struct { expr: string, message: string }.
func parseClauses(v cue.Value, path string) ([]ir.Clause, error) {
	listVal := v.LookupPath(cue.ParsePath(path))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var clauses []ir.Clause
	for i := 0; iter.Next(); i++ {
		cv := iter.Value()

		if s, err := cv.String(); err == nil {
			clauses = append(clauses, ir.Clause{Expr: s, Message: s})
			continue
		}

		expr, err := requiredString(cv, "expr", fmt.Sprintf("%s[%d].expr", path, i))
		if err != nil {
			return nil, err
		}
		msg, err := optionalString(cv, "message")
		if err != nil {
			return nil, err
		}
		if msg == "" {
			msg = expr
		}
		clauses = append(clauses, ir.Clause{Expr: expr, Message: msg})
	}
	return clauses, nil
}

func labelOf(v cue.Value) string {
	labels := v.Path().Selectors()
	if len(labels) == 0 {
		return ""
	}
	sel := labels[len(labels)-1]
	if sel.LabelType() == cue.StringLabel {
		// "_deposit" must be quoted in CUE to stay a regular field
		return sel.Unquoted()
	}
	return sel.String()
}

func requiredString(v cue.Value, path, field string) (string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: "is required",
			Pos:     v.Pos(),
		}
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return "", nil
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, path string) (bool, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return false, nil
	}
	b, err := val.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
