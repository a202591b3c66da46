package compiler

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/covenant/internal/expression"
	"github.com/roach88/covenant/internal/ir"
)

// Validate checks every declaration in the set against the placement rules.
// Returns all errors found (does not fail-fast), in declaration order, where
// generation stops at the first error of each callable.
// Callables without contracts are not checked.
func Validate(set *ir.DeclarationSet) []*ir.GenerationError {
	var errs []*ir.GenerationError
	for i := range set.Types {
		errs = append(errs, validateType(&set.Types[i])...)
	}
	for i := range set.Functions {
		errs = append(errs, ValidateCallable(nil, &set.Functions[i])...)
	}
	return errs
}

// validateType checks a type's own declarations (fields, invariants, member
// names) followed by each of its contract-bearing members.
func validateType(t *ir.ContractedType) []*ir.GenerationError {
	errs := ValidateTypeShape(t)
	for _, m := range t.Members() {
		errs = append(errs, ValidateCallable(t, &m)...)
	}
	return errs
}

// ValidateTypeShape checks only the type-level declarations. An error here
// invalidates every wrapper of the type.
func ValidateTypeShape(t *ir.ContractedType) []*ir.GenerationError {
	var errs []*ir.GenerationError
	add := func(e *ir.GenerationError) {
		errs = append(errs, e.Locate(t.Name, ""))
	}

	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		switch {
		case ir.ReservedNames[f.Name]:
			add(ir.NewPlacementError(ir.RuleReservedName, "", "field %q uses a reserved name", f.Name))
		case seen[f.Name]:
			add(ir.NewPlacementError(ir.RuleDuplicateMember, "", "field %q is declared twice", f.Name))
		}
		seen[f.Name] = true
	}

	members := make(map[string]bool)
	for _, m := range t.Members() {
		if members[m.Name] {
			add(ir.NewPlacementError(ir.RuleDuplicateMember, "", "member %q is declared twice", m.Name))
		}
		members[m.Name] = true
	}

	for _, c := range t.Invariants {
		if e := checkBeforeCall(c, ir.KindInvariant); e != nil {
			add(e)
		}
	}
	return errs
}

// ValidateCallable checks one callable. t is the enclosing type, or nil for
// a free function. Returns nil for callables without contracts.
func ValidateCallable(t *ir.ContractedType, c *ir.ContractedCallable) []*ir.GenerationError {
	if !c.HasContract() {
		return nil
	}

	typeName := ""
	if t != nil {
		typeName = t.Name
	}
	var errs []*ir.GenerationError
	add := func(e *ir.GenerationError) {
		errs = append(errs, e.Locate(typeName, c.Name))
	}

	if len(c.Invariants) > 0 {
		add(ir.NewPlacementError(ir.RuleInvariantPlacement, c.Invariants[0].Expr,
			"invariants belong on a type, not on %s %q", c.Role, c.Name))
	}
	if t == nil && c.CheckInvariants {
		add(ir.NewPlacementError(ir.RuleInvariantOnFunction, "",
			"free function %q has no type invariants to check", c.Name))
	}
	if e := checkInternalName(c); e != nil {
		add(e)
	}
	for _, e := range checkParams(c) {
		add(e)
	}

	for _, clause := range c.Requires {
		if e := checkBeforeCall(clause, ir.KindPrecondition); e != nil {
			add(e)
		}
	}
	for _, clause := range c.Ensures {
		if e := checkPostcondition(t, c, clause); e != nil {
			add(e)
		}
	}
	return errs
}

// checkInternalName requires an internal implementation distinct from the
// generated public entry point.
func checkInternalName(c *ir.ContractedCallable) *ir.GenerationError {
	if c.PublicName != "" {
		if c.PublicName == c.Name {
			return ir.NewPlacementError(ir.RuleInternalImplementation, "",
				"public name %q is the internal name itself", c.PublicName)
		}
		return nil
	}
	r, _ := utf8.DecodeRuneInString(c.Name)
	if r != '_' && !unicode.IsLower(r) {
		return ir.NewPlacementError(ir.RuleInternalImplementation, "",
			"%q is already public and has no internal counterpart", c.Name)
	}
	return nil
}

func checkParams(c *ir.ContractedCallable) []*ir.GenerationError {
	var errs []*ir.GenerationError
	seen := make(map[string]bool, len(c.Params))

	for i, p := range c.Params {
		switch {
		case p.Name == "":
			errs = append(errs, ir.NewPlacementError(ir.RuleInvalidParameter, "",
				"parameter %d has no name", i))
		case ir.ReservedNames[p.Name]:
			errs = append(errs, ir.NewPlacementError(ir.RuleReservedName, "",
				"parameter %q uses a reserved name", p.Name))
		case seen[p.Name]:
			errs = append(errs, ir.NewPlacementError(ir.RuleInvalidParameter, "",
				"parameter %q is declared twice", p.Name))
		case !ir.ValidParamKinds[p.Kind]:
			errs = append(errs, ir.NewPlacementError(ir.RuleInvalidParameter, "",
				"parameter %q has unknown kind %q", p.Name, p.Kind))
		case p.Default != "" && !p.Kind.Optional():
			errs = append(errs, ir.NewPlacementError(ir.RuleInvalidParameter, "",
				"required parameter %q cannot declare a default", p.Name))
		case p.Default != "":
			if e := checkDefault(p); e != nil {
				errs = append(errs, e)
			}
		}
		seen[p.Name] = true
	}
	return errs
}

// checkDefault requires a default to be a self-contained value expression.
func checkDefault(p ir.Param) *ir.GenerationError {
	tree, err := expression.ParseValue(p.Default)
	if err == nil {
		_, err = expression.Lower(tree)
	}
	if err != nil {
		ge := err.(*ir.GenerationError)
		ge.Message = fmt.Sprintf("default of %q: %s", p.Name, ge.Message)
		return ge
	}
	return nil
}

// checkBeforeCall validates an invariant or precondition: neither old() nor
// the result exists before the call.
func checkBeforeCall(c ir.Clause, kind ir.ClauseKind) *ir.GenerationError {
	tree, err := parseClause(c)
	if err != nil {
		return err
	}
	if expression.HasOld(tree) {
		return ir.NewPlacementError(ir.RuleOldOutsidePost, c.Expr,
			"old() is only available in postconditions, found in %s", kind)
	}
	if expression.Uses(tree, ir.ResultName) {
		return ir.NewPlacementError(ir.RuleResultWithoutValue, c.Expr,
			"%q is only bound in postconditions, found in %s", ir.ResultName, kind)
	}
	return nil
}

func checkPostcondition(t *ir.ContractedType, c *ir.ContractedCallable, clause ir.Clause) *ir.GenerationError {
	tree, err := parseClause(clause)
	if err != nil {
		return err
	}

	refs, findErr := expression.FindOldReferences(tree)
	if findErr != nil {
		return findErr.(*ir.GenerationError)
	}
	if len(refs) > 0 && c.Role == ir.RoleConstructor {
		return ir.NewPlacementError(ir.RuleOldInConstructor, clause.Expr,
			"constructor %q has no prior state for old()", c.Name)
	}
	for _, ref := range refs {
		if t == nil {
			e := ir.NewGenerationError(ir.ErrUnknownOldField, clause.Expr,
				"old(%s) has no enclosing type to resolve against", ref.Field)
			e.Offset = ref.Offset
			return e
		}
		if _, ok := t.Field(ref.Field); !ok {
			e := ir.NewGenerationError(ir.ErrUnknownOldField, clause.Expr,
				"%q is not a readable field of %s", ref.Field, t.Name)
			e.Offset = ref.Offset
			return e
		}
	}

	if c.Result == "" && expression.Uses(tree, ir.ResultName) {
		return ir.NewPlacementError(ir.RuleResultWithoutValue, clause.Expr,
			"%q is referenced but %q returns no value", ir.ResultName, c.Name)
	}
	return nil
}

// parseClause parses a condition, rejects reserved names used as plain
// identifiers, and rejects constructs the runtime cannot evaluate.
func parseClause(c ir.Clause) (*expression.Tree, *ir.GenerationError) {
	tree, err := expression.Parse(c.Expr)
	if err != nil {
		return nil, err.(*ir.GenerationError)
	}
	if _, err := expression.Lower(tree); err != nil {
		return nil, err.(*ir.GenerationError)
	}
	for _, name := range []string{ir.OldName, ir.LookupName} {
		if expression.Uses(tree, name) {
			return nil, ir.NewPlacementError(ir.RuleReservedName, c.Expr,
				"%q is reserved and cannot be used as a value", name)
		}
	}
	return tree, nil
}
