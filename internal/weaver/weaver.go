// Package weaver assembles enforcement wrapper descriptors from declarations.
//
// Generation is a single synchronous pass. It is best-effort across a
// declaration set: a rejected declaration contributes exactly one error and
// no descriptor, and processing continues with the next declaration.
package weaver

import (
	"log/slog"

	"github.com/roach88/covenant/internal/compiler"
	"github.com/roach88/covenant/internal/expression"
	"github.com/roach88/covenant/internal/ir"
	"github.com/roach88/covenant/internal/signature"
)

// Result is the outcome of one generation run.
type Result struct {
	Descriptors []*ir.Descriptor
	PassThrough []string // qualified names of callables without contracts
	Errors      []*ir.GenerationError
}

// OK reports whether every declaration produced its wrapper.
func (r *Result) OK() bool {
	return len(r.Errors) == 0
}

// Descriptor returns the descriptor with the given qualified public name.
func (r *Result) Descriptor(qualified string) (*ir.Descriptor, bool) {
	for _, d := range r.Descriptors {
		if d.QualifiedName() == qualified {
			return d, true
		}
	}
	return nil, false
}

// Weaver turns declarations into wrapper descriptors.
type Weaver struct {
	logger *slog.Logger
}

// Option configures a Weaver.
type Option func(*Weaver)

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(w *Weaver) {
		w.logger = l
	}
}

// New creates a Weaver. Without options it logs to slog.Default().
func New(opts ...Option) *Weaver {
	w := &Weaver{logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Generate weaves every type and free function of the set.
//
// Output order follows declaration order: types (constructors, then
// methods), then free functions. Generating twice from the same set yields
// identical descriptors.
func (w *Weaver) Generate(set *ir.DeclarationSet) *Result {
	res := &Result{}
	for i := range set.Types {
		w.generateType(res, &set.Types[i])
	}

	names := newNameTable()
	for i := range set.Functions {
		if !set.Functions[i].HasContract() {
			names.claim(set.Functions[i].Name, set.Functions[i].Name)
		}
	}
	for i := range set.Functions {
		w.generateCallable(res, nil, &set.Functions[i], names)
	}

	w.logger.Debug("generation finished",
		"descriptors", len(res.Descriptors),
		"pass_through", len(res.PassThrough),
		"errors", len(res.Errors))
	return res
}

// Generate weaves a declaration set with a default Weaver.
func Generate(set *ir.DeclarationSet) *Result {
	return New().Generate(set)
}

func (w *Weaver) generateType(res *Result, t *ir.ContractedType) {
	if errs := compiler.ValidateTypeShape(t); len(errs) > 0 {
		w.reject(res, errs[0])
		return
	}

	members := t.Members()
	names := newNameTable()
	for i := range members {
		if !members[i].HasContract() {
			names.claim(members[i].Name, members[i].Name)
		}
	}
	for i := range members {
		w.generateCallable(res, t, &members[i], names)
	}
}

func (w *Weaver) generateCallable(res *Result, t *ir.ContractedType, c *ir.ContractedCallable, names *nameTable) {
	typeName := ""
	if t != nil {
		typeName = t.Name
	}
	qualified := ir.QualifiedName(typeName, c.Name)

	if !c.HasContract() {
		w.logger.Debug("pass-through callable, no wrapper", "callable", qualified)
		res.PassThrough = append(res.PassThrough, qualified)
		return
	}

	if errs := compiler.ValidateCallable(t, c); len(errs) > 0 {
		w.reject(res, errs[0])
		return
	}

	public := publicNameOf(c)
	if public == "" {
		w.reject(res, ir.NewPlacementError(ir.RuleInternalImplementation, "",
			"no public name can be derived from %q", c.Name).Locate(typeName, c.Name))
		return
	}
	if prev, ok := names.claim(public, c.Name); !ok {
		w.reject(res, ir.NewGenerationError(ir.ErrDuplicatePublicName, "",
			"%q and %q both map to public name %q", prev, c.Name, public).Locate(typeName, c.Name))
		return
	}

	d, err := plan(t, c, public)
	if err != nil {
		w.reject(res, err.Locate(typeName, c.Name))
		return
	}

	w.logger.Debug("wrapper planned",
		"callable", qualified,
		"public", d.QualifiedName(),
		"steps", len(d.Steps),
		"captures", len(d.Captures))
	res.Descriptors = append(res.Descriptors, d)
}

func (w *Weaver) reject(res *Result, err *ir.GenerationError) {
	w.logger.Debug("declaration rejected",
		"kind", string(err.Kind),
		"code", err.Code(),
		"callable", ir.QualifiedName(err.Type, err.Callable),
		"error", err.Message)
	res.Errors = append(res.Errors, err)
}

// plan builds the ordered enforcement sequence of a validated callable.
func plan(t *ir.ContractedType, c *ir.ContractedCallable, public string) (*ir.Descriptor, *ir.GenerationError) {
	d := &ir.Descriptor{
		Implementation: c.Name,
		PublicName:     public,
		Role:           c.Role,
		Async:          c.Async,
		Result:         c.Result,
		Signature:      signature.Reconstruct(c.Params, c.TypeParams),
	}
	if t != nil {
		d.Type = t.Name
		d.Receiver = t.ReceiverName()
		d.Fields = append([]ir.Field(nil), t.Fields...)
	}

	var invariants []ir.Check
	if t != nil && (c.CheckInvariants || c.Role == ir.RoleConstructor) {
		var err *ir.GenerationError
		if invariants, err = checks(t.Invariants, ir.KindInvariant); err != nil {
			return nil, err
		}
	}
	pre, err := checks(c.Requires, ir.KindPrecondition)
	if err != nil {
		return nil, err
	}
	post, err := checks(c.Ensures, ir.KindPostcondition)
	if err != nil {
		return nil, err
	}

	if c.Role == ir.RoleConstructor {
		// Construction happens first; there is no prior state to capture.
		d.Steps = append(d.Steps, ir.Step{Kind: ir.StepInvoke})
		appendStep(d, ir.StepPreconditions, pre)
		appendStep(d, ir.StepInvariantsAfter, invariants)
		appendStep(d, ir.StepPostconditions, post)
		return d, nil
	}

	captures, err := captureSet(t, c.Ensures)
	if err != nil {
		return nil, err
	}
	d.Captures = captures

	appendStep(d, ir.StepInvariantsBefore, invariants)
	appendStep(d, ir.StepPreconditions, pre)
	if len(captures) > 0 {
		d.Steps = append(d.Steps, ir.Step{Kind: ir.StepCaptureOld})
	}
	d.Steps = append(d.Steps, ir.Step{Kind: ir.StepInvoke})
	appendStep(d, ir.StepPostconditions, post)
	appendStep(d, ir.StepInvariantsAfter, invariants)
	return d, nil
}

func appendStep(d *ir.Descriptor, kind ir.StepKind, cs []ir.Check) {
	if len(cs) == 0 {
		return
	}
	d.Steps = append(d.Steps, ir.Step{Kind: kind, Checks: cs})
}

// checks parses each clause once and records its rewritten form.
func checks(clauses []ir.Clause, kind ir.ClauseKind) ([]ir.Check, *ir.GenerationError) {
	out := make([]ir.Check, 0, len(clauses))
	for _, c := range clauses {
		tree, err := expression.Parse(c.Expr)
		if err != nil {
			return nil, err.(*ir.GenerationError)
		}
		rewritten, err := expression.Rewrite(tree, expression.LookupStrategy{})
		if err != nil {
			return nil, err.(*ir.GenerationError)
		}
		if _, err := expression.Lower(rewritten); err != nil {
			return nil, err.(*ir.GenerationError)
		}
		out = append(out, ir.Check{
			Kind:      kind,
			Source:    c.Expr,
			Rewritten: rewritten.Source,
			Message:   c.Message,
		})
	}
	return out, nil
}

// captureSet returns one capture per distinct old() field across all
// postconditions, in order of first occurrence.
func captureSet(t *ir.ContractedType, ensures []ir.Clause) ([]ir.Capture, *ir.GenerationError) {
	var refs []expression.OldReference
	for _, c := range ensures {
		tree, err := expression.Parse(c.Expr)
		if err != nil {
			return nil, err.(*ir.GenerationError)
		}
		found, err := expression.FindOldReferences(tree)
		if err != nil {
			return nil, err.(*ir.GenerationError)
		}
		refs = append(refs, found...)
	}

	var captures []ir.Capture
	for _, name := range expression.CaptureFields(refs) {
		if t == nil {
			return nil, ir.NewGenerationError(ir.ErrUnknownOldField, "",
				"old(%s) has no enclosing type to resolve against", name)
		}
		f, ok := t.Field(name)
		if !ok {
			return nil, ir.NewGenerationError(ir.ErrUnknownOldField, "",
				"%q is not a readable field of %s", name, t.Name)
		}
		captures = append(captures, ir.Capture{Field: f.Name, Type: f.Type, Accessor: f.Accessor})
	}
	return captures, nil
}
