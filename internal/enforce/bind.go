package enforce

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/roach88/covenant/internal/ir"
)

// Args are the arguments of one call: positional values in declaration
// order and named values by name.
type Args struct {
	Positional []any
	Named      map[string]any
}

// Positional builds Args from positional values only.
func Positional(values ...any) Args {
	return Args{Positional: values}
}

// Func is a synchronous underlying implementation. recv is nil for free
// functions and constructors; args follow the forwarding shape.
type Func func(ctx context.Context, recv Subject, args Args) (any, error)

// AsyncFunc is an underlying implementation that completes later.
type AsyncFunc func(ctx context.Context, recv Subject, args Args) *Future

// Wrapper is an in-memory enforcement wrapper bound to its implementation.
// A Wrapper holds no per-invocation state and is safe for concurrent use.
type Wrapper struct {
	desc     *ir.Descriptor
	fn       Func
	async    AsyncFunc
	steps    []compiledStep
	defaults map[string]*vm.Program
	ids      IDGenerator
}

type compiledStep struct {
	kind   ir.StepKind
	checks []compiledCheck
}

type compiledCheck struct {
	ir.Check
	program *vm.Program
}

// BindOption configures a Wrapper.
type BindOption func(*Wrapper)

// WithIDGenerator sets the invocation ID source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) BindOption {
	return func(w *Wrapper) {
		w.ids = g
	}
}

// Bind compiles a synchronous descriptor's conditions and binds it to fn.
func Bind(d *ir.Descriptor, fn Func, opts ...BindOption) (*Wrapper, error) {
	if d.Async {
		return nil, fmt.Errorf("enforce: %s is asynchronous, use BindAsync", d.QualifiedName())
	}
	return bind(d, fn, nil, opts)
}

// BindAsync compiles an asynchronous descriptor's conditions and binds it to fn.
func BindAsync(d *ir.Descriptor, fn AsyncFunc, opts ...BindOption) (*Wrapper, error) {
	if !d.Async {
		return nil, fmt.Errorf("enforce: %s is synchronous, use Bind", d.QualifiedName())
	}
	return bind(d, nil, fn, opts)
}

func bind(d *ir.Descriptor, fn Func, async AsyncFunc, opts []BindOption) (*Wrapper, error) {
	w := &Wrapper{
		desc:     d,
		fn:       fn,
		async:    async,
		defaults: make(map[string]*vm.Program),
		ids:      defaultIDs,
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, s := range d.Steps {
		cs := compiledStep{kind: s.Kind}
		for _, c := range s.Checks {
			program, err := compile(c.Rewritten, true, expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("enforce: %s: compiling %s %q: %w", d.QualifiedName(), c.Kind, c.Source, err)
			}
			cs.checks = append(cs.checks, compiledCheck{Check: c, program: program})
		}
		w.steps = append(w.steps, cs)
	}

	for _, p := range d.Signature.Declaration {
		if p.Default == "" {
			continue
		}
		program, err := compile(p.Default, false)
		if err != nil {
			return nil, fmt.Errorf("enforce: %s: compiling default of %q: %w", d.QualifiedName(), p.Name, err)
		}
		w.defaults[p.Name] = program
	}
	return w, nil
}

// Descriptor returns the descriptor the wrapper was bound from.
func (w *Wrapper) Descriptor() *ir.Descriptor {
	return w.desc
}

// Call invokes the wrapper and returns the implementation's result.
// Asynchronous wrappers are started and awaited.
//
// Contract failures panic with *Violation. Argument mismatches are returned
// as *ArgumentError, and errors from the implementation are returned as-is.
func (w *Wrapper) Call(ctx context.Context, recv Subject, args Args) (any, error) {
	if w.desc.Async {
		f, err := w.Start(ctx, recv, args)
		if err != nil {
			return nil, err
		}
		return f.Await(ctx)
	}

	inv, err := w.begin(recv, args)
	if err != nil {
		return nil, err
	}
	defer inv.call.Exit()

	before, after := w.split()
	w.run(inv, before, nil)

	result, err := w.fn(ctx, recv, inv.forward)
	if err != nil {
		return nil, err
	}
	if err := inv.settle(w.desc, result); err != nil {
		return nil, err
	}
	w.run(inv, after, result)
	return result, nil
}

// Start runs the checks that precede the invocation, starts the underlying
// asynchronous implementation, and returns a future that performs the
// remaining checks once the implementation's result is available.
// Violations before the invocation panic in the caller; later ones panic in
// the goroutine that awaits.
func (w *Wrapper) Start(ctx context.Context, recv Subject, args Args) (*Future, error) {
	if !w.desc.Async {
		return nil, fmt.Errorf("enforce: %s is synchronous, use Call", w.desc.QualifiedName())
	}

	inv, err := w.begin(recv, args)
	if err != nil {
		return nil, err
	}
	defer inv.call.Release()

	before, after := w.split()
	w.run(inv, before, nil)

	pending := w.async(ctx, recv, inv.forward)
	return inv.call.Then(pending, func(result any, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		if err := inv.settle(w.desc, result); err != nil {
			return nil, err
		}
		w.run(inv, after, result)
		return result, nil
	}), nil
}

// invocation is the state of one call, threaded through its steps.
type invocation struct {
	call    *Call
	subject Subject
	params  map[string]any
	forward Args
}

func (w *Wrapper) begin(recv Subject, args Args) (*invocation, error) {
	if w.desc.Role == ir.RoleMethod && recv == nil {
		return nil, &ArgumentError{Callable: w.desc.QualifiedName(), Message: "method called without a receiver"}
	}
	params, err := w.bindArgs(args)
	if err != nil {
		return nil, err
	}
	return &invocation{
		call:    enter(w.ids, w.desc.Type, w.desc.PublicName),
		subject: recv,
		params:  params,
		forward: w.forwardArgs(params),
	}, nil
}

// settle makes a constructor's result the subject of the remaining checks.
func (inv *invocation) settle(d *ir.Descriptor, result any) error {
	if d.Role != ir.RoleConstructor {
		return nil
	}
	s, ok := result.(Subject)
	if !ok {
		return fmt.Errorf("enforce: constructor %s returned %T, which does not implement Subject", d.QualifiedName(), result)
	}
	inv.subject = s
	return nil
}

// split divides the steps at the invocation.
func (w *Wrapper) split() (before, after []compiledStep) {
	i := slices.IndexFunc(w.steps, func(s compiledStep) bool { return s.kind == ir.StepInvoke })
	if i < 0 {
		return w.steps, nil
	}
	return w.steps[:i], w.steps[i+1:]
}

func (w *Wrapper) run(inv *invocation, steps []compiledStep, result any) {
	for _, s := range steps {
		if s.kind == ir.StepCaptureOld {
			w.capture(inv)
			continue
		}
		if len(s.checks) == 0 {
			continue
		}
		invariants := s.kind == ir.StepInvariantsBefore || s.kind == ir.StepInvariantsAfter
		env := w.env(inv, result, !invariants)
		for _, c := range s.checks {
			inv.call.check(c.Kind, w.eval(inv.call, c, env), c.Source, c.Message)
		}
	}
}

// capture snapshots every old() field. A field the subject cannot produce
// is left out and surfaces as MissingCapturedValue if a postcondition reads it.
func (w *Wrapper) capture(inv *invocation) {
	if inv.subject == nil {
		return
	}
	for _, c := range w.desc.Captures {
		if v, ok := inv.subject.Field(c.Field); ok {
			inv.call.Capture(c.Field, v)
		}
	}
}

// env builds the evaluation scope: fields (also under this), then
// parameters shadowing fields, then result and lookup. Invariants are
// evaluated without parameters.
func (w *Wrapper) env(inv *invocation, result any, withParams bool) map[string]any {
	env := make(map[string]any, len(w.desc.Fields)+len(inv.params)+3)
	this := make(map[string]any, len(w.desc.Fields))
	if inv.subject != nil {
		for _, f := range w.desc.Fields {
			if v, ok := inv.subject.Field(f.Name); ok {
				env[f.Name] = v
				this[f.Name] = v
			}
		}
	}
	if withParams {
		for name, v := range inv.params {
			env[name] = v
		}
	}
	env[ir.ThisName] = this
	env[ir.ResultName] = result
	env[ir.LookupName] = inv.call.lookup
	return env
}

func (w *Wrapper) eval(call *Call, c compiledCheck, env map[string]any) bool {
	call.missing = nil
	out, err := expr.Run(c.program, env)
	if call.missing != nil {
		missing := call.missing
		missing.Clause = c.Source
		panic(missing)
	}
	if err != nil {
		call.fail(EvaluationFailure, c.Source, fmt.Sprintf("evaluating %s: %v", c.Kind, err))
	}
	ok, isBool := out.(bool)
	if !isBool {
		call.fail(EvaluationFailure, c.Source, fmt.Sprintf("%s evaluated to %T, not bool", c.Kind, out))
	}
	return ok
}

// bindArgs matches call arguments to the declaration shape. Positional
// values fill positional parameters in order; named values fill named
// parameters. Omitted optional parameters take their default.
func (w *Wrapper) bindArgs(args Args) (map[string]any, error) {
	name := w.desc.QualifiedName()
	params := make(map[string]any, len(w.desc.Signature.Declaration))
	pos := 0

	for _, p := range w.desc.Signature.Declaration {
		var v any
		var ok bool
		if p.Kind.Named() {
			v, ok = args.Named[p.Name]
		} else if pos < len(args.Positional) {
			v, ok = args.Positional[pos], true
			pos++
		}

		if !ok {
			if !p.Kind.Optional() {
				return nil, &ArgumentError{Callable: name, Message: fmt.Sprintf("missing required argument %q", p.Name)}
			}
			def, err := w.defaultOf(p)
			if err != nil {
				return nil, err
			}
			v = def
		}
		params[p.Name] = v
	}

	if pos < len(args.Positional) {
		return nil, &ArgumentError{Callable: name, Message: fmt.Sprintf("%d positional arguments given, %d accepted", len(args.Positional), pos)}
	}
	for k := range args.Named {
		p, found := w.param(k)
		if !found || !p.Kind.Named() {
			return nil, &ArgumentError{Callable: name, Message: fmt.Sprintf("unexpected named argument %q", k)}
		}
	}
	return params, nil
}

func (w *Wrapper) param(name string) (ir.Param, bool) {
	for _, p := range w.desc.Signature.Declaration {
		if p.Name == name {
			return p, true
		}
	}
	return ir.Param{}, false
}

func (w *Wrapper) defaultOf(p ir.Param) (any, error) {
	program, ok := w.defaults[p.Name]
	if !ok {
		return nil, nil
	}
	v, err := expr.Run(program, nil)
	if err != nil {
		return nil, errors.Join(&ArgumentError{
			Callable: w.desc.QualifiedName(),
			Message:  fmt.Sprintf("default of %q failed", p.Name),
		}, err)
	}
	return v, nil
}

// forwardArgs arranges bound parameters in the forwarding shape.
func (w *Wrapper) forwardArgs(params map[string]any) Args {
	var out Args
	for _, a := range w.desc.Signature.Forwarding {
		if a.ByName {
			if out.Named == nil {
				out.Named = make(map[string]any)
			}
			out.Named[a.Name] = params[a.Name]
			continue
		}
		out.Positional = append(out.Positional, params[a.Name])
	}
	return out
}
