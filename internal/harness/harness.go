package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/covenant/internal/compiler"
	"github.com/roach88/covenant/internal/enforce"
	"github.com/roach88/covenant/internal/ir"
	"github.com/roach88/covenant/internal/testutil"
	"github.com/roach88/covenant/internal/weaver"
)

// Harness is the scenario execution engine for one run.
type Harness struct {
	logger   *slog.Logger
	ids      *testutil.SequentialIDs
	wrappers map[string]*enforce.Wrapper

	mu      sync.Mutex // guards objects
	objects map[string]*object
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Compile the declarations and weave them
//  2. Compare generation errors against the expected rejections
//  3. Bind every scripted implementation to its wrapper
//  4. Execute steps, checking each expectation
//  5. Evaluate assertions against the trace and final state
//
// A returned error means the scenario itself is broken (bad CUE, a script
// that does not compile, a step naming an unknown wrapper or object).
// Contract outcomes that differ from expectations are reported in
// Result.Errors instead.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids:      testutil.NewSequentialIDs(""),
		wrappers: make(map[string]*enforce.Wrapper),
		objects:  make(map[string]*object),
	}
	for _, opt := range opts {
		opt(h)
	}

	set, err := loadDeclarations(scenario)
	if err != nil {
		return nil, err
	}

	gen := weaver.New(weaver.WithLogger(h.logger)).Generate(set)

	result := NewResult()
	h.checkRejections(scenario.Rejections, gen.Errors, result)

	if err := h.bindAll(scenario.Implementations, gen); err != nil {
		return nil, err
	}

	for name, obj := range scenario.Objects {
		h.objects[name] = newObject(obj.Type, obj.Fields)
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for name, obj := range h.objects {
		result.State[name] = obj.snapshot()
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError("%s", errMsg)
	}
	return result, nil
}

func loadDeclarations(s *Scenario) (*ir.DeclarationSet, error) {
	src, filename := s.Declarations, s.Name+".cue"
	if src == "" {
		data, err := os.ReadFile(s.DeclarationFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read declarations: %w", err)
		}
		src, filename = string(data), s.DeclarationFile
	}

	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	set, err := compiler.CompileDeclarations(v)
	if err != nil {
		return nil, fmt.Errorf("failed to compile declarations: %w", err)
	}
	return set, nil
}

// checkRejections records each generation error and compares them, in
// order, against the expected rejections.
func (h *Harness) checkRejections(want []Rejection, got []*ir.GenerationError, result *Result) {
	for _, e := range got {
		result.addEvent(TraceEvent{
			Type:      EventRejected,
			Call:      ir.QualifiedName(e.Type, e.Callable),
			Violation: string(e.Kind),
			Clause:    e.Clause,
			Message:   e.Message,
		})
	}

	if len(got) != len(want) {
		result.AddError("expected %d generation errors, got %d", len(want), len(got))
		return
	}
	for i, w := range want {
		e := got[i]
		if string(e.Kind) != w.Kind {
			result.AddError("rejection %d: expected kind %s, got %s", i, w.Kind, e.Kind)
		}
		if w.Callable != "" && w.Callable != e.Callable {
			result.AddError("rejection %d: expected callable %q, got %q", i, w.Callable, e.Callable)
		}
		if w.Rule != "" && w.Rule != e.Rule {
			result.AddError("rejection %d: expected rule %q, got %q", i, w.Rule, e.Rule)
		}
	}
}

func (h *Harness) bindAll(scripts map[string]Script, gen *weaver.Result) error {
	for name := range scripts {
		if _, ok := gen.Descriptor(name); !ok {
			return fmt.Errorf("implementation %q: no wrapper with that name", name)
		}
	}

	for _, d := range gen.Descriptors {
		script, ok := scripts[d.QualifiedName()]
		if !ok {
			continue
		}
		impl, err := compileScript(d, script)
		if err != nil {
			return err
		}

		var w *enforce.Wrapper
		if d.Async {
			w, err = enforce.BindAsync(d, func(ctx context.Context, recv enforce.Subject, args enforce.Args) *enforce.Future {
				return enforce.Go(func() (any, error) {
					return h.invoke(impl, recv, args)
				})
			}, enforce.WithIDGenerator(h.ids))
		} else {
			w, err = enforce.Bind(d, func(ctx context.Context, recv enforce.Subject, args enforce.Args) (any, error) {
				return h.invoke(impl, recv, args)
			}, enforce.WithIDGenerator(h.ids))
		}
		if err != nil {
			return err
		}
		h.wrappers[d.QualifiedName()] = w
		h.logger.Debug("bound implementation", "wrapper", d.QualifiedName(), "async", d.Async)
	}
	return nil
}

// scripted is a compiled Script bound to one descriptor.
type scripted struct {
	desc   *ir.Descriptor
	assign []assignment
	result *vm.Program
	fail   string
}

type assignment struct {
	field   string
	program *vm.Program
}

func compileScript(d *ir.Descriptor, s Script) (*scripted, error) {
	impl := &scripted{desc: d, fail: s.Fail}
	for _, field := range sortedKeys(s.Assign) {
		program, err := expr.Compile(s.Assign[field])
		if err != nil {
			return nil, fmt.Errorf("implementation %s: assign %s: %w", d.QualifiedName(), field, err)
		}
		impl.assign = append(impl.assign, assignment{field: field, program: program})
	}
	if s.Result != "" {
		program, err := expr.Compile(s.Result)
		if err != nil {
			return nil, fmt.Errorf("implementation %s: result: %w", d.QualifiedName(), err)
		}
		impl.result = program
	}
	return impl, nil
}

// invoke runs a script. Assignments are evaluated against the state before
// the call and applied together, under the receiver's lock.
func (h *Harness) invoke(impl *scripted, recv enforce.Subject, args enforce.Args) (any, error) {
	if impl.fail != "" {
		return nil, errors.New(impl.fail)
	}

	params := paramsOf(impl.desc, args)
	if impl.desc.Role == ir.RoleConstructor {
		obj := newObject(impl.desc.Type, nil)
		updates, err := impl.evalAssign(params)
		if err != nil {
			return nil, err
		}
		maps.Copy(obj.fields, updates)
		return obj, nil
	}

	obj, _ := recv.(*object)
	if obj == nil {
		return impl.evalResult(params)
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()

	env := maps.Clone(obj.fields)
	maps.Copy(env, params)
	updates, err := impl.evalAssign(env)
	if err != nil {
		return nil, err
	}
	maps.Copy(obj.fields, updates)

	env = maps.Clone(obj.fields)
	maps.Copy(env, params)
	return impl.evalResult(env)
}

func (s *scripted) evalAssign(env map[string]any) (map[string]any, error) {
	updates := make(map[string]any, len(s.assign))
	for _, a := range s.assign {
		v, err := expr.Run(a.program, env)
		if err != nil {
			return nil, fmt.Errorf("assign %s: %w", a.field, err)
		}
		updates[a.field] = v
	}
	return updates, nil
}

func (s *scripted) evalResult(env map[string]any) (any, error) {
	if s.result == nil {
		return nil, nil
	}
	v, err := expr.Run(s.result, env)
	if err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}
	return v, nil
}

// paramsOf names forwarded arguments by their parameter names.
func paramsOf(d *ir.Descriptor, args enforce.Args) map[string]any {
	params := make(map[string]any, len(d.Signature.Forwarding))
	pos := 0
	for _, a := range d.Signature.Forwarding {
		if a.ByName {
			params[a.Name] = args.Named[a.Name]
			continue
		}
		if pos < len(args.Positional) {
			params[a.Name] = args.Positional[pos]
		}
		pos++
	}
	return params
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	if len(step.Concurrent) == 0 {
		ev, err := h.call(ctx, step)
		if err != nil {
			return err
		}
		result.addEvent(ev)
		checkExpect(result, index, step, ev)
		return nil
	}

	events := make([]TraceEvent, len(step.Concurrent))
	g, gctx := errgroup.WithContext(ctx)
	for i, inner := range step.Concurrent {
		g.Go(func() error {
			ev, err := h.call(gctx, inner)
			events[i] = ev
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, ev := range events {
		ev.Group = index + 1
		ev.InvocationID = ""
		result.addEvent(ev)
		checkExpect(result, index, step.Concurrent[i], ev)
	}
	return nil
}

// call performs one wrapper call and describes its outcome.
func (h *Harness) call(ctx context.Context, step Step) (TraceEvent, error) {
	ev := TraceEvent{
		Type:   EventCall,
		Call:   step.Call,
		Object: step.On,
		Args:   canonicalSlice(step.Args),
		Named:  canonicalMap(step.Named),
	}

	w, ok := h.wrappers[step.Call]
	if !ok {
		return ev, fmt.Errorf("no bound wrapper %q", step.Call)
	}

	var recv enforce.Subject
	if step.On != "" {
		obj, ok := h.object(step.On)
		if !ok {
			return ev, fmt.Errorf("unknown object %q", step.On)
		}
		recv = obj
	}

	var out any
	var err error
	violation := enforce.Catch(func() {
		out, err = w.Call(ctx, recv, enforce.Args{Positional: step.Args, Named: step.Named})
	})

	var argErr *enforce.ArgumentError
	switch {
	case violation != nil:
		ev.Outcome = OutcomeViolation
		ev.Violation = string(violation.Kind)
		ev.Clause = violation.Clause
		ev.Message = violation.Message
		ev.InvocationID = violation.InvocationID
	case errors.As(err, &argErr):
		ev.Outcome = OutcomeArgumentError
		ev.Message = argErr.Message
	case err != nil:
		ev.Outcome = OutcomeError
		ev.Message = err.Error()
	default:
		ev.Outcome = OutcomeOK
		if obj, ok := out.(*object); ok {
			if step.Bind != "" {
				h.bindObject(step.Bind, obj)
				ev.Object = step.Bind
			}
		} else {
			ev.Result = canonicalValue(out)
		}
	}

	h.logger.Debug("call finished", "call", step.Call, "object", ev.Object, "outcome", ev.Outcome)
	return ev, nil
}

func (h *Harness) object(name string) (*object, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, ok := h.objects[name]
	return obj, ok
}

func (h *Harness) bindObject(name string, obj *object) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.objects[name] = obj
}

// checkExpect compares a call's outcome against its expectation.
func checkExpect(result *Result, index int, step Step, ev TraceEvent) {
	e := step.Expect
	if e == nil {
		e = &Expect{}
	}
	where := fmt.Sprintf("step %d (%s)", index, step.Call)

	switch {
	case e.Violation != "":
		if ev.Outcome != OutcomeViolation || ev.Violation != e.Violation {
			result.AddError("%s: expected %s, got %s", where, e.Violation, describe(ev))
			return
		}
		if e.Clause != "" && e.Clause != ev.Clause {
			result.AddError("%s: expected failing clause %q, got %q", where, e.Clause, ev.Clause)
		}
	case e.Error != "":
		if ev.Outcome != OutcomeError && ev.Outcome != OutcomeArgumentError {
			result.AddError("%s: expected error containing %q, got %s", where, e.Error, describe(ev))
			return
		}
		if !containsFold(ev.Message, e.Error) {
			result.AddError("%s: expected error containing %q, got %q", where, e.Error, ev.Message)
		}
	default:
		if ev.Outcome != OutcomeOK {
			result.AddError("%s: expected success, got %s", where, describe(ev))
			return
		}
		if e.Result != nil && !equalValues(e.Result, ev.Result) {
			result.AddError("%s: expected result %v, got %v", where, e.Result, ev.Result)
		}
	}
}

func describe(ev TraceEvent) string {
	switch ev.Outcome {
	case OutcomeViolation:
		return fmt.Sprintf("%s (%s)", ev.Violation, ev.Message)
	case OutcomeError, OutcomeArgumentError:
		return fmt.Sprintf("%s %q", ev.Outcome, ev.Message)
	default:
		return ev.Outcome
	}
}
