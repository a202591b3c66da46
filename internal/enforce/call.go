package enforce

import (
	"fmt"
	"reflect"

	"github.com/roach88/covenant/internal/ir"
)

var defaultIDs IDGenerator = UUIDv7Generator{}

// Call is the activation record of one wrapped invocation. It owns the
// invocation's CaptureStore and stamps violations with the invocation ID.
type Call struct {
	Type     string
	Callable string
	ID       string
	Store    *CaptureStore

	missing  *Violation // last failed lookup, reported after evaluation
	detached bool       // handed to a continuation by Then
}

// Enter starts an invocation of typeName.callable (typeName is empty for
// free functions). Generated wrappers call Enter once per invocation and
// defer Exit.
func Enter(typeName, callable string) *Call {
	return enter(defaultIDs, typeName, callable)
}

func enter(ids IDGenerator, typeName, callable string) *Call {
	return &Call{
		Type:     typeName,
		Callable: callable,
		ID:       ids.Generate(),
		Store:    NewCaptureStore(),
	}
}

// Exit discards the invocation's captured values.
func (c *Call) Exit() {
	c.Store.Discard()
}

// Then hands the rest of an asynchronous invocation to a continuation of f.
// The continuation runs as with the package-level Then, and the call exits
// when it returns.
func (c *Call) Then(f *Future, next func(any, error) (any, error)) *Future {
	c.detached = true
	return Then(f, func(v any, err error) (any, error) {
		defer c.Exit()
		return next(v, err)
	})
}

// Release exits the call unless it was handed to a continuation. Generated
// asynchronous wrappers defer it, so a violation raised before the
// implementation starts still discards the captured values.
func (c *Call) Release() {
	if !c.detached {
		c.Exit()
	}
}

// Invariant panics with an InvariantViolation when ok is false.
func (c *Call) Invariant(ok bool, clause, message string) {
	if !ok {
		c.fail(InvariantViolation, clause, message)
	}
}

// Require panics with a PreconditionViolation when ok is false.
func (c *Call) Require(ok bool, clause, message string) {
	if !ok {
		c.fail(PreconditionViolation, clause, message)
	}
}

// Ensure panics with a PostconditionViolation when ok is false.
func (c *Call) Ensure(ok bool, clause, message string) {
	if !ok {
		c.fail(PostconditionViolation, clause, message)
	}
}

// Capture snapshots a field's pre-call value.
func (c *Call) Capture(field string, v any) {
	c.Store.Capture(field, v)
}

// lookup is bound as the lookup function of evaluated conditions.
func (c *Call) lookup(field string) (any, error) {
	v, ok := c.Store.Lookup(field)
	if !ok {
		c.missing = c.violation(MissingCapturedValue, "",
			fmt.Sprintf("no value captured for old(%s)", field))
		return nil, c.missing
	}
	return v, nil
}

// Lookup returns the captured pre-call value of field as a T.
// A field that was never captured panics with MissingCapturedValue.
func Lookup[T any](c *Call, field string) T {
	v, ok := c.Store.Lookup(field)
	if !ok {
		c.fail(MissingCapturedValue, "", fmt.Sprintf("no value captured for old(%s)", field))
	}
	if v == nil {
		var zero T
		return zero
	}
	t, ok := v.(T)
	if !ok {
		c.fail(EvaluationFailure, "", fmt.Sprintf("old(%s) holds %T, not %s", field, v, reflect.TypeFor[T]()))
	}
	return t
}

// Result returns the value an asynchronous implementation resolved with as
// the declared result type T. A value of another type panics with
// EvaluationFailure rather than reaching the postconditions as a zero value.
func Result[T any](c *Call, v any) T {
	if v == nil {
		var zero T
		return zero
	}
	t, ok := v.(T)
	if !ok {
		c.fail(EvaluationFailure, "", fmt.Sprintf("result is %T, not %s", v, reflect.TypeFor[T]()))
	}
	return t
}

func (c *Call) violation(kind ViolationKind, clause, message string) *Violation {
	return &Violation{
		Kind:         kind,
		Type:         c.Type,
		Callable:     c.Callable,
		Message:      message,
		Clause:       clause,
		InvocationID: c.ID,
	}
}

func (c *Call) fail(kind ViolationKind, clause, message string) {
	panic(c.violation(kind, clause, message))
}

// check panics with the violation matching the clause kind when ok is false.
func (c *Call) check(kind ir.ClauseKind, ok bool, clause, message string) {
	if !ok {
		c.fail(kindFor(kind), clause, message)
	}
}
