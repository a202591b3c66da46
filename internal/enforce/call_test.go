package enforce

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/covenant/internal/ir"
	"github.com/roach88/covenant/internal/testutil"
)

func TestCallChecks(t *testing.T) {
	call := enter(testutil.FixedID("call-7"), "Counter", "Decrement")

	assert.Nil(t, Catch(func() {
		call.Invariant(true, "count >= 0", "ok")
		call.Require(true, "count > 0", "ok")
		call.Ensure(true, "count >= 0", "ok")
	}))

	tests := []struct {
		kind ViolationKind
		fn   func()
	}{
		{InvariantViolation, func() { call.Invariant(false, "count >= 0", "negative") }},
		{PreconditionViolation, func() { call.Require(false, "count > 0", "zero") }},
		{PostconditionViolation, func() { call.Ensure(false, "count == old(count) - 1", "not decremented") }},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			v := Catch(tt.fn)
			require.NotNil(t, v)
			assert.Equal(t, tt.kind, v.Kind)
			assert.Equal(t, "call-7", v.InvocationID)
			assert.Equal(t, "Decrement", v.Callable)
		})
	}
}

func TestLookupAfterCapture(t *testing.T) {
	call := Enter("Ledger", "Add")
	call.Capture("total", 10)
	call.Capture("entries", []int{1, 2})

	assert.Equal(t, 10, Lookup[int](call, "total"))
	assert.Equal(t, []int{1, 2}, Lookup[[]int](call, "entries"))
	assert.NotEmpty(t, call.ID)
}

func TestLookupFailures(t *testing.T) {
	call := Enter("Ledger", "Add")
	call.Capture("total", 10)

	v := Catch(func() { Lookup[string](call, "total") })
	require.NotNil(t, v)
	assert.Equal(t, EvaluationFailure, v.Kind)

	v = Catch(func() { Lookup[int](call, "count") })
	require.NotNil(t, v)
	assert.Equal(t, MissingCapturedValue, v.Kind)
	assert.Contains(t, v.Message, "old(count)")

	call.Exit()
	v = Catch(func() { Lookup[int](call, "total") })
	require.NotNil(t, v)
	assert.Equal(t, MissingCapturedValue, v.Kind, "captures do not outlive the call")
}

func TestLookupNilCapture(t *testing.T) {
	call := Enter("", "Clamp")
	call.Capture("items", nil)
	assert.Nil(t, Lookup[[]int](call, "items"))
}

func TestViolationError(t *testing.T) {
	v := &Violation{
		Kind:     PostconditionViolation,
		Type:     "Ledger",
		Callable: "Add",
		Message:  "total grows by amount",
		Clause:   "result == old(total) + amount",
	}
	assert.Equal(t,
		`PostconditionViolation in Ledger.Add: total grows by amount [clause "result == old(total) + amount"]`,
		v.Error())

	free := &Violation{Kind: PreconditionViolation, Callable: "Clamp", Message: "x required"}
	assert.Equal(t, "PreconditionViolation in Clamp: x required", free.Error())
}

func TestIsViolation(t *testing.T) {
	v := &Violation{Kind: InvariantViolation, Callable: "Add"}
	wrapped := fmt.Errorf("during replay: %w", v)

	assert.True(t, IsViolation(wrapped, InvariantViolation))
	assert.False(t, IsViolation(wrapped, PreconditionViolation))
	assert.False(t, IsViolation(errors.New("plain"), InvariantViolation))
}

func TestCatchPropagatesOtherPanics(t *testing.T) {
	assert.PanicsWithValue(t, "not a violation", func() {
		Catch(func() { panic("not a violation") })
	})
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, InvariantViolation, kindFor(ir.KindInvariant))
	assert.Equal(t, PreconditionViolation, kindFor(ir.KindPrecondition))
	assert.Equal(t, PostconditionViolation, kindFor(ir.KindPostcondition))
}
