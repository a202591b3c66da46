package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accountDecls = `
declarations: |
  type: Account: {
    fields: balance: "int"
    invariants: [{expr: "balance >= 0", message: "balance must not go negative"}]
    methods: {
      deposit: {
        params: [{name: "amount", type: "int"}]
        result: "int"
        check_invariants: true
        requires: [{expr: "amount > 0", message: "amount must be positive"}]
        ensures: ["result == old(balance) + amount"]
      }
      withdraw: {
        params: [{name: "amount", type: "int"}]
        result: "int"
        check_invariants: true
        requires: ["amount > 0"]
      }
    }
  }
`

func parse(t *testing.T, body string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(body))
	require.NoError(t, err)
	return scenario
}

func runScenario(t *testing.T, body string) *Result {
	t.Helper()
	result, err := Run(context.Background(), parse(t, body))
	require.NoError(t, err)
	return result
}

func TestRun_MinimalScenario(t *testing.T) {
	result := runScenario(t, minimalScenario)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	ev := result.Trace[0]
	assert.Equal(t, int64(1), ev.Seq)
	assert.Equal(t, EventCall, ev.Type)
	assert.Equal(t, "Twice", ev.Call)
	assert.Equal(t, OutcomeOK, ev.Outcome)
	assert.Equal(t, int64(42), ev.Result)
	assert.Equal(t, []any{int64(21)}, ev.Args)
}

func TestRun_ResultMismatch(t *testing.T) {
	result := runScenario(t, strings.Replace(minimalScenario, "result: 42", "result: 41", 1))

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected result 41, got 42")
}

func TestRun_PreconditionViolationRecorded(t *testing.T) {
	result := runScenario(t, `
name: deposit_zero
description: "zero deposit is refused"
`+accountDecls+`
objects:
  acct: { type: Account, fields: { balance: 100 } }
implementations:
  Account.Deposit:
    assign: { balance: "balance + amount" }
    result: "balance"
steps:
  - call: Account.Deposit
    on: acct
    args: [0]
    expect: { violation: PreconditionViolation, clause: "amount > 0" }
`)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	ev := result.Trace[0]
	assert.Equal(t, OutcomeViolation, ev.Outcome)
	assert.Equal(t, "PreconditionViolation", ev.Violation)
	assert.Equal(t, "amount must be positive", ev.Message)
	assert.Equal(t, "inv-1", ev.InvocationID)
	assert.Equal(t, map[string]any{"balance": int64(100)}, result.State["acct"])
}

func TestRun_UnexpectedViolationFails(t *testing.T) {
	result := runScenario(t, `
name: unexpected
description: "success expected but the precondition fails"
`+accountDecls+`
objects:
  acct: { type: Account, fields: { balance: 100 } }
implementations:
  Account.Deposit:
    result: "balance"
steps:
  - call: Account.Deposit
    on: acct
    args: [-5]
`)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected success, got PreconditionViolation")
}

func TestRun_InvariantViolatedOnReturn(t *testing.T) {
	result := runScenario(t, `
name: overdraw
description: "withdrawing past zero leaves the invariant broken"
`+accountDecls+`
objects:
  acct: { type: Account, fields: { balance: 10 } }
implementations:
  Account.Withdraw:
    assign: { balance: "balance - amount" }
    result: "balance"
steps:
  - call: Account.Withdraw
    on: acct
    args: [4]
    expect: { result: 6 }
  - call: Account.Withdraw
    on: acct
    args: [7]
    expect: { violation: InvariantViolation }
`)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "balance must not go negative", result.Trace[1].Message)
	assert.Equal(t, map[string]any{"balance": int64(-1)}, result.State["acct"])
}

func TestRun_ImplementationError(t *testing.T) {
	result := runScenario(t, `
name: closed
description: "implementation errors pass through unchanged"
`+accountDecls+`
objects:
  acct: { type: Account, fields: { balance: 10 } }
implementations:
  Account.Deposit:
    fail: "account is closed"
steps:
  - call: Account.Deposit
    on: acct
    args: [5]
    expect: { error: "closed" }
`)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, OutcomeError, result.Trace[0].Outcome)
	assert.Equal(t, "account is closed", result.Trace[0].Message)
}

func TestRun_MethodWithoutReceiver(t *testing.T) {
	result := runScenario(t, `
name: no_receiver
description: "a method called without its object"
`+accountDecls+`
implementations:
  Account.Deposit:
    result: "1"
steps:
  - call: Account.Deposit
    args: [5]
    expect: { error: "without a receiver" }
`)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, OutcomeArgumentError, result.Trace[0].Outcome)
}

func TestRun_DuplicatePublicNameRejected(t *testing.T) {
	body := `
name: duplicate
description: "two members claim Add"
declarations: |
  type: Ledger: {
    fields: total: "int"
    methods: {
      add: { params: [{name: "n", type: "int"}], result: "int", requires: ["n > 0"] }
      "_add": { params: [{name: "n", type: "int"}], result: "int", requires: ["n > 1"] }
    }
  }
objects:
  l: { type: Ledger, fields: { total: 0 } }
implementations:
  Ledger.Add:
    result: "n"
rejections:
  - kind: DuplicatePublicName
    callable: _add
steps:
  - call: Ledger.Add
    on: l
    args: [1]
    expect: { result: 1 }
`
	result := runScenario(t, body)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, EventRejected, result.Trace[0].Type)
	assert.Equal(t, "Ledger._add", result.Trace[0].Call)
	assert.Equal(t, "DuplicatePublicName", result.Trace[0].Violation)
	// the first claimant keeps the name: n > 1 would have refused 1
	assert.Equal(t, OutcomeOK, result.Trace[1].Outcome)

	unexpected := runScenario(t, strings.Replace(body, "rejections:\n  - kind: DuplicatePublicName\n    callable: _add\n", "", 1))
	assert.False(t, unexpected.Pass)
	assert.Contains(t, unexpected.Errors, "expected 0 generation errors, got 1")
}

func TestRun_RejectionKindMismatch(t *testing.T) {
	result := runScenario(t, `
name: wrong_kind
description: "expected rejection of another kind"
declarations: |
  function: f: { result: "int", requires: ["old(x) > 0"] }
rejections:
  - kind: InvalidOldOperand
`)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected kind InvalidOldOperand, got ContractPlacementError")
}

func TestRun_ScenarioErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "unknown wrapper",
			body: strings.Replace(minimalScenario, "- call: Twice", "- call: Thrice", 1),
			wantErr: `no bound wrapper "Thrice"`,
		},
		{
			name: "implementation for unknown wrapper",
			body: strings.Replace(minimalScenario, "  Twice:\n", "  Thrice:\n", 1),
			wantErr: `implementation "Thrice": no wrapper with that name`,
		},
		{
			name: "script does not compile",
			body: strings.Replace(minimalScenario, `result: "x * 2"`, `result: "x *"`, 1),
			wantErr: "implementation Twice: result",
		},
		{
			name: "bad CUE",
			body: strings.Replace(minimalScenario, "function: twice: {", "function: twice: {{", 1),
			wantErr: "failed to compile declarations",
		},
		{
			name: "unknown object",
			body: `
name: ghost
description: "calls a method on an undefined object"
` + accountDecls + `
implementations:
  Account.Deposit:
    result: "1"
steps:
  - call: Account.Deposit
    on: ghost
    args: [1]
`,
			wantErr: `unknown object "ghost"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), parse(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_ConstructorBindsObject(t *testing.T) {
	result := runScenario(t, `
name: construct
description: "constructor checks run against the new object"
declarations: |
  type: Box: {
    fields: size: "int"
    invariants: ["size <= 10"]
    constructors: newBox: {
      params: [{name: "size", type: "int"}]
      result: "*Box"
      requires: ["size >= 0"]
    }
  }
implementations:
  Box.NewBox:
    assign: { size: "size" }
steps:
  - call: Box.NewBox
    args: [3]
    bind: small
  - call: Box.NewBox
    args: [30]
    bind: big
    expect: { violation: InvariantViolation }
`)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "small", result.Trace[0].Object)
	assert.Nil(t, result.Trace[0].Result)
	assert.Equal(t, map[string]any{"size": int64(3)}, result.State["small"])
	_, bound := result.State["big"]
	assert.False(t, bound, "a constructor that fails its checks binds nothing")
}

func TestRun_ConcurrentCallsCaptureIndependently(t *testing.T) {
	var objects, calls strings.Builder
	for i := range 16 {
		fmt.Fprintf(&objects, "  o%d: { type: Account, fields: { balance: %d } }\n", i, i*100)
		fmt.Fprintf(&calls, "      - { call: Account.Deposit, on: o%d, args: [%d], expect: { result: %d } }\n", i, i+1, i*100+i+1)
	}

	result := runScenario(t, `
name: concurrent
description: "each call sees its own old(balance)"
`+accountDecls+`
objects:
`+objects.String()+`
implementations:
  Account.Deposit:
    assign: { balance: "balance + amount" }
    result: "balance"
steps:
  - concurrent:
`+calls.String())

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 16)
	for i, ev := range result.Trace {
		assert.Equal(t, fmt.Sprintf("o%d", i), ev.Object)
		assert.Equal(t, 1, ev.Group)
		assert.Empty(t, ev.InvocationID)
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/async_and_arguments.yaml")
	require.NoError(t, err)

	var traces [][]byte
	for range 3 {
		result, err := Run(context.Background(), scenario)
		require.NoError(t, err)
		data, err := MarshalTrace(scenario.Name, result)
		require.NoError(t, err)
		traces = append(traces, data)
	}

	assert.Equal(t, traces[0], traces[1])
	assert.Equal(t, traces[1], traces[2])
}
