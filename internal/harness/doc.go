// Package harness provides conformance testing for woven contracts.
//
// The harness compiles CUE declarations, weaves them into wrappers, binds
// each wrapper to a scripted implementation, and drives the wrappers through
// a scenario of calls. Every outcome is recorded in a trace: returned
// values, contract violations, argument errors, and implementation errors.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	declarations: |
//	  type: Account: {
//	    fields: balance: "int"
//	    methods: deposit: {
//	      params: [{ name: "amount", type: "int" }]
//	      result: "int"
//	      requires: ["amount > 0"]
//	      ensures: ["result == old(balance) + amount"]
//	    }
//	  }
//	objects:
//	  acct: { type: Account, fields: { balance: 100 } }
//	implementations:
//	  Account.Deposit:
//	    assign: { balance: "balance + amount" }
//	    result: "balance"
//	steps:
//	  - call: Account.Deposit
//	    on: acct
//	    args: [50]
//	    expect: { result: 150 }
//	  - call: Account.Deposit
//	    on: acct
//	    args: [0]
//	    expect: { violation: PreconditionViolation }
//	  - concurrent:
//	      - { call: Account.Deposit, on: acct, args: [1] }
//	      - { call: Account.Deposit, on: acct, args: [2] }
//	assertions:
//	  - type: final_state
//	    object: acct
//	    expect: { balance: 153 }
//
// Script expressions use the expr language. Assignments see the receiver's
// fields and the call's parameters, all evaluated against the state from
// before the call; the result expression sees the state after.
//
// # Assertion Types
//
//   - trace_contains: a call appears in the trace, optionally with an outcome
//   - trace_count: a call appears exactly N times
//   - final_state: an object's fields match the expected values (subset)
//
// # Deterministic Testing
//
// Invocation IDs are sequential per run ("inv-1", "inv-2", ...), so traces
// of sequential steps compare byte-for-byte against golden files. Events of
// a concurrent group are recorded in declaration order once the whole group
// finishes, without invocation IDs.
package harness
