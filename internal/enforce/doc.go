// Package enforce runs enforcement wrappers.
//
// A wrapper executes a descriptor's steps in order around a call to the
// underlying implementation: invariants, preconditions, old() capture,
// invocation, postconditions, invariants. Every invocation gets its own Call
// record holding a CaptureStore; nothing is shared between invocations.
//
// Contract failures are not errors: they panic with a *Violation at the
// wrapper's call site, and are neither retried nor swallowed. Errors
// returned by the implementation pass through unchanged.
//
// Two entry points share this machinery. Bind turns a descriptor into an
// in-memory Wrapper whose conditions are evaluated with expr. Generated Go
// source calls Enter, Require, Ensure, Invariant, Capture, and Lookup directly.
package enforce
