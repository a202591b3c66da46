package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		if event.Type == EventCall {
			fmt.Fprintf(&buf, "  [%d] %s %v -> %s\n", event.Seq, event.Call, event.Args, describe(event))
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means all assertions held.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

// assertTraceContains checks that a call to a.Call appears with the given
// outcome (any outcome when a.Outcome is empty).
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Type == EventCall && ev.Call == a.Call && (a.Outcome == "" || ev.Outcome == a.Outcome) {
			return nil
		}
	}

	expected := a.Call
	if a.Outcome != "" {
		expected += " with outcome " + a.Outcome
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceCount checks that a.Call appears exactly a.Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == EventCall && ev.Call == a.Call {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%s called %d times", a.Call, a.Count),
		Actual:   fmt.Sprintf("called %d times", count),
		Trace:    trace,
	}
}

// assertFinalState checks the object's fields (subset match).
func assertFinalState(result *Result, a Assertion) error {
	fields, ok := result.State[a.Object]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("object %q", a.Object),
			Actual:   fmt.Sprintf("objects %v", result.objectNames()),
			Trace:    result.Trace,
		}
	}

	for _, name := range sortedKeys(a.Expect) {
		want := a.Expect[name]
		got, present := fields[name]
		if !present || !equalValues(want, got) {
			actual := "absent"
			if present {
				actual = fmt.Sprintf("%v", got)
			}
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", a.Object, name, want),
				Actual:   actual,
				Trace:    result.Trace,
			}
		}
	}
	return nil
}
