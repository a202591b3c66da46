package harness

import (
	"fmt"
	"sort"
)

// Trace event types.
const (
	EventRejected = "rejected"
	EventCall     = "call"
)

// Call outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeViolation     = "violation"
	OutcomeError         = "error"
	OutcomeArgumentError = "argument_error"
)

// TraceEvent records one generation rejection or one wrapper call.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// Call is the qualified public name (call events) or the rejected
	// declaration (rejected events).
	Call   string         `json:"call"`
	Object string         `json:"object,omitempty"`
	Args   []any          `json:"args,omitempty"`
	Named  map[string]any `json:"named,omitempty"`

	Outcome      string `json:"outcome,omitempty"`
	Result       any    `json:"result,omitempty"`
	Violation    string `json:"violation,omitempty"` // violation or generation error kind
	Clause       string `json:"clause,omitempty"`
	Message      string `json:"message,omitempty"`
	InvocationID string `json:"invocation_id,omitempty"`

	// Group is the 1-based index of the concurrent group, 0 for plain steps.
	Group int `json:"group,omitempty"`
}

// Result holds the outcome of running a scenario.
type Result struct {
	Pass   bool                      `json:"pass"`
	Trace  []TraceEvent              `json:"trace"`
	Errors []string                  `json:"errors,omitempty"`
	State  map[string]map[string]any `json:"state,omitempty"` // final object fields by name
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:  true,
		Trace: []TraceEvent{},
		State: make(map[string]map[string]any),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Pass = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// addEvent appends an event with the next sequence number.
func (r *Result) addEvent(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// Calls returns the call events for a qualified name.
func (r *Result) Calls(name string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventCall && ev.Call == name {
			out = append(out, ev)
		}
	}
	return out
}

// objectNames returns the state's object names in sorted order.
func (r *Result) objectNames() []string {
	names := make([]string, 0, len(r.State))
	for name := range r.State {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
