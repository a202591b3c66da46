package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/covenant/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string                    `json:"scenario_name"`
	Trace        []TraceEvent              `json:"trace"`
	State        map[string]map[string]any `json:"state,omitempty"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles maps, slices and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"type": event.Type,
			"seq":  event.Seq,
			"call": event.Call,
		}
		setString(eventMap, "object", event.Object)
		setString(eventMap, "outcome", event.Outcome)
		setString(eventMap, "violation", event.Violation)
		setString(eventMap, "clause", event.Clause)
		setString(eventMap, "message", event.Message)
		setString(eventMap, "invocation_id", event.InvocationID)
		if len(event.Args) > 0 {
			eventMap["args"] = event.Args
		}
		if len(event.Named) > 0 {
			eventMap["named"] = event.Named
		}
		if event.Result != nil {
			eventMap["result"] = event.Result
		}
		if event.Group != 0 {
			eventMap["group"] = event.Group
		}
		traceList[i] = eventMap
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
	if len(s.State) > 0 {
		state := make(map[string]any, len(s.State))
		for name, fields := range s.State {
			state[name] = fields
		}
		result["state"] = state
	}
	return result
}

func setString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// MarshalTrace renders a result as canonical JSON, the golden file format.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		State:        result.State,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
