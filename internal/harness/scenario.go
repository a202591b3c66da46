package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario.
// A scenario weaves a declaration set, binds every wrapper to a scripted
// implementation, drives the wrappers through a sequence of calls, and
// asserts on the resulting trace and final object state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Declarations is inline CUE source with "type" and "function" roots.
	Declarations string `yaml:"declarations,omitempty"`

	// DeclarationFile is a path to a CUE file, used when Declarations is empty.
	// Relative paths are resolved against the scenario file's directory.
	DeclarationFile string `yaml:"declaration_file,omitempty"`

	// Objects are the receivers that exist before the first step, by name.
	Objects map[string]Object `yaml:"objects,omitempty"`

	// Implementations script the underlying callables, keyed by the
	// qualified public name of their wrapper (e.g. "Account.Deposit").
	Implementations map[string]Script `yaml:"implementations"`

	// Rejections lists the generation errors the declarations must produce.
	// When empty, generation must succeed for every declaration.
	Rejections []Rejection `yaml:"rejections,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Object is a receiver's type and initial field values.
type Object struct {
	Type   string         `yaml:"type"`
	Fields map[string]any `yaml:"fields"`
}

// Script is a scripted implementation.
//
// Assignments are expressions evaluated against the receiver's fields and
// the call's parameters (parameters shadow fields). All assignments see the
// state from before the call and are applied together. Result is evaluated
// after the assignments are applied. For constructors, Assign initializes
// the new object's fields and Result is ignored.
type Script struct {
	Assign map[string]string `yaml:"assign,omitempty"`
	Result string            `yaml:"result,omitempty"`

	// Fail makes the implementation return an error with this message
	// instead of running.
	Fail string `yaml:"fail,omitempty"`
}

// Rejection is an expected generation error.
type Rejection struct {
	Kind     string `yaml:"kind"`
	Callable string `yaml:"callable,omitempty"`
	Rule     string `yaml:"rule,omitempty"`
}

// Step is a single call, or a group of calls run concurrently.
type Step struct {
	// Call is the qualified public name of the wrapper to call.
	Call string `yaml:"call,omitempty"`

	// On names the receiver object for method calls.
	On string `yaml:"on,omitempty"`

	// Args are positional arguments.
	Args []any `yaml:"args,omitempty"`

	// Named are arguments passed by name.
	Named map[string]any `yaml:"named,omitempty"`

	// Bind names the object a constructor's result is stored under.
	Bind string `yaml:"bind,omitempty"`

	// Expect is the expected outcome. When nil the call must succeed.
	Expect *Expect `yaml:"expect,omitempty"`

	// Concurrent holds calls started together. Each entry is a plain call.
	Concurrent []Step `yaml:"concurrent,omitempty"`
}

// Expect specifies the outcome of a call. At most one of Violation and
// Error is set; with neither, the call must succeed.
type Expect struct {
	// Result, when present, must equal the value the call returned.
	Result any `yaml:"result,omitempty"`

	// Violation is the expected violation kind, e.g. "PreconditionViolation".
	Violation string `yaml:"violation,omitempty"`

	// Clause, with Violation, is the expected failing clause text.
	Clause string `yaml:"clause,omitempty"`

	// Error is a substring of the expected returned error.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a call to Call appears in the trace with Outcome
	// - "trace_count": Call appears exactly Count times
	// - "final_state": object Object has the Expect field values
	Type string `yaml:"type"`

	// Call is the qualified public name (trace_contains, trace_count).
	Call string `yaml:"call,omitempty"`

	// Outcome is the expected outcome (trace_contains); empty matches any.
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of calls (trace_count).
	Count int `yaml:"count,omitempty"`

	// Object is the object name (final_state).
	Object string `yaml:"object,omitempty"`

	// Expect contains expected field values (final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative declaration_file is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if f := scenario.DeclarationFile; f != "" && !filepath.IsAbs(f) {
		scenario.DeclarationFile = filepath.Join(filepath.Dir(path), f)
	}
	if f := scenario.DeclarationFile; f != "" {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: declaration file not found: %s", f)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Declarations == "" && s.DeclarationFile == "" {
		return fmt.Errorf("declarations or declaration_file is required")
	}
	if s.Declarations != "" && s.DeclarationFile != "" {
		return fmt.Errorf("declarations and declaration_file are mutually exclusive")
	}
	if len(s.Steps) == 0 && len(s.Rejections) == 0 {
		return fmt.Errorf("steps list is required unless rejections are expected")
	}

	for name, obj := range s.Objects {
		if obj.Type == "" {
			return fmt.Errorf("objects[%s]: type is required", name)
		}
	}

	for i, r := range s.Rejections {
		if r.Kind == "" {
			return fmt.Errorf("rejections[%d]: kind is required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(fmt.Sprintf("steps[%d]", i), step, true); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(path string, step Step, allowGroup bool) error {
	if len(step.Concurrent) > 0 {
		if !allowGroup {
			return fmt.Errorf("%s: concurrent groups cannot be nested", path)
		}
		if step.Call != "" || step.On != "" || step.Bind != "" || step.Expect != nil {
			return fmt.Errorf("%s: a concurrent group takes no call fields", path)
		}
		for i, inner := range step.Concurrent {
			if err := validateStep(fmt.Sprintf("%s.concurrent[%d]", path, i), inner, false); err != nil {
				return err
			}
			if inner.Bind != "" {
				return fmt.Errorf("%s.concurrent[%d]: bind is not allowed in a concurrent group", path, i)
			}
		}
		return nil
	}

	if step.Call == "" {
		return fmt.Errorf("%s: call is required", path)
	}
	if e := step.Expect; e != nil && e.Violation != "" && e.Error != "" {
		return fmt.Errorf("%s.expect: violation and error are mutually exclusive", path)
	}
	if e := step.Expect; e != nil && e.Clause != "" && e.Violation == "" {
		return fmt.Errorf("%s.expect: clause requires violation", path)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Object == "" {
			return fmt.Errorf("assertions[%d]: object is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
