package enforce

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/covenant/internal/ir"
)

// ViolationKind categorizes runtime contract failures.
type ViolationKind string

const (
	InvariantViolation     ViolationKind = "InvariantViolation"
	PreconditionViolation  ViolationKind = "PreconditionViolation"
	PostconditionViolation ViolationKind = "PostconditionViolation"
	// MissingCapturedValue means a postcondition looked up an old() value
	// that was never captured. It signals a generator bug, not a caller error.
	MissingCapturedValue ViolationKind = "MissingCapturedValue"
	// EvaluationFailure means a condition could not be evaluated to a bool.
	EvaluationFailure ViolationKind = "EvaluationFailure"
)

// kindFor maps a clause kind to the violation it raises.
func kindFor(k ir.ClauseKind) ViolationKind {
	switch k {
	case ir.KindInvariant:
		return InvariantViolation
	case ir.KindPrecondition:
		return PreconditionViolation
	default:
		return PostconditionViolation
	}
}

// Violation is the panic value of a failed contract check.
type Violation struct {
	Kind         ViolationKind `json:"kind"`
	Type         string        `json:"type,omitempty"`
	Callable     string        `json:"callable"`
	Message      string        `json:"message"`
	Clause       string        `json:"clause,omitempty"`
	InvocationID string        `json:"invocation_id,omitempty"`
}

// Error implements the error interface.
func (v *Violation) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s in %s: %s", v.Kind, ir.QualifiedName(v.Type, v.Callable), v.Message)
	if v.Clause != "" {
		fmt.Fprintf(&b, " [clause %q]", v.Clause)
	}
	return b.String()
}

// IsViolation reports whether err is a Violation of the given kind.
// Uses errors.As to handle wrapped errors.
func IsViolation(err error, kind ViolationKind) bool {
	var v *Violation
	if errors.As(err, &v) {
		return v.Kind == kind
	}
	return false
}

// Catch runs fn and returns the Violation it panicked with, or nil.
// Panics that are not violations propagate unchanged.
func Catch(fn func()) (v *Violation) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if viol, ok := r.(*Violation); ok {
			v = viol
			return
		}
		panic(r)
	}()
	fn()
	return nil
}

// ArgumentError reports arguments that do not fit a wrapper's signature.
// It is returned, not raised: the wrapped callable was never entered.
type ArgumentError struct {
	Callable string
	Message  string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Callable, e.Message)
}
