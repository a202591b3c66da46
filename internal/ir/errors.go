package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes generation-time errors.
type ErrorKind string

const (
	ErrMalformedExpression ErrorKind = "MalformedExpression"
	ErrInvalidOldArity     ErrorKind = "InvalidOldArity"
	ErrInvalidOldOperand   ErrorKind = "InvalidOldOperand"
	ErrUnknownOldField     ErrorKind = "UnknownOldField"
	ErrContractPlacement   ErrorKind = "ContractPlacementError"
	ErrDuplicatePublicName ErrorKind = "DuplicatePublicName"
)

// Generation error codes (E200-E299)
var errorCodes = map[ErrorKind]string{
	ErrMalformedExpression: "E201",
	ErrInvalidOldArity:     "E202",
	ErrInvalidOldOperand:   "E203",
	ErrUnknownOldField:     "E204",
	ErrContractPlacement:   "E205",
	ErrDuplicatePublicName: "E206",
}

// Placement rules reported with ErrContractPlacement.
const (
	RuleInvariantPlacement     = "invariant-placement"
	RuleInvariantOnFunction    = "invariant-on-function"
	RuleInternalImplementation = "internal-implementation"
	RuleReservedName           = "reserved-name"
	RuleOldOutsidePost         = "old-outside-postcondition"
	RuleOldInConstructor       = "old-in-constructor"
	RuleResultWithoutValue     = "result-without-value"
	RuleInvalidParameter       = "invalid-parameter"
	RuleDuplicateMember        = "duplicate-member"
)

// GenerationError is raised while weaving, before any wrapper runs.
// It carries enough context (type, callable, clause) to locate the fault.
type GenerationError struct {
	Kind     ErrorKind `json:"kind"`
	Rule     string    `json:"rule,omitempty"` // placement rule, ErrContractPlacement only
	Type     string    `json:"type,omitempty"`
	Callable string    `json:"callable,omitempty"`
	Clause   string    `json:"clause,omitempty"` // offending clause text
	Message  string    `json:"message"`
	Offset   int       `json:"offset,omitempty"` // byte offset within Clause, when known
}

// Code returns the stable error code for the kind.
func (e *GenerationError) Code() string {
	if code, ok := errorCodes[e.Kind]; ok {
		return code
	}
	return "E200"
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code(), e.Kind)
	if e.Rule != "" {
		fmt.Fprintf(&b, " (%s)", e.Rule)
	}
	if name := QualifiedName(e.Type, e.Callable); name != "" {
		fmt.Fprintf(&b, " in %s", name)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Clause != "" {
		fmt.Fprintf(&b, " [clause %q]", e.Clause)
	}
	return b.String()
}

// Locate fills in declaration context the reporting component did not know.
// Fields already set are kept.
func (e *GenerationError) Locate(typeName, callable string) *GenerationError {
	if e.Type == "" {
		e.Type = typeName
	}
	if e.Callable == "" {
		e.Callable = callable
	}
	return e
}

// NewGenerationError creates a GenerationError with a formatted message.
func NewGenerationError(kind ErrorKind, clause string, format string, args ...any) *GenerationError {
	return &GenerationError{
		Kind:    kind,
		Clause:  clause,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewPlacementError creates a ContractPlacementError naming the violated rule.
func NewPlacementError(rule, clause string, format string, args ...any) *GenerationError {
	e := NewGenerationError(ErrContractPlacement, clause, format, args...)
	e.Rule = rule
	return e
}

// IsKind reports whether err is a GenerationError of the given kind.
// Uses errors.As to handle wrapped errors.
func IsKind(err error, kind ErrorKind) bool {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

// KindOf returns the kind of a GenerationError, or "" for other errors.
func KindOf(err error) ErrorKind {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}
