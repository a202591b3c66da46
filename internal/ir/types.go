package ir

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Reserved names that may not be used as parameter or field names.
const (
	OldName    = "old"    // old(field) operator
	ResultName = "result" // call result in postconditions
	ThisName   = "this"   // explicit receiver qualifier
	LookupName = "lookup" // capture-store lookup after rewriting
)

// ReservedNames lists every name the enforcement layer binds itself.
var ReservedNames = map[string]bool{
	OldName:    true,
	ResultName: true,
	ThisName:   true,
	LookupName: true,
}

// Role describes how a contracted callable is entered.
type Role string

const (
	RoleMethod      Role = "method"
	RoleConstructor Role = "constructor"
	RoleFunction    Role = "function"
)

// ParamKind is the optionality kind of a parameter.
type ParamKind string

const (
	RequiredPositional ParamKind = "required_positional"
	OptionalPositional ParamKind = "optional_positional"
	RequiredNamed      ParamKind = "required_named"
	OptionalNamed      ParamKind = "optional_named"
)

// ValidParamKinds defines allowed parameter kinds.
var ValidParamKinds = map[ParamKind]bool{
	RequiredPositional: true,
	OptionalPositional: true,
	RequiredNamed:      true,
	OptionalNamed:      true,
}

// Named reports whether the parameter is passed by name.
func (k ParamKind) Named() bool {
	return k == RequiredNamed || k == OptionalNamed
}

// Optional reports whether the parameter may be omitted by the caller.
func (k ParamKind) Optional() bool {
	return k == OptionalPositional || k == OptionalNamed
}

// Param is one declared parameter of a callable.
type Param struct {
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	Kind    ParamKind `json:"kind"`
	Default string    `json:"default,omitempty"` // expression text, optional kinds only
}

// TypeParam is a declared type parameter, copied verbatim across the wrapper boundary.
type TypeParam struct {
	Name       string `json:"name"`
	Constraint string `json:"constraint"`
}

// Field is a readable member of a contracted type.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Accessor bool   `json:"accessor,omitempty"` // zero-argument accessor rather than a stored field
}

// Clause is a boolean condition plus the message reported when it is false.
type Clause struct {
	Expr    string `json:"expr"`
	Message string `json:"message"`
}

// ClauseKind identifies where a clause is enforced.
type ClauseKind string

const (
	KindInvariant     ClauseKind = "invariant"
	KindPrecondition  ClauseKind = "precondition"
	KindPostcondition ClauseKind = "postcondition"
)

// ContractedType is a named type carrying invariants and contract-bearing members.
type ContractedType struct {
	Name         string               `json:"name"`
	Receiver     string               `json:"receiver,omitempty"` // receiver identifier in emitted source
	Fields       []Field              `json:"fields"`
	Invariants   []Clause             `json:"invariants"`
	Constructors []ContractedCallable `json:"constructors"`
	Callables    []ContractedCallable `json:"callables"`
}

// Field looks up a readable member by name.
func (t *ContractedType) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ReceiverName returns the receiver identifier, defaulting to the
// lower-cased first letter of the type name.
func (t *ContractedType) ReceiverName() string {
	if t.Receiver != "" {
		return t.Receiver
	}
	r, _ := utf8.DecodeRuneInString(t.Name)
	if r == utf8.RuneError {
		return "recv"
	}
	return string(unicode.ToLower(r))
}

// Members returns constructors followed by callables, in declaration order.
func (t *ContractedType) Members() []ContractedCallable {
	members := make([]ContractedCallable, 0, len(t.Constructors)+len(t.Callables))
	members = append(members, t.Constructors...)
	members = append(members, t.Callables...)
	return members
}

// ContractedCallable is a method, constructor, or free function carrying contracts.
type ContractedCallable struct {
	Name            string      `json:"name"`                  // internal (unwrapped) name
	PublicName      string      `json:"public_name,omitempty"` // explicit override of the derived public name
	Role            Role        `json:"role"`
	Params          []Param     `json:"params"`
	TypeParams      []TypeParam `json:"type_params,omitempty"`
	Result          string      `json:"result,omitempty"` // result type, empty when nothing is returned
	Async           bool        `json:"async,omitempty"`
	Requires        []Clause    `json:"requires"`
	Ensures         []Clause    `json:"ensures"`
	CheckInvariants bool        `json:"check_invariants,omitempty"`
	Invariants      []Clause    `json:"invariants,omitempty"` // never valid here; kept so placement can be rejected
}

// HasContract reports whether the callable carries anything to enforce.
// Callables without contracts are passed through without a wrapper.
func (c *ContractedCallable) HasContract() bool {
	return len(c.Requires) > 0 || len(c.Ensures) > 0 || c.CheckInvariants || len(c.Invariants) > 0
}

// Param looks up a parameter by name.
func (c *ContractedCallable) Param(name string) (Param, bool) {
	for _, p := range c.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// DeclarationSet is the strongly-typed table handed over by discovery.
type DeclarationSet struct {
	Types     []ContractedType     `json:"types"`
	Functions []ContractedCallable `json:"functions"`
}

// QualifiedName joins a type name and member name for diagnostics.
// Free functions have an empty type name.
func QualifiedName(typeName, member string) string {
	if typeName == "" {
		return member
	}
	return strings.Join([]string{typeName, member}, ".")
}
