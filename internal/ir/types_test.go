package ir

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamKindPredicates(t *testing.T) {
	tests := []struct {
		kind     ParamKind
		named    bool
		optional bool
	}{
		{RequiredPositional, false, false},
		{OptionalPositional, false, true},
		{RequiredNamed, true, false},
		{OptionalNamed, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.named, tt.kind.Named())
			assert.Equal(t, tt.optional, tt.kind.Optional())
			assert.True(t, ValidParamKinds[tt.kind])
		})
	}
	assert.False(t, ValidParamKinds["variadic"])
}

func TestContractedTypeFieldLookup(t *testing.T) {
	typ := &ContractedType{
		Name:   "Account",
		Fields: []Field{{Name: "balance", Type: "int"}, {Name: "size", Type: "int", Accessor: true}},
	}

	f, ok := typ.Field("size")
	require.True(t, ok)
	assert.True(t, f.Accessor)

	_, ok = typ.Field("missing")
	assert.False(t, ok)
}

func TestReceiverName(t *testing.T) {
	assert.Equal(t, "a", (&ContractedType{Name: "Account"}).ReceiverName())
	assert.Equal(t, "acct", (&ContractedType{Name: "Account", Receiver: "acct"}).ReceiverName())
	assert.Equal(t, "recv", (&ContractedType{}).ReceiverName())
}

func TestMembersOrder(t *testing.T) {
	typ := &ContractedType{
		Constructors: []ContractedCallable{{Name: "newAccount"}},
		Callables:    []ContractedCallable{{Name: "deposit"}, {Name: "withdraw"}},
	}

	var names []string
	for _, m := range typ.Members() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"newAccount", "deposit", "withdraw"}, names)
}

func TestHasContract(t *testing.T) {
	assert.False(t, (&ContractedCallable{Name: "plain"}).HasContract())
	assert.True(t, (&ContractedCallable{Requires: []Clause{{Expr: "x > 0"}}}).HasContract())
	assert.True(t, (&ContractedCallable{Ensures: []Clause{{Expr: "result > 0"}}}).HasContract())
	assert.True(t, (&ContractedCallable{CheckInvariants: true}).HasContract())
}

func TestGenerationErrorFormatting(t *testing.T) {
	err := NewPlacementError(RuleReservedName, "", "parameter %q is reserved", "result").Locate("Account", "deposit")

	assert.Equal(t, "E205", err.Code())
	assert.Contains(t, err.Error(), "ContractPlacementError")
	assert.Contains(t, err.Error(), "(reserved-name)")
	assert.Contains(t, err.Error(), "Account.deposit")

	withClause := NewGenerationError(ErrInvalidOldOperand, "old(total + 1) == 0", "operand must be a field")
	assert.Contains(t, withClause.Error(), `[clause "old(total + 1) == 0"]`)
}

func TestGenerationErrorLocateKeepsExisting(t *testing.T) {
	err := &GenerationError{Kind: ErrUnknownOldField, Type: "Inner"}
	err.Locate("Outer", "call")
	assert.Equal(t, "Inner", err.Type)
	assert.Equal(t, "call", err.Callable)
}

func TestIsKindThroughWrapping(t *testing.T) {
	base := NewGenerationError(ErrMalformedExpression, "x +", "unexpected end")
	wrapped := fmt.Errorf("weaving: %w", base)

	assert.True(t, IsKind(wrapped, ErrMalformedExpression))
	assert.False(t, IsKind(wrapped, ErrInvalidOldArity))
	assert.Equal(t, ErrMalformedExpression, KindOf(wrapped))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}
