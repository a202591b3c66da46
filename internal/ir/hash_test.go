package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDescriptor() *Descriptor {
	return &Descriptor{
		Type:           "Account",
		Receiver:       "a",
		Implementation: "deposit",
		PublicName:     "Deposit",
		Role:           RoleMethod,
		Result:         "int",
		Signature: Signature{
			Declaration: []Param{{Name: "amount", Type: "int", Kind: RequiredPositional}},
			Forwarding:  []Argument{{Name: "amount"}},
		},
		Fields:   []Field{{Name: "balance", Type: "int"}},
		Captures: []Capture{{Field: "balance", Type: "int"}},
		Steps: []Step{
			{Kind: StepPreconditions, Checks: []Check{{
				Kind: KindPrecondition, Source: "amount > 0", Rewritten: "amount > 0", Message: "amount must be positive",
			}}},
			{Kind: StepCaptureOld},
			{Kind: StepInvoke},
			{Kind: StepPostconditions, Checks: []Check{{
				Kind:      KindPostcondition,
				Source:    "result == old(balance) + amount",
				Rewritten: `result == lookup("balance") + amount`,
				Message:   "balance grows by amount",
			}}},
		},
	}
}

func TestDescriptorHashDeterminism(t *testing.T) {
	h1, err := DescriptorHash(sampleDescriptor())
	require.NoError(t, err)
	h2, err := DescriptorHash(sampleDescriptor())
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "DescriptorHash must be deterministic")
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestDescriptorHashChangesWithChecks(t *testing.T) {
	base := sampleDescriptor()
	changed := sampleDescriptor()
	changed.Steps[0].Checks[0].Message = "different"

	assert.NotEqual(t, MustDescriptorHash(base), MustDescriptorHash(changed))
}

func TestCanonicalDescriptorIsBitForBitStable(t *testing.T) {
	a, err := CanonicalDescriptor(sampleDescriptor())
	require.NoError(t, err)
	b, err := CanonicalDescriptor(sampleDescriptor())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Contains(t, string(a), `"public_name":"Deposit"`)
	assert.Contains(t, string(a), `lookup(\"balance\")`)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte("same")
	assert.NotEqual(t,
		hashWithDomain(DomainDescriptor, data),
		hashWithDomain(DomainDeclaration, data),
	)
}

func TestDeclarationHashIgnoresNilVersusEmpty(t *testing.T) {
	a := &ContractedType{Name: "Counter", Fields: []Field{{Name: "count", Type: "int"}}}
	b := &ContractedType{
		Name:         "Counter",
		Fields:       []Field{{Name: "count", Type: "int"}},
		Invariants:   []Clause{},
		Constructors: []ContractedCallable{},
		Callables:    []ContractedCallable{},
	}

	ha, err := DeclarationHash(a)
	require.NoError(t, err)
	hb, err := DeclarationHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	b.Invariants = append(b.Invariants, Clause{Expr: "count >= 0", Message: "non-negative"})
	hc, err := DeclarationHash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestDeclarationSetHash(t *testing.T) {
	set := &DeclarationSet{
		Types:     []ContractedType{{Name: "Counter", Fields: []Field{{Name: "count", Type: "int"}}}},
		Functions: []ContractedCallable{{Name: "clamp", Role: RoleFunction, Ensures: []Clause{{Expr: "result <= 100", Message: "clamped"}}}},
	}

	h1, err := DeclarationSetHash(set)
	require.NoError(t, err)
	h2, err := DeclarationSetHash(set)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	set.Functions[0].Ensures[0].Expr = "result <= 99"
	h3, err := DeclarationSetHash(set)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
