package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/covenant/internal/ir"
)

func mixedParams() []ir.Param {
	return []ir.Param{
		{Name: "amount", Type: "int", Kind: ir.RequiredPositional},
		{Name: "note", Type: "string", Kind: ir.OptionalNamed, Default: `""`},
		{Name: "fee", Type: "int", Kind: ir.OptionalPositional, Default: "0"},
		{Name: "currency", Type: "string", Kind: ir.RequiredNamed},
		{Name: "account", Type: "string", Kind: ir.RequiredPositional},
	}
}

func TestReconstructDeclarationOrder(t *testing.T) {
	sig := Reconstruct(mixedParams(), nil)

	var names []string
	for _, p := range sig.Declaration {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"amount", "account", "fee", "note", "currency"}, names)
	assert.Equal(t, "0", sig.Declaration[2].Default, "defaults are preserved")
	assert.Nil(t, sig.TypeParams)
}

func TestReconstructForwarding(t *testing.T) {
	sig := Reconstruct(mixedParams(), nil)

	assert.Equal(t, []ir.Argument{
		{Name: "amount"},
		{Name: "note", ByName: true},
		{Name: "fee"},
		{Name: "currency", ByName: true},
		{Name: "account"},
	}, sig.Forwarding)
}

func TestReconstructEmpty(t *testing.T) {
	sig := Reconstruct(nil, nil)
	assert.Empty(t, sig.Declaration)
	assert.Empty(t, sig.Forwarding)
	assert.Equal(t, "", GoParams(sig))
	assert.Equal(t, "", GoArgs(sig))
	assert.Equal(t, "()", Describe(sig))
}

func TestReconstructCopiesTypeParams(t *testing.T) {
	tps := []ir.TypeParam{{Name: "T", Constraint: "comparable"}, {Name: "V"}}
	sig := Reconstruct([]ir.Param{{Name: "key", Type: "T", Kind: ir.RequiredPositional}}, tps)

	assert.Equal(t, tps, sig.TypeParams)
	tps[0].Name = "changed"
	assert.Equal(t, "T", sig.TypeParams[0].Name, "type parameters are copied, not aliased")

	assert.Equal(t, "[T comparable, V any]", GoTypeParams(sig))
	assert.Equal(t, "[T, V]", GoTypeArgs(sig))
}

func TestGoRendering(t *testing.T) {
	sig := Reconstruct(mixedParams(), nil)

	assert.Equal(t, "amount int, account string, fee int, note string, currency string", GoParams(sig))
	assert.Equal(t, "amount, note, fee, currency, account", GoArgs(sig))
	assert.Equal(t, "", GoTypeParams(sig))
	assert.Equal(t, "", GoTypeArgs(sig))
}

func TestDescribe(t *testing.T) {
	sig := Reconstruct(mixedParams(), nil)
	assert.Equal(t, `(amount int, account string, fee int = 0, *, note string = "", currency string)`, Describe(sig))
}
