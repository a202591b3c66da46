package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/covenant/internal/ir"
)

// createTestStore creates a new ledger in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSet returns a small declaration set.
func createTestSet() *ir.DeclarationSet {
	return &ir.DeclarationSet{
		Types: []ir.ContractedType{{
			Name:   "Counter",
			Fields: []ir.Field{{Name: "count", Type: "int"}},
		}},
	}
}

// createTestDescriptor creates a minimal descriptor with one precondition.
func createTestDescriptor(typeName, public, pre string) *ir.Descriptor {
	return &ir.Descriptor{
		Type:           typeName,
		Receiver:       "c",
		Implementation: "impl",
		PublicName:     public,
		Role:           ir.RoleMethod,
		Steps: []ir.Step{
			{Kind: ir.StepPreconditions, Checks: []ir.Check{{
				Kind:      ir.KindPrecondition,
				Source:    pre,
				Rewritten: pre,
				Message:   "pre",
			}}},
			{Kind: ir.StepInvoke},
		},
	}
}
