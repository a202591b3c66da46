package store

import (
	"context"
	"fmt"

	"github.com/roach88/covenant/internal/ir"
)

// Run is one recorded generation run.
type Run struct {
	Seq               int64              `json:"seq"`
	Label             string             `json:"label"`
	DeclarationHash   string             `json:"declaration_hash"`
	GeneratorVersion  string             `json:"generator_version"`
	DescriptorVersion string             `json:"descriptor_version"`
	Descriptors       []DescriptorRecord `json:"descriptors"` // ordered by qualified name
	Rejections        []Rejection        `json:"rejections"`  // in reporting order
}

// DescriptorRecord is one wrapper produced by a run.
type DescriptorRecord struct {
	QualifiedName string `json:"qualified_name"`
	Hash          string `json:"hash"`
	Canonical     string `json:"-"`
}

// Rejection is one declaration a run rejected.
type Rejection struct {
	Callable string `json:"callable"` // qualified internal name; type name alone for shape errors
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// RecordRun writes one generation run in a single transaction and returns it.
//
// The run's seq is one past the highest seq in the ledger. Descriptors are
// stored as canonical JSON with their domain-separated hash, so a later run
// can be compared byte for byte.
func (s *Store) RecordRun(ctx context.Context, label string, set *ir.DeclarationSet, descs []*ir.Descriptor, rejected []*ir.GenerationError) (Run, error) {
	declHash, err := ir.DeclarationSetHash(set)
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}

	run := Run{
		Label:             label,
		DeclarationHash:   declHash,
		GeneratorVersion:  ir.GeneratorVersion,
		DescriptorVersion: ir.DescriptorVersion,
	}
	for _, d := range descs {
		canonical, err := ir.CanonicalDescriptor(d)
		if err != nil {
			return Run{}, fmt.Errorf("record run: %s: %w", d.QualifiedName(), err)
		}
		hash, err := ir.DescriptorHash(d)
		if err != nil {
			return Run{}, fmt.Errorf("record run: %s: %w", d.QualifiedName(), err)
		}
		run.Descriptors = append(run.Descriptors, DescriptorRecord{
			QualifiedName: d.QualifiedName(),
			Hash:          hash,
			Canonical:     string(canonical),
		})
	}
	for _, e := range rejected {
		run.Rejections = append(run.Rejections, Rejection{
			Callable: ir.QualifiedName(e.Type, e.Callable),
			Code:     e.Code(),
			Message:  e.Message,
		})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("record run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&run.Seq); err != nil {
		return Run{}, fmt.Errorf("record run: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(seq, label, declaration_hash, generator_version, descriptor_version)
		VALUES (?, ?, ?, ?, ?)
	`,
		run.Seq,
		run.Label,
		run.DeclarationHash,
		run.GeneratorVersion,
		run.DescriptorVersion,
	)
	if err != nil {
		return Run{}, fmt.Errorf("record run: insert run: %w", err)
	}

	for _, d := range run.Descriptors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO descriptors
			(run_seq, qualified_name, descriptor_hash, canonical)
			VALUES (?, ?, ?, ?)
		`, run.Seq, d.QualifiedName, d.Hash, d.Canonical)
		if err != nil {
			return Run{}, fmt.Errorf("record run: insert descriptor %s: %w", d.QualifiedName, err)
		}
	}

	for i, r := range run.Rejections {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rejections
			(run_seq, ordinal, callable, code, message)
			VALUES (?, ?, ?, ?, ?)
		`, run.Seq, i, r.Callable, r.Code, r.Message)
		if err != nil {
			return Run{}, fmt.Errorf("record run: insert rejection %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("record run: commit: %w", err)
	}

	sortDescriptors(run.Descriptors)
	return run, nil
}
