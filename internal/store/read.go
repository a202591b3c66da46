package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNoRun is returned when a requested run does not exist.
var ErrNoRun = errors.New("run not found")

// ReadRun returns the run with the given seq, including its descriptors and
// rejections.
func (s *Store) ReadRun(ctx context.Context, seq int64) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, label, declaration_hash, generator_version, descriptor_version
		FROM runs
		WHERE seq = ?
	`, seq)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("read run %d: %w", seq, err)
	}
	if err := s.fillRun(ctx, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// LatestRun returns the most recent run with the given label.
func (s *Store) LatestRun(ctx context.Context, label string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, label, declaration_hash, generator_version, descriptor_version
		FROM runs
		WHERE label = ?
		ORDER BY seq DESC
		LIMIT 1
	`, label)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("latest run %q: %w", label, err)
	}
	if err := s.fillRun(ctx, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// PreviousRun returns the run with the same label recorded before seq.
func (s *Store) PreviousRun(ctx context.Context, seq int64) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT p.seq, p.label, p.declaration_hash, p.generator_version, p.descriptor_version
		FROM runs r
		JOIN runs p ON p.label = r.label AND p.seq < r.seq
		WHERE r.seq = ?
		ORDER BY p.seq DESC
		LIMIT 1
	`, seq)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("previous run of %d: %w", seq, err)
	}
	if err := s.fillRun(ctx, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns every run header (without descriptors), ordered by seq.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, label, declaration_hash, generator_version, descriptor_version
		FROM runs
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.Seq, &r.Label, &r.DeclarationHash, &r.GeneratorVersion, &r.DescriptorVersion); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func scanRun(row *sql.Row) (Run, error) {
	var r Run
	err := row.Scan(&r.Seq, &r.Label, &r.DeclarationHash, &r.GeneratorVersion, &r.DescriptorVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRun
	}
	if err != nil {
		return Run{}, err
	}
	return r, nil
}

func (s *Store) fillRun(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT qualified_name, descriptor_hash, canonical
		FROM descriptors
		WHERE run_seq = ?
		ORDER BY qualified_name COLLATE BINARY ASC
	`, run.Seq)
	if err != nil {
		return fmt.Errorf("read descriptors of run %d: %w", run.Seq, err)
	}
	defer rows.Close()
	for rows.Next() {
		var d DescriptorRecord
		if err := rows.Scan(&d.QualifiedName, &d.Hash, &d.Canonical); err != nil {
			return fmt.Errorf("read descriptors of run %d: scan: %w", run.Seq, err)
		}
		run.Descriptors = append(run.Descriptors, d)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read descriptors of run %d: %w", run.Seq, err)
	}

	rrows, err := s.db.QueryContext(ctx, `
		SELECT callable, code, message
		FROM rejections
		WHERE run_seq = ?
		ORDER BY ordinal ASC
	`, run.Seq)
	if err != nil {
		return fmt.Errorf("read rejections of run %d: %w", run.Seq, err)
	}
	defer rrows.Close()
	for rrows.Next() {
		var r Rejection
		if err := rrows.Scan(&r.Callable, &r.Code, &r.Message); err != nil {
			return fmt.Errorf("read rejections of run %d: scan: %w", run.Seq, err)
		}
		run.Rejections = append(run.Rejections, r)
	}
	return rrows.Err()
}

// sortDescriptors orders records by qualified name, byte-wise, matching
// the COLLATE BINARY order used when reading.
func sortDescriptors(ds []DescriptorRecord) {
	slices.SortFunc(ds, func(a, b DescriptorRecord) int {
		return strings.Compare(a.QualifiedName, b.QualifiedName)
	})
}
