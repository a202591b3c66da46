package store

import (
	"context"
	"fmt"
)

// Drift is the difference between two runs.
type Drift struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`

	// DeclarationsChanged reports whether the declaration sets differ.
	DeclarationsChanged bool `json:"declarations_changed"`

	Added   []string `json:"added,omitempty"`   // wrappers only in To
	Removed []string `json:"removed,omitempty"` // wrappers only in From
	Changed []string `json:"changed,omitempty"` // wrappers in both whose descriptor hash differs
}

// Empty reports whether the two runs produced identical wrappers.
func (d Drift) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Compare computes the drift between two recorded runs.
func Compare(from, to Run) Drift {
	d := Drift{
		From:                from.Seq,
		To:                  to.Seq,
		DeclarationsChanged: from.DeclarationHash != to.DeclarationHash,
	}

	before := make(map[string]string, len(from.Descriptors))
	for _, r := range from.Descriptors {
		before[r.QualifiedName] = r.Hash
	}
	after := make(map[string]bool, len(to.Descriptors))
	for _, r := range to.Descriptors {
		after[r.QualifiedName] = true
		hash, ok := before[r.QualifiedName]
		switch {
		case !ok:
			d.Added = append(d.Added, r.QualifiedName)
		case hash != r.Hash:
			d.Changed = append(d.Changed, r.QualifiedName)
		}
	}
	for _, r := range from.Descriptors {
		if !after[r.QualifiedName] {
			d.Removed = append(d.Removed, r.QualifiedName)
		}
	}
	return d
}

// Drift compares run seq with the previous run of the same label.
// It returns ErrNoRun (wrapped) when seq is the label's first run.
func (s *Store) Drift(ctx context.Context, seq int64) (Drift, error) {
	current, err := s.ReadRun(ctx, seq)
	if err != nil {
		return Drift{}, fmt.Errorf("drift: %w", err)
	}
	previous, err := s.PreviousRun(ctx, seq)
	if err != nil {
		return Drift{}, fmt.Errorf("drift: %w", err)
	}
	return Compare(previous, current), nil
}
