package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/covenant/internal/ir"
)

func TestRecordRun_AssignsSequentialSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	set := createTestSet()

	first, err := s.RecordRun(ctx, "counter", set, nil, nil)
	if err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
	second, err := s.RecordRun(ctx, "other", set, nil, nil)
	if err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seqs = %d, %d, want 1, 2", first.Seq, second.Seq)
	}
	if first.GeneratorVersion != ir.GeneratorVersion {
		t.Errorf("GeneratorVersion = %q", first.GeneratorVersion)
	}
}

func TestRecordRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	descs := []*ir.Descriptor{
		createTestDescriptor("Counter", "Inc", "count >= 0"),
		createTestDescriptor("Counter", "Dec", "count > 0"),
	}
	rejected := []*ir.GenerationError{
		ir.NewGenerationError(ir.ErrInvalidOldOperand, "old(count + 1) == 0", "old() takes a field").Locate("Counter", "reset"),
	}

	written, err := s.RecordRun(ctx, "counter", createTestSet(), descs, rejected)
	if err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}

	got, err := s.ReadRun(ctx, written.Seq)
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}

	if len(got.Descriptors) != 2 {
		t.Fatalf("descriptors = %d, want 2", len(got.Descriptors))
	}
	// ordered by qualified name
	if got.Descriptors[0].QualifiedName != "Counter.Dec" || got.Descriptors[1].QualifiedName != "Counter.Inc" {
		t.Errorf("descriptor order = %s, %s", got.Descriptors[0].QualifiedName, got.Descriptors[1].QualifiedName)
	}
	if got.Descriptors[1].Hash != ir.MustDescriptorHash(descs[0]) {
		t.Error("stored hash does not match DescriptorHash")
	}
	for i := range got.Descriptors {
		if got.Descriptors[i] != written.Descriptors[i] {
			t.Errorf("descriptor %d: read %+v, wrote %+v", i, got.Descriptors[i], written.Descriptors[i])
		}
	}

	if len(got.Rejections) != 1 {
		t.Fatalf("rejections = %d, want 1", len(got.Rejections))
	}
	r := got.Rejections[0]
	if r.Callable != "Counter.reset" || r.Code != "E203" {
		t.Errorf("rejection = %+v", r)
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), 42)
	if !errors.Is(err, ErrNoRun) {
		t.Errorf("ReadRun() error = %v, want ErrNoRun", err)
	}
}

func TestLatestRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, label := range []string{"a", "b", "a"} {
		if _, err := s.RecordRun(ctx, label, createTestSet(), nil, nil); err != nil {
			t.Fatalf("RecordRun(%q) failed: %v", label, err)
		}
	}

	got, err := s.LatestRun(ctx, "a")
	if err != nil {
		t.Fatalf("LatestRun() failed: %v", err)
	}
	if got.Seq != 3 {
		t.Errorf("LatestRun(a).Seq = %d, want 3", got.Seq)
	}

	if _, err := s.LatestRun(ctx, "missing"); !errors.Is(err, ErrNoRun) {
		t.Errorf("LatestRun(missing) error = %v, want ErrNoRun", err)
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 3 || runs[0].Seq != 1 || runs[2].Label != "a" {
		t.Errorf("ListRuns() = %+v", runs)
	}
}

func TestDrift_UnchangedRegenerationHasNone(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	set := createTestSet()

	for i := 0; i < 2; i++ {
		descs := []*ir.Descriptor{createTestDescriptor("Counter", "Inc", "count >= 0")}
		if _, err := s.RecordRun(ctx, "counter", set, descs, nil); err != nil {
			t.Fatalf("RecordRun() failed: %v", err)
		}
	}

	d, err := s.Drift(ctx, 2)
	if err != nil {
		t.Fatalf("Drift() failed: %v", err)
	}
	if !d.Empty() || d.DeclarationsChanged {
		t.Errorf("Drift() = %+v, want none", d)
	}
	if d.From != 1 || d.To != 2 {
		t.Errorf("Drift() compared %d..%d", d.From, d.To)
	}
}

func TestDrift_ReportsChanges(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.RecordRun(ctx, "counter", createTestSet(), []*ir.Descriptor{
		createTestDescriptor("Counter", "Inc", "count >= 0"),
		createTestDescriptor("Counter", "Dec", "count > 0"),
	}, nil)
	if err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
	// unrelated label in between
	if _, err := s.RecordRun(ctx, "other", createTestSet(), nil, nil); err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}

	changedSet := createTestSet()
	changedSet.Types[0].Invariants = []ir.Clause{{Expr: "count >= 0", Message: "non-negative"}}
	run, err := s.RecordRun(ctx, "counter", changedSet, []*ir.Descriptor{
		createTestDescriptor("Counter", "Inc", "count >= 1"),
		createTestDescriptor("Counter", "Reset", "true"),
	}, nil)
	if err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}

	d, err := s.Drift(ctx, run.Seq)
	if err != nil {
		t.Fatalf("Drift() failed: %v", err)
	}
	if d.From != 1 {
		t.Errorf("From = %d, want 1", d.From)
	}
	if !d.DeclarationsChanged {
		t.Error("DeclarationsChanged = false")
	}
	if len(d.Added) != 1 || d.Added[0] != "Counter.Reset" {
		t.Errorf("Added = %v", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0] != "Counter.Dec" {
		t.Errorf("Removed = %v", d.Removed)
	}
	if len(d.Changed) != 1 || d.Changed[0] != "Counter.Inc" {
		t.Errorf("Changed = %v", d.Changed)
	}
}

func TestDrift_FirstRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run, err := s.RecordRun(ctx, "counter", createTestSet(), nil, nil)
	if err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
	if _, err := s.Drift(ctx, run.Seq); !errors.Is(err, ErrNoRun) {
		t.Errorf("Drift() error = %v, want ErrNoRun", err)
	}
}
