// Package testutil provides deterministic helpers for tests.
package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates invocation IDs "<prefix>-1", "<prefix>-2", ...
//
// The same call sequence yields the same IDs, so traces that carry
// invocation IDs can be compared against golden files.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequentialIDs creates a generator. An empty prefix defaults to "inv".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "inv"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Issued returns how many IDs have been generated.
func (g *SequentialIDs) Issued() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence. The next Generate returns "<prefix>-1".
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}

// FixedID returns the same invocation ID every time.
//
// Thread-safety: FixedID is stateless and safe for concurrent use.
type FixedID string

// Generate returns the fixed ID, or "test-invocation" when empty.
func (id FixedID) Generate() string {
	if id == "" {
		return "test-invocation"
	}
	return string(id)
}
