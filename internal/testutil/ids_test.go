package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDs(t *testing.T) {
	ids := NewSequentialIDs("call")

	assert.Equal(t, "call-1", ids.Generate())
	assert.Equal(t, "call-2", ids.Generate())
	assert.Equal(t, int64(2), ids.Issued())

	ids.Reset()
	assert.Equal(t, "call-1", ids.Generate())
}

func TestSequentialIDsDefaultPrefix(t *testing.T) {
	assert.Equal(t, "inv-1", NewSequentialIDs("").Generate())
}

func TestSequentialIDsThreadSafe(t *testing.T) {
	ids := NewSequentialIDs("")
	const goroutines = 50
	const perGoroutine = 40

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := ids.Generate()
				mu.Lock()
				assert.False(t, seen[id], "duplicate id %s", id)
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
	assert.Equal(t, int64(goroutines*perGoroutine), ids.Issued())
}

func TestFixedID(t *testing.T) {
	assert.Equal(t, "abc", FixedID("abc").Generate())
	assert.Equal(t, "abc", FixedID("abc").Generate())
	assert.Equal(t, "test-invocation", FixedID("").Generate())
}
