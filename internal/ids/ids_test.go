package ids

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_Format(t *testing.T) {
	gen := UUIDv7Generator{}

	id := gen.Generate()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Len(t, id, 36)
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	gen := UUIDv7Generator{}
	seen := make(map[string]bool)
	for range 1000 {
		id := gen.Generate()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestSequenceGenerator(t *testing.T) {
	gen := NewSequenceGenerator("bulk")
	assert.Equal(t, "bulk-0001", gen.Generate())
	assert.Equal(t, "bulk-0002", gen.Generate())
}

func TestSequenceGenerator_Concurrent(t *testing.T) {
	gen := NewSequenceGenerator("x")

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.PanicsWithValue(t, "FixedGenerator: all ids exhausted", func() { gen.Generate() })
}

func TestDerivedIDs_Deterministic(t *testing.T) {
	assert.Equal(t, TransferID("bulk-1", 0), TransferID("bulk-1", 0))
	assert.NotEqual(t, TransferID("bulk-1", 0), TransferID("bulk-1", 1))
	assert.NotEqual(t, TransferID("bulk-1", 0), TransferID("bulk-2", 0))

	assert.Equal(t, BatchID("bulk-1", "fsp", 0), BatchID("bulk-1", "fsp", 0))
	assert.NotEqual(t, BatchID("bulk-1", "fsp", 0), BatchID("bulk-1", "fsp", 1))
	assert.NotEqual(t, BatchID("bulk-1", "fspa", 0), BatchID("bulk-1", "fsp", 0))

	parsed, err := uuid.Parse(BatchID("bulk-1", "fsp", 0))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestDerive_PartsAreSeparated(t *testing.T) {
	assert.NotEqual(t, Derive("ab", "c"), Derive("a", "bc"))
	assert.NotEqual(t, BulkTransferID("x"), Derive("x"))
}
