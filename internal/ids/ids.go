// Package ids generates identifiers for bulk transactions, individual
// transfers and batches.
//
// Bulk ids are time-sortable UUIDv7 values assigned once at submission.
// Transfer and batch ids are name-based UUIDv5 values derived from the bulk
// id, so re-processing the same command always yields the same ids.
package ids

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Generator produces new unique identifiers.
type Generator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns "<prefix>-0001", "<prefix>-0002", ... and is
// used where ids must be stable across runs (scenarios, golden files).
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequenceGenerator creates a generator starting at 1.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix, next: 1}
}

// Generate returns the next id in the sequence.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("%s-%04d", g.prefix, g.next)
	g.next++
	return id
}

// FixedGenerator returns predetermined ids for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed, which means the test created more
// bulks than it declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// namespace is the UUIDv5 namespace for all derived ids.
var namespace = uuid.MustParse("6c3f6b0e-2f4d-5b8e-9a61-0e5b8c1d7a42")

// Derive returns a deterministic UUIDv5 for the given parts.
func Derive(parts ...string) string {
	name := make([]byte, 0, 64)
	for i, p := range parts {
		if i > 0 {
			name = append(name, 0)
		}
		name = append(name, p...)
	}
	return uuid.NewSHA1(namespace, name).String()
}

// TransferID returns the id of the index-th transfer of a bulk.
func TransferID(bulkID string, index int) string {
	return Derive("transfer", bulkID, strconv.Itoa(index))
}

// BatchID returns the id of the chunk-th batch to fspID within a bulk.
func BatchID(bulkID, fspID string, chunk int) string {
	return Derive("batch", bulkID, fspID, strconv.Itoa(chunk))
}

// BulkTransferID returns the bulk transfer id used for a batch in the
// transfers phase.
func BulkTransferID(batchID string) string {
	return Derive("bulkTransfer", batchID)
}
