package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

// createTestStore creates a new SQLite store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends returns every HashStore implementation under test.
func backends(t *testing.T) map[string]HashStore {
	t.Helper()
	return map[string]HashStore{
		"sqlite": createTestStore(t),
		"memory": NewMemoryHash(),
	}
}

// createTestRepository returns an initialized repository over hash.
func createTestRepository(t *testing.T, hash HashStore) *Repository {
	t.Helper()
	r := NewRepository(hash)
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	return r
}

func testBulk(id string, state model.BulkState) model.BulkTransaction {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return model.BulkTransaction{
		ID:                    id,
		BulkHomeTransactionID: "home-" + id,
		IndividualTransferIDs: []string{"t1", "t2"},
		BatchIDs:              []string{},
		State:                 state,
		CreatedAt:             ts,
		UpdatedAt:             ts,
	}
}

func testTransfer(bulkID, id string, state model.TransferState) model.IndividualTransfer {
	return model.IndividualTransfer{
		ID:                id,
		BulkTransactionID: bulkID,
		Request:           model.IndividualTransferRequest{HomeTransactionID: "h-" + id, Currency: "USD"},
		State:             state,
	}
}
