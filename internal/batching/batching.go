// Package batching groups eligible individual transfers into per
// destination institution batches.
//
// MakeBatches is pure: the same input always yields the same batches, in
// the same order, with the same ids.
package batching

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

// ErrInvalidBatchSize is returned when maxPerBatch is below 1.
var ErrInvalidBatchSize = errors.New("batching: max batch size must be at least 1")

// IDFunc returns the id of the chunk-th batch for fspID.
type IDFunc func(fspID string, chunk int) string

// Eligible reports whether a transfer may join an agreement batch: its
// party must be resolved to an institution and accepted.
func Eligible(it model.IndividualTransfer) bool {
	return it.State == model.TransferStateDiscoveryAccepted && it.DestinationFspID() != ""
}

// NormalizeFspID returns the canonical form used to compare institution
// ids: trimmed and NFC-normalized.
func NormalizeFspID(fspID string) string {
	return norm.NFC.String(strings.TrimSpace(fspID))
}

// Partition is the ordered group of transfers to one institution.
type Partition struct {
	FspID     string
	Transfers []model.IndividualTransfer
}

// Partitions groups eligible transfers by destination. Partitions appear in
// order of the first transfer to each destination; transfers keep input
// order.
func Partitions(transfers []model.IndividualTransfer) ([]Partition, error) {
	seen := make(map[string]bool, len(transfers))
	index := make(map[string]int)
	parts := make([]Partition, 0)

	for _, it := range transfers {
		if seen[it.ID] {
			return nil, fmt.Errorf("batching: duplicate transfer %s", it.ID)
		}
		seen[it.ID] = true

		if !Eligible(it) {
			continue
		}
		fsp := NormalizeFspID(it.DestinationFspID())
		i, ok := index[fsp]
		if !ok {
			i = len(parts)
			index[fsp] = i
			parts = append(parts, Partition{FspID: fsp})
		}
		parts[i].Transfers = append(parts[i].Transfers, it)
	}
	return parts, nil
}

// MakeBatches partitions eligible transfers by destination and chunks each
// partition into batches of at most maxPerBatch members. Ineligible
// transfers are left out and never receive a batch id.
//
// The returned batches are in AGREEMENT_PROCESSING with no requests
// attached; the caller fills those in.
func MakeBatches(transfers []model.IndividualTransfer, maxPerBatch int, newID IDFunc) ([]model.BulkBatch, error) {
	if maxPerBatch < 1 {
		return nil, ErrInvalidBatchSize
	}

	parts, err := Partitions(transfers)
	if err != nil {
		return nil, err
	}

	batches := make([]model.BulkBatch, 0)
	for _, p := range parts {
		for chunk, start := 0, 0; start < len(p.Transfers); chunk, start = chunk+1, start+maxPerBatch {
			end := min(start+maxPerBatch, len(p.Transfers))
			members := make([]string, 0, end-start)
			bulkID := ""
			for _, it := range p.Transfers[start:end] {
				members = append(members, it.ID)
				bulkID = it.BulkTransactionID
			}
			batches = append(batches, model.BulkBatch{
				ID:                    newID(p.FspID, chunk),
				BulkTransactionID:     bulkID,
				DestinationFspID:      p.FspID,
				IndividualTransferIDs: members,
				State:                 model.BatchStateAgreementProcessing,
			})
		}
	}
	return batches, nil
}
