package engine

import (
	"context"
	"log/slog"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/store"
)

// phaseCounters names the counter fields of a batched phase.
type phaseCounters struct {
	total, success, failed store.CounterField
}

var batchCounters = map[model.Phase]phaseCounters{
	model.PhaseAgreement: {store.FieldBulkQuotesTotal, store.FieldBulkQuotesSuccess, store.FieldBulkQuotesFailed},
	model.PhaseTransfers: {store.FieldBulkTransfersTotal, store.FieldBulkTransfersSuccess, store.FieldBulkTransfersFailed},
}

// closeBatch moves a batch out of the phase's processing state and counts
// the outcome in the same atomic step. It reports whether this call made
// the transition.
func (p *Processor) closeBatch(
	ctx context.Context,
	c event.Command,
	bulkID, batchID string,
	phase model.Phase,
	ok bool,
	mutate func(*model.BulkBatch),
) (bool, model.BulkBatch, error) {
	fields := batchCounters[phase]
	inc := store.Inc(fields.failed)
	if ok {
		inc = store.Inc(fields.success)
	}
	state := phase.Outcome(ok)

	applied, b, err := p.repo.TransitionBulkBatch(ctx, bulkID, batchID,
		[]model.BatchState{phase.ProcessingState()},
		func(b *model.BulkBatch) error {
			if mutate != nil {
				mutate(b)
			}
			b.State = state
			return nil
		},
		inc,
	)
	if err != nil {
		pe := storageError(c, "close batch", err)
		pe.BatchID = batchID
		return false, model.BulkBatch{}, pe
	}
	if applied {
		p.recorder.BatchClosed(phase, b.State)
		slog.Info("batch closed",
			"bulk_id", bulkID,
			"batch_id", batchID,
			"phase", phase,
			"state", b.State,
			"destination", b.DestinationFspID,
		)
	}
	return applied, b, nil
}

// batchFailure returns the error recorded on members of a failed batch.
func batchFailure(errInfo *model.ErrorInformation, what string) *model.ErrorInformation {
	if errInfo != nil {
		return errInfo
	}
	return model.NewErrorInformation(model.ErrorCodeMissingResult, "no "+what+" result")
}

// loadBatch reads a batch and maps a missing one to malformed input.
func (p *Processor) loadBatch(ctx context.Context, c event.Command, bulkID, batchID string) (model.BulkBatch, error) {
	b, err := p.repo.GetBulkBatch(ctx, bulkID, batchID)
	if err != nil {
		pe := storageError(c, "load batch", err)
		pe.BatchID = batchID
		return model.BulkBatch{}, pe
	}
	return b, nil
}
