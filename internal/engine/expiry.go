package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/store"
)

func expirableStates() []model.BulkState {
	states := make([]model.BulkState, 0, 10)
	for _, s := range model.BulkStates() {
		if s.Expirable() {
			states = append(states, s)
		}
	}
	return states
}

// due reports whether bt should be expired at now.
func due(bt model.BulkTransaction, now time.Time) bool {
	exp := bt.Options.BulkExpiration
	return bt.State.Expirable() && !exp.IsZero() && !now.Before(exp)
}

// handleExpiry expires a bulk whose deadline passed. The bulk moves to
// EXPIRED first so that no phase can close concurrently; then every
// in-flight transfer and batch fails with a timeout.
func (p *Processor) handleExpiry(ctx context.Context, c *event.ProcessBulkTransactionExpiry, out *outbox) error {
	bt, err := p.repo.Load(ctx, c.BulkID)
	if err != nil {
		return storageError(c, "load bulk", err)
	}

	now := p.clock.Now()
	if bt.State != model.BulkStateExpired {
		if !due(bt, now) {
			return &ProcessingError{
				Code:    ErrCodeOrdering,
				Message: fmt.Sprintf("bulk in state %s is not due for expiry", bt.State),
				Command: c.EventName(),
				BulkID:  c.BulkID,
			}
		}

		var applied bool
		applied, bt, err = p.repo.TransitionBulkState(ctx, bt.ID, expirableStates(),
			func(b *model.BulkTransaction) error {
				b.State = model.BulkStateExpired
				b.ExpiredAt = now
				b.UpdatedAt = now
				return nil
			},
		)
		if err != nil {
			return storageError(c, "expire bulk", err)
		}
		if !applied && bt.State != model.BulkStateExpired {
			return unexpectedState(c, bt.State)
		}
		if applied {
			slog.Info("bulk expired", "bulk_id", bt.ID, "expiration", bt.Options.BulkExpiration)
		}
	}

	// Runs on replays too, finishing an interrupted cleanup.
	if err := p.failInFlight(ctx, c, bt); err != nil {
		return err
	}

	bt, err = p.repo.Load(ctx, bt.ID)
	if err != nil {
		return storageError(c, "load bulk", err)
	}
	out.add(&event.SDKOutboundBulkTransactionExpired{Ref: event.Ref{BulkID: bt.ID}, State: bt.State, Counters: bt.Counters})
	return nil
}

func (p *Processor) failInFlight(ctx context.Context, c event.Command, bt model.BulkTransaction) error {
	timeout := model.NewErrorInformation(model.ErrorCodeExpired, "bulk transaction expired")

	for _, id := range bt.IndividualTransferIDs {
		it, err := p.repo.GetIndividualTransfer(ctx, bt.ID, id)
		if err != nil {
			return storageError(c, "load transfer", err)
		}

		var incs []store.CounterIncrement
		switch it.State {
		case model.TransferStateDiscoveryProcessing:
			incs = append(incs, store.Inc(store.FieldPartyLookupFailed))
		case model.TransferStateAgreementProcessing, model.TransferStateTransferProcessing:
		default:
			continue
		}
		_, _, err = p.repo.TransitionIndividualTransfer(ctx, bt.ID, id, []model.TransferState{it.State},
			func(t *model.IndividualTransfer) error {
				switch t.State {
				case model.TransferStateDiscoveryProcessing:
					t.PartyError = timeout
					t.State = model.TransferStateDiscoveryFailed
				case model.TransferStateAgreementProcessing:
					t.QuoteError = timeout
					t.State = model.TransferStateAgreementFailed
				case model.TransferStateTransferProcessing:
					t.TransferError = timeout
					t.State = model.TransferStateTransferFailed
				}
				t.LastError = timeout
				return nil
			},
			incs...,
		)
		if err != nil {
			return storageError(c, "expire transfer", err)
		}
	}

	for _, id := range bt.BatchIDs {
		b, err := p.repo.GetBulkBatch(ctx, bt.ID, id)
		if err != nil {
			return storageError(c, "load batch", err)
		}

		var phase model.Phase
		switch b.State {
		case model.BatchStateAgreementProcessing:
			phase = model.PhaseAgreement
		case model.BatchStateTransfersProcessing:
			phase = model.PhaseTransfers
		default:
			continue
		}
		if _, _, err := p.closeBatch(ctx, c, bt.ID, id, phase, false, func(b *model.BulkBatch) {
			b.LastError = timeout
		}); err != nil {
			return err
		}
	}
	return nil
}

// DueForExpiry returns the ids of bulks whose expiration has passed and
// that can still be expired.
func (p *Processor) DueForExpiry(ctx context.Context) ([]string, error) {
	bulkIDs, err := p.repo.GetAllBulkIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bulks: %w", err)
	}

	now := p.clock.Now()
	var expired []string
	for _, id := range bulkIDs {
		bt, err := p.repo.Load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load bulk %s: %w", id, err)
		}
		if due(bt, now) {
			expired = append(expired, id)
		}
	}
	return expired, nil
}
