package engine

import (
	"context"
	"log/slog"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

// BuildBulkResponse assembles the caller-facing outcome of a bulk from the
// bulk and its transfers.
func BuildBulkResponse(bt model.BulkTransaction, items []model.IndividualTransfer) model.BulkResponse {
	state := model.ResponseStateCompleted
	if !bt.ExpiredAt.IsZero() {
		state = model.ResponseStateExpired
	}

	results := make([]model.IndividualTransferOutcome, 0, len(items))
	for _, it := range items {
		to := it.Request.To
		if it.PartyResponse != nil {
			to = *it.PartyResponse
		}
		results = append(results, model.IndividualTransferOutcome{
			TransferID:        it.ID,
			HomeTransactionID: it.Request.HomeTransactionID,
			State:             it.State,
			To:                to,
			Amount:            model.Money{Currency: it.Request.Currency, Amount: it.Request.Amount},
			QuoteResponse:     it.QuoteResponse,
			TransferResponse:  it.TransferResponse,
			LastError:         it.LastError,
		})
	}

	return model.BulkResponse{
		BulkTransactionID:         bt.ID,
		BulkHomeTransactionID:     bt.BulkHomeTransactionID,
		CurrentState:              state,
		Options:                   bt.Options,
		Counters:                  bt.Counters,
		IndividualTransferResults: results,
	}
}

// respondable reports whether the bulk is ready for its final response.
func respondable(bt model.BulkTransaction) bool {
	switch bt.State {
	case model.BulkStateCompleted, model.BulkStateExpired:
		return true
	case model.BulkStateDiscoveryCompleted:
		return bt.Options.OnlyValidateParty
	}
	return false
}

// handlePrepareResponse builds the final response and hands it to the
// decision process for delivery.
func (p *Processor) handlePrepareResponse(ctx context.Context, c *event.PrepareSDKOutboundBulkResponse, out *outbox) error {
	bt, err := p.repo.Load(ctx, c.BulkID)
	if err != nil {
		return storageError(c, "load bulk", err)
	}
	if !respondable(bt) && bt.State != model.BulkStateResponseProcessing {
		return &ProcessingError{
			Code:    ErrCodeOrdering,
			Message: "bulk is not finished in state " + string(bt.State),
			Command: c.EventName(),
			BulkID:  c.BulkID,
		}
	}

	items, err := p.loadTransfers(ctx, bt)
	if err != nil {
		return storageError(c, "load transfers", err)
	}
	resp := BuildBulkResponse(bt, items)

	if bt.State != model.BulkStateResponseProcessing {
		applied, after, err := p.repo.TransitionBulkState(ctx, bt.ID,
			[]model.BulkState{bt.State},
			p.setBulkState(model.BulkStateResponseProcessing),
		)
		if err != nil {
			return storageError(c, "prepare response", err)
		}
		if !applied && after.State != model.BulkStateResponseProcessing {
			return unexpectedState(c, after.State)
		}
		if applied {
			slog.Info("bulk response prepared",
				"bulk_id", bt.ID,
				"outcome", resp.CurrentState,
				"transfers", len(resp.IndividualTransferResults),
			)
		}
	}

	out.add(&event.SDKOutboundBulkResponsePrepared{Ref: event.Ref{BulkID: bt.ID}, Response: resp})
	return nil
}

// handleResponseSent records that the response reached the caller.
func (p *Processor) handleResponseSent(ctx context.Context, c *event.ProcessSDKOutboundBulkResponseSent, out *outbox) error {
	_, bt, err := p.repo.TransitionBulkState(ctx, c.BulkID,
		[]model.BulkState{model.BulkStateResponseProcessing},
		p.setBulkState(model.BulkStateResponseSent),
	)
	if err != nil {
		return storageError(c, "record response sent", err)
	}
	if bt.State != model.BulkStateResponseSent {
		return unexpectedState(c, bt.State)
	}

	slog.Info("bulk response sent", "bulk_id", c.BulkID)
	out.add(&event.SDKOutboundBulkResponseSentProcessed{Ref: event.Ref{BulkID: c.BulkID}, State: bt.State})
	return nil
}
