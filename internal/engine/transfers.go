package engine

import (
	"context"
	"log/slog"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/ids"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/store"
)

// handleTransfersRequest sends every quoted batch with accepted members
// to its destination for execution.
func (p *Processor) handleTransfersRequest(ctx context.Context, c *event.ProcessSDKOutboundBulkTransfersRequest, out *outbox) error {
	bt, err := p.repo.Load(ctx, c.BulkID)
	if err != nil {
		return storageError(c, "load bulk", err)
	}

	switch bt.State {
	case model.BulkStateAgreementCompleted:
	case model.BulkStateTransfersProcessing:
		return p.replayTransfersRequest(ctx, c, bt, out)
	case model.BulkStateCompleted:
		return p.joinTransfers(ctx, c, out, true)
	default:
		return unexpectedState(c, bt.State)
	}

	batches, err := p.loadBatches(ctx, bt)
	if err != nil {
		return storageError(c, "load batches", err)
	}
	items, err := p.loadTransfers(ctx, bt)
	if err != nil {
		return storageError(c, "load transfers", err)
	}
	byID := make(map[string]model.IndividualTransfer, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	sending := make([]model.BulkBatch, 0, len(batches))
	for _, b := range batches {
		switch b.State {
		case model.BatchStateTransfersProcessing:
			// Moved by an earlier delivery that did not finish.
			sending = append(sending, b)
			continue
		case model.BatchStateAgreementCompleted:
		default:
			continue
		}

		req := bulkTransfersRequest(bt, b, byID)
		if len(req.IndividualTransfers) == 0 {
			continue
		}
		for _, tr := range req.IndividualTransfers {
			_, _, err := p.repo.TransitionIndividualTransfer(ctx, bt.ID, tr.TransferID,
				[]model.TransferState{model.TransferStateAgreementAccepted},
				func(t *model.IndividualTransfer) error {
					t.State = model.TransferStateTransferProcessing
					return nil
				},
			)
			if err != nil {
				return storageError(c, "start transfer", err)
			}
		}
		_, moved, err := p.repo.TransitionBulkBatch(ctx, bt.ID, b.ID,
			[]model.BatchState{model.BatchStateAgreementCompleted},
			func(batch *model.BulkBatch) error {
				batch.BulkTransfersRequest = req
				batch.State = model.BatchStateTransfersProcessing
				return nil
			},
		)
		if err != nil {
			return storageError(c, "start batch transfers", err)
		}
		sending = append(sending, moved)
	}

	applied, bt, err := p.repo.TransitionBulkState(ctx, bt.ID,
		[]model.BulkState{model.BulkStateAgreementCompleted},
		p.setBulkState(model.BulkStateTransfersProcessing),
		store.CounterIncrement{Field: store.FieldBulkTransfersTotal, Delta: int64(len(sending))},
	)
	if err != nil {
		return storageError(c, "start transfers", err)
	}
	if !applied {
		if bt.State == model.BulkStateTransfersProcessing {
			return p.replayTransfersRequest(ctx, c, bt, out)
		}
		return unexpectedState(c, bt.State)
	}

	slog.Info("transfers started", "bulk_id", bt.ID, "batches", len(sending))
	for _, b := range sending {
		if b.BulkTransfersRequest == nil {
			continue
		}
		out.add(&event.BulkTransfersRequested{
			Ref:              event.Ref{BulkID: bt.ID},
			BatchID:          b.ID,
			DestinationFspID: b.DestinationFspID,
			Request:          *b.BulkTransfersRequest,
		})
	}

	if len(sending) == 0 {
		return p.joinTransfers(ctx, c, out, false)
	}
	return nil
}

// bulkTransfersRequest builds the transfer request for the accepted
// members of b. Members already moved by an interrupted delivery are
// included. The quoted transfer amount wins over the requested one.
func bulkTransfersRequest(bt model.BulkTransaction, b model.BulkBatch, byID map[string]model.IndividualTransfer) *model.BulkTransfersRequest {
	transfers := make([]model.IndividualBulkTransfer, 0, len(b.IndividualTransferIDs))
	for _, id := range b.IndividualTransferIDs {
		it, ok := byID[id]
		if !ok {
			continue
		}
		if it.State != model.TransferStateAgreementAccepted && it.State != model.TransferStateTransferProcessing {
			continue
		}

		tr := model.IndividualBulkTransfer{
			TransferID: it.ID,
			To:         it.Request.To,
			Amount:     model.Money{Currency: it.Request.Currency, Amount: it.Request.Amount},
		}
		if it.PartyResponse != nil {
			tr.To = *it.PartyResponse
		}
		if q := it.QuoteResponse; q != nil {
			if q.TransferAmount != nil {
				tr.Amount = *q.TransferAmount
			}
			tr.IlpPacket = q.IlpPacket
			tr.Condition = q.Condition
		}
		transfers = append(transfers, tr)
	}

	quoteID := b.ID
	if b.BulkQuotesResponse != nil && b.BulkQuotesResponse.BulkQuoteID != "" {
		quoteID = b.BulkQuotesResponse.BulkQuoteID
	}
	return &model.BulkTransfersRequest{
		BulkTransferID:      ids.BulkTransferID(b.ID),
		BulkQuoteID:         quoteID,
		From:                bt.From,
		IndividualTransfers: transfers,
	}
}

func (p *Processor) replayTransfersRequest(ctx context.Context, c event.Command, bt model.BulkTransaction, out *outbox) error {
	batches, err := p.loadBatches(ctx, bt)
	if err != nil {
		return storageError(c, "load batches", err)
	}
	for _, b := range batches {
		if b.State != model.BatchStateTransfersProcessing || b.BulkTransfersRequest == nil {
			continue
		}
		out.add(&event.BulkTransfersRequested{
			Ref:              event.Ref{BulkID: bt.ID},
			BatchID:          b.ID,
			DestinationFspID: b.DestinationFspID,
			Request:          *b.BulkTransfersRequest,
		})
	}
	return p.joinTransfers(ctx, c, out, true)
}

// handleTransfersCallback records a destination's transfer results for
// one batch, with the same batch rule as quotes.
func (p *Processor) handleTransfersCallback(ctx context.Context, c *event.ProcessBulkTransfersCallback, out *outbox) error {
	batch, err := p.loadBatch(ctx, c, c.BulkID, c.BatchID)
	if err != nil {
		return err
	}
	ref := event.Ref{BulkID: c.BulkID}

	if batch.State != model.BatchStateTransfersProcessing {
		if batch.State != model.BatchStateTransfersCompleted && batch.State != model.BatchStateTransfersFailed {
			return &ProcessingError{
				Code:    ErrCodeOrdering,
				Message: "transfer callback before transfers were requested",
				Command: c.EventName(),
				BulkID:  c.BulkID,
				BatchID: c.BatchID,
			}
		}
		out.add(&event.BulkTransfersCallbackProcessed{Ref: ref, BatchID: batch.ID, State: batch.State})
		return p.joinTransfers(ctx, c, out, true)
	}

	ok := c.ErrorInformation == nil && c.Result != nil && len(c.Result.IndividualTransferResults) > 0
	failure := batchFailure(c.ErrorInformation, "transfer")

	results := make(map[string]model.IndividualTransferResult)
	if ok {
		for _, r := range c.Result.IndividualTransferResults {
			results[r.TransferID] = r
		}
	}

	for _, id := range batch.IndividualTransferIDs {
		_, _, err := p.repo.TransitionIndividualTransfer(ctx, c.BulkID, id,
			[]model.TransferState{model.TransferStateTransferProcessing},
			func(t *model.IndividualTransfer) error {
				applyTransferResult(t, ok, failure, results)
				return nil
			},
		)
		if err != nil {
			pe := storageError(c, "record transfer", err)
			pe.BatchID = c.BatchID
			return pe
		}
	}

	applied, batch, err := p.closeBatch(ctx, c, c.BulkID, c.BatchID, model.PhaseTransfers, ok, func(b *model.BulkBatch) {
		b.BulkTransfersResponse = c.Result
		if !ok {
			b.LastError = failure
		}
	})
	if err != nil {
		return err
	}

	out.add(&event.BulkTransfersCallbackProcessed{Ref: ref, BatchID: batch.ID, State: batch.State})
	return p.joinTransfers(ctx, c, out, !applied)
}

func applyTransferResult(t *model.IndividualTransfer, ok bool, failure *model.ErrorInformation, results map[string]model.IndividualTransferResult) {
	if !ok {
		t.TransferError = failure
		t.LastError = failure
		t.State = model.TransferStateTransferFailed
		return
	}

	r, found := results[t.ID]
	switch {
	case !found:
		missing := model.NewErrorInformation(model.ErrorCodeMissingResult, "no transfer result for transfer")
		t.TransferError = missing
		t.LastError = missing
		t.State = model.TransferStateTransferFailed
	case r.Failed():
		errInfo := r.LastError
		if errInfo == nil {
			errInfo = model.NewErrorInformation(model.ErrorCodeTransferFailed, "transfer aborted")
		}
		t.TransferResponse = &r
		t.TransferError = errInfo
		t.LastError = errInfo
		t.State = model.TransferStateTransferFailed
	default:
		t.TransferResponse = &r
		t.State = model.TransferStateTransferSuccess
	}
}

// joinTransfers completes the bulk once every batch sent for execution
// has an outcome.
func (p *Processor) joinTransfers(ctx context.Context, c event.Command, out *outbox, replay bool) error {
	bt, err := p.repo.Load(ctx, c.Bulk())
	if err != nil {
		return storageError(c, "load bulk", err)
	}

	if bt.State == model.BulkStateTransfersProcessing {
		if !bt.Counters.BulkTransfers.Closed() {
			return nil
		}
		var applied bool
		applied, bt, err = p.repo.TransitionBulkState(ctx, bt.ID,
			[]model.BulkState{model.BulkStateTransfersProcessing},
			p.setBulkState(model.BulkStateCompleted),
		)
		if err != nil {
			return storageError(c, "complete transfers", err)
		}
		if !applied && !replay {
			return nil
		}
		if applied {
			slog.Info("transfers completed",
				"bulk_id", bt.ID,
				"batches_ok", bt.Counters.BulkTransfers.Success,
				"batches_failed", bt.Counters.BulkTransfers.Failed,
			)
		}
	} else if !replay {
		return nil
	}

	if bt.State == model.BulkStateCompleted {
		out.add(&event.SDKOutboundBulkTransfersRequestProcessed{
			Ref:      event.Ref{BulkID: bt.ID},
			State:    bt.State,
			Counters: bt.Counters.BulkTransfers,
		})
	}
	return nil
}
