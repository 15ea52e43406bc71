package engine

import (
	"context"
	"log/slog"
	"slices"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/batching"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/ids"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/store"
)

var agreementStates = []model.BulkState{
	model.BulkStateAgreementAcceptancePending,
	model.BulkStateAgreementCompleted,
}

// handleQuotesRequest batches the accepted transfers per destination and
// asks each destination for quotes.
//
// The batches are stored in the same commit that moves the bulk to
// AGREEMENT_PROCESSING, so only one delivery ever plans them. Members join
// their batch afterwards, before the batch is announced.
func (p *Processor) handleQuotesRequest(ctx context.Context, c *event.ProcessSDKOutboundBulkQuotesRequest, out *outbox) error {
	bt, err := p.repo.Load(ctx, c.BulkID)
	if err != nil {
		return storageError(c, "load bulk", err)
	}

	switch bt.State {
	case model.BulkStateDiscoveryAcceptanceCompleted:
	case model.BulkStateAgreementProcessing:
		return p.replayQuotesRequest(ctx, c, bt, out)
	case model.BulkStateAgreementAcceptancePending, model.BulkStateAgreementCompleted:
		return p.joinAgreement(ctx, c, out, true)
	default:
		return unexpectedState(c, bt.State)
	}

	items, err := p.loadTransfers(ctx, bt)
	if err != nil {
		return storageError(c, "load transfers", err)
	}
	batches, err := batching.MakeBatches(items, p.maxBatchSize, func(fspID string, chunk int) string {
		return ids.BatchID(bt.ID, fspID, chunk)
	})
	if err != nil {
		return malformed(c, err, "cannot batch transfers")
	}

	byID := make(map[string]model.IndividualTransfer, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	batchIDs := make([]string, 0, len(batches))
	for i := range batches {
		b := &batches[i]
		b.BulkTransactionID = bt.ID
		b.BulkQuotesRequest = bulkQuotesRequest(bt, b, byID)
		batchIDs = append(batchIDs, b.ID)
	}

	applied, bt, err := p.repo.TransitionBulkStateWithBatches(ctx, bt.ID,
		[]model.BulkState{model.BulkStateDiscoveryAcceptanceCompleted},
		func(b *model.BulkTransaction) error {
			b.BatchIDs = batchIDs
			return p.setBulkState(model.BulkStateAgreementProcessing)(b)
		},
		batches,
		store.CounterIncrement{Field: store.FieldBulkQuotesTotal, Delta: int64(len(batches))},
	)
	if err != nil {
		return storageError(c, "start agreement", err)
	}
	if !applied {
		switch bt.State {
		case model.BulkStateAgreementProcessing:
			return p.replayQuotesRequest(ctx, c, bt, out)
		case model.BulkStateAgreementAcceptancePending, model.BulkStateAgreementCompleted:
			return p.joinAgreement(ctx, c, out, true)
		}
		return unexpectedState(c, bt.State)
	}

	slog.Info("agreement started",
		"bulk_id", bt.ID,
		"batches", len(batches),
		"max_batch_size", p.maxBatchSize,
	)
	if err := p.announceQuoteBatches(ctx, c, bt, out); err != nil {
		return err
	}
	if len(batches) == 0 {
		return p.joinAgreement(ctx, c, out, false)
	}
	return nil
}

func bulkQuotesRequest(bt model.BulkTransaction, b *model.BulkBatch, byID map[string]model.IndividualTransfer) *model.BulkQuotesRequest {
	quotes := make([]model.IndividualQuote, 0, len(b.IndividualTransferIDs))
	for _, id := range b.IndividualTransferIDs {
		it := byID[id]
		to := it.Request.To
		if it.PartyResponse != nil {
			to = *it.PartyResponse
		}
		quotes = append(quotes, model.IndividualQuote{
			QuoteID:         it.ID,
			To:              to,
			AmountType:      it.Request.AmountType,
			Amount:          model.Money{Currency: it.Request.Currency, Amount: it.Request.Amount},
			TransactionType: it.Request.TransactionType,
			Note:            it.Request.Note,
		})
	}
	return &model.BulkQuotesRequest{
		BulkQuoteID:      b.ID,
		From:             bt.From,
		Expiration:       bt.Options.BulkExpiration,
		IndividualQuotes: quotes,
	}
}

// replayQuotesRequest finishes an interrupted start, re-announces the
// batches still waiting for a quote and re-runs the join.
func (p *Processor) replayQuotesRequest(ctx context.Context, c event.Command, bt model.BulkTransaction, out *outbox) error {
	if err := p.announceQuoteBatches(ctx, c, bt, out); err != nil {
		return err
	}
	return p.joinAgreement(ctx, c, out, true)
}

// announceQuoteBatches moves the members of every open batch into
// AGREEMENT_PROCESSING and requests its quotes. Members already moved
// are left alone.
func (p *Processor) announceQuoteBatches(ctx context.Context, c event.Command, bt model.BulkTransaction, out *outbox) error {
	batches, err := p.loadBatches(ctx, bt)
	if err != nil {
		return storageError(c, "load batches", err)
	}
	for _, b := range batches {
		if b.State != model.BatchStateAgreementProcessing || b.BulkQuotesRequest == nil {
			continue
		}
		for _, id := range b.IndividualTransferIDs {
			batchID := b.ID
			_, _, err := p.repo.TransitionIndividualTransfer(ctx, bt.ID, id,
				[]model.TransferState{model.TransferStateDiscoveryAccepted},
				func(t *model.IndividualTransfer) error {
					t.BatchID = batchID
					t.State = model.TransferStateAgreementProcessing
					return nil
				},
			)
			if err != nil {
				pe := storageError(c, "assign batch", err)
				pe.BatchID = b.ID
				return pe
			}
		}
		out.add(&event.BulkQuotesRequested{
			Ref:              event.Ref{BulkID: bt.ID},
			BatchID:          b.ID,
			DestinationFspID: b.DestinationFspID,
			Request:          *b.BulkQuotesRequest,
		})
	}
	return nil
}

// handleQuotesCallback records a destination's quotes for one batch.
//
// A batch succeeds only when the callback carries no error and at least
// one result. Members are matched by quote id; a member without a result,
// or with a result carrying an error, fails on its own.
func (p *Processor) handleQuotesCallback(ctx context.Context, c *event.ProcessBulkQuotesCallback, out *outbox) error {
	batch, err := p.loadBatch(ctx, c, c.BulkID, c.BatchID)
	if err != nil {
		return err
	}
	ref := event.Ref{BulkID: c.BulkID}

	if batch.State != model.BatchStateAgreementProcessing {
		out.add(&event.BulkQuotesCallbackProcessed{Ref: ref, BatchID: batch.ID, State: batch.State})
		return p.joinAgreement(ctx, c, out, true)
	}

	ok := c.ErrorInformation == nil && c.Result != nil && len(c.Result.IndividualQuoteResults) > 0
	failure := batchFailure(c.ErrorInformation, "quote")

	results := make(map[string]model.IndividualQuoteResult)
	if ok {
		for _, r := range c.Result.IndividualQuoteResults {
			results[r.QuoteID] = r
		}
	}

	for _, id := range batch.IndividualTransferIDs {
		_, _, err := p.repo.TransitionIndividualTransfer(ctx, c.BulkID, id,
			[]model.TransferState{model.TransferStateAgreementProcessing},
			func(t *model.IndividualTransfer) error {
				applyQuoteResult(t, ok, failure, results)
				return nil
			},
		)
		if err != nil {
			pe := storageError(c, "record quote", err)
			pe.BatchID = c.BatchID
			return pe
		}
	}

	applied, batch, err := p.closeBatch(ctx, c, c.BulkID, c.BatchID, model.PhaseAgreement, ok, func(b *model.BulkBatch) {
		b.BulkQuotesResponse = c.Result
		if !ok {
			b.LastError = failure
		}
	})
	if err != nil {
		return err
	}

	out.add(&event.BulkQuotesCallbackProcessed{Ref: ref, BatchID: batch.ID, State: batch.State})
	return p.joinAgreement(ctx, c, out, !applied)
}

func applyQuoteResult(t *model.IndividualTransfer, ok bool, failure *model.ErrorInformation, results map[string]model.IndividualQuoteResult) {
	if !ok {
		t.QuoteError = failure
		t.LastError = failure
		t.State = model.TransferStateAgreementFailed
		return
	}

	r, found := results[t.ID]
	switch {
	case !found:
		missing := model.NewErrorInformation(model.ErrorCodeMissingResult, "no quote result for transfer")
		t.QuoteError = missing
		t.LastError = missing
		t.State = model.TransferStateAgreementFailed
	case r.LastError != nil:
		t.QuoteResponse = &r
		t.QuoteError = r.LastError
		t.LastError = r.LastError
		t.State = model.TransferStateAgreementFailed
	default:
		t.QuoteResponse = &r
		t.State = model.TransferStateAgreementSuccess
	}
}

// joinAgreement closes agreement once every batch has an outcome.
func (p *Processor) joinAgreement(ctx context.Context, c event.Command, out *outbox, replay bool) error {
	bt, err := p.repo.Load(ctx, c.Bulk())
	if err != nil {
		return storageError(c, "load bulk", err)
	}

	if bt.State != model.BulkStateAgreementProcessing {
		if !replay {
			return nil
		}
		return p.announceAgreement(ctx, c, bt, out)
	}
	if !bt.Counters.BulkQuotes.Closed() {
		return nil
	}

	items, err := p.loadTransfers(ctx, bt)
	if err != nil {
		return storageError(c, "load transfers", err)
	}
	quoted := slices.ContainsFunc(items, func(it model.IndividualTransfer) bool {
		return it.State == model.TransferStateAgreementSuccess
	})

	next := model.BulkStateAgreementAcceptancePending
	switch {
	case !quoted:
		next = model.BulkStateAgreementCompleted
	case bt.Options.AcceptsQuoteAutomatically():
		next = model.BulkStateAgreementCompleted
		for _, it := range items {
			if err := p.decide(ctx, bt.ID, it.ID, model.TransferStateAgreementSuccess, true, setAcceptQuote); err != nil {
				return storageError(c, "accept quote", err)
			}
		}
	}

	applied, bt, err := p.repo.TransitionBulkState(ctx, bt.ID,
		[]model.BulkState{model.BulkStateAgreementProcessing},
		p.setBulkState(next),
	)
	if err != nil {
		return storageError(c, "complete agreement", err)
	}
	if !applied && !replay {
		return nil
	}
	if applied {
		slog.Info("agreement completed",
			"bulk_id", bt.ID,
			"state", bt.State,
			"batches_ok", bt.Counters.BulkQuotes.Success,
			"batches_failed", bt.Counters.BulkQuotes.Failed,
		)
	}
	return p.announceAgreement(ctx, c, bt, out)
}

func (p *Processor) announceAgreement(ctx context.Context, c event.Command, bt model.BulkTransaction, out *outbox) error {
	if !slices.Contains(agreementStates, bt.State) {
		return nil
	}
	ref := event.Ref{BulkID: bt.ID}
	out.add(&event.SDKOutboundBulkQuotesRequestProcessed{Ref: ref, State: bt.State, Counters: bt.Counters.BulkQuotes})

	if bt.State == model.BulkStateAgreementAcceptancePending {
		items, err := p.loadTransfers(ctx, bt)
		if err != nil {
			return storageError(c, "load transfers", err)
		}
		out.add(&event.SDKOutboundBulkAcceptQuoteRequested{
			Ref:       ref,
			Transfers: acceptanceItems(items, model.TransferStateAgreementSuccess),
		})
	}
	return nil
}

// handleAcceptQuote applies the caller's quote decisions. Transfers
// without a decision are rejected.
func (p *Processor) handleAcceptQuote(ctx context.Context, c *event.ProcessSDKOutboundBulkAcceptQuote, out *outbox) error {
	bt, err := p.repo.Load(ctx, c.BulkID)
	if err != nil {
		return storageError(c, "load bulk", err)
	}
	ref := event.Ref{BulkID: c.BulkID}

	switch bt.State {
	case model.BulkStateAgreementAcceptancePending:
	case model.BulkStateAgreementCompleted:
		out.add(&event.SDKOutboundBulkAcceptQuoteProcessed{Ref: ref, State: bt.State})
		return nil
	default:
		return unexpectedState(c, bt.State)
	}

	if err := p.applyDecisions(ctx, c, bt, c.Decisions, model.TransferStateAgreementSuccess, setAcceptQuote); err != nil {
		return err
	}

	_, bt, err = p.repo.TransitionBulkState(ctx, c.BulkID,
		[]model.BulkState{model.BulkStateAgreementAcceptancePending},
		p.setBulkState(model.BulkStateAgreementCompleted),
	)
	if err != nil {
		return storageError(c, "complete quote acceptance", err)
	}
	if bt.State != model.BulkStateAgreementCompleted {
		return unexpectedState(c, bt.State)
	}

	slog.Info("quote acceptance completed", "bulk_id", c.BulkID, "decisions", len(c.Decisions))
	out.add(&event.SDKOutboundBulkAcceptQuoteProcessed{Ref: ref, State: bt.State})
	return nil
}
