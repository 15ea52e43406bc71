package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/ids"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/store"
)

func TestQuotesRequest_BatchesPerDestination(t *testing.T) {
	f := newFixture(t, WithMaxBatchSize(2))
	f.discover("bulk-1", model.BulkOptions{}, "fspA", "fspA", "fspA", "fspB", "")
	tid := func(i int) string { return ids.TransferID("bulk-1", i) }

	reqs := f.requestQuotes("bulk-1")

	require.Len(t, reqs, 3)
	assert.Equal(t, ids.BatchID("bulk-1", "fspA", 0), reqs[0].BatchID)
	assert.Equal(t, ids.BatchID("bulk-1", "fspA", 1), reqs[1].BatchID)
	assert.Equal(t, ids.BatchID("bulk-1", "fspB", 0), reqs[2].BatchID)
	assert.Equal(t, "fspB", reqs[2].DestinationFspID)

	first := reqs[0].Request
	assert.Equal(t, reqs[0].BatchID, first.BulkQuoteID)
	assert.Equal(t, "payerfsp", first.From.FspID())
	require.Len(t, first.IndividualQuotes, 2)
	assert.Equal(t, tid(0), first.IndividualQuotes[0].QuoteID)
	assert.Equal(t, tid(1), first.IndividualQuotes[1].QuoteID)
	assert.Equal(t, "fspA", first.IndividualQuotes[0].To.FspID())
	assert.Equal(t, "USD", first.IndividualQuotes[0].Amount.Currency)

	bt := f.bulk("bulk-1")
	assert.Equal(t, model.BulkStateAgreementProcessing, bt.State)
	assert.Equal(t, []string{reqs[0].BatchID, reqs[1].BatchID, reqs[2].BatchID}, bt.BatchIDs)
	assert.Equal(t, model.PhaseCounters{Total: 3}, bt.Counters.BulkQuotes)

	assert.Equal(t, reqs[1].BatchID, f.transfer("bulk-1", tid(2)).BatchID)
	assert.Equal(t, model.TransferStateDiscoveryFailed, f.transfer("bulk-1", tid(4)).State)
	assert.Empty(t, f.transfer("bulk-1", tid(4)).BatchID)

	b := f.batch("bulk-1", reqs[2].BatchID)
	assert.Equal(t, model.BatchStateAgreementProcessing, b.State)
	assert.Equal(t, []string{tid(3)}, b.IndividualTransferIDs)
}

func TestQuotesCallback_PartialFailure(t *testing.T) {
	f := newFixture(t, WithMaxBatchSize(2))
	f.discover("bulk-1", model.BulkOptions{}, "fspA", "fspA", "fspA", "fspB", "")
	reqs := f.requestQuotes("bulk-1")
	require.Len(t, reqs, 3)

	evs := f.apply(quoteCallback(reqs[0]))
	assert.Equal(t, []event.Name{event.NameBulkQuotesCallbackProcessed}, names(evs))
	assert.Equal(t, model.BatchStateAgreementCompleted, single[*event.BulkQuotesCallbackProcessed](t, evs).State)

	// A result without quotes fails the batch.
	f.apply(&event.ProcessBulkQuotesCallback{
		Ref:     ref("bulk-1"),
		BatchID: reqs[1].BatchID,
		Result:  &model.BulkQuotesResult{BulkQuoteID: reqs[1].BatchID},
	})

	evs = f.apply(&event.ProcessBulkQuotesCallback{
		Ref:              ref("bulk-1"),
		BatchID:          reqs[2].BatchID,
		ErrorInformation: model.NewErrorInformation("3200", "destination unavailable"),
	})

	assert.Equal(t, []event.Name{
		event.NameBulkQuotesCallbackProcessed,
		event.NameSDKOutboundBulkQuotesRequestProcessed,
		event.NameSDKOutboundBulkAcceptQuoteRequested,
	}, names(evs))

	processed := single[*event.SDKOutboundBulkQuotesRequestProcessed](t, evs)
	assert.Equal(t, model.BulkStateAgreementAcceptancePending, processed.State)
	assert.Equal(t, model.PhaseCounters{Total: 3, Success: 1, Failed: 2}, processed.Counters)

	accept := single[*event.SDKOutboundBulkAcceptQuoteRequested](t, evs)
	require.Len(t, accept.Transfers, 2)
	require.NotNil(t, accept.Transfers[0].QuoteResponse)
	assert.Equal(t, "ilp-"+accept.Transfers[0].TransferID, accept.Transfers[0].QuoteResponse.IlpPacket)

	assert.Equal(t, []model.TransferState{
		model.TransferStateAgreementSuccess,
		model.TransferStateAgreementSuccess,
		model.TransferStateAgreementFailed,
		model.TransferStateAgreementFailed,
		model.TransferStateDiscoveryFailed,
	}, f.transferStates("bulk-1"))

	empty := f.transfer("bulk-1", ids.TransferID("bulk-1", 2))
	assert.Equal(t, model.ErrorCodeMissingResult, empty.QuoteError.ErrorCode)
	rejected := f.transfer("bulk-1", ids.TransferID("bulk-1", 3))
	assert.Equal(t, "3200", rejected.LastError.ErrorCode)

	failed := f.batch("bulk-1", reqs[2].BatchID)
	assert.Equal(t, model.BatchStateAgreementFailed, failed.State)
	assert.Equal(t, "3200", failed.LastError.ErrorCode)
}

func TestQuotesCallback_MembersFailIndividually(t *testing.T) {
	f := newFixture(t)
	f.discover("bulk-1", model.BulkOptions{}, "fspA", "fspA", "fspA")
	reqs := f.requestQuotes("bulk-1")
	require.Len(t, reqs, 1)

	cb := quoteCallback(reqs[0])
	// Drop the second quote and mark the third as failed.
	third := cb.Result.IndividualQuoteResults[2]
	third.LastError = model.NewErrorInformation("5200", "payee limit exceeded")
	cb.Result.IndividualQuoteResults = []model.IndividualQuoteResult{cb.Result.IndividualQuoteResults[0], third}

	f.apply(cb)

	assert.Equal(t, model.BatchStateAgreementCompleted, f.batch("bulk-1", reqs[0].BatchID).State)
	assert.Equal(t, []model.TransferState{
		model.TransferStateAgreementSuccess,
		model.TransferStateAgreementFailed,
		model.TransferStateAgreementFailed,
	}, f.transferStates("bulk-1"))
	assert.Equal(t, "5200", f.transfer("bulk-1", ids.TransferID("bulk-1", 2)).QuoteError.ErrorCode)
}

func TestQuotesCallback_ReplayDoesNotCountTwice(t *testing.T) {
	f := newFixture(t)
	f.discover("bulk-1", model.BulkOptions{}, "fspA", "fspB")
	reqs := f.requestQuotes("bulk-1")
	require.Len(t, reqs, 2)
	f.apply(quoteCallback(reqs[0]))

	evs := f.apply(quoteCallback(reqs[0]))

	assert.Equal(t, []event.Name{event.NameBulkQuotesCallbackProcessed}, names(evs))
	assert.Equal(t, model.PhaseCounters{Total: 2, Success: 1}, f.bulk("bulk-1").Counters.BulkQuotes)
}

func TestQuotesCallback_UnknownBatchIsRedelivered(t *testing.T) {
	f := newFixture(t)
	f.discover("bulk-1", model.BulkOptions{}, "fspA")
	f.requestQuotes("bulk-1")

	err := f.process(&event.ProcessBulkQuotesCallback{Ref: ref("bulk-1"), BatchID: "no-such-batch"})

	assert.True(t, IsNotFound(err), "got %v", err)
	assert.ErrorIs(t, err, store.ErrNotFound)
	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "no-such-batch", pe.BatchID)
	assert.False(t, pe.Acknowledged())
}

func TestQuotesCallback_ConcurrentJoinFiresOnce(t *testing.T) {
	f := newFixture(t, WithMaxBatchSize(1))
	fsps := []string{"fspA", "fspA", "fspB", "fspB", "fspC", "fspD", "fspD", "fspE"}
	f.discover("bulk-1", model.BulkOptions{}, fsps...)
	reqs := f.requestQuotes("bulk-1")
	require.Len(t, reqs, len(fsps))

	var g errgroup.Group
	for _, req := range reqs {
		g.Go(func() error {
			return f.proc.Process(context.Background(), quoteCallback(req))
		})
	}
	require.NoError(t, g.Wait())

	evs := f.out.take(t)
	assert.Len(t, only[*event.BulkQuotesCallbackProcessed](evs), len(fsps))
	assert.Len(t, only[*event.SDKOutboundBulkQuotesRequestProcessed](evs), 1)
	assert.Len(t, only[*event.SDKOutboundBulkAcceptQuoteRequested](evs), 1)

	bt := f.bulk("bulk-1")
	assert.Equal(t, model.BulkStateAgreementAcceptancePending, bt.State)
	assert.Equal(t, model.PhaseCounters{Total: int64(len(fsps)), Success: int64(len(fsps))}, bt.Counters.BulkQuotes)
}

func TestQuotesRequest_RedeliveryReannouncesOpenBatches(t *testing.T) {
	f := newFixture(t)
	f.discover("bulk-1", model.BulkOptions{}, "fspA", "fspB")
	reqs := f.requestQuotes("bulk-1")
	f.apply(quoteCallback(reqs[0]))

	again := f.requestQuotes("bulk-1")

	require.Len(t, again, 1)
	assert.Equal(t, reqs[1].BatchID, again[0].BatchID)
	assert.Equal(t, model.PhaseCounters{Total: 2, Success: 1}, f.bulk("bulk-1").Counters.BulkQuotes)
}

func TestQuotesRequest_BeforeAcceptanceIsOrderingError(t *testing.T) {
	f := newFixture(t)
	f.submit(testBulkRequest("bulk-1", 2))

	err := f.process(&event.ProcessSDKOutboundBulkQuotesRequest{Ref: ref("bulk-1")})

	assert.True(t, IsOrderingError(err), "got %v", err)
}

func TestQuotesRequest_NothingToQuote(t *testing.T) {
	f := newFixture(t)
	f.discover("bulk-1", model.BulkOptions{}, "", "")

	evs := f.apply(&event.ProcessSDKOutboundBulkQuotesRequest{Ref: ref("bulk-1")})

	processed := single[*event.SDKOutboundBulkQuotesRequestProcessed](t, evs)
	assert.Equal(t, model.BulkStateAgreementCompleted, processed.State)
	assert.Equal(t, model.PhaseCounters{}, processed.Counters)
	assert.Empty(t, only[*event.BulkQuotesRequested](evs))
}

func TestAgreement_AutoAcceptQuote(t *testing.T) {
	f := newFixture(t)
	f.discover("bulk-1", model.BulkOptions{AutoAcceptQuote: true}, "fspA", "fspB")
	reqs := f.requestQuotes("bulk-1")
	f.apply(quoteCallback(reqs[0]))

	evs := f.apply(&event.ProcessBulkQuotesCallback{
		Ref:              ref("bulk-1"),
		BatchID:          reqs[1].BatchID,
		ErrorInformation: model.NewErrorInformation("3200", "destination unavailable"),
	})

	processed := single[*event.SDKOutboundBulkQuotesRequestProcessed](t, evs)
	assert.Equal(t, model.BulkStateAgreementCompleted, processed.State)
	assert.Empty(t, only[*event.SDKOutboundBulkAcceptQuoteRequested](evs))
	assert.Equal(t, []model.TransferState{
		model.TransferStateAgreementAccepted,
		model.TransferStateAgreementFailed,
	}, f.transferStates("bulk-1"))
}

func TestAcceptQuote(t *testing.T) {
	f := newFixture(t)
	f.discover("bulk-1", model.BulkOptions{}, "fspA", "fspA")
	f.apply(quoteCallback(f.requestQuotes("bulk-1")[0]))
	require.Equal(t, model.BulkStateAgreementAcceptancePending, f.bulk("bulk-1").State)

	evs := f.apply(&event.ProcessSDKOutboundBulkAcceptQuote{
		Ref: ref("bulk-1"),
		Decisions: []model.AcceptDecision{
			{TransferID: ids.TransferID("bulk-1", 0), Accept: true},
			{TransferID: ids.TransferID("bulk-1", 1), Accept: false},
		},
	})

	processed := single[*event.SDKOutboundBulkAcceptQuoteProcessed](t, evs)
	assert.Equal(t, model.BulkStateAgreementCompleted, processed.State)
	assert.Equal(t, []model.TransferState{
		model.TransferStateAgreementAccepted,
		model.TransferStateAgreementRejected,
	}, f.transferStates("bulk-1"))

	evs = f.apply(&event.ProcessSDKOutboundBulkAcceptQuote{Ref: ref("bulk-1")})
	assert.Equal(t, []event.Name{event.NameSDKOutboundBulkAcceptQuoteProcessed}, names(evs))
	assert.Equal(t, model.TransferStateAgreementAccepted, f.transfer("bulk-1", ids.TransferID("bulk-1", 0)).State)
}

func TestAcceptQuote_WrongState(t *testing.T) {
	f := newFixture(t)
	f.discover("bulk-1", model.BulkOptions{}, "fspA")

	err := f.process(&event.ProcessSDKOutboundBulkAcceptQuote{Ref: ref("bulk-1")})

	assert.True(t, IsOrderingError(err), "got %v", err)
}

// batchIDsOf returns the distinct batch ids of the quote requests.
func batchIDsOf(reqs []*event.BulkQuotesRequested) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range reqs {
		if !seen[r.BatchID] {
			seen[r.BatchID] = true
			out = append(out, r.BatchID)
		}
	}
	return out
}

func TestQuotesRequest_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t, WithMaxBatchSize(2))
	f.discover("bulk-1", model.BulkOptions{}, "fspA", "fspA", "fspA", "fspB")

	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			return f.proc.Process(context.Background(), &event.ProcessSDKOutboundBulkQuotesRequest{Ref: ref("bulk-1")})
		})
	}
	require.NoError(t, g.Wait())

	bt := f.bulk("bulk-1")
	require.Len(t, bt.BatchIDs, 3)
	assert.Equal(t, model.PhaseCounters{Total: 3}, bt.Counters.BulkQuotes)

	stored, err := f.repo.GetAllBulkBatchIDs(f.ctx, "bulk-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, bt.BatchIDs, stored)

	members := map[string]string{}
	for _, id := range bt.BatchIDs {
		b := f.batch("bulk-1", id)
		assert.Equal(t, model.BatchStateAgreementProcessing, b.State)
		for _, tid := range b.IndividualTransferIDs {
			members[tid] = id
		}
	}
	require.Len(t, members, 4)
	for tid, batchID := range members {
		it := f.transfer("bulk-1", tid)
		assert.Equal(t, model.TransferStateAgreementProcessing, it.State)
		assert.Equal(t, batchID, it.BatchID)
	}

	reqs := only[*event.BulkQuotesRequested](f.out.take(t))
	assert.ElementsMatch(t, bt.BatchIDs, batchIDsOf(reqs))

	// Every duplicate answer is counted once.
	for _, req := range reqs {
		require.NoError(t, f.process(quoteCallback(req)))
	}
	bt = f.bulk("bulk-1")
	assert.Equal(t, model.PhaseCounters{Total: 3, Success: 3}, bt.Counters.BulkQuotes)
	assert.Equal(t, model.BulkStateAgreementAcceptancePending, bt.State)
}

// A duplicate that read the bulk before the phase started must not reopen
// a batch that closed in the meantime.
func TestQuotesRequest_LateDuplicateKeepsClosedBatch(t *testing.T) {
	hash := newPausingHash()
	f := newFixtureOver(t, hash)
	f.discover("bulk-1", model.BulkOptions{}, "fspA", "fspB")

	hash.arm()
	late := make(chan error, 1)
	go func() {
		late <- f.proc.Process(context.Background(), &event.ProcessSDKOutboundBulkQuotesRequest{Ref: ref("bulk-1")})
	}()
	<-hash.paused

	reqs := f.requestQuotes("bulk-1")
	require.Len(t, reqs, 2)
	f.apply(quoteCallback(reqs[0]))
	require.Equal(t, model.PhaseCounters{Total: 2, Success: 1}, f.bulk("bulk-1").Counters.BulkQuotes)

	close(hash.release)
	require.NoError(t, <-late)

	again := only[*event.BulkQuotesRequested](f.out.take(t))
	require.Len(t, again, 1)
	assert.Equal(t, reqs[1].BatchID, again[0].BatchID)
	assert.Equal(t, model.BatchStateAgreementCompleted, f.batch("bulk-1", reqs[0].BatchID).State)

	// The answered batch stays answered.
	f.apply(quoteCallback(reqs[0]))
	bt := f.bulk("bulk-1")
	assert.Equal(t, model.PhaseCounters{Total: 2, Success: 1}, bt.Counters.BulkQuotes)
	assert.Equal(t, model.BulkStateAgreementProcessing, bt.State)
}

// A start that stored its batches but stopped before moving the members
// is finished by the redelivery.
func TestQuotesRequest_RedeliveryFinishesInterruptedStart(t *testing.T) {
	f := newFixture(t)
	f.discover("bulk-1", model.BulkOptions{}, "fspA", "fspB")
	bt := f.bulk("bulk-1")

	items := make([]model.IndividualTransfer, 0, len(bt.IndividualTransferIDs))
	for _, id := range bt.IndividualTransferIDs {
		items = append(items, f.transfer("bulk-1", id))
	}
	batch := model.BulkBatch{
		ID:                    ids.BatchID("bulk-1", "fspA", 0),
		BulkTransactionID:     "bulk-1",
		DestinationFspID:      "fspA",
		IndividualTransferIDs: []string{items[0].ID},
		State:                 model.BatchStateAgreementProcessing,
	}
	batch.BulkQuotesRequest = bulkQuotesRequest(bt, &batch, map[string]model.IndividualTransfer{items[0].ID: items[0]})
	applied, _, err := f.repo.TransitionBulkStateWithBatches(f.ctx, "bulk-1",
		[]model.BulkState{model.BulkStateDiscoveryAcceptanceCompleted},
		func(b *model.BulkTransaction) error {
			b.State = model.BulkStateAgreementProcessing
			b.BatchIDs = []string{batch.ID}
			return nil
		},
		[]model.BulkBatch{batch},
		store.CounterIncrement{Field: store.FieldBulkQuotesTotal, Delta: 1},
	)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, model.TransferStateDiscoveryAccepted, f.transfer("bulk-1", items[0].ID).State)

	reqs := f.requestQuotes("bulk-1")

	require.Len(t, reqs, 1)
	assert.Equal(t, batch.ID, reqs[0].BatchID)
	it := f.transfer("bulk-1", items[0].ID)
	assert.Equal(t, model.TransferStateAgreementProcessing, it.State)
	assert.Equal(t, batch.ID, it.BatchID)
}
