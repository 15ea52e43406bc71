package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/ids"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

func TestExpiry_NotDue(t *testing.T) {
	f := newFixture(t, WithDefaultExpiry(time.Minute))
	f.submit(testBulkRequest("bulk-1", 1))
	f.clock.Advance(59 * time.Second)

	err := f.process(&event.ProcessBulkTransactionExpiry{Ref: ref("bulk-1")})

	assert.True(t, IsOrderingError(err), "got %v", err)
	assert.Equal(t, model.BulkStateDiscoveryProcessing, f.bulk("bulk-1").State)
}

func TestExpiry_DuringDiscovery(t *testing.T) {
	f := newFixture(t, WithDefaultExpiry(time.Minute))
	f.submit(testBulkRequest("bulk-1", 3))
	f.resolve("bulk-1", 0, "fspA")
	f.clock.Advance(2 * time.Minute)

	evs := f.apply(&event.ProcessBulkTransactionExpiry{Ref: ref("bulk-1")})

	expired := single[*event.SDKOutboundBulkTransactionExpired](t, evs)
	assert.Equal(t, model.BulkStateExpired, expired.State)
	assert.Equal(t, model.PhaseCounters{Total: 3, Success: 1, Failed: 2}, expired.Counters.PartyLookup)

	bt := f.bulk("bulk-1")
	assert.Equal(t, model.BulkStateExpired, bt.State)
	assert.Equal(t, f.clock.Now(), bt.ExpiredAt)
	assert.Equal(t, []model.TransferState{
		model.TransferStateDiscoverySuccess,
		model.TransferStateDiscoveryFailed,
		model.TransferStateDiscoveryFailed,
	}, f.transferStates("bulk-1"))
	assert.Equal(t, model.ErrorCodeExpired, f.transfer("bulk-1", ids.TransferID("bulk-1", 1)).PartyError.ErrorCode)
}

func TestExpiry_DuringAgreement(t *testing.T) {
	f := newFixture(t, WithDefaultExpiry(time.Minute))
	f.discover("bulk-1", model.BulkOptions{}, "fspA", "fspB")
	reqs := f.requestQuotes("bulk-1")
	f.apply(quoteCallback(reqs[0]))
	f.clock.Advance(time.Hour)

	evs := f.apply(&event.ProcessBulkTransactionExpiry{Ref: ref("bulk-1")})

	expired := single[*event.SDKOutboundBulkTransactionExpired](t, evs)
	assert.Equal(t, model.PhaseCounters{Total: 2, Success: 1, Failed: 1}, expired.Counters.BulkQuotes)

	b := f.batch("bulk-1", reqs[1].BatchID)
	assert.Equal(t, model.BatchStateAgreementFailed, b.State)
	assert.Equal(t, model.ErrorCodeExpired, b.LastError.ErrorCode)
	assert.Equal(t, []model.TransferState{
		model.TransferStateAgreementSuccess,
		model.TransferStateAgreementFailed,
	}, f.transferStates("bulk-1"))
}

func TestExpiry_Replay(t *testing.T) {
	f := newFixture(t, WithDefaultExpiry(time.Minute))
	f.submit(testBulkRequest("bulk-1", 2))
	f.clock.Advance(time.Minute)
	f.apply(&event.ProcessBulkTransactionExpiry{Ref: ref("bulk-1")})
	expiredAt := f.bulk("bulk-1").ExpiredAt
	f.clock.Advance(time.Minute)

	evs := f.apply(&event.ProcessBulkTransactionExpiry{Ref: ref("bulk-1")})

	expired := single[*event.SDKOutboundBulkTransactionExpired](t, evs)
	assert.Equal(t, model.PhaseCounters{Total: 2, Failed: 2}, expired.Counters.PartyLookup)
	assert.Equal(t, expiredAt, f.bulk("bulk-1").ExpiredAt)
}

func TestExpiry_LaterCommands(t *testing.T) {
	f := newFixture(t, WithDefaultExpiry(time.Minute))
	f.submit(testBulkRequest("bulk-1", 2))
	f.clock.Advance(time.Minute)
	f.apply(&event.ProcessBulkTransactionExpiry{Ref: ref("bulk-1")})

	// A late lookup result is acknowledged without effect.
	evs := f.resolve("bulk-1", 0, "fspA")
	assert.Equal(t, []event.Name{event.NamePartyInfoCallbackProcessed}, names(evs))
	assert.Equal(t, model.TransferStateDiscoveryFailed, f.transfer("bulk-1", ids.TransferID("bulk-1", 0)).State)

	err := f.process(&event.ProcessSDKOutboundBulkPartyInfoRequest{Ref: ref("bulk-1")})
	assert.True(t, IsExpired(err), "got %v", err)

	err = f.process(&event.ProcessSDKOutboundBulkQuotesRequest{Ref: ref("bulk-1")})
	assert.True(t, IsExpired(err), "got %v", err)

	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Acknowledged())
}

func TestExpiry_CompletedBulkIsNotExpired(t *testing.T) {
	f := newFixture(t, WithDefaultExpiry(time.Minute))
	f.agree("bulk-1", "fspA")
	for _, req := range f.requestTransfers("bulk-1") {
		f.apply(transferCallback(req))
	}
	f.clock.Advance(time.Hour)

	due, err := f.proc.DueForExpiry(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, due)

	err = f.process(&event.ProcessBulkTransactionExpiry{Ref: ref("bulk-1")})
	assert.True(t, IsOrderingError(err), "got %v", err)
	assert.Equal(t, model.BulkStateCompleted, f.bulk("bulk-1").State)
}

func TestDueForExpiry(t *testing.T) {
	f := newFixture(t)
	f.submit(testBulkRequest("bulk-late", 1))

	soon := testBulkRequest("bulk-soon", 1)
	soon.Options.BulkExpiration = f.clock.Now().Add(time.Minute)
	f.apply(&event.ProcessSDKOutboundBulkRequest{Request: soon})

	due, err := f.proc.DueForExpiry(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, due)

	f.clock.Advance(time.Minute)
	due, err = f.proc.DueForExpiry(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bulk-soon"}, due)

	f.clock.Advance(DefaultBulkExpiry)
	due, err = f.proc.DueForExpiry(f.ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bulk-soon", "bulk-late"}, due)
}
