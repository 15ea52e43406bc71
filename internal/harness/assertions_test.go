package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

func settledResult() *Result {
	r := NewResult()
	r.BulkID = "bulk-0001"
	r.State = model.BulkStateResponseSent
	r.Counters = model.Counters{
		PartyLookup: model.PhaseCounters{Total: 2, Success: 1, Failed: 1},
		BulkQuotes:  model.PhaseCounters{Total: 1, Success: 1},
	}
	r.Response = &model.BulkResponse{CurrentState: model.ResponseStateCompleted}
	r.Transfers = []TransferOutcome{
		{HomeTransactionID: "h1", State: model.TransferStateTransferSuccess},
		{HomeTransactionID: "h2", State: model.TransferStateDiscoveryFailed, ErrorCode: "3204"},
	}
	return r
}

func TestEvaluate_AllHold(t *testing.T) {
	msgs := Evaluate(Expectation{
		State:    model.BulkStateResponseSent,
		Response: model.ResponseStateCompleted,
		Counters: &CountersSpec{PartyLookup: []int64{2, 1, 1}, BulkQuotes: []int64{1, 1, 0}},
		Transfers: map[string]model.TransferState{
			"h1": model.TransferStateTransferSuccess,
			"h2": model.TransferStateDiscoveryFailed,
		},
	}, settledResult())

	assert.Empty(t, msgs)
}

func TestEvaluate_EmptyExpectationChecksNothing(t *testing.T) {
	assert.Empty(t, Evaluate(Expectation{}, NewResult()))
}

func TestEvaluate_Mismatches(t *testing.T) {
	msgs := Evaluate(Expectation{
		State:    model.BulkStateCompleted,
		Response: model.ResponseStateExpired,
		Counters: &CountersSpec{BulkQuotes: []int64{1, 0, 1}},
		Transfers: map[string]model.TransferState{
			"h2": model.TransferStateDiscoveryRejected,
			"h1": model.TransferStateTransferFailed,
			"h9": model.TransferStateTransferSuccess,
		},
	}, settledResult())

	assert.Equal(t, []string{
		"state: expected COMPLETED, got RESPONSE_SENT",
		"response: expected EXPIRED, got COMPLETED",
		"counters.bulk_quotes: expected 1/0/1, got 1/1/0",
		"transfers.h1: expected TRANSFER_FAILED, got TRANSFER_SUCCESS",
		"transfers.h2: expected DISCOVERY_REJECTED, got DISCOVERY_FAILED",
		"transfers.h9: expected TRANSFER_SUCCESS, got no such transfer",
	}, msgs)
}

func TestEvaluate_NoResponse(t *testing.T) {
	r := settledResult()
	r.Response = nil

	msgs := Evaluate(Expectation{Response: model.ResponseStateCompleted}, r)

	assert.Equal(t, []string{"response: expected COMPLETED, got no response"}, msgs)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")

	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
