package harness

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/config"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/store"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/testutil"
)

func TestScenarios_Golden(t *testing.T) {
	testutil.DiscardLogs(t)
	scenarios, err := LoadDir("testdata/scenarios", "")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ResponseCarriesEveryTransfer(t *testing.T) {
	testutil.DiscardLogs(t)
	s, err := LoadScenario("testdata/scenarios/receiverfsp_partial_agreement.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	require.NotNil(t, result.Response)
	assert.Equal(t, "bulk-0001", result.Response.BulkTransactionID)
	assert.Equal(t, s.Name, result.Response.BulkHomeTransactionID)
	assert.Len(t, result.Response.IndividualTransferResults, 4)
	assert.Equal(t, 1, result.EventCount(event.NameSDKOutboundBulkResponseSentProcessed))
	assert.Zero(t, result.DeadLetters)

	home2, ok := result.Transfer("home-2")
	require.True(t, ok)
	assert.Equal(t, CodeQuoteItemRejected, home2.ErrorCode)
}

func TestRun_FixedBulkID(t *testing.T) {
	testutil.DiscardLogs(t)
	s, err := ParseScenario([]byte(`
name: fixed_id
description: caller supplies the bulk id
request:
  bulk_id: caller-bulk
  options: { auto_accept_party: true, auto_accept_quote: true }
  transfers:
    - { home: h1, identifier: "2001" }
provider:
  parties: { "2001": fspA }
expect:
  state: RESPONSE_SENT
  response: COMPLETED
  transfers: { h1: TRANSFER_SUCCESS }
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "caller-bulk", result.BulkID)
	assert.Equal(t, 0, result.EventCount(event.NameSDKOutboundBulkAcceptQuoteRequested))
}

func TestRun_FailedExpectation(t *testing.T) {
	testutil.DiscardLogs(t)
	s, err := ParseScenario([]byte(`
name: wrong_expectation
description: expects a success the provider never gives
request:
  options: { auto_accept_party: true, auto_accept_quote: true }
  transfers:
    - { home: h1, identifier: "2001" }
provider:
  parties: { "2001": fspA }
  transfers: { fspA: { mode: error } }
expect:
  state: RESPONSE_SENT
  transfers: { h1: TRANSFER_SUCCESS }
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, []string{"transfers.h1: expected TRANSFER_SUCCESS, got TRANSFER_FAILED"}, result.Errors)
	out, ok := result.Transfer("h1")
	require.True(t, ok)
	assert.Equal(t, CodeBatchRejected, out.ErrorCode)
}

func TestRun_SilentPartyDoesNotSettleUntilExpiry(t *testing.T) {
	testutil.DiscardLogs(t)
	s, err := ParseScenario([]byte(`
name: silent_party
description: the lookup service never answers
request:
  expires: 1m
  options: { auto_accept_party: true }
  transfers:
    - { home: h1, identifier: "2001" }
provider:
  silent_parties: ["2001"]
advance: 2m
expect:
  state: RESPONSE_SENT
  response: EXPIRED
  counters: { party_lookup: [1, 0, 1] }
  transfers: { h1: DISCOVERY_FAILED }
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	out, _ := result.Transfer("h1")
	assert.Equal(t, model.ErrorCodeExpired, out.ErrorCode)
}

func TestRun_SQLite(t *testing.T) {
	testutil.DiscardLogs(t)
	db, err := store.Open(filepath.Join(t.TempDir(), "bulk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := LoadScenario("testdata/scenarios/manual_acceptance.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), s, WithHashStore(db), WithSettleTimeout(time.Minute))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, model.BulkStateResponseSent, result.State)
}

func TestRun_WithConfig(t *testing.T) {
	testutil.DiscardLogs(t)
	cfg, err := config.ParseFrom(map[string]string{
		"BULKFLOW_KEY_PREFIX":     "tenant-a",
		"BULKFLOW_MAX_BATCH_SIZE": "1",
		"BULKFLOW_RETRY_BACKOFF":  "1ms",
		"BULKFLOW_COMMAND_TOPIC":  "a.commands",
		"BULKFLOW_DOMAIN_TOPIC":   "a.events",
	})
	require.NoError(t, err)
	s, err := ParseScenario([]byte(`
name: configured
description: batch size and topics come from the process settings
request:
  options: { auto_accept_party: true, auto_accept_quote: true }
  transfers:
    - { home: h1, identifier: "2001" }
    - { home: h2, identifier: "2002" }
provider:
  parties: { "2001": fspA, "2002": fspA }
expect:
  state: RESPONSE_SENT
  counters: { bulk_quotes: [2, 2, 0], bulk_transfers: [2, 2, 0] }
`))
	require.NoError(t, err)
	hash := store.NewMemoryHash()
	defer hash.Close()

	result, err := Run(context.Background(), s, WithConfig(cfg), WithHashStore(hash))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	keys, err := hash.Keys(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.NotEmpty(t, keys)
}
