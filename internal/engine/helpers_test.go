package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/bus"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/store"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/testutil"
)

// pausingHash parks the first transfer read made after arm until release
// is closed, so a test can interleave another command there.
type pausingHash struct {
	store.HashStore
	armed   atomic.Bool
	paused  chan struct{}
	release chan struct{}
}

func newPausingHash() *pausingHash {
	return &pausingHash{
		HashStore: store.NewMemoryHash(),
		paused:    make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (h *pausingHash) arm() { h.armed.Store(true) }

func (h *pausingHash) HGet(ctx context.Context, key, field string) ([]byte, error) {
	if strings.HasPrefix(field, "individualItem_") && h.armed.CompareAndSwap(true, false) {
		close(h.paused)
		<-h.release
	}
	return h.HashStore.HGet(ctx, key, field)
}

// captureProducer records published messages.
type captureProducer struct {
	mu   sync.Mutex
	msgs []bus.Message
	fail error
}

func (p *captureProducer) Publish(ctx context.Context, msgs ...bus.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

// take decodes and clears the recorded messages.
func (p *captureProducer) take(t *testing.T) []event.DomainEvent {
	t.Helper()
	p.mu.Lock()
	msgs := p.msgs
	p.msgs = nil
	p.mu.Unlock()

	out := make([]event.DomainEvent, 0, len(msgs))
	for _, msg := range msgs {
		env, err := event.FromMessage(msg)
		require.NoError(t, err)
		ev, err := event.DecodeDomainEvent(env)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

// takeMessages returns and clears the raw recorded messages.
func (p *captureProducer) takeMessages() []bus.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.msgs
	p.msgs = nil
	return msgs
}

// countingRecorder counts Recorder callbacks by label.
type countingRecorder struct {
	mu       sync.Mutex
	commands map[string]int
	events   map[string]int
	batches  map[model.BatchState]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		commands: map[string]int{},
		events:   map[string]int{},
		batches:  map[model.BatchState]int{},
	}
}

func (r *countingRecorder) CommandProcessed(command, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[command+"/"+outcome]++
}

func (r *countingRecorder) DomainEventEmitted(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[name]++
}

func (r *countingRecorder) BatchClosed(_ model.Phase, state model.BatchState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[state]++
}

// fixture is a processor over an in-memory store.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	repo  *store.Repository
	out   *captureProducer
	clock *testutil.FakeClock
	proc  *Processor
}

func newFixture(t *testing.T, opts ...ProcessorOption) *fixture {
	t.Helper()
	return newFixtureOver(t, store.NewMemoryHash(), opts...)
}

func newFixtureOver(t *testing.T, hash store.HashStore, opts ...ProcessorOption) *fixture {
	t.Helper()
	testutil.DiscardLogs(t)

	ctx := context.Background()
	repo := store.NewRepository(hash)
	require.NoError(t, repo.Init(ctx))

	f := &fixture{
		t:     t,
		ctx:   ctx,
		repo:  repo,
		out:   &captureProducer{},
		clock: testutil.NewFakeClock(testutil.Epoch),
	}
	f.proc = NewProcessor(repo, f.out, append([]ProcessorOption{WithClock(f.clock)}, opts...)...)
	return f
}

func (f *fixture) process(cmd event.Command) error {
	return f.proc.Process(f.ctx, cmd)
}

// apply processes cmd, requires success and returns the emitted events.
func (f *fixture) apply(cmd event.Command) []event.DomainEvent {
	f.t.Helper()
	require.NoError(f.t, f.process(cmd))
	return f.out.take(f.t)
}

func (f *fixture) bulk(id string) model.BulkTransaction {
	f.t.Helper()
	bt, err := f.repo.Load(f.ctx, id)
	require.NoError(f.t, err)
	return bt
}

func (f *fixture) transfer(bulkID, id string) model.IndividualTransfer {
	f.t.Helper()
	it, err := f.repo.GetIndividualTransfer(f.ctx, bulkID, id)
	require.NoError(f.t, err)
	return it
}

func (f *fixture) batch(bulkID, id string) model.BulkBatch {
	f.t.Helper()
	b, err := f.repo.GetBulkBatch(f.ctx, bulkID, id)
	require.NoError(f.t, err)
	return b
}

// transferStates returns the state of every transfer of a bulk in
// submission order.
func (f *fixture) transferStates(bulkID string) []model.TransferState {
	f.t.Helper()
	bt := f.bulk(bulkID)
	states := make([]model.TransferState, 0, len(bt.IndividualTransferIDs))
	for _, id := range bt.IndividualTransferIDs {
		states = append(states, f.transfer(bulkID, id).State)
	}
	return states
}

// submit creates a bulk and starts discovery.
func (f *fixture) submit(req model.BulkRequest) []event.DomainEvent {
	f.t.Helper()
	f.apply(&event.ProcessSDKOutboundBulkRequest{Request: req})
	return f.apply(&event.ProcessSDKOutboundBulkPartyInfoRequest{Ref: ref(req.BulkTransactionID)})
}

// resolve answers the lookup of the index-th transfer with a party at
// fspID, or with a not-found error when fspID is empty.
func (f *fixture) resolve(bulkID string, index int, fspID string) []event.DomainEvent {
	f.t.Helper()
	return f.apply(partyCallback(f.bulk(bulkID), index, fspID))
}

func partyCallback(bt model.BulkTransaction, index int, fspID string) *event.ProcessPartyInfoCallback {
	c := &event.ProcessPartyInfoCallback{
		Ref:        ref(bt.ID),
		TransferID: bt.IndividualTransferIDs[index],
	}
	if fspID == "" {
		c.ErrorInformation = model.NewErrorInformation(model.ErrorCodePartyNotFound, "party not found")
		return c
	}
	c.Party = testutil.ResolvedParty(bt.IndividualTransferIDs[index], fspID)
	return c
}

// quoteCallback answers a batch with a quote for every member.
func quoteCallback(req *event.BulkQuotesRequested) *event.ProcessBulkQuotesCallback {
	results := make([]model.IndividualQuoteResult, 0, len(req.Request.IndividualQuotes))
	for _, q := range req.Request.IndividualQuotes {
		amount := q.Amount
		results = append(results, model.IndividualQuoteResult{
			QuoteID:        q.QuoteID,
			TransferAmount: &amount,
			IlpPacket:      "ilp-" + q.QuoteID,
			Condition:      "cond-" + q.QuoteID,
		})
	}
	return &event.ProcessBulkQuotesCallback{
		Ref:     req.Ref,
		BatchID: req.BatchID,
		Result: &model.BulkQuotesResult{
			BulkQuoteID:            req.Request.BulkQuoteID,
			IndividualQuoteResults: results,
		},
	}
}

// transferCallback commits every member of a batch.
func transferCallback(req *event.BulkTransfersRequested) *event.ProcessBulkTransfersCallback {
	results := make([]model.IndividualTransferResult, 0, len(req.Request.IndividualTransfers))
	for _, tr := range req.Request.IndividualTransfers {
		results = append(results, model.IndividualTransferResult{
			TransferID:    tr.TransferID,
			Fulfilment:    "ful-" + tr.TransferID,
			TransferState: model.ProviderTransferCommitted,
		})
	}
	return &event.ProcessBulkTransfersCallback{
		Ref:     req.Ref,
		BatchID: req.BatchID,
		Result: &model.BulkTransfersResult{
			BulkTransferID:            req.Request.BulkTransferID,
			IndividualTransferResults: results,
		},
	}
}

func ref(bulkID string) event.Ref {
	return event.Ref{BulkID: bulkID}
}

func names(evs []event.DomainEvent) []event.Name {
	out := make([]event.Name, len(evs))
	for i, ev := range evs {
		out[i] = ev.EventName()
	}
	return out
}

// only returns the events of type T.
func only[T event.DomainEvent](evs []event.DomainEvent) []T {
	var out []T
	for _, ev := range evs {
		if typed, ok := ev.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

// single returns the one event of type T.
func single[T event.DomainEvent](t *testing.T, evs []event.DomainEvent) T {
	t.Helper()
	found := only[T](evs)
	require.Len(t, found, 1, "events: %v", names(evs))
	return found[0]
}

// discover runs discovery with party auto-acceptance. fsps[i] is the
// institution the i-th payee resolves to; "" makes its lookup fail.
func (f *fixture) discover(bulkID string, opts model.BulkOptions, fsps ...string) {
	f.t.Helper()
	opts.AutoAcceptParty = true
	f.submit(testutil.BulkRequest(bulkID, opts, testutil.Payees(len(fsps))...))
	for i, fsp := range fsps {
		f.resolve(bulkID, i, fsp)
	}
	require.Equal(f.t, model.BulkStateDiscoveryAcceptanceCompleted, f.bulk(bulkID).State)
}

// requestQuotes starts agreement and returns the quote requests.
func (f *fixture) requestQuotes(bulkID string) []*event.BulkQuotesRequested {
	f.t.Helper()
	evs := f.apply(&event.ProcessSDKOutboundBulkQuotesRequest{Ref: ref(bulkID)})
	return only[*event.BulkQuotesRequested](evs)
}

// agree runs discovery and agreement with every batch quoted in full and
// all quotes auto-accepted.
func (f *fixture) agree(bulkID string, fsps ...string) {
	f.t.Helper()
	f.discover(bulkID, model.BulkOptions{AutoAcceptQuote: true}, fsps...)
	for _, req := range f.requestQuotes(bulkID) {
		f.apply(quoteCallback(req))
	}
	require.Equal(f.t, model.BulkStateAgreementCompleted, f.bulk(bulkID).State)
}

// requestTransfers starts the transfers phase and returns the transfer
// requests.
func (f *fixture) requestTransfers(bulkID string) []*event.BulkTransfersRequested {
	f.t.Helper()
	evs := f.apply(&event.ProcessSDKOutboundBulkTransfersRequest{Ref: ref(bulkID)})
	return only[*event.BulkTransfersRequested](evs)
}

func testBulkRequest(bulkID string, n int) model.BulkRequest {
	return testutil.BulkRequest(bulkID, model.BulkOptions{}, testutil.Payees(n)...)
}
