package harness

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/bus"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/engine"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

// PayerFspID is the institution every scenario pays from.
const PayerFspID = "payerfsp"

// Error codes the simulated counterparties answer with.
const (
	CodeQuoteItemRejected = "5101"
	CodeBatchRejected     = "5000"
	CodeTransferAborted   = "4001"
)

// Provider simulates the lookup service and the destination
// institutions. It answers the core's outbound requests with callback
// commands, as configured by a ProviderSpec.
type Provider struct {
	spec     ProviderSpec
	producer bus.Producer
	clock    engine.Clock
	topic    string

	// homes maps transfer ids to home transaction ids.
	homes map[string]string
}

// NewProvider creates a provider that publishes callbacks on topic.
func NewProvider(spec ProviderSpec, producer bus.Producer, clock engine.Clock, topic string, homes map[string]string) *Provider {
	return &Provider{
		spec:     spec,
		producer: producer,
		clock:    clock,
		topic:    topic,
		homes:    homes,
	}
}

// Handle is the bus handler for the domain topic.
func (p *Provider) Handle(ctx context.Context, msg bus.Message) error {
	env, err := event.FromMessage(msg)
	if err != nil {
		return nil
	}
	ev, err := event.DecodeDomainEvent(env)
	if err != nil {
		return nil
	}

	var reply event.Command
	switch e := ev.(type) {
	case *event.PartyInfoRequested:
		reply = p.party(e)
	case *event.BulkQuotesRequested:
		reply = p.quotes(e)
	case *event.BulkTransfersRequested:
		reply = p.transfers(e)
	}
	if reply == nil {
		return nil
	}

	msgs, err := event.Messages(p.topic, p.clock.Now(), reply)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msgs...)
}

func (p *Provider) party(e *event.PartyInfoRequested) event.Command {
	id := e.PartyIDInfo.PartyIdentifier
	if slices.Contains(p.spec.SilentParties, id) {
		slog.Debug("provider ignores lookup", "identifier", id)
		return nil
	}

	cb := &event.ProcessPartyInfoCallback{Ref: e.Ref, TransferID: e.TransferID}
	fsp, ok := p.spec.Parties[id]
	if !ok {
		cb.ErrorInformation = model.NewErrorInformation(model.ErrorCodePartyNotFound, "party not found")
		return cb
	}
	info := e.PartyIDInfo
	info.FspID = fsp
	cb.Party = &model.Party{PartyIDInfo: info, Name: "Payee " + id}
	return cb
}

func (p *Provider) quotes(e *event.BulkQuotesRequested) event.Command {
	b := p.spec.Quotes[e.DestinationFspID]
	cb := &event.ProcessBulkQuotesCallback{Ref: e.Ref, BatchID: e.BatchID}

	switch b.Mode {
	case ModeSilent:
		return nil
	case ModeError:
		cb.ErrorInformation = model.NewErrorInformation(CodeBatchRejected, "destination rejected the quotes")
		return cb
	}

	results := make([]model.IndividualQuoteResult, 0, len(e.Request.IndividualQuotes))
	if b.Mode != ModeEmpty {
		for _, q := range e.Request.IndividualQuotes {
			r := model.IndividualQuoteResult{QuoteID: q.QuoteID}
			if slices.Contains(b.Fail, p.homes[q.QuoteID]) {
				r.LastError = model.NewErrorInformation(CodeQuoteItemRejected, "payee limit reached")
			} else {
				amount := q.Amount
				r.TransferAmount = &amount
				r.IlpPacket = "ilp-" + q.QuoteID
				r.Condition = "cond-" + q.QuoteID
			}
			results = append(results, r)
		}
	}
	cb.Result = &model.BulkQuotesResult{
		BulkQuoteID:            e.Request.BulkQuoteID,
		IndividualQuoteResults: results,
	}
	return cb
}

func (p *Provider) transfers(e *event.BulkTransfersRequested) event.Command {
	b := p.spec.Transfers[e.DestinationFspID]
	cb := &event.ProcessBulkTransfersCallback{Ref: e.Ref, BatchID: e.BatchID}

	switch b.Mode {
	case ModeSilent:
		return nil
	case ModeError:
		cb.ErrorInformation = model.NewErrorInformation(CodeBatchRejected, "destination rejected the transfers")
		return cb
	}

	results := make([]model.IndividualTransferResult, 0, len(e.Request.IndividualTransfers))
	if b.Mode != ModeEmpty {
		for _, tr := range e.Request.IndividualTransfers {
			r := model.IndividualTransferResult{TransferID: tr.TransferID}
			if slices.Contains(b.Fail, p.homes[tr.TransferID]) {
				r.TransferState = model.ProviderTransferAborted
				r.LastError = model.NewErrorInformation(CodeTransferAborted, "payer liquidity exceeded")
			} else {
				r.TransferState = model.ProviderTransferCommitted
				r.Fulfilment = "ful-" + tr.TransferID
			}
			results = append(results, r)
		}
	}
	cb.Result = &model.BulkTransfersResult{
		BulkTransferID:            e.Request.BulkTransferID,
		IndividualTransferResults: results,
	}
	return cb
}

// listAcceptor accepts everything except the listed home transaction ids.
type listAcceptor struct {
	rejectParties []string
	rejectQuotes  []string
}

func (a listAcceptor) AcceptParties(_ context.Context, _ string, items []event.AcceptanceItem) ([]model.AcceptDecision, error) {
	return decide(items, a.rejectParties), nil
}

func (a listAcceptor) AcceptQuotes(_ context.Context, _ string, items []event.AcceptanceItem) ([]model.AcceptDecision, error) {
	return decide(items, a.rejectQuotes), nil
}

func decide(items []event.AcceptanceItem, reject []string) []model.AcceptDecision {
	out := make([]model.AcceptDecision, len(items))
	for i, it := range items {
		out[i] = model.AcceptDecision{
			TransferID: it.TransferID,
			Accept:     !slices.Contains(reject, it.HomeTransactionID),
		}
	}
	return out
}

// responseSink keeps the last response delivered to the caller.
type responseSink struct {
	mu   sync.Mutex
	last *model.BulkResponse
	sent int
}

func (s *responseSink) SendResponse(_ context.Context, resp model.BulkResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &resp
	s.sent++
	return nil
}

func (s *responseSink) response() *model.BulkResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// eventCounter counts domain events by name.
type eventCounter struct {
	mu     sync.Mutex
	counts map[event.Name]int
}

func newEventCounter() *eventCounter {
	return &eventCounter{counts: make(map[event.Name]int)}
}

func (c *eventCounter) Handle(_ context.Context, msg bus.Message) error {
	env, err := event.FromMessage(msg)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	c.counts[env.Name]++
	c.mu.Unlock()
	return nil
}

func (c *eventCounter) sorted() []EventCount {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EventCount, 0, len(c.counts))
	for _, name := range slices.Sorted(maps.Keys(c.counts)) {
		out = append(out, EventCount{Name: name, Count: c.counts[name]})
	}
	return out
}
