// Package policy is the decision process of the bulk saga: it listens to
// the domain events of the orchestration core and publishes the commands
// that move each bulk to its next phase.
//
// Caller decisions (party and quote acceptance) are delegated to an
// Acceptor, and the final response to a ResponseSender. Both are called
// at least once per request and must tolerate repeats.
package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/bus"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/engine"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/ids"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

// DefaultGroup is the consumer group of the decision process.
const DefaultGroup = "bulk-policy"

// Acceptor decides which transfers of a bulk go on to the next phase.
type Acceptor interface {
	AcceptParties(ctx context.Context, bulkID string, items []event.AcceptanceItem) ([]model.AcceptDecision, error)
	AcceptQuotes(ctx context.Context, bulkID string, items []event.AcceptanceItem) ([]model.AcceptDecision, error)
}

// ResponseSender delivers the final outcome of a bulk to its caller.
type ResponseSender interface {
	SendResponse(ctx context.Context, resp model.BulkResponse) error
}

// AutoAcceptor accepts every transfer.
type AutoAcceptor struct{}

func (AutoAcceptor) AcceptParties(_ context.Context, _ string, items []event.AcceptanceItem) ([]model.AcceptDecision, error) {
	return acceptAll(items), nil
}

func (AutoAcceptor) AcceptQuotes(_ context.Context, _ string, items []event.AcceptanceItem) ([]model.AcceptDecision, error) {
	return acceptAll(items), nil
}

func acceptAll(items []event.AcceptanceItem) []model.AcceptDecision {
	out := make([]model.AcceptDecision, len(items))
	for i, it := range items {
		out[i] = model.AcceptDecision{TransferID: it.TransferID, Accept: true}
	}
	return out
}

// LogSender logs the response and drops it.
type LogSender struct{}

func (LogSender) SendResponse(_ context.Context, resp model.BulkResponse) error {
	slog.Info("bulk response",
		"bulk_id", resp.BulkTransactionID,
		"state", resp.CurrentState,
		"transfers", len(resp.IndividualTransferResults),
	)
	return nil
}

// Policy reacts to domain events with commands.
type Policy struct {
	producer     bus.Producer
	acceptor     Acceptor
	sender       ResponseSender
	ids          ids.Generator
	clock        engine.Clock
	commandTopic string
	domainTopic  string
	group        string
}

// Option configures a Policy.
type Option func(*Policy)

// WithAcceptor sets who decides on parties and quotes. The default
// accepts everything.
func WithAcceptor(a Acceptor) Option {
	return func(p *Policy) {
		p.acceptor = a
	}
}

// WithResponseSender sets where final responses go.
func WithResponseSender(s ResponseSender) Option {
	return func(p *Policy) {
		p.sender = s
	}
}

// WithIDGenerator sets the generator for bulk ids assigned by Submit.
func WithIDGenerator(g ids.Generator) Option {
	return func(p *Policy) {
		p.ids = g
	}
}

// WithClock sets the clock used to stamp commands.
func WithClock(c engine.Clock) Option {
	return func(p *Policy) {
		p.clock = c
	}
}

// WithTopics sets the command and domain topics.
func WithTopics(commandTopic, domainTopic string) Option {
	return func(p *Policy) {
		p.commandTopic = commandTopic
		p.domainTopic = domainTopic
	}
}

// WithGroup sets the consumer group on the domain topic.
func WithGroup(group string) Option {
	return func(p *Policy) {
		p.group = group
	}
}

// New creates a Policy that publishes commands to producer.
func New(producer bus.Producer, opts ...Option) *Policy {
	p := &Policy{
		producer:     producer,
		acceptor:     AutoAcceptor{},
		sender:       LogSender{},
		ids:          ids.UUIDv7Generator{},
		clock:        engine.SystemClock{},
		commandTopic: engine.DefaultCommandTopic,
		domainTopic:  engine.DefaultDomainTopic,
		group:        DefaultGroup,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start subscribes the policy to the domain topic.
func (p *Policy) Start(consumer bus.Consumer) (func(), error) {
	cancel, err := consumer.Subscribe(p.domainTopic, p.group, p.Handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", p.domainTopic, err)
	}
	return cancel, nil
}

// Submit starts a bulk. A request without a bulk id gets a fresh one,
// which is returned.
func (p *Policy) Submit(ctx context.Context, req model.BulkRequest) (string, error) {
	if req.BulkTransactionID == "" {
		req.BulkTransactionID = p.ids.Generate()
	}
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("submit bulk: %w", err)
	}
	if err := p.send(ctx, &event.ProcessSDKOutboundBulkRequest{Request: req}); err != nil {
		return "", err
	}
	slog.Info("bulk submitted", "bulk_id", req.BulkTransactionID, "transfers", len(req.IndividualTransfers))
	return req.BulkTransactionID, nil
}

// Handle is the bus handler for the domain topic.
func (p *Policy) Handle(ctx context.Context, msg bus.Message) error {
	env, err := event.FromMessage(msg)
	if err != nil {
		slog.Warn("dropping malformed domain event", "message_id", msg.ID, "error", err)
		return nil
	}
	ev, err := event.DecodeDomainEvent(env)
	if err != nil {
		slog.Warn("dropping malformed domain event", "message_id", msg.ID, "event", env.Name, "error", err)
		return nil
	}

	cmds, err := p.react(ctx, ev)
	if err != nil {
		return err
	}
	if len(cmds) == 0 {
		return nil
	}
	slog.Debug("policy reacted", "event", ev.EventName(), "bulk_id", ev.Bulk(), "commands", len(cmds))
	return p.send(ctx, cmds...)
}

// react returns the commands that follow ev.
func (p *Policy) react(ctx context.Context, ev event.DomainEvent) ([]event.Payload, error) {
	r := event.Ref{BulkID: ev.Bulk()}

	switch e := ev.(type) {
	case *event.SDKOutboundBulkRequestReceived:
		if e.State == model.BulkStateReceived {
			return one(&event.ProcessSDKOutboundBulkPartyInfoRequest{Ref: r}), nil
		}

	case *event.SDKOutboundBulkPartyInfoRequestProcessed:
		switch e.State {
		case model.BulkStateDiscoveryAcceptanceCompleted:
			return one(&event.ProcessSDKOutboundBulkQuotesRequest{Ref: r}), nil
		case model.BulkStateDiscoveryCompleted:
			return one(&event.PrepareSDKOutboundBulkResponse{Ref: r}), nil
		}

	case *event.SDKOutboundBulkAcceptPartyInfoRequested:
		decisions, err := p.acceptor.AcceptParties(ctx, e.BulkID, e.Transfers)
		if err != nil {
			return nil, fmt.Errorf("accept parties of %s: %w", e.BulkID, err)
		}
		return one(&event.ProcessSDKOutboundBulkAcceptPartyInfo{Ref: r, Decisions: decisions}), nil

	case *event.SDKOutboundBulkAcceptPartyInfoProcessed:
		if e.State == model.BulkStateDiscoveryAcceptanceCompleted {
			return one(&event.ProcessSDKOutboundBulkQuotesRequest{Ref: r}), nil
		}

	case *event.SDKOutboundBulkQuotesRequestProcessed:
		if e.State == model.BulkStateAgreementCompleted {
			return one(&event.ProcessSDKOutboundBulkTransfersRequest{Ref: r}), nil
		}

	case *event.SDKOutboundBulkAcceptQuoteRequested:
		decisions, err := p.acceptor.AcceptQuotes(ctx, e.BulkID, e.Transfers)
		if err != nil {
			return nil, fmt.Errorf("accept quotes of %s: %w", e.BulkID, err)
		}
		return one(&event.ProcessSDKOutboundBulkAcceptQuote{Ref: r, Decisions: decisions}), nil

	case *event.SDKOutboundBulkAcceptQuoteProcessed:
		if e.State == model.BulkStateAgreementCompleted {
			return one(&event.ProcessSDKOutboundBulkTransfersRequest{Ref: r}), nil
		}

	case *event.SDKOutboundBulkTransfersRequestProcessed:
		if e.State == model.BulkStateCompleted {
			return one(&event.PrepareSDKOutboundBulkResponse{Ref: r}), nil
		}

	case *event.SDKOutboundBulkTransactionExpired:
		return one(&event.PrepareSDKOutboundBulkResponse{Ref: r}), nil

	case *event.SDKOutboundBulkResponsePrepared:
		if err := p.sender.SendResponse(ctx, e.Response); err != nil {
			return nil, fmt.Errorf("send response of %s: %w", e.BulkID, err)
		}
		return one(&event.ProcessSDKOutboundBulkResponseSent{Ref: r}), nil
	}
	return nil, nil
}

func one(c event.Command) []event.Payload {
	return []event.Payload{c}
}

func (p *Policy) send(ctx context.Context, cmds ...event.Payload) error {
	msgs, err := event.Messages(p.commandTopic, p.clock.Now(), cmds...)
	if err != nil {
		return err
	}
	if err := p.producer.Publish(ctx, msgs...); err != nil {
		return fmt.Errorf("publish commands: %w", err)
	}
	return nil
}
