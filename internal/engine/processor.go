package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/bus"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/store"
)

// DefaultMaxBatchSize is the largest number of transfers sent to one
// destination in one batch.
const DefaultMaxBatchSize = 1000

// DefaultBulkExpiry is applied to requests without a bulkExpiration.
const DefaultBulkExpiry = time.Hour

// DefaultDomainTopic is the topic domain events are published on.
const DefaultDomainTopic = "bulk.domain-events"

const tracerName = "github.com/mojaloop/sdk-scheme-adapter-sub003/internal/engine"

// Outcomes reported to the Recorder for every command.
const (
	OutcomeOK        = "ok"
	OutcomeMalformed = "malformed"
	OutcomeOrdering  = "ordering"
	OutcomeExpired   = "expired"
	OutcomeStorage   = "storage_error"
	OutcomeNotFound  = "not_found"
)

// Recorder receives processing measurements.
type Recorder interface {
	CommandProcessed(command, outcome string, elapsed time.Duration)
	DomainEventEmitted(name string)
	BatchClosed(phase model.Phase, state model.BatchState)
}

type nopRecorder struct{}

func (nopRecorder) CommandProcessed(string, string, time.Duration) {}
func (nopRecorder) DomainEventEmitted(string)                     {}
func (nopRecorder) BatchClosed(model.Phase, model.BatchState)     {}

// Processor applies commands to the state store and publishes the
// resulting domain events. It is safe for concurrent use.
type Processor struct {
	repo          *store.Repository
	producer      bus.Producer
	clock         Clock
	recorder      Recorder
	tracer        trace.Tracer
	maxBatchSize  int
	defaultExpiry time.Duration
	domainTopic   string
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithClock sets the clock used for timestamps and expiry checks.
func WithClock(c Clock) ProcessorOption {
	return func(p *Processor) {
		p.clock = c
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ProcessorOption {
	return func(p *Processor) {
		p.recorder = r
	}
}

// WithTracer sets the tracer. The default is the global tracer provider.
func WithTracer(t trace.Tracer) ProcessorOption {
	return func(p *Processor) {
		p.tracer = t
	}
}

// WithMaxBatchSize sets the maximum number of transfers per batch.
// Values below one are ignored.
func WithMaxBatchSize(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.maxBatchSize = n
		}
	}
}

// WithDefaultExpiry sets the expiry applied to requests without one.
// Zero disables the default.
func WithDefaultExpiry(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.defaultExpiry = d
	}
}

// WithDomainTopic sets the topic domain events are published on.
func WithDomainTopic(topic string) ProcessorOption {
	return func(p *Processor) {
		p.domainTopic = topic
	}
}

// NewProcessor creates a Processor over repo that publishes to producer.
func NewProcessor(repo *store.Repository, producer bus.Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		repo:          repo,
		producer:      producer,
		clock:         SystemClock{},
		recorder:      nopRecorder{},
		tracer:        otel.Tracer(tracerName),
		maxBatchSize:  DefaultMaxBatchSize,
		defaultExpiry: DefaultBulkExpiry,
		domainTopic:   DefaultDomainTopic,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle is the bus handler for the command topic. Undecodable messages
// are logged and acknowledged; storage and not-found errors are returned
// for redelivery.
func (p *Processor) Handle(ctx context.Context, msg bus.Message) error {
	env, err := event.FromMessage(msg)
	if err != nil {
		p.dropMalformed(msg, "", err)
		return nil
	}
	cmd, err := event.DecodeCommand(env)
	if err != nil {
		p.dropMalformed(msg, env.Name, err)
		return nil
	}

	err = p.Process(ctx, cmd)
	var pe *ProcessingError
	if errors.As(err, &pe) && pe.Acknowledged() {
		return nil
	}
	return err
}

func (p *Processor) dropMalformed(msg bus.Message, name event.Name, err error) {
	slog.Warn("dropping malformed command",
		"message_id", msg.ID,
		"key", msg.Key,
		"command", name,
		"error", err,
	)
	label := string(name)
	if !event.IsCommand(name) {
		label = "unknown"
	}
	p.recorder.CommandProcessed(label, OutcomeMalformed, 0)
}

// Process applies one decoded command. It returns nil when the command
// was applied (or replayed) and its events published, and a
// *ProcessingError otherwise.
func (p *Processor) Process(ctx context.Context, cmd event.Command) error {
	start := time.Now()
	name := cmd.EventName()

	ctx, span := p.tracer.Start(ctx, "engine."+string(name),
		trace.WithAttributes(attribute.String("bulk.id", cmd.Bulk())))
	defer span.End()

	out := &outbox{}
	err := p.dispatch(ctx, cmd, out)
	if err == nil {
		err = p.publish(ctx, cmd, out)
	}

	outcome := p.classify(cmd, err)
	p.recorder.CommandProcessed(string(name), outcome, time.Since(start))
	span.SetAttributes(attribute.String("outcome", outcome))
	if outcome == OutcomeStorage || outcome == OutcomeNotFound {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (p *Processor) classify(cmd event.Command, err error) string {
	if err == nil {
		slog.Debug("command processed", "command", cmd.EventName(), "bulk_id", cmd.Bulk())
		return OutcomeOK
	}

	var pe *ProcessingError
	if !errors.As(err, &pe) {
		pe = &ProcessingError{Code: ErrCodeStorage, Message: "unexpected failure", Command: cmd.EventName(), BulkID: cmd.Bulk(), Cause: err}
	}

	switch pe.Code {
	case ErrCodeMalformed:
		slog.Warn("command rejected", "command", cmd.EventName(), "bulk_id", cmd.Bulk(), "batch_id", pe.BatchID, "error", err)
		return OutcomeMalformed
	case ErrCodeOrdering:
		slog.Warn("command out of order", "command", cmd.EventName(), "bulk_id", cmd.Bulk(), "error", err)
		return OutcomeOrdering
	case ErrCodeExpired:
		slog.Warn("command for expired bulk", "command", cmd.EventName(), "bulk_id", cmd.Bulk())
		return OutcomeExpired
	case ErrCodeNotFound:
		slog.Error("command references missing state", "command", cmd.EventName(), "bulk_id", cmd.Bulk(), "batch_id", pe.BatchID, "error", err)
		return OutcomeNotFound
	default:
		slog.Error("command failed", "command", cmd.EventName(), "bulk_id", cmd.Bulk(), "error", err)
		return OutcomeStorage
	}
}

func (p *Processor) dispatch(ctx context.Context, cmd event.Command, out *outbox) error {
	switch c := cmd.(type) {
	case *event.ProcessSDKOutboundBulkRequest:
		return p.handleBulkRequest(ctx, c, out)
	case *event.ProcessSDKOutboundBulkPartyInfoRequest:
		return p.handlePartyInfoRequest(ctx, c, out)
	case *event.ProcessPartyInfoCallback:
		return p.handlePartyInfoCallback(ctx, c, out)
	case *event.ProcessSDKOutboundBulkAcceptPartyInfo:
		return p.handleAcceptPartyInfo(ctx, c, out)
	case *event.ProcessSDKOutboundBulkQuotesRequest:
		return p.handleQuotesRequest(ctx, c, out)
	case *event.ProcessBulkQuotesCallback:
		return p.handleQuotesCallback(ctx, c, out)
	case *event.ProcessSDKOutboundBulkAcceptQuote:
		return p.handleAcceptQuote(ctx, c, out)
	case *event.ProcessSDKOutboundBulkTransfersRequest:
		return p.handleTransfersRequest(ctx, c, out)
	case *event.ProcessBulkTransfersCallback:
		return p.handleTransfersCallback(ctx, c, out)
	case *event.PrepareSDKOutboundBulkResponse:
		return p.handlePrepareResponse(ctx, c, out)
	case *event.ProcessSDKOutboundBulkResponseSent:
		return p.handleResponseSent(ctx, c, out)
	case *event.ProcessBulkTransactionExpiry:
		return p.handleExpiry(ctx, c, out)
	default:
		return malformed(cmd, nil, "no handler for %T", cmd)
	}
}

// outbox collects the domain events of one command. They are published
// only after the handler succeeded.
type outbox struct {
	events []event.Payload
}

func (o *outbox) add(events ...event.DomainEvent) {
	for _, e := range events {
		o.events = append(o.events, e)
	}
}

// names returns the names of the collected events.
func (o *outbox) names() []event.Name {
	names := make([]event.Name, len(o.events))
	for i, e := range o.events {
		names[i] = e.EventName()
	}
	return names
}

func (p *Processor) publish(ctx context.Context, cmd event.Command, out *outbox) error {
	if len(out.events) == 0 {
		return nil
	}
	msgs, err := event.Messages(p.domainTopic, p.clock.Now(), out.events...)
	if err != nil {
		return &ProcessingError{Code: ErrCodeStorage, Message: "encode domain events", Command: cmd.EventName(), BulkID: cmd.Bulk(), Cause: err}
	}
	if err := p.producer.Publish(ctx, msgs...); err != nil {
		return &ProcessingError{Code: ErrCodeStorage, Message: "publish domain events", Command: cmd.EventName(), BulkID: cmd.Bulk(), Cause: err}
	}
	for _, name := range out.names() {
		p.recorder.DomainEventEmitted(string(name))
	}
	return nil
}

// loadTransfers returns the transfers of bt in submission order.
func (p *Processor) loadTransfers(ctx context.Context, bt model.BulkTransaction) ([]model.IndividualTransfer, error) {
	items := make([]model.IndividualTransfer, 0, len(bt.IndividualTransferIDs))
	for _, id := range bt.IndividualTransferIDs {
		it, err := p.repo.GetIndividualTransfer(ctx, bt.ID, id)
		if err != nil {
			return nil, fmt.Errorf("load transfer %s: %w", id, err)
		}
		items = append(items, it)
	}
	return items, nil
}

// loadBatches returns the batches of bt in creation order.
func (p *Processor) loadBatches(ctx context.Context, bt model.BulkTransaction) ([]model.BulkBatch, error) {
	batches := make([]model.BulkBatch, 0, len(bt.BatchIDs))
	for _, id := range bt.BatchIDs {
		b, err := p.repo.GetBulkBatch(ctx, bt.ID, id)
		if err != nil {
			return nil, fmt.Errorf("load batch %s: %w", id, err)
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// setBulkState returns a mutation that moves the bulk to state.
func (p *Processor) setBulkState(state model.BulkState) func(*model.BulkTransaction) error {
	now := p.clock.Now()
	return func(bt *model.BulkTransaction) error {
		bt.State = state
		bt.UpdatedAt = now
		return nil
	}
}

// acceptanceItems lists the transfers in state for a caller decision.
func acceptanceItems(items []model.IndividualTransfer, state model.TransferState) []event.AcceptanceItem {
	out := make([]event.AcceptanceItem, 0, len(items))
	for _, it := range items {
		if it.State != state {
			continue
		}
		out = append(out, event.AcceptanceItem{
			TransferID:        it.ID,
			HomeTransactionID: it.Request.HomeTransactionID,
			Party:             it.PartyResponse,
			QuoteResponse:     it.QuoteResponse,
		})
	}
	return out
}
