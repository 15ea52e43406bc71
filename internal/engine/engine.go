package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/bus"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
)

// Defaults for the command side of the engine.
const (
	DefaultCommandTopic  = "bulk.commands"
	DefaultConsumerGroup = "bulk-core"
	DefaultSweepInterval = 30 * time.Second
)

// Engine connects a Processor to the bus and runs the expiry sweeper.
//
// Thread-safety model:
//   - Run(): call once; it blocks until ctx is cancelled
//   - Sweep(): safe from any goroutine
type Engine struct {
	processor     *Processor
	consumer      bus.Consumer
	producer      bus.Producer
	commandTopic  string
	group         string
	sweepInterval time.Duration
	clock         Clock
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCommandTopic sets the topic commands are consumed from and expiry
// commands are published to.
func WithCommandTopic(topic string) EngineOption {
	return func(e *Engine) {
		e.commandTopic = topic
	}
}

// WithConsumerGroup sets the consumer group of the command subscription.
func WithConsumerGroup(group string) EngineOption {
	return func(e *Engine) {
		e.group = group
	}
}

// WithSweepInterval sets how often expired bulks are looked for. Zero
// disables the sweeper.
func WithSweepInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.sweepInterval = d
	}
}

// WithEngineClock sets the clock used to stamp expiry commands.
func WithEngineClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine.
func New(p *Processor, consumer bus.Consumer, producer bus.Producer, opts ...EngineOption) *Engine {
	e := &Engine{
		processor:     p,
		consumer:      consumer,
		producer:      producer,
		commandTopic:  DefaultCommandTopic,
		group:         DefaultConsumerGroup,
		sweepInterval: DefaultSweepInterval,
		clock:         p.clock,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CommandTopic returns the topic the engine consumes.
func (e *Engine) CommandTopic() string {
	return e.commandTopic
}

// Start subscribes the processor to the command topic. The returned
// function cancels the subscription.
func (e *Engine) Start() (func(), error) {
	cancel, err := e.consumer.Subscribe(e.commandTopic, e.group, e.processor.Handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", e.commandTopic, err)
	}
	slog.Info("engine subscribed", "topic", e.commandTopic, "group", e.group)
	return cancel, nil
}

// Run subscribes and sweeps for expired bulks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	cancel, err := e.Start()
	if err != nil {
		return err
	}
	defer cancel()

	if e.sweepInterval <= 0 {
		<-ctx.Done()
		slog.Info("engine stopping: context cancelled")
		return ctx.Err()
	}

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil {
				slog.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

// Sweep publishes an expiry command for every bulk that is due and
// returns their ids.
func (e *Engine) Sweep(ctx context.Context) ([]string, error) {
	due, err := e.processor.DueForExpiry(ctx)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, nil
	}

	payloads := make([]event.Payload, 0, len(due))
	for _, id := range due {
		payloads = append(payloads, &event.ProcessBulkTransactionExpiry{Ref: event.Ref{BulkID: id}})
	}
	msgs, err := event.Messages(e.commandTopic, e.clock.Now(), payloads...)
	if err != nil {
		return nil, err
	}
	if err := e.producer.Publish(ctx, msgs...); err != nil {
		return nil, fmt.Errorf("publish expiry: %w", err)
	}
	slog.Info("expiry sweep", "expired", len(due))
	return due, nil
}
