package bus

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/ids"
)

// DeadLetter is a message that failed on every attempt.
type DeadLetter struct {
	Group string
	Msg   Message
	Err   error
}

// MemoryOption configures a Memory bus.
type MemoryOption func(*Memory)

// WithMaxWorkers bounds the number of handlers running at once.
func WithMaxWorkers(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxWorkers = n
		}
	}
}

// WithMaxAttempts sets how often a message is tried before it is
// dead-lettered.
func WithMaxAttempts(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the delay before the first redelivery. Later
// redeliveries wait attempt times as long.
func WithRetryBackoff(d time.Duration) MemoryOption {
	return func(m *Memory) {
		m.backoff = d
	}
}

// WithObserver reports redeliveries and dead letters.
func WithObserver(o Observer) MemoryOption {
	return func(m *Memory) {
		m.observer = o
	}
}

// WithIDGenerator sets the generator for message ids.
func WithIDGenerator(g ids.Generator) MemoryOption {
	return func(m *Memory) {
		m.ids = g
	}
}

// Memory is an in-process bus with at-least-once delivery.
//
// Deliveries are dispatched by Run onto a bounded worker pool, so messages
// for different keys (and for the same key) are handled concurrently.
// A failed delivery is retried with linear backoff until MaxAttempts, then
// recorded as a dead letter.
type Memory struct {
	mu          sync.Mutex
	subs        map[string][]*subscription
	deadLetters []DeadLetter

	queue   *deliveryQueue
	pending atomic.Int64

	maxWorkers  int
	maxAttempts int
	backoff     time.Duration
	observer    Observer
	ids         ids.Generator
}

type subscription struct {
	topic     string
	group     string
	handler   Handler
	cancelled atomic.Bool
}

var (
	_ Producer = (*Memory)(nil)
	_ Consumer = (*Memory)(nil)
)

// NewMemory creates a bus. Call Run to start delivering.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		subs:        make(map[string][]*subscription),
		queue:       newDeliveryQueue(),
		maxWorkers:  16,
		maxAttempts: 5,
		backoff:     50 * time.Millisecond,
		ids:         ids.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers h for topic under group.
func (m *Memory) Subscribe(topic, group string, h Handler) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.subs[topic] {
		if s.group == group {
			return nil, fmt.Errorf("subscribe %s/%s: %w", topic, group, ErrDuplicateSubscription)
		}
	}

	sub := &subscription{topic: topic, group: group, handler: h}
	m.subs[topic] = append(m.subs[topic], sub)

	cancel := func() {
		sub.cancelled.Store(true)
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.subs[topic]
		for i, s := range list {
			if s == sub {
				m.subs[topic] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
	return cancel, nil
}

// Publish fans each message out to every group subscribed to its topic.
// Messages for topics without subscribers are dropped.
func (m *Memory) Publish(ctx context.Context, msgs ...Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, msg := range msgs {
		if msg.ID == "" {
			msg.ID = m.ids.Generate()
		}
		msg.Attempt = 1

		m.mu.Lock()
		subs := append([]*subscription(nil), m.subs[msg.Topic]...)
		m.mu.Unlock()

		for _, sub := range subs {
			m.pending.Add(1)
			if !m.queue.Enqueue(delivery{sub: sub, msg: cloneMessage(msg)}) {
				m.pending.Add(-1)
				return ErrClosed
			}
		}
	}
	return nil
}

// Run dispatches deliveries until ctx is cancelled or Close is called.
// Handlers still running are waited for before Run returns.
func (m *Memory) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(m.maxWorkers)

	for {
		d, ok := m.queue.TryDequeue()
		if !ok {
			select {
			case <-ctx.Done():
				_ = g.Wait()
				return ctx.Err()
			case _, open := <-m.queue.Wait():
				if !open && m.queue.Len() == 0 {
					return g.Wait()
				}
			}
			continue
		}

		g.Go(func() error {
			m.deliver(ctx, d)
			return nil
		})
	}
}

// Close stops accepting messages. Run returns once the queue is drained.
func (m *Memory) Close() {
	m.queue.Close()
}

// WaitIdle blocks until no delivery is queued, running or waiting for a
// retry.
func (m *Memory) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for m.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// DeadLetters returns the messages that exhausted their attempts.
func (m *Memory) DeadLetters() []DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeadLetter(nil), m.deadLetters...)
}

func (m *Memory) deliver(ctx context.Context, d delivery) {
	if d.sub.cancelled.Load() {
		m.pending.Add(-1)
		return
	}

	err := d.sub.handler(ctx, d.msg)
	if err == nil || ctx.Err() != nil {
		m.pending.Add(-1)
		return
	}

	if d.msg.Attempt >= m.maxAttempts {
		slog.Error("message dead-lettered",
			"topic", d.msg.Topic,
			"group", d.sub.group,
			"key", d.msg.Key,
			"id", d.msg.ID,
			"attempts", d.msg.Attempt,
			"error", err,
		)
		m.mu.Lock()
		m.deadLetters = append(m.deadLetters, DeadLetter{Group: d.sub.group, Msg: d.msg, Err: err})
		m.mu.Unlock()
		if m.observer != nil {
			m.observer.DeadLettered(d.msg.Topic)
		}
		m.pending.Add(-1)
		return
	}

	slog.Warn("message redelivery scheduled",
		"topic", d.msg.Topic,
		"group", d.sub.group,
		"key", d.msg.Key,
		"id", d.msg.ID,
		"attempt", d.msg.Attempt,
		"error", err,
	)
	if m.observer != nil {
		m.observer.Redelivered(d.msg.Topic)
	}

	d.msg.Attempt++
	time.AfterFunc(m.backoff*time.Duration(d.msg.Attempt-1), func() {
		if !m.queue.Enqueue(d) {
			m.pending.Add(-1)
		}
	})
}

func cloneMessage(msg Message) Message {
	if msg.Headers != nil {
		msg.Headers = maps.Clone(msg.Headers)
	}
	return msg
}
