// Package bus is the message transport between the orchestration core and
// the decision process.
//
// Delivery is at-least-once: a handler that returns an error gets the same
// message again, so handlers must be idempotent. There is no ordering
// guarantee between messages, not even for the same key.
package bus

import (
	"context"
	"errors"
)

// Message is one record on a topic.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string

	// ID is assigned on publish and stays the same across redeliveries.
	ID string

	// Attempt starts at 1 and grows with every redelivery.
	Attempt int
}

// Handler processes one message. A nil return acknowledges the message.
type Handler func(ctx context.Context, msg Message) error

// Producer publishes messages.
type Producer interface {
	Publish(ctx context.Context, msgs ...Message) error
}

// Consumer subscribes handlers to topics. Every consumer group receives
// every message of the topic once.
type Consumer interface {
	Subscribe(topic, group string, h Handler) (cancel func(), err error)
}

// Observer is notified about redeliveries and dead letters.
type Observer interface {
	Redelivered(topic string)
	DeadLettered(topic string)
}

var (
	// ErrClosed is returned when publishing to a closed bus.
	ErrClosed = errors.New("bus: closed")

	// ErrDuplicateSubscription is returned when a group subscribes twice
	// to the same topic.
	ErrDuplicateSubscription = errors.New("bus: group already subscribed")
)
