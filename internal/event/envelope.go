// Package event defines the messages exchanged between the orchestration
// core and the decision process.
//
// Commands ask the core to do something; domain events report what the
// core did. Both travel inside an Envelope and are decoded into their
// concrete payload type exactly once, at the bus boundary. Content is
// validated against an embedded CUE schema before it is unmarshalled, so
// handlers never see a payload of the wrong shape.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/bus"
)

// ErrMalformedEvent is returned for envelopes that cannot be decoded:
// unknown names, shape violations, or a key that does not match the
// payload.
var ErrMalformedEvent = errors.New("event: malformed")

// HeaderEventName carries the event name on bus messages.
const HeaderEventName = "eventName"

// Envelope is the wire form of every command and domain event.
type Envelope struct {
	Name      Name              `json:"name"`
	Key       string            `json:"key"`
	Content   json.RawMessage   `json:"content"`
	Timestamp int64             `json:"timestamp"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// NewEnvelope wraps p. The key is the bulk id the payload refers to.
func NewEnvelope(p Payload, at time.Time) (Envelope, error) {
	content, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", p.EventName(), err)
	}
	return Envelope{
		Name:      p.EventName(),
		Key:       p.Bulk(),
		Content:   content,
		Timestamp: at.UnixMilli(),
	}, nil
}

// Time returns the envelope timestamp.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// ToMessage serializes the envelope onto topic.
func (e Envelope) ToMessage(topic string) (bus.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return bus.Message{}, fmt.Errorf("encode envelope %s: %w", e.Name, err)
	}
	headers := maps.Clone(e.Headers)
	if headers == nil {
		headers = make(map[string]string, 1)
	}
	headers[HeaderEventName] = string(e.Name)
	return bus.Message{
		Topic:   topic,
		Key:     e.Key,
		Value:   value,
		Headers: headers,
	}, nil
}

// FromMessage parses the envelope carried by msg.
func FromMessage(msg bus.Message) (Envelope, error) {
	return ParseEnvelope(msg.Value)
}

// ParseEnvelope parses a JSON envelope.
func ParseEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if e.Name == "" {
		return Envelope{}, fmt.Errorf("%w: envelope has no name", ErrMalformedEvent)
	}
	if len(e.Content) == 0 {
		return Envelope{}, fmt.Errorf("%w: %s has no content", ErrMalformedEvent, e.Name)
	}
	return e, nil
}

// Messages wraps every payload into a message on topic.
func Messages(topic string, at time.Time, payloads ...Payload) ([]bus.Message, error) {
	msgs := make([]bus.Message, 0, len(payloads))
	for _, p := range payloads {
		env, err := NewEnvelope(p, at)
		if err != nil {
			return nil, err
		}
		msg, err := env.ToMessage(topic)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
