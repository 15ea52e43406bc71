package event

import (
	"encoding/json"
	"fmt"
)

// Name identifies a command or domain event.
type Name string

// Payload is implemented by every command and domain event.
type Payload interface {
	EventName() Name
	// Bulk returns the id of the bulk transaction the payload refers to.
	Bulk() string
}

// Command is a payload that asks the core to act.
type Command interface {
	Payload
	command()
}

// DomainEvent is a payload that reports a change made by the core.
type DomainEvent interface {
	Payload
	domainEvent()
}

type commandKind struct{}

func (commandKind) command() {}

type domainKind struct{}

func (domainKind) domainEvent() {}

// Ref is embedded in every payload that refers to a stored bulk.
type Ref struct {
	BulkID string `json:"bulkId"`
}

// Bulk returns the bulk id.
func (r Ref) Bulk() string { return r.BulkID }

var commandTypes = map[Name]func() Command{
	NameProcessSDKOutboundBulkRequest:          func() Command { return &ProcessSDKOutboundBulkRequest{} },
	NameProcessSDKOutboundBulkPartyInfoRequest: func() Command { return &ProcessSDKOutboundBulkPartyInfoRequest{} },
	NameProcessPartyInfoCallback:               func() Command { return &ProcessPartyInfoCallback{} },
	NameProcessSDKOutboundBulkAcceptPartyInfo:  func() Command { return &ProcessSDKOutboundBulkAcceptPartyInfo{} },
	NameProcessSDKOutboundBulkQuotesRequest:    func() Command { return &ProcessSDKOutboundBulkQuotesRequest{} },
	NameProcessBulkQuotesCallback:              func() Command { return &ProcessBulkQuotesCallback{} },
	NameProcessSDKOutboundBulkAcceptQuote:      func() Command { return &ProcessSDKOutboundBulkAcceptQuote{} },
	NameProcessSDKOutboundBulkTransfersRequest: func() Command { return &ProcessSDKOutboundBulkTransfersRequest{} },
	NameProcessBulkTransfersCallback:           func() Command { return &ProcessBulkTransfersCallback{} },
	NamePrepareSDKOutboundBulkResponse:         func() Command { return &PrepareSDKOutboundBulkResponse{} },
	NameProcessSDKOutboundBulkResponseSent:     func() Command { return &ProcessSDKOutboundBulkResponseSent{} },
	NameProcessBulkTransactionExpiry:           func() Command { return &ProcessBulkTransactionExpiry{} },
}

var domainTypes = map[Name]func() DomainEvent{
	NameSDKOutboundBulkRequestReceived:           func() DomainEvent { return &SDKOutboundBulkRequestReceived{} },
	NamePartyInfoRequested:                       func() DomainEvent { return &PartyInfoRequested{} },
	NamePartyInfoCallbackProcessed:               func() DomainEvent { return &PartyInfoCallbackProcessed{} },
	NameSDKOutboundBulkPartyInfoRequestProcessed: func() DomainEvent { return &SDKOutboundBulkPartyInfoRequestProcessed{} },
	NameSDKOutboundBulkAcceptPartyInfoRequested:  func() DomainEvent { return &SDKOutboundBulkAcceptPartyInfoRequested{} },
	NameSDKOutboundBulkAcceptPartyInfoProcessed:  func() DomainEvent { return &SDKOutboundBulkAcceptPartyInfoProcessed{} },
	NameBulkQuotesRequested:                      func() DomainEvent { return &BulkQuotesRequested{} },
	NameBulkQuotesCallbackProcessed:              func() DomainEvent { return &BulkQuotesCallbackProcessed{} },
	NameSDKOutboundBulkQuotesRequestProcessed:    func() DomainEvent { return &SDKOutboundBulkQuotesRequestProcessed{} },
	NameSDKOutboundBulkAcceptQuoteRequested:      func() DomainEvent { return &SDKOutboundBulkAcceptQuoteRequested{} },
	NameSDKOutboundBulkAcceptQuoteProcessed:      func() DomainEvent { return &SDKOutboundBulkAcceptQuoteProcessed{} },
	NameBulkTransfersRequested:                   func() DomainEvent { return &BulkTransfersRequested{} },
	NameBulkTransfersCallbackProcessed:           func() DomainEvent { return &BulkTransfersCallbackProcessed{} },
	NameSDKOutboundBulkTransfersRequestProcessed: func() DomainEvent { return &SDKOutboundBulkTransfersRequestProcessed{} },
	NameSDKOutboundBulkResponsePrepared:          func() DomainEvent { return &SDKOutboundBulkResponsePrepared{} },
	NameSDKOutboundBulkResponseSentProcessed:     func() DomainEvent { return &SDKOutboundBulkResponseSentProcessed{} },
	NameSDKOutboundBulkTransactionExpired:        func() DomainEvent { return &SDKOutboundBulkTransactionExpired{} },
}

// IsCommand reports whether name is a known command.
func IsCommand(name Name) bool {
	_, ok := commandTypes[name]
	return ok
}

// IsDomainEvent reports whether name is a known domain event.
func IsDomainEvent(name Name) bool {
	_, ok := domainTypes[name]
	return ok
}

// DecodeCommand validates and decodes a command envelope.
// All failures wrap ErrMalformedEvent.
func DecodeCommand(env Envelope) (Command, error) {
	newFn, ok := commandTypes[env.Name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown command %q", ErrMalformedEvent, env.Name)
	}
	c := newFn()
	if err := decodeInto(env, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DecodeDomainEvent validates and decodes a domain event envelope.
// All failures wrap ErrMalformedEvent.
func DecodeDomainEvent(env Envelope) (DomainEvent, error) {
	newFn, ok := domainTypes[env.Name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown domain event %q", ErrMalformedEvent, env.Name)
	}
	d := newFn()
	if err := decodeInto(env, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Decode decodes either family.
func Decode(env Envelope) (Payload, error) {
	if IsCommand(env.Name) {
		return DecodeCommand(env)
	}
	if IsDomainEvent(env.Name) {
		return DecodeDomainEvent(env)
	}
	return nil, fmt.Errorf("%w: unknown event %q", ErrMalformedEvent, env.Name)
}

func decodeInto(env Envelope, p Payload) error {
	if err := ValidateContent(env.Name, env.Content); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := json.Unmarshal(env.Content, p); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Name, err)
	}
	if env.Key != "" && env.Key != p.Bulk() {
		return fmt.Errorf("%w: %s key %q does not match bulk %q", ErrMalformedEvent, env.Name, env.Key, p.Bulk())
	}
	return nil
}
