package event

import "github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"

// Domain event names.
const (
	NameSDKOutboundBulkRequestReceived           Name = "SDKOutboundBulkRequestReceived"
	NamePartyInfoRequested                       Name = "PartyInfoRequested"
	NamePartyInfoCallbackProcessed               Name = "PartyInfoCallbackProcessed"
	NameSDKOutboundBulkPartyInfoRequestProcessed Name = "SDKOutboundBulkPartyInfoRequestProcessed"
	NameSDKOutboundBulkAcceptPartyInfoRequested  Name = "SDKOutboundBulkAcceptPartyInfoRequested"
	NameSDKOutboundBulkAcceptPartyInfoProcessed  Name = "SDKOutboundBulkAcceptPartyInfoProcessed"
	NameBulkQuotesRequested                      Name = "BulkQuotesRequested"
	NameBulkQuotesCallbackProcessed              Name = "BulkQuotesCallbackProcessed"
	NameSDKOutboundBulkQuotesRequestProcessed    Name = "SDKOutboundBulkQuotesRequestProcessed"
	NameSDKOutboundBulkAcceptQuoteRequested      Name = "SDKOutboundBulkAcceptQuoteRequested"
	NameSDKOutboundBulkAcceptQuoteProcessed      Name = "SDKOutboundBulkAcceptQuoteProcessed"
	NameBulkTransfersRequested                   Name = "BulkTransfersRequested"
	NameBulkTransfersCallbackProcessed           Name = "BulkTransfersCallbackProcessed"
	NameSDKOutboundBulkTransfersRequestProcessed Name = "SDKOutboundBulkTransfersRequestProcessed"
	NameSDKOutboundBulkResponsePrepared          Name = "SDKOutboundBulkResponsePrepared"
	NameSDKOutboundBulkResponseSentProcessed     Name = "SDKOutboundBulkResponseSentProcessed"
	NameSDKOutboundBulkTransactionExpired        Name = "SDKOutboundBulkTransactionExpired"
)

type SDKOutboundBulkRequestReceived struct {
	domainKind
	Ref
	State   model.BulkState   `json:"state"`
	Options model.BulkOptions `json:"options"`
}

func (*SDKOutboundBulkRequestReceived) EventName() Name { return NameSDKOutboundBulkRequestReceived }

// PartyInfoRequested asks the lookup service to resolve one payee.
type PartyInfoRequested struct {
	domainKind
	Ref
	TransferID  string            `json:"transferId"`
	PartyIDInfo model.PartyIDInfo `json:"partyIdInfo"`
}

func (*PartyInfoRequested) EventName() Name { return NamePartyInfoRequested }

type PartyInfoCallbackProcessed struct {
	domainKind
	Ref
	TransferID string              `json:"transferId"`
	State      model.TransferState `json:"state"`
}

func (*PartyInfoCallbackProcessed) EventName() Name { return NamePartyInfoCallbackProcessed }

// SDKOutboundBulkPartyInfoRequestProcessed is emitted once per bulk when
// discovery closes.
type SDKOutboundBulkPartyInfoRequestProcessed struct {
	domainKind
	Ref
	State    model.BulkState     `json:"state"`
	Counters model.PhaseCounters `json:"counters"`
}

func (*SDKOutboundBulkPartyInfoRequestProcessed) EventName() Name {
	return NameSDKOutboundBulkPartyInfoRequestProcessed
}

// AcceptanceItem is one transfer presented to the caller for a decision.
type AcceptanceItem struct {
	TransferID        string                       `json:"transferId"`
	HomeTransactionID string                       `json:"homeTransactionId"`
	Party             *model.Party                 `json:"party,omitempty"`
	QuoteResponse     *model.IndividualQuoteResult `json:"quoteResponse,omitempty"`
}

// SDKOutboundBulkAcceptPartyInfoRequested asks the caller to accept or
// reject the resolved parties.
type SDKOutboundBulkAcceptPartyInfoRequested struct {
	domainKind
	Ref
	Transfers []AcceptanceItem `json:"individualTransfers"`
}

func (*SDKOutboundBulkAcceptPartyInfoRequested) EventName() Name {
	return NameSDKOutboundBulkAcceptPartyInfoRequested
}

type SDKOutboundBulkAcceptPartyInfoProcessed struct {
	domainKind
	Ref
	State model.BulkState `json:"state"`
}

func (*SDKOutboundBulkAcceptPartyInfoProcessed) EventName() Name {
	return NameSDKOutboundBulkAcceptPartyInfoProcessed
}

// BulkQuotesRequested asks a destination institution to quote a batch.
type BulkQuotesRequested struct {
	domainKind
	Ref
	BatchID          string                  `json:"batchId"`
	DestinationFspID string                  `json:"destinationFspId"`
	Request          model.BulkQuotesRequest `json:"request"`
}

func (*BulkQuotesRequested) EventName() Name { return NameBulkQuotesRequested }

type BulkQuotesCallbackProcessed struct {
	domainKind
	Ref
	BatchID string           `json:"batchId"`
	State   model.BatchState `json:"state"`
}

func (*BulkQuotesCallbackProcessed) EventName() Name { return NameBulkQuotesCallbackProcessed }

// SDKOutboundBulkQuotesRequestProcessed is emitted once per bulk when
// agreement closes.
type SDKOutboundBulkQuotesRequestProcessed struct {
	domainKind
	Ref
	State    model.BulkState     `json:"state"`
	Counters model.PhaseCounters `json:"counters"`
}

func (*SDKOutboundBulkQuotesRequestProcessed) EventName() Name {
	return NameSDKOutboundBulkQuotesRequestProcessed
}

// SDKOutboundBulkAcceptQuoteRequested asks the caller to accept or reject
// the quotes.
type SDKOutboundBulkAcceptQuoteRequested struct {
	domainKind
	Ref
	Transfers []AcceptanceItem `json:"individualTransfers"`
}

func (*SDKOutboundBulkAcceptQuoteRequested) EventName() Name {
	return NameSDKOutboundBulkAcceptQuoteRequested
}

type SDKOutboundBulkAcceptQuoteProcessed struct {
	domainKind
	Ref
	State model.BulkState `json:"state"`
}

func (*SDKOutboundBulkAcceptQuoteProcessed) EventName() Name {
	return NameSDKOutboundBulkAcceptQuoteProcessed
}

// BulkTransfersRequested asks a destination institution to execute a
// batch.
type BulkTransfersRequested struct {
	domainKind
	Ref
	BatchID          string                     `json:"batchId"`
	DestinationFspID string                     `json:"destinationFspId"`
	Request          model.BulkTransfersRequest `json:"request"`
}

func (*BulkTransfersRequested) EventName() Name { return NameBulkTransfersRequested }

type BulkTransfersCallbackProcessed struct {
	domainKind
	Ref
	BatchID string           `json:"batchId"`
	State   model.BatchState `json:"state"`
}

func (*BulkTransfersCallbackProcessed) EventName() Name { return NameBulkTransfersCallbackProcessed }

// SDKOutboundBulkTransfersRequestProcessed is emitted once per bulk when
// the transfers phase closes.
type SDKOutboundBulkTransfersRequestProcessed struct {
	domainKind
	Ref
	State    model.BulkState     `json:"state"`
	Counters model.PhaseCounters `json:"counters"`
}

func (*SDKOutboundBulkTransfersRequestProcessed) EventName() Name {
	return NameSDKOutboundBulkTransfersRequestProcessed
}

// SDKOutboundBulkResponsePrepared carries the final response.
type SDKOutboundBulkResponsePrepared struct {
	domainKind
	Ref
	Response model.BulkResponse `json:"response"`
}

func (*SDKOutboundBulkResponsePrepared) EventName() Name {
	return NameSDKOutboundBulkResponsePrepared
}

type SDKOutboundBulkResponseSentProcessed struct {
	domainKind
	Ref
	State model.BulkState `json:"state"`
}

func (*SDKOutboundBulkResponseSentProcessed) EventName() Name {
	return NameSDKOutboundBulkResponseSentProcessed
}

// SDKOutboundBulkTransactionExpired reports that a bulk was expired and
// its in-flight work failed.
type SDKOutboundBulkTransactionExpired struct {
	domainKind
	Ref
	State    model.BulkState `json:"state"`
	Counters model.Counters  `json:"counters"`
}

func (*SDKOutboundBulkTransactionExpired) EventName() Name {
	return NameSDKOutboundBulkTransactionExpired
}
