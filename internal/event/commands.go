package event

import "github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"

// Command names.
const (
	NameProcessSDKOutboundBulkRequest          Name = "ProcessSDKOutboundBulkRequest"
	NameProcessSDKOutboundBulkPartyInfoRequest Name = "ProcessSDKOutboundBulkPartyInfoRequest"
	NameProcessPartyInfoCallback               Name = "ProcessPartyInfoCallback"
	NameProcessSDKOutboundBulkAcceptPartyInfo  Name = "ProcessSDKOutboundBulkAcceptPartyInfo"
	NameProcessSDKOutboundBulkQuotesRequest    Name = "ProcessSDKOutboundBulkQuotesRequest"
	NameProcessBulkQuotesCallback              Name = "ProcessBulkQuotesCallback"
	NameProcessSDKOutboundBulkAcceptQuote      Name = "ProcessSDKOutboundBulkAcceptQuote"
	NameProcessSDKOutboundBulkTransfersRequest Name = "ProcessSDKOutboundBulkTransfersRequest"
	NameProcessBulkTransfersCallback           Name = "ProcessBulkTransfersCallback"
	NamePrepareSDKOutboundBulkResponse         Name = "PrepareSDKOutboundBulkResponse"
	NameProcessSDKOutboundBulkResponseSent     Name = "ProcessSDKOutboundBulkResponseSent"
	NameProcessBulkTransactionExpiry           Name = "ProcessBulkTransactionExpiry"
)

// ProcessSDKOutboundBulkRequest submits a new bulk.
type ProcessSDKOutboundBulkRequest struct {
	commandKind
	Request model.BulkRequest `json:"request"`
}

func (*ProcessSDKOutboundBulkRequest) EventName() Name { return NameProcessSDKOutboundBulkRequest }

// Bulk returns the id assigned to the request.
func (c *ProcessSDKOutboundBulkRequest) Bulk() string { return c.Request.BulkTransactionID }

// ProcessSDKOutboundBulkPartyInfoRequest starts discovery.
type ProcessSDKOutboundBulkPartyInfoRequest struct {
	commandKind
	Ref
}

func (*ProcessSDKOutboundBulkPartyInfoRequest) EventName() Name {
	return NameProcessSDKOutboundBulkPartyInfoRequest
}

// ProcessPartyInfoCallback carries the lookup result for one transfer.
// Either Party or ErrorInformation is set.
type ProcessPartyInfoCallback struct {
	commandKind
	Ref
	TransferID       string                  `json:"transferId"`
	Party            *model.Party            `json:"party,omitempty"`
	ErrorInformation *model.ErrorInformation `json:"errorInformation,omitempty"`
}

func (*ProcessPartyInfoCallback) EventName() Name { return NameProcessPartyInfoCallback }

// ProcessSDKOutboundBulkAcceptPartyInfo carries the caller's party
// decisions.
type ProcessSDKOutboundBulkAcceptPartyInfo struct {
	commandKind
	Ref
	Decisions []model.AcceptDecision `json:"individualTransfers"`
}

func (*ProcessSDKOutboundBulkAcceptPartyInfo) EventName() Name {
	return NameProcessSDKOutboundBulkAcceptPartyInfo
}

// ProcessSDKOutboundBulkQuotesRequest starts agreement.
type ProcessSDKOutboundBulkQuotesRequest struct {
	commandKind
	Ref
}

func (*ProcessSDKOutboundBulkQuotesRequest) EventName() Name {
	return NameProcessSDKOutboundBulkQuotesRequest
}

// ProcessBulkQuotesCallback carries a provider's answer for one batch.
type ProcessBulkQuotesCallback struct {
	commandKind
	Ref
	BatchID          string                  `json:"batchId"`
	Result           *model.BulkQuotesResult `json:"bulkQuotesResult,omitempty"`
	ErrorInformation *model.ErrorInformation `json:"errorInformation,omitempty"`
}

func (*ProcessBulkQuotesCallback) EventName() Name { return NameProcessBulkQuotesCallback }

// ProcessSDKOutboundBulkAcceptQuote carries the caller's quote decisions.
type ProcessSDKOutboundBulkAcceptQuote struct {
	commandKind
	Ref
	Decisions []model.AcceptDecision `json:"individualTransfers"`
}

func (*ProcessSDKOutboundBulkAcceptQuote) EventName() Name {
	return NameProcessSDKOutboundBulkAcceptQuote
}

// ProcessSDKOutboundBulkTransfersRequest starts the transfers phase.
type ProcessSDKOutboundBulkTransfersRequest struct {
	commandKind
	Ref
}

func (*ProcessSDKOutboundBulkTransfersRequest) EventName() Name {
	return NameProcessSDKOutboundBulkTransfersRequest
}

// ProcessBulkTransfersCallback carries a provider's answer for one batch.
type ProcessBulkTransfersCallback struct {
	commandKind
	Ref
	BatchID          string                     `json:"batchId"`
	Result           *model.BulkTransfersResult `json:"bulkTransfersResult,omitempty"`
	ErrorInformation *model.ErrorInformation    `json:"errorInformation,omitempty"`
}

func (*ProcessBulkTransfersCallback) EventName() Name { return NameProcessBulkTransfersCallback }

// PrepareSDKOutboundBulkResponse asks for the final response.
type PrepareSDKOutboundBulkResponse struct {
	commandKind
	Ref
}

func (*PrepareSDKOutboundBulkResponse) EventName() Name { return NamePrepareSDKOutboundBulkResponse }

// ProcessSDKOutboundBulkResponseSent records delivery of the response.
type ProcessSDKOutboundBulkResponseSent struct {
	commandKind
	Ref
}

func (*ProcessSDKOutboundBulkResponseSent) EventName() Name {
	return NameProcessSDKOutboundBulkResponseSent
}

// ProcessBulkTransactionExpiry expires a bulk whose deadline has passed.
type ProcessBulkTransactionExpiry struct {
	commandKind
	Ref
}

func (*ProcessBulkTransactionExpiry) EventName() Name { return NameProcessBulkTransactionExpiry }
