package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AmountType tells the payee side whether the amount is what the payer
// sends or what the payee receives.
type AmountType string

const (
	AmountTypeSend    AmountType = "SEND"
	AmountTypeReceive AmountType = "RECEIVE"
)

// PartyIDInfo identifies a party and, once resolved, the institution that
// owns its account.
type PartyIDInfo struct {
	PartyIDType      string `json:"partyIdType"`
	PartyIdentifier  string `json:"partyIdentifier"`
	PartySubIDOrType string `json:"partySubIdOrType,omitempty"`
	FspID            string `json:"fspId,omitempty"`
}

// Party is a payer or payee.
type Party struct {
	PartyIDInfo PartyIDInfo `json:"partyIdInfo"`
	Name        string      `json:"name,omitempty"`
}

// FspID returns the owning institution of the party, or "".
func (p *Party) FspID() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.PartyIDInfo.FspID)
}

// Money is an amount in a currency.
type Money struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// ErrorInformation is a business error reported by a counterparty or
// produced by the core, recorded as data on the failing entity.
type ErrorInformation struct {
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
}

// Error codes produced by the core itself.
const (
	ErrorCodeGeneric        = "2001"
	ErrorCodePartyNotFound  = "3204"
	ErrorCodeExpired        = "3300"
	ErrorCodeMissingResult  = "3100"
	ErrorCodeTransferFailed = "4000"
)

// NewErrorInformation builds an ErrorInformation.
func NewErrorInformation(code, description string) *ErrorInformation {
	return &ErrorInformation{ErrorCode: code, ErrorDescription: description}
}

// BulkOptions controls how far the bulk proceeds and whether the caller
// is asked to accept parties and quotes.
type BulkOptions struct {
	OnlyValidateParty bool      `json:"onlyValidateParty,omitempty"`
	SkipPartyLookup   bool      `json:"skipPartyLookup,omitempty"`
	AutoAcceptParty   bool      `json:"autoAcceptParty,omitempty"`
	AutoAcceptQuote   bool      `json:"autoAcceptQuote,omitempty"`
	Synchronous       bool      `json:"synchronous,omitempty"`
	BulkExpiration    time.Time `json:"bulkExpiration,omitzero"`
}

// AcceptsPartyAutomatically reports whether the discovery acceptance step
// is skipped. Synchronous bulks behave as auto-accept.
func (o BulkOptions) AcceptsPartyAutomatically() bool {
	return o.AutoAcceptParty || o.Synchronous
}

// AcceptsQuoteAutomatically reports whether the agreement acceptance step
// is skipped. Synchronous bulks behave as auto-accept.
func (o BulkOptions) AcceptsQuoteAutomatically() bool {
	return o.AutoAcceptQuote || o.Synchronous
}

// IndividualTransferRequest is one transfer as submitted by the caller.
type IndividualTransferRequest struct {
	HomeTransactionID string          `json:"homeTransactionId"`
	To                Party           `json:"to"`
	AmountType        AmountType      `json:"amountType"`
	Currency          string          `json:"currency"`
	Amount            decimal.Decimal `json:"amount"`
	TransactionType   string          `json:"transactionType,omitempty"`
	Note              string          `json:"note,omitempty"`
}

// BulkRequest is the caller's bulk transfer request.
type BulkRequest struct {
	BulkTransactionID     string                      `json:"bulkTransactionId,omitempty"`
	BulkHomeTransactionID string                      `json:"bulkHomeTransactionID"`
	Options               BulkOptions                 `json:"options"`
	From                  Party                       `json:"from"`
	IndividualTransfers   []IndividualTransferRequest `json:"individualTransfers"`
}

// Validate checks the fields the core depends on. Shape validation of the
// wire payload happens at the bus boundary.
func (r BulkRequest) Validate() error {
	if strings.TrimSpace(r.BulkTransactionID) == "" {
		return errors.New("bulkTransactionId is required")
	}
	if len(r.IndividualTransfers) == 0 {
		return errors.New("individualTransfers must not be empty")
	}
	for _, t := range r.IndividualTransfers {
		if !t.Amount.IsPositive() {
			return fmt.Errorf("amount must be positive for %q", t.HomeTransactionID)
		}
	}
	return nil
}

// PhaseCounters counts total, succeeded and failed units of one phase.
type PhaseCounters struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}

// Closed reports whether every unit of the phase has reached an outcome.
func (c PhaseCounters) Closed() bool {
	return c.Success+c.Failed >= c.Total
}

// Counters holds the counters of all three phases.
type Counters struct {
	PartyLookup   PhaseCounters `json:"partyLookup"`
	BulkQuotes    PhaseCounters `json:"bulkQuotes"`
	BulkTransfers PhaseCounters `json:"bulkTransfers"`
}

// BulkTransaction is the aggregate root.
type BulkTransaction struct {
	ID                    string      `json:"id"`
	BulkHomeTransactionID string      `json:"bulkHomeTransactionId"`
	From                  Party       `json:"from"`
	Options               BulkOptions `json:"options"`
	IndividualTransferIDs []string    `json:"individualTransferIds"`
	BatchIDs              []string    `json:"batchIds"`
	State                 BulkState   `json:"state"`
	CreatedAt             time.Time   `json:"createdAt"`
	UpdatedAt             time.Time   `json:"updatedAt"`
	ExpiredAt             time.Time   `json:"expiredAt,omitzero"`

	// Counters is loaded from the counter fields, never from the blob.
	Counters Counters `json:"-"`
}

// IndividualTransfer is one transfer of a bulk and its per-phase outcomes.
type IndividualTransfer struct {
	ID                string                    `json:"id"`
	BulkTransactionID string                    `json:"bulkTransactionId"`
	Request           IndividualTransferRequest `json:"request"`
	PartyResponse     *Party                    `json:"partyResponse,omitempty"`
	PartyError        *ErrorInformation         `json:"partyError,omitempty"`
	QuoteResponse     *IndividualQuoteResult    `json:"quoteResponse,omitempty"`
	QuoteError        *ErrorInformation         `json:"quoteError,omitempty"`
	TransferResponse  *IndividualTransferResult `json:"transferResponse,omitempty"`
	TransferError     *ErrorInformation         `json:"transferError,omitempty"`
	AcceptParty       *bool                     `json:"acceptParty,omitempty"`
	AcceptQuote       *bool                     `json:"acceptQuote,omitempty"`
	BatchID           string                    `json:"batchId,omitempty"`
	State             TransferState             `json:"state"`
	LastError         *ErrorInformation         `json:"lastError,omitempty"`
}

// DestinationFspID is the resolved owning institution of the payee.
func (t IndividualTransfer) DestinationFspID() string {
	return t.PartyResponse.FspID()
}

// BulkBatch groups transfers to one destination institution.
type BulkBatch struct {
	ID                    string                `json:"id"`
	BulkTransactionID     string                `json:"bulkTransactionId"`
	DestinationFspID      string                `json:"destinationFspId"`
	IndividualTransferIDs []string              `json:"individualTransferIds"`
	BulkQuotesRequest     *BulkQuotesRequest    `json:"bulkQuotesRequest,omitempty"`
	BulkQuotesResponse    *BulkQuotesResult     `json:"bulkQuotesResponse,omitempty"`
	BulkTransfersRequest  *BulkTransfersRequest `json:"bulkTransfersRequest,omitempty"`
	BulkTransfersResponse *BulkTransfersResult  `json:"bulkTransfersResponse,omitempty"`
	State                 BatchState            `json:"state"`
	LastError             *ErrorInformation     `json:"lastError,omitempty"`
}

// AcceptDecision is the caller's decision for one transfer.
type AcceptDecision struct {
	TransferID string `json:"transferId"`
	Accept     bool   `json:"accept"`
}
