package model

import "time"

// IndividualQuote is one entry of a bulk quotes request. QuoteID is the
// individual transfer id and correlates the result.
type IndividualQuote struct {
	QuoteID         string     `json:"quoteId"`
	To              Party      `json:"to"`
	AmountType      AmountType `json:"amountType"`
	Amount          Money      `json:"amount"`
	TransactionType string     `json:"transactionType,omitempty"`
	Note            string     `json:"note,omitempty"`
}

// BulkQuotesRequest is sent to one destination institution.
type BulkQuotesRequest struct {
	BulkQuoteID      string            `json:"bulkQuoteId"`
	From             Party             `json:"from"`
	Expiration       time.Time         `json:"expiration,omitzero"`
	IndividualQuotes []IndividualQuote `json:"individualQuotes"`
}

// IndividualQuoteResult is the quote for one transfer. LastError is set
// when the counterparty could not quote this item.
type IndividualQuoteResult struct {
	QuoteID            string            `json:"quoteId"`
	TransferAmount     *Money            `json:"transferAmount,omitempty"`
	PayeeReceiveAmount *Money            `json:"payeeReceiveAmount,omitempty"`
	PayeeFspFee        *Money            `json:"payeeFspFee,omitempty"`
	PayeeFspCommission *Money            `json:"payeeFspCommission,omitempty"`
	IlpPacket          string            `json:"ilpPacket,omitempty"`
	Condition          string            `json:"condition,omitempty"`
	LastError          *ErrorInformation `json:"lastError,omitempty"`
}

// BulkQuotesResult is the provider's answer to a BulkQuotesRequest.
type BulkQuotesResult struct {
	BulkQuoteID            string                  `json:"bulkQuoteId"`
	CurrentState           string                  `json:"currentState,omitempty"`
	Expiration             time.Time               `json:"expiration,omitzero"`
	IndividualQuoteResults []IndividualQuoteResult `json:"individualQuoteResults"`
}

// IndividualBulkTransfer is one entry of a bulk transfers request.
// TransferID is the individual transfer id.
type IndividualBulkTransfer struct {
	TransferID string `json:"transferId"`
	To         Party  `json:"to"`
	Amount     Money  `json:"amount"`
	IlpPacket  string `json:"ilpPacket,omitempty"`
	Condition  string `json:"condition,omitempty"`
}

// BulkTransfersRequest is sent to one destination institution.
type BulkTransfersRequest struct {
	BulkTransferID      string                   `json:"bulkTransferId"`
	BulkQuoteID         string                   `json:"bulkQuoteId"`
	From                Party                    `json:"from"`
	IndividualTransfers []IndividualBulkTransfer `json:"individualTransfers"`
}

// Transfer states reported by the provider for an individual transfer.
const (
	ProviderTransferCommitted = "COMMITTED"
	ProviderTransferAborted   = "ABORTED"
)

// IndividualTransferResult is the outcome of one transfer.
type IndividualTransferResult struct {
	TransferID    string            `json:"transferId"`
	Fulfilment    string            `json:"fulfilment,omitempty"`
	TransferState string            `json:"transferState,omitempty"`
	LastError     *ErrorInformation `json:"lastError,omitempty"`
}

// Failed reports whether the provider marked the transfer as not executed.
func (r IndividualTransferResult) Failed() bool {
	return r.LastError != nil || r.TransferState == ProviderTransferAborted
}

// BulkTransfersResult is the provider's answer to a BulkTransfersRequest.
type BulkTransfersResult struct {
	BulkTransferID            string                     `json:"bulkTransferId"`
	CurrentState              string                     `json:"currentState,omitempty"`
	CompletedTimestamp        time.Time                  `json:"completedTimestamp,omitzero"`
	IndividualTransferResults []IndividualTransferResult `json:"individualTransferResults"`
}

// Outcome values of a BulkResponse.
const (
	ResponseStateCompleted = "COMPLETED"
	ResponseStateExpired   = "EXPIRED"
)

// IndividualTransferOutcome is the caller-facing result of one transfer.
type IndividualTransferOutcome struct {
	TransferID        string                    `json:"transferId"`
	HomeTransactionID string                    `json:"homeTransactionId"`
	State             TransferState             `json:"state"`
	To                Party                     `json:"to"`
	Amount            Money                     `json:"amount"`
	QuoteResponse     *IndividualQuoteResult    `json:"quoteResponse,omitempty"`
	TransferResponse  *IndividualTransferResult `json:"transferResponse,omitempty"`
	LastError         *ErrorInformation         `json:"lastError,omitempty"`
}

// BulkResponse is the final outcome returned to the caller.
type BulkResponse struct {
	BulkTransactionID         string                      `json:"bulkTransactionId"`
	BulkHomeTransactionID     string                      `json:"bulkHomeTransactionID"`
	CurrentState              string                      `json:"currentState"`
	Options                   BulkOptions                 `json:"options"`
	Counters                  Counters                    `json:"counters"`
	IndividualTransferResults []IndividualTransferOutcome `json:"individualTransferResults"`
}
