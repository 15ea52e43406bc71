package model

import "slices"

// BulkState is the global state of a bulk transaction.
type BulkState string

const (
	BulkStateReceived                     BulkState = "RECEIVED"
	BulkStateDiscoveryProcessing          BulkState = "DISCOVERY_PROCESSING"
	BulkStateDiscoveryCompleted           BulkState = "DISCOVERY_COMPLETED"
	BulkStateDiscoveryAcceptancePending   BulkState = "DISCOVERY_ACCEPTANCE_PENDING"
	BulkStateDiscoveryAcceptanceCompleted BulkState = "DISCOVERY_ACCEPTANCE_COMPLETED"
	BulkStateAgreementProcessing          BulkState = "AGREEMENT_PROCESSING"
	BulkStateAgreementAcceptancePending   BulkState = "AGREEMENT_ACCEPTANCE_PENDING"
	BulkStateAgreementCompleted           BulkState = "AGREEMENT_COMPLETED"
	BulkStateTransfersProcessing          BulkState = "TRANSFERS_PROCESSING"
	BulkStateCompleted                    BulkState = "COMPLETED"
	BulkStateResponseProcessing           BulkState = "RESPONSE_PROCESSING"
	BulkStateResponseSent                 BulkState = "RESPONSE_SENT"
	BulkStateExpired                      BulkState = "EXPIRED"
)

var validBulkStates = map[BulkState]bool{
	BulkStateReceived:                     true,
	BulkStateDiscoveryProcessing:          true,
	BulkStateDiscoveryCompleted:           true,
	BulkStateDiscoveryAcceptancePending:   true,
	BulkStateDiscoveryAcceptanceCompleted: true,
	BulkStateAgreementProcessing:          true,
	BulkStateAgreementAcceptancePending:   true,
	BulkStateAgreementCompleted:           true,
	BulkStateTransfersProcessing:          true,
	BulkStateCompleted:                    true,
	BulkStateResponseProcessing:           true,
	BulkStateResponseSent:                 true,
	BulkStateExpired:                      true,
}

var bulkStateOrder = []BulkState{
	BulkStateReceived,
	BulkStateDiscoveryProcessing,
	BulkStateDiscoveryCompleted,
	BulkStateDiscoveryAcceptancePending,
	BulkStateDiscoveryAcceptanceCompleted,
	BulkStateAgreementProcessing,
	BulkStateAgreementAcceptancePending,
	BulkStateAgreementCompleted,
	BulkStateTransfersProcessing,
	BulkStateCompleted,
	BulkStateResponseProcessing,
	BulkStateResponseSent,
	BulkStateExpired,
}

// BulkStates returns every bulk state in lifecycle order.
func BulkStates() []BulkState {
	return slices.Clone(bulkStateOrder)
}

// IsValid reports whether s is a known bulk state.
func (s BulkState) IsValid() bool {
	return validBulkStates[s]
}

// Expirable reports whether a bulk in state s can still be expired.
// Once all transfers have finished, or the bulk already expired, the
// expiry path no longer applies.
func (s BulkState) Expirable() bool {
	switch s {
	case BulkStateCompleted, BulkStateResponseProcessing, BulkStateResponseSent, BulkStateExpired:
		return false
	}
	return s.IsValid()
}

// TransferState is the state of one individual transfer.
type TransferState string

const (
	TransferStateNew                 TransferState = "NEW"
	TransferStateDiscoveryProcessing TransferState = "DISCOVERY_PROCESSING"
	TransferStateDiscoverySuccess    TransferState = "DISCOVERY_SUCCESS"
	TransferStateDiscoveryFailed     TransferState = "DISCOVERY_FAILED"
	TransferStateDiscoveryAccepted   TransferState = "DISCOVERY_ACCEPTED"
	TransferStateDiscoveryRejected   TransferState = "DISCOVERY_REJECTED"
	TransferStateAgreementProcessing TransferState = "AGREEMENT_PROCESSING"
	TransferStateAgreementSuccess    TransferState = "AGREEMENT_SUCCESS"
	TransferStateAgreementFailed     TransferState = "AGREEMENT_FAILED"
	TransferStateAgreementAccepted   TransferState = "AGREEMENT_ACCEPTED"
	TransferStateAgreementRejected   TransferState = "AGREEMENT_REJECTED"
	TransferStateTransferProcessing  TransferState = "TRANSFER_PROCESSING"
	TransferStateTransferSuccess     TransferState = "TRANSFER_SUCCESS"
	TransferStateTransferFailed      TransferState = "TRANSFER_FAILED"
)

var validTransferStates = map[TransferState]bool{
	TransferStateNew:                 true,
	TransferStateDiscoveryProcessing: true,
	TransferStateDiscoverySuccess:    true,
	TransferStateDiscoveryFailed:     true,
	TransferStateDiscoveryAccepted:   true,
	TransferStateDiscoveryRejected:   true,
	TransferStateAgreementProcessing: true,
	TransferStateAgreementSuccess:    true,
	TransferStateAgreementFailed:     true,
	TransferStateAgreementAccepted:   true,
	TransferStateAgreementRejected:   true,
	TransferStateTransferProcessing:  true,
	TransferStateTransferSuccess:     true,
	TransferStateTransferFailed:      true,
}

// IsValid reports whether s is a known transfer state.
func (s TransferState) IsValid() bool {
	return validTransferStates[s]
}

// IsTerminal reports whether the item can make no further progress.
func (s TransferState) IsTerminal() bool {
	switch s {
	case TransferStateDiscoveryFailed, TransferStateDiscoveryRejected,
		TransferStateAgreementFailed, TransferStateAgreementRejected,
		TransferStateTransferSuccess, TransferStateTransferFailed:
		return true
	}
	return false
}

// BatchState is the state of a bulk batch.
type BatchState string

const (
	BatchStateAgreementProcessing BatchState = "AGREEMENT_PROCESSING"
	BatchStateAgreementCompleted  BatchState = "AGREEMENT_COMPLETED"
	BatchStateAgreementFailed     BatchState = "AGREEMENT_FAILED"
	BatchStateTransfersProcessing BatchState = "TRANSFERS_PROCESSING"
	BatchStateTransfersCompleted  BatchState = "TRANSFERS_COMPLETED"
	BatchStateTransfersFailed     BatchState = "TRANSFERS_FAILED"
)

// IsValid reports whether s is a known batch state.
func (s BatchState) IsValid() bool {
	switch s {
	case BatchStateAgreementProcessing, BatchStateAgreementCompleted, BatchStateAgreementFailed,
		BatchStateTransfersProcessing, BatchStateTransfersCompleted, BatchStateTransfersFailed:
		return true
	}
	return false
}

// Phase names one of the three orchestration phases.
type Phase string

const (
	PhaseDiscovery Phase = "discovery"
	PhaseAgreement Phase = "agreement"
	PhaseTransfers Phase = "transfers"
)

// ProcessingState returns the batch state that marks a batch as in flight
// for the phase. Discovery has no batches and returns "".
func (p Phase) ProcessingState() BatchState {
	switch p {
	case PhaseAgreement:
		return BatchStateAgreementProcessing
	case PhaseTransfers:
		return BatchStateTransfersProcessing
	}
	return ""
}

// Outcome returns the terminal batch state for the phase.
func (p Phase) Outcome(ok bool) BatchState {
	switch {
	case p == PhaseAgreement && ok:
		return BatchStateAgreementCompleted
	case p == PhaseAgreement:
		return BatchStateAgreementFailed
	case p == PhaseTransfers && ok:
		return BatchStateTransfersCompleted
	case p == PhaseTransfers:
		return BatchStateTransfersFailed
	}
	return ""
}
