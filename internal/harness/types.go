package harness

import (
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every expectation held and nothing was
	// dead-lettered.
	Pass bool `json:"pass"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	BulkID   string          `json:"bulkId"`
	State    model.BulkState `json:"state"`
	Counters model.Counters  `json:"counters"`

	// Response is the last response delivered to the caller, if any.
	Response *model.BulkResponse `json:"response,omitempty"`

	// Transfers is sorted by home transaction id.
	Transfers []TransferOutcome `json:"transfers"`

	// Events counts the domain events per name, sorted by name. Delivery
	// order is not deterministic, so only counts are kept.
	Events []EventCount `json:"events"`

	DeadLetters int `json:"deadLetters,omitempty"`
}

// TransferOutcome is the settled state of one transfer.
type TransferOutcome struct {
	HomeTransactionID string              `json:"homeTransactionId"`
	State             model.TransferState `json:"state"`
	ErrorCode         string              `json:"errorCode,omitempty"`
}

// EventCount is how often a domain event was published.
type EventCount struct {
	Name  event.Name `json:"name"`
	Count int        `json:"count"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Errors:    []string{},
		Transfers: []TransferOutcome{},
		Events:    []EventCount{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// EventCount returns how often name was published.
func (r *Result) EventCount(name event.Name) int {
	for _, e := range r.Events {
		if e.Name == name {
			return e.Count
		}
	}
	return 0
}

// Transfer returns the outcome for a home transaction id.
func (r *Result) Transfer(home string) (TransferOutcome, bool) {
	for _, t := range r.Transfers {
		if t.HomeTransactionID == home {
			return t, true
		}
	}
	return TransferOutcome{}, false
}
