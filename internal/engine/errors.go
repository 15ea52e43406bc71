package engine

import (
	"errors"
	"fmt"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/store"
)

// ProcessingError is returned by Process when a command cannot be applied.
//
// Malformed, ordering and expired errors are acknowledged: the command is
// dropped and the bus must not redeliver it. Storage and not-found errors
// are returned to the bus so that the command is redelivered.
type ProcessingError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Command is the name of the command being processed.
	Command event.Name

	// BulkID identifies the affected bulk, when known.
	BulkID string

	// BatchID identifies the affected batch, when known.
	BatchID string

	// Cause is the underlying error, if any.
	Cause error
}

// ErrorCode categorizes processing errors.
type ErrorCode string

const (
	// ErrCodeMalformed indicates input that can never be processed.
	ErrCodeMalformed ErrorCode = "MALFORMED_INPUT"

	// ErrCodeOrdering indicates a command that is not valid in the
	// current state.
	ErrCodeOrdering ErrorCode = "ORDERING_ERROR"

	// ErrCodeStorage indicates a failure of the state store or the bus.
	ErrCodeStorage ErrorCode = "STORAGE_ERROR"

	// ErrCodeNotFound indicates a bulk, transfer or batch missing from the
	// state store when the command expected it.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeExpired indicates a command for a bulk that already expired.
	ErrCodeExpired ErrorCode = "EXPIRED"
)

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.BulkID != "" && e.BatchID != "":
		msg = fmt.Sprintf("%s (command=%s, bulk=%s, batch=%s)", msg, e.Command, e.BulkID, e.BatchID)
	case e.BulkID != "":
		msg = fmt.Sprintf("%s (command=%s, bulk=%s)", msg, e.Command, e.BulkID)
	case e.Command != "":
		msg = fmt.Sprintf("%s (command=%s)", msg, e.Command)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Acknowledged reports whether the command should be dropped rather than
// redelivered.
func (e *ProcessingError) Acknowledged() bool {
	return e.Code != ErrCodeStorage && e.Code != ErrCodeNotFound
}

func hasCode(err error, code ErrorCode) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsMalformed reports whether err is a malformed input error.
func IsMalformed(err error) bool { return hasCode(err, ErrCodeMalformed) }

// IsOrderingError reports whether err is an ordering error.
func IsOrderingError(err error) bool { return hasCode(err, ErrCodeOrdering) }

// IsStorageError reports whether err is a storage error.
func IsStorageError(err error) bool { return hasCode(err, ErrCodeStorage) }

// IsNotFound reports whether err was caused by a missing entity.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsExpired reports whether err was caused by an expired bulk.
func IsExpired(err error) bool { return hasCode(err, ErrCodeExpired) }

func malformed(c event.Command, cause error, format string, args ...any) *ProcessingError {
	return &ProcessingError{
		Code:    ErrCodeMalformed,
		Message: fmt.Sprintf(format, args...),
		Command: c.EventName(),
		BulkID:  c.Bulk(),
		Cause:   cause,
	}
}

// unexpectedState reports a command that arrived in the wrong state. A
// bulk that already expired gets ErrCodeExpired.
func unexpectedState(c event.Command, state model.BulkState) *ProcessingError {
	code := ErrCodeOrdering
	if state == model.BulkStateExpired {
		code = ErrCodeExpired
	}
	return &ProcessingError{
		Code:    code,
		Message: fmt.Sprintf("not valid in state %s", state),
		Command: c.EventName(),
		BulkID:  c.Bulk(),
	}
}

// storageError classifies an error returned by the repository. Both
// codes it returns are redelivered.
func storageError(c event.Command, op string, err error) *ProcessingError {
	code := ErrCodeStorage
	if errors.Is(err, store.ErrNotFound) {
		code = ErrCodeNotFound
	}
	return &ProcessingError{
		Code:    code,
		Message: op,
		Command: c.EventName(),
		BulkID:  c.Bulk(),
		Cause:   err,
	}
}
