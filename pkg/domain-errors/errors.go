// Package domainerrors defines the coded error type shared by every layer.
//
// Services return these as values; the HTTP layer maps codes to statuses in
// one place. Callers branch on codes with HasCode, never on message text.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class in the lifecycle contract.
type Code string

const (
	// CodeInvalidTransition reports a transition whose guard failed. The
	// message names the current state, the attempted trigger, and the unmet
	// guard condition.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeStaleState reports a lost optimistic-concurrency race: the
	// application changed between read and write.
	CodeStaleState Code = "stale_state"
	// CodeAlreadyAllocated reports an offer against an application that
	// already holds an outstanding offer.
	CodeAlreadyAllocated Code = "already_allocated"
	// CodeIneligibleApplication reports an enqueue/allocate attempt for an
	// application that never passed eligibility. Defensive: unreachable when
	// the state machine is the only writer.
	CodeIneligibleApplication Code = "ineligible_application"
	// CodeAppealWindowExpired reports an appeal filed after
	// rejectionDate + appealPeriodDays.
	CodeAppealWindowExpired Code = "appeal_window_expired"
	// CodeDocumentIncomplete reports missing or unverified required documents.
	CodeDocumentIncomplete Code = "document_incomplete"

	CodeNotFound     Code = "not_found"
	CodeInvalidInput Code = "invalid_input"
	CodeInternal     Code = "internal"
)

// Error carries a code plus a human-readable message, optionally wrapping a
// cause for store-level diagnostics.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code onto the status the transport layer writes.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidInput, CodeDocumentIncomplete:
		return http.StatusBadRequest
	case CodeStaleState, CodeAlreadyAllocated:
		return http.StatusConflict
	case CodeInvalidTransition, CodeIneligibleApplication, CodeAppealWindowExpired:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
