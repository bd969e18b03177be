// Package domain defines the core domain models for KeyDesk.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes have the form KD-<AREA>-<NNNN>; the numeric part mirrors the closest
// HTTP status so transports can map them mechanically.
type DomainError struct {
	Code    string // Error code (e.g., "KD-KEY-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Key Errors (KEY)
// ============================================================================

var (
	// ErrKeyNotFound indicates the key is unknown to the pool.
	ErrKeyNotFound = NewDomainError("KD-KEY-4040", "key not found")

	// ErrNotAvailable indicates the pool has no issuable key left.
	ErrNotAvailable = NewDomainError("KD-KEY-4041", "no key available")

	// ErrAlreadyClaimed indicates the recipient already received a self-service key.
	ErrAlreadyClaimed = NewDomainError("KD-KEY-4090", "recipient already claimed a key")

	// ErrKeyAlreadyUsed indicates the key is flagged used and must be reset first.
	ErrKeyAlreadyUsed = NewDomainError("KD-KEY-4091", "key already used")

	// ErrKeyConflict indicates a concurrent writer changed the key record.
	ErrKeyConflict = NewDomainError("KD-KEY-4092", "key record changed concurrently, please retry")

	// ErrDeliveryFailure indicates the recipient could not be reached.
	// Issuance has been rolled back when this is returned.
	ErrDeliveryFailure = NewDomainError("KD-KEY-5020", "key delivery failed")
)

// ============================================================================
// Ticket Errors (TCKT)
// ============================================================================

var (
	// ErrTicketNotFound indicates no ticket record exists for the channel.
	ErrTicketNotFound = NewDomainError("KD-TCKT-4040", "ticket not found")

	// ErrTicketAlreadyClaimed indicates another administrator holds the ticket.
	ErrTicketAlreadyClaimed = NewDomainError("KD-TCKT-4090", "ticket claimed by another administrator")

	// ErrTicketConflict indicates the compare-and-set retry budget was exhausted.
	ErrTicketConflict = NewDomainError("KD-TCKT-4091", "ticket changed concurrently, please retry")

	// ErrTicketValidation indicates ticket data validation failed.
	ErrTicketValidation = NewDomainError("KD-TCKT-4001", "ticket validation failed")
)

// ============================================================================
// Authorization and Command Errors (AUTH, CMD)
// ============================================================================

var (
	// ErrUnauthorized indicates a non-admin on an admin operation, or a
	// release attempted by someone other than the claimant.
	ErrUnauthorized = NewDomainError("KD-AUTH-4030", "unauthorized")

	// ErrDuplicateInvocation indicates the invocation is already in flight or
	// was recently handled. Callers drop it silently.
	ErrDuplicateInvocation = NewDomainError("KD-CMD-4290", "duplicate invocation")
)

// ============================================================================
// System and Argument Errors (SYS, ARG)
// ============================================================================

var (
	// ErrInternal indicates an internal error.
	ErrInternal = NewDomainError("KD-SYS-5000", "internal error")

	// ErrStoreUnavailable indicates the backing store could not be reached.
	ErrStoreUnavailable = NewDomainError("KD-SYS-5030", "store unavailable")

	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("KD-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("KD-ARG-1002", "missing required argument")
)
