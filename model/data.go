// Package model contains the domain models of the broker: topics, subscriptions
// and the per-subscription message copies together with their delivery state machine.
package model

// tablePrefix is the default prefix used by TableName methods.
const tablePrefix = "pubsub_"

// DomainError represents a domain-level business rule violation.
type DomainError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
}

func (e DomainError) Error() string {
	return e.Message
}

// Domain errors returned by Message lifecycle methods.
var (
	// ErrInvalidTransition indicates a status change the state machine does not allow.
	ErrInvalidTransition = DomainError{Code: "INVALID_TRANSITION", Message: "invalid message status transition"}

	// ErrMessageExpired indicates the message passed its absolute expiry.
	ErrMessageExpired = DomainError{Code: "MESSAGE_EXPIRED", Message: "message has expired"}

	// ErrInvalidLease indicates a non-positive lease duration.
	ErrInvalidLease = DomainError{Code: "INVALID_LEASE", Message: "lease duration must be positive"}
)
