package broker

import (
	"errors"
	"fmt"
)

// Error represents a broker error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for broker operations.
const (
	// ErrCodeNoData indicates a repository lookup found no row.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeNotFound indicates a referenced topic or subscription does not exist.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeNoSubscribers indicates a publish reached a topic without subscriptions.
	ErrCodeNoSubscribers = "NO_SUBSCRIBERS"

	// ErrCodeInvalidArgument indicates a malformed request.
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"

	// ErrCodeConflict indicates a lost compare-and-set race on a message row.
	ErrCodeConflict = "CONFLICT"

	// ErrCodeStoreUnavailable indicates the entity store failed; callers may retry.
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
)

// Common errors.
var (
	// ErrNoData is returned by repositories when a query returns no results.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrConflict is returned by stores that report a lost claim as an error
	// instead of a false result. The lease manager treats it as a skipped row.
	ErrConflict = &Error{
		Code:    ErrCodeConflict,
		Message: "message state changed concurrently",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// ErrorCode returns the code of the outermost *Error in err's chain, or "".
func ErrorCode(err error) string {
	var brokerErr *Error
	if errors.As(err, &brokerErr) {
		return brokerErr.Code
	}
	return ""
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return hasCode(err, ErrCodeNoData)
}

// IsNotFound checks if a referenced topic or subscription was missing.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsNoSubscribers checks if a publish found no subscriptions.
func IsNoSubscribers(err error) bool {
	return hasCode(err, ErrCodeNoSubscribers)
}

// IsInvalidArgument checks if a request was rejected as malformed.
func IsInvalidArgument(err error) bool {
	return hasCode(err, ErrCodeInvalidArgument)
}

// IsConflict checks if an error reports a lost claim race.
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

// IsStoreUnavailable checks if the entity store failed transiently.
func IsStoreUnavailable(err error) bool {
	return hasCode(err, ErrCodeStoreUnavailable)
}

// hasCode walks the whole chain so a NOT_FOUND wrapping NO_DATA matches both.
func hasCode(err error, code string) bool {
	for err != nil {
		var brokerErr *Error
		if !errors.As(err, &brokerErr) {
			return false
		}
		if brokerErr.Code == code {
			return true
		}
		err = brokerErr.Err
	}
	return false
}

// storeError wraps a repository failure so callers can tell it apart from a
// domain rejection. Errors that already carry a code are passed through.
func storeError(message string, err error) error {
	if ErrorCode(err) == ErrCodeStoreUnavailable {
		return err
	}
	return NewErrorWithCause(ErrCodeStoreUnavailable, message, err)
}
