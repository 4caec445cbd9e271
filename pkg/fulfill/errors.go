package fulfill

import (
	"errors"
	"fmt"
	"time"
)

// APIError represents an error returned by the fulfillment platform.
type APIError struct {
	Operation  string
	Message    string
	StatusCode int
	RetryAfter time.Duration
	Cause      error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fulfill %s: %s: %v", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("fulfill %s: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// Sentinel errors for platform responses the pipeline branches on.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrThrottled indicates the platform rate limit was hit and the
	// retry-after wait plus one retry did not clear it.
	ErrThrottled = errors.New("rate limited")

	// ErrPicklistNotShippable indicates the picklist is not in a status
	// that allows shipment creation.
	ErrPicklistNotShippable = errors.New("picklist not in shippable status")

	// ErrNoShippingMethod indicates no shipping provider profile could be
	// resolved for a picklist.
	ErrNoShippingMethod = errors.New("no shipping method available")
)

// IsThrottled reports whether err represents a rate-limiting failure.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

func newAPIError(operation, message string, statusCode int) *APIError {
	return &APIError{Operation: operation, Message: message, StatusCode: statusCode}
}
