package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClaimConflict indicates a box was already claimed by another process.
// This is an expected outcome of concurrent packing workstations, not a
// failure.
var ErrClaimConflict = errors.New("box already claimed")

// OrderViolation is one pre-flight validation failure, keyed by the order it
// concerns.
type OrderViolation struct {
	PicklistID int    `json:"picklistId"`
	Reference  string `json:"orderReference,omitempty"`
	Reason     string `json:"reason"`
}

// ValidationError rejects a whole batch submission. No external or persisted
// state was created; the caller can fix the listed orders and resubmit.
type ValidationError struct {
	Violations []OrderViolation
}

func (e *ValidationError) Error() string {
	reasons := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		reasons = append(reasons, fmt.Sprintf("picklist %d: %s", v.PicklistID, v.Reason))
	}
	return fmt.Sprintf("batch validation failed (%d orders): %s",
		len(e.Violations), strings.Join(reasons, "; "))
}

// FatalBatchError indicates the batch record itself could not be created or
// updated. The whole submission aborts.
type FatalBatchError struct {
	BatchID string
	Cause   error
}

func (e *FatalBatchError) Error() string {
	return fmt.Sprintf("batch %s: %v", e.BatchID, e.Cause)
}

func (e *FatalBatchError) Unwrap() error {
	return e.Cause
}
