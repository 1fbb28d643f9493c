/*
errors.go - Centralized error types for the billing engine

ERROR CATEGORIES:
  1. Computation errors - the lease cannot be turned into a schedule
     (ErrInvalidLeaseConfiguration, ErrInvalidRange). Nothing is generated.
  2. Apply errors - the reconciliation plan could not be written to the
     ledger store (ErrApplyFailed, ErrConcurrentModification). The batch is
     all-or-nothing, so the whole plan may be recomputed and retried.
  3. Lookup errors - missing tenancy or period.

USAGE:
  plan, err := ledger.Regenerate(ctx, tenancyID, lease)
  switch {
  case billing.IsClientError(err):    // fix the lease and resubmit
  case billing.IsApplyFailure(err):   // nothing landed; safe to retry
  }
*/
package billing

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidLeaseConfiguration is returned before any computation when the
	// lease has a bad due day, an inverted date range or negative amounts.
	ErrInvalidLeaseConfiguration = errors.New("invalid lease configuration")

	// ErrInvalidRange is returned by MonthsBetween when end is before start.
	ErrInvalidRange = errors.New("invalid range: end before start")

	// ErrApplyFailed is returned when a reconciliation batch could not be
	// applied to the ledger store. None of the batch was applied.
	ErrApplyFailed = errors.New("ledger apply failed")

	// ErrConcurrentModification is returned by a store when a plan was computed
	// against periods that changed before it was applied.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	ErrTenancyNotFound = errors.New("tenancy not found")
	ErrPeriodNotFound  = errors.New("billing period not found")

	// ErrInvalidPayment is returned when a payment amount is not positive.
	ErrInvalidPayment = errors.New("invalid payment amount")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// LeaseError lists every problem found in a LeaseConfiguration.
type LeaseError struct {
	Problems []string
}

func (e *LeaseError) Error() string {
	return fmt.Sprintf("invalid lease configuration: %s", strings.Join(e.Problems, "; "))
}

func (e *LeaseError) Unwrap() error {
	return ErrInvalidLeaseConfiguration
}

// RangeError reports an inverted date range.
type RangeError struct {
	Start Date
	End   Date
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range: end %s before start %s", e.End, e.Start)
}

func (e *RangeError) Unwrap() error {
	return ErrInvalidRange
}

// ConflictError explains why a store rejected a plan as stale.
type ConflictError struct {
	TenancyID TenancyID
	PeriodID  PeriodID
	MonthKey  MonthKey
	Reason    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent modification on tenancy %s period %s (%s): %s",
		e.TenancyID, e.PeriodID, e.MonthKey, e.Reason)
}

func (e *ConflictError) Unwrap() error {
	return ErrConcurrentModification
}

// ApplyError wraps a store failure while applying a reconciliation plan.
// It matches both ErrApplyFailed and the underlying cause.
type ApplyError struct {
	TenancyID TenancyID
	Attempts  int
	Err       error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply reconciliation for tenancy %s failed after %d attempt(s): %v",
		e.TenancyID, e.Attempts, e.Err)
}

func (e *ApplyError) Unwrap() []error {
	return []error{ErrApplyFailed, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if recomputing and reapplying the plan might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidLeaseConfiguration) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidPayment)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTenancyNotFound) ||
		errors.Is(err, ErrPeriodNotFound)
}

// IsApplyFailure returns true if the error came from the store boundary
// rather than from schedule computation.
func IsApplyFailure(err error) bool {
	return errors.Is(err, ErrApplyFailed)
}
