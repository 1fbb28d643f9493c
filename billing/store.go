/*
store.go - Persistence boundary for billing periods

PURPOSE:
  Separates the pure engine (Generate, Reconcile, Classify) from the ledger
  store. Stores are swappable: SQLite in production, in-memory in tests.

KEY INTERFACES:
  PeriodReader:    all periods for a tenancy
  BatchApplier:    apply a reconciliation Plan atomically (the one write path
                   for schedule shape)
  PaymentRecorder: the payment workflow's write path, the only writer of
                   AmountPaid
  TenancyStore:    lease configurations per tenancy
  LeaseApplier:    save a lease and apply its plan as one atomic step

ATOMIC BATCHES:
  ApplyBatch is all-or-nothing. A store must either land every create,
  update and delete of the Plan or none of them.

COMPARE-AND-SWAP:
  Before applying, a store checks the plan against what it currently holds
  (CheckPlan). A plan computed from a stale read is rejected whole with
  ErrConcurrentModification and the caller recomputes it.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - billing/store/memory.go: In-memory for testing
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

type PeriodReader interface {
	// Periods returns every period of the tenancy ordered by MonthKey.
	Periods(ctx context.Context, tenancyID TenancyID) ([]BillingPeriod, error)
}

type BatchApplier interface {
	// ApplyBatch applies creates, updates and deletes atomically.
	ApplyBatch(ctx context.Context, tenancyID TenancyID, plan Plan) error
}

// Store is what the Ledger needs: read the ledger, apply a plan.
type Store interface {
	PeriodReader
	BatchApplier
}

type PaymentRecorder interface {
	// RecordPayment adds amount to the period's AmountPaid and returns the
	// updated period.
	RecordPayment(ctx context.Context, tenancyID TenancyID, periodID PeriodID, amount decimal.Decimal) (BillingPeriod, error)
}

// Tenancy is a lease under management.
type Tenancy struct {
	ID        TenancyID          `json:"id"`
	Name      string             `json:"name"`
	Lease     LeaseConfiguration `json:"lease"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type TenancyStore interface {
	SaveTenancy(ctx context.Context, t Tenancy) error
	Tenancy(ctx context.Context, id TenancyID) (Tenancy, error)
	ListTenancies(ctx context.Context) ([]Tenancy, error)
}

// LeaseApplier stores a tenancy and applies the plan that brings its periods
// in line with the new lease. Either both land or neither does, so a failed
// edit never leaves the new lease next to the old periods.
type LeaseApplier interface {
	ApplyLease(ctx context.Context, t Tenancy, plan Plan) error
}

// =============================================================================
// PLAN VALIDATION - shared compare-and-swap rules
// =============================================================================

// CheckPlan verifies that plan was computed against current. It returns a
// *ConflictError when an update or delete targets a period that is gone or
// whose AmountPaid moved, or when a create collides with an existing month
// or identifier.
func CheckPlan(tenancyID TenancyID, current []BillingPeriod, plan Plan) error {
	byID := make(map[PeriodID]BillingPeriod, len(current))
	months := make(map[MonthKey]bool, len(current))
	for _, p := range current {
		byID[p.ID] = p
		months[p.MonthKey] = true
	}

	conflict := func(p BillingPeriod, reason string) error {
		return &ConflictError{TenancyID: tenancyID, PeriodID: p.ID, MonthKey: p.MonthKey, Reason: reason}
	}

	deleted := make(map[MonthKey]bool, len(plan.Deletes))
	for _, d := range plan.Deletes {
		if _, ok := byID[d.ID]; !ok {
			return conflict(d, "period to delete no longer exists")
		}
		deleted[d.MonthKey] = true
	}
	for _, u := range plan.Updates {
		stored, ok := byID[u.Before.ID]
		if !ok {
			return conflict(u.Before, "period to update no longer exists")
		}
		if u.After.ID != u.Before.ID || u.After.MonthKey != stored.MonthKey {
			return conflict(u.Before, "update changes period identity")
		}
		if !stored.AmountPaid.Equal(u.After.AmountPaid) {
			return conflict(u.Before, "amount paid changed since plan was computed")
		}
	}
	for _, c := range plan.Creates {
		if _, ok := byID[c.ID]; ok {
			return conflict(c, "period identifier already exists")
		}
		if months[c.MonthKey] && !deleted[c.MonthKey] {
			return conflict(c, "month already has a billing period")
		}
	}
	return nil
}
