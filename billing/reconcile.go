/*
reconcile.go - Keyed diff of a generated schedule against the persisted ledger

PURPOSE:
  Reconcile compares freshly generated periods with the periods already
  persisted for a tenancy and produces the minimal Plan that brings the
  ledger in line with the lease, keyed by MonthKey.

RULES:
  generated month exists in ledger  -> Update (keep ID and AmountPaid)
  generated month not in ledger     -> Create (new ID, AmountPaid 0)
  ledger month not generated        -> Delete

CRITICAL INVARIANTS:
  1. One operation per MonthKey; a MonthKey never appears in two sets.
  2. Idempotent: reconciling the same schedule against the result of
     applying the previous plan yields no creates, no deletes, and only
     no-op updates.
  3. AmountPaid is copied, never computed.

APPLYING:
  A Plan must be applied as one atomic batch (see store.go). Applying part
  of it breaks invariant 2.
*/
package billing

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PLAN
// =============================================================================

// Update replaces the generated fields of an existing period.
type Update struct {
	Before BillingPeriod
	After  BillingPeriod
}

// NoOp reports whether the update leaves every field unchanged.
func (u Update) NoOp() bool {
	return u.Before.ID == u.After.ID &&
		u.Before.AmountPaid.Equal(u.After.AmountPaid) &&
		u.Before.sameShape(u.After)
}

// Plan is the output of Reconcile.
type Plan struct {
	Creates []BillingPeriod
	Updates []Update
	Deletes []BillingPeriod
}

// PlanSummary counts the operations in a plan.
type PlanSummary struct {
	Creates int
	Updates int
	NoOps   int
	Deletes int
}

func (p Plan) Summary() PlanSummary {
	s := PlanSummary{Creates: len(p.Creates), Updates: len(p.Updates), Deletes: len(p.Deletes)}
	for _, u := range p.Updates {
		if u.NoOp() {
			s.NoOps++
		}
	}
	return s
}

// IsNoOp reports whether applying the plan would change nothing.
func (p Plan) IsNoOp() bool {
	s := p.Summary()
	return s.Creates == 0 && s.Deletes == 0 && s.NoOps == s.Updates
}

// Result returns the periods the ledger holds after the plan is applied,
// ordered by MonthKey.
func (p Plan) Result() []BillingPeriod {
	out := make([]BillingPeriod, 0, len(p.Creates)+len(p.Updates))
	for _, u := range p.Updates {
		out = append(out, u.After)
	}
	out = append(out, p.Creates...)
	SortPeriods(out)
	return out
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler assigns identifiers to newly created periods.
type Reconciler struct {
	NewID func() PeriodID
}

func NewReconciler() *Reconciler {
	return &Reconciler{NewID: newPeriodID}
}

func newPeriodID() PeriodID {
	return PeriodID(uuid.NewString())
}

var defaultReconciler = NewReconciler()

// Reconcile diffs generated against existing using the default reconciler.
func Reconcile(generated, existing []BillingPeriod) Plan {
	return defaultReconciler.Reconcile(generated, existing)
}

// Reconcile diffs generated against existing. It is total over its inputs.
//
// For a well-formed ledger, one period per MonthKey, every month lands in
// exactly one of Creates, Updates and Deletes. If existing carries several
// periods for the same month, the first is reconciled and the rest are
// deleted, so that month appears in Deletes as well as in Updates. The next
// reconcile of the repaired ledger is back to one operation per month.
func (r *Reconciler) Reconcile(generated, existing []BillingPeriod) Plan {
	newID := r.NewID
	if newID == nil {
		newID = newPeriodID
	}

	byMonth := make(map[MonthKey]BillingPeriod, len(existing))
	var plan Plan
	for _, p := range existing {
		if _, dup := byMonth[p.MonthKey]; dup {
			plan.Deletes = append(plan.Deletes, p)
			continue
		}
		byMonth[p.MonthKey] = p
	}

	seen := make(map[MonthKey]bool, len(generated))
	for _, g := range generated {
		if seen[g.MonthKey] {
			continue
		}
		seen[g.MonthKey] = true

		current, ok := byMonth[g.MonthKey]
		if !ok {
			created := g
			created.ID = newID()
			created.AmountPaid = decimal.Zero
			created.Charges = cloneCharges(g.Charges)
			plan.Creates = append(plan.Creates, created)
			continue
		}

		updated := current
		updated.DueDate = g.DueDate
		updated.RentAmount = g.RentAmount
		updated.Charges = cloneCharges(g.Charges)
		updated.DepositAmount = g.DepositAmount
		updated.Note = g.Note
		plan.Updates = append(plan.Updates, Update{Before: current, After: updated})
	}

	for month, p := range byMonth {
		if !seen[month] {
			plan.Deletes = append(plan.Deletes, p)
		}
	}
	SortPeriods(plan.Deletes)
	return plan
}

// SortPeriods orders periods by MonthKey, then ID.
func SortPeriods(periods []BillingPeriod) {
	sort.SliceStable(periods, func(i, j int) bool {
		if periods[i].MonthKey != periods[j].MonthKey {
			return periods[i].MonthKey.Before(periods[j].MonthKey)
		}
		return periods[i].ID < periods[j].ID
	})
}
