/*
Package billing provides the tenancy billing schedule engine.

PURPOSE:
  Turns a lease (start and end dates, due day, monthly rent, recurring
  charges, deposit) into one billing period per calendar month, and keeps
  the persisted ledger of periods in step with the lease as it is edited,
  without losing recorded payments or creating duplicate months.

COMPONENTS:
  - calendar.go:  Date, MonthKey, clamping and month iteration
  - generator.go: LeaseConfiguration -> []BillingPeriod (pure)
  - reconcile.go: generated vs persisted -> Plan of creates/updates/deletes (pure)
  - status.go:    []BillingPeriod + today -> Classification (pure)
  - store.go:     persistence boundary (load, atomic apply, payments)
  - ledger.go:    Regenerate = load + generate + reconcile + apply

DATA FLOW:
  LeaseConfiguration -> Generate -> Reconcile(existing) -> Plan -> Store.ApplyBatch

PRECISION:
  All money is decimal.Decimal. Rent is rounded half-up to 2 places.
*/
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenancyID string
type PeriodID string

// =============================================================================
// LEASE CONFIGURATION - Generator input
// =============================================================================

// Charge is a fixed recurring fee billed identically in every period.
type Charge struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// LeaseConfiguration holds the terms a schedule is generated from.
// StartDate and EndDate are inclusive.
type LeaseConfiguration struct {
	StartDate        Date            `json:"start_date"`
	EndDate          Date            `json:"end_date"`
	DueDay           int             `json:"due_day"`
	MonthlyRent      decimal.Decimal `json:"monthly_rent"`
	RecurringCharges []Charge        `json:"recurring_charges,omitempty"`
	DepositAmount    decimal.Decimal `json:"deposit_amount"`
	LeaseNote        string          `json:"lease_note,omitempty"`
}

// Validate reports every problem with the configuration at once.
func (c LeaseConfiguration) Validate() error {
	var problems []string
	if c.StartDate.IsZero() {
		problems = append(problems, "start date is required")
	}
	if c.EndDate.IsZero() {
		problems = append(problems, "end date is required")
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
		problems = append(problems, fmt.Sprintf("end date %s is before start date %s", c.EndDate, c.StartDate))
	}
	if c.DueDay < 1 || c.DueDay > 31 {
		problems = append(problems, fmt.Sprintf("due day %d must be between 1 and 31", c.DueDay))
	}
	if c.MonthlyRent.IsNegative() {
		problems = append(problems, "monthly rent must not be negative")
	}
	if c.DepositAmount.IsNegative() {
		problems = append(problems, "deposit amount must not be negative")
	}
	for i, ch := range c.RecurringCharges {
		if ch.Amount.IsNegative() {
			problems = append(problems, fmt.Sprintf("charge %d (%s) must not be negative", i, ch.Name))
		}
	}
	if len(problems) > 0 {
		return &LeaseError{Problems: problems}
	}
	return nil
}

// =============================================================================
// BILLING PERIOD - One calendar month's obligation
// =============================================================================

// BillingPeriod is one month of a tenancy's schedule.
//
// The generator owns its shape (DueDate, RentAmount, Charges, DepositAmount,
// Note). The reconciler owns ID and carries AmountPaid forward. AmountPaid is
// only ever written by payment recording.
type BillingPeriod struct {
	ID            PeriodID        `json:"id,omitempty"`
	MonthKey      MonthKey        `json:"month"`
	DueDate       Date            `json:"due_date"`
	RentAmount    decimal.Decimal `json:"rent_amount"`
	Charges       []Charge        `json:"charges,omitempty"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Note          string          `json:"note,omitempty"`
}

// ChargesTotal sums the recurring charges snapshot.
func (p BillingPeriod) ChargesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, c := range p.Charges {
		total = total.Add(c.Amount)
	}
	return total
}

// AmountDue is rent plus charges plus deposit.
func (p BillingPeriod) AmountDue() decimal.Decimal {
	return p.RentAmount.Add(p.ChargesTotal()).Add(p.DepositAmount)
}

// Outstanding is what remains unpaid, never negative.
func (p BillingPeriod) Outstanding() decimal.Decimal {
	remaining := p.AmountDue().Sub(p.AmountPaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

func (p BillingPeriod) IsPaid() bool {
	return p.AmountPaid.GreaterThanOrEqual(p.AmountDue())
}

// sameShape reports whether two periods carry identical generated fields.
func (p BillingPeriod) sameShape(other BillingPeriod) bool {
	if p.MonthKey != other.MonthKey ||
		!p.DueDate.Equal(other.DueDate) ||
		!p.RentAmount.Equal(other.RentAmount) ||
		!p.DepositAmount.Equal(other.DepositAmount) ||
		p.Note != other.Note ||
		len(p.Charges) != len(other.Charges) {
		return false
	}
	for i := range p.Charges {
		if p.Charges[i].Name != other.Charges[i].Name || !p.Charges[i].Amount.Equal(other.Charges[i].Amount) {
			return false
		}
	}
	return true
}

func cloneCharges(charges []Charge) []Charge {
	if len(charges) == 0 {
		return nil
	}
	out := make([]Charge, len(charges))
	copy(out, charges)
	return out
}
