// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/tenancy-billing/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	periods   map[billing.TenancyID][]billing.BillingPeriod
	tenancies map[billing.TenancyID]billing.Tenancy
}

func NewMemory() *Memory {
	return &Memory{
		periods:   make(map[billing.TenancyID][]billing.BillingPeriod),
		tenancies: make(map[billing.TenancyID]billing.Tenancy),
	}
}

// Periods returns a copy of the tenancy's periods ordered by month.
func (m *Memory) Periods(_ context.Context, tenancyID billing.TenancyID) ([]billing.BillingPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyPeriods(m.periods[tenancyID]), nil
}

// ApplyBatch checks the plan against the current periods, then swaps in the
// result. Both happen under one lock, so the batch is atomic.
func (m *Memory) ApplyBatch(_ context.Context, tenancyID billing.TenancyID, plan billing.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(tenancyID, plan)
}

// ApplyLease stores t only if its plan applies.
func (m *Memory) ApplyLease(_ context.Context, t billing.Tenancy, plan billing.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.applyLocked(t.ID, plan); err != nil {
		return err
	}
	m.saveTenancyLocked(t)
	return nil
}

func (m *Memory) applyLocked(tenancyID billing.TenancyID, plan billing.Plan) error {
	current := m.periods[tenancyID]
	if err := billing.CheckPlan(tenancyID, current, plan); err != nil {
		return err
	}

	deleted := make(map[billing.PeriodID]bool, len(plan.Deletes))
	for _, d := range plan.Deletes {
		deleted[d.ID] = true
	}
	updated := make(map[billing.PeriodID]billing.BillingPeriod, len(plan.Updates))
	for _, u := range plan.Updates {
		updated[u.After.ID] = u.After
	}

	next := make([]billing.BillingPeriod, 0, len(current)+len(plan.Creates))
	for _, p := range current {
		if deleted[p.ID] {
			continue
		}
		if u, ok := updated[p.ID]; ok {
			p = u
		}
		next = append(next, p)
	}
	next = append(next, plan.Creates...)
	billing.SortPeriods(next)

	m.periods[tenancyID] = copyPeriods(next)
	return nil
}

func (m *Memory) RecordPayment(_ context.Context, tenancyID billing.TenancyID, periodID billing.PeriodID, amount decimal.Decimal) (billing.BillingPeriod, error) {
	if !amount.IsPositive() {
		return billing.BillingPeriod{}, billing.ErrInvalidPayment
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	periods := m.periods[tenancyID]
	for i := range periods {
		if periods[i].ID == periodID {
			periods[i].AmountPaid = periods[i].AmountPaid.Add(amount)
			return copyPeriods(periods[i : i+1])[0], nil
		}
	}
	return billing.BillingPeriod{}, billing.ErrPeriodNotFound
}

// =============================================================================
// TENANCIES
// =============================================================================

func (m *Memory) SaveTenancy(_ context.Context, t billing.Tenancy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveTenancyLocked(t)
	return nil
}

func (m *Memory) saveTenancyLocked(t billing.Tenancy) {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	m.tenancies[t.ID] = t
}

func (m *Memory) Tenancy(_ context.Context, id billing.TenancyID) (billing.Tenancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenancies[id]
	if !ok {
		return billing.Tenancy{}, billing.ErrTenancyNotFound
	}
	return t, nil
}

func (m *Memory) ListTenancies(_ context.Context) ([]billing.Tenancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]billing.Tenancy, 0, len(m.tenancies))
	for _, t := range m.tenancies {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Reset drops every tenancy and period.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods = make(map[billing.TenancyID][]billing.BillingPeriod)
	m.tenancies = make(map[billing.TenancyID]billing.Tenancy)
	return nil
}

func copyPeriods(periods []billing.BillingPeriod) []billing.BillingPeriod {
	out := make([]billing.BillingPeriod, len(periods))
	for i, p := range periods {
		if len(p.Charges) > 0 {
			p.Charges = append([]billing.Charge(nil), p.Charges...)
		}
		out[i] = p
	}
	return out
}
