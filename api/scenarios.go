/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with leases that
	exercise the schedule rules: proration at both ends, single-month
	leases, due-day clamping, and edits that preserve or drop payments.

AVAILABLE SCENARIOS:

	mid-month-lease:   Starts and ends mid-month, deposit and parking charge
	short-stay:        Starts and ends inside one month
	month-end-due:     Due day 31, clamped to each month's last day
	lease-extension:   Paid periods survive an edit that extends the lease
	early-termination: Shortening the lease deletes the trailing periods

HOW SCENARIOS WORK:
 1. Reset store (clear all data)
 2. Save each tenancy and regenerate its periods
 3. Optionally record payments and edit the lease again

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "lease-extension"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tenancy-billing/billing"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "mid-month-lease",
		Name:        "Mid-Month Lease",
		Description: "Lease from Jan 15 to Jun 14 with pro-rated first and last months",
	},
	{
		ID:          "short-stay",
		Name:        "Short Stay",
		Description: "Eleven-day lease inside a single month",
	},
	{
		ID:          "month-end-due",
		Name:        "Month-End Due Day",
		Description: "Due day 31 clamped to Feb 29, Apr 30 and friends",
	},
	{
		ID:          "lease-extension",
		Name:        "Lease Extension",
		Description: "Two months paid, then the lease is extended by three months",
	},
	{
		ID:          "early-termination",
		Name:        "Early Termination",
		Description: "Twelve-month lease shortened to four months",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the loaded scenario, or null when none is.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.RLock()
	current := h.currentScenario
	h.scenarioMu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

func (h *Handler) setCurrentScenario(id string) {
	h.scenarioMu.Lock()
	h.currentScenario = id
	h.scenarioMu.Unlock()
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	var loader func(context.Context) error
	switch req.ScenarioID {
	case "mid-month-lease":
		loader = h.loadMidMonthLeaseScenario
	case "short-stay":
		loader = h.loadShortStayScenario
	case "month-end-due":
		loader = h.loadMonthEndDueScenario
	case "lease-extension":
		loader = h.loadLeaseExtensionScenario
	case "early-termination":
		loader = h.loadEarlyTerminationScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.setCurrentScenario("")

	if err := loader(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.setCurrentScenario(req.ScenarioID)
	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadMidMonthLeaseScenario(ctx context.Context) error {
	lease := billing.LeaseConfiguration{
		StartDate:   billing.NewDate(2024, time.January, 15),
		EndDate:     billing.NewDate(2024, time.June, 14),
		DueDay:      1,
		MonthlyRent: decimal.NewFromInt(3000),
		RecurringCharges: []billing.Charge{
			{Name: "Parking", Amount: decimal.NewFromInt(150)},
		},
		DepositAmount: decimal.NewFromInt(3000),
		LeaseNote:     "Keys collected at reception.",
	}
	return h.seedTenancy(ctx, "flat-12a", "Flat 12A", lease)
}

func (h *Handler) loadShortStayScenario(ctx context.Context) error {
	lease := billing.LeaseConfiguration{
		StartDate:   billing.NewDate(2024, time.April, 10),
		EndDate:     billing.NewDate(2024, time.April, 20),
		DueDay:      10,
		MonthlyRent: decimal.NewFromInt(3000),
	}
	return h.seedTenancy(ctx, "studio-3", "Studio 3", lease)
}

func (h *Handler) loadMonthEndDueScenario(ctx context.Context) error {
	lease := billing.LeaseConfiguration{
		StartDate:     billing.NewDate(2024, time.January, 31),
		EndDate:       billing.NewDate(2024, time.December, 31),
		DueDay:        31,
		MonthlyRent:   decimal.NewFromInt(2200),
		DepositAmount: decimal.NewFromInt(2200),
	}
	return h.seedTenancy(ctx, "house-7", "House 7", lease)
}

func (h *Handler) loadLeaseExtensionScenario(ctx context.Context) error {
	lease := billing.LeaseConfiguration{
		StartDate:   billing.NewDate(2024, time.January, 1),
		EndDate:     billing.NewDate(2024, time.March, 31),
		DueDay:      1,
		MonthlyRent: decimal.NewFromInt(1800),
		RecurringCharges: []billing.Charge{
			{Name: "Service charge", Amount: decimal.NewFromInt(75)},
		},
		DepositAmount: decimal.NewFromInt(1800),
	}
	if err := h.seedTenancy(ctx, "flat-4b", "Flat 4B", lease); err != nil {
		return err
	}
	if err := h.payMonths(ctx, "flat-4b", 2); err != nil {
		return err
	}

	lease.EndDate = billing.NewDate(2024, time.June, 30)
	return h.seedTenancy(ctx, "flat-4b", "Flat 4B", lease)
}

func (h *Handler) loadEarlyTerminationScenario(ctx context.Context) error {
	lease := billing.LeaseConfiguration{
		StartDate:   billing.NewDate(2024, time.January, 1),
		EndDate:     billing.NewDate(2024, time.December, 31),
		DueDay:      5,
		MonthlyRent: decimal.NewFromInt(2500),
	}
	if err := h.seedTenancy(ctx, "unit-9", "Unit 9", lease); err != nil {
		return err
	}
	if err := h.payMonths(ctx, "unit-9", 3); err != nil {
		return err
	}

	lease.EndDate = billing.NewDate(2024, time.April, 20)
	return h.seedTenancy(ctx, "unit-9", "Unit 9", lease)
}

func (h *Handler) seedTenancy(ctx context.Context, id billing.TenancyID, name string, lease billing.LeaseConfiguration) error {
	_, _, err := h.saveAndRegenerate(ctx, billing.Tenancy{ID: id, Name: name, Lease: lease})
	if err != nil {
		return fmt.Errorf("seed tenancy %s: %w", id, err)
	}
	return nil
}

// payMonths pays the first n periods in full.
func (h *Handler) payMonths(ctx context.Context, id billing.TenancyID, n int) error {
	periods, err := h.Store.Periods(ctx, id)
	if err != nil {
		return err
	}
	for i := 0; i < n && i < len(periods); i++ {
		if _, err := h.Store.RecordPayment(ctx, id, periods[i].ID, periods[i].AmountDue()); err != nil {
			return fmt.Errorf("pay %s %s: %w", id, periods[i].MonthKey, err)
		}
	}
	return nil
}
