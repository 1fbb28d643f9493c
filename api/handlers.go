/*
handlers.go - HTTP API handlers for the tenancy billing engine

PURPOSE:
  Exposes schedule generation, reconciliation and status classification via
  REST. Handles HTTP request/response and JSON, and delegates to the billing
  package for everything else.

ENDPOINTS:
  Schedules:
    POST   /api/schedules/preview                Generate without persisting

  Tenancies:
    GET    /api/tenancies                        List tenancies
    GET    /api/tenancies/{id}                   Get tenancy and lease
    PUT    /api/tenancies/{id}/lease             Save lease, regenerate periods
    GET    /api/tenancies/{id}/periods           Persisted billing periods
    GET    /api/tenancies/{id}/status?today=     Payment status
    POST   /api/tenancies/{id}/periods/{periodID}/payments  Record payment

  Scenarios:
    GET    /api/scenarios                        List demo scenarios
    GET    /api/scenarios/current                Currently loaded scenario
    POST   /api/scenarios/load                   Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid lease, invalid payment, malformed input
  - 404: Tenancy or period not found
  - 409: Plan rejected as stale after all retries
  - 500: Apply failures and internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tenancy-billing/billing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the storage the handlers need. Both store implementations
// satisfy it.
type Backend interface {
	billing.Store
	billing.PaymentRecorder
	billing.TenancyStore
	billing.LeaseApplier
	Reset(ctx context.Context) error
}

// PaymentObserver counts recorded payments. Implemented by metrics.Collector.
type PaymentObserver interface {
	ObservePayment(err error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Backend
	Ledger   *billing.Ledger
	Logger   *zap.Logger
	Payments PaymentObserver

	// Today is the default "as of" date for status requests.
	Today func() billing.Date

	scenarioMu      sync.RWMutex
	currentScenario string
}

// NewHandler creates a handler over store. The ledger is built on the same
// store unless one is set afterwards.
func NewHandler(store Backend, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:  store,
		Ledger: billing.NewLedger(store, logger),
		Logger: logger.Named("api"),
		Today:  billing.Today,
	}
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// PreviewSchedule generates the periods for a lease without saving anything.
func (h *Handler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	var req LeaseDTO
	if !decodeRequest(w, r, &req) {
		return
	}

	lease, err := req.ToLease()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lease configuration", err)
		return
	}

	periods, err := h.Ledger.Preview(lease)
	if err != nil {
		h.writeBillingError(w, "Failed to generate schedule", err)
		return
	}

	total := decimal.Zero
	for _, p := range periods {
		total = total.Add(p.AmountDue())
	}

	writeJSON(w, http.StatusOK, PreviewResponse{
		Periods:   toPeriodDTOs(periods),
		TotalDue:  total,
		MonthSpan: len(periods),
	})
}

// =============================================================================
// TENANCY HANDLERS
// =============================================================================

// ListTenancies returns all tenancies.
func (h *Handler) ListTenancies(w http.ResponseWriter, r *http.Request) {
	tenancies, err := h.Store.ListTenancies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tenancies", err)
		return
	}

	dtos := make([]TenancyDTO, len(tenancies))
	for i, t := range tenancies {
		dtos[i] = toTenancyDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTenancy returns one tenancy.
func (h *Handler) GetTenancy(w http.ResponseWriter, r *http.Request) {
	id := billing.TenancyID(chi.URLParam(r, "id"))

	t, err := h.Store.Tenancy(r.Context(), id)
	if err != nil {
		h.writeBillingError(w, "Failed to get tenancy", err)
		return
	}
	writeJSON(w, http.StatusOK, toTenancyDTO(t))
}

// SaveLease stores the tenancy's lease and brings its periods in line with
// it. This is the create and the edit path.
func (h *Handler) SaveLease(w http.ResponseWriter, r *http.Request) {
	id := billing.TenancyID(chi.URLParam(r, "id"))

	var req SaveTenancyRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	lease, err := req.Lease.ToLease()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lease configuration", err)
		return
	}

	tenancy, plan, err := h.saveAndRegenerate(r.Context(), billing.Tenancy{ID: id, Name: req.Name, Lease: lease})
	if err != nil {
		h.writeBillingError(w, "Failed to regenerate billing schedule", err)
		return
	}

	periods, err := h.Store.Periods(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load billing periods", err)
		return
	}

	writeJSON(w, http.StatusOK, RegenerateResponse{
		Tenancy: toTenancyDTO(tenancy),
		Plan:    toPlanDTO(plan),
		Periods: toPeriodDTOs(periods),
	})
}

// saveAndRegenerate stores the tenancy and regenerates its periods in one
// atomic apply. Shared by SaveLease and scenario loading.
func (h *Handler) saveAndRegenerate(ctx context.Context, t billing.Tenancy) (billing.Tenancy, billing.Plan, error) {
	if t.Name == "" {
		if existing, err := h.Store.Tenancy(ctx, t.ID); err == nil {
			t.Name = existing.Name
		}
	}
	plan, err := h.Ledger.SaveLease(ctx, t)
	if err != nil {
		return t, billing.Plan{}, err
	}
	saved, err := h.Store.Tenancy(ctx, t.ID)
	if err != nil {
		return t, plan, nil
	}
	return saved, plan, nil
}

// GetPeriods returns the persisted billing periods of a tenancy.
func (h *Handler) GetPeriods(w http.ResponseWriter, r *http.Request) {
	id := billing.TenancyID(chi.URLParam(r, "id"))
	ctx := r.Context()

	if _, err := h.Store.Tenancy(ctx, id); err != nil {
		h.writeBillingError(w, "Failed to get tenancy", err)
		return
	}

	periods, err := h.Store.Periods(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load billing periods", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTOs(periods))
}

// GetStatus classifies the tenancy as of ?today=YYYY-MM-DD (default: today).
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := billing.TenancyID(chi.URLParam(r, "id"))
	ctx := r.Context()

	today := h.Today()
	if q := r.URL.Query().Get("today"); q != "" {
		parsed, err := billing.ParseDate(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid today date (use YYYY-MM-DD)", err)
			return
		}
		today = parsed
	}

	t, err := h.Store.Tenancy(ctx, id)
	if err != nil {
		h.writeBillingError(w, "Failed to get tenancy", err)
		return
	}

	c, err := h.Ledger.Status(ctx, id, t.Lease.EndDate, today)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to classify tenancy", err)
		return
	}

	writeJSON(w, http.StatusOK, toStatusDTO(id, c, today))
}

func toStatusDTO(id billing.TenancyID, c billing.Classification, today billing.Date) StatusDTO {
	dto := StatusDTO{
		TenancyID: string(id),
		Status:    string(c.Status),
		Unpaid:    c.Outstanding,
		AsOf:      today.String(),
	}
	if c.NextDueDate != nil {
		dto.NextDueDate = c.NextDueDate.String()
	}
	if c.NextPeriod != nil {
		dto.NextPeriodID = string(c.NextPeriod.ID)
	}
	return dto
}

// RecordPayment adds a payment to one billing period.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id := billing.TenancyID(chi.URLParam(r, "id"))
	periodID := billing.PeriodID(chi.URLParam(r, "periodID"))

	var req PaymentRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	period, err := h.Store.RecordPayment(r.Context(), id, periodID, req.Amount)
	if h.Payments != nil {
		h.Payments.ObservePayment(err)
	}
	if err != nil {
		h.writeBillingError(w, "Failed to record payment", err)
		return
	}

	h.Logger.Info("payment recorded",
		zap.String("tenancy_id", string(id)),
		zap.String("period_id", string(periodID)),
		zap.String("amount", req.Amount.String()),
		zap.String("amount_paid", period.AmountPaid.String()),
	)
	writeJSON(w, http.StatusOK, toPeriodDTO(period))
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps billing errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case billing.IsClientError(err):
		return http.StatusBadRequest
	case billing.IsNotFound(err):
		return http.StatusNotFound
	case billing.IsApplyFailure(err) && billing.IsRetryable(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeBillingError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
	}

	var leaseErr *billing.LeaseError
	if errors.As(err, &leaseErr) {
		writeJSON(w, status, ErrorResponse{Error: message, Details: strings.Join(leaseErr.Problems, "; ")})
		return
	}
	writeError(w, status, message, err)
}

// decodeRequest reads a JSON body into dst and checks its validate tags.
// It writes the 400 response itself and reports whether the caller should go on.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Details: validationDetails(err)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
