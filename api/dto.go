/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are decimal.Decimal and travel as JSON strings ("1100.5").
  Numbers are accepted on input.

DATES:
  YYYY-MM-DD strings; months are YYYY-MM.
*/
package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/tenancy-billing/billing"
)

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

// validate checks request shape (required fields, date formats). Lease
// semantics such as the due day range are checked by the billing package.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationDetails flattens validator errors into "field: rule" pairs.
func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), rule))
	}
	return strings.Join(parts, "; ")
}

// =============================================================================
// LEASE
// =============================================================================

// ChargeDTO is a recurring charge.
type ChargeDTO struct {
	Name   string          `json:"name" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// LeaseDTO is a lease configuration on the wire.
type LeaseDTO struct {
	StartDate        string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate          string          `json:"end_date" validate:"required,datetime=2006-01-02"`
	DueDay           int             `json:"due_day"`
	MonthlyRent      decimal.Decimal `json:"monthly_rent"`
	RecurringCharges []ChargeDTO     `json:"recurring_charges,omitempty" validate:"dive"`
	DepositAmount    decimal.Decimal `json:"deposit_amount"`
	LeaseNote        string          `json:"lease_note,omitempty"`
}

// ToLease parses dates and converts to the engine type. Unparseable dates
// are reported as an invalid lease configuration.
func (d LeaseDTO) ToLease() (billing.LeaseConfiguration, error) {
	var problems []string
	start, err := billing.ParseDate(d.StartDate)
	if err != nil {
		problems = append(problems, fmt.Sprintf("start_date: %v", err))
	}
	end, err := billing.ParseDate(d.EndDate)
	if err != nil {
		problems = append(problems, fmt.Sprintf("end_date: %v", err))
	}
	if len(problems) > 0 {
		return billing.LeaseConfiguration{}, &billing.LeaseError{Problems: problems}
	}

	lease := billing.LeaseConfiguration{
		StartDate:     start,
		EndDate:       end,
		DueDay:        d.DueDay,
		MonthlyRent:   d.MonthlyRent,
		DepositAmount: d.DepositAmount,
		LeaseNote:     d.LeaseNote,
	}
	for _, c := range d.RecurringCharges {
		lease.RecurringCharges = append(lease.RecurringCharges, billing.Charge{Name: c.Name, Amount: c.Amount})
	}
	return lease, lease.Validate()
}

func toLeaseDTO(l billing.LeaseConfiguration) LeaseDTO {
	dto := LeaseDTO{
		StartDate:     l.StartDate.String(),
		EndDate:       l.EndDate.String(),
		DueDay:        l.DueDay,
		MonthlyRent:   l.MonthlyRent,
		DepositAmount: l.DepositAmount,
		LeaseNote:     l.LeaseNote,
	}
	for _, c := range l.RecurringCharges {
		dto.RecurringCharges = append(dto.RecurringCharges, ChargeDTO{Name: c.Name, Amount: c.Amount})
	}
	return dto
}

// =============================================================================
// TENANCY
// =============================================================================

// SaveTenancyRequest creates or edits a tenancy's lease.
type SaveTenancyRequest struct {
	Name  string   `json:"name" validate:"max=200"`
	Lease LeaseDTO `json:"lease"`
}

// TenancyDTO represents a tenancy in API responses.
type TenancyDTO struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Lease     LeaseDTO `json:"lease"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

func toTenancyDTO(t billing.Tenancy) TenancyDTO {
	dto := TenancyDTO{ID: string(t.ID), Name: t.Name, Lease: toLeaseDTO(t.Lease)}
	if !t.UpdatedAt.IsZero() {
		dto.UpdatedAt = t.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return dto
}

// =============================================================================
// BILLING PERIODS
// =============================================================================

// PeriodDTO is a billing period with derived totals.
type PeriodDTO struct {
	ID            string          `json:"id,omitempty"`
	Month         string          `json:"month"`
	DueDate       string          `json:"due_date"`
	RentAmount    decimal.Decimal `json:"rent_amount"`
	Charges       []ChargeDTO     `json:"charges"`
	ChargesTotal  decimal.Decimal `json:"charges_total"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
	AmountDue     decimal.Decimal `json:"amount_due"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	Paid          bool            `json:"paid"`
	Note          string          `json:"note,omitempty"`
}

func toPeriodDTO(p billing.BillingPeriod) PeriodDTO {
	charges := make([]ChargeDTO, 0, len(p.Charges))
	for _, c := range p.Charges {
		charges = append(charges, ChargeDTO{Name: c.Name, Amount: c.Amount})
	}
	return PeriodDTO{
		ID:            string(p.ID),
		Month:         p.MonthKey.String(),
		DueDate:       p.DueDate.String(),
		RentAmount:    p.RentAmount,
		Charges:       charges,
		ChargesTotal:  p.ChargesTotal(),
		DepositAmount: p.DepositAmount,
		AmountDue:     p.AmountDue(),
		AmountPaid:    p.AmountPaid,
		Outstanding:   p.Outstanding(),
		Paid:          p.IsPaid(),
		Note:          p.Note,
	}
}

func toPeriodDTOs(periods []billing.BillingPeriod) []PeriodDTO {
	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	return dtos
}

// PlanDTO summarizes an applied reconciliation.
type PlanDTO struct {
	Creates     int      `json:"creates"`
	Updates     int      `json:"updates"`
	NoOpUpdates int      `json:"noop_updates"`
	Deletes     int      `json:"deletes"`
	DeletedIDs  []string `json:"deleted_ids,omitempty"`
}

func toPlanDTO(p billing.Plan) PlanDTO {
	s := p.Summary()
	dto := PlanDTO{Creates: s.Creates, Updates: s.Updates, NoOpUpdates: s.NoOps, Deletes: s.Deletes}
	for _, d := range p.Deletes {
		dto.DeletedIDs = append(dto.DeletedIDs, string(d.ID))
	}
	return dto
}

// RegenerateResponse is returned after a lease edit.
type RegenerateResponse struct {
	Tenancy TenancyDTO  `json:"tenancy"`
	Plan    PlanDTO     `json:"plan"`
	Periods []PeriodDTO `json:"periods"`
}

// PreviewResponse is a generated schedule that was not persisted.
type PreviewResponse struct {
	Periods   []PeriodDTO     `json:"periods"`
	TotalDue  decimal.Decimal `json:"total_due"`
	MonthSpan int             `json:"month_span"`
}

// =============================================================================
// STATUS & PAYMENTS
// =============================================================================

// StatusDTO is a tenancy's payment status.
type StatusDTO struct {
	TenancyID    string `json:"tenancy_id"`
	Status       string `json:"status"`
	NextDueDate  string `json:"next_due_date,omitempty"`
	NextPeriodID string `json:"next_period_id,omitempty"`
	Unpaid       int    `json:"unpaid_periods"`
	AsOf         string `json:"as_of"`
}

// PaymentRequest records a payment against one period.
type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
