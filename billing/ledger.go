/*
ledger.go - Regeneration of a tenancy's billing ledger

PURPOSE:
  Ledger composes the pure engine with the store boundary:

    existing := Store.Periods(tenancy)
    generated := Generate(lease)
    plan := Reconcile(generated, existing)
    Store.ApplyBatch(tenancy, plan)

ERRORS:
  Invalid leases fail before the store is touched. Store failures while
  applying come back as *ApplyError (errors.Is(err, ErrApplyFailed)).

LEASE EDITS:
  SaveLease does the same, but hands the tenancy row and the plan to the
  store together (LeaseApplier.ApplyLease). A lease edit that fails to apply
  leaves the previous lease and its periods in place.

RETRIES:
  When the store rejects a plan as stale (ErrConcurrentModification) the
  whole cycle is rerun from a fresh read, up to MaxAttempts times. Nothing
  else is retried.
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Metrics receives regeneration outcomes. Implemented by the metrics package.
type Metrics interface {
	ObserveRegeneration(result string, summary PlanSummary, elapsed time.Duration)
}

const (
	ResultApplied      = "applied"
	ResultInvalid      = "invalid"
	ResultApplyFailure = "apply_failed"
	ResultLoadFailure  = "load_failed"
)

type Ledger struct {
	Store       Store
	Reconciler  *Reconciler
	Logger      *zap.Logger
	Metrics     Metrics
	MaxAttempts int
}

func NewLedger(store Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		Store:       store,
		Reconciler:  NewReconciler(),
		Logger:      logger.Named("ledger"),
		MaxAttempts: 3,
	}
}

// Preview generates the schedule for a lease without touching the store.
func (l *Ledger) Preview(config LeaseConfiguration) ([]BillingPeriod, error) {
	return Generate(config)
}

// Regenerate brings the tenancy's persisted periods in line with config and
// returns the plan that was applied.
func (l *Ledger) Regenerate(ctx context.Context, tenancyID TenancyID, config LeaseConfiguration) (Plan, error) {
	return l.regenerate(ctx, tenancyID, config, func(plan Plan) error {
		return l.Store.ApplyBatch(ctx, tenancyID, plan)
	})
}

// SaveLease stores t and regenerates its periods from t.Lease in one atomic
// apply. The store must implement LeaseApplier.
func (l *Ledger) SaveLease(ctx context.Context, t Tenancy) (Plan, error) {
	applier, ok := l.Store.(LeaseApplier)
	if !ok {
		return Plan{}, fmt.Errorf("store %T cannot save leases atomically", l.Store)
	}
	return l.regenerate(ctx, t.ID, t.Lease, func(plan Plan) error {
		return applier.ApplyLease(ctx, t, plan)
	})
}

func (l *Ledger) regenerate(ctx context.Context, tenancyID TenancyID, config LeaseConfiguration, apply func(Plan) error) (Plan, error) {
	started := time.Now()
	log := l.Logger.With(zap.String("tenancy_id", string(tenancyID)))

	generated, err := Generate(config)
	if err != nil {
		l.observe(ResultInvalid, PlanSummary{}, started)
		return Plan{}, err
	}

	attempts := l.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	used := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		used = attempt
		existing, err := l.Store.Periods(ctx, tenancyID)
		if err != nil {
			l.observe(ResultLoadFailure, PlanSummary{}, started)
			return Plan{}, fmt.Errorf("load periods for tenancy %s: %w", tenancyID, err)
		}

		plan := l.reconciler().Reconcile(generated, existing)
		summary := plan.Summary()

		err = apply(plan)
		if err == nil {
			l.warnDeletedPayments(log, plan)
			log.Info("billing schedule regenerated",
				zap.Int("creates", summary.Creates),
				zap.Int("updates", summary.Updates),
				zap.Int("noop_updates", summary.NoOps),
				zap.Int("deletes", summary.Deletes),
				zap.Int("attempt", attempt),
			)
			l.observe(ResultApplied, summary, started)
			return plan, nil
		}

		lastErr = err
		if !IsRetryable(err) || ctx.Err() != nil {
			break
		}
		log.Warn("reconciliation plan rejected as stale, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	applyErr := &ApplyError{TenancyID: tenancyID, Attempts: used, Err: lastErr}
	log.Error("billing schedule apply failed", zap.Error(applyErr))
	l.observe(ResultApplyFailure, PlanSummary{}, started)
	return Plan{}, applyErr
}

// Status classifies the tenancy from its persisted periods.
func (l *Ledger) Status(ctx context.Context, tenancyID TenancyID, leaseEnd, today Date) (Classification, error) {
	periods, err := l.Store.Periods(ctx, tenancyID)
	if err != nil {
		return Classification{}, fmt.Errorf("load periods for tenancy %s: %w", tenancyID, err)
	}
	return Classify(periods, leaseEnd, today), nil
}

func (l *Ledger) reconciler() *Reconciler {
	if l.Reconciler == nil {
		return defaultReconciler
	}
	return l.Reconciler
}

func (l *Ledger) observe(result string, summary PlanSummary, started time.Time) {
	if l.Metrics != nil {
		l.Metrics.ObserveRegeneration(result, summary, time.Since(started))
	}
}

// warnDeletedPayments logs periods removed while holding payments. Their
// AmountPaid leaves the ledger with them.
func (l *Ledger) warnDeletedPayments(log *zap.Logger, plan Plan) {
	for _, d := range plan.Deletes {
		if d.AmountPaid.IsPositive() {
			log.Warn("deleted billing period carried payments",
				zap.String("period_id", string(d.ID)),
				zap.Stringer("month", d.MonthKey),
				zap.String("amount_paid", d.AmountPaid.String()),
			)
		}
	}
}
