/*
scheduler.go - Periodic overdue sweep

PURPOSE:
  Classifies every tenancy on an interval, logs the ones that are overdue
  and publishes the status counts as a gauge.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Sweeps once immediately on start
  - Read-only: never writes to the store

USAGE:
  scheduler := NewOverdueScheduler(store, ledger, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/tenancy-billing/billing"
)

// StatusGauge receives per-status tenancy counts after each sweep.
type StatusGauge interface {
	SetStatusCounts(counts map[billing.Status]int)
}

// SweepResult is the outcome of one sweep.
type SweepResult struct {
	AsOf    billing.Date
	Counts  map[billing.Status]int
	Overdue []billing.TenancyID
	Errors  int
}

// OverdueScheduler periodically classifies all tenancies.
type OverdueScheduler struct {
	Store         billing.TenancyStore
	Ledger        *billing.Ledger
	Logger        *zap.Logger
	Gauge         StatusGauge
	CheckInterval time.Duration
	Enabled       bool
	Today         func() billing.Date

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewOverdueScheduler creates a new scheduler.
func NewOverdueScheduler(store billing.TenancyStore, ledger *billing.Ledger, logger *zap.Logger) *OverdueScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueScheduler{
		Store:         store,
		Ledger:        ledger,
		Logger:        logger.Named("scheduler"),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Today:         billing.Today,
	}
}

// Start begins the scheduler.
func (s *OverdueScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.Logger.Info("started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *OverdueScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("stopped")
	}
}

func (s *OverdueScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-stop:
			return
		}
	}
}

// Sweep classifies every tenancy once. Tenancies that fail to load are
// counted in Errors and skipped.
func (s *OverdueScheduler) Sweep(ctx context.Context) SweepResult {
	today := s.Today()
	result := SweepResult{AsOf: today, Counts: make(map[billing.Status]int)}

	tenancies, err := s.Store.ListTenancies(ctx)
	if err != nil {
		s.Logger.Error("list tenancies failed", zap.Error(err))
		result.Errors++
		return result
	}

	for _, t := range tenancies {
		if ctx.Err() != nil {
			break
		}
		c, err := s.Ledger.Status(ctx, t.ID, t.Lease.EndDate, today)
		if err != nil {
			s.Logger.Warn("classify tenancy failed", zap.String("tenancy_id", string(t.ID)), zap.Error(err))
			result.Errors++
			continue
		}
		result.Counts[c.Status]++
		if c.Status == billing.StatusOverdue {
			result.Overdue = append(result.Overdue, t.ID)
			s.Logger.Warn("tenancy overdue",
				zap.String("tenancy_id", string(t.ID)),
				zap.Stringer("next_due_date", c.NextDueDate),
				zap.Int("unpaid_periods", c.Outstanding),
			)
		}
	}

	if s.Gauge != nil {
		s.Gauge.SetStatusCounts(result.Counts)
	}
	s.Logger.Info("sweep completed",
		zap.Stringer("as_of", today),
		zap.Int("tenancies", len(tenancies)),
		zap.Int("overdue", len(result.Overdue)),
		zap.Int("errors", result.Errors),
	)
	return result
}
