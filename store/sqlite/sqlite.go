/*
Package sqlite provides a SQLite-backed implementation of the billing stores.

INTERFACES IMPLEMENTED:
  billing.Store:           period reads + atomic plan application
  billing.PaymentRecorder: payment recording (sole writer of amount_paid)
  billing.TenancyStore:    lease configurations
  billing.LeaseApplier:    tenancy upsert + plan in one transaction

KEY TABLES:
  tenancies:        one row per tenancy, lease stored as JSON
  billing_periods:  one row per (tenancy, year, month), UNIQUE enforced

ATOMIC APPLY:
  ApplyBatch runs inside a single SQL transaction:
    1. read the tenancy's current periods (inside the tx)
    2. billing.CheckPlan -> stale plans rejected whole
    3. DELETE, UPDATE (guarded on amount_paid), INSERT
    4. COMMIT, or ROLLBACK on any error
  A partially applied plan is never visible. ApplyLease runs the same steps
  with the tenancy upsert at the front of the transaction.

MONEY:
  Decimals are stored as TEXT via decimal.String() so they round-trip
  exactly.

WAL MODE:
  Opened with WAL journaling; one writer at a time, readers don't block.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := billing.NewLedger(store, logger)
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/tenancy-billing/billing"
)

// Store implements the billing storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewFromDB wraps an already opened handle. The schema is assumed to exist.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for metrics collectors.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenancies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		lease_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS billing_periods (
		id TEXT PRIMARY KEY,
		tenancy_id TEXT NOT NULL REFERENCES tenancies(id) ON DELETE CASCADE,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		rent_amount TEXT NOT NULL,
		charges_json TEXT NOT NULL DEFAULT '[]',
		deposit_amount TEXT NOT NULL DEFAULT '0',
		amount_paid TEXT NOT NULL DEFAULT '0',
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: one billing period per tenancy per calendar month
	CREATE UNIQUE INDEX IF NOT EXISTS idx_billing_periods_month
		ON billing_periods(tenancy_id, year, month);

	CREATE INDEX IF NOT EXISTS idx_billing_periods_due
		ON billing_periods(tenancy_id, due_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// =============================================================================
// BILLING PERIODS (billing.Store)
// =============================================================================

const periodColumns = `id, year, month, due_date, rent_amount, charges_json, deposit_amount, amount_paid, note`

// Periods returns every period of a tenancy ordered by month.
func (s *Store) Periods(ctx context.Context, tenancyID billing.TenancyID) ([]billing.BillingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadPeriods(ctx, s.db, tenancyID)
}

func loadPeriods(ctx context.Context, db execer, tenancyID billing.TenancyID) ([]billing.BillingPeriod, error) {
	query := `SELECT ` + periodColumns + `
		FROM billing_periods
		WHERE tenancy_id = ?
		ORDER BY year ASC, month ASC`

	rows, err := db.QueryContext(ctx, query, tenancyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query billing periods: %w", err)
	}
	defer rows.Close()

	var periods []billing.BillingPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// ApplyBatch applies a reconciliation plan in one SQL transaction.
func (s *Store) ApplyBatch(ctx context.Context, tenancyID billing.TenancyID, plan billing.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := applyPlan(ctx, sqlTx, tenancyID, plan); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// ApplyLease upserts the tenancy row and applies plan in the same
// transaction. The row goes first so new periods satisfy the foreign key.
func (s *Store) ApplyLease(ctx context.Context, t billing.Tenancy, plan billing.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := upsertTenancy(ctx, sqlTx, t); err != nil {
		return err
	}
	if err := applyPlan(ctx, sqlTx, t.ID, plan); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func applyPlan(ctx context.Context, sqlTx *sql.Tx, tenancyID billing.TenancyID, plan billing.Plan) error {
	current, err := loadPeriods(ctx, sqlTx, tenancyID)
	if err != nil {
		return err
	}
	if err := billing.CheckPlan(tenancyID, current, plan); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	for _, d := range plan.Deletes {
		if _, err := sqlTx.ExecContext(ctx,
			`DELETE FROM billing_periods WHERE id = ? AND tenancy_id = ?`, d.ID, tenancyID); err != nil {
			return fmt.Errorf("failed to delete period %s: %w", d.ID, err)
		}
	}

	for _, u := range plan.Updates {
		if u.NoOp() {
			continue
		}
		if err := updatePeriod(ctx, sqlTx, tenancyID, u, now); err != nil {
			return err
		}
	}

	for _, c := range plan.Creates {
		if err := insertPeriod(ctx, sqlTx, tenancyID, c, now); err != nil {
			return err
		}
	}
	return nil
}

func insertPeriod(ctx context.Context, db execer, tenancyID billing.TenancyID, p billing.BillingPeriod, now string) error {
	chargesJSON, err := marshalCharges(p.Charges)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO billing_periods
		(id, tenancy_id, year, month, due_date, rent_amount, charges_json,
		 deposit_amount, amount_paid, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		p.ID,
		tenancyID,
		p.MonthKey.Year,
		int(p.MonthKey.Month),
		p.DueDate.String(),
		p.RentAmount.String(),
		chargesJSON,
		p.DepositAmount.String(),
		p.AmountPaid.String(),
		p.Note,
		now,
		now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &billing.ConflictError{
				TenancyID: tenancyID, PeriodID: p.ID, MonthKey: p.MonthKey,
				Reason: "month already has a billing period",
			}
		}
		return fmt.Errorf("failed to insert period %s: %w", p.ID, err)
	}
	return nil
}

// updatePeriod rewrites the generated fields. The amount_paid guard turns a
// payment recorded after the plan was read into a conflict.
func updatePeriod(ctx context.Context, db execer, tenancyID billing.TenancyID, u billing.Update, now string) error {
	chargesJSON, err := marshalCharges(u.After.Charges)
	if err != nil {
		return err
	}

	query := `
		UPDATE billing_periods
		SET due_date = ?, rent_amount = ?, charges_json = ?, deposit_amount = ?,
		    note = ?, updated_at = ?
		WHERE id = ? AND tenancy_id = ? AND amount_paid = ?
	`
	res, err := db.ExecContext(ctx, query,
		u.After.DueDate.String(),
		u.After.RentAmount.String(),
		chargesJSON,
		u.After.DepositAmount.String(),
		u.After.Note,
		now,
		u.Before.ID,
		tenancyID,
		u.Before.AmountPaid.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update period %s: %w", u.Before.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update period %s: %w", u.Before.ID, err)
	}
	if n != 1 {
		return &billing.ConflictError{
			TenancyID: tenancyID, PeriodID: u.Before.ID, MonthKey: u.Before.MonthKey,
			Reason: "period changed since plan was computed",
		}
	}
	return nil
}

// RecordPayment adds amount to a period's amount_paid.
func (s *Store) RecordPayment(ctx context.Context, tenancyID billing.TenancyID, periodID billing.PeriodID, amount decimal.Decimal) (billing.BillingPeriod, error) {
	if !amount.IsPositive() {
		return billing.BillingPeriod{}, billing.ErrInvalidPayment
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return billing.BillingPeriod{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	row := sqlTx.QueryRowContext(ctx, `SELECT `+periodColumns+`
		FROM billing_periods WHERE id = ? AND tenancy_id = ?`, periodID, tenancyID)
	p, err := scanPeriod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.BillingPeriod{}, billing.ErrPeriodNotFound
	}
	if err != nil {
		return billing.BillingPeriod{}, err
	}

	p.AmountPaid = p.AmountPaid.Add(amount)
	if _, err := sqlTx.ExecContext(ctx,
		`UPDATE billing_periods SET amount_paid = ?, updated_at = ? WHERE id = ?`,
		p.AmountPaid.String(), time.Now().UTC().Format(time.RFC3339), p.ID); err != nil {
		return billing.BillingPeriod{}, fmt.Errorf("failed to record payment: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return billing.BillingPeriod{}, fmt.Errorf("failed to record payment: %w", err)
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPeriod(row scanner) (billing.BillingPeriod, error) {
	var (
		p                                         billing.BillingPeriod
		id, dueDate, rent, charges, deposit, paid string
		year, month                               int
	)
	if err := row.Scan(&id, &year, &month, &dueDate, &rent, &charges, &deposit, &paid, &p.Note); err != nil {
		return billing.BillingPeriod{}, err
	}

	due, err := billing.ParseDate(dueDate)
	if err != nil {
		return billing.BillingPeriod{}, fmt.Errorf("period %s: %w", id, err)
	}

	p.ID = billing.PeriodID(id)
	p.MonthKey = billing.MonthKey{Year: year, Month: time.Month(month)}
	p.DueDate = due
	p.RentAmount = parseDecimal(rent)
	p.DepositAmount = parseDecimal(deposit)
	p.AmountPaid = parseDecimal(paid)
	if err := json.Unmarshal([]byte(charges), &p.Charges); err != nil {
		return billing.BillingPeriod{}, fmt.Errorf("period %s: invalid charges: %w", id, err)
	}
	if len(p.Charges) == 0 {
		p.Charges = nil
	}
	return p, nil
}

// =============================================================================
// TENANCIES (billing.TenancyStore)
// =============================================================================

func (s *Store) SaveTenancy(ctx context.Context, t billing.Tenancy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertTenancy(ctx, s.db, t)
}

func upsertTenancy(ctx context.Context, db execer, t billing.Tenancy) error {
	leaseJSON, err := json.Marshal(t.Lease)
	if err != nil {
		return fmt.Errorf("failed to encode lease: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO tenancies (id, name, lease_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			lease_json = excluded.lease_json,
			updated_at = excluded.updated_at
	`
	_, err = db.ExecContext(ctx, query, t.ID, t.Name, string(leaseJSON), now, now)
	if err != nil {
		return fmt.Errorf("failed to save tenancy: %w", err)
	}
	return nil
}

func (s *Store) Tenancy(ctx context.Context, id billing.TenancyID) (billing.Tenancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, lease_json, updated_at FROM tenancies WHERE id = ?`, id)
	t, err := scanTenancy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Tenancy{}, billing.ErrTenancyNotFound
	}
	return t, err
}

func (s *Store) ListTenancies(ctx context.Context) ([]billing.Tenancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, lease_json, updated_at FROM tenancies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenancies: %w", err)
	}
	defer rows.Close()

	var tenancies []billing.Tenancy
	for rows.Next() {
		t, err := scanTenancy(rows)
		if err != nil {
			return nil, err
		}
		tenancies = append(tenancies, t)
	}
	return tenancies, rows.Err()
}

func scanTenancy(row scanner) (billing.Tenancy, error) {
	var (
		t                  billing.Tenancy
		id, lease, updated string
	)
	if err := row.Scan(&id, &t.Name, &lease, &updated); err != nil {
		return billing.Tenancy{}, err
	}
	t.ID = billing.TenancyID(id)
	if err := json.Unmarshal([]byte(lease), &t.Lease); err != nil {
		return billing.Tenancy{}, fmt.Errorf("tenancy %s: invalid lease: %w", id, err)
	}
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return t, nil
}

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM billing_periods;
		DELETE FROM tenancies;
	`)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func marshalCharges(charges []billing.Charge) (string, error) {
	if len(charges) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(charges)
	if err != nil {
		return "", fmt.Errorf("failed to encode charges: %w", err)
	}
	return string(b), nil
}

func parseDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
