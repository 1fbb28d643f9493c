package sqlite_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tenancy-billing/billing"
	"github.com/warp/tenancy-billing/store/sqlite"
)

// These tests drive the transaction error paths that a real SQLite file
// cannot be made to hit on demand.

var (
	selectPeriods = regexp.QuoteMeta("FROM billing_periods")
	deletePeriod  = regexp.QuoteMeta("DELETE FROM billing_periods")
	updatePeriod  = regexp.QuoteMeta("UPDATE billing_periods")
	insertPeriod  = regexp.QuoteMeta("INSERT INTO billing_periods")
	upsertLease   = regexp.QuoteMeta("INSERT INTO tenancies")
)

func newMockStore(t *testing.T) (*sqlite.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlite.NewFromDB(db), mock
}

func mockPeriod(id string, month time.Month, paid string) billing.BillingPeriod {
	return billing.BillingPeriod{
		ID:         billing.PeriodID(id),
		MonthKey:   billing.MonthKey{Year: 2024, Month: month},
		DueDate:    billing.NewDate(2024, month, 1),
		RentAmount: decimal.NewFromInt(1000),
		AmountPaid: decimal.RequireFromString(paid),
	}
}

func periodRows(periods ...billing.BillingPeriod) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "year", "month", "due_date", "rent_amount", "charges_json", "deposit_amount", "amount_paid", "note",
	})
	for _, p := range periods {
		rows.AddRow(string(p.ID), p.MonthKey.Year, int(p.MonthKey.Month), p.DueDate.String(),
			p.RentAmount.String(), "[]", "0", p.AmountPaid.String(), p.Note)
	}
	return rows
}

func TestStore_ApplyBatch_DeleteFailureRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	jan, feb := mockPeriod("p-jan", time.January, "0"), mockPeriod("p-feb", time.February, "0")

	mock.ExpectBegin()
	mock.ExpectQuery(selectPeriods).WillReturnRows(periodRows(jan, feb))
	mock.ExpectExec(deletePeriod).WithArgs("p-feb", "t-1").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := store.ApplyBatch(context.Background(), "t-1", billing.Plan{Deletes: []billing.BillingPeriod{feb}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete period p-feb")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ApplyBatch_GuardedUpdateMissIsConflict(t *testing.T) {
	// GIVEN: The stored row matches the plan when read
	// WHEN: The guarded UPDATE affects no rows
	// THEN: A ConflictError comes back and the transaction is rolled back

	store, mock := newMockStore(t)
	jan := mockPeriod("p-jan", time.January, "250")
	after := jan
	after.RentAmount = decimal.NewFromInt(1200)

	mock.ExpectBegin()
	mock.ExpectQuery(selectPeriods).WillReturnRows(periodRows(jan))
	mock.ExpectExec(updatePeriod).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.ApplyBatch(context.Background(), "t-1", billing.Plan{
		Updates: []billing.Update{{Before: jan, After: after}},
	})

	var conflict *billing.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, jan.ID, conflict.PeriodID)
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ApplyBatch_StalePlanNeverWrites(t *testing.T) {
	store, mock := newMockStore(t)
	jan := mockPeriod("p-jan", time.January, "0")

	// The row now carries a payment the plan did not see.
	mock.ExpectBegin()
	mock.ExpectQuery(selectPeriods).WillReturnRows(periodRows(mockPeriod("p-jan", time.January, "100")))
	mock.ExpectRollback()

	after := jan
	after.RentAmount = decimal.NewFromInt(900)
	err := store.ApplyBatch(context.Background(), "t-1", billing.Plan{
		Updates: []billing.Update{{Before: jan, After: after}},
	})
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ApplyBatch_CommitFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mar := mockPeriod("p-mar", time.March, "0")

	mock.ExpectBegin()
	mock.ExpectQuery(selectPeriods).WillReturnRows(periodRows())
	mock.ExpectExec(insertPeriod).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	err := store.ApplyBatch(context.Background(), "t-1", billing.Plan{Creates: []billing.BillingPeriod{mar}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RecordPayment_UpdateFailureRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	jan := mockPeriod("p-jan", time.January, "0")

	mock.ExpectBegin()
	mock.ExpectQuery(selectPeriods).WithArgs("p-jan", "t-1").WillReturnRows(periodRows(jan))
	mock.ExpectExec(updatePeriod).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.RecordPayment(context.Background(), "t-1", "p-jan", decimal.NewFromInt(10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record payment")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ApplyLease_InsertFailureRollsBackTenancy(t *testing.T) {
	// GIVEN: The tenancy upsert succeeds inside the transaction
	// WHEN: Inserting a period fails
	// THEN: The transaction is rolled back, taking the upsert with it

	store, mock := newMockStore(t)
	mar := mockPeriod("p-mar", time.March, "0")

	mock.ExpectBegin()
	mock.ExpectExec(upsertLease).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(selectPeriods).WillReturnRows(periodRows())
	mock.ExpectExec(insertPeriod).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := store.ApplyLease(context.Background(), billing.Tenancy{ID: "t-1", Name: "Flat 1"},
		billing.Plan{Creates: []billing.BillingPeriod{mar}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert period p-mar")
	assert.NoError(t, mock.ExpectationsWereMet())
}
