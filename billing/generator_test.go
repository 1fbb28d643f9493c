package billing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tenancy-billing/billing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lease(start, end billing.Date, dueDay int, rent string) billing.LeaseConfiguration {
	return billing.LeaseConfiguration{
		StartDate:   start,
		EndDate:     end,
		DueDay:      dueDay,
		MonthlyRent: money(rent),
	}
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, money(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

// =============================================================================
// SINGLE-MONTH LEASES
// =============================================================================

func TestGenerate_SingleMonth_ProratedByCalendarMonth(t *testing.T) {
	// GIVEN: An 11-day lease inside April (30 days), rent 3000
	// WHEN: Generating the schedule
	// THEN: One period with rent 3000 * 11 / 30 = 1100.00

	periods, err := billing.Generate(lease(date(2024, time.April, 10), date(2024, time.April, 20), 10, "3000"))
	require.NoError(t, err)
	require.Len(t, periods, 1)

	p := periods[0]
	assertMoney(t, "1100", p.RentAmount)
	assert.Equal(t, "Pro-rated for 11 days.", p.Note)
	assert.Equal(t, "2024-04-10", p.DueDate.String())
}

func TestGenerate_SingleMonth_RoundsToCents(t *testing.T) {
	// 3000 * 11 / 31 = 1064.516...
	periods, err := billing.Generate(lease(date(2024, time.March, 10), date(2024, time.March, 20), 1, "3000"))
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assertMoney(t, "1064.52", periods[0].RentAmount)
}

func TestGenerate_SingleMonth_RoundsHalfUp(t *testing.T) {
	// 1000.05 * 14 / 28 = 500.025 exactly, which rounds up to 500.03.
	periods, err := billing.Generate(lease(date(2023, time.February, 1), date(2023, time.February, 14), 1, "1000.05"))
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assertMoney(t, "500.03", periods[0].RentAmount)
}

// =============================================================================
// MULTI-MONTH LEASES
// =============================================================================

func TestGenerate_MidMonthLease(t *testing.T) {
	// GIVEN: Lease Jan 15 - Jun 14 2024, due on the 1st, rent 3000
	// WHEN: Generating the schedule
	// THEN: Jan pro-rated 17/31, Feb-May full, Jun pro-rated 14/30

	periods, err := billing.Generate(lease(date(2024, time.January, 15), date(2024, time.June, 14), 1, "3000"))
	require.NoError(t, err)
	require.Len(t, periods, 6)

	assertMoney(t, "1645.16", periods[0].RentAmount)
	assert.Equal(t, "Pro-rated for 17 days in the first month.", periods[0].Note)

	for _, p := range periods[1:5] {
		assertMoney(t, "3000", p.RentAmount, p.MonthKey.String())
		assert.Empty(t, p.Note)
	}

	assertMoney(t, "1400", periods[5].RentAmount)
	assert.Equal(t, "Pro-rated for 14 days in the final month.", periods[5].Note)
}

func TestGenerate_StartOnDueDate_FullFirstMonth(t *testing.T) {
	periods, err := billing.Generate(lease(date(2024, time.January, 5), date(2024, time.March, 31), 5, "2000"))
	require.NoError(t, err)
	require.Len(t, periods, 3)

	assertMoney(t, "2000", periods[0].RentAmount)
	assert.Empty(t, periods[0].Note)
}

func TestGenerate_LastMonthEndsBeforeDueDate(t *testing.T) {
	// GIVEN: Lease ends Mar 3, rent due on the 5th
	// WHEN: Generating the schedule
	// THEN: March still has a period, with zero rent

	periods, err := billing.Generate(lease(date(2024, time.January, 5), date(2024, time.March, 3), 5, "3000"))
	require.NoError(t, err)
	require.Len(t, periods, 3)

	last := periods[2]
	assert.Equal(t, billing.MonthKey{Year: 2024, Month: time.March}, last.MonthKey)
	assert.True(t, last.RentAmount.IsZero())
	assert.Equal(t, "Lease ended before the rent due date for this month.", last.Note)
}

func TestGenerate_FirstMonthStartsBeforeDueDate(t *testing.T) {
	// Start Jan 3, due the 10th: the first period runs Jan 10 - Feb 9 (31
	// days) and the tenant is billed for Jan 3 - Feb 9 (38 days).
	periods, err := billing.Generate(lease(date(2024, time.January, 3), date(2024, time.March, 31), 10, "3100"))
	require.NoError(t, err)
	require.Len(t, periods, 3)

	assertMoney(t, "3800", periods[0].RentAmount)
	assert.Equal(t, "Pro-rated for 38 days in the first month.", periods[0].Note)
}

func TestGenerate_DueDayClampedEachMonth(t *testing.T) {
	periods, err := billing.Generate(lease(date(2024, time.January, 31), date(2024, time.May, 31), 31, "1000"))
	require.NoError(t, err)
	require.Len(t, periods, 5)

	want := []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30", "2024-05-31"}
	for i, p := range periods {
		assert.Equal(t, want[i], p.DueDate.String())
	}
	assertMoney(t, "1000", periods[0].RentAmount, "start equals clamped due date")
}

func TestGenerate_ClampedDueDateBoundaries(t *testing.T) {
	// GIVEN: Due day 31 and a lease ending on Apr 30, April's clamped due date
	// WHEN: Generating the schedule
	// THEN: April is billed for one day of the Apr 30 - May 30 cycle, not zero

	periods, err := billing.Generate(lease(date(2024, time.January, 31), date(2024, time.April, 30), 31, "3100"))
	require.NoError(t, err)
	require.Len(t, periods, 4)

	assertMoney(t, "3100", periods[0].RentAmount)
	assert.Empty(t, periods[0].Note)

	last := periods[3]
	assert.Equal(t, "2024-04-30", last.DueDate.String())
	assertMoney(t, "100", last.RentAmount)
	assert.Equal(t, "Pro-rated for 1 days in the final month.", last.Note)

	// A start on Feb 29 with due day 30 lands on February's clamped due
	// date, so the first month is billed in full.
	periods, err = billing.Generate(lease(date(2024, time.February, 29), date(2024, time.May, 31), 30, "3000"))
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", periods[0].DueDate.String())
	assertMoney(t, "3000", periods[0].RentAmount)
	assert.Empty(t, periods[0].Note)
}

func TestGenerate_OnePeriodPerMonthInOrder(t *testing.T) {
	periods, err := billing.Generate(lease(date(2023, time.November, 20), date(2025, time.February, 10), 1, "900"))
	require.NoError(t, err)
	require.Len(t, periods, 16)

	seen := make(map[billing.MonthKey]bool)
	for i, p := range periods {
		assert.False(t, seen[p.MonthKey], "duplicate month %s", p.MonthKey)
		seen[p.MonthKey] = true
		if i > 0 {
			assert.True(t, periods[i-1].MonthKey.Before(p.MonthKey))
		}
		assert.Empty(t, p.ID)
		assert.True(t, p.AmountPaid.IsZero())
	}
}

// =============================================================================
// DEPOSIT, CHARGES, NOTES
// =============================================================================

func TestGenerate_DepositOnFirstPeriodOnly(t *testing.T) {
	cfg := lease(date(2024, time.February, 1), date(2024, time.July, 31), 1, "1500")
	cfg.DepositAmount = money("3000")
	cfg.RecurringCharges = []billing.Charge{
		{Name: "Parking", Amount: money("120")},
		{Name: "Internet", Amount: money("40.50")},
	}

	periods, err := billing.Generate(cfg)
	require.NoError(t, err)
	require.Len(t, periods, 6)

	assertMoney(t, "3000", periods[0].DepositAmount)
	assertMoney(t, "4660.50", periods[0].AmountDue())
	for _, p := range periods[1:] {
		assert.True(t, p.DepositAmount.IsZero())
		assertMoney(t, "160.50", p.ChargesTotal())
		assert.Len(t, p.Charges, 2)
	}

	// Charges are snapshots, not shared with the lease.
	cfg.RecurringCharges[0].Amount = money("999")
	assertMoney(t, "120", periods[0].Charges[0].Amount)
}

func TestGenerate_LeaseNoteOnUnproratedFirstPeriod(t *testing.T) {
	cfg := lease(date(2024, time.February, 1), date(2024, time.April, 30), 1, "1500")
	cfg.LeaseNote = "Keys at reception."

	periods, err := billing.Generate(cfg)
	require.NoError(t, err)
	assert.Equal(t, "Keys at reception.", periods[0].Note)
	assert.Empty(t, periods[1].Note)
}

func TestGenerate_Deterministic(t *testing.T) {
	cfg := lease(date(2024, time.January, 15), date(2024, time.June, 14), 1, "3000")
	a, err := billing.Generate(cfg)
	require.NoError(t, err)
	b, err := billing.Generate(cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestGenerate_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*billing.LeaseConfiguration)
	}{
		{"due day zero", func(c *billing.LeaseConfiguration) { c.DueDay = 0 }},
		{"due day 32", func(c *billing.LeaseConfiguration) { c.DueDay = 32 }},
		{"end before start", func(c *billing.LeaseConfiguration) { c.EndDate = date(2023, time.December, 31) }},
		{"negative rent", func(c *billing.LeaseConfiguration) { c.MonthlyRent = money("-1") }},
		{"negative deposit", func(c *billing.LeaseConfiguration) { c.DepositAmount = money("-1") }},
		{"missing start", func(c *billing.LeaseConfiguration) { c.StartDate = billing.Date{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := lease(date(2024, time.January, 1), date(2024, time.March, 31), 1, "1000")
			tt.mutate(&cfg)

			periods, err := billing.Generate(cfg)
			assert.Nil(t, periods)
			assert.ErrorIs(t, err, billing.ErrInvalidLeaseConfiguration)
			assert.True(t, billing.IsClientError(err))
			assert.False(t, billing.IsApplyFailure(err))
		})
	}
}
