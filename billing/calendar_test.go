package billing_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tenancy-billing/billing"
)

func date(y int, m time.Month, d int) billing.Date {
	return billing.NewDate(y, m, d)
}

// =============================================================================
// CLAMPING
// =============================================================================

func TestClampedMonthDate(t *testing.T) {
	tests := []struct {
		name  string
		year  int
		month time.Month
		day   int
		want  billing.Date
	}{
		{"leap february", 2024, time.February, 31, date(2024, time.February, 29)},
		{"common february", 2023, time.February, 31, date(2023, time.February, 28)},
		{"thirty-day month", 2024, time.April, 31, date(2024, time.April, 30)},
		{"in range", 2024, time.March, 15, date(2024, time.March, 15)},
		{"december does not roll over", 2024, time.December, 31, date(2024, time.December, 31)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := billing.ClampedMonthDate(tt.year, tt.month, tt.day)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.Equal(t, tt.month, got.Month())
		})
	}
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 29, billing.DaysInMonth(2024, time.February))
	assert.Equal(t, 28, billing.DaysInMonth(2023, time.February))
	assert.Equal(t, 28, billing.DaysInMonth(1900, time.February))
	assert.Equal(t, 29, billing.DaysInMonth(2000, time.February))
	assert.Equal(t, 31, billing.DaysInMonth(2024, time.December))
}

// =============================================================================
// MONTH RANGES
// =============================================================================

func TestMonthsBetween_SpansYearBoundary(t *testing.T) {
	months, err := billing.MonthsBetween(date(2023, time.November, 20), date(2024, time.February, 3))
	require.NoError(t, err)

	want := []billing.MonthKey{
		{Year: 2023, Month: time.November},
		{Year: 2023, Month: time.December},
		{Year: 2024, Month: time.January},
		{Year: 2024, Month: time.February},
	}
	assert.Equal(t, want, months)
}

func TestMonthsBetween_SameDay(t *testing.T) {
	months, err := billing.MonthsBetween(date(2024, time.May, 5), date(2024, time.May, 5))
	require.NoError(t, err)
	assert.Equal(t, []billing.MonthKey{{Year: 2024, Month: time.May}}, months)
}

func TestMonthsBetween_EndBeforeStart(t *testing.T) {
	_, err := billing.MonthsBetween(date(2024, time.May, 5), date(2024, time.May, 4))
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrInvalidRange)

	var rangeErr *billing.RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "2024-05-05", rangeErr.Start.String())
}

func TestDayDifference(t *testing.T) {
	assert.Equal(t, 0, billing.DayDifference(date(2024, time.March, 10), date(2024, time.March, 10)))
	assert.Equal(t, 10, billing.DayDifference(date(2024, time.March, 10), date(2024, time.March, 20)))
	assert.Equal(t, 29, billing.DayDifference(date(2024, time.February, 1), date(2024, time.March, 1)))
	assert.Equal(t, -1, billing.DayDifference(date(2024, time.January, 1), date(2023, time.December, 31)))
}

// =============================================================================
// WIRE FORMATS
// =============================================================================

func TestMonthKey_TextRoundTrip(t *testing.T) {
	k := billing.MonthKey{Year: 2024, Month: time.March}
	assert.Equal(t, "2024-03", k.String())

	parsed, err := billing.ParseMonthKey("2024-03")
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = billing.ParseMonthKey("2024-13")
	assert.Error(t, err)
}

func TestMonthKey_NextWrapsYear(t *testing.T) {
	k := billing.MonthKey{Year: 2024, Month: time.December}
	assert.Equal(t, billing.MonthKey{Year: 2025, Month: time.January}, k.Next())
	assert.True(t, k.Before(k.Next()))
}

func TestDate_JSON(t *testing.T) {
	b, err := json.Marshal(date(2024, time.February, 29))
	require.NoError(t, err)
	assert.Equal(t, `"2024-02-29"`, string(b))

	var d billing.Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-04-30"`), &d))
	assert.True(t, d.Equal(date(2024, time.April, 30)))

	_, err = billing.ParseDate("2024-02-30")
	assert.Error(t, err)
}
