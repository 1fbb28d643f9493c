/*
generator.go - Lease configuration to billing schedule

PURPOSE:
  Generate produces one BillingPeriod per calendar month touched by the
  lease. It is pure: no I/O, no identifiers, no payment state.

PRORATION RULES:
  Single-month lease:
    rent = monthlyRent * occupiedDays / daysInMonth
  First month, start not on the due date:
    the period runs from the due date to the day before next month's due
    date; rent = monthlyRent * daysFromStartToPeriodEnd / periodDays
  Last month:
    lease ends before the due date -> rent 0
    otherwise rent = monthlyRent * (endDay - dueDay + 1) / daysUntilNextDue
  Middle months: full rent.

  The due day is clamped per month (due day 31 is Feb 28/29), and every
  comparison against the due day uses the clamped date.

EXAMPLE:
  lease: 2024-03-10 .. 2024-03-20, rent 3000 (single month, 31 days)
  -> rent = 3000 * 11 / 31 = 1064.52
*/
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Proration note templates.
const (
	noteSingleMonth = "Pro-rated for %d days."
	noteFirstMonth  = "Pro-rated for %d days in the first month."
	noteFinalMonth  = "Pro-rated for %d days in the final month."
	noteEndedEarly  = "Lease ended before the rent due date for this month."
)

// rentPlaces is the precision rent amounts are rounded to.
const rentPlaces = 2

// Generate turns a lease into its ordered schedule of billing periods.
// Returned periods carry no ID and a zero AmountPaid.
func Generate(config LeaseConfiguration) ([]BillingPeriod, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	months, err := MonthsBetween(config.StartDate, config.EndDate)
	if err != nil {
		return nil, err
	}

	first := config.StartDate.MonthKey()
	last := config.EndDate.MonthKey()

	periods := make([]BillingPeriod, 0, len(months))
	for _, month := range months {
		isFirst := month == first
		isLast := month == last

		dueDate := ClampedMonthDate(month.Year, month.Month, config.DueDay)
		rent, note := periodRent(config, month, dueDate, isFirst, isLast)

		period := BillingPeriod{
			MonthKey:      month,
			DueDate:       dueDate,
			RentAmount:    rent.Round(rentPlaces),
			Charges:       cloneCharges(config.RecurringCharges),
			DepositAmount: decimal.Zero,
			AmountPaid:    decimal.Zero,
			Note:          note,
		}
		if isFirst {
			period.DepositAmount = config.DepositAmount
			if period.Note == "" {
				period.Note = config.LeaseNote
			}
		}
		periods = append(periods, period)
	}
	return periods, nil
}

// periodRent returns the unrounded rent for one month and its proration note.
func periodRent(config LeaseConfiguration, month MonthKey, dueDate Date, isFirst, isLast bool) (decimal.Decimal, string) {
	rent := config.MonthlyRent
	next := month.Next()
	nextDue := ClampedMonthDate(next.Year, next.Month, config.DueDay)

	switch {
	case isFirst && isLast:
		occupied := DayDifference(config.StartDate, config.EndDate) + 1
		return prorate(rent, occupied, DaysInMonth(month.Year, month.Month)),
			fmt.Sprintf(noteSingleMonth, occupied)

	case isFirst:
		if config.StartDate.Equal(dueDate) {
			return rent, ""
		}
		periodEnd := nextDue.AddDays(-1)
		periodDays := DayDifference(dueDate, periodEnd) + 1
		occupied := DayDifference(config.StartDate, periodEnd) + 1
		return prorate(rent, occupied, periodDays),
			fmt.Sprintf(noteFirstMonth, occupied)

	case isLast:
		if config.EndDate.Before(dueDate) {
			return decimal.Zero, noteEndedEarly
		}
		occupied := DayDifference(dueDate, config.EndDate) + 1
		periodDays := DayDifference(dueDate, nextDue)
		return prorate(rent, occupied, periodDays),
			fmt.Sprintf(noteFinalMonth, occupied)

	default:
		return rent, ""
	}
}

func prorate(rent decimal.Decimal, occupiedDays, periodDays int) decimal.Decimal {
	if periodDays <= 0 {
		return decimal.Zero
	}
	return rent.Mul(decimal.NewFromInt(int64(occupiedDays))).Div(decimal.NewFromInt(int64(periodDays)))
}
