package billing

import "sort"

// Status is the display/alerting state of a tenancy.
type Status string

const (
	StatusOverdue   Status = "overdue"
	StatusUpcoming  Status = "upcoming"
	StatusPaidUp    Status = "paid_up"
	StatusCompleted Status = "completed"
	StatusUnknown   Status = "unknown"
)

// Classification is the result of Classify. NextDue is set for Overdue and
// Upcoming only.
type Classification struct {
	Status      Status
	NextDueDate *Date
	NextPeriod  *BillingPeriod
	Outstanding int // number of unpaid periods
}

// Classify derives a tenancy's payment status from its periods.
//
// The earliest unpaid period due before today makes the tenancy Overdue, even
// when a later upcoming period exists. Otherwise the earliest unpaid period due
// today or later makes it Upcoming. With everything paid the tenancy is
// Completed once leaseEnd is before today, PaidUp before that.
func Classify(periods []BillingPeriod, leaseEnd, today Date) Classification {
	if len(periods) == 0 {
		return Classification{Status: StatusUnknown}
	}

	var unpaid []BillingPeriod
	for _, p := range periods {
		if !p.IsPaid() {
			unpaid = append(unpaid, p)
		}
	}
	sort.SliceStable(unpaid, func(i, j int) bool {
		return unpaid[i].DueDate.Before(unpaid[j].DueDate)
	})

	var overdue, upcoming *BillingPeriod
	for i := range unpaid {
		p := &unpaid[i]
		if p.DueDate.Before(today) {
			if overdue == nil {
				overdue = p
			}
		} else if upcoming == nil {
			upcoming = p
		}
	}

	switch {
	case overdue != nil:
		return nextDue(StatusOverdue, *overdue, len(unpaid))
	case upcoming != nil:
		return nextDue(StatusUpcoming, *upcoming, len(unpaid))
	case !leaseEnd.IsZero() && leaseEnd.Before(today):
		return Classification{Status: StatusCompleted}
	default:
		return Classification{Status: StatusPaidUp}
	}
}

func nextDue(status Status, p BillingPeriod, outstanding int) Classification {
	due := p.DueDate
	return Classification{
		Status:      status,
		NextDueDate: &due,
		NextPeriod:  &p,
		Outstanding: outstanding,
	}
}
