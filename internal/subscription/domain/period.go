package domain

import "time"

// AdvancePeriod returns the period end that follows start for the given
// billing interval. Calendar arithmetic is used so monthly periods land on
// the same day number, with Go's AddDate normalization on short months.
func AdvancePeriod(start time.Time, interval string, count int) time.Time {
	if count <= 0 {
		count = 1
	}
	switch interval {
	case IntervalDay:
		return start.AddDate(0, 0, count)
	case IntervalWeek:
		return start.AddDate(0, 0, 7*count)
	case IntervalYear:
		return start.AddDate(count, 0, 0)
	default:
		return start.AddDate(0, count, 0)
	}
}

// NextPeriod returns the window that starts where the current one ended.
func (p SubscriptionPlan) NextPeriod(from time.Time) (time.Time, time.Time) {
	return from, AdvancePeriod(from, p.Interval, p.IntervalCount)
}
