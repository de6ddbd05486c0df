package billing

import "time"

// TrialDuration is the one-time full-access window, counted from account creation.
const TrialDuration = 72 * time.Hour

// BillingPeriod is the length of one paid premium period. Days takes
// precedence when set; otherwise the period is Months calendar months.
type BillingPeriod struct {
	Months int `json:"months"`
	Days   int `json:"days"`
}

var DefaultBillingPeriod = BillingPeriod{Months: 1}

func (p BillingPeriod) End(from time.Time) time.Time {
	if p.Days > 0 {
		return from.AddDate(0, 0, p.Days)
	}
	months := p.Months
	if months <= 0 {
		months = 1
	}
	return AddMonths(from, months)
}

// AddMonths adds n calendar months to t, clamping the day to the last day
// of the target month: Jan 31 + 1 is Feb 28, or Feb 29 in a leap year.
// Unlike time.AddDate it never spills into the following month.
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	target := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(target.Year(), target.Month()); day > last {
		day = last
	}

	return time.Date(target.Year(), target.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
