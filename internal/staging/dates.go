// File: internal/staging/dates.go
package staging

import (
	"fmt"
	"time"

	"github.com/Attta-pangestu/venus-autofill/internal/config"
)

// FormDateLayout is the format the vendor form expects in its date inputs.
const FormDateLayout = "02/01/2006"

// QueryDateLayout is the normalized format used for database lookups.
const QueryDateLayout = "2006-01-02"

// ParseDate accepts the two date shapes that occur in staging data:
// ISO (2025-08-14) and the form's own DD/MM/YYYY.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{QueryDateLayout, FormDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// FormDate renders a date in the form's DD/MM/YYYY format.
func FormDate(t time.Time) string {
	return t.Format(FormDateLayout)
}

// QueryDate renders a date in the YYYY-MM-DD format used for crosscheck
// queries, regardless of how it is displayed elsewhere.
func QueryDate(t time.Time) string {
	return t.Format(QueryDateLayout)
}

// TransactionDate derives the date submitted to the form. Testing mode
// shifts the attendance date exactly one calendar month into the past so
// rehearsal batches never land in a live production period; real mode uses
// the attendance date unchanged.
func TransactionDate(attendance time.Time, mode config.Mode) time.Time {
	if mode != config.ModeTesting {
		return attendance
	}
	return shiftMonths(attendance, -1)
}

// DocumentDate derives the secondary date field the form requires: today's
// day-of-month combined with the transaction date's month and year. When
// that day does not exist in the target month the result clamps to the
// month's last day.
func DocumentDate(transaction, today time.Time) time.Time {
	day := today.Day()
	if last := lastDayOfMonth(transaction.Year(), transaction.Month()); day > last {
		day = last
	}
	return time.Date(transaction.Year(), transaction.Month(), day, 0, 0, 0, 0, transaction.Location())
}

// shiftMonths moves a date by whole calendar months, clamping the day to the
// target month's length. time.Time.AddDate is unsuitable here because it
// normalizes overflow (Mar 31 - 1 month would become Mar 3).
func shiftMonths(t time.Time, months int) time.Time {
	year, month := t.Year(), int(t.Month())+months
	for month < 1 {
		month += 12
		year--
	}
	for month > 12 {
		month -= 12
		year++
	}
	day := t.Day()
	if last := lastDayOfMonth(year, time.Month(month)); day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, t.Location())
}

// lastDayOfMonth returns the number of days in the given month.
func lastDayOfMonth(year int, month time.Month) int {
	// Day zero of the following month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
