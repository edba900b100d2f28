// File: internal/crosscheck/validator.go
package crosscheck

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Attta-pangestu/venus-autofill/internal/config"
	"github.com/Attta-pangestu/venus-autofill/internal/register"
	"github.com/Attta-pangestu/venus-autofill/internal/staging"
)

// DB abstracts the transaction-database pool so validation can run against
// pgxmock in tests.
type DB interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Expected is one aggregate the transaction table must reproduce: the summed
// hours booked for an employee on a date under one overtime flag.
type Expected struct {
	EmpCode  string    `json:"emp_code"`
	Date     time.Time `json:"date"`
	Overtime bool      `json:"overtime"`
	Hours    float64   `json:"hours"`
}

// Item pairs an expectation with what the database actually holds.
type Item struct {
	Expected
	Actual float64 `json:"actual"`
	Match  bool    `json:"match"`
}

// Report is the outcome of one validation pass.
type Report struct {
	Items   []Item `json:"items"`
	Matched int    `json:"matched"`
}

// MatchRate reports the fraction of expectations the database reproduced.
func (r *Report) MatchRate() float64 {
	if len(r.Items) == 0 {
		return 0
	}
	return float64(r.Matched) / float64(len(r.Items))
}

// normalizeEmpCode applies the ERP employee prefix unless the id already
// carries it.
func normalizeEmpCode(prefix, id string) string {
	if prefix == "" || strings.HasPrefix(id, prefix) {
		return id
	}
	return prefix + id
}

// BuildExpectations aggregates submitted entries into the per-employee,
// per-date, per-flag sums the transaction table stores. The date is the
// transaction date actually submitted, which in testing mode differs from the
// attendance date.
func BuildExpectations(entries []staging.TransactionEntry, mode config.Mode, prefix string) []Expected {
	type key struct {
		emp      string
		date     string
		overtime bool
	}
	sums := make(map[key]*Expected)
	for _, entry := range entries {
		trxDate := staging.TransactionDate(entry.Date, mode)
		k := key{
			emp:      normalizeEmpCode(prefix, entry.EmployeePTRJID),
			date:     staging.QueryDate(trxDate),
			overtime: entry.Type == staging.TypeOvertime,
		}
		if _, ok := sums[k]; !ok {
			sums[k] = &Expected{EmpCode: k.emp, Date: trxDate, Overtime: k.overtime}
		}
		sums[k].Hours += register.SubmissionHours(entry)
	}

	expected := make([]Expected, 0, len(sums))
	for _, e := range sums {
		expected = append(expected, *e)
	}
	sortExpectations(expected)
	return expected
}

func sortExpectations(expected []Expected) {
	sort.Slice(expected, func(i, j int) bool {
		if expected[i].EmpCode != expected[j].EmpCode {
			return expected[i].EmpCode < expected[j].EmpCode
		}
		if !expected[i].Date.Equal(expected[j].Date) {
			return expected[i].Date.Before(expected[j].Date)
		}
		return !expected[i].Overtime && expected[j].Overtime
	})
}

// BuildExpectationsFromReport aggregates a recorded batch report the same
// way, using only the entries that actually committed. The report stores
// attendance dates and pre-computed submission hours, so the mode shift is
// reapplied here.
func BuildExpectationsFromReport(report *register.BatchReport, prefix string) ([]Expected, error) {
	type key struct {
		emp      string
		date     string
		overtime bool
	}
	sums := make(map[key]*Expected)
	for _, result := range report.Results {
		if result.Error != "" {
			continue
		}
		attendance, err := staging.ParseDate(result.Date)
		if err != nil {
			return nil, fmt.Errorf("result %s: %w", result.RecordID, err)
		}
		trxDate := staging.TransactionDate(attendance, report.Mode)
		k := key{
			emp:      normalizeEmpCode(prefix, result.EmployeePTRJ),
			date:     staging.QueryDate(trxDate),
			overtime: result.Type == staging.TypeOvertime,
		}
		if _, ok := sums[k]; !ok {
			sums[k] = &Expected{EmpCode: k.emp, Date: trxDate, Overtime: k.overtime}
		}
		sums[k].Hours += result.Hours
	}

	expected := make([]Expected, 0, len(sums))
	for _, e := range sums {
		expected = append(expected, *e)
	}
	sortExpectations(expected)
	return expected, nil
}

// bookedHoursQuery sums the booked hours for one employee, date and overtime
// flag. The OT column stores 0 for normal entries and 1 for overtime.
const bookedHoursQuery = `
SELECT COALESCE(SUM(Hours), 0)
FROM PR_TASKREGLN
WHERE EmpCode = $1 AND TrxDate = $2 AND OT = $3`

// Validator checks submitted batches against the ERP transaction table.
type Validator struct {
	db        DB
	tolerance float64
	logger    *zap.Logger
}

// NewValidator creates a validator and verifies the database connection.
func NewValidator(ctx context.Context, db DB, cfg config.CrosscheckConfig, logger *zap.Logger) (*Validator, error) {
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging transaction database: %w", err)
	}
	return &Validator{
		db:        db,
		tolerance: cfg.Tolerance,
		logger:    logger.Named("crosscheck"),
	}, nil
}

// Validate queries the booked sum for every expectation and compares within
// tolerance. Hours pass through the form as decimal text and come back from
// the database as numeric, so bit-exact comparison would flag every entry.
func (v *Validator) Validate(ctx context.Context, expected []Expected) (*Report, error) {
	report := &Report{}
	for _, e := range expected {
		otFlag := 0
		if e.Overtime {
			otFlag = 1
		}

		actual, err := v.bookedHours(ctx, e.EmpCode, staging.QueryDate(e.Date), otFlag)
		if err != nil {
			return nil, fmt.Errorf("querying booked hours for %s on %s: %w",
				e.EmpCode, staging.QueryDate(e.Date), err)
		}

		match := math.Abs(actual-e.Hours) <= v.tolerance
		if match {
			report.Matched++
		} else {
			v.logger.Warn("booked hours diverge",
				zap.String("employee", e.EmpCode),
				zap.String("date", staging.QueryDate(e.Date)),
				zap.Bool("overtime", e.Overtime),
				zap.Float64("expected", e.Hours),
				zap.Float64("actual", actual))
		}
		report.Items = append(report.Items, Item{Expected: e, Actual: actual, Match: match})
	}

	v.logger.Info("crosscheck complete",
		zap.Int("checked", len(report.Items)),
		zap.Int("matched", report.Matched),
		zap.Float64("match_rate", report.MatchRate()))
	return report, nil
}

func (v *Validator) bookedHours(ctx context.Context, empCode, date string, otFlag int) (float64, error) {
	rows, err := v.db.Query(ctx, bookedHoursQuery, empCode, date, otFlag)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var sum float64
	if rows.Next() {
		if err := rows.Scan(&sum); err != nil {
			return 0, err
		}
	}
	return sum, rows.Err()
}
