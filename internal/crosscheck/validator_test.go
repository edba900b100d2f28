// File: internal/crosscheck/validator_test.go
package crosscheck

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Attta-pangestu/venus-autofill/internal/config"
	"github.com/Attta-pangestu/venus-autofill/internal/register"
	"github.com/Attta-pangestu/venus-autofill/internal/staging"
)

func testCfg() config.CrosscheckConfig {
	return config.CrosscheckConfig{
		Enabled:        true,
		EmployeePrefix: "POM",
		Tolerance:      0.1,
	}
}

func entryFor(t *testing.T, ptrjID, date string, trxType staging.TransactionType, hours float64) staging.TransactionEntry {
	t.Helper()
	rec, err := staging.NewRecord("1", "EMP", ptrjID, "BUDI SANTOSO", date,
		"1", "07:00", "16:00", 7, 2, "(OC7240) LAB / L (LABOUR)", "staged")
	require.NoError(t, err)
	return staging.TransactionEntry{StagingRecord: rec, Type: trxType, Hours: hours}
}

func TestBuildExpectations(t *testing.T) {
	entries := []staging.TransactionEntry{
		entryFor(t, "00123", "2025-08-14", staging.TypeNormal, 7.0),
		entryFor(t, "00123", "2025-08-14", staging.TypeOvertime, 2.0),
		entryFor(t, "00456", "2025-08-14", staging.TypeNormal, 7.0),
	}

	expected := BuildExpectations(entries, config.ModeReal, "POM")
	require.Len(t, expected, 3)

	// Sorted by employee, then date, normal before overtime.
	assert.Equal(t, "POM00123", expected[0].EmpCode)
	assert.False(t, expected[0].Overtime)
	assert.Equal(t, 7.0, expected[0].Hours) // weekday contractual hours
	assert.Equal(t, "POM00123", expected[1].EmpCode)
	assert.True(t, expected[1].Overtime)
	assert.Equal(t, 2.0, expected[1].Hours) // overtime passes verbatim
	assert.Equal(t, "POM00456", expected[2].EmpCode)
}

func TestBuildExpectationsShiftsDateInTestingMode(t *testing.T) {
	entries := []staging.TransactionEntry{
		entryFor(t, "00123", "2025-08-14", staging.TypeNormal, 7.0),
	}

	expected := BuildExpectations(entries, config.ModeTesting, "POM")
	require.Len(t, expected, 1)
	assert.Equal(t, "2025-07-14", staging.QueryDate(expected[0].Date))
}

func TestBuildExpectationsKeepsExistingPrefix(t *testing.T) {
	entries := []staging.TransactionEntry{
		entryFor(t, "POM00123", "2025-08-14", staging.TypeNormal, 7.0),
	}
	expected := BuildExpectations(entries, config.ModeReal, "POM")
	require.Len(t, expected, 1)
	assert.Equal(t, "POM00123", expected[0].EmpCode)
}

func TestBuildExpectationsFromReport(t *testing.T) {
	report := &register.BatchReport{
		Mode: config.ModeTesting,
		Results: []register.EntryResult{
			{RecordID: "1", EmployeePTRJ: "00123", Date: "2025-08-14", Type: staging.TypeNormal, Hours: 7.0},
			{RecordID: "1", EmployeePTRJ: "00123", Date: "2025-08-14", Type: staging.TypeOvertime, Hours: 2.0},
			{RecordID: "2", EmployeePTRJ: "00456", Date: "2025-08-14", Type: staging.TypeNormal, Hours: 7.0,
				Error: "charge job rejected"},
		},
	}

	expected, err := BuildExpectationsFromReport(report, "POM")
	require.NoError(t, err)

	// The failed entry is excluded; dates carry the testing-mode shift.
	require.Len(t, expected, 2)
	assert.Equal(t, "POM00123", expected[0].EmpCode)
	assert.Equal(t, "2025-07-14", staging.QueryDate(expected[0].Date))
	assert.False(t, expected[0].Overtime)
	assert.Equal(t, 7.0, expected[0].Hours)
	assert.True(t, expected[1].Overtime)
	assert.Equal(t, 2.0, expected[1].Hours)
}

func TestBuildExpectationsFromReportMatchesLiveEntriesWhenAllCommit(t *testing.T) {
	entries := []staging.TransactionEntry{
		entryFor(t, "00123", "2025-08-14", staging.TypeNormal, 7.0),
		entryFor(t, "00123", "2025-08-14", staging.TypeOvertime, 2.0),
	}

	// The report records exactly what the scheduler submitted: attendance
	// dates and the hours after the contractual substitution.
	report := &register.BatchReport{Mode: config.ModeTesting}
	for _, entry := range entries {
		report.Results = append(report.Results, register.EntryResult{
			RecordID:     entry.ID,
			EmployeePTRJ: entry.EmployeePTRJID,
			Date:         staging.QueryDate(entry.Date),
			Type:         entry.Type,
			Hours:        register.SubmissionHours(entry),
		})
	}

	fromEntries := BuildExpectations(entries, config.ModeTesting, "POM")
	fromReport, err := BuildExpectationsFromReport(report, "POM")
	require.NoError(t, err)
	assert.Equal(t, fromEntries, fromReport)

	// A failed entry drops out of the report-derived expectations even
	// though its staged record still exists.
	report.Results[1].Error = "add button never resolved"
	fromReport, err = BuildExpectationsFromReport(report, "POM")
	require.NoError(t, err)
	require.Len(t, fromReport, 1)
	assert.False(t, fromReport[0].Overtime)
}

func TestBuildExpectationsFromReportRejectsBadDate(t *testing.T) {
	report := &register.BatchReport{
		Mode: config.ModeReal,
		Results: []register.EntryResult{
			{RecordID: "1", EmployeePTRJ: "00123", Date: "yesterday", Type: staging.TypeNormal, Hours: 7.0},
		},
	}
	_, err := BuildExpectationsFromReport(report, "POM")
	assert.Error(t, err)
}

func TestValidateWithinTolerance(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectPing()
	// 7.05 booked against 7.0 expected sits inside the 0.1 tolerance.
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("POM00123", "2025-08-14", 0).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(7.05))

	ctx := context.Background()
	v, err := NewValidator(ctx, mock, testCfg(), zaptest.NewLogger(t))
	require.NoError(t, err)

	report, err := v.Validate(ctx, []Expected{{
		EmpCode: "POM00123",
		Date:    time.Date(2025, time.August, 14, 0, 0, 0, 0, time.UTC),
		Hours:   7.0,
	}})
	require.NoError(t, err)

	require.Len(t, report.Items, 1)
	assert.True(t, report.Items[0].Match)
	assert.Equal(t, 7.05, report.Items[0].Actual)
	assert.Equal(t, 1.0, report.MatchRate())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateOutsideTolerance(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectPing()
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("POM00123", "2025-08-14", 1).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(7.2))

	ctx := context.Background()
	v, err := NewValidator(ctx, mock, testCfg(), zaptest.NewLogger(t))
	require.NoError(t, err)

	report, err := v.Validate(ctx, []Expected{{
		EmpCode:  "POM00123",
		Date:     time.Date(2025, time.August, 14, 0, 0, 0, 0, time.UTC),
		Overtime: true,
		Hours:    7.0,
	}})
	require.NoError(t, err)

	assert.False(t, report.Items[0].Match)
	assert.Zero(t, report.Matched)
	assert.Zero(t, report.MatchRate())
}

func TestValidateMissingBookingReadsAsZero(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectPing()
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("POM00999", "2025-08-14", 0).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(0.0))

	ctx := context.Background()
	v, err := NewValidator(ctx, mock, testCfg(), zaptest.NewLogger(t))
	require.NoError(t, err)

	report, err := v.Validate(ctx, []Expected{{
		EmpCode: "POM00999",
		Date:    time.Date(2025, time.August, 14, 0, 0, 0, 0, time.UTC),
		Hours:   7.0,
	}})
	require.NoError(t, err)
	assert.False(t, report.Items[0].Match)
	assert.Equal(t, 0.0, report.Items[0].Actual)
}

func TestNewValidatorPingFailure(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectPing().WillReturnError(assert.AnError)

	_, err = NewValidator(context.Background(), mock, testCfg(), zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestValidateQueryFailure(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectPing()
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("POM00123", "2025-08-14", 0).
		WillReturnError(assert.AnError)

	ctx := context.Background()
	v, err := NewValidator(ctx, mock, testCfg(), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = v.Validate(ctx, []Expected{{
		EmpCode: "POM00123",
		Date:    time.Date(2025, time.August, 14, 0, 0, 0, 0, time.UTC),
		Hours:   7.0,
	}})
	assert.Error(t, err)
}
