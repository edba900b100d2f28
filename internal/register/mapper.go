// File: internal/register/mapper.go
package register

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Attta-pangestu/venus-autofill/internal/config"
	"github.com/Attta-pangestu/venus-autofill/internal/staging"
)

// FormDriver is the slice of the form layer the mapper drives. Narrowed to an
// interface so submission logic can be tested without a browser.
type FormDriver interface {
	FillDocumentDate(ctx context.Context, value string) error
	FillTransactionDate(ctx context.Context, value string) error
	FillEmployee(ctx context.Context, ptrjID, name string) error
	SelectTransactionType(ctx context.Context, t staging.TransactionType) error
	FillChargeJob(ctx context.Context, components []string) error
	FillHours(ctx context.Context, hours float64) error
	ClickAdd(ctx context.Context) error
	ClickNew(ctx context.Context) error
}

// normalDayHours and normalSaturdayHours are the fixed values booked for a
// worked Normal entry. Payroll treats the staged regular_hours as attendance
// evidence only; what gets booked is the contractual day length, which is
// shorter on Saturdays.
const (
	normalDayHours      = 7.0
	normalSaturdayHours = 5.0
)

// SubmissionHours computes the hours value actually typed into the form.
// Overtime entries book their measured hours verbatim; a worked Normal entry
// books the contractual day length for its weekday; a zero-hour entry stays
// zero.
func SubmissionHours(entry staging.TransactionEntry) float64 {
	if entry.Type == staging.TypeOvertime {
		return entry.Hours
	}
	if entry.Hours <= 0 {
		return 0
	}
	if entry.Date.Weekday() == time.Saturday {
		return normalSaturdayHours
	}
	return normalDayHours
}

// Mapper turns one transaction entry into the form-step sequence that commits
// it. Steps differ in blast radius: a wrong transaction date or charge job
// corrupts the booking, so those are fatal, while a failed document date or
// radio click leaves a correct booking with cosmetic defects, so those are
// tolerated and logged.
type Mapper struct {
	driver FormDriver
	mode   config.Mode
	logger *zap.Logger
	now    func() time.Time
}

// NewMapper creates a mapper submitting in the given mode.
func NewMapper(driver FormDriver, mode config.Mode, logger *zap.Logger) *Mapper {
	return &Mapper{
		driver: driver,
		mode:   mode,
		logger: logger.Named("mapper"),
		now:    time.Now,
	}
}

// Submit walks one entry through the form. last marks the final entry of the
// whole batch, which is committed with New instead of Add so the document
// closes; a failed New is tolerated because the entry data is already staged
// in the form's grid at that point.
func (m *Mapper) Submit(ctx context.Context, entry staging.TransactionEntry, last bool) error {
	trxDate := staging.TransactionDate(entry.Date, m.mode)
	docDate := staging.DocumentDate(trxDate, m.now())

	log := m.logger.With(
		zap.String("record", entry.ID),
		zap.String("employee", entry.EmployeeName),
		zap.String("type", string(entry.Type)),
		zap.String("trx_date", staging.FormDate(trxDate)))

	if err := m.driver.FillDocumentDate(ctx, staging.FormDate(docDate)); err != nil {
		log.Warn("document date not set, continuing", zap.Error(err))
	}

	if err := m.driver.FillTransactionDate(ctx, staging.FormDate(trxDate)); err != nil {
		return fmt.Errorf("transaction date: %w", err)
	}

	if err := m.driver.FillEmployee(ctx, entry.EmployeePTRJID, entry.EmployeeName); err != nil {
		return fmt.Errorf("employee: %w", err)
	}

	if err := m.driver.SelectTransactionType(ctx, entry.Type); err != nil {
		log.Warn("transaction type not selected, continuing", zap.Error(err))
	}

	components := staging.ParseChargeJob(entry.RawChargeJob)
	if err := m.driver.FillChargeJob(ctx, components); err != nil {
		return fmt.Errorf("charge job: %w", err)
	}

	hours := SubmissionHours(entry)
	if err := m.driver.FillHours(ctx, hours); err != nil {
		return fmt.Errorf("hours: %w", err)
	}

	if last {
		if err := m.driver.ClickNew(ctx); err != nil {
			log.Warn("final New click failed, entry remains staged in form grid", zap.Error(err))
		}
		log.Info("entry committed", zap.Float64("hours", hours), zap.String("commit", "new"))
		return nil
	}

	if err := m.driver.ClickAdd(ctx); err != nil {
		return fmt.Errorf("committing entry with Add: %w", err)
	}
	log.Info("entry committed", zap.Float64("hours", hours), zap.String("commit", "add"))
	return nil
}
