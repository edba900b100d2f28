// File: internal/register/scheduler.go
package register

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Attta-pangestu/venus-autofill/internal/config"
	"github.com/Attta-pangestu/venus-autofill/internal/staging"
)

// Submitter is the slice of the mapper the scheduler drives.
type Submitter interface {
	Submit(ctx context.Context, entry staging.TransactionEntry, last bool) error
}

// Scheduler orders staged records into date groups and feeds their entries to
// the submitter at a paced rate. Pacing matters: the form's partial postbacks
// queue server-side, and submitting faster than they drain corrupts the
// document grid.
type Scheduler struct {
	submitter Submitter
	mode      config.Mode
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewScheduler creates a scheduler pacing entries at one per entryDelay.
func NewScheduler(submitter Submitter, cfg *config.Config, logger *zap.Logger) *Scheduler {
	delay := cfg.Automation.EntryDelay
	if delay <= 0 {
		delay = 2500 * time.Millisecond
	}
	return &Scheduler{
		submitter: submitter,
		mode:      cfg.Automation.Mode,
		limiter:   rate.NewLimiter(rate.Every(delay), 1),
		logger:    logger.Named("scheduler"),
	}
}

// GroupByDate buckets records by attendance date and returns the dates in
// ascending order alongside the groups. Within a date, records keep their
// incoming order.
func GroupByDate(records []staging.StagingRecord) ([]time.Time, map[time.Time][]staging.StagingRecord) {
	groups := make(map[time.Time][]staging.StagingRecord)
	for _, rec := range records {
		groups[rec.Date] = append(groups[rec.Date], rec)
	}
	dates := make([]time.Time, 0, len(groups))
	for date := range groups {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, groups
}

// flatten expands the grouped records into the final submission order.
func flatten(dates []time.Time, groups map[time.Time][]staging.StagingRecord) []staging.TransactionEntry {
	var entries []staging.TransactionEntry
	for _, date := range dates {
		for _, rec := range groups[date] {
			entries = append(entries, rec.Entries()...)
		}
	}
	return entries
}

// Run submits every entry derived from the records, oldest date first, and
// returns the batch report. A failed entry is recorded and skipped; only
// context cancellation stops the batch early. The last entry of the whole
// batch commits with New, everything before it with Add.
func (s *Scheduler) Run(ctx context.Context, records []staging.StagingRecord) (*BatchReport, error) {
	report := newBatchReport(s.mode)
	defer func() { report.FinishedAt = time.Now() }()

	dates, groups := GroupByDate(records)
	entries := flatten(dates, groups)

	s.logger.Info("batch starting",
		zap.String("batch_id", report.BatchID),
		zap.String("mode", string(s.mode)),
		zap.Int("records", len(records)),
		zap.Int("entries", len(entries)),
		zap.Int("dates", len(dates)))

	for i, entry := range entries {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Warn("batch cancelled",
				zap.Int("submitted", i),
				zap.Int("remaining", len(entries)-i))
			return report, err
		}

		last := i == len(entries)-1
		committed := "add"
		if last {
			committed = "new"
		}

		err := s.submitter.Submit(ctx, entry, last)
		report.record(entry, committed, err)
		if err != nil {
			s.logger.Error("entry failed",
				zap.String("record", entry.ID),
				zap.String("employee", entry.EmployeeName),
				zap.String("type", string(entry.Type)),
				zap.Error(err))
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
		}
	}

	s.logger.Info("batch finished",
		zap.String("batch_id", report.BatchID),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Float64("success_rate", report.SuccessRate()))
	return report, nil
}
