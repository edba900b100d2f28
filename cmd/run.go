// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Attta-pangestu/venus-autofill/internal/browser"
	"github.com/Attta-pangestu/venus-autofill/internal/config"
	"github.com/Attta-pangestu/venus-autofill/internal/crosscheck"
	"github.com/Attta-pangestu/venus-autofill/internal/form"
	"github.com/Attta-pangestu/venus-autofill/internal/observability"
	"github.com/Attta-pangestu/venus-autofill/internal/register"
	"github.com/Attta-pangestu/venus-autofill/internal/staging"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var outputPath string
	var skipCrosscheck bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Submit all staged attendance records to the task register",
		Long: `Fetches staged attendance records, drives a browser session through the
Millware task register form to submit them oldest date first, and verifies
the booked hours against the transaction database afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runBatch(ctx, cfg, outputPath, skipCrosscheck)
		},
	}

	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the batch report to this file instead of stdout.")
	runCmd.Flags().BoolVar(&skipCrosscheck, "skip-crosscheck", false, "Skip post-batch validation against the transaction database.")

	return runCmd
}

// runBatch contains the core logic for a full submission run.
func runBatch(ctx context.Context, cfg *config.Config, outputPath string, skipCrosscheck bool) error {
	logger := observability.GetLogger()

	source, cleanup, err := newStagingSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing staging source: %w", err)
	}
	defer cleanup()

	records, err := source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching staged records: %w", err)
	}
	if len(records) == 0 {
		logger.Info("nothing staged, batch skipped")
		return nil
	}

	session, err := browser.NewRegistry().Acquire(cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing browser session: %w", err)
	}
	if err := session.NavigateToTaskRegister(ctx); err != nil {
		return fmt.Errorf("reaching task register form: %w", err)
	}

	driver := form.NewDriver(session, cfg, logger)
	mapper := register.NewMapper(driver, cfg.Automation.Mode, logger)
	recoverer := browser.NewRecoverer(session, logger)
	submitter := register.NewRecoveringSubmitter(mapper, func(ctx context.Context) error {
		_, err := recoverer.Recover(ctx)
		return err
	}, logger)
	scheduler := register.NewScheduler(submitter, cfg, logger)

	// The batch and the session keepalive run side by side; the keepalive
	// winds down when the batch finishes.
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(batchCtx)

	var report *register.BatchReport
	g.Go(func() error {
		defer cancel()
		var runErr error
		report, runErr = scheduler.Run(gctx, records)
		return runErr
	})
	g.Go(func() error {
		if err := session.Keepalive(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		// The partial report is still worth emitting.
		if report != nil {
			_ = writeBatchReport(report, outputPath)
		}
		return fmt.Errorf("batch aborted: %w", err)
	}

	if err := writeBatchReport(report, outputPath); err != nil {
		return err
	}

	if skipCrosscheck || !cfg.Crosscheck.Enabled {
		return nil
	}
	return runCrosscheck(ctx, cfg, report)
}

// newStagingSource builds the configured staging source: the grouped API when
// an endpoint is set, otherwise a direct database connection.
func newStagingSource(ctx context.Context, cfg *config.Config) (staging.Source, func(), error) {
	if cfg.Staging.APIURL != "" {
		return staging.NewAPIClient(cfg.Staging.APIURL, cfg.Staging.Timeout), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Staging.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to staging database: %w", err)
	}
	source, err := staging.NewDBSource(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return source, pool.Close, nil
}

// runCrosscheck validates the booked hours for the entries the batch actually
// committed. Failed entries never reached the transaction table, so they are
// excluded rather than reported as divergent bookings.
func runCrosscheck(ctx context.Context, cfg *config.Config, report *register.BatchReport) error {
	logger := observability.GetLogger()

	expected, err := crosscheck.BuildExpectationsFromReport(report, cfg.Crosscheck.EmployeePrefix)
	if err != nil {
		return fmt.Errorf("building crosscheck expectations: %w", err)
	}
	if len(expected) == 0 {
		logger.Info("no committed entries to crosscheck")
		return nil
	}

	pool, err := pgxpool.New(ctx, cfg.Crosscheck.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to transaction database: %w", err)
	}
	defer pool.Close()

	validator, err := crosscheck.NewValidator(ctx, pool, cfg.Crosscheck, logger)
	if err != nil {
		return err
	}

	// Partial postbacks commit asynchronously server-side; give the last
	// entry a moment to land before reading the table.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(cfg.Automation.SettleTime):
	}

	result, err := validator.Validate(ctx, expected)
	if err != nil {
		return fmt.Errorf("crosscheck failed: %w", err)
	}
	if result.Matched < len(result.Items) {
		logger.Warn("crosscheck found divergent bookings",
			zap.Int("divergent", len(result.Items)-result.Matched),
			zap.Int("checked", len(result.Items)))
	}
	return nil
}

// writeBatchReport emits the report as pretty JSON, to a file or stdout.
func writeBatchReport(report *register.BatchReport, outputPath string) error {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing batch report: %w", err)
	}
	if outputPath == "" {
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	}
	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		return fmt.Errorf("writing batch report: %w", err)
	}
	observability.GetLogger().Info("batch report written", zap.String("path", outputPath))
	return nil
}
