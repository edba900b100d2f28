// File: cmd/crosscheck.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/Attta-pangestu/venus-autofill/internal/crosscheck"
	"github.com/Attta-pangestu/venus-autofill/internal/observability"
	"github.com/Attta-pangestu/venus-autofill/internal/register"
	"github.com/Attta-pangestu/venus-autofill/internal/staging"
)

func init() {
	rootCmd.AddCommand(newCrosscheckCmd())
}

// newCrosscheckCmd creates the standalone `crosscheck` command, which
// validates bookings against the transaction database without submitting
// anything: either a previously recorded batch report, or (without a report)
// whatever is currently staged.
func newCrosscheckCmd() *cobra.Command {
	var reportPath string

	crosscheckCmd := &cobra.Command{
		Use:   "crosscheck",
		Short: "Validate a batch report or the staged records against the transaction database",
		Long: `Builds the expected per-employee hour sums and compares them with what the
transaction table currently holds. With --report, the expectations come from
a recorded batch report and cover only the entries that committed; without
it, they are rebuilt from the staged records. Useful after a batch whose
report was lost, or to verify a batch submitted manually.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Crosscheck.DatabaseURL == "" {
				return fmt.Errorf("crosscheck.database_url must be set")
			}
			if reportPath == "" && cfg.Staging.APIURL == "" && cfg.Staging.DatabaseURL == "" {
				return fmt.Errorf("either --report or a staging source must be configured")
			}
			return runStandaloneCrosscheck(ctx, reportPath)
		},
	}

	crosscheckCmd.Flags().StringVarP(&reportPath, "report", "r", "", "Batch report file to validate instead of the staged records.")
	return crosscheckCmd
}

func runStandaloneCrosscheck(ctx context.Context, reportPath string) error {
	logger := observability.GetLogger()

	expected, err := buildExpectations(ctx, reportPath)
	if err != nil {
		return err
	}
	if len(expected) == 0 {
		logger.Info("nothing to check")
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

	report, err := validator.Validate(ctx, expected)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing crosscheck report: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))

	if report.Matched < len(report.Items) {
		return fmt.Errorf("%d of %d bookings diverge from the staged data",
			len(report.Items)-report.Matched, len(report.Items))
	}
	return nil
}

// buildExpectations produces the expectations from the report file when one
// is given, otherwise from the staged records.
func buildExpectations(ctx context.Context, reportPath string) ([]crosscheck.Expected, error) {
	if reportPath != "" {
		data, err := os.ReadFile(reportPath)
		if err != nil {
			return nil, fmt.Errorf("reading batch report: %w", err)
		}
		var batch register.BatchReport
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("parsing batch report: %w", err)
		}
		return crosscheck.BuildExpectationsFromReport(&batch, cfg.Crosscheck.EmployeePrefix)
	}

	source, cleanup, err := newStagingSource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing staging source: %w", err)
	}
	defer cleanup()

	records, err := source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching staged records: %w", err)
	}

	var entries []staging.TransactionEntry
	for _, rec := range records {
		entries = append(entries, rec.Entries()...)
	}
	return crosscheck.BuildExpectations(entries, cfg.Automation.Mode, cfg.Crosscheck.EmployeePrefix), nil
}
