// File: internal/staging/source.go
package staging

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Attta-pangestu/venus-autofill/internal/observability"
)

// DBPool abstracts the pgxpool.Pool query surface so the source can be
// exercised against pgxmock in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// DBSource reads staged attendance rows directly from the relational staging
// store, one flat row per employee-day.
type DBSource struct {
	pool   DBPool
	logger *zap.Logger
}

// NewDBSource creates a source backed by the staging database and verifies
// the connection.
func NewDBSource(ctx context.Context, pool DBPool) (*DBSource, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging staging database: %w", err)
	}
	return &DBSource{
		pool:   pool,
		logger: observability.GetLogger().Named("staging.db"),
	}, nil
}

const stagedQuery = `
SELECT id, employee_id, employee_id_ptrj, employee_name, date,
       shift, check_in, check_out, regular_hours, overtime_hours,
       raw_charge_job, status
FROM staging_attendance
WHERE status = $1
ORDER BY date, employee_name`

// Fetch loads every record still in the staged state, oldest date first.
// Malformed rows are logged and skipped; a failed scan of the result set is
// fatal because it usually means the schema drifted.
func (s *DBSource) Fetch(ctx context.Context) ([]StagingRecord, error) {
	rows, err := s.pool.Query(ctx, stagedQuery, StatusStaged)
	if err != nil {
		return nil, fmt.Errorf("querying staged records: %w", err)
	}
	defer rows.Close()

	var records []StagingRecord
	for rows.Next() {
		var (
			id, employeeID, ptrjID, name   string
			date, shift, checkIn, checkOut string
			regular, overtime              float64
			rawChargeJob, status           string
		)
		if err := rows.Scan(&id, &employeeID, &ptrjID, &name, &date,
			&shift, &checkIn, &checkOut, &regular, &overtime,
			&rawChargeJob, &status); err != nil {
			return nil, fmt.Errorf("scanning staged record: %w", err)
		}

		rec, err := NewRecord(id, employeeID, ptrjID, name, date,
			shift, checkIn, checkOut, regular, overtime, rawChargeJob, status)
		if err != nil {
			s.logger.Warn("skipping malformed staging row", zap.String("id", id), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating staged records: %w", err)
	}

	s.logger.Info("staged records loaded", zap.Int("count", len(records)))
	return records, nil
}
