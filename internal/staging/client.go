// File: internal/staging/client.go
package staging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/Attta-pangestu/venus-autofill/internal/observability"
)

// Source is anything that can produce the staged attendance records for a run.
type Source interface {
	Fetch(ctx context.Context) ([]StagingRecord, error)
}

// apiEnvelope mirrors the grouped shape of the staging API: one element per
// employee, identity fields hoisted out of the per-day rows.
type apiEnvelope struct {
	Data []apiEmployeeGroup `json:"data"`
}

type apiEmployeeGroup struct {
	Identitas    apiIdentity   `json:"identitas_karyawan"`
	DataPresensi []apiPresensi `json:"data_presensi"`
}

type apiIdentity struct {
	EmployeeName    string `json:"employee_name"`
	EmployeeIDVenus string `json:"employee_id_venus"`
	EmployeeIDPTRJ  string `json:"employee_id_ptrj"`
	TaskCode        string `json:"task_code"`
	StationCode     string `json:"station_code"`
	MachineCode     string `json:"machine_code"`
	ExpenseCode     string `json:"expense_code"`
	RawChargeJob    string `json:"raw_charge_job"`
}

type apiPresensi struct {
	ID            string  `json:"id"`
	Date          string  `json:"date"`
	Shift         string  `json:"shift"`
	CheckIn       string  `json:"check_in"`
	CheckOut      string  `json:"check_out"`
	RegularHours  float64 `json:"regular_hours"`
	OvertimeHours float64 `json:"overtime_hours"`
	TotalHours    float64 `json:"total_hours"`
	Status        string  `json:"status"`
}

// APIClient fetches staged attendance from the grouped JSON endpoint and
// flattens it into one StagingRecord per employee-day.
type APIClient struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewAPIClient creates a client for the grouped staging endpoint.
func NewAPIClient(url string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: observability.GetLogger().Named("staging.api"),
	}
}

// Fetch retrieves and flattens the staged records. Individual malformed rows
// are logged and skipped rather than failing the whole batch; an unreadable
// response is fatal.
func (c *APIClient) Fetch(ctx context.Context) ([]StagingRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building staging request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching staging data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("staging API returned %d: %s", resp.StatusCode, string(body))
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding staging response: %w", err)
	}

	return c.flatten(envelope), nil
}

func (c *APIClient) flatten(envelope apiEnvelope) []StagingRecord {
	var records []StagingRecord
	for _, group := range envelope.Data {
		id := group.Identitas
		for _, day := range group.DataPresensi {
			rec, err := NewRecord(day.ID, id.EmployeeIDVenus, id.EmployeeIDPTRJ, id.EmployeeName,
				day.Date, day.Shift, day.CheckIn, day.CheckOut,
				day.RegularHours, day.OvertimeHours, id.RawChargeJob, day.Status)
			if err != nil {
				c.logger.Warn("skipping malformed staging row",
					zap.String("employee", id.EmployeeName),
					zap.Error(err))
				continue
			}
			if rec.Status != StatusStaged {
				continue
			}
			records = append(records, rec)
		}
	}
	c.logger.Info("staging data fetched",
		zap.Int("employees", len(envelope.Data)),
		zap.Int("records", len(records)))
	return records
}
