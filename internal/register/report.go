// File: internal/register/report.go
package register

import (
	"time"

	"github.com/google/uuid"

	"github.com/Attta-pangestu/venus-autofill/internal/config"
	"github.com/Attta-pangestu/venus-autofill/internal/staging"
)

// EntryResult records the outcome of one submitted transaction entry.
type EntryResult struct {
	RecordID     string                  `json:"record_id"`
	EmployeeName string                  `json:"employee_name"`
	EmployeePTRJ string                  `json:"employee_ptrj"`
	Date         string                  `json:"date"`
	Type         staging.TransactionType `json:"type"`
	Hours        float64                 `json:"hours"`
	Committed    string                  `json:"committed"` // "add" or "new"
	Error        string                  `json:"error,omitempty"`
}

// BatchReport summarizes one scheduler run.
type BatchReport struct {
	BatchID    string        `json:"batch_id"`
	Mode       config.Mode   `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Total      int           `json:"total"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Results    []EntryResult `json:"results"`
}

func newBatchReport(mode config.Mode) *BatchReport {
	return &BatchReport{
		BatchID:   uuid.NewString(),
		Mode:      mode,
		StartedAt: time.Now(),
	}
}

func (r *BatchReport) record(entry staging.TransactionEntry, committed string, err error) {
	result := EntryResult{
		RecordID:     entry.ID,
		EmployeeName: entry.EmployeeName,
		EmployeePTRJ: entry.EmployeePTRJID,
		Date:         staging.QueryDate(entry.Date),
		Type:         entry.Type,
		Hours:        SubmissionHours(entry),
		Committed:    committed,
	}
	r.Total++
	if err != nil {
		result.Error = err.Error()
		r.Failed++
	} else {
		r.Succeeded++
	}
	r.Results = append(r.Results, result)
}

// SuccessRate reports the fraction of entries committed, 0 for an empty run.
func (r *BatchReport) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(r.Total)
}
