// File: internal/staging/record.go
package staging

import (
	"fmt"
	"strings"
	"time"
)

// Status values a staging record moves through. This system only ever reads
// records in StatusStaged; the transition to StatusTransferred happens
// upstream after a successful submission is reported back.
const (
	StatusStaged      = "staged"
	StatusTransferred = "transferred"
)

// TransactionType distinguishes the two radio-button variants on the task
// register form.
type TransactionType string

const (
	TypeNormal   TransactionType = "Normal"
	TypeOvertime TransactionType = "Overtime"
)

// StagingRecord is one attendance day for one employee, as staged by the
// upstream ingestion pipeline. It is read-only to this system.
type StagingRecord struct {
	ID             string
	EmployeeID     string // internal (Venus) identifier
	EmployeePTRJID string // external ERP identifier, submitted with a prefix
	EmployeeName   string
	Date           time.Time // calendar date of attendance, midnight local
	Shift          string
	CheckIn        string
	CheckOut       string
	RegularHours   float64
	OvertimeHours  float64
	RawChargeJob   string
	Status         string
}

// NewRecord validates and constructs a StagingRecord from raw field values.
// Construction fails fast on malformed data so that nothing deeper in the
// pipeline has to guess at defaults.
func NewRecord(id, employeeID, ptrjID, name, date, shift, checkIn, checkOut string,
	regular, overtime float64, rawChargeJob, status string) (StagingRecord, error) {

	if strings.TrimSpace(name) == "" {
		return StagingRecord{}, fmt.Errorf("record %s: employee name is required", id)
	}
	if regular < 0 {
		return StagingRecord{}, fmt.Errorf("record %s: regular hours must not be negative, got %v", id, regular)
	}
	if overtime < 0 {
		return StagingRecord{}, fmt.Errorf("record %s: overtime hours must not be negative, got %v", id, overtime)
	}
	day, err := ParseDate(date)
	if err != nil {
		return StagingRecord{}, fmt.Errorf("record %s: %w", id, err)
	}
	if status == "" {
		status = StatusStaged
	}

	return StagingRecord{
		ID:             id,
		EmployeeID:     employeeID,
		EmployeePTRJID: ptrjID,
		EmployeeName:   strings.TrimSpace(name),
		Date:           day,
		Shift:          shift,
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		RegularHours:   regular,
		OvertimeHours:  overtime,
		RawChargeJob:   rawChargeJob,
		Status:         status,
	}, nil
}

// TransactionEntry is one form-submission unit derived from a StagingRecord.
// A record with both regular and overtime hours yields two entries sharing
// identity and charge job but differing in type and hours.
type TransactionEntry struct {
	StagingRecord
	Type  TransactionType
	Hours float64
}

// Entries expands a record into its transaction entries: one per non-zero
// hour bucket, regular first. A record with no hours at all still yields a
// single zero-hour Normal entry so that the attendance day is registered.
func (r StagingRecord) Entries() []TransactionEntry {
	var entries []TransactionEntry

	if r.RegularHours > 0 {
		entries = append(entries, TransactionEntry{StagingRecord: r, Type: TypeNormal, Hours: r.RegularHours})
	}
	if r.OvertimeHours > 0 {
		entries = append(entries, TransactionEntry{StagingRecord: r, Type: TypeOvertime, Hours: r.OvertimeHours})
	}
	if len(entries) == 0 {
		entries = append(entries, TransactionEntry{StagingRecord: r, Type: TypeNormal, Hours: 0})
	}
	return entries
}

// ParseChargeJob splits a raw charge-job string into its ordered components
// (task, station, machine, expense). Order is significant: the components map
// positionally onto the autocomplete fields that follow the employee field.
func ParseChargeJob(raw string) []string {
	var components []string
	for _, part := range strings.Split(raw, "/") {
		part = strings.TrimSpace(part)
		if part != "" {
			components = append(components, part)
		}
	}
	return components
}
