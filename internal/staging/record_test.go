// File: internal/staging/record_test.go
package staging

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord(t *testing.T, regular, overtime float64) StagingRecord {
	t.Helper()
	rec, err := NewRecord("42", "EMP-007", "00123", "BUDI SANTOSO", "2025-08-14",
		"1", "07:00", "16:00", regular, overtime,
		"(OC7240) LAB / STN-LAB (LABORATORY) / LAB00000 (LABOUR COST) / L (LABOUR)", "staged")
	require.NoError(t, err)
	return rec
}

func TestNewRecordValidation(t *testing.T) {
	t.Run("rejects missing employee name", func(t *testing.T) {
		_, err := NewRecord("1", "", "", "  ", "2025-08-14", "", "", "", 7, 0, "", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "employee name")
	})

	t.Run("rejects negative hours", func(t *testing.T) {
		_, err := NewRecord("1", "", "", "BUDI", "2025-08-14", "", "", "", -1, 0, "", "")
		assert.Error(t, err)

		_, err = NewRecord("1", "", "", "BUDI", "2025-08-14", "", "", "", 7, -0.5, "", "")
		assert.Error(t, err)
	})

	t.Run("rejects malformed date", func(t *testing.T) {
		_, err := NewRecord("1", "", "", "BUDI", "next tuesday", "", "", "", 7, 0, "", "")
		assert.Error(t, err)
	})

	t.Run("defaults status to staged", func(t *testing.T) {
		rec, err := NewRecord("1", "", "", "BUDI", "2025-08-14", "", "", "", 7, 0, "", "")
		require.NoError(t, err)
		assert.Equal(t, StatusStaged, rec.Status)
	})

	t.Run("zero hours are valid", func(t *testing.T) {
		_, err := NewRecord("1", "", "", "BUDI", "2025-08-14", "", "", "", 0, 0, "", "")
		assert.NoError(t, err)
	})
}

func TestEntriesSplitsRegularAndOvertime(t *testing.T) {
	rec := validRecord(t, 7.0, 2.0)
	entries := rec.Entries()

	require.Len(t, entries, 2)
	assert.Equal(t, TypeNormal, entries[0].Type)
	assert.Equal(t, 7.0, entries[0].Hours)
	assert.Equal(t, TypeOvertime, entries[1].Type)
	assert.Equal(t, 2.0, entries[1].Hours)

	// Both entries carry the same identity, date and charge job.
	assert.Empty(t, cmp.Diff(entries[0].StagingRecord, entries[1].StagingRecord))
}

func TestEntriesRegularOnly(t *testing.T) {
	entries := validRecord(t, 8.0, 0).Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, TypeNormal, entries[0].Type)
	assert.Equal(t, 8.0, entries[0].Hours)
}

func TestEntriesOvertimeOnly(t *testing.T) {
	entries := validRecord(t, 0, 3.0).Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, TypeOvertime, entries[0].Type)
	assert.Equal(t, 3.0, entries[0].Hours)
}

func TestEntriesZeroHoursStillProducesOne(t *testing.T) {
	entries := validRecord(t, 0, 0).Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, TypeNormal, entries[0].Type)
	assert.Equal(t, 0.0, entries[0].Hours)
}

func TestParseChargeJob(t *testing.T) {
	raw := "(OC7240) LAB / STN-LAB (LABORATORY) / LAB00000 (LABOUR COST) / L (LABOUR)"
	want := []string{
		"(OC7240) LAB",
		"STN-LAB (LABORATORY)",
		"LAB00000 (LABOUR COST)",
		"L (LABOUR)",
	}
	assert.Equal(t, want, ParseChargeJob(raw))
}

func TestParseChargeJobDropsEmptyComponents(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, ParseChargeJob(" A //  B / "))
	assert.Nil(t, ParseChargeJob(""))
	assert.Nil(t, ParseChargeJob(" / / "))
}
