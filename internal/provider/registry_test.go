package provider

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/clinic-intel/internal/config"
)

func rosterWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Roster")
	require.NoError(t, err)

	header := []string{"License", "Name", "Address", "City", "State", "Zip", "Phone", "Type", "Status"}
	for _, cells := range append([][]string{header}, rows...) {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func newTestRegistry(t *testing.T, rows [][]string) *RegistrySource {
	t.Helper()

	src := NewRegistrySource(config.RegistryConfig{Sheet: "Roster"})
	data := rosterWorkbook(t, rows)
	src.download = func(context.Context) ([]byte, error) { return data, nil }
	src.now = func() time.Time { return time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC) }
	return src
}

func TestRegistryFetch_FiltersByCategoryAndStatus(t *testing.T) {
	src := newTestRegistry(t, [][]string{
		{"LIC-001", "Near North Urgent Care", "500 W Division St", "Chicago", "IL", "60610", "(312) 555-0160", "URGENT CARE CENTER", "ACTIVE"},
		{"LIC-002", "Closed Urgent Care", "1 S State St", "Chicago", "IL", "60603", "", "URGENT CARE CENTER", "EXPIRED"},
		{"LIC-003", "South Loop Dental", "1200 S Michigan Ave", "Chicago", "IL", "60605", "", "DENTAL CLINIC", "ACTIVE"},
		{"LIC-004", "Mystery Facility", "2 N Wacker Dr", "Chicago", "IL", "60606", "", "HOSPITAL", "ACTIVE"},
	})

	records, err := src.Fetch(context.Background(), Query{Category: "urgent_care", Keyword: "ignored"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, SourceRegistry, rec.Source)
	assert.Equal(t, "LIC-001", rec.SourceID)
	assert.Equal(t, "Near North Urgent Care", rec.Name)
	assert.Equal(t, "60610", rec.PostalCode)
	assert.Equal(t, "urgent_care", rec.Category)
	assert.Nil(t, rec.Rating, "roster carries no ratings")
	assert.Nil(t, rec.Latitude, "roster carries no coordinates")
}

func TestRegistryFetch_DownloadsOnce(t *testing.T) {
	src := NewRegistrySource(config.RegistryConfig{Sheet: "Roster"})
	data := rosterWorkbook(t, [][]string{
		{"LIC-010", "Pilsen Family Clinic", "1800 S Blue Island Ave", "Chicago", "IL", "60608", "", "GENERAL PRACTICE CLINIC", "ACTIVE"},
	})

	calls := 0
	src.download = func(context.Context) ([]byte, error) {
		calls++
		return data, nil
	}

	for _, cat := range []string{"primary_care", "dental", "primary_care"} {
		_, err := src.Fetch(context.Background(), Query{Category: cat})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, calls)
}

func TestRegistryFetch_MissingSheet(t *testing.T) {
	src := NewRegistrySource(config.RegistryConfig{Sheet: "Nope"})
	data := rosterWorkbook(t, nil)
	src.download = func(context.Context) ([]byte, error) { return data, nil }

	_, err := src.Fetch(context.Background(), Query{Category: "dental"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheet")
}

func TestRegistryFetch_SkipsShortAndBlankRows(t *testing.T) {
	src := newTestRegistry(t, [][]string{
		{"LIC-020", "Short Row"},
		{"", "No License", "1 Main St", "Chicago", "IL", "60601", "", "DENTAL CLINIC", "ACTIVE"},
		{"LIC-021", "Logan Square Dental", "2500 N Milwaukee Ave", "Chicago", "IL", "60647", "", "DENTAL CLINIC", "Active"},
	})

	records, err := src.Fetch(context.Background(), Query{Category: "dental"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "LIC-021", records[0].SourceID)
}
