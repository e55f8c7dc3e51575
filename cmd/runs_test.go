package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/clinic-intel/internal/model"
)

func TestFormatRunsList_Totals(t *testing.T) {
	started := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{ID: "a", Stage: "collect:google_places", Status: model.RunStatusCompleted,
			Counts: model.RunCounts{Found: 10, New: 4, Updated: 6}, StartedAt: started},
		{ID: "b", Stage: "collect:yelp", Status: model.RunStatusCompleted,
			Counts: model.RunCounts{Found: 7, New: 2, Updated: 5, Failed: 1}, StartedAt: started},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	out := buf.String()
	assert.Contains(t, out, "collect:google_places")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "17", "found summed across both runs")
}

func TestFormatRunsList_SingleRunHasNoTotals(t *testing.T) {
	runs := []model.Run{
		{ID: "a", Stage: "resolve", Status: model.RunStatusCompleted,
			Counts: model.RunCounts{Found: 3}, StartedAt: time.Now()},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	assert.NotContains(t, buf.String(), "TOTAL")
}
