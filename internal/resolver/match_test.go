package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Clinic A Inc.", "clinic a"},
		{"CLINIC A", "clinic a"},
		{"Müller Family Practice, LLC", "muller family practice"},
		{"Wicker Park Walk-In Clinic", "wicker park walk-in clinic"},
		{"  ", ""},
		{"Inc. LLC Ltd", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), "input %q", tt.in)
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("Clinic A", "Clinic A Inc."), 0.001)
	assert.InDelta(t, 1.0, Similarity("Lakeview Urgent Care", "LAKEVIEW URGENT CARE"), 0.001)
	assert.InDelta(t, 0.5, Similarity("Lakeview Urgent Care", "Lakeview Urgent Dental"), 0.001)
	assert.Zero(t, Similarity("Clinic A", ""))
	assert.Zero(t, Similarity("Alpha Dental", "Omega Pediatrics"))
}

func TestHaversineKM(t *testing.T) {
	// Chicago Loop to O'Hare, roughly 24.8 km.
	d := HaversineKM(41.8781, -87.6298, 41.9742, -87.9073)
	assert.InDelta(t, 24.8, d, 0.5)

	assert.Zero(t, HaversineKM(41.9, -87.6, 41.9, -87.6))

	// Two points ~120m apart.
	short := HaversineKM(41.90000, -87.60000, 41.90108, -87.60000)
	assert.InDelta(t, 0.12, short, 0.005)
}
