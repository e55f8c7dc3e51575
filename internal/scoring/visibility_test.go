package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightsValidate(t *testing.T) {
	good := Weights{Rating: 0.30, Volume: 0.30, Recency: 0.25, Geo: 0.15}
	assert.NoError(t, good.Validate())

	bad := Weights{Rating: 0.50, Volume: 0.30, Recency: 0.25, Geo: 0.15}
	assert.Error(t, bad.Validate())

	negative := Weights{Rating: 1.3, Volume: 0.30, Recency: -0.75, Geo: 0.15}
	assert.Error(t, negative.Validate())
}

func TestComposite(t *testing.T) {
	w := Weights{Rating: 0.30, Volume: 0.30, Recency: 0.25, Geo: 0.15}

	// 0.30*80 + 0.30*60 + 0.25*100 + 0.15*50 = 24 + 18 + 25 + 7.5
	assert.InDelta(t, 74.5, w.Composite(80, 60, 100, 50), 1e-9)

	assert.InDelta(t, 0, w.Composite(0, 0, 0, 0), 1e-9)
	assert.InDelta(t, 100, w.Composite(100, 100, 100, 100), 1e-9)
}

func TestCompositeBounded(t *testing.T) {
	weights := []Weights{
		{Rating: 0.30, Volume: 0.30, Recency: 0.25, Geo: 0.15},
		{Rating: 1, Volume: 0, Recency: 0, Geo: 0},
		{Rating: 0.25, Volume: 0.25, Recency: 0.25, Geo: 0.25},
	}
	subs := [][4]float64{
		{0, 0, 0, 0}, {100, 100, 100, 100}, {80, 60, 100, 50}, {1, 99, 50, 2},
	}

	for _, w := range weights {
		require.NoError(t, w.Validate())
		for _, s := range subs {
			got := w.Composite(s[0], s[1], s[2], s[3])
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 100.0)
		}
	}
}

func TestRatingScore(t *testing.T) {
	assert.InDelta(t, 0, RatingScore(0), 1e-9)
	assert.InDelta(t, 90, RatingScore(4.5), 1e-9)
	assert.InDelta(t, 100, RatingScore(5), 1e-9)
}

func TestVolumeScore(t *testing.T) {
	assert.Zero(t, VolumeScore(0, 500))

	// Saturates at the configured count and stays flat above it.
	assert.InDelta(t, 100, VolumeScore(500, 500), 1e-9)
	assert.InDelta(t, 100, VolumeScore(5000, 500), 1e-9)

	// Logarithmic: the first hundred reviews are worth far more than
	// the fourth hundred.
	low := VolumeScore(100, 500)
	high := VolumeScore(400, 500)
	assert.Greater(t, low, 70.0)
	assert.Less(t, high-low, low)
	assert.Greater(t, high, low)
}

func TestRecencyScore(t *testing.T) {
	now := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	assert.Zero(t, RecencyScore(nil, now, 90))

	fresh := now
	assert.InDelta(t, 100, RecencyScore(&fresh, now, 90), 1e-9)

	halfLife := now.AddDate(0, 0, -90)
	assert.InDelta(t, 50, RecencyScore(&halfLife, now, 90), 0.01)

	twoHalfLives := now.AddDate(0, 0, -180)
	assert.InDelta(t, 25, RecencyScore(&twoHalfLives, now, 90), 0.01)

	future := now.Add(time.Hour)
	assert.InDelta(t, 100, RecencyScore(&future, now, 90), 1e-9)
}

func TestGeoScore(t *testing.T) {
	assert.InDelta(t, 100, GeoScore(0), 1e-9)
	assert.InDelta(t, 80, GeoScore(3), 1e-9)
	assert.InDelta(t, 60, GeoScore(7), 1e-9)
	assert.InDelta(t, 40, GeoScore(15), 1e-9)
	assert.InDelta(t, 20, GeoScore(40), 1e-9)
}
