package scoring

import (
	"math"
	"time"

	"github.com/rotisserie/eris"
)

// Weights are the visibility component weights. They must sum to 1.0;
// Validate runs at engine construction and fails fast otherwise.
type Weights struct {
	Rating  float64
	Volume  float64
	Recency float64
	Geo     float64
}

// Validate checks the weights sum to 1.0 within floating tolerance.
func (w Weights) Validate() error {
	sum := w.Rating + w.Volume + w.Recency + w.Geo
	if math.Abs(sum-1.0) > 1e-9 {
		return eris.Errorf("scoring: weights sum to %.6f, want 1.0", sum)
	}
	if w.Rating < 0 || w.Volume < 0 || w.Recency < 0 || w.Geo < 0 {
		return eris.New("scoring: weights must be non-negative")
	}
	return nil
}

// Composite folds the four sub-scores into the weighted visibility score.
func (w Weights) Composite(rating, volume, recency, geo float64) float64 {
	return w.Rating*rating + w.Volume*volume + w.Recency*recency + w.Geo*geo
}

// RatingScore maps a 5-star average onto 0-100. Unrated clinics score 0.
func RatingScore(avgRating float64) float64 {
	return clamp(avgRating / 5.0 * 100)
}

// VolumeScore maps total review count onto 0-100 with diminishing
// returns: logarithmic growth that reaches 100 at the saturation count
// and stays flat above it.
func VolumeScore(reviewCount, saturation int) float64 {
	if reviewCount <= 0 || saturation <= 0 {
		return 0
	}
	return clamp(math.Log1p(float64(reviewCount)) / math.Log1p(float64(saturation)) * 100)
}

// RecencyScore decays exponentially with the time between the clinic's
// newest review or signal and the calculation date, halving every
// halfLifeDays. A clinic with no observed signal at all scores 0.
func RecencyScore(lastSignalAt *time.Time, asOf time.Time, halfLifeDays int) float64 {
	if lastSignalAt == nil || halfLifeDays <= 0 {
		return 0
	}
	age := asOf.Sub(*lastSignalAt)
	if age <= 0 {
		return 100
	}
	days := age.Hours() / 24
	return clamp(100 * math.Pow(0.5, days/float64(halfLifeDays)))
}

// GeoScore rewards clinics in less crowded regions. Banded on the
// number of other active clinics sharing the region.
func GeoScore(competitorsInRegion int) float64 {
	switch {
	case competitorsInRegion <= 0:
		return 100
	case competitorsInRegion < 5:
		return 80
	case competitorsInRegion < 10:
		return 60
	case competitorsInRegion < 20:
		return 40
	default:
		return 20
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
