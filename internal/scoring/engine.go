// Package scoring turns the reconciled dataset into dated market
// intelligence: per-clinic visibility snapshots with dual rankings, and
// per-(region, category) demand, competition, and opportunity metrics.
// The engine is pure: it reads an in-memory dataset and returns the
// snapshots, so every number it produces is reproducible from its
// inputs.
package scoring

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/clinic-intel/internal/config"
	"github.com/sells-group/clinic-intel/internal/model"
)

// ClinicInput is one clinic's pre-aggregated signal view: the
// review-count-weighted average rating and total review volume across
// all of its sources.
type ClinicInput struct {
	ID           int64
	Region       string
	Category     string
	Rating       float64
	ReviewCount  int
	LastSignalAt *time.Time
}

// Dataset is everything one scoring pass reads.
type Dataset struct {
	Clinics  []ClinicInput
	Signals  []model.InterestSignal
	CalcDate time.Time
}

// Output is everything one scoring pass produces.
type Output struct {
	Visibility []model.VisibilitySnapshot
	Markets    []model.MarketSnapshot
}

// Engine computes scores under one configuration.
type Engine struct {
	cfg     config.ScoreConfig
	weights Weights
}

// NewEngine validates the configuration and returns an Engine.
func NewEngine(cfg config.ScoreConfig) (*Engine, error) {
	w := Weights{
		Rating:  cfg.RatingWeight,
		Volume:  cfg.VolumeWeight,
		Recency: cfg.RecencyWeight,
		Geo:     cfg.GeoWeight,
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, weights: w}, nil
}

// Score computes all snapshots for the dataset's calculation date.
func (e *Engine) Score(ds Dataset) Output {
	out := Output{
		Visibility: e.visibility(ds),
		Markets:    e.markets(ds),
	}

	zap.L().Info("scoring pass complete",
		zap.String("component", "scoring"),
		zap.Time("calc_date", ds.CalcDate),
		zap.Int("clinics", len(out.Visibility)),
		zap.Int("markets", len(out.Markets)))
	return out
}

func (e *Engine) visibility(ds Dataset) []model.VisibilitySnapshot {
	perRegion := map[string]int{}
	for _, c := range ds.Clinics {
		perRegion[c.Region]++
	}

	// Recency is measured from the calculation date, not the wall clock,
	// so re-scoring a date on the same dataset reproduces the same numbers.
	asOf := ds.CalcDate.UTC()
	snaps := make([]model.VisibilitySnapshot, 0, len(ds.Clinics))
	regions := make(map[int64]string, len(ds.Clinics))
	volumes := make(map[int64]int, len(ds.Clinics))

	for _, c := range ds.Clinics {
		snap := model.VisibilitySnapshot{
			ClinicID:     c.ID,
			CalcDate:     ds.CalcDate,
			RatingScore:  RatingScore(c.Rating),
			VolumeScore:  VolumeScore(c.ReviewCount, e.cfg.VolumeSaturation),
			RecencyScore: RecencyScore(c.LastSignalAt, asOf, e.cfg.RecencyHalfLifeDays),
			GeoScore:     GeoScore(perRegion[c.Region] - 1),
		}
		snap.Composite = e.weights.Composite(snap.RatingScore, snap.VolumeScore, snap.RecencyScore, snap.GeoScore)

		snaps = append(snaps, snap)
		regions[c.ID] = c.Region
		volumes[c.ID] = c.ReviewCount
	}

	AssignRanks(snaps, regions, volumes)
	return snaps
}

func (e *Engine) markets(ds Dataset) []model.MarketSnapshot {
	signalsByCategory := map[string][]model.InterestSignal{}
	for _, sig := range ds.Signals {
		signalsByCategory[sig.Category] = append(signalsByCategory[sig.Category], sig)
	}

	type key struct{ region, category string }
	clinicsByKey := map[key][]ClinicInput{}
	regionSet := map[string]bool{}
	categorySet := map[string]bool{}
	for _, c := range ds.Clinics {
		if c.Region == "" {
			continue
		}
		clinicsByKey[key{c.Region, c.Category}] = append(clinicsByKey[key{c.Region, c.Category}], c)
		regionSet[c.Region] = true
		categorySet[c.Category] = true
	}
	for category := range signalsByCategory {
		categorySet[category] = true
	}

	regions := sortedKeys(regionSet)
	categories := sortedKeys(categorySet)

	var out []model.MarketSnapshot
	for _, category := range categories {
		signals := signalsByCategory[category]
		demand := DemandIndex(signals, ds.CalcDate, e.cfg.DemandWindowDays)
		trend := ClassifyTrend(signals, e.cfg.TrendUpPct, e.cfg.TrendDownPct)

		for _, region := range regions {
			clinics := clinicsByKey[key{region, category}]
			if len(clinics) == 0 && demand == 0 {
				continue
			}

			ratingSum, rated := 0.0, 0
			counts := make([]int, 0, len(clinics))
			for _, c := range clinics {
				counts = append(counts, c.ReviewCount)
				if c.Rating > 0 {
					ratingSum += c.Rating
					rated++
				}
			}
			avgRating := 0.0
			if rated > 0 {
				avgRating = ratingSum / float64(rated)
			}

			out = append(out, model.MarketSnapshot{
				Region:      region,
				Category:    category,
				CalcDate:    ds.CalcDate,
				DemandIndex: demand,
				Trend:       trend,
				ClinicCount: len(clinics),
				AvgRating:   avgRating,
				Top3Share:   Top3Share(counts),
				Opportunity: Opportunity(demand, len(clinics), e.cfg.OpportunityScale),
			})
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
