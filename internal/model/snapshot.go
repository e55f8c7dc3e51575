package model

import "time"

// VisibilitySnapshot is one clinic's dated visibility score: four bounded
// sub-scores, the weighted composite, and the clinic's rank within its
// region and across the whole dataset. One snapshot per (clinic, date);
// re-scoring a date replaces the snapshot atomically.
type VisibilitySnapshot struct {
	ClinicID     int64     `json:"clinic_id"`
	CalcDate     time.Time `json:"calc_date"`
	RatingScore  float64   `json:"rating_score"`
	VolumeScore  float64   `json:"volume_score"`
	RecencyScore float64   `json:"recency_score"`
	GeoScore     float64   `json:"geo_score"`
	Composite    float64   `json:"composite"`
	LocalRank    int       `json:"local_rank"`
	GlobalRank   int       `json:"global_rank"`
}

// TrendDirection classifies week-over-week movement of search interest.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendStable     TrendDirection = "stable"
	TrendDecreasing TrendDirection = "decreasing"
)

// MarketSnapshot holds the dated demand/competition/opportunity metrics for
// one (region, category) pair. One snapshot per (region, category, date).
type MarketSnapshot struct {
	Region      string         `json:"region"`
	Category    string         `json:"category"`
	CalcDate    time.Time      `json:"calc_date"`
	DemandIndex float64        `json:"demand_index"`
	Trend       TrendDirection `json:"trend"`
	ClinicCount int            `json:"clinic_count"`
	AvgRating   float64        `json:"avg_rating"`
	Top3Share   float64        `json:"top3_share"`
	Opportunity float64        `json:"opportunity"`
}
