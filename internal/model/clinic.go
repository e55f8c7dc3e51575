package model

import "time"

// Clinic is the canonical entity: one merged record per physical clinic,
// reconciled across all listing sources.
type Clinic struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	RegionCode string `json:"region_code,omitempty"`
	Category   string `json:"category,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Website    string `json:"website,omitempty"`

	// Latitude/Longitude are nil until some source supplies coordinates.
	// CoordSource records which source set them; lower-trust sources may
	// not move them afterwards (see resolver merge policy).
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	CoordSource string   `json:"coord_source,omitempty"`

	Active       bool      `json:"active"`
	MissedRuns   int       `json:"missed_runs"`
	LastMergedAt time.Time `json:"last_merged_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClinicSource links a clinic to its contribution from one source: the
// (source, source_id) mapping plus the per-source rating signals. At most
// one row per source per clinic; the pair (source, source_id) is unique
// across all clinics.
type ClinicSource struct {
	ClinicID    int64     `json:"clinic_id"`
	Source      string    `json:"source"`
	SourceID    string    `json:"source_id"`
	Rating      *float64  `json:"rating,omitempty"`
	RatingCount *int      `json:"rating_count,omitempty"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// Region is one stored boundary polygon, keyed by region code. The
// polygon is EWKB-encoded; internal/region decodes it for lookups.
type Region struct {
	Code    string `json:"code"`
	Name    string `json:"name,omitempty"`
	Polygon []byte `json:"-"`
}

// ResolutionFlag records a merge conflict that was outside tolerance and
// therefore not applied. Flags are append-only and reviewed by operators.
type ResolutionFlag struct {
	ID         int64     `json:"id"`
	ClinicID   int64     `json:"clinic_id"`
	Source     string    `json:"source"`
	Field      string    `json:"field"`
	Existing   string    `json:"existing"`
	Incoming   string    `json:"incoming"`
	DistanceKM float64   `json:"distance_km,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
