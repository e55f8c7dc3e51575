package model

import "time"

// SourceRecord is a raw, single-source observation prior to reconciliation.
// Records are immutable from the collector's point of view: a later fetch of
// the same (source, source_id) supersedes the stored row, with FetchedAt and
// the retained raw payload as the audit trail.
type SourceRecord struct {
	Source      string   `json:"source"`
	SourceID    string   `json:"source_id"`
	Name        string   `json:"name"`
	Address     string   `json:"address,omitempty"`
	City        string   `json:"city,omitempty"`
	State       string   `json:"state,omitempty"`
	PostalCode  string   `json:"postal_code,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Website     string   `json:"website,omitempty"`
	Category    string   `json:"category,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	RatingCount *int     `json:"rating_count,omitempty"`

	// LastSignalAt is the newest review/activity timestamp the source
	// exposes, when available. Feeds the recency sub-score.
	LastSignalAt *time.Time `json:"last_signal_at,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
	Raw       []byte    `json:"raw,omitempty"`
}

// InterestSignal is one day of search-interest data for a keyword within a
// service category, normalized by the provider to 0-100.
type InterestSignal struct {
	Keyword  string    `json:"keyword"`
	Category string    `json:"category"`
	Region   string    `json:"region"`
	Day      time.Time `json:"day"`
	Score    int       `json:"score"`
}
