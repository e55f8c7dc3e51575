// Package provider adapts upstream listing and signal APIs to the
// collector framework. Each adapter maps its upstream's payload to the
// common record shape and classifies failures as transient or fatal so
// the retry layer knows what to do with them.
package provider

import (
	"context"

	"github.com/sells-group/clinic-intel/internal/model"
	"github.com/sells-group/clinic-intel/internal/resilience"
)

// Well-known source names. These appear in the clinic_sources mapping
// table and in the field trust matrix, so they are stable identifiers.
const (
	SourceGooglePlaces = "google_places"
	SourceYelp         = "yelp"
	SourceRegistry     = "registry"
	SourceTrends       = "trends"
)

// Query identifies one search: a clinic category and one of the
// keywords configured for it.
type Query struct {
	Category string
	Keyword  string
}

// Source produces raw listing records from one upstream.
type Source interface {
	Name() string

	// Check probes connectivity before a run starts. A failed check
	// fails the whole collection run for this source.
	Check(ctx context.Context) error

	Fetch(ctx context.Context, q Query) ([]model.SourceRecord, error)
}

// SignalSource produces demand-side interest signals.
type SignalSource interface {
	Name() string
	Check(ctx context.Context) error
	Fetch(ctx context.Context, q Query) ([]model.InterestSignal, error)
}

// transientStatus wraps err as transient when the upstream status code
// is worth retrying; other statuses stay fatal.
func transientStatus(err error, code int) error {
	if resilience.RetryableStatus(code) {
		return resilience.NewTransientError(err, code)
	}
	return err
}
