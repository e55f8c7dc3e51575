package resolver

import (
	"fmt"
	"math"
	"time"

	"github.com/sells-group/clinic-intel/internal/model"
)

// merge folds one source record into the canonical clinic under the
// field trust matrix. Returned flags are conflicts that were outside
// tolerance and left the stored value untouched.
func (r *Resolver) merge(c *model.Clinic, rec model.SourceRecord, now time.Time) []model.ResolutionFlag {
	r.applyField(c, "name", &c.Name, rec.Name, rec.Source)
	r.applyField(c, "address", &c.Address, rec.Address, rec.Source)
	r.applyField(c, "address", &c.City, rec.City, rec.Source)
	r.applyField(c, "address", &c.State, rec.State, rec.Source)
	r.applyField(c, "address", &c.PostalCode, rec.PostalCode, rec.Source)
	r.applyField(c, "phone", &c.Phone, rec.Phone, rec.Source)
	r.applyField(c, "website", &c.Website, rec.Website, rec.Source)
	r.applyField(c, "category", &c.Category, rec.Category, rec.Source)

	flags := r.mergeCoords(c, rec)

	c.LastMergedAt = now
	c.MissedRuns = 0
	return flags
}

// applyField writes incoming when the stored value is empty, or when the
// source is the top-ranked writer for the field. Sources absent from the
// field's trust list never write it.
func (r *Resolver) applyField(c *model.Clinic, field string, current *string, incoming, source string) {
	if incoming == "" || incoming == *current {
		return
	}
	rank, ok := r.trust.Rank(field, source)
	if !ok {
		return
	}
	if *current == "" || rank == 0 {
		*current = incoming
	}
}

func (r *Resolver) mergeCoords(c *model.Clinic, rec model.SourceRecord) []model.ResolutionFlag {
	if rec.Latitude == nil || rec.Longitude == nil {
		return nil
	}
	rank, ok := r.trust.Rank("coords", rec.Source)
	if !ok {
		return nil
	}

	if c.Latitude == nil || c.Longitude == nil {
		c.Latitude, c.Longitude = rec.Latitude, rec.Longitude
		c.CoordSource = rec.Source
		return nil
	}

	existingRank := math.MaxInt
	if got, ok := r.trust.Rank("coords", c.CoordSource); ok {
		existingRank = got
	}

	dist := HaversineKM(*c.Latitude, *c.Longitude, *rec.Latitude, *rec.Longitude)
	if rank < existingRank {
		c.Latitude, c.Longitude = rec.Latitude, rec.Longitude
		c.CoordSource = rec.Source
		return nil
	}

	if dist > r.cfg.CoordToleranceKM {
		return []model.ResolutionFlag{{
			ClinicID:   c.ID,
			Source:     rec.Source,
			Field:      "coords",
			Existing:   formatCoords(*c.Latitude, *c.Longitude),
			Incoming:   formatCoords(*rec.Latitude, *rec.Longitude),
			DistanceKM: dist,
		}}
	}
	return nil
}

func formatCoords(lat, lng float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lng)
}
