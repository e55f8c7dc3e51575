// Package resolver reconciles raw source records into canonical clinics.
// Matching is deterministic: candidates are scored by normalized name
// similarity gated on distance, the best score wins, and ties break
// toward the lowest clinic ID. The (source, source_id) mapping is the
// durable identity: once a listing is attached to a clinic it is never
// re-matched, and the mapping's uniqueness guards concurrent resolvers
// against attaching one listing to two clinics.
package resolver

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/clinic-intel/internal/config"
	"github.com/sells-group/clinic-intel/internal/model"
)

// Store is the persistence surface the resolver needs.
type Store interface {
	// ActiveClinics returns every active canonical clinic.
	ActiveClinics(ctx context.Context) ([]model.Clinic, error)

	// SourceMappings returns source_id -> clinic_id for one source.
	SourceMappings(ctx context.Context, source string) (map[string]int64, error)

	// CreateClinic inserts a new clinic and returns its ID.
	CreateClinic(ctx context.Context, c *model.Clinic) (int64, error)

	// UpdateClinic persists merged fields on an existing clinic.
	UpdateClinic(ctx context.Context, c model.Clinic) error

	// AttachSource upserts the (source, source_id) mapping and returns
	// the clinic the listing is attached to. When another resolver won
	// the race for this listing, the returned ID is the winner's and
	// differs from cs.ClinicID; clinic_id is never overwritten.
	AttachSource(ctx context.Context, cs model.ClinicSource) (int64, error)

	// InsertFlag appends a resolution conflict flag.
	InsertFlag(ctx context.Context, f model.ResolutionFlag) error

	// CloseRun resets missed_runs for the clinics seen this run,
	// increments it for active clinics that were not, and deactivates
	// those missing deactivateAfter consecutive runs. Returns how many
	// were deactivated.
	CloseRun(ctx context.Context, seen []int64, deactivateAfter int) (int64, error)
}

// Resolver reconciles source records into the clinics table.
type Resolver struct {
	store Store
	cfg   config.ResolveConfig
	trust config.TrustMatrix
	now   func() time.Time
}

// New creates a Resolver.
func New(store Store, cfg config.ResolveConfig, trust config.TrustMatrix) *Resolver {
	return &Resolver{store: store, cfg: cfg, trust: trust, now: time.Now}
}

// Resolve processes records in order, matching each to an existing
// clinic or creating a new one, then closes out presence bookkeeping.
// A record that fails to persist is counted and skipped; the pass
// continues with the rest.
func (r *Resolver) Resolve(ctx context.Context, records []model.SourceRecord) (model.RunCounts, error) {
	log := zap.L().With(zap.String("component", "resolver"))

	counts := model.RunCounts{Found: len(records)}

	clinics, err := r.store.ActiveClinics(ctx)
	if err != nil {
		return counts, eris.Wrap(err, "resolver: load clinics")
	}

	mappings := map[string]map[string]int64{}
	byID := make(map[int64]*model.Clinic, len(clinics))
	index := make([]*model.Clinic, 0, len(clinics))
	for i := range clinics {
		byID[clinics[i].ID] = &clinics[i]
		index = append(index, &clinics[i])
	}

	seen := map[int64]bool{}
	now := r.now().UTC()

	for _, rec := range records {
		if ctx.Err() != nil {
			return counts, eris.Wrap(ctx.Err(), "resolver: canceled")
		}

		srcMap, ok := mappings[rec.Source]
		if !ok {
			srcMap, err = r.store.SourceMappings(ctx, rec.Source)
			if err != nil {
				return counts, eris.Wrapf(err, "resolver: load mappings for %s", rec.Source)
			}
			mappings[rec.Source] = srcMap
		}

		clinicID, mapped := srcMap[rec.SourceID]
		if !mapped {
			if match := r.bestMatch(index, rec); match != nil {
				clinicID = match.ID
			}
		}

		isNew := false
		var clinic *model.Clinic
		if clinicID == 0 {
			clinic = newClinic(rec, now)
			id, err := r.store.CreateClinic(ctx, clinic)
			if err != nil {
				log.Warn("create clinic failed",
					zap.String("source", rec.Source),
					zap.String("source_id", rec.SourceID),
					zap.Error(err))
				counts.Failed++
				continue
			}
			clinic.ID = id
			byID[id] = clinic
			index = append(index, clinic)
			isNew = true
		} else {
			clinic = byID[clinicID]
			if clinic == nil {
				// Mapped to a clinic deactivated or created outside this
				// pass; skip rather than resurrect blind.
				log.Warn("mapping points at unknown clinic",
					zap.Int64("clinic_id", clinicID),
					zap.String("source", rec.Source),
					zap.String("source_id", rec.SourceID))
				counts.Failed++
				continue
			}
		}

		attachedID, err := r.store.AttachSource(ctx, model.ClinicSource{
			ClinicID:    clinic.ID,
			Source:      rec.Source,
			SourceID:    rec.SourceID,
			Rating:      rec.Rating,
			RatingCount: rec.RatingCount,
			LastSeenAt:  now,
		})
		if err != nil {
			log.Warn("attach source failed",
				zap.String("source", rec.Source),
				zap.String("source_id", rec.SourceID),
				zap.Error(err))
			counts.Failed++
			continue
		}
		if attachedID != clinic.ID {
			// Lost the race: the listing already belongs elsewhere.
			if winner := byID[attachedID]; winner != nil {
				clinic = winner
				isNew = false
			}
		}
		srcMap[rec.SourceID] = clinic.ID

		flags := r.merge(clinic, rec, now)
		if err := r.store.UpdateClinic(ctx, *clinic); err != nil {
			log.Warn("update clinic failed", zap.Int64("clinic_id", clinic.ID), zap.Error(err))
			counts.Failed++
			continue
		}
		for _, f := range flags {
			if err := r.store.InsertFlag(ctx, f); err != nil {
				log.Warn("insert flag failed", zap.Int64("clinic_id", f.ClinicID), zap.Error(err))
			}
		}

		seen[clinic.ID] = true
		if isNew {
			counts.New++
		} else {
			counts.Updated++
		}
	}

	seenIDs := make([]int64, 0, len(seen))
	for id := range seen {
		seenIDs = append(seenIDs, id)
	}
	sort.Slice(seenIDs, func(i, j int) bool { return seenIDs[i] < seenIDs[j] })

	deactivated, err := r.store.CloseRun(ctx, seenIDs, r.cfg.DeactivateAfterRuns)
	if err != nil {
		return counts, eris.Wrap(err, "resolver: close run")
	}

	log.Info("resolve pass complete",
		zap.Int("found", counts.Found),
		zap.Int("new", counts.New),
		zap.Int("updated", counts.Updated),
		zap.Int("failed", counts.Failed),
		zap.Int64("deactivated", deactivated))

	return counts, nil
}

// bestMatch returns the strongest candidate clinic for rec, or nil when
// nothing clears the thresholds.
func (r *Resolver) bestMatch(clinics []*model.Clinic, rec model.SourceRecord) *model.Clinic {
	var (
		best    *model.Clinic
		bestSim float64
	)

	for _, c := range clinics {
		sim, ok := r.candidate(c, rec)
		if !ok {
			continue
		}
		if best == nil || sim > bestSim || (sim == bestSim && c.ID < best.ID) {
			best, bestSim = c, sim
		}
	}
	return best
}

// candidate reports whether c can match rec and at what similarity.
// With coordinates on both sides the name threshold applies inside the
// match radius; without them a stricter name threshold applies and the
// postal code (or city) must agree.
func (r *Resolver) candidate(c *model.Clinic, rec model.SourceRecord) (float64, bool) {
	sim := Similarity(c.Name, rec.Name)

	bothCoords := c.Latitude != nil && c.Longitude != nil &&
		rec.Latitude != nil && rec.Longitude != nil
	if bothCoords {
		if sim < r.cfg.NameSimilarity {
			return 0, false
		}
		dist := HaversineKM(*c.Latitude, *c.Longitude, *rec.Latitude, *rec.Longitude)
		if dist > r.cfg.MatchRadiusKM {
			return 0, false
		}
		return sim, true
	}

	if sim < r.cfg.NameOnlySimilarity {
		return 0, false
	}
	if rec.PostalCode != "" && c.PostalCode != "" {
		if rec.PostalCode != c.PostalCode {
			return 0, false
		}
		return sim, true
	}
	if rec.City != "" && c.City != "" && rec.City == c.City {
		return sim, true
	}
	return 0, false
}

func newClinic(rec model.SourceRecord, now time.Time) *model.Clinic {
	c := &model.Clinic{
		Name:         rec.Name,
		Address:      rec.Address,
		City:         rec.City,
		State:        rec.State,
		PostalCode:   rec.PostalCode,
		Category:     rec.Category,
		Phone:        rec.Phone,
		Website:      rec.Website,
		Active:       true,
		LastMergedAt: now,
		CreatedAt:    now,
	}
	if rec.Latitude != nil && rec.Longitude != nil {
		c.Latitude, c.Longitude = rec.Latitude, rec.Longitude
		c.CoordSource = rec.Source
	}
	return c
}
