package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/clinic-intel/internal/config"
	"github.com/sells-group/clinic-intel/internal/model"
)

type fakeStore struct {
	clinics  map[int64]model.Clinic
	nextID   int64
	mappings map[string]map[string]int64

	flags       []model.ResolutionFlag
	closedSeen  []int64
	closedAfter int
	deactivated int64

	createErr error
	attachFn  func(cs model.ClinicSource) (int64, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clinics:  map[int64]model.Clinic{},
		mappings: map[string]map[string]int64{},
		nextID:   100,
	}
}

func (s *fakeStore) ActiveClinics(context.Context) ([]model.Clinic, error) {
	var out []model.Clinic
	for _, c := range s.clinics {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) SourceMappings(_ context.Context, source string) (map[string]int64, error) {
	out := map[string]int64{}
	for id, clinicID := range s.mappings[source] {
		out[id] = clinicID
	}
	return out, nil
}

func (s *fakeStore) CreateClinic(_ context.Context, c *model.Clinic) (int64, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	s.nextID++
	c.ID = s.nextID
	s.clinics[c.ID] = *c
	return c.ID, nil
}

func (s *fakeStore) UpdateClinic(_ context.Context, c model.Clinic) error {
	s.clinics[c.ID] = c
	return nil
}

func (s *fakeStore) AttachSource(_ context.Context, cs model.ClinicSource) (int64, error) {
	if s.attachFn != nil {
		return s.attachFn(cs)
	}
	if s.mappings[cs.Source] == nil {
		s.mappings[cs.Source] = map[string]int64{}
	}
	if existing, ok := s.mappings[cs.Source][cs.SourceID]; ok {
		return existing, nil
	}
	s.mappings[cs.Source][cs.SourceID] = cs.ClinicID
	return cs.ClinicID, nil
}

func (s *fakeStore) InsertFlag(_ context.Context, f model.ResolutionFlag) error {
	s.flags = append(s.flags, f)
	return nil
}

func (s *fakeStore) CloseRun(_ context.Context, seen []int64, after int) (int64, error) {
	s.closedSeen = seen
	s.closedAfter = after
	return s.deactivated, nil
}

func resolveConfig() config.ResolveConfig {
	return config.ResolveConfig{
		NameSimilarity:      0.60,
		NameOnlySimilarity:  0.85,
		MatchRadiusKM:       0.5,
		CoordToleranceKM:    0.15,
		DeactivateAfterRuns: 3,
	}
}

func newTestResolver(store Store) *Resolver {
	r := New(store, resolveConfig(), config.DefaultTrustMatrix())
	r.now = func() time.Time { return time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC) }
	return r
}

func ptr[T any](v T) *T { return &v }

func yelpRecord(id, name string, lat, lng float64) model.SourceRecord {
	return model.SourceRecord{
		Source:    "yelp",
		SourceID:  id,
		Name:      name,
		City:      "Chicago",
		State:     "IL",
		Latitude:  ptr(lat),
		Longitude: ptr(lng),
	}
}

func seedClinic(s *fakeStore, id int64, name string, lat, lng float64) {
	s.clinics[id] = model.Clinic{
		ID:          id,
		Name:        name,
		City:        "Chicago",
		State:       "IL",
		PostalCode:  "60614",
		Latitude:    ptr(lat),
		Longitude:   ptr(lng),
		CoordSource: "google_places",
		Active:      true,
	}
}

func TestResolve_MergesNearbySimilarName(t *testing.T) {
	store := newFakeStore()
	seedClinic(store, 1, "Clinic A", 41.90000, -87.60000)

	// Same name modulo the corporate suffix, ~120m away.
	rec := yelpRecord("y-1", "Clinic A Inc.", 41.90108, -87.60000)

	counts, err := newTestResolver(store).Resolve(context.Background(), []model.SourceRecord{rec})
	require.NoError(t, err)

	assert.Equal(t, 0, counts.New, "no duplicate clinic")
	assert.Equal(t, 1, counts.Updated)
	assert.Equal(t, int64(1), store.mappings["yelp"]["y-1"])
	assert.Len(t, store.clinics, 1)
}

func TestResolve_CreatesNewWhenNoMatch(t *testing.T) {
	store := newFakeStore()
	seedClinic(store, 1, "Clinic A", 41.90000, -87.60000)

	rec := yelpRecord("y-2", "Totally Different Dental", 41.95, -87.70)

	counts, err := newTestResolver(store).Resolve(context.Background(), []model.SourceRecord{rec})
	require.NoError(t, err)

	assert.Equal(t, 1, counts.New)
	assert.Equal(t, 0, counts.Updated)
	assert.Len(t, store.clinics, 2)

	created := store.clinics[store.mappings["yelp"]["y-2"]]
	assert.Equal(t, "Totally Different Dental", created.Name)
	assert.True(t, created.Active)
	assert.Equal(t, "yelp", created.CoordSource)
}

func TestResolve_SimilarNameTooFarApart(t *testing.T) {
	store := newFakeStore()
	seedClinic(store, 1, "Clinic A", 41.90000, -87.60000)

	// Same name but ~5km away: a different location of the same brand.
	rec := yelpRecord("y-3", "Clinic A", 41.945, -87.60000)

	counts, err := newTestResolver(store).Resolve(context.Background(), []model.SourceRecord{rec})
	require.NoError(t, err)

	assert.Equal(t, 1, counts.New)
	assert.Len(t, store.clinics, 2)
}

func TestResolve_ExistingMappingSkipsMatching(t *testing.T) {
	store := newFakeStore()
	seedClinic(store, 1, "Clinic A", 41.90000, -87.60000)
	store.mappings["yelp"] = map[string]int64{"y-1": 1}

	// The listing was renamed upstream; the mapping still pins it to
	// clinic 1 rather than re-matching by name.
	rec := yelpRecord("y-1", "Rebranded Health Hub", 41.90000, -87.60000)

	counts, err := newTestResolver(store).Resolve(context.Background(), []model.SourceRecord{rec})
	require.NoError(t, err)

	assert.Equal(t, 0, counts.New)
	assert.Equal(t, 1, counts.Updated)
	assert.Len(t, store.clinics, 1)
}

func TestResolve_NameOnlyMatchNeedsPostalAgreement(t *testing.T) {
	store := newFakeStore()
	store.clinics[1] = model.Clinic{
		ID: 1, Name: "Clinic A", City: "Chicago", State: "IL",
		PostalCode: "60614", Active: true,
	}

	t.Run("same postal merges", func(t *testing.T) {
		rec := model.SourceRecord{
			Source: "registry", SourceID: "LIC-1", Name: "Clinic A Inc.",
			City: "Chicago", State: "IL", PostalCode: "60614",
		}
		counts, err := newTestResolver(store).Resolve(context.Background(), []model.SourceRecord{rec})
		require.NoError(t, err)
		assert.Equal(t, 1, counts.Updated)
		assert.Equal(t, 0, counts.New)
	})

	t.Run("different postal creates new", func(t *testing.T) {
		rec := model.SourceRecord{
			Source: "registry", SourceID: "LIC-2", Name: "Clinic A",
			City: "Chicago", State: "IL", PostalCode: "60601",
		}
		counts, err := newTestResolver(store).Resolve(context.Background(), []model.SourceRecord{rec})
		require.NoError(t, err)
		assert.Equal(t, 1, counts.New)
	})
}

func TestResolve_AttachRaceFollowsWinner(t *testing.T) {
	store := newFakeStore()
	seedClinic(store, 1, "Clinic A", 41.90000, -87.60000)
	seedClinic(store, 2, "Clinic B", 41.92000, -87.65000)

	// Another resolver attached this listing to clinic 2 first.
	store.attachFn = func(model.ClinicSource) (int64, error) { return 2, nil }

	rec := yelpRecord("y-9", "Clinic A", 41.90000, -87.60000)
	counts, err := newTestResolver(store).Resolve(context.Background(), []model.SourceRecord{rec})
	require.NoError(t, err)

	assert.Equal(t, 0, counts.New)
	assert.Equal(t, 1, counts.Updated)
	assert.Len(t, store.clinics, 2, "no third clinic appears")
}

func TestResolve_CoordConflictFlagged(t *testing.T) {
	store := newFakeStore()
	seedClinic(store, 1, "Clinic A", 41.90000, -87.60000)

	// Yelp agrees on the name but places the clinic ~400m away. Google
	// coordinates outrank Yelp's, so the stored point stays and the
	// disagreement is flagged.
	rec := yelpRecord("y-1", "Clinic A", 41.90360, -87.60000)

	_, err := newTestResolver(store).Resolve(context.Background(), []model.SourceRecord{rec})
	require.NoError(t, err)

	require.Len(t, store.flags, 1)
	flag := store.flags[0]
	assert.Equal(t, int64(1), flag.ClinicID)
	assert.Equal(t, "coords", flag.Field)
	assert.Equal(t, "yelp", flag.Source)
	assert.Greater(t, flag.DistanceKM, 0.15)

	kept := store.clinics[1]
	assert.InDelta(t, 41.90000, *kept.Latitude, 1e-9)
	assert.Equal(t, "google_places", kept.CoordSource)
}

func TestResolve_HigherTrustCoordsReplace(t *testing.T) {
	store := newFakeStore()
	store.clinics[1] = model.Clinic{
		ID: 1, Name: "Clinic A", City: "Chicago", PostalCode: "60614",
		Latitude: ptr(41.90360), Longitude: ptr(-87.60000),
		CoordSource: "yelp", Active: true,
	}

	rec := model.SourceRecord{
		Source: "google_places", SourceID: "g-1", Name: "Clinic A",
		City: "Chicago", PostalCode: "60614",
		Latitude: ptr(41.90000), Longitude: ptr(-87.60000),
	}

	_, err := newTestResolver(store).Resolve(context.Background(), []model.SourceRecord{rec})
	require.NoError(t, err)

	merged := store.clinics[1]
	assert.InDelta(t, 41.90000, *merged.Latitude, 1e-9)
	assert.Equal(t, "google_places", merged.CoordSource)
	assert.Empty(t, store.flags)
}

func TestResolve_ClosesRunWithSeenIDs(t *testing.T) {
	store := newFakeStore()
	seedClinic(store, 1, "Clinic A", 41.90000, -87.60000)
	seedClinic(store, 2, "Clinic B", 41.92000, -87.65000)

	rec := yelpRecord("y-1", "Clinic A", 41.90000, -87.60000)
	_, err := newTestResolver(store).Resolve(context.Background(), []model.SourceRecord{rec})
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, store.closedSeen)
	assert.Equal(t, 3, store.closedAfter)
}

func TestResolve_FailedRecordIsIsolated(t *testing.T) {
	store := newFakeStore()
	store.createErr = eris.New("db down")

	records := []model.SourceRecord{
		yelpRecord("y-1", "Clinic A", 41.90, -87.60),
	}

	counts, err := newTestResolver(store).Resolve(context.Background(), records)
	require.NoError(t, err, "record failures do not fail the pass")
	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, 0, counts.New)
}
