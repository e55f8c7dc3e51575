package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/clinic-intel/internal/config"
	"github.com/sells-group/clinic-intel/internal/model"
	"github.com/sells-group/clinic-intel/internal/provider"
	"github.com/sells-group/clinic-intel/internal/store"
)

type fakeSource struct {
	name     string
	records  []model.SourceRecord
	checkErr error
	fetches  int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Check(ctx context.Context) error { return f.checkErr }

func (f *fakeSource) Fetch(ctx context.Context, q provider.Query) ([]model.SourceRecord, error) {
	f.fetches++
	return f.records, nil
}

type fakeSignalSource struct {
	signals []model.InterestSignal
}

func (f *fakeSignalSource) Name() string { return provider.SourceTrends }

func (f *fakeSignalSource) Check(ctx context.Context) error { return nil }

func (f *fakeSignalSource) Fetch(ctx context.Context, q provider.Query) ([]model.InterestSignal, error) {
	return f.signals, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Market: config.MarketConfig{
			City:  "Chicago",
			State: "IL",
			Categories: map[string][]string{
				"urgent_care": {"urgent care"},
			},
		},
		Resolve: config.ResolveConfig{
			NameSimilarity:      0.60,
			NameOnlySimilarity:  0.85,
			MatchRadiusKM:       0.5,
			CoordToleranceKM:    0.15,
			DeactivateAfterRuns: 3,
		},
		Score: config.ScoreConfig{
			RatingWeight:        0.30,
			VolumeWeight:        0.30,
			RecencyWeight:       0.25,
			GeoWeight:           0.15,
			VolumeSaturation:    500,
			RecencyHalfLifeDays: 90,
			DemandWindowDays:    28,
			TrendUpPct:          5,
			TrendDownPct:        -5,
			OpportunityScale:    1.0,
		},
		Pipeline: config.PipelineConfig{
			ContinueOnError: false,
			StaleAfterMins:  120,
		},
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func testRecord(source, id, name string) model.SourceRecord {
	return model.SourceRecord{
		Source:      source,
		SourceID:    id,
		Name:        name,
		PostalCode:  "60601",
		Category:    "urgent_care",
		Latitude:    floatPtr(41.8781),
		Longitude:   floatPtr(-87.6298),
		Rating:      floatPtr(4.2),
		RatingCount: intPtr(120),
		FetchedAt:   time.Now().UTC(),
	}
}

func TestEngineRun_FullPass(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{
		name:    provider.SourceGooglePlaces,
		records: []model.SourceRecord{testRecord(provider.SourceGooglePlaces, "pl-1", "Loop Urgent Care")},
	}
	sig := &fakeSignalSource{signals: []model.InterestSignal{
		{Keyword: "urgent care", Category: "urgent_care", Region: "US-IL",
			Day: time.Now().UTC().AddDate(0, 0, -1), Score: 40},
	}}

	eng, err := New(testConfig(t), st, []provider.Source{src}, sig)
	require.NoError(t, err)

	require.NoError(t, eng.Run(context.Background(), true))

	ctx := context.Background()
	clinics, err := st.ActiveClinics(ctx)
	require.NoError(t, err)
	require.Len(t, clinics, 1)
	assert.Equal(t, "Loop Urgent Care", clinics[0].Name)

	calcDate := time.Now().UTC().Truncate(24 * time.Hour)
	vis, err := st.VisibilitySnapshots(ctx, calcDate)
	require.NoError(t, err)
	require.Len(t, vis, 1)
	assert.Equal(t, 1, vis[0].GlobalRank)

	markets, err := st.MarketSnapshots(ctx, calcDate)
	require.NoError(t, err)
	assert.NotEmpty(t, markets)

	for _, stage := range []string{
		model.CollectStage(provider.SourceGooglePlaces),
		model.StageSignals,
		model.StageResolve,
		model.StageScore,
	} {
		last, err := st.LastCompleted(ctx, stage)
		require.NoError(t, err)
		require.NotNil(t, last, "stage %s should have completed", stage)
	}
}

func TestEngineRun_SameDaySkip(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{
		name:    provider.SourceGooglePlaces,
		records: []model.SourceRecord{testRecord(provider.SourceGooglePlaces, "pl-1", "Loop Urgent Care")},
	}

	eng, err := New(testConfig(t), st, []provider.Source{src}, nil)
	require.NoError(t, err)

	require.NoError(t, eng.Run(context.Background(), false))
	fetchesAfterFirst := src.fetches
	require.Positive(t, fetchesAfterFirst)

	// Second pass the same day finds every stage completed and runs nothing.
	require.NoError(t, eng.Run(context.Background(), false))
	assert.Equal(t, fetchesAfterFirst, src.fetches)

	runs, err := st.ListRuns(context.Background(), model.CollectStage(provider.SourceGooglePlaces), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	// Force overrides the skip.
	require.NoError(t, eng.Run(context.Background(), true))
	assert.Greater(t, src.fetches, fetchesAfterFirst)
}

func TestEngineRun_StopsOnStageFailure(t *testing.T) {
	st := newTestStore(t)
	broken := &fakeSource{
		name:     provider.SourceGooglePlaces,
		checkErr: eris.New("api key rejected"),
	}

	eng, err := New(testConfig(t), st, []provider.Source{broken}, nil)
	require.NoError(t, err)

	err = eng.Run(context.Background(), true)
	require.Error(t, err)

	ctx := context.Background()
	failed, err := st.ListRuns(ctx, model.CollectStage(provider.SourceGooglePlaces), 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, model.RunStatusFailed, failed[0].Status)
	assert.Contains(t, failed[0].Error, "api key rejected")

	// Later stages never ran.
	resolveRuns, err := st.ListRuns(ctx, model.StageResolve, 10)
	require.NoError(t, err)
	assert.Empty(t, resolveRuns)
}

// cancellingSource cancels the pass from inside its own fetch, the way
// a SIGINT or the whole-run timeout lands mid-stage.
type cancellingSource struct {
	name   string
	cancel context.CancelFunc
}

func (c *cancellingSource) Name() string { return c.name }

func (c *cancellingSource) Check(ctx context.Context) error { return nil }

func (c *cancellingSource) Fetch(ctx context.Context, q provider.Query) ([]model.SourceRecord, error) {
	c.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEngineRun_CancelLeavesRunFailed(t *testing.T) {
	st := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancellingSource{name: provider.SourceGooglePlaces, cancel: cancel}

	eng, err := New(testConfig(t), st, []provider.Source{src}, nil)
	require.NoError(t, err)

	err = eng.Run(ctx, true)
	require.Error(t, err)

	// The cancelled stage's run row must end failed right away, not
	// linger running until a sweep.
	runs, err := st.ListRuns(context.Background(), model.CollectStage(provider.SourceGooglePlaces), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].CompletedAt)
}

func TestEngineRun_ContinueOnError(t *testing.T) {
	st := newTestStore(t)
	broken := &fakeSource{
		name:     provider.SourceYelp,
		checkErr: eris.New("yelp unavailable"),
	}
	working := &fakeSource{
		name:    provider.SourceGooglePlaces,
		records: []model.SourceRecord{testRecord(provider.SourceGooglePlaces, "pl-1", "Loop Urgent Care")},
	}

	cfg := testConfig(t)
	cfg.Pipeline.ContinueOnError = true
	eng, err := New(cfg, st, []provider.Source{broken, working}, nil)
	require.NoError(t, err)

	err = eng.Run(context.Background(), true)
	require.Error(t, err)

	// The failing source is recorded, the rest of the pass still ran.
	ctx := context.Background()
	clinics, err := st.ActiveClinics(ctx)
	require.NoError(t, err)
	assert.Len(t, clinics, 1)

	scoreRun, err := st.LastCompleted(ctx, model.StageScore)
	require.NoError(t, err)
	assert.NotNil(t, scoreRun)
}

func TestQueries_DeterministicOrder(t *testing.T) {
	categories := map[string][]string{
		"urgent_care": {"urgent care", "walk in clinic"},
		"dental":      {"dentist"},
	}

	queries := Queries(categories)
	require.Len(t, queries, 3)
	assert.Equal(t, provider.Query{Category: "dental", Keyword: "dentist"}, queries[0])
	assert.Equal(t, provider.Query{Category: "urgent_care", Keyword: "urgent care"}, queries[1])
	assert.Equal(t, provider.Query{Category: "urgent_care", Keyword: "walk in clinic"}, queries[2])
}

func TestNextRunTime(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.DailyAt = "06:30"
	eng, err := New(cfg, newTestStore(t), nil, nil)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 5, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return base }

	at, err := time.Parse("15:04", cfg.Pipeline.DailyAt)
	require.NoError(t, err)

	next := eng.nextRunTime(at)
	assert.Equal(t, time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC), next)

	// Already past today's slot: tomorrow.
	eng.now = func() time.Time { return base.Add(3 * time.Hour) }
	next = eng.nextRunTime(at)
	assert.Equal(t, time.Date(2026, 3, 2, 6, 30, 0, 0, time.UTC), next)
}
