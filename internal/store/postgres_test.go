package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/clinic-intel/internal/model"
)

func TestPostgresStore_CreateClinic(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	lat, lng := 41.8781, -87.6298
	mock.ExpectQuery(`INSERT INTO clinics`).
		WithArgs("Lakeview Urgent Care", "123 N Clark St", "Chicago", "IL", "60601",
			"", "urgent_care", "+1 312-555-0100", "https://example.com",
			&lat, &lng, "google_places", true, 0, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	c := model.Clinic{
		Name:        "Lakeview Urgent Care",
		Address:     "123 N Clark St",
		City:        "Chicago",
		State:       "IL",
		PostalCode:  "60601",
		Category:    "urgent_care",
		Phone:       "+1 312-555-0100",
		Website:     "https://example.com",
		Latitude:    &lat,
		Longitude:   &lng,
		CoordSource: "google_places",
		Active:      true,
	}
	id, err := store.CreateClinic(context.Background(), &c)

	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, int64(7), c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AttachSource_ReturnsWinner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	// Another worker inserted the mapping first: the upsert leaves
	// clinic_id alone and RETURNING exposes the winning clinic.
	mock.ExpectQuery(`INSERT INTO clinic_sources`).
		WithArgs("yelp", "biz-1", int64(12), (*float64)(nil), (*int)(nil), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"clinic_id"}).AddRow(int64(5)))

	clinicID, err := store.AttachSource(context.Background(), model.ClinicSource{
		Source:     "yelp",
		SourceID:   "biz-1",
		ClinicID:   12,
		LastSeenAt: time.Now(),
	})

	require.NoError(t, err)
	assert.Equal(t, int64(5), clinicID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StartRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectExec(`UPDATE runs SET status = 'running'`).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := store.StartRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_AlreadyTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	// Status guard matches no row: the run already reached a terminal state.
	mock.ExpectExec(`UPDATE runs SET status =`).
		WithArgs("run-1", "completed", 10, 2, 8, 0, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := store.FinishRun(context.Background(), "run-1", model.RunStatusCompleted,
		model.RunCounts{Found: 10, New: 2, Updated: 8}, "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectQuery(`SELECT .* FROM runs WHERE id =`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "stage", "status", "found",
			"new", "updated", "failed", "error", "started_at", "completed_at"}))

	run, err := store.GetRun(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastCompleted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	started := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	completed := started.Add(10 * time.Minute)
	mock.ExpectQuery(`SELECT .* FROM runs\s+WHERE stage = .* AND status = 'completed'`).
		WithArgs("resolve").
		WillReturnRows(pgxmock.NewRows([]string{"id", "stage", "status", "found",
			"new", "updated", "failed", "error", "started_at", "completed_at"}).
			AddRow("run-9", "resolve", "completed", 40, 3, 37, 0, "", started, &completed))

	run, err := store.LastCompleted(context.Background(), "resolve")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "run-9", run.ID)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 40, run.Counts.Found)
	require.NotNil(t, run.CompletedAt)
	assert.Equal(t, completed, *run.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	seen := []int64{1, 2, 3}
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE clinics SET missed_runs = 0`).
		WithArgs(seen).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectExec(`UPDATE clinics SET missed_runs = missed_runs \+ 1`).
		WithArgs(seen).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`UPDATE clinics SET active = FALSE`).
		WithArgs(3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	deactivated, err := store.CloseRun(context.Background(), seen, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deactivated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SourceMappings(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectQuery(`SELECT source_id, clinic_id FROM clinic_sources`).
		WithArgs("google_places").
		WillReturnRows(pgxmock.NewRows([]string{"source_id", "clinic_id"}).
			AddRow("pl-1", int64(1)).
			AddRow("pl-2", int64(2)))

	mappings, err := store.SourceMappings(context.Background(), "google_places")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"pl-1": 1, "pl-2": 2}, mappings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ScoringInputs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	signalAt := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT c.id,`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "region", "category",
			"rating", "review_count", "last_signal_at"}).
			AddRow(int64(1), "60601", "urgent_care", 4.4, 150, &signalAt).
			AddRow(int64(2), "60602", "dental", 0.0, 0, (*time.Time)(nil)))

	inputs, err := store.ScoringInputs(context.Background())
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, int64(1), inputs[0].ID)
	assert.Equal(t, "60601", inputs[0].Region)
	assert.InDelta(t, 4.4, inputs[0].Rating, 1e-9)
	assert.Equal(t, 150, inputs[0].ReviewCount)
	require.NotNil(t, inputs[0].LastSignalAt)
	assert.Equal(t, signalAt, *inputs[0].LastSignalAt)
	assert.Nil(t, inputs[1].LastSignalAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertInterestSignals(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_interest_signals"},
		[]string{"keyword", "category", "region", "day", "score"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "interest_signals"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	day := time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC)
	err = store.UpsertInterestSignals(context.Background(), []model.InterestSignal{
		{Keyword: "urgent care near me", Category: "urgent_care", Region: "US-IL", Day: day, Score: 62},
		{Keyword: "urgent care near me", Category: "urgent_care", Region: "US-IL", Day: day.AddDate(0, 0, 1), Score: 58},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertSourceRecords_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	// No rows, no round trips.
	err = store.UpsertSourceRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListFlags(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	created := time.Date(2026, 2, 24, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, clinic_id, source, field, existing, incoming`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "clinic_id", "source",
			"field", "existing", "incoming", "distance_km", "created_at"}).
			AddRow(int64(1), int64(5), "yelp", "coords", "41.878100,-87.629800",
				"41.881700,-87.629800", 0.4, created))

	flags, err := store.ListFlags(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, int64(5), flags[0].ClinicID)
	assert.Equal(t, "coords", flags[0].Field)
	assert.InDelta(t, 0.4, flags[0].DistanceKM, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}
