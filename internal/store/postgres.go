package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/clinic-intel/internal/db"
	"github.com/sells-group/clinic-intel/internal/model"
	"github.com/sells-group/clinic-intel/internal/scoring"
)

// PostgresStore implements Store on top of a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore wraps an existing pool. The store takes ownership of the
// pool and closes it in Close.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// NewPostgres connects a pool to the given database and wraps it.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse postgres config")
	}
	if maxConns > 0 {
		pgxCfg.MaxConns = maxConns
	}
	if minConns > 0 {
		pgxCfg.MinConns = minConns
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}
	return NewPostgresStore(pool), nil
}

// Migrate applies the schema. All statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return eris.Wrap(err, "store: apply migration")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if c, ok := s.pool.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}

var sourceRecordCols = []string{
	"source", "source_id", "name", "address", "city", "state", "postal_code",
	"phone", "website", "category", "latitude", "longitude", "rating",
	"rating_count", "last_signal_at", "fetched_at", "raw",
}

func (s *PostgresStore) UpsertSourceRecords(ctx context.Context, recs []model.SourceRecord) error {
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []any{
			r.Source, r.SourceID, r.Name, r.Address, r.City, r.State, r.PostalCode,
			r.Phone, r.Website, r.Category, r.Latitude, r.Longitude, r.Rating,
			r.RatingCount, r.LastSignalAt, r.FetchedAt, r.Raw,
		})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "source_records",
		Columns:      sourceRecordCols,
		ConflictKeys: []string{"source", "source_id"},
	}, rows)
	if err != nil {
		return eris.Wrap(err, "store: upsert source records")
	}
	return nil
}

func (s *PostgresStore) SourceRecords(ctx context.Context, source string) ([]model.SourceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source, source_id, name, address, city, state, postal_code,
		       phone, website, category, latitude, longitude, rating,
		       rating_count, last_signal_at, fetched_at, raw
		FROM source_records WHERE source = $1 ORDER BY source_id`, source)
	if err != nil {
		return nil, eris.Wrapf(err, "store: query source records for %s", source)
	}
	defer rows.Close()

	var recs []model.SourceRecord
	for rows.Next() {
		var r model.SourceRecord
		if err := rows.Scan(&r.Source, &r.SourceID, &r.Name, &r.Address, &r.City,
			&r.State, &r.PostalCode, &r.Phone, &r.Website, &r.Category,
			&r.Latitude, &r.Longitude, &r.Rating, &r.RatingCount,
			&r.LastSignalAt, &r.FetchedAt, &r.Raw); err != nil {
			return nil, eris.Wrap(err, "store: scan source record")
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *PostgresStore) ExistingSourceIDs(ctx context.Context, source string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT source_id FROM source_records WHERE source = $1`, source)
	if err != nil {
		return nil, eris.Wrapf(err, "store: query source ids for %s", source)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "store: scan source id")
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (s *PostgresStore) UpsertInterestSignals(ctx context.Context, sigs []model.InterestSignal) error {
	rows := make([][]any, 0, len(sigs))
	for _, sig := range sigs {
		rows = append(rows, []any{sig.Keyword, sig.Category, sig.Region, sig.Day, sig.Score})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "interest_signals",
		Columns:      []string{"keyword", "category", "region", "day", "score"},
		ConflictKeys: []string{"keyword", "region", "day"},
	}, rows)
	if err != nil {
		return eris.Wrap(err, "store: upsert interest signals")
	}
	return nil
}

func (s *PostgresStore) InterestSignals(ctx context.Context, since time.Time) ([]model.InterestSignal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT keyword, category, region, day, score
		FROM interest_signals WHERE day >= $1 ORDER BY keyword, day`, since)
	if err != nil {
		return nil, eris.Wrap(err, "store: query interest signals")
	}
	defer rows.Close()

	var sigs []model.InterestSignal
	for rows.Next() {
		var sig model.InterestSignal
		if err := rows.Scan(&sig.Keyword, &sig.Category, &sig.Region, &sig.Day, &sig.Score); err != nil {
			return nil, eris.Wrap(err, "store: scan interest signal")
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

const clinicCols = `id, name, address, city, state, postal_code, region_code,
	category, phone, website, latitude, longitude, coord_source, active,
	missed_runs, last_merged_at, created_at`

func scanClinic(row pgx.Row) (model.Clinic, error) {
	var c model.Clinic
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.City, &c.State, &c.PostalCode,
		&c.RegionCode, &c.Category, &c.Phone, &c.Website, &c.Latitude,
		&c.Longitude, &c.CoordSource, &c.Active, &c.MissedRuns,
		&c.LastMergedAt, &c.CreatedAt)
	return c, err
}

func (s *PostgresStore) ActiveClinics(ctx context.Context) ([]model.Clinic, error) {
	return s.queryClinics(ctx, `SELECT `+clinicCols+` FROM clinics WHERE active ORDER BY id`)
}

func (s *PostgresStore) ListClinics(ctx context.Context, region string, activeOnly bool) ([]model.Clinic, error) {
	sql := `SELECT ` + clinicCols + ` FROM clinics WHERE 1=1`
	var args []any
	if region != "" {
		args = append(args, region)
		sql += fmt.Sprintf(" AND region_code = $%d", len(args))
	}
	if activeOnly {
		sql += " AND active"
	}
	sql += " ORDER BY id"
	return s.queryClinics(ctx, sql, args...)
}

func (s *PostgresStore) queryClinics(ctx context.Context, sql string, args ...any) ([]model.Clinic, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: query clinics")
	}
	defer rows.Close()

	var clinics []model.Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan clinic")
		}
		clinics = append(clinics, c)
	}
	return clinics, rows.Err()
}

func (s *PostgresStore) SourceMappings(ctx context.Context, source string) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_id, clinic_id FROM clinic_sources WHERE source = $1`, source)
	if err != nil {
		return nil, eris.Wrapf(err, "store: query mappings for %s", source)
	}
	defer rows.Close()

	mappings := make(map[string]int64)
	for rows.Next() {
		var sourceID string
		var clinicID int64
		if err := rows.Scan(&sourceID, &clinicID); err != nil {
			return nil, eris.Wrap(err, "store: scan mapping")
		}
		mappings[sourceID] = clinicID
	}
	return mappings, rows.Err()
}

func (s *PostgresStore) CreateClinic(ctx context.Context, c *model.Clinic) (int64, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO clinics (name, address, city, state, postal_code, region_code,
			category, phone, website, latitude, longitude, coord_source, active,
			missed_runs, last_merged_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id`,
		c.Name, c.Address, c.City, c.State, c.PostalCode, c.RegionCode,
		c.Category, c.Phone, c.Website, c.Latitude, c.Longitude, c.CoordSource,
		c.Active, c.MissedRuns, c.LastMergedAt, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return 0, eris.Wrap(err, "store: create clinic")
	}
	return c.ID, nil
}

func (s *PostgresStore) UpdateClinic(ctx context.Context, c model.Clinic) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE clinics SET name=$2, address=$3, city=$4, state=$5, postal_code=$6,
			region_code=$7, category=$8, phone=$9, website=$10, latitude=$11,
			longitude=$12, coord_source=$13, active=$14, missed_runs=$15,
			last_merged_at=$16
		WHERE id=$1`,
		c.ID, c.Name, c.Address, c.City, c.State, c.PostalCode, c.RegionCode,
		c.Category, c.Phone, c.Website, c.Latitude, c.Longitude, c.CoordSource,
		c.Active, c.MissedRuns, c.LastMergedAt)
	if err != nil {
		return eris.Wrapf(err, "store: update clinic %d", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: update clinic %d: no such clinic", c.ID)
	}
	return nil
}

func (s *PostgresStore) UpdateClinicRegion(ctx context.Context, clinicID int64, code string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE clinics SET region_code = $2 WHERE id = $1`, clinicID, code); err != nil {
		return eris.Wrapf(err, "store: update region for clinic %d", clinicID)
	}
	return nil
}

// AttachSource inserts the (source, source_id) -> clinic mapping, refreshing
// the per-source rating signals on conflict. The clinic_id column is never
// updated: when two workers race on the same source record the first insert
// wins, and the returned clinic ID tells the caller which clinic that was.
func (s *PostgresStore) AttachSource(ctx context.Context, cs model.ClinicSource) (int64, error) {
	var clinicID int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO clinic_sources (source, source_id, clinic_id, rating, rating_count, last_seen_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (source, source_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			rating_count = EXCLUDED.rating_count,
			last_seen_at = EXCLUDED.last_seen_at
		RETURNING clinic_id`,
		cs.Source, cs.SourceID, cs.ClinicID, cs.Rating, cs.RatingCount, cs.LastSeenAt).Scan(&clinicID)
	if err != nil {
		return 0, eris.Wrapf(err, "store: attach %s/%s", cs.Source, cs.SourceID)
	}
	return clinicID, nil
}

func (s *PostgresStore) UpsertRegions(ctx context.Context, regions []model.Region) error {
	rows := make([][]any, 0, len(regions))
	for _, r := range regions {
		rows = append(rows, []any{r.Code, r.Name, r.Polygon})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "regions",
		Columns:      []string{"code", "name", "polygon"},
		ConflictKeys: []string{"code"},
	}, rows)
	if err != nil {
		return eris.Wrap(err, "store: upsert regions")
	}
	return nil
}

func (s *PostgresStore) Regions(ctx context.Context) ([]model.Region, error) {
	rows, err := s.pool.Query(ctx, `SELECT code, name, polygon FROM regions ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "store: query regions")
	}
	defer rows.Close()

	var regions []model.Region
	for rows.Next() {
		var r model.Region
		if err := rows.Scan(&r.Code, &r.Name, &r.Polygon); err != nil {
			return nil, eris.Wrap(err, "store: scan region")
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}

func (s *PostgresStore) InsertFlag(ctx context.Context, f model.ResolutionFlag) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO resolution_flags (clinic_id, source, field, existing, incoming, distance_km)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		f.ClinicID, f.Source, f.Field, f.Existing, f.Incoming, f.DistanceKM); err != nil {
		return eris.Wrap(err, "store: insert flag")
	}
	return nil
}

func (s *PostgresStore) ListFlags(ctx context.Context, limit int) ([]model.ResolutionFlag, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, clinic_id, source, field, existing, incoming, distance_km, created_at
		FROM resolution_flags ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: query flags")
	}
	defer rows.Close()

	var flags []model.ResolutionFlag
	for rows.Next() {
		var f model.ResolutionFlag
		if err := rows.Scan(&f.ID, &f.ClinicID, &f.Source, &f.Field, &f.Existing,
			&f.Incoming, &f.DistanceKM, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan flag")
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// CloseRun settles liveness after a resolve pass: clinics seen this pass get
// their miss counter reset, the remaining active clinics get it incremented,
// and any clinic that has now missed deactivateAfter consecutive passes is
// deactivated. Returns the number of clinics deactivated.
func (s *PostgresStore) CloseRun(ctx context.Context, seen []int64, deactivateAfter int) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "store: close run: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`UPDATE clinics SET missed_runs = 0 WHERE id = ANY($1)`, seen); err != nil {
		return 0, eris.Wrap(err, "store: close run: reset seen")
	}
	if _, err := tx.Exec(ctx,
		`UPDATE clinics SET missed_runs = missed_runs + 1 WHERE active AND NOT (id = ANY($1))`, seen); err != nil {
		return 0, eris.Wrap(err, "store: close run: increment missed")
	}
	tag, err := tx.Exec(ctx,
		`UPDATE clinics SET active = FALSE WHERE active AND missed_runs >= $1`, deactivateAfter)
	if err != nil {
		return 0, eris.Wrap(err, "store: close run: deactivate")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "store: close run: commit tx")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO runs (id, stage, status, started_at) VALUES ($1,$2,$3,$4)`,
		run.ID, run.Stage, string(run.Status), run.StartedAt); err != nil {
		return eris.Wrapf(err, "store: create run %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) StartRun(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = 'running' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, eris.Wrapf(err, "store: start run %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

// FinishRun moves a run to a terminal status. The WHERE clause makes terminal
// states sticky: a second transition matches no row and reports false.
func (s *PostgresStore) FinishRun(ctx context.Context, id string, status model.RunStatus, counts model.RunCounts, errText string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE runs SET status = $2, found = $3, new = $4, updated = $5,
			failed = $6, error = $7, completed_at = now()
		WHERE id = $1 AND status IN ('pending', 'running')`,
		id, string(status), counts.Found, counts.New, counts.Updated, counts.Failed, errText)
	if err != nil {
		return false, eris.Wrapf(err, "store: finish run %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

const runCols = `id, stage, status, found, new, updated, failed, error, started_at, completed_at`

func scanRun(row pgx.Row) (model.Run, error) {
	var r model.Run
	var status string
	err := row.Scan(&r.ID, &r.Stage, &status, &r.Counts.Found, &r.Counts.New,
		&r.Counts.Updated, &r.Counts.Failed, &r.Error, &r.StartedAt, &r.CompletedAt)
	r.Status = model.RunStatus(status)
	return r, err
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runCols+` FROM runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get run %s", id)
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, stage string, limit int) ([]model.Run, error) {
	sql := `SELECT ` + runCols + ` FROM runs`
	args := []any{limit}
	if stage != "" {
		args = append(args, stage)
		sql += " WHERE stage = $2"
	}
	sql += " ORDER BY started_at DESC LIMIT $1"
	return s.queryRuns(ctx, sql, args...)
}

func (s *PostgresStore) LastCompleted(ctx context.Context, stage string) (*model.Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, `
		SELECT `+runCols+` FROM runs
		WHERE stage = $1 AND status = 'completed'
		ORDER BY completed_at DESC LIMIT 1`, stage))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: last completed %s", stage)
	}
	return &r, nil
}

func (s *PostgresStore) StaleRunning(ctx context.Context, cutoff time.Time) ([]model.Run, error) {
	return s.queryRuns(ctx, `
		SELECT `+runCols+` FROM runs
		WHERE status = 'running' AND started_at < $1
		ORDER BY started_at`, cutoff)
}

func (s *PostgresStore) queryRuns(ctx context.Context, sql string, args ...any) ([]model.Run, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: query runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ScoringInputs aggregates per-clinic scoring facts across all attached
// sources: volume-weighted rating, total review count, and the newest
// activity timestamp any source reported. Region falls back to postal code
// for clinics no shapefile region has been assigned to.
func (s *PostgresStore) ScoringInputs(ctx context.Context) ([]scoring.ClinicInput, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id,
		       COALESCE(NULLIF(c.region_code, ''), c.postal_code) AS region,
		       c.category,
		       COALESCE(SUM(cs.rating * cs.rating_count) / NULLIF(SUM(cs.rating_count), 0), 0) AS rating,
		       COALESCE(SUM(cs.rating_count), 0) AS review_count,
		       MAX(sr.last_signal_at) AS last_signal_at
		FROM clinics c
		LEFT JOIN clinic_sources cs ON cs.clinic_id = c.id
		LEFT JOIN source_records sr ON sr.source = cs.source AND sr.source_id = cs.source_id
		WHERE c.active
		GROUP BY c.id
		ORDER BY c.id`)
	if err != nil {
		return nil, eris.Wrap(err, "store: query scoring inputs")
	}
	defer rows.Close()

	var inputs []scoring.ClinicInput
	for rows.Next() {
		var in scoring.ClinicInput
		if err := rows.Scan(&in.ID, &in.Region, &in.Category, &in.Rating,
			&in.ReviewCount, &in.LastSignalAt); err != nil {
			return nil, eris.Wrap(err, "store: scan scoring input")
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

func (s *PostgresStore) SaveVisibilitySnapshots(ctx context.Context, snaps []model.VisibilitySnapshot) error {
	rows := make([][]any, 0, len(snaps))
	for _, snap := range snaps {
		rows = append(rows, []any{
			snap.ClinicID, snap.CalcDate, snap.RatingScore, snap.VolumeScore,
			snap.RecencyScore, snap.GeoScore, snap.Composite, snap.LocalRank, snap.GlobalRank,
		})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "visibility_snapshots",
		Columns: []string{"clinic_id", "calc_date", "rating_score", "volume_score",
			"recency_score", "geo_score", "composite", "local_rank", "global_rank"},
		ConflictKeys: []string{"clinic_id", "calc_date"},
	}, rows)
	if err != nil {
		return eris.Wrap(err, "store: save visibility snapshots")
	}
	return nil
}

func (s *PostgresStore) SaveMarketSnapshots(ctx context.Context, snaps []model.MarketSnapshot) error {
	rows := make([][]any, 0, len(snaps))
	for _, snap := range snaps {
		rows = append(rows, []any{
			snap.Region, snap.Category, snap.CalcDate, snap.DemandIndex,
			string(snap.Trend), snap.ClinicCount, snap.AvgRating, snap.Top3Share, snap.Opportunity,
		})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "market_snapshots",
		Columns: []string{"region", "category", "calc_date", "demand_index",
			"trend", "clinic_count", "avg_rating", "top3_share", "opportunity"},
		ConflictKeys: []string{"region", "category", "calc_date"},
	}, rows)
	if err != nil {
		return eris.Wrap(err, "store: save market snapshots")
	}
	return nil
}

func (s *PostgresStore) VisibilitySnapshots(ctx context.Context, calcDate time.Time) ([]model.VisibilitySnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT clinic_id, calc_date, rating_score, volume_score, recency_score,
		       geo_score, composite, local_rank, global_rank
		FROM visibility_snapshots WHERE calc_date = $1 ORDER BY global_rank`, calcDate)
	if err != nil {
		return nil, eris.Wrap(err, "store: query visibility snapshots")
	}
	defer rows.Close()

	var snaps []model.VisibilitySnapshot
	for rows.Next() {
		var snap model.VisibilitySnapshot
		if err := rows.Scan(&snap.ClinicID, &snap.CalcDate, &snap.RatingScore,
			&snap.VolumeScore, &snap.RecencyScore, &snap.GeoScore,
			&snap.Composite, &snap.LocalRank, &snap.GlobalRank); err != nil {
			return nil, eris.Wrap(err, "store: scan visibility snapshot")
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *PostgresStore) MarketSnapshots(ctx context.Context, calcDate time.Time) ([]model.MarketSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT region, category, calc_date, demand_index, trend, clinic_count,
		       avg_rating, top3_share, opportunity
		FROM market_snapshots WHERE calc_date = $1 ORDER BY region, category`, calcDate)
	if err != nil {
		return nil, eris.Wrap(err, "store: query market snapshots")
	}
	defer rows.Close()

	var snaps []model.MarketSnapshot
	for rows.Next() {
		var snap model.MarketSnapshot
		var trend string
		if err := rows.Scan(&snap.Region, &snap.Category, &snap.CalcDate,
			&snap.DemandIndex, &trend, &snap.ClinicCount, &snap.AvgRating,
			&snap.Top3Share, &snap.Opportunity); err != nil {
			return nil, eris.Wrap(err, "store: scan market snapshot")
		}
		snap.Trend = model.TrendDirection(trend)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
