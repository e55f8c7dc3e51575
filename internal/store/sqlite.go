package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/clinic-intel/internal/model"
	"github.com/sells-group/clinic-intel/internal/scoring"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs the
// single-binary deployment mode; the schema and semantics track the
// Postgres store, with per-row upserts instead of bulk COPY.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS clinics (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL,
	address        TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL DEFAULT '',
	postal_code    TEXT NOT NULL DEFAULT '',
	region_code    TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	website        TEXT NOT NULL DEFAULT '',
	latitude       REAL,
	longitude      REAL,
	coord_source   TEXT NOT NULL DEFAULT '',
	active         BOOLEAN NOT NULL DEFAULT TRUE,
	missed_runs    INTEGER NOT NULL DEFAULT 0,
	last_merged_at DATETIME NOT NULL DEFAULT (datetime('now')),
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS clinic_sources (
	source       TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	clinic_id    INTEGER NOT NULL REFERENCES clinics(id),
	rating       REAL,
	rating_count INTEGER,
	last_seen_at DATETIME NOT NULL,
	PRIMARY KEY (source, source_id)
);

CREATE TABLE IF NOT EXISTS source_records (
	source         TEXT NOT NULL,
	source_id      TEXT NOT NULL,
	name           TEXT NOT NULL,
	address        TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL DEFAULT '',
	postal_code    TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	website        TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	latitude       REAL,
	longitude      REAL,
	rating         REAL,
	rating_count   INTEGER,
	last_signal_at DATETIME,
	fetched_at     DATETIME NOT NULL,
	raw            BLOB,
	PRIMARY KEY (source, source_id)
);

CREATE TABLE IF NOT EXISTS interest_signals (
	keyword  TEXT NOT NULL,
	category TEXT NOT NULL,
	region   TEXT NOT NULL,
	day      DATE NOT NULL,
	score    INTEGER NOT NULL,
	PRIMARY KEY (keyword, region, day)
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	stage        TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	found        INTEGER NOT NULL DEFAULT 0,
	new          INTEGER NOT NULL DEFAULT 0,
	updated      INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS visibility_snapshots (
	clinic_id     INTEGER NOT NULL REFERENCES clinics(id),
	calc_date     DATE NOT NULL,
	rating_score  REAL NOT NULL,
	volume_score  REAL NOT NULL,
	recency_score REAL NOT NULL,
	geo_score     REAL NOT NULL,
	composite     REAL NOT NULL,
	local_rank    INTEGER NOT NULL,
	global_rank   INTEGER NOT NULL,
	PRIMARY KEY (clinic_id, calc_date)
);

CREATE TABLE IF NOT EXISTS market_snapshots (
	region       TEXT NOT NULL,
	category     TEXT NOT NULL,
	calc_date    DATE NOT NULL,
	demand_index REAL NOT NULL,
	trend        TEXT NOT NULL,
	clinic_count INTEGER NOT NULL,
	avg_rating   REAL NOT NULL,
	top3_share   REAL NOT NULL,
	opportunity  REAL NOT NULL,
	PRIMARY KEY (region, category, calc_date)
);

CREATE TABLE IF NOT EXISTS regions (
	code    TEXT PRIMARY KEY,
	name    TEXT NOT NULL DEFAULT '',
	polygon BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS resolution_flags (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	clinic_id   INTEGER NOT NULL REFERENCES clinics(id),
	source      TEXT NOT NULL,
	field       TEXT NOT NULL,
	existing    TEXT NOT NULL DEFAULT '',
	incoming    TEXT NOT NULL DEFAULT '',
	distance_km REAL NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_clinics_active ON clinics(active);
CREATE INDEX IF NOT EXISTS idx_clinics_region ON clinics(region_code);
CREATE INDEX IF NOT EXISTS idx_clinic_sources_clinic ON clinic_sources(clinic_id);
CREATE INDEX IF NOT EXISTS idx_runs_stage_status ON runs(stage, status);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_signals_category_day ON interest_signals(category, day);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertSourceRecords(ctx context.Context, recs []model.SourceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert source records: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO source_records (source, source_id, name, address, city, state,
			postal_code, phone, website, category, latitude, longitude, rating,
			rating_count, last_signal_at, fetched_at, raw)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (source, source_id) DO UPDATE SET
			name=excluded.name, address=excluded.address, city=excluded.city,
			state=excluded.state, postal_code=excluded.postal_code,
			phone=excluded.phone, website=excluded.website,
			category=excluded.category, latitude=excluded.latitude,
			longitude=excluded.longitude, rating=excluded.rating,
			rating_count=excluded.rating_count,
			last_signal_at=excluded.last_signal_at,
			fetched_at=excluded.fetched_at, raw=excluded.raw`)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert source records: prepare")
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, r.Source, r.SourceID, r.Name, r.Address,
			r.City, r.State, r.PostalCode, r.Phone, r.Website, r.Category,
			r.Latitude, r.Longitude, r.Rating, r.RatingCount, r.LastSignalAt,
			r.FetchedAt, r.Raw); err != nil {
			return eris.Wrapf(err, "sqlite: upsert source record %s/%s", r.Source, r.SourceID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: upsert source records: commit")
}

func (s *SQLiteStore) SourceRecords(ctx context.Context, source string) ([]model.SourceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, source_id, name, address, city, state, postal_code,
		       phone, website, category, latitude, longitude, rating,
		       rating_count, last_signal_at, fetched_at, raw
		FROM source_records WHERE source = ? ORDER BY source_id`, source)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query source records for %s", source)
	}
	defer rows.Close()

	var recs []model.SourceRecord
	for rows.Next() {
		var r model.SourceRecord
		if err := rows.Scan(&r.Source, &r.SourceID, &r.Name, &r.Address, &r.City,
			&r.State, &r.PostalCode, &r.Phone, &r.Website, &r.Category,
			&r.Latitude, &r.Longitude, &r.Rating, &r.RatingCount,
			&r.LastSignalAt, &r.FetchedAt, &r.Raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source record")
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) ExistingSourceIDs(ctx context.Context, source string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id FROM source_records WHERE source = ?`, source)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query source ids for %s", source)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source id")
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) UpsertInterestSignals(ctx context.Context, sigs []model.InterestSignal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert interest signals: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO interest_signals (keyword, category, region, day, score)
		VALUES (?,?,?,?,?)
		ON CONFLICT (keyword, region, day) DO UPDATE SET
			category=excluded.category, score=excluded.score`)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert interest signals: prepare")
	}
	defer stmt.Close()

	for _, sig := range sigs {
		if _, err := stmt.ExecContext(ctx, sig.Keyword, sig.Category, sig.Region,
			sig.Day, sig.Score); err != nil {
			return eris.Wrapf(err, "sqlite: upsert interest signal %s/%s", sig.Keyword, sig.Day.Format("2006-01-02"))
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: upsert interest signals: commit")
}

func (s *SQLiteStore) InterestSignals(ctx context.Context, since time.Time) ([]model.InterestSignal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT keyword, category, region, day, score
		FROM interest_signals WHERE day >= ? ORDER BY keyword, day`, since)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query interest signals")
	}
	defer rows.Close()

	var sigs []model.InterestSignal
	for rows.Next() {
		var sig model.InterestSignal
		if err := rows.Scan(&sig.Keyword, &sig.Category, &sig.Region, &sig.Day, &sig.Score); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan interest signal")
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

func (s *SQLiteStore) ActiveClinics(ctx context.Context) ([]model.Clinic, error) {
	return s.queryClinics(ctx, `SELECT `+clinicCols+` FROM clinics WHERE active ORDER BY id`)
}

func (s *SQLiteStore) ListClinics(ctx context.Context, region string, activeOnly bool) ([]model.Clinic, error) {
	query := `SELECT ` + clinicCols + ` FROM clinics WHERE 1=1`
	var args []any
	if region != "" {
		query += " AND region_code = ?"
		args = append(args, region)
	}
	if activeOnly {
		query += " AND active"
	}
	query += " ORDER BY id"
	return s.queryClinics(ctx, query, args...)
}

func (s *SQLiteStore) queryClinics(ctx context.Context, query string, args ...any) ([]model.Clinic, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query clinics")
	}
	defer rows.Close()

	var clinics []model.Clinic
	for rows.Next() {
		var c model.Clinic
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.City, &c.State,
			&c.PostalCode, &c.RegionCode, &c.Category, &c.Phone, &c.Website,
			&c.Latitude, &c.Longitude, &c.CoordSource, &c.Active, &c.MissedRuns,
			&c.LastMergedAt, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan clinic")
		}
		clinics = append(clinics, c)
	}
	return clinics, rows.Err()
}

func (s *SQLiteStore) SourceMappings(ctx context.Context, source string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, clinic_id FROM clinic_sources WHERE source = ?`, source)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query mappings for %s", source)
	}
	defer rows.Close()

	mappings := make(map[string]int64)
	for rows.Next() {
		var sourceID string
		var clinicID int64
		if err := rows.Scan(&sourceID, &clinicID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan mapping")
		}
		mappings[sourceID] = clinicID
	}
	return mappings, rows.Err()
}

func (s *SQLiteStore) CreateClinic(ctx context.Context, c *model.Clinic) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO clinics (name, address, city, state, postal_code, region_code,
			category, phone, website, latitude, longitude, coord_source, active,
			missed_runs, last_merged_at, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.Name, c.Address, c.City, c.State, c.PostalCode, c.RegionCode,
		c.Category, c.Phone, c.Website, c.Latitude, c.Longitude, c.CoordSource,
		c.Active, c.MissedRuns, c.LastMergedAt, c.CreatedAt)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: create clinic")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: create clinic: last insert id")
	}
	c.ID = id
	return id, nil
}

func (s *SQLiteStore) UpdateClinic(ctx context.Context, c model.Clinic) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE clinics SET name=?, address=?, city=?, state=?, postal_code=?,
			region_code=?, category=?, phone=?, website=?, latitude=?,
			longitude=?, coord_source=?, active=?, missed_runs=?, last_merged_at=?
		WHERE id=?`,
		c.Name, c.Address, c.City, c.State, c.PostalCode, c.RegionCode,
		c.Category, c.Phone, c.Website, c.Latitude, c.Longitude, c.CoordSource,
		c.Active, c.MissedRuns, c.LastMergedAt, c.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update clinic %d", c.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: update clinic: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: update clinic %d: no such clinic", c.ID)
	}
	return nil
}

func (s *SQLiteStore) UpdateClinicRegion(ctx context.Context, clinicID int64, code string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE clinics SET region_code = ? WHERE id = ?`, code, clinicID); err != nil {
		return eris.Wrapf(err, "sqlite: update region for clinic %d", clinicID)
	}
	return nil
}

func (s *SQLiteStore) AttachSource(ctx context.Context, cs model.ClinicSource) (int64, error) {
	var clinicID int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO clinic_sources (source, source_id, clinic_id, rating, rating_count, last_seen_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT (source, source_id) DO UPDATE SET
			rating = excluded.rating,
			rating_count = excluded.rating_count,
			last_seen_at = excluded.last_seen_at
		RETURNING clinic_id`,
		cs.Source, cs.SourceID, cs.ClinicID, cs.Rating, cs.RatingCount, cs.LastSeenAt).Scan(&clinicID)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: attach %s/%s", cs.Source, cs.SourceID)
	}
	return clinicID, nil
}

func (s *SQLiteStore) UpsertRegions(ctx context.Context, regions []model.Region) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert regions: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO regions (code, name, polygon) VALUES (?,?,?)
		ON CONFLICT (code) DO UPDATE SET name=excluded.name, polygon=excluded.polygon`)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert regions: prepare")
	}
	defer stmt.Close()

	for _, r := range regions {
		if _, err := stmt.ExecContext(ctx, r.Code, r.Name, r.Polygon); err != nil {
			return eris.Wrapf(err, "sqlite: upsert region %s", r.Code)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: upsert regions: commit")
}

func (s *SQLiteStore) Regions(ctx context.Context) ([]model.Region, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, name, polygon FROM regions ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query regions")
	}
	defer rows.Close()

	var regions []model.Region
	for rows.Next() {
		var r model.Region
		if err := rows.Scan(&r.Code, &r.Name, &r.Polygon); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan region")
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}

func (s *SQLiteStore) InsertFlag(ctx context.Context, f model.ResolutionFlag) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO resolution_flags (clinic_id, source, field, existing, incoming, distance_km)
		VALUES (?,?,?,?,?,?)`,
		f.ClinicID, f.Source, f.Field, f.Existing, f.Incoming, f.DistanceKM); err != nil {
		return eris.Wrap(err, "sqlite: insert flag")
	}
	return nil
}

func (s *SQLiteStore) ListFlags(ctx context.Context, limit int) ([]model.ResolutionFlag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, clinic_id, source, field, existing, incoming, distance_km, created_at
		FROM resolution_flags ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query flags")
	}
	defer rows.Close()

	var flags []model.ResolutionFlag
	for rows.Next() {
		var f model.ResolutionFlag
		if err := rows.Scan(&f.ID, &f.ClinicID, &f.Source, &f.Field, &f.Existing,
			&f.Incoming, &f.DistanceKM, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan flag")
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

func (s *SQLiteStore) CloseRun(ctx context.Context, seen []int64, deactivateAfter int) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: close run: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	inClause, inArgs := int64InClause(seen)
	if _, err := tx.ExecContext(ctx,
		`UPDATE clinics SET missed_runs = 0 WHERE id IN `+inClause, inArgs...); err != nil {
		return 0, eris.Wrap(err, "sqlite: close run: reset seen")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE clinics SET missed_runs = missed_runs + 1 WHERE active AND id NOT IN `+inClause, inArgs...); err != nil {
		return 0, eris.Wrap(err, "sqlite: close run: increment missed")
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE clinics SET active = FALSE WHERE active AND missed_runs >= ?`, deactivateAfter)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: close run: deactivate")
	}
	deactivated, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: close run: rows affected")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: close run: commit")
	}
	return deactivated, nil
}

// int64InClause builds a "(?,?,...)" IN clause plus its args. An empty id
// set yields "(NULL)", which matches nothing.
func int64InClause(ids []int64) (string, []any) {
	if len(ids) == 0 {
		return "(NULL)", nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return "(?" + strings.Repeat(",?", len(ids)-1) + ")", args
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, stage, status, started_at) VALUES (?,?,?,?)`,
		run.ID, run.Stage, string(run.Status), run.StartedAt); err != nil {
		return eris.Wrapf(err, "sqlite: create run %s", run.ID)
	}
	return nil
}

func (s *SQLiteStore) StartRun(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = 'running' WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: start run %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: start run: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status model.RunStatus, counts model.RunCounts, errText string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, found = ?, new = ?, updated = ?, failed = ?,
			error = ?, completed_at = datetime('now')
		WHERE id = ? AND status IN ('pending', 'running')`,
		string(status), counts.Found, counts.New, counts.Updated, counts.Failed, errText, id)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: finish run %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: finish run: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runCols+` FROM runs WHERE id = ?`, id)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, stage string, limit int) ([]model.Run, error) {
	query := `SELECT ` + runCols + ` FROM runs`
	var args []any
	if stage != "" {
		query += " WHERE stage = ?"
		args = append(args, stage)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)
	return s.queryRuns(ctx, query, args...)
}

func (s *SQLiteStore) LastCompleted(ctx context.Context, stage string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runCols+` FROM runs
		WHERE stage = ? AND status = 'completed'
		ORDER BY completed_at DESC LIMIT 1`, stage)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: last completed %s", stage)
	}
	return &r, nil
}

func (s *SQLiteStore) StaleRunning(ctx context.Context, cutoff time.Time) ([]model.Run, error) {
	return s.queryRuns(ctx, `
		SELECT `+runCols+` FROM runs
		WHERE status = 'running' AND started_at < ?
		ORDER BY started_at`, cutoff)
}

type sqliteRow interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row sqliteRow) (model.Run, error) {
	var r model.Run
	var status string
	err := row.Scan(&r.ID, &r.Stage, &status, &r.Counts.Found, &r.Counts.New,
		&r.Counts.Updated, &r.Counts.Failed, &r.Error, &r.StartedAt, &r.CompletedAt)
	r.Status = model.RunStatus(status)
	return r, err
}

func (s *SQLiteStore) queryRuns(ctx context.Context, query string, args ...any) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) ScoringInputs(ctx context.Context) ([]scoring.ClinicInput, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		return nil, eris.Wrap(err, "sqlite: query scoring inputs")
	}
	defer rows.Close()

	var inputs []scoring.ClinicInput
	for rows.Next() {
		var in scoring.ClinicInput
		if err := rows.Scan(&in.ID, &in.Region, &in.Category, &in.Rating,
			&in.ReviewCount, &in.LastSignalAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scoring input")
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

func (s *SQLiteStore) SaveVisibilitySnapshots(ctx context.Context, snaps []model.VisibilitySnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: save visibility snapshots: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO visibility_snapshots (clinic_id, calc_date, rating_score,
			volume_score, recency_score, geo_score, composite, local_rank, global_rank)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT (clinic_id, calc_date) DO UPDATE SET
			rating_score=excluded.rating_score, volume_score=excluded.volume_score,
			recency_score=excluded.recency_score, geo_score=excluded.geo_score,
			composite=excluded.composite, local_rank=excluded.local_rank,
			global_rank=excluded.global_rank`)
	if err != nil {
		return eris.Wrap(err, "sqlite: save visibility snapshots: prepare")
	}
	defer stmt.Close()

	for _, snap := range snaps {
		if _, err := stmt.ExecContext(ctx, snap.ClinicID, snap.CalcDate,
			snap.RatingScore, snap.VolumeScore, snap.RecencyScore, snap.GeoScore,
			snap.Composite, snap.LocalRank, snap.GlobalRank); err != nil {
			return eris.Wrapf(err, "sqlite: save visibility snapshot for clinic %d", snap.ClinicID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: save visibility snapshots: commit")
}

func (s *SQLiteStore) SaveMarketSnapshots(ctx context.Context, snaps []model.MarketSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: save market snapshots: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO market_snapshots (region, category, calc_date, demand_index,
			trend, clinic_count, avg_rating, top3_share, opportunity)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT (region, category, calc_date) DO UPDATE SET
			demand_index=excluded.demand_index, trend=excluded.trend,
			clinic_count=excluded.clinic_count, avg_rating=excluded.avg_rating,
			top3_share=excluded.top3_share, opportunity=excluded.opportunity`)
	if err != nil {
		return eris.Wrap(err, "sqlite: save market snapshots: prepare")
	}
	defer stmt.Close()

	for _, snap := range snaps {
		if _, err := stmt.ExecContext(ctx, snap.Region, snap.Category, snap.CalcDate,
			snap.DemandIndex, string(snap.Trend), snap.ClinicCount, snap.AvgRating,
			snap.Top3Share, snap.Opportunity); err != nil {
			return eris.Wrapf(err, "sqlite: save market snapshot for %s/%s", snap.Region, snap.Category)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: save market snapshots: commit")
}

func (s *SQLiteStore) VisibilitySnapshots(ctx context.Context, calcDate time.Time) ([]model.VisibilitySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT clinic_id, calc_date, rating_score, volume_score, recency_score,
		       geo_score, composite, local_rank, global_rank
		FROM visibility_snapshots WHERE calc_date = ? ORDER BY global_rank`, calcDate)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query visibility snapshots")
	}
	defer rows.Close()

	var snaps []model.VisibilitySnapshot
	for rows.Next() {
		var snap model.VisibilitySnapshot
		if err := rows.Scan(&snap.ClinicID, &snap.CalcDate, &snap.RatingScore,
			&snap.VolumeScore, &snap.RecencyScore, &snap.GeoScore,
			&snap.Composite, &snap.LocalRank, &snap.GlobalRank); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan visibility snapshot")
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *SQLiteStore) MarketSnapshots(ctx context.Context, calcDate time.Time) ([]model.MarketSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT region, category, calc_date, demand_index, trend, clinic_count,
		       avg_rating, top3_share, opportunity
		FROM market_snapshots WHERE calc_date = ? ORDER BY region, category`, calcDate)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query market snapshots")
	}
	defer rows.Close()

	var snaps []model.MarketSnapshot
	for rows.Next() {
		var snap model.MarketSnapshot
		var trend string
		if err := rows.Scan(&snap.Region, &snap.Category, &snap.CalcDate,
			&snap.DemandIndex, &trend, &snap.ClinicCount, &snap.AvgRating,
			&snap.Top3Share, &snap.Opportunity); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan market snapshot")
		}
		snap.Trend = model.TrendDirection(trend)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
