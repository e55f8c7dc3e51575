package store

const postgresSchema = `
CREATE TABLE IF NOT EXISTS clinics (
	id             BIGSERIAL PRIMARY KEY,
	name           TEXT NOT NULL,
	address        TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL DEFAULT '',
	postal_code    TEXT NOT NULL DEFAULT '',
	region_code    TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	website        TEXT NOT NULL DEFAULT '',
	latitude       DOUBLE PRECISION,
	longitude      DOUBLE PRECISION,
	coord_source   TEXT NOT NULL DEFAULT '',
	active         BOOLEAN NOT NULL DEFAULT TRUE,
	missed_runs    INTEGER NOT NULL DEFAULT 0,
	last_merged_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS clinic_sources (
	source       TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	clinic_id    BIGINT NOT NULL REFERENCES clinics(id),
	rating       DOUBLE PRECISION,
	rating_count INTEGER,
	last_seen_at TIMESTAMPTZ NOT NULL,
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
	latitude       DOUBLE PRECISION,
	longitude      DOUBLE PRECISION,
	rating         DOUBLE PRECISION,
	rating_count   INTEGER,
	last_signal_at TIMESTAMPTZ,
	fetched_at     TIMESTAMPTZ NOT NULL,
	raw            JSONB,
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
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS visibility_snapshots (
	clinic_id     BIGINT NOT NULL REFERENCES clinics(id),
	calc_date     DATE NOT NULL,
	rating_score  DOUBLE PRECISION NOT NULL,
	volume_score  DOUBLE PRECISION NOT NULL,
	recency_score DOUBLE PRECISION NOT NULL,
	geo_score     DOUBLE PRECISION NOT NULL,
	composite     DOUBLE PRECISION NOT NULL,
	local_rank    INTEGER NOT NULL,
	global_rank   INTEGER NOT NULL,
	PRIMARY KEY (clinic_id, calc_date)
);

CREATE TABLE IF NOT EXISTS market_snapshots (
	region       TEXT NOT NULL,
	category     TEXT NOT NULL,
	calc_date    DATE NOT NULL,
	demand_index DOUBLE PRECISION NOT NULL,
	trend        TEXT NOT NULL,
	clinic_count INTEGER NOT NULL,
	avg_rating   DOUBLE PRECISION NOT NULL,
	top3_share   DOUBLE PRECISION NOT NULL,
	opportunity  DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (region, category, calc_date)
);

CREATE TABLE IF NOT EXISTS regions (
	code    TEXT PRIMARY KEY,
	name    TEXT NOT NULL DEFAULT '',
	polygon BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS resolution_flags (
	id          BIGSERIAL PRIMARY KEY,
	clinic_id   BIGINT NOT NULL REFERENCES clinics(id),
	source      TEXT NOT NULL,
	field       TEXT NOT NULL,
	existing    TEXT NOT NULL DEFAULT '',
	incoming    TEXT NOT NULL DEFAULT '',
	distance_km DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_clinics_active ON clinics(active);
CREATE INDEX IF NOT EXISTS idx_clinics_region ON clinics(region_code);
CREATE INDEX IF NOT EXISTS idx_clinic_sources_clinic ON clinic_sources(clinic_id);
CREATE INDEX IF NOT EXISTS idx_runs_stage_status ON runs(stage, status);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_signals_category_day ON interest_signals(category, day);
`
