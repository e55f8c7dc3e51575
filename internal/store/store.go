// Package store owns all persistence for the pipeline. Two backends
// implement the same interface: Postgres (pgx) for deployments and
// SQLite (modernc, no cgo) for single-binary and local use.
package store

import (
	"context"
	"time"

	"github.com/sells-group/clinic-intel/internal/model"
	"github.com/sells-group/clinic-intel/internal/scoring"
)

// Store is the full persistence surface.
type Store interface {
	Migrate(ctx context.Context) error
	Close() error

	// Raw source records, keyed by (source, source_id); a re-fetch
	// replaces the stored row.
	UpsertSourceRecords(ctx context.Context, recs []model.SourceRecord) error
	SourceRecords(ctx context.Context, source string) ([]model.SourceRecord, error)
	ExistingSourceIDs(ctx context.Context, source string) (map[string]bool, error)

	// Interest signals, keyed by (keyword, region, day).
	UpsertInterestSignals(ctx context.Context, sigs []model.InterestSignal) error
	InterestSignals(ctx context.Context, since time.Time) ([]model.InterestSignal, error)

	// Canonical clinics and their source mappings.
	ActiveClinics(ctx context.Context) ([]model.Clinic, error)
	ListClinics(ctx context.Context, region string, activeOnly bool) ([]model.Clinic, error)
	SourceMappings(ctx context.Context, source string) (map[string]int64, error)
	CreateClinic(ctx context.Context, c *model.Clinic) (int64, error)
	UpdateClinic(ctx context.Context, c model.Clinic) error
	UpdateClinicRegion(ctx context.Context, clinicID int64, code string) error
	AttachSource(ctx context.Context, cs model.ClinicSource) (int64, error)

	// Region boundary polygons for point-in-polygon assignment.
	UpsertRegions(ctx context.Context, regions []model.Region) error
	Regions(ctx context.Context) ([]model.Region, error)
	InsertFlag(ctx context.Context, f model.ResolutionFlag) error
	ListFlags(ctx context.Context, limit int) ([]model.ResolutionFlag, error)
	CloseRun(ctx context.Context, seen []int64, deactivateAfter int) (int64, error)

	// Run ledger rows.
	CreateRun(ctx context.Context, run model.Run) error
	StartRun(ctx context.Context, id string) (bool, error)
	FinishRun(ctx context.Context, id string, status model.RunStatus, counts model.RunCounts, errText string) (bool, error)
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, stage string, limit int) ([]model.Run, error)
	LastCompleted(ctx context.Context, stage string) (*model.Run, error)
	StaleRunning(ctx context.Context, cutoff time.Time) ([]model.Run, error)

	// Scoring inputs and dated snapshots.
	ScoringInputs(ctx context.Context) ([]scoring.ClinicInput, error)
	SaveVisibilitySnapshots(ctx context.Context, snaps []model.VisibilitySnapshot) error
	SaveMarketSnapshots(ctx context.Context, snaps []model.MarketSnapshot) error
	VisibilitySnapshots(ctx context.Context, calcDate time.Time) ([]model.VisibilitySnapshot, error)
	MarketSnapshots(ctx context.Context, calcDate time.Time) ([]model.MarketSnapshot, error)
}
