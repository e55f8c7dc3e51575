// Package ledger tracks pipeline stage runs. Every stage execution is
// bracketed by a run row so operators can answer what ran, when, and
// with what outcome. Terminal transitions happen at most once: the
// store refuses to move a completed or failed run, and the ledger
// surfaces that refusal as an error instead of silently rewriting
// history.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/clinic-intel/internal/model"
)

// Store is the run persistence surface the ledger needs.
type Store interface {
	// CreateRun inserts a new run row.
	CreateRun(ctx context.Context, run model.Run) error

	// StartRun moves a pending run to running. Returns false when the
	// run is not pending.
	StartRun(ctx context.Context, id string) (bool, error)

	// FinishRun moves a non-terminal run to the given terminal status.
	// Returns false when the run is already terminal.
	FinishRun(ctx context.Context, id string, status model.RunStatus, counts model.RunCounts, errText string) (bool, error)

	// LastCompleted returns the most recent completed run for a stage,
	// or nil when the stage has never completed.
	LastCompleted(ctx context.Context, stage string) (*model.Run, error)

	// StaleRunning returns runs still marked running that started
	// before the cutoff.
	StaleRunning(ctx context.Context, cutoff time.Time) ([]model.Run, error)
}

// Ledger records stage runs against the store.
type Ledger struct {
	store Store
	now   func() time.Time
}

// New creates a Ledger.
func New(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Begin creates a run for the stage and marks it running.
func (l *Ledger) Begin(ctx context.Context, stage string) (*model.Run, error) {
	run := model.Run{
		ID:        uuid.NewString(),
		Stage:     stage,
		Status:    model.RunStatusPending,
		StartedAt: l.now().UTC(),
	}

	if err := l.store.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrapf(err, "ledger: create run for %s", stage)
	}

	ok, err := l.store.StartRun(ctx, run.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: start run %s", run.ID)
	}
	if !ok {
		return nil, eris.Errorf("ledger: run %s not pending", run.ID)
	}

	run.Status = model.RunStatusRunning
	zap.L().Info("run started",
		zap.String("run_id", run.ID),
		zap.String("stage", stage))
	return &run, nil
}

// Complete marks the run completed with its final counters. The error
// text carries partial failures (for example queries that exhausted
// retries) on an otherwise successful run.
func (l *Ledger) Complete(ctx context.Context, run *model.Run, counts model.RunCounts, errText string) error {
	return l.finish(ctx, run, model.RunStatusCompleted, counts, errText)
}

// Fail marks the run failed.
func (l *Ledger) Fail(ctx context.Context, run *model.Run, errText string) error {
	return l.finish(ctx, run, model.RunStatusFailed, run.Counts, errText)
}

func (l *Ledger) finish(ctx context.Context, run *model.Run, status model.RunStatus, counts model.RunCounts, errText string) error {
	ok, err := l.store.FinishRun(ctx, run.ID, status, counts, errText)
	if err != nil {
		return eris.Wrapf(err, "ledger: finish run %s", run.ID)
	}
	if !ok {
		return eris.Errorf("ledger: run %s already terminal", run.ID)
	}

	run.Status = status
	run.Counts = counts
	run.Error = errText
	completed := l.now().UTC()
	run.CompletedAt = &completed

	zap.L().Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("stage", run.Stage),
		zap.String("status", string(status)),
		zap.Int("found", counts.Found),
		zap.Int("failed", counts.Failed))
	return nil
}

// LastCompleted returns the most recent completed run for a stage.
func (l *Ledger) LastCompleted(ctx context.Context, stage string) (*model.Run, error) {
	run, err := l.store.LastCompleted(ctx, stage)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: last completed for %s", stage)
	}
	return run, nil
}

// CompletedToday reports whether the stage already completed on the
// same UTC day. Drives the scheduler's idempotent same-day skip.
func (l *Ledger) CompletedToday(ctx context.Context, stage string) (bool, error) {
	run, err := l.LastCompleted(ctx, stage)
	if err != nil || run == nil {
		return false, err
	}
	y1, m1, d1 := run.StartedAt.UTC().Date()
	y2, m2, d2 := l.now().UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2, nil
}

// SweepStale fails runs stuck in running longer than staleAfter. A run
// stays running forever when its process dies mid-stage; the sweep
// turns those into explicit failures so the next cycle can proceed.
func (l *Ledger) SweepStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := l.now().UTC().Add(-staleAfter)

	stale, err := l.store.StaleRunning(ctx, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "ledger: list stale runs")
	}

	swept := 0
	for _, run := range stale {
		ok, err := l.store.FinishRun(ctx, run.ID, model.RunStatusFailed, run.Counts, "recovered: exceeded stale run threshold")
		if err != nil {
			return swept, eris.Wrapf(err, "ledger: sweep run %s", run.ID)
		}
		if !ok {
			continue
		}
		swept++
		zap.L().Warn("stale run swept",
			zap.String("run_id", run.ID),
			zap.String("stage", run.Stage),
			zap.Time("started_at", run.StartedAt))
	}
	return swept, nil
}
