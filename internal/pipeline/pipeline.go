// Package pipeline sequences the daily pass: one collect run per
// enabled source in parallel, then entity resolution over the fresh
// records, then scoring.
// Every stage is tracked in the run ledger and is skipped
// when it already completed today, so a crashed pass can be re-run
// and only the unfinished stages execute.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/clinic-intel/internal/collector"
	"github.com/sells-group/clinic-intel/internal/config"
	"github.com/sells-group/clinic-intel/internal/ledger"
	"github.com/sells-group/clinic-intel/internal/model"
	"github.com/sells-group/clinic-intel/internal/provider"
	"github.com/sells-group/clinic-intel/internal/resolver"
	"github.com/sells-group/clinic-intel/internal/scoring"
	"github.com/sells-group/clinic-intel/internal/store"
)

// Engine orchestrates the collect -> resolve -> score pass.
type Engine struct {
	cfg      *config.Config
	store    store.Store
	ledger   *ledger.Ledger
	resolver *resolver.Resolver
	scorer   *scoring.Engine
	sources  []provider.Source
	signals  provider.SignalSource

	now func() time.Time
}

// New wires an Engine from the configured sources. The signal source
// may be nil when the trends provider is disabled.
func New(cfg *config.Config, st store.Store, sources []provider.Source, signals provider.SignalSource) (*Engine, error) {
	trust := config.DefaultTrustMatrix()
	if cfg.Resolve.TrustFile != "" {
		loaded, err := config.LoadTrustMatrix(cfg.Resolve.TrustFile)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: load trust matrix")
		}
		trust = loaded
	}

	scorer, err := scoring.NewEngine(cfg.Score)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: scoring config")
	}

	return &Engine{
		cfg:      cfg,
		store:    st,
		ledger:   ledger.New(st),
		resolver: resolver.New(st, cfg.Resolve, trust),
		scorer:   scorer,
		sources:  sources,
		signals:  signals,
		now:      time.Now,
	}, nil
}

// Queries expands the market's category keyword lists into collection
// queries, in deterministic category order.
func Queries(categories map[string][]string) []provider.Query {
	cats := make([]string, 0, len(categories))
	for cat := range categories {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	var queries []provider.Query
	for _, cat := range cats {
		for _, kw := range categories[cat] {
			queries = append(queries, provider.Query{Category: cat, Keyword: kw})
		}
	}
	return queries
}

// Run executes one full pass. Stages that already completed today are
// skipped unless force is set. With continue_on_error a failed stage
// is recorded and the pass moves on; otherwise the pass stops there.
func (e *Engine) Run(ctx context.Context, force bool) error {
	log := zap.L().With(zap.String("component", "pipeline"))

	if mins := e.cfg.Pipeline.RunTimeoutMins; mins > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(mins)*time.Minute)
		defer cancel()
	}

	if swept, err := e.ledger.SweepStale(ctx, time.Duration(e.cfg.Pipeline.StaleAfterMins)*time.Minute); err != nil {
		log.Warn("stale run sweep failed", zap.Error(err))
	} else if swept > 0 {
		log.Info("recovered stale runs", zap.Int("count", swept))
	}

	// The collect stages are independent of each other and fan out;
	// resolve and score need everything collected and run after.
	var g errgroup.Group
	for _, src := range e.sources {
		src := src
		g.Go(func() error { return e.CollectSource(ctx, src, force) })
	}
	if e.signals != nil {
		g.Go(func() error { return e.CollectSignals(ctx, force) })
	}
	firstErr := g.Wait()
	if firstErr != nil {
		if ctx.Err() != nil || !e.cfg.Pipeline.ContinueOnError {
			return firstErr
		}
		log.Warn("collect stage failed, continuing", zap.Error(firstErr))
	}

	for _, stage := range []func(context.Context, bool) error{e.Resolve, e.Score} {
		if err := stage(ctx, force); err != nil {
			if ctx.Err() != nil || !e.cfg.Pipeline.ContinueOnError {
				return err
			}
			log.Warn("stage failed, continuing", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// CollectSource runs one listing source's collection stage and stores
// the records it produced.
func (e *Engine) CollectSource(ctx context.Context, src provider.Source, force bool) error {
	stage := model.CollectStage(src.Name())
	return e.runStage(ctx, stage, force, func(ctx context.Context) (model.RunCounts, string, error) {
		col := collector.New(src, e.collectOptions(src.Name()))
		records, result, err := col.Collect(ctx, Queries(e.cfg.Market.Categories))
		if err != nil {
			return model.RunCounts{}, "", err
		}

		existing, err := e.store.ExistingSourceIDs(ctx, src.Name())
		if err != nil {
			return model.RunCounts{}, "", err
		}
		counts := result.Counts
		for _, rec := range records {
			if existing[rec.SourceID] {
				counts.Updated++
			} else {
				counts.New++
			}
		}

		if err := e.store.UpsertSourceRecords(ctx, records); err != nil {
			return model.RunCounts{}, "", err
		}
		return counts, result.ErrorText(), nil
	})
}

// CollectSignals runs the search-interest collection stage.
func (e *Engine) CollectSignals(ctx context.Context, force bool) error {
	if e.signals == nil {
		return eris.New("pipeline: no signal source configured")
	}
	return e.runStage(ctx, model.StageSignals, force, func(ctx context.Context) (model.RunCounts, string, error) {
		col := collector.NewSignal(e.signals, e.collectOptions(e.signals.Name()))
		sigs, result, err := col.Collect(ctx, Queries(e.cfg.Market.Categories))
		if err != nil {
			return model.RunCounts{}, "", err
		}
		if err := e.store.UpsertInterestSignals(ctx, sigs); err != nil {
			return model.RunCounts{}, "", err
		}
		return result.Counts, result.ErrorText(), nil
	})
}

// Resolve reconciles all stored source records into canonical clinics.
// Sources feed in trust order so the registry seeds names before the
// listing providers fill in the rest.
func (e *Engine) Resolve(ctx context.Context, force bool) error {
	return e.runStage(ctx, model.StageResolve, force, func(ctx context.Context) (model.RunCounts, string, error) {
		var records []model.SourceRecord
		for _, source := range []string{provider.SourceRegistry, provider.SourceGooglePlaces, provider.SourceYelp} {
			recs, err := e.store.SourceRecords(ctx, source)
			if err != nil {
				return model.RunCounts{}, "", err
			}
			records = append(records, recs...)
		}

		counts, err := e.resolver.Resolve(ctx, records)
		if err != nil {
			return model.RunCounts{}, "", err
		}
		errText := ""
		if counts.Failed > 0 {
			errText = fmt.Sprintf("%d records failed to resolve", counts.Failed)
		}
		return counts, errText, nil
	})
}

// Score computes and stores today's visibility and market snapshots.
func (e *Engine) Score(ctx context.Context, force bool) error {
	return e.runStage(ctx, model.StageScore, force, func(ctx context.Context) (model.RunCounts, string, error) {
		calcDate := e.now().UTC().Truncate(24 * time.Hour)

		clinics, err := e.store.ScoringInputs(ctx)
		if err != nil {
			return model.RunCounts{}, "", err
		}

		// Signals back to the start of the demand window, or the two
		// trend weeks when that is longer.
		windowDays := e.cfg.Score.DemandWindowDays
		if windowDays < 14 {
			windowDays = 14
		}
		signals, err := e.store.InterestSignals(ctx, calcDate.AddDate(0, 0, -windowDays))
		if err != nil {
			return model.RunCounts{}, "", err
		}

		out := e.scorer.Score(scoring.Dataset{
			Clinics:  clinics,
			Signals:  signals,
			CalcDate: calcDate,
		})

		if err := e.store.SaveVisibilitySnapshots(ctx, out.Visibility); err != nil {
			return model.RunCounts{}, "", err
		}
		if err := e.store.SaveMarketSnapshots(ctx, out.Markets); err != nil {
			return model.RunCounts{}, "", err
		}
		return model.RunCounts{Found: len(clinics), New: len(out.Visibility), Updated: len(out.Markets)}, "", nil
	})
}

// Schedule blocks, running one full pass at the configured local time
// each day until the context is cancelled.
func (e *Engine) Schedule(ctx context.Context) error {
	at, err := time.Parse("15:04", e.cfg.Pipeline.DailyAt)
	if err != nil {
		return eris.Wrapf(err, "pipeline: parse daily_at %q", e.cfg.Pipeline.DailyAt)
	}
	log := zap.L().With(zap.String("component", "pipeline"))

	for {
		next := e.nextRunTime(at)
		log.Info("next pass scheduled", zap.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := e.Run(ctx, false); err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Error("scheduled pass failed", zap.Error(err))
		}
	}
}

func (e *Engine) nextRunTime(at time.Time) time.Time {
	now := e.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (e *Engine) runStage(ctx context.Context, stage string, force bool, fn func(context.Context) (model.RunCounts, string, error)) error {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("stage", stage))

	if !force {
		done, err := e.ledger.CompletedToday(ctx, stage)
		if err != nil {
			return err
		}
		if done {
			log.Info("stage already completed today, skipping")
			return nil
		}
	}

	run, err := e.ledger.Begin(ctx, stage)
	if err != nil {
		return err
	}
	log.Info("stage started", zap.String("run_id", run.ID))

	counts, errText, err := fn(ctx)
	if err != nil {
		// The failure must reach the ledger even when the stage died of
		// cancellation or the whole-run timeout.
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if failErr := e.ledger.Fail(failCtx, run, err.Error()); failErr != nil {
			log.Warn("could not record failure", zap.Error(failErr))
		}
		return eris.Wrapf(err, "pipeline: stage %s", stage)
	}

	if err := e.ledger.Complete(ctx, run, counts, errText); err != nil {
		return err
	}
	log.Info("stage completed",
		zap.Int("found", counts.Found),
		zap.Int("new", counts.New),
		zap.Int("updated", counts.Updated),
		zap.Int("failed", counts.Failed))
	return nil
}

func (e *Engine) collectOptions(source string) collector.Options {
	opts := collector.Options{
		FetchTimeout: time.Duration(e.cfg.Collect.FetchTimeoutSecs) * time.Second,
	}
	switch source {
	case provider.SourceGooglePlaces:
		opts.RatePerSecond = e.cfg.Places.RatePerSecond
		opts.MaxRetries = e.cfg.Places.MaxRetries
	case provider.SourceYelp:
		opts.RatePerSecond = e.cfg.Yelp.RatePerSecond
		opts.MaxRetries = e.cfg.Yelp.MaxRetries
	case provider.SourceRegistry:
		opts.RatePerSecond = e.cfg.Registry.RatePerSecond
		opts.MaxRetries = e.cfg.Registry.MaxRetries
	case provider.SourceTrends:
		opts.RatePerSecond = e.cfg.Trends.RatePerSecond
		opts.MaxRetries = e.cfg.Trends.MaxRetries
	}
	return opts
}
