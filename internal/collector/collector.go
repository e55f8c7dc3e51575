// Package collector drives fetches against one listing or signal
// source: connectivity check up front, then each configured query in
// sequence under the source's rate limit, with retries on transient
// failures. A query that keeps failing is counted and skipped; the run
// carries on and reports it, while a failed connectivity check fails
// the whole run before any fetch. A circuit breaker watches consecutive
// query failures and fails the rest of the run fast once the source
// looks down.
package collector

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/clinic-intel/internal/model"
	"github.com/sells-group/clinic-intel/internal/provider"
	"github.com/sells-group/clinic-intel/internal/resilience"
)

// Options configures a collection pass over one source.
type Options struct {
	RatePerSecond float64
	MaxRetries    int
	FetchTimeout  time.Duration

	// sleep overrides the backoff sleep in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func (o Options) limiter() *rate.Limiter {
	if o.RatePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(o.RatePerSecond), 1)
}

func (o Options) retryConfig(source string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	if o.MaxRetries > 0 {
		cfg.MaxAttempts = o.MaxRetries
	}
	cfg.OnRetry = resilience.RetryLogger(source, "fetch")
	if o.sleep != nil {
		cfg.Sleep = o.sleep
	}
	return cfg
}

func breaker(source string) *resilience.Circuit {
	cfg := resilience.DefaultCircuitConfig()
	// Only provider outages should trip; a rejected query is skipped
	// without opening the circuit.
	cfg.ShouldTrip = resilience.IsTransient
	cfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("circuit state changed",
			zap.String("component", "collector"),
			zap.String("source", source),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
	}
	return resilience.NewCircuit(cfg)
}

// Result is the outcome of one collection pass.
type Result struct {
	Counts model.RunCounts

	// FailedQueries lists keywords that exhausted their retries. The
	// run still completes; these surface in the run row's error text.
	FailedQueries []string
}

// ErrorText renders the failed queries for the run ledger, empty when
// every query succeeded.
func (r Result) ErrorText() string {
	if len(r.FailedQueries) == 0 {
		return ""
	}
	return "failed queries: " + strings.Join(r.FailedQueries, ", ")
}

// Collector fetches listing records from one source.
type Collector struct {
	src     provider.Source
	opts    Options
	breaker *resilience.Circuit
}

// New creates a Collector around src.
func New(src provider.Source, opts Options) *Collector {
	return &Collector{src: src, opts: opts, breaker: breaker(src.Name())}
}

// Collect runs the connectivity check and every query, returning the
// records deduplicated by source ID with the latest fetch winning.
func (c *Collector) Collect(ctx context.Context, queries []provider.Query) ([]model.SourceRecord, Result, error) {
	log := zap.L().With(zap.String("component", "collector"), zap.String("source", c.src.Name()))

	if err := c.src.Check(ctx); err != nil {
		return nil, Result{}, eris.Wrapf(err, "collector: %s check", c.src.Name())
	}

	var (
		result  Result
		order   []string
		byID    = map[string]model.SourceRecord{}
		limiter = c.opts.limiter()
		retry   = c.opts.retryConfig(c.src.Name())
	)

	for _, q := range queries {
		if err := limiter.Wait(ctx); err != nil {
			return nil, Result{}, eris.Wrap(err, "collector: rate limit wait")
		}

		records, err := resilience.CircuitVal(ctx, c.breaker, func(ctx context.Context) ([]model.SourceRecord, error) {
			return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.SourceRecord, error) {
				fetchCtx, cancel := c.fetchContext(ctx)
				defer cancel()
				return c.src.Fetch(fetchCtx, q)
			})
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, Result{}, eris.Wrapf(err, "collector: %s fetch %q", c.src.Name(), q.Keyword)
			}
			if errors.Is(err, resilience.ErrCircuitOpen) {
				return nil, Result{}, eris.Wrapf(err, "collector: %s down after repeated failures", c.src.Name())
			}
			log.Warn("query failed, continuing",
				zap.String("keyword", q.Keyword),
				zap.Error(err))
			result.Counts.Failed++
			result.FailedQueries = append(result.FailedQueries, q.Keyword)
			continue
		}

		for _, rec := range records {
			if _, seen := byID[rec.SourceID]; !seen {
				order = append(order, rec.SourceID)
			}
			byID[rec.SourceID] = rec
		}

		log.Debug("query complete",
			zap.String("keyword", q.Keyword),
			zap.Int("records", len(records)))
	}

	out := make([]model.SourceRecord, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	result.Counts.Found = len(out)

	log.Info("collection pass complete",
		zap.Int("found", result.Counts.Found),
		zap.Int("failed_queries", result.Counts.Failed))

	return out, result, nil
}

func (c *Collector) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.FetchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.FetchTimeout)
}

// SignalCollector fetches interest signals from one signal source.
type SignalCollector struct {
	src     provider.SignalSource
	opts    Options
	breaker *resilience.Circuit
}

// NewSignal creates a SignalCollector around src.
func NewSignal(src provider.SignalSource, opts Options) *SignalCollector {
	return &SignalCollector{src: src, opts: opts, breaker: breaker(src.Name())}
}

// Collect runs the connectivity check and every query, returning one
// signal per (keyword, day) with the latest fetch winning.
func (c *SignalCollector) Collect(ctx context.Context, queries []provider.Query) ([]model.InterestSignal, Result, error) {
	log := zap.L().With(zap.String("component", "collector"), zap.String("source", c.src.Name()))

	if err := c.src.Check(ctx); err != nil {
		return nil, Result{}, eris.Wrapf(err, "collector: %s check", c.src.Name())
	}

	type signalKey struct {
		keyword string
		day     time.Time
	}

	var (
		result  Result
		order   []signalKey
		byKey   = map[signalKey]model.InterestSignal{}
		limiter = c.opts.limiter()
		retry   = c.opts.retryConfig(c.src.Name())
	)

	for _, q := range queries {
		if err := limiter.Wait(ctx); err != nil {
			return nil, Result{}, eris.Wrap(err, "collector: rate limit wait")
		}

		signals, err := resilience.CircuitVal(ctx, c.breaker, func(ctx context.Context) ([]model.InterestSignal, error) {
			return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.InterestSignal, error) {
				fetchCtx, cancel := context.WithCancel(ctx)
				if c.opts.FetchTimeout > 0 {
					fetchCtx, cancel = context.WithTimeout(ctx, c.opts.FetchTimeout)
				}
				defer cancel()
				return c.src.Fetch(fetchCtx, q)
			})
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, Result{}, eris.Wrapf(err, "collector: %s fetch %q", c.src.Name(), q.Keyword)
			}
			if errors.Is(err, resilience.ErrCircuitOpen) {
				return nil, Result{}, eris.Wrapf(err, "collector: %s down after repeated failures", c.src.Name())
			}
			log.Warn("query failed, continuing",
				zap.String("keyword", q.Keyword),
				zap.Error(err))
			result.Counts.Failed++
			result.FailedQueries = append(result.FailedQueries, q.Keyword)
			continue
		}

		for _, sig := range signals {
			key := signalKey{keyword: sig.Keyword, day: sig.Day}
			if _, seen := byKey[key]; !seen {
				order = append(order, key)
			}
			byKey[key] = sig
		}
	}

	out := make([]model.InterestSignal, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	result.Counts.Found = len(out)

	log.Info("signal pass complete",
		zap.Int("found", result.Counts.Found),
		zap.Int("failed_queries", result.Counts.Failed))

	return out, result, nil
}
