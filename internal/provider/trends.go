package provider

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/clinic-intel/internal/config"
	"github.com/sells-group/clinic-intel/internal/model"
	"github.com/sells-group/clinic-intel/pkg/trends"
)

// TrendsSource adapts the search-interest API to the signal collector.
type TrendsSource struct {
	client trends.Client
	cfg    config.TrendsConfig
	days   int
}

// NewTrendsSource creates a TrendsSource covering the given trailing window.
func NewTrendsSource(client trends.Client, cfg config.TrendsConfig, windowDays int) *TrendsSource {
	return &TrendsSource{client: client, cfg: cfg, days: windowDays}
}

// Name implements SignalSource.
func (s *TrendsSource) Name() string { return SourceTrends }

// Check implements SignalSource.
func (s *TrendsSource) Check(ctx context.Context) error {
	_, err := s.client.InterestOverTime(ctx, trends.InterestRequest{
		Keyword: "clinic",
		Geo:     s.cfg.Geo,
		Days:    7,
	})
	if err != nil {
		return eris.Wrap(classifyTrendsErr(err), "provider: trends connectivity check")
	}
	return nil
}

// Fetch implements SignalSource. Returns one signal per day in the window.
func (s *TrendsSource) Fetch(ctx context.Context, q Query) ([]model.InterestSignal, error) {
	resp, err := s.client.InterestOverTime(ctx, trends.InterestRequest{
		Keyword: q.Keyword,
		Geo:     s.cfg.Geo,
		Days:    s.days,
	})
	if err != nil {
		return nil, eris.Wrapf(classifyTrendsErr(err), "provider: trends fetch %q", q.Keyword)
	}

	signals := make([]model.InterestSignal, 0, len(resp.Points))
	for _, p := range resp.Points {
		day, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return nil, eris.Wrapf(err, "provider: trends parse date %q", p.Date)
		}
		signals = append(signals, model.InterestSignal{
			Keyword:  q.Keyword,
			Category: q.Category,
			Region:   s.cfg.Geo,
			Day:      day.UTC(),
			Score:    int(math.Round(p.Value)),
		})
	}

	return signals, nil
}

func classifyTrendsErr(err error) error {
	var statusErr *trends.StatusError
	if errors.As(err, &statusErr) {
		return transientStatus(err, statusErr.StatusCode)
	}
	return err
}
