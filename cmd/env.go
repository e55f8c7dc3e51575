package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/clinic-intel/internal/pipeline"
	"github.com/sells-group/clinic-intel/internal/provider"
	"github.com/sells-group/clinic-intel/internal/store"
	"github.com/sells-group/clinic-intel/pkg/places"
	"github.com/sells-group/clinic-intel/pkg/trends"
	"github.com/sells-group/clinic-intel/pkg/yelp"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "clinic-intel.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// listingSources builds one provider.Source per enabled listing provider.
func listingSources() ([]provider.Source, error) {
	var sources []provider.Source

	if cfg.Registry.Enabled {
		if cfg.Registry.Addr == "" {
			return nil, eris.New("registry enabled but no FTP address configured (CLINIC_REGISTRY_ADDR)")
		}
		sources = append(sources, provider.NewRegistrySource(cfg.Registry))
	}
	if cfg.Places.Enabled {
		if cfg.Places.Key == "" {
			return nil, eris.New("places enabled but no API key configured (CLINIC_PLACES_KEY)")
		}
		var opts []places.Option
		if cfg.Places.BaseURL != "" {
			opts = append(opts, places.WithBaseURL(cfg.Places.BaseURL))
		}
		sources = append(sources, provider.NewPlacesSource(places.NewClient(cfg.Places.Key, opts...), cfg.Market))
	}
	if cfg.Yelp.Enabled {
		if cfg.Yelp.Key == "" {
			return nil, eris.New("yelp enabled but no API key configured (CLINIC_YELP_KEY)")
		}
		var opts []yelp.Option
		if cfg.Yelp.BaseURL != "" {
			opts = append(opts, yelp.WithBaseURL(cfg.Yelp.BaseURL))
		}
		sources = append(sources, provider.NewYelpSource(yelp.NewClient(cfg.Yelp.Key, opts...), cfg.Market))
	}

	return sources, nil
}

// signalSource builds the search-interest source, nil when disabled.
func signalSource() provider.SignalSource {
	if !cfg.Trends.Enabled {
		return nil
	}
	var opts []trends.Option
	if cfg.Trends.BaseURL != "" {
		opts = append(opts, trends.WithBaseURL(cfg.Trends.BaseURL))
	}
	client := trends.NewClient(cfg.Trends.Key, opts...)
	return provider.NewTrendsSource(client, cfg.Trends, cfg.Score.DemandWindowDays)
}

func initEngine(ctx context.Context) (*pipeline.Engine, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}

	sources, err := listingSources()
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}

	eng, err := pipeline.New(cfg, st, sources, signalSource())
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}
	return eng, st, nil
}
