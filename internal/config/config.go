package config

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Places   ProviderConfig `yaml:"places" mapstructure:"places"`
	Yelp     ProviderConfig `yaml:"yelp" mapstructure:"yelp"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Trends   TrendsConfig   `yaml:"trends" mapstructure:"trends"`
	Market   MarketConfig   `yaml:"market" mapstructure:"market"`
	Collect  CollectConfig  `yaml:"collect" mapstructure:"collect"`
	Resolve  ResolveConfig  `yaml:"resolve" mapstructure:"resolve"`
	Score    ScoreConfig    `yaml:"score" mapstructure:"score"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ProviderConfig holds settings common to the HTTP listing providers.
type ProviderConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`
	Enabled       bool    `yaml:"enabled" mapstructure:"enabled"`
}

// RegistryConfig configures the state licensing roster source (XLSX over FTP).
type RegistryConfig struct {
	Addr          string  `yaml:"addr" mapstructure:"addr"` // host:port
	User          string  `yaml:"user" mapstructure:"user"`
	Password      string  `yaml:"password" mapstructure:"password"`
	Path          string  `yaml:"path" mapstructure:"path"` // remote roster path
	Sheet         string  `yaml:"sheet" mapstructure:"sheet"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`
	Enabled       bool    `yaml:"enabled" mapstructure:"enabled"`
}

// TrendsConfig configures the search-interest signal source.
type TrendsConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Geo           string  `yaml:"geo" mapstructure:"geo"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`
	Enabled       bool    `yaml:"enabled" mapstructure:"enabled"`
}

// MarketConfig scopes collection to one metro market.
type MarketConfig struct {
	City        string              `yaml:"city" mapstructure:"city"`
	State       string              `yaml:"state" mapstructure:"state"`
	Latitude    float64             `yaml:"latitude" mapstructure:"latitude"`
	Longitude   float64             `yaml:"longitude" mapstructure:"longitude"`
	PostalCodes []string            `yaml:"postal_codes" mapstructure:"postal_codes"`
	RadiusM     int                 `yaml:"radius_m" mapstructure:"radius_m"`
	Categories  map[string][]string `yaml:"categories" mapstructure:"categories"` // category -> keywords
}

// CollectConfig configures the collector framework.
type CollectConfig struct {
	FetchTimeoutSecs int `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	RunTimeoutSecs   int `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
}

// ResolveConfig configures entity resolution.
type ResolveConfig struct {
	NameSimilarity      float64 `yaml:"name_similarity" mapstructure:"name_similarity"`
	NameOnlySimilarity  float64 `yaml:"name_only_similarity" mapstructure:"name_only_similarity"`
	MatchRadiusKM       float64 `yaml:"match_radius_km" mapstructure:"match_radius_km"`
	CoordToleranceKM    float64 `yaml:"coord_tolerance_km" mapstructure:"coord_tolerance_km"`
	DeactivateAfterRuns int     `yaml:"deactivate_after_runs" mapstructure:"deactivate_after_runs"`
	TrustFile           string  `yaml:"trust_file" mapstructure:"trust_file"`
}

// ScoreConfig configures the scoring engine. Weights must sum to 1.0.
type ScoreConfig struct {
	RatingWeight  float64 `yaml:"rating_weight" mapstructure:"rating_weight"`
	VolumeWeight  float64 `yaml:"volume_weight" mapstructure:"volume_weight"`
	RecencyWeight float64 `yaml:"recency_weight" mapstructure:"recency_weight"`
	GeoWeight     float64 `yaml:"geo_weight" mapstructure:"geo_weight"`

	// VolumeSaturation is the review count at which the volume sub-score
	// reaches 100; growth above it is flat (log1p saturation below it).
	VolumeSaturation int `yaml:"volume_saturation" mapstructure:"volume_saturation"`

	// RecencyHalfLifeDays controls the exponential decay of the recency
	// sub-score with time since the last observed review/signal.
	RecencyHalfLifeDays int `yaml:"recency_half_life_days" mapstructure:"recency_half_life_days"`

	// DemandWindowDays is the trailing window for the demand index.
	DemandWindowDays int `yaml:"demand_window_days" mapstructure:"demand_window_days"`

	// Week-over-week percent-change thresholds for trend classification.
	TrendUpPct   float64 `yaml:"trend_up_pct" mapstructure:"trend_up_pct"`
	TrendDownPct float64 `yaml:"trend_down_pct" mapstructure:"trend_down_pct"`

	// OpportunityScale multiplies demand/(count+1) before clamping to [0,100].
	OpportunityScale float64 `yaml:"opportunity_scale" mapstructure:"opportunity_scale"`
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	ContinueOnError bool   `yaml:"continue_on_error" mapstructure:"continue_on_error"`
	DailyAt         string `yaml:"daily_at" mapstructure:"daily_at"` // "HH:MM", local time
	StaleAfterMins  int    `yaml:"stale_after_mins" mapstructure:"stale_after_mins"`
	RunTimeoutMins  int    `yaml:"run_timeout_mins" mapstructure:"run_timeout_mins"`
}

// ServerConfig configures the read-only view server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CLINIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("places.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("places.rate_per_second", 5)
	v.SetDefault("places.max_retries", 3)
	v.SetDefault("places.enabled", true)
	v.SetDefault("yelp.base_url", "https://api.yelp.com/v3")
	v.SetDefault("yelp.rate_per_second", 4)
	v.SetDefault("yelp.max_retries", 3)
	v.SetDefault("yelp.enabled", true)
	v.SetDefault("registry.sheet", "Roster")
	v.SetDefault("registry.rate_per_second", 1)
	v.SetDefault("registry.max_retries", 3)
	v.SetDefault("registry.enabled", false)
	v.SetDefault("trends.base_url", "https://trends.googleapis.com/v1")
	v.SetDefault("trends.geo", "US-IL-602")
	v.SetDefault("trends.rate_per_second", 0.5)
	v.SetDefault("trends.max_retries", 3)
	v.SetDefault("trends.enabled", true)

	v.SetDefault("market.city", "Chicago")
	v.SetDefault("market.state", "IL")
	v.SetDefault("market.latitude", 41.8781)
	v.SetDefault("market.longitude", -87.6298)
	v.SetDefault("market.radius_m", 5000)
	v.SetDefault("market.categories", map[string][]string{
		"urgent_care":  {"urgent care", "walk-in clinic"},
		"primary_care": {"family doctor", "primary care physician"},
		"pediatric":    {"pediatric clinic", "pediatrician"},
		"dental":       {"dental clinic", "dentist"},
		"specialty":    {"physical therapy", "dermatology"},
	})

	v.SetDefault("collect.fetch_timeout_secs", 15)
	v.SetDefault("collect.run_timeout_secs", 1800)

	v.SetDefault("resolve.name_similarity", 0.60)
	v.SetDefault("resolve.name_only_similarity", 0.85)
	v.SetDefault("resolve.match_radius_km", 0.5)
	v.SetDefault("resolve.coord_tolerance_km", 0.15)
	v.SetDefault("resolve.deactivate_after_runs", 3)

	v.SetDefault("score.rating_weight", 0.30)
	v.SetDefault("score.volume_weight", 0.30)
	v.SetDefault("score.recency_weight", 0.25)
	v.SetDefault("score.geo_weight", 0.15)
	v.SetDefault("score.volume_saturation", 500)
	v.SetDefault("score.recency_half_life_days", 90)
	v.SetDefault("score.demand_window_days", 28)
	v.SetDefault("score.trend_up_pct", 5.0)
	v.SetDefault("score.trend_down_pct", -5.0)
	v.SetDefault("score.opportunity_scale", 1.0)

	v.SetDefault("pipeline.continue_on_error", false)
	v.SetDefault("pipeline.daily_at", "02:00")
	v.SetDefault("pipeline.stale_after_mins", 120)
	v.SetDefault("pipeline.run_timeout_mins", 120)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate enforces the invariants the pipeline refuses to run without.
// Called once at startup; any error here is fatal before a run begins.
func (c *Config) Validate() error {
	sum := c.Score.RatingWeight + c.Score.VolumeWeight + c.Score.RecencyWeight + c.Score.GeoWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return eris.Errorf("config: visibility weights sum to %.4f, want 1.0", sum)
	}
	for name, w := range map[string]float64{
		"rating_weight":  c.Score.RatingWeight,
		"volume_weight":  c.Score.VolumeWeight,
		"recency_weight": c.Score.RecencyWeight,
		"geo_weight":     c.Score.GeoWeight,
	} {
		if w < 0 {
			return eris.Errorf("config: score.%s is negative", name)
		}
	}
	if c.Score.VolumeSaturation <= 0 {
		return eris.New("config: score.volume_saturation must be positive")
	}
	if c.Score.RecencyHalfLifeDays <= 0 {
		return eris.New("config: score.recency_half_life_days must be positive")
	}
	if c.Score.TrendUpPct <= c.Score.TrendDownPct {
		return eris.New("config: score.trend_up_pct must exceed trend_down_pct")
	}
	if c.Resolve.NameSimilarity <= 0 || c.Resolve.NameSimilarity > 1 {
		return eris.New("config: resolve.name_similarity must be in (0,1]")
	}
	if c.Resolve.NameOnlySimilarity < c.Resolve.NameSimilarity {
		return eris.New("config: resolve.name_only_similarity must not be below name_similarity")
	}
	if c.Resolve.MatchRadiusKM <= 0 {
		return eris.New("config: resolve.match_radius_km must be positive")
	}
	if c.Resolve.DeactivateAfterRuns < 1 {
		return eris.New("config: resolve.deactivate_after_runs must be at least 1")
	}
	if c.Store.DatabaseURL == "" && c.Store.Driver != "sqlite" {
		return eris.New("config: store.database_url is required for postgres")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
