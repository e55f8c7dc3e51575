package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Store: StoreConfig{Driver: "postgres", DatabaseURL: "postgres://localhost/clinic"},
		Resolve: ResolveConfig{
			NameSimilarity:      0.60,
			NameOnlySimilarity:  0.85,
			MatchRadiusKM:       0.5,
			CoordToleranceKM:    0.15,
			DeactivateAfterRuns: 3,
		},
		Score: ScoreConfig{
			RatingWeight:        0.30,
			VolumeWeight:        0.30,
			RecencyWeight:       0.25,
			GeoWeight:           0.15,
			VolumeSaturation:    500,
			RecencyHalfLifeDays: 90,
			DemandWindowDays:    28,
			TrendUpPct:          5,
			TrendDownPct:        -5,
			OpportunityScale:    1,
		},
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 0.30, cfg.Score.RatingWeight)
	assert.Equal(t, 0.30, cfg.Score.VolumeWeight)
	assert.Equal(t, 0.25, cfg.Score.RecencyWeight)
	assert.Equal(t, 0.15, cfg.Score.GeoWeight)
	assert.Equal(t, 500, cfg.Score.VolumeSaturation)
	assert.Equal(t, 0.60, cfg.Resolve.NameSimilarity)
	assert.Equal(t, 3, cfg.Resolve.DeactivateAfterRuns)
	assert.Equal(t, "Chicago", cfg.Market.City)
	assert.True(t, cfg.Places.Enabled)
	assert.False(t, cfg.Registry.Enabled)
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("weights must sum to one", func(t *testing.T) {
		cfg := validConfig()
		cfg.Score.RatingWeight = 0.50
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "weights sum")
	})

	t.Run("negative weight", func(t *testing.T) {
		cfg := validConfig()
		cfg.Score.GeoWeight = -0.15
		cfg.Score.RatingWeight = 0.60
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero half life", func(t *testing.T) {
		cfg := validConfig()
		cfg.Score.RecencyHalfLifeDays = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("similarity out of range", func(t *testing.T) {
		cfg := validConfig()
		cfg.Resolve.NameSimilarity = 1.2
		assert.Error(t, cfg.Validate())
	})

	t.Run("name only below base similarity", func(t *testing.T) {
		cfg := validConfig()
		cfg.Resolve.NameOnlySimilarity = 0.40
		assert.Error(t, cfg.Validate())
	})

	t.Run("postgres requires url", func(t *testing.T) {
		cfg := validConfig()
		cfg.Store.DatabaseURL = ""
		assert.Error(t, cfg.Validate())

		cfg.Store.Driver = "sqlite"
		assert.NoError(t, cfg.Validate())
	})
}

func TestTrustMatrixRank(t *testing.T) {
	tm := DefaultTrustMatrix()

	rank, ok := tm.Rank("name", "registry")
	require.True(t, ok)
	assert.Equal(t, 0, rank)

	rank, ok = tm.Rank("name", "yelp")
	require.True(t, ok)
	assert.Equal(t, 2, rank)

	_, ok = tm.Rank("coords", "registry")
	assert.False(t, ok, "registry carries no coordinates")

	_, ok = tm.Rank("unknown_field", "yelp")
	assert.False(t, ok)
}

func TestLoadTrustMatrix(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		tm, err := LoadTrustMatrix("")
		require.NoError(t, err)
		assert.Equal(t, DefaultTrustMatrix(), tm)
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "trust.yaml")
		data := "name: [yelp, google_places]\nphone: [registry]\n"
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

		tm, err := LoadTrustMatrix(path)
		require.NoError(t, err)
		rank, ok := tm.Rank("name", "yelp")
		require.True(t, ok)
		assert.Equal(t, 0, rank)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTrustMatrix("/nonexistent/trust.yaml")
		assert.Error(t, err)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "trust.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
		_, err := LoadTrustMatrix(path)
		assert.Error(t, err)
	})
}
