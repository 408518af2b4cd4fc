package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4, cfg.Learner.Workers)
	assert.Equal(t, 6, cfg.Search.TopK)
	assert.Equal(t, 8, cfg.Search.TopKComparison)
	assert.Equal(t, 500*time.Millisecond, cfg.Search.MinInterval)
	assert.InDelta(t, 0.50, cfg.Scheduler.DictionaryWeight, 0.001)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Search.TopK, cfg.Search.TopK)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
learner:
  workers: 2
  search_interval: 1s
search:
  top_k: 4
  top_k_comparison: 10
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Learner.Workers)
	assert.Equal(t, time.Second, cfg.Learner.SearchInterval)
	assert.Equal(t, 4, cfg.Search.TopK)
	// Untouched fields keep defaults.
	assert.Equal(t, 10*time.Second, cfg.Search.AdapterTimeout)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BRAVE_SEARCH_API_KEY", "brave-key")
	t.Setenv("SERPAPI_API_KEY", "serp-key")
	t.Setenv("THOR_WORKERS", "7")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "brave-key", cfg.Search.BraveAPIKey)
	assert.Equal(t, "serp-key", cfg.Search.SerpAPIKey)
	assert.Equal(t, 7, cfg.Learner.Workers)
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scheduler.DictionaryWeight = 0.9 // sum now > 1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroWorkers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Learner.Workers = 0
	assert.Error(t, cfg.Validate())
}

func TestSourceInterval(t *testing.T) {
	sc := SearchConfig{
		MinInterval: 500 * time.Millisecond,
		PerSourceInterval: map[string]time.Duration{
			"encyclopedia": 200 * time.Millisecond,
		},
	}
	assert.Equal(t, 200*time.Millisecond, sc.SourceInterval("encyclopedia"))
	assert.Equal(t, 500*time.Millisecond, sc.SourceInterval("engine_a"))
}
