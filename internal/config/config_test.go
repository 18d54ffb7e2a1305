package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 0.50, cfg.Router.MaxCostPerFeatureUSD)
	assert.Equal(t, 5.00, cfg.Budget.CostCapTotalUSD)
	assert.Equal(t, 4.00, cfg.Budget.CostCapWarnUSD)
	assert.Equal(t, 3, cfg.Workers.MaxMedicRetries)
	assert.Equal(t, 5, cfg.Workers.MaxIterations)
	assert.Equal(t, 10, cfg.Concurrency.MaxConcurrentTasks)
	assert.Equal(t, 5, cfg.Concurrency.ProcessPoolSize)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5.00, cfg.Budget.CostCapTotalUSD)
}

func TestLoadOverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	doc := "budget:\n  cost_cap_total_usd: 10\nrouter:\n  max_cost_per_feature_usd: 1.5\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10.0, cfg.Budget.CostCapTotalUSD)
	assert.Equal(t, 1.5, cfg.Router.MaxCostPerFeatureUSD)
	// Unset fields keep their defaults.
	assert.NotEmpty(t, cfg.Router.Rules, "expected default router rules to survive partial overlay")
}
