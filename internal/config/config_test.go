package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 30*time.Second, cfg.Pool.IdleTimeout)
	assert.Equal(t, 4, cfg.Pool.HardwareConcurrencyX)
	assert.False(t, cfg.Stats.Enabled)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/spawnkit.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default().Pool.IdleTimeout, cfg.Pool.IdleTimeout)
}

func TestLoadAppliesFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/spawnkit.yaml"
	require.NoError(t, os.WriteFile(path, []byte("pool:\n  idle_timeout: 5s\n"), 0o644))

	t.Setenv("SPAWNKIT_POOL_WARN_MULTIPLIER", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Pool.IdleTimeout)
	assert.Equal(t, 8, cfg.Pool.HardwareConcurrencyX)
}
