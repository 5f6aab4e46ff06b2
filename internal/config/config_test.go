package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Dispatch.MaxConcurrency)
	assert.True(t, cfg.Session.CacheEnabled)
	assert.Equal(t, 2112, cfg.Observability.Metrics.Port)
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "research.yaml")
	content := `dispatch:
  max_concurrency: 3
specialists:
  enabled:
    video: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("METRICS_PORT", "9099")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Dispatch.MaxConcurrency)
	assert.Equal(t, 9099, cfg.Observability.Metrics.Port)
	assert.False(t, cfg.SpecialistEnabled("video"))
	assert.True(t, cfg.SpecialistEnabled("web"))
}

func TestSpecialistEnabledDefaultsOn(t *testing.T) {
	var cfg *Research
	assert.True(t, cfg.SpecialistEnabled("academic"))
}
