package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.2, cfg.LipSync.NearestWindow)
	assert.Equal(t, 8.0, cfg.LipSync.CycleRate)
	assert.Equal(t, "http://localhost:8000", cfg.Backend.BaseURL)
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFrom_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  base_url: http://rag.internal:9000
  provider: ollama
lipsync:
  transition_duration: 80ms
  cycle_rate: 12
avatar:
  style: pixel
`), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "http://rag.internal:9000", cfg.Backend.BaseURL)
	assert.Equal(t, "ollama", cfg.Backend.Provider)
	assert.True(t, cfg.Backend.UseRAG, "unset keys keep defaults")
	assert.Equal(t, 80*time.Millisecond, cfg.LipSync.TransitionDuration)
	assert.Equal(t, 12.0, cfg.LipSync.CycleRate)
	assert.Equal(t, "pixel", cfg.Avatar.Style)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	t.Setenv("SPRITETALK_BACKEND_PROVIDER", "openai")
	t.Setenv("SPRITETALK_STREAM_ENABLED", "true")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Backend.Provider)
	assert.True(t, cfg.Stream.Enabled)
}

func TestLoadFrom_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lipsync:\n  cycle_rate: 0\n"), 0644))

	_, err := LoadFrom(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lipsync.cycle_rate")
}

func TestSaveTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Backend.Provider = "anthropic"
	cfg.LipSync.MetadataTimeout = 3 * time.Second
	cfg.Avatar.ManifestPath = "/tmp/sprites.yaml"

	require.NoError(t, SaveTo(cfg, path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
