package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "")
	t.Setenv("RUN_DEBOUNCE", "")
	t.Setenv("RUN_TIMEOUT", "")
	t.Setenv("ORS_RATE_PER_MIN", "")
	t.Setenv("DISTANCE_CACHE_TTL", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "driving-car", cfg.ORSProfile)
	require.Equal(t, 40, cfg.ORSRatePerMin)
	require.Equal(t, 30*time.Second, cfg.RunTimeout)
	require.Zero(t, cfg.RunDebounce)
	require.Equal(t, 7*24*time.Hour, cfg.DistanceCacheTTL)
}

func TestLoadYAMLThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9000\"\nors_profile: cycling-regular\nrun_debounce: 250ms\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("RUN_DEBOUNCE", "")
	t.Setenv("RUN_TIMEOUT", "5s")
	t.Setenv("ORS_PROFILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9100", cfg.Port)
	require.Equal(t, "cycling-regular", cfg.ORSProfile)
	require.Equal(t, 250*time.Millisecond, cfg.RunDebounce)
	require.Equal(t, 5*time.Second, cfg.RunTimeout)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RUN_TIMEOUT", "soon")
	t.Setenv("DISTANCE_CACHE_TTL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsNegativeTTL(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RUN_TIMEOUT", "")
	t.Setenv("DISTANCE_CACHE_TTL", "-1h")

	_, err := Load()
	require.Error(t, err)
}
