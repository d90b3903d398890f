package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PORTAL_URL", "https://example.com/portal/sharing/rest")
	t.Setenv("SERVICE_URL", "https://example.com/server/rest/services/World/MapServer")
	t.Setenv("EXPORT_LEVELS", "0-9")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ".", cfg.DestDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.False(t, cfg.TilePackage)
}

func TestLoadRequiredFields(t *testing.T) {
	cases := []string{"PORTAL_URL", "SERVICE_URL", "EXPORT_LEVELS"}
	for _, missing := range cases {
		t.Run(missing, func(t *testing.T) {
			setRequired(t)
			t.Setenv(missing, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), missing)
		})
	}
}

func TestLoadCredentialsMustBePaired(t *testing.T) {
	setRequired(t)
	t.Setenv("PORTAL_USERNAME", "alice")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORTAL_USERNAME and PORTAL_PASSWORD")

	t.Setenv("PORTAL_PASSWORD", "secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Username)
}

func TestLoadPollInterval(t *testing.T) {
	setRequired(t)

	t.Setenv("POLL_INTERVAL", "250ms")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)

	t.Setenv("POLL_INTERVAL", "not-a-duration")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("POLL_INTERVAL", "-1s")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadTilePackage(t *testing.T) {
	setRequired(t)

	t.Setenv("TILE_PACKAGE", "true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.TilePackage)

	t.Setenv("TILE_PACKAGE", "maybe")
	_, err = Load()
	require.Error(t, err)
}
