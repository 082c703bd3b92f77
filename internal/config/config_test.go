package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edutrack-uz/portal-client/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(context.Background())
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8000", cfg.BaseURL)
	require.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	require.Equal(t, time.Minute, cfg.NotifyPollInterval)
	require.Equal(t, 2*time.Second, cfg.AuthPollInterval)
	require.Equal(t, time.Second, cfg.AttendanceTick)
	require.Equal(t, ".portal/state.json", cfg.StatePath)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORTAL_BASE_URL", "https://portal.example")
	t.Setenv("PORTAL_ACCESS_CODE", "YT-E000123")
	t.Setenv("PORTAL_NOTIFY_POLL_INTERVAL", "30s")
	t.Setenv("PORTAL_LOG_LEVEL", "debug")

	cfg, err := config.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://portal.example", cfg.BaseURL)
	require.Equal(t, "YT-E000123", cfg.AccessCode)
	require.Equal(t, 30*time.Second, cfg.NotifyPollInterval)
	require.Equal(t, "debug", cfg.LogLevel)
}
