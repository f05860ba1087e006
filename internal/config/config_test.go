package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("EVENTS_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("EVENTS_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.DatabaseDriver)
	require.Equal(t, time.Minute, cfg.RequestCacheTTL)
	require.Equal(t, 5, cfg.NotificationMaxAttempts)
	require.Equal(t, 30*time.Second, cfg.NotificationMaxBackoff)
	require.Equal(t, ":8080", cfg.HTTPAddress())
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("EVENTS_JWT_SECRET", "secret")
	t.Setenv("EVENTS_DATABASE_DRIVER", "oracle")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("EVENTS_JWT_SECRET", "secret")
	t.Setenv("EVENTS_REQUESTS_CACHE_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}
