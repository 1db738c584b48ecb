package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/sourcehub_test")
	t.Setenv("JWT_SECRET", "a-secret-of-sufficient-length")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "development", cfg.AppEnv)
	require.True(t, cfg.Development())
	require.Equal(t, 24*time.Hour, cfg.TokenTTL)
	require.Equal(t, "sourcehub-api", cfg.TokenIssuer)
	require.Equal(t, "sourcehub-client", cfg.TokenAudience)
	require.Equal(t, 12, cfg.BcryptCost)
	require.Equal(t, 5, cfg.LoginMaxAttempts)
	require.Equal(t, 2*time.Hour, cfg.LoginLockDuration)
	require.Equal(t, 15*time.Minute, cfg.ResetTokenTTL)
	require.Equal(t, 500, cfg.CleanupBatchSize)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("LOGIN_MAX_ATTEMPTS", "3")
	t.Setenv("LOGIN_LOCK_DURATION", "30m")

	cfg, err := Load()
	require.NoError(t, err)

	require.False(t, cfg.Development())
	require.Equal(t, time.Hour, cfg.TokenTTL)
	require.Equal(t, 3, cfg.LoginMaxAttempts)
	require.Equal(t, 30*time.Minute, cfg.LoginLockDuration)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "a-secret-of-sufficient-length")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/sourcehub_test")
	t.Setenv("JWT_SECRET", "too-short")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveDurations(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_TTL", "0s")

	_, err := Load()
	require.Error(t, err)
}
