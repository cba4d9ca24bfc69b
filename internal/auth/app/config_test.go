package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "vouch", cfg.Issuer)
	require.Equal(t, "sqlite", cfg.DatabaseDriver)
	require.Equal(t, "vouch.db", cfg.DatabaseFile)
	require.Equal(t, 3, cfg.NumKeys)
	require.Equal(t, 720*time.Hour, cfg.SessionTTL)
	require.Equal(t, 15*time.Minute, cfg.StepUpTTL)
	require.Zero(t, cfg.StepUpMaxAge)
	require.True(t, cfg.SecureCookies)
	require.Equal(t, 5, cfg.RateLimitStrict)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, time.Hour, cfg.HousekeepingInterval)
	require.Equal(t, "http://localhost:8080/verify-email", cfg.EmailVerificationURL())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://vouch@localhost/vouch")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("STEPUP_MAX_AGE", "5m")
	t.Setenv("SECURE_COOKIES", "false")
	t.Setenv("PUBLIC_BASE_URL", "https://auth.example.com/")
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "postgres", cfg.DatabaseDriver)
	require.Equal(t, 2*time.Hour, cfg.SessionTTL)
	require.Equal(t, 5*time.Minute, cfg.StepUpMaxAge)
	require.False(t, cfg.SecureCookies)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "https://auth.example.com/reset-password", cfg.PasswordResetURL())
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "mysql"}},
		{"postgres without url", map[string]string{"DATABASE_DRIVER": "postgres"}},
		{"too many keys", map[string]string{"NUM_KEYS": "11"}},
		{"zero session ttl", map[string]string{"SESSION_TTL": "0s"}},
		{"zero strict limit", map[string]string{"RATELIMIT_STRICT": "0"}},
		{"bad port", map[string]string{"PORT": "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}
