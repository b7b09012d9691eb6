package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("SOURCE_AUTHORITY", "rwanda-central-bank")
	t.Setenv("DEST_AUTHORITY", "kenya-central-bank")
	t.Setenv("ENGINE_ADMIN", "deployer")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "RWFC", cfg.Source.Code)
	assert.Equal(t, "eKES", cfg.Destination.Code)
	assert.Equal(t, uint8(18), cfg.Source.Decimals)
	assert.Equal(t, uint32(25), cfg.FeeBps)
	assert.Equal(t, "fixed", cfg.ProviderKind)
	assert.Equal(t, int64(9_450_000), cfg.FixedRate)
	assert.Equal(t, time.Minute, cfg.ReconciliationInterval)
	assert.Equal(t, int32(100), cfg.JournalBatchSize)
	assert.Zero(t, cfg.Feed.MaxAge)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_FeedMaxAge(t *testing.T) {
	setRequired(t)
	t.Setenv("SETTLEMENT_FEED_MAX_AGE", "90s")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Feed.MaxAge)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9000")

	cfg, err := Load([]string{"--port", "9100", "--log-level", "debug"})
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_PrefixedEnvAndLists(t *testing.T) {
	setRequired(t)
	t.Setenv("SETTLEMENT_FEE_BPS", "50")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(50), cfg.FeeBps)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WSAllowedOrigins)
}

func TestLoad_ConfigFile(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "settlement.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: oracle\nfeed:\n  kind: static\n  decimals: 18\n"), 0o600))

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, "oracle", cfg.ProviderKind)
	assert.Equal(t, uint8(18), cfg.Feed.Decimals)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET must be at least 32 characters"},
		{"missing authority", map[string]string{"SOURCE_AUTHORITY": " "}, "SOURCE_AUTHORITY is required"},
		{"fee too high", map[string]string{"FEE_BPS": "1001"}, "FEE_BPS must not exceed 1000"},
		{"bad provider", map[string]string{"RATE_PROVIDER": "magic"}, "unsupported RATE_PROVIDER: magic"},
		{"push without key", map[string]string{"RATE_PROVIDER": "oracle", "FEED_KIND": "push"}, "FEED_HMAC_KEY is required when FEED_KIND is push"},
		{"same currency", map[string]string{"DEST_CURRENCY": "rwfc"}, "SOURCE_CURRENCY and DEST_CURRENCY must differ"},
		{"bad duration", map[string]string{"RATE_POLL_INTERVAL": "soon"}, "invalid RATE_POLL_INTERVAL"},
		{"negative feed age", map[string]string{"FEED_MAX_AGE": "-1m"}, "invalid FEED_MAX_AGE"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
