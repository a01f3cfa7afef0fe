package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsMatchDocumentedValues(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "https://gamma-api.polymarket.com", cfg.Polymarket.GammaHost)
	assert.Equal(t, 30*time.Second, cfg.Polymarket.RequestTimeout())
	assert.Equal(t, 3, cfg.Polymarket.RetryAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Catalog.Freshness())
	assert.Equal(t, "!", cfg.Discord.CommandPrefix)
	assert.Equal(t, 5*time.Second, cfg.Discord.Cooldown.Duration)
	assert.Equal(t, 85.0, cfg.Matcher.HighConfidence)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
mode = "server"
log_level = "debug"

[polymarket]
gamma_host = "https://example.test"
retry_backoff = "250ms"

[catalog]
freshness_seconds = 60
`)
	t.Setenv("POLYSEARCH_POLYMARKET_RETRY_ATTEMPTS", "5")
	t.Setenv("API_TIMEOUT_SECONDS", "12")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://example.test", cfg.Polymarket.GammaHost)
	assert.Equal(t, 250*time.Millisecond, cfg.Polymarket.RetryBackoff.Duration)
	assert.Equal(t, 5, cfg.Polymarket.RetryAttempts)
	assert.Equal(t, 12, cfg.Polymarket.RequestTimeoutSeconds)
	assert.Equal(t, 60, cfg.Catalog.FreshnessSeconds)
	// Untouched values keep their defaults.
	assert.Equal(t, 100, cfg.Polymarket.MarketLimit)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Polymarket.MarketLimit)
}

func TestLoadRejectsBrokenTOML(t *testing.T) {
	path := writeConfig(t, "mode = ")
	_, err := Load(path)
	require.Error(t, err)
}

func TestCompatibilityAliases(t *testing.T) {
	t.Setenv("POLYMARKET_API_BASE", "https://alias.test")
	t.Setenv("CACHE_TTL_SECONDS", "42")
	t.Setenv("REQUEST_RETRY_ATTEMPTS", "7")
	t.Setenv("COMMAND_PREFIX", "?")
	t.Setenv("DISCORD_BOT_TOKEN", "alias-token")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://alias.test", cfg.Polymarket.GammaHost)
	assert.Equal(t, 42, cfg.Catalog.FreshnessSeconds)
	assert.Equal(t, 7, cfg.Polymarket.RetryAttempts)
	assert.Equal(t, "?", cfg.Discord.CommandPrefix)
	assert.Equal(t, "alias-token", cfg.Discord.Token)
}

func TestPrefixedNameWinsOverAlias(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "alias-token")
	t.Setenv("POLYSEARCH_DISCORD_TOKEN", "primary-token")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "primary-token", cfg.Discord.Token)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "bot with token",
			mutate: func(c *Config) { c.Discord.Token = "t" },
		},
		{
			name:    "bot without token",
			mutate:  func(c *Config) {},
			wantErr: "discord: token is required",
		},
		{
			name:   "server mode does not need a token",
			mutate: func(c *Config) { c.Mode = "server" },
		},
		{
			name: "unknown mode",
			mutate: func(c *Config) {
				c.Mode = "trade"
				c.Discord.Token = "t"
			},
			wantErr: `unknown mode "trade"`,
		},
		{
			name: "relative gamma host",
			mutate: func(c *Config) {
				c.Mode = "server"
				c.Polymarket.GammaHost = "gamma-api"
			},
			wantErr: "gamma_host must be an absolute URL",
		},
		{
			name: "zero retry attempts",
			mutate: func(c *Config) {
				c.Mode = "server"
				c.Polymarket.RetryAttempts = 0
			},
			wantErr: "retry_attempts must be at least 1",
		},
		{
			name: "high confidence out of range",
			mutate: func(c *Config) {
				c.Mode = "server"
				c.Matcher.HighConfidence = 120
			},
			wantErr: "high_confidence",
		},
		{
			name: "telegram half configured",
			mutate: func(c *Config) {
				c.Mode = "server"
				c.Notify.TelegramToken = "x"
			},
			wantErr: "telegram_token and telegram_chat_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Discord.Token = "secret"
	cfg.Redis.Password = "hunter2"
	cfg.Notify.DiscordWebhookURL = "https://discord.test/hook"

	out := RedactedConfig(&cfg)

	assert.Equal(t, "***", out.Discord.Token)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "***", out.Notify.DiscordWebhookURL)
	assert.Empty(t, out.Notify.TelegramToken)
	assert.Equal(t, "secret", cfg.Discord.Token)

	out.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("chatty"))
}
