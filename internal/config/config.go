// Package config defines the top-level configuration for polysearch and
// provides validation helpers.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYSEARCH_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Catalog    CatalogConfig    `toml:"catalog"`
	Matcher    MatcherConfig    `toml:"matcher"`
	Discord    DiscordConfig    `toml:"discord"`
	Redis      RedisConfig      `toml:"redis"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds the Gamma API endpoint and request policy.
type PolymarketConfig struct {
	GammaHost             string   `toml:"gamma_host"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
	RetryAttempts         int      `toml:"retry_attempts"`
	RetryBackoff          duration `toml:"retry_backoff"`
	MarketLimit           int      `toml:"market_limit"`
	IncludeClosed         bool     `toml:"include_closed"`
	// Order is an optional Gamma sort field, e.g. "volume". Empty keeps the
	// API default ordering.
	Order string `toml:"order"`
}

// RequestTimeout returns the per-attempt timeout as a time.Duration.
func (p PolymarketConfig) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

// CatalogConfig controls how long a fetched market snapshot is served before
// it is refreshed.
type CatalogConfig struct {
	FreshnessSeconds int      `toml:"freshness_seconds"`
	WarmEnabled      bool     `toml:"warm_enabled"`
	WarmInterval     duration `toml:"warm_interval"`
}

// Freshness returns the freshness window as a time.Duration.
func (c CatalogConfig) Freshness() time.Duration {
	return time.Duration(c.FreshnessSeconds) * time.Second
}

// MatcherConfig holds selection thresholds.
type MatcherConfig struct {
	HighConfidence float64 `toml:"high_confidence"`
}

// DiscordConfig holds chat platform credentials and command behaviour.
type DiscordConfig struct {
	Token         string   `toml:"token"`
	CommandPrefix string   `toml:"command_prefix"`
	Cooldown      duration `toml:"cooldown"`
	GatewayURL    string   `toml:"gateway_url"`
	APIBase       string   `toml:"api_base"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// disabled, cooldowns and API rate limits are tracked in process memory.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost:             "https://gamma-api.polymarket.com",
			RequestTimeoutSeconds: 30,
			RetryAttempts:         3,
			RetryBackoff:          duration{time.Second},
			MarketLimit:           100,
		},
		Catalog: CatalogConfig{
			FreshnessSeconds: 300,
			WarmEnabled:      true,
			WarmInterval:     duration{4 * time.Minute},
		},
		Matcher: MatcherConfig{
			HighConfidence: 85,
		},
		Discord: DiscordConfig{
			CommandPrefix: "!",
			Cooldown:      duration{5 * time.Second},
			GatewayURL:    "wss://gateway.discord.gg/?v=10&encoding=json",
			APIBase:       "https://discord.com/api/v10",
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       60,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"catalog_refresh_failed", "catalog_rate_limited", "catalog_recovered", "bot_started"},
		},
		Mode:     "bot",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"bot":    true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsDiscord reports whether the configured mode runs the chat bot.
func (c *Config) NeedsDiscord() bool {
	m := strings.ToLower(c.Mode)
	return m == "bot" || m == "full"
}

// NeedsServer reports whether the configured mode runs the HTTP API.
func (c *Config) NeedsServer() bool {
	m := strings.ToLower(c.Mode)
	return m == "server" || (m == "full" && c.Server.Enabled)
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: bot, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket
	if u, err := url.Parse(c.Polymarket.GammaHost); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("polymarket: gamma_host must be an absolute URL, got %q", c.Polymarket.GammaHost))
	}
	if c.Polymarket.RequestTimeoutSeconds <= 0 {
		errs = append(errs, "polymarket: request_timeout_seconds must be positive")
	}
	if c.Polymarket.RetryAttempts < 1 {
		errs = append(errs, "polymarket: retry_attempts must be at least 1")
	}
	if c.Polymarket.RetryBackoff.Duration < 0 {
		errs = append(errs, "polymarket: retry_backoff must not be negative")
	}
	if c.Polymarket.MarketLimit <= 0 {
		errs = append(errs, "polymarket: market_limit must be positive")
	}

	// Catalog
	if c.Catalog.FreshnessSeconds <= 0 {
		errs = append(errs, "catalog: freshness_seconds must be positive")
	}
	if c.Catalog.WarmEnabled && c.Catalog.WarmInterval.Duration <= 0 {
		errs = append(errs, "catalog: warm_interval must be positive when warm_enabled is set")
	}

	// Matcher
	if c.Matcher.HighConfidence <= 0 || c.Matcher.HighConfidence > 100 {
		errs = append(errs, fmt.Sprintf("matcher: high_confidence must be in (0, 100], got %g", c.Matcher.HighConfidence))
	}

	// Discord: the token is only required when the bot actually runs.
	if c.NeedsDiscord() {
		if strings.TrimSpace(c.Discord.Token) == "" {
			errs = append(errs, "discord: token is required for mode "+c.Mode+" (set DISCORD_BOT_TOKEN)")
		}
		if c.Discord.CommandPrefix == "" {
			errs = append(errs, "discord: command_prefix must not be empty")
		}
		if c.Discord.GatewayURL == "" || c.Discord.APIBase == "" {
			errs = append(errs, "discord: gateway_url and api_base must not be empty")
		}
	}
	if c.Discord.Cooldown.Duration < 0 {
		errs = append(errs, "discord: cooldown must not be negative")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize <= 0 {
			errs = append(errs, "redis: pool_size must be positive")
		}
	}

	// Server
	if c.NeedsServer() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must not be negative")
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be positive when rate_limit is set")
		}
	}

	// Notify: telegram token and chat id travel together.
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseLogLevel maps a configured level name to a slog.Level, defaulting to
// info for unknown names.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
