package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYSEARCH_* environment variable overrides, and
// returns the final Config. A missing file is not an error: the process can
// be configured from the environment alone. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYSEARCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). The unprefixed names are accepted as compatibility aliases for
// deployments that predate the prefixed ones; the prefixed name wins when both
// are present.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "POLYSEARCH_MODE")
	setStr(&cfg.LogLevel, "POLYSEARCH_LOG_LEVEL")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "POLYMARKET_API_BASE") // compatibility alias
	setStr(&cfg.Polymarket.GammaHost, "POLYSEARCH_POLYMARKET_GAMMA_HOST")
	setInt(&cfg.Polymarket.RequestTimeoutSeconds, "API_TIMEOUT_SECONDS") // compatibility alias
	setInt(&cfg.Polymarket.RequestTimeoutSeconds, "POLYSEARCH_POLYMARKET_REQUEST_TIMEOUT_SECONDS")
	setInt(&cfg.Polymarket.RetryAttempts, "REQUEST_RETRY_ATTEMPTS") // compatibility alias
	setInt(&cfg.Polymarket.RetryAttempts, "POLYSEARCH_POLYMARKET_RETRY_ATTEMPTS")
	setDuration(&cfg.Polymarket.RetryBackoff, "POLYSEARCH_POLYMARKET_RETRY_BACKOFF")
	setInt(&cfg.Polymarket.MarketLimit, "POLYSEARCH_POLYMARKET_MARKET_LIMIT")
	setBool(&cfg.Polymarket.IncludeClosed, "POLYSEARCH_POLYMARKET_INCLUDE_CLOSED")
	setStr(&cfg.Polymarket.Order, "POLYSEARCH_POLYMARKET_ORDER")

	// ── Catalog ──
	setInt(&cfg.Catalog.FreshnessSeconds, "CACHE_TTL_SECONDS") // compatibility alias
	setInt(&cfg.Catalog.FreshnessSeconds, "POLYSEARCH_CATALOG_FRESHNESS_SECONDS")
	setBool(&cfg.Catalog.WarmEnabled, "POLYSEARCH_CATALOG_WARM_ENABLED")
	setDuration(&cfg.Catalog.WarmInterval, "POLYSEARCH_CATALOG_WARM_INTERVAL")

	// ── Matcher ──
	setFloat64(&cfg.Matcher.HighConfidence, "POLYSEARCH_MATCHER_HIGH_CONFIDENCE")

	// ── Discord ──
	setStr(&cfg.Discord.Token, "DISCORD_BOT_TOKEN") // compatibility alias
	setStr(&cfg.Discord.Token, "POLYSEARCH_DISCORD_TOKEN")
	setStr(&cfg.Discord.CommandPrefix, "COMMAND_PREFIX") // compatibility alias
	setStr(&cfg.Discord.CommandPrefix, "POLYSEARCH_DISCORD_COMMAND_PREFIX")
	setDuration(&cfg.Discord.Cooldown, "POLYSEARCH_DISCORD_COOLDOWN")
	setStr(&cfg.Discord.GatewayURL, "POLYSEARCH_DISCORD_GATEWAY_URL")
	setStr(&cfg.Discord.APIBase, "POLYSEARCH_DISCORD_API_BASE")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYSEARCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYSEARCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYSEARCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYSEARCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYSEARCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYSEARCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYSEARCH_REDIS_TLS_ENABLED")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYSEARCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYSEARCH_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // compatibility alias for PaaS hosts
	setStringSlice(&cfg.Server.CORSOrigins, "POLYSEARCH_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "POLYSEARCH_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "POLYSEARCH_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYSEARCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYSEARCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYSEARCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYSEARCH_NOTIFY_EVENTS")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
