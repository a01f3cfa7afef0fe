package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polysearch/internal/cache/memory"
	"github.com/alanyoungcy/polysearch/internal/cache/redis"
	"github.com/alanyoungcy/polysearch/internal/catalog"
	"github.com/alanyoungcy/polysearch/internal/config"
	"github.com/alanyoungcy/polysearch/internal/domain"
	"github.com/alanyoungcy/polysearch/internal/matcher"
	"github.com/alanyoungcy/polysearch/internal/notify"
	"github.com/alanyoungcy/polysearch/internal/platform/polymarket"
	"github.com/alanyoungcy/polysearch/internal/selection"
	"github.com/alanyoungcy/polysearch/internal/service"
)

// redisKeyPrefix namespaces every key polysearch writes to a shared Redis.
const redisKeyPrefix = "polysearch:"

// SearchStack is the query-resolution pipeline: source adapter, catalog
// cache, match engine and the service that ties them together. The CLI
// builds it alone; the long-running modes build it through Wire.
type SearchStack struct {
	Source  *polymarket.GammaClient
	Catalog *catalog.Cache
	Engine  *matcher.Engine
	Policy  selection.Policy
	Search  *service.SearchService
}

// Dependencies bundles everything the operating modes need. It is constructed
// by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	*SearchStack

	// RateLimiter backs command cooldowns and API rate limits. It is Redis
	// when configured, otherwise process memory.
	RateLimiter domain.RateLimiter
	Redis       *redis.Client // nil when Redis is disabled

	Notifier *notify.Notifier
}

// WireSearch builds the search stack from configuration.
func WireSearch(cfg *config.Config, logger *slog.Logger) (*SearchStack, error) {
	source := polymarket.NewGammaClient(cfg.Polymarket.GammaHost,
		polymarket.WithTimeout(cfg.Polymarket.RequestTimeout()),
		polymarket.WithRetries(cfg.Polymarket.RetryAttempts, cfg.Polymarket.RetryBackoff.Duration),
		polymarket.WithMarketQuery(cfg.Polymarket.MarketLimit, cfg.Polymarket.IncludeClosed, cfg.Polymarket.Order),
		polymarket.WithLogger(logger),
	)

	engine, err := matcher.NewEngine(matcher.DefaultPolicy(), matcher.DefaultRegistry(), logger)
	if err != nil {
		return nil, fmt.Errorf("wire: matcher: %w", err)
	}

	cache := catalog.NewCache(source, logger)
	policy := selection.Policy{HighConfidence: cfg.Matcher.HighConfidence}

	return &SearchStack{
		Source:  source,
		Catalog: cache,
		Engine:  engine,
		Policy:  policy,
		Search:  service.NewSearchService(cache, engine, policy, cfg.Catalog.Freshness(), logger),
	}, nil
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	stack, err := WireSearch(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	deps := &Dependencies{SearchStack: stack}

	// --- Rate limiting: Redis when enabled, memory otherwise ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Redis = redisClient
		deps.RateLimiter = redis.NewRateLimiter(redisClient, redisKeyPrefix)
	} else {
		deps.RateLimiter = memory.NewRateLimiter()
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
