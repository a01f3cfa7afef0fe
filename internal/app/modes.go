package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polysearch/internal/bot"
	"github.com/alanyoungcy/polysearch/internal/discord"
	"github.com/alanyoungcy/polysearch/internal/notify"
	"github.com/alanyoungcy/polysearch/internal/pipeline"
	"github.com/alanyoungcy/polysearch/internal/server"
	"github.com/alanyoungcy/polysearch/internal/server/handler"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// BotMode runs the Discord bot and the catalog warmer.
func (a *App) BotMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting bot mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startWarmer(ctx, g, deps)
	a.startBot(ctx, g, deps)
	return g.Wait()
}

// ServerMode runs the HTTP API and the catalog warmer.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startWarmer(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the bot and, when enabled, the HTTP API over one shared
// catalog.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startWarmer(ctx, g, deps)
	a.startBot(ctx, g, deps)
	if a.cfg.NeedsServer() {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

func (a *App) startWarmer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Catalog.WarmEnabled {
		return
	}
	warmer := pipeline.NewCatalogWarmer(deps.Catalog, deps.Notifier, a.cfg.Catalog.WarmInterval.Duration, a.logger)
	g.Go(func() error {
		return warmer.RunLoop(ctx)
	})
}

func (a *App) startBot(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	dc := a.cfg.Discord
	rest := discord.NewREST(dc.APIBase, dc.Token, nil, a.logger)

	b := bot.New(bot.Config{
		Prefix:      dc.CommandPrefix,
		Cooldown:    dc.Cooldown.Duration,
		MarketLimit: a.cfg.Polymarket.MarketLimit,
		Version:     Version,
		PolicyLabel: deps.Engine.Policy().Version,
	}, deps.Search, rest, deps.RateLimiter, deps.Catalog, a.logger)

	gateway := discord.NewGateway(dc.GatewayURL, dc.Token, discord.DefaultIntents, b.HandleMessage, a.logger)
	b.SetSession(gateway)

	g.Go(func() error {
		if err := deps.Notifier.Notify(ctx, notify.EventBotStarted, "polysearch started",
			fmt.Sprintf("Bot %s online with prefix %q.", Version, dc.CommandPrefix)); err != nil {
			a.logger.WarnContext(ctx, "startup notification failed", slog.String("error", err.Error()))
		}
		return gateway.Run(ctx)
	})
}

// startHTTPServer adds the API server to the given errgroup. The server is
// shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	pingers := map[string]handler.Pinger{}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(pingers, a.logger),
		Search:  handler.NewSearchHandler(deps.Search, a.logger),
		Catalog: handler.NewCatalogHandler(deps.Catalog, a.logger),
	}, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
