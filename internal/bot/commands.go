package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polysearch/internal/discord"
	"github.com/alanyoungcy/polysearch/internal/render"
	"github.com/alanyoungcy/polysearch/internal/service"
)

func (b *Bot) market(ctx context.Context, m discord.Message, query string) error {
	p := b.cfg.Prefix
	if query == "" {
		return b.reply(ctx, m, "⚠️ Please provide a search query.\n"+
			fmt.Sprintf("**Usage**: `%smarket <search query>`\n", p)+
			fmt.Sprintf("**Example**: `%smarket Bitcoin hitting 200k`", p))
	}
	if len([]rune(query)) < minQueryLength {
		return b.reply(ctx, m, "⚠️ Please provide at least 3 characters to search.\n"+
			fmt.Sprintf("**Example**: `%smarket Bitcoin`", p))
	}

	if wait, limited := b.onCooldown(ctx, m.Author.ID); limited {
		return b.reply(ctx, m, fmt.Sprintf("⏱️ Please wait **%.1f seconds** before using this command again.", wait.Seconds()))
	}

	typingCtx, stopTyping := context.WithCancel(ctx)
	b.keepTyping(typingCtx, m.ChannelID)
	result, err := b.resolver.Resolve(ctx, query)
	stopTyping()
	if err != nil {
		if sendErr := b.reply(ctx, m, "❌ "+service.UserMessage(err)); sendErr != nil {
			return fmt.Errorf("bot: market: reply error: %w", sendErr)
		}
		return fmt.Errorf("bot: market: %w", err)
	}

	return b.replyEmbed(ctx, m, b.builder.Classification(result))
}

// onCooldown consumes the user's market-command token. Limiter failures let
// the command through.
func (b *Bot) onCooldown(ctx context.Context, userID string) (time.Duration, bool) {
	if b.limiter == nil || b.cfg.Cooldown <= 0 {
		return 0, false
	}
	allowed, wait, err := b.limiter.Reserve(ctx, "cooldown:market:"+userID, 1, b.cfg.Cooldown)
	if err != nil {
		b.logger.WarnContext(ctx, "cooldown check failed", slog.String("error", err.Error()))
		return 0, false
	}
	return wait, !allowed
}

func (b *Bot) help(ctx context.Context, m discord.Message, _ string) error {
	return b.replyEmbed(ctx, m, b.builder.Help(b.cfg.Prefix, b.cfg.Cooldown, b.cfg.MarketLimit))
}

func (b *Bot) ping(ctx context.Context, m discord.Message, _ string) error {
	var latency time.Duration
	if b.session != nil {
		latency = b.session.Latency()
	}
	return b.reply(ctx, m, fmt.Sprintf("🏓 Pong! Latency: %dms", latency.Milliseconds()))
}

func (b *Bot) info(ctx context.Context, m discord.Message, _ string) error {
	stats := render.BotStats{
		Version:     b.cfg.Version,
		PolicyLabel: b.cfg.PolicyLabel,
	}
	if b.session != nil {
		stats.Guilds = b.session.GuildCount()
		stats.Latency = b.session.Latency()
	}
	if b.catalog != nil {
		st := b.catalog.Status()
		stats.Markets = st.Markets
		stats.CatalogAge = st.Age
	}
	return b.replyEmbed(ctx, m, b.builder.Info(stats))
}
