// Package bot routes prefix chat commands to the search service and replies
// with rendered embeds.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/polysearch/internal/catalog"
	"github.com/alanyoungcy/polysearch/internal/discord"
	"github.com/alanyoungcy/polysearch/internal/domain"
	"github.com/alanyoungcy/polysearch/internal/metrics"
	"github.com/alanyoungcy/polysearch/internal/render"
)

// minQueryLength is the shortest query the market command accepts.
const minQueryLength = 3

// typingRefresh re-sends the typing indicator, which Discord clears after ~10s.
const typingRefresh = 8 * time.Second

// Resolver turns a query into a classification.
type Resolver interface {
	Resolve(ctx context.Context, query string) (domain.Classification, error)
}

// Messenger sends replies to a channel.
type Messenger interface {
	CreateMessage(ctx context.Context, channelID string, msg discord.MessageSend) error
	TriggerTyping(ctx context.Context, channelID string) error
}

// SessionStats exposes the gateway connection state shown by ping and info.
type SessionStats interface {
	GuildCount() int
	Latency() time.Duration
}

// CatalogStatus describes the market cache shown by info.
type CatalogStatus interface {
	Status() catalog.Status
}

// Config holds the bot's user-facing settings.
type Config struct {
	Prefix      string
	Cooldown    time.Duration
	MarketLimit int
	Version     string
	PolicyLabel string
}

// Bot dispatches chat messages to command handlers.
type Bot struct {
	cfg       Config
	resolver  Resolver
	messenger Messenger
	limiter   domain.RateLimiter
	session   SessionStats
	catalog   CatalogStatus
	builder   render.Builder
	logger    *slog.Logger

	commands map[string]command
}

type command func(b *Bot, ctx context.Context, m discord.Message, args string) error

// New creates a Bot. session is consulted lazily so it may be wired after
// construction through SetSession.
func New(
	cfg Config,
	resolver Resolver,
	messenger Messenger,
	limiter domain.RateLimiter,
	catalog CatalogStatus,
	logger *slog.Logger,
) *Bot {
	b := &Bot{
		cfg:       cfg,
		resolver:  resolver,
		messenger: messenger,
		limiter:   limiter,
		catalog:   catalog,
		builder:   render.Builder{},
		logger:    logger.With(slog.String("component", "bot")),
	}
	b.commands = map[string]command{
		"market":      (*Bot).market,
		"help_market": (*Bot).help,
		"ping":        (*Bot).ping,
		"info":        (*Bot).info,
	}
	return b
}

// SetSession attaches the gateway whose stats ping and info report.
func (b *Bot) SetSession(s SessionStats) {
	b.session = s
}

// HandleMessage parses a message and runs the command it names, if any.
// Messages from bots and messages without the prefix are ignored.
func (b *Bot) HandleMessage(ctx context.Context, m discord.Message) {
	if m.Author.Bot {
		return
	}
	name, args, ok := parse(b.cfg.Prefix, m.Content)
	if !ok {
		return
	}
	cmd, ok := b.commands[name]
	if !ok {
		b.logger.DebugContext(ctx, "unknown command", slog.String("command", name))
		return
	}

	logger := b.logger.With(
		slog.String("command", name),
		slog.String("user", m.Author.Username),
		slog.String("channel_id", m.ChannelID),
	)
	start := time.Now()
	err := cmd(b, ctx, m, args)
	status := "ok"
	if err != nil {
		status = "error"
		logger.ErrorContext(ctx, "command failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
	} else {
		logger.InfoContext(ctx, "command handled", slog.Duration("elapsed", time.Since(start)))
	}
	metrics.Commands.WithLabelValues(name, status).Inc()
}

// parse splits "<prefix><name> <args>". Names are case sensitive.
func parse(prefix, content string) (name, args string, ok bool) {
	rest, found := strings.CutPrefix(content, prefix)
	if !found || rest == "" {
		return "", "", false
	}
	name, args, _ = strings.Cut(rest, " ")
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(args), true
}

// reply sends text to the channel the command came from.
func (b *Bot) reply(ctx context.Context, m discord.Message, text string) error {
	return b.messenger.CreateMessage(ctx, m.ChannelID, discord.MessageSend{
		Content:         text,
		AllowedMentions: &discord.AllowedMentions{Parse: []string{}},
	})
}

// replyEmbed sends an embed, falling back to a text notice when the channel
// does not allow the bot to post embeds.
func (b *Bot) replyEmbed(ctx context.Context, m discord.Message, e render.Embed) error {
	err := b.messenger.CreateMessage(ctx, m.ChannelID, discord.MessageSend{Embeds: []render.Embed{e}})
	if errors.Is(err, domain.ErrUnauthorized) {
		return b.reply(ctx, m, "❌ I don't have permission to send embeds in this channel. "+
			"Please check my permissions and try again.")
	}
	return err
}

// keepTyping shows the typing indicator until ctx is done. The first
// indicator is sent before it returns; refreshes run in the background.
func (b *Bot) keepTyping(ctx context.Context, channelID string) {
	b.typing(ctx, channelID)
	go func() {
		ticker := time.NewTicker(typingRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.typing(ctx, channelID)
			}
		}
	}()
}

func (b *Bot) typing(ctx context.Context, channelID string) {
	if err := b.messenger.TriggerTyping(ctx, channelID); err != nil && ctx.Err() == nil {
		b.logger.DebugContext(ctx, "typing indicator failed", slog.String("error", err.Error()))
	}
}
