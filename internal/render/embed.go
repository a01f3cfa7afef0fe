// Package render turns classifications into presentation payloads: Discord
// embeds for the bot and plain text for the command-line tool.
package render

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/alanyoungcy/polysearch/internal/domain"
)

const (
	ColorBrand = 0x7C3AED
	ColorError = 0xEF4444

	polymarketHome = "https://polymarket.com"

	// Discord rejects embeds whose title exceeds this length.
	maxTitleLen = 256
)

// Embed mirrors the Discord embed object.
type Embed struct {
	Title       string  `json:"title,omitempty"`
	URL         string  `json:"url,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Footer      *Footer `json:"footer,omitempty"`
}

// Field is one name/value row of an embed.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Footer is the small text line under an embed.
type Footer struct {
	Text string `json:"text"`
}

// Builder renders embeds. Now stamps each embed; it defaults to time.Now.
type Builder struct {
	Now func() time.Time
}

func (b Builder) timestamp() string {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// Classification dispatches on the classification kind.
func (b Builder) Classification(c domain.Classification) Embed {
	switch c.Kind {
	case domain.KindSingle:
		return b.Single(c.Matches[0].Market)
	case domain.KindMultiple:
		return b.Multiple(c.Query, c.Matches)
	default:
		return b.None(c.Query)
	}
}

// Single renders the detail view of one market.
func (b Builder) Single(m *domain.Market) Embed {
	e := Embed{
		Title:     Truncate(m.Question, maxTitleLen),
		URL:       m.URL(),
		Color:     ColorBrand,
		Timestamp: b.timestamp(),
		Footer:    &Footer{Text: "Data from Polymarket"},
	}
	if m.Description != "" {
		e.Description = Truncate(m.Description, 200)
	}

	odds := "Odds unavailable"
	if m.Prices.Available {
		odds = fmt.Sprintf("**%s**: %.1f%%\n**%s**: %.1f%%",
			m.Outcomes[0], m.Prices.Yes*100, m.Outcomes[1], m.Prices.No*100)
	}
	e.Fields = []Field{
		{Name: "📊 Current Odds", Value: odds, Inline: true},
		{Name: "💰 Volume", Value: FormatVolume(m.Volume), Inline: true},
		{Name: "📅 Closes", Value: FormatDate(m.EndDate), Inline: true},
	}
	return e
}

// Multiple renders a numbered list of candidate markets.
func (b Builder) Multiple(query string, matches []domain.MatchResult) Embed {
	e := Embed{
		Title:       Truncate(fmt.Sprintf("🔍 Found %d markets matching '%s'", len(matches), query), maxTitleLen),
		Description: "Here are the closest matches:",
		Color:       ColorBrand,
		Timestamp:   b.timestamp(),
		Footer:      &Footer{Text: "Click the market title to view on Polymarket"},
	}
	for i, r := range matches {
		name := fmt.Sprintf("%d. %s", i+1, Truncate(r.Market.Question, 100))
		value := fmt.Sprintf("%s\n*Match: %.0f%%*", OddsText(r.Market), r.Score)
		if u := r.Market.URL(); u != "" {
			value += fmt.Sprintf("\n[View on Polymarket](%s)", u)
		}
		e.Fields = append(e.Fields, Field{Name: name, Value: value})
	}
	return e
}

// None renders the no-results view with search suggestions.
func (b Builder) None(query string) Embed {
	return Embed{
		Title:       "❌ No Markets Found",
		Description: fmt.Sprintf("No active markets found matching **'%s'**", query),
		Color:       ColorError,
		Timestamp:   b.timestamp(),
		Fields: []Field{{
			Name: "💡 Suggestions",
			Value: "• Try different keywords\n" +
				"• Check for typos in your query\n" +
				"• Use broader search terms\n" +
				"• Browse active markets at [Polymarket](" + polymarketHome + ")",
		}},
		Footer: &Footer{Text: "Tip: Markets must be actively trading to appear in search"},
	}
}

// Help renders usage instructions for the given command prefix.
func (b Builder) Help(prefix string, cooldown time.Duration, catalogSize int) Embed {
	examples := []string{
		"Trump Department Education",
		"Bitcoin 2025",
		"Fed rate hike",
		"Ukraine NATO",
		"recession 2025",
	}
	var ex strings.Builder
	for i, q := range examples {
		if i > 0 {
			ex.WriteByte('\n')
		}
		fmt.Fprintf(&ex, "`%smarket %s`", prefix, q)
	}

	return Embed{
		Title:       "📚 Polymarket Bot Help",
		Description: "Search for Polymarket prediction markets using natural language queries.",
		Color:       ColorBrand,
		Fields: []Field{
			{Name: "🔧 Command", Value: fmt.Sprintf("`%smarket <query>`", prefix)},
			{Name: "📝 Examples", Value: ex.String()},
			{Name: "💡 Search Tips", Value: "• Use natural language, small typos and word order do not matter\n" +
				"• Be specific but not overly detailed\n" +
				"• Search for key terms from the market title\n" +
				"• Include a year to narrow results to that year"},
			{Name: "⚠️ Coverage Limitation", Value: fmt.Sprintf(
				"This bot searches the **%d most popular open markets**. "+
					"Niche or low-volume markets may not appear even if they exist on polymarket.com.", catalogSize)},
			{Name: "⏱️ Rate Limit", Value: fmt.Sprintf("One command every %s per user", humanDuration(cooldown))},
		},
		Footer: &Footer{Text: "Data from Polymarket API"},
	}
}

// BotStats feeds the info embed.
type BotStats struct {
	Guilds      int
	Latency     time.Duration
	Markets     int
	CatalogAge  time.Duration
	Version     string
	PolicyLabel string
}

// Info renders bot statistics.
func (b Builder) Info(s BotStats) Embed {
	stats := fmt.Sprintf("Servers: %d\nLatency: %dms", s.Guilds, s.Latency.Milliseconds())
	coverage := fmt.Sprintf("%d open markets", s.Markets)
	if s.Markets > 0 {
		coverage += fmt.Sprintf("\nRefreshed %s ago", humanDuration(s.CatalogAge.Truncate(time.Second)))
	}
	return Embed{
		Title:       "🤖 Polymarket Bot",
		Description: "A Discord bot for searching Polymarket prediction markets",
		Color:       ColorBrand,
		Fields: []Field{
			{Name: "📊 Stats", Value: stats, Inline: true},
			{Name: "🔍 Market Coverage", Value: coverage, Inline: true},
			{Name: "ℹ️ Important", Value: "This bot searches the **most popular markets** from Polymarket's API. " +
				"Low-volume or niche markets may not appear in search results even if they exist on polymarket.com."},
			{Name: "🔗 Links", Value: "[Polymarket](" + polymarketHome + ") • [All Markets](" + polymarketHome + "/markets)"},
		},
		Footer: &Footer{Text: fmt.Sprintf("polysearch %s · matcher policy %s", s.Version, s.PolicyLabel)},
	}
}

// OddsText renders the yes/no pair on one line.
func OddsText(m *domain.Market) string {
	if !m.Prices.Available {
		return "Odds unavailable"
	}
	return fmt.Sprintf("**%s**: %.1f%% | **%s**: %.1f%%",
		m.Outcomes[0], m.Prices.Yes*100, m.Outcomes[1], m.Prices.No*100)
}

// FormatDate renders a close date like "Dec 31, 2027 at 11:59 PM UTC".
func FormatDate(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.UTC().Format("Jan 02, 2006 at 03:04 PM UTC")
}

// FormatCurrency renders a dollar amount with thousands separators and no
// cents, e.g. "$1,250,000".
func FormatCurrency(amount float64) string {
	return "$" + humanize.Comma(int64(math.Round(amount)))
}

// FormatVolume is FormatCurrency with "N/A" for a missing volume.
func FormatVolume(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return FormatCurrency(*v)
}

// Truncate shortens s to at most max runes, ending in "..." when cut.
func Truncate(s string, max int) string {
	const suffix = "..."
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= len(suffix) {
		return string(r[:max])
	}
	return string(r[:max-len(suffix)]) + suffix
}

func humanDuration(d time.Duration) string {
	if d > 0 && d%time.Second == 0 && d < time.Minute {
		secs := int(d / time.Second)
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	return d.String()
}
