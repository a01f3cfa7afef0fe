package render

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polysearch/internal/domain"
)

var fixedNow = func() time.Time { return time.Date(2025, 11, 1, 9, 30, 0, 0, time.UTC) }

func sampleMarket() *domain.Market {
	vol := 1250000.4
	end := time.Date(2027, 12, 31, 23, 59, 59, 0, time.UTC)
	return &domain.Market{
		ID:          "1",
		Slug:        "bitcoin-200k",
		Question:    "Will Bitcoin reach $200k by December 31, 2027?",
		Description: strings.Repeat("d", 250),
		Outcomes:    [2]string{"Yes", "No"},
		Prices:      domain.NewPrices(0.345, 0.655),
		Volume:      &vol,
		EndDate:     &end,
	}
}

func TestSingle(t *testing.T) {
	e := Builder{Now: fixedNow}.Single(sampleMarket())

	assert.Equal(t, "Will Bitcoin reach $200k by December 31, 2027?", e.Title)
	assert.Equal(t, "https://polymarket.com/market/bitcoin-200k", e.URL)
	assert.Equal(t, ColorBrand, e.Color)
	assert.Equal(t, "2025-11-01T09:30:00Z", e.Timestamp)
	assert.Len(t, []rune(e.Description), 200)
	assert.True(t, strings.HasSuffix(e.Description, "..."))

	require.Len(t, e.Fields, 3)
	assert.Equal(t, "**Yes**: 34.5%\n**No**: 65.5%", e.Fields[0].Value)
	assert.Equal(t, "$1,250,000", e.Fields[1].Value)
	assert.Equal(t, "Dec 31, 2027 at 11:59 PM UTC", e.Fields[2].Value)
	assert.Equal(t, "Data from Polymarket", e.Footer.Text)
}

func TestSingleMissingOptionalFields(t *testing.T) {
	m := &domain.Market{Question: "Q?", Outcomes: [2]string{"Yes", "No"}}
	e := Builder{Now: fixedNow}.Single(m)

	assert.Empty(t, e.URL)
	assert.Empty(t, e.Description)
	assert.Equal(t, "Odds unavailable", e.Fields[0].Value)
	assert.Equal(t, "N/A", e.Fields[1].Value)
	assert.Equal(t, "N/A", e.Fields[2].Value)
}

func TestMultiple(t *testing.T) {
	m := sampleMarket()
	other := &domain.Market{Question: strings.Repeat("q", 150), Outcomes: [2]string{"Yes", "No"}}
	matches := []domain.MatchResult{{Index: 0, Market: m, Score: 84.9}, {Index: 1, Market: other, Score: 83.03}}

	e := Builder{Now: fixedNow}.Multiple("bitcoin", matches)

	assert.Equal(t, "🔍 Found 2 markets matching 'bitcoin'", e.Title)
	require.Len(t, e.Fields, 2)
	assert.Equal(t, "1. Will Bitcoin reach $200k by December 31, 2027?", e.Fields[0].Name)
	assert.Contains(t, e.Fields[0].Value, "**Yes**: 34.5% | **No**: 65.5%")
	assert.Contains(t, e.Fields[0].Value, "*Match: 85%*")
	assert.Contains(t, e.Fields[0].Value, "(https://polymarket.com/market/bitcoin-200k)")
	assert.Len(t, []rune(e.Fields[1].Name), len("2. ")+100)
	assert.True(t, strings.HasPrefix(e.Fields[1].Value, "Odds unavailable\n*Match: 83%*"))
}

func TestNone(t *testing.T) {
	e := Builder{Now: fixedNow}.None("alien invasion")

	assert.Equal(t, ColorError, e.Color)
	assert.Equal(t, "No active markets found matching **'alien invasion'**", e.Description)
	require.Len(t, e.Fields, 1)
	assert.Contains(t, e.Fields[0].Value, "Try different keywords")
}

func TestClassificationDispatch(t *testing.T) {
	b := Builder{Now: fixedNow}
	m := sampleMarket()

	assert.Equal(t, ColorError, b.Classification(domain.Classification{Kind: domain.KindNone, Query: "x"}).Color)
	single := b.Classification(domain.Classification{
		Kind:    domain.KindSingle,
		Matches: []domain.MatchResult{{Market: m, Score: 93}},
	})
	assert.Equal(t, m.Question, single.Title)
}

func TestEmbedJSONShape(t *testing.T) {
	raw, err := json.Marshal(Builder{Now: fixedNow}.None("q"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.EqualValues(t, ColorError, decoded["color"])
	assert.NotContains(t, decoded, "url")
	assert.Equal(t, "Tip: Markets must be actively trading to appear in search", decoded["footer"].(map[string]any)["text"])
}

func TestHelpAndInfo(t *testing.T) {
	b := Builder{Now: fixedNow}

	help := b.Help("?", 5*time.Second, 100)
	assert.Contains(t, help.Fields[0].Value, "`?market <query>`")
	assert.Contains(t, help.Fields[3].Value, "100 most popular")
	assert.Equal(t, "One command every 5 seconds per user", help.Fields[4].Value)

	info := b.Info(BotStats{Guilds: 3, Latency: 42 * time.Millisecond, Markets: 100, CatalogAge: 90 * time.Second, Version: "dev", PolicyLabel: "2"})
	assert.Equal(t, "Servers: 3\nLatency: 42ms", info.Fields[0].Value)
	assert.Equal(t, "100 open markets\nRefreshed 1m30s ago", info.Fields[1].Value)
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "$0", FormatCurrency(0))
	assert.Equal(t, "$999", FormatCurrency(999.4))
	assert.Equal(t, "$1,000", FormatCurrency(999.5))
	assert.Equal(t, "$12,345,678", FormatCurrency(12345678))

	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdefgh", 5))
	assert.Equal(t, "éé...", Truncate("éééééééé", 5))
}

func TestText(t *testing.T) {
	m := sampleMarket()

	single := Text(domain.Classification{Kind: domain.KindSingle, Matches: []domain.MatchResult{{Market: m, Score: 93.4}}})
	assert.Contains(t, single, "Will Bitcoin reach $200k")
	assert.Contains(t, single, "Yes 34.5% / No 65.5%")
	assert.Contains(t, single, "match:  93.4%")

	none := Text(domain.Classification{Kind: domain.KindNone, Query: "alien invasion"})
	assert.Equal(t, "No active markets found matching 'alien invasion'.\n", none)
}
