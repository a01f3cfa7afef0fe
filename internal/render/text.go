package render

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/polysearch/internal/domain"
)

// Text renders a classification for terminals and logs.
func Text(c domain.Classification) string {
	var b strings.Builder
	switch c.Kind {
	case domain.KindSingle:
		r := c.Matches[0]
		m := r.Market
		fmt.Fprintf(&b, "%s\n", m.Question)
		if u := m.URL(); u != "" {
			fmt.Fprintf(&b, "  %s\n", u)
		}
		fmt.Fprintf(&b, "  odds:   %s\n", plainOdds(m))
		fmt.Fprintf(&b, "  volume: %s\n", FormatVolume(m.Volume))
		fmt.Fprintf(&b, "  closes: %s\n", FormatDate(m.EndDate))
		fmt.Fprintf(&b, "  match:  %.1f%%\n", r.Score)
	case domain.KindMultiple:
		fmt.Fprintf(&b, "Found %d markets matching '%s':\n", len(c.Matches), c.Query)
		for i, r := range c.Matches {
			fmt.Fprintf(&b, "%d. [%5.1f%%] %s (%s)\n", i+1, r.Score, Truncate(r.Market.Question, 100), plainOdds(r.Market))
		}
	default:
		fmt.Fprintf(&b, "No active markets found matching '%s'.\n", c.Query)
	}
	return b.String()
}

func plainOdds(m *domain.Market) string {
	if !m.Prices.Available {
		return "odds unavailable"
	}
	return fmt.Sprintf("%s %.1f%% / %s %.1f%%", m.Outcomes[0], m.Prices.Yes*100, m.Outcomes[1], m.Prices.No*100)
}
