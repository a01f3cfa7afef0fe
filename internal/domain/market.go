package domain

import (
	"fmt"
	"time"
)

// MarketURLBase is the public page prefix for a market slug.
const MarketURLBase = "https://polymarket.com/market/"

// Prices is the decoded yes/no probability pair of a binary market. When
// Available is false the source carried a price field that could not be
// decoded into two probabilities, and Yes/No are meaningless.
type Prices struct {
	Yes       float64
	No        float64
	Available bool
}

// UnavailablePrices is the sentinel for a market whose odds are unknown.
var UnavailablePrices = Prices{}

// NewPrices builds an available price pair.
func NewPrices(yes, no float64) Prices {
	return Prices{Yes: yes, No: no, Available: true}
}

// Market represents one Polymarket prediction market as admitted into a
// catalog snapshot. Markets are immutable once admitted.
type Market struct {
	ID          string
	Slug        string
	Question    string
	Description string
	Outcomes    [2]string // e.g. ["Yes","No"]
	Prices      Prices
	Volume      *float64   // nil when the source did not report a usable volume
	EndDate     *time.Time // nil when the source did not report a usable close date
}

// URL returns the public market page, or an empty string when the market has
// no slug.
func (m *Market) URL() string {
	if m.Slug == "" {
		return ""
	}
	return MarketURLBase + m.Slug
}

// String implements fmt.Stringer for log lines.
func (m *Market) String() string {
	return fmt.Sprintf("market(%s %q)", m.ID, m.Question)
}
