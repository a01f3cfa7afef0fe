package matcher

import (
	"errors"
	"fmt"
	"strings"
)

// PolicyVersion identifies the default tuning below. Bump it whenever a
// weight, cutoff, or band changes so logged scores can be compared across
// releases.
const PolicyVersion = "3"

// Strategy binds a registered scorer to its role in the combined score.
type Strategy struct {
	Scorer string
	Weight float64
	// Cutoff is the minimum score at which the strategy contributes.
	Cutoff float64
	// Primary strategies decide whether a candidate is considered at all.
	// Supporting strategies only add to a candidate that a primary accepted.
	Primary bool
}

// Band maps a query length to the acceptance threshold. A query with at
// most MaxWords normalized words uses Threshold; bands are checked in order
// and the last band catches everything longer.
type Band struct {
	MaxWords  int
	Threshold float64
}

// Policy is the complete, versioned tuning of the match engine.
type Policy struct {
	Version    string
	Strategies []Strategy
	// A candidate with no qualifying primary is still kept when a supporting
	// strategy scores at least RescueMin, at score * RescueFactor.
	RescueMin    float64
	RescueFactor float64
	Bands        []Band
	// YearPenalty multiplies the score when query and candidate both name
	// years and share none of them.
	YearPenalty float64
	MaxResults  int
}

// DefaultPolicy returns the production tuning.
func DefaultPolicy() Policy {
	return Policy{
		Version: PolicyVersion,
		Strategies: []Strategy{
			{Scorer: ScorerTokenSet, Weight: 0.4, Cutoff: 50, Primary: true},
			{Scorer: ScorerTokenSort, Weight: 0.4, Cutoff: 50, Primary: true},
			{Scorer: ScorerPartial, Weight: 0.2, Cutoff: 70},
		},
		RescueMin:    75,
		RescueFactor: 0.9,
		Bands: []Band{
			{MaxWords: 2, Threshold: 50},
			{MaxWords: 4, Threshold: 55},
			{MaxWords: 0, Threshold: 60},
		},
		YearPenalty: 0.6,
		MaxResults:  5,
	}
}

// Threshold returns the acceptance threshold for a query of words words.
func (p Policy) Threshold(words int) float64 {
	for i, b := range p.Bands {
		if i == len(p.Bands)-1 || words <= b.MaxWords {
			return b.Threshold
		}
	}
	return 0
}

// Validate reports structural problems with the policy.
func (p Policy) Validate() error {
	var errs []string
	if len(p.Strategies) == 0 {
		errs = append(errs, "no strategies")
	}
	primaries := 0
	for _, s := range p.Strategies {
		if s.Weight <= 0 {
			errs = append(errs, fmt.Sprintf("strategy %q: weight must be positive", s.Scorer))
		}
		if s.Primary {
			primaries++
		}
	}
	if len(p.Strategies) > 0 && primaries == 0 {
		errs = append(errs, "at least one primary strategy is required")
	}
	if len(p.Bands) == 0 {
		errs = append(errs, "no acceptance bands")
	}
	if p.YearPenalty < 0 || p.YearPenalty > 1 {
		errs = append(errs, "year_penalty must be in [0, 1]")
	}
	if p.MaxResults <= 0 {
		errs = append(errs, "max_results must be positive")
	}
	if len(errs) > 0 {
		return errors.New("matcher: invalid policy: " + strings.Join(errs, "; "))
	}
	return nil
}
