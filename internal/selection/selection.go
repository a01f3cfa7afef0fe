// Package selection turns a ranked match list into the answer shown to the
// user: one confident market, a short list to choose from, or nothing.
package selection

import "github.com/alanyoungcy/polysearch/internal/domain"

// DefaultHighConfidence is the top score above which only the best match is
// surfaced.
const DefaultHighConfidence = 85.0

// Policy classifies ranked matches. The zero value uses
// DefaultHighConfidence.
type Policy struct {
	HighConfidence float64
}

// Classify is pure: the same inputs always produce the same classification.
// matches must already be ordered best first.
func (p Policy) Classify(query string, matches []domain.MatchResult) domain.Classification {
	bound := p.HighConfidence
	if bound == 0 {
		bound = DefaultHighConfidence
	}

	switch {
	case len(matches) == 0:
		return domain.Classification{Kind: domain.KindNone, Query: query}
	case len(matches) == 1 || matches[0].Score > bound:
		return domain.Classification{
			Kind:    domain.KindSingle,
			Query:   query,
			Matches: []domain.MatchResult{matches[0]},
		}
	default:
		out := make([]domain.MatchResult, len(matches))
		copy(out, matches)
		return domain.Classification{Kind: domain.KindMultiple, Query: query, Matches: out}
	}
}
