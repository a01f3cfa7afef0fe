// Package matcher scores a free-text query against every market question in a
// catalog snapshot and returns the best candidates. Scoring combines several
// fuzzy strategies under a versioned Policy; a failing strategy degrades the
// result instead of aborting it.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/alanyoungcy/polysearch/internal/domain"
	"github.com/alanyoungcy/polysearch/internal/metrics"
)

var yearPattern = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)

type boundStrategy struct {
	Strategy
	scorer Scorer
}

// Engine matches queries against snapshots. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	policy     Policy
	strategies []boundStrategy
	logger     *slog.Logger
}

// NewEngine resolves every strategy in policy against reg.
func NewEngine(policy Policy, reg *Registry, logger *slog.Logger) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	bound := make([]boundStrategy, 0, len(policy.Strategies))
	for _, s := range policy.Strategies {
		sc, err := reg.Get(s.Scorer)
		if err != nil {
			return nil, fmt.Errorf("matcher: policy %s: %w", policy.Version, err)
		}
		bound = append(bound, boundStrategy{Strategy: s, scorer: sc})
	}
	return &Engine{
		policy:     policy,
		strategies: bound,
		logger:     logger.With(slog.String("component", "matcher")),
	}, nil
}

// Policy returns the engine's tuning.
func (e *Engine) Policy() Policy { return e.policy }

// Match returns at most Policy.MaxResults candidates whose combined score
// clears the query-length threshold, ordered by descending score with ties
// kept in snapshot order. An empty query or snapshot yields no results, and
// so does a context that ends mid-scan.
func (e *Engine) Match(ctx context.Context, query string, snap *domain.Snapshot) []domain.MatchResult {
	q := Normalize(query)
	if q == "" || snap.Len() == 0 {
		return nil
	}
	threshold := e.policy.Threshold(len(strings.Fields(q)))
	queryYears := years(q)

	// Each strategy's failure is reported once per query.
	failed := make(map[string]bool, len(e.strategies))
	anyScored := false

	var results []domain.MatchResult
	for i := 0; i < snap.Len(); i++ {
		if ctx.Err() != nil {
			return nil
		}
		m := snap.Market(i)
		c := Normalize(m.Question)

		score, ran, ok := e.combine(ctx, q, c, failed)
		if ran {
			anyScored = true
		}
		if !ok {
			continue
		}
		if e.policy.YearPenalty < 1 && len(queryYears) > 0 {
			if cy := years(c); len(cy) > 0 && disjoint(queryYears, cy) {
				score *= e.policy.YearPenalty
			}
		}
		if score >= threshold {
			results = append(results, domain.MatchResult{Index: i, Market: m, Score: score})
		}
	}

	if !anyScored {
		e.logger.ErrorContext(ctx, "all scoring strategies failed",
			slog.String("query", query),
			slog.String("policy", e.policy.Version),
		)
		return nil
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if len(results) > e.policy.MaxResults {
		results = results[:e.policy.MaxResults]
	}
	return results
}

// combine scores one candidate as the weighted mean of the strategies that
// cleared their cutoffs. ran reports whether at least one strategy produced a
// score; ok reports whether the candidate earned a combined score.
func (e *Engine) combine(ctx context.Context, q, c string, failed map[string]bool) (score float64, ran, ok bool) {
	type supporting struct {
		weight, cutoff, score float64
	}
	var (
		num, den   float64
		primaryHit bool
		support    []supporting
	)

	for _, s := range e.strategies {
		v, err := e.safeScore(s.scorer, q, c)
		if err != nil {
			metrics.ScorerFailures.WithLabelValues(s.Scorer).Inc()
			if !failed[s.Scorer] {
				failed[s.Scorer] = true
				e.logger.WarnContext(ctx, "scoring strategy failed, continuing without it",
					slog.String("scorer", s.Scorer),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		ran = true
		if !s.Primary {
			support = append(support, supporting{s.Weight, s.Cutoff, v})
			continue
		}
		if v >= s.Cutoff {
			num += s.Weight * v
			den += s.Weight
			primaryHit = true
		}
	}

	if primaryHit {
		for _, sp := range support {
			if sp.score >= sp.cutoff {
				num += sp.weight * sp.score
				den += sp.weight
			}
		}
		return clamp(num / den), ran, true
	}

	var best float64
	for _, sp := range support {
		best = max(best, sp.score)
	}
	if len(support) > 0 && best >= e.policy.RescueMin {
		return clamp(best * e.policy.RescueFactor), ran, true
	}
	return 0, ran, false
}

// safeScore runs a scorer, converting a panic into an error.
func (e *Engine) safeScore(s Scorer, q, c string) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scorer %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Score(q, c)
}

func years(s string) map[string]struct{} {
	found := yearPattern.FindAllString(s, -1)
	if len(found) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(found))
	for _, y := range found {
		set[y] = struct{}{}
	}
	return set
}

func disjoint(a, b map[string]struct{}) bool {
	for y := range a {
		if _, ok := b[y]; ok {
			return false
		}
	}
	return true
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
