package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polysearch/internal/domain"
)

func results(scores ...float64) []domain.MatchResult {
	out := make([]domain.MatchResult, len(scores))
	for i, s := range scores {
		out[i] = domain.MatchResult{Index: i, Market: &domain.Market{ID: string(rune('a' + i))}, Score: s}
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		scores   []float64
		wantKind domain.ClassificationKind
		wantLen  int
	}{
		{"no matches", nil, domain.KindNone, 0},
		{"one weak match", []float64{51}, domain.KindSingle, 1},
		{"confident top", []float64{93.4, 70, 60}, domain.KindSingle, 1},
		{"exactly at bound is not confident", []float64{85, 84}, domain.KindMultiple, 2},
		{"several plausible", []float64{84.9, 83.0, 81.4}, domain.KindMultiple, 3},
		{"five results", []float64{80, 79, 78, 77, 76}, domain.KindMultiple, 5},
	}

	p := Policy{HighConfidence: 85}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Classify("q", results(tt.scores...))
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Len(t, got.Matches, tt.wantLen)
			assert.Equal(t, "q", got.Query)
		})
	}
}

func TestClassifySingleKeepsTop(t *testing.T) {
	in := results(93.4, 70)
	got := Policy{}.Classify("trump", in)

	require.Equal(t, domain.KindSingle, got.Kind)
	top, ok := got.Top()
	require.True(t, ok)
	assert.Equal(t, 0, top.Index)
}

func TestClassifyIsIdempotent(t *testing.T) {
	in := results(84.9, 83.0, 81.4)
	p := Policy{HighConfidence: 85}

	first := p.Classify("government shutdown", in)
	second := p.Classify("government shutdown", in)
	assert.Equal(t, first, second)

	// The classification does not alias the caller's slice.
	in[0].Score = 0
	assert.Equal(t, 84.9, first.Matches[0].Score)
}

func TestClassifyZeroValueUsesDefaultBound(t *testing.T) {
	got := Policy{}.Classify("q", results(86, 80))
	assert.Equal(t, domain.KindSingle, got.Kind)

	got = Policy{}.Classify("q", results(85, 80))
	assert.Equal(t, domain.KindMultiple, got.Kind)
}
