package domain

// MatchResult pairs a snapshot market with its combined confidence score in
// [0, 100]. Index is the market's position in the snapshot it was matched
// against and is the result's identity; two markets with identical question
// text are still distinct results.
type MatchResult struct {
	Index  int
	Market *Market
	Score  float64
}

// ClassificationKind is the outcome of the selection policy.
type ClassificationKind string

const (
	KindNone     ClassificationKind = "none"
	KindSingle   ClassificationKind = "single"
	KindMultiple ClassificationKind = "multiple"
)

// Classification is the final answer for a query. Single carries exactly one
// match, Multiple carries two or more (at most the engine's result cap), and
// None carries no matches.
type Classification struct {
	Kind    ClassificationKind
	Query   string
	Matches []MatchResult
}

// Top returns the best match, if any.
func (c Classification) Top() (MatchResult, bool) {
	if len(c.Matches) == 0 {
		return MatchResult{}, false
	}
	return c.Matches[0], true
}
