package matcher

import (
	"fmt"
	"sort"
	"sync"
)

// Built-in scorer names.
const (
	ScorerTokenSet  = "token_set"
	ScorerTokenSort = "token_sort"
	ScorerPartial   = "partial"
)

// Scorer rates how well a normalized query matches a normalized candidate on
// a 0–100 scale. A scorer may fail for an individual pair; the engine then
// drops that strategy for the pair and carries on with the others.
type Scorer interface {
	Name() string
	Score(query, candidate string) (float64, error)
}

// ScorerFunc adapts a plain similarity function to the Scorer interface.
type ScorerFunc struct {
	name string
	fn   func(a, b string) float64
}

// NewScorerFunc wraps fn as a Scorer named name.
func NewScorerFunc(name string, fn func(a, b string) float64) ScorerFunc {
	return ScorerFunc{name: name, fn: fn}
}

// Name implements Scorer.
func (s ScorerFunc) Name() string { return s.name }

// Score implements Scorer.
func (s ScorerFunc) Score(query, candidate string) (float64, error) {
	return s.fn(query, candidate), nil
}

// Registry manages a named collection of scorers that policies refer to by
// name. It is safe for concurrent use.
type Registry struct {
	scorers map[string]Scorer
	mu      sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		scorers: make(map[string]Scorer),
	}
}

// DefaultRegistry returns a Registry holding the built-in scorers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewScorerFunc(ScorerTokenSet, TokenSetRatio))
	r.Register(NewScorerFunc(ScorerTokenSort, TokenSortRatio))
	r.Register(NewScorerFunc(ScorerPartial, PartialRatio))
	return r
}

// Register adds a scorer under its own name, replacing any previous scorer
// with the same name.
func (r *Registry) Register(s Scorer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scorers[s.Name()] = s
}

// Get retrieves a scorer by name.
func (r *Registry) Get(name string) (Scorer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scorers[name]
	if !ok {
		return nil, fmt.Errorf("scorer %q: not registered", name)
	}
	return s, nil
}

// List returns the names of all registered scorers in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.scorers))
	for n := range r.scorers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
