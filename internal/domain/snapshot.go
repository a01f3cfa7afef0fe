package domain

import "time"

// Snapshot is an immutable, ordered set of admitted markets together with
// the time it was captured. A snapshot is never mutated after construction;
// the catalog cache replaces it wholesale.
type Snapshot struct {
	markets   []Market
	fetchedAt time.Time
}

// NewSnapshot copies markets into a new snapshot captured at fetchedAt.
func NewSnapshot(markets []Market, fetchedAt time.Time) *Snapshot {
	cp := make([]Market, len(markets))
	copy(cp, markets)
	return &Snapshot{markets: cp, fetchedAt: fetchedAt}
}

// Len returns the number of markets in the snapshot. A nil snapshot is empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.markets)
}

// Market returns a pointer to the i-th market. Callers must treat the
// returned value as read-only.
func (s *Snapshot) Market(i int) *Market {
	return &s.markets[i]
}

// Markets returns a copy of the snapshot's markets in order.
func (s *Snapshot) Markets() []Market {
	if s == nil {
		return nil
	}
	cp := make([]Market, len(s.markets))
	copy(cp, s.markets)
	return cp
}

// FetchedAt returns the capture timestamp.
func (s *Snapshot) FetchedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.fetchedAt
}

// Age returns how old the snapshot is relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt())
}
