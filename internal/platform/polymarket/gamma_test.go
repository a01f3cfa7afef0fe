package polymarket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polysearch/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const twoMarkets = `[
	{"id": "1", "slug": "trump-doe", "question": "Will Trump end Department of Education in 2025?",
	 "outcomePrices": "[\"0.12\", \"0.88\"]", "outcomes": "[\"Yes\", \"No\"]",
	 "volume": "1250000.5", "endDate": "2025-12-31T12:00:00Z"},
	{"id": 2, "title": "Fed rate hike in December?", "prices": [0.3, 0.7], "volumeNum": 42}
]`

func newTestClient(srv *httptest.Server, opts ...ClientOption) *GammaClient {
	base := []ClientOption{
		WithLogger(discard),
		WithRetries(3, time.Millisecond),
		WithTimeout(time.Second),
	}
	return NewGammaClient(srv.URL, append(base, opts...)...)
}

func TestFetchSnapshotDecodesMarkets(t *testing.T) {
	fetchedAt := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, twoMarkets)
	}))
	defer srv.Close()

	snap, err := newTestClient(srv, WithClock(func() time.Time { return fetchedAt })).FetchSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "closed=false&limit=100", gotQuery)
	assert.Equal(t, fetchedAt, snap.FetchedAt())
	require.Equal(t, 2, snap.Len())

	m := snap.Market(0)
	assert.Equal(t, "1", m.ID)
	assert.Equal(t, "Will Trump end Department of Education in 2025?", m.Question)
	assert.Equal(t, "https://polymarket.com/market/trump-doe", m.URL())
	assert.Equal(t, domain.NewPrices(0.12, 0.88), m.Prices)
	require.NotNil(t, m.Volume)
	assert.InDelta(t, 1250000.5, *m.Volume, 1e-9)
	require.NotNil(t, m.EndDate)
	assert.Equal(t, time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC), *m.EndDate)

	m = snap.Market(1)
	assert.Equal(t, "2", m.ID)
	assert.Equal(t, "Fed rate hike in December?", m.Question)
	assert.Equal(t, domain.NewPrices(0.3, 0.7), m.Prices)
	assert.Equal(t, [2]string{"Yes", "No"}, m.Outcomes)
	require.NotNil(t, m.Volume)
	assert.Equal(t, 42.0, *m.Volume)
	assert.Nil(t, m.EndDate)
}

func TestFetchSnapshotMarketQueryOptions(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, "[]")
	}))
	defer srv.Close()

	_, err := newTestClient(srv, WithMarketQuery(50, true, "volume")).FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ascending=false&closed=true&limit=50&order=volume", gotQuery)
}

func TestFetchSnapshotAcceptsEnvelopes(t *testing.T) {
	for _, body := range []string{
		`{"data": [{"question": "Q?", "outcomePrices": "[\"0.5\",\"0.5\"]"}]}`,
		`{"markets": [{"question": "Q?", "outcomePrices": "[\"0.5\",\"0.5\"]"}]}`,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		}))

		snap, err := newTestClient(srv).FetchSnapshot(context.Background())
		srv.Close()

		require.NoError(t, err, body)
		assert.Equal(t, 1, snap.Len())
	}
}

func TestFetchSnapshotDropsInvalidRecords(t *testing.T) {
	body := `[
		{"question": "Valid?", "outcomePrices": "[\"0.5\",\"0.5\"]"},
		{"question": "", "outcomePrices": "[\"0.5\",\"0.5\"]"},
		{"question": "No prices at all"},
		{"slug": "no-question", "outcomePrices": "[\"0.5\",\"0.5\"]"},
		"not an object",
		null,
		{"name": "Prices unreadable", "odds": "n/a"}
	]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	snap, err := newTestClient(srv).FetchSnapshot(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, snap.Len())
	assert.Equal(t, "Valid?", snap.Market(0).Question)
	assert.Equal(t, "Prices unreadable", snap.Market(1).Question)
	assert.False(t, snap.Market(1).Prices.Available)
}

func TestFetchSnapshotNullPriceField(t *testing.T) {
	body := `[
		{"question": "Null odds?", "outcomePrices": null},
		{"question": "Null first, usable second?", "outcomePrices": null, "prices": [0.2, 0.8]}
	]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	snap, err := newTestClient(srv).FetchSnapshot(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, snap.Len())
	assert.Equal(t, "Null odds?", snap.Market(0).Question)
	assert.Equal(t, domain.UnavailablePrices, snap.Market(0).Prices)
	assert.Equal(t, domain.NewPrices(0.2, 0.8), snap.Market(1).Prices)
}

func TestFetchSnapshotRateLimitedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchSnapshot(context.Background())
	require.Error(t, err)

	var rl *domain.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 60*time.Second, rl.RetryAfter)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchSnapshotRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, twoMarkets)
	}))
	defer srv.Close()

	snap, err := newTestClient(srv).FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchSnapshotGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchSnapshot(context.Background())
	require.Error(t, err)

	var te *domain.TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, te.Status)
	assert.ErrorIs(t, err, domain.ErrTransientFetch)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchSnapshotRetriesAttemptTimeouts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		_, _ = io.WriteString(w, twoMarkets)
	}))
	defer srv.Close()

	snap, err := newTestClient(srv, WithTimeout(50*time.Millisecond)).FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchSnapshotClientErrorsFailFast(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, domain.ErrRequestRejected},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusNotFound, domain.ErrNotFound},
	}
	for _, tt := range tests {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(tt.status)
		}))

		_, err := newTestClient(srv).FetchSnapshot(context.Background())
		srv.Close()

		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		assert.Equal(t, int32(1), calls.Load(), "status %d", tt.status)
	}
}

func TestFetchSnapshotMalformedPayload(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`"a string"`,
		`{"results": []}`,
		`{"data": {"not": "a list"}}`,
		`[{"question": "unterminated"`,
	} {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_, _ = io.WriteString(w, body)
		}))

		_, err := newTestClient(srv).FetchSnapshot(context.Background())
		srv.Close()

		assert.ErrorIs(t, err, domain.ErrMalformedResponse, body)
		assert.Equal(t, int32(1), calls.Load(), body)
	}
}

func TestFetchSnapshotStopsOnCallerCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(srv, WithRetries(3, time.Hour)).FetchSnapshot(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 60*time.Second, parseRetryAfter("", now))
	assert.Equal(t, 5*time.Second, parseRetryAfter("5", now))
	assert.Equal(t, 60*time.Second, parseRetryAfter("soon", now))
	assert.Equal(t, 60*time.Second, parseRetryAfter("-3", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
}
