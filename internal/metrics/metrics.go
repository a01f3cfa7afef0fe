// Package metrics declares the Prometheus instruments shared by the catalog,
// matcher, bot and HTTP layers. Instruments register with the default
// registry and are served by the API server on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "polysearch"

var (
	// FetchAttempts counts Gamma /markets attempts by outcome.
	// Labels: outcome (ok, transient, rate_limited, rejected, malformed, cancelled)
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "fetch_attempts_total",
		Help:      "Catalog fetch attempts by outcome",
	}, []string{"outcome"})

	// FetchDuration measures a full FetchSnapshot call including retries.
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of catalog fetches including retries",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	// RecordsSkipped counts source records dropped at ingest.
	RecordsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "records_skipped_total",
		Help:      "Market records dropped by ingest validation",
	})

	// CacheLookups counts catalog cache reads by result.
	// Labels: result (hit, refreshed, stale, error)
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "lookups_total",
		Help:      "Catalog cache lookups by result",
	}, []string{"result"})

	// SnapshotMarkets is the size of the currently held snapshot.
	SnapshotMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "snapshot_markets",
		Help:      "Number of markets in the held catalog snapshot",
	})

	// ScorerFailures counts scorer errors and panics by scorer.
	ScorerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matcher",
		Name:      "scorer_failures_total",
		Help:      "Scoring strategy failures by scorer",
	}, []string{"scorer"})

	// Classifications counts resolved queries by classification kind.
	Classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "classifications_total",
		Help:      "Resolved queries by classification kind",
	}, []string{"kind"})

	// Commands counts chat commands by name and status.
	// Labels: command, status (ok, cooldown, invalid, error)
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bot",
		Name:      "commands_total",
		Help:      "Chat commands handled by name and status",
	}, []string{"command", "status"})

	// HTTPRequests counts API requests by route pattern and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP API requests by route and status",
	}, []string{"route", "status"})
)
