// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal        *prometheus.CounterVec
	strategyWinsTotal   *prometheus.CounterVec
	dedupDecisionsTotal *prometheus.CounterVec
	enrichmentsTotal    *prometheus.CounterVec
	alertsTotal         *prometheus.CounterVec
	rateLimitDelay      *prometheus.HistogramVec
	placesCallsTotal    prometheus.Counter
	cardsExtractedTotal prometheus.Counter
	eventsRejectedTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetches_total",
				Help: "Fetch attempts, labeled by domain and outcome class.",
			},
			[]string{"domain", "class"},
		)
		strategyWinsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_strategy_wins_total",
				Help: "Waterfall wins, labeled by strategy.",
			},
			[]string{"strategy"},
		)
		dedupDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_dedup_decisions_total",
				Help: "Dedup resolver decisions: insert, merge, skip.",
			},
			[]string{"decision"},
		)
		enrichmentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_enrichments_total",
				Help: "Enrichment attempts, labeled by status.",
			},
			[]string{"status"},
		)
		alertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_alerts_total",
				Help: "Alerts, labeled by delivery result.",
			},
			[]string{"result"},
		)
		rateLimitDelay = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Delay introduced by the per-domain rate limiter.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"domain"},
		)
		placesCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvester_places_calls_total",
			Help: "External venue lookup calls charged to the daily budget.",
		})
		cardsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvester_cards_extracted_total",
			Help: "Raw event cards produced by the waterfall.",
		})
		eventsRejectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_events_rejected_total",
				Help: "Cards rejected during normalization, labeled by reason.",
			},
			[]string{"reason"},
		)
	})
}

// IncFetch records one fetch attempt outcome.
func IncFetch(domain, class string) {
	if fetchesTotal != nil {
		fetchesTotal.WithLabelValues(domain, class).Inc()
	}
}

// IncStrategyWin records which strategy won the waterfall.
func IncStrategyWin(strategy string) {
	if strategyWinsTotal != nil {
		strategyWinsTotal.WithLabelValues(strategy).Inc()
	}
}

// IncDedupDecision records one resolver decision.
func IncDedupDecision(decision string) {
	if dedupDecisionsTotal != nil {
		dedupDecisionsTotal.WithLabelValues(decision).Inc()
	}
}

// IncEnrichment records one enrichment attempt status.
func IncEnrichment(status string) {
	if enrichmentsTotal != nil {
		enrichmentsTotal.WithLabelValues(status).Inc()
	}
}

// IncAlert records an alert delivery result.
func IncAlert(result string) {
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveRateLimitDelay records limiter-introduced wait time.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	if rateLimitDelay != nil {
		rateLimitDelay.WithLabelValues(domain).Observe(d.Seconds())
	}
}

// IncPlacesCall records one budgeted external lookup call.
func IncPlacesCall() {
	if placesCallsTotal != nil {
		placesCallsTotal.Inc()
	}
}

// AddCardsExtracted records cards produced by one waterfall run.
func AddCardsExtracted(n int) {
	if cardsExtractedTotal != nil {
		cardsExtractedTotal.Add(float64(n))
	}
}

// IncEventRejected records a card rejected during normalization.
func IncEventRejected(reason string) {
	if eventsRejectedTotal != nil {
		eventsRejectedTotal.WithLabelValues(reason).Inc()
	}
}
