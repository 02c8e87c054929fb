// Package monitoring exposes pipeline counters and table sizes to Prometheus.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics is
// valid and records nothing, so components can be built without it.
type Metrics struct {
	registry *prometheus.Registry

	SearchQueries          *prometheus.CounterVec
	SearchResults          *prometheus.CounterVec
	EstablishmentsInserted *prometheus.CounterVec
	ContactsInserted       *prometheus.CounterVec
	DedupeRemoved          *prometheus.CounterVec
	PagesFetched           *prometheus.CounterVec
	GateCooldowns          prometheus.Counter
	TableRows              *prometheus.GaugeVec
}

// NewMetrics registers every metric on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		SearchQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscout_search_queries_total",
			Help: "Search queries by outcome (ok, skipped, rate_limited, failed).",
		}, []string{"outcome"}),
		SearchResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscout_search_results_total",
			Help: "Classified search results by outcome and rejection reason.",
		}, []string{"outcome", "reason"}),
		EstablishmentsInserted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscout_establishments_inserted_total",
			Help: "Establishments inserted by source.",
		}, []string{"source"}),
		ContactsInserted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscout_contacts_inserted_total",
			Help: "Contacts inserted by type.",
		}, []string{"type"}),
		DedupeRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscout_dedupe_removed_total",
			Help: "Establishments removed by deduplication pass.",
		}, []string{"pass"}),
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscout_pages_fetched_total",
			Help: "Website fetches during enrichment by outcome.",
		}, []string{"outcome"}),
		GateCooldowns: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadscout_gate_cooldowns_total",
			Help: "Rate-limit cooldowns started.",
		}),
		TableRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "leadscout_table_rows",
			Help: "Row count per table at the last poll.",
		}, []string{"table"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncSearchQuery(outcome string) {
	if m == nil {
		return
	}
	m.SearchQueries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncSearchResult(outcome, reason string) {
	if m == nil {
		return
	}
	m.SearchResults.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) IncEstablishment(source string) {
	if m == nil {
		return
	}
	m.EstablishmentsInserted.WithLabelValues(source).Inc()
}

func (m *Metrics) IncContact(typ string) {
	if m == nil {
		return
	}
	m.ContactsInserted.WithLabelValues(typ).Inc()
}

func (m *Metrics) AddDedupeRemoved(pass string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DedupeRemoved.WithLabelValues(pass).Add(float64(n))
}

func (m *Metrics) IncPageFetch(outcome string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncCooldown() {
	if m == nil {
		return
	}
	m.GateCooldowns.Inc()
}
