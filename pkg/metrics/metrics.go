// Package metrics exposes Prometheus instrumentation for the rule service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Parse result label values.
const (
	ResultOK       = "ok"
	ResultLexical  = "lexical_error"
	ResultSyntax   = "syntax_error"
	ResultSemantic = "semantic_error"
	ResultOther    = "error"
)

// Metrics tracks parse outcomes and the size of the loaded rule set.
type Metrics struct {
	registry *prometheus.Registry

	parsesTotal   *prometheus.CounterVec
	parseDuration prometheus.Histogram
	rulesLoaded   prometheus.Gauge
}

// New creates and registers the service metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		parsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rulekit",
				Name:      "parses_total",
				Help:      "Total number of expression parses by result",
			},
			[]string{"result"},
		),
		parseDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "rulekit",
				Name:      "parse_duration_seconds",
				Help:      "Duration of expression parses in seconds",
				// Parses should be fast (< 1ms for typical rules)
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
		),
		rulesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rulekit",
				Name:      "rules_loaded",
				Help:      "Number of rules currently deployed",
			},
		),
	}

	registry.MustRegister(m.parsesTotal, m.parseDuration, m.rulesLoaded)
	return m
}

// ObserveParse records one parse outcome and its duration.
func (m *Metrics) ObserveParse(result string, elapsed time.Duration) {
	m.parsesTotal.WithLabelValues(result).Inc()
	m.parseDuration.Observe(elapsed.Seconds())
}

// SetRulesLoaded records the current number of deployed rules.
func (m *Metrics) SetRulesLoaded(n int) {
	m.rulesLoaded.Set(float64(n))
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
