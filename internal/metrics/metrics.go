// Package metrics exposes Prometheus collectors for the wsmonitor daemons.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	checksTotal           *prometheus.CounterVec
	checkDurationSeconds  prometheus.Histogram
	inFlightChecks        prometheus.Gauge
	publishFailuresTotal  prometheus.Counter
	publishRetriesTotal   prometheus.Counter
	persistOutcomesTotal  *prometheus.CounterVec
	persistFailuresTotal  prometheus.Counter
	registryFailuresTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		checksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wsmonitor_checks_total",
				Help: "Total URL checks performed, labeled by return code.",
			},
			[]string{"code"},
		)

		checkDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wsmonitor_check_duration_seconds",
				Help:    "Histogram of check response times.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		inFlightChecks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "wsmonitor_in_flight_checks",
				Help: "Number of checks currently being fetched.",
			},
		)

		publishFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wsmonitor_publish_failures_total",
				Help: "Metrics dropped after exhausting publish retries.",
			},
		)

		publishRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wsmonitor_publish_retries_total",
				Help: "Publish attempts that had to be retried.",
			},
		)

		persistOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wsmonitor_persist_outcomes_total",
				Help: "Persist results, labeled appended/duplicate/orphaned.",
			},
			[]string{"outcome"},
		)

		persistFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wsmonitor_persist_failures_total",
				Help: "Metrics dropped after exhausting persist retries.",
			},
		)

		registryFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wsmonitor_registry_poll_failures_total",
				Help: "Registry polls that failed and reused the last snapshot.",
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCheck records one completed check.
func ObserveCheck(returnCode int, duration time.Duration) {
	checksTotal.WithLabelValues(strconv.Itoa(returnCode)).Inc()
	checkDurationSeconds.Observe(duration.Seconds())
}

// IncInFlight increments the in-flight gauge.
func IncInFlight() { inFlightChecks.Inc() }

// DecInFlight decrements the in-flight gauge.
func DecInFlight() { inFlightChecks.Dec() }

// ObservePublishRetry counts one retried publish attempt.
func ObservePublishRetry() { publishRetriesTotal.Inc() }

// ObservePublishFailure counts one metric dropped on the publish path.
func ObservePublishFailure() { publishFailuresTotal.Inc() }

// ObservePersistOutcome counts one persist result by outcome name.
func ObservePersistOutcome(outcome string) {
	persistOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObservePersistFailure counts one metric dropped on the persist path.
func ObservePersistFailure() { persistFailuresTotal.Inc() }

// ObserveRegistryFailure counts one failed registry poll.
func ObserveRegistryFailure() { registryFailuresTotal.Inc() }
