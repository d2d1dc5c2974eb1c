// Package metrics exposes Prometheus collectors for retrievals, provider
// calls, and scheduled jobs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricevault"

// Registry holds the application collectors served by Handler.
var Registry = prometheus.NewRegistry()

// Default is registered on Registry.
var Default = New(Registry)

func init() {
	Registry.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	retrievals       *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	persistFailures  prometheus.Counter
	archived         prometheus.Counter
	jobRuns          *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		retrievals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrievals_total",
				Help:      "History lookups by where the data came from.",
			},
			[]string{"outcome"},
		),
		providerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_failures_total",
				Help:      "Provider fetches that failed, timed out, or returned unusable data.",
			},
			[]string{"provider"},
		),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Fetched records that could not be saved.",
		}),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archived_records_total",
			Help:      "Records moved into the archive set.",
		}),
		jobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "job_runs_total",
				Help:      "Scheduled job runs.",
			},
			[]string{"job", "success"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of provider fetches.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"provider"},
		),
	}
	reg.MustRegister(m.retrievals, m.providerFailures, m.persistFailures, m.archived, m.jobRuns, m.fetchDuration)
	return m
}

func (m *Metrics) RecordRetrieval(outcome string) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordProviderFailure(provider string) {
	if m == nil {
		return
	}
	m.providerFailures.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordPersistFailure() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) RecordArchived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.archived.Add(float64(n))
}

func (m *Metrics) RecordJobRun(job string, success bool) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
}

func (m *Metrics) ObserveFetch(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
