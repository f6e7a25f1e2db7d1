package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "transient_correlator"

// Metrics groups the collectors updated by the pipeline and the sinks.
type Metrics struct {
	reg *prometheus.Registry

	FetchTotal      *prometheus.CounterVec // source, status
	FetchDuration   *prometheus.HistogramVec
	FallbackTotal   *prometheus.CounterVec // source
	EventsTotal     *prometheus.CounterVec // source
	RejectedTotal   *prometheus.CounterVec // source
	MatchesTotal    prometheus.Counter
	RunDuration     prometheus.Histogram
	LastRunMatches  prometheus.Gauge
	LastRunUnixTime prometheus.Gauge
	SinkPushTotal   *prometheus.CounterVec // sink, status
}

// New builds the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Upstream fetches by source and status",
		}, []string{"source", "status"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching one upstream feed",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		FallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_total",
			Help:      "Runs in which synthetic data replaced a feed",
		}, []string{"source"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_standardized_total",
			Help:      "Events accepted by the standardizer",
		}, []string{"source"}),
		RejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Raw records rejected as malformed",
		}, []string{"source"}),
		MatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Correlated pairs reported",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End to end duration of a correlation run",
			Buckets:   prometheus.DefBuckets,
		}),
		LastRunMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_matches",
			Help:      "Pairs reported by the most recent run",
		}),
		LastRunUnixTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the most recent run",
		}),
		SinkPushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_push_total",
			Help:      "Result pushes by sink and status",
		}, []string{"sink", "status"}),
	}
	reg.MustRegister(
		m.FetchTotal, m.FetchDuration, m.FallbackTotal,
		m.EventsTotal, m.RejectedTotal, m.MatchesTotal,
		m.RunDuration, m.LastRunMatches, m.LastRunUnixTime,
		m.SinkPushTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
