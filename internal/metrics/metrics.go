// Package metrics holds the Prometheus collectors shared by the producer,
// workers and status API. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "uptime"

type Metrics struct {
	Registry *prometheus.Registry

	probes        *prometheus.CounterVec
	probeLatency  *prometheus.HistogramVec
	persistFailed *prometheus.CounterVec
	acked         *prometheus.CounterVec
	quarantined   *prometheus.CounterVec
	brokerErrors  *prometheus.CounterVec
	published     prometheus.Counter
	cycleFailed   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "probes_total",
			Help: "Probes completed, by region and observed status.",
		}, []string{"region", "status"}),
		probeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "probe_duration_seconds",
			Help:    "Elapsed time of each probe until response or failure.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 11),
		}, []string{"region"}),
		persistFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tick_persist_failures_total",
			Help: "Ticks that could not be stored after all retries.",
		}, []string{"region"}),
		acked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "entries_acked_total",
			Help: "Job entries acknowledged.",
		}, []string{"region"}),
		quarantined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "entries_quarantined_total",
			Help: "Malformed job entries dropped from the log.",
		}, []string{"region"}),
		brokerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "broker_errors_total",
			Help: "Failed broker calls, by operation.",
		}, []string{"op"}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "producer_published_total",
			Help: "Job entries appended by the producer.",
		}),
		cycleFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "producer_cycle_failures_total",
			Help: "Producer cycles aborted by a list or append failure.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.probes, m.probeLatency, m.persistFailed, m.acked,
		m.quarantined, m.brokerErrors, m.published, m.cycleFailed,
	)
	return m
}

func (m *Metrics) ObserveProbe(region, status string, seconds float64) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(region, status).Inc()
	m.probeLatency.WithLabelValues(region).Observe(seconds)
}

func (m *Metrics) PersistFailed(region string) {
	if m == nil {
		return
	}
	m.persistFailed.WithLabelValues(region).Inc()
}

func (m *Metrics) Acked(region string, n int) {
	if m == nil {
		return
	}
	m.acked.WithLabelValues(region).Add(float64(n))
}

func (m *Metrics) Quarantined(region string) {
	if m == nil {
		return
	}
	m.quarantined.WithLabelValues(region).Inc()
}

func (m *Metrics) BrokerError(op string) {
	if m == nil {
		return
	}
	m.brokerErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Published(n int) {
	if m == nil {
		return
	}
	m.published.Add(float64(n))
}

func (m *Metrics) CycleFailed() {
	if m == nil {
		return
	}
	m.cycleFailed.Inc()
}
