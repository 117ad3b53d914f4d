// Package metrics exports the server activity to Prometheus.
//
// Metrics implements the observer interfaces of the encoding, offload and keepalive
// packages, as well as the connection observer of the server, so a single instance is
// passed everywhere.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/indigo-web/strand/http/encoding"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	routeInline  = "inline"
	routeOffload = "offload"
)

type Metrics struct {
	registry *prometheus.Registry

	chunks        *prometheus.CounterVec
	bytesIn       *prometheus.CounterVec
	bytesOut      *prometheus.CounterVec
	failures      *prometheus.CounterVec
	jobsSubmitted prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobsPending   prometheus.Gauge
	timeouts      prometheus.Counter
	connections   prometheus.Gauge
	requests      *prometheus.CounterVec
}

// New registers the metrics in the registry. A fresh registry is used if it's nil.
func New(namespace string, registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "chunks_total",
			Help:      "Number of chunks fed into compressors, by the place they were compressed at",
		}, []string{"encoding", "route"}),
		bytesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "input_bytes_total",
			Help:      "Number of bytes fed into compressors",
		}, []string{"encoding"}),
		bytesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "output_bytes_total",
			Help:      "Number of compressed bytes produced",
		}, []string{"encoding"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "failures_total",
			Help:      "Number of response bodies terminated by a compression failure",
		}, []string{"encoding"}),
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "offload",
			Name:      "jobs_submitted_total",
			Help:      "Number of jobs submitted to the offload pool",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "offload",
			Name:      "jobs_finished_total",
			Help:      "Number of resolved offload jobs, by whether they were canceled",
		}, []string{"canceled"}),
		jobsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "offload",
			Name:      "jobs_pending",
			Help:      "Number of offload jobs submitted but not resolved yet",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keepalive",
			Name:      "timeouts_total",
			Help:      "Number of connections closed due to the keep-alive timeout",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections_open",
			Help:      "Number of currently open connections",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Number of served requests by response code",
		}, []string{"code"}),
	}

	registry.MustRegister(
		m.chunks, m.bytesIn, m.bytesOut, m.failures,
		m.jobsSubmitted, m.jobsFinished, m.jobsPending,
		m.timeouts, m.connections, m.requests,
	)

	return m
}

// Registry returns the registry the metrics are registered in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

func (m *Metrics) Compressed(enc encoding.Encoding, size int, offloaded bool) {
	route := routeInline
	if offloaded {
		route = routeOffload
	}

	m.chunks.WithLabelValues(enc.String(), route).Inc()
	m.bytesIn.WithLabelValues(enc.String()).Add(float64(size))
}

func (m *Metrics) Emitted(enc encoding.Encoding, size int) {
	m.bytesOut.WithLabelValues(enc.String()).Add(float64(size))
}

func (m *Metrics) Failed(enc encoding.Encoding) {
	m.failures.WithLabelValues(enc.String()).Inc()
}

func (m *Metrics) JobSubmitted() {
	m.jobsSubmitted.Inc()
	m.jobsPending.Inc()
}

func (m *Metrics) JobFinished(canceled bool) {
	m.jobsFinished.WithLabelValues(strconv.FormatBool(canceled)).Inc()
	m.jobsPending.Dec()
}

func (m *Metrics) TimedOut() {
	m.timeouts.Inc()
}

func (m *Metrics) ConnectionOpened() {
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	m.connections.Dec()
}

func (m *Metrics) RequestServed(code uint16) {
	m.requests.WithLabelValues(strconv.FormatUint(uint64(code), 10)).Inc()
}
