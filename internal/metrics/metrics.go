// Package metrics exposes Prometheus collectors for processes, events and
// WebSocket clients.
//
// Metrics implements process.Listener and event.Observer so it can be
// attached directly to the registry and the broadcaster.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/astrobridge/internal/event"
	"github.com/nerrad567/astrobridge/internal/process"
)

const namespace = "astrobridge"

// Metrics holds the service collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	processStarts    *prometheus.CounterVec
	processConflicts *prometheus.CounterVec
	processFinishes  *prometheus.CounterVec
	processDuration  *prometheus.HistogramVec
	processesRunning prometheus.Gauge

	eventsSubmitted *prometheus.CounterVec
	wsClients       prometheus.Gauge
	clientsDropped  prometheus.Counter
	framesDropped   prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors in a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		processStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of processes started.",
		}, []string{"type"}),
		processConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "conflicts_total",
			Help:      "Number of starts refused because of a conflicting running process.",
		}, []string{"type"}),
		processFinishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "finishes_total",
			Help:      "Number of processes that reached a terminal state.",
		}, []string{"type", "status"}),
		processDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "duration_seconds",
			Help:      "Run time of finished processes.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"type"}),
		processesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "running",
			Help:      "Processes currently running.",
		}),
		eventsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "submitted_total",
			Help:      "Events submitted to the broadcaster.",
		}, []string{"channel", "stored"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Connected event clients.",
		}),
		clientsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "clients_dropped_total",
			Help:      "Clients removed after a failed delivery.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "frames_dropped_total",
			Help:      "Event frames dropped because a client send buffer was full.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.processStarts,
		m.processConflicts,
		m.processFinishes,
		m.processDuration,
		m.processesRunning,
		m.eventsSubmitted,
		m.wsClients,
		m.clientsDropped,
		m.framesDropped,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ProcessStarted implements process.Listener.
func (m *Metrics) ProcessStarted(info process.Info) {
	m.processStarts.WithLabelValues(info.Type.Name()).Inc()
	m.processesRunning.Inc()
}

// ProcessFinished implements process.Listener.
func (m *Metrics) ProcessFinished(info process.Info) {
	m.processesRunning.Dec()
	m.processDuration.WithLabelValues(info.Type.Name()).Observe(info.Duration().Seconds())
	m.processFinishes.WithLabelValues(info.Type.Name(), string(info.Status)).Inc()
}

// IncConflict counts a start refused for t.
func (m *Metrics) IncConflict(t process.Type) {
	m.processConflicts.WithLabelValues(t.Name()).Inc()
}

// EventSubmitted implements event.Observer.
func (m *Metrics) EventSubmitted(ch event.Channel, stored bool) {
	m.eventsSubmitted.WithLabelValues(string(ch), strconv.FormatBool(stored)).Inc()
}

// ClientsChanged implements event.Observer.
func (m *Metrics) ClientsChanged(n int) {
	m.wsClients.Set(float64(n))
}

// ClientRemoved implements event.Observer.
func (m *Metrics) ClientRemoved() {
	m.clientsDropped.Inc()
}

// IncFrameDropped counts a frame dropped on a full client buffer.
func (m *Metrics) IncFrameDropped() {
	m.framesDropped.Inc()
}

// HTTPRequest records one served request. route is the matched pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

var (
	_ process.Listener = (*Metrics)(nil)
	_ event.Observer   = (*Metrics)(nil)
)
