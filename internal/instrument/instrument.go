// Package instrument records fetch and publish activity of the refresh engine.
// A nil *Metrics is valid and records nothing.
package instrument

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

type Metrics struct {
	fetches        *prometheus.CounterVec
	publishes      *prometheus.CounterVec
	refreshLatency *prometheus.HistogramVec
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hawkview",
			Subsystem: "backend",
			Name:      "fetches_total",
			Help:      "Backend fetches issued by refresh components",
		}, []string{"component", "outcome"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hawkview",
			Subsystem: "views",
			Name:      "publishes_total",
			Help:      "Staging buffers swapped into a published slot",
		}, []string{"component"}),
		refreshLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hawkview",
			Subsystem: "views",
			Name:      "refresh_duration_seconds",
			Help:      "Time from refresh start until every branch settled",
			Buckets:   histogramBuckets,
		}, []string{"component"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hawkview",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hawkview",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		return m
	}
	m.fetches = register(reg, m.fetches)
	m.publishes = register(reg, m.publishes)
	m.refreshLatency = register(reg, m.refreshLatency)
	m.requests = register(reg, m.requests)
	m.requestLatency = register(reg, m.requestLatency)
	return m
}

// register returns the already registered collector when one exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) Fetch(component string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.fetches.WithLabelValues(component, outcome).Inc()
}

func (m *Metrics) Published(component string, started time.Time) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(component).Inc()
	m.refreshLatency.WithLabelValues(component).Observe(time.Since(started).Seconds())
}

func (m *Metrics) Request(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"method": method, "route": route, "status": strconv.Itoa(status)}
	m.requests.With(labels).Inc()
	m.requestLatency.With(labels).Observe(d.Seconds())
}
