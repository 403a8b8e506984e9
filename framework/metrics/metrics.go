// Package metrics exports container resolutions to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/km-arc/lightcontainer/framework/container"
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeCircular = "circular"
	OutcomeError    = "error"
)

// Resolutions is a container.Observer that counts resolutions per resolver
// kind and outcome and records their latency.
type Resolutions struct {
	registry *prometheus.Registry
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ container.Observer = (*Resolutions)(nil)

// New registers the collectors on a fresh registry. Go runtime and process
// collectors are included when runtime is true.
func New(namespace string, runtime bool) *Resolutions {
	m := &Resolutions{
		registry: prometheus.NewRegistry(),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Container resolutions by resolver kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_duration_seconds",
			Help:      "Latency of top-level container resolutions.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.total, m.duration)
	if runtime {
		m.registry.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)
	}
	return m
}

// ObserveResolution implements container.Observer.
func (m *Resolutions) ObserveResolution(_ string, kind string, d time.Duration, err error) {
	if kind == "" {
		kind = "none"
	}
	m.total.WithLabelValues(kind, Outcome(err)).Inc()
	m.duration.WithLabelValues(kind).Observe(d.Seconds())
}

// Registry returns the registry holding the collectors.
func (m *Resolutions) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Resolutions) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Outcome classifies a resolution error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, container.ErrCircularDependency):
		return OutcomeCircular
	case errors.Is(err, container.ErrNotFound):
		return OutcomeNotFound
	}
	return OutcomeError
}
