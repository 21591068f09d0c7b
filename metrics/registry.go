// Package metrics provides a thin registration layer over prometheus so that
// components declare their collectors under a consistent namespace/subsystem
// pair without touching the default registerer directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ComponentRegistry namespaces collectors for a single component.
type ComponentRegistry struct {
	namespace string
	subsystem string
	factory   promauto.Factory
}

// NewComponentRegistry creates a registry bound to the default prometheus registerer.
func NewComponentRegistry(namespace, subsystem string) *ComponentRegistry {
	return &ComponentRegistry{
		namespace: namespace,
		subsystem: subsystem,
		factory:   promauto.With(prometheus.DefaultRegisterer),
	}
}

// NewComponentRegistryWith creates a registry bound to a specific registerer.
// Tests use this to avoid duplicate registration panics.
func NewComponentRegistryWith(namespace, subsystem string, reg prometheus.Registerer) *ComponentRegistry {
	return &ComponentRegistry{
		namespace: namespace,
		subsystem: subsystem,
		factory:   promauto.With(reg),
	}
}

func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace = r.namespace
	opts.Subsystem = r.subsystem
	return r.factory.NewCounter(opts)
}

func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace = r.namespace
	opts.Subsystem = r.subsystem
	return r.factory.NewCounterVec(opts, labels)
}

func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace = r.namespace
	opts.Subsystem = r.subsystem
	return r.factory.NewGauge(opts)
}

func (r *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace = r.namespace
	opts.Subsystem = r.subsystem
	return r.factory.NewGaugeVec(opts, labels)
}

func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace = r.namespace
	opts.Subsystem = r.subsystem
	return r.factory.NewHistogram(opts)
}

func (r *ComponentRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	opts.Namespace = r.namespace
	opts.Subsystem = r.subsystem
	return r.factory.NewHistogramVec(opts, labels)
}
