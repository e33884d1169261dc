// Package metrics exposes Prometheus collectors for the resource services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"

	DispatchSuccess = "success"
	DispatchFailure = "failure"
)

// Metrics is safe to use as a nil pointer, in which case nothing is recorded.
type Metrics struct {
	cacheLookups *prometheus.CounterVec
	cacheErrors  *prometheus.CounterVec
	dispatches   *prometheus.CounterVec
	resourceOps  *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemion_cache_lookups_total",
				Help: "Cache lookups by resource kind and result",
			},
			[]string{"kind", "result"}, // result: hit, miss, error
		),
		cacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemion_cache_errors_total",
				Help: "Cache store failures by resource kind and operation",
			},
			[]string{"kind", "operation"},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemion_task_dispatches_total",
				Help: "Task messages published by queue and outcome",
			},
			[]string{"queue", "result"},
		),
		resourceOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemion_resource_operations_total",
				Help: "Completed resource mutations by kind and operation",
			},
			[]string{"kind", "operation"},
		),
	}

	for _, c := range []prometheus.Collector{m.cacheLookups, m.cacheErrors, m.dispatches, m.resourceOps} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) CacheLookup(kind, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) CacheError(kind, operation string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(kind, operation).Inc()
}

func (m *Metrics) Dispatch(queue, result string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(queue, result).Inc()
}

func (m *Metrics) ResourceOp(kind, operation string) {
	if m == nil {
		return
	}
	m.resourceOps.WithLabelValues(kind, operation).Inc()
}
