// Package metrics holds the Prometheus instruments of the mutation
// pipeline. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Patch states for the patches counter.
const (
	PatchApplied  = "applied"
	PatchReplayed = "replayed"
)

// Metrics is a set of instruments registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	mutations        *prometheus.CounterVec
	patches          *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	gateWait         prometheus.Histogram
	ledgerPruned     prometheus.Counter
}

// New creates the instruments on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patchd_mutations_total",
			Help: "Mutation batches by table and outcome",
		}, []string{"table", "outcome"}),
		patches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patchd_patches_total",
			Help: "Patches in committed batches by table and state (applied or replayed)",
		}, []string{"table", "state"}),
		mutationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "patchd_mutation_duration_seconds",
			Help:    "Time spent inside the coordinator per batch",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"table"}),
		gateWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "patchd_gate_wait_seconds",
			Help:    "Time callers spent queued at the serialization gate",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 5},
		}),
		ledgerPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "patchd_ledger_pruned_total",
			Help: "Replay ledger entries removed by pruning",
		}),
	}
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveMutation records one finished batch.
func (m *Metrics) ObserveMutation(table, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(table, outcome).Inc()
	m.mutationDuration.WithLabelValues(table).Observe(d.Seconds())
}

// AddPatches counts the patches of a committed batch.
func (m *Metrics) AddPatches(table string, applied, replayed int) {
	if m == nil {
		return
	}
	if applied > 0 {
		m.patches.WithLabelValues(table, PatchApplied).Add(float64(applied))
	}
	if replayed > 0 {
		m.patches.WithLabelValues(table, PatchReplayed).Add(float64(replayed))
	}
}

// ObserveGateWait records time spent queued at the gate.
func (m *Metrics) ObserveGateWait(d time.Duration) {
	if m == nil {
		return
	}
	m.gateWait.Observe(d.Seconds())
}

// AddPruned counts pruned ledger entries.
func (m *Metrics) AddPruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ledgerPruned.Add(float64(n))
}
