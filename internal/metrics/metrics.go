// Package metrics exposes Prometheus counters for mutations, published
// projections and remote subscription activity.
//
// A nil *Recorder is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/cleanbook/internal/ir"
)

// Mutation results.
const (
	ResultOK         = "ok"
	ResultValidation = "validation"
	ResultNotFound   = "not_found"
	ResultPersist    = "persist"
	ResultError      = "error"
)

// Recorder holds the cleanbook collectors registered on one registry.
type Recorder struct {
	mutations    *prometheus.CounterVec
	projections  *prometheus.CounterVec
	snapshots    *prometheus.CounterVec
	resubscribes *prometheus.CounterVec
	recompute    prometheus.Histogram
}

// New registers the collectors on reg. Registering twice on the same
// registry panics.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanbook_mutations_total",
			Help: "Mutations handled by the pipeline, by kind, operation and result",
		}, []string{"kind", "op", "result"}),
		projections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanbook_projections_total",
			Help: "Projections published to listeners, by state",
		}, []string{"state"}),
		snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanbook_snapshots_total",
			Help: "Remote snapshots applied, by collection",
		}, []string{"collection"}),
		resubscribes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanbook_resubscribes_total",
			Help: "Remote subscription retries after a lost connection, by collection",
		}, []string{"collection"}),
		recompute: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cleanbook_projection_recompute_seconds",
			Help:    "Time spent joining and sorting one projection",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
	}
}

// Mutation counts one pipeline call.
func (r *Recorder) Mutation(kind ir.Kind, op string, err error) {
	if r == nil {
		return
	}
	r.mutations.WithLabelValues(string(kind), op, ResultOf(err)).Inc()
}

// Projection counts one published projection.
func (r *Recorder) Projection(state string) {
	if r == nil {
		return
	}
	r.projections.WithLabelValues(state).Inc()
}

// Snapshot counts one applied remote snapshot.
func (r *Recorder) Snapshot(kind ir.Kind) {
	if r == nil {
		return
	}
	r.snapshots.WithLabelValues(kind.Collection()).Inc()
}

// Resubscribe counts one subscription retry.
func (r *Recorder) Resubscribe(kind ir.Kind) {
	if r == nil {
		return
	}
	r.resubscribes.WithLabelValues(kind.Collection()).Inc()
}

// RecomputeTimer starts timing a projection recompute. Call ObserveDuration
// on the result when done.
func (r *Recorder) RecomputeTimer() interface{ ObserveDuration() } {
	if r == nil {
		return noopTimer{}
	}
	return promTimer{prometheus.NewTimer(r.recompute)}
}

// promTimer adapts *prometheus.Timer, whose ObserveDuration returns the
// observed duration, to the interface returned by RecomputeTimer.
type promTimer struct{ t *prometheus.Timer }

func (p promTimer) ObserveDuration() { p.t.ObserveDuration() }

type noopTimer struct{}

func (noopTimer) ObserveDuration() {}

// ResultOf maps a mutation error to its result label.
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case ir.IsValidation(err):
		return ResultValidation
	case ir.IsNotFound(err):
		return ResultNotFound
	case ir.IsPersist(err):
		return ResultPersist
	default:
		return ResultError
	}
}
