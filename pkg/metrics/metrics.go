// Package metrics provides optional Prometheus instrumentation for the sync
// engine. Construct a Metrics with New and pass it to the engine; all
// recording methods are safe to call on a nil receiver, so instrumentation
// can be left out entirely.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for a sync engine instance.
type Metrics struct {
	savesTotal      *prometheus.CounterVec
	saveRetries     prometheus.Counter
	queueDepth      prometheus.Gauge
	queueEvictions  prometheus.Counter
	queueReplayed   prometheus.Counter
	queueDiscarded  *prometheus.CounterVec
	transitionsSent *prometheus.CounterVec
}

// New registers the syncward collectors with reg and returns a Metrics.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		savesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncward_saves_total",
				Help: "Batch and grading save attempts by final outcome",
			},
			[]string{"kind", "outcome"}, // kind: "cells", "grades"; outcome: "saved", "failed", "queued"
		),
		saveRetries: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "syncward_save_retries_total",
				Help: "Retry attempts made for transient save failures",
			},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "syncward_queue_depth",
				Help: "Current number of operations in the durable write queue",
			},
		),
		queueEvictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "syncward_queue_evictions_total",
				Help: "Oldest-first evictions caused by queue capacity",
			},
		),
		queueReplayed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "syncward_queue_replayed_total",
				Help: "Queued operations successfully replayed",
			},
		),
		queueDiscarded: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncward_queue_discarded_total",
				Help: "Queued operations discarded without replay, by reason",
			},
			[]string{"reason"}, // "precondition", "stale", "client_error"
		),
		transitionsSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncward_transitions_requested_total",
				Help: "Workflow transitions requested from the review service",
			},
			[]string{"transition"}, // "submit-for-review", "resubmit"
		),
	}
}

// RecordSave records the final outcome of a save attempt.
func (m *Metrics) RecordSave(kind, outcome string) {
	if m == nil {
		return
	}
	m.savesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordRetry records one retry of a transient failure.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.saveRetries.Inc()
}

// SetQueueDepth records the current queue depth.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// RecordEviction records a capacity eviction.
func (m *Metrics) RecordEviction() {
	if m == nil {
		return
	}
	m.queueEvictions.Inc()
}

// RecordReplay records a successfully replayed queued operation.
func (m *Metrics) RecordReplay() {
	if m == nil {
		return
	}
	m.queueReplayed.Inc()
}

// RecordDiscard records a queued operation dropped without replay.
func (m *Metrics) RecordDiscard(reason string) {
	if m == nil {
		return
	}
	m.queueDiscarded.WithLabelValues(reason).Inc()
}

// RecordTransition records a workflow transition request.
func (m *Metrics) RecordTransition(transition string) {
	if m == nil {
		return
	}
	m.transitionsSent.WithLabelValues(transition).Inc()
}
