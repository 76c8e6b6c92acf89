// Package metrics is the service's Prometheus bundle. All methods are safe on a nil *Metrics so
// callers and tests can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "riders"

type Metrics struct {
	scoresCreated    *prometheus.CounterVec
	scoreRecomputes  *prometheus.CounterVec
	placements       *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
	batchRunsRefused *prometheus.CounterVec
}

// New builds the bundle and registers it with reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scoresCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scores_created_total",
			Help:      "Score records created at registration, by tier label.",
		}, []string{"tier"}),
		scoreRecomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_recomputes_total",
			Help:      "Current score recomputations, by result.",
		}, []string{"result"}),
		placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placements_total",
			Help:      "Member placement outcomes (updated, failed, skipped).",
		}, []string{"outcome"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of batch runs, by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"kind"}),
		batchRunsRefused: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_runs_refused_total",
			Help:      "Batch runs refused because another run held the lock.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.scoresCreated,
			m.scoreRecomputes,
			m.placements,
			m.batchDuration,
			m.batchRunsRefused,
		)
	}
	return m
}

func (m *Metrics) ObserveScoreCreated(tier string) {
	if m == nil {
		return
	}
	if tier == "" {
		tier = "unknown"
	}
	m.scoresCreated.WithLabelValues(tier).Inc()
}

func (m *Metrics) ObserveScoreRecompute(ok bool) {
	if m == nil {
		return
	}
	result := "updated"
	if !ok {
		result = "failed"
	}
	m.scoreRecomputes.WithLabelValues(result).Inc()
}

// AddPlacements adds n to the counter for outcome ("updated", "failed" or "skipped").
func (m *Metrics) AddPlacements(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.placements.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) ObserveBatch(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) IncBatchRefused(kind string) {
	if m == nil {
		return
	}
	m.batchRunsRefused.WithLabelValues(kind).Inc()
}
