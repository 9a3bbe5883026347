// Package metrics exposes run counters in the Prometheus text format.
//
// A nil *Metrics is valid and records nothing, so callers can pass one
// through unconditionally.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	ruleExecutions  *prometheus.CounterVec
	ruleHits        *prometheus.CounterVec
	ruleSeconds     *prometheus.CounterVec
	stageSeconds    *prometheus.HistogramVec
	constructEvents *prometheus.CounterVec
	runs            *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ruleExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subsume",
			Name:      "rule_executions_total",
			Help:      "Rule executions, by rule.",
		}, []string{"rule"}),
		ruleHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subsume",
			Name:      "rule_hits_total",
			Help:      "Facts added by each rule.",
		}, []string{"rule"}),
		ruleSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subsume",
			Name:      "rule_seconds_total",
			Help:      "Wall time spent executing each rule.",
		}, []string{"rule"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "subsume",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each stage of a run.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		constructEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subsume",
			Name:      "construct_events_total",
			Help:      "Construct normalizer simplifications, by kind.",
		}, []string{"event"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subsume",
			Name:      "runs_total",
			Help:      "Finished runs, by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.ruleExecutions, m.ruleHits, m.ruleSeconds,
		m.stageSeconds, m.constructEvents, m.runs,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRule records one execution of a rule.
func (m *Metrics) ObserveRule(rule string, hits int64, d time.Duration) {
	if m == nil {
		return
	}
	m.ruleExecutions.WithLabelValues(rule).Inc()
	m.ruleHits.WithLabelValues(rule).Add(float64(hits))
	m.ruleSeconds.WithLabelValues(rule).Add(d.Seconds())
}

// ObserveStage records the duration of a stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveConstructs adds the normalizer's event counts of one run.
func (m *Metrics) ObserveConstructs(events map[string]int) {
	if m == nil {
		return
	}
	for event, n := range events {
		m.constructEvents.WithLabelValues(event).Add(float64(n))
	}
}

// ObserveRun counts a finished run.
func (m *Metrics) ObserveRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// WriteFile writes every metric to path in the text exposition format,
// the way node_exporter's textfile collector reads them.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
