// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the supplement
// pipeline. Metrics are registered once via InitMetrics and recorded
// through the package-level Default instance; every recording method is
// nil-safe so library code can record unconditionally.
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "ridgeline"

// =============================================================================
// Metrics Registry
// =============================================================================

// Metrics holds all pipeline metric vectors.
type Metrics struct {
	JobsTotal          *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	LLMCallsTotal      *prometheus.CounterVec
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	RepairRetriesTotal *prometheus.CounterVec
	ReviewCycles       prometheus.Histogram
	ActiveJobs         prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// InitMetrics registers the pipeline metrics with the default
// Prometheus registry. Safe to call more than once.
func InitMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = newMetrics()
	})
	return defaultMetrics
}

// Default returns the initialized metrics instance, or nil when
// InitMetrics has not been called. All recording methods tolerate a
// nil receiver.
func Default() *Metrics {
	return defaultMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		JobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_total",
			Help:      "Jobs by terminal status.",
		}, []string{"status"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage", "status"}),
		LLMCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "llm_calls_total",
			Help:      "Model invocations by agent.",
		}, []string{"agent"}),
		CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "vision_cache_hits_total",
			Help:      "Vision cache lookups served without a model call.",
		}),
		CacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "vision_cache_misses_total",
			Help:      "Vision cache lookups that required a model call.",
		}),
		RepairRetriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "repair_retries_total",
			Help:      "Validation-repair retries by stage.",
		}, []string{"stage"}),
		ReviewCycles: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "review_cycles",
			Help:      "Review cycles consumed per job.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		ActiveJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_jobs",
			Help:      "Jobs currently being processed.",
		}),
	}
}

// =============================================================================
// Recording Helpers
// =============================================================================

// RecordJob counts a job reaching a terminal status.
func (m *Metrics) RecordJob(status string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(status).Inc()
}

// RecordStage observes one stage execution.
func (m *Metrics) RecordStage(stage, status string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage, status).Observe(seconds)
}

// RecordLLMCall counts one model invocation for an agent.
func (m *Metrics) RecordLLMCall(agent string) {
	if m == nil {
		return
	}
	m.LLMCallsTotal.WithLabelValues(agent).Inc()
}

// RecordCacheHit counts a vision cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss counts a vision cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// RecordRepair counts a validation-repair retry for a stage.
func (m *Metrics) RecordRepair(stage string) {
	if m == nil {
		return
	}
	m.RepairRetriesTotal.WithLabelValues(stage).Inc()
}

// RecordReviewCycles observes how many review cycles a job consumed.
func (m *Metrics) RecordReviewCycles(n int) {
	if m == nil {
		return
	}
	m.ReviewCycles.Observe(float64(n))
}

// JobStarted increments the active job gauge.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.ActiveJobs.Inc()
}

// JobFinished decrements the active job gauge.
func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.ActiveJobs.Dec()
}
