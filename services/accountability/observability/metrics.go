// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and instrumentation for the
// accountability service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring the
// check-in engine. Metrics include:
//   - Check-in counters (by variant and outcome)
//   - Compliance score distribution
//   - Pattern scan counters (by pattern type and severity)
//   - Intervention counters (sent vs suppressed)
//   - Rate-limit rejections (by tier and reason)
//   - Open-session gauge
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with
// Prometheus + Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for accountability metrics
const habitSubsystem = "habit"

// HabitMetrics holds all Prometheus metrics for the accountability
// engine. Initialize once at startup via InitMetrics().
type HabitMetrics struct {
	// CheckInsTotal counts check-in sessions by variant and outcome.
	// Labels: variant (full, quick), outcome (completed, cancelled, expired)
	CheckInsTotal *prometheus.CounterVec

	// ComplianceScore observes the score of each completed check-in.
	// Labels: variant
	ComplianceScore *prometheus.HistogramVec

	// OpenSessions tracks in-flight check-in conversations.
	OpenSessions prometheus.Gauge

	// PatternsDetectedTotal counts detected patterns.
	// Labels: pattern_type, severity
	PatternsDetectedTotal *prometheus.CounterVec

	// InterventionsTotal counts intervention decisions.
	// Labels: pattern_type, result (sent, suppressed)
	InterventionsTotal *prometheus.CounterVec

	// ScanDurationSeconds measures full pattern-scan duration.
	ScanDurationSeconds prometheus.Histogram

	// RateLimitRejectionsTotal counts rejected requests.
	// Labels: tier, reason (cooldown, hourly_cap)
	RateLimitRejectionsTotal *prometheus.CounterVec

	// StoreRetriesTotal counts completion-write retry attempts.
	StoreRetriesTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of HabitMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *HabitMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once
// at application startup; a second call panics on duplicate
// registration.
func InitMetrics() *HabitMetrics {
	DefaultMetrics = &HabitMetrics{
		CheckInsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: habitSubsystem,
				Name:      "checkins_total",
				Help:      "Total check-in sessions by variant and outcome",
			},
			[]string{"variant", "outcome"},
		),

		ComplianceScore: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: habitSubsystem,
				Name:      "compliance_score",
				Help:      "Compliance score of completed check-ins",
				Buckets:   []float64{0, 20, 40, 50, 60, 70, 80, 90, 100},
			},
			[]string{"variant"},
		),

		OpenSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: habitSubsystem,
				Name:      "open_sessions",
				Help:      "Number of in-flight check-in conversations",
			},
		),

		PatternsDetectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: habitSubsystem,
				Name:      "patterns_detected_total",
				Help:      "Total detected behavioral patterns by type and severity",
			},
			[]string{"pattern_type", "severity"},
		),

		InterventionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: habitSubsystem,
				Name:      "interventions_total",
				Help:      "Intervention decisions by pattern type and result",
			},
			[]string{"pattern_type", "result"},
		),

		ScanDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: habitSubsystem,
				Name:      "scan_duration_seconds",
				Help:      "Duration of full pattern scans in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
		),

		RateLimitRejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: habitSubsystem,
				Name:      "ratelimit_rejections_total",
				Help:      "Requests rejected by the rate limiter, by tier and reason",
			},
			[]string{"tier", "reason"},
		),

		StoreRetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: habitSubsystem,
				Name:      "store_retries_total",
				Help:      "Completion-write retry attempts against the store",
			},
		),
	}

	return DefaultMetrics
}
