// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package patterns

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
	"github.com/AleutianAI/AleutianHabit/services/accountability/observability"
)

// RecordSource is the read side of the store the detector needs.
//
// Decoupled from the concrete storage implementation so unit tests can
// inject fixtures, following the injectable-dependency convention used
// across Aleutian services.
type RecordSource interface {
	// ListUserIDs returns every known user ID.
	ListUserIDs(ctx context.Context) ([]string, error)

	// GetUser loads a user's settings.
	GetUser(ctx context.Context, id string) (*datatypes.User, error)

	// ListRecentRecords returns up to limit records, newest first.
	ListRecentRecords(ctx context.Context, userID string, limit int) ([]datatypes.HabitRecord, error)
}

// InterventionSink converts detected patterns into delivered
// interventions. Implemented by the intervention dispatcher; the
// dispatcher's own cool-down suppression is what makes a scan safely
// re-runnable.
type InterventionSink interface {
	// Dispatch sends one pattern's intervention. Returns false when the
	// alert was suppressed by the cool-down check.
	Dispatch(ctx context.Context, user *datatypes.User, pattern datatypes.Pattern) (bool, error)

	// CheckGhosting evaluates the no-check-in-at-all rule for one user.
	// Returns true when a ghosting alert was sent.
	CheckGhosting(ctx context.Context, user *datatypes.User) (bool, error)
}

// ScanResult summarizes one detector run.
type ScanResult struct {
	UsersScanned      int `json:"users_scanned"`
	PatternsFound     int `json:"patterns_found"`
	InterventionsSent int `json:"interventions_sent"`
}

// Config holds detector settings.
type Config struct {
	// WindowLimit is how many recent records each scan examines per
	// user. Must cover the widest rule window.
	WindowLimit int

	// Concurrency bounds the per-user fan-out during a full scan.
	Concurrency int
}

// DefaultConfig returns production detector settings.
func DefaultConfig() Config {
	return Config{
		WindowLimit: 14,
		Concurrency: 8,
	}
}

// Detector runs the rule registry over each active user's recent
// records. It runs as a periodic batch job, independent of any single
// check-in conversation.
type Detector struct {
	source RecordSource
	sink   InterventionSink
	rules  []Rule
	config Config
}

// NewDetector creates a detector over the given rule registry.
func NewDetector(source RecordSource, sink InterventionSink, rules []Rule, config Config) *Detector {
	if config.WindowLimit <= 0 {
		config.WindowLimit = DefaultConfig().WindowLimit
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}
	return &Detector{
		source: source,
		sink:   sink,
		rules:  rules,
		config: config,
	}
}

// ScanUser evaluates every rule against one user's recent records.
//
// Multiple rules may fire in the same scan; the full list is returned
// and is not deduplicated here; recency suppression is the
// dispatcher's job.
func (d *Detector) ScanUser(ctx context.Context, userID string) ([]datatypes.Pattern, error) {
	records, err := d.source.ListRecentRecords(ctx, userID, d.config.WindowLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent records for %s: %w", userID, err)
	}
	found := make([]datatypes.Pattern, 0)
	for _, rule := range d.rules {
		if p := rule.Evaluate(records); p != nil {
			found = append(found, *p)
		}
	}
	return found, nil
}

// Run performs a full scan across all users and dispatches any
// detected patterns.
//
// # Description
//
// Fans out across users with a bounded errgroup. Per-user failures are
// logged and skipped rather than aborting the whole scan; the run only
// errors when the user listing itself fails or the context is
// cancelled. Safe to double-fire: a second run over unchanged data
// finds the same patterns but sends only what the dispatcher's
// cool-down allows.
func (d *Detector) Run(ctx context.Context) (ScanResult, error) {
	if observability.DefaultMetrics != nil {
		timer := prometheus.NewTimer(observability.DefaultMetrics.ScanDurationSeconds)
		defer timer.ObserveDuration()
	}
	userIDs, err := d.source.ListUserIDs(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("list users for scan: %w", err)
	}

	var mu sync.Mutex
	result := ScanResult{UsersScanned: len(userIDs)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.Concurrency)
	for _, userID := range userIDs {
		g.Go(func() error {
			found, sent := d.scanAndDispatch(gctx, userID)
			mu.Lock()
			result.PatternsFound += found
			result.InterventionsSent += sent
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("pattern scan aborted: %w", err)
	}

	slog.Info("patterns.detector: scan complete",
		"users_scanned", result.UsersScanned,
		"patterns_found", result.PatternsFound,
		"interventions_sent", result.InterventionsSent,
	)
	return result, nil
}

// scanAndDispatch handles one user within a full scan. Errors are
// logged, not propagated; one broken user must not starve the rest.
func (d *Detector) scanAndDispatch(ctx context.Context, userID string) (found, sent int) {
	user, err := d.source.GetUser(ctx, userID)
	if err != nil {
		slog.Warn("patterns.detector: skipping user, load failed",
			"user_id", userID, "error", err)
		return 0, 0
	}

	detected, err := d.ScanUser(ctx, userID)
	if err != nil {
		slog.Warn("patterns.detector: skipping user, scan failed",
			"user_id", userID, "error", err)
		return 0, 0
	}

	for _, pattern := range detected {
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.PatternsDetectedTotal.
				WithLabelValues(string(pattern.Type), string(pattern.Severity)).Inc()
		}
		delivered, err := d.sink.Dispatch(ctx, user, pattern)
		if err != nil {
			slog.Warn("patterns.detector: dispatch failed",
				"user_id", userID, "pattern", pattern.Type, "error", err)
			continue
		}
		if delivered {
			sent++
		}
	}

	// The ghosting rule is evaluated per user independently of the
	// record-window rules above.
	ghosted, err := d.sink.CheckGhosting(ctx, user)
	if err != nil {
		slog.Warn("patterns.detector: ghosting check failed",
			"user_id", userID, "error", err)
	} else if ghosted {
		sent++
	}

	return len(detected), sent
}
