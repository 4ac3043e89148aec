// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sweep runs the service's two background cycles: the
// minute-level idle-session sweep and the periodic pattern scan.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianHabit/services/accountability/patterns"
)

// =============================================================================
// Background Scheduler
// =============================================================================

// SessionSweeper nudges and abandons idle check-in sessions.
type SessionSweeper interface {
	SweepIdle(ctx context.Context) (reminded, cancelled int)
}

// PatternScanner runs one full pattern scan across all users.
type PatternScanner interface {
	Run(ctx context.Context) (patterns.ScanResult, error)
}

// Config holds the scheduler intervals.
//
// # Fields
//
//   - SweepInterval: how often idle sessions are swept. Default: 1 minute.
//   - ScanInterval: how often the pattern scan runs. Default: 6 hours.
type Config struct {
	SweepInterval time.Duration
	ScanInterval  time.Duration
}

// DefaultConfig returns production scheduler intervals.
func DefaultConfig() Config {
	return Config{
		SweepInterval: 1 * time.Minute,
		ScanInterval:  6 * time.Hour,
	}
}

// Scheduler owns the background goroutine running both cycles.
//
// # Thread Safety
//
// All public methods are thread-safe. The scheduler uses the
// ticker + done channel pattern for graceful shutdown.
type Scheduler struct {
	sweeper SessionSweeper
	scanner PatternScanner
	config  Config
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler ready to Start().
func NewScheduler(sweeper SessionSweeper, scanner PatternScanner, config Config) *Scheduler {
	return &Scheduler{
		sweeper: sweeper,
		scanner: scanner,
		config:  config,
		done:    make(chan struct{}),
	}
}

// Start begins the background loop. Returns an error if the scheduler
// is already running. The loop stops when Stop() is called or the
// context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{}) // reset for restart
	s.mu.Unlock()

	slog.Info("sweep.scheduler: starting",
		"sweep_interval", s.config.SweepInterval.String(),
		"scan_interval", s.config.ScanInterval.String(),
	)

	go s.runLoop(ctx)
	return nil
}

// Stop signals the loop to exit. Safe to call multiple times. Does not
// interrupt a scan already in progress.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	slog.Info("sweep.scheduler: stopping")
	close(s.done)
	s.running = false
	return nil
}

// ScanNow triggers an immediate pattern scan, outside the schedule.
// Used by the admin endpoint and the CLI.
func (s *Scheduler) ScanNow(ctx context.Context) (patterns.ScanResult, error) {
	return s.scanner.Run(ctx)
}

func (s *Scheduler) runLoop(ctx context.Context) {
	sweepTicker := time.NewTicker(s.config.SweepInterval)
	defer sweepTicker.Stop()
	scanTicker := time.NewTicker(s.config.ScanInterval)
	defer scanTicker.Stop()

	// One scan on startup so a restarted service does not wait a full
	// interval to notice day-old patterns.
	s.executeScan(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweep.scheduler: stopped (context cancelled)")
			return
		case <-s.done:
			slog.Info("sweep.scheduler: stopped (stop requested)")
			return
		case <-sweepTicker.C:
			reminded, cancelled := s.sweeper.SweepIdle(ctx)
			if reminded > 0 || cancelled > 0 {
				slog.Info("sweep.scheduler: idle sweep acted",
					"reminded", reminded, "cancelled", cancelled)
			}
		case <-scanTicker.C:
			s.executeScan(ctx)
		}
	}
}

// executeScan runs one pattern scan; failures are logged, never fatal
// to the loop.
func (s *Scheduler) executeScan(ctx context.Context) {
	start := time.Now()
	result, err := s.scanner.Run(ctx)
	if err != nil {
		slog.Error("sweep.scheduler: pattern scan failed", "error", err)
		return
	}
	if result.PatternsFound > 0 {
		slog.Info("sweep.scheduler: pattern scan completed",
			"users_scanned", result.UsersScanned,
			"patterns_found", result.PatternsFound,
			"interventions_sent", result.InterventionsSent,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	} else {
		slog.Debug("sweep.scheduler: pattern scan completed (clean)",
			"users_scanned", result.UsersScanned)
	}
}
