// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit gates expensive handlers with a per-user, per-tier
// sliding-window limiter.
//
// The limiter is an explicit instance injected into request handlers,
// never a module-level singleton. Its state is process-local and
// in-memory: a restart resets all windows. That lifecycle is an
// accepted trade-off (the limiter exists for abuse mitigation, not
// precise accounting) and is surfaced as the Persistent config option
// rather than hidden behavior.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
)

// windowHorizon is the rolling-window lookback for hourly caps.
const windowHorizon = time.Hour

// TierPolicy is one tier's limits. A zero MaxPerHour means unlimited.
type TierPolicy struct {
	Cooldown   time.Duration
	MaxPerHour int
}

// policies maps each tier to its limits. TierFree requires no check at
// all and never reaches the window bookkeeping.
var policies = map[datatypes.Tier]TierPolicy{
	datatypes.TierFree:      {},
	datatypes.TierStandard:  {Cooldown: 30 * time.Second, MaxPerHour: 20},
	datatypes.TierExpensive: {Cooldown: 60 * time.Second, MaxPerHour: 10},
	datatypes.TierAIPowered: {Cooldown: 120 * time.Second, MaxPerHour: 5},
}

// Policy returns the limits for a tier. Unknown tiers are treated as
// TierStandard.
func Policy(tier datatypes.Tier) TierPolicy {
	if p, ok := policies[tier]; ok {
		return p
	}
	return policies[datatypes.TierStandard]
}

// CooldownActiveError is returned while a user's per-request cooldown
// has not elapsed.
type CooldownActiveError struct {
	RetryAfter time.Duration
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("cooldown active, retry in %s", e.RetryAfter.Round(time.Second))
}

// HourlyLimitError is returned when the rolling-hour cap is reached.
type HourlyLimitError struct {
	RetryAfter time.Duration
}

func (e *HourlyLimitError) Error() string {
	return fmt.Sprintf("hourly limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}

// rateWindow is one user's request history within a tier.
type rateWindow struct {
	timestamps    []time.Time
	lastRequestAt time.Time
}

// prune drops timestamps older than the horizon.
func (w *rateWindow) prune(now time.Time) {
	cutoff := now.Add(-windowHorizon)
	keep := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	w.timestamps = keep
}

// Config holds limiter settings.
type Config struct {
	// Persistent would persist windows across restarts. Only false is
	// implemented; NewLimiter rejects true so the non-durable lifecycle
	// stays an explicit, documented decision.
	Persistent bool

	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// Limiter is the per-user sliding-window request gate.
//
// # Thread Safety
//
// Safe for concurrent use; all window state is guarded by one mutex.
// Windows are small (bounded by the largest hourly cap) so the lock is
// held only for cheap slice work.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

// NewLimiter creates a limiter.
func NewLimiter(cfg Config) (*Limiter, error) {
	if cfg.Persistent {
		return nil, fmt.Errorf("persistent rate windows are not implemented; restarts intentionally reset limits")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		windows: make(map[string]*rateWindow),
		now:     now,
	}, nil
}

// Allow records a request attempt for the user under the tier's
// policy.
//
// # Description
//
// Prunes the user's window to the last hour, then checks the cooldown
// and the hourly cap in that order. On success the request is recorded
// and nil is returned; on failure nothing is recorded and a typed
// error carries the retry-after hint.
//
// TierFree always passes without touching any state. Administrative
// bypass is handled by the caller (middleware), not here.
func (l *Limiter) Allow(userID string, tier datatypes.Tier) error {
	policy := Policy(tier)
	if policy.MaxPerHour == 0 && policy.Cooldown == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := userID + "/" + string(tier)
	w, ok := l.windows[key]
	if !ok {
		w = &rateWindow{}
		l.windows[key] = w
	}

	now := l.now()
	w.prune(now)

	if !w.lastRequestAt.IsZero() {
		if elapsed := now.Sub(w.lastRequestAt); elapsed < policy.Cooldown {
			return &CooldownActiveError{RetryAfter: policy.Cooldown - elapsed}
		}
	}

	if len(w.timestamps) >= policy.MaxPerHour {
		// The window reopens when its oldest entry ages out.
		retryAfter := w.timestamps[0].Add(windowHorizon).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &HourlyLimitError{RetryAfter: retryAfter}
	}

	w.timestamps = append(w.timestamps, now)
	w.lastRequestAt = now
	return nil
}

// WindowLen reports the current pruned window size for a user/tier.
// Intended for tests and diagnostics.
func (l *Limiter) WindowLen(userID string, tier datatypes.Tier) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[userID+"/"+string(tier)]
	if !ok {
		return 0
	}
	w.prune(l.now())
	return len(w.timestamps)
}
