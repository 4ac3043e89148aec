// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianHabit/services/accountability/channel"
	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
	"github.com/AleutianAI/AleutianHabit/services/accountability/observability"
	"github.com/AleutianAI/AleutianHabit/services/accountability/scoring"
	"github.com/AleutianAI/AleutianHabit/services/accountability/storage"
	"github.com/AleutianAI/AleutianHabit/services/llm"
)

// Config holds the manager's tunables.
type Config struct {
	// IdleReminder is the inactivity span after which an open session
	// gets one nudge.
	IdleReminder time.Duration

	// IdleCancel is the inactivity span after which an open session is
	// abandoned.
	IdleCancel time.Duration

	// StoreRetries is how many times the completion write is attempted
	// before giving up with ErrStoreUnavailable.
	StoreRetries int

	// StoreRetryDelay is the pause between completion write attempts.
	StoreRetryDelay time.Duration

	// GenTimeout bounds the AI elaboration call at completion.
	GenTimeout time.Duration

	// QuickPerWeek is the weekly quick-variant allowance.
	QuickPerWeek int

	// ShieldsPerMonth is the shield count restored on monthly renewal.
	ShieldsPerMonth int

	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns production check-in settings.
func DefaultConfig() Config {
	return Config{
		IdleReminder:    10 * time.Minute,
		IdleCancel:      15 * time.Minute,
		StoreRetries:    3,
		StoreRetryDelay: 200 * time.Millisecond,
		GenTimeout:      5 * time.Second,
		QuickPerWeek:    2,
		ShieldsPerMonth: 1,
	}
}

// Manager owns the in-memory session table and the completion
// procedure.
//
// # Thread Safety
//
// The session table is guarded by mu; each session carries its own
// lock. Lock order is session-then-table, never the reverse while
// blocking, so a slow completion (store retries, AI elaboration) only
// stalls its own user.
type Manager struct {
	store    storage.Store
	manifest *datatypes.Manifest
	gen      llm.TextGenerator
	channel  channel.MessageChannel
	config   Config
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(store storage.Store, manifest *datatypes.Manifest, gen llm.TextGenerator, ch channel.MessageChannel, cfg Config) *Manager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:    store,
		manifest: manifest,
		gen:      gen,
		channel:  ch,
		config:   cfg,
		now:      now,
		sessions: make(map[string]*Session),
	}
}

// StartResult is the first question of a new session.
type StartResult struct {
	Prompt string `json:"prompt"`
	Step   int    `json:"step"`
	Total  int    `json:"total"`
}

// Summary reports a completed check-in.
type Summary struct {
	Score         float64                   `json:"score"`
	Level         datatypes.ComplianceLevel `json:"level"`
	CurrentStreak int                       `json:"current_streak"`
	LongestStreak int                       `json:"longest_streak"`
	ShieldSpent   bool                      `json:"shield_spent,omitempty"`
	Milestone     int                       `json:"milestone,omitempty"`
	Text          string                    `json:"text"`
}

// AnswerResult is the outcome of one Answer call: either the next
// prompt or, on the final step, the completion summary.
type AnswerResult struct {
	Done    bool     `json:"done"`
	Prompt  string   `json:"prompt,omitempty"`
	Step    int      `json:"step,omitempty"`
	Total   int      `json:"total,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
}

// Start opens a check-in session for the user.
//
// # Description
//
// Rejects a second concurrent session, a second check-in on a day that
// already has a record, and a quick session past the weekly quota. The
// quota week and the monthly shield allowance are both renewed lazily
// here; no background job touches the user object.
func (m *Manager) Start(ctx context.Context, userID string, variant SessionVariant) (*StartResult, error) {
	if variant != VariantFull && variant != VariantQuick {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown variant %q", variant)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, open := m.sessions[userID]; open {
		return nil, ErrSessionInProgress
	}

	now := m.now()
	user, err := m.store.GetUser(ctx, userID)
	dirty := false
	if errors.Is(err, storage.ErrNotFound) {
		user = datatypes.NewUser(userID)
		dirty = true
	} else if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	if renewShields(user, now, m.config.ShieldsPerMonth) {
		dirty = true
	}

	today := datatypes.DateOf(now)
	if _, err := m.store.GetRecord(ctx, userID, today); err == nil {
		return nil, ErrAlreadyCompletedToday
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("check record for %s on %s: %w", userID, today, err)
	}

	if variant == VariantQuick {
		weekStart := weekStartOf(now)
		if user.WeekStart != weekStart {
			user.WeekStart = weekStart
			user.QuickCheckInsThisWeek = 0
			dirty = true
		}
		if user.QuickCheckInsThisWeek >= m.config.QuickPerWeek {
			return nil, ErrQuickQuotaExceeded
		}
		user.QuickCheckInsThisWeek++
		dirty = true
	}

	if dirty {
		if err := m.store.PutUser(ctx, user); err != nil {
			return nil, fmt.Errorf("save user %s: %w", userID, err)
		}
	}

	session := newSession(userID, variant, today, m.manifest, now)
	m.sessions[userID] = session
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.OpenSessions.Set(float64(len(m.sessions)))
	}

	slog.Info("checkin.manager: session started",
		"user_id", userID, "variant", variant, "steps", len(session.steps))
	return &StartResult{
		Prompt: session.steps[0].prompt,
		Step:   1,
		Total:  len(session.steps),
	}, nil
}

// Answer records one answer in the user's open session.
//
// A *ValidationError means the answer was rejected and the session did
// not move; ask the same question again. When the final step is
// answered the completion procedure runs and the summary is returned.
// If the completion write fails the session is retained at its final
// step and any subsequent Answer call retries the completion.
func (m *Manager) Answer(ctx context.Context, userID, text string) (*AnswerResult, error) {
	session, err := m.session(userID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.completed {
		return nil, ErrNoSession
	}

	if !session.done() {
		if err := session.answer(text, m.now()); err != nil {
			return nil, err
		}
	}
	if !session.done() {
		return &AnswerResult{
			Prompt: session.current().prompt,
			Step:   session.cursor + 1,
			Total:  len(session.steps),
		}, nil
	}

	summary, err := m.complete(ctx, session)
	if err != nil {
		return nil, err
	}
	session.completed = true
	m.remove(userID, session)
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.CheckInsTotal.
			WithLabelValues(string(session.Variant), "completed").Inc()
		observability.DefaultMetrics.ComplianceScore.
			WithLabelValues(string(session.Variant)).Observe(summary.Score)
	}
	return &AnswerResult{Done: true, Summary: summary}, nil
}

// Undo steps the user's open session back one item question.
func (m *Manager) Undo(userID string) (*StartResult, error) {
	session, err := m.session(userID)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.completed {
		return nil, ErrNoSession
	}
	if err := session.undo(m.now()); err != nil {
		return nil, err
	}
	return &StartResult{
		Prompt: session.current().prompt,
		Step:   session.cursor + 1,
		Total:  len(session.steps),
	}, nil
}

// Cancel abandons the user's open session. Nothing is persisted.
func (m *Manager) Cancel(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, open := m.sessions[userID]
	if !open {
		return ErrNoSession
	}
	delete(m.sessions, userID)
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.OpenSessions.Set(float64(len(m.sessions)))
		observability.DefaultMetrics.CheckInsTotal.
			WithLabelValues(string(session.Variant), "cancelled").Inc()
	}
	slog.Info("checkin.manager: session cancelled", "user_id", userID)
	return nil
}

// Correct rewrites one item of an already-completed record.
//
// The answer goes through the same parser as a live session, the score
// and level are recomputed from the record's own items, and CorrectedAt
// is stamped. Streak state is never touched: the day already counted.
func (m *Manager) Correct(ctx context.Context, userID string, date datatypes.Date, key datatypes.HabitKey, answerText string) (*datatypes.HabitRecord, error) {
	def, ok := m.manifest.Habit(key)
	if !ok {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown habit %q", key)}
	}

	record, err := m.store.GetRecord(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if _, present := record.Items[key]; !present {
		return nil, &ValidationError{Reason: fmt.Sprintf("record for %s has no %q item", date, key)}
	}

	result, err := parseItemAnswer(def, answerText)
	if err != nil {
		return nil, err
	}

	record.Items[key] = result
	record.ComplianceScore = scoring.Score(record.Items)
	record.ComplianceLevel = scoring.Level(record.ComplianceScore)
	correctedAt := m.now()
	record.CorrectedAt = &correctedAt

	if err := m.store.PutRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("save corrected record for %s on %s: %w", userID, date, err)
	}
	slog.Info("checkin.manager: record corrected",
		"user_id", userID, "date", date, "habit", key, "score", record.ComplianceScore)
	return record, nil
}

// SweepIdle nudges sessions idle past the reminder threshold and
// abandons those past the cancel threshold. Returns the counts.
//
// The reminder send happens outside the session lock; the session
// version is re-checked afterwards so an answer that raced the sweep
// wins and the reminder flag stays unset.
func (m *Manager) SweepIdle(ctx context.Context) (reminded, cancelled int) {
	m.mu.Lock()
	snapshot := make(map[string]*Session, len(m.sessions))
	for id, s := range m.sessions {
		snapshot[id] = s
	}
	m.mu.Unlock()

	now := m.now()
	for userID, session := range snapshot {
		session.mu.Lock()
		if session.completed {
			session.mu.Unlock()
			continue
		}
		idle := now.Sub(session.lastActivityAt)

		if idle >= m.config.IdleCancel {
			session.completed = true
			session.mu.Unlock()
			m.remove(userID, session)
			cancelled++
			if observability.DefaultMetrics != nil {
				observability.DefaultMetrics.CheckInsTotal.
					WithLabelValues(string(session.Variant), "expired").Inc()
			}
			slog.Info("checkin.manager: idle session abandoned",
				"user_id", userID, "idle", idle.Round(time.Second))
			if err := m.channel.Send(ctx, userID, "Your check-in expired. Start a fresh one when you're ready."); err != nil {
				slog.Warn("checkin.manager: expiry notice failed", "user_id", userID, "error", err)
			}
			continue
		}

		if idle >= m.config.IdleReminder && !session.reminderSent {
			version := session.version
			answered, total := session.cursor, len(session.steps)
			session.mu.Unlock()

			text := fmt.Sprintf("Your check-in is still open: %d of %d questions answered. Finish it?", answered, total)
			if err := m.channel.Send(ctx, userID, text); err != nil {
				slog.Warn("checkin.manager: reminder failed", "user_id", userID, "error", err)
				continue
			}

			session.mu.Lock()
			if session.version == version {
				session.reminderSent = true
				reminded++
			}
			session.mu.Unlock()
			continue
		}
		session.mu.Unlock()
	}
	return reminded, cancelled
}

// OpenSessions returns the number of in-flight sessions.
func (m *Manager) OpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) session(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, open := m.sessions[userID]
	if !open {
		return nil, ErrNoSession
	}
	return session, nil
}

// remove deletes the session from the table if it is still the one we
// acted on.
func (m *Manager) remove(userID string, session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[userID] == session {
		delete(m.sessions, userID)
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.OpenSessions.Set(float64(len(m.sessions)))
		}
	}
}

// complete scores the finished session, advances the streak, persists
// everything atomically, and builds the summary. Caller holds the
// session lock.
func (m *Manager) complete(ctx context.Context, session *Session) (*Summary, error) {
	now := m.now()
	user, err := m.store.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user %s at completion: %w", session.UserID, err)
	}

	items := make(map[datatypes.HabitKey]datatypes.ItemResult, len(session.items))
	for k, v := range session.items {
		items[k] = v
	}
	record := &datatypes.HabitRecord{
		UserID:            session.UserID,
		Date:              session.Date,
		Items:             items,
		FreeTextResponses: session.reflections,
		CompletedAt:       now,
	}
	record.ComplianceScore = scoring.Score(record.Items)
	record.ComplianceLevel = scoring.Level(record.ComplianceScore)

	prev, err := m.store.GetStreak(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("load streak for %s: %w", session.UserID, err)
	}
	next, outcome, err := scoring.Apply(prev, session.Date, user.Shields)
	if err != nil {
		slog.Error("checkin.manager: streak apply rejected",
			"user_id", session.UserID, "date", session.Date, "error", err)
		return nil, fmt.Errorf("advance streak for %s: %w", session.UserID, err)
	}
	if outcome.ShieldSpent {
		user.Shields--
	}

	if err := m.persistCompletion(ctx, record, next, user); err != nil {
		return nil, err
	}

	summary := &Summary{
		Score:         record.ComplianceScore,
		Level:         record.ComplianceLevel,
		CurrentStreak: next.CurrentStreak,
		LongestStreak: next.LongestStreak,
		ShieldSpent:   outcome.ShieldSpent,
		Milestone:     outcome.Milestone,
	}
	summary.Text = m.summaryText(ctx, record, next, outcome, user)

	slog.Info("checkin.manager: session completed",
		"user_id", session.UserID, "date", session.Date,
		"score", record.ComplianceScore, "streak", next.CurrentStreak,
		"shield_spent", outcome.ShieldSpent)
	return summary, nil
}

// persistCompletion writes the record, streak and user atomically,
// retrying transient failures.
func (m *Manager) persistCompletion(ctx context.Context, record *datatypes.HabitRecord, streak datatypes.StreakState, user *datatypes.User) error {
	var lastErr error
	for attempt := 1; attempt <= m.config.StoreRetries; attempt++ {
		lastErr = m.store.PutRecordAndStreak(ctx, record, streak, user)
		if lastErr == nil {
			return nil
		}
		slog.Warn("checkin.manager: completion write failed",
			"user_id", record.UserID, "attempt", attempt, "error", lastErr)
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.StoreRetriesTotal.Inc()
		}
		if attempt < m.config.StoreRetries {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
			case <-time.After(m.config.StoreRetryDelay):
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, lastErr)
}

// summaryText renders the deterministic completion lines and appends
// an AI elaboration when the generator answers in time.
func (m *Manager) summaryText(ctx context.Context, record *datatypes.HabitRecord, streak datatypes.StreakState, outcome scoring.Outcome, user *datatypes.User) string {
	lines := []string{
		fmt.Sprintf("Check-in complete. Score %.0f/100 (%s).", record.ComplianceScore, record.ComplianceLevel),
	}

	switch outcome.Kind {
	case scoring.OutcomeFirstEver:
		lines = append(lines, "Day 1. The streak starts now.")
	case scoring.OutcomeShieldSave:
		lines = append(lines, fmt.Sprintf("A shield covered yesterday's gap. Streak: %d days. Shields left: %d.",
			streak.CurrentStreak, user.Shields))
	default:
		lines = append(lines, fmt.Sprintf("Streak: %d days. Longest: %d.", streak.CurrentStreak, streak.LongestStreak))
	}

	if note := scoring.RecoveryNote(streak, outcome); note != "" {
		lines = append(lines, note)
	}
	if outcome.Milestone > 0 {
		lines = append(lines, fmt.Sprintf("Milestone: %d days.", outcome.Milestone))
	}
	text := strings.Join(lines, "\n")

	genCtx, cancel := context.WithTimeout(ctx, m.config.GenTimeout)
	defer cancel()
	elaboration, err := m.gen.Generate(genCtx, llm.GenerationRequest{
		Prompt: "Write two short sentences reacting to today's check-in. Be direct, no emoji.",
		Context: map[string]interface{}{
			"score":          record.ComplianceScore,
			"level":          record.ComplianceLevel,
			"current_streak": streak.CurrentStreak,
			"items":          record.Items,
		},
		MaxChars: 280,
		Style:    "supportive",
	})
	if err != nil {
		slog.Debug("checkin.manager: summary elaboration unavailable",
			"user_id", record.UserID, "error", err)
		return text
	}
	return text + "\n" + strings.TrimSpace(elaboration)
}

// renewShields restores the monthly shield allowance when a new
// calendar month is observed. Reports whether the user changed.
func renewShields(user *datatypes.User, now time.Time, perMonth int) bool {
	renewed := user.ShieldsRenewedAt
	if renewed.Year() == now.Year() && renewed.Month() == now.Month() {
		return false
	}
	if user.Shields >= perMonth {
		// Unspent shields carry no further accumulation.
		user.ShieldsRenewedAt = now
		return true
	}
	user.Shields = perMonth
	user.ShieldsRenewedAt = now
	return true
}

// weekStartOf returns the Monday of the week containing t.
func weekStartOf(t time.Time) datatypes.Date {
	back := (int(t.Weekday()) + 6) % 7
	return datatypes.DateOf(t.AddDate(0, 0, -back))
}
