// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package intervention turns detected patterns into delivered,
// audit-logged alerts.
//
// Every intervention message has five sections: the alert headline,
// the evidence restated in plain language, the rule violated, the
// concrete next action, and a severity-appropriate ask-for-help line.
// The AI backend words them when it can; the deterministic template
// words them when it can't. Either way the evidence is always present;
// never a generic "something is wrong".
package intervention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianHabit/services/accountability/channel"
	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
	"github.com/AleutianAI/AleutianHabit/services/accountability/observability"
	"github.com/AleutianAI/AleutianHabit/services/llm"
)

// InterventionLog is the slice of the store the dispatcher needs:
// the append-only audit log it writes and the recency lookup it reads
// for cool-down suppression.
type InterventionLog interface {
	AppendIntervention(ctx context.Context, intervention *datatypes.Intervention) error
	ListRecentInterventions(ctx context.Context, userID string, since time.Time) ([]datatypes.Intervention, error)
	GetStreak(ctx context.Context, userID string) (datatypes.StreakState, error)
}

// Config holds dispatcher settings.
type Config struct {
	// SuppressWindow is the cool-down during which a repeat alert of
	// the same pattern type is not re-sent.
	SuppressWindow time.Duration

	// GenTimeout bounds each TextGenerator call.
	GenTimeout time.Duration

	// GhostingDays is the no-check-in-at-all threshold.
	GhostingDays int

	// GhostingMinStreak is the streak a user must have previously held
	// for ghosting to matter. Users who never engaged are not ghosting.
	GhostingMinStreak int

	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns production dispatcher settings.
func DefaultConfig() Config {
	return Config{
		SuppressWindow:    24 * time.Hour,
		GenTimeout:        5 * time.Second,
		GhostingDays:      5,
		GhostingMinStreak: 3,
	}
}

// Dispatcher converts patterns into interventions: builds the message,
// records the audit entry, and sends it through the channel.
type Dispatcher struct {
	log     InterventionLog
	gen     llm.TextGenerator
	channel channel.MessageChannel
	config  Config
	now     func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(log InterventionLog, gen llm.TextGenerator, ch channel.MessageChannel, cfg Config) *Dispatcher {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		log:     log,
		gen:     gen,
		channel: ch,
		config:  cfg,
		now:     now,
	}
}

// Dispatch sends one pattern's intervention to the user.
//
// # Description
//
// Consults the intervention log first: an alert of the same pattern
// type within the suppress window is skipped (returns false, nil).
// Otherwise the message is built (AI-worded when the generator
// answers in time, templated otherwise), appended to the audit log,
// and sent. The audit append happens before the send so a delivery
// failure cannot cause a repeat alert on the next scan.
//
// # Outputs
//
//   - bool: true when an intervention was actually sent.
//   - error: non-nil only when the audit append fails; generator and
//     channel failures are absorbed.
func (d *Dispatcher) Dispatch(ctx context.Context, user *datatypes.User, pattern datatypes.Pattern) (bool, error) {
	suppressed, err := d.shouldSuppress(ctx, user.ID, pattern.Type)
	if err != nil {
		return false, err
	}
	if suppressed {
		slog.Debug("intervention.dispatcher: suppressed repeat alert",
			"user_id", user.ID, "pattern", pattern.Type)
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.InterventionsTotal.
				WithLabelValues(string(pattern.Type), "suppressed").Inc()
		}
		return false, nil
	}

	message := d.buildMessage(ctx, user, pattern)

	iv := &datatypes.Intervention{
		UserID:      user.ID,
		PatternType: pattern.Type,
		Severity:    pattern.Severity,
		Message:     message,
		SentAt:      d.now(),
		Evidence:    pattern.Evidence,
	}
	if err := d.log.AppendIntervention(ctx, iv); err != nil {
		return false, fmt.Errorf("append intervention for %s: %w", user.ID, err)
	}

	if err := d.channel.Send(ctx, user.ID, message); err != nil {
		// Fire-and-forget from the core's perspective; the audit entry
		// stands either way.
		slog.Warn("intervention.dispatcher: send failed",
			"user_id", user.ID, "pattern", pattern.Type, "error", err)
	}

	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.InterventionsTotal.
			WithLabelValues(string(pattern.Type), "sent").Inc()
	}
	slog.Info("intervention.dispatcher: intervention sent",
		"user_id", user.ID,
		"pattern", pattern.Type,
		"severity", pattern.Severity,
	)
	return true, nil
}

// shouldSuppress checks the intervention log for a same-type alert
// inside the cool-down window.
func (d *Dispatcher) shouldSuppress(ctx context.Context, userID string, patternType datatypes.PatternType) (bool, error) {
	since := d.now().Add(-d.config.SuppressWindow)
	recent, err := d.log.ListRecentInterventions(ctx, userID, since)
	if err != nil {
		return false, fmt.Errorf("list recent interventions for %s: %w", userID, err)
	}
	for _, iv := range recent {
		if iv.PatternType == patternType {
			return true, nil
		}
	}
	return false, nil
}

// buildMessage words the five sections, preferring the AI backend and
// falling back to the deterministic template on any failure.
func (d *Dispatcher) buildMessage(ctx context.Context, user *datatypes.User, pattern datatypes.Pattern) string {
	sections := fallbackSections(pattern)

	genCtx, cancel := context.WithTimeout(ctx, d.config.GenTimeout)
	defer cancel()
	text, err := d.gen.Generate(genCtx, llm.GenerationRequest{
		Prompt: "Write an accountability intervention with exactly five parts: " +
			"headline, the evidence in plain language, the rule that was broken, " +
			"one concrete next action, and a closing line offering help.",
		Context: map[string]interface{}{
			"pattern_type": string(pattern.Type),
			"severity":     string(pattern.Severity),
			"evidence":     pattern.Evidence,
			"window_start": string(pattern.WindowStart),
			"window_end":   string(pattern.WindowEnd),
		},
		MaxChars: 900,
		Style:    styleFor(pattern.Severity),
	})
	if err != nil {
		slog.Warn("intervention.dispatcher: generator failed, using template",
			"user_id", user.ID, "pattern", pattern.Type, "error", err)
		return sections.render()
	}
	return text
}

// CheckGhosting evaluates the no-check-in-at-all rule for one user.
//
// # Description
//
// A user who previously held an active streak and has not checked in
// for GhostingDays or more gets a ghosting alert. When an
// accountability partner is linked, the partner is notified instead of
// the user. Subject to the same cool-down suppression as every other
// pattern type.
func (d *Dispatcher) CheckGhosting(ctx context.Context, user *datatypes.User) (bool, error) {
	streak, err := d.log.GetStreak(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("get streak for %s: %w", user.ID, err)
	}
	if streak.LastRecordDate == nil || streak.CurrentStreak < d.config.GhostingMinStreak {
		return false, nil
	}
	gap, ok := datatypes.DaysBetween(*streak.LastRecordDate, datatypes.DateOf(d.now()))
	if !ok || gap < d.config.GhostingDays {
		return false, nil
	}

	pattern := datatypes.Pattern{
		Type:     datatypes.PatternGhosting,
		Severity: datatypes.SeverityHigh,
		Evidence: map[string]interface{}{
			"last_record_date": string(*streak.LastRecordDate),
			"days_silent":      gap,
			"streak_at_stop":   streak.CurrentStreak,
		},
		WindowStart: *streak.LastRecordDate,
		WindowEnd:   datatypes.DateOf(d.now()),
	}

	suppressed, err := d.shouldSuppress(ctx, user.ID, pattern.Type)
	if err != nil || suppressed {
		return false, err
	}

	recipient := user.ID
	message := fallbackSections(pattern).render()
	if user.PartnerID != "" {
		recipient = user.PartnerID
		message = fmt.Sprintf("Your accountability partner has gone quiet.\n%s", message)
	}

	iv := &datatypes.Intervention{
		UserID:      user.ID,
		PatternType: pattern.Type,
		Severity:    pattern.Severity,
		Message:     message,
		SentAt:      d.now(),
		Evidence:    pattern.Evidence,
	}
	if err := d.log.AppendIntervention(ctx, iv); err != nil {
		return false, fmt.Errorf("append ghosting intervention for %s: %w", user.ID, err)
	}
	if err := d.channel.Send(ctx, recipient, message); err != nil {
		slog.Warn("intervention.dispatcher: ghosting send failed",
			"user_id", user.ID, "recipient", recipient, "error", err)
	}

	slog.Info("intervention.dispatcher: ghosting alert sent",
		"user_id", user.ID, "recipient", recipient, "days_silent", gap)
	return true, nil
}

func styleFor(severity datatypes.Severity) string {
	switch severity {
	case datatypes.SeverityCritical:
		return "urgent"
	case datatypes.SeverityHigh:
		return "direct"
	default:
		return "supportive"
	}
}
