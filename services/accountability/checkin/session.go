// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package checkin runs the daily check-in conversation: a fixed
// question sequence per session variant, answer validation, undo, and
// the completion procedure that scores the day and advances the streak.
package checkin

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
)

// SessionVariant selects which question plan a session runs.
type SessionVariant string

const (
	// VariantFull asks every habit item plus the reflection questions.
	VariantFull SessionVariant = "full"
	// VariantQuick asks the habit items only. Weekly-quota limited.
	VariantQuick SessionVariant = "quick"
)

const (
	reflectionMinLen = 10
	reflectionMaxLen = 500
)

type stepKind int

const (
	stepItem stepKind = iota
	stepReflection
)

// step is one question in a session's plan.
type step struct {
	kind   stepKind
	habit  datatypes.HabitDef // stepItem only
	prompt string
}

// planFor builds the question sequence for a variant from the manifest.
// The plan is fixed at session start; manifest edits mid-session do not
// reorder a running conversation.
func planFor(manifest *datatypes.Manifest, variant SessionVariant) []step {
	steps := make([]step, 0, len(manifest.Habits)+len(manifest.Reflections))
	for _, h := range manifest.Habits {
		steps = append(steps, step{kind: stepItem, habit: h, prompt: h.Prompt})
	}
	if variant == VariantFull {
		for _, prompt := range manifest.Reflections {
			steps = append(steps, step{kind: stepReflection, prompt: prompt})
		}
	}
	return steps
}

// Session is one user's in-flight check-in conversation. All fields
// are guarded by mu; the manager never touches them without it.
type Session struct {
	UserID  string
	Variant SessionVariant
	Date    datatypes.Date

	mu          sync.Mutex
	steps       []step
	cursor      int
	items       map[datatypes.HabitKey]datatypes.ItemResult
	reflections []string

	// version increments on every accepted mutation. The idle sweep
	// compares it before acting so a late answer beats a pending
	// reminder or cancel.
	version        uint64
	startedAt      time.Time
	lastActivityAt time.Time
	reminderSent   bool

	// completed marks a session that finished or was abandoned; a
	// racing caller holding a stale pointer must treat it as gone.
	completed bool
}

func newSession(userID string, variant SessionVariant, date datatypes.Date, manifest *datatypes.Manifest, now time.Time) *Session {
	return &Session{
		UserID:         userID,
		Variant:        variant,
		Date:           date,
		steps:          planFor(manifest, variant),
		items:          make(map[datatypes.HabitKey]datatypes.ItemResult),
		startedAt:      now,
		lastActivityAt: now,
	}
}

// current returns the step the cursor points at. Callers hold mu.
func (s *Session) current() step {
	return s.steps[s.cursor]
}

func (s *Session) done() bool {
	return s.cursor >= len(s.steps)
}

func (s *Session) touch(now time.Time) {
	s.version++
	s.lastActivityAt = now
	s.reminderSent = false
}

// answer validates text against the current step and records it.
// A *ValidationError leaves the session untouched.
func (s *Session) answer(text string, now time.Time) error {
	st := s.current()
	switch st.kind {
	case stepItem:
		result, err := parseItemAnswer(st.habit, text)
		if err != nil {
			return err
		}
		s.items[st.habit.Key] = result
	case stepReflection:
		trimmed := strings.TrimSpace(text)
		// Length bounds are in characters, not bytes.
		if n := utf8.RuneCountInString(trimmed); n < reflectionMinLen || n > reflectionMaxLen {
			return &ValidationError{
				Prompt: st.prompt,
				Reason: fmt.Sprintf("reflections must be %d-%d characters, got %d", reflectionMinLen, reflectionMaxLen, n),
			}
		}
		s.reflections = append(s.reflections, trimmed)
	}
	s.cursor++
	s.touch(now)
	return nil
}

// undo steps back one item question. Reflections cannot be unwound:
// once the conversation leaves the item phase the day's facts are
// settled.
func (s *Session) undo(now time.Time) error {
	if s.cursor == 0 {
		return ErrUndoUnavailable
	}
	prev := s.steps[s.cursor-1]
	if prev.kind != stepItem {
		return ErrUndoUnavailable
	}
	s.cursor--
	delete(s.items, prev.habit.Key)
	s.touch(now)
	return nil
}

// affirmative and negative are the accepted yes/no spellings, matched
// after lowercasing and trimming.
var (
	affirmative = map[string]bool{
		"yes": true, "y": true, "yep": true, "done": true, "did": true, "true": true, "1": true,
	}
	negative = map[string]bool{
		"no": true, "n": true, "nope": true, "skip": true, "skipped": true, "missed": true, "false": true, "0": true,
	}
)

// parseItemAnswer interprets one habit answer. An optional note may
// follow the answer after " - ", e.g. "no - travel day".
func parseItemAnswer(habit datatypes.HabitDef, text string) (datatypes.ItemResult, error) {
	answer, note := splitNote(text)
	answer = strings.ToLower(strings.TrimSpace(answer))

	if habit.Metric {
		value, err := strconv.ParseFloat(answer, 64)
		// ParseFloat accepts "nan" and "inf"; neither is a usable metric
		// and NaN in particular defeats the range check below (every
		// comparison with NaN is false) and cannot be marshalled.
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			return datatypes.ItemResult{}, &ValidationError{
				Prompt: habit.Prompt,
				Reason: fmt.Sprintf("expected a number of %s, e.g. \"7.5\"", habit.MetricUnit),
			}
		}
		if habit.MetricUnit == "hours" && (value < 0 || value > 24) {
			return datatypes.ItemResult{}, &ValidationError{
				Prompt: habit.Prompt,
				Reason: "hours must be between 0 and 24",
			}
		}
		return datatypes.ItemResult{
			Completed: value >= habit.MetricThreshold,
			Metric:    &value,
			Note:      note,
		}, nil
	}

	switch {
	case affirmative[answer]:
		return datatypes.ItemResult{Completed: true, Note: note}, nil
	case negative[answer]:
		return datatypes.ItemResult{Completed: false, Note: note}, nil
	default:
		return datatypes.ItemResult{}, &ValidationError{
			Prompt: habit.Prompt,
			Reason: "answer yes or no (a note may follow after \" - \")",
		}
	}
}

func splitNote(text string) (answer, note string) {
	if i := strings.Index(text, " - "); i >= 0 {
		return text[:i], strings.TrimSpace(text[i+3:])
	}
	return text, ""
}
