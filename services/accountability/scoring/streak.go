// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scoring

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
)

// ErrSameDayApply indicates Apply was called twice for the same date.
// The completion procedure is guarded upstream by the
// already-completed-today check, so hitting this is an invariant
// violation, not a normal reset.
var ErrSameDayApply = errors.New("streak apply called for an already-recorded date")

// Milestones is the fixed streak-length set that triggers milestone
// messaging. Purely presentational; no state change depends on it.
var Milestones = []int{7, 14, 30, 60, 90, 180, 365}

// OutcomeKind classifies what a streak apply did.
type OutcomeKind int

const (
	// OutcomeFirstEver is the user's first record.
	OutcomeFirstEver OutcomeKind = iota
	// OutcomeIncrement is a consecutive-day continuation.
	OutcomeIncrement
	// OutcomeShieldSave is a gap of 2 converted to an increment by
	// spending a shield.
	OutcomeShieldSave
	// OutcomeReset is a gap larger than one day with no shield save.
	OutcomeReset
)

// Outcome reports what Apply did, for messaging and shield accounting.
type Outcome struct {
	Kind OutcomeKind

	// ShieldSpent is true when the caller must decrement the user's
	// shield count; Apply itself never mutates the user.
	ShieldSpent bool

	// Milestone is the streak length hit this apply, or 0.
	Milestone int

	// GapDays is the calendar-day gap that was observed (0 for the
	// first-ever record).
	GapDays int
}

// Apply computes the streak state after recording a new date.
//
// # Description
//
// Pure function: prev is not mutated. Gap policy, per calendar days
// between prev.LastRecordDate and newDate:
//
//   - first ever record: streak starts at 1
//   - gap 1: increment
//   - gap 0 or negative: ErrSameDayApply (upstream guard failed)
//   - gap 2 with shieldsAvailable > 0: increment, Outcome.ShieldSpent set
//   - anything larger: reset to 1, StreakBeforeReset snapshotted
//
// Shields cover at most one missed day and do not stack: a gap of 3 or
// more is an unconditional reset regardless of shield count.
//
// # Inputs
//
//   - prev: current streak state. Zero value is valid for new users.
//   - newDate: the calendar date being recorded.
//   - shieldsAvailable: shields the user holds right now.
//
// # Outputs
//
//   - datatypes.StreakState: the new state.
//   - Outcome: what happened, for messaging and shield accounting.
//   - error: ErrSameDayApply, or an invalid-date error.
func Apply(prev datatypes.StreakState, newDate datatypes.Date, shieldsAvailable int) (datatypes.StreakState, Outcome, error) {
	next := prev
	outcome := Outcome{}

	if prev.LastRecordDate == nil {
		next.CurrentStreak = 1
		outcome.Kind = OutcomeFirstEver
	} else {
		gap, ok := datatypes.DaysBetween(*prev.LastRecordDate, newDate)
		if !ok {
			return prev, outcome, fmt.Errorf("invalid dates %q -> %q", *prev.LastRecordDate, newDate)
		}
		outcome.GapDays = gap
		switch {
		case gap <= 0:
			return prev, outcome, fmt.Errorf("%w: last=%s new=%s", ErrSameDayApply, *prev.LastRecordDate, newDate)
		case gap == 1:
			next.CurrentStreak = prev.CurrentStreak + 1
			outcome.Kind = OutcomeIncrement
		case gap == 2 && shieldsAvailable > 0:
			next.CurrentStreak = prev.CurrentStreak + 1
			outcome.Kind = OutcomeShieldSave
			outcome.ShieldSpent = true
		default:
			next.StreakBeforeReset = prev.CurrentStreak
			next.CurrentStreak = 1
			next.RecordsSinceReset = 0
			outcome.Kind = OutcomeReset
		}
	}

	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}
	next.TotalRecords = prev.TotalRecords + 1
	d := newDate
	next.LastRecordDate = &d
	if next.StreakBeforeReset > 0 {
		next.RecordsSinceReset++
	}

	for _, m := range Milestones {
		if next.CurrentStreak == m {
			outcome.Milestone = m
			break
		}
	}

	return next, outcome, nil
}

// RecoveryNote derives the recovery message shown after a reset, if
// any applies to this record. Presentation only; returns "" when
// nothing should be said.
//
// Notes fire on the reset record itself, on the 3rd/7th/14th record
// after it, and once more when the rebuilt streak first exceeds the
// streak that was lost.
func RecoveryNote(state datatypes.StreakState, outcome Outcome) string {
	if outcome.Kind == OutcomeReset {
		return fmt.Sprintf("Streak reset after a %d-day gap. You had %d days; the only move now is day 1.",
			outcome.GapDays, state.StreakBeforeReset)
	}
	if state.StreakBeforeReset == 0 {
		return ""
	}
	if state.CurrentStreak == state.StreakBeforeReset+1 {
		return fmt.Sprintf("Day %d: you just passed your old streak of %d. The reset is fully behind you.",
			state.CurrentStreak, state.StreakBeforeReset)
	}
	switch state.RecordsSinceReset {
	case 3:
		return "Three days back on the board. Recoveries are built exactly like this."
	case 7:
		return "A full week since the reset. Keep stacking."
	case 14:
		return "Two weeks rebuilt. This is a streak again, not a recovery."
	}
	return ""
}
