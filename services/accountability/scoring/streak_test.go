// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
)

const day0 = datatypes.Date("2025-03-01")

func TestApply_FirstEver(t *testing.T) {
	next, outcome, err := Apply(datatypes.StreakState{}, day0, 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFirstEver, outcome.Kind)
	assert.Equal(t, 1, next.CurrentStreak)
	assert.Equal(t, 1, next.LongestStreak)
	assert.Equal(t, 1, next.TotalRecords)
	require.NotNil(t, next.LastRecordDate)
	assert.Equal(t, day0, *next.LastRecordDate)
}

// TestApply_IncrementLaw verifies that N consecutive daily records with
// no shield use always yield a streak of N.
func TestApply_IncrementLaw(t *testing.T) {
	state := datatypes.StreakState{}
	date := day0
	for n := 1; n <= 30; n++ {
		var err error
		state, _, err = Apply(state, date, 0)
		require.NoError(t, err)
		assert.Equal(t, n, state.CurrentStreak)
		assert.GreaterOrEqual(t, state.LongestStreak, state.CurrentStreak)
		date = date.AddDays(1)
	}
	assert.Equal(t, 30, state.TotalRecords)
}

// TestApply_ResetLaw verifies that any gap > 1 without a shield resets
// to 1 and snapshots the pre-reset streak.
func TestApply_ResetLaw(t *testing.T) {
	for _, gap := range []int{2, 3, 5, 30} {
		state := buildStreak(t, 10)
		next, outcome, err := Apply(state, state.LastRecordDate.AddDays(gap), 0)
		require.NoError(t, err)
		assert.Equal(t, OutcomeReset, outcome.Kind, "gap %d", gap)
		assert.Equal(t, gap, outcome.GapDays)
		assert.Equal(t, 1, next.CurrentStreak)
		assert.Equal(t, 10, next.StreakBeforeReset)
		assert.Equal(t, 10, next.LongestStreak)
	}
}

// TestApply_SameDayIsInvariantViolation verifies the gap==0 guard.
func TestApply_SameDayIsInvariantViolation(t *testing.T) {
	state := buildStreak(t, 3)
	_, _, err := Apply(state, *state.LastRecordDate, 0)
	require.ErrorIs(t, err, ErrSameDayApply)
}

// TestApply_ShieldSavesGapOfTwo covers the gap-of-2-with-shield
// scenario: prev streak 10 becomes 11, not 1, and the caller is told to
// spend a shield.
func TestApply_ShieldSavesGapOfTwo(t *testing.T) {
	state := buildStreak(t, 10)
	next, outcome, err := Apply(state, state.LastRecordDate.AddDays(2), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeShieldSave, outcome.Kind)
	assert.True(t, outcome.ShieldSpent)
	assert.Equal(t, 11, next.CurrentStreak)
	assert.Equal(t, 11, next.LongestStreak)
}

// TestApply_ShieldDoesNotStack verifies gap > 2 resets even with
// shields available.
func TestApply_ShieldDoesNotStack(t *testing.T) {
	state := buildStreak(t, 10)
	next, outcome, err := Apply(state, state.LastRecordDate.AddDays(3), 5)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReset, outcome.Kind)
	assert.False(t, outcome.ShieldSpent)
	assert.Equal(t, 1, next.CurrentStreak)
}

func TestApply_Milestones(t *testing.T) {
	state := datatypes.StreakState{}
	date := day0
	hits := make([]int, 0)
	for n := 1; n <= 30; n++ {
		var outcome Outcome
		var err error
		state, outcome, err = Apply(state, date, 0)
		require.NoError(t, err)
		if outcome.Milestone != 0 {
			hits = append(hits, outcome.Milestone)
		}
		date = date.AddDays(1)
	}
	assert.Equal(t, []int{7, 14, 30}, hits)
}

// TestApply_LongestStreakInvariant walks a mixed sequence of
// increments and resets and checks the invariant after every call.
func TestApply_LongestStreakInvariant(t *testing.T) {
	state := datatypes.StreakState{}
	date := day0
	gaps := []int{1, 1, 1, 3, 1, 1, 2, 1, 5, 1, 1, 1, 1, 2}
	for i, gap := range gaps {
		date = date.AddDays(gap)
		var err error
		state, _, err = Apply(state, date, i%2) // alternate shield availability
		require.NoError(t, err)
		require.GreaterOrEqual(t, state.LongestStreak, state.CurrentStreak)
	}
	assert.Equal(t, len(gaps), state.TotalRecords)
}

func TestRecoveryNote_Sequence(t *testing.T) {
	state := buildStreak(t, 4)

	// Reset record itself.
	state, outcome, err := Apply(state, state.LastRecordDate.AddDays(3), 0)
	require.NoError(t, err)
	assert.Contains(t, RecoveryNote(state, outcome), "reset")

	notes := make(map[int]string)
	for day := 2; day <= 15; day++ {
		state, outcome, err = Apply(state, state.LastRecordDate.AddDays(1), 0)
		require.NoError(t, err)
		if note := RecoveryNote(state, outcome); note != "" {
			notes[day] = note
		}
	}
	// 3rd and 7th records after the reset, the day the old streak is
	// passed (streak 5 = record 5), and the 14th record.
	assert.Contains(t, notes, 3)
	assert.Contains(t, notes, 5)
	assert.Contains(t, notes[5], "old streak")
	assert.Contains(t, notes, 7)
	assert.Contains(t, notes, 14)
	assert.Len(t, notes, 4)
}

// buildStreak returns a state with n consecutive daily records ending
// at day0+n-1.
func buildStreak(t *testing.T, n int) datatypes.StreakState {
	t.Helper()
	state := datatypes.StreakState{}
	date := day0
	for i := 0; i < n; i++ {
		var err error
		state, _, err = Apply(state, date, 0)
		require.NoError(t, err)
		date = date.AddDays(1)
	}
	return state
}
