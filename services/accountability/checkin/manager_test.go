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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
	"github.com/AleutianAI/AleutianHabit/services/accountability/storage"
	"github.com/AleutianAI/AleutianHabit/services/llm"
)

// captureChannel records outbound messages per user.
type captureChannel struct {
	sends map[string][]string
}

func newCaptureChannel() *captureChannel {
	return &captureChannel{sends: make(map[string][]string)}
}

func (c *captureChannel) Send(_ context.Context, userID, text string) error {
	c.sends[userID] = append(c.sends[userID], text)
	return nil
}

// flakyStore fails the completion write a set number of times.
type flakyStore struct {
	storage.Store
	failures int
}

func (f *flakyStore) PutRecordAndStreak(ctx context.Context, record *datatypes.HabitRecord, streak datatypes.StreakState, user *datatypes.User) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("disk on fire")
	}
	return f.Store.PutRecordAndStreak(ctx, record, streak, user)
}

type fixture struct {
	manager *Manager
	store   storage.Store
	channel *captureChannel
	now     *time.Time
}

func newFixture(t *testing.T, store storage.Store) *fixture {
	t.Helper()
	if store == nil {
		s, err := storage.OpenInMemory()
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		store = s
	}
	now := time.Date(2025, 7, 2, 20, 0, 0, 0, time.UTC) // a Wednesday
	ch := newCaptureChannel()
	cfg := DefaultConfig()
	cfg.StoreRetryDelay = time.Millisecond
	cfg.Now = func() time.Time { return now }
	m := NewManager(store, datatypes.DefaultManifest(), llm.Unavailable{}, ch, cfg)
	return &fixture{manager: m, store: store, channel: ch, now: &now}
}

// fullAnswers is a perfect day in manifest question order.
var fullAnswers = []string{
	"yes", "yes", "7.5", "yes", "yes", "yes",
	"Pushing through the afternoon slump without caffeine was the hardest part.",
	"Tomorrow I will start the deep work block before opening email.",
}

func runSession(t *testing.T, f *fixture, userID string, variant SessionVariant, answers []string) *Summary {
	t.Helper()
	ctx := context.Background()
	_, err := f.manager.Start(ctx, userID, variant)
	require.NoError(t, err)
	var last *AnswerResult
	for _, a := range answers {
		last, err = f.manager.Answer(ctx, userID, a)
		require.NoError(t, err, "answer %q", a)
	}
	require.True(t, last.Done)
	require.NotNil(t, last.Summary)
	return last.Summary
}

func TestFullSession_PerfectDay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	start, err := f.manager.Start(ctx, "alice", VariantFull)
	require.NoError(t, err)
	assert.Equal(t, 1, start.Step)
	assert.Equal(t, 8, start.Total)
	assert.Equal(t, "Did you complete your deep work block today?", start.Prompt)

	var result *AnswerResult
	for i, a := range fullAnswers {
		result, err = f.manager.Answer(ctx, "alice", a)
		require.NoError(t, err)
		if i < len(fullAnswers)-1 {
			assert.False(t, result.Done)
			assert.Equal(t, i+2, result.Step)
		}
	}
	require.True(t, result.Done)
	summary := result.Summary
	assert.Equal(t, 100.0, summary.Score)
	assert.Equal(t, datatypes.LevelExcellent, summary.Level)
	assert.Equal(t, 1, summary.CurrentStreak)
	assert.Contains(t, summary.Text, "Day 1")
	assert.Equal(t, 0, f.manager.OpenSessions())

	record, err := f.store.GetRecord(ctx, "alice", datatypes.DateOf(*f.now))
	require.NoError(t, err)
	assert.Len(t, record.Items, 6)
	assert.Len(t, record.FreeTextResponses, 2)
	sleep, _ := record.Item(datatypes.HabitSleep)
	require.NotNil(t, sleep.Metric)
	assert.Equal(t, 7.5, *sleep.Metric)
	assert.True(t, sleep.Completed)
}

func TestQuickSession_SkipsReflections(t *testing.T) {
	f := newFixture(t, nil)
	summary := runSession(t, f, "alice", VariantQuick, fullAnswers[:6])
	assert.Equal(t, 100.0, summary.Score)

	record, err := f.store.GetRecord(context.Background(), "alice", datatypes.DateOf(*f.now))
	require.NoError(t, err)
	assert.Empty(t, record.FreeTextResponses)
}

func TestQuickSession_WeeklyQuota(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	runSession(t, f, "alice", VariantQuick, fullAnswers[:6])
	*f.now = f.now.AddDate(0, 0, 1)
	runSession(t, f, "alice", VariantQuick, fullAnswers[:6])

	// Third quick start in the same ISO week is refused.
	*f.now = f.now.AddDate(0, 0, 1)
	_, err := f.manager.Start(ctx, "alice", VariantQuick)
	assert.ErrorIs(t, err, ErrQuickQuotaExceeded)

	// A full session still works.
	_, err = f.manager.Start(ctx, "alice", VariantFull)
	require.NoError(t, err)
	require.NoError(t, f.manager.Cancel("alice"))

	// Next Monday the counter resets lazily.
	*f.now = time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)
	_, err = f.manager.Start(ctx, "alice", VariantQuick)
	require.NoError(t, err)
}

func TestAnswer_ValidationLeavesSessionInPlace(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.manager.Start(ctx, "alice", VariantFull)
	require.NoError(t, err)

	var verr *ValidationError
	_, err = f.manager.Answer(ctx, "alice", "maybe")
	require.ErrorAs(t, err, &verr)

	// Same question again, valid answer advances to step 2.
	result, err := f.manager.Answer(ctx, "alice", "yes")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Step)
}

func TestAnswer_SleepValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.manager.Start(ctx, "alice", VariantQuick)
	require.NoError(t, err)
	for _, a := range []string{"yes", "yes"} {
		_, err = f.manager.Answer(ctx, "alice", a)
		require.NoError(t, err)
	}

	var verr *ValidationError
	_, err = f.manager.Answer(ctx, "alice", "plenty")
	require.ErrorAs(t, err, &verr)
	_, err = f.manager.Answer(ctx, "alice", "25")
	require.ErrorAs(t, err, &verr)

	// A short night is a valid answer; it just fails the threshold.
	result, err := f.manager.Answer(ctx, "alice", "6")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Step)

	for _, a := range []string{"yes", "yes", "yes"} {
		result, err = f.manager.Answer(ctx, "alice", a)
		require.NoError(t, err)
	}
	require.True(t, result.Done)
	assert.InDelta(t, 83.33, result.Summary.Score, 0.01)
}

// TestAnswer_SleepRejectsNonFinite pins the non-finite inputs
// ParseFloat happily accepts. A stored NaN would slip past the 0-24
// range check (every NaN comparison is false) and then poison the
// completion write, which JSON cannot marshal, so the session would
// wedge behind ErrStoreUnavailable with no valid answer left to give.
func TestAnswer_SleepRejectsNonFinite(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.manager.Start(ctx, "alice", VariantQuick)
	require.NoError(t, err)
	for _, a := range []string{"yes", "yes"} {
		_, err = f.manager.Answer(ctx, "alice", a)
		require.NoError(t, err)
	}

	var verr *ValidationError
	for _, bad := range []string{"nan", "NaN", "inf", "+Inf", "-inf"} {
		_, err = f.manager.Answer(ctx, "alice", bad)
		require.ErrorAs(t, err, &verr, bad)
	}

	// The session is still parked on the sleep question and completes
	// normally once a real number arrives.
	result, err := f.manager.Answer(ctx, "alice", "7.5")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Step)
	for _, a := range []string{"yes", "yes", "yes"} {
		result, err = f.manager.Answer(ctx, "alice", a)
		require.NoError(t, err)
	}
	require.True(t, result.Done)
	assert.Equal(t, 100.0, result.Summary.Score)
}

func TestAnswer_ReflectionLength(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.manager.Start(ctx, "alice", VariantFull)
	require.NoError(t, err)
	for _, a := range fullAnswers[:6] {
		_, err = f.manager.Answer(ctx, "alice", a)
		require.NoError(t, err)
	}

	var verr *ValidationError
	_, err = f.manager.Answer(ctx, "alice", "fine")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "10-500")

	// The bounds count characters, not bytes: four CJK characters are
	// 12 bytes but still too short.
	_, err = f.manager.Answer(ctx, "alice", "良い日だ")
	require.ErrorAs(t, err, &verr)

	// Ten characters is enough even when they are all multibyte.
	result, err := f.manager.Answer(ctx, "alice", "今日は良い一日だった。")
	require.NoError(t, err)
	assert.Equal(t, 8, result.Step)
}

func TestAnswer_NoteSuffix(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	summary := runSession(t, f, "alice", VariantQuick,
		[]string{"yes", "no - travel day", "7", "yes", "yes", "yes"})
	assert.InDelta(t, 83.33, summary.Score, 0.01)

	record, err := f.store.GetRecord(ctx, "alice", datatypes.DateOf(*f.now))
	require.NoError(t, err)
	training, _ := record.Item(datatypes.HabitTraining)
	assert.False(t, training.Completed)
	assert.Equal(t, "travel day", training.Note)
}

func TestUndo(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.manager.Start(ctx, "alice", VariantFull)
	require.NoError(t, err)

	// Nothing answered yet.
	_, err = f.manager.Undo("alice")
	assert.ErrorIs(t, err, ErrUndoUnavailable)

	_, err = f.manager.Answer(ctx, "alice", "no")
	require.NoError(t, err)
	back, err := f.manager.Undo("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, back.Step)

	// Re-answer and finish; the corrected answer is the one stored.
	for _, a := range fullAnswers {
		_, err = f.manager.Answer(ctx, "alice", a)
		require.NoError(t, err)
	}

	record, err := f.store.GetRecord(ctx, "alice", datatypes.DateOf(*f.now))
	require.NoError(t, err)
	deepWork, _ := record.Item(datatypes.HabitDeepWork)
	assert.True(t, deepWork.Completed)
}

func TestUndo_BlockedInReflectionPhase(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.manager.Start(ctx, "alice", VariantFull)
	require.NoError(t, err)
	for _, a := range fullAnswers[:7] {
		_, err = f.manager.Answer(ctx, "alice", a)
		require.NoError(t, err)
	}
	_, err = f.manager.Undo("alice")
	assert.ErrorIs(t, err, ErrUndoUnavailable)
}

func TestStart_Guards(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.manager.Answer(ctx, "alice", "yes")
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = f.manager.Start(ctx, "alice", VariantFull)
	require.NoError(t, err)
	_, err = f.manager.Start(ctx, "alice", VariantQuick)
	assert.ErrorIs(t, err, ErrSessionInProgress)
	require.NoError(t, f.manager.Cancel("alice"))

	runSession(t, f, "alice", VariantQuick, fullAnswers[:6])
	_, err = f.manager.Start(ctx, "alice", VariantFull)
	assert.ErrorIs(t, err, ErrAlreadyCompletedToday)
}

func TestSweepIdle_ReminderThenCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.manager.Start(ctx, "alice", VariantFull)
	require.NoError(t, err)

	// Too early for anything.
	reminded, cancelled := f.manager.SweepIdle(ctx)
	assert.Zero(t, reminded+cancelled)

	*f.now = f.now.Add(11 * time.Minute)
	reminded, cancelled = f.manager.SweepIdle(ctx)
	assert.Equal(t, 1, reminded)
	assert.Zero(t, cancelled)
	require.Len(t, f.channel.sends["alice"], 1)
	assert.Contains(t, f.channel.sends["alice"][0], "still open")

	// The reminder does not repeat.
	reminded, _ = f.manager.SweepIdle(ctx)
	assert.Zero(t, reminded)

	*f.now = f.now.Add(5 * time.Minute)
	_, cancelled = f.manager.SweepIdle(ctx)
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, 0, f.manager.OpenSessions())
	_, err = f.manager.Answer(ctx, "alice", "yes")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSweepIdle_AnswerClearsReminderClock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.manager.Start(ctx, "alice", VariantFull)
	require.NoError(t, err)

	*f.now = f.now.Add(9 * time.Minute)
	_, err = f.manager.Answer(ctx, "alice", "yes")
	require.NoError(t, err)

	// 11 minutes after start but only 2 after the last answer.
	*f.now = f.now.Add(2 * time.Minute)
	reminded, cancelled := f.manager.SweepIdle(ctx)
	assert.Zero(t, reminded+cancelled)
}

func TestCompletion_StoreRetryAndResume(t *testing.T) {
	inner, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close() })
	flaky := &flakyStore{Store: inner, failures: 10}
	f := newFixture(t, flaky)
	ctx := context.Background()

	_, err = f.manager.Start(ctx, "alice", VariantQuick)
	require.NoError(t, err)
	for _, a := range fullAnswers[:5] {
		_, err = f.manager.Answer(ctx, "alice", a)
		require.NoError(t, err)
	}
	_, err = f.manager.Answer(ctx, "alice", "yes")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 1, f.manager.OpenSessions())

	// Store heals; any further answer retries the completion.
	flaky.failures = 0
	result, err := f.manager.Answer(ctx, "alice", "")
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, 0, f.manager.OpenSessions())

	_, err = inner.GetRecord(ctx, "alice", datatypes.DateOf(*f.now))
	require.NoError(t, err)
}

func TestCompletion_StreakAdvances(t *testing.T) {
	f := newFixture(t, nil)
	runSession(t, f, "alice", VariantQuick, fullAnswers[:6])
	*f.now = f.now.AddDate(0, 0, 1)
	summary := runSession(t, f, "alice", VariantFull, fullAnswers)
	assert.Equal(t, 2, summary.CurrentStreak)

	streak, err := f.store.GetStreak(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, streak.CurrentStreak)
	assert.Equal(t, 2, streak.TotalRecords)
}

func TestCompletion_ShieldSpentOnGapOfTwo(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	runSession(t, f, "alice", VariantQuick, fullAnswers[:6])

	// One missed day; the default single shield converts it.
	*f.now = f.now.AddDate(0, 0, 2)
	summary := runSession(t, f, "alice", VariantFull, fullAnswers)
	assert.True(t, summary.ShieldSpent)
	assert.Equal(t, 2, summary.CurrentStreak)
	assert.Contains(t, summary.Text, "shield")

	user, err := f.store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, user.Shields)
}

func TestShieldRenewal_NewMonth(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	runSession(t, f, "alice", VariantQuick, fullAnswers[:6])

	user, err := f.store.GetUser(ctx, "alice")
	require.NoError(t, err)
	user.Shields = 0
	require.NoError(t, f.store.PutUser(ctx, user))

	*f.now = time.Date(2025, 8, 1, 20, 0, 0, 0, time.UTC)
	_, err = f.manager.Start(ctx, "alice", VariantFull)
	require.NoError(t, err)

	user, err = f.store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, user.Shields)
}

func TestCorrect_RecomputesScoreNotStreak(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	summary := runSession(t, f, "alice", VariantQuick,
		[]string{"yes", "no", "7.5", "yes", "yes", "yes"})
	assert.InDelta(t, 83.33, summary.Score, 0.01)
	date := datatypes.DateOf(*f.now)

	record, err := f.manager.Correct(ctx, "alice", date, datatypes.HabitTraining, "yes")
	require.NoError(t, err)
	assert.Equal(t, 100.0, record.ComplianceScore)
	assert.Equal(t, datatypes.LevelExcellent, record.ComplianceLevel)
	require.NotNil(t, record.CorrectedAt)

	streak, err := f.store.GetStreak(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 1, streak.TotalRecords)
}

func TestCorrect_Guards(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	date := datatypes.DateOf(*f.now)

	_, err := f.manager.Correct(ctx, "alice", date, datatypes.HabitTraining, "yes")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	runSession(t, f, "alice", VariantQuick, fullAnswers[:6])
	var verr *ValidationError
	_, err = f.manager.Correct(ctx, "alice", date, datatypes.HabitKey("juggling"), "yes")
	require.ErrorAs(t, err, &verr)
	_, err = f.manager.Correct(ctx, "alice", date, datatypes.HabitSleep, "lots")
	require.ErrorAs(t, err, &verr)
}
