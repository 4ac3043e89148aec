// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checkin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
)

func TestPlanFor(t *testing.T) {
	manifest := datatypes.DefaultManifest()

	full := planFor(manifest, VariantFull)
	require.Len(t, full, 8)
	assert.Equal(t, stepItem, full[0].kind)
	assert.Equal(t, stepReflection, full[6].kind)
	assert.Equal(t, stepReflection, full[7].kind)

	quick := planFor(manifest, VariantQuick)
	require.Len(t, quick, 6)
	for _, s := range quick {
		assert.Equal(t, stepItem, s.kind)
	}
}

func TestParseItemAnswer_Synonyms(t *testing.T) {
	habit := datatypes.HabitDef{Key: datatypes.HabitTraining, Prompt: "Did you train?"}

	for _, text := range []string{"yes", "Y", "DONE", "yep", "1"} {
		result, err := parseItemAnswer(habit, text)
		require.NoError(t, err, text)
		assert.True(t, result.Completed, text)
	}
	for _, text := range []string{"no", "n", "skip", "missed", "0"} {
		result, err := parseItemAnswer(habit, text)
		require.NoError(t, err, text)
		assert.False(t, result.Completed, text)
	}

	var verr *ValidationError
	_, err := parseItemAnswer(habit, "sort of")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Did you train?", verr.Prompt)
}

func TestParseItemAnswer_MetricThreshold(t *testing.T) {
	habit := datatypes.HabitDef{
		Key: datatypes.HabitSleep, Prompt: "How many hours?",
		Metric: true, MetricThreshold: 7.0, MetricUnit: "hours",
	}

	atFloor, err := parseItemAnswer(habit, "7")
	require.NoError(t, err)
	assert.True(t, atFloor.Completed)

	under, err := parseItemAnswer(habit, "6.9")
	require.NoError(t, err)
	assert.False(t, under.Completed)
	require.NotNil(t, under.Metric)
	assert.Equal(t, 6.9, *under.Metric)
}

func TestSplitNote(t *testing.T) {
	answer, note := splitNote("no - flight landed at midnight")
	assert.Equal(t, "no", answer)
	assert.Equal(t, "flight landed at midnight", note)

	answer, note = splitNote("yes")
	assert.Equal(t, "yes", answer)
	assert.Empty(t, note)
}
