// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
	"github.com/AleutianAI/AleutianHabit/services/accountability/scoring"
)

// recordSpec tweaks one synthetic daily record.
type recordSpec struct {
	sleepHours float64
	training   bool
	alcohol    bool // true = stayed alcohol-free
	boundary   bool
	deepWork   bool
	nutrition  bool
}

func perfectDay() recordSpec {
	return recordSpec{sleepHours: 8, training: true, alcohol: true, boundary: true, deepWork: true, nutrition: true}
}

// makeRecords builds newest-first records from specs given newest-first.
func makeRecords(t *testing.T, specs []recordSpec) []datatypes.HabitRecord {
	t.Helper()
	manifest := datatypes.DefaultManifest()
	records := make([]datatypes.HabitRecord, len(specs))
	date := datatypes.Date("2025-06-30")
	for i, spec := range specs {
		hours := spec.sleepHours
		sleepDef, ok := manifest.Habit(datatypes.HabitSleep)
		require.True(t, ok)
		items := map[datatypes.HabitKey]datatypes.ItemResult{
			datatypes.HabitDeepWork:  {Completed: spec.deepWork},
			datatypes.HabitTraining:  {Completed: spec.training},
			datatypes.HabitSleep:     {Completed: hours >= sleepDef.MetricThreshold, Metric: &hours},
			datatypes.HabitNutrition: {Completed: spec.nutrition},
			datatypes.HabitNoAlcohol: {Completed: spec.alcohol},
			datatypes.HabitBoundary:  {Completed: spec.boundary},
		}
		score := scoring.Score(items)
		records[i] = datatypes.HabitRecord{
			UserID:          "u1",
			Date:            date.AddDays(-i),
			Items:           items,
			ComplianceScore: score,
			ComplianceLevel: scoring.Level(score),
		}
	}
	return records
}

func evaluateAll(manifest *datatypes.Manifest, records []datatypes.HabitRecord) []datatypes.Pattern {
	found := make([]datatypes.Pattern, 0)
	for _, rule := range Registry(manifest) {
		if p := rule.Evaluate(records); p != nil {
			found = append(found, *p)
		}
	}
	return found
}

// TestRules_PerfectWeek verifies the perfect-week scenario: seven
// all-complete records fire nothing.
func TestRules_PerfectWeek(t *testing.T) {
	specs := make([]recordSpec, 7)
	for i := range specs {
		specs[i] = perfectDay()
	}
	records := makeRecords(t, specs)
	assert.Empty(t, evaluateAll(datatypes.DefaultManifest(), records))
}

// TestSleepDegradation_ThreeBadNights covers the 3-day sleep failure
// scenario: exactly one high-severity pattern with the three
// dates/values in evidence.
func TestSleepDegradation_ThreeBadNights(t *testing.T) {
	specs := make([]recordSpec, 5)
	for i := range specs {
		specs[i] = perfectDay()
	}
	for i := 0; i < 3; i++ {
		specs[i].sleepHours = 5.5
	}
	records := makeRecords(t, specs)

	found := evaluateAll(datatypes.DefaultManifest(), records)
	require.Len(t, found, 1)
	p := found[0]
	assert.Equal(t, datatypes.PatternSleepDegradation, p.Type)
	assert.Equal(t, datatypes.SeverityHigh, p.Severity)
	assert.Len(t, p.Evidence["dates"], 3)
	assert.Equal(t, []float64{5.5, 5.5, 5.5}, p.Evidence["values"])
	assert.Equal(t, records[2].Date, p.WindowStart)
	assert.Equal(t, records[0].Date, p.WindowEnd)
}

// TestSleepDegradation_TwoBadNightsIsNotEnough guards the 3-point
// threshold rationale: a single recovery night clears the rule.
func TestSleepDegradation_TwoBadNightsIsNotEnough(t *testing.T) {
	specs := []recordSpec{perfectDay(), perfectDay(), perfectDay()}
	specs[0].sleepHours = 5
	specs[1].sleepHours = 5
	records := makeRecords(t, specs)
	assert.Empty(t, evaluateAll(datatypes.DefaultManifest(), records))
}

func TestAbandonment_ThreeMissedTrainingDays(t *testing.T) {
	specs := []recordSpec{perfectDay(), perfectDay(), perfectDay(), perfectDay()}
	for i := 0; i < 3; i++ {
		specs[i].training = false
	}
	records := makeRecords(t, specs)

	found := evaluateAll(datatypes.DefaultManifest(), records)
	require.Len(t, found, 1)
	assert.Equal(t, datatypes.PatternTrainingAbandonment, found[0].Type)
	assert.Equal(t, datatypes.SeverityMedium, found[0].Severity)
	assert.Len(t, found[0].Evidence["dates"], 3)
}

func TestScoreDecline_ThreeLowScores(t *testing.T) {
	// Missing training, nutrition and deep work scores 50 (3/6).
	bad := perfectDay()
	bad.training = false
	bad.nutrition = false
	bad.deepWork = false
	records := makeRecords(t, []recordSpec{bad, bad, bad})

	rule := &scoreDeclineRule{}
	p := rule.Evaluate(records)
	require.NotNil(t, p)
	assert.Equal(t, datatypes.SeverityMedium, p.Severity)
	assert.Equal(t, []float64{50, 50, 50}, p.Evidence["scores"])
}

// TestRelapse_FrequencyNotConsecutive verifies the relapse rule fires
// on 3 failures scattered through a 7-record window; consecutive days
// are not required.
func TestRelapse_FrequencyNotConsecutive(t *testing.T) {
	specs := make([]recordSpec, 7)
	for i := range specs {
		specs[i] = perfectDay()
	}
	specs[0].alcohol = false
	specs[3].alcohol = false
	specs[6].alcohol = false
	records := makeRecords(t, specs)

	rule := &relapseRule{key: datatypes.HabitNoAlcohol}
	p := rule.Evaluate(records)
	require.NotNil(t, p)
	assert.Equal(t, datatypes.SeverityCritical, p.Severity)
	assert.Equal(t, 3, p.Evidence["failures"])
	assert.Len(t, p.Evidence["failure_dates"], 3)
}

func TestRelapse_TwoFailuresBelowThreshold(t *testing.T) {
	specs := make([]recordSpec, 7)
	for i := range specs {
		specs[i] = perfectDay()
	}
	specs[1].alcohol = false
	specs[5].alcohol = false
	records := makeRecords(t, specs)

	rule := &relapseRule{key: datatypes.HabitNoAlcohol}
	assert.Nil(t, rule.Evaluate(records))
}

// TestRelapse_OldFailuresOutsideWindowIgnored verifies only the last 7
// records count.
func TestRelapse_OldFailuresOutsideWindowIgnored(t *testing.T) {
	specs := make([]recordSpec, 10)
	for i := range specs {
		specs[i] = perfectDay()
	}
	specs[0].alcohol = false
	specs[7].alcohol = false // outside the 7-record window
	specs[8].alcohol = false
	specs[9].alcohol = false
	records := makeRecords(t, specs)

	rule := &relapseRule{key: datatypes.HabitNoAlcohol}
	assert.Nil(t, rule.Evaluate(records))
}

func TestBoundaryCorrelation_FiresAboveFraction(t *testing.T) {
	specs := make([]recordSpec, 10)
	for i := range specs {
		specs[i] = perfectDay()
	}
	// Four boundary violations, three of which co-occur with a sleep or
	// training failure: fraction 0.75 > 0.70.
	for _, i := range []int{1, 3, 5, 8} {
		specs[i].boundary = false
	}
	specs[1].sleepHours = 5
	specs[3].training = false
	specs[5].sleepHours = 4.5

	records := makeRecords(t, specs)
	rule := &boundaryCorrelationRule{boundaryKey: datatypes.HabitBoundary}
	p := rule.Evaluate(records)
	require.NotNil(t, p)
	assert.Equal(t, datatypes.SeverityCritical, p.Severity)
	assert.Len(t, p.Evidence["violation_dates"], 4)
	assert.Len(t, p.Evidence["coincident_dates"], 3)
	assert.InDelta(t, 0.75, p.Evidence["fraction"].(float64), 0.001)
}

func TestBoundaryCorrelation_TooFewViolations(t *testing.T) {
	specs := make([]recordSpec, 10)
	for i := range specs {
		specs[i] = perfectDay()
	}
	specs[2].boundary = false
	specs[2].sleepHours = 5
	specs[6].boundary = false
	specs[6].training = false

	records := makeRecords(t, specs)
	rule := &boundaryCorrelationRule{boundaryKey: datatypes.HabitBoundary}
	assert.Nil(t, rule.Evaluate(records))
}

// TestRules_ShortHistory verifies no consecutive-window rule fires with
// fewer than 3 records.
func TestRules_ShortHistory(t *testing.T) {
	bad := recordSpec{sleepHours: 4}
	records := makeRecords(t, []recordSpec{bad, bad})
	assert.Empty(t, evaluateAll(datatypes.DefaultManifest(), records))
}
