// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package patterns

import (
	"fmt"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
)

const (
	// consecutiveWindow is the record count the 3-in-a-row rules need.
	consecutiveWindow = 3

	// relapseWindow and relapseThreshold implement
	// frequency-within-a-week rather than consecutive-day detection:
	// relapse patterns cluster, they don't run.
	relapseWindow    = 7
	relapseThreshold = 3

	// scoreDeclineFloor is the compliance score below which a record
	// counts toward the decline rule.
	scoreDeclineFloor = 70.0

	// correlationFraction is the co-occurrence ratio above which the
	// boundary correlation rule fires.
	correlationFraction = 0.70

	// correlationMinViolations guards the correlation rule against
	// firing on one or two boundary slips.
	correlationMinViolations = 3
)

// =============================================================================
// Metric degradation (e.g. sleep below threshold 3 days running)
// =============================================================================

type metricDegradationRule struct {
	habit datatypes.HabitDef
}

func (r *metricDegradationRule) Name() string {
	return fmt.Sprintf("%s_degradation", r.habit.Key)
}

func (r *metricDegradationRule) Evaluate(records []datatypes.HabitRecord) *datatypes.Pattern {
	if len(records) < consecutiveWindow {
		return nil
	}
	recent := records[:consecutiveWindow]
	dates := make([]string, 0, consecutiveWindow)
	values := make([]float64, 0, consecutiveWindow)
	for _, rec := range recent {
		item, ok := rec.Item(r.habit.Key)
		if !ok || item.Metric == nil || *item.Metric >= r.habit.MetricThreshold {
			return nil
		}
		dates = append(dates, string(rec.Date))
		values = append(values, *item.Metric)
	}
	start, end := window(recent)
	return &datatypes.Pattern{
		Type:     datatypes.PatternSleepDegradation,
		Severity: datatypes.SeverityHigh,
		Evidence: map[string]interface{}{
			"habit":     string(r.habit.Key),
			"dates":     dates,
			"values":    values,
			"threshold": r.habit.MetricThreshold,
			"unit":      r.habit.MetricUnit,
		},
		WindowStart: start,
		WindowEnd:   end,
	}
}

// =============================================================================
// Abandonment (an item not completed 3 days running)
// =============================================================================

type abandonmentRule struct {
	key datatypes.HabitKey
}

func (r *abandonmentRule) Name() string {
	return fmt.Sprintf("%s_abandonment", r.key)
}

func (r *abandonmentRule) Evaluate(records []datatypes.HabitRecord) *datatypes.Pattern {
	if len(records) < consecutiveWindow {
		return nil
	}
	recent := records[:consecutiveWindow]
	dates := make([]string, 0, consecutiveWindow)
	for _, rec := range recent {
		item, ok := rec.Item(r.key)
		if !ok || item.Completed {
			return nil
		}
		dates = append(dates, string(rec.Date))
	}
	start, end := window(recent)
	return &datatypes.Pattern{
		Type:     datatypes.PatternTrainingAbandonment,
		Severity: datatypes.SeverityMedium,
		Evidence: map[string]interface{}{
			"habit":            string(r.key),
			"dates":            dates,
			"consecutive_days": consecutiveWindow,
		},
		WindowStart: start,
		WindowEnd:   end,
	}
}

// =============================================================================
// Score decline (compliance below 70 in 3 consecutive records)
// =============================================================================

type scoreDeclineRule struct{}

func (r *scoreDeclineRule) Name() string { return "score_decline" }

func (r *scoreDeclineRule) Evaluate(records []datatypes.HabitRecord) *datatypes.Pattern {
	if len(records) < consecutiveWindow {
		return nil
	}
	recent := records[:consecutiveWindow]
	dates := make([]string, 0, consecutiveWindow)
	scores := make([]float64, 0, consecutiveWindow)
	for _, rec := range recent {
		if rec.ComplianceScore >= scoreDeclineFloor {
			return nil
		}
		dates = append(dates, string(rec.Date))
		scores = append(scores, rec.ComplianceScore)
	}
	start, end := window(recent)
	return &datatypes.Pattern{
		Type:     datatypes.PatternScoreDecline,
		Severity: datatypes.SeverityMedium,
		Evidence: map[string]interface{}{
			"dates":  dates,
			"scores": scores,
			"floor":  scoreDeclineFloor,
		},
		WindowStart: start,
		WindowEnd:   end,
	}
}

// =============================================================================
// Critical-habit relapse (zero-tolerance item fails >= 3 times in 7 records)
// =============================================================================

type relapseRule struct {
	key datatypes.HabitKey
}

func (r *relapseRule) Name() string { return fmt.Sprintf("%s_relapse", r.key) }

func (r *relapseRule) Evaluate(records []datatypes.HabitRecord) *datatypes.Pattern {
	if len(records) == 0 {
		return nil
	}
	recent := records
	if len(recent) > relapseWindow {
		recent = recent[:relapseWindow]
	}
	failDates := make([]string, 0, relapseThreshold)
	for _, rec := range recent {
		if item, ok := rec.Item(r.key); ok && !item.Completed {
			failDates = append(failDates, string(rec.Date))
		}
	}
	if len(failDates) < relapseThreshold {
		return nil
	}
	start, end := window(recent)
	return &datatypes.Pattern{
		Type:     datatypes.PatternRelapse,
		Severity: datatypes.SeverityCritical,
		Evidence: map[string]interface{}{
			"habit":          string(r.key),
			"failure_dates":  failDates,
			"failures":       len(failDates),
			"window_records": len(recent),
			"threshold":      relapseThreshold,
		},
		WindowStart: start,
		WindowEnd:   end,
	}
}

// =============================================================================
// Boundary correlation (boundary violations co-occurring with sleep or
// training failures)
// =============================================================================

type boundaryCorrelationRule struct {
	boundaryKey datatypes.HabitKey
}

func (r *boundaryCorrelationRule) Name() string { return "boundary_correlation" }

func (r *boundaryCorrelationRule) Evaluate(records []datatypes.HabitRecord) *datatypes.Pattern {
	violationDates := make([]string, 0)
	coincidentDates := make([]string, 0)
	for _, rec := range records {
		boundary, ok := rec.Item(r.boundaryKey)
		if !ok || boundary.Completed {
			continue
		}
		violationDates = append(violationDates, string(rec.Date))
		sleep, sleepOK := rec.Item(datatypes.HabitSleep)
		training, trainOK := rec.Item(datatypes.HabitTraining)
		if (sleepOK && !sleep.Completed) || (trainOK && !training.Completed) {
			coincidentDates = append(coincidentDates, string(rec.Date))
		}
	}
	if len(violationDates) < correlationMinViolations {
		return nil
	}
	fraction := float64(len(coincidentDates)) / float64(len(violationDates))
	if fraction <= correlationFraction {
		return nil
	}
	start, end := window(records)
	return &datatypes.Pattern{
		Type:     datatypes.PatternBoundaryCorrelation,
		Severity: datatypes.SeverityCritical,
		Evidence: map[string]interface{}{
			"violation_dates":  violationDates,
			"coincident_dates": coincidentDates,
			"fraction":         fraction,
			"required":         correlationFraction,
		},
		WindowStart: start,
		WindowEnd:   end,
	}
}
