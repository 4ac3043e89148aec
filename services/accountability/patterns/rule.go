// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package patterns detects multi-day negative trends over a user's
// recent habit records.
//
// Detection is deterministic threshold rules, not statistics: every
// rule requires three or more data points so that a single bad day (a
// sick day, a vacation) never fires an alert. Each rule is independent
// and individually testable; the scan loop is a plain iteration over
// the rule registry.
package patterns

import "github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"

// Rule evaluates one detection rule over a user's recent records.
//
// Records are ordered newest-first. A rule returns nil when it does not
// fire; when it fires, the returned Pattern must embed the triggering
// dates and values in Evidence; a rule never claims "pattern found"
// without the data.
type Rule interface {
	Name() string
	Evaluate(records []datatypes.HabitRecord) *datatypes.Pattern
}

// Registry returns the active rule set for a habit manifest.
//
// Rules that depend on a specially-flagged habit (metric,
// zero-tolerance, boundary) are only registered when the manifest
// defines such a habit.
func Registry(manifest *datatypes.Manifest) []Rule {
	rules := make([]Rule, 0, 5)
	for _, h := range manifest.Habits {
		if h.Metric {
			rules = append(rules, &metricDegradationRule{habit: h})
		}
	}
	rules = append(rules, &abandonmentRule{key: datatypes.HabitTraining})
	rules = append(rules, &scoreDeclineRule{})
	for _, h := range manifest.Habits {
		if h.ZeroTolerance {
			rules = append(rules, &relapseRule{key: h.Key})
		}
	}
	if boundary, ok := boundaryHabit(manifest); ok {
		rules = append(rules, &boundaryCorrelationRule{boundaryKey: boundary.Key})
	}
	return rules
}

func boundaryHabit(manifest *datatypes.Manifest) (datatypes.HabitDef, bool) {
	for _, h := range manifest.Habits {
		if h.Boundary {
			return h, true
		}
	}
	return datatypes.HabitDef{}, false
}

// window returns the date range [oldest, newest] covered by records
// (newest-first order).
func window(records []datatypes.HabitRecord) (datatypes.Date, datatypes.Date) {
	if len(records) == 0 {
		return "", ""
	}
	return records[len(records)-1].Date, records[0].Date
}
