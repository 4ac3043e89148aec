// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scoring contains the two pure computation engines of the
// accountability service: the compliance scorer and the streak engine.
//
// Both are side-effect free. The check-in session manager calls them
// during its completion procedure and persists the results in a single
// atomic store transaction.
package scoring

import "github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"

// Score maps a habit-completion map to a 0-100 compliance score.
//
// # Description
//
// The score is 100 * completed / total, where total is the size of the
// record's own item map. The denominator deliberately comes from the
// map rather than a constant: the habit set grew from 5 to 6 items in
// an earlier schema revision, and records written at the old size must
// keep scoring correctly at their own denominator.
//
// An empty map scores 0.
func Score(items map[datatypes.HabitKey]datatypes.ItemResult) float64 {
	if len(items) == 0 {
		return 0
	}
	completed := 0
	for _, res := range items {
		if res.Completed {
			completed++
		}
	}
	return 100 * float64(completed) / float64(len(items))
}

// Level maps a compliance score to its qualitative band. Band
// boundaries are inclusive on the lower bound.
func Level(score float64) datatypes.ComplianceLevel {
	switch {
	case score >= 90:
		return datatypes.LevelExcellent
	case score >= 80:
		return datatypes.LevelGood
	case score >= 60:
		return datatypes.LevelWarning
	default:
		return datatypes.LevelCritical
	}
}
