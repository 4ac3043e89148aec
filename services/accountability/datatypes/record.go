// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// HabitKey identifies one tracked habit within a record's item map.
type HabitKey string

// The standard-mode habit set. The authoritative list (including
// prompts and per-mode copy) is loaded from the habit manifest; these
// constants exist so rule code can reference specific items without
// string literals.
const (
	HabitDeepWork  HabitKey = "deep_work"
	HabitTraining  HabitKey = "training"
	HabitSleep     HabitKey = "sleep"
	HabitNutrition HabitKey = "nutrition"
	HabitNoAlcohol HabitKey = "no_alcohol"
	HabitBoundary  HabitKey = "boundaries"
)

// ComplianceLevel is the qualitative band a compliance score falls in.
type ComplianceLevel string

const (
	LevelExcellent ComplianceLevel = "excellent"
	LevelGood      ComplianceLevel = "good"
	LevelWarning   ComplianceLevel = "warning"
	LevelCritical  ComplianceLevel = "critical"
)

// ItemResult is one habit's answer within a daily record.
type ItemResult struct {
	Completed bool     `json:"completed"`
	Metric    *float64 `json:"metric,omitempty"`
	Note      string   `json:"note,omitempty"`
}

// HabitRecord is one user's completed check-in for one calendar day.
//
// # Invariants
//
//   - At most one record exists per user per Date.
//   - ComplianceScore and ComplianceLevel are derived from Items and
//     recomputed whenever Items are corrected.
//   - Corrections mutate the record in place and stamp CorrectedAt;
//     they never change which day counts toward the streak.
type HabitRecord struct {
	UserID            string                  `json:"user_id"`
	Date              Date                    `json:"date"`
	Items             map[HabitKey]ItemResult `json:"items"`
	ComplianceScore   float64                 `json:"compliance_score"`
	ComplianceLevel   ComplianceLevel         `json:"compliance_level"`
	FreeTextResponses []string                `json:"free_text_responses,omitempty"`
	CompletedAt       time.Time               `json:"completed_at"`
	CorrectedAt       *time.Time              `json:"corrected_at,omitempty"`
}

// Item returns the result for key and whether it exists.
func (r *HabitRecord) Item(key HabitKey) (ItemResult, bool) {
	res, ok := r.Items[key]
	return res, ok
}
