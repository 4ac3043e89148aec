// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// StreakState tracks one user's consecutive-day record streak.
//
// # Invariants
//
//   - LongestStreak >= CurrentStreak after every apply.
//   - CurrentStreak increases by exactly 1 per new record whose date is
//     one calendar day after LastRecordDate, and resets to 1 for any
//     larger gap (unless a shield converts a gap of exactly 2).
//   - StreakBeforeReset is snapshotted at the moment a reset occurs and
//     is used only for recovery messaging.
type StreakState struct {
	CurrentStreak     int   `json:"current_streak"`
	LongestStreak     int   `json:"longest_streak"`
	LastRecordDate    *Date `json:"last_record_date,omitempty"`
	TotalRecords      int   `json:"total_records"`
	StreakBeforeReset int   `json:"streak_before_reset"`

	// RecordsSinceReset counts records since the most recent reset,
	// starting at 1 on the reset record itself. Zero means no reset has
	// happened yet. Presentation-only input to recovery messaging.
	RecordsSinceReset int `json:"records_since_reset,omitempty"`
}
