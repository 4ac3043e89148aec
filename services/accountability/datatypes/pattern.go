// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// PatternType identifies which detection rule produced a pattern.
type PatternType string

const (
	PatternSleepDegradation    PatternType = "sleep_degradation"
	PatternTrainingAbandonment PatternType = "training_abandonment"
	PatternScoreDecline        PatternType = "score_decline"
	PatternRelapse             PatternType = "critical_relapse"
	PatternBoundaryCorrelation PatternType = "boundary_correlation"
	PatternGhosting            PatternType = "ghosting"
)

// Severity ranks how urgently a pattern needs intervention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Pattern is one detected negative trend over a user's recent records.
//
// Evidence always carries the specific dates and values that triggered
// the rule; a detector must never report a pattern without its
// triggering data.
type Pattern struct {
	Type        PatternType            `json:"type"`
	Severity    Severity               `json:"severity"`
	Evidence    map[string]interface{} `json:"evidence"`
	WindowStart Date                   `json:"window_start"`
	WindowEnd   Date                   `json:"window_end"`
}

// Intervention is the immutable audit record of one dispatched alert.
//
// It doubles as the delivered message and as the recency log the
// dispatcher consults to suppress repeat alerts of the same type
// within the cool-down window.
type Intervention struct {
	UserID      string                 `json:"user_id"`
	PatternType PatternType            `json:"pattern_type"`
	Severity    Severity               `json:"severity"`
	Message     string                 `json:"message"`
	SentAt      time.Time              `json:"sent_at"`
	Evidence    map[string]interface{} `json:"evidence"`
}
