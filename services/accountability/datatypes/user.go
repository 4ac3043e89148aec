// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// Tier selects the rate-limit policy applied to a user's requests.
type Tier string

const (
	TierFree      Tier = "free"
	TierStandard  Tier = "standard"
	TierExpensive Tier = "expensive"
	TierAIPowered Tier = "ai_powered"
)

// User holds per-user settings and the small counters the engine needs
// outside of records and streak state.
type User struct {
	ID   string `json:"id"`
	Mode string `json:"mode"`

	// Shields is the monthly-replenished counter that can convert a
	// single missed day (gap of exactly 2) into a streak increment.
	Shields          int       `json:"shields"`
	ShieldsRenewedAt time.Time `json:"shields_renewed_at"`

	// Quick-variant weekly quota tracking. WeekStart is the Monday of
	// the week the counter belongs to; the counter resets lazily when a
	// new week is observed at session start.
	QuickCheckInsThisWeek int  `json:"quick_checkins_this_week"`
	WeekStart             Date `json:"week_start,omitempty"`

	// PartnerID links an accountability partner for ghosting alerts.
	PartnerID string `json:"partner_id,omitempty"`

	Admin bool `json:"admin,omitempty"`
	Tier  Tier `json:"tier,omitempty"`
}

// NewUser returns a user with default settings for first contact.
func NewUser(id string) *User {
	return &User{
		ID:               id,
		Mode:             "standard",
		Shields:          1,
		ShieldsRenewedAt: time.Now(),
		Tier:             TierStandard,
	}
}
