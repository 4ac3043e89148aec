// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the domain entities for the accountability
// service: daily habit records, streak state, detected patterns, and
// dispatched interventions.
//
// All entities are plain structs with JSON tags; the storage layer
// persists them as JSON values in BadgerDB. Dates are calendar dates in
// the user's local day, not instants, so they are modeled as YYYY-MM-DD
// strings rather than time.Time.
package datatypes

import (
	"fmt"
	"time"
)

// dateLayout is the canonical calendar-date format (user-local day).
const dateLayout = "2006-01-02"

// Date is a calendar date in YYYY-MM-DD form.
//
// A Date identifies the user-local day a HabitRecord belongs to. Using
// a string keeps records naturally ordered under Badger's lexicographic
// key iteration.
type Date string

// DateOf returns the calendar date of t.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// ParseDate validates s as a calendar date.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(s), nil
}

// Time returns the date at midnight UTC. Panics never; an invalid Date
// returns the zero time and false.
func (d Date) Time() (time.Time, bool) {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DaysBetween returns b - a in whole calendar days. Returns 0 and false
// if either date is invalid.
func DaysBetween(a, b Date) (int, bool) {
	ta, okA := a.Time()
	tb, okB := b.Time()
	if !okA || !okB {
		return 0, false
	}
	return int(tb.Sub(ta).Hours() / 24), true
}

// AddDays returns the date n calendar days after d.
func (d Date) AddDays(n int) Date {
	t, ok := d.Time()
	if !ok {
		return d
	}
	return DateOf(t.AddDate(0, 0, n))
}

// String implements fmt.Stringer.
func (d Date) String() string { return string(d) }
