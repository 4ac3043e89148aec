// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage persists the accountability domain: users, daily
// habit records, streak state, and the intervention audit log.
//
// BadgerDB provides local embedded storage with low-latency access.
// The one operation with an atomicity requirement is
// PutRecordAndStreak: a crash must never leave streak state referencing
// a day with no corresponding record, or vice versa, so both writes
// share a single Badger transaction.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
)

// Sentinel errors for the storage package.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

// Store is the persistence boundary the rest of the service depends
// on. Implementations must be safe for concurrent use.
type Store interface {
	// GetUser loads a user. ErrNotFound if the user has never been seen.
	GetUser(ctx context.Context, id string) (*datatypes.User, error)

	// PutUser upserts a user.
	PutUser(ctx context.Context, user *datatypes.User) error

	// ListUserIDs returns every known user ID.
	ListUserIDs(ctx context.Context) ([]string, error)

	// GetRecord loads a user's record for one calendar date.
	// ErrNotFound if no check-in completed that day.
	GetRecord(ctx context.Context, userID string, date datatypes.Date) (*datatypes.HabitRecord, error)

	// PutRecord upserts a record in place. Used by the correction path;
	// new records go through PutRecordAndStreak.
	PutRecord(ctx context.Context, record *datatypes.HabitRecord) error

	// ListRecentRecords returns up to limit records, newest first.
	ListRecentRecords(ctx context.Context, userID string, limit int) ([]datatypes.HabitRecord, error)

	// GetStreak loads a user's streak state. A user with no records yet
	// gets the zero state, not ErrNotFound.
	GetStreak(ctx context.Context, userID string) (datatypes.StreakState, error)

	// PutRecordAndStreak writes a completed record, the updated streak
	// state, and (when non-nil) the mutated user in one atomic
	// transaction.
	PutRecordAndStreak(ctx context.Context, record *datatypes.HabitRecord, streak datatypes.StreakState, user *datatypes.User) error

	// AppendIntervention appends to a user's intervention log.
	AppendIntervention(ctx context.Context, intervention *datatypes.Intervention) error

	// ListRecentInterventions returns interventions sent at or after
	// since, newest first.
	ListRecentInterventions(ctx context.Context, userID string, since time.Time) ([]datatypes.Intervention, error)

	// Close releases the underlying database.
	Close() error
}
