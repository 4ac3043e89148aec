// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package patterns

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
)

// fakeSource serves canned users and records.
type fakeSource struct {
	records map[string][]datatypes.HabitRecord
}

func (f *fakeSource) ListUserIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.records))
	for id := range f.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeSource) GetUser(_ context.Context, id string) (*datatypes.User, error) {
	return datatypes.NewUser(id), nil
}

func (f *fakeSource) ListRecentRecords(_ context.Context, userID string, limit int) ([]datatypes.HabitRecord, error) {
	recs := f.records[userID]
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// countingSink records dispatches and optionally suppresses everything.
type countingSink struct {
	mu         sync.Mutex
	dispatched []datatypes.Pattern
	suppress   bool
}

func (s *countingSink) Dispatch(_ context.Context, _ *datatypes.User, p datatypes.Pattern) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched = append(s.dispatched, p)
	return !s.suppress, nil
}

func (s *countingSink) CheckGhosting(_ context.Context, _ *datatypes.User) (bool, error) {
	return false, nil
}

func badSleepRecords(t *testing.T) []datatypes.HabitRecord {
	t.Helper()
	specs := make([]recordSpec, 5)
	for i := range specs {
		specs[i] = perfectDay()
	}
	for i := 0; i < 3; i++ {
		specs[i].sleepHours = 5
	}
	return makeRecords(t, specs)
}

func perfectRecords(t *testing.T) []datatypes.HabitRecord {
	t.Helper()
	specs := make([]recordSpec, 7)
	for i := range specs {
		specs[i] = perfectDay()
	}
	return makeRecords(t, specs)
}

func TestDetector_Run(t *testing.T) {
	source := &fakeSource{records: map[string][]datatypes.HabitRecord{
		"alice": badSleepRecords(t),
		"bob":   perfectRecords(t),
	}}
	sink := &countingSink{}
	d := NewDetector(source, sink, Registry(datatypes.DefaultManifest()), DefaultConfig())

	result, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.UsersScanned)
	assert.Equal(t, 1, result.PatternsFound)
	assert.Equal(t, 1, result.InterventionsSent)
	require.Len(t, sink.dispatched, 1)
	assert.Equal(t, datatypes.PatternSleepDegradation, sink.dispatched[0].Type)
}

// TestDetector_RerunIsIdempotentModuloSuppression verifies the
// double-fire contract: the second run finds the same patterns but
// sends nothing once the sink's cool-down suppresses them.
func TestDetector_RerunIsIdempotentModuloSuppression(t *testing.T) {
	source := &fakeSource{records: map[string][]datatypes.HabitRecord{
		"alice": badSleepRecords(t),
	}}
	sink := &countingSink{}
	d := NewDetector(source, sink, Registry(datatypes.DefaultManifest()), DefaultConfig())

	first, err := d.Run(context.Background())
	require.NoError(t, err)

	sink.suppress = true
	second, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.PatternsFound, second.PatternsFound)
	assert.Equal(t, 1, first.InterventionsSent)
	assert.Equal(t, 0, second.InterventionsSent)
}

func TestDetector_ScanUserReturnsAllFiringRules(t *testing.T) {
	// Break sleep, training and score at once.
	specs := make([]recordSpec, 7)
	for i := range specs {
		specs[i] = perfectDay()
	}
	for i := 0; i < 3; i++ {
		specs[i].sleepHours = 4
		specs[i].training = false
		specs[i].deepWork = false
		specs[i].nutrition = false
	}
	source := &fakeSource{records: map[string][]datatypes.HabitRecord{
		"alice": makeRecords(t, specs),
	}}
	d := NewDetector(source, &countingSink{}, Registry(datatypes.DefaultManifest()), DefaultConfig())

	found, err := d.ScanUser(context.Background(), "alice")
	require.NoError(t, err)

	types := make(map[datatypes.PatternType]bool)
	for _, p := range found {
		types[p.Type] = true
	}
	assert.True(t, types[datatypes.PatternSleepDegradation])
	assert.True(t, types[datatypes.PatternTrainingAbandonment])
	assert.True(t, types[datatypes.PatternScoreDecline])
}
