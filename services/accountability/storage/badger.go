// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
)

// Key layout. Dates are YYYY-MM-DD and intervention timestamps are
// zero-padded unix nanos, so lexicographic key order is chronological
// and reverse iteration yields newest-first.
const (
	userPrefix         = "user/"
	recordPrefix       = "record/"
	streakPrefix       = "streak/"
	interventionPrefix = "intervention/"
)

// Config holds configuration for the Badger-backed store.
type Config struct {
	// Path is the directory for database files. Required unless
	// InMemory is set.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for
	// testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. Nil disables it.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: durable synchronous
// writes at the given path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns configuration for tests: no disk I/O.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore implements Store over a BadgerDB instance.
//
// # Thread Safety
//
// Safe for concurrent use; Badger transactions provide isolation.
type BadgerStore struct {
	db *badger.DB
}

// Open creates and opens a Badger-backed store.
func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemory opens an in-memory store for testing.
func OpenInMemory() (*BadgerStore, error) {
	return Open(InMemoryConfig())
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func userKey(id string) []byte { return []byte(userPrefix + id) }

func recordKey(userID string, date datatypes.Date) []byte {
	return []byte(recordPrefix + userID + "/" + string(date))
}

func streakKey(userID string) []byte { return []byte(streakPrefix + userID) }

func interventionKey(userID string, at time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s/%019d", interventionPrefix, userID, at.UnixNano()))
}

// getJSON loads and unmarshals one key within a transaction.
func getJSON(txn *badger.Txn, key []byte, out interface{}) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// setJSON marshals and writes one key within a transaction.
func setJSON(txn *badger.Txn, key []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// GetUser implements Store.
func (s *BadgerStore) GetUser(ctx context.Context, id string) (*datatypes.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var user datatypes.User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// PutUser implements Store.
func (s *BadgerStore) PutUser(ctx context.Context, user *datatypes.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, userKey(user.ID), user)
	})
}

// ListUserIDs implements Store.
func (s *BadgerStore) ListUserIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(userPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, key[len(userPrefix):])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return ids, nil
}

// GetRecord implements Store.
func (s *BadgerStore) GetRecord(ctx context.Context, userID string, date datatypes.Date) (*datatypes.HabitRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var record datatypes.HabitRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, recordKey(userID, date), &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// PutRecord implements Store.
func (s *BadgerStore) PutRecord(ctx context.Context, record *datatypes.HabitRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, recordKey(record.UserID, record.Date), record)
	})
}

// ListRecentRecords implements Store. Records come back newest first.
func (s *BadgerStore) ListRecentRecords(ctx context.Context, userID string, limit int) ([]datatypes.HabitRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(recordPrefix + userID + "/")
	records := make([]datatypes.HabitRecord, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		// In reverse mode the seek key must sort after every real key
		// under the prefix.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.Valid() && len(records) < limit; it.Next() {
			var record datatypes.HabitRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list recent records for %s: %w", userID, err)
	}
	return records, nil
}

// GetStreak implements Store.
func (s *BadgerStore) GetStreak(ctx context.Context, userID string) (datatypes.StreakState, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.StreakState{}, err
	}
	var streak datatypes.StreakState
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, streakKey(userID), &streak)
	})
	if errors.Is(err, ErrNotFound) {
		return datatypes.StreakState{}, nil
	}
	if err != nil {
		return datatypes.StreakState{}, err
	}
	return streak, nil
}

// PutRecordAndStreak implements Store's one required atomic operation.
func (s *BadgerStore) PutRecordAndStreak(ctx context.Context, record *datatypes.HabitRecord, streak datatypes.StreakState, user *datatypes.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, recordKey(record.UserID, record.Date), record); err != nil {
			return err
		}
		if err := setJSON(txn, streakKey(record.UserID), streak); err != nil {
			return err
		}
		if user != nil {
			if err := setJSON(txn, userKey(user.ID), user); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendIntervention implements Store.
func (s *BadgerStore) AppendIntervention(ctx context.Context, intervention *datatypes.Intervention) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, interventionKey(intervention.UserID, intervention.SentAt), intervention)
	})
}

// ListRecentInterventions implements Store. Results are newest first;
// iteration stops at the first entry older than since.
func (s *BadgerStore) ListRecentInterventions(ctx context.Context, userID string, since time.Time) ([]datatypes.Intervention, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(interventionPrefix + userID + "/")
	out := make([]datatypes.Intervention, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.Valid(); it.Next() {
			var iv datatypes.Intervention
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &iv)
			})
			if err != nil {
				return err
			}
			if iv.SentAt.Before(since) {
				break
			}
			out = append(out, iv)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list recent interventions for %s: %w", userID, err)
	}
	return out, nil
}
