// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/HydroGuard/services/pipeline"
)

// Key layout. History records are keyed by RFC3339Nano timestamp so a
// prefix iteration yields them in time order; the alertid index maps an
// alert id back to its primary key for resolution.
const (
	prefixReading = "reading|"
	prefixValve   = "valve|"
	prefixAlert   = "alert|"
	prefixAlertID = "alertid|"
)

// keyTimeFormat is RFC3339 with a fixed-width 9-digit fraction. RFC3339Nano
// trims trailing zeros, which breaks lexicographic time ordering of keys.
const keyTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Config holds configuration for the embedded store.
type Config struct {
	// Path is the directory for database files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger is the logger for database operations.
	// If nil, the engine's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: persistent, synchronous writes.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests: in-memory, async writes.
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

// BadgerStore implements Store on an embedded BadgerDB instance.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions provide
// the isolation.
type BadgerStore struct {
	db *badger.DB
}

// Open creates and opens the store with the given configuration.
// Caller must call Close() when done.
func Open(cfg Config) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("path is required for persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

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

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// historyKey builds a timestamp-ordered key under a prefix.
func historyKey(prefix string, ts time.Time, id string) []byte {
	return []byte(prefix + ts.UTC().Format(keyTimeFormat) + "|" + id)
}

// AppendReading persists one sensor reading.
func (s *BadgerStore) AppendReading(ctx context.Context, rec ReadingRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	return s.put(ctx, historyKey(prefixReading, rec.RecordedAt, rec.ID), rec)
}

// AppendValveAction persists one actuation outcome.
func (s *BadgerStore) AppendValveAction(ctx context.Context, rec ValveActionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = time.Now().UTC()
	}
	return s.put(ctx, historyKey(prefixValve, rec.IssuedAt, rec.ID), rec)
}

// AppendAlert persists one alert and indexes it by id for resolution.
func (s *BadgerStore) AppendAlert(ctx context.Context, rec AlertRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RaisedAt.IsZero() {
		rec.RaisedAt = time.Now().UTC()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	primary := historyKey(prefixAlert, rec.RaisedAt, rec.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, value); err != nil {
			return err
		}
		return txn.Set([]byte(prefixAlertID+rec.ID), primary)
	})
}

// AppendWorkflow persists the constituent records of one completed run:
// the reading, every actuation result, and an alert when the level was
// above normal.
func (s *BadgerStore) AppendWorkflow(ctx context.Context, result *pipeline.WorkflowResult) error {
	reading := ReadingRecord{
		ID:         uuid.NewString(),
		SensorID:   result.Reading.SensorID,
		Location:   result.Reading.Location,
		WaterLevel: result.Reading.WaterLevel,
		FlowRate:   result.Reading.FlowRate,
		RecordedAt: result.Reading.CapturedAt,
	}
	if err := s.AppendReading(ctx, reading); err != nil {
		return fmt.Errorf("append reading: %w", err)
	}

	actionByValve := make(map[string]pipeline.RedirectionAction, len(result.Actions))
	for _, a := range result.Actions {
		actionByValve[a.ValveID] = a
	}
	for _, res := range result.Results {
		action := actionByValve[res.ValveID]
		rec := ValveActionRecord{
			ID:          uuid.NewString(),
			RunID:       result.RunID,
			ValveID:     res.ValveID,
			Action:      string(res.Kind),
			Percentage:  action.Percentage,
			Destination: action.DestinationID,
			Status:      res.Status,
			Error:       res.Err,
			IssuedAt:    res.IssuedAt,
		}
		if err := s.AppendValveAction(ctx, rec); err != nil {
			return fmt.Errorf("append valve action: %w", err)
		}
	}

	if result.Analysis.Level > pipeline.LevelNormal {
		alert := AlertRecord{
			ID:         uuid.NewString(),
			RunID:      result.RunID,
			SensorID:   result.Analysis.SensorID,
			Location:   result.Analysis.Location,
			Level:      result.Analysis.LevelName,
			WaterLevel: result.Analysis.WaterLevel,
			Message:    result.Error,
			RaisedAt:   result.CompletedAt,
		}
		if err := s.AppendAlert(ctx, alert); err != nil {
			return fmt.Errorf("append alert: %w", err)
		}
	}
	return nil
}

// ReadingsSince implements Store.
func (s *BadgerStore) ReadingsSince(ctx context.Context, cutoff time.Time) ([]ReadingRecord, error) {
	var out []ReadingRecord
	err := s.scanSince(ctx, prefixReading, cutoff, func(value []byte) error {
		var rec ReadingRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// ValveActionsSince implements Store.
func (s *BadgerStore) ValveActionsSince(ctx context.Context, cutoff time.Time) ([]ValveActionRecord, error) {
	var out []ValveActionRecord
	err := s.scanSince(ctx, prefixValve, cutoff, func(value []byte) error {
		var rec ValveActionRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// UnresolvedAlerts implements Store.
func (s *BadgerStore) UnresolvedAlerts(ctx context.Context) ([]AlertRecord, error) {
	var out []AlertRecord
	err := s.scanSince(ctx, prefixAlert, time.Time{}, func(value []byte) error {
		var rec AlertRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		if !rec.Resolved {
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// ResolveAlert implements Store.
func (s *BadgerStore) ResolveAlert(ctx context.Context, alertID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		idxItem, err := txn.Get([]byte(prefixAlertID + alertID))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		primary, err := idxItem.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err := txn.Get(primary)
		if err != nil {
			return err
		}
		var rec AlertRecord
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &rec)
		}); err != nil {
			return err
		}
		if rec.Resolved {
			return nil
		}
		rec.Resolved = true
		rec.ResolvedAt = time.Now().UTC()

		value, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(primary, value)
	})
}

// put writes one marshaled record under key.
func (s *BadgerStore) put(ctx context.Context, key []byte, record any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// scanSince iterates a prefix in key (time) order, invoking visit for every
// record whose timestamp segment is at or after cutoff.
func (s *BadgerStore) scanSince(ctx context.Context, prefix string, cutoff time.Time, visit func(value []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	seek := []byte(prefix)
	if !cutoff.IsZero() {
		// Fixed-width keys sort lexicographically by time, so seeking to
		// the cutoff timestamp skips everything older.
		seek = []byte(prefix + cutoff.UTC().Format(keyTimeFormat))
	}
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(visit); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ Store = (*BadgerStore)(nil)
