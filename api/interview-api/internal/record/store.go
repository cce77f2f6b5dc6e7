// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_record persists interview outcomes. The primary store is
// a sqlite database; when a write fails, the orchestrator falls back to a
// local JSON export so no completed interview is ever silently lost.
package internal_record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/potentialai/pkg/commons"
)

// ErrPersistence wraps any durable-store failure.
var ErrPersistence = errors.New("persistence error")

// Store is the durable interview record store.
type Store interface {
	Save(ctx context.Context, record *InterviewRecord) error
	GetBySession(ctx context.Context, sessionID string) (*InterviewRecord, error)
	ListByCandidate(ctx context.Context, candidateID string) ([]*InterviewRecord, error)
}

type sqliteStore struct {
	logger commons.Logger
	db     *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates the
// record schema.
func NewSQLiteStore(logger commons.Logger, path string) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrPersistence, err)
	}
	if err := db.AutoMigrate(&InterviewRecord{}); err != nil {
		return nil, fmt.Errorf("%w: migrate schema: %v", ErrPersistence, err)
	}
	return &sqliteStore{logger: logger, db: db}, nil
}

func (store *sqliteStore) Save(ctx context.Context, record *InterviewRecord) error {
	start := time.Now()
	if record.SessionId == "" {
		return fmt.Errorf("%w: record has no session id", ErrPersistence)
	}
	if err := store.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("%w: save record: %v", ErrPersistence, err)
	}
	store.logger.Benchmark("InterviewStore.Save", time.Since(start))
	return nil
}

func (store *sqliteStore) GetBySession(ctx context.Context, sessionID string) (*InterviewRecord, error) {
	var record InterviewRecord
	err := store.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no record for session %s", ErrPersistence, sessionID)
		}
		return nil, fmt.Errorf("%w: get record: %v", ErrPersistence, err)
	}
	return &record, nil
}

func (store *sqliteStore) ListByCandidate(ctx context.Context, candidateID string) ([]*InterviewRecord, error) {
	var records []*InterviewRecord
	err := store.db.WithContext(ctx).
		Where("candidate_id = ?", candidateID).
		Order("created_date desc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %v", ErrPersistence, err)
	}
	return records, nil
}

// ExportLocal writes the record as pretty JSON next to the session artifacts.
// It is the fallback path when the store is unreachable.
func ExportLocal(dir string, record *InterviewRecord) (string, error) {
	if record.SessionId == "" {
		return "", fmt.Errorf("%w: record has no session id", ErrPersistence)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: marshal record: %v", ErrPersistence, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("interview_record_%s.json", record.SessionId))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write export: %v", ErrPersistence, err)
	}
	return path, nil
}
