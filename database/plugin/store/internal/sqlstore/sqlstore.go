// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlstore implements types.DocumentStore on a single gorm table,
// shared by the relational store plugins.
package sqlstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/blinklabs-io/tally/database/types"
)

const likeEscape = "!"

// Document is one stored document row
type Document struct {
	UpdatedAt time.Time
	Tenant    string `gorm:"primaryKey;size:128"`
	Key       string `gorm:"column:doc_key;primaryKey;size:512"`
	Value     []byte
}

func (Document) TableName() string {
	return "tally_document"
}

// Store provides document operations over a gorm connection
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New configures tracing on the connection and migrates the document table
func New(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Store{
		db:     db,
		logger: logger,
	}
	// Configure tracing for GORM
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	logger.Debug(
		"creating table: "+Document{}.TableName(),
		"component", "database",
	)
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, err
	}
	return s, nil
}

// DB returns the underlying gorm handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Get(
	ctx context.Context,
	tenant string,
	key string,
) ([]byte, error) {
	if err := types.ValidateKey(tenant, key); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, types.ErrStoreUnavailable
	}
	var doc Document
	result := s.db.WithContext(ctx).
		Where("tenant = ? AND doc_key = ?", tenant, key).
		First(&doc)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, types.ErrDocumentNotFound
		}
		return nil, result.Error
	}
	return doc.Value, nil
}

func (s *Store) Put(
	ctx context.Context,
	tenant string,
	key string,
	value []byte,
) error {
	if err := types.ValidateKey(tenant, key); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return types.ErrStoreUnavailable
	}
	doc := Document{
		Tenant:    tenant,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "tenant"},
				{Name: "doc_key"},
			},
			DoUpdates: clause.AssignmentColumns(
				[]string{"value", "updated_at"},
			),
		}).
		Create(&doc)
	return result.Error
}

func (s *Store) Delete(
	ctx context.Context,
	tenant string,
	key string,
) error {
	if err := types.ValidateKey(tenant, key); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return types.ErrStoreUnavailable
	}
	result := s.db.WithContext(ctx).
		Where("tenant = ? AND doc_key = ?", tenant, key).
		Delete(&Document{})
	return result.Error
}

// ListKeys returns the keys under prefix in byte order. Collations differ
// between engines, so the match is re-checked and sorted here
func (s *Store) ListKeys(
	ctx context.Context,
	tenant string,
	prefix string,
) ([]string, error) {
	if err := types.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, types.ErrStoreUnavailable
	}
	var keys []string
	result := s.db.WithContext(ctx).
		Model(&Document{}).
		Where(
			"tenant = ? AND doc_key LIKE ? ESCAPE '"+likeEscape+"'",
			tenant,
			EscapeLike(prefix)+"%",
		).
		Pluck("doc_key", &keys)
	if result.Error != nil {
		return nil, result.Error
	}
	ret := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			ret = append(ret, key)
		}
	}
	sort.Strings(ret)
	return ret, nil
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}

// EscapeLike escapes LIKE wildcards so the prefix is matched literally
func EscapeLike(prefix string) string {
	r := strings.NewReplacer(
		likeEscape, likeEscape+likeEscape,
		"%", likeEscape+"%",
		"_", likeEscape+"_",
	)
	return r.Replace(prefix)
}
