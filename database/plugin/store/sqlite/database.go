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

package sqlite

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blinklabs-io/tally/database/plugin/store/internal/sqlstore"
)

type StoreSqliteOptionFunc func(*StoreSqlite)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) StoreSqliteOptionFunc {
	return func(s *StoreSqlite) {
		s.logger = logger
	}
}

// WithDataDir specifies the data directory. An empty value uses a private
// in-memory database
func WithDataDir(dataDir string) StoreSqliteOptionFunc {
	return func(s *StoreSqlite) {
		s.dataDir = dataDir
	}
}

// StoreSqlite stores documents in a SQLite database
type StoreSqlite struct {
	*sqlstore.Store
	logger  *slog.Logger
	dataDir string
}

func New(opts ...StoreSqliteOptionFunc) *StoreSqlite {
	s := &StoreSqlite{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return s
}

// Start implements the plugin.Plugin interface
func (s *StoreSqlite) Start() error {
	if s.Store != nil {
		return nil
	}
	var dsn string
	if s.dataDir == "" {
		// Each in-memory store gets its own named database so that separate
		// instances in one process don't share documents
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(s.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(s.dataDir, fs.ModePerm); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		dbPath := filepath.Join(s.dataDir, "tally.sqlite")
		// WAL journal mode, increase cache size to 8MB (from 2MB)
		connOpts := "_pragma=journal_mode(WAL)&_pragma=cache_size(-8000)"
		dsn = fmt.Sprintf("file:%s?%s", dbPath, connOpts)
	}
	db, err := gorm.Open(
		sqlite.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return err
	}
	store, err := sqlstore.New(db, s.logger)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return err
	}
	s.Store = store
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *StoreSqlite) Stop() error {
	return s.Close()
}

func (s *StoreSqlite) Close() error {
	if s.Store == nil {
		return nil
	}
	err := s.Store.Close()
	s.Store = nil
	return err
}
