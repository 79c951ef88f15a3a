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

package postgres

import (
	"io"
	"log/slog"
	"strconv"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blinklabs-io/tally/database/plugin/store/internal/sqlstore"
)

// StorePostgres stores documents in Postgres
type StorePostgres struct {
	*sqlstore.Store
	logger   *slog.Logger
	host     string
	user     string
	password string
	database string
	sslMode  string
	timeZone string
	dsn      string
	port     uint
}

func New(opts ...StorePostgresOptionFunc) *StorePostgres {
	s := &StorePostgres{}
	for _, opt := range opts {
		opt(s)
	}
	// Set defaults after options are applied
	if s.host == "" {
		s.host = "localhost"
	}
	if s.port == 0 {
		s.port = 5432
	}
	if s.user == "" {
		s.user = "postgres"
	}
	if s.database == "" {
		s.database = "tally"
	}
	if s.sslMode == "" {
		s.sslMode = "disable"
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return s
}

// DSN returns the connection string used by Start
func (s *StorePostgres) DSN() string {
	if dsn := strings.TrimSpace(s.dsn); dsn != "" {
		return dsn
	}
	parts := []string{
		"host=" + s.host,
		"user=" + s.user,
		"password=" + s.password,
		"dbname=" + s.database,
		"port=" + strconv.FormatUint(uint64(s.port), 10),
		"sslmode=" + s.sslMode,
	}
	if s.timeZone != "" {
		parts = append(parts, "TimeZone="+s.timeZone)
	}
	return strings.Join(parts, " ")
}

// Start implements the plugin.Plugin interface
func (s *StorePostgres) Start() error {
	if s.Store != nil {
		return nil
	}
	db, err := gorm.Open(
		postgres.Open(s.DSN()),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return err
	}
	s.logger.Info(
		"connected to postgres document store",
		"component", "database",
		"host", s.host,
		"port", s.port,
		"database", s.database,
	)
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
func (s *StorePostgres) Stop() error {
	return s.Close()
}

func (s *StorePostgres) Close() error {
	if s.Store == nil {
		return nil
	}
	err := s.Store.Close()
	s.Store = nil
	return err
}
