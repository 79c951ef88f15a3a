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

package mysql

import (
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blinklabs-io/tally/database/plugin/store/internal/sqlstore"
)

// StoreMysql stores documents in MySQL
type StoreMysql struct {
	*sqlstore.Store
	logger   *slog.Logger
	host     string
	user     string
	password string
	database string
	tls      string
	dsn      string
	port     uint
}

func New(opts ...StoreMysqlOptionFunc) *StoreMysql {
	s := &StoreMysql{}
	for _, opt := range opts {
		opt(s)
	}
	if s.host == "" {
		s.host = "localhost"
	}
	if s.port == 0 {
		s.port = 3306
	}
	if s.user == "" {
		s.user = "root"
	}
	if s.database == "" {
		s.database = "tally"
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return s
}

// DSN returns the connection string used by Start
func (s *StoreMysql) DSN() string {
	if dsn := strings.TrimSpace(s.dsn); dsn != "" {
		return dsn
	}
	cfg := mysql.NewConfig()
	cfg.User = s.user
	cfg.Passwd = s.password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(s.host, strconv.FormatUint(uint64(s.port), 10))
	cfg.DBName = s.database
	cfg.ParseTime = true
	cfg.AllowNativePasswords = true
	if s.tls != "" {
		cfg.Params = map[string]string{"tls": s.tls}
	}
	return cfg.FormatDSN()
}

// Start implements the plugin.Plugin interface
func (s *StoreMysql) Start() error {
	if s.Store != nil {
		return nil
	}
	db, err := gorm.Open(
		gormmysql.Open(s.DSN()),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
		},
	)
	if err != nil {
		return err
	}
	s.logger.Info(
		"connected to mysql document store",
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
func (s *StoreMysql) Stop() error {
	return s.Close()
}

func (s *StoreMysql) Close() error {
	if s.Store == nil {
		return nil
	}
	err := s.Store.Close()
	s.Store = nil
	return err
}
