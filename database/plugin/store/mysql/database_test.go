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

package mysql_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/database/plugin/store/mysql"
	"github.com/blinklabs-io/tally/internal/test/conformance"
)

func TestDSNFromOptions(t *testing.T) {
	s := mysql.New(
		mysql.WithHost("db.example"),
		mysql.WithPort(3307),
		mysql.WithUser("tally"),
		mysql.WithPassword("secret"),
		mysql.WithDatabase("games"),
	)
	dsn := s.DSN()
	assert.Contains(t, dsn, "tally:secret@tcp(db.example:3307)/games")
	assert.Contains(t, dsn, "parseTime=true")
}

func TestDSNTLS(t *testing.T) {
	s := mysql.New(mysql.WithTLS("skip-verify"))
	assert.Contains(t, s.DSN(), "tls=skip-verify")
}

func TestDSNOverride(t *testing.T) {
	s := mysql.New(mysql.WithDSN("u:p@tcp(h:3306)/db"))
	assert.Equal(t, "u:p@tcp(h:3306)/db", s.DSN())
}

func TestStoreMysqlConformance(t *testing.T) {
	dsn := os.Getenv("TALLY_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TALLY_TEST_MYSQL_DSN not set")
	}
	store := mysql.New(mysql.WithDSN(dsn))
	require.NoError(t, store.Start())
	defer store.Close()
	require.NoError(t, store.DB().Exec("DELETE FROM tally_document").Error)
	conformance.RunDocumentStoreTests(t, store)
}
