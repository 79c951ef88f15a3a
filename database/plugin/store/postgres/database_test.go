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

package postgres_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/database/plugin/store/postgres"
	"github.com/blinklabs-io/tally/internal/test/conformance"
)

func TestDSNFromOptions(t *testing.T) {
	s := postgres.New(
		postgres.WithHost("db.example"),
		postgres.WithPort(6543),
		postgres.WithUser("tally"),
		postgres.WithPassword("secret"),
		postgres.WithDatabase("games"),
		postgres.WithTimeZone("UTC"),
	)
	assert.Equal(
		t,
		"host=db.example user=tally password=secret dbname=games port=6543 sslmode=disable TimeZone=UTC",
		s.DSN(),
	)
}

func TestDSNOverride(t *testing.T) {
	s := postgres.New(
		postgres.WithHost("ignored"),
		postgres.WithDSN("  postgres://u:p@h:5432/db  "),
	)
	assert.Equal(t, "postgres://u:p@h:5432/db", s.DSN())
}

func TestStorePostgresConformance(t *testing.T) {
	dsn := os.Getenv("TALLY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TALLY_TEST_POSTGRES_DSN not set")
	}
	store := postgres.New(postgres.WithDSN(dsn))
	require.NoError(t, store.Start())
	defer store.Close()
	require.NoError(t, store.DB().Exec("DELETE FROM tally_document").Error)
	conformance.RunDocumentStoreTests(t, store)
}
