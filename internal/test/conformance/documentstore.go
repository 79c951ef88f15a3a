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

// Package conformance provides a behavioral test suite that every
// types.DocumentStore implementation is expected to pass.
package conformance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/database/types"
)

// RunDocumentStoreTests exercises get/put/delete/listKeys semantics against
// a started store. The store must be empty for the tenants used here
func RunDocumentStoreTests(t *testing.T, store types.DocumentStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, "tenant-a", "Voting/missing/Info")
		require.ErrorIs(t, err, types.ErrDocumentNotFound)
	})

	t.Run("PutGetOverwrite", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "tenant-a", "Voting/i1/Info", []byte(`{"name":"day"}`)))
		got, err := store.Get(ctx, "tenant-a", "Voting/i1/Info")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"day"}`, string(got))

		require.NoError(t, store.Put(ctx, "tenant-a", "Voting/i1/Info", []byte(`{"name":"night"}`)))
		got, err = store.Get(ctx, "tenant-a", "Voting/i1/Info")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"night"}`, string(got))
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "tenant-b", "Voting/i1/Info", []byte(`{}`)))
		_, err := store.Get(ctx, "tenant-c", "Voting/i1/Info")
		require.ErrorIs(t, err, types.ErrDocumentNotFound)
	})

	t.Run("ListKeysSortedUnderPrefix", func(t *testing.T) {
		for _, key := range []string{
			"Voting/i2/Votes/zz",
			"Voting/i2/Votes/aa",
			"Voting/i2/Voters/Voters/v1",
			"Voting/i20/Votes/bb",
		} {
			require.NoError(t, store.Put(ctx, "tenant-d", key, []byte(`{}`)))
		}
		keys, err := store.ListKeys(ctx, "tenant-d", "Voting/i2/Votes/")
		require.NoError(t, err)
		assert.Equal(t, []string{"Voting/i2/Votes/aa", "Voting/i2/Votes/zz"}, keys)

		keys, err = store.ListKeys(ctx, "tenant-d", "Voting/i2/")
		require.NoError(t, err)
		assert.Len(t, keys, 3)

		keys, err = store.ListKeys(ctx, "tenant-d", "Nothing/")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("ListKeysLiteralPrefix", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "tenant-e", "a_b%c*d/x", []byte(`{}`)))
		require.NoError(t, store.Put(ctx, "tenant-e", "aXbYc/x", []byte(`{}`)))
		keys, err := store.ListKeys(ctx, "tenant-e", "a_b%c*")
		require.NoError(t, err)
		assert.Equal(t, []string{"a_b%c*d/x"}, keys)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "tenant-f", "Voting/i3/Round", []byte(`{}`)))
		require.NoError(t, store.Delete(ctx, "tenant-f", "Voting/i3/Round"))
		_, err := store.Get(ctx, "tenant-f", "Voting/i3/Round")
		require.ErrorIs(t, err, types.ErrDocumentNotFound)
		require.NoError(t, store.Delete(ctx, "tenant-f", "Voting/i3/Round"))
	})

	t.Run("InvalidArguments", func(t *testing.T) {
		require.ErrorIs(t, store.Put(ctx, "", "k", []byte(`{}`)), types.ErrInvalidTenant)
		require.ErrorIs(t, store.Put(ctx, "t", "", []byte(`{}`)), types.ErrInvalidKey)
		_, err := store.ListKeys(ctx, "bad/tenant", "")
		require.ErrorIs(t, err, types.ErrInvalidTenant)
	})
}
