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

package testutil_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/database/types"
	"github.com/blinklabs-io/tally/internal/test/conformance"
	"github.com/blinklabs-io/tally/internal/test/testutil"
)

func TestMemoryStoreConformance(t *testing.T) {
	conformance.RunDocumentStoreTests(t, testutil.NewMemoryStore())
}

func TestMemoryStoreFailureInjection(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	boom := errors.New("boom")
	store.Fail(testutil.OpPut, "Voting/a/", boom)
	require.ErrorIs(t, store.Put(ctx, "t", "Voting/a/Info", []byte("{}")), boom)
	require.NoError(t, store.Put(ctx, "t", "Voting/b/Info", []byte("{}")))
	_, err := store.Get(ctx, "t", "Voting/a/Info")
	require.ErrorIs(t, err, types.ErrDocumentNotFound)
	store.Heal()
	require.NoError(t, store.Put(ctx, "t", "Voting/a/Info", []byte("{}")))
	assert.Equal(t, []string{"Voting/a/Info", "Voting/b/Info"}, store.Keys("t"))
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	assert.Equal(t, 7, testutil.RequireReceive(t, ch, time.Second, "value"))
}
