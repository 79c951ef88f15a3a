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

package redis_test

import (
	"context"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/database/plugin/store/redis"
	"github.com/blinklabs-io/tally/database/types"
	"github.com/blinklabs-io/tally/internal/test/conformance"
)

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `tally:g/Voting/`, redis.EscapeGlob("tally:g/Voting/"))
	assert.Equal(t, `a\*b\?c\[d\]`, redis.EscapeGlob("a*b?c[d]"))
	assert.Equal(t, `x\\y`, redis.EscapeGlob(`x\y`))
}

func TestStartInvalidURL(t *testing.T) {
	s := redis.New(redis.WithURL("not-a-url://"))
	require.Error(t, s.Start())
}

func TestNotStarted(t *testing.T) {
	s := redis.New()
	_, err := s.ListKeys(context.Background(), "g", "")
	require.ErrorIs(t, err, types.ErrStoreUnavailable)
	require.NoError(t, s.Close())
}

func TestStoreRedisConformance(t *testing.T) {
	url := os.Getenv("TALLY_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TALLY_TEST_REDIS_URL not set")
	}
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	prefix := "tally-test:" + t.Name() + ":"
	s := redis.New(redis.WithClient(client), redis.WithKeyPrefix(prefix))
	require.NoError(t, s.Start())
	defer s.Close()
	conformance.RunDocumentStoreTests(t, s)
}
