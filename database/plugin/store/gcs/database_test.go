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

package gcs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/database/plugin/store/gcs"
	"github.com/blinklabs-io/tally/database/types"
)

func TestValidateCredentials(t *testing.T) {
	tempDir := t.TempDir()
	credsFile := filepath.Join(tempDir, "credentials.json")
	require.NoError(t, os.WriteFile(credsFile, []byte(`{}`), 0o600))

	assert.NoError(t, gcs.ValidateCredentials(""))
	assert.NoError(t, gcs.ValidateCredentials(credsFile))
	err := gcs.ValidateCredentials(filepath.Join(tempDir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GCS credentials file does not exist")
}

func TestObjectName(t *testing.T) {
	s := gcs.New(gcs.WithBucket("b"), gcs.WithPrefix("/games/"))
	assert.Equal(t, "games/t1/Voting/x/Info", s.ObjectName("t1", "Voting/x/Info"))

	s = gcs.New(gcs.WithBucket("b"))
	assert.Equal(t, "t1/Voting/x/Info", s.ObjectName("t1", "Voting/x/Info"))
}

func TestStartRequiresBucket(t *testing.T) {
	s := gcs.New()
	require.Error(t, s.Start())
}

func TestNotStarted(t *testing.T) {
	s := gcs.New(gcs.WithBucket("b"))
	_, err := s.Get(context.Background(), "t1", "k")
	require.ErrorIs(t, err, types.ErrStoreUnavailable)
	_, err = s.ListKeys(context.Background(), "t1", "")
	require.ErrorIs(t, err, types.ErrStoreUnavailable)
	require.NoError(t, s.Close())
}
