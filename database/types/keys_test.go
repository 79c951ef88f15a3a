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

package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blinklabs-io/tally/database/types"
)

func TestValidateKey(t *testing.T) {
	testDefs := []struct {
		err    error
		tenant string
		key    string
	}{
		{tenant: "game1", key: "Voting/abc/Info"},
		{tenant: "", key: "Voting", err: types.ErrInvalidTenant},
		{tenant: "a/b", key: "Voting", err: types.ErrInvalidTenant},
		{tenant: "game1", key: "", err: types.ErrInvalidKey},
	}
	for _, testDef := range testDefs {
		err := types.ValidateKey(testDef.tenant, testDef.key)
		if testDef.err == nil {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, testDef.err)
		}
	}
}

func TestFlatKeyRoundTrip(t *testing.T) {
	flat := types.FlatKey("game1", "Voting/abc/Votes/x1")
	assert.Equal(t, "game1/Voting/abc/Votes/x1", flat)
	assert.Equal(t, "Voting/abc/Votes/x1", types.TrimFlatKey("game1", flat))
}
