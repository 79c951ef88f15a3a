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

package sqlstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blinklabs-io/tally/database/plugin/store/internal/sqlstore"
)

func TestEscapeLike(t *testing.T) {
	testDefs := []struct {
		input    string
		expected string
	}{
		{input: "Voting/abc/", expected: "Voting/abc/"},
		{input: "a_b", expected: "a!_b"},
		{input: "50%", expected: "50!%"},
		{input: "wow!", expected: "wow!!"},
	}
	for _, testDef := range testDefs {
		assert.Equal(t, testDef.expected, sqlstore.EscapeLike(testDef.input))
	}
}

func TestNilStoreUnavailable(t *testing.T) {
	var s *sqlstore.Store
	assert.NoError(t, s.Close())
}
