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

package membership_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/membership"
	"github.com/blinklabs-io/tally/voting"
)

const testRoster = `
identities: [carol]
roles:
  town: [alice, bob]
communities:
  village:
    accounts: [acct1, acct2]
    channels: [day-chat, night-chat]
    links:
      alice: acct1
`

func TestLoadRosterFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRoster), 0o600))
	r, err := membership.LoadRosterFile(path)
	require.NoError(t, err)

	members, err := r.RoleMembers(ctx, "town")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)

	for _, identity := range []string{"alice", "bob", "carol"} {
		ok, err := r.IdentityExists(ctx, identity)
		require.NoError(t, err)
		assert.True(t, ok, identity)
	}

	accounts, err := r.CommunityAccounts(ctx, "village")
	require.NoError(t, err)
	assert.Equal(t, []string{"acct1", "acct2"}, accounts)

	account, err := r.LinkedAccount(ctx, "village", "alice")
	require.NoError(t, err)
	assert.Equal(t, "acct1", account)

	channels, err := r.CommunityChannels(ctx, "village")
	require.NoError(t, err)
	assert.Equal(t, []string{"day-chat", "night-chat"}, channels)
}

func TestLoadRosterFileErrors(t *testing.T) {
	_, err := membership.LoadRosterFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	_, err = membership.ParseRoster([]byte("roles: [not, a, map"))
	require.Error(t, err)
	_, err = membership.ParseRoster([]byte(`
communities:
  village:
    accounts: [acct1]
    links:
      alice: acct9
`))
	require.ErrorIs(t, err, voting.ErrEntityNotFound)
}

func TestRosterMissingEntities(t *testing.T) {
	ctx := context.Background()
	r := membership.NewRoster()
	_, err := r.RoleMembers(ctx, "nope")
	require.ErrorIs(t, err, voting.ErrEntityNotFound)
	_, err = r.CommunityAccounts(ctx, "nope")
	require.ErrorIs(t, err, voting.ErrEntityNotFound)
	_, err = r.AccountExists(ctx, "nope", "acct")
	require.ErrorIs(t, err, voting.ErrEntityNotFound)
	ok, err := r.IdentityExists(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	r.SetCommunity("village", "acct1")
	_, err = r.LinkedAccount(ctx, "village", "alice")
	require.ErrorIs(t, err, voting.ErrEntityNotFound)
}

func TestRosterMutators(t *testing.T) {
	ctx := context.Background()
	r := membership.NewRoster()
	r.SetRole("town", "alice", "bob")
	r.RemoveIdentity("bob")
	members, err := r.RoleMembers(ctx, "town")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members)

	r.SetCommunity("village", "acct1", "acct2")
	require.NoError(t, r.Link("village", "alice", "acct2"))
	r.RemoveAccount("village", "acct2")
	_, err = r.LinkedAccount(ctx, "village", "alice")
	require.ErrorIs(t, err, voting.ErrEntityNotFound)

	boom := errors.New("provider down")
	r.SetError("town", boom)
	_, err = r.RoleMembers(ctx, "town")
	require.ErrorIs(t, err, boom)
	r.SetError("town", nil)
	_, err = r.RoleMembers(ctx, "town")
	require.NoError(t, err)

	r.DeleteRole("town")
	_, err = r.RoleMembers(ctx, "town")
	require.ErrorIs(t, err, voting.ErrEntityNotFound)
}
