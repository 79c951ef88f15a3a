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

package voting_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/database/types"
	"github.com/blinklabs-io/tally/internal/test/testutil"
	"github.com/blinklabs-io/tally/membership"
	"github.com/blinklabs-io/tally/voting"
)

func TestValidateName(t *testing.T) {
	testDefs := []struct {
		name  string
		valid bool
	}{
		{name: "day", valid: true},
		{name: "Day 2", valid: true},
		{name: strings.Repeat("x", 64), valid: true},
		{name: strings.Repeat("x", 65)},
		{name: ""},
		{name: " day"},
		{name: "day\n"},
		{name: "d\x00ay"},
	}
	for _, testDef := range testDefs {
		err := voting.ValidateName(testDef.name)
		if testDef.valid {
			assert.NoError(t, err, testDef.name)
		} else {
			assert.ErrorIs(t, err, voting.ErrInvalidName, testDef.name)
		}
	}
}

func TestNewDirectoryValidation(t *testing.T) {
	store := testutil.NewMemoryStore()
	roster := membership.NewRoster()
	_, err := voting.NewDirectory(voting.DirectoryConfig{Tenant: testTenant, Resolver: roster})
	require.Error(t, err)
	_, err = voting.NewDirectory(voting.DirectoryConfig{Tenant: testTenant, Store: store})
	require.Error(t, err)
	_, err = voting.NewDirectory(voting.DirectoryConfig{Tenant: "a/b", Store: store, Resolver: roster})
	require.ErrorIs(t, err, types.ErrInvalidTenant)

	// the sink is optional
	dir, err := voting.NewDirectory(voting.DirectoryConfig{Tenant: testTenant, Store: store, Resolver: roster})
	require.NoError(t, err)
	defer dir.Close()
	inst, err := dir.Create(t.Context(), "day")
	require.NoError(t, err)
	require.NoError(t, inst.Channels().AddUpdateChannel(t.Context(), "updates"))
	require.NoError(t, inst.Round().Start(t.Context(), voting.RuleKindPlurality, voting.RuleParams{}))
}

func TestDirectoryNames(t *testing.T) {
	f := newFixture(t)
	_, err := f.dir.Create(f.ctx, "DAY")
	require.ErrorIs(t, err, voting.ErrNameAlreadyTaken)
	_, err = f.dir.Create(f.ctx, " night")
	require.ErrorIs(t, err, voting.ErrInvalidName)

	night, err := f.dir.Create(f.ctx, "night")
	require.NoError(t, err)
	_, err = f.dir.Create(f.ctx, "afternoon")
	require.NoError(t, err)

	var names []string
	for _, inst := range f.dir.List() {
		names = append(names, inst.Name())
	}
	assert.Equal(t, []string{"afternoon", "day", "night"}, names)

	require.ErrorIs(t, f.dir.Rename(f.ctx, night.ID(), "Day"), voting.ErrNameAlreadyTaken)
	require.ErrorIs(t, f.dir.Rename(f.ctx, night.ID(), ""), voting.ErrInvalidName)
	require.ErrorIs(t, f.dir.Rename(f.ctx, "missing", "dusk"), voting.ErrInvalidInstanceId)
	// renaming an instance to a different case of its own name is allowed
	require.NoError(t, f.dir.Rename(f.ctx, night.ID(), "Night"))
	require.NoError(t, f.dir.Rename(f.ctx, night.ID(), "dusk"))

	inst, err := f.dir.GetByName("DUSK")
	require.NoError(t, err)
	assert.Equal(t, night.ID(), inst.ID())
	_, err = f.dir.GetByName("night")
	require.ErrorIs(t, err, voting.ErrInvalidInstanceId)
	_, err = f.dir.Get("missing")
	require.ErrorIs(t, err, voting.ErrInvalidInstanceId)

	reloaded, err := f.reload(t).Get(night.ID())
	require.NoError(t, err)
	assert.Equal(t, "dusk", reloaded.Name())
	assert.WithinDuration(t, night.CreatedAt(), reloaded.CreatedAt(), 0)
}

func TestDirectoryDeleteCascade(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	require.NoError(t, f.inst.Channels().AddVotingChannel(f.ctx, "square"))
	f.startRound(t, voting.RuleKindPlurality, voting.RuleParams{})
	f.cast(t, "alice", "bob")
	night, err := f.dir.Create(f.ctx, "night")
	require.NoError(t, err)
	assert.Equal(t, 2.0, metricValue(t, f.reg, "tally_instances"))
	assert.Equal(t, 2.0, metricValue(t, f.reg, "tally_voters"))

	require.NoError(t, f.dir.Delete(f.ctx, f.inst.ID()))
	require.ErrorIs(t, f.dir.Delete(f.ctx, f.inst.ID()), voting.ErrInvalidInstanceId)

	for _, key := range f.store.Keys(testTenant) {
		assert.False(t, strings.HasPrefix(key, "Voting/"+f.inst.ID()+"/"), key)
	}
	assert.Equal(t, []string{"Voting/" + night.ID() + "/Info"}, f.store.Keys(testTenant))
	_, ok := f.dir.Claims().Owner("square")
	assert.False(t, ok)
	_, err = f.dir.Get(f.inst.ID())
	require.ErrorIs(t, err, voting.ErrInvalidInstanceId)
	assert.Equal(t, 1.0, metricValue(t, f.reg, "tally_instances"))
	assert.Zero(t, metricValue(t, f.reg, "tally_voters"))

	// the name and the channel are free again
	inst, err := f.dir.Create(f.ctx, "day")
	require.NoError(t, err)
	require.NoError(t, inst.Channels().AddVotingChannel(f.ctx, "square"))
}

func TestDirectoryPersistenceRoundTrip(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	require.NoError(t, f.inst.Channels().AddVotingChannel(f.ctx, "square"))
	users, err := f.inst.Users()
	require.NoError(t, err)
	require.NoError(t, users.Blacklist(f.ctx, "carol"))
	f.roster.SetRole(testRole, "alice", "bob", "carol", "dave")
	require.NoError(t, f.inst.Refresh(f.ctx))
	require.NoError(t, f.inst.Voters().SetModifier(f.ctx, "bob", 2))
	_, err = f.inst.Voters().GrantSpecialVote(f.ctx, "alice", "double")
	require.NoError(t, err)

	f.startRound(t, voting.RuleKindPlurality, voting.RuleParams{WinnerCount: 2})
	f.cast(t, "alice", "dave")
	f.cast(t, "bob", "alice")
	require.NoError(t, f.inst.Voters().Cast(f.ctx, "alice", "double", "dave"))
	require.NoError(t, f.inst.Voters().CastNoVote(f.ctx, "dave", ""))
	require.NoError(t, f.inst.Round().Pause(f.ctx))

	dir := f.reload(t)
	inst, err := dir.GetByName("day")
	require.NoError(t, err)
	assert.Equal(t, f.inst.ID(), inst.ID())
	assert.Equal(t, f.inst.Voters().List(), inst.Voters().List())
	assert.Equal(t, f.inst.Votes().List(), inst.Votes().List())
	assert.Equal(t, f.inst.Round().Tally(), inst.Round().Tally())

	status := inst.Round().Status()
	assert.True(t, status.Running)
	assert.False(t, status.Active)
	assert.Equal(t, voting.RuleKindPlurality, status.Rule)
	assert.Equal(t, 2, status.WinnerCount)
	assert.True(t, f.inst.Round().Status().StartedAt.Equal(status.StartedAt))

	assert.Equal(t, []string{"square"}, inst.Channels().VotingChannels())
	assert.Equal(t, []string{testUpdateChannel}, inst.Channels().UpdateChannels())
	owner, err := dir.ByVotingChannel("square")
	require.NoError(t, err)
	assert.Equal(t, inst.ID(), owner.ID())
	users, err = inst.Users()
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, users.Blacklisted())

	// the reloaded instance keeps working
	winners := []string{}
	require.NoError(t, inst.Round().Resume(f.ctx))
	require.NoError(t, inst.Voters().Cast(f.ctx, "bob", "", "dave"))
	require.NoError(t, inst.Round().End(f.ctx))
	assert.False(t, inst.Round().IsRunning())
	for _, text := range f.sink.Texts(testUpdateChannel) {
		if strings.HasPrefix(text, "The round has ended.") {
			winners = append(winners, text)
		}
	}
	assert.Equal(t, []string{"The round has ended. The winner is dave."}, winners)
}

func TestDirectoryPersistsMajorityThreshold(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol", "dave")
	f.startRound(t, voting.RuleKindMajority, voting.RuleParams{})
	require.NoError(t, f.inst.Round().SetThreshold(f.ctx, 2))

	inst, err := f.reload(t).Get(f.inst.ID())
	require.NoError(t, err)
	status := inst.Round().Status()
	assert.Equal(t, 2, status.Threshold)
	assert.False(t, status.AutoThreshold)
}

func TestDirectoryLoadSkipsBrokenInstances(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	require.NoError(t, f.store.Put(f.ctx, testTenant, "Voting/broken/Info", []byte("{")))
	require.NoError(t, f.store.Put(f.ctx, testTenant, "Voting/orphan/Votes/x", []byte("{}")))

	dir := f.newDirectory(t)
	require.Error(t, dir.Load(f.ctx))
	require.Len(t, dir.List(), 1)
	_, err := dir.GetByName("day")
	require.NoError(t, err)
}

func TestDirectoryLoadRecreatesVoterWithoutVote(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	alice, err := f.inst.Voters().Get("alice")
	require.NoError(t, err)
	require.NoError(t, f.store.Delete(f.ctx, testTenant, "Voting/"+f.inst.ID()+"/Votes/"+alice.StandardVoteID))

	inst, err := f.reload(t).Get(f.inst.ID())
	require.NoError(t, err)
	_, err = inst.Voters().Get("alice")
	require.ErrorIs(t, err, voting.ErrInvalidVoterId)

	require.NoError(t, inst.Refresh(f.ctx))
	recreated, err := inst.Voters().Get("alice")
	require.NoError(t, err)
	assert.NotEqual(t, alice.StandardVoteID, recreated.StandardVoteID)
	_, err = inst.Votes().Get(recreated.StandardVoteID)
	require.NoError(t, err)
}

func TestDirectoryRefresh(t *testing.T) {
	f := newFixture(t, "alice")
	night, err := f.dir.Create(f.ctx, "night")
	require.NoError(t, err)
	require.NoError(t, night.SetSourceType(f.ctx, voting.SourceManagerKindIdentity))
	roles, err := night.Roles()
	require.NoError(t, err)
	require.NoError(t, roles.AddRole(f.ctx, testRole))

	boom := errors.New("disk full")
	f.store.Fail(testutil.OpPut, "Voting/"+f.inst.ID()+"/Voters/Voters/bob", boom)
	f.roster.SetRole(testRole, "alice", "bob")

	require.ErrorIs(t, f.dir.Refresh(f.ctx), boom)
	assert.Equal(t, []string{"alice"}, f.voterIds())
	bob, err := night.Voters().Get("bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", bob.ID)
}
