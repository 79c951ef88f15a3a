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
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/internal/test/testutil"
	"github.com/blinklabs-io/tally/voting"
)

func TestVotingChannelClaims(t *testing.T) {
	f := newFixture(t, "alice")
	other, err := f.dir.Create(f.ctx, "night")
	require.NoError(t, err)

	require.NoError(t, f.inst.Channels().AddVotingChannel(f.ctx, "town-square"))
	require.ErrorIs(
		t,
		f.inst.Channels().AddVotingChannel(f.ctx, "town-square"),
		voting.ErrAlreadyVotingChannel,
	)

	err = other.Channels().AddVotingChannel(f.ctx, "town-square")
	require.ErrorIs(t, err, voting.ErrChannelClaimed)
	var claimed *voting.ChannelClaimedError
	require.ErrorAs(t, err, &claimed)
	assert.Equal(t, f.inst.ID(), claimed.InstanceId)
	assert.Empty(t, other.Channels().VotingChannels())

	owner, err := f.dir.ByVotingChannel("town-square")
	require.NoError(t, err)
	assert.Equal(t, f.inst.ID(), owner.ID())

	require.NoError(t, f.inst.Channels().RemoveVotingChannel(f.ctx, "town-square"))
	require.ErrorIs(
		t,
		f.inst.Channels().RemoveVotingChannel(f.ctx, "town-square"),
		voting.ErrNotVotingChannel,
	)
	_, err = f.dir.ByVotingChannel("town-square")
	require.ErrorIs(t, err, voting.ErrNotVotingChannel)

	require.NoError(t, other.Channels().AddVotingChannel(f.ctx, "town-square"))
	assert.True(t, other.Channels().IsVotingChannel("town-square"))
	assert.False(t, f.inst.Channels().IsVotingChannel("town-square"))
}

func TestVotingChannelPersistFailureReleasesClaim(t *testing.T) {
	f := newFixture(t, "alice")
	boom := errors.New("disk full")
	f.store.Fail(testutil.OpPut, "Voting/"+f.inst.ID()+"/Channels", boom)

	require.ErrorIs(t, f.inst.Channels().AddVotingChannel(f.ctx, "town-square"), boom)
	_, ok := f.dir.Claims().Owner("town-square")
	assert.False(t, ok)
	assert.Empty(t, f.inst.Channels().VotingChannels())
}

func TestUpdateChannels(t *testing.T) {
	f := newFixture(t, "alice")
	other, err := f.dir.Create(f.ctx, "night")
	require.NoError(t, err)

	// update channels can be shared
	require.NoError(t, other.Channels().AddUpdateChannel(f.ctx, testUpdateChannel))
	require.ErrorIs(
		t,
		f.inst.Channels().AddUpdateChannel(f.ctx, testUpdateChannel),
		voting.ErrAlreadyUpdateChannel,
	)
	require.ErrorIs(t, f.inst.Channels().AddUpdateChannel(f.ctx, ""), voting.ErrNotUpdateChannel)
	require.NoError(t, f.inst.Channels().AddUpdateChannel(f.ctx, "log"))
	assert.Equal(t, []string{testUpdateChannel, "log"}, f.inst.Channels().UpdateChannels())
	assert.True(t, f.inst.Channels().IsUpdateChannel("log"))

	require.NoError(t, f.inst.Channels().RemoveUpdateChannel(f.ctx, "log"))
	require.ErrorIs(
		t,
		f.inst.Channels().RemoveUpdateChannel(f.ctx, "log"),
		voting.ErrNotUpdateChannel,
	)
}

func TestBroadcastFailureContinues(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	require.NoError(t, f.inst.Channels().AddUpdateChannel(f.ctx, "log"))
	f.sink.FailChannel(testUpdateChannel, errors.New("gone"))

	f.startRound(t, voting.RuleKindPlurality, voting.RuleParams{})
	f.cast(t, "alice", "bob")

	assert.Empty(t, f.updates())
	assert.Equal(t, []string{
		"A plurality round has started. The most voted player wins.",
		"alice voted for bob.",
	}, f.sink.Texts("log"))
	assert.Equal(t, 2.0, metricValue(t, f.reg, "tally_broadcast_failures_total"))
	assert.True(t, f.standardVote(t, "alice").Placed)
}

func TestImportVotingChannelsFromCommunity(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.inst.Channels().AddVotingChannel(f.ctx, "old"))
	_, err := f.inst.Channels().ImportFromCommunitySource(f.ctx)
	require.ErrorIs(t, err, voting.ErrSourceManagerWrongType)

	f.roster.SetCommunity("guild", "acc1")
	f.roster.SetCommunityChannels("guild", "votes", "taken", "votes")
	other, err := f.dir.Create(f.ctx, "night")
	require.NoError(t, err)
	require.NoError(t, other.Channels().AddVotingChannel(f.ctx, "taken"))

	require.NoError(t, f.inst.SetSourceType(f.ctx, voting.SourceManagerKindCommunity))
	_, err = f.inst.Channels().ImportFromCommunitySource(f.ctx)
	require.ErrorIs(t, err, voting.ErrNoCommunity)

	community, err := f.inst.Community()
	require.NoError(t, err)
	require.NoError(t, community.SetCommunity(f.ctx, "guild"))
	unclaimed, err := f.inst.Channels().ImportFromCommunitySource(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"taken"}, unclaimed)
	assert.Equal(t, []string{"votes"}, f.inst.Channels().VotingChannels())

	_, ok := f.dir.Claims().Owner("old")
	assert.False(t, ok)
	owner, ok := f.dir.Claims().Owner("taken")
	require.True(t, ok)
	assert.Equal(t, other.ID(), owner)
}

func TestChannelClaimsConcurrent(t *testing.T) {
	claims := voting.NewChannelClaims()
	var wg sync.WaitGroup
	wins := make(chan string, 16)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			instanceId := fmt.Sprintf("inst-%d", i)
			if err := claims.Claim("lobby", instanceId); err == nil {
				wins <- instanceId
			}
		}()
	}
	wg.Wait()
	close(wins)
	var winners []string
	for winner := range wins {
		winners = append(winners, winner)
	}
	require.Len(t, winners, 1)
	owner, ok := claims.Owner("lobby")
	require.True(t, ok)
	assert.Equal(t, winners[0], owner)

	assert.False(t, claims.Release("lobby", "someone-else"))
	claimed, unclaimed := claims.Replace("inst-x", nil, []string{"lobby", "hall"})
	assert.Equal(t, []string{"hall"}, claimed)
	assert.Equal(t, []string{"lobby"}, unclaimed)
	claims.ReleaseAll("inst-x")
	_, ok = claims.Owner("hall")
	assert.False(t, ok)
}
