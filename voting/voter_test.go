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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/internal/test/testutil"
	"github.com/blinklabs-io/tally/voting"
)

func requireStandardVotesLive(t *testing.T, f *fixture) {
	t.Helper()
	for _, voter := range f.inst.Voters().List() {
		vote, err := f.inst.Votes().Get(voter.StandardVoteID)
		require.NoError(t, err, voter.ID)
		assert.Equal(t, voter.ID, vote.VoterID)
		assert.Equal(t, voting.StandardVoteName, vote.Name)
	}
}

func TestReconcileCreatesVoters(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	assert.Equal(t, []string{"alice", "bob"}, f.voterIds())
	voter, err := f.inst.Voters().Get("alice")
	require.NoError(t, err)
	assert.Equal(t, voting.VoterKindExternalIdentity, voter.Kind)
	assert.True(t, voter.CanVote)
	assert.True(t, voter.IsVotable)
	assert.Zero(t, voter.Modifier)
	requireStandardVotesLive(t, f)

	_, err = f.inst.Voters().Get("nobody")
	require.ErrorIs(t, err, voting.ErrInvalidVoterId)
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	before := f.inst.Voters().List()
	votes := f.inst.Votes().List()
	require.NoError(t, f.inst.Refresh(f.ctx))
	require.NoError(t, f.inst.Refresh(f.ctx))
	assert.Equal(t, before, f.inst.Voters().List())
	assert.Equal(t, votes, f.inst.Votes().List())
}

func TestVoterRemovalCascadesVotes(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	special, err := f.inst.Voters().GrantSpecialVote(f.ctx, "carol", "double")
	require.NoError(t, err)
	carol, err := f.inst.Voters().Get("carol")
	require.NoError(t, err)
	require.Equal(t, []string{special}, carol.SpecialVoteIDs)

	f.roster.RemoveIdentity("carol")
	require.NoError(t, f.inst.Refresh(f.ctx))

	assert.Equal(t, []string{"alice", "bob"}, f.voterIds())
	for _, voteId := range carol.VoteIds() {
		_, err := f.inst.Votes().Get(voteId)
		require.ErrorIs(t, err, voting.ErrInvalidVoteId)
	}
	assert.Len(t, f.inst.Votes().List(), 2)
	requireStandardVotesLive(t, f)
}

func TestVoterRemovalClearsVotesOnIt(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	f.startRound(t, voting.RuleKindPlurality, voting.RuleParams{})
	f.cast(t, "alice", "carol")
	f.cast(t, "carol", "bob")

	f.roster.SetRole(testRole, "alice", "bob")
	require.NoError(t, f.inst.Refresh(f.ctx))

	assert.False(t, f.standardVote(t, "alice").Placed)
	assert.Empty(t, f.inst.Round().Tally())
	assert.Contains(t, f.updates(), "The vote of alice on carol was removed.")
}

func TestReconcileSkipsRemovalOnFetchFailure(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.roster.SetRole("wolves", "carol")
	roles, err := f.inst.Roles()
	require.NoError(t, err)
	require.NoError(t, roles.AddRole(f.ctx, "wolves"))
	assert.Equal(t, []string{"alice", "bob", "carol"}, f.voterIds())

	f.roster.SetError("wolves", errors.New("provider down"))
	f.roster.SetRole(testRole, "alice", "dave")
	require.NoError(t, f.inst.Refresh(f.ctx))
	// dave joins, nobody leaves while the effective set is incomplete
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, f.voterIds())
	assert.Equal(t, []string{testRole, "wolves"}, roles.Roles())

	f.roster.SetError("wolves", nil)
	require.NoError(t, f.inst.Refresh(f.ctx))
	assert.Equal(t, []string{"alice", "carol", "dave"}, f.voterIds())
}

func TestReconcilePerVoterFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("disk full")
	f.store.Fail(testutil.OpPut, "Voting/"+f.inst.ID()+"/Voters/Voters/bob", boom)
	f.roster.SetRole(testRole, "alice", "bob", "carol")

	require.ErrorIs(t, f.inst.Refresh(f.ctx), boom)
	assert.Equal(t, []string{"alice", "carol"}, f.voterIds())
	// bob's standard vote was rolled back
	assert.Len(t, f.inst.Votes().List(), 2)
	requireStandardVotesLive(t, f)

	f.store.Heal()
	require.NoError(t, f.inst.Refresh(f.ctx))
	assert.Equal(t, []string{"alice", "bob", "carol"}, f.voterIds())
	requireStandardVotesLive(t, f)
}

func TestVoterFlags(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	f.startRound(t, voting.RuleKindPlurality, voting.RuleParams{})
	voters := f.inst.Voters()

	require.NoError(t, voters.SetCanVote(f.ctx, "alice", false))
	require.ErrorIs(t, voters.Cast(f.ctx, "alice", "", "bob"), voting.ErrVoteFrozen)
	require.ErrorIs(t, voters.CastNoVote(f.ctx, "alice", ""), voting.ErrVoteFrozen)

	require.NoError(t, voters.SetVotable(f.ctx, "carol", false))
	require.ErrorIs(t, voters.Cast(f.ctx, "bob", "", "carol"), voting.ErrTargetNotVotable)

	f.cast(t, "carol", "bob")
	require.NoError(t, voters.SetVotable(f.ctx, "bob", false))
	assert.False(t, f.standardVote(t, "carol").Placed)
	assert.Empty(t, f.inst.Round().Tally())

	require.ErrorIs(t, voters.Cast(f.ctx, "carol", "", "ghost"), voting.ErrInvalidTarget)
	require.ErrorIs(t, voters.Cast(f.ctx, "ghost", "", "carol"), voting.ErrInvalidVoterId)
	require.ErrorIs(t, voters.Cast(f.ctx, "carol", "missing", "alice"), voting.ErrInvalidVoteId)
	require.ErrorIs(t, voters.SetModifier(f.ctx, "ghost", 1), voting.ErrInvalidVoterId)

	require.NoError(t, voters.SetModifier(f.ctx, "alice", 2))
	alice, err := voters.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, 2, alice.Modifier)
	assert.False(t, alice.CanVote)
}

func TestSpecialVotes(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.startRound(t, voting.RuleKindPlurality, voting.RuleParams{})
	voters := f.inst.Voters()

	voteId, err := voters.GrantSpecialVote(f.ctx, "alice", "double")
	require.NoError(t, err)
	vote, err := f.inst.Votes().Get(voteId)
	require.NoError(t, err)
	assert.Equal(t, "double", vote.Name)
	assert.Equal(t, "alice", vote.VoterID)

	_, err = voters.GrantSpecialVote(f.ctx, "alice", "double")
	require.ErrorIs(t, err, voting.ErrSpecialVoteExists)
	_, err = voters.GrantSpecialVote(f.ctx, "alice", voting.StandardVoteName)
	require.ErrorIs(t, err, voting.ErrInvalidVoteName)
	_, err = voters.GrantSpecialVote(f.ctx, "ghost", "double")
	require.ErrorIs(t, err, voting.ErrInvalidVoterId)

	require.NoError(t, voters.Cast(f.ctx, "alice", "double", "bob"))
	f.cast(t, "alice", "bob")
	assert.Equal(t, 2, len(f.inst.Round().Tally()[0].VoteIds))
	assert.Contains(t, f.updates(), "alice (double vote) voted for bob.")

	require.NoError(t, voters.RevokeSpecialVote(f.ctx, "alice", "double"))
	_, err = f.inst.Votes().Get(voteId)
	require.ErrorIs(t, err, voting.ErrInvalidVoteId)
	assert.Equal(t, 1, len(f.inst.Round().Tally()[0].VoteIds))
	require.ErrorIs(t, voters.RevokeSpecialVote(f.ctx, "alice", "double"), voting.ErrInvalidVoteId)
	require.ErrorIs(t, voters.RevokeSpecialVote(f.ctx, "alice", voting.StandardVoteName), voting.ErrInvalidVoteName)
}

func TestGetByExternalIdentity(t *testing.T) {
	f := newFixture(t, "alice")
	voter, err := f.inst.Voters().GetByExternalIdentity(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", voter.ID)
	_, err = f.inst.Voters().GetByExternalIdentity(f.ctx, "bob")
	require.ErrorIs(t, err, voting.ErrInvalidVoterId)

	other, err := f.dir.Create(f.ctx, "night")
	require.NoError(t, err)
	_, err = other.Voters().GetByExternalIdentity(f.ctx, "alice")
	require.ErrorIs(t, err, voting.ErrSourceManagerMissing)
}
