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

func TestMajorityRoundAutoEnds(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	winners := f.captureWinners()
	f.startRound(t, voting.RuleKindMajority, voting.RuleParams{})

	status := f.inst.Round().Status()
	assert.Equal(t, voting.RuleKindMajority, status.Rule)
	assert.Equal(t, 2, status.Threshold)
	assert.True(t, status.AutoThreshold)
	assert.True(t, status.Running)
	assert.True(t, status.Active)
	assert.False(t, status.StartedAt.IsZero())

	f.cast(t, "alice", "carol")
	assert.True(t, f.inst.Round().IsRunning())
	f.cast(t, "bob", "carol")
	assert.False(t, f.inst.Round().IsRunning())

	assert.Equal(t, [][]string{{"carol"}}, *winners)
	assert.Equal(t, []string{
		"A majority round has started. 2 votes are needed to end it.",
		"alice voted for carol.",
		"bob voted for carol.",
		"The round has ended. The winner is carol.",
	}, f.updates())
	assert.Equal(t, 1.0, metricValue(t, f.reg, "tally_rounds_started_total"))
	assert.Equal(t, 1.0, metricValue(t, f.reg, "tally_rounds_ended_total"))
	assert.Equal(t, 2.0, metricValue(t, f.reg, "tally_votes_placed_total"))

	require.ErrorIs(t, f.inst.Voters().Cast(f.ctx, "carol", "", "bob"), voting.ErrRoundNotActive)
}

func TestMajorityTieBothWin(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol", "dave")
	winners := f.captureWinners()
	f.startRound(t, voting.RuleKindMajority, voting.RuleParams{})
	require.Equal(t, 3, f.inst.Round().Status().Threshold)

	f.cast(t, "alice", "carol")
	f.cast(t, "bob", "carol")
	f.cast(t, "carol", "alice")
	f.cast(t, "dave", "alice")
	// pinning the threshold does not end the round by itself
	require.NoError(t, f.inst.Round().SetThreshold(f.ctx, 2))
	require.True(t, f.inst.Round().IsRunning())

	require.NoError(t, f.inst.Round().End(f.ctx))
	assert.Equal(t, [][]string{{"carol", "alice"}}, *winners)
	assert.Contains(t, f.updates(), "The round has ended. The winners are carol, alice.")
}

func TestMajorityThresholdFollowsVoteCount(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol", "dave")
	f.startRound(t, voting.RuleKindMajority, voting.RuleParams{})
	round := f.inst.Round()
	assert.Equal(t, 4, round.VoteCount())
	assert.Equal(t, 3, round.Status().Threshold)

	require.NoError(t, f.inst.Voters().SetCanVote(f.ctx, "dave", false))
	assert.Equal(t, 3, round.VoteCount())
	assert.Equal(t, 2, round.Status().Threshold)

	require.NoError(t, round.SetThreshold(f.ctx, 3))
	f.roster.SetRole(testRole, "alice", "bob", "carol", "dave", "eve", "frank")
	require.NoError(t, f.inst.Refresh(f.ctx))
	assert.Equal(t, 3, round.Status().Threshold)
	assert.False(t, round.Status().AutoThreshold)

	require.NoError(t, round.SetThreshold(f.ctx, 0))
	assert.Equal(t, 5, round.VoteCount())
	assert.Equal(t, 3, round.Status().Threshold)
	assert.True(t, round.Status().AutoThreshold)

	_, err := f.inst.Voters().GrantSpecialVote(f.ctx, "alice", "double")
	require.NoError(t, err)
	assert.Equal(t, 4, round.Status().Threshold)
}

func TestMajorityModifier(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	winners := f.captureWinners()
	require.NoError(t, f.inst.Voters().SetModifier(f.ctx, "carol", 1))
	f.startRound(t, voting.RuleKindMajority, voting.RuleParams{})

	f.cast(t, "alice", "carol")
	f.cast(t, "bob", "carol")
	require.True(t, f.inst.Round().IsRunning())
	f.cast(t, "carol", "carol")
	require.False(t, f.inst.Round().IsRunning())
	assert.Equal(t, [][]string{{"carol"}}, *winners)
}

func TestMajorityNoVoteEndsWithoutWinner(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	winners := f.captureWinners()
	f.startRound(t, voting.RuleKindMajority, voting.RuleParams{})

	require.NoError(t, f.inst.Voters().CastNoVote(f.ctx, "alice", ""))
	require.NoError(t, f.inst.Voters().CastNoVote(f.ctx, "bob", ""))

	assert.False(t, f.inst.Round().IsRunning())
	require.Len(t, *winners, 1)
	assert.Empty(t, (*winners)[0])
	assert.Contains(t, f.updates(), "alice voted for no one.")
	assert.Contains(t, f.updates(), "The round has ended with no winner.")
}

func TestPluralityAutoEnd(t *testing.T) {
	tally := voting.NewTally()
	fill := func(target string, count int) {
		for i := range count {
			tally.Place(target+string(rune('0'+i)), target)
		}
	}
	fill("A", 5)
	fill("", 6)
	fill("B", 3)
	fill("C", 3)
	fill("D", 1)

	rule, err := voting.NewRule(voting.RuleKindPlurality, voting.RuleParams{WinnerCount: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, rule.AutoEnd(tally, nil))
	ending, end := rule.CheckEnding(tally, nil)
	assert.Nil(t, ending)
	assert.False(t, end)

	rule, err = voting.NewRule(voting.RuleKindPlurality, voting.RuleParams{WinnerCount: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, rule.AutoEnd(tally, nil))
	assert.Equal(t, "A plurality round has started. The 3 most voted players win.", rule.StartMessage())

	// a bucket with more votes replaces the last filled of the smallest winners
	fill("D", 4)
	assert.Equal(t, []string{"A", "D", "B"}, rule.AutoEnd(tally, nil))
	assert.Empty(t, rule.AutoEnd(voting.NewTally(), nil))
}

func TestPluralityTieKeepsFirstFilled(t *testing.T) {
	tally := voting.NewTally()
	fill := func(target string, count int) {
		for i := range count {
			tally.Place(target+string(rune('0'+i)), target)
		}
	}
	fill("B", 3)
	fill("C", 3)
	fill("A", 5)

	rule, err := voting.NewRule(voting.RuleKindPlurality, voting.RuleParams{WinnerCount: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, rule.AutoEnd(tally, nil))

	fill("E", 4)
	assert.Equal(t, []string{"A", "E"}, rule.AutoEnd(tally, nil))
}

func TestPluralityRound(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	winners := f.captureWinners()
	f.startRound(t, voting.RuleKindPlurality, voting.RuleParams{})
	assert.Equal(t, 1, f.inst.Round().Status().WinnerCount)
	assert.Contains(t, f.updates(), "A plurality round has started. The most voted player wins.")

	f.cast(t, "alice", "bob")
	f.cast(t, "bob", "alice")
	require.NoError(t, f.inst.Voters().CastNoVote(f.ctx, "carol", ""))
	require.True(t, f.inst.Round().IsRunning())
	require.NoError(t, f.inst.Round().End(f.ctx))
	assert.Equal(t, [][]string{{"bob"}}, *winners)

	// only no-votes
	f.startRound(t, voting.RuleKindPlurality, voting.RuleParams{})
	require.NoError(t, f.inst.Voters().CastNoVote(f.ctx, "carol", ""))
	require.NoError(t, f.inst.Round().End(f.ctx))
	require.Len(t, *winners, 2)
	assert.Empty(t, (*winners)[1])
}

func TestRoundStartResetsVotes(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.startRound(t, voting.RuleKindPlurality, voting.RuleParams{})
	f.cast(t, "alice", "bob")
	require.NoError(t, f.inst.Round().End(f.ctx))
	assert.True(t, f.standardVote(t, "alice").Placed)

	f.startRound(t, voting.RuleKindPlurality, voting.RuleParams{})
	assert.False(t, f.standardVote(t, "alice").Placed)
	assert.Empty(t, f.inst.Round().Tally())
}

func TestRoundLifecycleErrors(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	round := f.inst.Round()

	require.ErrorIs(t, round.End(f.ctx), voting.ErrNotRunning)
	require.ErrorIs(t, round.Pause(f.ctx), voting.ErrNotRunning)
	require.ErrorIs(t, round.Resume(f.ctx), voting.ErrNotRunning)
	require.ErrorIs(t, round.Reset(f.ctx), voting.ErrNotRunning)
	require.ErrorIs(t, round.Cancel(f.ctx), voting.ErrNotRunning)
	require.ErrorIs(t, round.SetThreshold(f.ctx, 2), voting.ErrNotRunning)
	require.ErrorIs(t, round.Hammer(f.ctx, nil), voting.ErrNotRunning)
	require.ErrorIs(t, f.inst.Voters().Cast(f.ctx, "alice", "", "bob"), voting.ErrRoundNotActive)

	require.ErrorIs(t, round.Start(f.ctx, "ranked", voting.RuleParams{}), voting.ErrUnknownRule)
	require.ErrorIs(
		t,
		round.Start(f.ctx, voting.RuleKindMajority, voting.RuleParams{Threshold: -1}),
		voting.ErrInvalidRuleParams,
	)
	require.ErrorIs(
		t,
		round.Start(f.ctx, voting.RuleKindPlurality, voting.RuleParams{WinnerCount: -1}),
		voting.ErrInvalidRuleParams,
	)
	require.False(t, round.IsRunning())

	f.startRound(t, voting.RuleKindPlurality, voting.RuleParams{})
	require.ErrorIs(t, round.Start(f.ctx, voting.RuleKindPlurality, voting.RuleParams{}), voting.ErrAlreadyRunning)
	require.ErrorIs(t, round.SetThreshold(f.ctx, 2), voting.ErrRuleMismatch)
	require.ErrorIs(t, round.Resume(f.ctx), voting.ErrAlreadyActive)

	f.cast(t, "alice", "bob")
	require.NoError(t, round.Pause(f.ctx))
	require.ErrorIs(t, round.Pause(f.ctx), voting.ErrNotActive)
	require.ErrorIs(t, f.inst.Voters().Cast(f.ctx, "bob", "", "alice"), voting.ErrRoundNotActive)
	require.ErrorIs(t, f.inst.Voters().Uncast(f.ctx, "alice", ""), voting.ErrRoundNotActive)
	assert.True(t, round.IsRunning())
	assert.False(t, round.IsActive())

	require.NoError(t, round.Resume(f.ctx))
	require.NoError(t, f.inst.Voters().Uncast(f.ctx, "alice", ""))
	require.ErrorIs(t, f.inst.Voters().Uncast(f.ctx, "alice", ""), voting.ErrNotPlaced)

	assert.Equal(t, []string{
		"A plurality round has started. The most voted player wins.",
		"alice voted for bob.",
		"Voting is paused.",
		"Voting has resumed.",
		"alice removed their vote.",
	}, f.updates())
}

func TestRoundResetTwice(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.startRound(t, voting.RuleKindPlurality, voting.RuleParams{})
	f.cast(t, "alice", "bob")
	f.cast(t, "bob", "alice")

	require.NoError(t, f.inst.Round().Reset(f.ctx))
	assert.Empty(t, f.inst.Round().Tally())
	assert.False(t, f.standardVote(t, "alice").Placed)
	require.NoError(t, f.inst.Round().Reset(f.ctx))
	assert.True(t, f.inst.Round().IsActive())

	// votes placed after a reset count again
	f.cast(t, "alice", "bob")
	assert.Len(t, f.inst.Round().Tally(), 1)
	texts := f.updates()
	assert.Equal(t, "All votes have been reset.", texts[len(texts)-2])
}

func TestRoundCancel(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	winners := f.captureWinners()
	f.startRound(t, voting.RuleKindMajority, voting.RuleParams{})
	f.cast(t, "alice", "bob")

	require.NoError(t, f.inst.Round().Cancel(f.ctx))
	assert.False(t, f.inst.Round().IsRunning())
	assert.Empty(t, *winners)
	assert.Contains(t, f.updates(), "The round was cancelled.")
	assert.Equal(t, 1.0, metricValue(t, f.reg, "tally_rounds_ended_total"))
}

func TestRoundHammer(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	winners := f.captureWinners()
	round := f.inst.Round()
	f.startRound(t, voting.RuleKindMajority, voting.RuleParams{})

	require.ErrorIs(t, round.Hammer(f.ctx, []string{"alice", "ghost"}), voting.ErrInvalidTarget)
	require.True(t, round.IsRunning())
	require.ErrorIs(t, round.SetThreshold(f.ctx, -1), voting.ErrInvalidRuleParams)

	require.NoError(t, round.Hammer(f.ctx, []string{"", "bob", "bob"}))
	assert.Equal(t, [][]string{{"bob"}}, *winners)

	f.startRound(t, voting.RuleKindMajority, voting.RuleParams{})
	require.NoError(t, round.Hammer(f.ctx, []string{""}))
	require.Len(t, *winners, 2)
	assert.Empty(t, (*winners)[1])
}

func TestRoundPersistFailureKeepsState(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.startRound(t, voting.RuleKindPlurality, voting.RuleParams{})
	boom := errors.New("disk full")
	f.store.Fail(testutil.OpPut, "Voting/"+f.inst.ID()+"/Round", boom)

	require.ErrorIs(t, f.inst.Round().Pause(f.ctx), boom)
	assert.True(t, f.inst.Round().IsActive())
	require.ErrorIs(t, f.inst.Round().Cancel(f.ctx), boom)
	assert.True(t, f.inst.Round().IsRunning())
	assert.NotContains(t, f.updates(), "Voting is paused.")

	f.store.Heal()
	require.NoError(t, f.inst.Round().Pause(f.ctx))
	assert.False(t, f.inst.Round().IsActive())
}

func TestRuleRegistry(t *testing.T) {
	_, err := voting.NewRule("ranked", voting.RuleParams{})
	require.ErrorIs(t, err, voting.ErrUnknownRule)

	voting.RegisterRule("first-vote", func(voting.RuleParams) (voting.RoundEndRule, error) {
		return voting.NewPluralityRule(voting.RuleParams{})
	})
	rule, err := voting.NewRule("first-vote", voting.RuleParams{})
	require.NoError(t, err)
	assert.Equal(t, voting.RuleKindPlurality, rule.Kind())

	majority, err := voting.NewMajorityRule(voting.RuleParams{Threshold: 4})
	require.NoError(t, err)
	assert.Equal(t, voting.RuleParams{Threshold: 4}, majority.Params())
	assert.Equal(t, "A majority round has started. 4 votes are needed to end it.", majority.StartMessage())
}

func TestTallyBuckets(t *testing.T) {
	tally := voting.NewTally()
	tally.Place("v1", "bob")
	tally.Place("v2", "carol")
	tally.Place("v3", "bob")
	assert.Equal(t, 2, tally.Count("bob"))
	assert.Equal(t, 3, tally.Len())

	// moving the only vote out of a bucket prunes it
	tally.Place("v2", "bob")
	assert.Equal(t, []voting.TallyBucket{
		{Target: "bob", VoteIds: []string{"v1", "v3", "v2"}},
	}, tally.Buckets())

	tally.Place("v1", "")
	assert.True(t, tally.Remove("v3"))
	assert.False(t, tally.Remove("v3"))
	assert.Equal(t, []voting.TallyBucket{
		{Target: "bob", VoteIds: []string{"v2"}},
		{Target: "", VoteIds: []string{"v1"}},
	}, tally.Buckets())

	tally.Clear()
	assert.Empty(t, tally.Buckets())
	assert.Zero(t, tally.Len())
}
