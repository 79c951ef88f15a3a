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

package voting

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/blinklabs-io/tally/event"
)

const (
	// StandardVoteName names the vote every voter owns
	StandardVoteName = "standard"

	voteIdLength      = 8
	maxVoteIdAttempts = 32
)

// Vote is a single ballot slot owned by a voter. A vote which is not placed
// never has a target. A placed vote without a target is a no-vote.
type Vote struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	VoterID string `json:"voterId"`
	Placed  bool   `json:"placed"`
	Target  string `json:"target,omitempty"`
}

// IsNoVote reports whether the vote is placed on no one
func (v Vote) IsNoVote() bool {
	return v.Placed && v.Target == ""
}

// VoteRegistry owns the votes of one voting instance
type VoteRegistry struct {
	inst  *Instance
	votes map[string]*Vote
	newId func() string
}

func newVoteRegistry(inst *Instance) *VoteRegistry {
	return &VoteRegistry{
		inst:  inst,
		votes: make(map[string]*Vote),
		newId: randomVoteId,
	}
}

func randomVoteId() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:voteIdLength]
}

func (r *VoteRegistry) subscribe() {
	r.inst.bus.SubscribeFunc(RoundStartedEventType, r.handleRoundReset)
	r.inst.bus.SubscribeFunc(RoundResetEventType, r.handleRoundReset)
	r.inst.bus.SubscribeFunc(VoterDeletedEventType, r.handleVoterDeleted)
	r.inst.bus.SubscribeFunc(VoterUpdatedEventType, r.handleVoterUpdated)
}

func (r *VoteRegistry) handleRoundReset(ctx context.Context, _ event.Event) error {
	return r.resetAll(ctx)
}

func (r *VoteRegistry) handleVoterDeleted(ctx context.Context, evt event.Event) error {
	data, ok := evt.Data.(VoterDeletedEvent)
	if !ok {
		return nil
	}
	return r.removeTargeting(ctx, data.VoterId)
}

func (r *VoteRegistry) handleVoterUpdated(ctx context.Context, evt event.Event) error {
	data, ok := evt.Data.(VoterUpdatedEvent)
	if !ok || data.Voter.IsVotable {
		return nil
	}
	return r.removeTargeting(ctx, data.Voter.ID)
}

// Create adds a new unplaced vote for a voter and returns its id. When the
// returned id is not empty the vote exists even if an error is also returned
func (r *VoteRegistry) Create(
	ctx context.Context,
	name string,
	voterId string,
) (string, error) {
	if name == "" {
		return "", ErrInvalidVoteName
	}
	if voterId == "" {
		return "", ErrInvalidVoterId
	}
	var voteId string
	for range maxVoteIdAttempts {
		candidate := r.newId()
		if _, exists := r.votes[candidate]; !exists {
			voteId = candidate
			break
		}
	}
	if voteId == "" {
		return "", errors.New("could not generate a unique vote id")
	}
	vote := &Vote{
		ID:      voteId,
		Name:    name,
		VoterID: voterId,
	}
	if err := r.inst.docs.put(ctx, voteKey(r.inst.id, voteId), vote); err != nil {
		return "", err
	}
	r.votes[voteId] = vote
	return voteId, r.inst.publish(
		ctx,
		VoteCreatedEventType,
		VoteCreatedEvent{VoteId: voteId, VoterId: voterId},
	)
}

// Delete destroys a vote. A placed vote leaves the tally.
func (r *VoteRegistry) Delete(ctx context.Context, voteId string) error {
	vote, ok := r.votes[voteId]
	if !ok {
		return ErrInvalidVoteId
	}
	if err := r.inst.docs.delete(ctx, voteKey(r.inst.id, voteId)); err != nil {
		return err
	}
	delete(r.votes, voteId)
	return r.inst.publish(
		ctx,
		VoteDeletedEventType,
		VoteDeletedEvent{Vote: *vote},
	)
}

// Get returns a copy of a vote
func (r *VoteRegistry) Get(voteId string) (Vote, error) {
	vote, ok := r.votes[voteId]
	if !ok {
		return Vote{}, ErrInvalidVoteId
	}
	return *vote, nil
}

// List returns copies of all votes ordered by id
func (r *VoteRegistry) List() []Vote {
	ret := make([]Vote, 0, len(r.votes))
	for _, voteId := range slices.Sorted(maps.Keys(r.votes)) {
		ret = append(ret, *r.votes[voteId])
	}
	return ret
}

// Place places a vote on a voter. Votability of the target is checked by
// VoterRegistry.Cast
func (r *VoteRegistry) Place(
	ctx context.Context,
	voteId string,
	target string,
) error {
	if target == "" {
		return ErrInvalidTarget
	}
	return r.place(ctx, voteId, target)
}

// PlaceNoVote places a vote on no one
func (r *VoteRegistry) PlaceNoVote(ctx context.Context, voteId string) error {
	return r.place(ctx, voteId, "")
}

func (r *VoteRegistry) place(
	ctx context.Context,
	voteId string,
	target string,
) error {
	vote, ok := r.votes[voteId]
	if !ok {
		return ErrInvalidVoteId
	}
	if !r.inst.round.IsActive() {
		return ErrRoundNotActive
	}
	if vote.Placed && vote.Target == target {
		return ErrAlreadyPlacedOnSameTarget
	}
	if target != "" && !r.inst.voters.exists(target) {
		return ErrInvalidTarget
	}
	updated := *vote
	updated.Placed = true
	updated.Target = target
	if err := r.inst.docs.put(ctx, voteKey(r.inst.id, voteId), &updated); err != nil {
		return err
	}
	evt := VotePlacedEvent{
		VoteId:         voteId,
		VoteName:       vote.Name,
		VoterId:        vote.VoterID,
		Target:         target,
		PreviousTarget: vote.Target,
		WasPlaced:      vote.Placed,
	}
	*vote = updated
	r.inst.metrics.votePlaced()
	return r.inst.publish(ctx, VotePlacedEventType, evt)
}

// Remove clears the placement of a vote. Unless forced, the round must be
// accepting votes
func (r *VoteRegistry) Remove(
	ctx context.Context,
	voteId string,
	force bool,
) error {
	vote, ok := r.votes[voteId]
	if !ok {
		return ErrInvalidVoteId
	}
	if !force && !r.inst.round.IsActive() {
		return ErrRoundNotActive
	}
	if !vote.Placed {
		return ErrNotPlaced
	}
	updated := *vote
	updated.Placed = false
	updated.Target = ""
	if err := r.inst.docs.put(ctx, voteKey(r.inst.id, voteId), &updated); err != nil {
		return err
	}
	evt := VoteRemovedEvent{
		VoteId:         voteId,
		VoteName:       vote.Name,
		VoterId:        vote.VoterID,
		PreviousTarget: vote.Target,
		Forced:         force,
	}
	*vote = updated
	r.inst.metrics.voteRemoved()
	return r.inst.publish(ctx, VoteRemovedEventType, evt)
}

// resetAll clears every placement without emitting vote events
func (r *VoteRegistry) resetAll(ctx context.Context) error {
	var errs []error
	for _, voteId := range slices.Sorted(maps.Keys(r.votes)) {
		vote := r.votes[voteId]
		if !vote.Placed {
			continue
		}
		updated := *vote
		updated.Placed = false
		updated.Target = ""
		if err := r.inst.docs.put(ctx, voteKey(r.inst.id, voteId), &updated); err != nil {
			errs = append(errs, err)
			continue
		}
		*vote = updated
	}
	return errors.Join(errs...)
}

// removeTargeting force-removes every vote placed on a voter
func (r *VoteRegistry) removeTargeting(ctx context.Context, voterId string) error {
	var errs []error
	for _, voteId := range slices.Sorted(maps.Keys(r.votes)) {
		vote, ok := r.votes[voteId]
		if !ok || !vote.Placed || vote.Target != voterId {
			continue
		}
		if err := r.Remove(ctx, voteId, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *VoteRegistry) load(ctx context.Context) error {
	keys, err := r.inst.docs.listKeys(ctx, votesPrefix(r.inst.id))
	if err != nil {
		return err
	}
	for _, key := range keys {
		var vote Vote
		if err := r.inst.docs.get(ctx, key, &vote); err != nil {
			return err
		}
		if vote.ID == "" {
			return fmt.Errorf("load %s: missing vote id", key)
		}
		if !vote.Placed {
			vote.Target = ""
		}
		r.votes[vote.ID] = &vote
	}
	return nil
}
