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
	"maps"
	"slices"

	"github.com/blinklabs-io/tally/event"
)

type VoterKind string

const (
	VoterKindExternalIdentity VoterKind = "external-identity"
	VoterKindCommunityAccount VoterKind = "community-account"
)

// Voter is an eligible participant. Its id is the backing identity or
// community account
type Voter struct {
	ID             string    `json:"id"`
	Kind           VoterKind `json:"kind"`
	CanVote        bool      `json:"canVote"`
	IsVotable      bool      `json:"isVotable"`
	Modifier       int       `json:"modifier"`
	StandardVoteID string    `json:"standardVoteId"`
	SpecialVoteIDs []string  `json:"specialVoteIds"`
}

// VoteIds returns the standard vote id followed by the special vote ids
func (v Voter) VoteIds() []string {
	ret := make([]string, 0, 1+len(v.SpecialVoteIDs))
	ret = append(ret, v.StandardVoteID)
	return append(ret, v.SpecialVoteIDs...)
}

func (v Voter) clone() Voter {
	v.SpecialVoteIDs = slices.Clone(v.SpecialVoteIDs)
	return v
}

// VoterRegistry owns the voters of one voting instance and keeps them in
// line with the voter source manager
type VoterRegistry struct {
	inst   *Instance
	voters map[string]*Voter
}

func newVoterRegistry(inst *Instance) *VoterRegistry {
	return &VoterRegistry{
		inst:   inst,
		voters: make(map[string]*Voter),
	}
}

func (r *VoterRegistry) subscribe() {
	r.inst.bus.SubscribeFunc(
		SourcesChangedEventType,
		func(ctx context.Context, _ event.Event) error {
			return r.Reconcile(ctx)
		},
	)
}

// Reconcile creates voters for new effective members and destroys voters
// which are no longer members. Each voter is created or destroyed
// independently, so one failure leaves the other voters untouched. When a
// source could not be fetched the effective set is incomplete and no voter
// is destroyed on this pass
func (r *VoterRegistry) Reconcile(ctx context.Context) error {
	mgr := r.inst.sources
	if mgr == nil {
		return nil
	}
	result := mgr.FetchEffectiveMembers(ctx, r.inst.resolver)
	if len(result.Invalidated) > 0 {
		// Dropping the sources publishes SourcesChanged, which reconciles
		// against the remaining sources
		return r.inst.dropInvalidatedSources(ctx, result.Invalidated)
	}
	for _, fetchErr := range result.Failed {
		r.inst.logger.Warn(
			"voter source fetch failed, skipping voter removal",
			"error", fetchErr,
		)
	}
	kind := mgr.VoterKind()
	var errs []error
	for _, voterId := range slices.Sorted(maps.Keys(r.voters)) {
		voter := r.voters[voterId]
		_, member := result.Members[voterId]
		if member && voter.Kind == kind {
			continue
		}
		if member || result.Complete() {
			if err := r.destroy(ctx, voterId); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, member := range slices.Sorted(maps.Keys(result.Members)) {
		if _, ok := r.voters[member]; ok {
			continue
		}
		if err := r.create(ctx, member, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *VoterRegistry) create(
	ctx context.Context,
	voterId string,
	kind VoterKind,
) error {
	voteId, err := r.inst.votes.Create(ctx, StandardVoteName, voterId)
	if voteId == "" {
		return err
	}
	errs := []error{err}
	voter := &Voter{
		ID:             voterId,
		Kind:           kind,
		CanVote:        true,
		IsVotable:      true,
		StandardVoteID: voteId,
	}
	if err := r.inst.docs.put(ctx, voterKey(r.inst.id, voterId), voter); err != nil {
		errs = append(errs, err, r.inst.votes.Delete(ctx, voteId))
		return errors.Join(errs...)
	}
	r.voters[voterId] = voter
	r.inst.metrics.setVoters(r.inst.id, len(r.voters))
	errs = append(
		errs,
		r.inst.publish(
			ctx,
			VoterCreatedEventType,
			VoterCreatedEvent{VoterId: voterId},
		),
	)
	return errors.Join(errs...)
}

// destroy removes a voter, then its votes. Votes placed on the voter are
// force-removed by the VoteRegistry when VoterDeleted is published
func (r *VoterRegistry) destroy(ctx context.Context, voterId string) error {
	voter, ok := r.voters[voterId]
	if !ok {
		return ErrInvalidVoterId
	}
	if err := r.inst.docs.delete(ctx, voterKey(r.inst.id, voterId)); err != nil {
		return err
	}
	delete(r.voters, voterId)
	r.inst.metrics.setVoters(r.inst.id, len(r.voters))
	var errs []error
	for _, voteId := range voter.VoteIds() {
		if err := r.inst.votes.Delete(ctx, voteId); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(
		errs,
		r.inst.publish(
			ctx,
			VoterDeletedEventType,
			VoterDeletedEvent{VoterId: voterId},
		),
	)
	return errors.Join(errs...)
}

func (r *VoterRegistry) exists(voterId string) bool {
	_, ok := r.voters[voterId]
	return ok
}

func (r *VoterRegistry) modifier(voterId string) int {
	if voter, ok := r.voters[voterId]; ok {
		return voter.Modifier
	}
	return 0
}

// Get returns a copy of a voter
func (r *VoterRegistry) Get(voterId string) (Voter, error) {
	voter, ok := r.voters[voterId]
	if !ok {
		return Voter{}, ErrInvalidVoterId
	}
	return voter.clone(), nil
}

// GetByExternalIdentity maps a platform identity to its voter
func (r *VoterRegistry) GetByExternalIdentity(
	ctx context.Context,
	identity string,
) (Voter, error) {
	mgr := r.inst.sources
	if mgr == nil {
		return Voter{}, ErrSourceManagerMissing
	}
	voterId, err := mgr.VoterIdForExternalIdentity(ctx, r.inst.resolver, identity)
	if err != nil {
		if errors.Is(err, ErrEntityNotFound) {
			return Voter{}, ErrInvalidVoterId
		}
		return Voter{}, err
	}
	return r.Get(voterId)
}

// List returns copies of all voters ordered by id
func (r *VoterRegistry) List() []Voter {
	ret := make([]Voter, 0, len(r.voters))
	for _, voterId := range slices.Sorted(maps.Keys(r.voters)) {
		ret = append(ret, r.voters[voterId].clone())
	}
	return ret
}

// update persists a modified copy of a voter and publishes VoterUpdated
func (r *VoterRegistry) update(
	ctx context.Context,
	voterId string,
	modify func(*Voter),
) error {
	voter, ok := r.voters[voterId]
	if !ok {
		return ErrInvalidVoterId
	}
	updated := voter.clone()
	modify(&updated)
	if err := r.inst.docs.put(ctx, voterKey(r.inst.id, voterId), &updated); err != nil {
		return err
	}
	*voter = updated
	return r.inst.publish(
		ctx,
		VoterUpdatedEventType,
		VoterUpdatedEvent{Voter: updated.clone()},
	)
}

// SetCanVote freezes or unfreezes the votes of a voter
func (r *VoterRegistry) SetCanVote(ctx context.Context, voterId string, canVote bool) error {
	return r.update(ctx, voterId, func(v *Voter) { v.CanVote = canVote })
}

// SetVotable controls whether a voter can be voted for. Votes already
// placed on a voter which becomes unvotable are removed
func (r *VoterRegistry) SetVotable(ctx context.Context, voterId string, votable bool) error {
	return r.update(ctx, voterId, func(v *Voter) { v.IsVotable = votable })
}

// SetModifier sets the extra votes needed to reach a majority on a voter
func (r *VoterRegistry) SetModifier(ctx context.Context, voterId string, modifier int) error {
	return r.update(ctx, voterId, func(v *Voter) { v.Modifier = modifier })
}

// GrantSpecialVote gives a voter an additional named vote
func (r *VoterRegistry) GrantSpecialVote(
	ctx context.Context,
	voterId string,
	name string,
) (string, error) {
	voter, ok := r.voters[voterId]
	if !ok {
		return "", ErrInvalidVoterId
	}
	if name == "" || name == StandardVoteName {
		return "", ErrInvalidVoteName
	}
	if _, err := r.voteByName(voter, name); err == nil {
		return "", ErrSpecialVoteExists
	}
	voteId, err := r.inst.votes.Create(ctx, name, voterId)
	if voteId == "" {
		return "", err
	}
	errs := []error{err}
	updateErr := r.update(ctx, voterId, func(v *Voter) {
		v.SpecialVoteIDs = append(v.SpecialVoteIDs, voteId)
	})
	if updateErr != nil && !slices.Contains(r.voters[voterId].SpecialVoteIDs, voteId) {
		errs = append(errs, updateErr, r.inst.votes.Delete(ctx, voteId))
		return "", errors.Join(errs...)
	}
	errs = append(errs, updateErr)
	return voteId, errors.Join(errs...)
}

// RevokeSpecialVote destroys a named special vote of a voter
func (r *VoterRegistry) RevokeSpecialVote(
	ctx context.Context,
	voterId string,
	name string,
) error {
	voter, ok := r.voters[voterId]
	if !ok {
		return ErrInvalidVoterId
	}
	if name == StandardVoteName {
		return ErrInvalidVoteName
	}
	vote, err := r.voteByName(voter, name)
	if err != nil {
		return err
	}
	updateErr := r.update(ctx, voterId, func(v *Voter) {
		v.SpecialVoteIDs = slices.DeleteFunc(
			v.SpecialVoteIDs,
			func(id string) bool { return id == vote.ID },
		)
	})
	if slices.Contains(r.voters[voterId].SpecialVoteIDs, vote.ID) {
		return updateErr
	}
	return errors.Join(updateErr, r.inst.votes.Delete(ctx, vote.ID))
}

func (r *VoterRegistry) voteByName(voter *Voter, name string) (Vote, error) {
	for _, voteId := range voter.VoteIds() {
		vote, err := r.inst.votes.Get(voteId)
		if err != nil {
			continue
		}
		if vote.Name == name {
			return vote, nil
		}
	}
	return Vote{}, ErrInvalidVoteId
}

// castable resolves the named vote of a voter that is allowed to vote
func (r *VoterRegistry) castable(voterId string, voteName string) (Vote, error) {
	voter, ok := r.voters[voterId]
	if !ok {
		return Vote{}, ErrInvalidVoterId
	}
	if voteName == "" {
		voteName = StandardVoteName
	}
	vote, err := r.voteByName(voter, voteName)
	if err != nil {
		return Vote{}, err
	}
	if !voter.CanVote {
		return Vote{}, ErrVoteFrozen
	}
	return vote, nil
}

// Cast places the named vote of a voter on a votable target. An empty vote
// name selects the standard vote
func (r *VoterRegistry) Cast(
	ctx context.Context,
	voterId string,
	voteName string,
	target string,
) error {
	vote, err := r.castable(voterId, voteName)
	if err != nil {
		return err
	}
	targetVoter, ok := r.voters[target]
	if !ok {
		return ErrInvalidTarget
	}
	if !targetVoter.IsVotable {
		return ErrTargetNotVotable
	}
	return r.inst.votes.Place(ctx, vote.ID, target)
}

// CastNoVote places the named vote of a voter on no one
func (r *VoterRegistry) CastNoVote(
	ctx context.Context,
	voterId string,
	voteName string,
) error {
	vote, err := r.castable(voterId, voteName)
	if err != nil {
		return err
	}
	return r.inst.votes.PlaceNoVote(ctx, vote.ID)
}

// Uncast removes the placement of the named vote of a voter
func (r *VoterRegistry) Uncast(
	ctx context.Context,
	voterId string,
	voteName string,
) error {
	vote, err := r.castable(voterId, voteName)
	if err != nil {
		return err
	}
	return r.inst.votes.Remove(ctx, vote.ID, false)
}

// load restores voters. A voter whose standard vote is missing is skipped
// and recreated by the next reconciliation
func (r *VoterRegistry) load(ctx context.Context) error {
	keys, err := r.inst.docs.listKeys(ctx, votersPrefix(r.inst.id))
	if err != nil {
		return err
	}
	for _, key := range keys {
		var voter Voter
		if err := r.inst.docs.get(ctx, key, &voter); err != nil {
			return err
		}
		if _, err := r.inst.votes.Get(voter.StandardVoteID); err != nil {
			r.inst.logger.Warn(
				"skipping voter without a standard vote",
				"voter", voter.ID,
			)
			continue
		}
		voter.SpecialVoteIDs = slices.DeleteFunc(
			voter.SpecialVoteIDs,
			func(id string) bool {
				_, err := r.inst.votes.Get(id)
				return err != nil
			},
		)
		r.voters[voter.ID] = &voter
	}
	r.inst.metrics.setVoters(r.inst.id, len(r.voters))
	return nil
}
