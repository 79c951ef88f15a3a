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
	"slices"
	"sync"

	"github.com/blinklabs-io/tally/event"
)

// ChannelClaims maps voting channels to the instance using them. It is
// shared by every instance of a directory
type ChannelClaims struct {
	owners map[string]string
	mu     sync.Mutex
}

func NewChannelClaims() *ChannelClaims {
	return &ChannelClaims{
		owners: make(map[string]string),
	}
}

// Claim assigns a channel to an instance. Claiming a channel the instance
// already owns succeeds
func (c *ChannelClaims) Claim(channel string, instanceId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claimLocked(channel, instanceId)
}

func (c *ChannelClaims) claimLocked(channel string, instanceId string) error {
	if owner, ok := c.owners[channel]; ok && owner != instanceId {
		return &ChannelClaimedError{Channel: channel, InstanceId: owner}
	}
	c.owners[channel] = instanceId
	return nil
}

// Release frees a channel owned by an instance
func (c *ChannelClaims) Release(channel string, instanceId string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseLocked(channel, instanceId)
}

func (c *ChannelClaims) releaseLocked(channel string, instanceId string) bool {
	if owner, ok := c.owners[channel]; !ok || owner != instanceId {
		return false
	}
	delete(c.owners, channel)
	return true
}

// ReleaseAll frees every channel owned by an instance
func (c *ChannelClaims) ReleaseAll(instanceId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for channel, owner := range c.owners {
		if owner == instanceId {
			delete(c.owners, channel)
		}
	}
}

// Replace releases one set of channels and claims another in a single
// step. It returns the channels claimed and those owned elsewhere
func (c *ChannelClaims) Replace(
	instanceId string,
	release []string,
	claim []string,
) ([]string, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, channel := range release {
		c.releaseLocked(channel, instanceId)
	}
	var claimed, unclaimed []string
	for _, channel := range claim {
		if slices.Contains(claimed, channel) {
			continue
		}
		if err := c.claimLocked(channel, instanceId); err != nil {
			unclaimed = append(unclaimed, channel)
			continue
		}
		claimed = append(claimed, channel)
	}
	return claimed, unclaimed
}

// Owner returns the instance owning a channel
func (c *ChannelClaims) Owner(channel string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[channel]
	return owner, ok
}

type channelsDoc struct {
	Voting []string `json:"voting"`
	Update []string `json:"update"`
}

// ChannelRegistry tracks the channels accepting votes and the channels
// receiving updates for one instance
type ChannelRegistry struct {
	inst   *Instance
	claims *ChannelClaims
	voting []string
	update []string
}

func newChannelRegistry(inst *Instance, claims *ChannelClaims) *ChannelRegistry {
	return &ChannelRegistry{
		inst:   inst,
		claims: claims,
	}
}

func (r *ChannelRegistry) persist(ctx context.Context, voting []string, update []string) error {
	return r.inst.docs.put(
		ctx,
		channelsKey(r.inst.id),
		channelsDoc{Voting: voting, Update: update},
	)
}

// AddVotingChannel claims a channel for this instance and accepts votes
// from it
func (r *ChannelRegistry) AddVotingChannel(ctx context.Context, channel string) error {
	if channel == "" {
		return ErrNotVotingChannel
	}
	if slices.Contains(r.voting, channel) {
		return ErrAlreadyVotingChannel
	}
	if err := r.claims.Claim(channel, r.inst.id); err != nil {
		return err
	}
	voting := append(slices.Clone(r.voting), channel)
	if err := r.persist(ctx, voting, r.update); err != nil {
		r.claims.Release(channel, r.inst.id)
		return err
	}
	r.voting = voting
	return nil
}

// RemoveVotingChannel stops accepting votes from a channel and releases it
func (r *ChannelRegistry) RemoveVotingChannel(ctx context.Context, channel string) error {
	if !slices.Contains(r.voting, channel) {
		return ErrNotVotingChannel
	}
	voting := slices.DeleteFunc(
		slices.Clone(r.voting),
		func(c string) bool { return c == channel },
	)
	if err := r.persist(ctx, voting, r.update); err != nil {
		return err
	}
	r.voting = voting
	r.claims.Release(channel, r.inst.id)
	return nil
}

// AddUpdateChannel adds a broadcast destination. Update channels may be
// shared between instances
func (r *ChannelRegistry) AddUpdateChannel(ctx context.Context, channel string) error {
	if channel == "" {
		return ErrNotUpdateChannel
	}
	if slices.Contains(r.update, channel) {
		return ErrAlreadyUpdateChannel
	}
	update := append(slices.Clone(r.update), channel)
	if err := r.persist(ctx, r.voting, update); err != nil {
		return err
	}
	r.update = update
	return nil
}

func (r *ChannelRegistry) RemoveUpdateChannel(ctx context.Context, channel string) error {
	if !slices.Contains(r.update, channel) {
		return ErrNotUpdateChannel
	}
	update := slices.DeleteFunc(
		slices.Clone(r.update),
		func(c string) bool { return c == channel },
	)
	if err := r.persist(ctx, r.voting, update); err != nil {
		return err
	}
	r.update = update
	return nil
}

// ImportFromCommunitySource replaces the voting channels with the channels
// of the designated community. Channels claimed by other instances are
// skipped and returned
func (r *ChannelRegistry) ImportFromCommunitySource(ctx context.Context) ([]string, error) {
	mgr, err := r.inst.communitySources()
	if err != nil {
		return nil, err
	}
	if mgr.Community() == "" {
		return nil, ErrNoCommunity
	}
	channels, err := r.inst.resolver.CommunityChannels(ctx, mgr.Community())
	if err != nil {
		return nil, err
	}
	previous := r.voting
	claimed, unclaimed := r.claims.Replace(r.inst.id, previous, channels)
	if err := r.persist(ctx, claimed, r.update); err != nil {
		r.claims.Replace(r.inst.id, claimed, previous)
		return nil, err
	}
	r.voting = claimed
	return unclaimed, nil
}

func (r *ChannelRegistry) IsVotingChannel(channel string) bool {
	return slices.Contains(r.voting, channel)
}

func (r *ChannelRegistry) IsUpdateChannel(channel string) bool {
	return slices.Contains(r.update, channel)
}

func (r *ChannelRegistry) VotingChannels() []string {
	return slices.Clone(r.voting)
}

func (r *ChannelRegistry) UpdateChannels() []string {
	return slices.Clone(r.update)
}

// Broadcast sends text to every update channel. Delivery failures are
// logged and do not stop the fan-out
func (r *ChannelRegistry) Broadcast(ctx context.Context, text string) {
	if r.inst.sink == nil {
		return
	}
	for _, channel := range r.update {
		if err := r.inst.sink.SendToChannel(ctx, channel, text); err != nil {
			r.inst.metrics.broadcastFailed()
			r.inst.logger.Warn(
				"broadcast delivery failed",
				"channel", channel,
				"error", err,
			)
		}
	}
}

func (r *ChannelRegistry) releaseAll() {
	r.claims.ReleaseAll(r.inst.id)
}

func (r *ChannelRegistry) load(ctx context.Context) error {
	var doc channelsDoc
	if err := r.inst.docs.get(ctx, channelsKey(r.inst.id), &doc); err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil
		}
		return err
	}
	r.update = doc.Update
	for _, channel := range doc.Voting {
		if err := r.claims.Claim(channel, r.inst.id); err != nil {
			r.inst.logger.Warn(
				"skipping voting channel claimed by another instance",
				"channel", channel,
				"error", err,
			)
			continue
		}
		r.voting = append(r.voting, channel)
	}
	return nil
}

func (r *ChannelRegistry) subscribe() {
	bus := r.inst.bus
	bus.SubscribeFunc(VotePlacedEventType, r.broadcastHandler(func(evt event.Event) string {
		data, _ := evt.Data.(VotePlacedEvent)
		return votePlacedMessage(data)
	}))
	bus.SubscribeFunc(VoteRemovedEventType, r.broadcastHandler(func(evt event.Event) string {
		data, _ := evt.Data.(VoteRemovedEvent)
		return voteRemovedMessage(data)
	}))
	bus.SubscribeFunc(RoundStartedEventType, r.broadcastHandler(func(evt event.Event) string {
		data, _ := evt.Data.(RoundStartedEvent)
		return data.Message
	}))
	bus.SubscribeFunc(RoundPausedEventType, r.broadcastHandler(func(event.Event) string {
		return roundPausedMessage
	}))
	bus.SubscribeFunc(RoundResumedEventType, r.broadcastHandler(func(event.Event) string {
		return roundResumedMessage
	}))
	bus.SubscribeFunc(RoundResetEventType, r.broadcastHandler(func(event.Event) string {
		return roundResetMessage
	}))
	bus.SubscribeFunc(RoundEndedEventType, r.broadcastHandler(func(evt event.Event) string {
		data, _ := evt.Data.(RoundEndedEvent)
		return roundEndedMessage(data.Winners)
	}))
	bus.SubscribeFunc(RoundCancelledEventType, r.broadcastHandler(func(event.Event) string {
		return roundCancelledMessage
	}))
	bus.SubscribeFunc(SourcesChangedEventType, r.broadcastHandler(func(evt event.Event) string {
		data, _ := evt.Data.(SourcesChangedEvent)
		return sourcesInvalidatedMessage(data.Invalidated)
	}))
}

// broadcastHandler returns a bus handler broadcasting the message built for
// an event. Empty messages are not sent
func (r *ChannelRegistry) broadcastHandler(
	message func(event.Event) string,
) event.EventHandlerFunc {
	return func(ctx context.Context, evt event.Event) error {
		if text := message(evt); text != "" {
			r.Broadcast(ctx, text)
		}
		return nil
	}
}
