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
	"log/slog"
	"time"

	"github.com/blinklabs-io/tally/event"
)

type instanceInfo struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
}

// Instance is one voting instance: its voters, votes, channels and round,
// wired together through a private event bus. Instance methods must not be
// called concurrently
type Instance struct {
	createdAt time.Time
	docs      docStore
	resolver  MembershipResolver
	sink      MessageSink
	sources   VoterSourceManager
	bus       *event.EventBus
	logger    *slog.Logger
	metrics   *votingMetrics
	votes     *VoteRegistry
	voters    *VoterRegistry
	round     *RoundController
	channels  *ChannelRegistry
	id        string
	name      string
}

func newInstance(d *Directory, info instanceInfo) *Instance {
	logger := d.logger.With("instance", info.ID)
	inst := &Instance{
		id:        info.ID,
		name:      info.Name,
		createdAt: info.CreatedAt,
		docs:      d.docs,
		resolver:  d.config.Resolver,
		sink:      d.config.Sink,
		logger:    logger,
		metrics:   d.metrics,
		bus:       event.NewEventBus(d.config.PromRegistry, logger),
	}
	inst.votes = newVoteRegistry(inst)
	inst.voters = newVoterRegistry(inst)
	inst.round = newRoundController(inst)
	inst.channels = newChannelRegistry(inst, d.claims)
	// Broadcasts go out before the round reacts, so a vote is announced
	// before the round end it triggers
	inst.channels.subscribe()
	inst.round.subscribe()
	inst.votes.subscribe()
	inst.voters.subscribe()
	return inst
}

func (i *Instance) ID() string {
	return i.id
}

func (i *Instance) Name() string {
	return i.name
}

func (i *Instance) CreatedAt() time.Time {
	return i.createdAt
}

func (i *Instance) Votes() *VoteRegistry {
	return i.votes
}

func (i *Instance) Voters() *VoterRegistry {
	return i.voters
}

func (i *Instance) Round() *RoundController {
	return i.round
}

func (i *Instance) Channels() *ChannelRegistry {
	return i.channels
}

// Bus returns the event bus of the instance
func (i *Instance) Bus() *event.EventBus {
	return i.bus
}

// Refresh re-fetches the voter sources and reconciles the voters
func (i *Instance) Refresh(ctx context.Context) error {
	return i.voters.Reconcile(ctx)
}

func (i *Instance) info() instanceInfo {
	return instanceInfo{
		ID:        i.id,
		Name:      i.name,
		CreatedAt: i.createdAt,
	}
}

func (i *Instance) publish(
	ctx context.Context,
	eventType event.EventType,
	data any,
) error {
	return i.bus.Publish(ctx, eventType, event.NewEvent(eventType, data))
}

// load restores every entity of the instance. Votes load before voters so
// the standard vote of each voter can be checked
func (i *Instance) load(ctx context.Context) error {
	var doc sourcesDoc
	if err := i.docs.get(ctx, sourcesKey(i.id), &doc); err != nil {
		if !errors.Is(err, ErrDocumentNotFound) {
			return err
		}
	} else {
		mgr, err := sourceManagerFromDoc(doc)
		if err != nil {
			return err
		}
		i.sources = mgr
	}
	if err := i.votes.load(ctx); err != nil {
		return err
	}
	if err := i.voters.load(ctx); err != nil {
		return err
	}
	if err := i.channels.load(ctx); err != nil {
		return err
	}
	return i.round.load(ctx)
}

// close releases the channels of the instance and stops its bus
func (i *Instance) close() {
	i.channels.releaseAll()
	i.metrics.deleteVoters(i.id)
	i.bus.Stop()
}
