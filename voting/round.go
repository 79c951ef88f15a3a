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
	"time"

	"github.com/blinklabs-io/tally/event"
)

// RoundStatus is a snapshot of the round state
type RoundStatus struct {
	StartedAt     time.Time
	Rule          RuleKind
	Threshold     int
	WinnerCount   int
	AutoThreshold bool
	Running       bool
	Active        bool
}

type roundDoc struct {
	StartedAt time.Time     `json:"startedAt,omitzero"`
	Rule      RuleKind      `json:"rule,omitempty"`
	Params    RuleParams    `json:"params"`
	Tally     []TallyBucket `json:"tally,omitempty"`
	Running   bool          `json:"running"`
	Active    bool          `json:"active"`
}

type roundSnapshot struct {
	startedAt time.Time
	rule      RoundEndRule
	tally     *Tally
	running   bool
	active    bool
}

// RoundController drives the round lifecycle and keeps the tally in line
// with vote placements
type RoundController struct {
	inst      *Instance
	rule      RoundEndRule
	tally     *Tally
	startedAt time.Time
	running   bool
	active    bool
}

func newRoundController(inst *Instance) *RoundController {
	return &RoundController{
		inst:  inst,
		tally: NewTally(),
	}
}

func (c *RoundController) subscribe() {
	bus := c.inst.bus
	bus.SubscribeFunc(VotePlacedEventType, c.handleVotePlaced)
	bus.SubscribeFunc(VoteRemovedEventType, c.handleVoteRemoved)
	bus.SubscribeFunc(VoteDeletedEventType, c.handleVoteDeleted)
	bus.SubscribeFunc(VoteCreatedEventType, c.handleVoteCountChanged)
	bus.SubscribeFunc(VoterCreatedEventType, c.handleVoteCountChanged)
	bus.SubscribeFunc(VoterUpdatedEventType, c.handleVoteCountChanged)
}

func (c *RoundController) handleVotePlaced(ctx context.Context, evt event.Event) error {
	data, ok := evt.Data.(VotePlacedEvent)
	if !ok || !c.running {
		return nil
	}
	c.tally.Place(data.VoteId, data.Target)
	if err := c.persist(ctx); err != nil {
		return err
	}
	if !c.active {
		return nil
	}
	if winners, end := c.rule.CheckEnding(c.tally, c); end {
		return c.Hammer(ctx, winners)
	}
	return nil
}

func (c *RoundController) handleVoteRemoved(ctx context.Context, evt event.Event) error {
	data, ok := evt.Data.(VoteRemovedEvent)
	if !ok || !c.tally.Remove(data.VoteId) {
		return nil
	}
	return c.persist(ctx)
}

func (c *RoundController) handleVoteDeleted(ctx context.Context, evt event.Event) error {
	data, ok := evt.Data.(VoteDeletedEvent)
	if !ok {
		return nil
	}
	c.recount()
	if !c.tally.Remove(data.Vote.ID) {
		return nil
	}
	return c.persist(ctx)
}

func (c *RoundController) handleVoteCountChanged(context.Context, event.Event) error {
	c.recount()
	return nil
}

func (c *RoundController) recount() {
	if !c.running {
		return
	}
	if observer, ok := c.rule.(VoteCountObserver); ok {
		observer.VoteCountChanged(c.VoteCount())
	}
}

// VoteCount returns the number of votes owned by voters who can vote
func (c *RoundController) VoteCount() int {
	count := 0
	for _, vote := range c.inst.votes.votes {
		voter, ok := c.inst.voters.voters[vote.VoterID]
		if ok && voter.CanVote {
			count++
		}
	}
	return count
}

// Modifier returns the modifier of a target voter
func (c *RoundController) Modifier(target string) int {
	return c.inst.voters.modifier(target)
}

func (c *RoundController) IsRunning() bool {
	return c.running
}

// IsActive reports whether the round accepts votes
func (c *RoundController) IsActive() bool {
	return c.running && c.active
}

func (c *RoundController) snapshot() roundSnapshot {
	return roundSnapshot{
		startedAt: c.startedAt,
		rule:      c.rule,
		tally:     c.tally.clone(),
		running:   c.running,
		active:    c.active,
	}
}

func (c *RoundController) restore(s roundSnapshot) {
	c.startedAt = s.startedAt
	c.rule = s.rule
	c.tally = s.tally
	c.running = s.running
	c.active = s.active
}

// transition applies a state change and persists it. The previous state is
// restored if persisting fails
func (c *RoundController) transition(ctx context.Context, apply func()) error {
	saved := c.snapshot()
	apply()
	if err := c.persist(ctx); err != nil {
		c.restore(saved)
		return err
	}
	return nil
}

// Start begins a round with a fresh tally and the given end rule
func (c *RoundController) Start(
	ctx context.Context,
	kind RuleKind,
	params RuleParams,
) error {
	if c.running {
		return ErrAlreadyRunning
	}
	rule, err := NewRule(kind, params)
	if err != nil {
		return err
	}
	rule.Start(c)
	err = c.transition(ctx, func() {
		c.rule = rule
		c.tally.Clear()
		c.startedAt = time.Now()
		c.running = true
		c.active = true
	})
	if err != nil {
		return err
	}
	c.inst.metrics.roundStarted(kind)
	c.inst.logger.Info("round started", "rule", kind)
	return c.inst.publish(
		ctx,
		RoundStartedEventType,
		RoundStartedEvent{Rule: kind, Message: rule.StartMessage()},
	)
}

// End closes the round, letting the rule pick the winners
func (c *RoundController) End(ctx context.Context) error {
	if !c.running {
		return ErrNotRunning
	}
	return c.Hammer(ctx, c.rule.AutoEnd(c.tally, c))
}

// Hammer ends the round with the given winners. No winners, or only the
// empty no-vote target, ends the round without a winner
func (c *RoundController) Hammer(ctx context.Context, winners []string) error {
	if !c.running {
		return ErrNotRunning
	}
	var cleaned []string
	for _, winner := range winners {
		if winner == "" || slices.Contains(cleaned, winner) {
			continue
		}
		if !c.inst.voters.exists(winner) {
			return ErrInvalidTarget
		}
		cleaned = append(cleaned, winner)
	}
	err := c.transition(ctx, func() {
		c.running = false
		c.active = false
	})
	if err != nil {
		return err
	}
	outcome := "winner"
	if len(cleaned) == 0 {
		outcome = "no_winner"
	}
	c.inst.metrics.roundEnded(outcome)
	c.inst.logger.Info("round ended", "winners", cleaned)
	return c.inst.publish(
		ctx,
		RoundEndedEventType,
		RoundEndedEvent{Winners: cleaned},
	)
}

func (c *RoundController) Pause(ctx context.Context) error {
	if !c.running {
		return ErrNotRunning
	}
	if !c.active {
		return ErrNotActive
	}
	if err := c.transition(ctx, func() { c.active = false }); err != nil {
		return err
	}
	return c.inst.publish(ctx, RoundPausedEventType, RoundPausedEvent{})
}

func (c *RoundController) Resume(ctx context.Context) error {
	if !c.running {
		return ErrNotRunning
	}
	if c.active {
		return ErrAlreadyActive
	}
	if err := c.transition(ctx, func() { c.active = true }); err != nil {
		return err
	}
	return c.inst.publish(ctx, RoundResumedEventType, RoundResumedEvent{})
}

// Reset clears the tally and every vote placement. The round keeps running
func (c *RoundController) Reset(ctx context.Context) error {
	if !c.running {
		return ErrNotRunning
	}
	if err := c.transition(ctx, func() { c.tally.Clear() }); err != nil {
		return err
	}
	return c.inst.publish(ctx, RoundResetEventType, RoundResetEvent{})
}

// Cancel ends the round without winners
func (c *RoundController) Cancel(ctx context.Context) error {
	if !c.running {
		return ErrNotRunning
	}
	err := c.transition(ctx, func() {
		c.running = false
		c.active = false
	})
	if err != nil {
		return err
	}
	c.inst.metrics.roundEnded("cancelled")
	return c.inst.publish(ctx, RoundCancelledEventType, RoundCancelledEvent{})
}

// SetThreshold pins the majority threshold. Zero restores the automatic
// threshold
func (c *RoundController) SetThreshold(ctx context.Context, threshold int) error {
	if !c.running {
		return ErrNotRunning
	}
	majority, ok := c.rule.(*MajorityRule)
	if !ok {
		return ErrRuleMismatch
	}
	if threshold < 0 {
		return ErrInvalidRuleParams
	}
	return c.transition(ctx, func() {
		c.rule = majority.withThreshold(threshold, c.VoteCount())
	})
}

// Status returns a snapshot of the round state
func (c *RoundController) Status() RoundStatus {
	ret := RoundStatus{
		Running:   c.running,
		Active:    c.active,
		StartedAt: c.startedAt,
	}
	if c.rule != nil {
		ret.Rule = c.rule.Kind()
	}
	switch rule := c.rule.(type) {
	case *MajorityRule:
		ret.Threshold = rule.Threshold()
		ret.AutoThreshold = rule.AutoComputed()
	case *PluralityRule:
		ret.WinnerCount = rule.WinnerCount()
	}
	return ret
}

// Tally returns the current buckets in fill order
func (c *RoundController) Tally() []TallyBucket {
	return c.tally.Buckets()
}

func (c *RoundController) persist(ctx context.Context) error {
	doc := roundDoc{
		Running:   c.running,
		Active:    c.active,
		StartedAt: c.startedAt,
		Tally:     c.tally.Buckets(),
	}
	if c.rule != nil {
		doc.Rule = c.rule.Kind()
		doc.Params = c.rule.Params()
	}
	return c.inst.docs.put(ctx, roundKey(c.inst.id), &doc)
}

// load restores the round. The tally keeps its persisted order but only
// holds votes which are actually placed on the bucket target
func (c *RoundController) load(ctx context.Context) error {
	var doc roundDoc
	if err := c.inst.docs.get(ctx, roundKey(c.inst.id), &doc); err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil
		}
		return err
	}
	c.running = doc.Running
	c.active = doc.Active
	c.startedAt = doc.StartedAt
	if doc.Rule != "" {
		rule, err := NewRule(doc.Rule, doc.Params)
		if err != nil {
			return err
		}
		c.rule = rule
	}
	if c.running && c.rule == nil {
		return ErrUnknownRule
	}
	c.tally.Clear()
	for _, bucket := range doc.Tally {
		for _, voteId := range bucket.VoteIds {
			vote, ok := c.inst.votes.votes[voteId]
			if ok && vote.Placed && vote.Target == bucket.Target {
				c.tally.Place(voteId, bucket.Target)
			}
		}
	}
	for _, vote := range c.inst.votes.List() {
		if vote.Placed {
			c.tally.Place(vote.ID, vote.Target)
		}
	}
	if c.running {
		c.rule.Start(c)
	}
	return nil
}
