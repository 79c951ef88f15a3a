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
	"cmp"
	"fmt"
	"slices"
	"sync"
)

type RuleKind string

const (
	RuleKindMajority  RuleKind = "majority"
	RuleKindPlurality RuleKind = "plurality"
)

// RuleParams configures a round end rule
type RuleParams struct {
	// Threshold pins the majority threshold. Zero computes it from the
	// number of votes
	Threshold int `json:"threshold,omitempty"`
	// WinnerCount is the number of plurality winners, at least one
	WinnerCount int `json:"winnerCount,omitempty"`
}

// RuleContext exposes the instance state a rule may consult
type RuleContext interface {
	// VoteCount returns the number of votes owned by voters who can vote
	VoteCount() int
	// Modifier returns the modifier of a target voter
	Modifier(target string) int
}

// RoundEndRule decides when and how a round ends. Rules only return
// decisions; the RoundController ends the round
type RoundEndRule interface {
	Kind() RuleKind
	Params() RuleParams
	// Start is called when the round starts
	Start(rc RuleContext)
	StartMessage() string
	// CheckEnding runs after every placement and reports the winners when
	// the round should end immediately
	CheckEnding(tally *Tally, rc RuleContext) ([]string, bool)
	// AutoEnd picks the winners when the round is closed. No winners, or
	// only the no-vote target, means the round ends without a winner
	AutoEnd(tally *Tally, rc RuleContext) []string
}

// VoteCountObserver is implemented by rules which follow the number of
// votes during a round
type VoteCountObserver interface {
	VoteCountChanged(count int)
}

type RuleFactory func(params RuleParams) (RoundEndRule, error)

var ruleRegistry = struct {
	factories map[RuleKind]RuleFactory
	mu        sync.RWMutex
}{
	factories: map[RuleKind]RuleFactory{
		RuleKindMajority:  NewMajorityRule,
		RuleKindPlurality: NewPluralityRule,
	},
}

// RegisterRule makes a round end rule available to RoundController.Start
func RegisterRule(kind RuleKind, factory RuleFactory) {
	ruleRegistry.mu.Lock()
	defer ruleRegistry.mu.Unlock()
	ruleRegistry.factories[kind] = factory
}

// NewRule builds a registered round end rule
func NewRule(kind RuleKind, params RuleParams) (RoundEndRule, error) {
	ruleRegistry.mu.RLock()
	factory, ok := ruleRegistry.factories[kind]
	ruleRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRule, kind)
	}
	return factory(params)
}

// MajorityRule ends the round as soon as a target reaches the threshold
// plus its modifier
type MajorityRule struct {
	pinned    int
	threshold int
}

func NewMajorityRule(params RuleParams) (RoundEndRule, error) {
	if params.Threshold < 0 {
		return nil, fmt.Errorf(
			"%w: threshold must not be negative",
			ErrInvalidRuleParams,
		)
	}
	return &MajorityRule{
		pinned:    params.Threshold,
		threshold: max(params.Threshold, 1),
	}, nil
}

func (r *MajorityRule) Kind() RuleKind { return RuleKindMajority }

func (r *MajorityRule) Params() RuleParams {
	return RuleParams{Threshold: r.pinned}
}

// Threshold returns the current number of votes needed
func (r *MajorityRule) Threshold() int { return r.threshold }

// AutoComputed reports whether the threshold follows the vote count
func (r *MajorityRule) AutoComputed() bool { return r.pinned == 0 }

func (r *MajorityRule) Start(rc RuleContext) {
	r.VoteCountChanged(rc.VoteCount())
}

func (r *MajorityRule) VoteCountChanged(count int) {
	if r.pinned > 0 {
		return
	}
	r.threshold = count/2 + 1
}

// withThreshold returns a copy with the threshold pinned. Zero unpins it
func (r *MajorityRule) withThreshold(threshold int, count int) *MajorityRule {
	ret := &MajorityRule{pinned: threshold, threshold: threshold}
	if threshold == 0 {
		ret.VoteCountChanged(count)
	}
	return ret
}

func (r *MajorityRule) StartMessage() string {
	return fmt.Sprintf(
		"A majority round has started. %d votes are needed to end it.",
		r.threshold,
	)
}

func (r *MajorityRule) qualifying(tally *Tally, rc RuleContext) []string {
	var ret []string
	for _, bucket := range tally.Buckets() {
		needed := r.threshold
		if bucket.Target != "" {
			needed += rc.Modifier(bucket.Target)
		}
		if len(bucket.VoteIds) >= needed {
			ret = append(ret, bucket.Target)
		}
	}
	return ret
}

// CheckEnding returns every target at or above the threshold
func (r *MajorityRule) CheckEnding(tally *Tally, rc RuleContext) ([]string, bool) {
	winners := r.qualifying(tally, rc)
	return winners, len(winners) > 0
}

func (r *MajorityRule) AutoEnd(tally *Tally, rc RuleContext) []string {
	return r.qualifying(tally, rc)
}

// PluralityRule ends only when closed, electing the most voted targets
type PluralityRule struct {
	winnerCount int
}

func NewPluralityRule(params RuleParams) (RoundEndRule, error) {
	winnerCount := params.WinnerCount
	if winnerCount == 0 {
		winnerCount = 1
	}
	if winnerCount < 0 {
		return nil, fmt.Errorf(
			"%w: winner count must be positive",
			ErrInvalidRuleParams,
		)
	}
	return &PluralityRule{winnerCount: winnerCount}, nil
}

func (r *PluralityRule) Kind() RuleKind { return RuleKindPlurality }

func (r *PluralityRule) Params() RuleParams {
	return RuleParams{WinnerCount: r.winnerCount}
}

func (r *PluralityRule) WinnerCount() int { return r.winnerCount }

func (r *PluralityRule) Start(RuleContext) {}

func (r *PluralityRule) StartMessage() string {
	if r.winnerCount == 1 {
		return "A plurality round has started. The most voted player wins."
	}
	return fmt.Sprintf(
		"A plurality round has started. The %d most voted players win.",
		r.winnerCount,
	)
}

func (r *PluralityRule) CheckEnding(*Tally, RuleContext) ([]string, bool) {
	return nil, false
}

// AutoEnd keeps the winnerCount largest buckets. A bucket replaces the
// current minimum only with strictly more votes, and the evicted minimum is
// the last selected among equals, so ties for the last slot go to the bucket
// filled first. The no-vote bucket never wins
func (r *PluralityRule) AutoEnd(tally *Tally, _ RuleContext) []string {
	type candidate struct {
		target string
		count  int
	}
	selected := make([]candidate, 0, r.winnerCount)
	for _, bucket := range tally.Buckets() {
		if bucket.Target == "" {
			continue
		}
		c := candidate{target: bucket.Target, count: len(bucket.VoteIds)}
		if len(selected) < r.winnerCount {
			selected = append(selected, c)
			continue
		}
		minIdx := 0
		for idx := range selected {
			if selected[idx].count <= selected[minIdx].count {
				minIdx = idx
			}
		}
		if c.count > selected[minIdx].count {
			selected[minIdx] = c
		}
	}
	slices.SortStableFunc(selected, func(a, b candidate) int {
		return cmp.Compare(b.count, a.count)
	})
	ret := make([]string, 0, len(selected))
	for _, c := range selected {
		ret = append(ret, c.target)
	}
	return ret
}
