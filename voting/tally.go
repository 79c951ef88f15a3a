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

import "slices"

// TallyBucket holds the votes placed on one target. An empty target is the
// no-vote bucket
type TallyBucket struct {
	Target  string   `json:"target"`
	VoteIds []string `json:"voteIds"`
}

// Tally maps targets to the votes placed on them. Buckets keep the order in
// which they were first filled and empty buckets are pruned
type Tally struct {
	order   []string
	buckets map[string][]string
	targets map[string]string
}

func NewTally() *Tally {
	return &Tally{
		buckets: make(map[string][]string),
		targets: make(map[string]string),
	}
}

// Place moves a vote into the bucket of a target
func (t *Tally) Place(voteId string, target string) {
	if prev, ok := t.targets[voteId]; ok {
		if prev == target {
			return
		}
		t.removeFromBucket(prev, voteId)
	}
	if _, ok := t.buckets[target]; !ok {
		t.order = append(t.order, target)
	}
	t.buckets[target] = append(t.buckets[target], voteId)
	t.targets[voteId] = target
}

// Remove takes a vote out of its bucket. It returns false if the vote was
// not tallied
func (t *Tally) Remove(voteId string) bool {
	target, ok := t.targets[voteId]
	if !ok {
		return false
	}
	t.removeFromBucket(target, voteId)
	delete(t.targets, voteId)
	return true
}

func (t *Tally) removeFromBucket(target string, voteId string) {
	bucket := slices.DeleteFunc(
		t.buckets[target],
		func(id string) bool { return id == voteId },
	)
	if len(bucket) > 0 {
		t.buckets[target] = bucket
		return
	}
	delete(t.buckets, target)
	t.order = slices.DeleteFunc(
		t.order,
		func(key string) bool { return key == target },
	)
}

func (t *Tally) Clear() {
	t.order = nil
	clear(t.buckets)
	clear(t.targets)
}

// Count returns the number of votes placed on a target
func (t *Tally) Count(target string) int {
	return len(t.buckets[target])
}

// Len returns the number of tallied votes
func (t *Tally) Len() int {
	return len(t.targets)
}

// Buckets returns a copy of the buckets in fill order
func (t *Tally) Buckets() []TallyBucket {
	ret := make([]TallyBucket, 0, len(t.order))
	for _, target := range t.order {
		ret = append(ret, TallyBucket{
			Target:  target,
			VoteIds: slices.Clone(t.buckets[target]),
		})
	}
	return ret
}

func (t *Tally) clone() *Tally {
	ret := NewTally()
	for _, bucket := range t.Buckets() {
		for _, voteId := range bucket.VoteIds {
			ret.Place(voteId, bucket.Target)
		}
	}
	return ret
}
