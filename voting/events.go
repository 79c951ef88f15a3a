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

import "github.com/blinklabs-io/tally/event"

const (
	VotePlacedEventType     event.EventType = "voting.vote.placed"
	VoteRemovedEventType    event.EventType = "voting.vote.removed"
	VoteCreatedEventType    event.EventType = "voting.vote.created"
	VoteDeletedEventType    event.EventType = "voting.vote.deleted"
	VoterCreatedEventType   event.EventType = "voting.voter.created"
	VoterDeletedEventType   event.EventType = "voting.voter.deleted"
	VoterUpdatedEventType   event.EventType = "voting.voter.updated"
	SourcesChangedEventType event.EventType = "voting.sources.changed"
	RoundStartedEventType   event.EventType = "voting.round.started"
	RoundPausedEventType    event.EventType = "voting.round.paused"
	RoundResumedEventType   event.EventType = "voting.round.resumed"
	RoundResetEventType     event.EventType = "voting.round.reset"
	RoundEndedEventType     event.EventType = "voting.round.ended"
	RoundCancelledEventType event.EventType = "voting.round.cancelled"
)

// VotePlacedEvent is emitted when a vote is placed or moved. Target is empty
// for a no-vote
type VotePlacedEvent struct {
	VoteId         string
	VoteName       string
	VoterId        string
	Target         string
	PreviousTarget string
	WasPlaced      bool
}

type VoteRemovedEvent struct {
	VoteId         string
	VoteName       string
	VoterId        string
	PreviousTarget string
	Forced         bool
}

type VoteCreatedEvent struct {
	VoteId  string
	VoterId string
}

type VoteDeletedEvent struct {
	Vote Vote
}

type VoterCreatedEvent struct {
	VoterId string
}

type VoterDeletedEvent struct {
	VoterId string
}

type VoterUpdatedEvent struct {
	Voter Voter
}

type SourcesChangedEvent struct {
	Kind SourceManagerKind
	// Invalidated lists sources dropped because their backing entity
	// disappeared
	Invalidated []VoterSource
}

type RoundStartedEvent struct {
	Rule    RuleKind
	Message string
}

type RoundPausedEvent struct{}

type RoundResumedEvent struct{}

type RoundResetEvent struct{}

type RoundEndedEvent struct {
	// Winners is empty when the round ended without a winner
	Winners []string
}

type RoundCancelledEvent struct{}
