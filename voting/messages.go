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
	"fmt"
	"strings"
)

const (
	roundPausedMessage    = "Voting is paused."
	roundResumedMessage   = "Voting has resumed."
	roundResetMessage     = "All votes have been reset."
	roundCancelledMessage = "The round was cancelled."
)

func voteLabel(voterId string, voteName string) string {
	if voteName == "" || voteName == StandardVoteName {
		return voterId
	}
	return fmt.Sprintf("%s (%s vote)", voterId, voteName)
}

func votePlacedMessage(evt VotePlacedEvent) string {
	if evt.VoteId == "" {
		return ""
	}
	label := voteLabel(evt.VoterId, evt.VoteName)
	if evt.Target == "" {
		return label + " voted for no one."
	}
	return fmt.Sprintf("%s voted for %s.", label, evt.Target)
}

func voteRemovedMessage(evt VoteRemovedEvent) string {
	if evt.VoteId == "" {
		return ""
	}
	label := voteLabel(evt.VoterId, evt.VoteName)
	if evt.Forced && evt.PreviousTarget != "" {
		return fmt.Sprintf(
			"The vote of %s on %s was removed.",
			label,
			evt.PreviousTarget,
		)
	}
	return label + " removed their vote."
}

func roundEndedMessage(winners []string) string {
	switch len(winners) {
	case 0:
		return "The round has ended with no winner."
	case 1:
		return fmt.Sprintf("The round has ended. The winner is %s.", winners[0])
	default:
		return fmt.Sprintf(
			"The round has ended. The winners are %s.",
			strings.Join(winners, ", "),
		)
	}
}

func sourcesInvalidatedMessage(sources []VoterSource) string {
	if len(sources) == 0 {
		return ""
	}
	refs := make([]string, 0, len(sources))
	for _, src := range sources {
		refs = append(refs, fmt.Sprintf("%s %q", src.Kind(), src.Ref()))
	}
	return "Voter sources removed because they no longer exist: " +
		strings.Join(refs, ", ") + "."
}
