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
	"errors"
	"fmt"

	"github.com/blinklabs-io/tally/database/types"
)

// Identity and reference errors
var (
	ErrInvalidInstanceId = errors.New("invalid voting instance id")
	ErrInvalidVoterId    = errors.New("invalid voter id")
	ErrInvalidVoteId     = errors.New("invalid vote id")
	ErrInvalidTarget     = errors.New("target is not a voter")
	ErrInvalidName       = errors.New("invalid voting instance name")
	ErrInvalidVoteName   = errors.New("invalid vote name")
	ErrSourceNotFound    = errors.New("voter source entity does not exist")
)

// State conflict errors
var (
	ErrAlreadyRunning            = errors.New("round already running")
	ErrNotRunning                = errors.New("round not running")
	ErrAlreadyActive             = errors.New("round already active")
	ErrNotActive                 = errors.New("round not active")
	ErrRoundNotActive            = errors.New("round is not accepting votes")
	ErrVoteFrozen                = errors.New("voter cannot vote")
	ErrTargetNotVotable          = errors.New("target cannot be voted for")
	ErrAlreadyPlacedOnSameTarget = errors.New("vote already placed on this target")
	ErrNotPlaced                 = errors.New("vote not placed")
	ErrSpecialVoteExists         = errors.New("voter already has a vote with this name")
)

// Source manager errors
var (
	ErrAlreadyPresent    = errors.New("source already present")
	ErrNotPresent        = errors.New("source not present")
	ErrConflict          = errors.New("identity is in the opposing list")
	ErrSourceInvalidated = errors.New("voter source invalidated")
	ErrNoCommunity       = errors.New("no community source configured")
)

// Configuration errors
var (
	ErrSourceManagerMissing   = errors.New("no voter source manager configured")
	ErrSourceManagerWrongType = errors.New("voter source manager does not support this operation")
	ErrNameAlreadyTaken       = errors.New("voting instance name already taken")
	ErrChannelClaimed         = errors.New("channel claimed by another voting instance")
	ErrAlreadyVotingChannel   = errors.New("channel is already a voting channel")
	ErrAlreadyUpdateChannel   = errors.New("channel is already an update channel")
	ErrNotVotingChannel       = errors.New("channel is not a voting channel")
	ErrNotUpdateChannel       = errors.New("channel is not an update channel")
	ErrUnknownRule            = errors.New("unknown round end rule")
	ErrInvalidRuleParams      = errors.New("invalid round end rule parameters")
	ErrRuleMismatch           = errors.New("operation not supported by the current round end rule")
)

// Collaborator errors
var (
	// ErrDocumentNotFound is reported by a Store for a missing key
	ErrDocumentNotFound = types.ErrDocumentNotFound
	// ErrEntityNotFound is reported by a MembershipResolver for a missing
	// role, identity, community or account
	ErrEntityNotFound = errors.New("entity not found")
)

// ChannelClaimedError reports the instance that currently holds a channel
type ChannelClaimedError struct {
	Channel    string
	InstanceId string
}

func (e *ChannelClaimedError) Error() string {
	return fmt.Sprintf(
		"channel %s is claimed by voting instance %s",
		e.Channel,
		e.InstanceId,
	)
}

func (e *ChannelClaimedError) Is(target error) bool {
	return target == ErrChannelClaimed
}

// SourceInvalidatedError is returned by a source fetch when the backing
// entity no longer exists
type SourceInvalidatedError struct {
	Source VoterSource
}

func (e *SourceInvalidatedError) Error() string {
	return fmt.Sprintf(
		"voter source %s %q no longer exists",
		e.Source.Kind(),
		e.Source.Ref(),
	)
}

func (e *SourceInvalidatedError) Is(target error) bool {
	return target == ErrSourceInvalidated
}
