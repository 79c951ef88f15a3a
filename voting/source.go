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
)

type SourceKind string

const (
	SourceKindRole      SourceKind = "role"
	SourceKindUser      SourceKind = "user"
	SourceKindCommunity SourceKind = "community"
	SourceKindAccount   SourceKind = "account"
)

// VoterSource is one external membership provider. Members are fetched
// fresh on every call. A source whose backing entity no longer exists
// returns a *SourceInvalidatedError
type VoterSource interface {
	Kind() SourceKind
	// Ref identifies the backing entity
	Ref() string
	FetchMembers(ctx context.Context, resolver MembershipResolver) ([]string, error)
}

func sourceFetchError(src VoterSource, err error) error {
	if errors.Is(err, ErrEntityNotFound) {
		return &SourceInvalidatedError{Source: src}
	}
	return fmt.Errorf("fetch %s source %q: %w", src.Kind(), src.Ref(), err)
}

// RoleSource yields the identities currently holding a role
type RoleSource struct {
	Role string
}

func (s RoleSource) Kind() SourceKind { return SourceKindRole }

func (s RoleSource) Ref() string { return s.Role }

func (s RoleSource) FetchMembers(
	ctx context.Context,
	resolver MembershipResolver,
) ([]string, error) {
	members, err := resolver.RoleMembers(ctx, s.Role)
	if err != nil {
		return nil, sourceFetchError(s, err)
	}
	return members, nil
}

// UserSource yields a single pinned identity
type UserSource struct {
	Identity string
}

func (s UserSource) Kind() SourceKind { return SourceKindUser }

func (s UserSource) Ref() string { return s.Identity }

func (s UserSource) FetchMembers(
	ctx context.Context,
	resolver MembershipResolver,
) ([]string, error) {
	exists, err := resolver.IdentityExists(ctx, s.Identity)
	if err != nil {
		return nil, sourceFetchError(s, err)
	}
	if !exists {
		return nil, &SourceInvalidatedError{Source: s}
	}
	return []string{s.Identity}, nil
}

// CommunitySource yields every account of a community
type CommunitySource struct {
	Community string
}

func (s CommunitySource) Kind() SourceKind { return SourceKindCommunity }

func (s CommunitySource) Ref() string { return s.Community }

func (s CommunitySource) FetchMembers(
	ctx context.Context,
	resolver MembershipResolver,
) ([]string, error) {
	accounts, err := resolver.CommunityAccounts(ctx, s.Community)
	if err != nil {
		return nil, sourceFetchError(s, err)
	}
	return accounts, nil
}

// AccountSource yields a single account of a community
type AccountSource struct {
	Community string
	Account   string
}

func (s AccountSource) Kind() SourceKind { return SourceKindAccount }

func (s AccountSource) Ref() string { return s.Account }

func (s AccountSource) FetchMembers(
	ctx context.Context,
	resolver MembershipResolver,
) ([]string, error) {
	exists, err := resolver.AccountExists(ctx, s.Community, s.Account)
	if err != nil {
		return nil, sourceFetchError(s, err)
	}
	if !exists {
		return nil, &SourceInvalidatedError{Source: s}
	}
	return []string{s.Account}, nil
}
