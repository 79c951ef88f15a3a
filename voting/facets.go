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

// RoleFacet manages role sources of an identity-based instance
type RoleFacet interface {
	AddRole(ctx context.Context, role string) error
	RemoveRole(ctx context.Context, role string) error
	Roles() []string
}

// UserFacet manages the whitelist and blacklist of an identity-based
// instance
type UserFacet interface {
	Whitelist(ctx context.Context, identity string) error
	Unwhitelist(ctx context.Context, identity string) error
	Blacklist(ctx context.Context, identity string) error
	Unblacklist(ctx context.Context, identity string) error
	Whitelisted() []string
	Blacklisted() []string
}

// CommunityFacet manages the community source of a community-based
// instance
type CommunityFacet interface {
	SetCommunity(ctx context.Context, community string) error
	ClearCommunity(ctx context.Context) error
	Community() string
}

// AccountFacet manages blocked accounts of a community-based instance
type AccountFacet interface {
	BlockAccount(ctx context.Context, account string) error
	UnblockAccount(ctx context.Context, account string) error
	BlockedAccounts() []string
}

// Roles returns the role facet of the source manager
func (i *Instance) Roles() (RoleFacet, error) {
	if _, err := i.identitySources(); err != nil {
		return nil, err
	}
	return identityFacet{inst: i}, nil
}

// Users returns the whitelist/blacklist facet of the source manager
func (i *Instance) Users() (UserFacet, error) {
	if _, err := i.identitySources(); err != nil {
		return nil, err
	}
	return identityFacet{inst: i}, nil
}

// Community returns the community facet of the source manager
func (i *Instance) Community() (CommunityFacet, error) {
	if _, err := i.communitySources(); err != nil {
		return nil, err
	}
	return communityFacet{inst: i}, nil
}

// Accounts returns the blocked account facet of the source manager
func (i *Instance) Accounts() (AccountFacet, error) {
	if _, err := i.communitySources(); err != nil {
		return nil, err
	}
	return communityFacet{inst: i}, nil
}

func (i *Instance) identitySources() (*IdentitySourceManager, error) {
	if i.sources == nil {
		return nil, ErrSourceManagerMissing
	}
	mgr, ok := i.sources.(*IdentitySourceManager)
	if !ok {
		return nil, ErrSourceManagerWrongType
	}
	return mgr, nil
}

func (i *Instance) communitySources() (*CommunitySourceManager, error) {
	if i.sources == nil {
		return nil, ErrSourceManagerMissing
	}
	mgr, ok := i.sources.(*CommunitySourceManager)
	if !ok {
		return nil, ErrSourceManagerWrongType
	}
	return mgr, nil
}

// SourceManager returns the configured voter source manager
func (i *Instance) SourceManager() (VoterSourceManager, error) {
	if i.sources == nil {
		return nil, ErrSourceManagerMissing
	}
	return i.sources, nil
}

// SetSourceType installs an empty source manager of the given kind and
// reconciles voters against it
func (i *Instance) SetSourceType(ctx context.Context, kind SourceManagerKind) error {
	mgr, err := NewSourceManager(kind)
	if err != nil {
		return err
	}
	if err := i.docs.put(ctx, sourcesKey(i.id), mgr.doc()); err != nil {
		return err
	}
	i.sources = mgr
	i.logger.Info("voter source type set", "kind", kind)
	return i.publish(ctx, SourcesChangedEventType, SourcesChangedEvent{Kind: kind})
}

// mutateSources applies a change to a copy of the source manager, checks
// that the added source exists, then persists and installs the copy
func (i *Instance) mutateSources(
	ctx context.Context,
	added VoterSource,
	mutate func(VoterSourceManager) error,
) error {
	if i.sources == nil {
		return ErrSourceManagerMissing
	}
	updated := i.sources.clone()
	if err := mutate(updated); err != nil {
		return err
	}
	if added != nil {
		if _, err := added.FetchMembers(ctx, i.resolver); err != nil {
			if errors.Is(err, ErrSourceInvalidated) {
				return fmt.Errorf("%w: %s %q", ErrSourceNotFound, added.Kind(), added.Ref())
			}
			return err
		}
	}
	if err := i.docs.put(ctx, sourcesKey(i.id), updated.doc()); err != nil {
		return err
	}
	i.sources = updated
	return i.publish(
		ctx,
		SourcesChangedEventType,
		SourcesChangedEvent{Kind: updated.Kind()},
	)
}

func (i *Instance) dropInvalidatedSources(
	ctx context.Context,
	sources []VoterSource,
) error {
	updated := i.sources.clone()
	for _, src := range sources {
		updated.drop(src)
		i.logger.Info(
			"dropping invalidated voter source",
			"kind", src.Kind(),
			"ref", src.Ref(),
		)
	}
	if err := i.docs.put(ctx, sourcesKey(i.id), updated.doc()); err != nil {
		return err
	}
	i.sources = updated
	return i.publish(
		ctx,
		SourcesChangedEventType,
		SourcesChangedEvent{Kind: updated.Kind(), Invalidated: sources},
	)
}

func withIdentity(fn func(*IdentitySourceManager) error) func(VoterSourceManager) error {
	return func(mgr VoterSourceManager) error {
		m, ok := mgr.(*IdentitySourceManager)
		if !ok {
			return ErrSourceManagerWrongType
		}
		return fn(m)
	}
}

func withCommunity(fn func(*CommunitySourceManager) error) func(VoterSourceManager) error {
	return func(mgr VoterSourceManager) error {
		m, ok := mgr.(*CommunitySourceManager)
		if !ok {
			return ErrSourceManagerWrongType
		}
		return fn(m)
	}
}

type identityFacet struct {
	inst *Instance
}

func (f identityFacet) AddRole(ctx context.Context, role string) error {
	if role == "" {
		return ErrSourceNotFound
	}
	return f.inst.mutateSources(
		ctx,
		RoleSource{Role: role},
		withIdentity(func(m *IdentitySourceManager) error { return m.AddRole(role) }),
	)
}

func (f identityFacet) RemoveRole(ctx context.Context, role string) error {
	return f.inst.mutateSources(
		ctx,
		nil,
		withIdentity(func(m *IdentitySourceManager) error { return m.RemoveRole(role) }),
	)
}

func (f identityFacet) Whitelist(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrSourceNotFound
	}
	return f.inst.mutateSources(
		ctx,
		UserSource{Identity: identity},
		withIdentity(func(m *IdentitySourceManager) error { return m.Whitelist(identity) }),
	)
}

func (f identityFacet) Unwhitelist(ctx context.Context, identity string) error {
	return f.inst.mutateSources(
		ctx,
		nil,
		withIdentity(func(m *IdentitySourceManager) error { return m.Unwhitelist(identity) }),
	)
}

func (f identityFacet) Blacklist(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrSourceNotFound
	}
	return f.inst.mutateSources(
		ctx,
		UserSource{Identity: identity},
		withIdentity(func(m *IdentitySourceManager) error { return m.Blacklist(identity) }),
	)
}

func (f identityFacet) Unblacklist(ctx context.Context, identity string) error {
	return f.inst.mutateSources(
		ctx,
		nil,
		withIdentity(func(m *IdentitySourceManager) error { return m.Unblacklist(identity) }),
	)
}

func (f identityFacet) Roles() []string {
	if m, err := f.inst.identitySources(); err == nil {
		return m.Roles()
	}
	return nil
}

func (f identityFacet) Whitelisted() []string {
	if m, err := f.inst.identitySources(); err == nil {
		return m.Whitelisted()
	}
	return nil
}

func (f identityFacet) Blacklisted() []string {
	if m, err := f.inst.identitySources(); err == nil {
		return m.Blacklisted()
	}
	return nil
}

type communityFacet struct {
	inst *Instance
}

func (f communityFacet) SetCommunity(ctx context.Context, community string) error {
	if community == "" {
		return ErrSourceNotFound
	}
	return f.inst.mutateSources(
		ctx,
		CommunitySource{Community: community},
		withCommunity(func(m *CommunitySourceManager) error { return m.SetCommunity(community) }),
	)
}

func (f communityFacet) ClearCommunity(ctx context.Context) error {
	return f.inst.mutateSources(
		ctx,
		nil,
		withCommunity(func(m *CommunitySourceManager) error { return m.ClearCommunity() }),
	)
}

func (f communityFacet) BlockAccount(ctx context.Context, account string) error {
	if account == "" {
		return ErrSourceNotFound
	}
	// Accounts can only be checked against a designated community
	var added VoterSource
	if community := f.Community(); community != "" {
		added = AccountSource{Community: community, Account: account}
	}
	return f.inst.mutateSources(
		ctx,
		added,
		withCommunity(func(m *CommunitySourceManager) error { return m.BlockAccount(account) }),
	)
}

func (f communityFacet) UnblockAccount(ctx context.Context, account string) error {
	return f.inst.mutateSources(
		ctx,
		nil,
		withCommunity(func(m *CommunitySourceManager) error { return m.UnblockAccount(account) }),
	)
}

func (f communityFacet) Community() string {
	if m, err := f.inst.communitySources(); err == nil {
		return m.Community()
	}
	return ""
}

func (f communityFacet) BlockedAccounts() []string {
	if m, err := f.inst.communitySources(); err == nil {
		return m.BlockedAccounts()
	}
	return nil
}
