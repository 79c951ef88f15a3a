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
	"slices"
)

type SourceManagerKind string

const (
	SourceManagerKindIdentity  SourceManagerKind = "identity"
	SourceManagerKindCommunity SourceManagerKind = "community"
)

// FetchResult is the effective membership computed by a source manager
type FetchResult struct {
	Members map[string]struct{}
	// Invalidated holds sources whose backing entity disappeared
	Invalidated []VoterSource
	// Failed holds fetch errors other than invalidation
	Failed []error
}

// Complete reports whether every source was fetched
func (r FetchResult) Complete() bool {
	return len(r.Invalidated) == 0 && len(r.Failed) == 0
}

// collect fetches the members of a source into a set
func (r *FetchResult) collect(
	ctx context.Context,
	resolver MembershipResolver,
	src VoterSource,
	into map[string]struct{},
) {
	members, err := src.FetchMembers(ctx, resolver)
	if err != nil {
		if errors.Is(err, ErrSourceInvalidated) {
			r.Invalidated = append(r.Invalidated, src)
		} else {
			r.Failed = append(r.Failed, err)
		}
		return
	}
	for _, member := range members {
		into[member] = struct{}{}
	}
}

// VoterSourceManager aggregates voter sources into the set of eligible
// voters. The variants are IdentitySourceManager and
// CommunitySourceManager
type VoterSourceManager interface {
	Kind() SourceManagerKind
	VoterKind() VoterKind
	// Sources returns every configured source
	Sources() []VoterSource
	// FetchEffectiveMembers does not modify the manager
	FetchEffectiveMembers(ctx context.Context, resolver MembershipResolver) FetchResult
	VoterIdForExternalIdentity(
		ctx context.Context,
		resolver MembershipResolver,
		identity string,
	) (string, error)
	clone() VoterSourceManager
	drop(src VoterSource)
	doc() sourcesDoc
}

type sourcesDoc struct {
	Kind            SourceManagerKind `json:"kind"`
	Roles           []string          `json:"roles,omitempty"`
	Whitelist       []string          `json:"whitelist,omitempty"`
	Blacklist       []string          `json:"blacklist,omitempty"`
	Community       string            `json:"community,omitempty"`
	BlockedAccounts []string          `json:"blockedAccounts,omitempty"`
}

// NewSourceManager returns an empty manager of the given kind
func NewSourceManager(kind SourceManagerKind) (VoterSourceManager, error) {
	switch kind {
	case SourceManagerKindIdentity:
		return &IdentitySourceManager{}, nil
	case SourceManagerKindCommunity:
		return &CommunitySourceManager{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrSourceManagerWrongType, kind)
	}
}

func sourceManagerFromDoc(doc sourcesDoc) (VoterSourceManager, error) {
	switch doc.Kind {
	case "":
		return nil, nil
	case SourceManagerKindIdentity:
		return &IdentitySourceManager{
			roles:     slices.Clone(doc.Roles),
			whitelist: slices.Clone(doc.Whitelist),
			blacklist: slices.Clone(doc.Blacklist),
		}, nil
	case SourceManagerKindCommunity:
		return &CommunitySourceManager{
			community: doc.Community,
			blocked:   slices.Clone(doc.BlockedAccounts),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrSourceManagerWrongType, doc.Kind)
	}
}

func addUnique(list []string, item string) ([]string, error) {
	if slices.Contains(list, item) {
		return list, ErrAlreadyPresent
	}
	return append(list, item), nil
}

func removeItem(list []string, item string) ([]string, error) {
	idx := slices.Index(list, item)
	if idx < 0 {
		return list, ErrNotPresent
	}
	return slices.Delete(list, idx, idx+1), nil
}

// IdentitySourceManager composes roles and a whitelist, minus a blacklist.
// An identity is never on both lists
type IdentitySourceManager struct {
	roles     []string
	whitelist []string
	blacklist []string
}

func (m *IdentitySourceManager) Kind() SourceManagerKind {
	return SourceManagerKindIdentity
}

func (m *IdentitySourceManager) VoterKind() VoterKind {
	return VoterKindExternalIdentity
}

func (m *IdentitySourceManager) AddRole(role string) error {
	var err error
	m.roles, err = addUnique(m.roles, role)
	return err
}

func (m *IdentitySourceManager) RemoveRole(role string) error {
	var err error
	m.roles, err = removeItem(m.roles, role)
	return err
}

func (m *IdentitySourceManager) Whitelist(identity string) error {
	if slices.Contains(m.blacklist, identity) {
		return ErrConflict
	}
	var err error
	m.whitelist, err = addUnique(m.whitelist, identity)
	return err
}

func (m *IdentitySourceManager) Unwhitelist(identity string) error {
	var err error
	m.whitelist, err = removeItem(m.whitelist, identity)
	return err
}

func (m *IdentitySourceManager) Blacklist(identity string) error {
	if slices.Contains(m.whitelist, identity) {
		return ErrConflict
	}
	var err error
	m.blacklist, err = addUnique(m.blacklist, identity)
	return err
}

func (m *IdentitySourceManager) Unblacklist(identity string) error {
	var err error
	m.blacklist, err = removeItem(m.blacklist, identity)
	return err
}

func (m *IdentitySourceManager) Roles() []string {
	return slices.Clone(m.roles)
}

func (m *IdentitySourceManager) Whitelisted() []string {
	return slices.Clone(m.whitelist)
}

func (m *IdentitySourceManager) Blacklisted() []string {
	return slices.Clone(m.blacklist)
}

func (m *IdentitySourceManager) Sources() []VoterSource {
	ret := make([]VoterSource, 0, len(m.roles)+len(m.whitelist)+len(m.blacklist))
	for _, role := range m.roles {
		ret = append(ret, RoleSource{Role: role})
	}
	for _, identity := range m.whitelist {
		ret = append(ret, UserSource{Identity: identity})
	}
	for _, identity := range m.blacklist {
		ret = append(ret, UserSource{Identity: identity})
	}
	return ret
}

// FetchEffectiveMembers returns (role members + whitelist) - blacklist
func (m *IdentitySourceManager) FetchEffectiveMembers(
	ctx context.Context,
	resolver MembershipResolver,
) FetchResult {
	result := FetchResult{Members: make(map[string]struct{})}
	for _, role := range m.roles {
		result.collect(ctx, resolver, RoleSource{Role: role}, result.Members)
	}
	for _, identity := range m.whitelist {
		result.collect(ctx, resolver, UserSource{Identity: identity}, result.Members)
	}
	excluded := make(map[string]struct{})
	for _, identity := range m.blacklist {
		// Blacklisted identities stay excluded even when their fetch fails
		excluded[identity] = struct{}{}
		result.collect(ctx, resolver, UserSource{Identity: identity}, excluded)
	}
	for identity := range excluded {
		delete(result.Members, identity)
	}
	return result
}

// VoterIdForExternalIdentity returns the identity itself
func (m *IdentitySourceManager) VoterIdForExternalIdentity(
	_ context.Context,
	_ MembershipResolver,
	identity string,
) (string, error) {
	if identity == "" {
		return "", ErrEntityNotFound
	}
	return identity, nil
}

func (m *IdentitySourceManager) clone() VoterSourceManager {
	return &IdentitySourceManager{
		roles:     slices.Clone(m.roles),
		whitelist: slices.Clone(m.whitelist),
		blacklist: slices.Clone(m.blacklist),
	}
}

func (m *IdentitySourceManager) drop(src VoterSource) {
	switch src.Kind() {
	case SourceKindRole:
		m.roles, _ = removeItem(m.roles, src.Ref())
	case SourceKindUser:
		m.whitelist, _ = removeItem(m.whitelist, src.Ref())
		m.blacklist, _ = removeItem(m.blacklist, src.Ref())
	}
}

func (m *IdentitySourceManager) doc() sourcesDoc {
	return sourcesDoc{
		Kind:      m.Kind(),
		Roles:     slices.Clone(m.roles),
		Whitelist: slices.Clone(m.whitelist),
		Blacklist: slices.Clone(m.blacklist),
	}
}

// CommunitySourceManager yields the accounts of one community, minus
// blocked accounts
type CommunitySourceManager struct {
	community string
	blocked   []string
}

func (m *CommunitySourceManager) Kind() SourceManagerKind {
	return SourceManagerKindCommunity
}

func (m *CommunitySourceManager) VoterKind() VoterKind {
	return VoterKindCommunityAccount
}

// SetCommunity designates the community, replacing any previous one
func (m *CommunitySourceManager) SetCommunity(community string) error {
	if m.community == community {
		return ErrAlreadyPresent
	}
	m.community = community
	return nil
}

func (m *CommunitySourceManager) ClearCommunity() error {
	if m.community == "" {
		return ErrNotPresent
	}
	m.community = ""
	return nil
}

func (m *CommunitySourceManager) BlockAccount(account string) error {
	var err error
	m.blocked, err = addUnique(m.blocked, account)
	return err
}

func (m *CommunitySourceManager) UnblockAccount(account string) error {
	var err error
	m.blocked, err = removeItem(m.blocked, account)
	return err
}

func (m *CommunitySourceManager) Community() string {
	return m.community
}

func (m *CommunitySourceManager) BlockedAccounts() []string {
	return slices.Clone(m.blocked)
}

func (m *CommunitySourceManager) Sources() []VoterSource {
	ret := make([]VoterSource, 0, 1+len(m.blocked))
	if m.community != "" {
		ret = append(ret, CommunitySource{Community: m.community})
	}
	for _, account := range m.blocked {
		ret = append(ret, AccountSource{Community: m.community, Account: account})
	}
	return ret
}

// FetchEffectiveMembers returns the community accounts minus blocked
// accounts. Without a community there are no members
func (m *CommunitySourceManager) FetchEffectiveMembers(
	ctx context.Context,
	resolver MembershipResolver,
) FetchResult {
	result := FetchResult{Members: make(map[string]struct{})}
	if m.community == "" {
		return result
	}
	result.collect(ctx, resolver, CommunitySource{Community: m.community}, result.Members)
	excluded := make(map[string]struct{})
	for _, account := range m.blocked {
		excluded[account] = struct{}{}
		result.collect(
			ctx,
			resolver,
			AccountSource{Community: m.community, Account: account},
			excluded,
		)
	}
	for account := range excluded {
		delete(result.Members, account)
	}
	return result
}

// VoterIdForExternalIdentity returns the account the identity currently
// uses in the community
func (m *CommunitySourceManager) VoterIdForExternalIdentity(
	ctx context.Context,
	resolver MembershipResolver,
	identity string,
) (string, error) {
	if m.community == "" {
		return "", ErrNoCommunity
	}
	account, err := resolver.LinkedAccount(ctx, m.community, identity)
	if err != nil {
		return "", err
	}
	if account == "" {
		return "", ErrEntityNotFound
	}
	return account, nil
}

func (m *CommunitySourceManager) clone() VoterSourceManager {
	return &CommunitySourceManager{
		community: m.community,
		blocked:   slices.Clone(m.blocked),
	}
}

func (m *CommunitySourceManager) drop(src VoterSource) {
	switch src.Kind() {
	case SourceKindCommunity:
		if m.community == src.Ref() {
			m.community = ""
		}
	case SourceKindAccount:
		m.blocked, _ = removeItem(m.blocked, src.Ref())
	}
}

func (m *CommunitySourceManager) doc() sourcesDoc {
	return sourcesDoc{
		Kind:            m.Kind(),
		Community:       m.community,
		BlockedAccounts: slices.Clone(m.blocked),
	}
}
