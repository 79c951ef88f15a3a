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

// Package membership resolves roles, identities and community accounts from
// a YAML roster.
package membership

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/blinklabs-io/tally/voting"
)

type rosterFile struct {
	Roles       map[string][]string      `yaml:"roles"`
	Communities map[string]communityFile `yaml:"communities"`
	Identities  []string                 `yaml:"identities"`
}

type communityFile struct {
	Links    map[string]string `yaml:"links"`
	Accounts []string          `yaml:"accounts"`
	Channels []string          `yaml:"channels"`
}

type community struct {
	accounts map[string]struct{}
	links    map[string]string
	channels []string
}

// Roster implements voting.MembershipResolver over an in-memory roster
type Roster struct {
	roles       map[string]map[string]struct{}
	identities  map[string]struct{}
	communities map[string]*community
	errors      map[string]error
	mu          sync.RWMutex
}

var _ voting.MembershipResolver = (*Roster)(nil)

func NewRoster() *Roster {
	return &Roster{
		roles:       make(map[string]map[string]struct{}),
		identities:  make(map[string]struct{}),
		communities: make(map[string]*community),
		errors:      make(map[string]error),
	}
}

// ParseRoster builds a roster from YAML. Role members are identities
func ParseRoster(data []byte) (*Roster, error) {
	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	r := NewRoster()
	for _, identity := range file.Identities {
		r.AddIdentity(identity)
	}
	for role, members := range file.Roles {
		r.SetRole(role, members...)
	}
	for name, c := range file.Communities {
		r.SetCommunity(name, c.Accounts...)
		r.SetCommunityChannels(name, c.Channels...)
		for identity, account := range c.Links {
			if err := r.Link(name, identity, account); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// LoadRosterFile reads a YAML roster
func LoadRosterFile(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return ParseRoster(data)
}

func (r *Roster) AddIdentity(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[identity] = struct{}{}
}

// RemoveIdentity removes an identity from the roster and from every role
func (r *Roster) RemoveIdentity(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.identities, identity)
	for _, members := range r.roles {
		delete(members, identity)
	}
}

// SetRole replaces the members of a role, creating it if needed
func (r *Roster) SetRole(role string, members ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := make(map[string]struct{}, len(members))
	for _, member := range members {
		set[member] = struct{}{}
		r.identities[member] = struct{}{}
	}
	r.roles[role] = set
}

func (r *Roster) DeleteRole(role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roles, role)
}

// SetCommunity replaces the accounts of a community, creating it if needed
func (r *Roster) SetCommunity(name string, accounts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.communities[name]
	if !ok {
		c = &community{links: make(map[string]string)}
		r.communities[name] = c
	}
	c.accounts = make(map[string]struct{}, len(accounts))
	for _, account := range accounts {
		c.accounts[account] = struct{}{}
	}
	for identity, account := range c.links {
		if _, ok := c.accounts[account]; !ok {
			delete(c.links, identity)
		}
	}
}

func (r *Roster) DeleteCommunity(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.communities, name)
}

// RemoveAccount removes an account and its links from a community
func (r *Roster) RemoveAccount(name string, account string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.communities[name]
	if !ok {
		return
	}
	delete(c.accounts, account)
	for identity, linked := range c.links {
		if linked == account {
			delete(c.links, identity)
		}
	}
}

func (r *Roster) SetCommunityChannels(name string, channels ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.communities[name]; ok {
		c.channels = slices.Clone(channels)
	}
}

// Link makes account the current account of an identity in a community
func (r *Roster) Link(name string, identity string, account string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.communities[name]
	if !ok {
		return fmt.Errorf("community %q: %w", name, voting.ErrEntityNotFound)
	}
	if _, ok := c.accounts[account]; !ok {
		return fmt.Errorf("account %q: %w", account, voting.ErrEntityNotFound)
	}
	c.links[identity] = account
	return nil
}

func (r *Roster) Unlink(name string, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.communities[name]; ok {
		delete(c.links, identity)
	}
}

// SetError makes lookups of a role, identity or community return err until
// cleared with a nil err
func (r *Roster) SetError(ref string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.errors, ref)
		return
	}
	r.errors[ref] = err
}

func sortedKeys(set map[string]struct{}) []string {
	return slices.Sorted(maps.Keys(set))
}

func (r *Roster) RoleMembers(_ context.Context, role string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.errors[role]; err != nil {
		return nil, err
	}
	members, ok := r.roles[role]
	if !ok {
		return nil, fmt.Errorf("role %q: %w", role, voting.ErrEntityNotFound)
	}
	return sortedKeys(members), nil
}

func (r *Roster) IdentityExists(_ context.Context, identity string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.errors[identity]; err != nil {
		return false, err
	}
	_, ok := r.identities[identity]
	return ok, nil
}

func (r *Roster) CommunityAccounts(_ context.Context, name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, err := r.community(name)
	if err != nil {
		return nil, err
	}
	return sortedKeys(c.accounts), nil
}

func (r *Roster) AccountExists(_ context.Context, name string, account string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.errors[account]; err != nil {
		return false, err
	}
	c, err := r.community(name)
	if err != nil {
		return false, err
	}
	_, ok := c.accounts[account]
	return ok, nil
}

func (r *Roster) LinkedAccount(_ context.Context, name string, identity string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, err := r.community(name)
	if err != nil {
		return "", err
	}
	account, ok := c.links[identity]
	if !ok {
		return "", fmt.Errorf("identity %q: %w", identity, voting.ErrEntityNotFound)
	}
	return account, nil
}

func (r *Roster) CommunityChannels(_ context.Context, name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, err := r.community(name)
	if err != nil {
		return nil, err
	}
	return slices.Clone(c.channels), nil
}

func (r *Roster) community(name string) (*community, error) {
	if err := r.errors[name]; err != nil {
		return nil, err
	}
	c, ok := r.communities[name]
	if !ok {
		return nil, fmt.Errorf("community %q: %w", name, voting.ErrEntityNotFound)
	}
	return c, nil
}
