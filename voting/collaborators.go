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

import "context"

// Store persists JSON documents under hierarchical keys, scoped by tenant
type Store interface {
	// Get returns ErrDocumentNotFound when the key is absent
	Get(ctx context.Context, tenant string, key string) ([]byte, error)
	Put(ctx context.Context, tenant string, key string, doc []byte) error
	Delete(ctx context.Context, tenant string, key string) error
	ListKeys(ctx context.Context, tenant string, prefix string) ([]string, error)
}

// MessageSink delivers text to a chat channel
type MessageSink interface {
	SendToChannel(ctx context.Context, channelId string, text string) error
}

// MembershipResolver answers membership questions against the external
// identity provider. Missing entities are reported with ErrEntityNotFound
type MembershipResolver interface {
	// RoleMembers returns the identities currently holding a role
	RoleMembers(ctx context.Context, role string) ([]string, error)
	IdentityExists(ctx context.Context, identity string) (bool, error)
	// CommunityAccounts returns every account of a community
	CommunityAccounts(ctx context.Context, community string) ([]string, error)
	AccountExists(ctx context.Context, community string, account string) (bool, error)
	// LinkedAccount returns the account an identity currently uses in a
	// community
	LinkedAccount(ctx context.Context, community string, identity string) (string, error)
	CommunityChannels(ctx context.Context, community string) ([]string, error)
}
