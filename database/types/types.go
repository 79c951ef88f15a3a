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

package types

import (
	"context"
	"errors"
)

// ErrDocumentNotFound is returned by store operations when a key is missing
var ErrDocumentNotFound = errors.New("document not found")

// ErrStoreUnavailable is returned when the backing store cannot be accessed
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrInvalidTenant is returned for an empty tenant or one containing the key separator
var ErrInvalidTenant = errors.New("invalid tenant")

// ErrInvalidKey is returned for an empty document key
var ErrInvalidKey = errors.New("invalid document key")

// DocumentStore is implemented by every store plugin. Documents are opaque
// byte slices addressed by a tenant and a hierarchical key.
type DocumentStore interface {
	Get(ctx context.Context, tenant string, key string) ([]byte, error)
	Put(ctx context.Context, tenant string, key string, value []byte) error
	// Delete removes a document. Deleting a missing document is not an error
	Delete(ctx context.Context, tenant string, key string) error
	// ListKeys returns the keys under prefix for the tenant, sorted
	ListKeys(ctx context.Context, tenant string, prefix string) ([]string, error)
	Close() error
}
