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

// Package testutil provides fakes and synchronization helpers shared by
// tests.
package testutil

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/tally/database/types"
)

// RequireReceive waits for a value on the given channel or fails the test
// if the timeout expires. This replaces the common pattern of
// time.Sleep followed by reading a channel.
func RequireReceive[T any](
	t *testing.T,
	ch <-chan T,
	timeout time.Duration,
	msg string,
) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for channel receive: %s", msg)
		var zero T
		return zero // unreachable
	}
}

// StoreOp names a document store operation for failure injection
type StoreOp string

const (
	OpGet    StoreOp = "get"
	OpPut    StoreOp = "put"
	OpDelete StoreOp = "delete"
	OpList   StoreOp = "list"
)

type storeFailure struct {
	err    error
	op     StoreOp
	prefix string
}

// MemoryStore is an in-memory document store. Operations on keys under a
// prefix can be made to fail with Fail
type MemoryStore struct {
	docs     map[string]map[string][]byte
	failures []storeFailure
	mu       sync.Mutex
}

var _ types.DocumentStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string][]byte),
	}
}

// Fail makes every later op on a key starting with prefix return err
func (s *MemoryStore) Fail(op StoreOp, prefix string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, storeFailure{op: op, prefix: prefix, err: err})
}

// Heal removes every injected failure
func (s *MemoryStore) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = nil
}

func (s *MemoryStore) failure(op StoreOp, key string) error {
	for _, f := range s.failures {
		if f.op == op && strings.HasPrefix(key, f.prefix) {
			return f.err
		}
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tenant string, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := types.ValidateKey(tenant, key); err != nil {
		return nil, err
	}
	if err := s.failure(OpGet, key); err != nil {
		return nil, err
	}
	doc, ok := s.docs[tenant][key]
	if !ok {
		return nil, types.ErrDocumentNotFound
	}
	return slices.Clone(doc), nil
}

func (s *MemoryStore) Put(_ context.Context, tenant string, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := types.ValidateKey(tenant, key); err != nil {
		return err
	}
	if err := s.failure(OpPut, key); err != nil {
		return err
	}
	if s.docs[tenant] == nil {
		s.docs[tenant] = make(map[string][]byte)
	}
	s.docs[tenant][key] = slices.Clone(value)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, tenant string, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := types.ValidateKey(tenant, key); err != nil {
		return err
	}
	if err := s.failure(OpDelete, key); err != nil {
		return err
	}
	delete(s.docs[tenant], key)
	return nil
}

func (s *MemoryStore) ListKeys(_ context.Context, tenant string, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := types.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if err := s.failure(OpList, prefix); err != nil {
		return nil, err
	}
	var ret []string
	for key := range s.docs[tenant] {
		if strings.HasPrefix(key, prefix) {
			ret = append(ret, key)
		}
	}
	slices.Sort(ret)
	return ret, nil
}

// Keys returns every key stored for a tenant
func (s *MemoryStore) Keys(tenant string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.docs[tenant]))
}

func (s *MemoryStore) Close() error {
	return nil
}
