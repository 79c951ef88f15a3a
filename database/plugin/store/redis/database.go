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

package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blinklabs-io/tally/database/types"
)

const (
	connectTimeout = 3 * time.Second
	scanBatchSize  = 256
)

type StoreRedisOptionFunc func(*StoreRedis)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) StoreRedisOptionFunc {
	return func(s *StoreRedis) {
		s.logger = logger
	}
}

func WithURL(url string) StoreRedisOptionFunc {
	return func(s *StoreRedis) {
		s.url = url
	}
}

func WithKeyPrefix(prefix string) StoreRedisOptionFunc {
	return func(s *StoreRedis) {
		s.keyPrefix = prefix
	}
}

// WithClient uses an existing client instead of connecting on Start
func WithClient(client *redis.Client) StoreRedisOptionFunc {
	return func(s *StoreRedis) {
		s.client = client
	}
}

// StoreRedis keeps each document in a redis string key
// "<keyPrefix><tenant>/<key>"
type StoreRedis struct {
	logger    *slog.Logger
	client    *redis.Client
	url       string
	keyPrefix string
}

func New(opts ...StoreRedisOptionFunc) *StoreRedis {
	s := &StoreRedis{
		url:       DefaultURL,
		keyPrefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return s
}

// Start implements the plugin.Plugin interface
func (s *StoreRedis) Start() error {
	if s.client == nil {
		opts, err := redis.ParseURL(s.url)
		if err != nil {
			return fmt.Errorf("redis store: invalid URL: %w", err)
		}
		s.client = redis.NewClient(opts)
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.client.Close()
		s.client = nil
		return fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}
	s.logger.Info(
		"connected to redis document store",
		"component", "database",
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *StoreRedis) Stop() error {
	return s.Close()
}

func (s *StoreRedis) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *StoreRedis) redisKey(tenant string, key string) string {
	return s.keyPrefix + types.FlatKey(tenant, key)
}

func (s *StoreRedis) Get(
	ctx context.Context,
	tenant string,
	key string,
) ([]byte, error) {
	if err := types.ValidateKey(tenant, key); err != nil {
		return nil, err
	}
	if s.client == nil {
		return nil, types.ErrStoreUnavailable
	}
	data, err := s.client.Get(ctx, s.redisKey(tenant, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.ErrDocumentNotFound
	}
	return data, err
}

func (s *StoreRedis) Put(
	ctx context.Context,
	tenant string,
	key string,
	value []byte,
) error {
	if err := types.ValidateKey(tenant, key); err != nil {
		return err
	}
	if s.client == nil {
		return types.ErrStoreUnavailable
	}
	return s.client.Set(ctx, s.redisKey(tenant, key), value, 0).Err()
}

func (s *StoreRedis) Delete(
	ctx context.Context,
	tenant string,
	key string,
) error {
	if err := types.ValidateKey(tenant, key); err != nil {
		return err
	}
	if s.client == nil {
		return types.ErrStoreUnavailable
	}
	return s.client.Del(ctx, s.redisKey(tenant, key)).Err()
}

func (s *StoreRedis) ListKeys(
	ctx context.Context,
	tenant string,
	prefix string,
) ([]string, error) {
	if err := types.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if s.client == nil {
		return nil, types.ErrStoreUnavailable
	}
	tenantPrefix := s.redisKey(tenant, "")
	match := EscapeGlob(tenantPrefix+prefix) + "*"
	ret := []string{}
	iter := s.client.Scan(ctx, 0, match, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		ret = append(ret, strings.TrimPrefix(iter.Val(), tenantPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	// SCAN may return a key more than once
	sort.Strings(ret)
	ret = compactSorted(ret)
	return ret, nil
}

// EscapeGlob escapes redis glob metacharacters so a prefix matches literally
func EscapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '^', '\\':
			sb.WriteRune('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func compactSorted(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	out := keys[:1]
	for _, key := range keys[1:] {
		if key != out[len(out)-1] {
			out = append(out, key)
		}
	}
	return out
}
