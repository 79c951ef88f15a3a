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

package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisChannelPrefix = "tally:channel:"
	redisPingTimeout          = 3 * time.Second
)

type RedisSinkConfig struct {
	// Client is used instead of dialing Url when set
	Client        *redis.Client
	Logger        *slog.Logger
	Url           string
	ChannelPrefix string
}

// RedisSink publishes messages on redis pub/sub channels named
// <prefix><channel>
type RedisSink struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
	owned  bool
}

func NewRedisSink(cfg RedisSinkConfig) (*RedisSink, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = DefaultRedisChannelPrefix
	}
	s := &RedisSink{
		client: cfg.Client,
		logger: cfg.Logger.With("component", "messaging"),
		prefix: cfg.ChannelPrefix,
	}
	if s.client != nil {
		return s, nil
	}
	if cfg.Url == "" {
		return nil, errors.New("redis sink requires a URL")
	}
	opts, err := redis.ParseURL(cfg.Url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	s.client = redis.NewClient(opts)
	s.owned = true
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		_ = s.client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

// Topic returns the pub/sub channel used for a chat channel
func (s *RedisSink) Topic(channelId string) string {
	return s.prefix + channelId
}

func (s *RedisSink) SendToChannel(ctx context.Context, channelId string, text string) error {
	receivers, err := s.client.Publish(ctx, s.Topic(channelId), text).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", s.Topic(channelId), err)
	}
	s.logger.Debug(
		"message published",
		"channel", channelId,
		"receivers", receivers,
	)
	return nil
}

// Close closes the client if the sink created it
func (s *RedisSink) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
