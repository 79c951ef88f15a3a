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

// Package messaging provides the message sinks voting instances broadcast
// through.
package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/blinklabs-io/tally/voting"
)

// SinkConfig holds the settings used by the sink factories
type SinkConfig struct {
	Logger             *slog.Logger
	RedisUrl           string
	RedisChannelPrefix string
}

type SinkFactory func(SinkConfig) (voting.MessageSink, error)

var sinkRegistry = struct {
	factories map[string]SinkFactory
	mu        sync.RWMutex
}{
	factories: map[string]SinkFactory{
		"log": func(cfg SinkConfig) (voting.MessageSink, error) {
			return NewLogSink(cfg.Logger), nil
		},
		"redis": func(cfg SinkConfig) (voting.MessageSink, error) {
			return NewRedisSink(RedisSinkConfig{
				Url:           cfg.RedisUrl,
				ChannelPrefix: cfg.RedisChannelPrefix,
				Logger:        cfg.Logger,
			})
		},
	},
}

// Register adds a sink factory
func Register(name string, factory SinkFactory) {
	sinkRegistry.mu.Lock()
	defer sinkRegistry.mu.Unlock()
	sinkRegistry.factories[name] = factory
}

// New builds a registered sink
func New(name string, cfg SinkConfig) (voting.MessageSink, error) {
	sinkRegistry.mu.RLock()
	factory, ok := sinkRegistry.factories[name]
	sinkRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown message sink: %s", name)
	}
	return factory(cfg)
}

// Names returns the registered sink names
func Names() []string {
	sinkRegistry.mu.RLock()
	defer sinkRegistry.mu.RUnlock()
	ret := make([]string, 0, len(sinkRegistry.factories))
	for name := range sinkRegistry.factories {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// LogSink writes messages to a logger
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &LogSink{
		logger: logger.With("component", "messaging"),
	}
}

func (s *LogSink) SendToChannel(ctx context.Context, channelId string, text string) error {
	s.logger.InfoContext(ctx, text, "channel", channelId)
	return nil
}

// Message is a message captured by a Recorder
type Message struct {
	Channel string
	Text    string
}

// Recorder keeps every message sent to it. Channels can be set to fail
type Recorder struct {
	failures map[string]error
	messages []Message
	mu       sync.Mutex
}

func NewRecorder() *Recorder {
	return &Recorder{
		failures: make(map[string]error),
	}
}

func (r *Recorder) SendToChannel(_ context.Context, channelId string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failures[channelId]; err != nil {
		return err
	}
	r.messages = append(r.messages, Message{Channel: channelId, Text: text})
	return nil
}

// FailChannel makes sends to a channel return err. A nil err heals it
func (r *Recorder) FailChannel(channelId string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, channelId)
		return
	}
	r.failures[channelId] = err
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.messages)
}

// Texts returns the text of every message sent to a channel
func (r *Recorder) Texts(channelId string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ret []string
	for _, msg := range r.messages {
		if msg.Channel == channelId {
			ret = append(ret, msg.Text)
		}
	}
	return ret
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
