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

package engine

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/tally/database/types"
	"github.com/blinklabs-io/tally/internal/config"
	"github.com/blinklabs-io/tally/voting"
)

type Config struct {
	promRegistry       prometheus.Registerer
	logger             *slog.Logger
	store              types.DocumentStore
	resolver           voting.MembershipResolver
	sink               voting.MessageSink
	tenant             string
	dataDir            string
	storePlugin        string
	membershipFile     string
	sinkPlugin         string
	redisUrl           string
	redisChannelPrefix string
	otlpEndpoint       string
	tracing            config.TracingMode
	encryptDocuments   bool
}

// ConfigOptionFunc is a type that represents functions that modify the engine config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new engine config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		tenant:      config.DefaultTenant,
		storePlugin: config.DefaultStorePlugin,
		sinkPlugin:  config.DefaultSinkPlugin,
		tracing:     config.TracingNone,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// FromConfig returns the options matching a loaded configuration
func FromConfig(cfg *config.Config) []ConfigOptionFunc {
	return []ConfigOptionFunc{
		WithTenant(cfg.Tenant),
		WithDataDir(cfg.DatabasePath),
		WithStorePlugin(cfg.StorePlugin),
		WithEncryptDocuments(cfg.EncryptDocuments),
		WithMembershipFile(cfg.MembershipFile),
		WithSinkPlugin(cfg.SinkPlugin),
		WithRedis(cfg.RedisUrl, cfg.RedisChannelPrefix),
		WithTracing(cfg.Tracing),
		WithOtlpEndpoint(cfg.OtlpEndpoint),
	}
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithTenant specifies the tenant whose instances are loaded
func WithTenant(tenant string) ConfigOptionFunc {
	return func(c *Config) {
		c.tenant = tenant
	}
}

// WithDataDir specifies the persistent data directory to use. The default is to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithStorePlugin specifies the store plugin to start
func WithStorePlugin(name string) ConfigOptionFunc {
	return func(c *Config) {
		c.storePlugin = name
	}
}

// WithStore uses an already started store instead of a plugin
func WithStore(store types.DocumentStore) ConfigOptionFunc {
	return func(c *Config) {
		c.store = store
	}
}

// WithEncryptDocuments wraps stored documents in a sops envelope
func WithEncryptDocuments(encrypt bool) ConfigOptionFunc {
	return func(c *Config) {
		c.encryptDocuments = encrypt
	}
}

// WithMembershipFile specifies the YAML roster used to resolve memberships
func WithMembershipFile(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.membershipFile = path
	}
}

// WithResolver uses the given membership resolver instead of a roster file
func WithResolver(resolver voting.MembershipResolver) ConfigOptionFunc {
	return func(c *Config) {
		c.resolver = resolver
	}
}

// WithSinkPlugin specifies the registered message sink to build
func WithSinkPlugin(name string) ConfigOptionFunc {
	return func(c *Config) {
		c.sinkPlugin = name
	}
}

// WithSink uses the given message sink instead of a registered one
func WithSink(sink voting.MessageSink) ConfigOptionFunc {
	return func(c *Config) {
		c.sink = sink
	}
}

// WithRedis specifies the Redis server and channel prefix used by the redis sink
func WithRedis(url string, channelPrefix string) ConfigOptionFunc {
	return func(c *Config) {
		c.redisUrl = url
		c.redisChannelPrefix = channelPrefix
	}
}

// WithTracing specifies where spans are exported
func WithTracing(mode config.TracingMode) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = mode
	}
}

// WithOtlpEndpoint specifies the OTLP/HTTP collector address. The exporter
// default is used when empty
func WithOtlpEndpoint(endpoint string) ConfigOptionFunc {
	return func(c *Config) {
		c.otlpEndpoint = endpoint
	}
}
