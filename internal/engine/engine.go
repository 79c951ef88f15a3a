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

// Package engine wires the configured store, membership roster and message
// sink into a voting directory.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/membership"
	"github.com/blinklabs-io/tally/messaging"
	"github.com/blinklabs-io/tally/voting"
)

// Engine owns the voting directory of one tenant and everything it depends on
type Engine struct {
	config         Config
	db             *database.Database
	sink           voting.MessageSink
	directory      *voting.Directory
	tracerProvider *sdktrace.TracerProvider
	stopOnce       sync.Once
}

func New(cfg Config) (*Engine, error) {
	if cfg.tenant == "" {
		return nil, errors.New("invalid configuration: no tenant")
	}
	if !cfg.tracing.Valid() {
		return nil, fmt.Errorf(
			"invalid configuration: unknown tracing mode: %s",
			cfg.tracing,
		)
	}
	return &Engine{config: cfg}, nil
}

// Start brings up tracing, the store, the resolver and the sink, then loads
// the voting instances of the tenant. Instances which fail to load are
// logged and skipped
func (e *Engine) Start(ctx context.Context) error {
	logger := e.config.logger
	// Configure tracing
	if err := e.setupTracing(ctx); err != nil {
		return err
	}
	// Load database
	dbConfig := &database.Config{
		Logger:           logger,
		PromRegistry:     e.config.promRegistry,
		StorePlugin:      e.config.storePlugin,
		DataDir:          e.config.dataDir,
		EncryptDocuments: e.config.encryptDocuments,
	}
	if e.config.store != nil {
		e.db = database.NewWithStore(e.config.store, dbConfig)
	} else {
		db, err := database.New(dbConfig)
		if err != nil {
			return errors.Join(
				fmt.Errorf("failed to open database: %w", err),
				e.Stop(),
			)
		}
		e.db = db
	}
	// Membership
	resolver := e.config.resolver
	if resolver == nil {
		roster, err := e.loadRoster()
		if err != nil {
			return errors.Join(err, e.Stop())
		}
		resolver = roster
	}
	// Message sink
	e.sink = e.config.sink
	if e.sink == nil {
		sink, err := messaging.New(
			e.config.sinkPlugin,
			messaging.SinkConfig{
				Logger:             logger,
				RedisUrl:           e.config.redisUrl,
				RedisChannelPrefix: e.config.redisChannelPrefix,
			},
		)
		if err != nil {
			return errors.Join(
				fmt.Errorf("failed to create message sink: %w", err),
				e.Stop(),
			)
		}
		e.sink = sink
	}
	directory, err := voting.NewDirectory(voting.DirectoryConfig{
		Tenant:       e.config.tenant,
		Store:        e.db,
		Sink:         e.sink,
		Resolver:     resolver,
		Logger:       logger,
		PromRegistry: e.config.promRegistry,
	})
	if err != nil {
		return errors.Join(err, e.Stop())
	}
	e.directory = directory
	if err := directory.Load(ctx); err != nil {
		logger.Warn(
			"some voting instances failed to load",
			"component", "engine",
			"error", err,
		)
	}
	logger.Debug(
		"engine started",
		"component", "engine",
		"tenant", e.config.tenant,
		"instances", len(directory.List()),
	)
	return nil
}

func (e *Engine) loadRoster() (*membership.Roster, error) {
	if e.config.membershipFile == "" {
		e.config.logger.Warn(
			"no membership file configured, using an empty roster",
			"component", "engine",
		)
		return membership.NewRoster(), nil
	}
	roster, err := membership.LoadRosterFile(e.config.membershipFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load membership file: %w", err)
	}
	return roster, nil
}

// Directory returns the voting directory. It is nil until Start succeeds
func (e *Engine) Directory() *voting.Directory {
	return e.directory
}

// Stop closes the directory, the sink, the database and the tracer
// provider. It is safe to call more than once
func (e *Engine) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		err = e.shutdown()
	})
	return err
}

func (e *Engine) shutdown() error {
	var err error
	if e.directory != nil {
		e.directory.Close()
	}
	if closer, ok := e.sink.(io.Closer); ok {
		if closeErr := closer.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("message sink close: %w", closeErr))
		}
	}
	if e.db != nil {
		if closeErr := e.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}
	if e.tracerProvider != nil {
		if shutdownErr := e.tracerProvider.Shutdown(context.Background()); shutdownErr != nil {
			err = errors.Join(err, fmt.Errorf("tracer shutdown: %w", shutdownErr))
		}
	}
	return err
}

// WriteMetrics writes the gathered metrics to a file in the text exposition
// format
func (e *Engine) WriteMetrics(path string) error {
	gatherer, ok := e.config.promRegistry.(prometheus.Gatherer)
	if !ok {
		return errors.New("prometheus registry cannot be gathered")
	}
	return prometheus.WriteToTextfile(path, gatherer)
}
