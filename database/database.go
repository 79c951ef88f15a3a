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

package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blinklabs-io/tally/database/plugin"
	pluginstore "github.com/blinklabs-io/tally/database/plugin/store"
	"github.com/blinklabs-io/tally/database/sops"
	"github.com/blinklabs-io/tally/database/types"
)

const DefaultStorePlugin = "badger"

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// StorePlugin names the registered store plugin to start
	StorePlugin string
	// DataDir overrides the data-dir option of plugins that have one
	DataDir string
	// EncryptDocuments wraps every stored document in a sops envelope
	EncryptDocuments bool
}

// Database is the tenant-scoped document store used by the voting engine
type Database struct {
	logger  *slog.Logger
	store   types.DocumentStore
	metrics databaseMetrics
	encrypt bool
}

type databaseMetrics struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	bytes      *prometheus.CounterVec
}

// New starts the configured store plugin and wraps it
func New(cfg *Config) (*Database, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	pluginName := cfg.StorePlugin
	if pluginName == "" {
		pluginName = DefaultStorePlugin
	}
	if cfg.DataDir != "" {
		if err := plugin.SetPluginOption(
			plugin.PluginTypeStore,
			pluginName,
			"data-dir",
			cfg.DataDir,
		); err != nil {
			return nil, err
		}
	}
	store, err := pluginstore.New(pluginName)
	if err != nil {
		return nil, err
	}
	return NewWithStore(store, cfg), nil
}

// NewWithStore wraps an already started store
func NewWithStore(store types.DocumentStore, cfg *Config) *Database {
	if cfg == nil {
		cfg = &Config{}
	}
	d := &Database{
		logger:  cfg.Logger,
		store:   store,
		encrypt: cfg.EncryptDocuments,
	}
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	d.initMetrics(cfg.PromRegistry)
	return d
}

func (d *Database) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	d.metrics.operations = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_store_operations_total",
			Help: "total document store operations",
		},
		[]string{"op"},
	)
	d.metrics.errors = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_store_errors_total",
			Help: "total failed document store operations",
		},
		[]string{"op"},
	)
	d.metrics.bytes = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_store_bytes_total",
			Help: "total document bytes read and written",
		},
		[]string{"op"},
	)
}

func (d *Database) observe(op string, size int, err error) {
	d.metrics.operations.WithLabelValues(op).Inc()
	if err != nil && !errors.Is(err, types.ErrDocumentNotFound) {
		d.metrics.errors.WithLabelValues(op).Inc()
	}
	if size > 0 {
		d.metrics.bytes.WithLabelValues(op).Add(float64(size))
	}
}

// Store returns the underlying document store
func (d *Database) Store() types.DocumentStore {
	return d.store
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Get returns the document stored under key, or types.ErrDocumentNotFound
func (d *Database) Get(
	ctx context.Context,
	tenant string,
	key string,
) ([]byte, error) {
	data, err := d.store.Get(ctx, tenant, key)
	d.observe("get", len(data), err)
	if err != nil {
		return nil, err
	}
	if d.encrypt {
		data, err = sops.Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("decrypt document %s: %w", key, err)
		}
	}
	return data, nil
}

// Put stores a document, replacing any previous content
func (d *Database) Put(
	ctx context.Context,
	tenant string,
	key string,
	doc []byte,
) error {
	if d.encrypt {
		var err error
		doc, err = sops.Encrypt(doc)
		if err != nil {
			return fmt.Errorf("encrypt document %s: %w", key, err)
		}
	}
	err := d.store.Put(ctx, tenant, key, doc)
	d.observe("put", len(doc), err)
	return err
}

// Delete removes a document. A missing document is not an error
func (d *Database) Delete(
	ctx context.Context,
	tenant string,
	key string,
) error {
	err := d.store.Delete(ctx, tenant, key)
	d.observe("delete", 0, err)
	return err
}

// ListKeys returns the sorted keys under prefix
func (d *Database) ListKeys(
	ctx context.Context,
	tenant string,
	prefix string,
) ([]string, error) {
	keys, err := d.store.ListKeys(ctx, tenant, prefix)
	d.observe("list", 0, err)
	return keys, err
}

// Close closes the underlying store
func (d *Database) Close() error {
	return d.store.Close()
}
