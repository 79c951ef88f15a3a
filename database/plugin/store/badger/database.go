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

package badger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/blinklabs-io/tally/database/types"
)

const gcInterval = 5 * time.Minute

// StoreBadger keeps documents in badger under "<tenant>/<key>"
type StoreBadger struct {
	db             *badger.DB
	logger         *slog.Logger
	gcTicker       *time.Ticker
	gcStopCh       chan struct{}
	dataDir        string
	gcWg           sync.WaitGroup
	blockCacheSize uint64
	indexCacheSize uint64
	gcEnabled      bool
}

// New creates a badger store. The database is opened by Start
func New(opts ...StoreBadgerOptionFunc) *StoreBadger {
	s := &StoreBadger{
		gcEnabled:      true,
		blockCacheSize: DefaultBlockCacheSize,
		indexCacheSize: DefaultIndexCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return s
}

// Start implements the plugin.Plugin interface
func (s *StoreBadger) Start() error {
	if s.db != nil {
		return nil
	}
	var badgerOpts badger.Options
	if s.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").
			WithInMemory(true)
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(s.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		badgerOpts = badger.DefaultOptions(filepath.Join(s.dataDir, "documents")).
			WithBlockCacheSize(int64(s.blockCacheSize)). //nolint:gosec // operator supplied
			WithIndexCacheSize(int64(s.indexCacheSize)). //nolint:gosec // operator supplied
			WithCompression(options.Snappy)
	}
	badgerOpts = badgerOpts.
		WithLogger(NewBadgerLogger(s.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}
	s.db = db
	// GC only makes sense for disk-backed value logs
	if s.gcEnabled && s.dataDir != "" {
		s.gcTicker = time.NewTicker(gcInterval)
		s.gcStopCh = make(chan struct{})
		s.gcWg.Add(1)
		go s.runGc(s.gcTicker, s.gcStopCh)
	}
	return nil
}

func (s *StoreBadger) runGc(t *time.Ticker, stop <-chan struct{}) {
	defer s.gcWg.Done()
	for {
		select {
		case <-t.C:
			for {
				err := s.db.RunValueLogGC(0.5)
				if err == nil {
					// Run it again if it just ran successfully
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn(
						fmt.Sprintf("document store: GC failure: %s", err),
						"component", "database",
					)
				}
				break
			}
		case <-stop:
			return
		}
	}
}

// Stop implements the plugin.Plugin interface
func (s *StoreBadger) Stop() error {
	return s.Close()
}

// Close stops GC and closes the database handle
func (s *StoreBadger) Close() error {
	if s.gcTicker != nil {
		s.gcTicker.Stop()
		close(s.gcStopCh)
		s.gcWg.Wait()
		s.gcTicker = nil
		s.gcStopCh = nil
	}
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DB returns the database handle
func (s *StoreBadger) DB() *badger.DB {
	return s.db
}

func (s *StoreBadger) Get(
	ctx context.Context,
	tenant string,
	key string,
) ([]byte, error) {
	if err := types.ValidateKey(tenant, key); err != nil {
		return nil, err
	}
	if s.db == nil {
		return nil, types.ErrStoreUnavailable
	}
	var ret []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(types.FlatKey(tenant, key)))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return types.ErrDocumentNotFound
			}
			return err
		}
		ret, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *StoreBadger) Put(
	ctx context.Context,
	tenant string,
	key string,
	value []byte,
) error {
	if err := types.ValidateKey(tenant, key); err != nil {
		return err
	}
	if s.db == nil {
		return types.ErrStoreUnavailable
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(types.FlatKey(tenant, key)), value)
	})
}

func (s *StoreBadger) Delete(
	ctx context.Context,
	tenant string,
	key string,
) error {
	if err := types.ValidateKey(tenant, key); err != nil {
		return err
	}
	if s.db == nil {
		return types.ErrStoreUnavailable
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(types.FlatKey(tenant, key)))
	})
}

// ListKeys returns the keys under prefix. Badger iterates in key order, so
// the result is already sorted
func (s *StoreBadger) ListKeys(
	ctx context.Context,
	tenant string,
	prefix string,
) ([]string, error) {
	if err := types.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if s.db == nil {
		return nil, types.ErrStoreUnavailable
	}
	flatPrefix := []byte(types.FlatKey(tenant, prefix))
	ret := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = flatPrefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(flatPrefix); it.Next() {
			key := string(it.Item().KeyCopy(nil))
			ret = append(ret, types.TrimFlatKey(tenant, key))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}
