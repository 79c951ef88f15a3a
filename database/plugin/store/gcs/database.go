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

package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/blinklabs-io/tally/database/types"
)

const defaultTimeout = 30 * time.Second

// StoreGCS keeps one GCS object per document, named
// "<prefix><tenant>/<key>"
type StoreGCS struct {
	logger          *slog.Logger
	client          *storage.Client
	bucket          *storage.BucketHandle
	bucketName      string
	prefix          string
	credentialsFile string
	timeout         time.Duration
}

func New(opts ...StoreGCSOptionFunc) *StoreGCS {
	s := &StoreGCS{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if s.timeout == 0 {
		s.timeout = defaultTimeout
	}
	return s
}

// ValidateCredentials checks that a configured credentials file exists
func ValidateCredentials(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("GCS credentials file does not exist: %w", err)
	}
	return nil
}

// Start implements the plugin.Plugin interface
func (s *StoreGCS) Start() error {
	if s.bucketName == "" {
		return errors.New("gcs store: bucket not set")
	}
	if err := ValidateCredentials(s.credentialsFile); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	clientOpts := []option.ClientOption{
		storage.WithDisabledClientMetrics(),
	}
	if s.credentialsFile != "" {
		clientOpts = append(
			clientOpts,
			option.WithCredentialsFile(s.credentialsFile),
		)
	}
	client, err := storage.NewGRPCClient(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf("gcs store: failed in creating storage client: %w", err)
	}
	s.client = client
	s.bucket = client.Bucket(s.bucketName)
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *StoreGCS) Stop() error {
	return s.Close()
}

func (s *StoreGCS) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.bucket = nil
	return err
}

// ObjectName returns the object name used for a document
func (s *StoreGCS) ObjectName(tenant string, key string) string {
	return s.prefix + types.FlatKey(tenant, key)
}

func (s *StoreGCS) opContext(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *StoreGCS) Get(
	ctx context.Context,
	tenant string,
	key string,
) ([]byte, error) {
	if err := types.ValidateKey(tenant, key); err != nil {
		return nil, err
	}
	if s.bucket == nil {
		return nil, types.ErrStoreUnavailable
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	r, err := s.bucket.Object(s.ObjectName(tenant, key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, types.ErrDocumentNotFound
		}
		s.logger.Error(
			fmt.Sprintf("gcs get %q failed: %s", key, err),
			"component", "database",
		)
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *StoreGCS) Put(
	ctx context.Context,
	tenant string,
	key string,
	value []byte,
) error {
	if err := types.ValidateKey(tenant, key); err != nil {
		return err
	}
	if s.bucket == nil {
		return types.ErrStoreUnavailable
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	w := s.bucket.Object(s.ObjectName(tenant, key)).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(value); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		s.logger.Error(
			fmt.Sprintf("gcs put %q failed: %s", key, err),
			"component", "database",
		)
		return err
	}
	return nil
}

func (s *StoreGCS) Delete(
	ctx context.Context,
	tenant string,
	key string,
) error {
	if err := types.ValidateKey(tenant, key); err != nil {
		return err
	}
	if s.bucket == nil {
		return types.ErrStoreUnavailable
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	err := s.bucket.Object(s.ObjectName(tenant, key)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

func (s *StoreGCS) ListKeys(
	ctx context.Context,
	tenant string,
	prefix string,
) ([]string, error) {
	if err := types.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if s.bucket == nil {
		return nil, types.ErrStoreUnavailable
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	tenantPrefix := s.prefix + types.FlatKey(tenant, "")
	it := s.bucket.Objects(ctx, &storage.Query{
		Prefix: tenantPrefix + prefix,
	})
	ret := []string{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		ret = append(ret, attrs.Name[len(tenantPrefix):])
	}
	sort.Strings(ret)
	return ret, nil
}
