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

package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/blinklabs-io/tally/database/types"
)

const defaultTimeout = 60 * time.Second

// StoreS3 keeps one S3 object per document, keyed "<prefix><tenant>/<key>"
type StoreS3 struct {
	logger   *slog.Logger
	client   *s3.Client
	endpoint string
	bucket   string
	prefix   string
	region   string
	timeout  time.Duration
}

func New(opts ...StoreS3OptionFunc) *StoreS3 {
	s := &StoreS3{}
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

// Start implements the plugin.Plugin interface
func (s *StoreS3) Start() error {
	if s.bucket == "" {
		return errors.New("s3 store: bucket not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("s3 store: load default AWS config: %w", err)
	}
	if s.region != "" {
		awsCfg.Region = s.region
	}
	s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s.endpoint != "" {
			o.BaseEndpoint = aws.String(s.endpoint)
			o.UsePathStyle = true
		}
	})
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *StoreS3) Stop() error {
	return s.Close()
}

// Close drops the client. The S3 client doesn't need explicit closing
func (s *StoreS3) Close() error {
	s.client = nil
	return nil
}

// ObjectKey returns the object key used for a document
func (s *StoreS3) ObjectKey(tenant string, key string) string {
	return s.prefix + types.FlatKey(tenant, key)
}

func (s *StoreS3) opContext(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *StoreS3) Get(
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
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ObjectKey(tenant, key)),
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, types.ErrDocumentNotFound
		}
		s.logger.Error(
			fmt.Sprintf("s3 get %q failed: %s", key, err),
			"component", "database",
		)
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *StoreS3) Put(
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
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ObjectKey(tenant, key)),
		Body:   bytes.NewReader(value),
	})
	if err != nil {
		s.logger.Error(
			fmt.Sprintf("s3 put %q failed: %s", key, err),
			"component", "database",
		)
		return err
	}
	return nil
}

func (s *StoreS3) Delete(
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
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ObjectKey(tenant, key)),
	})
	if err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

func (s *StoreS3) ListKeys(
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
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	tenantPrefix := s.prefix + types.FlatKey(tenant, "")
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(tenantPrefix + prefix),
	})
	ret := []string{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			ret = append(ret, strings.TrimPrefix(aws.ToString(obj.Key), tenantPrefix))
		}
	}
	sort.Strings(ret)
	return ret, nil
}

// IsNotFound reports whether err is an S3 missing-object error
func IsNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) &&
		(apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
		return true
	}
	var noSuchKey *s3types.NoSuchKey
	return errors.As(err, &noSuchKey)
}
