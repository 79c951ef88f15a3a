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
	"log/slog"
	"strings"
	"time"
)

type StoreS3OptionFunc func(*StoreS3)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) StoreS3OptionFunc {
	return func(s *StoreS3) {
		s.logger = logger
	}
}

func WithBucket(bucket string) StoreS3OptionFunc {
	return func(s *StoreS3) {
		s.bucket = bucket
	}
}

func WithRegion(region string) StoreS3OptionFunc {
	return func(s *StoreS3) {
		s.region = region
	}
}

// WithPrefix specifies an object key prefix. A trailing slash is added when
// missing
func WithPrefix(prefix string) StoreS3OptionFunc {
	return func(s *StoreS3) {
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		s.prefix = prefix
	}
}

func WithTimeout(timeout time.Duration) StoreS3OptionFunc {
	return func(s *StoreS3) {
		s.timeout = timeout
	}
}

// WithEndpoint specifies a custom endpoint, which also enables path-style
// addressing
func WithEndpoint(endpoint string) StoreS3OptionFunc {
	return func(s *StoreS3) {
		s.endpoint = endpoint
	}
}
