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
	"log/slog"
	"strings"
	"time"
)

type StoreGCSOptionFunc func(*StoreGCS)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) StoreGCSOptionFunc {
	return func(s *StoreGCS) {
		s.logger = logger
	}
}

func WithBucket(bucket string) StoreGCSOptionFunc {
	return func(s *StoreGCS) {
		s.bucketName = bucket
	}
}

// WithPrefix specifies an object name prefix. A trailing slash is added
// when missing
func WithPrefix(prefix string) StoreGCSOptionFunc {
	return func(s *StoreGCS) {
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		s.prefix = prefix
	}
}

func WithCredentialsFile(path string) StoreGCSOptionFunc {
	return func(s *StoreGCS) {
		s.credentialsFile = path
	}
}

// WithTimeout specifies the per-operation timeout
func WithTimeout(timeout time.Duration) StoreGCSOptionFunc {
	return func(s *StoreGCS) {
		s.timeout = timeout
	}
}
