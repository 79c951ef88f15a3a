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

package redis

import (
	"sync"

	"github.com/blinklabs-io/tally/database/plugin"
)

const (
	DefaultURL       = "redis://localhost:6379/0"
	DefaultKeyPrefix = "tally:"
)

var (
	cmdlineOptions struct {
		url       string
		keyPrefix string
	}
	cmdlineOptionsMutex sync.RWMutex
)

func initCmdlineOptions() {
	cmdlineOptionsMutex.Lock()
	defer cmdlineOptionsMutex.Unlock()
	cmdlineOptions.url = DefaultURL
	cmdlineOptions.keyPrefix = DefaultKeyPrefix
}

// Register plugin
func init() {
	initCmdlineOptions()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeStore,
			Name:               "redis",
			Description:        "Redis document store",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "url",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Redis connection URL",
					DefaultValue: DefaultURL,
					Dest:         &(cmdlineOptions.url),
				},
				{
					Name:         "key-prefix",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Prefix for all document keys",
					DefaultValue: DefaultKeyPrefix,
					Dest:         &(cmdlineOptions.keyPrefix),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	opts := []StoreRedisOptionFunc{
		WithURL(cmdlineOptions.url),
		WithKeyPrefix(cmdlineOptions.keyPrefix),
	}
	cmdlineOptionsMutex.RUnlock()
	return New(opts...)
}
