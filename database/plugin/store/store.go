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

package store

import (
	"fmt"

	"github.com/blinklabs-io/tally/database/plugin"
	"github.com/blinklabs-io/tally/database/types"
)

// New returns the started store plugin selected by name
func New(pluginName string) (types.DocumentStore, error) {
	// Get and start the plugin
	p, err := plugin.StartPlugin(plugin.PluginTypeStore, pluginName)
	if err != nil {
		return nil, err
	}

	// Type assert to DocumentStore interface
	store, ok := p.(types.DocumentStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement DocumentStore interface",
			pluginName,
		)
	}

	return store, nil
}
