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

package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/blinklabs-io/tally/database/plugin"
)

type ctxKey string

const configContextKey ctxKey = "tally.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultStorePlugin = "badger"
	DefaultSinkPlugin  = "log"
	DefaultTenant      = "default"
)

// ErrPluginListRequested is returned when the user requests to list available plugins
// This is not an error condition but a successful operation that displays plugin information
var ErrPluginListRequested = errors.New("plugin list requested")

// TracingMode selects the span exporter
type TracingMode string

const (
	TracingNone   TracingMode = "none"
	TracingStdout TracingMode = "stdout"
	TracingOtlp   TracingMode = "otlp"
)

// Valid returns true if the TracingMode is a known mode
func (m TracingMode) Valid() bool {
	switch m {
	case TracingNone, TracingStdout, TracingOtlp, "":
		return true
	default:
		return false
	}
}

type tempConfig struct {
	Config   *Config                   `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Store    map[string]map[string]any `yaml:"store,omitempty"`
}

type databaseConfig struct {
	Store map[string]any `yaml:"store,omitempty"`
}

type Config struct {
	Tenant             string      `yaml:"tenant,omitempty"`
	DatabasePath       string      `yaml:"databasePath,omitempty"       split_words:"true"`
	StorePlugin        string      `yaml:"storePlugin,omitempty"        split_words:"true"`
	MembershipFile     string      `yaml:"membershipFile,omitempty"     split_words:"true"`
	SinkPlugin         string      `yaml:"sinkPlugin,omitempty"         split_words:"true"`
	RedisUrl           string      `yaml:"redisUrl,omitempty"           split_words:"true"`
	RedisChannelPrefix string      `yaml:"redisChannelPrefix,omitempty" split_words:"true"`
	MetricsFile        string      `yaml:"metricsFile,omitempty"        split_words:"true"`
	Tracing            TracingMode `yaml:"tracing,omitempty"`
	OtlpEndpoint       string      `yaml:"otlpEndpoint,omitempty"       split_words:"true"`
	EncryptDocuments   bool        `yaml:"encryptDocuments,omitempty"   split_words:"true"`
}

var globalConfig = defaultConfig()

func defaultConfig() *Config {
	return &Config{
		Tenant:       DefaultTenant,
		DatabasePath: ".tally",
		StorePlugin:  DefaultStorePlugin,
		SinkPlugin:   DefaultSinkPlugin,
		Tracing:      TracingNone,
	}
}

// ResetConfig restores the defaults. It exists for tests that load more
// than one configuration
func ResetConfig() {
	globalConfig = defaultConfig()
}

// findConfigFile returns ~/.tally/tally.yaml or /etc/tally/tally.yaml,
// whichever exists first
func findConfigFile() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".tally", "tally.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}
	systemPath := "/etc/tally/tally.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}
	return ""
}

// storePluginConfig turns the store section of the config file into the
// per-plugin option maps used by plugin.ProcessConfig
func storePluginConfig(section map[string]any) map[string]map[string]any {
	ret := make(map[string]map[string]any)
	for k, v := range section {
		switch val := v.(type) {
		case map[string]any:
			ret[k] = val
		case map[any]any:
			// Convert map[any]any to map[string]any
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			ret[k] = stringAnyMap
		default:
			fmt.Fprintf(os.Stderr, "warning: skipping store config entry %q: expected map, got %T\n", k, v)
		}
	}
	return ret
}

func LoadConfig(configFile string) (*Config, error) {
	if configFile == "" {
		configFile = findConfigFile()
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		// First unmarshal into temp config to handle plugin sections
		var tempCfg tempConfig
		err = yaml.Unmarshal(buf, &tempCfg)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}

		if tempCfg.Config != nil {
			// Overlay config values onto existing defaults
			configBytes, err := yaml.Marshal(tempCfg.Config)
			if err != nil {
				return nil, fmt.Errorf("error re-marshalling config: %w", err)
			}
			err = yaml.Unmarshal(configBytes, globalConfig)
			if err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
		} else {
			// Otherwise unmarshal the whole file as main config
			err = yaml.Unmarshal(buf, globalConfig)
			if err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}

		storeConfig := make(map[string]map[string]any)
		if tempCfg.Store != nil {
			maps.Copy(storeConfig, tempCfg.Store)
		}
		if tempCfg.Database != nil && tempCfg.Database.Store != nil {
			// Extract plugin name if specified
			if pluginVal, exists := tempCfg.Database.Store["plugin"]; exists {
				if pluginName, ok := pluginVal.(string); ok {
					globalConfig.StorePlugin = pluginName
					delete(tempCfg.Database.Store, "plugin")
				}
			}
			maps.Copy(storeConfig, storePluginConfig(tempCfg.Database.Store))
		}
		if len(storeConfig) > 0 {
			err = plugin.ProcessConfig(
				map[string]map[string]map[string]any{
					plugin.PluginTypeName(plugin.PluginTypeStore): storeConfig,
				},
			)
			if err != nil {
				return nil, fmt.Errorf(
					"error processing plugin config: %w",
					err,
				)
			}
		}
	}
	// Process environment variables
	err := envconfig.Process("tally", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}

	// Process plugin environment variables
	err = plugin.ProcessEnvVars()
	if err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}

	if err := globalConfig.Validate(); err != nil {
		return nil, err
	}
	if globalConfig.Tracing == "" {
		globalConfig.Tracing = TracingNone
	}
	return globalConfig, nil
}

// Validate checks the settings which cannot be checked by the components
// they configure
func (c *Config) Validate() error {
	if !c.Tracing.Valid() {
		return fmt.Errorf(
			"invalid tracing: %q (must be 'none', 'stdout' or 'otlp')",
			c.Tracing,
		)
	}
	if c.Tenant == "" {
		return errors.New("tenant must not be empty")
	}
	if c.SinkPlugin == "redis" && c.RedisUrl == "" {
		return errors.New("the redis sink requires redisUrl")
	}
	return nil
}

func GetConfig() *Config {
	return globalConfig
}
