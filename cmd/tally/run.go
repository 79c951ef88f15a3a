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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/blinklabs-io/tally/internal/config"
	"github.com/blinklabs-io/tally/internal/engine"
	"github.com/blinklabs-io/tally/voting"
)

type engineFunc func(ctx context.Context, dir *voting.Directory) error

// runWithEngine starts an engine from the loaded config, runs fn against
// its directory and writes the metrics file when one is configured
func runWithEngine(cmd *cobra.Command, fn engineFunc) (err error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return errors.New("no config found in context")
	}
	logger := commonRun()
	registry := prometheus.NewRegistry()
	opts := append(
		engine.FromConfig(cfg),
		engine.WithLogger(logger),
		engine.WithPrometheusRegistry(registry),
	)
	e, err := engine.New(engine.NewConfig(opts...))
	if err != nil {
		return err
	}
	if err := e.Start(cmd.Context()); err != nil {
		return err
	}
	defer func() {
		if cfg.MetricsFile != "" {
			if metricsErr := e.WriteMetrics(cfg.MetricsFile); metricsErr != nil {
				err = errors.Join(err, fmt.Errorf("failed to write metrics: %w", metricsErr))
			}
		}
		err = errors.Join(err, e.Stop())
	}()
	return fn(cmd.Context(), e.Directory())
}

// runOnInstance runs fn against the instance named by the --instance flag
func runOnInstance(
	cmd *cobra.Command,
	fn func(ctx context.Context, inst *voting.Instance) error,
) error {
	name, _ := cmd.Flags().GetString("instance")
	if name == "" {
		return errors.New("--instance is required")
	}
	return runWithEngine(cmd, func(ctx context.Context, dir *voting.Directory) error {
		inst, err := dir.GetByName(name)
		if err != nil {
			return fmt.Errorf("instance %q: %w", name, err)
		}
		return fn(ctx, inst)
	})
}

// addInstanceFlag adds the persistent --instance flag to a command group
func addInstanceFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringP("instance", "i", "", "name of the voting instance")
}

// instanceRunE adapts an instance operation taking the positional args
func instanceRunE(
	fn func(ctx context.Context, inst *voting.Instance, args []string) error,
) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return runOnInstance(cmd, func(ctx context.Context, inst *voting.Instance) error {
			return fn(ctx, inst, args)
		})
	}
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ",")
}
