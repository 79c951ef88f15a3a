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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/tally/voting"
)

func instanceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Manage voting instances",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create NAME",
			Short: "Create a voting instance",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithEngine(cmd, func(ctx context.Context, dir *voting.Directory) error {
					inst, err := dir.Create(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", inst.Name(), inst.ID())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a voting instance and everything it stores",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithEngine(cmd, func(ctx context.Context, dir *voting.Directory) error {
					inst, err := dir.GetByName(args[0])
					if err != nil {
						return fmt.Errorf("instance %q: %w", args[0], err)
					}
					return dir.Delete(ctx, inst.ID())
				})
			},
		},
		&cobra.Command{
			Use:   "rename NAME NEW_NAME",
			Short: "Rename a voting instance",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithEngine(cmd, func(ctx context.Context, dir *voting.Directory) error {
					inst, err := dir.GetByName(args[0])
					if err != nil {
						return fmt.Errorf("instance %q: %w", args[0], err)
					}
					return dir.Rename(ctx, inst.ID(), args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List voting instances",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithEngine(cmd, func(_ context.Context, dir *voting.Directory) error {
					writer := newTabWriter(cmd.OutOrStdout())
					fmt.Fprintf(writer, "NAME\tID\tVOTERS\tROUND\tCREATED\n")
					for _, inst := range dir.List() {
						fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\n",
							inst.Name(),
							inst.ID(),
							len(inst.Voters().List()),
							roundState(inst.Round().Status()),
							inst.CreatedAt().Format(time.RFC3339),
						)
					}
					return writer.Flush()
				})
			},
		},
	)
	return cmd
}

func roundState(status voting.RoundStatus) string {
	switch {
	case !status.Running:
		return "idle"
	case status.Active:
		return "active"
	default:
		return "paused"
	}
}
