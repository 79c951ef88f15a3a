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
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/tally/voting"
)

func roundCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "round",
		Short: "Drive the round of an instance",
	}
	addInstanceFlag(cmd)
	cmd.AddCommand(
		roundStartCommand(),
		roundActionCommand("pause", "Stop accepting votes", (*voting.RoundController).Pause),
		roundActionCommand("resume", "Accept votes again", (*voting.RoundController).Resume),
		roundActionCommand("reset", "Clear every vote of the round", (*voting.RoundController).Reset),
		roundActionCommand("cancel", "End the round without winners", (*voting.RoundController).Cancel),
		roundActionCommand("end", "End the round and let the rule pick the winners", (*voting.RoundController).End),
		&cobra.Command{
			Use:   "hammer [WINNER...]",
			Short: "End the round with the given winners",
			RunE: instanceRunE(func(ctx context.Context, inst *voting.Instance, args []string) error {
				return inst.Round().Hammer(ctx, args)
			}),
		},
		&cobra.Command{
			Use:   "threshold VOTES",
			Short: "Pin the majority threshold, 0 to compute it from the vote count",
			Args:  cobra.ExactArgs(1),
			RunE: instanceRunE(func(ctx context.Context, inst *voting.Instance, args []string) error {
				threshold, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid threshold: %w", err)
				}
				return inst.Round().SetThreshold(ctx, threshold)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the round state and tally",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnInstance(cmd, func(_ context.Context, inst *voting.Instance) error {
					return showRound(cmd, inst)
				})
			},
		},
	)
	return cmd
}

func roundStartCommand() *cobra.Command {
	var params voting.RuleParams
	cmd := &cobra.Command{
		Use:   "start majority|plurality",
		Short: "Start a round with the given end rule",
		Args:  cobra.ExactArgs(1),
		RunE: instanceRunE(func(ctx context.Context, inst *voting.Instance, args []string) error {
			return inst.Round().Start(ctx, voting.RuleKind(args[0]), params)
		}),
	}
	cmd.Flags().
		IntVar(&params.Threshold, "threshold", 0, "pinned majority threshold, 0 to follow the vote count")
	cmd.Flags().
		IntVar(&params.WinnerCount, "winners", 1, "number of plurality winners")
	return cmd
}

func roundActionCommand(
	use string,
	short string,
	fn func(*voting.RoundController, context.Context) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: instanceRunE(func(ctx context.Context, inst *voting.Instance, _ []string) error {
			return fn(inst.Round(), ctx)
		}),
	}
}

func showRound(cmd *cobra.Command, inst *voting.Instance) error {
	status := inst.Round().Status()
	writer := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintf(writer, "state:\t%s\n", roundState(status))
	if status.Rule != "" {
		fmt.Fprintf(writer, "rule:\t%s\n", status.Rule)
	}
	if status.Running {
		fmt.Fprintf(writer, "started:\t%s\n", status.StartedAt.Format(time.RFC3339))
	}
	switch status.Rule {
	case voting.RuleKindMajority:
		mode := "pinned"
		if status.AutoThreshold {
			mode = "auto"
		}
		fmt.Fprintf(writer, "threshold:\t%d (%s)\n", status.Threshold, mode)
	case voting.RuleKindPlurality:
		fmt.Fprintf(writer, "winners:\t%d\n", status.WinnerCount)
	}
	for _, bucket := range inst.Round().Tally() {
		target := bucket.Target
		if target == "" {
			target = "(no one)"
		}
		fmt.Fprintf(writer, "%s\t%d\n", target, len(bucket.VoteIds))
	}
	return writer.Flush()
}
