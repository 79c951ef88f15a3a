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

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/tally/voting"
)

func channelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage the voting and update channels of an instance",
	}
	addInstanceFlag(cmd)
	cmd.AddCommand(
		channelMutationCommand("add-voting", "Claim a channel where votes are cast", (*voting.ChannelRegistry).AddVotingChannel),
		channelMutationCommand("remove-voting", "Release a voting channel", (*voting.ChannelRegistry).RemoveVotingChannel),
		channelMutationCommand("add-update", "Add a channel receiving vote updates", (*voting.ChannelRegistry).AddUpdateChannel),
		channelMutationCommand("remove-update", "Remove an update channel", (*voting.ChannelRegistry).RemoveUpdateChannel),
		&cobra.Command{
			Use:   "import",
			Short: "Replace the voting channels with the channels of the community",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnInstance(cmd, func(ctx context.Context, inst *voting.Instance) error {
					unclaimed, err := inst.Channels().ImportFromCommunitySource(ctx)
					if err != nil {
						return err
					}
					for _, channel := range unclaimed {
						fmt.Fprintf(cmd.OutOrStdout(), "skipped %s: claimed by another instance\n", channel)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the channels of the instance",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnInstance(cmd, func(_ context.Context, inst *voting.Instance) error {
					writer := newTabWriter(cmd.OutOrStdout())
					fmt.Fprintf(writer, "voting:\t%s\n", joinOrDash(inst.Channels().VotingChannels()))
					fmt.Fprintf(writer, "update:\t%s\n", joinOrDash(inst.Channels().UpdateChannels()))
					return writer.Flush()
				})
			},
		},
	)
	return cmd
}

func channelMutationCommand(
	use string,
	short string,
	fn func(*voting.ChannelRegistry, context.Context, string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " CHANNEL",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: instanceRunE(func(ctx context.Context, inst *voting.Instance, args []string) error {
			return fn(inst.Channels(), ctx, args[0])
		}),
	}
}
