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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/tally/voting"
)

// runOnVotingInstance selects the instance by --channel when given, the way
// a chat message is routed to the instance owning its channel
func runOnVotingInstance(
	cmd *cobra.Command,
	fn func(ctx context.Context, inst *voting.Instance) error,
) error {
	channel, _ := cmd.Flags().GetString("channel")
	if channel == "" {
		return runOnInstance(cmd, fn)
	}
	return runWithEngine(cmd, func(ctx context.Context, dir *voting.Directory) error {
		inst, err := dir.ByVotingChannel(channel)
		if err != nil {
			return fmt.Errorf("channel %q: %w", channel, err)
		}
		return fn(ctx, inst)
	})
}

func voteCommand() *cobra.Command {
	var voteName string
	cmd := &cobra.Command{
		Use:   "vote",
		Short: "Cast and remove votes",
	}
	addInstanceFlag(cmd)
	cmd.PersistentFlags().
		StringP("channel", "c", "", "voting channel the vote is cast in, instead of --instance")
	cmd.PersistentFlags().
		StringVar(&voteName, "vote", voting.StandardVoteName, "name of the vote to use")

	voterOf := func(ctx context.Context, inst *voting.Instance, identity string) (voting.Voter, error) {
		voter, err := inst.Voters().GetByExternalIdentity(ctx, identity)
		if err != nil {
			return voting.Voter{}, fmt.Errorf("voter %q: %w", identity, err)
		}
		return voter, nil
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "cast IDENTITY TARGET",
			Short: "Place a vote on a voter",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnVotingInstance(cmd, func(ctx context.Context, inst *voting.Instance) error {
					voter, err := voterOf(ctx, inst, args[0])
					if err != nil {
						return err
					}
					return inst.Voters().Cast(ctx, voter.ID, voteName, args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "novote IDENTITY",
			Short: "Place a vote on no one",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnVotingInstance(cmd, func(ctx context.Context, inst *voting.Instance) error {
					voter, err := voterOf(ctx, inst, args[0])
					if err != nil {
						return err
					}
					return inst.Voters().CastNoVote(ctx, voter.ID, voteName)
				})
			},
		},
		&cobra.Command{
			Use:   "remove IDENTITY",
			Short: "Take back a vote",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnVotingInstance(cmd, func(ctx context.Context, inst *voting.Instance) error {
					voter, err := voterOf(ctx, inst, args[0])
					if err != nil {
						return err
					}
					return inst.Voters().Uncast(ctx, voter.ID, voteName)
				})
			},
		},
	)
	return cmd
}

func voterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voter",
		Short: "Inspect and adjust voters",
	}
	addInstanceFlag(cmd)
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the voters and their votes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnInstance(cmd, func(_ context.Context, inst *voting.Instance) error {
					return listVoters(cmd, inst)
				})
			},
		},
		&cobra.Command{
			Use:   "set VOTER can-vote|votable|modifier VALUE",
			Short: "Change a voter flag",
			Args:  cobra.ExactArgs(3),
			RunE: instanceRunE(func(ctx context.Context, inst *voting.Instance, args []string) error {
				return setVoterFlag(ctx, inst.Voters(), args[0], args[1], args[2])
			}),
		},
		&cobra.Command{
			Use:   "grant VOTER NAME",
			Short: "Give a voter a special vote",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnInstance(cmd, func(ctx context.Context, inst *voting.Instance) error {
					voteId, err := inst.Voters().GrantSpecialVote(ctx, args[0], args[1])
					if voteId != "" {
						fmt.Fprintf(cmd.OutOrStdout(), "granted %s vote %s\n", args[1], voteId)
					}
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "revoke VOTER NAME",
			Short: "Take a special vote away from a voter",
			Args:  cobra.ExactArgs(2),
			RunE: instanceRunE(func(ctx context.Context, inst *voting.Instance, args []string) error {
				return inst.Voters().RevokeSpecialVote(ctx, args[0], args[1])
			}),
		},
	)
	return cmd
}

func setVoterFlag(
	ctx context.Context,
	voters *voting.VoterRegistry,
	voterId string,
	flag string,
	value string,
) error {
	switch flag {
	case "can-vote", "votable":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", flag, err)
		}
		if flag == "can-vote" {
			return voters.SetCanVote(ctx, voterId, enabled)
		}
		return voters.SetVotable(ctx, voterId, enabled)
	case "modifier":
		modifier, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid modifier: %w", err)
		}
		return voters.SetModifier(ctx, voterId, modifier)
	default:
		return errors.New("unknown voter flag: " + flag)
	}
}

func listVoters(cmd *cobra.Command, inst *voting.Instance) error {
	writer := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintf(writer, "VOTER\tCAN VOTE\tVOTABLE\tMODIFIER\tVOTES\n")
	for _, voter := range inst.Voters().List() {
		var placements []string
		for _, voteId := range voter.VoteIds() {
			vote, err := inst.Votes().Get(voteId)
			if err != nil {
				continue
			}
			placements = append(placements, placementLabel(vote))
		}
		fmt.Fprintf(writer, "%s\t%t\t%t\t%d\t%s\n",
			voter.ID,
			voter.CanVote,
			voter.IsVotable,
			voter.Modifier,
			joinOrDash(placements),
		)
	}
	return writer.Flush()
}

func placementLabel(vote voting.Vote) string {
	switch {
	case !vote.Placed:
		return vote.Name + ":-"
	case vote.IsNoVote():
		return vote.Name + ":(no one)"
	default:
		return vote.Name + ":" + vote.Target
	}
}

func refreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch voter sources and reconcile the voters of every instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithEngine(cmd, func(ctx context.Context, dir *voting.Directory) error {
				return dir.Refresh(ctx)
			})
		},
	}
}
