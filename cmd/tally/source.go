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

func sourceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage the voter sources of an instance",
	}
	addInstanceFlag(cmd)
	cmd.AddCommand(
		&cobra.Command{
			Use:   "type identity|community",
			Short: "Replace the voter sources with an empty set of the given type",
			Args:  cobra.ExactArgs(1),
			RunE: instanceRunE(func(ctx context.Context, inst *voting.Instance, args []string) error {
				return inst.SetSourceType(ctx, voting.SourceManagerKind(args[0]))
			}),
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show the voter sources",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnInstance(cmd, func(_ context.Context, inst *voting.Instance) error {
					return showSources(cmd, inst)
				})
			},
		},
		roleSourceCommand("add-role", "Add a role source", voting.RoleFacet.AddRole),
		roleSourceCommand("remove-role", "Remove a role source", voting.RoleFacet.RemoveRole),
		userSourceCommand("whitelist", "Add an identity as a voter", voting.UserFacet.Whitelist),
		userSourceCommand("unwhitelist", "Remove an identity from the whitelist", voting.UserFacet.Unwhitelist),
		userSourceCommand("blacklist", "Exclude an identity from the voters", voting.UserFacet.Blacklist),
		userSourceCommand("unblacklist", "Remove an identity from the blacklist", voting.UserFacet.Unblacklist),
		&cobra.Command{
			Use:   "set-community COMMUNITY",
			Short: "Use the accounts of a community as voters",
			Args:  cobra.ExactArgs(1),
			RunE: instanceRunE(func(ctx context.Context, inst *voting.Instance, args []string) error {
				facet, err := inst.Community()
				if err != nil {
					return err
				}
				return facet.SetCommunity(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "clear-community",
			Short: "Remove the community source",
			Args:  cobra.NoArgs,
			RunE: instanceRunE(func(ctx context.Context, inst *voting.Instance, _ []string) error {
				facet, err := inst.Community()
				if err != nil {
					return err
				}
				return facet.ClearCommunity(ctx)
			}),
		},
		accountSourceCommand("block-account", "Exclude a community account from the voters", voting.AccountFacet.BlockAccount),
		accountSourceCommand("unblock-account", "Remove an account from the blocked accounts", voting.AccountFacet.UnblockAccount),
	)
	return cmd
}

func roleSourceCommand(
	use string,
	short string,
	fn func(voting.RoleFacet, context.Context, string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ROLE",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: instanceRunE(func(ctx context.Context, inst *voting.Instance, args []string) error {
			facet, err := inst.Roles()
			if err != nil {
				return err
			}
			return fn(facet, ctx, args[0])
		}),
	}
}

func userSourceCommand(
	use string,
	short string,
	fn func(voting.UserFacet, context.Context, string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " IDENTITY",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: instanceRunE(func(ctx context.Context, inst *voting.Instance, args []string) error {
			facet, err := inst.Users()
			if err != nil {
				return err
			}
			return fn(facet, ctx, args[0])
		}),
	}
}

func accountSourceCommand(
	use string,
	short string,
	fn func(voting.AccountFacet, context.Context, string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ACCOUNT",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: instanceRunE(func(ctx context.Context, inst *voting.Instance, args []string) error {
			facet, err := inst.Accounts()
			if err != nil {
				return err
			}
			return fn(facet, ctx, args[0])
		}),
	}
}

func showSources(cmd *cobra.Command, inst *voting.Instance) error {
	mgr, err := inst.SourceManager()
	if err != nil {
		return err
	}
	writer := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintf(writer, "type:\t%s\n", mgr.Kind())
	switch m := mgr.(type) {
	case *voting.IdentitySourceManager:
		fmt.Fprintf(writer, "roles:\t%s\n", joinOrDash(m.Roles()))
		fmt.Fprintf(writer, "whitelist:\t%s\n", joinOrDash(m.Whitelisted()))
		fmt.Fprintf(writer, "blacklist:\t%s\n", joinOrDash(m.Blacklisted()))
	case *voting.CommunitySourceManager:
		community := m.Community()
		if community == "" {
			community = "-"
		}
		fmt.Fprintf(writer, "community:\t%s\n", community)
		fmt.Fprintf(writer, "blocked:\t%s\n", joinOrDash(m.BlockedAccounts()))
	}
	return writer.Flush()
}
