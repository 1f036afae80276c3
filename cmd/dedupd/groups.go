package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelcrm/dedupd/internal/group"
)

// newGroupsCmd implements get_groups(kind, status?) and
// update_group_status(group_id, status, golden?).
func newGroupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Inspect and transition duplicate groups",
	}
	cmd.AddCommand(newGroupsListCmd(), newGroupsShowCmd(), newGroupsSetStatusCmd())
	return cmd
}

func newGroupsListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list <contact|company>",
		Short: "List duplicate groups for a kind, optionally filtered by status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			groups, err := curApp.groups.List(kind, status)
			if err != nil {
				return err
			}
			return printJSON(cmd, groups)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending|reviewed|merged|dismissed)")
	return cmd
}

func newGroupsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <group-id>",
		Short: "Show a group and its potential matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, matches, err := curApp.groups.Get(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"group": g, "matches": matches})
		},
	}
}

func newGroupsSetStatusCmd() *cobra.Command {
	var golden string

	cmd := &cobra.Command{
		Use:   "set-status <group-id> <reviewed|dismissed>",
		Short: "Transition a group's status (merged is set only by merge)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := curApp.groups.UpdateStatus(args[0], group.Status(args[1]), golden); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "group %s -> %s\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&golden, "golden", "", "override the golden external id")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
