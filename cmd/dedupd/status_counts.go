package main

import (
	"github.com/spf13/cobra"
)

// newStatusCountsCmd implements get_status_counts(kind).
func newStatusCountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status-counts <contact|company>",
		Short: "Show duplicate group counts by status for a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			counts, err := curApp.groups.StatusCounts(kind)
			if err != nil {
				return err
			}
			return printJSON(cmd, counts)
		},
	}
}
