package main

import (
	"github.com/spf13/cobra"
)

// newRecordsCmd implements get_records(kind, limit?, offset?).
func newRecordsCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "records <contact|company>",
		Short: "List stored records for a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			recs, err := curApp.records.List(kind, limit, offset)
			if err != nil {
				return err
			}
			return printJSON(cmd, recs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "max records to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "pagination offset")
	return cmd
}
