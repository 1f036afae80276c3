package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelcrm/dedupd/internal/merge"
)

// newMergeCmd implements merge(group_id, primary_id, {dry_run?, create_backup?}).
func newMergeCmd() *cobra.Command {
	var (
		dryRun       bool
		createBackup bool
	)

	cmd := &cobra.Command{
		Use:   "merge <group-id> <primary-external-id>",
		Short: "Merge a duplicate group into its chosen primary record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := merge.Request{
				GroupID:           args[0],
				PrimaryExternalID: args[1],
				CreateBackup:      createBackup,
				DryRun:            dryRun,
			}

			if dryRun {
				preview, err := curApp.merger.Preview(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd, preview)
			}

			result, err := curApp.merger.Run(cmd.Context(), nowFunc(), req)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "merge failed after absorbing %v: %v\n", result.PartiallyAbsorbed, err)
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview the merge without mutating anything")
	cmd.Flags().BoolVar(&createBackup, "backup", true, "write a backup file before merging")
	return cmd
}

// nowFunc supplies the merge command's clock reading; merge.Executor.Run
// takes the time as a parameter instead of reading the clock itself.
func nowFunc() time.Time {
	return time.Now()
}
