package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newPruneBackupsCmd() *cobra.Command {
	var retentionDays int

	cmd := &cobra.Command{
		Use:   "prune-backups",
		Short: "Delete merge backup files older than the configured retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			days := retentionDays
			if days == 0 {
				days = curApp.cfgLoader.Current().BackupRetentionDays
			}

			removed, err := curApp.merger.PruneBackups(time.Now().UTC(), days)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"removed": removed, "retentionDays": days})
		},
	}

	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "override the configured backup retention window (0 uses config)")
	return cmd
}
