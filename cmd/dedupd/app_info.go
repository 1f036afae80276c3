package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// appInfo is the app_info() boundary response shape.
type appInfo struct {
	Version      string `json:"version"`
	DatabasePath string `json:"databasePath"`
	BackupDir    string `json:"backupDir"`
}

// newAppInfoCmd implements app_info().
func newAppInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "app-info",
		Short: "Show build and configuration metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := curApp.cfgLoader.Current()
			return printJSON(cmd, appInfo{
				Version:      version,
				DatabasePath: cfg.DatabasePath,
				BackupDir:    cfg.BackupDir,
			})
		},
	}
}
