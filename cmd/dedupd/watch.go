package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelcrm/dedupd/internal/config"
	"github.com/kestrelcrm/dedupd/internal/dedupe"
	"github.com/kestrelcrm/dedupd/internal/record"
)

// newWatchCmd runs periodic re-analysis until interrupted. This is the
// long-running path where config hot-reload pays off: every tick builds its
// request from the loader's current snapshot, so editing fuzzy_min_score or
// backup_retention_days in config.toml takes effect on the next run without
// a restart.
func newWatchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run duplicate analysis on an interval, hot-reloading config changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			curApp.cfgLoader.WatchReload(func(cfg config.Config) {
				fmt.Fprintf(cmd.OutOrStdout(), "config reloaded: min-score=%d retention-days=%d\n",
					cfg.FuzzyMinScore, cfg.BackupRetentionDays)
			})

			scheduler := dedupe.NewScheduler(curApp.engine, interval, func(kind record.Kind) dedupe.Request {
				cfg := curApp.cfgLoader.Current()
				return dedupe.Request{
					Kind:          kind,
					RunExact:      cfg.RunExact,
					RunFuzzy:      cfg.RunFuzzy,
					MinScore:      cfg.FuzzyMinScore,
					ClearExisting: cfg.ClearExisting,
				}
			})
			scheduler.SetRunCompletedCallback(func(kind record.Kind, summary dedupe.Summary, err error) {
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s analysis failed: %v\n", kind, err)
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d groups (%d exact, %d fuzzy)\n",
					kind, summary.TotalGroups, summary.ExactGroups, summary.FuzzyGroups)

				removed, perr := curApp.merger.PruneBackups(time.Now().UTC(), curApp.cfgLoader.Current().BackupRetentionDays)
				if perr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "backup prune failed: %v\n", perr)
				} else if removed > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "pruned %d expired backups\n", removed)
				}
			})

			scheduler.Start(cmd.Context())
			defer scheduler.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "watching; analyzing every %s (ctrl-c to stop)\n", interval)
			<-cmd.Context().Done()
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 15*time.Minute, "time between analysis runs")
	return cmd
}
