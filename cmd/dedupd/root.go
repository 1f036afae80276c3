package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelcrm/dedupd/internal/backup"
	"github.com/kestrelcrm/dedupd/internal/config"
	"github.com/kestrelcrm/dedupd/internal/crm"
	"github.com/kestrelcrm/dedupd/internal/database"
	"github.com/kestrelcrm/dedupd/internal/dedupe"
	"github.com/kestrelcrm/dedupd/internal/group"
	"github.com/kestrelcrm/dedupd/internal/importrun"
	"github.com/kestrelcrm/dedupd/internal/logging"
	"github.com/kestrelcrm/dedupd/internal/merge"
	"github.com/kestrelcrm/dedupd/internal/record"
)

// app bundles the wired components a subcommand needs. Built once in
// PersistentPreRunE and torn down in PersistentPostRunE: an
// open-at-startup/close-at-shutdown lifecycle owned by the host
// process rather than a package-level global.
type app struct {
	cfgLoader        *config.Loader
	db               *database.DB
	records          *record.Store
	groups           *group.Store
	imports          *importrun.Store
	engine           *dedupe.Engine
	merger           *merge.Executor
	stopCheckpointer context.CancelFunc
}

func (a *app) close() {
	if a.stopCheckpointer != nil {
		a.stopCheckpointer()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

var (
	cfgFile string
	curApp  *app
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dedupd",
		Short: "Deduplicate CRM contact and company records",
		Long: "dedupd analyzes imported CRM contact and company records for likely " +
			"duplicates, producing reviewable groups with a recommended golden " +
			"survivor, and applies user-confirmed merges transactionally.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfgFile)
			if err != nil {
				return err
			}
			curApp = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if curApp != nil {
				curApp.close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config.toml (defaults to the per-user config directory)")

	root.AddCommand(
		newImportCmd(),
		newAnalyzeCmd(),
		newWatchCmd(),
		newGroupsCmd(),
		newMergeCmd(),
		newStatusCountsCmd(),
		newRecordsCmd(),
		newExportCmd(),
		newAppInfoCmd(),
		newConnectionCmd(),
		newPruneBackupsCmd(),
	)

	return root
}

func newApp(configPath string) (*app, error) {
	loader, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := loader.Current()

	logging.Init(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	records := record.NewStore(db)
	groups := group.NewStore(db)
	imports := importrun.NewStore(db)
	engine := dedupe.New(records, groups)
	backups := backup.NewWriter(cfg.BackupDir)
	merger := merge.New(records, groups, crm.Unconfigured{}, backups)

	checkpointCtx, stopCheckpointer := context.WithCancel(context.Background())
	go db.StartCheckpointRoutine(checkpointCtx)

	return &app{
		cfgLoader:        loader,
		db:               db,
		records:          records,
		groups:           groups,
		imports:          imports,
		engine:           engine,
		merger:           merger,
		stopCheckpointer: stopCheckpointer,
	}, nil
}

func parseKind(s string) (record.Kind, error) {
	switch s {
	case "contact":
		return record.KindContact, nil
	case "company":
		return record.KindCompany, nil
	default:
		return "", fmt.Errorf("unknown kind %q: expected \"contact\" or \"company\"", s)
	}
}
