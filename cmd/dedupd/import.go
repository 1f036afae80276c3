package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrelcrm/dedupd/internal/importsrc"
	"github.com/kestrelcrm/dedupd/internal/record"
)

// newImportCmd implements the CLI/RPC surface's import(kind). The live CRM
// FetchAll path is an external collaborator out of this repository's
// scope; the --vcard flag wires the one bulk-import adapter this repo
// carries (internal/importsrc) so the command is exercisable without one.
func newImportCmd() *cobra.Command {
	var vcardPath string

	cmd := &cobra.Command{
		Use:   "import <contact|company>",
		Short: "Import records into the local store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}

			if vcardPath == "" {
				return fmt.Errorf("no import source configured: pass --vcard, or wire a live crm.Client for the fetch_all path")
			}
			if kind != record.KindContact {
				return fmt.Errorf("--vcard only imports contacts")
			}

			f, err := os.Open(vcardPath)
			if err != nil {
				return fmt.Errorf("open vcard file: %w", err)
			}
			defer f.Close()

			recs, err := importsrc.VCardContacts(f)
			if err != nil {
				return err
			}

			batchID, err := curApp.imports.Start(kind)
			if err != nil {
				return err
			}

			if err := curApp.records.UpsertBatch(recs); err != nil {
				_ = curApp.imports.Finish(batchID, "failed", len(recs), 0, len(recs), map[string]any{"error": err.Error()})
				return err
			}
			if err := curApp.imports.Finish(batchID, "completed", len(recs), len(recs), 0, nil); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d contacts (batch %s)\n", len(recs), batchID)
			return nil
		},
	}

	cmd.Flags().StringVar(&vcardPath, "vcard", "", "path to a vCard file to import as contacts")
	return cmd
}
