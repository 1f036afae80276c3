package main

import (
	"github.com/spf13/cobra"
)

// newExportCmd implements the export(options) boundary call. Rich
// CSV/JSON export formatting is an external collaborator out of this
// repository's scope; this command only emits the core's raw
// JSON representation of a kind's records and groups so a downstream
// formatter has a stable shape to consume.
func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <contact|company>",
		Short: "Emit raw JSON for a kind's records and groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}

			recs, err := curApp.records.All(kind)
			if err != nil {
				return err
			}
			groups, err := curApp.groups.List(kind, "")
			if err != nil {
				return err
			}

			return printJSON(cmd, map[string]any{
				"kind":    kind,
				"records": recs,
				"groups":  groups,
			})
		},
	}
}
