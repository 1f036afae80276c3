package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newConnectionCmd groups authenticate(credential), connection_status(), and
// disconnect() from the CLI/RPC surface. The concrete CRM adapter and its
// OS-keychain credential sealing are external collaborators out of this
// repository's scope; these commands only report what this core
// can see: whether a live crm.Client has been wired in place of
// crm.Unconfigured.
func newConnectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection",
		Short: "Inspect or change the CRM connection",
	}
	cmd.AddCommand(newConnectionStatusCmd(), newAuthenticateCmd(), newDisconnectCmd())
	return cmd
}

func newConnectionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a live CRM client is configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := curApp.merger.Client().AccountInfo(cmd.Context())
			connected := err == nil
			return printJSON(cmd, map[string]any{"connected": connected, "portalId": info.PortalID})
		},
	}
}

func newAuthenticateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authenticate",
		Short: "Establish a CRM session (wiring a real crm.Client is out of this repository's scope)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("authenticate: no concrete crm.Client is wired into this build; see internal/crm.Client")
		},
	}
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Tear down the current CRM session",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "no active CRM session to disconnect")
			return nil
		},
	}
}
