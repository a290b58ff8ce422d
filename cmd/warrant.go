package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stephnangue/warrant/cmd/server"
)

var warrantCmd = &cobra.Command{
	Use:   "warrant",
	Short: "Warrant is an authorization authority for privileged operations",
	Long: `Warrant decides whether a subject may perform a privileged action.
It combines a per-action implicit policy with live session state, grants
short-lived temporary authorizations after successful authentication, and
drives per-session authentication agents to challenge the operator when a
policy demands it.`,
}

func Execute() {
	if err := warrantCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	warrantCmd.AddCommand(server.ServerCmd)
}
