// Command rdcp runs either side of a remote desktop session: "serve"
// hosts the screen and injects remote input, "connect" views a host.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rdcp",
		Short: "Remote desktop streaming over RDCP",
		Long: `rdcp streams a host screen to remote viewers over a single TCP
connection, with challenge-response authentication, JPEG frame
encoding, and remote input injection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		connectCmd(),
		userCmd(),
		historyCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
