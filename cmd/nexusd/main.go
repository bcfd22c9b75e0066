// Command nexusd is the Nexus BBS server daemon and its operator CLI,
// following the teacher's split between a long-running `serve` process and
// offline recovery subcommands (accounts/bans/settings), built on
// spf13/cobra per the expanded spec's Ambient Stack.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "nexusd",
		Short: "Nexus BBS protocol server",
		Long: `nexusd runs the Nexus BBS protocol engine: dual-port TLS
session service, chat/presence, file transfer, and voice relay.

Use "nexusd serve" to run the daemon, or one of the account/ban/settings
subcommands for offline administration against the same SQLite database.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to nexusd.yaml (default: env/flags/builtin defaults)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newAccountsCmd())
	root.AddCommand(newBansCmd())
	root.AddCommand(newTrustsCmd())
	root.AddCommand(newSettingsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
