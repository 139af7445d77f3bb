// Package commands implements the scscpd command-line interface.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version, Commit and Date carry build information injected by main.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "scscpd",
	Short: "scscpd runs an SCSCP 1.3 server",
	Long: `scscpd implements the Symbolic Computation Software Composability
Protocol: it accepts TCP connections, negotiates a protocol version with
each peer, and dispatches OpenMath procedure calls to registered handlers.

Use "scscpd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a config file (YAML, JSON, TOML, ...)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
