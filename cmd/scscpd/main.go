// Command scscpd runs a standalone SCSCP server.
//
// For more information try running:
//
//	scscpd --help
package main

import (
	"fmt"
	"os"

	"scscp.dev/scscpd/cmd/scscpd/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
