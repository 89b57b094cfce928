package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "deskglyph %s (commit: %s, built: %s, protocol: %d)\n",
			version, commit, date, protocol.Version)
	},
}
