// deskglyph renders desktop icons with sandboxed widget scripts.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	desktopDir string
)

var rootCmd = &cobra.Command{
	Use:   "deskglyph",
	Short: "Scriptable desktop icons rendered by sandboxed widget scripts.",
	Long: `deskglyph scans a desktop directory and renders every icon with a JavaScript
widget script. Each icon gets its own sandbox process that speaks a framed
JSON protocol over stdin/stdout; a crashing or hanging script only loses its
own icon.`,
	RunE:          runDaemon,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (TOML or YAML, default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
	rootCmd.PersistentFlags().StringVar(&desktopDir, "desktop", "", "override desktop.dir")

	rootCmd.AddCommand(runCmd, listScriptsCmd, renderCmd, eventCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
