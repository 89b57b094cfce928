// glyphbox is the sandbox runtime for one desktop icon. It reads framed
// requests on stdin and writes framed responses on stdout; logs go to
// stderr only.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/logging"
	"github.com/GriffinCanCode/deskglyph/internal/protocol"
	"github.com/GriffinCanCode/deskglyph/internal/sandbox"
)

var (
	scriptPath      string
	callbackTimeout time.Duration
	maxCommands     int
	logLevel        string
)

var rootCmd = &cobra.Command{
	Use:   "glyphbox",
	Short: "Widget script runtime speaking the deskglyph protocol on stdin/stdout",
	Long: `glyphbox runs one widget script for one desktop icon. It is started by
deskglyph, usually inside bubblewrap, and exits after Shutdown or when stdin
closes. Running it by hand is only useful for debugging the protocol.`,
	Args:          cobra.NoArgs,
	RunE:          serve,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaults := sandbox.DefaultConfig()
	rootCmd.Flags().StringVar(&scriptPath, "script", "", "script to load before the first request")
	rootCmd.Flags().DurationVar(&callbackTimeout, "callback-timeout", defaults.CallbackTimeout, "wall-clock bound for every script callback")
	rootCmd.Flags().IntVar(&maxCommands, "max-commands", defaults.MaxCommands, "draw commands accepted per render")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func serve(cmd *cobra.Command, _ []string) error {
	logger, err := logging.ForSandbox(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	config := sandbox.DefaultConfig()
	config.CallbackTimeout = callbackTimeout
	config.MaxCommands = maxCommands

	rt := sandbox.New(config, logger.Named("glyphbox"))
	if scriptPath != "" {
		if err := rt.Load(scriptPath); err != nil {
			return err
		}
	}

	logger.Debug("Serving",
		zap.Int("pid", os.Getpid()),
		zap.Uint32("protocol", protocol.Version),
		zap.String("script", scriptPath))
	return rt.Serve(cmd.InOrStdin(), cmd.OutOrStdout())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "glyphbox: %v\n", err)
		os.Exit(1)
	}
}
