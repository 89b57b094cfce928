package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/deskglyph/internal/daemon"
	"github.com/GriffinCanCode/deskglyph/internal/desktop"
	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/logging"
)

var renderScript string

var renderCmd = &cobra.Command{
	Use:   "render <icon-path>",
	Short: "Render one icon and print its draw commands as JSON",
	Long: `Render a single file or directory once, outside the desktop grid, and print
the resulting frame (icon, script, position and draw commands) as JSON.

Examples:
  deskglyph render ~/Desktop/notes.txt
  deskglyph render ~/Desktop/Projects --script ./folder.js`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderScript, "script", "s", "", "script to use instead of resolving one")
}

// fixedScript resolves every icon to one script.
type fixedScript string

func (f fixedScript) Resolve(string, string) string { return string(f) }

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.ForDaemon(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	icon, err := desktop.Inspect(path)
	if err != nil {
		return err
	}

	var script string
	var extraDirs []string
	if renderScript != "" {
		if script, err = filepath.Abs(renderScript); err != nil {
			return err
		}
		extraDirs = append(extraDirs, filepath.Dir(script))
	}

	ctx := cmd.Context()
	st, err := buildStack(ctx, cfg, logger.Logger, extraDirs...)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = st.manager.Shutdown(shutdownCtx)
	}()

	var resolver daemon.Resolver = st.catalog
	if script != "" {
		resolver = fixedScript(script)
	}

	frame, err := st.newDaemon(nil, resolver).RenderIcon(ctx, icon)
	if err != nil {
		return err
	}

	out, err := sonic.MarshalIndent(frame, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
