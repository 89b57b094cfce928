package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/logging"
	"github.com/GriffinCanCode/deskglyph/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Render the desktop and keep it up to date",
	Long: `Scan the desktop directory, render every icon in its own sandbox and
rescan every desktop.rescan_interval until interrupted.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.ForDaemon(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	d := st.newDaemon(nil, st.catalog)

	logger.Info("Starting deskglyph",
		zap.String("version", version),
		zap.String("desktop", cfg.Desktop.Dir),
		zap.Strings("scripts", st.catalog.Dirs()),
		zap.Bool("isolated", cfg.Sandbox.Enabled),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })
	if cfg.Diagnostics.Enabled {
		srv := server.New(server.Config{
			Addr:        cfg.Diagnostics.Addr,
			Development: cfg.Logging.Development,
			Version:     version,
		}, st.manager, d, st.registry, st.metrics, logger.Named("server"))
		g.Go(func() error { return srv.Run(gctx) })
	}

	runErr := g.Wait()
	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Sandbox shutdown incomplete", zap.Error(err))
	}
	return runErr
}
