package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskglyph/internal/daemon"
	"github.com/GriffinCanCode/deskglyph/internal/desktop"
	"github.com/GriffinCanCode/deskglyph/internal/host"
	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/config"
	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/deskglyph/internal/isolation"
	"github.com/GriffinCanCode/deskglyph/internal/scripts"
)

// runtimeName is the sandbox runtime binary, looked up next to deskglyph
// and then on PATH.
const runtimeName = "glyphbox"

// stack is everything a command needs to talk to sandboxes.
type stack struct {
	config   *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	catalog  *scripts.Catalog
	manager  *host.Manager
	scanner  *desktop.Scanner
}

// loadConfig reads --config (or the per-user file when present), the
// environment and the global flag overrides.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if p := config.DefaultFile(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if desktopDir != "" {
		cfg.Desktop.Dir = desktopDir
	}
	return cfg, cfg.Validate()
}

// resolveRuntime finds the glyphbox binary.
func resolveRuntime(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), runtimeName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(runtimeName)
	if err != nil {
		return "", fmt.Errorf("sandbox runtime %q not found, set sandbox.runtime_path: %w", runtimeName, err)
	}
	return path, nil
}

// runtimeArgs passes the script bounds to glyphbox.
func runtimeArgs(cfg *config.Config) []string {
	return []string{
		"--callback-timeout", cfg.Sandbox.CallbackTimeout.String(),
		"--max-commands", strconv.Itoa(cfg.Sandbox.MaxCommands),
		"--log-level", cfg.Logging.Level,
	}
}

func isolationOptions(cfg *config.Config, scriptDirs []string) isolation.Options {
	return isolation.Options{
		Enabled:        cfg.Sandbox.Enabled,
		AllowNetwork:   cfg.Sandbox.AllowNetwork,
		BwrapPath:      cfg.Sandbox.BwrapPath,
		ReadOnlyPaths:  cfg.Sandbox.ReadOnlyPaths,
		ReadWritePaths: cfg.Sandbox.ReadWritePaths,
		ScriptDirs:     scriptDirs,
		WorkDir:        "/tmp",
	}
}

func hostConfig(cfg *config.Config) host.Config {
	return host.Config{
		ResponseTimeout: cfg.Host.ResponseTimeout.Std(),
		ShutdownWait:    cfg.Host.ShutdownWait.Std(),
		BreakerFailures: cfg.Host.BreakerFailures,
		BreakerCooldown: cfg.Host.BreakerCooldown.Std(),
	}
}

func daemonConfig(cfg *config.Config) daemon.Config {
	return daemon.Config{
		IconSize:       cfg.Desktop.IconSize,
		GridSpacing:    cfg.Desktop.GridSpacing,
		ScreenWidth:    cfg.Desktop.ScreenWidth,
		ScreenHeight:   cfg.Desktop.ScreenHeight,
		CanvasWidth:    cfg.Desktop.CanvasWidth,
		CanvasHeight:   cfg.Desktop.CanvasHeight,
		MaxParallel:    cfg.Host.MaxParallel,
		RescanInterval: cfg.Desktop.RescanInterval.Std(),
	}
}

// buildStack indexes scripts and prepares the session manager. Nothing is
// spawned until the first render. extraDirs are made visible to the
// sandbox alongside the script directories.
func buildStack(ctx context.Context, cfg *config.Config, logger *zap.Logger, extraDirs ...string) (*stack, error) {
	catalog, err := scripts.Index(ctx, cfg.Scripts.Dirs, logger.Named("scripts"))
	if err != nil {
		return nil, fmt.Errorf("failed to index scripts: %w", err)
	}
	if len(catalog.Scripts()) == 0 {
		logger.Warn("No widget scripts found", zap.Strings("dirs", cfg.Scripts.Dirs))
	}

	runtime, err := resolveRuntime(cfg.Sandbox.RuntimePath)
	if err != nil {
		return nil, err
	}

	if cfg.Sandbox.Enabled {
		if err := isolation.Available(ctx, cfg.Sandbox.BwrapPath); err != nil {
			return nil, errors.Join(errors.New("sandbox.enabled is set"), err)
		}
	} else {
		logger.Warn("Sandbox isolation disabled, scripts run with host privileges")
	}

	builder := isolation.NewBuilder(isolationOptions(cfg, append(catalog.Dirs(), extraDirs...)))
	spawner := host.ExecSpawner{Argv: builder.Command(runtime, runtimeArgs(cfg)...)}
	logger.Debug("Sandbox command", zap.Strings("argv", spawner.Argv))

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)

	return &stack{
		config:   cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		catalog:  catalog,
		manager:  host.NewManager(spawner, hostConfig(cfg), logger.Named("host"), metrics),
		scanner:  desktop.NewScanner(cfg.Desktop.Dir, logger.Named("desktop")),
	}, nil
}

// newDaemon wires the stack into a daemon over source using resolver for
// scripts. A nil source scans the configured desktop.
func (s *stack) newDaemon(source daemon.Source, resolver daemon.Resolver, opts ...daemon.Option) *daemon.Daemon {
	if source == nil {
		source = s.scanner
	}
	opts = append([]daemon.Option{
		daemon.WithLogger(s.logger.Named("daemon")),
		daemon.WithMetrics(s.metrics),
	}, opts...)
	return daemon.New(daemonConfig(s.config), source, resolver, s.manager, opts...)
}
