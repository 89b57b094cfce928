package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment variable, e.g. GLYPH_HOST_RESPONSE_TIMEOUT.
const EnvPrefix = "GLYPH"

// AppName names the per-user config and script directories.
const AppName = "deskglyph"

// Config holds all application configuration.
type Config struct {
	Desktop     DesktopConfig     `toml:"desktop" yaml:"desktop"`
	Scripts     ScriptsConfig     `toml:"scripts" yaml:"scripts"`
	Sandbox     SandboxConfig     `toml:"sandbox" yaml:"sandbox"`
	Host        HostConfig        `toml:"host" yaml:"host"`
	Logging     LogConfig         `toml:"logging" yaml:"logging"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics" yaml:"diagnostics"`
}

// DesktopConfig sizes the desktop grid.
type DesktopConfig struct {
	Dir            string   `toml:"dir" yaml:"dir" split_words:"true"`
	IconSize       uint32   `toml:"icon_size" yaml:"icon_size" split_words:"true"`
	GridSpacing    uint32   `toml:"grid_spacing" yaml:"grid_spacing" split_words:"true"`
	ScreenWidth    uint32   `toml:"screen_width" yaml:"screen_width" split_words:"true"`
	ScreenHeight   uint32   `toml:"screen_height" yaml:"screen_height" split_words:"true"`
	CanvasWidth    uint32   `toml:"canvas_width" yaml:"canvas_width" split_words:"true"`
	CanvasHeight   uint32   `toml:"canvas_height" yaml:"canvas_height" split_words:"true"`
	RescanInterval Duration `toml:"rescan_interval" yaml:"rescan_interval" split_words:"true"`
}

// ScriptsConfig lists script directories in precedence order.
type ScriptsConfig struct {
	Dirs []string `toml:"dirs" yaml:"dirs" split_words:"true"`
}

// SandboxConfig controls how widget scripts are isolated and bounded.
type SandboxConfig struct {
	Enabled         bool     `toml:"enabled" yaml:"enabled" split_words:"true"`
	AllowNetwork    bool     `toml:"allow_network" yaml:"allow_network" split_words:"true"`
	ReadOnlyPaths   []string `toml:"read_only_paths" yaml:"read_only_paths" split_words:"true"`
	ReadWritePaths  []string `toml:"read_write_paths" yaml:"read_write_paths" split_words:"true"`
	BwrapPath       string   `toml:"bwrap_path" yaml:"bwrap_path" split_words:"true"`
	RuntimePath     string   `toml:"runtime_path" yaml:"runtime_path" split_words:"true"`
	CallbackTimeout Duration `toml:"callback_timeout" yaml:"callback_timeout" split_words:"true"`
	MaxCommands     int      `toml:"max_commands" yaml:"max_commands" split_words:"true"`
}

// HostConfig bounds the host side of every session.
type HostConfig struct {
	ResponseTimeout Duration `toml:"response_timeout" yaml:"response_timeout" split_words:"true"`
	ShutdownWait    Duration `toml:"shutdown_wait" yaml:"shutdown_wait" split_words:"true"`
	MaxParallel     int      `toml:"max_parallel" yaml:"max_parallel" split_words:"true"`
	BreakerFailures uint32   `toml:"breaker_failures" yaml:"breaker_failures" split_words:"true"`
	BreakerCooldown Duration `toml:"breaker_cooldown" yaml:"breaker_cooldown" split_words:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level" yaml:"level" split_words:"true"`
	Development bool   `toml:"development" yaml:"development" split_words:"true"`
}

// DiagnosticsConfig holds the optional HTTP diagnostics server.
type DiagnosticsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled" split_words:"true"`
	Addr    string `toml:"addr" yaml:"addr" split_words:"true"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Desktop: DesktopConfig{
			Dir:            defaultDesktopDir(),
			IconSize:       64,
			GridSpacing:    20,
			ScreenWidth:    1920,
			ScreenHeight:   1080,
			RescanInterval: Duration(2 * time.Second),
		},
		Scripts: ScriptsConfig{
			Dirs: DefaultScriptDirs(),
		},
		Sandbox: SandboxConfig{
			Enabled:         true,
			AllowNetwork:    false,
			BwrapPath:       "bwrap",
			CallbackTimeout: Duration(200 * time.Millisecond),
			MaxCommands:     4096,
		},
		Host: HostConfig{
			ResponseTimeout: Duration(time.Second),
			ShutdownWait:    Duration(100 * time.Millisecond),
			MaxParallel:     4,
			BreakerFailures: 3,
			BreakerCooldown: Duration(30 * time.Second),
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9477",
		},
	}
}

func defaultDesktopDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Desktop"
	}
	return filepath.Join(home, "Desktop")
}

// DefaultScriptDirs returns the user script directory followed by the
// system ones.
func DefaultScriptDirs() []string {
	var dirs []string
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, AppName, "scripts"))
	}
	return append(dirs,
		filepath.Join("/usr/share", AppName, "scripts"),
		filepath.Join("/usr/lib", AppName, "scripts"),
	)
}

// DefaultFile returns the per-user config file path, whether or not it exists.
func DefaultFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, AppName, "config.toml")
}

// Load builds the configuration from defaults, then the file at path (TOML
// or YAML by extension, skipped when path is empty), then GLYPH_*
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the per-user file if present and the environment,
// falling back to defaults on any error.
func LoadOrDefault() *Config {
	path := DefaultFile()
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config file type %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Validate rejects values the rest of the program cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Desktop.IconSize == 0 {
		errs = append(errs, errors.New("desktop.icon_size must be positive"))
	}
	if c.Desktop.ScreenWidth == 0 || c.Desktop.ScreenHeight == 0 {
		errs = append(errs, errors.New("desktop screen size must be positive"))
	}
	if c.Sandbox.CallbackTimeout <= 0 {
		errs = append(errs, errors.New("sandbox.callback_timeout must be positive"))
	}
	if c.Sandbox.MaxCommands <= 0 {
		errs = append(errs, errors.New("sandbox.max_commands must be positive"))
	}
	if c.Host.ResponseTimeout <= 0 {
		errs = append(errs, errors.New("host.response_timeout must be positive"))
	}
	if c.Host.MaxParallel <= 0 {
		errs = append(errs, errors.New("host.max_parallel must be positive"))
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
