package logging

import (
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/config"
)

// ErrStdout is returned for a logger configured to write to stdout, which
// carries protocol frames in glyphbox and command output in deskglyph.
var ErrStdout = errors.New("logging to stdout is not allowed")

// Role selects how a binary's log lines are encoded.
type Role int

const (
	// RoleDaemon logs timestamped JSON, or colored console lines in
	// development.
	RoleDaemon Role = iota
	// RoleSandbox logs bare JSON lines with no time or caller. The host
	// relays them from the child's stderr and stamps them itself.
	RoleSandbox
)

func (r Role) String() string {
	if r == RoleSandbox {
		return "sandbox"
	}
	return "daemon"
}

// Logger wraps zap.Logger with a Sync that tolerates terminals and pipes.
type Logger struct {
	*zap.Logger
}

// Config selects level, encoding and destination.
type Config struct {
	Level       string
	Development bool
	Role        Role
	// Output is a zap sink path. Empty means stderr.
	Output string
}

// ForDaemon builds the deskglyph logger from the [logging] config section.
func ForDaemon(cfg config.LogConfig) (*Logger, error) {
	return New(Config{Level: cfg.Level, Development: cfg.Development, Role: RoleDaemon})
}

// ForSandbox builds the glyphbox logger. It always writes to stderr.
func ForSandbox(level string) (*Logger, error) {
	return New(Config{Level: level, Role: RoleSandbox})
}

// New builds a logger. The process name is attached to every entry.
func New(cfg Config) (*Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	output := cfg.Output
	switch output {
	case "":
		output = "stderr"
	case "stdout":
		return nil, ErrStdout
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development && cfg.Role == RoleDaemon,
		Encoding:          "json",
		EncoderConfig:     encoderConfig(cfg),
		OutputPaths:       []string{output},
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     cfg.Role == RoleSandbox,
		DisableStacktrace: !cfg.Development,
	}
	if cfg.Development && cfg.Role == RoleDaemon {
		zapCfg.Encoding = "console"
	}

	logger, err := zapCfg.Build(zap.Fields(zap.String("role", cfg.Role.String())))
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger}, nil
}

// Sync flushes buffered entries. Syncing a terminal or pipe fails on Linux
// and is ignored.
func (l *Logger) Sync() error {
	err := l.Logger.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

func encoderConfig(cfg Config) zapcore.EncoderConfig {
	enc := zapcore.EncoderConfig{
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		FunctionKey:    zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	switch {
	case cfg.Role == RoleSandbox:
		enc.TimeKey = zapcore.OmitKey
		enc.CallerKey = zapcore.OmitKey
	case cfg.Development:
		enc.TimeKey = "T"
		enc.CallerKey = "C"
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		enc.EncodeCaller = zapcore.ShortCallerEncoder
	default:
		enc.TimeKey = "ts"
		enc.CallerKey = "caller"
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		enc.EncodeCaller = zapcore.ShortCallerEncoder
	}
	return enc
}
