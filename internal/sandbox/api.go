package sandbox

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

// installGlobals strips host escape hatches and installs the console and
// glyph helpers.
func installGlobals(vm *goja.Runtime, console *console) error {
	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	// Timers are no-ops: there is no event loop to run them on
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"} {
		if err := vm.Set(name, noop); err != nil {
			return err
		}
	}

	if err := vm.Set("console", console.object(vm)); err != nil {
		return err
	}
	return vm.Set("glyph", glyphObject(vm))
}

// glyphObject builds the glyph global: time and pure path helpers.
func glyphObject(vm *goja.Runtime) *goja.Object {
	clock := vm.NewObject()
	clock.Set("now", func() int64 { return time.Now().Unix() })
	clock.Set("now_ms", func() int64 { return time.Now().UnixMilli() })
	clock.Set("format", formatTime)

	file := vm.NewObject()
	file.Set("basename", func(p string) string {
		if p == "" {
			return ""
		}
		base := filepath.Base(p)
		if base == "/" || base == "." {
			return ""
		}
		return base
	})
	file.Set("dirname", func(p string) string {
		if p == "" {
			return ""
		}
		return filepath.Dir(p)
	})
	file.Set("extension", func(p string) string {
		return strings.TrimPrefix(filepath.Ext(p), ".")
	})

	glyph := vm.NewObject()
	glyph.Set("time", clock)
	glyph.Set("file", file)
	return glyph
}

// formatTime understands %H:%M:%S and %H:%M in UTC; anything else yields
// unix seconds.
func formatTime(layout string) string {
	now := time.Now().UTC()
	switch layout {
	case "%H:%M:%S":
		return now.Format("15:04:05")
	case "%H:%M":
		return now.Format("15:04")
	default:
		return strconv.FormatInt(now.Unix(), 10)
	}
}

// console forwards script output to the log behind a token bucket.
type console struct {
	logger  *zap.Logger
	limiter *rate.Limiter
	dropped int
}

func newConsole(logger *zap.Logger, config Config) *console {
	limit := rate.Inf
	if config.ConsoleRate > 0 {
		limit = rate.Limit(config.ConsoleRate)
	}
	return &console{
		logger:  logger.Named("console"),
		limiter: rate.NewLimiter(limit, max(config.ConsoleBurst, 1)),
	}
}

func (c *console) object(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	obj.Set("log", c.makeFunc(zap.InfoLevel))
	obj.Set("info", c.makeFunc(zap.InfoLevel))
	obj.Set("debug", c.makeFunc(zap.DebugLevel))
	obj.Set("warn", c.makeFunc(zap.WarnLevel))
	obj.Set("error", c.makeFunc(zap.ErrorLevel))
	return obj
}

func (c *console) makeFunc(level zapcore.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if !c.limiter.Allow() {
			c.dropped++
			return goja.Undefined()
		}

		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		var fields []zap.Field
		if c.dropped > 0 {
			fields = append(fields, zap.Int("dropped", c.dropped))
			c.dropped = 0
		}
		if ce := c.logger.Check(level, strings.Join(parts, " ")); ce != nil {
			ce.Write(fields...)
		}
		return goja.Undefined()
	}
}
