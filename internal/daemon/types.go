package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/GriffinCanCode/deskglyph/internal/desktop"
	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

// ErrUnknownIcon is returned by Dispatch for a path not on the desktop.
var ErrUnknownIcon = errors.New("unknown icon")

// Client talks to the sandboxes. *host.Manager implements it.
type Client interface {
	Render(ctx context.Context, meta protocol.IconMetadata, rctx protocol.RenderContext, script string) (protocol.Commands, error)
	Dispatch(ctx context.Context, path string, ev protocol.Event) (protocol.EventResult, error)
	Position(ctx context.Context, path string, input protocol.PositionInput) (protocol.Position, error)
	Close(path string) error
}

// Source lists the desktop. *desktop.Scanner implements it.
type Source interface {
	Scan(ctx context.Context) ([]desktop.Icon, error)
}

// Resolver picks a script for an icon. *scripts.Catalog implements it.
type Resolver interface {
	Resolve(iconType, kind string) string
}

// Renderer receives the output of every rendered icon.
type Renderer interface {
	Draw(ctx context.Context, frame Frame) error
	Remove(path string)
}

// ActionSink performs the desktop operations scripts ask for.
type ActionSink interface {
	Perform(ctx context.Context, icon desktop.Icon, action protocol.Action) error
}

// Frame is one rendered icon.
type Frame struct {
	Icon     desktop.Icon      `json:"icon"`
	Script   string            `json:"script"`
	Position protocol.Position `json:"position"`
	Commands protocol.Commands `json:"commands"`
}

// Config sizes the desktop grid and the render pass.
type Config struct {
	IconSize     uint32
	GridSpacing  uint32
	ScreenWidth  uint32
	ScreenHeight uint32

	// CanvasWidth and CanvasHeight default to the cell size.
	CanvasWidth  uint32
	CanvasHeight uint32

	MaxParallel int

	// RescanInterval of zero renders once and waits for cancellation.
	RescanInterval time.Duration
}

// DefaultConfig returns the daemon defaults.
func DefaultConfig() Config {
	return Config{
		IconSize:       64,
		GridSpacing:    20,
		ScreenWidth:    1920,
		ScreenHeight:   1080,
		MaxParallel:    4,
		RescanInterval: 2 * time.Second,
	}
}

func (c Config) cell() (uint32, uint32) {
	side := c.IconSize + c.GridSpacing
	return side, side
}

func (c Config) canvas() protocol.RenderContext {
	w, h := c.cell()
	if c.CanvasWidth > 0 {
		w = c.CanvasWidth
	}
	if c.CanvasHeight > 0 {
		h = c.CanvasHeight
	}
	return protocol.RenderContext{CanvasWidth: w, CanvasHeight: h, DevicePixelRatio: 1}
}

// Report summarizes one render pass.
type Report struct {
	ID       string        `json:"id"`
	Icons    int           `json:"icons"`
	Rendered int           `json:"rendered"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Removed  int           `json:"removed"`
	Duration time.Duration `json:"duration"`
}
