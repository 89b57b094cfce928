package sandbox

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

var (
	// ErrNotLoaded is returned for requests that need a script when none is loaded.
	ErrNotLoaded = errors.New("no script loaded")
	// ErrEncoding is returned for a script file that is not UTF-8.
	ErrEncoding = errors.New("script is not UTF-8")
	// ErrCallbackTimeout is returned when a script invocation exceeds its wall-clock bound.
	ErrCallbackTimeout = errors.New("script callback timed out")
	// ErrCanvasFull is returned when a render emits more than Config.MaxCommands.
	ErrCanvasFull = errors.New("canvas command limit reached")
	// ErrNoCallback is returned by Widget.Position when the widget has no placement logic.
	ErrNoCallback = errors.New("callback not defined")
)

// Config defines sandbox configuration
type Config struct {
	CallbackTimeout  time.Duration // Wall-clock bound for load, init and every callback
	MaxCommands      int           // Draw commands accepted per render
	MaxCallStackSize int           // goja call stack depth
	ConsoleRate      float64       // Console lines per second forwarded to the log
	ConsoleBurst     int           // Console burst allowance
}

// DefaultConfig returns the runtime defaults.
func DefaultConfig() Config {
	return Config{
		CallbackTimeout:  200 * time.Millisecond,
		MaxCommands:      4096,
		MaxCallStackSize: 1024,
		ConsoleRate:      20,
		ConsoleBurst:     50,
	}
}

// State is the per-session icon state. Every field is replaced on each
// metadata push; widgets may only change Selected and Hovered.
type State struct {
	Path        string
	Name        string
	Width       uint32
	Height      uint32
	Selected    bool
	Hovered     bool
	MimeType    string
	IsDirectory bool
	Size        *uint64
	IconType    string
}

// Push overwrites the state with host metadata.
func (s *State) Push(meta protocol.IconMetadata) {
	*s = State{
		Path:        meta.Path,
		Name:        meta.Name,
		Width:       meta.Width,
		Height:      meta.Height,
		Selected:    meta.Selected,
		Hovered:     meta.Hovered,
		MimeType:    meta.MimeType,
		IsDirectory: meta.IsDirectory,
		Size:        meta.Size,
		IconType:    meta.IconType,
	}
}

// Outcome is a widget's answer to an input event.
type Outcome struct {
	Handled bool
	Action  *protocol.Action
}

// Widget is the behavior of one loaded script. Every callback is optional:
// an implementation without one returns the zero Outcome (events), nil
// (init and render) or ErrNoCallback (position). Embed NopWidget to get
// those defaults.
type Widget interface {
	Init(state *State) error
	Render(canvas *Canvas, state *State) error
	OnClick(state *State, button uint32, x, y float64) (Outcome, error)
	OnHover(state *State, entered bool) (Outcome, error)
	OnDrop(state *State, paths []string) (Outcome, error)
	Position(input protocol.PositionInput) (protocol.Position, error)
}

// Loader turns a script path into a Widget.
type Loader func(path string) (Widget, error)

// NopWidget implements every Widget callback as absent.
type NopWidget struct{}

func (NopWidget) Init(*State) error { return nil }

func (NopWidget) Render(*Canvas, *State) error { return nil }

func (NopWidget) OnClick(*State, uint32, float64, float64) (Outcome, error) {
	return Outcome{}, nil
}

func (NopWidget) OnHover(*State, bool) (Outcome, error) { return Outcome{}, nil }

func (NopWidget) OnDrop(*State, []string) (Outcome, error) { return Outcome{}, nil }

func (NopWidget) Position(protocol.PositionInput) (protocol.Position, error) {
	return protocol.Position{}, ErrNoCallback
}
