package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

// phase is the lifecycle of the loaded script.
type phase int

const (
	phaseUnloaded phase = iota
	phaseLoaded
	phaseInitialized
)

func (p phase) String() string {
	switch p {
	case phaseLoaded:
		return "loaded"
	case phaseInitialized:
		return "initialized"
	default:
		return "unloaded"
	}
}

// Runtime serves one widget at a time. It is not safe for concurrent use:
// the protocol allows a single outstanding request per session.
type Runtime struct {
	config Config
	logger *zap.Logger
	load   Loader

	phase      phase
	scriptPath string
	widget     Widget
	state      State
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithLoader replaces the JavaScript loader.
func WithLoader(load Loader) Option {
	return func(r *Runtime) {
		r.load = load
	}
}

// New creates a runtime with no script loaded.
func New(config Config, logger *zap.Logger, opts ...Option) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runtime{
		config: config,
		logger: logger,
	}
	r.load = NewScriptLoader(config, logger)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ScriptPath returns the loaded script path, or "" when unloaded.
func (r *Runtime) ScriptPath() string {
	if r.phase == phaseUnloaded {
		return ""
	}
	return r.scriptPath
}

// State returns a copy of the current icon state.
func (r *Runtime) State() State {
	return r.state
}

// Load makes path the active script, running its init callback. Loading the
// already initialized path is a no-op. A different path discards the previous
// widget and all state. On failure the runtime is left unloaded.
func (r *Runtime) Load(path string) error {
	if r.phase == phaseInitialized && r.scriptPath == path {
		return nil
	}

	r.unload()
	r.state = State{}
	return r.activate(path)
}

func (r *Runtime) activate(path string) error {
	widget, err := r.load(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	r.widget = widget
	r.scriptPath = path
	r.phase = phaseLoaded

	if err := r.invoke("init", func() error { return widget.Init(&r.state) }); err != nil {
		r.unload()
		return fmt.Errorf("init %s: %w", path, err)
	}
	r.phase = phaseInitialized

	r.logger.Debug("Script initialized", zap.String("script", path))
	return nil
}

func (r *Runtime) unload() {
	r.widget = nil
	r.scriptPath = ""
	r.phase = phaseUnloaded
}

// invoke runs a widget call, turning panics from Go widgets into errors.
func (r *Runtime) invoke(name string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s: panic: %v", name, p)
		}
	}()
	return fn()
}

// Handle answers one request. Script failures become ErrorResponse values;
// Handle itself never fails.
func (r *Runtime) Handle(req protocol.Request) protocol.Response {
	switch m := req.(type) {
	case protocol.Handshake:
		return r.handshake(m)
	case protocol.RenderRequest:
		return r.render(m)
	case protocol.EventRequest:
		return r.event(m.Event)
	case protocol.PositionRequest:
		return r.position(m.Input)
	case protocol.Shutdown:
		r.unload()
		return protocol.ShutdownAck{}
	default:
		return protocol.ErrorResponse{Message: fmt.Sprintf("unsupported request %T", req)}
	}
}

func (r *Runtime) handshake(m protocol.Handshake) protocol.Response {
	ok := m.Version == protocol.Version
	if !ok {
		r.logger.Warn("Protocol version mismatch",
			zap.Uint32("host", m.Version),
			zap.Uint32("runtime", protocol.Version))
	}
	return protocol.HandshakeAck{Version: protocol.Version, Success: ok}
}

func (r *Runtime) render(m protocol.RenderRequest) protocol.Response {
	if m.ScriptPath == "" {
		return r.fail("render", errors.New("script_path is empty"))
	}

	if r.phase != phaseInitialized || r.scriptPath != m.ScriptPath {
		r.unload()
		r.state.Push(m.Metadata)
		if err := r.activate(m.ScriptPath); err != nil {
			return r.fail("render", err)
		}
	}
	r.state.Push(m.Metadata)

	canvas := NewCanvas(m.Context, r.config.MaxCommands)
	if err := r.invoke("render", func() error { return r.widget.Render(canvas, &r.state) }); err != nil {
		return r.fail("render", err)
	}
	return protocol.RenderResponse{Commands: canvas.Commands()}
}

func (r *Runtime) event(ev protocol.Event) protocol.Response {
	if r.phase != phaseInitialized {
		return r.fail("event", ErrNotLoaded)
	}

	var (
		out Outcome
		err error
	)
	switch ev.Kind {
	case protocol.EventSelected:
		r.state.Selected = true
		return protocol.EventResult{Handled: true}
	case protocol.EventDeselected:
		r.state.Selected = false
		return protocol.EventResult{Handled: true}
	case protocol.EventClick:
		err = r.invoke("on_click", func() (err error) {
			out, err = r.widget.OnClick(&r.state, ev.Button, ev.X.Float(), ev.Y.Float())
			return err
		})
	case protocol.EventHoverEnter, protocol.EventHoverExit:
		entered := ev.Kind == protocol.EventHoverEnter
		err = r.invoke("on_hover", func() (err error) {
			out, err = r.widget.OnHover(&r.state, entered)
			return err
		})
	case protocol.EventDrop:
		err = r.invoke("on_drop", func() (err error) {
			out, err = r.widget.OnDrop(&r.state, ev.Paths)
			return err
		})
	default:
		err = fmt.Errorf("unknown event kind %q", ev.Kind)
	}

	if err != nil {
		return r.fail("event", err)
	}
	return protocol.EventResult{Handled: out.Handled, Action: out.Action}
}

func (r *Runtime) position(in protocol.PositionInput) protocol.Response {
	if r.phase != phaseInitialized {
		return GridPosition(in)
	}

	var pos protocol.Position
	err := r.invoke("get_position", func() (err error) {
		pos, err = r.widget.Position(in)
		return err
	})
	switch {
	case err == nil:
		return pos
	case errors.Is(err, ErrNoCallback):
	default:
		r.logger.Warn("Position callback failed, using grid",
			zap.String("script", r.scriptPath),
			zap.Error(err))
	}
	return GridPosition(in)
}

func (r *Runtime) fail(op string, err error) protocol.Response {
	msg := truncateMessage(err.Error())
	r.logger.Warn("Script error",
		zap.String("op", op),
		zap.String("script", r.scriptPath),
		zap.String("phase", r.phase.String()),
		zap.String("error", msg))
	return protocol.ErrorResponse{Message: msg}
}

// maxErrorMessage bounds ErrorResponse text; scripts control thrown values.
const maxErrorMessage = 4 << 10

func truncateMessage(msg string) string {
	if len(msg) <= maxErrorMessage {
		return msg
	}
	return strings.ToValidUTF8(msg[:maxErrorMessage], "") + "...(truncated)"
}
