package sandbox

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

// callback names looked up on the Icon object
const (
	cbInit        = "init"
	cbRender      = "render"
	cbOnClick     = "on_click"
	cbOnHover     = "on_hover"
	cbOnDrop      = "on_drop"
	cbGetPosition = "get_position"
)

var callbackNames = []string{cbInit, cbRender, cbOnClick, cbOnHover, cbOnDrop, cbGetPosition}

// scriptWidget binds a goja Icon object to Widget. Each instance owns its VM;
// reloading builds a new one, so nothing a script stored survives.
type scriptWidget struct {
	vm        *goja.Runtime
	icon      *goja.Object
	callbacks map[string]goja.Callable
	config    Config
}

// NewScriptLoader returns a Loader that evaluates JavaScript files defining a
// global Icon object.
func NewScriptLoader(config Config, logger *zap.Logger) Loader {
	return func(path string) (Widget, error) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read script: %w", err)
		}
		src, err := scriptSource(raw)
		if err != nil {
			return nil, err
		}
		return loadScript(path, src, config, logger)
	}
}

func loadScript(name, src string, config Config, logger *zap.Logger) (*scriptWidget, error) {
	program, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	vm := goja.New()
	if config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(config.MaxCallStackSize)
	}

	w := &scriptWidget{
		vm:        vm,
		callbacks: make(map[string]goja.Callable, len(callbackNames)),
		config:    config,
	}

	if err := installGlobals(vm, newConsole(logger.With(zap.String("script", name)), config)); err != nil {
		return nil, err
	}

	if _, err := w.guard("load", func() (goja.Value, error) {
		return vm.RunProgram(program)
	}); err != nil {
		return nil, err
	}

	iconVal := vm.Get("Icon")
	if iconVal == nil || goja.IsUndefined(iconVal) || goja.IsNull(iconVal) {
		return nil, errors.New("script does not define Icon")
	}
	icon, ok := iconVal.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("Icon is %s, not an object", describe(iconVal))
	}
	w.icon = icon

	for _, name := range callbackNames {
		v := icon.Get(name)
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			continue
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			return nil, fmt.Errorf("Icon.%s is not a function", name)
		}
		w.callbacks[name] = fn
	}

	return w, nil
}

// guard runs fn under the callback wall-clock bound and converts Go panics
// into errors. The interrupt flag is always cleared before returning.
func (w *scriptWidget) guard(name string, fn func() (goja.Value, error)) (val goja.Value, err error) {
	done := make(chan struct{})
	var wg sync.WaitGroup

	if w.config.CallbackTimeout > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timer := time.NewTimer(w.config.CallbackTimeout)
			defer timer.Stop()

			select {
			case <-timer.C:
				w.vm.Interrupt(ErrCallbackTimeout)
			case <-done:
			}
		}()
	}

	defer func() {
		close(done)
		wg.Wait()
		w.vm.ClearInterrupt()

		if p := recover(); p != nil {
			val, err = nil, fmt.Errorf("%s: panic: %v", name, p)
		}
	}()

	val, err = fn()
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("%s: %w after %s", name, ErrCallbackTimeout, w.config.CallbackTimeout)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return val, nil
}

// call invokes a callback with this bound to the Icon object.
func (w *scriptWidget) call(name string, args ...goja.Value) (goja.Value, bool, error) {
	fn, ok := w.callbacks[name]
	if !ok {
		return nil, false, nil
	}
	val, err := w.guard(name, func() (goja.Value, error) {
		return fn(w.icon, args...)
	})
	return val, true, err
}

// callWithState exposes state as a JS object for the duration of one
// callback and copies selected/hovered back afterwards.
func (w *scriptWidget) callWithState(name string, state *State, args ...goja.Value) (goja.Value, bool, error) {
	if _, ok := w.callbacks[name]; !ok {
		return nil, false, nil
	}

	obj := w.stateObject(state)
	val, called, err := w.call(name, append([]goja.Value{obj}, args...)...)
	if called {
		state.Selected = obj.Get("selected").ToBoolean()
		state.Hovered = obj.Get("hovered").ToBoolean()
	}
	return val, called, err
}

func (w *scriptWidget) stateObject(state *State) *goja.Object {
	obj := w.vm.NewObject()
	obj.Set("path", state.Path)
	obj.Set("name", state.Name)
	obj.Set("width", state.Width)
	obj.Set("height", state.Height)
	obj.Set("selected", state.Selected)
	obj.Set("hovered", state.Hovered)
	obj.Set("mime_type", state.MimeType)
	obj.Set("is_directory", state.IsDirectory)
	if state.Size != nil {
		obj.Set("size", *state.Size)
	} else {
		obj.Set("size", goja.Null())
	}
	obj.Set("icon_type", state.IconType)
	return obj
}

func (w *scriptWidget) Init(state *State) error {
	_, _, err := w.callWithState(cbInit, state)
	return err
}

func (w *scriptWidget) Render(canvas *Canvas, state *State) error {
	if _, ok := w.callbacks[cbRender]; !ok {
		return nil
	}
	obj := w.stateObject(state)
	_, _, err := w.call(cbRender, w.canvasObject(canvas), obj)
	state.Selected = obj.Get("selected").ToBoolean()
	state.Hovered = obj.Get("hovered").ToBoolean()
	if err == nil && canvas.Overflowed() {
		err = fmt.Errorf("render: %w (%d)", ErrCanvasFull, canvas.limit)
	}
	return err
}

func (w *scriptWidget) OnClick(state *State, button uint32, x, y float64) (Outcome, error) {
	click := w.vm.NewObject()
	click.Set("button", button)
	click.Set("x", x)
	click.Set("y", y)

	val, called, err := w.callWithState(cbOnClick, state, click)
	return w.outcome(val, called, err, state)
}

func (w *scriptWidget) OnHover(state *State, entered bool) (Outcome, error) {
	val, called, err := w.callWithState(cbOnHover, state, w.vm.ToValue(entered))
	return w.outcome(val, called, err, state)
}

func (w *scriptWidget) OnDrop(state *State, paths []string) (Outcome, error) {
	list := make([]interface{}, len(paths))
	for i, p := range paths {
		list[i] = p
	}
	val, called, err := w.callWithState(cbOnDrop, state, w.vm.NewArray(list...))
	return w.outcome(val, called, err, state)
}

func (w *scriptWidget) Position(input protocol.PositionInput) (protocol.Position, error) {
	arg := w.vm.NewObject()
	arg.Set("screen_width", input.ScreenWidth)
	arg.Set("screen_height", input.ScreenHeight)
	arg.Set("icon_count", input.IconCount)
	arg.Set("icon_index", input.IconIndex)
	arg.Set("cell_width", input.CellWidth)
	arg.Set("cell_height", input.CellHeight)

	val, called, err := w.call(cbGetPosition, arg)
	if !called {
		return protocol.Position{}, ErrNoCallback
	}
	if err != nil {
		return protocol.Position{}, err
	}

	obj, ok := val.(*goja.Object)
	if !ok {
		return protocol.Position{}, fmt.Errorf("get_position returned %s, want {x, y}", describe(val))
	}
	x, okX := number(obj.Get("x"))
	y, okY := number(obj.Get("y"))
	if !okX || !okY {
		return protocol.Position{}, errors.New("get_position result needs numeric x and y")
	}
	return protocol.Position{X: protocol.Number(x), Y: protocol.Number(y)}, nil
}

// outcome maps a callback's return value onto an event result.
//
//	undefined, null, true  handled, no action
//	false                  not handled
//	"name"                 handled, action name with the icon path as payload
//	{action, payload?}     handled, that action
func (w *scriptWidget) outcome(val goja.Value, called bool, err error, state *State) (Outcome, error) {
	if err != nil {
		return Outcome{}, err
	}
	if !called {
		return Outcome{}, nil
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return Outcome{Handled: true}, nil
	}

	switch v := val.Export().(type) {
	case bool:
		return Outcome{Handled: v}, nil
	case string:
		return Outcome{Handled: true, Action: protocol.NewAction(v, state.Path)}, nil
	}

	obj, ok := val.(*goja.Object)
	if !ok || obj.ClassName() == "Array" || obj.ClassName() == "Function" {
		return Outcome{}, fmt.Errorf("unsupported event result %s", describe(val))
	}

	name := obj.Get("action")
	if name == nil || goja.IsUndefined(name) || goja.IsNull(name) {
		return Outcome{}, errors.New("event result object has no action")
	}
	action := &protocol.Action{Action: name.String()}

	if payload := obj.Get("payload"); payload != nil && !goja.IsUndefined(payload) && !goja.IsNull(payload) {
		p := payload.String()
		action.Payload = &p
	}
	return Outcome{Handled: true, Action: action}, nil
}

func number(v goja.Value) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch n := v.Export().(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func describe(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if obj, ok := v.(*goja.Object); ok {
		return obj.ClassName()
	}
	return fmt.Sprintf("%T", v.Export())
}
