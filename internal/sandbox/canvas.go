package sandbox

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

// Canvas accumulates draw commands for a single render. It is created per
// Render request and never reused.
type Canvas struct {
	width    uint32
	height   uint32
	limit    int
	overflow bool
	commands protocol.Commands
}

// NewCanvas creates a canvas sized to ctx accepting at most limit commands.
// A non-positive limit means unbounded.
func NewCanvas(ctx protocol.RenderContext, limit int) *Canvas {
	return &Canvas{
		width:    ctx.CanvasWidth,
		height:   ctx.CanvasHeight,
		limit:    limit,
		commands: protocol.Commands{},
	}
}

func (c *Canvas) Width() uint32  { return c.width }
func (c *Canvas) Height() uint32 { return c.height }

// Add appends cmd.
func (c *Canvas) Add(cmd protocol.DrawCommand) error {
	if c.limit > 0 && len(c.commands) >= c.limit {
		c.overflow = true
		return fmt.Errorf("%w (%d)", ErrCanvasFull, c.limit)
	}
	c.commands = append(c.commands, cmd)
	return nil
}

// Commands returns the accumulated commands in emission order.
func (c *Canvas) Commands() protocol.Commands {
	return c.commands
}

// Overflowed reports whether any Add was rejected, even if the script
// caught the resulting exception.
func (c *Canvas) Overflowed() bool {
	return c.overflow
}

// Len returns the number of accumulated commands.
func (c *Canvas) Len() int {
	return len(c.commands)
}

// canvasObject exposes canvas to a render callback. Arguments are coerced
// the JavaScript way; missing numbers become NaN.
func (w *scriptWidget) canvasObject(c *Canvas) *goja.Object {
	vm := w.vm
	obj := vm.NewObject()

	num := func(call goja.FunctionCall, i int) protocol.Number {
		return protocol.Number(call.Argument(i).ToFloat())
	}
	str := func(call goja.FunctionCall, i int) string {
		return call.Argument(i).String()
	}
	add := func(cmd protocol.DrawCommand) goja.Value {
		if err := c.Add(cmd); err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	}

	obj.Set("fill_rect", func(call goja.FunctionCall) goja.Value {
		return add(protocol.FillRect{
			X: num(call, 0), Y: num(call, 1), W: num(call, 2), H: num(call, 3),
			Color: str(call, 4),
		})
	})
	obj.Set("stroke_rect", func(call goja.FunctionCall) goja.Value {
		return add(protocol.StrokeRect{
			X: num(call, 0), Y: num(call, 1), W: num(call, 2), H: num(call, 3),
			Color: str(call, 4), Width: num(call, 5),
		})
	})
	obj.Set("fill_circle", func(call goja.FunctionCall) goja.Value {
		return add(protocol.FillCircle{
			CX: num(call, 0), CY: num(call, 1), R: num(call, 2),
			Color: str(call, 3),
		})
	})
	obj.Set("stroke_circle", func(call goja.FunctionCall) goja.Value {
		return add(protocol.StrokeCircle{
			CX: num(call, 0), CY: num(call, 1), R: num(call, 2),
			Color: str(call, 3), Width: num(call, 4),
		})
	})
	obj.Set("line", func(call goja.FunctionCall) goja.Value {
		return add(protocol.Line{
			X1: num(call, 0), Y1: num(call, 1), X2: num(call, 2), Y2: num(call, 3),
			Color: str(call, 4), Width: num(call, 5),
		})
	})
	obj.Set("text", func(call goja.FunctionCall) goja.Value {
		align := "left"
		if a := call.Argument(5); !goja.IsUndefined(a) && !goja.IsNull(a) {
			align = a.String()
		}
		return add(protocol.Text{
			Text: str(call, 0), X: num(call, 1), Y: num(call, 2), Size: num(call, 3),
			Color: str(call, 4), Align: align,
		})
	})
	obj.Set("image", func(call goja.FunctionCall) goja.Value {
		return add(protocol.Image{
			Path: str(call, 0), X: num(call, 1), Y: num(call, 2), W: num(call, 3), H: num(call, 4),
		})
	})
	obj.Set("clear", func(call goja.FunctionCall) goja.Value {
		return add(protocol.Clear{Color: str(call, 0)})
	})
	obj.Set("width", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(c.Width())
	})
	obj.Set("height", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(c.Height())
	})

	return obj
}
