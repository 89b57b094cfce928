package daemon

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskglyph/internal/desktop"
	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

// LogRenderer logs frames instead of drawing them.
type LogRenderer struct {
	Logger *zap.Logger
}

func (r LogRenderer) Draw(_ context.Context, frame Frame) error {
	r.Logger.Debug("Frame",
		zap.String("icon", frame.Icon.Path),
		zap.String("script", frame.Script),
		zap.Float64("x", frame.Position.X.Float()),
		zap.Float64("y", frame.Position.Y.Float()),
		zap.Int("commands", len(frame.Commands)))
	return nil
}

func (r LogRenderer) Remove(path string) {
	r.Logger.Debug("Icon removed", zap.String("icon", path))
}

// LogActionSink logs actions instead of performing them.
type LogActionSink struct {
	Logger *zap.Logger
}

func (s LogActionSink) Perform(_ context.Context, icon desktop.Icon, action protocol.Action) error {
	fields := []zap.Field{
		zap.String("icon", icon.Path),
		zap.String("action", action.Action),
	}
	if action.Payload != nil {
		fields = append(fields, zap.String("payload", *action.Payload))
	}
	s.Logger.Info("Widget action", fields...)
	return nil
}
