package host

import (
	"html"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

var colorPattern = regexp.MustCompile(`^#(?:[0-9A-Fa-f]{6}|[0-9A-Fa-f]{8})$`)

// ValidColor reports whether c is #RRGGBB or #RRGGBBAA.
func ValidColor(c string) bool {
	return colorPattern.MatchString(c)
}

// Sanitizer filters draw commands before they reach the renderer. Commands
// with malformed colors are dropped; text is reduced to plain characters.
type Sanitizer struct {
	policy  *bluemonday.Policy
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewSanitizer creates a sanitizer using bluemonday's strict policy.
func NewSanitizer(logger *zap.Logger, metrics *monitoring.Metrics) *Sanitizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sanitizer{
		policy:  bluemonday.StrictPolicy(),
		logger:  logger,
		metrics: metrics,
	}
}

// Commands returns the accepted subset of cmds, preserving order.
func (s *Sanitizer) Commands(iconPath string, cmds protocol.Commands) protocol.Commands {
	out := make(protocol.Commands, 0, len(cmds))
	dropped := 0

	for _, cmd := range cmds {
		color, hasColor := commandColor(cmd)
		if hasColor && !ValidColor(color) {
			dropped++
			s.metrics.IncCommandsDropped("color")
			continue
		}

		if text, ok := cmd.(protocol.Text); ok {
			text.Text = s.PlainText(text.Text)
			cmd = text
		}
		out = append(out, cmd)
	}

	if dropped > 0 {
		s.logger.Warn("Dropped draw commands with invalid colors",
			zap.String("icon", iconPath),
			zap.Int("dropped", dropped),
			zap.Int("kept", len(out)))
	}
	return out
}

// PlainText strips markup from a script-supplied string.
func (s *Sanitizer) PlainText(text string) string {
	return html.UnescapeString(s.policy.Sanitize(text))
}

func commandColor(cmd protocol.DrawCommand) (string, bool) {
	switch c := cmd.(type) {
	case protocol.FillRect:
		return c.Color, true
	case protocol.StrokeRect:
		return c.Color, true
	case protocol.FillCircle:
		return c.Color, true
	case protocol.StrokeCircle:
		return c.Color, true
	case protocol.Line:
		return c.Color, true
	case protocol.Text:
		return c.Color, true
	case protocol.Clear:
		return c.Color, true
	default:
		return "", false
	}
}
