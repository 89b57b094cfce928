package host

import (
	"errors"

	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

var (
	// ErrProtocolMismatch is returned when the sandbox rejects the handshake.
	ErrProtocolMismatch = errors.New("protocol version mismatch")
	// ErrTimeout is returned when a response does not arrive in time.
	ErrTimeout = errors.New("sandbox response timed out")
	// ErrSessionClosed is returned for calls on a session whose process is gone.
	ErrSessionClosed = errors.New("sandbox session closed")
	// ErrUnexpectedResponse is returned when a response does not answer the request.
	ErrUnexpectedResponse = errors.New("unexpected response")
	// ErrSessionFault is returned when Position is answered with Error.
	ErrSessionFault = errors.New("sandbox faulted on position")
	// ErrSpawn is returned when the sandbox process cannot be started.
	ErrSpawn = errors.New("sandbox spawn failed")
)

// RenderError carries the message of a render the script failed.
type RenderError struct {
	Message string
}

func (e *RenderError) Error() string {
	return "render failed: " + e.Message
}

// IsSessionFatal reports whether err leaves the session unusable. Script
// errors such as *RenderError are not fatal.
func IsSessionFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrSessionClosed),
		errors.Is(err, ErrUnexpectedResponse),
		errors.Is(err, ErrSessionFault),
		errors.Is(err, ErrProtocolMismatch),
		errors.Is(err, ErrSpawn),
		protocol.IsFraming(err):
		return true
	}
	return false
}

// failureReason labels a fatal error for metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case protocol.IsFraming(err):
		return "framing"
	case errors.Is(err, ErrProtocolMismatch):
		return "handshake"
	case errors.Is(err, ErrSessionFault):
		return "fault"
	case errors.Is(err, ErrUnexpectedResponse):
		return "unexpected"
	case errors.Is(err, ErrSpawn):
		return "spawn"
	default:
		return "closed"
	}
}
