package sandbox

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

const errResponseTooLarge = "response exceeds frame limit"

// Serve runs the request loop: read one frame, handle it, write one frame.
// It returns nil after acknowledging Shutdown or when in is closed between
// frames. A payload that fails to decode is answered with an ErrorResponse
// since its frame boundary is intact; an oversized or truncated frame ends
// the loop with that error. A response too large to frame is replaced by an
// ErrorResponse so the loop keeps serving.
func (r *Runtime) Serve(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	for {
		payload, err := protocol.ReadFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.logger.Debug("Input closed, exiting")
				return nil
			}
			r.logger.Error("Framing error, exiting", zap.Error(err))
			return err
		}

		var resp protocol.Response
		req, err := protocol.DecodeRequest(payload)
		if err != nil {
			r.logger.Warn("Rejected request", zap.Error(err))
			resp = protocol.ErrorResponse{Message: err.Error()}
		} else {
			resp = r.Handle(req)
		}

		err = protocol.WriteResponse(out, resp)
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			r.logger.Warn("Response exceeds frame limit",
				zap.String("kind", string(resp.ResponseKind())),
				zap.String("script", r.scriptPath),
				zap.Error(err))
			resp = protocol.ErrorResponse{Message: errResponseTooLarge}
			err = protocol.WriteResponse(out, resp)
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", resp.ResponseKind(), err)
		}

		if _, ok := resp.(protocol.ShutdownAck); ok {
			r.logger.Debug("Shutdown acknowledged")
			return nil
		}
	}
}
