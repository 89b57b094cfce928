package protocol

import "errors"

var (
	// ErrFrameTooLarge is returned when a length prefix exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrTruncated is returned when the stream ends inside a frame.
	ErrTruncated = errors.New("truncated frame")
	// ErrMalformedPayload is returned when a frame is not a recognized message.
	ErrMalformedPayload = errors.New("malformed payload")
)

// IsFraming reports whether err desynchronizes the stream.
func IsFraming(err error) bool {
	return errors.Is(err, ErrFrameTooLarge) ||
		errors.Is(err, ErrTruncated) ||
		errors.Is(err, ErrMalformedPayload)
}
