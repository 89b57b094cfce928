/*
Package protocol defines the wire contract between the icon host and a sandboxed
widget runtime.

# Framing

Every message travels as one frame: a 4-byte unsigned length prefix in
little-endian byte order followed by that many bytes of UTF-8 JSON. Frames
larger than MaxFrameSize are rejected before any payload byte is read, so the
untrusted side can never force an unbounded allocation on the host.

# Messages

The payload is a JSON object tagged by its "type" field:

	requests:  handshake | render | event | position | shutdown
	responses: handshake_ack | render | event | position | shutdown_ack | error

Decoding is direction-aware. ReadRequest rejects response-only tags and
ReadResponse rejects request-only tags; an unknown or missing tag is always
ErrMalformedPayload, never a partial match.

# Numbers

Geometry is carried as Number. NaN encodes as null and the infinities as the
out-of-range literals 1e999 and -1e999. Decoding accepts all three, so a
hostile peer can make a value lossy but cannot make the decoder fail.

# Errors

Framing failures (ErrFrameTooLarge, ErrTruncated, ErrMalformedPayload) leave
the stream desynchronized and are fatal to the session that produced them.
*/
package protocol
