package protocol

import (
	"fmt"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// codec is std-compatible so key order and escaping match encoding/json.
var codec = sonic.ConfigStd

// EncodeRequest encodes req as a tagged payload.
func EncodeRequest(req Request) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	return encodeTagged(req.RequestKind(), req)
}

// EncodeResponse encodes resp as a tagged payload.
func EncodeResponse(resp Response) ([]byte, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil response")
	}
	return encodeTagged(resp.ResponseKind(), resp)
}

// encodeTagged splices the "type" key in front of body's own fields.
func encodeTagged(kind Kind, body any) ([]byte, error) {
	fields, err := codec.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	if len(fields) < 2 || fields[0] != '{' {
		return nil, fmt.Errorf("encode %s: body is not an object", kind)
	}

	tag, err := codec.Marshal(string(kind))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}

	out := make([]byte, 0, len(fields)+len(tag)+9)
	out = append(out, `{"type":`...)
	out = append(out, tag...)
	if len(fields) > 2 {
		out = append(out, ',')
	}
	return append(out, fields[1:]...), nil
}

// DecodeRequest decodes a request payload.
func DecodeRequest(payload []byte) (Request, error) {
	kind, err := peekKind(payload)
	if err != nil {
		return nil, err
	}

	var req Request
	switch kind {
	case KindHandshake:
		var m Handshake
		err = codec.Unmarshal(payload, &m)
		req = m
	case KindRender:
		var m RenderRequest
		err = codec.Unmarshal(payload, &m)
		req = m
	case KindEvent:
		var m EventRequest
		if err = codec.Unmarshal(payload, &m); err == nil {
			err = m.Event.Validate()
		}
		req = m
	case KindPosition:
		var m PositionRequest
		err = codec.Unmarshal(payload, &m)
		req = m
	case KindShutdown:
		req = Shutdown{}
	default:
		return nil, fmt.Errorf("%w: unknown request type %q", ErrMalformedPayload, kind)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, kind, err)
	}
	return req, nil
}

// DecodeResponse decodes a response payload.
func DecodeResponse(payload []byte) (Response, error) {
	kind, err := peekKind(payload)
	if err != nil {
		return nil, err
	}

	var resp Response
	switch kind {
	case KindHandshakeAck:
		var m HandshakeAck
		err = codec.Unmarshal(payload, &m)
		resp = m
	case KindRender:
		var m RenderResponse
		err = codec.Unmarshal(payload, &m)
		if m.Commands == nil {
			m.Commands = Commands{}
		}
		resp = m
	case KindEvent:
		var m EventResult
		err = codec.Unmarshal(payload, &m)
		resp = m
	case KindPosition:
		var m Position
		err = codec.Unmarshal(payload, &m)
		resp = m
	case KindShutdownAck:
		resp = ShutdownAck{}
	case KindError:
		var m ErrorResponse
		err = codec.Unmarshal(payload, &m)
		resp = m
	default:
		return nil, fmt.Errorf("%w: unknown response type %q", ErrMalformedPayload, kind)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, kind, err)
	}
	return resp, nil
}

func peekKind(payload []byte) (Kind, error) {
	if !utf8.Valid(payload) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedPayload)
	}

	var head struct {
		Type *string `json:"type"`
	}
	if err := codec.Unmarshal(payload, &head); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if head.Type == nil {
		return "", fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	return Kind(*head.Type), nil
}
