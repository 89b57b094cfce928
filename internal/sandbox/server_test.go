package sandbox

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

func requestStream(t *testing.T, reqs ...protocol.Request) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, req := range reqs {
		require.NoError(t, protocol.WriteRequest(&buf, req))
	}
	return &buf
}

func readAll(t *testing.T, r io.Reader) []protocol.Response {
	t.Helper()
	var out []protocol.Response
	for {
		resp, err := protocol.ReadResponse(r)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, resp)
	}
}

func TestServeSession(t *testing.T) {
	script := writeScript(t, "draw.js", `var Icon = { render: function (c) { c.clear("#FFFFFF"); } };`)
	in := requestStream(t,
		protocol.Handshake{Version: protocol.Version},
		renderReq(script),
		protocol.EventRequest{Event: protocol.Selected()},
		protocol.PositionRequest{Input: protocol.PositionInput{ScreenWidth: 1000, CellWidth: 100, CellHeight: 100, IconIndex: 9}},
		protocol.Shutdown{},
		protocol.Handshake{Version: protocol.Version},
	)

	var out bytes.Buffer
	r := New(DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, r.Serve(in, &out))

	assert.Equal(t, []protocol.Response{
		protocol.HandshakeAck{Version: protocol.Version, Success: true},
		protocol.RenderResponse{Commands: protocol.Commands{protocol.Clear{Color: "#FFFFFF"}}},
		protocol.EventResult{Handled: true},
		protocol.Position{X: 20, Y: 120},
		protocol.ShutdownAck{},
	}, readAll(t, &out))
}

func TestServeRecoversFromBadPayload(t *testing.T) {
	var in bytes.Buffer
	require.NoError(t, protocol.WriteFrame(&in, []byte(`{"type":"reboot"}`)))
	require.NoError(t, protocol.WriteFrame(&in, []byte(`{"type":"handshake_ack","version":1,"success":true}`)))
	require.NoError(t, protocol.WriteRequest(&in, protocol.Handshake{Version: protocol.Version + 1}))

	var out bytes.Buffer
	r := New(DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, r.Serve(&in, &out))

	resps := readAll(t, &out)
	require.Len(t, resps, 3)
	assert.IsType(t, protocol.ErrorResponse{}, resps[0])
	assert.IsType(t, protocol.ErrorResponse{}, resps[1])
	assert.Equal(t, protocol.HandshakeAck{Version: protocol.Version, Success: false}, resps[2])
}

func TestServeStopsOnFramingError(t *testing.T) {
	t.Run("truncated", func(t *testing.T) {
		in := requestStream(t, protocol.Handshake{Version: protocol.Version})
		in.Write([]byte{10, 0, 0, 0, '{'})

		var out bytes.Buffer
		err := New(DefaultConfig(), zaptest.NewLogger(t)).Serve(in, &out)
		assert.ErrorIs(t, err, protocol.ErrTruncated)
		assert.Len(t, readAll(t, &out), 1)
	})

	t.Run("oversized", func(t *testing.T) {
		header := make([]byte, 4)
		binary.LittleEndian.PutUint32(header, protocol.MaxFrameSize+1)

		var out bytes.Buffer
		err := New(DefaultConfig(), zaptest.NewLogger(t)).Serve(bytes.NewReader(header), &out)
		assert.ErrorIs(t, err, protocol.ErrFrameTooLarge)
		assert.Zero(t, out.Len())
	})
}

func TestServeCleanEOF(t *testing.T) {
	var out bytes.Buffer
	err := New(DefaultConfig(), zaptest.NewLogger(t)).Serve(bytes.NewReader(nil), &out)
	assert.NoError(t, err)
	assert.Zero(t, out.Len())
}

func TestServeReplacesOversizedResponse(t *testing.T) {
	script := writeScript(t, "flood.js", `var Icon = { render: function (c) {
    var s = new Array(401).join("x");
    for (var i = 0; i < 4000; i++) { c.text(s, 0, 0, 12, "#000000"); }
} };`)
	in := requestStream(t,
		protocol.Handshake{Version: protocol.Version},
		renderReq(script),
		protocol.PositionRequest{Input: protocol.PositionInput{ScreenWidth: 1000, CellWidth: 100, CellHeight: 100, IconIndex: 0}},
		protocol.Shutdown{},
	)

	var out bytes.Buffer
	r := New(DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, r.Serve(in, &out))

	resps := readAll(t, &out)
	require.Len(t, resps, 4)
	assert.Equal(t, protocol.ErrorResponse{Message: errResponseTooLarge}, resps[1])
	assert.Equal(t, protocol.Position{X: 20, Y: 20}, resps[2])
	assert.Equal(t, protocol.ShutdownAck{}, resps[3])
}

func TestServeTruncatesHugeErrors(t *testing.T) {
	script := writeScript(t, "huge.js", `var Icon = { render: function () {
    throw new Error(new Array(2 * 1024 * 1024).join("e"));
} };`)
	in := requestStream(t, protocol.Handshake{Version: protocol.Version}, renderReq(script))

	var out bytes.Buffer
	r := New(DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, r.Serve(in, &out))

	resps := readAll(t, &out)
	require.Len(t, resps, 2)
	errResp, ok := resps[1].(protocol.ErrorResponse)
	require.True(t, ok)
	assert.LessOrEqual(t, len(errResp.Message), maxErrorMessage+len("...(truncated)"))
	assert.Contains(t, errResp.Message, "eeee")
}
