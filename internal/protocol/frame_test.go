package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func framed(t *testing.T, resp Response) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, resp))
	return buf.Bytes()
}

func TestFrameHeaderIsLittleEndianLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))

	raw := buf.Bytes()
	assert.Equal(t, []byte{5, 0, 0, 0}, raw[:4])
	assert.Equal(t, "hello", string(raw[4:]))
}

func TestFrameSplitAtEveryBoundary(t *testing.T) {
	want := RenderResponse{Commands: Commands{
		Clear{Color: "#112233"},
		Text{Text: "héllo wörld", X: 1, Y: 2, Size: 10, Color: "#FFFFFFFF", Align: "left"},
	}}
	raw := framed(t, want)

	for split := 0; split <= len(raw); split++ {
		r := io.MultiReader(bytes.NewReader(raw[:split]), bytes.NewReader(raw[split:]))
		got, err := ReadResponse(r)
		require.NoError(t, err, "split at %d", split)
		assert.Equal(t, want, got, "split at %d", split)
	}
}

func TestFrameOneByteAtATime(t *testing.T) {
	want := EventResult{Handled: true, Action: NewAction("open", "/tmp/x")}
	raw := framed(t, want)

	got, err := ReadResponse(iotest.OneByteReader(bytes.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFrameIncrementalPipe(t *testing.T) {
	want := Position{X: 20, Y: 116}
	raw := framed(t, want)

	pr, pw := io.Pipe()
	go func() {
		for _, b := range raw {
			pw.Write([]byte{b})
		}
		pw.Close()
	}()

	got, err := ReadResponse(pr)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = ReadResponse(pr)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameBackToBack(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, Handshake{Version: Version}))
	require.NoError(t, WriteRequest(&buf, Shutdown{}))

	first, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, Handshake{Version: Version}, first)

	second, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, Shutdown{}, second)
}

// guardReader serves a header and fails the test if anything past it is read.
type guardReader struct {
	t      *testing.T
	header []byte
}

func (g *guardReader) Read(p []byte) (int, error) {
	if len(g.header) == 0 {
		g.t.Fatal("reader consumed past the length prefix")
		return 0, errors.New("unreachable")
	}
	n := copy(p, g.header)
	g.header = g.header[n:]
	return n, nil
}

func TestFrameTooLarge(t *testing.T) {
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, MaxFrameSize+1)

	_, err := ReadFrame(&guardReader{t: t, header: header})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	binary.LittleEndian.PutUint32(header, 0xFFFFFFFF)
	_, err = ReadFrame(&guardReader{t: t, header: header})
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFrameAtLimitIsAccepted(t *testing.T) {
	payload := bytes.Repeat([]byte{'a'}, MaxFrameSize)
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Len(t, got, MaxFrameSize)
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, buf.Len())
}

func TestFrameTruncated(t *testing.T) {
	raw := framed(t, ErrorResponse{Message: "boom"})

	tests := []struct {
		name string
		data []byte
	}{
		{name: "partial header", data: raw[:2]},
		{name: "header only", data: raw[:4]},
		{name: "partial payload", data: raw[:len(raw)-1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadResponse(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrTruncated)
		})
	}
}

func TestFrameCleanEOF(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, IsFraming(err))
}

func TestFrameEmptyPayloadIsMalformed(t *testing.T) {
	_, err := ReadResponse(bytes.NewReader([]byte{0, 0, 0, 0}))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
