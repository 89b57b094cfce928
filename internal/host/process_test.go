package host

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskglyph/internal/protocol"
	"github.com/GriffinCanCode/deskglyph/internal/sandbox"
)

var errKilled = errors.New("killed")

// pipeProcess runs a serve function in-process behind the Process
// interface, wired with io.Pipe in place of stdio.
type pipeProcess struct {
	pid     int
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter
	done    chan struct{}
	killed  atomic.Bool
}

type serveFunc func(in io.Reader, out io.Writer, stderr io.Writer) error

func startProcess(t *testing.T, pid int, serve serveFunc) *pipeProcess {
	t.Helper()
	p := &pipeProcess{pid: pid, done: make(chan struct{})}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()

	go func() {
		defer close(p.done)
		_ = serve(p.stdinR, p.stdoutW, p.stderrW)
		_ = p.stdinR.CloseWithError(io.ErrClosedPipe)
		_ = p.stdoutW.Close()
		_ = p.stderrW.Close()
	}()

	t.Cleanup(func() {
		_ = p.Kill()
		<-p.done
	})
	return p
}

func (p *pipeProcess) Stdin() io.WriteCloser { return p.stdinW }
func (p *pipeProcess) Stdout() io.Reader     { return p.stdoutR }
func (p *pipeProcess) Stderr() io.Reader     { return p.stderrR }
func (p *pipeProcess) Pid() int              { return p.pid }

func (p *pipeProcess) Kill() error {
	p.killed.Store(true)
	_ = p.stdinR.CloseWithError(errKilled)
	_ = p.stdoutW.CloseWithError(errKilled)
	_ = p.stderrW.CloseWithError(errKilled)
	return nil
}

func (p *pipeProcess) Wait() error {
	<-p.done
	return nil
}

// sandboxServe serves the real sandbox runtime.
func sandboxServe(in io.Reader, out io.Writer, _ io.Writer) error {
	return sandbox.New(sandbox.DefaultConfig(), zap.NewNop()).Serve(in, out)
}

// scriptedServe answers each request with reply. A nil response leaves the
// request unanswered.
func scriptedServe(reply func(protocol.Request) protocol.Response) serveFunc {
	return func(in io.Reader, out io.Writer, _ io.Writer) error {
		reader := bufio.NewReader(in)
		for {
			req, err := protocol.ReadRequest(reader)
			if err != nil {
				return err
			}
			resp := reply(req)
			if resp == nil {
				continue
			}
			if err := protocol.WriteResponse(out, resp); err != nil {
				return err
			}
		}
	}
}

// ackHandshake accepts the handshake and defers everything else to next.
func ackHandshake(next func(protocol.Request) protocol.Response) func(protocol.Request) protocol.Response {
	return func(req protocol.Request) protocol.Response {
		if _, ok := req.(protocol.Handshake); ok {
			return protocol.HandshakeAck{Version: protocol.Version, Success: true}
		}
		return next(req)
	}
}

func silent(protocol.Request) protocol.Response { return nil }

// countingSpawner starts a new process per Spawn and remembers them.
type countingSpawner struct {
	t       *testing.T
	serve   serveFunc
	spawned atomic.Int32

	mu        sync.Mutex
	processes []*pipeProcess
}

func newCountingSpawner(t *testing.T, serve serveFunc) *countingSpawner {
	return &countingSpawner{t: t, serve: serve}
}

func (s *countingSpawner) Spawn(context.Context) (Process, error) {
	n := s.spawned.Add(1)
	p := startProcess(s.t, 1000+int(n), s.serve)

	s.mu.Lock()
	s.processes = append(s.processes, p)
	s.mu.Unlock()
	return p, nil
}

func (s *countingSpawner) last(t *testing.T) *pipeProcess {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.processes, "no process spawned")
	return s.processes[len(s.processes)-1]
}

func writeScript(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ResponseTimeout = 2 * cfg.ResponseTimeout
	return cfg
}
