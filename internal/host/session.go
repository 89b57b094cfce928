package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/deskglyph/internal/protocol"
	"github.com/GriffinCanCode/deskglyph/internal/shared/id"
)

// Config bounds every exchange with a sandbox.
type Config struct {
	ResponseTimeout time.Duration
	ShutdownWait    time.Duration
	// BreakerFailures consecutive fatal failures refuse an icon path for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// DefaultConfig returns the host defaults.
func DefaultConfig() Config {
	return Config{
		ResponseTimeout: time.Second,
		ShutdownWait:    100 * time.Millisecond,
		BreakerFailures: 3,
		BreakerCooldown: 30 * time.Second,
	}
}

type result struct {
	resp protocol.Response
	err  error
}

// Session is the host end of one sandbox process. Calls are serialized: at
// most one request is in flight. Any fatal error kills the process and
// every later call returns ErrSessionClosed.
type Session struct {
	id      id.SessionID
	key     string
	proc    Process
	config  Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	started time.Time

	mu        sync.Mutex
	responses chan result
	inFlight  atomic.Bool
	stop      chan struct{}
	closed    atomic.Bool
	closing   atomic.Bool
	killOnce  sync.Once
	waited    chan struct{}
	lastErr   atomic.Pointer[error]
	requests  atomic.Uint64
}

// NewSession wraps a started process and begins reading its output. key
// names the session in logs; it is normally the icon path.
func NewSession(key string, proc Process, config Config, logger *zap.Logger, metrics *monitoring.Metrics) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	sid := id.NewSessionID()
	s := &Session{
		id:        sid,
		key:       key,
		proc:      proc,
		config:    config,
		logger:    logger.With(zap.String("session", sid.String()), zap.String("icon", key)),
		metrics:   metrics,
		started:   time.Now(),
		responses: make(chan result, 1),
		stop:      make(chan struct{}),
		waited:    make(chan struct{}),
	}
	metrics.SessionStarted()

	// Wait closes the pipes, so it runs only after both readers are done.
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		s.readLoop()
	}()
	if stderr := proc.Stderr(); stderr != nil {
		readers.Add(1)
		go func() {
			defer readers.Done()
			s.forwardStderr(stderr)
		}()
	}
	go func() {
		readers.Wait()
		_ = proc.Wait()
		close(s.waited)
	}()

	return s
}

func (s *Session) ID() id.SessionID { return s.id }
func (s *Session) Key() string      { return s.key }

// Alive reports whether the session still accepts requests.
func (s *Session) Alive() bool { return !s.closed.Load() }

// readLoop decodes responses until the stream ends or desynchronizes. A
// sandbox that dies between requests closes the session right away, and so
// does one that sends a frame nobody asked for.
func (s *Session) readLoop() {
	reader := bufio.NewReader(s.proc.Stdout())
	for {
		resp, err := protocol.ReadResponse(reader)
		if err == nil && !s.inFlight.CompareAndSwap(true, false) {
			if !s.closing.Load() {
				s.fail(fmt.Errorf("%w: unsolicited %s", ErrUnexpectedResponse, resp.ResponseKind()))
			}
			return
		}
		select {
		case s.responses <- result{resp: resp, err: err}:
		case <-s.stop:
			return
		}
		if err != nil {
			if !protocol.IsFraming(err) {
				err = fmt.Errorf("%w: %v", ErrSessionClosed, err)
			}
			if !s.closing.Load() {
				s.fail(err)
			}
			return
		}
	}
}

func (s *Session) forwardStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 4096), protocol.MaxFrameSize)
	for scanner.Scan() {
		s.relay(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("Sandbox stderr unreadable, discarding the rest", zap.Error(err))
		_, _ = io.Copy(io.Discard, stderr)
	}
}

// sandboxLine is one glyphbox log entry.
type sandboxLine struct {
	Level  string `json:"level"`
	Logger string `json:"logger"`
	Msg    string `json:"msg"`
}

// relay re-logs one stderr line. glyphbox JSON entries keep their level and
// message; anything else is logged verbatim at info.
func (s *Session) relay(line []byte) {
	var entry sandboxLine
	if err := sonic.Unmarshal(line, &entry); err != nil || entry.Msg == "" {
		s.logger.Info("sandbox", zap.String("stderr", string(line)))
		return
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(entry.Level)); err != nil {
		level = zapcore.InfoLevel
	}
	// dpanic and above would panic or exit the host.
	if level > zapcore.ErrorLevel {
		level = zapcore.ErrorLevel
	}
	if ce := s.logger.Check(level, "sandbox"); ce != nil {
		ce.Write(zap.String("stderr", entry.Msg), zap.String("origin", entry.Logger))
	}
}

// roundTrip writes req and waits for its response under the response
// timeout. A fatal outcome kills the process before returning.
func (s *Session) roundTrip(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, s.closedErr()
	}
	s.requests.Add(1)

	kind := string(req.RequestKind())
	timer := monitoring.NewTimer(s.metrics, kind)

	resp, err := s.exchange(ctx, req)
	if err == nil {
		err = expect(req, resp)
	}

	switch {
	case err != nil:
		timer.Stop("fatal")
		s.fail(err)
		return nil, err
	case resp.ResponseKind() == protocol.KindError:
		timer.Stop("error")
	default:
		timer.Stop("ok")
	}
	return resp, nil
}

func (s *Session) exchange(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	deadline := time.NewTimer(s.config.ResponseTimeout)
	defer deadline.Stop()

	s.inFlight.Store(true)
	defer s.inFlight.Store(false)

	// Writes go through a goroutine so a child that stops reading cannot
	// block past the deadline.
	written := make(chan error, 1)
	go func() {
		written <- protocol.WriteRequest(s.proc.Stdin(), req)
	}()

	select {
	case err := <-written:
		if err != nil {
			return nil, fmt.Errorf("%w: write %s: %v", ErrSessionClosed, req.RequestKind(), err)
		}
	case <-deadline.C:
		s.metrics.IncTimeouts()
		return nil, fmt.Errorf("%w: writing %s after %s", ErrTimeout, req.RequestKind(), s.config.ResponseTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrSessionClosed, ctx.Err())
	}

	select {
	case r := <-s.responses:
		if r.err != nil {
			if protocol.IsFraming(r.err) {
				return nil, r.err
			}
			return nil, fmt.Errorf("%w: %v", ErrSessionClosed, r.err)
		}
		return r.resp, nil
	case <-deadline.C:
		s.metrics.IncTimeouts()
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, req.RequestKind(), s.config.ResponseTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrSessionClosed, ctx.Err())
	}
}

// expect checks that resp answers req.
func expect(req protocol.Request, resp protocol.Response) error {
	got := resp.ResponseKind()
	var want protocol.Kind
	switch req.RequestKind() {
	case protocol.KindHandshake:
		want = protocol.KindHandshakeAck
	case protocol.KindShutdown:
		want = protocol.KindShutdownAck
	default:
		want = req.RequestKind()
		if got == protocol.KindError {
			return nil
		}
	}
	if got != want {
		return fmt.Errorf("%w: %s answered with %s", ErrUnexpectedResponse, req.RequestKind(), got)
	}
	return nil
}

// Handshake verifies the sandbox speaks version.
func (s *Session) Handshake(ctx context.Context, version uint32) error {
	resp, err := s.roundTrip(ctx, protocol.Handshake{Version: version})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProtocolMismatch, err)
	}

	ack := resp.(protocol.HandshakeAck)
	if !ack.Success {
		err := fmt.Errorf("%w: host %d, sandbox %d", ErrProtocolMismatch, version, ack.Version)
		s.fail(err)
		return err
	}
	return nil
}

// Render asks the sandbox to render script for meta.
func (s *Session) Render(ctx context.Context, meta protocol.IconMetadata, rctx protocol.RenderContext, script string) (protocol.Commands, error) {
	resp, err := s.roundTrip(ctx, protocol.RenderRequest{Metadata: meta, Context: rctx, ScriptPath: script})
	if err != nil {
		return nil, err
	}

	switch m := resp.(type) {
	case protocol.RenderResponse:
		return m.Commands, nil
	case protocol.ErrorResponse:
		return nil, &RenderError{Message: m.Message}
	}
	return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
}

// Dispatch delivers ev. A script error is logged and reported as an
// unhandled event.
func (s *Session) Dispatch(ctx context.Context, ev protocol.Event) (protocol.EventResult, error) {
	resp, err := s.roundTrip(ctx, protocol.EventRequest{Event: ev})
	if err != nil {
		return protocol.EventResult{}, err
	}

	switch m := resp.(type) {
	case protocol.EventResult:
		return m, nil
	case protocol.ErrorResponse:
		s.logger.Warn("Widget event failed",
			zap.String("event", string(ev.Kind)),
			zap.String("error", m.Message))
		return protocol.EventResult{Handled: false}, nil
	}
	return protocol.EventResult{}, fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
}

// Position asks for the icon's screen position. The sandbox always has a
// fallback, so an Error answer is fatal to the session.
func (s *Session) Position(ctx context.Context, input protocol.PositionInput) (protocol.Position, error) {
	resp, err := s.roundTrip(ctx, protocol.PositionRequest{Input: input})
	if err != nil {
		return protocol.Position{}, err
	}

	switch m := resp.(type) {
	case protocol.Position:
		return m, nil
	case protocol.ErrorResponse:
		err := fmt.Errorf("%w: %s", ErrSessionFault, m.Message)
		s.fail(err)
		return protocol.Position{}, err
	}
	return protocol.Position{}, fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
}

// Close sends Shutdown, waits up to ShutdownWait for the ack and then kills
// the process whether or not it arrived.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil
	}
	s.closing.Store(true)
	s.inFlight.Store(true)

	var ackErr error
	written := make(chan error, 1)
	go func() {
		written <- protocol.WriteRequest(s.proc.Stdin(), protocol.Shutdown{})
	}()

	wait := time.NewTimer(s.config.ShutdownWait)
	defer wait.Stop()

	select {
	case err := <-written:
		if err != nil {
			ackErr = err
			break
		}
		select {
		case r := <-s.responses:
			switch {
			case r.err != nil:
				ackErr = r.err
			case r.resp.ResponseKind() != protocol.KindShutdownAck:
				ackErr = fmt.Errorf("%w: shutdown answered with %s", ErrUnexpectedResponse, r.resp.ResponseKind())
			}
		case <-wait.C:
			ackErr = fmt.Errorf("%w: no shutdown ack after %s", ErrTimeout, s.config.ShutdownWait)
		}
	case <-wait.C:
		ackErr = fmt.Errorf("%w: shutdown write after %s", ErrTimeout, s.config.ShutdownWait)
	}

	if ackErr != nil {
		s.logger.Debug("Shutdown not acknowledged", zap.Error(ackErr))
	}
	s.terminate("")
	return nil
}

// fail records a fatal error and kills the process.
func (s *Session) fail(err error) {
	if s.closed.Load() {
		return
	}
	s.lastErr.CompareAndSwap(nil, &err)
	s.logger.Warn("Sandbox session failed", zap.Error(err))
	s.terminate(failureReason(err))
}

func (s *Session) terminate(reason string) {
	s.killOnce.Do(func() {
		s.closed.Store(true)
		close(s.stop)
		_ = s.proc.Stdin().Close()
		if err := s.proc.Kill(); err != nil {
			s.logger.Debug("Kill failed", zap.Error(err))
		}
		s.metrics.SessionEnded(reason)
	})
}

// Done is closed once the process has exited.
func (s *Session) Done() <-chan struct{} {
	return s.waited
}

func (s *Session) closedErr() error {
	if err := s.lastErr.Load(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionClosed, *err)
	}
	return ErrSessionClosed
}

// Info describes a session for diagnostics.
type Info struct {
	ID       string    `json:"id"`
	Icon     string    `json:"icon"`
	Pid      int       `json:"pid"`
	Started  time.Time `json:"started"`
	Requests uint64    `json:"requests"`
	Alive    bool      `json:"alive"`
}

func (s *Session) Info() Info {
	return Info{
		ID:       s.id.String(),
		Icon:     s.key,
		Pid:      s.proc.Pid(),
		Started:  s.started,
		Requests: s.requests.Load(),
		Alive:    s.Alive(),
	}
}
