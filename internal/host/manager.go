package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

// renderArgs is the last render sent for a path, replayed into a respawned
// sandbox before events so the script is loaded again.
type renderArgs struct {
	meta   protocol.IconMetadata
	rctx   protocol.RenderContext
	script string
}

// entry serializes all traffic for one icon path.
type entry struct {
	mu      sync.Mutex
	session *Session
	last    *renderArgs
}

// Manager owns one sandbox session per icon path. Calls for the same path
// are serialized; calls for different paths run concurrently.
type Manager struct {
	spawner   Spawner
	config    Config
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	sanitizer *Sanitizer
	breakers  *resilience.Group

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// NewManager creates a manager that starts sandboxes with spawner.
func NewManager(spawner Spawner, config Config, logger *zap.Logger, metrics *monitoring.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		spawner:   spawner,
		config:    config,
		logger:    logger,
		metrics:   metrics,
		sanitizer: NewSanitizer(logger, metrics),
		entries:   make(map[string]*entry),
	}

	failures := config.BreakerFailures
	m.breakers = resilience.NewGroup(resilience.Settings{
		Timeout: config.BreakerCooldown,
		ReadyToTrip: func(c resilience.Counts) bool {
			return failures > 0 && c.ConsecutiveFailures >= failures
		},
		IsFailure: func(err error) bool {
			return IsSessionFatal(err) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(path string, from, to resilience.State) {
			if to == resilience.StateOpen {
				m.metrics.IncBreakerTrips()
				m.logger.Warn("Icon sandbox keeps failing, pausing respawns",
					zap.String("icon", path),
					zap.Duration("cooldown", config.BreakerCooldown))
			}
		},
	})
	return m
}

func (m *Manager) entry(path string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("%w: manager shut down", ErrSessionClosed)
	}
	e, ok := m.entries[path]
	if !ok {
		e = &entry{}
		m.entries[path] = e
	}
	return e, nil
}

// ensure returns a live session for path, spawning and handshaking a new
// one when needed. With replay set, a fresh sandbox first renders the last
// known request so its script is loaded.
func (m *Manager) ensure(ctx context.Context, e *entry, path string, replay bool) (*Session, error) {
	if e.session != nil && e.session.Alive() {
		return e.session, nil
	}
	e.session = nil

	proc, err := m.spawner.Spawn(ctx)
	if err != nil {
		if !errors.Is(err, ErrSpawn) {
			err = fmt.Errorf("%w: %v", ErrSpawn, err)
		}
		return nil, err
	}

	s := NewSession(path, proc, m.config, m.logger, m.metrics)
	if err := s.Handshake(ctx, protocol.Version); err != nil {
		s.fail(err)
		return nil, err
	}
	m.logger.Debug("Sandbox started", zap.String("icon", path), zap.String("session", s.ID().String()))
	e.session = s

	if replay && e.last != nil {
		if _, err := s.Render(ctx, e.last.meta, e.last.rctx, e.last.script); err != nil {
			if IsSessionFatal(err) {
				return nil, err
			}
			m.logger.Warn("Replayed render failed", zap.String("icon", path), zap.Error(err))
		}
	}
	return s, nil
}

// Render renders script for meta in the sandbox owning meta.Path. The
// returned commands have passed host validation.
func (m *Manager) Render(ctx context.Context, meta protocol.IconMetadata, rctx protocol.RenderContext, script string) (protocol.Commands, error) {
	path := meta.Path
	e, err := m.entry(path)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.last = &renderArgs{meta: meta, rctx: rctx, script: script}

	cmds, err := resilience.Execute(m.breakers.Get(path), func() (protocol.Commands, error) {
		s, err := m.ensure(ctx, e, path, false)
		if err != nil {
			return nil, err
		}
		return s.Render(ctx, meta, rctx, script)
	})
	if err != nil {
		return nil, err
	}
	return m.sanitizer.Commands(path, cmds), nil
}

// Dispatch delivers ev to the widget of path. Script failures come back as
// an unhandled result; only session-level failures are errors.
func (m *Manager) Dispatch(ctx context.Context, path string, ev protocol.Event) (protocol.EventResult, error) {
	e, err := m.entry(path)
	if err != nil {
		return protocol.EventResult{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := resilience.Execute(m.breakers.Get(path), func() (protocol.EventResult, error) {
		s, err := m.ensure(ctx, e, path, true)
		if err != nil {
			return protocol.EventResult{}, err
		}
		return s.Dispatch(ctx, ev)
	})
	if err != nil {
		return protocol.EventResult{}, err
	}

	if res.Action != nil {
		m.metrics.IncActions(res.Action.Action)
	}
	return res, nil
}

// Position returns where the icon of path belongs on screen.
func (m *Manager) Position(ctx context.Context, path string, input protocol.PositionInput) (protocol.Position, error) {
	e, err := m.entry(path)
	if err != nil {
		return protocol.Position{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	return resilience.Execute(m.breakers.Get(path), func() (protocol.Position, error) {
		s, err := m.ensure(ctx, e, path, true)
		if err != nil {
			return protocol.Position{}, err
		}
		return s.Position(ctx, input)
	})
}

// Close shuts down the sandbox of path and forgets it.
func (m *Manager) Close(path string) error {
	m.mu.Lock()
	e, ok := m.entries[path]
	delete(m.entries, path)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	err := e.session.Close()
	e.session = nil
	return err
}

// Shutdown closes every session concurrently. Later calls fail with
// ErrSessionClosed.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	paths := make([]string, 0, len(m.entries))
	for path := range m.entries {
		paths = append(paths, path)
	}
	m.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, path := range paths {
		g.Go(func() error {
			return m.Close(path)
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sessions describes the live sessions sorted by icon path.
func (m *Manager) Sessions() []Info {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.session != nil && e.session.Alive() {
			infos = append(infos, e.session.Info())
		}
		e.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Icon < infos[j].Icon })
	return infos
}

// Breakers reports the respawn breaker of every path seen so far.
func (m *Manager) Breakers() []resilience.Snapshot {
	return m.breakers.Snapshots()
}
