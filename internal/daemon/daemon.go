// Package daemon keeps the desktop rendered: it scans icons, resolves their
// scripts, renders them through the sandbox client and routes input events.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/deskglyph/internal/desktop"
	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/deskglyph/internal/protocol"
	"github.com/GriffinCanCode/deskglyph/internal/shared/id"
)

var errNoScript = errors.New("no script for icon")

// tracked is the host-owned state of one icon.
type tracked struct {
	icon     desktop.Icon
	index    int
	selected bool
	hovered  bool
}

// Daemon renders a desktop.
type Daemon struct {
	config   Config
	source   Source
	resolver Resolver
	client   Client
	renderer Renderer
	sink     ActionSink
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu    sync.Mutex
	icons []desktop.Icon
	state map[string]*tracked
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithRenderer replaces the logging renderer.
func WithRenderer(r Renderer) Option {
	return func(d *Daemon) { d.renderer = r }
}

// WithActionSink replaces the logging action sink.
func WithActionSink(s ActionSink) Option {
	return func(d *Daemon) { d.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Daemon) { d.logger = l }
}

// WithMetrics records render passes.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

// New creates a daemon. Without options frames and actions are only logged.
func New(config Config, source Source, resolver Resolver, client Client, opts ...Option) *Daemon {
	d := &Daemon{
		config:   config,
		source:   source,
		resolver: resolver,
		client:   client,
		logger:   zap.NewNop(),
		state:    make(map[string]*tracked),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.renderer == nil {
		d.renderer = LogRenderer{Logger: d.logger}
	}
	if d.sink == nil {
		d.sink = LogActionSink{Logger: d.logger}
	}
	if d.config.MaxParallel <= 0 {
		d.config.MaxParallel = 1
	}
	return d
}

// Icons returns the icons of the last scan in grid order.
func (d *Daemon) Icons() []desktop.Icon {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]desktop.Icon(nil), d.icons...)
}

// Run renders the desktop and then rescans every RescanInterval until ctx
// is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	if _, err := d.Refresh(ctx); err != nil {
		return err
	}

	if d.config.RescanInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(d.config.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.logger.Error("Render pass failed", zap.Error(err))
			}
		}
	}
}

// Refresh scans the desktop, drops vanished icons and renders every icon.
// One icon failing is logged and never aborts the pass.
func (d *Daemon) Refresh(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{ID: id.NewPassID().String()}
	logger := d.logger.With(zap.String("pass", report.ID))

	icons, err := d.source.Scan(ctx)
	if err != nil {
		return report, fmt.Errorf("scan desktop: %w", err)
	}

	removed := d.replace(icons)
	for _, icon := range removed {
		if err := d.client.Close(icon.Path); err != nil {
			logger.Debug("Closing sandbox failed", zap.String("icon", icon.Path), zap.Error(err))
		}
		d.renderer.Remove(icon.Path)
	}
	report.Removed = len(removed)
	report.Icons = len(icons)

	var (
		mu       sync.Mutex
		rendered int
		skipped  int
		failed   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.MaxParallel)
	for _, icon := range icons {
		g.Go(func() error {
			err := d.render(gctx, icon.Path)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				rendered++
			case errors.Is(err, errNoScript):
				skipped++
			default:
				failed++
				logger.Warn("Icon render failed", zap.String("icon", icon.Path), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Rendered, report.Skipped, report.Failed = rendered, skipped, failed
	report.Duration = time.Since(start)
	d.metrics.RecordRenderPass(report.Duration)

	logger.Debug("Render pass done",
		zap.Int("icons", report.Icons),
		zap.Int("rendered", rendered),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Duration("duration", report.Duration))
	return report, ctx.Err()
}

// replace installs a new scan, keeping host state for icons that remain,
// and returns the icons that disappeared or changed.
func (d *Daemon) replace(icons []desktop.Icon) []desktop.Icon {
	d.mu.Lock()
	defer d.mu.Unlock()

	added, removed := desktop.Diff(d.icons, icons)
	for _, icon := range removed {
		delete(d.state, icon.Path)
	}
	for _, icon := range added {
		d.state[icon.Path] = &tracked{}
	}
	for i, icon := range icons {
		t := d.state[icon.Path]
		t.icon = icon
		t.index = i
	}
	d.icons = icons

	// A changed icon is in both lists; only its sandbox is recycled.
	return removed
}

// snapshot copies the tracked state of path.
func (d *Daemon) snapshot(path string) (tracked, int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.state[path]
	if !ok {
		return tracked{}, 0, false
	}
	return *t, len(d.icons), true
}

func (d *Daemon) render(ctx context.Context, path string) error {
	t, count, ok := d.snapshot(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIcon, path)
	}

	frame, err := d.frame(ctx, t, count)
	if err != nil {
		return err
	}
	return d.renderer.Draw(ctx, frame)
}

func (d *Daemon) frame(ctx context.Context, t tracked, count int) (Frame, error) {
	icon := t.icon
	script := d.resolver.Resolve(icon.IconType(), string(icon.Kind))
	if script == "" {
		return Frame{}, errNoScript
	}

	meta := icon.Metadata(d.config.IconSize)
	meta.Selected = t.selected
	meta.Hovered = t.hovered

	cmds, err := d.client.Render(ctx, meta, d.config.canvas(), script)
	if err != nil {
		return Frame{}, err
	}

	// Position goes after Render so the script's own placement is loaded.
	cw, ch := d.config.cell()
	pos, err := d.client.Position(ctx, icon.Path, protocol.PositionInput{
		ScreenWidth:  d.config.ScreenWidth,
		ScreenHeight: d.config.ScreenHeight,
		IconCount:    uint32(count),
		IconIndex:    uint32(t.index),
		CellWidth:    cw,
		CellHeight:   ch,
	})
	if err != nil {
		return Frame{}, err
	}

	return Frame{Icon: icon, Script: script, Position: pos, Commands: cmds}, nil
}

// RenderIcon renders a single icon outside the desktop grid, as slot 0 of 1.
func (d *Daemon) RenderIcon(ctx context.Context, icon desktop.Icon) (Frame, error) {
	frame, err := d.frame(ctx, tracked{icon: icon}, 1)
	if errors.Is(err, errNoScript) {
		return Frame{}, fmt.Errorf("%w: %s (%s)", errNoScript, icon.Path, icon.IconType())
	}
	return frame, err
}

// Dispatch delivers ev to the icon at path, performs any requested action
// and redraws the icon. Selection and hover events also update the
// metadata the host sends with later renders.
func (d *Daemon) Dispatch(ctx context.Context, path string, ev protocol.Event) (protocol.EventResult, error) {
	d.mu.Lock()
	t, ok := d.state[path]
	if !ok {
		d.mu.Unlock()
		return protocol.EventResult{}, fmt.Errorf("%w: %s", ErrUnknownIcon, path)
	}
	switch ev.Kind {
	case protocol.EventSelected:
		t.selected = true
	case protocol.EventDeselected:
		t.selected = false
	case protocol.EventHoverEnter:
		t.hovered = true
	case protocol.EventHoverExit:
		t.hovered = false
	}
	icon := t.icon
	d.mu.Unlock()

	res, err := d.client.Dispatch(ctx, path, ev)
	if err != nil {
		return protocol.EventResult{}, err
	}

	if res.Action != nil {
		if err := d.sink.Perform(ctx, icon, *res.Action); err != nil {
			d.logger.Warn("Action failed",
				zap.String("icon", path),
				zap.String("action", res.Action.Action),
				zap.Error(err))
		}
	}

	if err := d.render(ctx, path); err != nil && !errors.Is(err, errNoScript) {
		d.logger.Warn("Redraw after event failed", zap.String("icon", path), zap.Error(err))
	}
	return res, nil
}
