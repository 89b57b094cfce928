package daemon_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/deskglyph/internal/daemon"
	"github.com/GriffinCanCode/deskglyph/internal/desktop"
	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/deskglyph/internal/protocol"
	"github.com/GriffinCanCode/deskglyph/internal/testutil"
)

// recordingRenderer keeps every frame it is handed.
type recordingRenderer struct {
	mu      sync.Mutex
	frames  map[string]daemon.Frame
	draws   int
	removed []string
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{frames: make(map[string]daemon.Frame)}
}

func (r *recordingRenderer) Draw(_ context.Context, frame daemon.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[frame.Icon.Path] = frame
	r.draws++
	return nil
}

func (r *recordingRenderer) Remove(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, path)
	delete(r.frames, path)
}

func (r *recordingRenderer) frame(path string) (daemon.Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.frames[path]
	return f, ok
}

var resolver = testutil.StaticResolver{
	"directory": "/scripts/directory.js",
	"document":  "/scripts/document.js",
}

func testConfig() daemon.Config {
	cfg := daemon.DefaultConfig()
	cfg.RescanInterval = 0
	return cfg
}

func TestRefreshRendersEveryIcon(t *testing.T) {
	projects := testutil.CreateTestIcon(t, "Projects", desktop.KindFolder)
	notes := testutil.CreateTestIcon(t, "notes.txt", desktop.KindDocument)
	tool := testutil.CreateTestIcon(t, "tool", desktop.KindExecutable)
	source := &testutil.StaticSource{Icons: []desktop.Icon{projects, notes, tool}}

	client := testutil.NewMockClient(t)
	wantCanvas := protocol.RenderContext{CanvasWidth: 84, CanvasHeight: 84, DevicePixelRatio: 1}

	client.On("Render", mock.Anything, projects.Metadata(64), wantCanvas, "/scripts/directory.js").
		Return(protocol.Commands{protocol.Clear{Color: "#000000"}}, nil).Once()
	client.On("Render", mock.Anything, notes.Metadata(64), wantCanvas, "/scripts/document.js").
		Return(protocol.Commands{}, nil).Once()
	client.On("Position", mock.Anything, projects.Path, protocol.PositionInput{
		ScreenWidth: 1920, ScreenHeight: 1080, IconCount: 3, IconIndex: 0, CellWidth: 84, CellHeight: 84,
	}).Return(protocol.Position{X: 20, Y: 20}, nil).Once()
	client.On("Position", mock.Anything, notes.Path, protocol.PositionInput{
		ScreenWidth: 1920, ScreenHeight: 1080, IconCount: 3, IconIndex: 1, CellWidth: 84, CellHeight: 84,
	}).Return(protocol.Position{X: 104, Y: 20}, nil).Once()

	renderer := newRecordingRenderer()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	d := daemon.New(testConfig(), source, resolver, client,
		daemon.WithRenderer(renderer),
		daemon.WithLogger(zaptest.NewLogger(t)),
		daemon.WithMetrics(metrics))

	report, err := d.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Icons)
	assert.Equal(t, 2, report.Rendered)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.NotEmpty(t, report.ID)

	frame, ok := renderer.frame(projects.Path)
	require.True(t, ok)
	assert.Equal(t, "/scripts/directory.js", frame.Script)
	assert.Equal(t, protocol.Position{X: 20, Y: 20}, frame.Position)
	assert.Equal(t, protocol.Commands{protocol.Clear{Color: "#000000"}}, frame.Commands)

	_, ok = renderer.frame(tool.Path)
	assert.False(t, ok)

	assert.Equal(t, []desktop.Icon{projects, notes, tool}, d.Icons())
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.RenderPasses))
}

func TestRefreshFailureDoesNotAbortPass(t *testing.T) {
	bad := testutil.CreateTestIcon(t, "a.txt", desktop.KindDocument)
	good := testutil.CreateTestIcon(t, "b.txt", desktop.KindDocument)
	source := &testutil.StaticSource{Icons: []desktop.Icon{bad, good}}

	client := testutil.NewMockClient(t)
	client.On("Render", mock.Anything, mock.MatchedBy(func(m protocol.IconMetadata) bool { return m.Path == bad.Path }), mock.Anything, mock.Anything).
		Return(nil, errors.New("sandbox died")).Once()
	client.AllowDefaults()

	renderer := newRecordingRenderer()
	d := daemon.New(testConfig(), source, resolver, client, daemon.WithRenderer(renderer))

	report, err := d.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Rendered)

	_, ok := renderer.frame(good.Path)
	assert.True(t, ok)
}

func TestRefreshRemovesVanishedIcons(t *testing.T) {
	keep := testutil.CreateTestIcon(t, "keep.txt", desktop.KindDocument)
	gone := testutil.CreateTestIcon(t, "gone.txt", desktop.KindDocument)
	source := &testutil.StaticSource{Icons: []desktop.Icon{gone, keep}}

	client := testutil.NewMockClient(t)
	client.On("Close", gone.Path).Return(nil).Once()
	client.AllowDefaults()

	renderer := testutil.NewMockRenderer(t)
	d := daemon.New(testConfig(), source, resolver, client, daemon.WithRenderer(renderer))

	_, err := d.Refresh(context.Background())
	require.NoError(t, err)

	source.Icons = []desktop.Icon{keep}
	report, err := d.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, []desktop.Icon{keep}, d.Icons())

	renderer.AssertCalled(t, "Remove", gone.Path)
	renderer.AssertNotCalled(t, "Remove", keep.Path)
}

func TestRefreshScanError(t *testing.T) {
	source := &testutil.StaticSource{Err: errors.New("permission denied")}
	d := daemon.New(testConfig(), source, resolver, testutil.NewMockClient(t))

	_, err := d.Refresh(context.Background())
	assert.ErrorContains(t, err, "permission denied")
}

func TestRefreshBoundsParallelism(t *testing.T) {
	var icons []desktop.Icon
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt", "f.txt"} {
		icons = append(icons, testutil.CreateTestIcon(t, name, desktop.KindDocument))
	}

	var inFlight, peak atomic.Int32
	client := testutil.NewMockClient(t)
	client.On("Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
		}).
		Return(protocol.Commands{}, nil)
	client.AllowDefaults()

	cfg := testConfig()
	cfg.MaxParallel = 2
	d := daemon.New(cfg, &testutil.StaticSource{Icons: icons}, resolver, client, daemon.WithRenderer(newRecordingRenderer()))

	report, err := d.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, report.Rendered)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestDispatchRoutesActionAndRedraws(t *testing.T) {
	notes := testutil.CreateTestIcon(t, "notes.txt", desktop.KindDocument)
	action := protocol.NewAction("open", notes.Path)

	client := testutil.NewMockClient(t)
	client.On("Dispatch", mock.Anything, notes.Path, protocol.Click(0, 3, 4)).
		Return(protocol.EventResult{Handled: true, Action: action}, nil).Once()
	client.AllowDefaults()

	sink := new(testutil.MockActionSink)
	sink.On("Perform", mock.Anything, notes, *action).Return(nil).Once()

	renderer := newRecordingRenderer()
	d := daemon.New(testConfig(), &testutil.StaticSource{Icons: []desktop.Icon{notes}}, resolver, client,
		daemon.WithRenderer(renderer),
		daemon.WithActionSink(sink))

	_, err := d.Refresh(context.Background())
	require.NoError(t, err)

	res, err := d.Dispatch(context.Background(), notes.Path, protocol.Click(0, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, action, res.Action)

	sink.AssertExpectations(t)
	renderer.mu.Lock()
	assert.Equal(t, 2, renderer.draws)
	renderer.mu.Unlock()
}

func TestDispatchSelectionUpdatesMetadata(t *testing.T) {
	notes := testutil.CreateTestIcon(t, "notes.txt", desktop.KindDocument)

	var lastSelected, lastHovered atomic.Bool
	client := testutil.NewMockClient(t)
	client.On("Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			meta := args.Get(1).(protocol.IconMetadata)
			lastSelected.Store(meta.Selected)
			lastHovered.Store(meta.Hovered)
		}).
		Return(protocol.Commands{}, nil)
	client.AllowDefaults()

	d := daemon.New(testConfig(), &testutil.StaticSource{Icons: []desktop.Icon{notes}}, resolver, client,
		daemon.WithRenderer(newRecordingRenderer()))
	ctx := context.Background()

	_, err := d.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, lastSelected.Load())

	_, err = d.Dispatch(ctx, notes.Path, protocol.Selected())
	require.NoError(t, err)
	assert.True(t, lastSelected.Load())

	_, err = d.Dispatch(ctx, notes.Path, protocol.HoverEnter())
	require.NoError(t, err)
	assert.True(t, lastHovered.Load())

	// State survives a rescan of the unchanged icon.
	_, err = d.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, lastSelected.Load())

	_, err = d.Dispatch(ctx, notes.Path, protocol.Deselected())
	require.NoError(t, err)
	assert.False(t, lastSelected.Load())
}

func TestDispatchUnknownIcon(t *testing.T) {
	d := daemon.New(testConfig(), &testutil.StaticSource{}, resolver, testutil.NewMockClient(t))

	_, err := d.Dispatch(context.Background(), "/desktop/nope", protocol.HoverEnter())
	assert.ErrorIs(t, err, daemon.ErrUnknownIcon)
}

func TestRenderIcon(t *testing.T) {
	notes := testutil.CreateTestIcon(t, "notes.txt", desktop.KindDocument)
	tool := testutil.CreateTestIcon(t, "tool", desktop.KindExecutable)

	client := testutil.NewMockClient(t)
	client.On("Position", mock.Anything, notes.Path, mock.MatchedBy(func(in protocol.PositionInput) bool {
		return in.IconCount == 1 && in.IconIndex == 0
	})).Return(protocol.Position{X: 20, Y: 20}, nil).Once()
	client.AllowDefaults()

	d := daemon.New(testConfig(), &testutil.StaticSource{}, resolver, client)

	frame, err := d.RenderIcon(context.Background(), notes)
	require.NoError(t, err)
	assert.Equal(t, "/scripts/document.js", frame.Script)
	assert.Equal(t, protocol.Position{X: 20, Y: 20}, frame.Position)

	_, err = d.RenderIcon(context.Background(), tool)
	assert.ErrorContains(t, err, "no script")
}

// countingSource counts scans.
type countingSource struct {
	scans atomic.Int32
}

func (s *countingSource) Scan(context.Context) ([]desktop.Icon, error) {
	s.scans.Add(1)
	return nil, nil
}

func TestRunRescansUntilCanceled(t *testing.T) {
	source := &countingSource{}
	cfg := testConfig()
	cfg.RescanInterval = 5 * time.Millisecond
	d := daemon.New(cfg, source, resolver, testutil.NewMockClient(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	assert.Eventually(t, func() bool { return source.scans.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
