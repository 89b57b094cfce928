// Package testutil provides mocks and fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/deskglyph/internal/daemon"
	"github.com/GriffinCanCode/deskglyph/internal/desktop"
	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

// MockClient is a mock implementation of daemon.Client.
type MockClient struct {
	mock.Mock
}

// Render mocks the Render method.
func (m *MockClient) Render(ctx context.Context, meta protocol.IconMetadata, rctx protocol.RenderContext, script string) (protocol.Commands, error) {
	args := m.Called(ctx, meta, rctx, script)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(protocol.Commands), args.Error(1)
}

// Dispatch mocks the Dispatch method.
func (m *MockClient) Dispatch(ctx context.Context, path string, ev protocol.Event) (protocol.EventResult, error) {
	args := m.Called(ctx, path, ev)
	return args.Get(0).(protocol.EventResult), args.Error(1)
}

// Position mocks the Position method.
func (m *MockClient) Position(ctx context.Context, path string, input protocol.PositionInput) (protocol.Position, error) {
	args := m.Called(ctx, path, input)
	return args.Get(0).(protocol.Position), args.Error(1)
}

// Close mocks the Close method.
func (m *MockClient) Close(path string) error {
	return m.Called(path).Error(0)
}

// NewMockClient creates a mock client whose calls succeed with empty
// results unless a test sets its own expectations first.
func NewMockClient(t *testing.T) *MockClient {
	t.Helper()
	m := new(MockClient)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// AllowDefaults registers permissive fallbacks. Call it after the
// test-specific expectations so those match first.
func (m *MockClient) AllowDefaults() *MockClient {
	m.On("Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(protocol.Commands{}, nil).
		Maybe()
	m.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).
		Return(protocol.EventResult{Handled: true}, nil).
		Maybe()
	m.On("Position", mock.Anything, mock.Anything, mock.Anything).
		Return(protocol.Position{}, nil).
		Maybe()
	m.On("Close", mock.Anything).
		Return(nil).
		Maybe()
	return m
}

// MockRenderer is a mock implementation of daemon.Renderer.
type MockRenderer struct {
	mock.Mock
}

// Draw mocks the Draw method.
func (m *MockRenderer) Draw(ctx context.Context, frame daemon.Frame) error {
	return m.Called(ctx, frame).Error(0)
}

// Remove mocks the Remove method.
func (m *MockRenderer) Remove(path string) {
	m.Called(path)
}

// NewMockRenderer creates a renderer mock that accepts everything.
func NewMockRenderer(t *testing.T) *MockRenderer {
	t.Helper()
	m := new(MockRenderer)
	m.On("Draw", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("Remove", mock.Anything).Return().Maybe()
	return m
}

// MockActionSink is a mock implementation of daemon.ActionSink.
type MockActionSink struct {
	mock.Mock
}

// Perform mocks the Perform method.
func (m *MockActionSink) Perform(ctx context.Context, icon desktop.Icon, action protocol.Action) error {
	return m.Called(ctx, icon, action).Error(0)
}

// StaticSource serves a fixed icon list; tests may swap Icons between scans.
type StaticSource struct {
	Icons []desktop.Icon
	Err   error
}

func (s *StaticSource) Scan(context.Context) ([]desktop.Icon, error) {
	return append([]desktop.Icon(nil), s.Icons...), s.Err
}

// StaticResolver maps icon types to script paths.
type StaticResolver map[string]string

func (r StaticResolver) Resolve(iconType, kind string) string {
	if s, ok := r[iconType]; ok {
		return s
	}
	if s, ok := r[kind]; ok {
		return s
	}
	return r["default"]
}

// CreateTestIcon creates a regular file icon under /desktop.
func CreateTestIcon(t *testing.T, name string, kind desktop.Kind) desktop.Icon {
	t.Helper()

	icon := desktop.Icon{
		Path:     filepath.Join("/desktop", name),
		Name:     name,
		Kind:     kind,
		MimeType: "application/octet-stream",
		ModTime:  time.Unix(1700000000, 0),
	}
	if kind == desktop.KindFolder {
		icon.IsDir = true
		icon.MimeType = "inode/directory"
	} else {
		size := uint64(len(name))
		icon.Size = &size
	}
	return icon
}
