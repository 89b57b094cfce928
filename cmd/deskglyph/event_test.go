package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskglyph/internal/desktop"
	"github.com/GriffinCanCode/deskglyph/internal/protocol"
	"github.com/GriffinCanCode/deskglyph/internal/sandbox"
)

const helperRuntimeEnv = "GLYPHBOX_HELPER_RUNTIME"

// TestMain doubles as the sandbox runtime when re-executed by the host.
func TestMain(m *testing.M) {
	if os.Getenv(helperRuntimeEnv) == "1" {
		r := sandbox.New(sandbox.DefaultConfig(), zap.NewNop())
		if err := r.Serve(os.Stdin, os.Stdout); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  protocol.Event
	}{
		{name: "click", want: protocol.Click(3, 4, 5)},
		{name: "hover-enter", want: protocol.HoverEnter()},
		{name: "HOVER_EXIT", want: protocol.HoverExit()},
		{name: "drop", paths: []string{"/tmp/a", "/tmp/b"}, want: protocol.Drop("/tmp/a", "/tmp/b")},
		{name: "select", want: protocol.Selected()},
		{name: "deselected", want: protocol.Deselected()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := parseEvent(tt.name, 3, 4, 5, tt.paths)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
			assert.NoError(t, ev.Validate())
		})
	}

	_, err := parseEvent("drop", 1, 0, 0, nil)
	assert.ErrorContains(t, err, "--path")

	_, err = parseEvent("wiggle", 1, 0, 0, nil)
	assert.ErrorContains(t, err, "unknown event")
}

func TestIconSource(t *testing.T) {
	icon := desktop.Icon{Path: "/desktop/a.txt", Name: "a.txt"}
	icons, err := iconSource{icon: icon}.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []desktop.Icon{icon}, icons)
}

func setEventFlags(t *testing.T, script string, button uint32, x, y float64) {
	t.Helper()
	old := []any{eventScript, eventButton, eventX, eventY, eventPaths}
	eventScript, eventButton, eventX, eventY, eventPaths = script, button, x, y, nil
	t.Cleanup(func() {
		eventScript = old[0].(string)
		eventButton = old[1].(uint32)
		eventX, eventY = old[2].(float64), old[3].(float64)
		eventPaths = old[4].([]string)
	})
}

func TestRunEventClick(t *testing.T) {
	self, err := filepath.Abs(os.Args[0])
	require.NoError(t, err)
	t.Setenv(helperRuntimeEnv, "1")

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
[scripts]
dirs = ["`+dir+`"]

[sandbox]
enabled = false
runtime_path = "`+self+`"
`), 0o644))

	script := filepath.Join(dir, "toggle.js")
	require.NoError(t, os.WriteFile(script, []byte(`
var Icon = {
  on: false,
  on_click: function (state, click) {
    if (click.button !== 1) return false;
    this.on = !this.on;
    return "open";
  },
  render: function (c) { c.clear(this.on ? "#00FF00" : "#FF0000"); }
};`), 0o644))

	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("hello"), 0o644))

	withFlags(t, cfgPath, "", dir)
	setEventFlags(t, script, 1, 8, 8)

	var out bytes.Buffer
	eventCmd.SetOut(&out)
	eventCmd.SetContext(context.Background())
	t.Cleanup(func() { eventCmd.SetOut(nil) })

	require.NoError(t, runEvent(eventCmd, []string{notes, "click"}))

	var got eventOutput
	require.NoError(t, sonic.Unmarshal(out.Bytes(), &got))
	assert.True(t, got.Result.Handled)
	require.NotNil(t, got.Result.Action)
	assert.Equal(t, "open", got.Result.Action.Action)
	require.NotNil(t, got.Result.Action.Payload)
	assert.Equal(t, notes, *got.Result.Action.Payload)

	require.NotNil(t, got.Frame)
	assert.Equal(t, script, got.Frame.Script)
	assert.Equal(t, protocol.Commands{protocol.Clear{Color: "#00FF00"}}, got.Frame.Commands)
}
