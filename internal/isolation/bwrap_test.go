package isolation

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInfo struct {
	fs.FileInfo
	mode fs.FileMode
}

func (f fakeInfo) Mode() fs.FileMode { return f.mode }

// fakeFS answers Lstat from a fixed table.
func fakeFS(entries map[string]fs.FileMode) func(string) (fs.FileInfo, error) {
	return func(p string) (fs.FileInfo, error) {
		mode, ok := entries[p]
		if !ok {
			return nil, fs.ErrNotExist
		}
		return fakeInfo{mode: mode}, nil
	}
}

func newTestBuilder(opts Options, entries map[string]fs.FileMode) *Builder {
	b := NewBuilder(opts)
	b.lstat = fakeFS(entries)
	return b
}

// hasSeq reports whether want appears contiguously in argv.
func hasSeq(argv []string, want ...string) bool {
	for i := 0; i+len(want) <= len(argv); i++ {
		if slices.Equal(argv[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

func TestCommandDisabledRunsDirectly(t *testing.T) {
	b := NewBuilder(Options{Enabled: false})
	assert.Equal(t, []string{"/opt/deskglyph/glyphbox", "--log-level", "warn"},
		b.Command("/opt/deskglyph/glyphbox", "--log-level", "warn"))
}

func TestCommandIsolated(t *testing.T) {
	b := newTestBuilder(Options{
		Enabled:       true,
		ReadOnlyPaths: []string{"/etc/fonts", "/missing"},
		ScriptDirs:    []string{"/home/user/.config/deskglyph/scripts"},
		WorkDir:       "/tmp",
		Env:           map[string]string{"GLYPH_LOG_LEVEL": "debug", "A": "1"},
	}, map[string]fs.FileMode{
		"/lib":                                 fs.ModeSymlink,
		"/lib64":                               fs.ModeDir,
		"/etc/fonts":                           fs.ModeDir,
		"/home/user/.config/deskglyph/scripts": fs.ModeDir,
		"/opt/deskglyph/glyphbox":              0o755,
	})

	argv := b.Command("/opt/deskglyph/glyphbox", "--log-level", "warn")

	assert.Equal(t, "bwrap", argv[0])
	assert.True(t, hasSeq(argv, "--die-with-parent", "--new-session", "--unshare-all"))
	assert.True(t, hasSeq(argv, "--ro-bind", "/usr", "/usr"))
	assert.True(t, hasSeq(argv, "--symlink", "usr/lib", "/lib"))
	assert.True(t, hasSeq(argv, "--ro-bind", "/lib64", "/lib64"))
	assert.True(t, hasSeq(argv, "--tmpfs", "/home"))
	assert.True(t, hasSeq(argv, "--ro-bind", "/opt/deskglyph/glyphbox", "/opt/deskglyph/glyphbox"))
	assert.True(t, hasSeq(argv, "--ro-bind", "/etc/fonts", "/etc/fonts"))
	assert.False(t, slices.Contains(argv, "/missing"))
	assert.True(t, hasSeq(argv, "--ro-bind", "/home/user/.config/deskglyph/scripts", "/home/user/.config/deskglyph/scripts"))
	assert.True(t, hasSeq(argv, "--chdir", "/tmp"))
	assert.True(t, hasSeq(argv, "--setenv", "A", "1", "--setenv", "GLYPH_LOG_LEVEL", "debug"))
	assert.Equal(t, []string{"--", "/opt/deskglyph/glyphbox", "--log-level", "warn"}, argv[len(argv)-4:])

	// Caller env is applied after the environment is cleared.
	assert.Less(t, slices.Index(argv, "--clearenv"), slices.Index(argv, "GLYPH_LOG_LEVEL"))
}

func TestCommandAllowNetwork(t *testing.T) {
	b := newTestBuilder(Options{Enabled: true, AllowNetwork: true}, nil)
	argv := b.Command("/usr/bin/glyphbox")

	assert.NotContains(t, argv, "--unshare-all")
	assert.True(t, hasSeq(argv, "--unshare-user", "--unshare-pid", "--unshare-uts", "--unshare-cgroup"))
	// Binaries under /usr are already visible.
	assert.Equal(t, 1, countSeq(argv, "--ro-bind", "/usr", "/usr"))
	assert.False(t, hasSeq(argv, "--ro-bind", "/usr/bin/glyphbox", "/usr/bin/glyphbox"))
}

func TestCommandReadWriteBind(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(Options{Enabled: true, BwrapPath: "/usr/local/bin/bwrap", ReadWritePaths: []string{dir}})

	argv := b.Command("/usr/bin/glyphbox")
	assert.Equal(t, "/usr/local/bin/bwrap", argv[0])
	assert.True(t, hasSeq(argv, "--bind", dir, dir))
}

func countSeq(argv []string, want ...string) int {
	n := 0
	for i := 0; i+len(want) <= len(argv); i++ {
		if slices.Equal(argv[i:i+len(want)], want) {
			n++
		}
	}
	return n
}

func TestAvailableMissingBinary(t *testing.T) {
	err := Available(context.Background(), filepath.Join(t.TempDir(), "no-bwrap"))
	assert.Error(t, err)
}

func TestAvailableWrongBinary(t *testing.T) {
	script := filepath.Join(t.TempDir(), "fake-bwrap")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho not it\n"), 0o755))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, Available(ctx, script))
}

func TestAvailableFakeBwrap(t *testing.T) {
	script := filepath.Join(t.TempDir(), "fake-bwrap")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho bubblewrap 0.8.0\n"), 0o755))

	assert.NoError(t, Available(context.Background(), script))
}
