package desktop

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name string
		mode fs.FileMode
		want Kind
	}{
		{"notes.txt", 0o644, KindDocument},
		{"README.MD", 0o644, KindDocument},
		{"photo.JPEG", 0o644, KindImage},
		{"backup.tar", 0o644, KindArchive},
		{"clip.webm", 0o644, KindVideo},
		{"song.opus", 0o644, KindAudio},
		{"deploy.sh", 0o644, KindExecutable},
		{"tool", 0o755, KindExecutable},
		{"tool", 0o644, KindFile},
		{"data.bin", 0o755, KindFile},
		{"Projects", fs.ModeDir | 0o755, KindFolder},
		{"photos.png", fs.ModeDir | 0o755, KindFolder},
		{"link.txt", fs.ModeSymlink | 0o777, KindSymlink},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectKind(tt.name, tt.mode))
		})
	}
}

func TestIconType(t *testing.T) {
	assert.Equal(t, "directory", Icon{Kind: KindFolder}.IconType())
	assert.Equal(t, "application", Icon{Kind: KindExecutable}.IconType())
	assert.Equal(t, "symlink", Icon{Kind: KindSymlink}.IconType())
	assert.Equal(t, "file", Icon{Kind: KindImage}.IconType())
	assert.Equal(t, "file", Icon{Kind: KindFile}.IconType())
}

func writeFile(t *testing.T, path string, data []byte, perm os.FileMode) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, perm))
	require.NoError(t, os.Chmod(path, perm))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("hello desktop\n"), 0o644)
	writeFile(t, filepath.Join(dir, "photo.png"), []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644)
	writeFile(t, filepath.Join(dir, "launcher"), []byte("#!/bin/sh\necho hi\n"), 0o755)
	writeFile(t, filepath.Join(dir, ".hidden"), []byte("x"), 0o644)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Projects"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "notes.txt"), filepath.Join(dir, "shortcut")))

	icons, err := NewScanner(dir, zaptest.NewLogger(t)).Scan(context.Background())
	require.NoError(t, err)

	names := make([]string, len(icons))
	for i, icon := range icons {
		names[i] = icon.Name
	}
	assert.Equal(t, []string{"Projects", "launcher", "notes.txt", "photo.png", "shortcut"}, names)

	byName := make(map[string]Icon, len(icons))
	for _, icon := range icons {
		byName[icon.Name] = icon
	}

	folder := byName["Projects"]
	assert.Equal(t, KindFolder, folder.Kind)
	assert.True(t, folder.IsDir)
	assert.Nil(t, folder.Size)
	assert.Equal(t, "inode/directory", folder.MimeType)

	notes := byName["notes.txt"]
	assert.Equal(t, KindDocument, notes.Kind)
	assert.Equal(t, filepath.Join(dir, "notes.txt"), notes.Path)
	require.NotNil(t, notes.Size)
	assert.Equal(t, uint64(14), *notes.Size)
	assert.Equal(t, "text/plain; charset=utf-8", notes.MimeType)

	assert.Equal(t, "image/png", byName["photo.png"].MimeType)
	assert.Equal(t, KindExecutable, byName["launcher"].Kind)

	link := byName["shortcut"]
	assert.Equal(t, KindSymlink, link.Kind)
	assert.Equal(t, "inode/symlink", link.MimeType)
	assert.False(t, link.IsDir)
}

func TestScanMissingDirectory(t *testing.T) {
	icons, err := NewScanner(filepath.Join(t.TempDir(), "nope"), nil).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, icons)
}

func TestScanCanceled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), []byte("a"), 0o644)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScanner(dir, nil).Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMetadata(t *testing.T) {
	size := uint64(42)
	icon := Icon{Path: "/d/report.pdf", Name: "report.pdf", Kind: KindDocument, MimeType: "application/pdf", Size: &size}

	meta := icon.Metadata(64)
	assert.Equal(t, "/d/report.pdf", meta.Path)
	assert.Equal(t, "report.pdf", meta.Name)
	assert.Equal(t, uint32(64), meta.Width)
	assert.Equal(t, uint32(64), meta.Height)
	assert.Equal(t, "application/pdf", meta.MimeType)
	assert.Equal(t, "file", meta.IconType)
	assert.Equal(t, &size, meta.Size)
	assert.False(t, meta.Selected)
}

func TestDiff(t *testing.T) {
	now := time.Now()
	one, two := uint64(1), uint64(2)

	before := []Icon{
		{Path: "/d/a", Kind: KindFile, Size: &one, ModTime: now},
		{Path: "/d/b", Kind: KindFile, Size: &one, ModTime: now},
		{Path: "/d/c", Kind: KindFolder, ModTime: now},
	}
	after := []Icon{
		{Path: "/d/a", Kind: KindFile, Size: &one, ModTime: now},
		{Path: "/d/b", Kind: KindFile, Size: &two, ModTime: now},
		{Path: "/d/d", Kind: KindFile, Size: &one, ModTime: now},
	}

	added, removed := Diff(before, after)
	assert.Equal(t, []string{"/d/b", "/d/d"}, paths(added))
	assert.Equal(t, []string{"/d/b", "/d/c"}, paths(removed))

	added, removed = Diff(after, after)
	assert.Empty(t, added)
	assert.Empty(t, removed)
}

func paths(icons []Icon) []string {
	out := make([]string, len(icons))
	for i, icon := range icons {
		out[i] = icon.Path
	}
	return out
}
