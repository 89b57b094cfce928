package desktop

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const (
	mimeDirectory = "inode/directory"
	mimeSymlink   = "inode/symlink"
	mimeUnknown   = "application/octet-stream"
)

// Scanner lists the icons of one desktop directory.
type Scanner struct {
	dir    string
	logger *zap.Logger
}

// NewScanner creates a scanner for dir.
func NewScanner(dir string, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{dir: dir, logger: logger}
}

// Dir returns the scanned directory.
func (s *Scanner) Dir() string {
	return s.dir
}

// Scan returns the non-hidden entries of the directory sorted by name. A
// missing directory yields no icons. Entries that vanish or cannot be
// inspected mid-scan are skipped.
func (s *Scanner) Scan(ctx context.Context) ([]Icon, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Desktop directory does not exist", zap.String("dir", s.dir))
			return nil, nil
		}
		return nil, fmt.Errorf("read desktop directory: %w", err)
	}

	icons := make([]Icon, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		icon, err := Inspect(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Debug("Skipping desktop entry", zap.String("name", entry.Name()), zap.Error(err))
			continue
		}
		icons = append(icons, icon)
	}

	sort.Slice(icons, func(i, j int) bool { return icons[i].Name < icons[j].Name })
	s.logger.Debug("Scanned desktop", zap.String("dir", s.dir), zap.Int("icons", len(icons)))
	return icons, nil
}

// Inspect builds the icon for a single path without following symlinks.
func Inspect(path string) (Icon, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Icon{}, err
	}

	icon := Icon{
		Path:    path,
		Name:    filepath.Base(path),
		Kind:    DetectKind(info.Name(), info.Mode()),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
	}

	switch {
	case icon.Kind == KindSymlink:
		icon.MimeType = mimeSymlink
	case icon.IsDir:
		icon.MimeType = mimeDirectory
	default:
		size := uint64(info.Size())
		icon.Size = &size
		icon.MimeType = detectMime(path)
	}
	return icon, nil
}

func detectMime(path string) string {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return mimeUnknown
	}
	return mtype.String()
}

// Diff compares two scans by path. An icon whose kind, size or modification
// time changed appears in both removed and added.
func Diff(before, after []Icon) (added, removed []Icon) {
	old := make(map[string]Icon, len(before))
	for _, icon := range before {
		old[icon.Path] = icon
	}

	seen := make(map[string]bool, len(after))
	for _, icon := range after {
		seen[icon.Path] = true
		prev, ok := old[icon.Path]
		switch {
		case !ok:
			added = append(added, icon)
		case changed(prev, icon):
			removed = append(removed, prev)
			added = append(added, icon)
		}
	}

	for _, icon := range before {
		if !seen[icon.Path] {
			removed = append(removed, icon)
		}
	}
	return added, removed
}

func changed(a, b Icon) bool {
	if a.Kind != b.Kind || !a.ModTime.Equal(b.ModTime) {
		return true
	}
	if (a.Size == nil) != (b.Size == nil) {
		return true
	}
	return a.Size != nil && *a.Size != *b.Size
}
