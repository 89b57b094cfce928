// Package scripts indexes widget script directories and picks the script
// for each icon.
package scripts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"
)

// Pattern selects script files relative to a script directory.
const Pattern = "**/*.js"

// DefaultName is tried after every type-specific name.
const DefaultName = "default"

const customPrefix = "custom:"

// Script is one indexed file.
type Script struct {
	// Name is the slash-separated path relative to Dir.
	Name string `json:"name"`
	Path string `json:"path"`
	Dir  string `json:"dir"`
	// Shadowed is set when an earlier directory has a script of the same name.
	Shadowed bool `json:"shadowed,omitempty"`
}

// Catalog is an immutable index of script directories. Earlier directories
// take precedence over later ones.
type Catalog struct {
	dirs    []string
	scripts []Script
	byName  map[string]string
}

// Index walks dirs in order. Missing directories are skipped.
func Index(ctx context.Context, dirs []string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{
		dirs:   append([]string(nil), dirs...),
		byName: make(map[string]string),
	}

	for _, dir := range dirs {
		found, err := walkDir(ctx, dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Debug("Script directory missing", zap.String("dir", dir))
				continue
			}
			return nil, err
		}

		for _, s := range found {
			if _, ok := c.byName[s.Name]; ok {
				s.Shadowed = true
			} else {
				c.byName[s.Name] = s.Path
			}
			c.scripts = append(c.scripts, s)
		}
	}

	logger.Debug("Indexed scripts",
		zap.Strings("dirs", dirs),
		zap.Int("scripts", len(c.scripts)),
		zap.Int("names", len(c.byName)))
	return c, nil
}

func walkDir(ctx context.Context, dir string) ([]Script, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		found []Script
	)
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, dir, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil || d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return nil
		}
		name := filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(Pattern, name); !ok {
			return nil
		}

		mu.Lock()
		found = append(found, Script{Name: name, Path: p, Dir: dir})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

// Dirs returns the indexed directories in precedence order.
func (c *Catalog) Dirs() []string {
	return append([]string(nil), c.dirs...)
}

// Scripts returns every indexed script, grouped by directory in
// precedence order and sorted by name within a directory.
func (c *Catalog) Scripts() []Script {
	return append([]Script(nil), c.scripts...)
}

// Lookup returns the path of the first script named name, for example
// "directory.js" or "themes/neon.js".
func (c *Catalog) Lookup(name string) (string, bool) {
	path, ok := c.byName[name]
	return path, ok
}

// Resolve picks the script for an icon: the icon type (or the name after
// "custom:"), then the kind, then the default script. It returns "" when
// none exists.
func (c *Catalog) Resolve(iconType, kind string) string {
	for _, name := range Candidates(iconType, kind) {
		if path, ok := c.Lookup(name + ".js"); ok {
			return path
		}
	}
	return ""
}

// Candidates lists the script names Resolve tries, without extension.
func Candidates(iconType, kind string) []string {
	var names []string
	add := func(name string) {
		name = strings.Trim(name, "/")
		if name == "" {
			return
		}
		for _, n := range names {
			if n == name {
				return
			}
		}
		names = append(names, name)
	}

	if custom, ok := strings.CutPrefix(iconType, customPrefix); ok {
		add(custom)
	} else {
		add(iconType)
	}
	add(kind)
	add(DefaultName)
	return names
}
