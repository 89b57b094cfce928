// Package isolation builds the bubblewrap command line that confines a
// sandbox runtime process.
package isolation

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultBwrap is the bubblewrap executable looked up on PATH.
const DefaultBwrap = "bwrap"

// Options describes what the confined process may see.
type Options struct {
	Enabled        bool
	AllowNetwork   bool
	BwrapPath      string
	ReadOnlyPaths  []string
	ReadWritePaths []string
	// ScriptDirs are bound read-only so the runtime can load widget scripts.
	ScriptDirs []string
	WorkDir    string
	// Env is set inside the sandbox after the environment is cleared.
	Env map[string]string
}

// Builder turns Options into argv.
type Builder struct {
	opts  Options
	lstat func(string) (fs.FileInfo, error)
}

// NewBuilder creates a builder that probes the real filesystem.
func NewBuilder(opts Options) *Builder {
	if opts.BwrapPath == "" {
		opts.BwrapPath = DefaultBwrap
	}
	return &Builder{opts: opts, lstat: os.Lstat}
}

// Command returns the argv that runs program with args. With isolation
// disabled the program is run directly.
func (b *Builder) Command(program string, args ...string) []string {
	if !b.opts.Enabled {
		return append([]string{program}, args...)
	}

	argv := []string{b.opts.BwrapPath, "--die-with-parent", "--new-session"}

	if b.opts.AllowNetwork {
		argv = append(argv, "--unshare-user", "--unshare-pid", "--unshare-uts", "--unshare-cgroup")
	} else {
		argv = append(argv, "--unshare-all")
	}

	argv = append(argv, "--ro-bind", "/usr", "/usr")
	argv = b.appendLibDir(argv, "/lib", "usr/lib")
	argv = b.appendLibDir(argv, "/lib64", "usr/lib64")
	argv = append(argv,
		"--symlink", "usr/bin", "/bin",
		"--symlink", "usr/sbin", "/sbin",
		"--proc", "/proc",
		"--dev", "/dev",
		"--tmpfs", "/tmp",
		"--tmpfs", "/run",
		"--tmpfs", "/home",
	)

	// The runtime binary usually lives outside /usr (GOBIN, /opt).
	if abs, err := filepath.Abs(program); err == nil && !strings.HasPrefix(abs, "/usr/") && b.exists(abs) {
		argv = append(argv, "--ro-bind", abs, abs)
	}

	for _, p := range b.opts.ReadOnlyPaths {
		if b.exists(p) {
			argv = append(argv, "--ro-bind", p, p)
		}
	}
	for _, p := range b.opts.ReadWritePaths {
		if b.exists(p) {
			argv = append(argv, "--bind", p, p)
		}
	}
	for _, p := range b.opts.ScriptDirs {
		if b.exists(p) {
			argv = append(argv, "--ro-bind", p, p)
		}
	}

	if b.opts.WorkDir != "" {
		argv = append(argv, "--chdir", b.opts.WorkDir)
	}

	argv = append(argv,
		"--clearenv",
		"--setenv", "PATH", "/usr/bin:/bin",
		"--setenv", "HOME", "/tmp",
		"--setenv", "LANG", "C.UTF-8",
	)

	keys := make([]string, 0, len(b.opts.Env))
	for k := range b.opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		argv = append(argv, "--setenv", k, b.opts.Env[k])
	}

	argv = append(argv, "--", program)
	return append(argv, args...)
}

// appendLibDir mirrors merged-/usr layouts as symlinks and binds split ones.
func (b *Builder) appendLibDir(argv []string, dir, target string) []string {
	info, err := b.lstat(dir)
	switch {
	case err != nil:
		return argv
	case info.Mode()&fs.ModeSymlink != 0:
		return append(argv, "--symlink", target, dir)
	default:
		return append(argv, "--ro-bind", dir, dir)
	}
}

func (b *Builder) exists(p string) bool {
	_, err := b.lstat(p)
	return err == nil
}

// Available reports whether bwrap can be executed.
func Available(ctx context.Context, bwrapPath string) error {
	if bwrapPath == "" {
		bwrapPath = DefaultBwrap
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, bwrapPath, "--version").CombinedOutput()
	if err != nil {
		return errors.Join(errors.New("bubblewrap unavailable"), err)
	}
	if !strings.Contains(strings.ToLower(string(out)), "bubblewrap") {
		return errors.New("bubblewrap unavailable: unexpected --version output")
	}
	return nil
}
