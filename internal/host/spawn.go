package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Process is a running sandbox. Stdin and Stdout carry frames.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	// Stderr may be nil.
	Stderr() io.Reader
	Kill() error
	Wait() error
	Pid() int
}

// Spawner starts sandbox processes.
type Spawner interface {
	Spawn(ctx context.Context) (Process, error)
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(ctx context.Context) (Process, error)

func (f SpawnerFunc) Spawn(ctx context.Context) (Process, error) { return f(ctx) }

// ExecSpawner runs Argv as a child process, typically the isolation
// wrapper around the glyphbox binary.
type ExecSpawner struct {
	Argv []string
	// Env is the child's environment; nil inherits the host's.
	Env []string
}

// Spawn starts the child. The context only bounds the start; the process
// outlives it and is ended with Kill.
func (s ExecSpawner) Spawn(ctx context.Context) (Process, error) {
	if len(s.Argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrSpawn)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	cmd := exec.Command(s.Argv[0], s.Argv[1:]...)
	cmd.Env = s.Env
	configureProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, s.Argv[0], err)
	}

	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Stderr() io.Reader     { return p.stderr }
func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }

func (p *execProcess) Kill() error {
	err := killProcessGroup(p.cmd)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}
