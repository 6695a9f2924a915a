package mcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
)

// Process is a running tool server as seen by the Supervisor: a writable
// stdin, readable stdout and stderr, and an exit notification.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader

	// Wait blocks until the process exits and returns its exit error.
	// It is called exactly once, by the Supervisor.
	Wait() error

	// Kill terminates the process immediately.
	Kill() error

	// Pid returns the OS process id, or 0 when there is none.
	Pid() int
}

// Spawner is the process spawn primitive. It is the only OS-level
// dependency of the Supervisor.
type Spawner interface {
	Spawn(ctx context.Context, name string, cfg ServerConfig) (Process, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(ctx context.Context, name string, cfg ServerConfig) (Process, error)

func (f SpawnerFunc) Spawn(ctx context.Context, name string, cfg ServerConfig) (Process, error) {
	return f(ctx, name, cfg)
}

// ExecSpawner launches tool servers with os/exec.
type ExecSpawner struct{}

var _ Spawner = ExecSpawner{}

// Spawn starts cfg.Command with the parent environment plus cfg.Env. The
// process is not tied to ctx: it lives until stopped or it exits.
func (ExecSpawner) Spawn(_ context.Context, _ string, cfg ServerConfig) (Process, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = mergeEnv(os.Environ(), cfg.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
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
func (p *execProcess) Wait() error           { return p.cmd.Wait() }
func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	if err == os.ErrProcessDone {
		return nil
	}
	return err
}

// mergeEnv appends extra to base in sorted key order so the resulting
// environment is deterministic.
func mergeEnv(base []string, extra map[string]string) []string {
	env := make([]string, 0, len(base)+len(extra))
	env = append(env, base...)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
