package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Spec describes how to launch the server.
type Spec struct {
	Executable string
	WorkDir    string
	Args       []string
	// Env is appended to the host environment.
	Env []string
}

// Process is a running child with its stdout and stderr merged.
type Process interface {
	Pid() int
	// Output yields merged stdout and stderr until the child and every
	// process sharing its output have exited.
	Output() io.Reader
	Stdin() io.WriteCloser
	// Kill terminates the child immediately.
	Kill() error
	// Wait reaps the child. It is called once, after Output reached EOF
	// and Stdin was closed.
	Wait() error
}

// Spawner starts processes.
type Spawner interface {
	Spawn(ctx context.Context, spec Spec) (Process, error)
}

// ExecSpawner starts real processes with os/exec.
type ExecSpawner struct{}

// Spawn starts spec with stdout and stderr sharing one pipe. The context
// only bounds the start itself; the child outlives it.
func (ExecSpawner) Spawn(ctx context.Context, spec Spec) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// exec.CommandContext would kill the child when ctx ends; the run is
	// ended by Stop or Kill instead.
	cmd := exec.Command(spec.Executable, spec.Args...) //nolint:gosec
	cmd.Dir = spec.WorkDir
	cmd.Env = append(os.Environ(), spec.Env...)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	stdin, err := cmd.StdinPipe()
	if err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		stdin.Close()
		return nil, fmt.Errorf("start %s: %w", spec.Executable, err)
	}

	// The child holds its own copy; ours must go for EOF to arrive.
	w.Close()

	return &execProcess{cmd: cmd, output: r, stdin: stdin}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	output *os.File
	stdin  io.WriteCloser
}

func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Output() io.Reader     { return p.output }
func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Kill() error           { return p.cmd.Process.Kill() }

func (p *execProcess) Wait() error {
	defer p.output.Close()
	return p.cmd.Wait()
}
