package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// Result is the captured outcome of one process run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner starts a process and waits for it. Implementations must stop the
// process when ctx is done.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for pipes after the process was
	// killed.
	WaitDelay time.Duration
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 2 * time.Second
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, err
	}
	return res, nil
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string, args ...string) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return f(ctx, name, args...)
}
