package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// DefaultTimeout bounds one execution when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Interpreter runs code by persisting it to a uniquely named scratch file
// and invoking an external interpreter on it. The scratch file is removed
// on every exit path. Instances are stateless across runs, so concurrent
// tasks can share one.
type Interpreter struct {
	// Command is the interpreter argv prefix; the code file path is
	// appended, e.g. ["python3"] -> python3 /tmp/rexec-123.py.
	Command []string
	Timeout time.Duration
	// Dir is the scratch directory for code files. Empty means the
	// system temp dir.
	Dir string
}

func NewInterpreter(command []string, timeout time.Duration, dir string) *Interpreter {
	if len(command) == 0 {
		command = []string{"python3"}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Interpreter{Command: command, Timeout: timeout, Dir: dir}
}

func (it *Interpreter) Run(ctx context.Context, code string) (Result, error) {
	dir := it.Dir
	if dir == "" {
		dir = os.TempDir()
	}

	f, err := os.CreateTemp(dir, "rexec-*.py")
	if err != nil {
		return Result{}, fmt.Errorf("%w: create scratch file: %v", ErrSetup, err)
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()

	if _, err := f.WriteString(code); err != nil {
		_ = f.Close()
		return Result{}, fmt.Errorf("%w: write scratch file: %v", ErrSetup, err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("%w: close scratch file: %v", ErrSetup, err)
	}

	timeout := it.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := append(append([]string{}, it.Command...), path)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	// No shared interactive input.
	cmd.Stdin = nil
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Don't linger on inherited pipes once the deadline kills the child.
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runErr == nil {
		return res, nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		res.Err = fmt.Sprintf("execution timed out after %v", timeout)
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		res.Err = res.Stderr
		if res.Err == "" {
			res.Err = runErr.Error()
		}
		return res, nil
	}
	// The interpreter never started.
	return Result{}, fmt.Errorf("%w: %v", ErrSetup, runErr)
}
