// Package sandbox executes untrusted generated code in a short-lived
// interpreter subprocess under a wall-clock timeout.
package sandbox

import (
	"context"
	"errors"
	"time"
)

// Result captures one execution of generated code. Stdout and Stderr are
// the captured streams, verbatim, on every outcome.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	// Err is the failure text fed back into the next generation attempt.
	// Empty on success.
	Err      string
	Duration time.Duration
}

// Success reports whether the process exited cleanly. Warnings on stderr
// do not fail a zero-exit run.
func (r Result) Success() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// Runner abstracts code execution so the attempt loop can be tested with
// fakes. Runtime failures of the executed code come back as a failed
// Result with a nil error; a non-nil error means execution could not start
// at all.
type Runner interface {
	Run(ctx context.Context, code string) (Result, error)
}

// ErrSetup marks infrastructure failures that prevented execution from
// starting, e.g. scratch storage or the interpreter being unavailable.
var ErrSetup = errors.New("sandbox setup failed")
