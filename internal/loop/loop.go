// Package loop drives the bounded generate-execute-repair cycle for one
// task: obtain code from the generator, run it in the sandbox, and on
// failure feed the error back into the next generation request until the
// attempt budget is spent.
package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/throw-if-null/rexec/internal/gen"
	"github.com/throw-if-null/rexec/internal/observability"
	"github.com/throw-if-null/rexec/internal/sandbox"
)

const (
	DefaultMaxAttempts = 5
	// AttemptCap bounds what any caller may request.
	AttemptCap = 20
)

var (
	ErrEmptyTask   = errors.New("task description must not be empty")
	ErrBadAttempts = errors.New("max attempts out of range")
)

// Task is one user-submitted prompt plus its attempt budget. Immutable for
// the duration of a run.
type Task struct {
	Description string
	MaxAttempts int
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyTask
	}
	if t.MaxAttempts < 1 || t.MaxAttempts > AttemptCap {
		return fmt.Errorf("%w: %d", ErrBadAttempts, t.MaxAttempts)
	}
	return nil
}

// Report is the terminal result of a run. Attempts is always between 1 and
// the task's budget; on success it names the attempt that succeeded, on
// failure the final attempt.
type Report struct {
	Success  bool
	Code     string
	Output   string
	Error    string
	Attempts int
	// Elapsed is wall-clock seconds from loop entry to terminal state.
	Elapsed float64
}

type state int

const (
	statePending state = iota
	stateGenerating
	stateExecuting
	stateSucceeded
	stateRetrying
	stateExhausted
)

// cursor carries the mutable loop state between transitions.
type cursor struct {
	state      state
	index      int // 1-based attempt ordinal
	code       string
	priorError string
	output     string
	errText    string
}

func (c *cursor) terminal() bool {
	return c.state == stateSucceeded || c.state == stateExhausted
}

// Loop ties a Generator and a Runner into one bounded cycle. A Loop holds
// no per-task state, so independent tasks may run through the same Loop
// concurrently.
type Loop struct {
	gen    gen.Generator
	runner sandbox.Runner
}

func New(g gen.Generator, r sandbox.Runner) *Loop {
	return &Loop{gen: g, runner: r}
}

// Run executes the task to completion and returns its report. The error is
// non-nil only for an invalid task; every runtime failure folds into a
// well-formed Report with Success=false.
func (l *Loop) Run(ctx context.Context, t Task) (Report, error) {
	if err := t.Validate(); err != nil {
		return Report{}, err
	}

	tr := otel.Tracer("rexec")
	ctx, span := tr.Start(
		ctx,
		"rexec.task",
		trace.WithAttributes(attribute.Int("task.max_attempts", t.MaxAttempts)),
	)
	defer span.End()
	span.AddEvent("task.started")

	start := time.Now()
	c := cursor{state: statePending, index: 1}
	for !c.terminal() {
		l.step(ctx, t, &c)
	}
	elapsed := time.Since(start)
	observability.RunDuration.Observe(elapsed.Seconds())

	rep := Report{
		Success:  c.state == stateSucceeded,
		Code:     c.code,
		Output:   c.output,
		Error:    c.errText,
		Attempts: c.index,
		Elapsed:  elapsed.Seconds(),
	}
	if rep.Success {
		observability.RunsTotal.WithLabelValues("succeeded").Inc()
		span.AddEvent("task.succeeded")
		span.SetStatus(codes.Ok, "")
	} else {
		observability.RunsTotal.WithLabelValues("exhausted").Inc()
		span.AddEvent("task.exhausted")
		span.SetStatus(codes.Error, rep.Error)
	}
	span.SetAttributes(attribute.Int("task.attempts", rep.Attempts))
	return rep, nil
}

// step applies exactly one state transition. Keeping every transition in
// one place makes the at-most-one-success and at-most-N-attempts
// invariants visible and testable.
func (l *Loop) step(ctx context.Context, t Task, c *cursor) {
	switch c.state {
	case statePending, stateRetrying:
		c.state = stateGenerating
	case stateGenerating:
		l.generate(ctx, t, c)
	case stateExecuting:
		l.execute(ctx, t, c)
	}
}

func (l *Loop) generate(ctx context.Context, t Task, c *cursor) {
	p := gen.Prompt{Task: t.Description}
	if c.index > 1 {
		p.PriorCode = c.code
		p.PriorError = c.priorError
	}

	genStart := time.Now()
	code, err := l.gen.Generate(ctx, p)
	observability.GenerationLatency.Observe(time.Since(genStart).Seconds())
	if err != nil {
		// A generation failure is not worth retrying against the same
		// model; the run ends here with the failure named in the report.
		c.errText = fmt.Sprintf("code generation failed: %v", err)
		c.output = ""
		c.state = stateExhausted
		observability.AttemptsTotal.WithLabelValues("generation_error").Inc()
		return
	}
	c.code = code
	c.state = stateExecuting
}

func (l *Loop) execute(ctx context.Context, t Task, c *cursor) {
	tr := otel.Tracer("rexec")
	_, span := tr.Start(ctx, "rexec.attempt", trace.WithAttributes(attribute.Int("attempt.index", c.index)))
	defer span.End()
	span.AddEvent("attempt.started")

	res, err := l.runner.Run(ctx, c.code)
	if err != nil {
		// Execution never started; regenerating cannot fix an environment
		// problem, so the run ends here.
		c.errText = fmt.Sprintf("sandbox unavailable: %v", err)
		c.state = stateExhausted
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.AttemptsTotal.WithLabelValues("sandbox_error").Inc()
		return
	}

	if res.Success() {
		c.output = res.Stdout
		c.errText = ""
		c.state = stateSucceeded
		span.AddEvent("attempt.completed")
		span.SetStatus(codes.Ok, "")
		observability.AttemptsTotal.WithLabelValues("succeeded").Inc()
		return
	}

	outcome := "failed"
	if res.TimedOut {
		outcome = "timeout"
	}
	observability.AttemptsTotal.WithLabelValues(outcome).Inc()
	span.AddEvent("attempt.failed")
	span.SetStatus(codes.Error, res.Err)

	c.priorError = res.Err
	c.output = res.Stdout
	c.errText = res.Err
	if c.index >= t.MaxAttempts {
		c.state = stateExhausted
		return
	}
	c.index++
	c.state = stateRetrying
}
