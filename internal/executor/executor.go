// Package executor invokes the external coding agent process and
// captures its output. The hard timeout lives here; the caller gets a
// distinguishable failure reason for spawn, timeout and kill.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// FailReason distinguishes the ways an invocation can fail outright.
// A non-zero exit code is not a failure; it is reported on the Result.
type FailReason string

const (
	FailSpawn   FailReason = "spawn"
	FailTimeout FailReason = "timeout"
	FailKilled  FailReason = "killed"
)

// InvokeError is returned when the agent process could not produce a
// usable result
type InvokeError struct {
	Reason FailReason
	Err    error
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("agent %s: %v", e.Reason, e.Err)
}

func (e *InvokeError) Unwrap() error { return e.Err }

// Invocation describes one agent call
type Invocation struct {
	Prompt        string
	Model         string
	Timeout       time.Duration
	Iteration     int
	MaxIterations int
}

// Result is the captured outcome of one agent call
type Result struct {
	Output   string
	ExitCode int
	Duration time.Duration
}

// Agent is the process-invocation collaborator consumed by the runner
type Agent interface {
	Execute(ctx context.Context, inv Invocation) (Result, error)
}

// ClaudeExecutor runs the claude CLI in headless mode
type ClaudeExecutor struct {
	Binary string // defaults to "claude"
	Dir    string // working directory for the agent
	logger *zap.Logger
}

// NewClaudeExecutor creates an executor for the claude CLI
func NewClaudeExecutor(binary, dir string, logger *zap.Logger) *ClaudeExecutor {
	if binary == "" {
		binary = "claude"
	}
	return &ClaudeExecutor{Binary: binary, Dir: dir, logger: logger}
}

// Execute runs one agent invocation. Non-zero exits come back as a
// Result with the exit code set; spawn failures, timeouts and kills
// come back as an *InvokeError.
func (e *ClaudeExecutor) Execute(ctx context.Context, inv Invocation) (Result, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	args := []string{
		"--print",
		"--dangerously-skip-permissions",
		"--output-format", "text",
	}
	if inv.Model != "" {
		args = append(args, "--model", inv.Model)
	}
	args = append(args, "-p", inv.Prompt)

	cmd := exec.CommandContext(ctx, e.Binary, args...)
	cmd.Dir = e.Dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	e.logger.Debug("invoking agent",
		zap.String("binary", e.Binary),
		zap.Int("iteration", inv.Iteration),
		zap.Int("max_iterations", inv.MaxIterations),
	)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err == nil {
		return Result{Output: buf.String(), ExitCode: 0, Duration: elapsed}, nil
	}

	// The context expiring means the process was killed by our own
	// deadline, regardless of how cmd reported it.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{}, &InvokeError{Reason: FailTimeout, Err: fmt.Errorf("timed out after %s", elapsed.Round(time.Second))}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return Result{}, &InvokeError{Reason: FailKilled, Err: ctx.Err()}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return Result{}, &InvokeError{Reason: FailKilled, Err: fmt.Errorf("killed by signal %s", ws.Signal())}
		}
		// Non-zero exit is advisory; the agent may recover next
		// iteration.
		return Result{Output: buf.String(), ExitCode: exitErr.ExitCode(), Duration: elapsed}, nil
	}

	return Result{}, &InvokeError{Reason: FailSpawn, Err: err}
}
