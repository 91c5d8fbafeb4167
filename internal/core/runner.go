package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Runner is an interface for running external commands to completion,
// allowing for testing with mocks. Each call blocks until the subprocess
// exits; no timeout is enforced at this layer.
type Runner interface {
	Run(ctx context.Context, name string, arg ...string) (*RunResult, error)
}

// RunResult represents the result of a completed command.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Combined returns stdout and stderr joined, for output classification
// and error messages.
func (r *RunResult) Combined() string {
	if r.Stdout == "" {
		return r.Stderr
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}

// ExecRunner implements Runner using exec.CommandContext.
type ExecRunner struct {
	clock clockwork.Clock
}

// NewExecRunner creates a new command runner with a real clock.
func NewExecRunner() *ExecRunner {
	return NewExecRunnerWithClock(clockwork.NewRealClock())
}

// NewExecRunnerWithClock creates a new command runner with a custom clock.
// This is useful for testing with a fake clock.
func NewExecRunnerWithClock(clock clockwork.Clock) *ExecRunner {
	return &ExecRunner{clock: clock}
}

// Run executes the command and captures its output. A nonzero exit status is
// not an error: the exit code in the result is the caller's success signal.
// An error is returned only when the process could not be run at all.
func (r *ExecRunner) Run(ctx context.Context, name string, arg ...string) (*RunResult, error) {
	started := r.clock.Now()

	cmd := exec.CommandContext(ctx, name, arg...)

	stdout, errStdoutPipe := cmd.StdoutPipe()
	if errStdoutPipe != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", errStdoutPipe)
	}

	stderr, errStderrPipe := cmd.StderrPipe()
	if errStderrPipe != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", errStderrPipe)
	}

	if errStart := cmd.Start(); errStart != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, errStart)
	}

	var stdoutBuf, stderrBuf strings.Builder
	done := make(chan error, 2)

	go func() {
		_, copyErr := io.Copy(&stdoutBuf, stdout)
		done <- copyErr
	}()

	go func() {
		_, copyErr := io.Copy(&stderrBuf, stderr)
		done <- copyErr
	}()

	<-done
	<-done

	errWait := cmd.Wait()

	result := &RunResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: 0,
		Duration: r.clock.Since(started),
	}

	if errWait != nil {
		var exitError *exec.ExitError
		if !errors.As(errWait, &exitError) {
			return result, fmt.Errorf("failed to run %s: %w", name, errWait)
		}
		result.ExitCode = exitError.ExitCode()
	}

	zap.L().Debug("Command finished",
		zap.String("command", name),
		zap.Strings("args", arg),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// Interface guard
var _ Runner = &ExecRunner{}

// MockRunner is a mock implementation of Runner for testing.
// It records every invocation and can be scripted per call.
type MockRunner struct {
	Calls   [][]string
	Result  *RunResult
	Err     error
	RunFunc func(name string, arg ...string) (*RunResult, error)
}

// Run records the call and returns the scripted response.
func (m *MockRunner) Run(_ context.Context, name string, arg ...string) (*RunResult, error) {
	m.Calls = append(m.Calls, append([]string{name}, arg...))
	if m.RunFunc != nil {
		return m.RunFunc(name, arg...)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &RunResult{ExitCode: 0}, nil
}

// Interface guard
var _ Runner = &MockRunner{}
