package sandbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExecutionResult is what one run of the isolated program produced.
type ExecutionResult struct {
	Status    Status
	ExitCode  int
	Stdout    string
	Stderr    string
	Duration  time.Duration
	Truncated bool
}

// Driver runs a staged workspace through an isolation provider under a hard
// wall-clock deadline.
type Driver struct {
	logger         *zap.Logger
	provider       Provider
	fs             FileSystem
	killGrace      time.Duration
	maxOutputBytes int64
}

// DriverOption defines a functional option for Driver
type DriverOption func(*Driver)

// WithDriverFileSystem sets the FileSystem outputs are read back through
func WithDriverFileSystem(fs FileSystem) DriverOption {
	return func(d *Driver) {
		d.fs = fs
	}
}

// WithKillGrace sets how long a killed process may take to report its exit
func WithKillGrace(grace time.Duration) DriverOption {
	return func(d *Driver) {
		d.killGrace = grace
	}
}

// WithMaxOutputBytes caps how much of each output file is read back
func WithMaxOutputBytes(limit int64) DriverOption {
	return func(d *Driver) {
		d.maxOutputBytes = limit
	}
}

const (
	defaultKillGrace      = 5 * time.Second
	defaultMaxOutputBytes = 1024 * BytesPerKB
	timedOutMessage       = "execution timed out after %ds"
)

// NewDriver creates a Driver for provider
func NewDriver(logger *zap.Logger, provider Provider, opts ...DriverOption) *Driver {
	d := &Driver{
		logger:         logger,
		provider:       provider,
		fs:             &RealFileSystem{},
		killGrace:      defaultKillGrace,
		maxOutputBytes: defaultMaxOutputBytes,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

type waitResult struct {
	exitCode int
	err      error
}

type launchOutcome struct {
	exitCode int
	timedOut bool
	// exited is false only when a killed process never reported its exit.
	exited bool
}

// Run executes the workspace program. Compiled languages are built first in
// the same image and workspace; both steps share one deadline measured from
// the first launch. The returned error is non-nil only with StatusIOError.
func (d *Driver) Run(ctx context.Context, ws *Workspace, timeoutSeconds uint8) (ExecutionResult, error) {
	c := ws.Compiler
	start := time.Now()
	runCtx, cancel := context.WithDeadline(ctx, start.Add(time.Duration(timeoutSeconds)*time.Second))
	defer cancel()

	if !c.IsInterpreter {
		argv, err := c.CompileCommand()
		if err != nil {
			return d.ioFailure(start, fmt.Errorf("%w: compile command: %w", ErrIO, err))
		}
		outcome, err := d.launch(runCtx, ws, "compile", argv, false, timeoutSeconds)
		if err != nil {
			return d.ioFailure(start, err)
		}
		if outcome.timedOut {
			return d.timedOut(ws, start, outcome, timeoutSeconds), nil
		}
		if outcome.exitCode != 0 {
			res := ExecutionResult{
				Status:   StatusCompileError,
				ExitCode: outcome.exitCode,
				Duration: time.Since(start),
			}
			if err := d.collect(ws, &res); err != nil {
				return d.ioFailure(start, err)
			}
			return res, nil
		}
	}

	argv, err := c.RunCommand()
	if err != nil {
		return d.ioFailure(start, fmt.Errorf("%w: run command: %w", ErrIO, err))
	}
	outcome, err := d.launch(runCtx, ws, "run", argv, ws.HasStdin, timeoutSeconds)
	if err != nil {
		return d.ioFailure(start, err)
	}
	if outcome.timedOut {
		return d.timedOut(ws, start, outcome, timeoutSeconds), nil
	}

	res := ExecutionResult{
		Status:   StatusSucceeded,
		ExitCode: outcome.exitCode,
		Duration: time.Since(start),
	}
	if outcome.exitCode != 0 {
		res.Status = StatusRuntimeError
	}
	if err := d.collect(ws, &res); err != nil {
		return d.ioFailure(start, err)
	}
	return res, nil
}

// launch starts one program and races its exit against ctx. There is no
// polling: a goroutine blocks in Wait while the caller selects on both.
func (d *Driver) launch(ctx context.Context, ws *Workspace, phase string, argv []string, withStdin bool, timeoutSeconds uint8) (launchOutcome, error) {
	if ctx.Err() != nil {
		return launchOutcome{exitCode: -1, timedOut: true, exited: true}, nil
	}
	deadline, _ := ctx.Deadline()

	c := ws.Compiler
	inv := Invocation{
		Name:           fmt.Sprintf("coderunner-%s-%s", phase, uuid.NewString()),
		Image:          c.ImageName,
		Workspace:      ws.Path,
		Argv:           argv,
		StdoutFile:     c.StdoutFileName,
		StderrFile:     c.StderrFileName,
		TimeoutSeconds: timeoutSeconds,
		Env:            c.Environment,
	}
	if withStdin {
		inv.StdinFile = c.StdinFileName()
	}

	proc, err := d.provider.Start(ctx, inv)
	if err != nil {
		return launchOutcome{}, fmt.Errorf("%w: start %s: %w", ErrIO, phase, err)
	}

	done := make(chan waitResult, 1)
	go func() {
		code, err := proc.Wait()
		done <- waitResult{exitCode: code, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return launchOutcome{}, fmt.Errorf("%w: wait for %s: %w", ErrIO, phase, res.err)
		}
		// An exit at or after the deadline is still a timeout.
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return launchOutcome{exitCode: res.exitCode, timedOut: true, exited: true}, nil
		}
		return launchOutcome{exitCode: res.exitCode, exited: true}, nil
	case <-ctx.Done():
		d.logger.Info("deadline reached, killing isolated process",
			zap.String("name", inv.Name),
			zap.String("phase", phase),
			zap.Error(ctx.Err()))
		exited := d.terminate(proc, inv.Name, done)
		return launchOutcome{exitCode: -1, timedOut: true, exited: exited}, nil
	}
}

// terminate kills proc and waits up to killGrace for Wait to return.
func (d *Driver) terminate(proc Process, name string, done <-chan waitResult) bool {
	if err := proc.Kill(); err != nil {
		d.logger.Warn("failed to kill isolated process", zap.String("name", name), zap.Error(err))
	}

	timer := time.NewTimer(d.killGrace)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		d.logger.Error("isolated process did not exit after kill",
			zap.String("name", name),
			zap.Duration("grace", d.killGrace))
		return false
	}
}

func (d *Driver) timedOut(ws *Workspace, start time.Time, outcome launchOutcome, timeoutSeconds uint8) ExecutionResult {
	res := ExecutionResult{
		Status:   StatusTimedOut,
		ExitCode: -1,
		Duration: time.Since(start),
	}
	// Partial output is only safe to read once nothing can still write it.
	if outcome.exited {
		if err := d.collect(ws, &res); err != nil {
			d.logger.Debug("no partial output after timeout", zap.String("path", ws.Path), zap.Error(err))
		}
	}
	if res.Stderr != "" && res.Stderr[len(res.Stderr)-1] != '\n' {
		res.Stderr += "\n"
	}
	res.Stderr += fmt.Sprintf(timedOutMessage, timeoutSeconds)
	return res
}

func (d *Driver) ioFailure(start time.Time, err error) (ExecutionResult, error) {
	return ExecutionResult{
		Status:   StatusIOError,
		ExitCode: -1,
		Stderr:   err.Error(),
		Duration: time.Since(start),
	}, err
}

// collect reads stdout and stderr back from the workspace files.
func (d *Driver) collect(ws *Workspace, res *ExecutionResult) error {
	stdout, truncOut, err := d.readOutput(ws.File(ws.Compiler.StdoutFileName))
	if err != nil {
		return fmt.Errorf("%w: read stdout: %w", ErrIO, err)
	}
	stderr, truncErr, err := d.readOutput(ws.File(ws.Compiler.StderrFileName))
	if err != nil {
		return fmt.Errorf("%w: read stderr: %w", ErrIO, err)
	}
	res.Stdout = stdout
	res.Stderr = stderr
	res.Truncated = truncOut || truncErr
	return nil
}

func (d *Driver) readOutput(path string) (string, bool, error) {
	f, err := d.fs.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, d.maxOutputBytes+1))
	if err != nil {
		return "", false, err
	}
	if int64(len(data)) > d.maxOutputBytes {
		return string(data[:d.maxOutputBytes]), true, nil
	}
	return string(data), false, nil
}
