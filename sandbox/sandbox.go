package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/compiler"
)

// State is a step of the sandbox lifecycle.
type State int

const (
	StateCreated State = iota
	StatePrepared
	StateRunning
	StateCompleted
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePrepared:
		return "prepared"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// Sandbox executes exactly one request:
//
//	Created --Prepare--> Prepared --Run--> Running --> Completed | Failed | TimedOut
//
// A Sandbox is owned by a single goroutine and is not reusable.
type Sandbox struct {
	logger     *zap.Logger
	request    Request
	compiler   compiler.LanguageCompiler
	workspaces *WorkspaceManager
	driver     *Driver

	state      State
	workspace  *Workspace
	testResult TestResult

	cleanupOnce sync.Once
	cleanupErr  error
}

// New creates a Sandbox in the Created state.
func New(logger *zap.Logger, req Request, c compiler.LanguageCompiler, workspaces *WorkspaceManager, driver *Driver) *Sandbox {
	return &Sandbox{
		logger: logger.With(
			zap.String("sandbox_id", req.ID),
			zap.String("language", c.Language)),
		request:    req,
		compiler:   c,
		workspaces: workspaces,
		driver:     driver,
		state:      StateCreated,
		testResult: TestNotRun,
	}
}

// State returns the current lifecycle state.
func (s *Sandbox) State() State {
	return s.state
}

// TestResult returns the verdict of the attached test, TestNotRun until Run
// has finished.
func (s *Sandbox) TestResult() TestResult {
	return s.testResult
}

// Prepare validates the request and stages its workspace. Any failure moves
// the sandbox to Failed and removes whatever was written.
func (s *Sandbox) Prepare() error {
	switch {
	case s.state.Terminal():
		return fmt.Errorf("prepare: %w (%s)", ErrAlreadyTerminal, s.state)
	case s.state != StateCreated:
		return fmt.Errorf("prepare: %w (%s)", ErrAlreadyPrepared, s.state)
	}

	if err := s.request.validate(); err != nil {
		s.finish(StateFailed)
		return err
	}

	ws, err := s.workspaces.Reserve(s.request.WorkspacePath, s.compiler)
	if err != nil {
		s.finish(StateFailed)
		return err
	}
	s.workspace = ws

	if err := s.workspaces.Stage(ws, &s.request); err != nil {
		s.logger.Error("failed to stage workspace", zap.String("path", ws.Path), zap.Error(err))
		s.finish(StateFailed)
		return err
	}

	s.transition(StatePrepared)
	return nil
}

// Run executes the prepared workspace, scores the attached test and removes
// the workspace. The error is non-nil for lifecycle misuse and io failures.
func (s *Sandbox) Run(ctx context.Context) (Response, error) {
	switch {
	case s.state.Terminal():
		return Response{ID: s.request.ID}, fmt.Errorf("run: %w (%s)", ErrAlreadyTerminal, s.state)
	case s.state != StatePrepared:
		return Response{ID: s.request.ID}, fmt.Errorf("run: %w (%s)", ErrNotPrepared, s.state)
	}

	s.transition(StateRunning)
	result, runErr := s.driver.Run(ctx, s.workspace, s.request.TimeoutSeconds)

	resp := Response{
		ID:          s.request.ID,
		Status:      result.Status,
		ExitCode:    result.ExitCode,
		StdoutLines: SplitOutput(result.Stdout),
		StderrLines: SplitOutput(result.Stderr),
		Duration:    result.Duration,
		Truncated:   result.Truncated,
	}

	if s.request.Test != nil {
		s.testResult = scoreTest(s.request.Test, resp.Status, resp.StdoutLines)
		verdict := s.testResult
		resp.TestResult = &verdict
	}

	switch resp.Status {
	case StatusSucceeded:
		s.finish(StateCompleted)
	case StatusTimedOut:
		s.finish(StateTimedOut)
	default:
		s.finish(StateFailed)
	}

	fields := []zap.Field{
		zap.String("status", string(resp.Status)),
		zap.Int("exit_code", resp.ExitCode),
		zap.Duration("duration", resp.Duration),
	}
	if resp.TestResult != nil {
		fields = append(fields, zap.Stringer("test_result", *resp.TestResult))
		if *resp.TestResult == TestFailed && s.request.Test.ExpectedStdoutLines != nil {
			fields = append(fields, zap.Int("first_mismatch", FirstMismatch(s.request.Test.ExpectedStdoutLines, resp.StdoutLines)))
		}
	}
	s.logger.Info("sandbox finished", fields...)

	return resp, runErr
}

// Close releases the workspace if the sandbox never reached a terminal
// state. It is idempotent.
func (s *Sandbox) Close() error {
	if !s.state.Terminal() {
		s.finish(StateFailed)
	}
	return s.cleanupErr
}

// finish sets the terminal state and then cleans up exactly once. Cleanup
// errors are logged and kept for Close but never change the outcome.
func (s *Sandbox) finish(state State) {
	s.transition(state)
	s.cleanupOnce.Do(func() {
		if err := s.workspaces.Cleanup(s.workspace); err != nil {
			s.cleanupErr = err
			s.logger.Error("failed to clean up workspace", zap.Error(err))
		}
	})
}

func (s *Sandbox) transition(state State) {
	s.logger.Debug("sandbox state change",
		zap.Stringer("from", s.state),
		zap.Stringer("to", state))
	s.state = state
}

// IsLifecycleError reports whether err comes from calling sandbox methods
// out of order.
func IsLifecycleError(err error) bool {
	return errors.Is(err, ErrNotPrepared) || errors.Is(err, ErrAlreadyPrepared) || errors.Is(err, ErrAlreadyTerminal)
}
