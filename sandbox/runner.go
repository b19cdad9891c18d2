package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/isdmx/coderunner/compiler"
)

// Runner admits requests, builds a Sandbox for each and drives it to a
// terminal state. It is safe for concurrent use.
type Runner struct {
	logger        *zap.Logger
	registry      *compiler.Registry
	workspaces    *WorkspaceManager
	driver        *Driver
	metrics       MetricsRecorder
	sem           *semaphore.Weighted
	limit         int
	workspaceRoot string
}

// RunnerOption defines a functional option for Runner
type RunnerOption func(*Runner)

// WithMetrics sets the MetricsRecorder for Runner
func WithMetrics(metrics MetricsRecorder) RunnerOption {
	return func(r *Runner) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithMaxConcurrent bounds how many sandboxes run at once
func WithMaxConcurrent(limit int) RunnerOption {
	return func(r *Runner) {
		if limit > 0 {
			r.limit = limit
		}
	}
}

// WithWorkspaceRoot sets the directory generated workspace paths live under
func WithWorkspaceRoot(root string) RunnerOption {
	return func(r *Runner) {
		r.workspaceRoot = root
	}
}

const defaultMaxConcurrent = 4

// NewRunner creates a Runner
func NewRunner(logger *zap.Logger, registry *compiler.Registry, workspaces *WorkspaceManager, driver *Driver, opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:        logger,
		registry:      registry,
		workspaces:    workspaces,
		driver:        driver,
		metrics:       NoopMetricsRecorder{},
		limit:         defaultMaxConcurrent,
		workspaceRoot: "./temp",
	}

	for _, opt := range opts {
		opt(r)
	}
	r.sem = semaphore.NewWeighted(int64(r.limit))

	return r
}

// Languages lists the languages requests may use.
func (r *Runner) Languages() []string {
	return r.registry.Languages()
}

// Compilers returns the catalog entries in registration order.
func (r *Runner) Compilers() []compiler.LanguageCompiler {
	return r.registry.All()
}

// Run executes one request. An empty ID is generated, and an empty workspace
// path is derived from the workspace root and the ID.
//
// Execution outcomes are reported in Response.Status. The error is non-nil
// when the request was rejected before admission (unsupported language,
// invalid request, cancelled while waiting) with an empty Status, or when
// preparing the workspace failed (path conflict, io failure) with
// Response.Status StatusIOError.
func (r *Runner) Run(ctx context.Context, req Request) (Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.WorkspacePath == "" {
		req.WorkspacePath = filepath.Join(r.workspaceRoot, fmt.Sprintf("%s-%s", req.ID, uuid.NewString()))
	}

	logger := r.logger.With(zap.String("sandbox_id", req.ID), zap.String("language", req.Language))

	c, err := r.registry.Lookup(req.Language)
	if err == nil {
		err = req.validate()
	}
	if err != nil {
		logger.Warn("rejected request", zap.Error(err))
		return Response{ID: req.ID}, err
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Response{ID: req.ID}, fmt.Errorf("waiting for a free sandbox: %w", err)
	}
	defer r.sem.Release(1)

	started := time.Now()
	r.metrics.SandboxStarted(c.Language)
	logger.Debug("sandbox admitted",
		zap.Stringer("kind", c.Kind),
		zap.String("workspace", req.WorkspacePath),
		zap.Duration("timeout", req.Timeout()))

	sb := New(logger, req, c, r.workspaces, r.driver)
	defer func() {
		if err := sb.Close(); err != nil {
			logger.Debug("sandbox close reported an error", zap.Error(err))
		}
	}()

	if err := sb.Prepare(); err != nil {
		resp := Response{ID: req.ID, Status: StatusIOError, ExitCode: -1, Duration: time.Since(started)}
		r.metrics.SandboxFinished(c.Language, resp.Status, resp.Duration)
		logger.Error("failed to prepare sandbox", zap.Error(err))
		return resp, err
	}

	resp, err := sb.Run(ctx)
	r.metrics.SandboxFinished(c.Language, resp.Status, resp.Duration)
	if err != nil {
		logger.Error("sandbox failed", zap.Error(err))
	}
	return resp, err
}

// BatchResult is the outcome of one request of RunBatch.
type BatchResult struct {
	Response Response
	Err      error
}

// RunBatch runs independent requests concurrently, at most the Runner's
// limit at a time. Results are in request order. One request failing does
// not stop the others.
func (r *Runner) RunBatch(ctx context.Context, reqs []Request) []BatchResult {
	results := make([]BatchResult, len(reqs))

	var g errgroup.Group
	g.SetLimit(r.limit)
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := r.Run(ctx, req)
			results[i] = BatchResult{Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
