package sandbox

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"

	"go.uber.org/zap"
)

// LocalProvider runs the launcher directly on the host. It offers no
// isolation beyond a process group and is meant for development only.
type LocalProvider struct {
	logger    *zap.Logger
	cmdRunner CommandRunner
}

// LocalOption defines a functional option for LocalProvider
type LocalOption func(*LocalProvider)

// WithLocalCommandRunner sets the CommandRunner for LocalProvider
func WithLocalCommandRunner(cmdRunner CommandRunner) LocalOption {
	return func(l *LocalProvider) {
		l.cmdRunner = cmdRunner
	}
}

// NewLocalProvider creates a LocalProvider
func NewLocalProvider(logger *zap.Logger, opts ...LocalOption) *LocalProvider {
	l := &LocalProvider{
		logger:    logger,
		cmdRunner: &RealCommandRunner{},
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (*LocalProvider) Name() string {
	return "local"
}

// Start runs the launcher from the workspace directory (WARNING: not secure)
func (l *LocalProvider) Start(_ context.Context, inv Invocation) (Process, error) {
	env := os.Environ()
	for _, key := range slices.Sorted(maps.Keys(inv.Env)) {
		env = append(env, fmt.Sprintf("%s=%s", key, inv.Env[key]))
	}

	l.logger.Debug("starting local process",
		zap.String("name", inv.Name),
		zap.String("workspace", inv.Workspace),
		zap.Strings("argv", inv.Argv))

	proc, err := l.cmdRunner.StartCommand(CommandSpec{
		Args: launcherArgs(inv),
		Dir:  inv.Workspace,
		Env:  env,
	})
	if err != nil {
		return nil, fmt.Errorf("start local process: %w", err)
	}
	return proc, nil
}
