package sandbox

import (
	"go.uber.org/zap"
)

// DockerOption defines a functional option for the Docker provider
type DockerOption func(*containerProvider)

// WithDockerCommandRunner sets the CommandRunner for the Docker provider
func WithDockerCommandRunner(cmdRunner CommandRunner) DockerOption {
	return func(p *containerProvider) {
		p.cmdRunner = cmdRunner
	}
}

// NewDockerProvider runs programs in Docker containers with no network, a
// memory cap, a pids limit, all capabilities dropped and an unprivileged
// user. The CPU ulimit is set to the request timeout.
func NewDockerProvider(logger *zap.Logger, config ProviderConfig, opts ...DockerOption) Provider {
	p := &containerProvider{
		binary:    "docker",
		logger:    logger,
		config:    config,
		cmdRunner: &RealCommandRunner{},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}
