package sandbox

import (
	"strconv"

	"go.uber.org/zap"
)

// PodmanOption defines a functional option for the Podman provider
type PodmanOption func(*containerProvider)

// WithPodmanCommandRunner sets the CommandRunner for the Podman provider
func WithPodmanCommandRunner(cmdRunner CommandRunner) PodmanOption {
	return func(p *containerProvider) {
		p.cmdRunner = cmdRunner
	}
}

// NewPodmanProvider runs programs in Podman containers with the same
// restrictions as Docker. Podman also enforces the request timeout as a
// wall-clock limit of its own through --timeout.
func NewPodmanProvider(logger *zap.Logger, config ProviderConfig, opts ...PodmanOption) Provider {
	p := &containerProvider{
		binary:    "podman",
		logger:    logger,
		config:    config,
		cmdRunner: &RealCommandRunner{},
		extraArgs: podmanArgs,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func podmanArgs(inv Invocation) []string {
	// --timeout 0 means unlimited to podman.
	if inv.TimeoutSeconds == 0 {
		return nil
	}
	return []string{"--timeout", strconv.Itoa(int(inv.TimeoutSeconds))}
}
