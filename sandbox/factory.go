package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/compiler"
	"github.com/isdmx/coderunner/config"
)

// NewProvider creates the isolation provider selected by the configuration
func NewProvider(logger *zap.Logger, cfg *config.Config) (Provider, error) {
	providerConfig := ProviderConfig{
		MemoryMB:       cfg.Sandbox.MemoryMB,
		NetworkEnabled: cfg.Sandbox.NetworkEnabled,
	}

	switch cfg.Sandbox.Backend {
	case "docker":
		return NewDockerProvider(logger, providerConfig), nil
	case "podman":
		return NewPodmanProvider(logger, providerConfig), nil
	case "local":
		if !cfg.Sandbox.EnableLocalBackend {
			return nil, fmt.Errorf("local backend is disabled")
		}
		logger.Warn("using the local backend: programs run on the host without isolation")
		return NewLocalProvider(logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}

// NewRunnerFromConfig wires a Runner with its workspace manager and driver
func NewRunnerFromConfig(logger *zap.Logger, cfg *config.Config, registry *compiler.Registry, provider Provider, metrics MetricsRecorder) *Runner {
	workspaces := NewWorkspaceManager(logger, WithLauncherScript(cfg.Sandbox.LauncherScript))
	driver := NewDriver(logger, provider,
		WithKillGrace(cfg.GetKillGrace()),
		WithMaxOutputBytes(int64(cfg.Sandbox.MaxOutputKB)*BytesPerKB))

	return NewRunner(logger, registry, workspaces, driver,
		WithMetrics(metrics),
		WithMaxConcurrent(cfg.Sandbox.MaxConcurrent),
		WithWorkspaceRoot(cfg.Sandbox.WorkspaceRoot))
}
