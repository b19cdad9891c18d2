package sandbox

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ContainerWorkDir is where the workspace is mounted inside containers.
const ContainerWorkDir = "/sandbox"

// Invocation is one program launch handed to an isolation provider.
type Invocation struct {
	// Name is unique per launch and identifies the isolated environment.
	Name      string
	Image     string
	Workspace string
	// Argv is the program and its arguments, relative to the workspace.
	Argv       []string
	StdinFile  string
	StdoutFile string
	StderrFile string
	// TimeoutSeconds is the same threshold the host watchdog enforces.
	TimeoutSeconds uint8
	Env            map[string]string
}

// Provider launches programs inside an isolated environment.
type Provider interface {
	Name() string
	Start(ctx context.Context, inv Invocation) (Process, error)
}

// ProviderConfig holds the resource settings shared by all providers.
type ProviderConfig struct {
	MemoryMB       int
	NetworkEnabled bool
	PidsLimit      int
	// FileSizeLimitBytes caps any single file the program writes.
	FileSizeLimitBytes int64
}

const (
	defaultPidsLimit     = 64
	defaultFileSizeLimit = 100_000_000
	removeTimeout        = 10 * time.Second
)

// containerProvider drives a docker-compatible CLI.
type containerProvider struct {
	binary    string
	logger    *zap.Logger
	config    ProviderConfig
	cmdRunner CommandRunner
	// extraArgs returns backend specific flags for inv.
	extraArgs func(inv Invocation) []string
}

func (p *containerProvider) Name() string {
	return p.binary
}

func (p *containerProvider) Start(_ context.Context, inv Invocation) (Process, error) {
	args := p.buildArgs(inv)

	p.logger.Debug("starting container",
		zap.String("backend", p.binary),
		zap.String("container", inv.Name),
		zap.String("image", inv.Image),
		zap.Strings("argv", inv.Argv))

	proc, err := p.cmdRunner.StartCommand(CommandSpec{Args: args})
	if err != nil {
		return nil, fmt.Errorf("start %s container: %w", p.binary, err)
	}

	return &containerProcess{
		Process:   proc,
		binary:    p.binary,
		name:      inv.Name,
		cmdRunner: p.cmdRunner,
		logger:    p.logger,
	}, nil
}

func (p *containerProvider) buildArgs(inv Invocation) []string {
	cpuLimit := max(int(inv.TimeoutSeconds), 1)
	pids := p.config.PidsLimit
	if pids <= 0 {
		pids = defaultPidsLimit
	}
	fsize := p.config.FileSizeLimitBytes
	if fsize <= 0 {
		fsize = defaultFileSizeLimit
	}
	network := "none"
	if p.config.NetworkEnabled {
		network = "bridge"
	}

	args := []string{
		p.binary, "run",
		"--name", inv.Name,
		"--rm",
		"-v", fmt.Sprintf("%s:%s", inv.Workspace, ContainerWorkDir),
		"--workdir", ContainerWorkDir,
		"--memory", fmt.Sprintf("%dm", p.config.MemoryMB),
		"--memory-swap", fmt.Sprintf("%dm", p.config.MemoryMB),
		"--network", network,
		"--pids-limit", strconv.Itoa(pids),
		"--ulimit", fmt.Sprintf("cpu=%d:%d", cpuLimit, cpuLimit),
		"--ulimit", fmt.Sprintf("fsize=%d", fsize),
		"--security-opt", "no-new-privileges:true",
		"--user", "nobody",
		"--cap-drop", "ALL",
	}
	if p.extraArgs != nil {
		args = append(args, p.extraArgs(inv)...)
	}

	for _, key := range slices.Sorted(maps.Keys(inv.Env)) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", key, inv.Env[key]))
	}

	args = append(args, inv.Image)
	return append(args, launcherArgs(inv)...)
}

// containerProcess kills by removing the container; killing only the CLI
// client would leave the container running.
type containerProcess struct {
	Process
	binary    string
	name      string
	cmdRunner CommandRunner
	logger    *zap.Logger
}

func (c *containerProcess) Kill() error {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	_, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, []string{c.binary, "rm", "-f", c.name})
	if err == nil && exitCode != 0 {
		err = fmt.Errorf("%s rm exited with %d: %s", c.binary, exitCode, stderr)
	}
	if err != nil {
		c.logger.Warn("failed to remove container", zap.String("container", c.name), zap.Error(err))
	}

	if killErr := c.Process.Kill(); killErr != nil {
		return killErr
	}
	return err
}
