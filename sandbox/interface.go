package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
)

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	// RunCommand runs a short-lived helper command to completion.
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
	// StartCommand starts a command without waiting for it.
	StartCommand(spec CommandSpec) (Process, error)
}

// CommandSpec describes a command started by CommandRunner.StartCommand.
type CommandSpec struct {
	Args []string
	Dir  string
	// Env replaces the inherited environment when non-nil.
	Env []string
}

// Process is a running isolated program. Wait blocks until it exits; Kill
// forcibly terminates it and everything it spawned.
type Process interface {
	Wait() (exitCode int, err error)
	Kill() error
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			exitCode = exitError.ExitCode()
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// StartCommand starts the command in its own process group so Kill reaches
// every descendant.
func (RealCommandRunner) StartCommand(spec CommandSpec) (Process, error) {
	if len(spec.Args) < 1 {
		return nil, fmt.Errorf("no command provided")
	}

	cmd := exec.Command(spec.Args[0], spec.Args[1:]...) //nolint:gosec // Safe as this is controlled input
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	configureProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &cmdProcess{cmd: cmd}, nil
}

type cmdProcess struct {
	cmd    *exec.Cmd
	exited atomic.Bool
}

func (p *cmdProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	p.exited.Store(true)
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return exitError.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

func (p *cmdProcess) Kill() error {
	// Once reaped the pid may be reused by an unrelated process.
	if p.exited.Load() {
		return nil
	}
	return killProcessGroup(p.cmd.Process)
}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	Chmod(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	ReadFile(filename string) ([]byte, error)
	Open(filename string) (io.ReadCloser, error)
	RemoveAll(path string) error
	FileExists(path string) (bool, error)
	ReadDir(path string) ([]os.DirEntry, error)
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) Chmod(path string, perm os.FileMode) error {
	return os.Chmod(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

func (RealFileSystem) Open(filename string) (io.ReadCloser, error) {
	return os.Open(filename)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (RealFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (RealFileSystem) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

// File permission constants. The workspace is shared with an unprivileged
// user inside the container, so it and the output files are world-writable.
const (
	WorkspacePermission = 0o777
	SourcePermission    = 0o644
	OutputPermission    = 0o666
	LauncherPermission  = 0o755
	BytesPerKB          = 1024
)
