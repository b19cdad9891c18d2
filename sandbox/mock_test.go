package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/coderunner/compiler"
)

// MockCommandRunner records the commands it receives for testing
type MockCommandRunner struct {
	mu       sync.Mutex
	started  []CommandSpec
	ran      [][]string
	startErr error
	process  *fakeProcess
	runExit  int
	runErr   error
}

func (m *MockCommandRunner) RunCommand(_ context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ran = append(m.ran, args)
	return "", "", m.runExit, m.runErr
}

func (m *MockCommandRunner) StartCommand(spec CommandSpec) (Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, spec)
	if m.startErr != nil {
		return nil, m.startErr
	}
	if m.process == nil {
		m.process = newFakeProcess(0, false)
	}
	return m.process, nil
}

// MockFileSystem wraps the real file system and fails selected operations
type MockFileSystem struct {
	RealFileSystem
	// writeFileErrors is keyed by the base name of the written file.
	writeFileErrors map[string]error
	mkdirErr        error
	removeAllErr    error

	mu          sync.Mutex
	removeCalls int
}

func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	if m.mkdirErr != nil {
		return m.mkdirErr
	}
	return m.RealFileSystem.MkdirAll(path, perm)
}

func (m *MockFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	if err, exists := m.writeFileErrors[filepath.Base(filename)]; exists {
		return err
	}
	return m.RealFileSystem.WriteFile(filename, data, perm)
}

func (m *MockFileSystem) RemoveAll(path string) error {
	m.mu.Lock()
	m.removeCalls++
	m.mu.Unlock()
	if m.removeAllErr != nil {
		return m.removeAllErr
	}
	return m.RealFileSystem.RemoveAll(path)
}

// fakeProcess exits with a fixed code, or blocks until killed when hang is set.
type fakeProcess struct {
	exitCode   int
	hang       bool
	ignoreKill bool

	killOnce sync.Once
	killed   chan struct{}
	mu       sync.Mutex
	kills    int
}

func newFakeProcess(exitCode int, hang bool) *fakeProcess {
	return &fakeProcess{exitCode: exitCode, hang: hang, killed: make(chan struct{})}
}

func (p *fakeProcess) Wait() (int, error) {
	if !p.hang {
		return p.exitCode, nil
	}
	<-p.killed
	if p.ignoreKill {
		select {}
	}
	return -1, nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.kills++
	p.mu.Unlock()
	p.killOnce.Do(func() { close(p.killed) })
	return nil
}

func (p *fakeProcess) Kills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills
}

// fakeRun scripts what one launch does.
type fakeRun struct {
	stdout     string
	stderr     string
	exitCode   int
	hang       bool
	ignoreKill bool
	startErr   error
}

// fakeProvider plays the isolated program: it writes the scripted output into
// the workspace files and returns a fakeProcess.
type fakeProvider struct {
	t       *testing.T
	handler func(inv Invocation) fakeRun

	mu          sync.Mutex
	invocations []Invocation
	processes   []*fakeProcess
}

func (p *fakeProvider) Name() string {
	return "fake"
}

func (p *fakeProvider) Start(_ context.Context, inv Invocation) (Process, error) {
	p.mu.Lock()
	p.invocations = append(p.invocations, inv)
	p.mu.Unlock()

	run := p.handler(inv)
	if run.startErr != nil {
		return nil, run.startErr
	}

	if inv.StdinFile != "" {
		_, err := os.Stat(filepath.Join(inv.Workspace, inv.StdinFile))
		assert.NoError(p.t, err, "stdin file must be staged before launch")
	}
	assert.NoError(p.t, os.WriteFile(filepath.Join(inv.Workspace, inv.StdoutFile), []byte(run.stdout), OutputPermission))
	assert.NoError(p.t, os.WriteFile(filepath.Join(inv.Workspace, inv.StderrFile), []byte(run.stderr), OutputPermission))

	proc := newFakeProcess(run.exitCode, run.hang)
	proc.ignoreKill = run.ignoreKill
	p.mu.Lock()
	p.processes = append(p.processes, proc)
	p.mu.Unlock()
	return proc, nil
}

func (p *fakeProvider) Invocations() []Invocation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Invocation(nil), p.invocations...)
}

func isCompile(inv Invocation) bool {
	return strings.Contains(inv.Name, "-compile-")
}

// echoHandler prints the staged source back, like a program whose output is
// its own text.
func echoHandler(inv Invocation) fakeRun {
	data, err := os.ReadFile(filepath.Join(inv.Workspace, inv.Argv[len(inv.Argv)-1]))
	if err != nil {
		return fakeRun{stderr: err.Error(), exitCode: 1}
	}
	return fakeRun{stdout: string(data) + "\n"}
}

func mustLookup(t *testing.T, language string) compiler.LanguageCompiler {
	t.Helper()
	registry, err := compiler.NewRegistry(compiler.Builtin()...)
	require.NoError(t, err)
	c, err := registry.Lookup(language)
	require.NoError(t, err)
	return c
}

func newTestRunner(t *testing.T, handler func(Invocation) fakeRun, opts ...RunnerOption) (*Runner, *fakeProvider) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry, err := compiler.NewRegistry(compiler.Builtin()...)
	require.NoError(t, err)

	provider := &fakeProvider{t: t, handler: handler}
	runner := NewRunner(logger, registry,
		NewWorkspaceManager(logger),
		NewDriver(logger, provider),
		append([]RunnerOption{WithWorkspaceRoot(t.TempDir())}, opts...)...)
	return runner, provider
}
