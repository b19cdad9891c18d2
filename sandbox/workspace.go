package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/compiler"
)

// Workspace is the staging directory owned by one sandbox.
type Workspace struct {
	Path     string
	Compiler compiler.LanguageCompiler
	HasStdin bool

	mu       sync.Mutex
	released bool
}

// File returns the host path of name inside the workspace.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.Path, name)
}

// WorkspaceManager creates and removes per-request workspaces. It tracks the
// paths of in-flight workspaces so two requests can never share one.
type WorkspaceManager struct {
	logger *zap.Logger
	fs     FileSystem
	// launcherPath is the well-known launcher location; empty uses the
	// built-in copy.
	launcherPath string

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// WorkspaceOption defines a functional option for WorkspaceManager
type WorkspaceOption func(*WorkspaceManager)

// WithWorkspaceFileSystem sets the FileSystem for WorkspaceManager
func WithWorkspaceFileSystem(fs FileSystem) WorkspaceOption {
	return func(m *WorkspaceManager) {
		m.fs = fs
	}
}

// WithLauncherScript sets the path the launcher script is copied from
func WithLauncherScript(path string) WorkspaceOption {
	return func(m *WorkspaceManager) {
		m.launcherPath = path
	}
}

// NewWorkspaceManager creates a WorkspaceManager with default implementations
func NewWorkspaceManager(logger *zap.Logger, opts ...WorkspaceOption) *WorkspaceManager {
	m := &WorkspaceManager{
		logger:   logger,
		fs:       &RealFileSystem{},
		inFlight: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Prepare reserves and stages a workspace for req. On staging failure the
// workspace is removed before returning.
func (m *WorkspaceManager) Prepare(req *Request, c compiler.LanguageCompiler) (*Workspace, error) {
	ws, err := m.Reserve(req.WorkspacePath, c)
	if err != nil {
		return nil, err
	}
	if err := m.Stage(ws, req); err != nil {
		if cleanupErr := m.Cleanup(ws); cleanupErr != nil {
			m.logger.Error("failed to remove workspace after staging error",
				zap.String("path", ws.Path), zap.Error(cleanupErr))
		}
		return nil, err
	}
	return ws, nil
}

// Reserve claims path for one in-flight request. Nothing is written yet.
// The path must not be, contain or lie inside another in-flight workspace,
// and must be absent or an empty directory.
func (m *WorkspaceManager) Reserve(path string, c compiler.LanguageCompiler) (*Workspace, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: workspace path is required", ErrInvalidRequest)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve workspace path: %w", ErrIO, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for taken := range m.inFlight {
		if within(taken, abs) || within(abs, taken) {
			return nil, fmt.Errorf("%w: %s overlaps in-flight workspace %s", ErrPathConflict, abs, taken)
		}
	}
	if err := m.checkUnused(abs); err != nil {
		return nil, err
	}
	m.inFlight[abs] = struct{}{}

	return &Workspace{Path: abs, Compiler: c}, nil
}

// checkUnused rejects a path that already holds a file or a non-empty
// directory. Nothing there is ever removed.
func (m *WorkspaceManager) checkUnused(path string) error {
	exists, err := m.fs.FileExists(path)
	if err != nil {
		return fmt.Errorf("%w: stat workspace: %w", ErrIO, err)
	}
	if !exists {
		return nil
	}
	entries, err := m.fs.ReadDir(path)
	if err != nil {
		return fmt.Errorf("%w: %s exists and is not a usable directory: %w", ErrPathConflict, path, err)
	}
	if len(entries) > 0 {
		m.logger.Warn("refusing non-empty workspace path",
			zap.String("path", path), zap.Int("entries", len(entries)))
		return fmt.Errorf("%w: %s is not empty", ErrPathConflict, path)
	}
	return nil
}

// within reports whether path is dir or lies below it. Both are absolute.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Stage writes the source, optional stdin, empty output files and the
// launcher script into a reserved workspace.
func (m *WorkspaceManager) Stage(ws *Workspace, req *Request) error {
	c := ws.Compiler

	if err := m.fs.MkdirAll(ws.Path, WorkspacePermission); err != nil {
		return fmt.Errorf("%w: create workspace: %w", ErrIO, err)
	}
	// MkdirAll is subject to the umask.
	if err := m.fs.Chmod(ws.Path, WorkspacePermission); err != nil {
		return fmt.Errorf("%w: chmod workspace: %w", ErrIO, err)
	}

	source := strings.Join(req.SourceLines, "\n")
	if err := m.fs.WriteFile(ws.File(c.SourceFileName()), []byte(source), SourcePermission); err != nil {
		return fmt.Errorf("%w: write source: %w", ErrIO, err)
	}

	if req.Test != nil && req.Test.StdinLines != nil {
		stdin := strings.Join(req.Test.StdinLines, "\n") + "\n"
		if err := m.fs.WriteFile(ws.File(c.StdinFileName()), []byte(stdin), SourcePermission); err != nil {
			return fmt.Errorf("%w: write stdin: %w", ErrIO, err)
		}
		ws.HasStdin = true
	}

	for _, name := range []string{c.StdoutFileName, c.StderrFileName} {
		path := ws.File(name)
		if err := m.fs.WriteFile(path, nil, OutputPermission); err != nil {
			return fmt.Errorf("%w: create %s: %w", ErrIO, name, err)
		}
		if err := m.fs.Chmod(path, OutputPermission); err != nil {
			return fmt.Errorf("%w: chmod %s: %w", ErrIO, name, err)
		}
	}

	launcher, err := m.launcher()
	if err != nil {
		return err
	}
	if err := m.fs.WriteFile(ws.File(LauncherFileName), launcher, LauncherPermission); err != nil {
		return fmt.Errorf("%w: write launcher: %w", ErrIO, err)
	}

	m.logger.Debug("workspace staged",
		zap.String("path", ws.Path),
		zap.String("language", c.Language),
		zap.Bool("stdin", ws.HasStdin))

	return nil
}

func (m *WorkspaceManager) launcher() ([]byte, error) {
	if m.launcherPath == "" {
		return defaultLauncher, nil
	}
	data, err := m.fs.ReadFile(m.launcherPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read launcher %s: %w", ErrIO, m.launcherPath, err)
	}
	return data, nil
}

// Cleanup removes the workspace and releases its path. It is safe to call
// more than once and on a nil workspace. The path stays reserved while
// removal keeps failing so no other request can inherit leftover files.
func (m *WorkspaceManager) Cleanup(ws *Workspace) error {
	if ws == nil {
		return nil
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.released {
		return nil
	}

	if err := m.fs.RemoveAll(ws.Path); err != nil {
		return fmt.Errorf("%w: remove workspace: %w", ErrIO, err)
	}

	m.mu.Lock()
	delete(m.inFlight, ws.Path)
	m.mu.Unlock()
	ws.released = true

	return nil
}

// InFlight reports how many workspaces are currently reserved.
func (m *WorkspaceManager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inFlight)
}
