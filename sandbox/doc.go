// Package sandbox runs untrusted code in isolated environments.
//
// A Runner admits a Request, looks up its language in the compiler
// registry and hands it to a Sandbox. The Sandbox stages a private
// workspace through the WorkspaceManager, executes it with the Driver under
// a hard deadline, scores the attached test and removes the workspace.
// Providers do the actual isolation: Docker, Podman, or the host itself for
// development.
//
// Usage:
//
//	runner := sandbox.NewRunner(logger, registry,
//	    sandbox.NewWorkspaceManager(logger),
//	    sandbox.NewDriver(logger, sandbox.NewDockerProvider(logger, sandbox.ProviderConfig{MemoryMB: 256})))
//	resp, err := runner.Run(ctx, sandbox.Request{
//	    Language:       "python",
//	    SourceLines:    []string{"print('Hello, World!')"},
//	    TimeoutSeconds: 10,
//	})
package sandbox
