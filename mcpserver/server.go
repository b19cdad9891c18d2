package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/compiler"
	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/sandbox"
)

// CodeRunner executes sandbox requests
type CodeRunner interface {
	Run(ctx context.Context, req sandbox.Request) (sandbox.Response, error)
	Languages() []string
	Compilers() []compiler.LanguageCompiler
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	runner    CodeRunner
	mcpServer *server.MCPServer
}

// runResult is the JSON body returned by the run_code tool
type runResult struct {
	ID         string   `json:"id"`
	Status     string   `json:"status"`
	ExitCode   int      `json:"exit_code"`
	Stdout     []string `json:"stdout"`
	Stderr     []string `json:"stderr"`
	TestResult string   `json:"test_result,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	Truncated  bool     `json:"truncated,omitempty"`
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, runner CodeRunner) (*MCPServer, error) {
	s := &MCPServer{
		config: cfg,
		logger: logger,
		runner: runner,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.Int("server.metrics_port", s.config.Server.MetricsPort),
		zap.String("sandbox.backend", s.config.Sandbox.Backend),
		zap.String("sandbox.workspace_root", s.config.Sandbox.WorkspaceRoot),
		zap.Int("sandbox.default_timeout_sec", s.config.Sandbox.DefaultTimeoutSec),
		zap.Int("sandbox.memory_mb", s.config.Sandbox.MemoryMB),
		zap.Int("sandbox.max_concurrent", s.config.Sandbox.MaxConcurrent),
		zap.Bool("sandbox.network_enabled", s.config.Sandbox.NetworkEnabled),
		zap.Bool("sandbox.enable_local_backend", s.config.Sandbox.EnableLocalBackend),
		zap.Strings("languages", runner.Languages()),
	)

	s.mcpServer = server.NewMCPServer("coderunner", "A sandboxed code execution server")

	s.registerRunCodeTool()
	s.registerListLanguagesTool()

	return s, nil
}

// registerRunCodeTool registers the run_code tool
func (s *MCPServer) registerRunCodeTool() {
	tool := mcp.Tool{
		Name:        "run_code",
		Description: "Run untrusted code in a sandbox, optionally checking its output against an expected result",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "Language identifier",
					"enum":        s.runner.Languages(),
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Source code",
				},
				"stdin": map[string]any{
					"type":        "string",
					"description": "Standard input fed to the program (optional)",
				},
				"expected_stdout": map[string]any{
					"type":        "string",
					"description": "Expected standard output, compared line by line (optional)",
				},
				"timeout_sec": map[string]any{
					"type":        "number",
					"description": fmt.Sprintf("Wall-clock limit in seconds, 0..%d (optional)", config.MaxTimeoutSec),
				},
			},
			Required: []string{"language", "code"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunCode)
}

// registerListLanguagesTool registers the list_languages tool
func (s *MCPServer) registerListLanguagesTool() {
	tool := mcp.Tool{
		Name:        "list_languages",
		Description: "List the languages run_code accepts with their images and commands",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}

	s.mcpServer.AddTool(tool, s.handleListLanguages)
}

// handleRunCode handles the run_code tool
func (s *MCPServer) handleRunCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	req, err := s.buildRequest(request, language, code)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	s.logger.Info("code execution requested",
		zap.String("language", language),
		zap.Uint8("timeout_sec", req.TimeoutSeconds),
		zap.Bool("has_test", req.Test != nil))

	resp, err := s.runner.Run(ctx, req)
	if err != nil && resp.Status == "" {
		s.logger.Warn("request rejected", zap.String("language", language), zap.Error(err))
		return errorResult(fmt.Sprintf("Execution failed: %v", err)), nil
	}

	out := runResult{
		ID:         resp.ID,
		Status:     string(resp.Status),
		ExitCode:   resp.ExitCode,
		Stdout:     resp.StdoutLines,
		Stderr:     resp.StderrLines,
		DurationMS: resp.Duration.Milliseconds(),
		Truncated:  resp.Truncated,
	}
	if resp.TestResult != nil {
		out.TestResult = resp.TestResult.String()
	}

	body, marshalErr := json.Marshal(out)
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to encode result: %w", marshalErr)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(body),
			},
		},
		IsError: err != nil,
	}, nil
}

func (s *MCPServer) buildRequest(request mcp.CallToolRequest, language, code string) (sandbox.Request, error) {
	timeout := request.GetFloat("timeout_sec", float64(s.config.Sandbox.DefaultTimeoutSec))
	if timeout < 0 || timeout > config.MaxTimeoutSec || timeout != math.Trunc(timeout) {
		return sandbox.Request{}, fmt.Errorf("timeout_sec must be a whole number within 0..%d", config.MaxTimeoutSec)
	}

	req := sandbox.Request{
		Language:       language,
		SourceLines:    sandbox.SplitSource(code),
		TimeoutSeconds: uint8(timeout),
	}

	args := request.GetArguments()
	stdin, hasStdin := args["stdin"].(string)
	expected, hasExpected := args["expected_stdout"].(string)
	if hasStdin || hasExpected {
		req.Test = &sandbox.Test{}
		if hasStdin {
			req.Test.StdinLines = sandbox.SplitOutput(stdin)
		}
		if hasExpected {
			req.Test.ExpectedStdoutLines = sandbox.SplitOutput(expected)
		}
	}

	return req, nil
}

// catalogEntry describes one language in the list_languages result
type catalogEntry struct {
	Language    string   `json:"language"`
	Kind        string   `json:"kind"`
	Image       string   `json:"image"`
	Interpreter bool     `json:"interpreter"`
	Run         []string `json:"run"`
	Compile     []string `json:"compile,omitempty"`
}

// handleListLanguages handles the list_languages tool
func (s *MCPServer) handleListLanguages(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	compilers := s.runner.Compilers()
	entries := make([]catalogEntry, 0, len(compilers))
	for _, c := range compilers {
		run, err := c.RunCommand()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s run command: %w", c.Language, err)
		}
		compile, err := c.CompileCommand()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s compile command: %w", c.Language, err)
		}
		entries = append(entries, catalogEntry{
			Language:    c.Language,
			Kind:        c.Kind.String(),
			Image:       c.ImageName,
			Interpreter: c.IsInterpreter,
			Run:         run,
			Compile:     compile,
		})
	}

	body, err := json.Marshal(struct {
		Languages []string       `json:"languages"`
		Compilers []catalogEntry `json:"compilers"`
	}{
		Languages: s.runner.Languages(),
		Compilers: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode languages: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(body),
			},
		},
	}, nil
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
		IsError: true,
	}
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
