// Package main is the entry point for the coderunner MCP server.
//
// The coderunner server executes untrusted code (Python, Node.js, C++, Go) in
// isolated sandboxes and exposes it through the Model Context Protocol. Each
// request gets a private workspace, runs under a hard wall-clock deadline and
// can be checked against an expected output.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging, viper for configuration and
// Prometheus for metrics.
package main
