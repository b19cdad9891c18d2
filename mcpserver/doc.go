// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the sandbox runner as MCP tools using the
// mark3labs/mcp-go library. run_code executes a piece of code, optionally
// against an expected output, and returns its status, output lines and test
// verdict as JSON. list_languages reports the supported languages.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, runner)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
