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

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/compiler"
	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/logger"
	"github.com/isdmx/coderunner/mcpserver"
	"github.com/isdmx/coderunner/sandbox"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Language catalog with configured overrides
			compiler.NewFromConfig,

			// Isolation provider based on config
			sandbox.NewProvider,

			// Metrics
			newMetricsRegistry,
			newMetricsRecorder,

			// Sandbox runner
			sandbox.NewRunnerFromConfig,
			func(r *sandbox.Runner) mcpserver.CodeRunner { return r },

			// MCP Server
			mcpserver.New,
		),

		fx.Invoke(startMetricsServer),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					// Use fx to run this as a background task
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}

func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetricsRecorder(reg *prometheus.Registry) (sandbox.MetricsRecorder, error) {
	metrics, err := sandbox.NewPrometheusMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register sandbox metrics: %w", err)
	}
	return metrics, nil
}

// startMetricsServer serves /metrics when server.metrics_port is set
func startMetricsServer(lc fx.Lifecycle, cfg *config.Config, reg *prometheus.Registry, log *zap.Logger) {
	if cfg.Server.MetricsPort == 0 {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting metrics server", zap.Int("port", cfg.Server.MetricsPort))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
