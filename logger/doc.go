// Package logger provides structured logging capabilities.
//
// The logger package sets up and configures the application's logging
// system using zap. Production mode emits JSON with ISO8601 timestamps and
// no sampling; development mode emits colourised console output.
//
// Usage:
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    panic(err)
//	}
//	log.Info("sandbox finished", zap.String("status", "succeeded"))
package logger
