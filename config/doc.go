// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and CODERUNNER_* environment variables. It
// covers server settings, sandbox execution parameters, logging, and
// per-language overrides of the built-in compiler catalog.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Sandbox backend: %s\n", cfg.Sandbox.Backend)
package config
