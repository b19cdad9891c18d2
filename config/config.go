package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server"`
	Sandbox   SandboxConfig       `mapstructure:"sandbox"`
	Logging   LoggingConfig       `mapstructure:"logging"`
	Languages map[string]Language `mapstructure:"languages"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport   string `mapstructure:"transport"`
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend            string `mapstructure:"backend"`
	EnableLocalBackend bool   `mapstructure:"enable_local_backend"`
	WorkspaceRoot      string `mapstructure:"workspace_root"`
	LauncherScript     string `mapstructure:"launcher_script"`
	CatalogFile        string `mapstructure:"catalog_file"`
	DefaultTimeoutSec  int    `mapstructure:"default_timeout_sec"`
	MemoryMB           int    `mapstructure:"memory_mb"`
	NetworkEnabled     bool   `mapstructure:"network_enabled"`
	MaxConcurrent      int    `mapstructure:"max_concurrent"`
	KillGraceSec       int    `mapstructure:"kill_grace_sec"`
	MaxOutputKB        int    `mapstructure:"max_output_kb"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// Language overrides the built-in descriptor of a compiler
type Language struct {
	Image               string `mapstructure:"image"`
	AdditionalArguments string `mapstructure:"additional_arguments"`
	// Environment holds KEY=VALUE entries. A list keeps the variable names
	// intact; viper lowercases map keys.
	Environment []string `mapstructure:"environment"`
}

// EnvironmentMap parses the KEY=VALUE entries of Environment.
func (l Language) EnvironmentMap() (map[string]string, error) {
	if len(l.Environment) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(l.Environment))
	for _, entry := range l.Environment {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("environment entry %q must have the form KEY=VALUE", entry)
		}
		env[key] = value
	}
	return env, nil
}

// MaxTimeoutSec is the largest timeout a request may carry.
const MaxTimeoutSec = 255

// New loads and validates the application configuration
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("CODERUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 0)

	v.SetDefault("sandbox.backend", "docker")
	v.SetDefault("sandbox.enable_local_backend", false)
	v.SetDefault("sandbox.workspace_root", "./temp")
	v.SetDefault("sandbox.launcher_script", "")
	v.SetDefault("sandbox.catalog_file", "")
	v.SetDefault("sandbox.default_timeout_sec", 10)
	v.SetDefault("sandbox.memory_mb", 256)
	v.SetDefault("sandbox.network_enabled", false)
	v.SetDefault("sandbox.max_concurrent", 4)
	v.SetDefault("sandbox.kill_grace_sec", 5)
	v.SetDefault("sandbox.max_output_kb", 1024)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.MetricsPort < 0 {
		return fmt.Errorf("server.metrics_port must not be negative, got: %d", c.Server.MetricsPort)
	}

	if c.Sandbox.DefaultTimeoutSec <= 0 || c.Sandbox.DefaultTimeoutSec > MaxTimeoutSec {
		return fmt.Errorf("sandbox.default_timeout_sec must be within 1..%d, got: %d", MaxTimeoutSec, c.Sandbox.DefaultTimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.MaxConcurrent <= 0 {
		return fmt.Errorf("sandbox.max_concurrent must be positive, got: %d", c.Sandbox.MaxConcurrent)
	}

	if c.Sandbox.KillGraceSec < 0 {
		return fmt.Errorf("sandbox.kill_grace_sec must not be negative, got: %d", c.Sandbox.KillGraceSec)
	}

	if c.Sandbox.MaxOutputKB <= 0 {
		return fmt.Errorf("sandbox.max_output_kb must be positive, got: %d", c.Sandbox.MaxOutputKB)
	}

	if c.Sandbox.WorkspaceRoot == "" {
		return fmt.Errorf("sandbox.workspace_root must not be empty")
	}

	supportedBackends := map[string]bool{
		"docker": true,
		"podman": true,
		"local":  c.Sandbox.EnableLocalBackend, // local only enabled if specifically allowed
	}

	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	for name, lang := range c.Languages {
		if _, err := lang.EnvironmentMap(); err != nil {
			return fmt.Errorf("languages.%s: %w", name, err)
		}
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// GetKillGrace returns how long a killed sandbox may take to exit
func (c *Config) GetKillGrace() time.Duration {
	return time.Duration(c.Sandbox.KillGraceSec) * time.Second
}
