// Package config loads the gateway's application configuration (server
// ports, database DSN, LLM credentials, auth pass-through) from a YAML file
// with environment variable overlays. The separate tool-server registry
// document (spec §6) is handled by registry.go.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gateway's top-level application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	LLM      LLMConfig      `yaml:"llm"`
	Registry RegistryLoadConfig `yaml:"registry"`
}

// AuthConfig is a minimal pass-through for the out-of-scope auth layer
// (spec §1 Non-goals): the gateway reads JWT_SECRET only to hand it to
// whatever external middleware terminates auth; it never issues tokens.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// RegistryLoadConfig points at the tool-server registry document (spec §6).
type RegistryLoadConfig struct {
	Path string `yaml:"path"`
}

// Load reads path as YAML with `${VAR}` environment expansion, applies
// environment variable overrides, fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected single document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyLLMDefaults(&cfg.LLM)
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "mcp_servers.json"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9090
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 25
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
}

// applyEnvOverrides layers spec §6's environment variables over whatever
// the YAML file set, following the teacher's NEXUS_*-prefixed override
// pattern but scoped to the variable names the spec names.
func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("GATEWAY_HOST")); value != "" {
		cfg.Server.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("GATEWAY_HTTP_PORT")); value != "" {
		if port, err := strconv.Atoi(value); err == nil {
			cfg.Server.HTTPPort = port
		}
	}
	if value := strings.TrimSpace(os.Getenv("DATABASE_URL")); value != "" {
		cfg.Database.URL = value
	}
	if value := strings.TrimSpace(os.Getenv("JWT_SECRET")); value != "" {
		cfg.Auth.JWTSecret = value
	}
	if value := strings.TrimSpace(os.Getenv("MCP_SERVERS_PATH")); value != "" {
		cfg.Registry.Path = value
	}

	applyLLMEnvOverrides(&cfg.LLM)
}

// ValidationError describes a config validation failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func validateConfig(cfg *Config) error {
	if cfg.Registry.Path == "" {
		return &ValidationError{Field: "registry.path", Reason: "MCP_SERVERS_PATH or registry.path is required"}
	}
	if err := validateLLM(&cfg.LLM); err != nil {
		return err
	}
	return nil
}
