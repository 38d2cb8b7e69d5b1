package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LLMConfig holds the single chat-completions provider the adapter talks
// to (spec §6: "Credentials are read from LLM_API_KEY, LLM_API_BASE,
// LLM_MODEL"). Unlike the teacher's multi-provider/fallback/Bedrock-routing
// LLMConfig, the spec describes one opaque provider; this is intentionally
// narrower.
type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	APIBase     string        `yaml:"api_base"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
}

func applyLLMEnvOverrides(cfg *LLMConfig) {
	if value := strings.TrimSpace(os.Getenv("LLM_API_KEY")); value != "" {
		cfg.APIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("LLM_API_BASE")); value != "" {
		cfg.APIBase = value
	}
	if value := strings.TrimSpace(os.Getenv("LLM_MODEL")); value != "" {
		cfg.Model = value
	}
	if value := strings.TrimSpace(os.Getenv("LLM_TIMEOUT")); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			cfg.Timeout = time.Duration(seconds) * time.Second
		}
	}
	if value := strings.TrimSpace(os.Getenv("LLM_TEMPERATURE")); value != "" {
		if temp, err := strconv.ParseFloat(value, 64); err == nil {
			cfg.Temperature = temp
		}
	}
	if value := strings.TrimSpace(os.Getenv("LLM_MAX_TOKENS")); value != "" {
		if tokens, err := strconv.Atoi(value); err == nil {
			cfg.MaxTokens = tokens
		}
	}
}

func validateLLM(cfg *LLMConfig) error {
	if cfg.APIKey == "" {
		return &ValidationError{Field: "llm.api_key", Reason: "LLM_API_KEY or llm.api_key is required"}
	}
	if cfg.Model == "" {
		return &ValidationError{Field: "llm.model", Reason: "LLM_MODEL or llm.model is required"}
	}
	return nil
}
