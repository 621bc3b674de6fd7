package config

import (
	"fmt"
	"slices"
	"time"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	oneOf := func(path, value string, valid []string) {
		if value != "" && !slices.Contains(valid, value) {
			add(path, "must be one of %v, got %q", valid, value)
		}
	}

	// Gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, []string{"auto", "lan", "loopback", "custom"})
	oneOf("gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"token", "password"})
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		add("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}

	// LLM
	providers := []string{"gemini", "openai", "claude"}
	oneOf("llm.provider", cfg.LLM.Provider, providers)
	if cfg.LLM.MaxTokens < 0 {
		add("llm.maxTokens", "must not be negative")
	}
	if t := cfg.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		add("llm.temperature", "must be between 0 and 2, got %v", *t)
	}
	for i, fb := range cfg.LLM.Fallbacks {
		path := fmt.Sprintf("llm.fallbacks[%d]", i)
		oneOf(path+".provider", fb.Provider, providers)
		if fb.Model == "" {
			add(path+".model", "model is required")
		}
	}

	// Agents
	if cfg.Agents.MaxAttempts < 1 {
		add("agents.maxAttempts", "must be at least 1, got %d", cfg.Agents.MaxAttempts)
	}
	if cfg.Agents.MaxToolRounds < 1 {
		add("agents.maxToolRounds", "must be at least 1, got %d", cfg.Agents.MaxToolRounds)
	}
	if cfg.Agents.TurnTimeout != "" {
		if _, err := time.ParseDuration(cfg.Agents.TurnTimeout); err != nil {
			add("agents.turnTimeout", "invalid duration %q", cfg.Agents.TurnTimeout)
		}
	}

	// Booking
	oneOf("booking.store", cfg.Booking.Store, []string{"memory", "mongo"})
	if cfg.Booking.Store == "mongo" && cfg.Booking.MongoURI == "" {
		add("booking.mongoUri", "required when booking.store is mongo")
	}

	// Memory
	oneOf("memory.store", cfg.Memory.Store, []string{"memory", "sqlite", "mongo"})
	oneOf("memory.embedder", cfg.Memory.Embedder, []string{"openai", "gemini", "ollama", "hash"})
	if cfg.Memory.Store == "mongo" && cfg.Memory.MongoURI == "" {
		add("memory.mongoUri", "required when memory.store is mongo")
	}
	if cfg.Memory.K < 1 {
		add("memory.k", "must be at least 1, got %d", cfg.Memory.K)
	}
	if cfg.Memory.AnalyzeTimeout != "" {
		if _, err := time.ParseDuration(cfg.Memory.AnalyzeTimeout); err != nil {
			add("memory.analyzeTimeout", "invalid duration %q", cfg.Memory.AnalyzeTimeout)
		}
	}

	// Checkpoints
	oneOf("checkpoint.store", cfg.Checkpoint.Store, []string{"memory", "sqlite"})

	// Media
	if cfg.Media.Enabled && cfg.Media.APIKey == "" {
		add("media.apiKey", "required when media is enabled")
	}

	// Logging
	levels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	oneOf("logging.level", cfg.Logging.Level, levels)
	oneOf("logging.fileLevel", cfg.Logging.FileLevel, levels)
	oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "json"})

	return issues
}
