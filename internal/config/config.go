package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultPort          = 18790
	DefaultFallbackReply = "Sorry, I could not come up with an answer. Could you rephrase that?"
	DefaultFailureReply  = "Sorry, something went wrong on our side. Please try again in a moment."
)

// EmbedderHash names the offline embedder used when no embedding provider
// is configured.
const EmbedderHash = "hash"

// baseConfig holds the defaults YAML can only turn off, so they are set
// before the file is decoded.
func baseConfig() Config {
	var cfg Config
	cfg.Memory.Enabled = true
	cfg.Memory.Analyze = true
	return cfg
}

// Defaults returns a Config with sensible defaults applied and no
// credentials.
func Defaults() Config {
	cfg := baseConfig()
	applyDefaults(&cfg)
	cfg.Memory.Embedder = EmbedderHash
	return cfg
}

// TurnTimeoutDuration parses agents.turnTimeout, falling back to two minutes.
func (c AgentsConfig) TurnTimeoutDuration() time.Duration {
	return parseDuration(c.TurnTimeout, 2*time.Minute)
}

// AnalyzeTimeoutDuration parses memory.analyzeTimeout, falling back to 30s.
func (c MemoryConfig) AnalyzeTimeoutDuration() time.Duration {
	return parseDuration(c.AnalyzeTimeout, 30*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
