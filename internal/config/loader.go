package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields resolves ${ENV_VAR} references in credential and
// connection-string fields.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	for i := range cfg.LLM.Fallbacks {
		cfg.LLM.Fallbacks[i].APIKey = expandEnvVars(cfg.LLM.Fallbacks[i].APIKey)
	}
	cfg.Booking.MongoURI = expandEnvVars(cfg.Booking.MongoURI)
	cfg.Memory.MongoURI = expandEnvVars(cfg.Memory.MongoURI)
	cfg.Memory.EmbedAPIKey = expandEnvVars(cfg.Memory.EmbedAPIKey)
	cfg.Media.APIKey = expandEnvVars(cfg.Media.APIKey)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := baseConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return Defaults(), err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
	}

	// Provider-keyed defaults depend on the provider the file or env chose.
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	fill(&cfg.LLM.APIKey, providerKeyFromEnv(cfg.LLM.Provider))
	inferEmbedder(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file as a generic map for key-path edits.
// A missing file yields an empty map.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	return raw, nil
}

// SaveRaw writes raw back to path as YAML, creating the parent directory.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// fill sets *p to v when *p is the zero value.
func fill[T comparable](p *T, v T) {
	var zero T
	if *p == zero {
		*p = v
	}
}

// defaultModels is the model used when only a provider is configured.
var defaultModels = map[string]string{
	"gemini": "gemini-2.0-flash",
	"openai": "gpt-4o-mini",
	"claude": "claude-sonnet-4-5",
}

// applyDefaults fills what a partial config file left unset.
func applyDefaults(cfg *Config) {
	fill(&cfg.Gateway.Port, DefaultPort)
	fill(&cfg.Gateway.Bind, "loopback")
	fill(&cfg.Gateway.Auth.Mode, "token")

	fill(&cfg.LLM.Provider, "gemini")
	fill(&cfg.LLM.Model, defaultModels[cfg.LLM.Provider])
	fill(&cfg.LLM.Model, defaultModels["gemini"])
	fill(&cfg.LLM.MaxTokens, 2048)

	fill(&cfg.Agents.MaxAttempts, 3)
	fill(&cfg.Agents.MaxToolRounds, 12)
	fill(&cfg.Agents.FallbackReply, DefaultFallbackReply)
	fill(&cfg.Agents.FailureReply, DefaultFailureReply)

	fill(&cfg.Booking.Store, "memory")
	fill(&cfg.Booking.Database, "flight_booking")

	fill(&cfg.Memory.Store, "sqlite")
	fill(&cfg.Memory.K, 3)
	fill(&cfg.Memory.Database, "flight_booking")
	fill(&cfg.Memory.Collection, "recall_memories")
	fill(&cfg.Memory.VectorIndex, "recall_vector_index")

	fill(&cfg.Checkpoint.Store, "sqlite")
	fill(&cfg.Media.TranscribeModel, "whisper-large-v3-turbo")
	fill(&cfg.Media.VisionModel, "llama-3.2-90b-vision-preview")
	fill(&cfg.Logging.Level, "info")
	fill(&cfg.Logging.ConsoleStyle, "pretty")
}

// envOverrides maps TRIPDESK_* variables onto config fields. They win over
// the file.
var envOverrides = []struct {
	name  string
	apply func(*Config, string)
}{
	{"TRIPDESK_GATEWAY_PORT", func(c *Config, v string) {
		if port, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = port
		}
	}},
	{"TRIPDESK_GATEWAY_BIND", func(c *Config, v string) { c.Gateway.Bind = v }},
	{"TRIPDESK_LOG_LEVEL", func(c *Config, v string) { c.Logging.Level = strings.ToLower(v) }},
	{"TRIPDESK_LLM_PROVIDER", func(c *Config, v string) { c.LLM.Provider = strings.ToLower(v) }},
	{"TRIPDESK_LLM_MODEL", func(c *Config, v string) { c.LLM.Model = v }},
	{"TRIPDESK_MONGO_URI", func(c *Config, v string) {
		c.Booking.MongoURI = v
		fill(&c.Memory.MongoURI, v)
	}},
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}
}

// inferEmbedder picks an embedding backend from the available credentials
// when memory.embedder is unset: the chat provider's own embeddings first,
// then any OpenAI or Gemini key in the environment, then OLLAMA_HOST. With
// none of those the offline hash embedder is used.
func inferEmbedder(cfg *Config) {
	m := &cfg.Memory
	if m.Embedder != "" {
		return
	}
	if embedProviders[cfg.LLM.Provider] && (m.EmbedAPIKey != "" || cfg.LLM.APIKey != "") {
		m.Embedder = cfg.LLM.Provider
		return
	}
	for _, p := range []string{"openai", "gemini"} {
		if key := providerKeyFromEnv(p); key != "" {
			m.Embedder = p
			fill(&m.EmbedAPIKey, key)
			return
		}
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		m.Embedder = "ollama"
		fill(&m.EmbedEndpoint, host)
		return
	}
	m.Embedder = EmbedderHash
}

// embedProviders are the chat providers that also serve embeddings.
var embedProviders = map[string]bool{"openai": true, "gemini": true}

// providerKeyFromEnv returns the conventional API key variable for a provider.
func providerKeyFromEnv(provider string) string {
	switch provider {
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "claude":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}
