package config

// Config is the root configuration for tripdesk.
type Config struct {
	Gateway    GatewayConfig    `yaml:"gateway,omitempty"`
	LLM        LLMConfig        `yaml:"llm,omitempty"`
	Agents     AgentsConfig     `yaml:"agents,omitempty"`
	Booking    BookingConfig    `yaml:"booking,omitempty"`
	Memory     MemoryConfig     `yaml:"memory,omitempty"`
	Checkpoint CheckpointConfig `yaml:"checkpoint,omitempty"`
	Media      MediaConfig      `yaml:"media,omitempty"`
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	Hooks      HooksConfig      `yaml:"hooks,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int              `yaml:"port,omitempty"`
	Bind           string           `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string           `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth      `yaml:"auth,omitempty"`
	TLS            GatewayTLS       `yaml:"tls,omitempty"`
	ControlUI      GatewayControlUI `yaml:"controlUi,omitempty"`
	Metrics        bool             `yaml:"metrics,omitempty"` // expose GET /metrics
	// TrustCallerParam lets chat.send name its own callerId. Only for trusted frontends.
	TrustCallerParam bool `yaml:"trustCallerParam,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// GatewayControlUI configures browser access to the gateway.
type GatewayControlUI struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// LLMConfig selects the model provider used by every agent.
type LLMConfig struct {
	Provider    string          `yaml:"provider,omitempty"` // "gemini" | "openai" | "claude"
	Model       string          `yaml:"model,omitempty"`
	APIKey      string          `yaml:"apiKey,omitempty"`
	BaseURL     string          `yaml:"baseUrl,omitempty"`
	Temperature *float64        `yaml:"temperature,omitempty"`
	MaxTokens   int             `yaml:"maxTokens,omitempty"`
	Fallbacks   []ProviderEntry `yaml:"fallbacks,omitempty"`
}

// ProviderEntry configures one additional provider tried on retryable failures.
type ProviderEntry struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey,omitempty"`
	BaseURL  string `yaml:"baseUrl,omitempty"`
}

// AgentsConfig bounds the work a single conversational turn may do.
type AgentsConfig struct {
	MaxAttempts   int    `yaml:"maxAttempts,omitempty"`   // model calls per invocation when output is empty
	MaxToolRounds int    `yaml:"maxToolRounds,omitempty"` // model invocations per turn
	TurnTimeout   string `yaml:"turnTimeout,omitempty"`   // e.g. "2m"
	FallbackReply string `yaml:"fallbackReply,omitempty"`
	FailureReply  string `yaml:"failureReply,omitempty"`
}

// BookingConfig selects the booking database.
type BookingConfig struct {
	Store    string `yaml:"store,omitempty"` // "memory" | "mongo"
	MongoURI string `yaml:"mongoUri,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// MemoryConfig configures long-term recall memory.
type MemoryConfig struct {
	Enabled          bool   `yaml:"enabled,omitempty"`
	Store            string `yaml:"store,omitempty"`    // "memory" | "sqlite" | "mongo"
	Embedder         string `yaml:"embedder,omitempty"` // "openai" | "gemini" | "ollama" | "hash"
	EmbedModel       string `yaml:"embedModel,omitempty"`
	EmbedAPIKey      string `yaml:"embedApiKey,omitempty"`
	EmbedEndpoint    string `yaml:"embedEndpoint,omitempty"`
	K                int    `yaml:"k,omitempty"`
	Analyze          bool   `yaml:"analyze,omitempty"`
	AnalyzeTimeout   string `yaml:"analyzeTimeout,omitempty"`
	MongoURI         string `yaml:"mongoUri,omitempty"`
	Database         string `yaml:"database,omitempty"`
	Collection       string `yaml:"collection,omitempty"`
	VectorIndex      string `yaml:"vectorIndex,omitempty"`
	DestinationsFile string `yaml:"destinationsFile,omitempty"`
}

// CheckpointConfig selects where conversation checkpoints live.
type CheckpointConfig struct {
	Store string `yaml:"store,omitempty"` // "memory" | "sqlite"
	Path  string `yaml:"path,omitempty"`
}

// MediaConfig configures the audio and image adapters. Any OpenAI-compatible
// endpoint works (e.g. Groq).
type MediaConfig struct {
	Enabled         bool   `yaml:"enabled,omitempty"`
	BaseURL         string `yaml:"baseUrl,omitempty"`
	APIKey          string `yaml:"apiKey,omitempty"`
	TranscribeModel string `yaml:"transcribeModel,omitempty"`
	VisionModel     string `yaml:"visionModel,omitempty"`
	Language        string `yaml:"language,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	FileLevel    string `yaml:"fileLevel,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// HooksConfig defines shell commands run on lifecycle events.
type HooksConfig struct {
	TurnEnd       []HookEntry `yaml:"turnEnd,omitempty"`
	AgentTransfer []HookEntry `yaml:"agentTransfer,omitempty"`
	AgentEscalate []HookEntry `yaml:"agentEscalate,omitempty"`
	MemoryStored  []HookEntry `yaml:"memoryStored,omitempty"`
	GatewayStart  []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop   []HookEntry `yaml:"gatewayStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
