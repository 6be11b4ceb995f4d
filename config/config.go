package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/chris/whispr/internal/agent"
	"github.com/chris/whispr/internal/llm"
)

type Config struct {
	LLMProvider    string // anthropic, openai, ollama, gemini
	AnthropicKey   string // API key (X-Api-Key header)
	AnthropicToken string // OAuth token (Authorization: Bearer header)
	OpenAIKey      string
	GeminiKey      string
	LLMModel       string
	OllamaBaseURL  string
	Temperature    float64
	MaxTokens      int

	MaxTurns         int
	MaxToolCalls     int
	MaxParallelTools int
	ModelTimeout     time.Duration
	ToolTimeout      time.Duration
	MaxContextTokens int
	SystemPrompt     string

	StoreBackend  string // sqlite, mongo, memory
	DatabasePath  string
	MongoURI      string
	MongoDatabase string

	ListenAddr       string
	DiscordToken     string
	SessionTTL       time.Duration
	SessionSweepCron string
	LogLevel         string
}

// ConfigDir returns ~/.whispr.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".whispr")
}

// ConfigFile returns ~/.whispr/config.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config")
}

// Load reads .env in the working directory and then ~/.whispr/config.
// godotenv never overrides a variable that is already set, so the process
// environment wins over .env, which wins over the config file.
func Load() *Config {
	_ = godotenv.Load()             // ignore error if no .env
	_ = godotenv.Load(ConfigFile()) // nor a missing config file

	return &Config{
		LLMProvider:    envOr("LLM_PROVIDER", "anthropic"),
		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicToken: os.Getenv("ANTHROPIC_AUTH_TOKEN"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		GeminiKey:      os.Getenv("GEMINI_API_KEY"),
		LLMModel:       os.Getenv("LLM_MODEL"),
		OllamaBaseURL:  envOr("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
		Temperature:    envFloat("LLM_TEMPERATURE", 0.2),
		MaxTokens:      envInt("LLM_MAX_TOKENS", 1024),

		MaxTurns:         envInt("AGENT_MAX_TURNS", agent.DefaultMaxTurns),
		MaxToolCalls:     envInt("AGENT_MAX_TOOL_CALLS", agent.DefaultMaxToolCallsPerTurn),
		MaxParallelTools: envInt("AGENT_MAX_PARALLEL_TOOLS", agent.DefaultMaxParallelTools),
		ModelTimeout:     envDuration("MODEL_TIMEOUT", agent.DefaultModelTimeout),
		ToolTimeout:      envDuration("TOOL_TIMEOUT", agent.DefaultToolTimeout),
		MaxContextTokens: envInt("MAX_CONTEXT_TOKENS", agent.DefaultMaxContextTokens),
		SystemPrompt:     os.Getenv("SYSTEM_PROMPT"),

		StoreBackend:  envOr("STORE_BACKEND", "sqlite"),
		DatabasePath:  envOr("DATABASE_PATH", filepath.Join(ConfigDir(), "whispr.db")),
		MongoURI:      envOr("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: envOr("MONGO_DATABASE", "whispr"),

		ListenAddr:       envOr("LISTEN_ADDR", "127.0.0.1:8765"),
		DiscordToken:     os.Getenv("DISCORD_BOT_TOKEN"),
		SessionTTL:       envDuration("SESSION_TTL", 24*time.Hour),
		SessionSweepCron: envOr("SESSION_SWEEP_CRON", "*/15 * * * *"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
	}
}

// Provider returns the model gateway settings for the configured provider.
func (c *Config) Provider() llm.ProviderConfig {
	apiKey := c.AnthropicKey
	switch c.LLMProvider {
	case "openai":
		apiKey = c.OpenAIKey
	case "gemini":
		apiKey = c.GeminiKey
	}
	return llm.ProviderConfig{
		Provider:  c.LLMProvider,
		APIKey:    apiKey,
		AuthToken: c.AnthropicToken,
		Model:     c.LLMModel,
		BaseURL:   c.OllamaBaseURL,
		GenerationOptions: llm.GenerationOptions{
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
		},
	}
}

func (c *Config) Agent() agent.Config {
	return agent.Config{
		MaxTurns:            c.MaxTurns,
		ModelTimeout:        c.ModelTimeout,
		ToolTimeout:         c.ToolTimeout,
		MaxToolCallsPerTurn: c.MaxToolCalls,
		MaxParallelTools:    c.MaxParallelTools,
		MaxContextTokens:    c.MaxContextTokens,
		SystemPrompt:        c.SystemPrompt,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}
