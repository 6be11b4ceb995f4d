package llm

import (
	"context"
	"fmt"
)

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 1024
)

// GenerationOptions are passed to every request a client makes.
type GenerationOptions struct {
	Temperature float64
	MaxTokens   int
}

func (g GenerationOptions) withDefaults() GenerationOptions {
	if g.Temperature < 0 {
		g.Temperature = defaultTemperature
	}
	if g.MaxTokens <= 0 {
		g.MaxTokens = defaultMaxTokens
	}
	return g
}

type ProviderConfig struct {
	Provider  string
	APIKey    string
	AuthToken string // OAuth token (Bearer auth)
	Model     string
	BaseURL   string
	GenerationOptions
}

func NewClient(ctx context.Context, cfg ProviderConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(cfg.APIKey, cfg.AuthToken, cfg.Model, cfg.GenerationOptions), nil
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model, "", cfg.GenerationOptions), nil
	case "ollama":
		if cfg.Model == "" {
			cfg.Model = "llama3.1"
		}
		return NewOpenAIClient("ollama", cfg.Model, cfg.BaseURL, cfg.GenerationOptions), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.GenerationOptions)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}

// Helpers for reading the JSON Schema maps carried by Tool.Parameters.

func schemaProperties(schema map[string]any) map[string]any {
	if props, ok := schema["properties"].(map[string]any); ok {
		return props
	}
	return map[string]any{}
}

func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func paramsOrEmpty(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return params
}
