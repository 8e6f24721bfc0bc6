package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/evidencecheck/internal/model"
)

const defaultOllamaBaseURL = "http://localhost:11434/v1"

// NewProvider creates a new LLM provider based on configuration.
// A nil provider with a nil error means LLM summaries are disabled.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		// Ollama serves an OpenAI-compatible API and needs no key
		if config.BaseURL == "" {
			config.BaseURL = defaultOllamaBaseURL
		}
		if config.APIKey == "" {
			config.APIKey = "ollama"
		}
		p, err := NewOpenAIProvider(config)
		if err != nil {
			return nil, err
		}
		p.name = "ollama"
		return p, nil

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel converts the application config to llm.Config
func ConfigFromModel(llmCfg model.LLMConfig, httpCfg model.HTTPConfig) Config {
	return Config{
		Provider:    llmCfg.Provider,
		Model:       llmCfg.Model,
		APIKey:      llmCfg.APIKey,
		BaseURL:     llmCfg.BaseURL,
		Timeout:     llmCfg.Timeout,
		StrictScore: true,
		MaxTokens:   llmCfg.MaxTokens,
		HTTPProxy:   httpCfg.HTTPProxy,
		HTTPSProxy:  httpCfg.HTTPSProxy,
		NoProxy:     httpCfg.NoProxy,
	}
}
