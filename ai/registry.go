package ai

import (
	"fmt"

	"github.com/DachengChen/paiViz/config"
)

// SupportedProviders lists available provider names for display.
var SupportedProviders = []string{"openai", "anthropic", "gemini", "ollama", "placeholder"}

// NewProvider creates a completion provider from the application config.
// Falls back to placeholder when no provider is selected.
func NewProvider(cfg config.ProviderConfig, maxTokens int) (Provider, error) {
	switch cfg.Name {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key not set. Set OPENAI_API_KEY env var or add provider.openai.api_key to %s", config.DefaultPath)
		}
		return NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model, int64(maxTokens)), nil

	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key not set. Set ANTHROPIC_API_KEY env var or add provider.anthropic.api_key to %s", config.DefaultPath)
		}
		return NewAnthropic(cfg.Anthropic.APIKey, cfg.Anthropic.Model, int64(maxTokens)), nil

	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("Gemini API key not set. Set GEMINI_API_KEY env var or add provider.gemini.api_key to %s", config.DefaultPath)
		}
		return NewGemini(cfg.Gemini.APIKey, cfg.Gemini.Model, maxTokens), nil

	case "ollama":
		return NewOllama(cfg.Ollama.Host, cfg.Ollama.Model), nil

	case "placeholder", "":
		return NewPlaceholder(), nil

	default:
		return nil, fmt.Errorf("unknown provider %q. Supported: openai, anthropic, gemini, ollama, placeholder", cfg.Name)
	}
}
