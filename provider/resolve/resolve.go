// Package resolve builds a kage.Provider from provider-agnostic config,
// so switching LLM vendors is a one-string change in kage.toml.
package resolve

import (
	"fmt"

	"github.com/nevindra/kage"
	"github.com/nevindra/kage/provider/gemini"
	"github.com/nevindra/kage/provider/openaicompat"
)

// Config names a provider and carries the cross-provider knobs. Nil
// option fields mean "use the provider default".
type Config struct {
	Provider string // "openai", "openrouter", "gemini", "groq", "deepseek", "together", "mistral", "ollama"
	APIKey   string
	Model    string
	BaseURL  string // overrides the well-known host; required for providers not listed above

	Temperature *float64
	TopP        *float64
	Thinking    *bool
}

// knownHosts maps provider names to their OpenAI-compatible endpoints.
var knownHosts = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"together":   "https://api.together.xyz/v1",
	"mistral":    "https://api.mistral.ai/v1",
	"ollama":     "http://localhost:11434/v1",
}

// Provider builds a kage.Provider from cfg. Gemini gets its native
// client; everything else speaks the OpenAI wire format. A provider
// name not in the known set works too, as long as cfg.BaseURL points
// at its endpoint — that is how self-hosted vLLM or LiteLLM gateways
// plug in.
func Provider(cfg Config) (kage.Provider, error) {
	if cfg.Provider == "gemini" || cfg.Provider == "google" {
		return buildGemini(cfg), nil
	}
	base := cfg.BaseURL
	if base == "" {
		base = knownHosts[cfg.Provider]
	}
	if base == "" {
		return nil, fmt.Errorf("resolve: unknown provider %q and no base_url configured", cfg.Provider)
	}
	return buildCompat(cfg, base), nil
}

func buildGemini(cfg Config) kage.Provider {
	var opts []gemini.Option
	if cfg.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Temperature != nil {
		opts = append(opts, gemini.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		opts = append(opts, gemini.WithTopP(*cfg.TopP))
	}
	if cfg.Thinking != nil {
		opts = append(opts, gemini.WithThinking(*cfg.Thinking))
	}
	return gemini.New(cfg.APIKey, cfg.Model, opts...)
}

func buildCompat(cfg Config, baseURL string) kage.Provider {
	// Thinking is a Gemini-only knob; compat hosts ignore it.
	var req []openaicompat.Option
	if cfg.Temperature != nil {
		req = append(req, openaicompat.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		req = append(req, openaicompat.WithTopP(*cfg.TopP))
	}

	opts := []openaicompat.ProviderOption{openaicompat.WithName(cfg.Provider)}
	if len(req) > 0 {
		opts = append(opts, openaicompat.WithOptions(req...))
	}
	return openaicompat.NewProvider(cfg.APIKey, cfg.Model, baseURL, opts...)
}
