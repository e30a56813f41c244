package resolve

import (
	"maps"
	"testing"
)

func TestKnownHosts(t *testing.T) {
	want := map[string]string{
		"openai":     "https://api.openai.com/v1",
		"openrouter": "https://openrouter.ai/api/v1",
		"groq":       "https://api.groq.com/openai/v1",
		"deepseek":   "https://api.deepseek.com/v1",
		"together":   "https://api.together.xyz/v1",
		"mistral":    "https://api.mistral.ai/v1",
		"ollama":     "http://localhost:11434/v1",
	}
	if !maps.Equal(knownHosts, want) {
		t.Errorf("knownHosts = %v, want %v", knownHosts, want)
	}
}

func TestProviderByName(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantName string
		wantErr  bool
	}{
		{"gemini", Config{Provider: "gemini", APIKey: "k", Model: "gemini-2.5-flash"}, "gemini", false},
		{"google alias", Config{Provider: "google", APIKey: "k", Model: "gemini-2.5-flash"}, "gemini", false},
		{"openai", Config{Provider: "openai", APIKey: "k", Model: "gpt-5-mini"}, "openai", false},
		{"openrouter", Config{Provider: "openrouter", APIKey: "k", Model: "m"}, "openrouter", false},
		{"groq", Config{Provider: "groq", APIKey: "k", Model: "m"}, "groq", false},
		{"ollama", Config{Provider: "ollama", Model: "m"}, "ollama", false},
		{"custom host", Config{Provider: "vllm", Model: "m", BaseURL: "http://10.0.0.5:8000/v1"}, "vllm", false},
		{"unknown without host", Config{Provider: "unknown-llm", APIKey: "k", Model: "m"}, "", true},
		{"empty provider", Config{APIKey: "k", Model: "m"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Provider(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Provider error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if p == nil {
				t.Fatal("provider is nil")
			}
			if p.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestProviderCarriesOptions(t *testing.T) {
	temp, topP, thinking := 0.7, 0.95, true

	// Gemini takes all three knobs.
	p, err := Provider(Config{
		Provider:    "gemini",
		APIKey:      "k",
		Model:       "gemini-2.5-flash",
		Temperature: &temp,
		TopP:        &topP,
		Thinking:    &thinking,
	})
	if err != nil || p == nil {
		t.Fatalf("gemini: p=%v err=%v", p, err)
	}

	// Compat hosts take temperature and top_p; thinking is ignored, not an error.
	p, err = Provider(Config{
		Provider:    "openai",
		APIKey:      "k",
		Model:       "gpt-5-mini",
		Temperature: &temp,
		TopP:        &topP,
		Thinking:    &thinking,
	})
	if err != nil || p == nil {
		t.Fatalf("openai: p=%v err=%v", p, err)
	}
}
