package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.LLM.Model != "gpt-5-mini" {
		t.Errorf("expected gpt-5-mini, got %s", cfg.LLM.Model)
	}
	if cfg.LLM.SummarizerModel != "gpt-5-nano" {
		t.Errorf("expected gpt-5-nano, got %s", cfg.LLM.SummarizerModel)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("expected 127.0.0.1:6379, got %s", cfg.Redis.Addr)
	}
	if cfg.Redis.Prefix != "kage:groupchat" {
		t.Errorf("expected kage:groupchat, got %s", cfg.Redis.Prefix)
	}
	if cfg.Redis.Room != "lobby" {
		t.Errorf("expected lobby, got %s", cfg.Redis.Room)
	}
	if cfg.Redis.MaxMessages != 200 {
		t.Errorf("expected 200, got %d", cfg.Redis.MaxMessages)
	}
	if cfg.Browser.ViewportW != 1280 || cfg.Browser.ViewportH != 800 {
		t.Errorf("expected 1280x800, got %dx%d", cfg.Browser.ViewportW, cfg.Browser.ViewportH)
	}
	if cfg.Browser.Headless {
		t.Error("expected headful default")
	}
	if cfg.Limits.MaxTurns != 150 {
		t.Errorf("expected 150, got %d", cfg.Limits.MaxTurns)
	}
	if cfg.Limits.RPM != 0 || cfg.Limits.TPM != 0 {
		t.Errorf("expected rate limits disabled by default, got rpm=%d tpm=%d", cfg.Limits.RPM, cfg.Limits.TPM)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Store.Driver)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[llm]
model = "gpt-5"

[redis]
room = "research"
max_messages = 50

[browser]
headless = true
`), 0644)

	cfg := Load(path)
	if cfg.LLM.Model != "gpt-5" {
		t.Errorf("expected gpt-5, got %s", cfg.LLM.Model)
	}
	if cfg.Redis.Room != "research" {
		t.Errorf("expected research, got %s", cfg.Redis.Room)
	}
	if cfg.Redis.MaxMessages != 50 {
		t.Errorf("expected 50, got %d", cfg.Redis.MaxMessages)
	}
	if !cfg.Browser.Headless {
		t.Error("expected headless true")
	}
	// Defaults preserved
	if cfg.Redis.Prefix != "kage:groupchat" {
		t.Errorf("default should be preserved, got %s", cfg.Redis.Prefix)
	}
	if cfg.LLM.SummarizerModel != "gpt-5-nano" {
		t.Errorf("default should be preserved, got %s", cfg.LLM.SummarizerModel)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("KAGE_LLM_API_KEY", "env-key")
	t.Setenv("KAGE_GROUPCHAT_ROOM", "ops")
	t.Setenv("KAGE_REDIS_HOST", "redis.internal")
	t.Setenv("KAGE_REDIS_PORT", "6380")
	t.Setenv("KAGE_REDIS_DB", "2")
	t.Setenv("KAGE_MAX_TURNS", "40")

	cfg := Load("/nonexistent/path.toml")
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.Redis.Room != "ops" {
		t.Errorf("expected ops, got %s", cfg.Redis.Room)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("expected redis.internal:6380, got %s", cfg.Redis.Addr)
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("expected db 2, got %d", cfg.Redis.DB)
	}
	if cfg.Limits.MaxTurns != 40 {
		t.Errorf("expected 40, got %d", cfg.Limits.MaxTurns)
	}
}

func TestEnvOverridesHostOnly(t *testing.T) {
	t.Setenv("KAGE_REDIS_HOST", "10.0.0.5")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Redis.Addr != "10.0.0.5:6379" {
		t.Errorf("expected 10.0.0.5:6379, got %s", cfg.Redis.Addr)
	}
}

func TestAPIKeyEnvFallback(t *testing.T) {
	t.Setenv("MY_PROVIDER_KEY", "sk-from-named-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[llm]
api_key_env = "MY_PROVIDER_KEY"
`), 0644)

	cfg := Load(path)
	if cfg.LLM.APIKey != "sk-from-named-env" {
		t.Errorf("expected sk-from-named-env, got %s", cfg.LLM.APIKey)
	}
}

func TestSummarizerFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[llm]
model = "gpt-4.1"
summarizer_model = ""
`), 0644)

	cfg := Load(path)
	if cfg.LLM.SummarizerModel != "gpt-4.1" {
		t.Errorf("expected summarizer fallback to gpt-4.1, got %s", cfg.LLM.SummarizerModel)
	}
}

func TestChatDisabledEnv(t *testing.T) {
	t.Setenv("KAGE_CHAT_DISABLED", "1")

	cfg := Load("/nonexistent/path.toml")
	if !cfg.Redis.Disabled {
		t.Error("expected chat disabled")
	}
}

func TestSummarizationEnv(t *testing.T) {
	if cfg := Load("/nonexistent/path.toml"); cfg.LLM.EnableSummarization {
		t.Error("expected summarization off by default")
	}

	t.Setenv("KAGE_ENABLE_SUMMARIZATION", "1")
	if cfg := Load("/nonexistent/path.toml"); !cfg.LLM.EnableSummarization {
		t.Error("expected summarization enabled")
	}
}

func TestRateLimitsFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[limits]
rpm = 60
tpm = 100000
`), 0644)

	cfg := Load(path)
	if cfg.Limits.RPM != 60 {
		t.Errorf("expected rpm 60, got %d", cfg.Limits.RPM)
	}
	if cfg.Limits.TPM != 100000 {
		t.Errorf("expected tpm 100000, got %d", cfg.Limits.TPM)
	}
}

func TestRateLimitsEnvOverride(t *testing.T) {
	t.Setenv("KAGE_MAX_RPM", "30")
	t.Setenv("KAGE_MAX_TPM", "50000")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Limits.RPM != 30 {
		t.Errorf("expected rpm 30, got %d", cfg.Limits.RPM)
	}
	if cfg.Limits.TPM != 50000 {
		t.Errorf("expected tpm 50000, got %d", cfg.Limits.TPM)
	}
}
