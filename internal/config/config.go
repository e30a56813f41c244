package config

import (
	"net"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Browser  BrowserConfig  `toml:"browser"`
	Redis    RedisConfig    `toml:"redis"`
	Limits   LimitsConfig   `toml:"limits"`
	Store    StoreConfig    `toml:"store"`
	Observer ObserverConfig `toml:"observer"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	// BaseURL overrides the provider's default endpoint. Leave empty for
	// the well-known URL of the chosen provider.
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	// SummarizerModel is the cheaper model used for delegation handoff
	// and per-action summaries. Empty falls back to Model.
	SummarizerModel string `toml:"summarizer_model"`
	// EnableSummarization turns on per-action page-change summaries.
	EnableSummarization bool   `toml:"enable_summarization"`
	APIKey              string `toml:"api_key"`
	// APIKeyEnv names the env var holding the key when api_key is unset.
	APIKeyEnv string `toml:"api_key_env"`
}

type BrowserConfig struct {
	Headless   bool   `toml:"headless"`
	ExecPath   string `toml:"exec_path"`
	ProfileDir string `toml:"profile_dir"`
	ViewportW  int    `toml:"viewport_width"`
	ViewportH  int    `toml:"viewport_height"`
}

type RedisConfig struct {
	Addr        string `toml:"addr"`
	Password    string `toml:"password"`
	DB          int    `toml:"db"`
	Prefix      string `toml:"prefix"`
	Room        string `toml:"room"`
	MaxMessages int    `toml:"max_messages"`
	// Disabled turns the group chat layer off entirely.
	Disabled bool `toml:"disabled"`
}

type LimitsConfig struct {
	MaxTurns int `toml:"max_turns"`
	// RPM and TPM cap the shared LLM provider's requests and tokens per
	// minute across the whole swarm. Zero disables the cap.
	RPM int `toml:"rpm"`
	TPM int `toml:"tpm"`
}

type StoreConfig struct {
	// Driver selects the run transcript store: "sqlite", "postgres", or
	// empty to disable persistence.
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type ObserverConfig struct {
	Enabled     bool                     `toml:"enabled"`
	ServiceName string                   `toml:"service_name"`
	Pricing     map[string]PricingConfig `toml:"pricing"`
}

type PricingConfig struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:        "openai",
			Model:           "gpt-5-mini",
			SummarizerModel: "gpt-5-nano",
			APIKeyEnv:       "OPENAI_API_KEY",
		},
		Browser: BrowserConfig{ViewportW: 1280, ViewportH: 800},
		Redis: RedisConfig{
			Addr:        "127.0.0.1:6379",
			Prefix:      "kage:groupchat",
			Room:        "lobby",
			MaxMessages: 200,
		},
		Limits:   LimitsConfig{MaxTurns: 150},
		Store:    StoreConfig{Driver: "sqlite", DSN: "kage.db"},
		Observer: ObserverConfig{ServiceName: "kage"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "kage.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("KAGE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("KAGE_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("KAGE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("KAGE_SUMMARIZER_MODEL"); v != "" {
		cfg.LLM.SummarizerModel = v
	}
	if v := os.Getenv("KAGE_ENABLE_SUMMARIZATION"); v == "true" || v == "1" {
		cfg.LLM.EnableSummarization = true
	}
	if v := os.Getenv("KAGE_BROWSER_HEADLESS"); v == "true" || v == "1" {
		cfg.Browser.Headless = true
	}
	if v := os.Getenv("KAGE_BROWSER_EXEC_PATH"); v != "" {
		cfg.Browser.ExecPath = v
	}
	if h, p := os.Getenv("KAGE_REDIS_HOST"), os.Getenv("KAGE_REDIS_PORT"); h != "" || p != "" {
		host, port, err := net.SplitHostPort(cfg.Redis.Addr)
		if err != nil {
			host, port = "127.0.0.1", "6379"
		}
		if h != "" {
			host = h
		}
		if p != "" {
			port = p
		}
		cfg.Redis.Addr = net.JoinHostPort(host, port)
	}
	if v := os.Getenv("KAGE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("KAGE_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("KAGE_GROUPCHAT_PREFIX"); v != "" {
		cfg.Redis.Prefix = v
	}
	if v := os.Getenv("KAGE_GROUPCHAT_ROOM"); v != "" {
		cfg.Redis.Room = v
	}
	if v := os.Getenv("KAGE_MAX_ROOM_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.MaxMessages = n
		}
	}
	if v := os.Getenv("KAGE_CHAT_DISABLED"); v == "true" || v == "1" {
		cfg.Redis.Disabled = true
	}
	if v := os.Getenv("KAGE_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxTurns = n
		}
	}
	if v := os.Getenv("KAGE_MAX_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.RPM = n
		}
	}
	if v := os.Getenv("KAGE_MAX_TPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.TPM = n
		}
	}
	if v := os.Getenv("KAGE_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("KAGE_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("KAGE_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.LLM.APIKey == "" && cfg.LLM.APIKeyEnv != "" {
		cfg.LLM.APIKey = os.Getenv(cfg.LLM.APIKeyEnv)
	}
	if cfg.LLM.SummarizerModel == "" {
		cfg.LLM.SummarizerModel = cfg.LLM.Model
	}

	return cfg
}
