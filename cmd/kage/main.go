// Command kage runs a web automation agent swarm from the terminal.
//
// Usage:
//
//	kage find the three cheapest flights from SFO to Tokyo in November
//
// With no arguments the task is read from stdin. Config comes from
// kage.toml (or $KAGE_CONFIG) plus KAGE_* env overrides; a .env file is
// loaded when present. Run activity streams to stderr, the final answer
// goes to stdout.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/nevindra/kage"
	"github.com/nevindra/kage/chat"
	"github.com/nevindra/kage/internal/config"
	"github.com/nevindra/kage/observer"
	"github.com/nevindra/kage/provider/resolve"
	"github.com/nevindra/kage/store/postgres"
	"github.com/nevindra/kage/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// .env is optional; the environment wins either way.
	_ = godotenv.Load()

	cfg := config.Load(os.Getenv("KAGE_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	task := strings.TrimSpace(strings.Join(os.Args[1:], " "))
	if task == "" {
		task = readTask()
	}
	if task == "" {
		return fmt.Errorf("no task given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.LLM.APIKey == "" {
		logger.Warn("no API key configured; relying on a local provider", "provider", cfg.LLM.Provider)
	}

	temp := 1.0
	provider, err := resolve.Provider(resolve.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: &temp,
	})
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}
	summarizer, err := resolve.Provider(resolve.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.SummarizerModel,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("summarizer provider: %w", err)
	}

	// Rate limiting sits innermost so every retry attempt counts against
	// the budget. The summarizer is excluded; handoff summaries are rare
	// and small.
	if cfg.Limits.RPM > 0 || cfg.Limits.TPM > 0 {
		var rl []kage.RateLimitOption
		if cfg.Limits.RPM > 0 {
			rl = append(rl, kage.RPM(cfg.Limits.RPM))
		}
		if cfg.Limits.TPM > 0 {
			rl = append(rl, kage.TPM(cfg.Limits.TPM))
		}
		provider = kage.WithRateLimit(provider, rl...)
		logger.Info("rate limiting enabled", "rpm", cfg.Limits.RPM, "tpm", cfg.Limits.TPM)
	}

	// Observer (opt-in via config)
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		if os.Getenv("OTEL_SERVICE_NAME") == "" && cfg.Observer.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Observer.ServiceName)
		}
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}

		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx, pricing)
		if err != nil {
			return fmt.Errorf("observer init: %w", err)
		}
		defer shutdown(context.Background())

		provider = observer.WrapProvider(provider, cfg.LLM.Model, inst)
		summarizer = observer.WrapProvider(summarizer, cfg.LLM.SummarizerModel, inst)
		logger.Info("OTEL observability enabled", "service", cfg.Observer.ServiceName)
	}

	provider = kage.WithRetry(provider, kage.RetryLogger(logger))
	summarizer = kage.WithRetry(summarizer, kage.RetryLogger(logger))

	opts := []kage.Option{
		kage.WithRoom(cfg.Redis.Room),
		kage.WithHeadless(cfg.Browser.Headless),
		kage.WithViewport(cfg.Browser.ViewportW, cfg.Browser.ViewportH),
		kage.WithMaxTurns(cfg.Limits.MaxTurns),
		kage.WithLogger(logger),
		kage.WithSummarizerProvider(summarizer),
	}
	if cfg.LLM.EnableSummarization {
		opts = append(opts, kage.WithSummarization(true))
	}
	if cfg.Browser.ExecPath != "" {
		opts = append(opts, kage.WithExecPath(cfg.Browser.ExecPath))
	}
	if cfg.Browser.ProfileDir != "" {
		opts = append(opts, kage.WithProfileDir(cfg.Browser.ProfileDir))
	}
	if inst != nil {
		opts = append(opts, kage.WithTracer(observer.NewTracer()))
	}

	// Group chat: an unreachable Redis degrades to chatless operation.
	if cfg.Redis.Disabled {
		opts = append(opts, kage.WithChatDisabled())
	} else {
		chatClient := chat.New(chat.Config{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			Prefix:      cfg.Redis.Prefix,
			MaxMessages: cfg.Redis.MaxMessages,
		})
		if err := chatClient.Ping(ctx); err != nil {
			logger.Warn("group chat unavailable, continuing without it", "addr", cfg.Redis.Addr, "error", err)
			chatClient.Close()
			opts = append(opts, kage.WithChatDisabled())
		} else {
			defer chatClient.Close()
			opts = append(opts, kage.WithChat(chatClient))
		}
	}

	// Run transcript store
	switch cfg.Store.Driver {
	case "sqlite":
		st := sqlite.New(cfg.Store.DSN, sqlite.WithLogger(logger))
		if err := st.Init(ctx); err != nil {
			return fmt.Errorf("store init: %w", err)
		}
		defer st.Close()
		opts = append(opts, kage.WithStore(st))
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		st := postgres.New(pool)
		if err := st.Init(ctx); err != nil {
			return fmt.Errorf("store init: %w", err)
		}
		defer st.Close()
		opts = append(opts, kage.WithStore(st))
	case "", "none":
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	agent, err := kage.New(provider, opts...)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}
	defer agent.Close()

	var runner observer.Runner = agent
	if inst != nil {
		runner = observer.WrapAgent(agent, inst)
	}

	events := make(chan kage.StreamEvent, 64)
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		printEvents(events)
	}()

	answer, err := runner.RunStream(ctx, task, events)
	<-printerDone
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	fmt.Println(answer)
	return nil
}

// readTask prompts for a single task line on stdin.
func readTask() string {
	fmt.Fprint(os.Stderr, "task> ")
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return ""
	}
	return strings.TrimSpace(sc.Text())
}

// printEvents renders run activity to stderr until the event channel
// closes. The final answer is printed to stdout by the caller instead.
func printEvents(events <-chan kage.StreamEvent) {
	for ev := range events {
		switch ev.Type {
		case kage.EventTurnStart:
			fmt.Fprintf(os.Stderr, "\n--- turn %d ---\n", ev.Turn)
		case kage.EventObservation:
			fmt.Fprintf(os.Stderr, "[page] %s\n", ev.Content)
		case kage.EventText:
			fmt.Fprintln(os.Stderr, ev.Content)
		case kage.EventToolCallStart:
			fmt.Fprintf(os.Stderr, "[tool] %s %s\n", ev.Name, ev.Args)
		case kage.EventToolCallResult:
			fmt.Fprintf(os.Stderr, "[tool] %s: %s\n", ev.Name, truncate(ev.Content, 200))
		case kage.EventError:
			fmt.Fprintf(os.Stderr, "[error] %s\n", ev.Content)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
