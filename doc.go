// Package kage is a multi-agent web-automation framework for Go.
//
// A root agent receives a natural-language task, drives a real Chrome
// browser through a fixed vocabulary of grounded actions, and may spawn
// isolated clone sub-agents in parallel to pursue independent subtasks.
// Every page interaction is verified against an observed page-state
// change, and agents coordinate through a shared Redis group chat.
//
// # Quick Start
//
//	provider := openaicompat.NewProvider(apiKey, "gpt-4o-mini", "https://api.openai.com/v1")
//
//	agent, err := kage.New(provider, kage.WithHeadless(true))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer agent.Close()
//
//	answer, err := agent.Run(ctx, "Find the number of stars of the chromedp repo")
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Provider] — LLM backend (chat, tool calling, streaming)
//   - [Tool] — pluggable capability for LLM function calling
//   - [Store] — run transcript persistence
//   - [Tracer] — pluggable span tracing
//
// # Included Implementations
//
// Providers: provider/openaicompat (OpenAI-compatible APIs), provider/gemini
// (Google Gemini), provider/resolve (provider selection by name).
// Browser: browser (chromedp session with annotation and human-like input).
// Coordination: chat (Redis group chat).
// Storage: store/sqlite (local), store/postgres (shared).
//
// See the cmd/kage directory for a complete reference CLI.
package kage
