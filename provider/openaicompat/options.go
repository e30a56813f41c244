package openaicompat

import "net/http"

// Option adjusts one generation knob on an outgoing request.
type Option func(*Request)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(r *Request) { r.Temperature = &t }
}

// WithTopP sets nucleus-sampling top-p.
func WithTopP(p float64) Option {
	return func(r *Request) { r.TopP = &p }
}

// WithMaxTokens caps the completion length in tokens.
func WithMaxTokens(n int) Option {
	return func(r *Request) { r.MaxTokens = n }
}

// ProviderOption configures the Provider itself rather than a request.
type ProviderOption func(*Provider)

// WithName overrides the name reported by Name. Gateways that speak this
// dialect (groq, openrouter, ...) set it so logs and spans identify the
// real backend.
func WithName(name string) ProviderOption {
	return func(p *Provider) { p.name = name }
}

// WithHTTPClient swaps the HTTP client, for timeouts or proxying.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.client = c }
}

// WithOptions fixes generation knobs that apply to every request this
// provider sends.
func WithOptions(opts ...Option) ProviderOption {
	return func(p *Provider) { p.opts = append(p.opts, opts...) }
}
