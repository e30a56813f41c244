package gemini

import "net/http"

// Option configures a Gemini provider.
type Option func(*Provider)

// WithTemperature sets the sampling temperature (default 0.1).
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithTopP sets nucleus sampling top-p (default 0.9).
func WithTopP(topP float64) Option {
	return func(p *Provider) { p.topP = topP }
}

// WithThinking enables or disables thinking mode (default false).
// When enabled, sends thinkingConfig with budget -1 (dynamic).
// When disabled, thinkingConfig is omitted entirely.
func WithThinking(enabled bool) Option {
	return func(p *Provider) { p.thinkingEnabled = enabled }
}

// WithBaseURL overrides the API base URL (regional endpoints, proxies, tests).
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client (e.g. for timeouts).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}
