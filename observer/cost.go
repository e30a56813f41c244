package observer

import "maps"

// ModelPricing holds per-million-token USD rates for one model.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// DefaultPricing covers the models the bundled providers speak out of the
// box. [observer.pricing] in kage.toml extends or overrides it.
var DefaultPricing = map[string]ModelPricing{
	// OpenAI
	"gpt-5":        {1.25, 10.00},
	"gpt-5-mini":   {0.25, 2.00},
	"gpt-5-nano":   {0.05, 0.40},
	"gpt-4o":       {2.50, 10.00},
	"gpt-4o-mini":  {0.15, 0.60},
	"gpt-4.1":      {2.00, 8.00},
	"gpt-4.1-mini": {0.40, 1.60},
	"gpt-4.1-nano": {0.10, 0.40},
	"o3-mini":      {1.10, 4.40},

	// Anthropic
	"claude-sonnet-4-5": {3.00, 15.00},
	"claude-haiku-3-5":  {0.80, 4.00},
	"claude-opus-4":     {15.00, 75.00},

	// Google
	"gemini-2.5-pro":        {1.25, 10.00},
	"gemini-2.5-flash":      {0.15, 0.60},
	"gemini-2.5-flash-lite": {0.10, 0.40},
	"gemini-2.0-flash":      {0.10, 0.40},
}

// CostCalculator converts token usage into USD.
type CostCalculator struct {
	pricing map[string]ModelPricing
}

// NewCostCalculator merges overrides on top of DefaultPricing. Overrides win
// per model name; defaults are never mutated.
func NewCostCalculator(overrides map[string]ModelPricing) *CostCalculator {
	merged := maps.Clone(DefaultPricing)
	maps.Copy(merged, overrides)
	return &CostCalculator{pricing: merged}
}

// Calculate returns the USD cost for a call. Unknown models cost zero rather
// than erroring, so an unpriced model never breaks telemetry.
func (c *CostCalculator) Calculate(model string, inputTokens, outputTokens int) float64 {
	p, ok := c.pricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*p.InputPerMillion +
		float64(outputTokens)/1e6*p.OutputPerMillion
}
