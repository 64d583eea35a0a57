// Package pricing provides per-model USD cost estimation for token usage.
package pricing

// ModelPricing holds per-million-token costs in USD.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
	CachedPer1M float64 // cached/reused input tokens, where the provider discounts them
}

// Known model pricing as of mid 2026. Add new models as needed.
var knownModels = map[string]ModelPricing{
	// Gemini
	"gemini-2.0-flash-exp":  {0.0, 0.0, 0.0},
	"gemini-1.5-pro":        {1.25, 5.00, 0.3125},
	"gemini-2.5-flash":      {0.075, 0.30, 0.01875},
	"gemini-2.5-flash-lite": {0.0, 0.0, 0.0},
	// Anthropic
	"claude-3-7-sonnet": {3.00, 15.00, 0.30},
	"claude-sonnet-4-5": {3.00, 15.00, 0.30},
	// OpenAI
	"gpt-4o":      {2.50, 10.00, 1.25},
	"gpt-4o-mini": {0.15, 0.60, 0.075},
}

// Cost returns the estimated USD cost for the given token counts.
// Unknown models cost 0.0 (safe default, never a guess).
func Cost(model string, inputTokens, outputTokens, cachedTokens int) float64 {
	p, ok := knownModels[model]
	if !ok {
		return 0.0
	}
	return (float64(inputTokens)/1_000_000)*p.InputPer1M +
		(float64(outputTokens)/1_000_000)*p.OutputPer1M +
		(float64(cachedTokens)/1_000_000)*p.CachedPer1M
}

// Known reports whether the model has a pricing entry.
func Known(model string) bool {
	_, ok := knownModels[model]
	return ok
}
