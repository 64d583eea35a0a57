// Package llm is the governor's facade over language-model providers.
// It exposes a single synchronous Chat call plus availability and token
// estimation; everything above it (compactor, engine) branches on
// Available() and falls back deterministically when the provider is down.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/anthropic"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/basket/go-governor/internal/pricing"
	"github.com/basket/go-governor/internal/tokenutil"
)

// Usage is the token and cost accounting for one provider call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	CachedTokens int
	Cost         float64
}

// Add returns the element-wise sum of u and v.
func (u Usage) Add(v Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + v.InputTokens,
		OutputTokens: u.OutputTokens + v.OutputTokens,
		CachedTokens: u.CachedTokens + v.CachedTokens,
		Cost:         u.Cost + v.Cost,
	}
}

// Brain is the LLM abstraction consumed by the compactor and the engine.
type Brain interface {
	// Chat blocks until the provider answers or fails.
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error)
	// Available reports whether a provider is configured and reachable
	// enough to try. Callers fall back deterministically when false.
	Available() bool
	// Model names the active model for pricing and context-window lookups.
	Model() string
}

// EstimateTokens estimates the token count of text without a provider call.
func EstimateTokens(text string) int {
	return tokenutil.Estimate(text)
}

// Config selects and authenticates the provider.
type Config struct {
	Provider string // "google", "anthropic", "openai", "openai_compatible"
	Model    string
	APIKey   string

	CompatibleProvider string
	CompatibleBaseURL  string
}

// GenkitBrain implements Brain on top of Genkit.
type GenkitBrain struct {
	g         *genkit.Genkit
	modelName string // provider-prefixed, e.g. "googleai/gemini-2.5-flash"
	model     string // bare model id for pricing
	on        bool
}

// NewGenkitBrain initializes the configured provider plugin. With no API key
// the brain reports unavailable rather than failing construction, so the
// rest of the runtime can start and use deterministic fallbacks.
func NewGenkitBrain(ctx context.Context, cfg Config) *GenkitBrain {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "google"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel(provider)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)

	var g *genkit.Genkit
	on := false
	switch provider {
	case "anthropic":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&anthropic.Anthropic{
				APIKey:  apiKey,
				BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			}))
			on = true
		} else {
			g = genkit.Init(ctx)
			slog.Warn("Anthropic API key missing; provider unavailable")
		}
	case "openai":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
				Provider: "openai",
				APIKey:   apiKey,
				BaseURL:  os.Getenv("OPENAI_BASE_URL"),
			}))
			on = true
		} else {
			g = genkit.Init(ctx)
			slog.Warn("OpenAI API key missing; provider unavailable")
		}
	case "openai_compatible":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
				Provider: cfg.CompatibleProvider,
				APIKey:   apiKey,
				BaseURL:  cfg.CompatibleBaseURL,
			}))
			on = true
		} else {
			g = genkit.Init(ctx)
			slog.Warn("compatible-provider API key missing; provider unavailable")
		}
	default: // google
		if apiKey != "" {
			// The googlegenai plugin reads its key from the environment.
			_ = os.Setenv("GEMINI_API_KEY", apiKey)
			g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
			on = true
		} else {
			g = genkit.Init(ctx)
			slog.Warn("Gemini API key missing; provider unavailable")
		}
	}
	if on {
		slog.Info("llm brain initialized", "provider", provider, "model", model)
	}

	return &GenkitBrain{
		g:         g,
		modelName: prefixedModelName(provider, model),
		model:     model,
		on:        on,
	}
}

func (b *GenkitBrain) Available() bool {
	return b.on
}

func (b *GenkitBrain) Model() string {
	return b.model
}

// Chat issues one generation call and returns the reply with its usage.
func (b *GenkitBrain) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	if !b.on {
		return "", Usage{}, fmt.Errorf("llm provider unavailable")
	}
	trimmed := strings.TrimSpace(userPrompt)
	if trimmed == "" {
		return "", Usage{}, fmt.Errorf("empty prompt")
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(b.modelName),
		ai.WithPrompt(trimmed),
	}
	if systemPrompt = strings.TrimSpace(systemPrompt); systemPrompt != "" {
		opts = append(opts, ai.WithSystem(systemPrompt))
	}

	resp, err := genkit.Generate(ctx, b.g, opts...)
	if err != nil {
		return "", Usage{}, fmt.Errorf("generate: %w", err)
	}

	reply := resp.Text()
	usage := Usage{
		InputTokens:  EstimateTokens(systemPrompt) + EstimateTokens(trimmed),
		OutputTokens: EstimateTokens(reply),
	}
	if resp.Usage != nil {
		if resp.Usage.InputTokens > 0 {
			usage.InputTokens = resp.Usage.InputTokens
		}
		if resp.Usage.OutputTokens > 0 {
			usage.OutputTokens = resp.Usage.OutputTokens
		}
	}
	usage.Cost = pricing.Cost(b.model, usage.InputTokens, usage.OutputTokens, usage.CachedTokens)
	return reply, usage, nil
}

func defaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-5"
	case "openai", "openai_compatible":
		return "gpt-4o-mini"
	default:
		return "gemini-2.5-flash"
	}
}

func prefixedModelName(provider, model string) string {
	switch provider {
	case "anthropic":
		return "anthropic/" + model
	case "openai":
		return "openai/" + model
	case "openai_compatible":
		return model
	default:
		return "googleai/" + model
	}
}

// ContextWindowForModel returns the model's context window in tokens.
// Unknown models get a conservative default.
func ContextWindowForModel(model string) int {
	switch {
	case strings.HasPrefix(model, "gemini-1.5"), strings.HasPrefix(model, "gemini-2"):
		return 1_000_000
	case strings.HasPrefix(model, "claude-"):
		return 200_000
	case strings.HasPrefix(model, "gpt-4o"):
		return 128_000
	default:
		return 32_000
	}
}
