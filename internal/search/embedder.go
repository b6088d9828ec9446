package search

import (
	"context"
	"fmt"

	"github.com/kalambet/artribune/internal/ollama"
	"golang.org/x/time/rate"
)

// OllamaEmbedder embeds queries with an Ollama model, throttled to the
// provider's request budget.
type OllamaEmbedder struct {
	client  *ollama.Client
	model   string
	limiter *rate.Limiter
}

// NewOllamaEmbedder creates an embedder allowing perSecond requests per
// second. A non-positive rate disables throttling.
func NewOllamaEmbedder(c *ollama.Client, model string, perSecond float64) *OllamaEmbedder {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(1, int(perSecond))
	}
	return &OllamaEmbedder{client: c, model: model, limiter: rate.NewLimiter(limit, burst)}
}

// Embed waits for a rate-limit token and returns the embedding of text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for embedding rate limit: %w", err)
	}
	vec, err := e.client.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}
