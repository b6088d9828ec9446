package ollama

import (
	"context"
	"fmt"
	"log/slog"
)

// EnsureModel checks that Ollama is reachable and that model is present,
// pulling it when missing. Pull progress is logged at debug level.
func EnsureModel(ctx context.Context, c *Client, model string, logger *slog.Logger) error {
	if !c.IsRunning(ctx) {
		return fmt.Errorf("ollama is not reachable at %s", c.BaseURL())
	}

	if c.HasModel(ctx, model) {
		logger.Info("embedding model ready", "model", model)
		return nil
	}

	logger.Info("pulling embedding model", "model", model)
	var lastPct int = -1
	err := c.PullModel(ctx, model, func(p PullProgress) {
		if p.Total <= 0 {
			logger.Debug("pull progress", "model", model, "status", p.Status)
			return
		}
		pct := int(float64(p.Completed) / float64(p.Total) * 100)
		if pct/10 != lastPct/10 {
			lastPct = pct
			logger.Debug("pull progress", "model", model, "status", p.Status, "percent", pct)
		}
	})
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", model, err)
	}
	logger.Info("embedding model ready", "model", model)
	return nil
}
