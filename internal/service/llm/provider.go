package llm

import (
	"context"
	"fmt"

	"SignalForge/internal/domain/repository"
	"SignalForge/pkg/config"
	"SignalForge/pkg/logger"
)

// New returns the completion client for the configured provider.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.LLM, error) {
	model := cfg.ModelName()
	switch cfg.LLM.Provider {
	case "gemini":
		return NewGeminiClient(ctx, cfg.Gemini.APIKey, model, log.With(logger.String("provider", "gemini")),
			WithGeminiTemperature(cfg.Gemini.Temperature),
			WithGeminiRetry(DefaultRetryPolicy(cfg.Gemini.MaxRetries)),
		)
	case "claude":
		return NewClaudeClient(cfg.Claude.APIKey, model, log.With(logger.String("provider", "claude")),
			WithClaudeTemperature(cfg.Claude.Temperature),
			WithClaudeRetry(DefaultRetryPolicy(cfg.Claude.MaxRetries)),
		)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
