package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
)

// contentGenerator is the subset of *genai.Models the clients use.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient completes prompts against the Gemini API.
type GeminiClient struct {
	models      contentGenerator
	model       string
	temperature float32
	retry       RetryPolicy
	log         *logger.Logger
}

type GeminiOption func(*GeminiClient)

func WithGeminiRetry(p RetryPolicy) GeminiOption {
	return func(c *GeminiClient) { c.retry = p }
}

func WithGeminiTemperature(t float32) GeminiOption {
	return func(c *GeminiClient) { c.temperature = t }
}

func withGenerator(g contentGenerator) GeminiOption {
	return func(c *GeminiClient) { c.models = g }
}

// NewGeminiClient builds a client on the Gemini developer API backend.
func NewGeminiClient(ctx context.Context, apiKey, model string, log *logger.Logger, opts ...GeminiOption) (*GeminiClient, error) {
	if log == nil {
		log = logger.Nop()
	}
	c := &GeminiClient{
		model:       model,
		temperature: 0.2,
		retry:       DefaultRetryPolicy(2),
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.models == nil {
		if apiKey == "" {
			return nil, fmt.Errorf("gemini: api key is required")
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini: create client: %w", err)
		}
		c.models = client.Models
	}
	return c, nil
}

func (c *GeminiClient) Model() string { return c.model }

// Complete returns whatever text the model produced; empty text is not an error.
func (c *GeminiClient) Complete(ctx context.Context, req repository.CompletionRequest) (*repository.Completion, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	// A zero budget turns thinking off on models that allow it.
	cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(req.ReasoningBudget))}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := do(ctx, c.retry, c.log, "gemini", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return c.models.GenerateContent(ctx, c.model, contents, cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	out := &repository.Completion{Model: c.model}
	if resp == nil {
		return out, nil
	}
	out.Content = resp.Text()
	out.Usage = geminiUsage(resp)
	return out, nil
}

func geminiUsage(resp *genai.GenerateContentResponse) repository.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return repository.Usage{}
	}
	um := resp.UsageMetadata
	// Thinking tokens are billed as output.
	return repository.Usage{
		PromptTokens:     int(um.PromptTokenCount),
		CompletionTokens: int(um.CandidatesTokenCount) + int(um.ThoughtsTokenCount),
	}
}
