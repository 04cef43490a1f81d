package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
)

// Extended thinking needs at least this many budget tokens.
const minThinkingBudget = 1024

type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// ClaudeClient completes prompts with the Anthropic Messages API.
type ClaudeClient struct {
	messages    messageCreator
	model       string
	temperature float32
	retry       RetryPolicy
	log         *logger.Logger
}

type ClaudeOption func(*ClaudeClient)

func WithClaudeRetry(p RetryPolicy) ClaudeOption {
	return func(c *ClaudeClient) { c.retry = p }
}

func WithClaudeTemperature(t float32) ClaudeOption {
	return func(c *ClaudeClient) { c.temperature = t }
}

func withMessages(m messageCreator) ClaudeOption {
	return func(c *ClaudeClient) { c.messages = m }
}

func NewClaudeClient(apiKey, model string, log *logger.Logger, opts ...ClaudeOption) (*ClaudeClient, error) {
	if log == nil {
		log = logger.Nop()
	}
	c := &ClaudeClient{
		model:       model,
		temperature: 0.2,
		retry:       DefaultRetryPolicy(2),
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.messages == nil {
		if apiKey == "" {
			return nil, fmt.Errorf("claude: api key is required")
		}
		client := anthropic.NewClient(option.WithAPIKey(apiKey))
		c.messages = &client.Messages
	}
	return c, nil
}

func (c *ClaudeClient) Model() string { return c.model }

func (c *ClaudeClient) Complete(ctx context.Context, req repository.CompletionRequest) (*repository.Completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	// Temperature must be unset when thinking is on.
	if req.ReasoningBudget >= minThinkingBudget && req.ReasoningBudget < maxTokens {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.ReasoningBudget))
	} else if c.temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.temperature))
	}

	resp, err := do(ctx, c.retry, c.log, "claude", func(ctx context.Context) (*anthropic.Message, error) {
		return c.messages.New(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("claude messages: %w", err)
	}

	out := &repository.Completion{Model: c.model}
	if resp == nil {
		return out, nil
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out.Content = text.String()
	out.Usage = repository.Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}
	return out, nil
}
