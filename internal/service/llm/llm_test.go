package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"SignalForge/internal/domain/repository"
)

var fastRetry = RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}

type fakeGenerator struct {
	calls int
	errs  []error
	resp  *genai.GenerateContentResponse
	cfg   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, _ string, _ []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.cfg = cfg
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.resp, nil
}

func geminiText(text string, in, out int32) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: in, CandidatesTokenCount: out},
	}
}

func TestGeminiClient_Complete(t *testing.T) {
	gen := &fakeGenerator{resp: geminiText(`{"ok":true}`, 120, 30)}
	c, err := NewGeminiClient(context.Background(), "", "gemini-2.5-flash", nil, withGenerator(gen), WithGeminiRetry(fastRetry))
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), repository.CompletionRequest{Prompt: "p", MaxTokens: 900, ReasoningBudget: 256})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out.Content)
	assert.Equal(t, repository.Usage{PromptTokens: 120, CompletionTokens: 30}, out.Usage)
	assert.Equal(t, "gemini-2.5-flash", out.Model)
	assert.Equal(t, int32(900), gen.cfg.MaxOutputTokens)
	require.NotNil(t, gen.cfg.ThinkingConfig)
	assert.Equal(t, int32(256), *gen.cfg.ThinkingConfig.ThinkingBudget)
}

func TestGeminiClient_EmptyContentIsNotAnError(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{}}
	c, err := NewGeminiClient(context.Background(), "", "m", nil, withGenerator(gen))
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), repository.CompletionRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Empty(t, out.Content)
}

func TestGeminiClient_RetriesRateLimit(t *testing.T) {
	gen := &fakeGenerator{
		errs: []error{errors.New("Error 429, Message: quota. Please retry in 0.001s., Status: RESOURCE_EXHAUSTED")},
		resp: geminiText("x", 1, 1),
	}
	c, err := NewGeminiClient(context.Background(), "", "m", nil, withGenerator(gen), WithGeminiRetry(fastRetry))
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), repository.CompletionRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "x", out.Content)
	assert.Equal(t, 2, gen.calls)
}

func TestGeminiClient_AuthErrorIsFinal(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New("Error 403, Status: PERMISSION_DENIED")}}
	c, err := NewGeminiClient(context.Background(), "", "m", nil, withGenerator(gen), WithGeminiRetry(fastRetry))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), repository.CompletionRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 1, gen.calls)
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), "", "m", nil)
	assert.Error(t, err)
}

type fakeMessages struct {
	calls  int
	params anthropic.MessageNewParams
	resp   *anthropic.Message
	err    error
}

func (f *fakeMessages) New(_ context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.calls++
	f.params = body
	return f.resp, f.err
}

func TestClaudeClient_Complete(t *testing.T) {
	msgs := &fakeMessages{resp: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "thinking", Thinking: "hmm"},
			{Type: "text", Text: `{"a":`},
			{Type: "text", Text: `1}`},
		},
		Usage: anthropic.Usage{InputTokens: 50, OutputTokens: 20},
	}}
	c, err := NewClaudeClient("", "claude-sonnet-4-5", nil, withMessages(msgs), WithClaudeRetry(fastRetry))
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), repository.CompletionRequest{Prompt: "p", MaxTokens: 4096, ReasoningBudget: 2048})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out.Content)
	assert.Equal(t, repository.Usage{PromptTokens: 50, CompletionTokens: 20}, out.Usage)
	assert.Equal(t, int64(4096), msgs.params.MaxTokens)
	assert.NotNil(t, msgs.params.Thinking.OfEnabled)
}

func TestClaudeClient_SmallBudgetDisablesThinking(t *testing.T) {
	msgs := &fakeMessages{resp: &anthropic.Message{}}
	c, err := NewClaudeClient("", "m", nil, withMessages(msgs))
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), repository.CompletionRequest{Prompt: "p", MaxTokens: 1200, ReasoningBudget: 512})
	require.NoError(t, err)
	assert.Empty(t, out.Content)
	assert.Nil(t, msgs.params.Thinking.OfEnabled)
}

func TestIsRetryable_UsesTypedStatus(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retry     bool
		rateLimit bool
	}{
		{"gemini overloaded with digits in message", fmt.Errorf("generate: %w", genai.APIError{Code: 503, Message: "request 400123 failed", Status: "UNAVAILABLE"}), true, false},
		{"gemini bad request", genai.APIError{Code: 400, Message: "bad", Status: "INVALID_ARGUMENT"}, false, false},
		{"gemini quota", &genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, true, true},
		{"claude unauthorized", &anthropic.Error{StatusCode: 401}, false, false},
		{"claude overloaded", &anthropic.Error{StatusCode: 529}, true, false},
		{"claude conflict", &anthropic.Error{StatusCode: 409}, true, false},
		{"untyped with digits only", errors.New("upstream closed after 4001 bytes"), true, false},
		{"untyped status word", errors.New("rpc error: PERMISSION_DENIED"), false, false},
		{"untyped quota", errors.New("quota exceeded for project"), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retry, IsRetryable(tt.err))
			assert.Equal(t, tt.rateLimit, IsRateLimitError(tt.err))
		})
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, BackoffMultiplier: 2}
	assert.Equal(t, time.Second, p.Backoff(0, 0))
	assert.Equal(t, 4*time.Second, p.Backoff(2, 0))
	assert.Equal(t, 10*time.Second, p.Backoff(5, 0))
	assert.Equal(t, 6*time.Second, p.Backoff(0, 5*time.Second))
}

func TestExtractRetryDelay(t *testing.T) {
	d := ExtractRetryDelay(errors.New("Error 429 ... Please retry in 45.387s., Status: RESOURCE_EXHAUSTED"))
	assert.InDelta(t, float64(45387*time.Millisecond), float64(d), float64(time.Millisecond))
	assert.Zero(t, ExtractRetryDelay(errors.New("boom")))
	assert.Zero(t, ExtractRetryDelay(nil))
}
