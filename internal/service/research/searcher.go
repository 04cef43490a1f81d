package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
)

const researchPrompt = `You are a financial research assistant. Search the web and answer the query below with concrete, dated facts.
Quote figures exactly as published and name the source for each. If nothing recent is found, say so plainly.

Query: %s`

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiSearcher answers queries with Google Search grounding.
type GeminiSearcher struct {
	models    contentGenerator
	model     string
	maxTokens int
	timeout   time.Duration
	log       *logger.Logger
}

type Option func(*GeminiSearcher)

func WithMaxTokens(n int) Option {
	return func(s *GeminiSearcher) { s.maxTokens = n }
}

func WithTimeout(d time.Duration) Option {
	return func(s *GeminiSearcher) { s.timeout = d }
}

func withGenerator(g contentGenerator) Option {
	return func(s *GeminiSearcher) { s.models = g }
}

func NewGeminiSearcher(ctx context.Context, apiKey, model string, log *logger.Logger, opts ...Option) (*GeminiSearcher, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &GeminiSearcher{model: model, maxTokens: 1024, timeout: 60 * time.Second, log: log}
	for _, opt := range opts {
		opt(s)
	}
	if s.models == nil {
		if apiKey == "" {
			return nil, fmt.Errorf("research: gemini api key is required")
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
		if err != nil {
			return nil, fmt.Errorf("research: create client: %w", err)
		}
		s.models = client.Models
	}
	return s, nil
}

// Search returns nil when the call fails or yields no text.
func (s *GeminiSearcher) Search(ctx context.Context, query string) *repository.SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.1)),
		Tools:       []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	if s.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(s.maxTokens)
	}
	resp, err := s.models.GenerateContent(ctx, s.model,
		[]*genai.Content{genai.NewContentFromText(fmt.Sprintf(researchPrompt, query), genai.RoleUser)}, cfg)
	if err != nil {
		s.log.Warn("web research failed", logger.String("query", query), logger.Error(err))
		return nil
	}
	if resp == nil {
		return nil
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		s.log.Warn("web research returned no text", logger.String("query", query))
		return nil
	}

	out := &repository.SearchResult{Text: text, Citations: citations(resp)}
	if um := resp.UsageMetadata; um != nil {
		out.Usage = repository.Usage{
			PromptTokens:     int(um.PromptTokenCount),
			CompletionTokens: int(um.CandidatesTokenCount) + int(um.ThoughtsTokenCount),
		}
	}
	return out
}

func citations(resp *genai.GenerateContentResponse) []string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		if _, dup := seen[chunk.Web.URI]; dup {
			continue
		}
		seen[chunk.Web.URI] = struct{}{}
		out = append(out, chunk.Web.URI)
	}
	return out
}
