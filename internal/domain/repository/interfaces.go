package repository

import (
	"context"
	"encoding/json"
	"time"

	"SignalForge/internal/domain/models"
)

// Usage is the token accounting reported by an LLM or research call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type CompletionRequest struct {
	Prompt          string
	MaxTokens       int
	ReasoningBudget int
}

// Completion may carry empty Content on success.
type Completion struct {
	Content string
	Usage   Usage
	Model   string
}

// LLM is the completion service. Errors are transport/auth failures only.
type LLM interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	Model() string
}

// MarketData returns (nil, nil) when the provider has no data for a request.
type MarketData interface {
	Fetch(ctx context.Context, reqType models.RequestType, symbols []string, params map[string]string) (json.RawMessage, error)
}

type SearchResult struct {
	Text      string
	Citations []string
	Usage     Usage
}

// WebResearch returns nil on any failure instead of an error.
type WebResearch interface {
	Search(ctx context.Context, query string) *SearchResult
}

type AllowListResolver interface {
	Resolve() models.AllowList
}

// MemoryReader is strictly read-only.
type MemoryReader interface {
	Read(ctx context.Context, assets []string, asOf time.Time, category models.Category) (*models.PositionMemory, error)
}

// ResultPublisher hands finished analyses to persistence/notification consumers.
type ResultPublisher interface {
	Publish(ctx context.Context, r *models.AnalysisResult) error
	Close() error
}

type Metrics interface {
	RecordStage(stage string, seconds float64)
	RecordCost(stage string, usd float64)
	RecordTokens(stage string, in, out int)
	RecordSynthesis(state string)
	RecordAnalysis(itemType, decision string)
	RecordError(kind string)
}
