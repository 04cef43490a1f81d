package usecase

import (
	"context"
	"fmt"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/internal/service/cost"
	"SignalForge/internal/service/symbols"
	"SignalForge/pkg/llmjson"
	"SignalForge/pkg/logger"
)

// Classifier runs Stage 1: one LLM call deciding whether an item deserves
// full analysis and which data to collect for it.
type Classifier struct {
	llm     repository.LLM
	costs   *cost.Table
	budget  Budget
	timeout time.Duration
	now     func() time.Time
	log     *logger.Logger
}

func NewClassifier(llm repository.LLM, costs *cost.Table, budget Budget, timeout time.Duration, log *logger.Logger) *Classifier {
	if log == nil {
		log = logger.Nop()
	}
	return &Classifier{llm: llm, costs: costs, budget: budget, timeout: timeout, now: time.Now, log: log}
}

// ClassifyResult carries the Stage 1 output and what it cost.
type ClassifyResult struct {
	Result models.Stage1Result
	Usage  repository.Usage
	Cost   float64
	Parsed bool
}

// Classify returns an error only when the LLM itself is unavailable; the
// error wraps models.ErrLLMUnavailable. Unparseable output yields a
// conservative default that does not proceed.
func (c *Classifier) Classify(ctx context.Context, in models.AnalysisInput, al models.AllowList, v *symbols.Validator) (*ClassifyResult, error) {
	prompt, err := renderStage1(stage1Data{
		Item:         in,
		Today:        c.now().UTC().Format("2006-01-02"),
		AllowList:    al.PromptFragment,
		Hints:        v.Validate(in.Hints()),
		RequestTypes: models.RequestTypes,
		Categories:   models.Categories,
	})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	comp, err := c.llm.Complete(callCtx, repository.CompletionRequest{
		Prompt:          prompt,
		MaxTokens:       c.budget.MaxTokens,
		ReasoningBudget: c.budget.ReasoningBudget,
	})
	if err != nil {
		c.log.Error("stage 1 llm call failed", logger.String("item_id", in.ID), logger.Error(err))
		return nil, fmt.Errorf("classify: %w: %w", models.ErrLLMUnavailable, err)
	}

	out := &ClassifyResult{
		Usage: comp.Usage,
		Cost:  c.costs.LLM(c.llm.Model(), comp.Usage.PromptTokens, comp.Usage.CompletionTokens),
	}
	raw, err := llmjson.ParseObject(comp.Content)
	if err != nil {
		c.log.Warn("stage 1 output unparseable, using default classification",
			logger.String("item_id", in.ID),
			logger.Int("content_chars", len(comp.Content)),
		)
		out.Result = defaultStage1(in)
		return out, nil
	}
	out.Result = normalizeStage1(raw, in, v)
	out.Parsed = true
	return out, nil
}
