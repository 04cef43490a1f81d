package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/internal/service/cost"
	"SignalForge/internal/service/symbols"
	"SignalForge/pkg/llmjson"
	"SignalForge/pkg/logger"
)

// Synthesizer runs Stage 3 as a small state machine:
//
//	attempt --empty--> retry --empty/unparseable--> repair --fail--> fallback
//	attempt --unparseable--> repair
//
// Every path ends in a well-typed decision; LLM errors count as empty output.
type Synthesizer struct {
	llm     repository.LLM
	costs   *cost.Table
	cfg     PipelineConfig
	timeout time.Duration
	now     func() time.Time
	log     *logger.Logger
}

func NewSynthesizer(llm repository.LLM, costs *cost.Table, cfg PipelineConfig, log *logger.Logger) *Synthesizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Synthesizer{llm: llm, costs: costs, cfg: cfg, timeout: cfg.LLMTimeout, now: time.Now, log: log}
}

// SynthesisInput is everything Stage 3 reads.
type SynthesisInput struct {
	Item      models.AnalysisInput
	Stage1    models.Stage1Result
	Bundle    *models.ExternalDataBundle
	Memory    *models.PositionMemory
	AllowList models.AllowList
	Validator *symbols.Validator
}

// SynthesisResult records the decision, the state that produced it and the
// summed usage of every call made on the way.
type SynthesisResult struct {
	Decision models.Stage3Decision
	State    string
	Calls    int
	Usage    repository.Usage
	Cost     float64
}

// contextCaps bounds each embedded block, in bytes.
type contextCaps struct {
	marketData int
	snippet    int
	memory     int
}

func (c contextCaps) halved() contextCaps {
	return contextCaps{marketData: c.marketData / 2, snippet: c.snippet / 2, memory: c.memory / 2}
}

func (s *Synthesizer) Synthesize(ctx context.Context, in SynthesisInput) *SynthesisResult {
	res := &SynthesisResult{}
	caps := contextCaps{marketData: s.cfg.MarketDataChars, snippet: s.cfg.SnippetChars, memory: s.cfg.MemoryChars}

	state := models.SynthAttempt
	var lastRaw string
	for {
		switch state {
		case models.SynthAttempt, models.SynthRetry:
			budget := s.cfg.Stage3
			if state == models.SynthRetry {
				caps = caps.halved()
				budget = s.cfg.Retry
			}
			content := s.call(ctx, res, state, s.prompt(in, caps), budget)
			if strings.TrimSpace(content) == "" {
				if state == models.SynthAttempt {
					state = models.SynthRetry
				} else {
					state = models.SynthRepair
				}
				continue
			}
			if obj, err := llmjson.ParseObject(content); err == nil {
				return s.finish(res, state, NormalizeDecision(obj, in.Validator))
			}
			lastRaw = content
			state = models.SynthRepair

		case models.SynthRepair:
			prompt, err := renderRepair(repairData{
				Title:    in.Stage1.Title,
				Analysis: in.Stage1.Analysis,
				Schema:   decisionSchema,
				Raw:      truncate(lastRaw, s.cfg.MarketDataChars),
			})
			if err == nil {
				content := s.call(ctx, res, state, prompt, s.cfg.Repair)
				if obj, perr := llmjson.ParseObject(content); perr == nil {
					return s.finish(res, state, NormalizeDecision(obj, in.Validator))
				}
			}
			state = models.SynthFallback

		default:
			s.log.Warn("stage 3 fell back to default decision", logger.String("item_id", in.Item.ID), logger.Int("calls", res.Calls))
			return s.finish(res, models.SynthFallback, FallbackDecision())
		}
	}
}

func (s *Synthesizer) finish(res *SynthesisResult, state string, d models.Stage3Decision) *SynthesisResult {
	res.State = state
	res.Decision = d
	res.Cost = cost.Sum(res.Cost)
	return res
}

// call returns the completion text, or "" when the call failed.
func (s *Synthesizer) call(ctx context.Context, res *SynthesisResult, state, prompt string, b Budget) string {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res.Calls++
	comp, err := s.llm.Complete(ctx, repository.CompletionRequest{
		Prompt:          prompt,
		MaxTokens:       b.MaxTokens,
		ReasoningBudget: b.ReasoningBudget,
	})
	if err != nil {
		s.log.Warn("stage 3 llm call failed", logger.String("state", state), logger.Error(err))
		return ""
	}
	res.Usage.PromptTokens += comp.Usage.PromptTokens
	res.Usage.CompletionTokens += comp.Usage.CompletionTokens
	res.Cost += s.costs.LLM(s.llm.Model(), comp.Usage.PromptTokens, comp.Usage.CompletionTokens)
	if strings.TrimSpace(comp.Content) == "" {
		s.log.Warn("stage 3 returned empty content", logger.String("state", state), logger.Int("completion_tokens", comp.Usage.CompletionTokens))
	}
	return comp.Content
}

// prompt renders the Stage 3 prompt with every block capped. A render
// failure leaves an empty prompt, which the model answers with nothing
// useful and the machine carries on to the fallback.
func (s *Synthesizer) prompt(in SynthesisInput, caps contextCaps) string {
	d := stage3Data{
		Item:      in.Item,
		Today:     s.now().UTC().Format("2006-01-02"),
		Stage1:    in.Stage1,
		AllowList: in.AllowList.PromptFragment,
		Schema:    decisionSchema,
	}
	if in.Bundle != nil {
		if len(in.Bundle.MarketData) > 0 {
			if b, err := json.Marshal(in.Bundle.MarketData); err == nil {
				d.MarketData = truncate(string(b), caps.marketData)
			}
		}
		d.Missing = in.Bundle.MissingMarketData()
		for _, sn := range in.Bundle.WebSnippets {
			sn.Text = truncate(sn.Text, caps.snippet)
			d.Snippets = append(d.Snippets, sn)
		}
		if in.Bundle.NarrativeMetrics != nil {
			if b, err := json.Marshal(in.Bundle.NarrativeMetrics); err == nil {
				d.Narrative = string(b)
			}
		}
	}
	if in.Memory != nil && len(in.Memory.Assets) > 0 {
		if b, err := json.Marshal(in.Memory); err == nil {
			d.Memory = truncate(string(b), caps.memory)
		}
	}
	p, err := renderStage3(d)
	if err != nil {
		s.log.Error("stage 3 prompt render failed", logger.Error(err))
		return ""
	}
	return p
}
