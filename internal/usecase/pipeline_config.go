package usecase

import (
	"time"

	"SignalForge/pkg/config"
)

// MaxRankedQueries is the hard ceiling on ranked web queries per item.
const MaxRankedQueries = 2

// MaxFallbackQueries is the hard ceiling on fallback web queries per item.
const MaxFallbackQueries = 3

// Budget bounds a single completion.
type Budget struct {
	MaxTokens       int
	ReasoningBudget int
}

// PipelineConfig is the immutable tuning the Analyzer runs with.
type PipelineConfig struct {
	Stage1 Budget
	Stage3 Budget
	Retry  Budget
	Repair Budget

	MarketDataChars int
	SnippetChars    int
	MemoryChars     int

	RankedQueries     int
	FallbackQueries   int
	NarrativeMetrics  bool
	Stage2Concurrency int
	Stage2Timeout     time.Duration
	LLMTimeout        time.Duration
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Stage1:            Budget{MaxTokens: 2048, ReasoningBudget: 1024},
		Stage3:            Budget{MaxTokens: 2048},
		Retry:             Budget{MaxTokens: 1200},
		Repair:            Budget{MaxTokens: 1600},
		MarketDataChars:   3600,
		SnippetChars:      1400,
		MemoryChars:       2000,
		RankedQueries:     MaxRankedQueries,
		FallbackQueries:   MaxFallbackQueries,
		NarrativeMetrics:  true,
		Stage2Concurrency: 6,
		Stage2Timeout:     90 * time.Second,
		LLMTimeout:        90 * time.Second,
	}
}

// PipelineConfigFrom copies the relevant sections out of the service config.
func PipelineConfigFrom(c *config.Config) PipelineConfig {
	budget := func(b config.StageBudget) Budget {
		return Budget{MaxTokens: b.MaxTokens, ReasoningBudget: b.ReasoningBudget}
	}
	return PipelineConfig{
		Stage1:            budget(c.LLM.Stage1),
		Stage3:            budget(c.LLM.Stage3),
		Retry:             budget(c.LLM.Retry),
		Repair:            budget(c.LLM.Repair),
		MarketDataChars:   c.Pipeline.MarketDataChars,
		SnippetChars:      c.Pipeline.SnippetChars,
		MemoryChars:       c.Pipeline.MemoryChars,
		RankedQueries:     c.Pipeline.RankedQueries,
		FallbackQueries:   c.Pipeline.FallbackQueries,
		NarrativeMetrics:  c.Pipeline.NarrativeMetrics,
		Stage2Concurrency: c.Pipeline.Stage2Concurrency,
		Stage2Timeout:     c.Pipeline.Stage2Timeout,
		LLMTimeout:        c.LLM.Timeout,
	}
}

func (p PipelineConfig) rankedLimit() int {
	return clampInt(p.RankedQueries, 0, MaxRankedQueries)
}

func (p PipelineConfig) fallbackLimit() int {
	return clampInt(p.FallbackQueries, 0, MaxFallbackQueries)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
