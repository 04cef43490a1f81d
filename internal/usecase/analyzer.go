package usecase

import (
	"context"
	"fmt"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/internal/service/cost"
	"SignalForge/internal/service/symbols"
	"SignalForge/pkg/logger"
)

// Options are per-call settings for Analyze.
type Options struct {
	// MemoryReader overrides the Analyzer's default reader for this call.
	MemoryReader repository.MemoryReader
	// AsOf bounds the memory lookup; zero means now.
	AsOf time.Time
}

// Analyzer sequences the three stages for one item.
type Analyzer struct {
	classifier  *Classifier
	collector   *Collector
	synthesizer *Synthesizer
	allow       repository.AllowListResolver
	memory      repository.MemoryReader
	metrics     repository.Metrics
	now         func() time.Time
	log         *logger.Logger
}

type AnalyzerOption func(*Analyzer)

// WithMemoryReader sets the reader used when Options does not carry one.
func WithMemoryReader(r repository.MemoryReader) AnalyzerOption {
	return func(a *Analyzer) { a.memory = r }
}

func WithMetrics(m repository.Metrics) AnalyzerOption {
	return func(a *Analyzer) {
		if m != nil {
			a.metrics = m
		}
	}
}

func WithLogger(l *logger.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if l != nil {
			a.log = l
		}
	}
}

func withClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer wires the stages. market and web may be nil; every request
// then degrades to missing data.
func NewAnalyzer(
	cfg PipelineConfig,
	llm repository.LLM,
	market repository.MarketData,
	web repository.WebResearch,
	allow repository.AllowListResolver,
	costs *cost.Table,
	opts ...AnalyzerOption,
) *Analyzer {
	a := &Analyzer{
		allow:   allow,
		metrics: nopMetrics{},
		now:     time.Now,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.classifier = NewClassifier(llm, costs, cfg.Stage1, cfg.LLMTimeout, a.log.With(logger.String("stage", "classify")))
	a.collector = NewCollector(market, web, costs, cfg, a.log.With(logger.String("stage", "collect")))
	a.synthesizer = NewSynthesizer(llm, costs, cfg, a.log.With(logger.String("stage", "synthesize")))
	a.classifier.now = a.now
	a.collector.now = a.now
	a.synthesizer.now = a.now
	return a
}

// Analyze runs the pipeline. The only error paths are invalid input and an
// unavailable LLM during classification (models.ErrLLMUnavailable).
func (a *Analyzer) Analyze(ctx context.Context, in models.AnalysisInput, opts Options) (*models.AnalysisResult, error) {
	if err := in.Validate(); err != nil {
		a.metrics.RecordError("invalid_input")
		return nil, err
	}
	log := a.log.With(logger.String("item_id", in.ID), logger.String("item_type", string(in.ItemType)))
	started := a.now()

	al := a.allow.Resolve()
	validator := symbols.NewValidator(al)

	log.Debug("stage 1 started")
	cr, err := a.classifier.Classify(ctx, in, al, validator)
	s1End := a.now()
	if err != nil {
		a.metrics.RecordError("llm_unavailable")
		return nil, fmt.Errorf("analyze %s: %w", in.ItemType, err)
	}
	a.metrics.RecordStage("stage1", s1End.Sub(started).Seconds())
	a.metrics.RecordTokens("stage1", cr.Usage.PromptTokens, cr.Usage.CompletionTokens)
	a.metrics.RecordCost("stage1", cr.Cost)

	res := &models.AnalysisResult{
		Input:  in,
		Stage1: cr.Result,
		Cost:   models.StageCost{Stage1: cr.Cost},
		Timing: models.StageTiming{Stage1Ms: cost.Elapsed(started, s1End)},
	}

	if !cr.Result.Proceed {
		log.Info("item skipped after classification", logger.String("category", string(cr.Result.Category)))
		res.Stage3 = skippedDecision(cr.Result)
		res.SynthesisState = models.SynthSkipped
		return a.finish(res, started), nil
	}

	log.Debug("stage 2 started",
		logger.Int("data_requests", len(cr.Result.DataRequests)),
		logger.Int("web_queries", len(cr.Result.WebQueries)),
	)
	collected := a.collector.Collect(ctx, cr.Result)
	s2End := a.now()
	res.CollectedData = collected.Bundle
	res.Cost.Stage2 = collected.Cost
	res.Timing.Stage2Ms = cost.Elapsed(s1End, s2End)
	a.metrics.RecordStage("stage2", s2End.Sub(s1End).Seconds())
	a.metrics.RecordCost("stage2", collected.Cost)
	if missing := collected.Bundle.MissingMarketData(); len(missing) > 0 {
		log.Warn("market data missing", logger.Strings("types", missing))
	}

	memory := a.readMemory(ctx, log, opts, cr.Result)

	log.Debug("stage 3 started")
	syn := a.synthesizer.Synthesize(ctx, SynthesisInput{
		Item:      in,
		Stage1:    cr.Result,
		Bundle:    collected.Bundle,
		Memory:    memory,
		AllowList: al,
		Validator: validator,
	})
	s3End := a.now()
	res.Stage3 = syn.Decision
	res.SynthesisState = syn.State
	res.Cost.Stage3 = syn.Cost
	res.Timing.Stage3Ms = cost.Elapsed(s2End, s3End)
	a.metrics.RecordStage("stage3", s3End.Sub(s2End).Seconds())
	a.metrics.RecordTokens("stage3", syn.Usage.PromptTokens, syn.Usage.CompletionTokens)
	a.metrics.RecordCost("stage3", syn.Cost)

	return a.finish(res, started), nil
}

func (a *Analyzer) finish(res *models.AnalysisResult, started time.Time) *models.AnalysisResult {
	end := a.now()
	res.Cost.Total = cost.Sum(res.Cost.Stage1, res.Cost.Stage2, res.Cost.Stage3)
	res.Timing.TotalMs = cost.Elapsed(started, end)
	res.AnalyzedAt = end.UTC()
	a.metrics.RecordSynthesis(res.SynthesisState)
	a.metrics.RecordAnalysis(string(res.Input.ItemType), string(res.Stage3.TradeDecision))
	a.log.Info("analysis complete",
		logger.String("item_id", res.Input.ID),
		logger.String("decision", string(res.Stage3.TradeDecision)),
		logger.String("synthesis", res.SynthesisState),
		logger.Float64("cost_usd", res.Cost.Total),
		logger.Int64("total_ms", res.Timing.TotalMs),
	)
	return res
}

// readMemory never fails the pipeline; a read error means no memory.
func (a *Analyzer) readMemory(ctx context.Context, log *logger.Logger, opts Options, s1 models.Stage1Result) *models.PositionMemory {
	reader := opts.MemoryReader
	if reader == nil {
		reader = a.memory
	}
	if reader == nil || len(s1.AffectedAssets) == 0 {
		return nil
	}
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = a.now()
	}
	mem, err := reader.Read(ctx, s1.AffectedAssets, asOf, s1.Category)
	if err != nil {
		a.metrics.RecordError("memory_read")
		log.Warn("position memory read failed", logger.Error(err))
		return nil
	}
	return mem
}

// AnalyzeNews analyzes a news article.
func (a *Analyzer) AnalyzeNews(ctx context.Context, id string, item models.NewsItem, publishedAt time.Time, opts Options) (*models.AnalysisResult, error) {
	return a.Analyze(ctx, models.AnalysisInput{ID: id, ItemType: models.ItemNews, PublishedAt: publishedAt, News: &item}, opts)
}

// AnalyzeMacro analyzes a scheduled economic release.
func (a *Analyzer) AnalyzeMacro(ctx context.Context, id string, ev models.MacroEvent, opts Options) (*models.AnalysisResult, error) {
	return a.Analyze(ctx, models.AnalysisInput{ID: id, ItemType: models.ItemMacro, Macro: &ev}, opts)
}

func (a *Analyzer) AnalyzeEarnings(ctx context.Context, id string, ev models.EarningsEvent, opts Options) (*models.AnalysisResult, error) {
	return a.Analyze(ctx, models.AnalysisInput{ID: id, ItemType: models.ItemEarnings, Earnings: &ev}, opts)
}

func (a *Analyzer) AnalyzeIPO(ctx context.Context, id string, ev models.IPOEvent, opts Options) (*models.AnalysisResult, error) {
	return a.Analyze(ctx, models.AnalysisInput{ID: id, ItemType: models.ItemIPO, IPO: &ev}, opts)
}

func (a *Analyzer) AnalyzeCrypto(ctx context.Context, id string, ev models.CryptoEvent, publishedAt time.Time, opts Options) (*models.AnalysisResult, error) {
	return a.Analyze(ctx, models.AnalysisInput{ID: id, ItemType: models.ItemCrypto, PublishedAt: publishedAt, Crypto: &ev}, opts)
}

type nopMetrics struct{}

func (nopMetrics) RecordStage(string, float64) {}
func (nopMetrics) RecordCost(string, float64) {}
func (nopMetrics) RecordTokens(string, int, int) {}
func (nopMetrics) RecordSynthesis(string) {}
func (nopMetrics) RecordAnalysis(string, string) {}
func (nopMetrics) RecordError(string) {}
