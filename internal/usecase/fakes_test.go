package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/internal/service/allowlist"
	"SignalForge/internal/service/cost"
	"SignalForge/pkg/config"
)

const testModel = "test-model"

var errNoScript = errors.New("no scripted response")

type reply struct {
	content string
	err     error
	usage   repository.Usage
}

// scriptedLLM answers calls in order and records every request.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []reply
	requests []repository.CompletionRequest
}

func newScriptedLLM(replies ...reply) *scriptedLLM {
	return &scriptedLLM{replies: replies}
}

func (s *scriptedLLM) Complete(_ context.Context, req repository.CompletionRequest) (*repository.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return nil, errNoScript
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &repository.Completion{Content: r.content, Usage: r.usage, Model: testModel}, nil
}

func (s *scriptedLLM) Model() string { return testModel }

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type fakeMarket struct {
	mu    sync.Mutex
	data  map[models.RequestType]json.RawMessage
	err   error
	calls []models.RequestType
}

func (f *fakeMarket) Fetch(_ context.Context, t models.RequestType, _ []string, _ map[string]string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, t)
	if f.err != nil {
		return nil, f.err
	}
	return f.data[t], nil
}

// fakeWeb answers research queries. narrative is returned for the
// aggregated narrative prompt; every other query gets a canned answer
// unless fail is set.
type fakeWeb struct {
	mu        sync.Mutex
	narrative string
	fail      bool
	queries   []string
}

func (f *fakeWeb) Search(_ context.Context, q string) *repository.SearchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.fail {
		return nil
	}
	if strings.HasPrefix(q, "Search for the latest market coverage of:") {
		if f.narrative == "" {
			return nil
		}
		return &repository.SearchResult{Text: f.narrative}
	}
	return &repository.SearchResult{Text: "result for " + q, Citations: []string{"https://news.example/" + q}}
}

func (f *fakeWeb) searched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type fakeMemory struct {
	mem   *models.PositionMemory
	err   error
	calls int
}

func (f *fakeMemory) Read(context.Context, []string, time.Time, models.Category) (*models.PositionMemory, error) {
	f.calls++
	return f.mem, f.err
}

// steppingClock advances by step on every read.
type steppingClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *steppingClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func testCosts() *cost.Table {
	return cost.NewTable(config.PricingConfig{
		Models:   map[string]config.ModelPrice{testModel: {InputPerMTok: 1, OutputPerMTok: 2}},
		Research: config.ResearchPrice{PerRequest: 0.035},
	})
}

func testResolver(t *testing.T) *allowlist.Resolver {
	t.Helper()
	r, err := allowlist.New([]models.Instrument{
		{Symbol: "SPY", ChartSymbol: "AMEX:SPY", Name: "SPDR S&P 500 ETF", Type: "etf"},
		{Symbol: "AAPL", ChartSymbol: "NASDAQ:AAPL", Name: "Apple Inc.", Type: "stock"},
		{Symbol: "SBUX", ChartSymbol: "NASDAQ:SBUX", Name: "Starbucks", Type: "stock"},
		{Symbol: "EURUSD", ChartSymbol: "FX:EURUSD", Name: "Euro / US Dollar", Type: "forex"},
		{Symbol: "BTC", ChartSymbol: "BINANCE:BTCUSDT", Name: "Bitcoin", Type: "crypto"},
	})
	require.NoError(t, err)
	return r
}

func f64(v float64) *float64 { return &v }

func sampleInputs() map[models.ItemType]models.AnalysisInput {
	published := time.Date(2026, 3, 4, 13, 30, 0, 0, time.UTC)
	return map[models.ItemType]models.AnalysisInput{
		models.ItemNews: {ID: "n1", ItemType: models.ItemNews, PublishedAt: published, News: &models.NewsItem{
			Headline: "Apple announces $110B buyback", Body: "Largest in history.", Source: "wire", Tickers: []string{"AAPL"},
		}},
		models.ItemMacro: {ID: "m1", ItemType: models.ItemMacro, Macro: &models.MacroEvent{
			Name: "CPI YoY", Country: "US", Date: "2026-03-12", Forecast: "3.1%", Previous: "3.2%",
		}},
		models.ItemEarnings: {ID: "e1", ItemType: models.ItemEarnings, Earnings: &models.EarningsEvent{
			Symbol: "SBUX", Company: "Starbucks", Date: "2026-04-28", Quarter: 2, Year: 2026, EPSEstimate: f64(0.79),
		}},
		models.ItemIPO: {ID: "i1", ItemType: models.ItemIPO, IPO: &models.IPOEvent{
			Company: "Acme Robotics", Symbol: "ACME", Exchange: "NASDAQ", Date: "2026-05-02", PriceLow: f64(18), PriceHigh: f64(21),
		}},
		models.ItemCrypto: {ID: "c1", ItemType: models.ItemCrypto, PublishedAt: published, Crypto: &models.CryptoEvent{
			Symbol: "BTC", Headline: "Spot ETF inflows hit record",
		}},
	}
}

func testPipelineConfig() PipelineConfig {
	cfg := DefaultPipelineConfig()
	cfg.Stage2Timeout = 5 * time.Second
	cfg.LLMTimeout = 5 * time.Second
	return cfg
}
