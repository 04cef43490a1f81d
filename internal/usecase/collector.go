package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/internal/service/cost"
	"SignalForge/pkg/llmjson"
	"SignalForge/pkg/logger"
)

// Collector runs Stage 2: market-data fetches, ranked web research and the
// narrative-metrics query, concurrently. No branch can fail the stage.
type Collector struct {
	market repository.MarketData
	web    repository.WebResearch
	costs  *cost.Table
	cfg    PipelineConfig
	now    func() time.Time
	log    *logger.Logger
}

func NewCollector(market repository.MarketData, web repository.WebResearch, costs *cost.Table, cfg PipelineConfig, log *logger.Logger) *Collector {
	if log == nil {
		log = logger.Nop()
	}
	return &Collector{market: market, web: web, costs: costs, cfg: cfg, now: time.Now, log: log}
}

// CollectResult is the assembled bundle plus research spend.
type CollectResult struct {
	Bundle   *models.ExternalDataBundle
	Cost     float64
	Searches int
}

type fetchOutcome struct {
	key  string
	req  models.DataRequest
	data json.RawMessage
}

// Collect gathers everything Stage 3 needs. Missing data stays nil.
func (c *Collector) Collect(ctx context.Context, s1 models.Stage1Result) *CollectResult {
	if c.cfg.Stage2Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Stage2Timeout)
		defer cancel()
	}

	var (
		fetched   []fetchOutcome
		fallback  []*repository.SearchResult
		fbQueries []string
		ranked    []*repository.SearchResult
		rkQueries []string
		narrative *models.NarrativeMetrics
		narrCost  float64
		narrDone  bool
	)

	var g errgroup.Group
	g.Go(func() error {
		fetched = c.fetchAll(ctx, s1.DataRequests)
		fbQueries = c.fallbackQueries(fetched)
		fallback = c.searchAll(ctx, fbQueries)
		return nil
	})
	g.Go(func() error {
		rkQueries = RankQueries(s1.WebQueries, c.cfg.rankedLimit())
		ranked = c.searchAll(ctx, rkQueries)
		return nil
	})
	if c.cfg.NarrativeMetrics && c.web != nil {
		g.Go(func() error {
			narrative, narrCost, narrDone = c.narrative(ctx, s1)
			return nil
		})
	}
	_ = g.Wait()

	out := &CollectResult{Bundle: &models.ExternalDataBundle{WebSnippets: []models.WebSnippet{}}, Cost: narrCost}
	if narrDone {
		out.Searches++
	}
	if len(fetched) > 0 {
		out.Bundle.MarketData = make(map[string]json.RawMessage, len(fetched))
		for _, f := range fetched {
			out.Bundle.MarketData[f.key] = f.data
		}
	}
	add := func(queries []string, results []*repository.SearchResult, origin string) {
		for i, r := range results {
			if r == nil {
				continue
			}
			out.Searches++
			out.Cost += c.costs.Research(r.Usage.PromptTokens, r.Usage.CompletionTokens)
			out.Bundle.WebSnippets = append(out.Bundle.WebSnippets, models.WebSnippet{
				Query:     queries[i],
				Text:      r.Text,
				Citations: r.Citations,
				Origin:    origin,
			})
		}
	}
	add(rkQueries, ranked, models.SnippetRanked)
	add(fbQueries, fallback, models.SnippetFallback)
	out.Bundle.NarrativeMetrics = narrative
	out.Cost = cost.Sum(out.Cost)
	return out
}

// fetchAll runs every data request with bounded concurrency, keeping request order.
func (c *Collector) fetchAll(ctx context.Context, reqs []models.DataRequest) []fetchOutcome {
	if len(reqs) == 0 {
		return nil
	}
	out := make([]fetchOutcome, len(reqs))
	counts := map[models.RequestType]int{}
	for i, r := range reqs {
		counts[r.Type]++
		key := string(r.Type)
		if n := counts[r.Type]; n > 1 {
			key = fmt.Sprintf("%s_%d", r.Type, n)
		}
		out[i] = fetchOutcome{key: key, req: r}
	}
	if c.market == nil {
		return out
	}

	var g errgroup.Group
	if c.cfg.Stage2Concurrency > 0 {
		g.SetLimit(c.cfg.Stage2Concurrency)
	}
	for i := range out {
		g.Go(func() error {
			r := out[i].req
			data, err := c.market.Fetch(ctx, r.Type, r.Symbols, r.Params)
			if err != nil {
				c.log.Warn("market data fetch failed",
					logger.String("type", string(r.Type)),
					logger.Strings("symbols", r.Symbols),
					logger.Error(err),
				)
				return nil
			}
			if len(data) == 0 {
				c.log.Debug("market data empty", logger.String("type", string(r.Type)), logger.Strings("symbols", r.Symbols))
				return nil
			}
			out[i].data = data
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// fallbackQueries describes each missing request type in plain language, at
// most fallbackLimit of them, one per type.
func (c *Collector) fallbackQueries(fetched []fetchOutcome) []string {
	limit := c.cfg.fallbackLimit()
	var out []string
	seen := map[models.RequestType]struct{}{}
	date := c.now().UTC().Format("January 2, 2006")
	for _, f := range fetched {
		if len(out) >= limit {
			break
		}
		if len(f.data) > 0 {
			continue
		}
		if _, dup := seen[f.req.Type]; dup {
			continue
		}
		seen[f.req.Type] = struct{}{}
		subject := strings.Join(f.req.Symbols, ", ")
		if subject == "" {
			subject = "US markets"
		}
		out = append(out, fmt.Sprintf("%s for %s as of %s", f.req.Type.Describe(), subject, date))
	}
	return out
}

// searchAll issues queries concurrently; results align with queries.
func (c *Collector) searchAll(ctx context.Context, queries []string) []*repository.SearchResult {
	out := make([]*repository.SearchResult, len(queries))
	if c.web == nil || len(queries) == 0 {
		return out
	}
	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			out[i] = c.web.Search(ctx, q)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// narrative asks one aggregated research question for bias and priced-in
// metrics. Anything short of a strictly valid answer yields nil.
func (c *Collector) narrative(ctx context.Context, s1 models.Stage1Result) (*models.NarrativeMetrics, float64, bool) {
	prompt, err := renderNarrative(narrativeData{Title: s1.Title, Analysis: s1.Analysis, Assets: s1.AffectedAssets})
	if err != nil {
		c.log.Warn("narrative prompt failed", logger.Error(err))
		return nil, 0, false
	}
	res := c.web.Search(ctx, prompt)
	if res == nil {
		return nil, 0, false
	}
	spend := c.costs.Research(res.Usage.PromptTokens, res.Usage.CompletionTokens)
	m, ok := parseNarrative(res.Text)
	if !ok {
		c.log.Warn("narrative metrics rejected", logger.Int("chars", len(res.Text)))
		return nil, spend, true
	}
	return m, spend, true
}

// narrativeOutput is the research model's reply. Either key spelling of
// the two metrics is accepted.
type narrativeOutput struct {
	Bias                 string      `json:"bias"`
	PricedIn             *float64    `json:"priced_in"`
	PricedInAlt          *float64    `json:"priced_in_0_10"`
	Confidence           *float64    `json:"confidence"`
	ConfidenceAlt        *float64    `json:"confidence_0_10"`
	SecondOrderEffects   interface{} `json:"second_order_effects"`
	InvalidationTriggers interface{} `json:"invalidation_triggers"`
}

func parseNarrative(text string) (*models.NarrativeMetrics, bool) {
	var out narrativeOutput
	if err := llmjson.Decode(text, &out); err != nil {
		return nil, false
	}
	m := &models.NarrativeMetrics{Bias: models.Sentiment(strings.ToLower(strings.TrimSpace(out.Bias)))}
	valid := false
	for _, s := range models.Sentiments {
		if m.Bias == s {
			valid = true
		}
	}
	if !valid {
		return nil, false
	}
	var ok bool
	if m.PricedIn, ok = metric(out.PricedIn, out.PricedInAlt); !ok {
		return nil, false
	}
	if m.Confidence, ok = metric(out.Confidence, out.ConfidenceAlt); !ok {
		return nil, false
	}
	m.SecondOrderEffects = toStrings(out.SecondOrderEffects)
	m.InvalidationTriggers = toStrings(out.InvalidationTriggers)
	return m, true
}

// metric takes the first present 0-10 value; out-of-range is invalid.
func metric(vals ...*float64) (int, bool) {
	for _, v := range vals {
		if v == nil {
			continue
		}
		if *v < 0 || *v > 10 {
			return 0, false
		}
		n, _ := toInt(*v)
		return n, true
	}
	return 0, false
}
