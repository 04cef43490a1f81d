package usecase

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/pkg/util"
)

// promptStrategy names the Stage 1 and Stage 3 templates for one item type.
type promptStrategy struct {
	stage1 string
	stage3 string
}

var strategies = map[models.ItemType]promptStrategy{
	models.ItemNews:     {stage1: "news.stage1", stage3: "news.stage3"},
	models.ItemMacro:    {stage1: "macro.stage1", stage3: "macro.stage3"},
	models.ItemEarnings: {stage1: "earnings.stage1", stage3: "earnings.stage3"},
	models.ItemIPO:      {stage1: "ipo.stage1", stage3: "ipo.stage3"},
	models.ItemCrypto:   {stage1: "crypto.stage1", stage3: "crypto.stage3"},
}

const truncatedMarker = " …[truncated]"

var funcs = template.FuncMap{
	"join": strings.Join,
	"num": func(f *float64) string {
		if f == nil {
			return "n/a"
		}
		return strconv.FormatFloat(*f, 'f', -1, 64)
	},
	"int64p": func(n *int64) string {
		if n == nil {
			return "n/a"
		}
		return strconv.FormatInt(*n, 10)
	},
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "n/a"
		}
		return t.UTC().Format("2006-01-02 15:04 UTC")
	},
	"orNA": func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "n/a"
		}
		return s
	},
}

var prompts = template.Must(template.New("prompts").Funcs(funcs).Parse(promptTemplates))

// stage1Data feeds every Stage 1 template.
type stage1Data struct {
	Item         models.AnalysisInput
	Today        string
	AllowList    string
	Hints        []string
	RequestTypes []models.RequestType
	Categories   []models.Category
}

// stage3Data feeds every Stage 3 template. All blocks arrive already capped.
type stage3Data struct {
	Item       models.AnalysisInput
	Today      string
	Stage1     models.Stage1Result
	AllowList  string
	MarketData string
	Missing    []string
	Snippets   []models.WebSnippet
	Narrative  string
	Memory     string
	Schema     string
}

type repairData struct {
	Title    string
	Analysis string
	Schema   string
	Raw      string
}

type narrativeData struct {
	Title    string
	Analysis string
	Assets   []string
}

func renderStage1(d stage1Data) (string, error) {
	s, ok := strategies[d.Item.ItemType]
	if !ok {
		return "", fmt.Errorf("no prompt strategy for item type %q", d.Item.ItemType)
	}
	return execute(s.stage1, d)
}

func renderStage3(d stage3Data) (string, error) {
	s, ok := strategies[d.Item.ItemType]
	if !ok {
		return "", fmt.Errorf("no prompt strategy for item type %q", d.Item.ItemType)
	}
	return execute(s.stage3, d)
}

func renderRepair(d repairData) (string, error) {
	return execute("repair", d)
}

func renderNarrative(d narrativeData) (string, error) {
	return execute("narrative", d)
}

func execute(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}

// truncate cuts s to at most n bytes on a rune boundary and marks the cut.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return util.Truncate(s, n-len(truncatedMarker)) + truncatedMarker
}

// decisionSchema is the Stage 3 output skeleton, reused by the repair pass.
const decisionSchema = `{
  "trade_decision": "TRADE | NO_TRADE",
  "sentiment": "bullish | bearish | neutral | mixed",
  "conviction": 1-10,
  "importance": 1-10,
  "action_type": "trade_now | wait_and_react | hedge | monitor | no_action",
  "positions": [
    {"asset": "EXCHANGE:SYMBOL", "direction": "long | short", "confidence": 1-10, "horizon": "intraday | short_term | medium_term | long_term"}
  ],
  "chart_assets": ["EXCHANGE:SYMBOL"],
  "risks": ["string"],
  "summary": "string"
}`

const promptTemplates = `
{{define "stage1.rules"}}
{{.AllowList}}
{{if .Hints}}Allowed symbols named by the item itself: {{join .Hints ", "}}
{{end}}Respond with ONE JSON object and nothing else:
{
  "title": "short headline for this item",
  "analysis": "2-4 sentences on why this matters (or does not) for markets",
  "category": "one of: {{range $i, $c := .Categories}}{{if $i}}, {{end}}{{$c}}{{end}}",
  "affected_assets": ["SYMBOL from the allowed list"],
  "data_requests": [{"type": "one of: {{range $i, $r := .RequestTypes}}{{if $i}}, {{end}}{{$r}}{{end}}", "symbols": ["SYMBOL"], "params": {}}],
  "web_queries": ["specific search query that would verify or extend this item"],
  "proceed": true,
  "tier": 1,
  "expected_volatility": "low | medium | high"
}
Rules:
- Use only symbols from the allowed list. If none is clearly affected, return an empty list.
- Set "proceed" to false for stale, promotional, duplicate or market-irrelevant items.
- Tier 1 is market-moving, tier 2 is sector-relevant, tier 3 is noise.
- Ask for at most 4 data requests and 4 web queries.
{{end}}

{{define "news.stage1"}}You are a markets desk analyst triaging incoming news. Today is {{.Today}}.
NEWS ITEM
Headline: {{.Item.News.Headline}}
Source: {{orNA .Item.News.Source}}
Published: {{when .Item.PublishedAt}}
{{if .Item.News.Tickers}}Tagged tickers: {{join .Item.News.Tickers ", "}}
{{end}}Body:
{{orNA .Item.News.Body}}
{{template "stage1.rules" .}}{{end}}

{{define "macro.stage1"}}You are a macro strategist reviewing a scheduled economic release. Today is {{.Today}}.
ECONOMIC EVENT
Event: {{.Item.Macro.Name}}
Country: {{orNA .Item.Macro.Country}}
Date: {{.Item.Macro.Date}}
Forecast: {{orNA .Item.Macro.Forecast}}
Previous: {{orNA .Item.Macro.Previous}}
Actual: {{orNA .Item.Macro.Actual}}
Scheduled importance: {{orNA .Item.Macro.Importance}}
Consider the surprise versus forecast (if an actual is available) and which rates, FX and index instruments react.
{{template "stage1.rules" .}}{{end}}

{{define "earnings.stage1"}}You are an equity analyst reviewing an earnings event. Today is {{.Today}}.
EARNINGS
Symbol: {{.Item.Earnings.Symbol}}
Company: {{orNA .Item.Earnings.Company}}
Date: {{.Item.Earnings.Date}}{{if .Item.Earnings.Quarter}} (Q{{.Item.Earnings.Quarter}} {{.Item.Earnings.Year}}){{end}}
EPS estimate: {{num .Item.Earnings.EPSEstimate}}  EPS actual: {{num .Item.Earnings.EPSActual}}
Revenue estimate: {{num .Item.Earnings.RevenueEstimate}}  Revenue actual: {{num .Item.Earnings.RevenueActual}}
Consider the size of any beat or miss, guidance, and read-through to peers.
{{template "stage1.rules" .}}{{end}}

{{define "ipo.stage1"}}You are an equity capital markets analyst reviewing an IPO. Today is {{.Today}}.
IPO
Company: {{.Item.IPO.Company}}
Symbol: {{orNA .Item.IPO.Symbol}}
Exchange: {{orNA .Item.IPO.Exchange}}
Date: {{.Item.IPO.Date}}
Price range: {{num .Item.IPO.PriceLow}} - {{num .Item.IPO.PriceHigh}}
Shares offered: {{int64p .Item.IPO.Shares}}
Deal size: {{num .Item.IPO.TotalValue}}
Consider sector sentiment and listed peers; the IPO itself is rarely on the allowed list.
{{template "stage1.rules" .}}{{end}}

{{define "crypto.stage1"}}You are a digital-asset analyst triaging a crypto item. Today is {{.Today}}.
CRYPTO ITEM
Asset: {{.Item.Crypto.Symbol}}
Headline: {{.Item.Crypto.Headline}}
{{if .Item.Crypto.Event}}Event: {{.Item.Crypto.Event}} on {{orNA .Item.Crypto.Date}}
{{end}}Body:
{{orNA .Item.Crypto.Body}}
{{template "stage1.rules" .}}{{end}}

{{define "stage3.context"}}
CLASSIFICATION
Title: {{.Stage1.Title}}
Category: {{.Stage1.Category}}  Tier: {{.Stage1.Tier}}  Expected volatility: {{.Stage1.ExpectedVolatility}}
Affected assets: {{if .Stage1.AffectedAssets}}{{join .Stage1.AffectedAssets ", "}}{{else}}none{{end}}
Analysis: {{.Stage1.Analysis}}

MARKET DATA
{{if .MarketData}}{{.MarketData}}{{else}}none retrieved{{end}}
{{if .Missing}}Unavailable: {{join .Missing ", "}}. Do not invent precise figures for these.
{{end}}
WEB RESEARCH
{{range .Snippets}}[{{.Origin}}] {{.Query}}
{{.Text}}
{{if .Citations}}Sources: {{join .Citations " "}}
{{end}}
{{else}}none retrieved
{{end}}{{if .Narrative}}
NARRATIVE METRICS
{{.Narrative}}
{{end}}{{if .Memory}}
PRIOR ANALYSES FOR THESE ASSETS (stay consistent or explain the change)
{{.Memory}}
{{end}}
{{.AllowList}}
Respond with ONE JSON object matching this schema and nothing else:
{{.Schema}}
Rules:
- Every asset must be written as EXCHANGE:SYMBOL using the chart symbols listed above.
- Use NO_TRADE with an empty positions list unless the evidence supports a position.
- Scores are integers from 1 to 10.
{{end}}

{{define "news.stage3"}}You are a portfolio manager deciding whether this news is tradeable. Today is {{.Today}}.
NEWS: {{.Item.News.Headline}}
{{template "stage3.context" .}}{{end}}

{{define "macro.stage3"}}You are a macro portfolio manager positioning around an economic release. Today is {{.Today}}.
EVENT: {{.Item.Macro.Country}} {{.Item.Macro.Name}} on {{.Item.Macro.Date}} (forecast {{orNA .Item.Macro.Forecast}}, previous {{orNA .Item.Macro.Previous}}, actual {{orNA .Item.Macro.Actual}})
Before the release, prefer wait_and_react or hedge unless positioning is clearly asymmetric.
{{template "stage3.context" .}}{{end}}

{{define "earnings.stage3"}}You are a portfolio manager trading around earnings. Today is {{.Today}}.
EARNINGS: {{.Item.Earnings.Symbol}} on {{.Item.Earnings.Date}} (EPS est {{num .Item.Earnings.EPSEstimate}}, actual {{num .Item.Earnings.EPSActual}})
{{template "stage3.context" .}}{{end}}

{{define "ipo.stage3"}}You are a portfolio manager assessing the market impact of an IPO. Today is {{.Today}}.
IPO: {{.Item.IPO.Company}} on {{.Item.IPO.Date}}
Only listed peers or sector ETFs from the allowed list can be positioned.
{{template "stage3.context" .}}{{end}}

{{define "crypto.stage3"}}You are a digital-asset portfolio manager. Today is {{.Today}}.
CRYPTO: {{.Item.Crypto.Symbol}} - {{.Item.Crypto.Headline}}
{{template "stage3.context" .}}{{end}}

{{define "repair"}}Your previous answer for the analysis below was not a valid JSON object.
Title: {{.Title}}
Analysis: {{.Analysis}}

Previous output:
{{if .Raw}}{{.Raw}}{{else}}(empty response){{end}}

Return ONLY a JSON object that matches this schema exactly, with no prose and no code fences:
{{.Schema}}
{{end}}

{{define "narrative"}}Search for the latest market coverage of: {{.Title}}
Context: {{.Analysis}}
{{if .Assets}}Instruments: {{join .Assets ", "}}
{{end}}
Answer with strict JSON only, no prose:
{"bias": "bullish | bearish | neutral | mixed", "priced_in": 0-10, "confidence": 0-10, "second_order_effects": ["string"], "invalidation_triggers": ["string"]}
{{end}}
`
