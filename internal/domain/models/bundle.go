package models

import (
	"encoding/json"
	"sort"
)

// Snippet origins.
const (
	SnippetRanked   = "ranked"
	SnippetFallback = "fallback"
)

type WebSnippet struct {
	Query     string   `json:"query"`
	Text      string   `json:"text"`
	Citations []string `json:"citations"`
	Origin    string   `json:"origin"`
}

type NarrativeMetrics struct {
	Bias                 Sentiment `json:"bias"`
	PricedIn             int       `json:"priced_in_0_10"`
	Confidence           int       `json:"confidence_0_10"`
	SecondOrderEffects   []string  `json:"second_order_effects"`
	InvalidationTriggers []string  `json:"invalidation_triggers"`
}

// ExternalDataBundle is everything Stage 2 gathered. A nil MarketData entry
// means the provider had nothing for that request; it is never filled in.
type ExternalDataBundle struct {
	MarketData       map[string]json.RawMessage `json:"market_data"`
	WebSnippets      []WebSnippet               `json:"web_snippets"`
	NarrativeMetrics *NarrativeMetrics          `json:"narrative_metrics"`
}

// MissingMarketData lists request keys that came back empty, sorted.
func (b *ExternalDataBundle) MissingMarketData() []string {
	if b == nil {
		return nil
	}
	var out []string
	for k, v := range b.MarketData {
		if len(v) == 0 || string(v) == "null" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
