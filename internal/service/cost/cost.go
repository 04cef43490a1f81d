// Package cost converts token usage into USD and wall-clock spans into
// milliseconds. Nothing here returns an error.
package cost

import (
	"math"
	"time"

	"SignalForge/pkg/config"
)

const perMillion = 1_000_000.0

// Table prices models by name and web research separately.
type Table struct {
	models   map[string]config.ModelPrice
	research config.ResearchPrice
}

func NewTable(p config.PricingConfig) *Table {
	m := make(map[string]config.ModelPrice, len(p.Models))
	for k, v := range p.Models {
		m[k] = v
	}
	return &Table{models: m, research: p.Research}
}

// LLM prices one completion. Unknown models cost zero.
func (t *Table) LLM(model string, in, out int) float64 {
	if t == nil {
		return 0
	}
	return LLMCost(in, out, t.models[model])
}

// Research prices one web-research request.
func (t *Table) Research(in, out int) float64 {
	if t == nil {
		return 0
	}
	return ResearchCost(in, out, t.research)
}

// LLMCost is tokens times the per-million price. Negative counts are treated as zero.
func LLMCost(in, out int, p config.ModelPrice) float64 {
	return round(float64(nonNeg(in))*p.InputPerMTok/perMillion + float64(nonNeg(out))*p.OutputPerMTok/perMillion)
}

// ResearchCost adds the flat per-request fee to the token cost.
func ResearchCost(in, out int, p config.ResearchPrice) float64 {
	tokens := LLMCost(in, out, config.ModelPrice{InputPerMTok: p.InputPerMTok, OutputPerMTok: p.OutputPerMTok})
	return round(tokens + math.Max(p.PerRequest, 0))
}

// Elapsed returns end-start in milliseconds, never negative.
func Elapsed(start, end time.Time) int64 {
	ms := end.Sub(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// Sum adds costs, rounded to micro-dollars.
func Sum(v ...float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return round(s)
}

func nonNeg(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return math.Round(v*1e6) / 1e6
}
