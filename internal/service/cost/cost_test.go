package cost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"SignalForge/pkg/config"
)

func TestLLMCost(t *testing.T) {
	p := config.ModelPrice{InputPerMTok: 3, OutputPerMTok: 15}
	assert.InDelta(t, 0.003+0.015, LLMCost(1000, 1000, p), 1e-9)
	assert.Equal(t, 0.0, LLMCost(0, 0, p))
	assert.Equal(t, 0.0, LLMCost(-5, -5, p))
}

func TestResearchCost_AddsFlatFee(t *testing.T) {
	p := config.ResearchPrice{InputPerMTok: 1, OutputPerMTok: 2, PerRequest: 0.035}
	assert.InDelta(t, 0.001+0.002+0.035, ResearchCost(1000, 1000, p), 1e-9)
	assert.InDelta(t, 0.035, ResearchCost(0, 0, p), 1e-9)
}

func TestTable(t *testing.T) {
	tbl := NewTable(config.PricingConfig{
		Models: map[string]config.ModelPrice{"m": {InputPerMTok: 1, OutputPerMTok: 1}},
	})
	assert.InDelta(t, 0.002, tbl.LLM("m", 1000, 1000), 1e-9)
	assert.Equal(t, 0.0, tbl.LLM("unknown", 1000, 1000))

	var nilTable *Table
	assert.Equal(t, 0.0, nilTable.LLM("m", 1, 1))
	assert.Equal(t, 0.0, nilTable.Research(1, 1))
}

func TestElapsed(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(1500), Elapsed(start, start.Add(1500*time.Millisecond)))
	assert.Equal(t, int64(0), Elapsed(start, start.Add(-time.Second)))
}

func TestSum(t *testing.T) {
	assert.InDelta(t, 0.6, Sum(0.1, 0.2, 0.3), 1e-9)
	assert.Equal(t, 0.0, Sum())
}
