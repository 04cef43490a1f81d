package usecase

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/models"
)

func TestStrategiesCoverEveryItemType(t *testing.T) {
	for _, it := range models.ItemTypes {
		_, ok := strategies[it]
		assert.True(t, ok, "missing strategy for %s", it)
	}
}

func TestRenderPrompts_EveryItemType(t *testing.T) {
	al := testResolver(t).Resolve()
	for it, in := range sampleInputs() {
		t.Run(string(it), func(t *testing.T) {
			p1, err := renderStage1(stage1Data{
				Item:         in,
				Today:        "2026-03-04",
				AllowList:    al.PromptFragment,
				RequestTypes: models.RequestTypes,
				Categories:   models.Categories,
			})
			require.NoError(t, err)
			assert.Contains(t, p1, "2026-03-04")
			assert.Contains(t, p1, "ALLOWED INSTRUMENTS")
			assert.Contains(t, p1, "economic_calendar")

			p3, err := renderStage3(stage3Data{
				Item:       in,
				Today:      "2026-03-04",
				Stage1:     models.Stage1Result{Title: in.Title(), Analysis: "analysis text", AffectedAssets: []string{"AAPL"}},
				AllowList:  al.PromptFragment,
				MarketData: `{"quote":{"AAPL":{"c":190.1}}}`,
				Missing:    []string{"candles"},
				Snippets:   []models.WebSnippet{{Query: "q1", Text: "snippet text", Origin: models.SnippetRanked}},
				Schema:     decisionSchema,
			})
			require.NoError(t, err)
			assert.Contains(t, p3, in.Title())
			assert.Contains(t, p3, "analysis text")
			assert.Contains(t, p3, `"AAPL":{"c":190.1}`)
			assert.Contains(t, p3, "Unavailable: candles")
			assert.Contains(t, p3, "[ranked] q1")
			assert.Contains(t, p3, `"trade_decision": "TRADE | NO_TRADE"`)
			assert.NotContains(t, p3, "PRIOR ANALYSES")
		})
	}
}

func TestRenderStage1_UnknownType(t *testing.T) {
	_, err := renderStage1(stage1Data{Item: models.AnalysisInput{ItemType: "podcast"}})
	assert.Error(t, err)
}

func TestRenderRepair(t *testing.T) {
	p, err := renderRepair(repairData{Title: "t", Analysis: "a", Schema: decisionSchema})
	require.NoError(t, err)
	assert.Contains(t, p, "(empty response)")

	p, err = renderRepair(repairData{Title: "t", Analysis: "a", Schema: decisionSchema, Raw: "Sure! TRADE AAPL"})
	require.NoError(t, err)
	assert.Contains(t, p, "Sure! TRADE AAPL")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "unbounded", truncate("unbounded", 0))

	s := truncate(strings.Repeat("a", 100), 40)
	assert.LessOrEqual(t, len(s), 40)
	assert.True(t, strings.HasSuffix(s, truncatedMarker))

	s = truncate(strings.Repeat("é", 50), 30)
	assert.LessOrEqual(t, len(s), 30)
	assert.True(t, utf8.ValidString(s))
}
