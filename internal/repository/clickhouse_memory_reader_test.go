package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/models"
)

type charts map[string]string

func (c charts) lookup(chart string) (string, bool) {
	sym, ok := c[chart]
	return sym, ok
}

var chartIndex = charts{"NASDAQ:AAPL": "AAPL", "BINANCE:BTCUSDT": "BTC", "NASDAQ:META": "META"}

func TestAssembleMemory(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 3, d, 12, 0, 0, 0, time.UTC) }
	rows := []memoryRow{
		{Asset: "AAPL", AnalyzedAt: day(1), TradeDecision: "NO_TRADE", Summary: "old"},
		{Asset: "AAPL", AnalyzedAt: day(3), TradeDecision: "TRADE", Summary: "newest",
			Positions: `[{"asset":"NASDAQ:AAPL","direction":"short","confidence":6,"horizon":"short_term"}]`},
		{Asset: "AAPL", AnalyzedAt: day(2), TradeDecision: "NO_TRADE", Summary: "middle"},
		{Asset: "AAPL", AnalyzedAt: day(0), TradeDecision: "NO_TRADE", Summary: "oldest"},
		{Asset: "BTC", AnalyzedAt: day(2), TradeDecision: "TRADE", Summary: "btc",
			Positions: `[{"asset":"BINANCE:BTCUSDT","direction":"long","confidence":7,"horizon":"intraday"}]`},
		{Asset: "SPY", AnalyzedAt: day(2), TradeDecision: "NO_TRADE", Positions: "not json"},
	}

	mem := assembleMemory([]string{"SPY", "AAPL", "BTC", "SBUX"}, rows, chartIndex.lookup)
	require.NotNil(t, mem)
	require.Len(t, mem.Assets, 3)

	assert.Equal(t, "SPY", mem.Assets[0].Asset)
	assert.Equal(t, "no_trade", mem.Assets[0].LastSignal)
	assert.Empty(t, mem.Assets[0].RecentAnalyses[0].Positions)

	aapl := mem.Assets[1]
	assert.Equal(t, "short", aapl.LastSignal)
	require.Len(t, aapl.RecentAnalyses, models.MaxRecentAnalyses)
	assert.Equal(t, "newest", aapl.RecentAnalyses[0].Summary)
	assert.Equal(t, "middle", aapl.RecentAnalyses[1].Summary)
	assert.Equal(t, "old", aapl.RecentAnalyses[2].Summary)
	assert.Equal(t, models.Short, aapl.RecentAnalyses[0].Positions[0].Direction)

	assert.Equal(t, "long", mem.Assets[2].LastSignal)
}

func TestLastSignal_MatchesWholeSymbol(t *testing.T) {
	row := memoryRow{Asset: "META", TradeDecision: "TRADE",
		Positions: `[{"asset":"NASDAQ:METAX","direction":"short"},{"asset":"NASDAQ:META","direction":"long"}]`}
	assert.Equal(t, "long", lastSignal("META", row, chartIndex.lookup))
	assert.Equal(t, "long", lastSignal("META", row, nil))

	row.Positions = `[{"asset":"NASDAQ:METAX","direction":"short"}]`
	assert.Equal(t, "trade", lastSignal("META", row, chartIndex.lookup))
	assert.Equal(t, "trade", lastSignal("META", row, nil))

	btc := memoryRow{TradeDecision: "TRADE", Positions: `[{"asset":"BINANCE:BTCUSDT","direction":"long"}]`}
	assert.Equal(t, "long", lastSignal("BTC", btc, chartIndex.lookup))
}

func TestAssembleMemory_NothingFound(t *testing.T) {
	assert.Nil(t, assembleMemory([]string{"AAPL"}, nil, nil))
}

func TestMemorySchema(t *testing.T) {
	stmts := MemorySchema("signalforge", "analyses", []string{"k1:9092", "k2:9092"}, "signalforge.results", "ch-memory")
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[1], "CREATE TABLE IF NOT EXISTS signalforge.analyses")
	assert.Contains(t, stmts[2], "kafka_broker_list = 'k1:9092,k2:9092'")
	assert.True(t, strings.Contains(stmts[3], "ARRAY JOIN JSONExtract(raw, 'stage1', 'affected_assets', 'Array(String)') AS asset"))
	assert.Contains(t, stmts[3], "TO signalforge.analyses")
}
