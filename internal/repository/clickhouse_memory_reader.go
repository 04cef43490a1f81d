package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"SignalForge/internal/domain/models"
	domrepo "SignalForge/internal/domain/repository"
	pkgch "SignalForge/pkg/clickhouse"
	applogger "SignalForge/pkg/logger"
)

// CHMemoryReader reads prior analyses from ClickHouse. The table is filled
// by ClickHouse itself from the results topic (see MemorySchema); this
// type never writes.
type CHMemoryReader struct {
	db        *sql.DB
	table     string
	canonical CanonicalFunc
	l         *applogger.Logger
}

// CanonicalFunc maps a chart symbol such as BINANCE:BTCUSDT to the
// canonical symbol the memory table is keyed by.
type CanonicalFunc func(chart string) (string, bool)

// NewCHMemoryReader builds a reader. With a nil canonical, position assets
// are compared by their symbol part.
func NewCHMemoryReader(ch *pkgch.Client, database, table string, canonical CanonicalFunc, l *applogger.Logger) *CHMemoryReader {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHMemoryReader{db: ch.DB(), table: database + "." + table, canonical: canonical, l: l}
}

// memoryRow is one (analysis, asset) pair.
type memoryRow struct {
	Asset         string
	AnalyzedAt    time.Time
	Category      string
	TradeDecision string
	Summary       string
	Positions     string
}

// Read returns up to models.MaxRecentAnalyses analyses per asset strictly
// before asOf, preferring analyses of the same category. Assets with no
// history are omitted; nil means nothing was found.
func (r *CHMemoryReader) Read(ctx context.Context, assets []string, asOf time.Time, category models.Category) (*models.PositionMemory, error) {
	if len(assets) == 0 {
		return nil, nil
	}
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT asset, analyzed_at, category, trade_decision, summary, positions
        FROM %s
        WHERE has(?, asset) AND analyzed_at < ?
        ORDER BY asset ASC, (category = ?) DESC, analyzed_at DESC
        LIMIT %d BY asset
    `, r.table, models.MaxRecentAnalyses)

	rows, err := r.db.QueryContext(ctx, q, assets, asOf.UTC(), string(category))
	if err != nil {
		return nil, fmt.Errorf("read memory: %w", err)
	}
	defer rows.Close()

	var out []memoryRow
	for rows.Next() {
		var m memoryRow
		if err := rows.Scan(&m.Asset, &m.AnalyzedAt, &m.Category, &m.TradeDecision, &m.Summary, &m.Positions); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	mem := assembleMemory(assets, out, r.canonical)
	r.l.Debug("clickhouse read_memory ok",
		applogger.Strings("assets", assets),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return mem, nil
}

// assembleMemory groups rows per asset in the requested asset order, each
// asset's analyses newest first. The last signal comes from the newest row.
func assembleMemory(assets []string, rows []memoryRow, canonical CanonicalFunc) *models.PositionMemory {
	byAsset := make(map[string][]memoryRow, len(assets))
	for _, row := range rows {
		byAsset[row.Asset] = append(byAsset[row.Asset], row)
	}

	mem := &models.PositionMemory{}
	for _, asset := range assets {
		list := byAsset[asset]
		if len(list) == 0 {
			continue
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].AnalyzedAt.After(list[j].AnalyzedAt) })
		if len(list) > models.MaxRecentAnalyses {
			list = list[:models.MaxRecentAnalyses]
		}
		am := models.AssetMemory{
			Asset:          asset,
			LastSignal:     lastSignal(asset, list[0], canonical),
			RecentAnalyses: make([]models.MemoryAnalysis, 0, len(list)),
		}
		for _, row := range list {
			am.RecentAnalyses = append(am.RecentAnalyses, models.MemoryAnalysis{
				Date:      row.AnalyzedAt.UTC(),
				Summary:   row.Summary,
				Positions: decodePositions(row.Positions),
			})
		}
		mem.Assets = append(mem.Assets, am)
	}
	if len(mem.Assets) == 0 {
		return nil
	}
	return mem
}

// lastSignal is the direction of the position on asset, or the lower-cased
// decision when the analysis held no position on it.
func lastSignal(asset string, row memoryRow, canonical CanonicalFunc) string {
	for _, p := range decodePositions(row.Positions) {
		if positionSymbol(p.Asset, canonical) == asset {
			return string(p.Direction)
		}
	}
	return strings.ToLower(row.TradeDecision)
}

func positionSymbol(chart string, canonical CanonicalFunc) string {
	if canonical != nil {
		if sym, ok := canonical(chart); ok {
			return sym
		}
	}
	if i := strings.LastIndexByte(chart, ':'); i >= 0 {
		chart = chart[i+1:]
	}
	return strings.ToUpper(chart)
}

func decodePositions(s string) []models.Position {
	out := []models.Position{}
	if s == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// MemorySchema returns the DDL that lets ClickHouse ingest the results
// topic into the memory table: a Kafka engine source, the MergeTree table
// and a materialized view exploding each result into one row per affected
// asset.
func MemorySchema(database, table string, brokers []string, topic, group string) []string {
	target := database + "." + table
	source := database + "." + table + "_queue"
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            analyzed_at DateTime64(3, 'UTC'),
            item_id String,
            asset LowCardinality(String),
            category LowCardinality(String),
            trade_decision LowCardinality(String),
            summary String,
            positions String
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(analyzed_at)
        ORDER BY (asset, analyzed_at)
        TTL toDateTime(analyzed_at) + INTERVAL 180 DAY`, target),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (raw String)
        ENGINE = Kafka
        SETTINGS kafka_broker_list = '%s',
                 kafka_topic_list = '%s',
                 kafka_group_name = '%s',
                 kafka_format = 'JSONAsString'`, source, strings.Join(brokers, ","), topic, group),
		fmt.Sprintf(`CREATE MATERIALIZED VIEW IF NOT EXISTS %s_mv TO %s AS
        SELECT
            parseDateTime64BestEffort(JSONExtractString(raw, 'analyzed_at'), 3) AS analyzed_at,
            JSONExtractString(raw, 'input', 'id') AS item_id,
            asset,
            JSONExtractString(raw, 'stage1', 'category') AS category,
            JSONExtractString(raw, 'stage3', 'trade_decision') AS trade_decision,
            JSONExtractString(raw, 'stage3', 'summary') AS summary,
            JSONExtractRaw(raw, 'stage3', 'positions') AS positions
        FROM %s
        ARRAY JOIN JSONExtract(raw, 'stage1', 'affected_assets', 'Array(String)') AS asset`, target, target, source),
	}
}

var _ domrepo.MemoryReader = (*CHMemoryReader)(nil)
