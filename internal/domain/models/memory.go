package models

import "time"

type MemoryAnalysis struct {
	Date      time.Time  `json:"date"`
	Summary   string     `json:"summary"`
	Positions []Position `json:"positions"`
}

type AssetMemory struct {
	Asset          string           `json:"asset"`
	LastSignal     string           `json:"last_signal"`
	RecentAnalyses []MemoryAnalysis `json:"recent_analyses"`
}

// PositionMemory is prior-analysis context. It is read, never written, by the pipeline.
type PositionMemory struct {
	Assets []AssetMemory `json:"assets"`
}

// MaxRecentAnalyses bounds RecentAnalyses per asset.
const MaxRecentAnalyses = 3
