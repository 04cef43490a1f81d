package models

import "time"

// Synthesis states, recorded on the result for visibility.
const (
	SynthSkipped  = "skipped"
	SynthAttempt  = "attempt"
	SynthRetry    = "retry"
	SynthRepair   = "repair"
	SynthFallback = "fallback"
)

// StageCost is USD.
type StageCost struct {
	Stage1 float64 `json:"stage1"`
	Stage2 float64 `json:"stage2"`
	Stage3 float64 `json:"stage3"`
	Total  float64 `json:"total"`
}

type StageTiming struct {
	Stage1Ms int64 `json:"stage1_ms"`
	Stage2Ms int64 `json:"stage2_ms"`
	Stage3Ms int64 `json:"stage3_ms"`
	TotalMs  int64 `json:"total_ms"`
}

// AnalysisResult is created once per Analyze call and handed to the caller.
type AnalysisResult struct {
	Input          AnalysisInput       `json:"input"`
	Stage1         Stage1Result        `json:"stage1"`
	CollectedData  *ExternalDataBundle `json:"collected_data"`
	Stage3         Stage3Decision      `json:"stage3"`
	SynthesisState string              `json:"synthesis_state"`
	Cost           StageCost           `json:"cost"`
	Timing         StageTiming         `json:"timing"`
	AnalyzedAt     time.Time           `json:"analyzed_at"`
}
