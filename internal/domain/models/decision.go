package models

type Position struct {
	Asset      string    `json:"asset"`
	Direction  Direction `json:"direction"`
	Confidence int       `json:"confidence"`
	Horizon    Horizon   `json:"horizon"`
}

// Stage3Decision is the normalized synthesizer output. Positions is empty
// whenever TradeDecision is NO_TRADE and all scores lie in [1,10].
type Stage3Decision struct {
	TradeDecision TradeDecision `json:"trade_decision"`
	Sentiment     Sentiment     `json:"sentiment"`
	Conviction    int           `json:"conviction"`
	Importance    int           `json:"importance"`
	ActionType    ActionType    `json:"action_type"`
	Positions     []Position    `json:"positions"`
	ChartAssets   []string      `json:"chart_assets"`
	Risks         []string      `json:"risks"`
	Summary       string        `json:"summary"`
}
