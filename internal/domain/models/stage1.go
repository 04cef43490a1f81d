package models

// DataRequest asks the market-data provider for one kind of datum over a
// group of canonical symbols.
type DataRequest struct {
	Type    RequestType       `json:"type"`
	Symbols []string          `json:"symbols"`
	Params  map[string]string `json:"params,omitempty"`
}

// Stage1Result is the classifier output after symbol validation.
type Stage1Result struct {
	Title              string        `json:"title"`
	Analysis           string        `json:"analysis"`
	Category           Category      `json:"category"`
	AffectedAssets     []string      `json:"affected_assets"`
	DataRequests       []DataRequest `json:"data_requests"`
	WebQueries         []string      `json:"web_queries"`
	Proceed            bool          `json:"proceed"`
	Tier               int           `json:"tier"`
	ExpectedVolatility Volatility    `json:"expected_volatility"`
}
