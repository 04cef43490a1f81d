package models

// Instrument is one tradeable entry of the allow-list.
type Instrument struct {
	Symbol      string `yaml:"symbol" json:"symbol" validate:"required,max=20"`
	ChartSymbol string `yaml:"chart_symbol" json:"chart_symbol" validate:"required"`
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type" validate:"required,oneof=stock etf index forex crypto commodity bond"`
}

// AllowList is the closed set of canonical symbols plus the prompt fragment
// that lists them. It is read-only once built.
type AllowList struct {
	Allowed        map[string]Instrument
	PromptFragment string
}

// Contains reports whether sym is a canonical symbol.
func (a AllowList) Contains(sym string) bool {
	_, ok := a.Allowed[sym]
	return ok
}

// ChartSymbol returns the EXCHANGE:SYMBOL form for a canonical symbol.
func (a AllowList) ChartSymbol(sym string) (string, bool) {
	in, ok := a.Allowed[sym]
	if !ok {
		return "", false
	}
	return in.ChartSymbol, true
}
