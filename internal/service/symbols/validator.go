package symbols

import (
	"regexp"
	"strings"

	"SignalForge/internal/domain/models"
)

// chartSymbol is the EXCHANGE:SYMBOL grammar every outbound asset must match.
var chartSymbol = regexp.MustCompile(`^[A-Za-z0-9]+:[A-Za-z0-9.!]+$`)

// Quote-currency and listing suffixes, longest first so USDT wins over USD.
var suffixes = []string{"-PERP", "USDT", "USDC", "BUSD", "-USD", "/USD", "USD", ".US", "=X"}

var prefixes = []string{"$", "^", "#"}

// Validator filters candidate symbols against an allow-list.
type Validator struct {
	allowed map[string]struct{}
	byChart map[string]string
	charts  map[string]struct{}
}

func NewValidator(al models.AllowList) *Validator {
	v := &Validator{
		allowed: make(map[string]struct{}, len(al.Allowed)),
		byChart: make(map[string]string, len(al.Allowed)),
		charts:  make(map[string]struct{}, len(al.Allowed)),
	}
	for sym, in := range al.Allowed {
		v.allowed[strings.ToUpper(sym)] = struct{}{}
		if in.ChartSymbol != "" {
			v.byChart[strings.ToUpper(in.ChartSymbol)] = strings.ToUpper(sym)
			v.charts[in.ChartSymbol] = struct{}{}
		}
	}
	return v
}

// Empty reports whether the allow-list has no symbols at all.
func (v *Validator) Empty() bool { return len(v.allowed) == 0 }

// Validate returns the allow-listed canonical form of each candidate, in
// input order with duplicates removed. Unknown candidates are dropped.
func (v *Validator) Validate(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		sym, ok := v.Canonical(c)
		if !ok {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

// Canonical resolves one candidate to an allow-listed symbol.
func (v *Validator) Canonical(candidate string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(candidate))
	if s == "" {
		return "", false
	}
	if v.has(s) {
		return s, true
	}
	if sym, ok := v.byChart[s]; ok {
		return sym, true
	}
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
		if v.has(s) {
			return s, true
		}
	}
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimPrefix(s, p)
			if v.has(s) {
				return s, true
			}
		}
	}
	for _, suf := range suffixes {
		if len(s) > len(suf) && strings.HasSuffix(s, suf) {
			if base := strings.TrimSuffix(s, suf); v.has(base) {
				return base, true
			}
		}
	}
	return "", false
}

// AllowsChart reports whether asset is, verbatim, the chart symbol of an
// allow-listed instrument. FX:AAPL is rejected even though AAPL is allowed.
func (v *Validator) AllowsChart(asset string) bool {
	_, ok := v.charts[asset]
	return ok
}

func (v *Validator) has(s string) bool {
	_, ok := v.allowed[s]
	return ok
}

// IsChartSymbol reports whether s matches EXCHANGE:SYMBOL.
func IsChartSymbol(s string) bool {
	return chartSymbol.MatchString(s)
}

// FilterChartSymbols keeps entries already in chart grammar, in order and
// without duplicates. Non-matching entries are dropped, not rewritten.
func FilterChartSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if !IsChartSymbol(s) {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
