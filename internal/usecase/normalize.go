package usecase

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/service/symbols"
)

const (
	minScore     = 1
	maxScore     = 10
	defaultScore = 5
	minTier      = 1
	maxTier      = 3

	fallbackSummary = "analysis failed due to parsing error"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

var (
	sentimentAliases = map[string]models.Sentiment{
		"positive": models.SentimentBullish, "bull": models.SentimentBullish, "risk_on": models.SentimentBullish,
		"negative": models.SentimentBearish, "bear": models.SentimentBearish, "risk_off": models.SentimentBearish,
		"flat": models.SentimentNeutral, "none": models.SentimentNeutral,
		"balanced": models.SentimentMixed, "uncertain": models.SentimentMixed,
	}
	actionAliases = map[string]models.ActionType{
		"trade": models.ActionTradeNow, "buy": models.ActionTradeNow, "sell": models.ActionTradeNow, "enter": models.ActionTradeNow,
		"wait": models.ActionWaitAndReact, "wait_for_confirmation": models.ActionWaitAndReact, "react": models.ActionWaitAndReact,
		"watch": models.ActionMonitor, "watchlist": models.ActionMonitor, "observe": models.ActionMonitor,
		"protect": models.ActionHedge, "hedging": models.ActionHedge,
		"none": models.ActionNoAction, "ignore": models.ActionNoAction, "no_trade": models.ActionNoAction, "pass": models.ActionNoAction,
	}
	directionAliases = map[string]models.Direction{
		"buy": models.Long, "bull": models.Long, "bullish": models.Long, "up": models.Long,
		"sell": models.Short, "bear": models.Short, "bearish": models.Short, "down": models.Short,
	}
	horizonAliases = map[string]models.Horizon{
		"day": models.HorizonIntraday, "intra_day": models.HorizonIntraday, "same_day": models.HorizonIntraday,
		"short": models.HorizonShortTerm, "days": models.HorizonShortTerm, "swing": models.HorizonShortTerm,
		"medium": models.HorizonMediumTerm, "weeks": models.HorizonMediumTerm,
		"long": models.HorizonLongTerm, "months": models.HorizonLongTerm,
	}
	decisionAliases = map[string]models.TradeDecision{
		"yes": models.Trade, "true": models.Trade, "go": models.Trade,
		"no": models.NoTrade, "false": models.NoTrade, "none": models.NoTrade, "pass": models.NoTrade, "skip": models.NoTrade,
	}
	categoryAliases = map[string]models.Category{
		"central_bank": models.CategoryMonetaryPolicy, "fed": models.CategoryMonetaryPolicy, "rates": models.CategoryMonetaryPolicy,
		"economic_data": models.CategoryMacroData, "macro": models.CategoryMacroData, "economy": models.CategoryMacroData,
		"company": models.CategoryCorporate, "m_a": models.CategoryCorporate, "merger": models.CategoryCorporate,
		"politics": models.CategoryGeopolitical, "geopolitics": models.CategoryGeopolitical,
		"regulation": models.CategoryRegulatory, "legal": models.CategoryRegulatory,
		"cryptocurrency": models.CategoryCrypto, "digital_assets": models.CategoryCrypto,
		"commodity": models.CategoryCommodities, "energy": models.CategoryCommodities,
	}
	volatilityAliases = map[string]models.Volatility{
		"moderate": models.VolatilityMedium, "med": models.VolatilityMedium,
		"elevated": models.VolatilityHigh, "extreme": models.VolatilityHigh,
		"minimal": models.VolatilityLow,
	}
)

func snake(s string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_"), "_")
}

// enumSet is a closed set of values with aliases. loose enables the
// containment fallback, which is off for fields that drive positions.
type enumSet[T ~string] struct {
	options []T
	aliases map[string]T
	loose   bool
}

var (
	decisionSet   = enumSet[models.TradeDecision]{options: []models.TradeDecision{models.Trade, models.NoTrade}, aliases: decisionAliases}
	sentimentSet  = enumSet[models.Sentiment]{options: models.Sentiments, aliases: sentimentAliases, loose: true}
	actionSet     = enumSet[models.ActionType]{options: models.ActionTypes, aliases: actionAliases, loose: true}
	directionSet  = enumSet[models.Direction]{options: models.Directions, aliases: directionAliases}
	horizonSet    = enumSet[models.Horizon]{options: models.Horizons, aliases: horizonAliases, loose: true}
	categorySet   = enumSet[models.Category]{options: models.Categories, aliases: categoryAliases, loose: true}
	volatilitySet = enumSet[models.Volatility]{options: models.Volatilities, aliases: volatilityAliases, loose: true}
)

// negations are tokens that flip the meaning of the text around them.
// "don't" snakes to don_t, so the stem is enough.
var negations = map[string]struct{}{
	"not": {}, "no": {}, "don": {}, "dont": {}, "never": {}, "avoid": {}, "without": {},
	"isn": {}, "aren": {}, "doesn": {}, "shouldn": {}, "won": {}, "cannot": {}, "nor": {}, "neither": {},
}

func negated(tokens []string) bool {
	for _, t := range tokens {
		if _, ok := negations[t]; ok {
			return true
		}
	}
	return false
}

// matchEnum maps free text onto a closed set: exact, then alias, then
// token-prefix ("wait and reaction" -> wait_and_react), then containment
// when the set is loose. Negated text never matches past the alias step.
func matchEnum[T ~string](raw interface{}, set enumSet[T]) (T, bool) {
	var zero T
	str, ok := raw.(string)
	if !ok {
		return zero, false
	}
	s := snake(str)
	if s == "" {
		return zero, false
	}
	for _, o := range set.options {
		if snake(string(o)) == s {
			return o, true
		}
	}
	if v, ok := set.aliases[s]; ok {
		return v, true
	}
	tokens := strings.Split(s, "_")
	if negated(tokens) {
		return zero, false
	}
	for _, o := range set.options {
		if tokensMatch(tokens, strings.Split(snake(string(o)), "_")) {
			return o, true
		}
	}
	if !set.loose {
		return zero, false
	}
	var (
		best    T
		bestLen int
	)
	for _, o := range set.options {
		opt := snake(string(o))
		if len(opt) > bestLen && containsToken(s, opt) {
			best, bestLen = o, len(opt)
		}
	}
	if bestLen > 0 {
		return best, true
	}
	return zero, false
}

func tokensMatch(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) < 2 || len(b[i]) < 2 {
			if a[i] != b[i] {
				return false
			}
			continue
		}
		if !strings.HasPrefix(a[i], b[i]) && !strings.HasPrefix(b[i], a[i]) {
			return false
		}
	}
	return true
}

// containsToken reports whether sub appears in s on '_' boundaries.
func containsToken(s, sub string) bool {
	return s == sub ||
		strings.HasPrefix(s, sub+"_") ||
		strings.HasSuffix(s, "_"+sub) ||
		strings.Contains(s, "_"+sub+"_")
}

// toInt accepts JSON numbers, numeric strings and "7/10" style strings.
func toInt(v interface{}) (int, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		return t, true
	case json.Number:
		x, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = x
	case string:
		s := strings.TrimSpace(t)
		if i := strings.IndexByte(s, '/'); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = x
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}

func score(v interface{}, def int) int {
	n, ok := toInt(v)
	if !ok {
		n = def
	}
	return clampInt(n, minScore, maxScore)
}

func toBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch snake(t) {
		case "true", "yes", "y", "1":
			return true
		}
	case float64:
		return t != 0
	}
	return false
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// toStrings accepts a list of strings or a single string.
func toStrings(v interface{}) []string {
	out := []string{}
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	case []interface{}:
		for _, e := range t {
			if s := toString(e); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// rawStrings is toStrings without trimming, for values that must match a
// grammar verbatim.
func rawStrings(v interface{}) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toObjects(v interface{}) []map[string]interface{} {
	list, _ := v.([]interface{})
	out := make([]map[string]interface{}, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// NormalizeDecision builds a well-typed decision from parsed model output.
// The input map is not modified. Asset strings must already be in
// EXCHANGE:SYMBOL form, untrimmed; anything else is dropped. When v holds a
// non-empty allow-list, assets that are not an allowed chart symbol are
// dropped too.
func NormalizeDecision(raw map[string]interface{}, v *symbols.Validator) models.Stage3Decision {
	d := models.Stage3Decision{
		TradeDecision: models.NoTrade,
		Sentiment:     models.SentimentNeutral,
		Positions:     []models.Position{},
		ChartAssets:   []string{},
		Risks:         toStrings(raw["risks"]),
		Summary:       toString(raw["summary"]),
	}
	if td, ok := matchEnum(raw["trade_decision"], decisionSet); ok {
		d.TradeDecision = td
	}
	if s, ok := matchEnum(raw["sentiment"], sentimentSet); ok {
		d.Sentiment = s
	}
	d.Conviction = score(raw["conviction"], defaultScore)
	d.Importance = score(raw["importance"], defaultScore)

	allowed := func(asset string) bool {
		if !symbols.IsChartSymbol(asset) {
			return false
		}
		if v == nil || v.Empty() {
			return true
		}
		return v.AllowsChart(asset)
	}

	seen := map[string]struct{}{}
	for _, p := range toObjects(raw["positions"]) {
		asset, _ := p["asset"].(string)
		if !allowed(asset) {
			continue
		}
		dir, ok := matchEnum(p["direction"], directionSet)
		if !ok {
			continue
		}
		key := asset + "|" + string(dir)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		hz, ok := matchEnum(p["horizon"], horizonSet)
		if !ok {
			hz = models.HorizonShortTerm
		}
		d.Positions = append(d.Positions, models.Position{
			Asset:      asset,
			Direction:  dir,
			Confidence: score(p["confidence"], d.Conviction),
			Horizon:    hz,
		})
	}

	for _, a := range symbols.FilterChartSymbols(rawStrings(raw["chart_assets"])) {
		if allowed(a) {
			d.ChartAssets = append(d.ChartAssets, a)
		}
	}

	if d.TradeDecision == models.Trade && len(d.Positions) == 0 {
		d.TradeDecision = models.NoTrade
	}
	if d.TradeDecision == models.NoTrade {
		d.Positions = []models.Position{}
	}
	for _, p := range d.Positions {
		if !containsString(d.ChartAssets, p.Asset) {
			d.ChartAssets = append(d.ChartAssets, p.Asset)
		}
	}

	action, ok := matchEnum(raw["action_type"], actionSet)
	switch {
	case !ok && d.TradeDecision == models.Trade:
		action = models.ActionTradeNow
	case !ok:
		action = models.ActionNoAction
	case d.TradeDecision == models.NoTrade && action == models.ActionTradeNow:
		action = models.ActionMonitor
	}
	d.ActionType = action
	return d
}

// FallbackDecision is returned when no synthesis output could be parsed.
func FallbackDecision() models.Stage3Decision {
	return models.Stage3Decision{
		TradeDecision: models.NoTrade,
		Sentiment:     models.SentimentNeutral,
		Conviction:    defaultScore,
		Importance:    defaultScore,
		ActionType:    models.ActionNoAction,
		Positions:     []models.Position{},
		ChartAssets:   []string{},
		Risks:         []string{},
		Summary:       fallbackSummary,
	}
}

// skippedDecision is the minimal decision for items the classifier rejected.
func skippedDecision(s1 models.Stage1Result) models.Stage3Decision {
	summary := s1.Analysis
	if summary == "" {
		summary = s1.Title
	}
	return models.Stage3Decision{
		TradeDecision: models.NoTrade,
		Sentiment:     models.SentimentNeutral,
		Conviction:    minScore,
		Importance:    minScore,
		ActionType:    models.ActionNoAction,
		Positions:     []models.Position{},
		ChartAssets:   []string{},
		Risks:         []string{},
		Summary:       summary,
	}
}

// normalizeStage1 builds a Stage1Result from parsed classifier output.
// Symbols are validated against the allow-list; legacy data_needed asks
// become web-query candidates.
func normalizeStage1(raw map[string]interface{}, in models.AnalysisInput, v *symbols.Validator) models.Stage1Result {
	r := models.Stage1Result{
		Title:              toString(raw["title"]),
		Analysis:           toString(raw["analysis"]),
		Category:           models.CategoryOther,
		AffectedAssets:     v.Validate(toStrings(raw["affected_assets"])),
		DataRequests:       []models.DataRequest{},
		WebQueries:         []string{},
		Proceed:            toBool(raw["proceed"]),
		Tier:               maxTier,
		ExpectedVolatility: models.VolatilityLow,
	}
	if r.Title == "" {
		r.Title = in.Title()
	}
	if c, ok := matchEnum(raw["category"], categorySet); ok {
		r.Category = c
	}
	if t, ok := toInt(raw["tier"]); ok {
		r.Tier = clampInt(t, minTier, maxTier)
	}
	if vol, ok := matchEnum(raw["expected_volatility"], volatilitySet); ok {
		r.ExpectedVolatility = vol
	}

	for _, obj := range toObjects(raw["data_requests"]) {
		rt := models.RequestType(snake(toString(obj["type"])))
		if !rt.IsValid() {
			continue
		}
		syms := v.Validate(toStrings(obj["symbols"]))
		if len(syms) == 0 && needsSymbols(rt) {
			continue
		}
		req := models.DataRequest{Type: rt, Symbols: syms}
		if params, ok := obj["params"].(map[string]interface{}); ok && len(params) > 0 {
			req.Params = make(map[string]string, len(params))
			for k, pv := range params {
				switch t := pv.(type) {
				case string:
					req.Params[k] = t
				case float64:
					req.Params[k] = strconv.FormatFloat(t, 'f', -1, 64)
				case bool:
					req.Params[k] = strconv.FormatBool(t)
				}
			}
		}
		r.DataRequests = append(r.DataRequests, req)
	}

	seen := map[string]struct{}{}
	for _, q := range append(toStrings(raw["web_queries"]), toStrings(raw["data_needed"])...) {
		k := strings.ToLower(q)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		r.WebQueries = append(r.WebQueries, q)
	}
	return r
}

// defaultStage1 is used when the classifier output cannot be parsed.
func defaultStage1(in models.AnalysisInput) models.Stage1Result {
	return models.Stage1Result{
		Title:              in.Title(),
		Analysis:           "classification unavailable: model output could not be parsed",
		Category:           models.CategoryOther,
		AffectedAssets:     []string{},
		DataRequests:       []models.DataRequest{},
		WebQueries:         []string{},
		Proceed:            false,
		Tier:               maxTier,
		ExpectedVolatility: models.VolatilityLow,
	}
}

func needsSymbols(rt models.RequestType) bool {
	switch rt {
	case models.ReqEconomicCalendar, models.ReqIPOCalendar, models.ReqEarningsCalendar:
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
