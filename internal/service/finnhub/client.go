package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"SignalForge/internal/domain/models"
	"SignalForge/pkg/cache"
	xhttp "SignalForge/pkg/http"
	"SignalForge/pkg/logger"
	"SignalForge/pkg/util"
)

// maxListItems caps calendar and news arrays before they reach a prompt.
const maxListItems = 20

// Client serves market-data requests from the Finnhub REST API.
type Client struct {
	rest    *xhttp.Client
	limiter *rate.Limiter
	cache   cache.Service
	baseTTL time.Duration
	now     func() time.Time
	log     *logger.Logger
}

type Option func(*Client)

// WithCache enables response caching.
func WithCache(c cache.Service, baseTTL time.Duration) Option {
	return func(cl *Client) {
		cl.cache = c
		cl.baseTTL = baseTTL
	}
}

func WithRateLimit(perSecond float64, burst int) Option {
	return func(cl *Client) {
		cl.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

func withClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

func New(apiKey, baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		rest: xhttp.NewClient(
			xhttp.WithBaseURL(baseURL),
			xhttp.WithTimeout(timeout),
			xhttp.WithHeader("X-Finnhub-Token", apiKey),
		),
		limiter: rate.NewLimiter(rate.Limit(1), 5),
		baseTTL: 2 * time.Minute,
		now:     time.Now,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns a JSON payload for the request, or (nil, nil) when Finnhub
// has nothing for it. Errors are transport failures only.
func (c *Client) Fetch(ctx context.Context, reqType models.RequestType, symbols []string, params map[string]string) (json.RawMessage, error) {
	if !reqType.IsValid() {
		return nil, nil
	}
	key := cacheKey(reqType, symbols, params)
	if c.cache != nil {
		if b, err := c.cache.Get(ctx, key); err == nil {
			return json.RawMessage(b), nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.log.Warn("market data cache read failed", logger.String("key", key), logger.Error(err))
		}
	}

	payload, err := c.fetch(ctx, reqType, symbols, params)
	if err != nil || payload == nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, key, payload, c.ttl(reqType)); err != nil {
			c.log.Warn("market data cache write failed", logger.String("key", key), logger.Error(err))
		}
	}
	return payload, nil
}

func (c *Client) fetch(ctx context.Context, reqType models.RequestType, symbols []string, params map[string]string) (json.RawMessage, error) {
	switch reqType {
	case models.ReqEconomicCalendar:
		from, to := c.window(params, 1, 7)
		q := url.Values{"from": {from}, "to": {to}}
		v, err := c.get(ctx, "/calendar/economic", q)
		if err != nil || v == nil {
			return nil, err
		}
		v = limitLists(filterEconomic(v, params["country"]))
		if isEmptyValue(v) {
			return nil, nil
		}
		return encode(v)
	case models.ReqIPOCalendar:
		from, to := c.window(params, 7, 14)
		return c.single(ctx, "/calendar/ipo", url.Values{"from": {from}, "to": {to}})
	case models.ReqEarningsCalendar:
		if len(symbols) == 0 {
			from, to := c.window(params, 0, 7)
			return c.single(ctx, "/calendar/earnings", url.Values{"from": {from}, "to": {to}})
		}
	}
	if len(symbols) == 0 {
		return nil, nil
	}
	return c.perSymbol(ctx, reqType, symbols, params)
}

// perSymbol issues one call per symbol and keys the results by symbol.
// A transport error is returned only when every symbol failed.
func (c *Client) perSymbol(ctx context.Context, reqType models.RequestType, symbols []string, params map[string]string) (json.RawMessage, error) {
	out := make(map[string]interface{}, len(symbols))
	var lastErr error
	failed := 0
	for _, sym := range symbols {
		path, q := c.route(reqType, sym, params)
		v, err := c.get(ctx, path, q)
		if err != nil {
			failed++
			lastErr = err
			continue
		}
		if v != nil && !isEmpty(reqType, v) {
			out[sym] = limitLists(v)
		}
	}
	if failed == len(symbols) {
		return nil, lastErr
	}
	if len(out) == 0 {
		return nil, nil
	}
	return encode(out)
}

func (c *Client) route(reqType models.RequestType, sym string, params map[string]string) (string, url.Values) {
	switch reqType {
	case models.ReqQuote:
		return "/quote", url.Values{"symbol": {sym}}
	case models.ReqCompanyProfile:
		return "/stock/profile2", url.Values{"symbol": {sym}}
	case models.ReqBasicFinancials:
		return "/stock/metric", url.Values{"symbol": {sym}, "metric": {"all"}}
	case models.ReqEarningsCalendar:
		from, to := c.window(params, 90, 30)
		return "/calendar/earnings", url.Values{"symbol": {sym}, "from": {from}, "to": {to}}
	case models.ReqCompanyNews:
		from, to := c.window(params, 3, 0)
		return "/company-news", url.Values{"symbol": {sym}, "from": {from}, "to": {to}}
	case models.ReqCryptoCandles:
		from, to := c.unixWindow(params, 30)
		return "/crypto/candle", url.Values{"symbol": {cryptoSymbol(sym)}, "resolution": {resolution(params)}, "from": {from}, "to": {to}}
	default:
		from, to := c.unixWindow(params, 30)
		return "/stock/candle", url.Values{"symbol": {sym}, "resolution": {resolution(params)}, "from": {from}, "to": {to}}
	}
}

func (c *Client) single(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	v, err := c.get(ctx, path, q)
	if err != nil || v == nil {
		return nil, err
	}
	v = limitLists(v)
	if isEmptyValue(v) {
		return nil, nil
	}
	return encode(v)
}

// get returns nil for responses that mean "no data": 403 (plan does not
// cover the endpoint), 404, and empty bodies.
func (c *Client) get(ctx context.Context, path string, q url.Values) (interface{}, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("finnhub rate limit wait: %w", err)
	}
	var v interface{}
	err := c.rest.GetJSON(ctx, path, q, &v)
	switch {
	case err == nil:
		return v, nil
	case xhttp.IsStatus(err, http.StatusForbidden), xhttp.IsStatus(err, http.StatusNotFound):
		c.log.Debug("finnhub endpoint unavailable", logger.String("path", path), logger.Error(err))
		return nil, nil
	default:
		return nil, fmt.Errorf("finnhub %s: %w", path, err)
	}
}

func (c *Client) ttl(reqType models.RequestType) time.Duration {
	switch reqType {
	case models.ReqQuote:
		return c.baseTTL
	case models.ReqCandles, models.ReqCryptoCandles, models.ReqCompanyNews:
		return 5 * c.baseTTL
	case models.ReqEarningsCalendar, models.ReqEconomicCalendar, models.ReqIPOCalendar:
		return 15 * c.baseTTL
	default:
		return 12 * time.Hour
	}
}

// window returns YYYY-MM-DD bounds of [now-back, now+ahead] days, overridable
// with from/to params.
func (c *Client) window(params map[string]string, back, ahead int) (string, string) {
	now := c.now().UTC()
	from := now.AddDate(0, 0, -back).Format("2006-01-02")
	to := now.AddDate(0, 0, ahead).Format("2006-01-02")
	return util.DayOrDefault(params["from"], from), util.DayOrDefault(params["to"], to)
}

func (c *Client) unixWindow(params map[string]string, defaultDays int) (string, string) {
	days := util.ParseIntDefault(params["days"], defaultDays)
	if days <= 0 {
		days = defaultDays
	}
	now := c.now().UTC()
	return strconv.FormatInt(now.AddDate(0, 0, -days).Unix(), 10), strconv.FormatInt(now.Unix(), 10)
}

func resolution(params map[string]string) string {
	if r := params["resolution"]; r != "" {
		return r
	}
	return "D"
}

func cryptoSymbol(sym string) string {
	if strings.Contains(sym, ":") {
		return sym
	}
	return "BINANCE:" + strings.ToUpper(sym) + "USDT"
}

func cacheKey(reqType models.RequestType, symbols []string, params map[string]string) string {
	syms := append([]string(nil), symbols...)
	sort.Strings(syms)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := []string{string(reqType), strings.Join(syms, ",")}
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return cache.Key("finnhub", parts...)
}

func encode(v interface{}) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode market data: %w", err)
	}
	return b, nil
}

// isEmpty recognises Finnhub's "no data" shapes per endpoint.
func isEmpty(reqType models.RequestType, v interface{}) bool {
	if isEmptyValue(v) {
		return true
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return false
	}
	switch reqType {
	case models.ReqQuote:
		c, _ := m["c"].(float64)
		return c == 0
	case models.ReqCandles, models.ReqCryptoCandles:
		return m["s"] == "no_data"
	case models.ReqBasicFinancials:
		metric, _ := m["metric"].(map[string]interface{})
		return len(metric) == 0
	case models.ReqEarningsCalendar:
		list, _ := m["earningsCalendar"].([]interface{})
		return len(list) == 0
	}
	return false
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]interface{}:
		if len(t) == 0 {
			return true
		}
		for _, inner := range t {
			if !isEmptyValue(inner) {
				return false
			}
		}
		return true
	case []interface{}:
		return len(t) == 0
	}
	return false
}

// limitLists truncates top-level and first-level arrays to maxListItems.
func limitLists(v interface{}) interface{} {
	switch t := v.(type) {
	case []interface{}:
		if len(t) > maxListItems {
			return t[:maxListItems]
		}
	case map[string]interface{}:
		for k, inner := range t {
			if list, ok := inner.([]interface{}); ok && len(list) > maxListItems {
				t[k] = list[:maxListItems]
			}
		}
	}
	return v
}

// filterEconomic keeps events for one country when asked.
func filterEconomic(v interface{}, country string) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok || country == "" {
		return v
	}
	list, _ := m["economicCalendar"].([]interface{})
	kept := make([]interface{}, 0, len(list))
	for _, e := range list {
		ev, _ := e.(map[string]interface{})
		if c, _ := ev["country"].(string); strings.EqualFold(c, country) {
			kept = append(kept, ev)
		}
	}
	return map[string]interface{}{"economicCalendar": kept}
}
