package models

// ItemType tags the kind of item being analyzed.
type ItemType string

const (
	ItemNews     ItemType = "news"
	ItemMacro    ItemType = "macro"
	ItemEarnings ItemType = "earnings"
	ItemIPO      ItemType = "ipo"
	ItemCrypto   ItemType = "crypto"
)

// ItemTypes lists every supported item type.
var ItemTypes = []ItemType{ItemNews, ItemMacro, ItemEarnings, ItemIPO, ItemCrypto}

// IsValid reports whether t is a supported item type.
func (t ItemType) IsValid() bool {
	for _, v := range ItemTypes {
		if v == t {
			return true
		}
	}
	return false
}

type Category string

const (
	CategoryMonetaryPolicy Category = "monetary_policy"
	CategoryMacroData      Category = "macro_data"
	CategoryEarnings       Category = "earnings"
	CategoryCorporate      Category = "corporate"
	CategoryGeopolitical   Category = "geopolitical"
	CategoryRegulatory     Category = "regulatory"
	CategoryCrypto         Category = "crypto"
	CategoryCommodities    Category = "commodities"
	CategoryIPO            Category = "ipo"
	CategoryOther          Category = "other"
)

var Categories = []Category{
	CategoryMonetaryPolicy, CategoryMacroData, CategoryEarnings, CategoryCorporate,
	CategoryGeopolitical, CategoryRegulatory, CategoryCrypto, CategoryCommodities,
	CategoryIPO, CategoryOther,
}

type Volatility string

const (
	VolatilityLow    Volatility = "low"
	VolatilityMedium Volatility = "medium"
	VolatilityHigh   Volatility = "high"
)

var Volatilities = []Volatility{VolatilityLow, VolatilityMedium, VolatilityHigh}

type TradeDecision string

const (
	Trade   TradeDecision = "TRADE"
	NoTrade TradeDecision = "NO_TRADE"
)

type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
	SentimentMixed   Sentiment = "mixed"
)

var Sentiments = []Sentiment{SentimentBullish, SentimentBearish, SentimentNeutral, SentimentMixed}

type ActionType string

const (
	ActionTradeNow     ActionType = "trade_now"
	ActionWaitAndReact ActionType = "wait_and_react"
	ActionHedge        ActionType = "hedge"
	ActionMonitor      ActionType = "monitor"
	ActionNoAction     ActionType = "no_action"
)

var ActionTypes = []ActionType{ActionTradeNow, ActionWaitAndReact, ActionHedge, ActionMonitor, ActionNoAction}

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

var Directions = []Direction{Long, Short}

type Horizon string

const (
	HorizonIntraday   Horizon = "intraday"
	HorizonShortTerm  Horizon = "short_term"
	HorizonMediumTerm Horizon = "medium_term"
	HorizonLongTerm   Horizon = "long_term"
)

var Horizons = []Horizon{HorizonIntraday, HorizonShortTerm, HorizonMediumTerm, HorizonLongTerm}

// RequestType is a deterministic market-data request kind.
type RequestType string

const (
	ReqQuote            RequestType = "quote"
	ReqCandles          RequestType = "candles"
	ReqCompanyProfile   RequestType = "company_profile"
	ReqBasicFinancials  RequestType = "basic_financials"
	ReqEarningsCalendar RequestType = "earnings_calendar"
	ReqEconomicCalendar RequestType = "economic_calendar"
	ReqIPOCalendar      RequestType = "ipo_calendar"
	ReqCompanyNews      RequestType = "company_news"
	ReqCryptoCandles    RequestType = "crypto_candles"
)

var RequestTypes = []RequestType{
	ReqQuote, ReqCandles, ReqCompanyProfile, ReqBasicFinancials, ReqEarningsCalendar,
	ReqEconomicCalendar, ReqIPOCalendar, ReqCompanyNews, ReqCryptoCandles,
}

// IsValid reports whether r is a known request type.
func (r RequestType) IsValid() bool {
	for _, v := range RequestTypes {
		if v == r {
			return true
		}
	}
	return false
}

// Describe returns a plain-language description used when a request has to
// be covered by web research instead.
func (r RequestType) Describe() string {
	switch r {
	case ReqQuote:
		return "latest price quote and daily change"
	case ReqCandles, ReqCryptoCandles:
		return "recent price action over the last few sessions"
	case ReqCompanyProfile:
		return "company profile, sector and market capitalization"
	case ReqBasicFinancials:
		return "key valuation and financial ratios"
	case ReqEarningsCalendar:
		return "upcoming and latest earnings results versus estimates"
	case ReqEconomicCalendar:
		return "latest economic release figures versus forecast"
	case ReqIPOCalendar:
		return "IPO pricing, date and share count"
	case ReqCompanyNews:
		return "latest company news headlines"
	default:
		return string(r)
	}
}
