package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// AnalysisInput is one item to analyze. Exactly the payload matching
// ItemType must be set.
type AnalysisInput struct {
	ID          string         `json:"id"`
	ItemType    ItemType       `json:"item_type" validate:"required,oneof=news macro earnings ipo crypto"`
	PublishedAt time.Time      `json:"published_at"`
	News        *NewsItem      `json:"news,omitempty"`
	Macro       *MacroEvent    `json:"macro,omitempty"`
	Earnings    *EarningsEvent `json:"earnings,omitempty"`
	IPO         *IPOEvent      `json:"ipo,omitempty"`
	Crypto      *CryptoEvent   `json:"crypto,omitempty"`
}

type NewsItem struct {
	Headline string   `json:"headline" validate:"required"`
	Body     string   `json:"body"`
	Source   string   `json:"source"`
	URL      string   `json:"url" validate:"omitempty,url"`
	Tickers  []string `json:"tickers,omitempty"`
}

// MacroEvent is a scheduled economic release.
type MacroEvent struct {
	Name       string `json:"name" validate:"required"`
	Country    string `json:"country"`
	Date       string `json:"date" validate:"required"`
	Forecast   string `json:"forecast"`
	Previous   string `json:"previous"`
	Actual     string `json:"actual,omitempty"`
	Importance string `json:"importance,omitempty"`
}

type EarningsEvent struct {
	Symbol          string   `json:"symbol" validate:"required"`
	Company         string   `json:"company"`
	Date            string   `json:"date" validate:"required"`
	Quarter         int      `json:"quarter,omitempty" validate:"omitempty,gte=1,lte=4"`
	Year            int      `json:"year,omitempty"`
	EPSEstimate     *float64 `json:"eps_estimate,omitempty"`
	EPSActual       *float64 `json:"eps_actual,omitempty"`
	RevenueEstimate *float64 `json:"revenue_estimate,omitempty"`
	RevenueActual   *float64 `json:"revenue_actual,omitempty"`
}

type IPOEvent struct {
	Symbol     string   `json:"symbol"`
	Company    string   `json:"company" validate:"required"`
	Exchange   string   `json:"exchange"`
	Date       string   `json:"date" validate:"required"`
	PriceLow   *float64 `json:"price_low,omitempty"`
	PriceHigh  *float64 `json:"price_high,omitempty"`
	Shares     *int64   `json:"shares,omitempty"`
	TotalValue *float64 `json:"total_value,omitempty"`
}

// CryptoEvent covers both crypto news and scheduled protocol events.
type CryptoEvent struct {
	Symbol   string `json:"symbol" validate:"required"`
	Headline string `json:"headline" validate:"required"`
	Body     string `json:"body"`
	Event    string `json:"event,omitempty"`
	Date     string `json:"date,omitempty"`
}

var validate = validator.New()

// Validate checks that the payload for ItemType is present and well formed.
func (in AnalysisInput) Validate() error {
	if !in.ItemType.IsValid() {
		return fmt.Errorf("%w: unknown item_type %q", ErrInvalidInput, in.ItemType)
	}
	var payload interface{}
	switch in.ItemType {
	case ItemNews:
		if in.News != nil {
			payload = in.News
		}
	case ItemMacro:
		if in.Macro != nil {
			payload = in.Macro
		}
	case ItemEarnings:
		if in.Earnings != nil {
			payload = in.Earnings
		}
	case ItemIPO:
		if in.IPO != nil {
			payload = in.IPO
		}
	case ItemCrypto:
		if in.Crypto != nil {
			payload = in.Crypto
		}
	}
	if payload == nil {
		return fmt.Errorf("%w: missing %s payload", ErrInvalidInput, in.ItemType)
	}
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// Title returns a short human label for the item.
func (in AnalysisInput) Title() string {
	switch in.ItemType {
	case ItemNews:
		if in.News != nil {
			return in.News.Headline
		}
	case ItemMacro:
		if in.Macro != nil {
			return strings.TrimSpace(in.Macro.Country + " " + in.Macro.Name)
		}
	case ItemEarnings:
		if in.Earnings != nil {
			return in.Earnings.Symbol + " earnings"
		}
	case ItemIPO:
		if in.IPO != nil {
			return in.IPO.Company + " IPO"
		}
	case ItemCrypto:
		if in.Crypto != nil {
			return in.Crypto.Headline
		}
	}
	return string(in.ItemType)
}

// Hints returns symbols the item itself names, used as classification context.
func (in AnalysisInput) Hints() []string {
	switch {
	case in.News != nil:
		return in.News.Tickers
	case in.Earnings != nil:
		return []string{in.Earnings.Symbol}
	case in.IPO != nil && in.IPO.Symbol != "":
		return []string{in.IPO.Symbol}
	case in.Crypto != nil:
		return []string{in.Crypto.Symbol}
	}
	return nil
}
