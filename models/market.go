package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Market identifiers for A-share exchanges
const (
	MarketShanghai = "SH"
	MarketShenzhen = "SZ"
)

// StockListEntry represents one listed A-share instrument
type StockListEntry struct {
	Code   string `json:"code"`   // bare code, e.g. "600000"
	Name   string `json:"name"`
	Status string `json:"status"` // vendor trade status, "1" = tradeable
	Market string `json:"market"` // SH or SZ
}

// Tradeable reports whether the entry is actively trading
func (e StockListEntry) Tradeable() bool {
	return e.Status == "1"
}

// Bar represents one daily OHLCV observation for a symbol.
// Numeric fields are nullable because the vendor returns bars as raw strings
// and unparseable values are kept as null rather than silently zeroed.
type Bar struct {
	Date      time.Time           `json:"date"`
	Code      string              `json:"code"`
	Open      decimal.NullDecimal `json:"open"`
	High      decimal.NullDecimal `json:"high"`
	Low       decimal.NullDecimal `json:"low"`
	Close     decimal.NullDecimal `json:"close"`
	Volume    decimal.NullDecimal `json:"volume"`
	Amount    decimal.NullDecimal `json:"amount"`
	PctChange decimal.NullDecimal `json:"pct_change"`
	Turnover  decimal.NullDecimal `json:"turnover"`
}

// Quote is the most recent available bar for a symbol, used as the
// real-time price proxy. Field names are stable regardless of which
// vendor produced the data.
type Quote struct {
	Code      string              `json:"code"`
	Date      string              `json:"date"` // YYYY-MM-DD
	Open      decimal.NullDecimal `json:"open"`
	High      decimal.NullDecimal `json:"high"`
	Low       decimal.NullDecimal `json:"low"`
	Close     decimal.NullDecimal `json:"close"`
	Volume    decimal.NullDecimal `json:"volume"`
	Amount    decimal.NullDecimal `json:"amount"`
	PctChange decimal.NullDecimal `json:"pct_change"`
	Turnover  decimal.NullDecimal `json:"turnover"`
}

// QuoteFromBar converts a bar into the stable quote schema
func QuoteFromBar(bar Bar) *Quote {
	return &Quote{
		Code:      BareSymbol(bar.Code),
		Date:      bar.Date.Format("2006-01-02"),
		Open:      bar.Open,
		High:      bar.High,
		Low:       bar.Low,
		Close:     bar.Close,
		Volume:    bar.Volume,
		Amount:    bar.Amount,
		PctChange: bar.PctChange,
		Turnover:  bar.Turnover,
	}
}

// NormalizeStockSymbol converts a bare stock code into the market-qualified
// form the vendor expects ("600000" -> "sh.600000"). Codes that already
// carry a market prefix pass through unchanged.
func NormalizeStockSymbol(code string) string {
	if strings.Contains(code, ".") {
		return code
	}
	if strings.HasPrefix(code, "6") {
		return "sh." + code
	}
	return "sz." + code
}

// NormalizeIndexSymbol converts a bare index code into the market-qualified
// form ("000001" -> "sh.000001", "399001" -> "sz.399001").
func NormalizeIndexSymbol(code string) string {
	if strings.Contains(code, ".") {
		return code
	}
	if strings.HasPrefix(code, "000") {
		return "sh." + code
	}
	return "sz." + code
}

// BareSymbol strips the market prefix ("sh.600000" -> "600000")
func BareSymbol(code string) string {
	if i := strings.Index(code, "."); i >= 0 {
		return code[i+1:]
	}
	return code
}

// MarketOf returns the exchange for a market-qualified symbol
func MarketOf(qualified string) string {
	if strings.HasPrefix(qualified, "sh.") {
		return MarketShanghai
	}
	return MarketShenzhen
}

// ParseNullDecimal parses a vendor numeric string leniently. Empty or
// unparseable values become null instead of an error so one bad field
// never poisons a whole row.
func ParseNullDecimal(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
