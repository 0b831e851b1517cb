package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStockSymbol(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"shanghai main board", "600000", "sh.600000"},
		{"star board", "688001", "sh.688001"},
		{"shenzhen main board", "000001", "sz.000001"},
		{"chinext", "300750", "sz.300750"},
		{"already qualified", "sh.600000", "sh.600000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeStockSymbol(tt.in))
		})
	}
}

func TestNormalizeIndexSymbol(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"sse composite", "000001", "sh.000001"},
		{"csi 300", "000300", "sh.000300"},
		{"szse component", "399001", "sz.399001"},
		{"chinext index", "399006", "sz.399006"},
		{"already qualified", "sz.399001", "sz.399001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeIndexSymbol(tt.in))
		})
	}
}

func TestBareSymbol(t *testing.T) {
	assert.Equal(t, "600000", BareSymbol("sh.600000"))
	assert.Equal(t, "600000", BareSymbol("600000"))
}

func TestMarketOf(t *testing.T) {
	assert.Equal(t, MarketShanghai, MarketOf("sh.600000"))
	assert.Equal(t, MarketShenzhen, MarketOf("sz.000001"))
}

func TestParseNullDecimal(t *testing.T) {
	valid := ParseNullDecimal("12.34")
	assert.True(t, valid.Valid)
	assert.Equal(t, "12.34", valid.Decimal.String())

	padded := ParseNullDecimal(" 5.6 ")
	assert.True(t, padded.Valid)

	assert.False(t, ParseNullDecimal("").Valid)
	assert.False(t, ParseNullDecimal("n/a").Valid)
	assert.False(t, ParseNullDecimal("-").Valid)
}

func TestQuoteFromBar(t *testing.T) {
	bar := Bar{
		Date:  time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC),
		Code:  "sh.600000",
		Close: ParseNullDecimal("10.5"),
	}
	quote := QuoteFromBar(bar)
	assert.Equal(t, "600000", quote.Code)
	assert.Equal(t, "2024-06-14", quote.Date)
	assert.True(t, quote.Close.Valid)
}

func TestTradeable(t *testing.T) {
	assert.True(t, StockListEntry{Status: "1"}.Tradeable())
	assert.False(t, StockListEntry{Status: "0"}.Tradeable())
}
