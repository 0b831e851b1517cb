// Package screener scans the cached stock universe for technical setups.
package screener

import (
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ashare_backend/models"
	"ashare_backend/services/analysis"
)

// HistorySource is the slice of the data fetcher the screener reads from
type HistorySource interface {
	GetStockList() []models.StockListEntry
	GetHistoricalData(code string, start, end time.Time, frequency, adjust string) []models.Bar
}

// Candidate is one stock matched by a strategy
type Candidate struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Reason string          `json:"reason"`
	Score  decimal.Decimal `json:"score"`
}

// Strategy inspects one symbol's recent bars and decides whether it matches
type Strategy interface {
	Name() string
	Match(code string, bars []models.Bar) (reason string, ok bool)
}

// MACDGoldenCross matches when the MACD line crosses above its signal line
type MACDGoldenCross struct{}

func (MACDGoldenCross) Name() string { return "macd_golden_cross" }

func (MACDGoldenCross) Match(code string, bars []models.Bar) (string, bool) {
	closes := analysis.Closes(bars)
	if len(closes) < 27 {
		return "", false
	}
	macd, signal, _ := analysis.MACD(closes)
	last := len(closes) - 1
	crossed := macd[last-1].LessThanOrEqual(signal[last-1]) && macd[last].GreaterThan(signal[last])
	if !crossed {
		return "", false
	}
	return "MACD crossed above signal", true
}

// RSIOversold matches when RSI(14) drops under the threshold
type RSIOversold struct {
	Threshold decimal.Decimal // default 30
}

func (RSIOversold) Name() string { return "rsi_oversold" }

func (s RSIOversold) Match(code string, bars []models.Bar) (string, bool) {
	threshold := s.Threshold
	if threshold.IsZero() {
		threshold = decimal.NewFromInt(30)
	}
	closes := analysis.Closes(bars)
	if len(closes) < 15 {
		return "", false
	}
	rsi := analysis.RSI(closes, 14)
	last := rsi[len(rsi)-1]
	if last.IsZero() || last.GreaterThanOrEqual(threshold) {
		return "", false
	}
	return "RSI(14) at " + last.StringFixed(1), true
}

// MAGoldenCross matches when the short MA crosses above the long MA
type MAGoldenCross struct {
	Short int // default 5
	Long  int // default 20
}

func (MAGoldenCross) Name() string { return "ma_golden_cross" }

func (s MAGoldenCross) Match(code string, bars []models.Bar) (string, bool) {
	short, long := s.Short, s.Long
	if short < 1 {
		short = 5
	}
	if long < 1 {
		long = 20
	}
	closes := analysis.Closes(bars)
	if len(closes) < long+1 {
		return "", false
	}
	shortMA := analysis.SMA(closes, short)
	longMA := analysis.SMA(closes, long)
	last := len(closes) - 1
	crossed := shortMA[last-1].LessThanOrEqual(longMA[last-1]) && shortMA[last].GreaterThan(longMA[last])
	if !crossed {
		return "", false
	}
	return "short MA crossed above long MA", true
}

// VolumeBreakout matches when today's volume runs well above its trailing
// average and the close is up
type VolumeBreakout struct {
	Ratio decimal.Decimal // default 2.0
}

func (VolumeBreakout) Name() string { return "volume_breakout" }

func (s VolumeBreakout) Match(code string, bars []models.Bar) (string, bool) {
	ratio := s.Ratio
	if ratio.IsZero() {
		ratio = decimal.NewFromInt(2)
	}
	volumes := analysis.Volumes(bars)
	closes := analysis.Closes(bars)
	if len(volumes) < 6 || len(closes) < 2 {
		return "", false
	}
	vr := analysis.VolumeRatio(volumes, 5)
	up := closes[len(closes)-1].GreaterThan(closes[len(closes)-2])
	if !up || vr.LessThan(ratio) {
		return "", false
	}
	return "volume ratio " + vr.StringFixed(2), true
}

// Strategies maps strategy names to implementations
var Strategies = map[string]Strategy{
	MACDGoldenCross{}.Name(): MACDGoldenCross{},
	RSIOversold{}.Name():     RSIOversold{},
	MAGoldenCross{}.Name():   MAGoldenCross{},
	VolumeBreakout{}.Name():  VolumeBreakout{},
}

// Screener runs strategies over the cached universe
type Screener struct {
	source HistorySource
	now    func() time.Time
}

// NewScreener creates a screener over the given history source
func NewScreener(source HistorySource) *Screener {
	return &Screener{source: source, now: time.Now}
}

// SetClock overrides the screener clock, for tests
func (s *Screener) SetClock(now func() time.Time) {
	s.now = now
}

// Run applies one strategy to up to limit tradeable stocks, using lookback
// days of history. A zero limit scans the whole universe.
func (s *Screener) Run(strategy Strategy, lookbackDays, limit int) []Candidate {
	if lookbackDays < 1 {
		lookbackDays = 90
	}
	end := s.now()
	start := end.AddDate(0, 0, -lookbackDays)

	universe := s.source.GetStockList()
	var matches []Candidate
	scanned := 0
	for _, entry := range universe {
		if !entry.Tradeable() {
			continue
		}
		if limit > 0 && scanned >= limit {
			break
		}
		scanned++

		bars := s.source.GetHistoricalData(entry.Code, start, end, "daily", "qfq")
		if len(bars) == 0 {
			continue
		}
		if reason, ok := strategy.Match(entry.Code, bars); ok {
			matches = append(matches, Candidate{
				Code:   entry.Code,
				Name:   entry.Name,
				Reason: reason,
				Score:  decimal.NewFromInt(1),
			})
		}
	}
	log.Printf("Screener %s: %d matches from %d scanned", strategy.Name(), len(matches), scanned)
	return matches
}

// RunWeighted applies several strategies and ranks stocks by the summed
// weight of the strategies they match
func (s *Screener) RunWeighted(weights map[string]decimal.Decimal, lookbackDays, limit int) []Candidate {
	scores := make(map[string]*Candidate)
	for name, weight := range weights {
		strategy, ok := Strategies[name]
		if !ok {
			log.Printf("Screener: unknown strategy %q skipped", name)
			continue
		}
		for _, c := range s.Run(strategy, lookbackDays, limit) {
			if existing, ok := scores[c.Code]; ok {
				existing.Score = existing.Score.Add(weight)
				existing.Reason += "; " + c.Reason
			} else {
				c.Score = weight
				scores[c.Code] = &c
			}
		}
	}

	ranked := make([]Candidate, 0, len(scores))
	for _, c := range scores {
		ranked = append(ranked, *c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if !ranked[i].Score.Equal(ranked[j].Score) {
			return ranked[i].Score.GreaterThan(ranked[j].Score)
		}
		return ranked[i].Code < ranked[j].Code
	})
	return ranked
}
