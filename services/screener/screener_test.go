package screener

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ashare_backend/models"
)

func nd(v float64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(v), Valid: true}
}

func barsWith(closes, volumes []float64) []models.Bar {
	bars := make([]models.Bar, len(closes))
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		vol := 1000000.0
		if volumes != nil {
			vol = volumes[i]
		}
		bars[i] = models.Bar{
			Date:   base.AddDate(0, 0, i),
			Code:   "600000",
			High:   nd(c + 0.5),
			Low:    nd(c - 0.5),
			Close:  nd(c),
			Volume: nd(vol),
		}
	}
	return bars
}

func flatThenJump(flatLen int, flat, jump float64) []float64 {
	closes := make([]float64, flatLen+1)
	for i := 0; i < flatLen; i++ {
		closes[i] = flat
	}
	closes[flatLen] = jump
	return closes
}

func TestMACDGoldenCrossMatch(t *testing.T) {
	// A flat series keeps MACD on its signal line; the jump pulls the fast
	// EMA away faster than the signal can follow
	bars := barsWith(flatThenJump(30, 10, 15), nil)
	reason, ok := MACDGoldenCross{}.Match("600000", bars)
	require.True(t, ok)
	assert.NotEmpty(t, reason)
}

func TestMACDGoldenCrossNoMatchInSteadyUptrend(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 10 + float64(i)
	}
	_, ok := MACDGoldenCross{}.Match("600000", barsWith(closes, nil))
	assert.False(t, ok, "an established uptrend has no fresh cross")
}

func TestMACDGoldenCrossTooFewBars(t *testing.T) {
	_, ok := MACDGoldenCross{}.Match("600000", barsWith(flatThenJump(10, 10, 15), nil))
	assert.False(t, ok)
}

func TestRSIOversoldMatch(t *testing.T) {
	// A steady decline with one small gain keeps RSI low but nonzero
	closes := make([]float64, 26)
	price := 100.0
	for i := range closes {
		if i == 10 {
			price += 0.3
		} else {
			price -= 1
		}
		closes[i] = price
	}
	reason, ok := RSIOversold{}.Match("600000", barsWith(closes, nil))
	require.True(t, ok)
	assert.Contains(t, reason, "RSI(14)")
}

func TestRSIOversoldNoMatchWhenStrong(t *testing.T) {
	closes := make([]float64, 26)
	for i := range closes {
		closes[i] = 10 + float64(i)
	}
	_, ok := RSIOversold{}.Match("600000", barsWith(closes, nil))
	assert.False(t, ok)
}

func TestMAGoldenCrossMatch(t *testing.T) {
	bars := barsWith(flatThenJump(25, 10, 15), nil)
	reason, ok := MAGoldenCross{}.Match("600000", bars)
	require.True(t, ok)
	assert.NotEmpty(t, reason)
}

func TestMAGoldenCrossNoMatchOnDrop(t *testing.T) {
	bars := barsWith(flatThenJump(25, 10, 5), nil)
	_, ok := MAGoldenCross{}.Match("600000", bars)
	assert.False(t, ok)
}

func TestVolumeBreakoutMatch(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 10.5}
	volumes := []float64{100, 100, 100, 100, 100, 300}
	reason, ok := VolumeBreakout{}.Match("600000", barsWith(closes, volumes))
	require.True(t, ok)
	assert.Contains(t, reason, "volume ratio")
}

func TestVolumeBreakoutNoMatchOnDownDay(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 9.5}
	volumes := []float64{100, 100, 100, 100, 100, 300}
	_, ok := VolumeBreakout{}.Match("600000", barsWith(closes, volumes))
	assert.False(t, ok, "a volume spike on a down day is distribution, not breakout")
}

func TestVolumeBreakoutNoMatchOnQuietVolume(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 10.5}
	_, ok := VolumeBreakout{}.Match("600000", barsWith(closes, nil))
	assert.False(t, ok)
}

// fakeSource serves a fixed universe with per-symbol bar series
type fakeSource struct {
	list    []models.StockListEntry
	bars    map[string][]models.Bar
	fetched []string
}

func (f *fakeSource) GetStockList() []models.StockListEntry { return f.list }

func (f *fakeSource) GetHistoricalData(code string, start, end time.Time, frequency, adjust string) []models.Bar {
	f.fetched = append(f.fetched, code)
	return f.bars[code]
}

func newTestScreener(src *fakeSource) *Screener {
	s := NewScreener(src)
	s.SetClock(func() time.Time { return time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC) })
	return s
}

func TestRunMatchesAndSkips(t *testing.T) {
	src := &fakeSource{
		list: []models.StockListEntry{
			{Code: "600000", Name: "Breakout Co", Status: "1"},
			{Code: "600001", Name: "Quiet Co", Status: "1"},
			{Code: "600002", Name: "Suspended Co", Status: "0"},
			{Code: "600003", Name: "No Data Co", Status: "1"},
		},
		bars: map[string][]models.Bar{
			"600000": barsWith([]float64{10, 10, 10, 10, 10, 10.5}, []float64{100, 100, 100, 100, 100, 300}),
			"600001": barsWith([]float64{10, 10, 10, 10, 10, 10.5}, nil),
		},
	}
	s := newTestScreener(src)

	matches := s.Run(VolumeBreakout{}, 90, 0)
	require.Len(t, matches, 1)
	assert.Equal(t, "600000", matches[0].Code)
	assert.Equal(t, "Breakout Co", matches[0].Name)

	// The suspended stock is never fetched
	assert.NotContains(t, src.fetched, "600002")
}

func TestRunHonorsLimit(t *testing.T) {
	src := &fakeSource{
		list: []models.StockListEntry{
			{Code: "600000", Status: "1"},
			{Code: "600001", Status: "1"},
			{Code: "600002", Status: "1"},
		},
		bars: map[string][]models.Bar{},
	}
	s := newTestScreener(src)

	s.Run(VolumeBreakout{}, 90, 2)
	assert.Len(t, src.fetched, 2)
}

func TestRunWeightedRanksBySummedWeight(t *testing.T) {
	breakout := barsWith([]float64{10, 10, 10, 10, 10, 10.5}, []float64{100, 100, 100, 100, 100, 300})

	oversold := make([]float64, 26)
	price := 100.0
	for i := range oversold {
		if i == 10 {
			price += 0.3
		} else {
			price -= 1
		}
		oversold[i] = price
	}

	src := &fakeSource{
		list: []models.StockListEntry{
			{Code: "600000", Name: "Breakout Co", Status: "1"},
			{Code: "600001", Name: "Oversold Co", Status: "1"},
		},
		bars: map[string][]models.Bar{
			"600000": breakout,
			"600001": barsWith(oversold, nil),
		},
	}
	s := newTestScreener(src)

	ranked := s.RunWeighted(map[string]decimal.Decimal{
		"volume_breakout": decimal.NewFromInt(3),
		"rsi_oversold":    decimal.NewFromInt(1),
		"no_such":         decimal.NewFromInt(9), // unknown names are skipped
	}, 90, 0)

	require.Len(t, ranked, 2)
	assert.Equal(t, "600000", ranked[0].Code)
	assert.Equal(t, "3", ranked[0].Score.String())
	assert.Equal(t, "600001", ranked[1].Code)
	assert.Equal(t, "1", ranked[1].Score.String())
}

func TestStrategiesRegistry(t *testing.T) {
	for _, name := range []string{"macd_golden_cross", "rsi_oversold", "ma_golden_cross", "volume_breakout"} {
		strategy, ok := Strategies[name]
		require.True(t, ok, name)
		assert.Equal(t, name, strategy.Name())
	}
}
