// Package analysis computes technical indicators over daily bar series.
// All math runs in decimal to avoid float drift in prices.
package analysis

import (
	"github.com/shopspring/decimal"

	"ashare_backend/models"
)

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// Closes extracts the valid close prices from bars, oldest first
func Closes(bars []models.Bar) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(bars))
	for _, b := range bars {
		if b.Close.Valid {
			out = append(out, b.Close.Decimal)
		}
	}
	return out
}

// Volumes extracts the valid volumes from bars, oldest first
func Volumes(bars []models.Bar) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(bars))
	for _, b := range bars {
		if b.Volume.Valid {
			out = append(out, b.Volume.Decimal)
		}
	}
	return out
}

// SMA returns the simple moving average series. The first period-1 slots
// are zero because no full window exists yet.
func SMA(values []decimal.Decimal, period int) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	if period < 1 || len(values) < period {
		return out
	}
	var sum decimal.Decimal
	p := decimal.NewFromInt(int64(period))
	for i, v := range values {
		sum = sum.Add(v)
		if i >= period {
			sum = sum.Sub(values[i-period])
		}
		if i >= period-1 {
			out[i] = sum.Div(p)
		}
	}
	return out
}

// EMA returns the exponential moving average series, seeded with the first
// value
func EMA(values []decimal.Decimal, period int) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	if period < 1 || len(values) == 0 {
		return out
	}
	multiplier := two.Div(decimal.NewFromInt(int64(period + 1)))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i].Sub(out[i-1]).Mul(multiplier).Add(out[i-1])
	}
	return out
}

// MACD returns the 12/26/9 MACD line, signal line, and histogram
func MACD(values []decimal.Decimal) (macd, signal, histogram []decimal.Decimal) {
	fast := EMA(values, 12)
	slow := EMA(values, 26)

	macd = make([]decimal.Decimal, len(values))
	for i := range values {
		macd[i] = fast[i].Sub(slow[i])
	}
	signal = EMA(macd, 9)
	histogram = make([]decimal.Decimal, len(values))
	for i := range values {
		histogram[i] = macd[i].Sub(signal[i])
	}
	return macd, signal, histogram
}

// RSI returns the Wilder-smoothed relative strength index
func RSI(values []decimal.Decimal, period int) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	if period < 1 || len(values) <= period {
		return out
	}

	var avgGain, avgLoss decimal.Decimal
	for i := 1; i <= period; i++ {
		change := values[i].Sub(values[i-1])
		if change.IsPositive() {
			avgGain = avgGain.Add(change)
		} else {
			avgLoss = avgLoss.Add(change.Abs())
		}
	}
	p := decimal.NewFromInt(int64(period))
	avgGain = avgGain.Div(p)
	avgLoss = avgLoss.Div(p)
	out[period] = rsiValue(avgGain, avgLoss)

	pMinusOne := decimal.NewFromInt(int64(period - 1))
	for i := period + 1; i < len(values); i++ {
		change := values[i].Sub(values[i-1])
		gain := decimal.Zero
		loss := decimal.Zero
		if change.IsPositive() {
			gain = change
		} else {
			loss = change.Abs()
		}
		avgGain = avgGain.Mul(pMinusOne).Add(gain).Div(p)
		avgLoss = avgLoss.Mul(pMinusOne).Add(loss).Div(p)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss decimal.Decimal) decimal.Decimal {
	if avgLoss.IsZero() {
		return hundred
	}
	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// KDJ returns the 9-day stochastic K, D, and J series
func KDJ(bars []models.Bar) (k, d, j []decimal.Decimal) {
	n := 9
	k = make([]decimal.Decimal, len(bars))
	d = make([]decimal.Decimal, len(bars))
	j = make([]decimal.Decimal, len(bars))
	if len(bars) == 0 {
		return k, d, j
	}

	fifty := decimal.NewFromInt(50)
	three := decimal.NewFromInt(3)
	prevK, prevD := fifty, fifty

	for i := range bars {
		lo := i - n + 1
		if lo < 0 {
			lo = 0
		}
		var highest, lowest decimal.Decimal
		seeded := false
		for _, b := range bars[lo : i+1] {
			if !b.High.Valid || !b.Low.Valid {
				continue
			}
			if !seeded {
				highest, lowest = b.High.Decimal, b.Low.Decimal
				seeded = true
				continue
			}
			if b.High.Decimal.GreaterThan(highest) {
				highest = b.High.Decimal
			}
			if b.Low.Decimal.LessThan(lowest) {
				lowest = b.Low.Decimal
			}
		}

		rsv := fifty
		if seeded && bars[i].Close.Valid && !highest.Equal(lowest) {
			rsv = bars[i].Close.Decimal.Sub(lowest).Div(highest.Sub(lowest)).Mul(hundred)
		}

		k[i] = prevK.Mul(two).Add(rsv).Div(three)
		d[i] = prevD.Mul(two).Add(k[i]).Div(three)
		j[i] = k[i].Mul(three).Sub(d[i].Mul(two))
		prevK, prevD = k[i], d[i]
	}
	return k, d, j
}

// Bollinger returns 20-day bands at 2 standard deviations
func Bollinger(values []decimal.Decimal) (upper, middle, lower []decimal.Decimal) {
	period := 20
	middle = SMA(values, period)
	upper = make([]decimal.Decimal, len(values))
	lower = make([]decimal.Decimal, len(values))
	if len(values) < period {
		return upper, middle, lower
	}

	p := decimal.NewFromInt(int64(period))
	for i := period - 1; i < len(values); i++ {
		var variance decimal.Decimal
		for _, v := range values[i-period+1 : i+1] {
			diff := v.Sub(middle[i])
			variance = variance.Add(diff.Mul(diff))
		}
		// decimal has no square root; band width tolerates a float round trip
		std := decimal.NewFromFloat(sqrtFloat(variance.Div(p)))
		upper[i] = middle[i].Add(std.Mul(two))
		lower[i] = middle[i].Sub(std.Mul(two))
	}
	return upper, middle, lower
}

// sqrtFloat is Newton's method over the float image of d
func sqrtFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	if f <= 0 {
		return 0
	}
	x := f
	for i := 0; i < 20; i++ {
		x = (x + f/x) / 2
	}
	return x
}

// VolumeRatio compares the latest volume to the trailing average of the
// previous period days. Zero when not enough data.
func VolumeRatio(volumes []decimal.Decimal, period int) decimal.Decimal {
	if len(volumes) < period+1 {
		return decimal.Zero
	}
	recent := volumes[len(volumes)-1]
	var sum decimal.Decimal
	for _, v := range volumes[len(volumes)-1-period : len(volumes)-1] {
		sum = sum.Add(v)
	}
	if sum.IsZero() {
		return decimal.Zero
	}
	avg := sum.Div(decimal.NewFromInt(int64(period)))
	return recent.Div(avg)
}

// Summary is the latest value of every indicator for one symbol
type Summary struct {
	Code        string          `json:"code"`
	MA5         decimal.Decimal `json:"ma5"`
	MA10        decimal.Decimal `json:"ma10"`
	MA20        decimal.Decimal `json:"ma20"`
	RSI14       decimal.Decimal `json:"rsi14"`
	MACD        decimal.Decimal `json:"macd"`
	MACDSignal  decimal.Decimal `json:"macd_signal"`
	MACDHist    decimal.Decimal `json:"macd_hist"`
	K           decimal.Decimal `json:"k"`
	D           decimal.Decimal `json:"d"`
	J           decimal.Decimal `json:"j"`
	BollUpper   decimal.Decimal `json:"boll_upper"`
	BollMiddle  decimal.Decimal `json:"boll_middle"`
	BollLower   decimal.Decimal `json:"boll_lower"`
	VolumeRatio decimal.Decimal `json:"volume_ratio"`
}

// Summarize computes the latest indicator values over a bar series.
// Returns nil when the series is too short for the slowest indicator.
func Summarize(code string, bars []models.Bar) *Summary {
	closes := Closes(bars)
	if len(closes) < 26 {
		return nil
	}
	volumes := Volumes(bars)

	macd, signal, hist := MACD(closes)
	k, d, j := KDJ(bars)
	upper, middle, lower := Bollinger(closes)
	rsi := RSI(closes, 14)

	last := len(closes) - 1
	s := &Summary{
		Code:        code,
		MA5:         lastOf(SMA(closes, 5)),
		MA10:        lastOf(SMA(closes, 10)),
		MA20:        lastOf(SMA(closes, 20)),
		RSI14:       rsi[last],
		MACD:        macd[last],
		MACDSignal:  signal[last],
		MACDHist:    hist[last],
		BollUpper:   lastOf(upper),
		BollMiddle:  lastOf(middle),
		BollLower:   lastOf(lower),
		VolumeRatio: VolumeRatio(volumes, 5),
	}
	if len(k) > 0 {
		s.K = k[len(k)-1]
		s.D = d[len(d)-1]
		s.J = j[len(j)-1]
	}
	return s
}

func lastOf(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return values[len(values)-1]
}
