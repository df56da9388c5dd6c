package indicators

import (
	"math"

	"equity-trading-bot/internal/market"
)

// All functions return a sequence aligned with the input: index i holds the
// indicator value over the window ending at bar i, and positions without
// enough history hold the market.Undefined sentinel. No I/O; the only
// allocation is the output slice.

func undefinedPrefix(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = market.Undefined
	}
	return out
}

// SMA computes a simple moving average over the given period
func SMA(values []float64, period int) []float64 {
	out := undefinedPrefix(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes an exponential moving average seeded with the SMA of the
// first period values
func EMA(values []float64, period int) []float64 {
	out := undefinedPrefix(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out[period-1] = ema

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = values[i]*multiplier + ema*(1-multiplier)
		out[i] = ema
	}
	return out
}

// RSI computes the Wilder relative strength index
func RSI(closes []float64, period int) []float64 {
	out := undefinedPrefix(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACD computes the MACD line, its signal line (an EMA over the MACD
// series), and the histogram
func MACD(closes []float64, fast, slow, signal int) (macd, signalLine, histogram []float64) {
	n := len(closes)
	macd = undefinedPrefix(n)
	signalLine = undefinedPrefix(n)
	histogram = undefinedPrefix(n)
	if n < slow || fast >= slow {
		return
	}

	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	for i := slow - 1; i < n; i++ {
		macd[i] = fastEMA[i] - slowEMA[i]
	}

	// Signal line is an EMA over the defined MACD region
	defined := macd[slow-1:]
	sig := EMA(defined, signal)
	for i, v := range sig {
		signalLine[slow-1+i] = v
	}
	for i := 0; i < n; i++ {
		if market.Defined(macd[i]) && market.Defined(signalLine[i]) {
			histogram[i] = macd[i] - signalLine[i]
		}
	}
	return
}

// Bollinger computes the middle/upper/lower bands for the given period and
// standard-deviation multiplier
func Bollinger(closes []float64, period int, k float64) (middle, upper, lower []float64) {
	n := len(closes)
	middle = SMA(closes, period)
	upper = undefinedPrefix(n)
	lower = undefinedPrefix(n)
	if n < period {
		return
	}

	var sum, sumSq float64
	for i, v := range closes {
		sum += v
		sumSq += v * v
		if i >= period {
			old := closes[i-period]
			sum -= old
			sumSq -= old * old
		}
		if i >= period-1 {
			mean := sum / float64(period)
			variance := sumSq/float64(period) - mean*mean
			if variance < 0 {
				variance = 0
			}
			sd := math.Sqrt(variance)
			upper[i] = mean + k*sd
			lower[i] = mean - k*sd
		}
	}
	return
}

// ATR computes the Wilder average true range over high/low/close series
func ATR(bars []market.Bar, period int) []float64 {
	n := len(bars)
	out := undefinedPrefix(n)
	if period <= 0 || n < period+1 {
		return out
	}

	trueRange := func(i int) float64 {
		high, low, prevClose := bars[i].High, bars[i].Low, bars[i-1].Close
		return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
	}

	var sum float64
	for i := 1; i <= period; i++ {
		sum += trueRange(i)
	}
	atr := sum / float64(period)
	out[period] = atr

	for i := period + 1; i < n; i++ {
		atr = (atr*float64(period-1) + trueRange(i)) / float64(period)
		out[i] = atr
	}
	return out
}

// VolumeAverage computes the simple moving average of volume
func VolumeAverage(volumes []float64, period int) []float64 {
	return SMA(volumes, period)
}

// Gap computes the open-versus-prior-close gap as a percentage
func Gap(bars []market.Bar) []float64 {
	out := undefinedPrefix(len(bars))
	for i := 1; i < len(bars); i++ {
		prevClose := bars[i-1].Close
		if prevClose != 0 {
			out[i] = (bars[i].Open - prevClose) / prevClose * 100
		}
	}
	return out
}

// PriorHighMax computes, for each bar, the highest high over the lookback
// bars strictly before it
func PriorHighMax(bars []market.Bar, lookback int) []float64 {
	n := len(bars)
	out := undefinedPrefix(n)
	for i := lookback; i < n; i++ {
		high := bars[i-lookback].High
		for j := i - lookback + 1; j < i; j++ {
			if bars[j].High > high {
				high = bars[j].High
			}
		}
		out[i] = high
	}
	return out
}

// Return computes the percentage change over the given number of bars
func Return(closes []float64, period int) []float64 {
	out := undefinedPrefix(len(closes))
	for i := period; i < len(closes); i++ {
		base := closes[i-period]
		if base != 0 {
			out[i] = (closes[i] - base) / base * 100
		}
	}
	return out
}
