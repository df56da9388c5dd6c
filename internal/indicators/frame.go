package indicators

import "equity-trading-bot/internal/market"

// Canonical frame names for the indicator set shared by all strategies.
// Computed once per (instrument, interval, last-bar) and reused.
const (
	NameEMA9       = "ema_9"
	NameEMA21      = "ema_21"
	NameSMA50      = "sma_50"
	NameRSI14      = "rsi_14"
	NameMACD       = "macd"
	NameMACDSignal = "macd_signal"
	NameMACDHist   = "macd_hist"
	NameBBMiddle   = "bb_middle"
	NameBBUpper    = "bb_upper"
	NameBBLower    = "bb_lower"
	NameATR14      = "atr_14"
	NameVolAvg20   = "vol_avg_20"
	NameGap        = "gap"
	NamePriorHigh5 = "prior_high_5"
	NameReturn10   = "return_10"
	NameReturn30   = "return_30"
)

// ComputeFrame derives the full shared indicator set for a series. The
// result is immutable once returned.
func ComputeFrame(series *market.BarSeries) *market.IndicatorFrame {
	closes := series.Closes()
	volumes := series.Volumes()
	frame := market.NewIndicatorFrame(series.Len())

	frame.Set(NameEMA9, EMA(closes, 9))
	frame.Set(NameEMA21, EMA(closes, 21))
	frame.Set(NameSMA50, SMA(closes, 50))
	frame.Set(NameRSI14, RSI(closes, 14))

	macd, signal, hist := MACD(closes, 12, 26, 9)
	frame.Set(NameMACD, macd)
	frame.Set(NameMACDSignal, signal)
	frame.Set(NameMACDHist, hist)

	middle, upper, lower := Bollinger(closes, 20, 2)
	frame.Set(NameBBMiddle, middle)
	frame.Set(NameBBUpper, upper)
	frame.Set(NameBBLower, lower)

	frame.Set(NameATR14, ATR(series.Bars, 14))
	frame.Set(NameVolAvg20, VolumeAverage(volumes, 20))
	frame.Set(NameGap, Gap(series.Bars))
	frame.Set(NamePriorHigh5, PriorHighMax(series.Bars, 5))
	frame.Set(NameReturn10, Return(closes, 10))
	frame.Set(NameReturn30, Return(closes, 30))

	return frame
}
