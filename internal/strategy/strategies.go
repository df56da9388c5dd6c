package strategy

import (
	"fmt"
	"time"

	"equity-trading-bot/internal/indicators"
	"equity-trading-bot/internal/market"
)

func clampConfidence(v float64) float64 {
	if v < 0.30 {
		return 0.30
	}
	if v > 0.95 {
		return 0.95
	}
	return v
}

// lastTwo returns the indicator values at the last two closed bars, and
// whether both are defined.
func lastTwo(frame *market.IndicatorFrame, name string) (prev, last float64, ok bool) {
	n := frame.Length
	prev = frame.At(name, n-2)
	last = frame.At(name, n-1)
	return prev, last, market.Defined(prev) && market.Defined(last)
}

// EMACrossover buys when the 9-period EMA crosses above the 21-period EMA on
// the last closed bar with adequate volume.
type EMACrossover struct{}

func NewEMACrossover() *EMACrossover { return &EMACrossover{} }

func (s *EMACrossover) Name() string       { return "ema_crossover" }
func (s *EMACrossover) Category() Category { return CategoryDayTrading }
func (s *EMACrossover) MinHistory() int    { return 23 }

func (s *EMACrossover) Evaluate(series *market.BarSeries, frame *market.IndicatorFrame, now time.Time) []Candidate {
	if series.Len() < s.MinHistory() {
		return nil
	}
	last, _ := series.Last()
	n := series.Len()

	ema9Prev, ema9Last, ok := lastTwo(frame, indicators.NameEMA9)
	if !ok {
		return nil
	}
	ema21Prev, ema21Last, ok := lastTwo(frame, indicators.NameEMA21)
	if !ok {
		return nil
	}
	atr := frame.LastValue(indicators.NameATR14)
	volAvg := frame.At(indicators.NameVolAvg20, n-1)
	if !market.Defined(atr) || !market.Defined(volAvg) || atr <= 0 || volAvg <= 0 {
		return nil
	}

	crossed := ema9Prev <= ema21Prev && ema9Last > ema21Last
	volRatio := float64(last.Volume) / volAvg
	if !crossed || volRatio < 0.8 {
		return nil
	}

	entry := last.Close
	stop := last.Low - 0.5*atr
	if stop <= 0 || stop >= entry {
		return nil
	}
	target := entry + 2*(entry-stop)

	spread := (ema9Last - ema21Last) / ema21Last * 100
	confidence := clampConfidence(0.55 + 0.05*spread + 0.05*(volRatio-0.8))

	return []Candidate{{
		Symbol:     series.Symbol,
		Side:       SideBuy,
		Entry:      entry,
		Stop:       stop,
		Target:     target,
		Confidence: confidence,
		Strategy:   s.Name(),
		Category:   s.Category(),
		Reason:     fmt.Sprintf("EMA9 crossed above EMA21 (spread %.2f%%), volume %.1fx average", spread, volRatio),
		ProducedAt: now,
	}}
}

// Breakout buys a close above the prior 5-bar high with confirming RSI and
// elevated volume.
type Breakout struct{}

func NewBreakout() *Breakout { return &Breakout{} }

func (s *Breakout) Name() string       { return "breakout" }
func (s *Breakout) Category() Category { return CategoryDayTrading }
func (s *Breakout) MinHistory() int    { return 21 }

func (s *Breakout) Evaluate(series *market.BarSeries, frame *market.IndicatorFrame, now time.Time) []Candidate {
	if series.Len() < s.MinHistory() {
		return nil
	}
	last, _ := series.Last()
	n := series.Len()

	priorHigh := frame.At(indicators.NamePriorHigh5, n-1)
	rsi := frame.At(indicators.NameRSI14, n-1)
	volAvg := frame.At(indicators.NameVolAvg20, n-1)
	atr := frame.At(indicators.NameATR14, n-1)
	if !market.Defined(priorHigh) || !market.Defined(rsi) || !market.Defined(volAvg) || !market.Defined(atr) {
		return nil
	}
	if volAvg <= 0 || atr <= 0 {
		return nil
	}

	volRatio := float64(last.Volume) / volAvg
	if last.Close <= priorHigh || rsi < 55 || rsi > 75 || volRatio < 1.5 {
		return nil
	}

	entry := last.Close
	stop := priorHigh - 0.1*atr
	if stop <= 0 || stop >= entry {
		return nil
	}
	target := entry + 2*(entry-stop)

	confidence := clampConfidence(0.55 + 0.002*(rsi-55) + 0.05*(volRatio-1.5))

	return []Candidate{{
		Symbol:     series.Symbol,
		Side:       SideBuy,
		Entry:      entry,
		Stop:       stop,
		Target:     target,
		Confidence: confidence,
		Strategy:   s.Name(),
		Category:   s.Category(),
		Reason:     fmt.Sprintf("close %.2f broke prior 5-bar high %.2f, RSI %.1f, volume %.1fx", entry, priorHigh, rsi, volRatio),
		ProducedAt: now,
	}}
}

// OverboughtRejection sells an overbought name rejected below the upper
// Bollinger band on heavy volume.
type OverboughtRejection struct{}

func NewOverboughtRejection() *OverboughtRejection { return &OverboughtRejection{} }

func (s *OverboughtRejection) Name() string       { return "overbought_rejection" }
func (s *OverboughtRejection) Category() Category { return CategoryShortSelling }
func (s *OverboughtRejection) MinHistory() int    { return 21 }

func (s *OverboughtRejection) Evaluate(series *market.BarSeries, frame *market.IndicatorFrame, now time.Time) []Candidate {
	if series.Len() < s.MinHistory() {
		return nil
	}
	last, _ := series.Last()
	n := series.Len()

	rsi := frame.At(indicators.NameRSI14, n-1)
	bbUpper := frame.At(indicators.NameBBUpper, n-1)
	volAvg := frame.At(indicators.NameVolAvg20, n-1)
	priorHigh := frame.At(indicators.NamePriorHigh5, n-1)
	atr := frame.At(indicators.NameATR14, n-1)
	if !market.Defined(rsi) || !market.Defined(bbUpper) || !market.Defined(volAvg) ||
		!market.Defined(priorHigh) || !market.Defined(atr) {
		return nil
	}
	if volAvg <= 0 || atr <= 0 {
		return nil
	}

	volRatio := float64(last.Volume) / volAvg
	if rsi <= 75 || last.Close >= bbUpper || volRatio < 1.5 {
		return nil
	}

	entry := last.Close
	// Stop above the recent swing high with a small buffer
	swingHigh := priorHigh
	if last.High > swingHigh {
		swingHigh = last.High
	}
	stop := swingHigh + 0.1*atr
	if stop <= entry {
		return nil
	}
	target := entry - 2*(stop-entry)
	if target <= 0 {
		return nil
	}

	confidence := clampConfidence(0.55 + 0.005*(rsi-75) + 0.05*(volRatio-1.5))

	return []Candidate{{
		Symbol:     series.Symbol,
		Side:       SideSell,
		Entry:      entry,
		Stop:       stop,
		Target:     target,
		Confidence: confidence,
		Strategy:   s.Name(),
		Category:   s.Category(),
		Reason:     fmt.Sprintf("RSI %.1f overbought, close %.2f rejected below upper band %.2f, volume %.1fx", rsi, entry, bbUpper, volRatio),
		ProducedAt: now,
	}}
}

// Momentum buys a stacked trend (close above EMA21 above SMA50) with RSI in
// a sustainable band and positive 10-bar return.
type Momentum struct{}

func NewMomentum() *Momentum { return &Momentum{} }

func (s *Momentum) Name() string       { return "momentum" }
func (s *Momentum) Category() Category { return CategoryShortTerm }
func (s *Momentum) MinHistory() int    { return 51 }

func (s *Momentum) Evaluate(series *market.BarSeries, frame *market.IndicatorFrame, now time.Time) []Candidate {
	if series.Len() < s.MinHistory() {
		return nil
	}
	last, _ := series.Last()
	n := series.Len()

	ema21 := frame.At(indicators.NameEMA21, n-1)
	sma50 := frame.At(indicators.NameSMA50, n-1)
	rsi := frame.At(indicators.NameRSI14, n-1)
	ret10 := frame.At(indicators.NameReturn10, n-1)
	atr := frame.At(indicators.NameATR14, n-1)
	if !market.Defined(ema21) || !market.Defined(sma50) || !market.Defined(rsi) ||
		!market.Defined(ret10) || !market.Defined(atr) {
		return nil
	}
	if atr <= 0 {
		return nil
	}

	stacked := last.Close > ema21 && ema21 > sma50
	if !stacked || rsi < 50 || rsi > 70 || ret10 <= 3 {
		return nil
	}

	entry := last.Close
	stop := ema21 - 0.5*atr
	if stop <= 0 || stop >= entry {
		return nil
	}
	target := entry + 2*(entry-stop)

	confidence := clampConfidence(0.55 + 0.02*(ret10-3) + 0.002*(rsi-50))

	return []Candidate{{
		Symbol:     series.Symbol,
		Side:       SideBuy,
		Entry:      entry,
		Stop:       stop,
		Target:     target,
		Confidence: confidence,
		Strategy:   s.Name(),
		Category:   s.Category(),
		Reason:     fmt.Sprintf("trend stacked above EMA21/SMA50, RSI %.1f, 10-bar return %.1f%%", rsi, ret10),
		ProducedAt: now,
	}}
}

// TrendFollow buys an established long-term uptrend: close above SMA50 with
// a 30-bar return of at least 10%.
type TrendFollow struct{}

func NewTrendFollow() *TrendFollow { return &TrendFollow{} }

func (s *TrendFollow) Name() string       { return "trend_follow" }
func (s *TrendFollow) Category() Category { return CategoryLongTerm }
func (s *TrendFollow) MinHistory() int    { return 51 }

func (s *TrendFollow) Evaluate(series *market.BarSeries, frame *market.IndicatorFrame, now time.Time) []Candidate {
	if series.Len() < s.MinHistory() {
		return nil
	}
	last, _ := series.Last()
	n := series.Len()

	sma50 := frame.At(indicators.NameSMA50, n-1)
	ret30 := frame.At(indicators.NameReturn30, n-1)
	if !market.Defined(sma50) || !market.Defined(ret30) {
		return nil
	}
	if last.Close <= sma50 || ret30 < 10 {
		return nil
	}

	entry := last.Close
	stop := sma50 * 0.995
	if stop >= entry {
		return nil
	}
	target := entry * 1.20

	confidence := clampConfidence(0.55 + 0.01*(ret30-10))

	return []Candidate{{
		Symbol:     series.Symbol,
		Side:       SideBuy,
		Entry:      entry,
		Stop:       stop,
		Target:     target,
		Confidence: confidence,
		Strategy:   s.Name(),
		Category:   s.Category(),
		Reason:     fmt.Sprintf("close %.2f above SMA50 %.2f, 30-bar return %.1f%%", entry, sma50, ret30),
		ProducedAt: now,
	}}
}
