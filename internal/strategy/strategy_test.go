package strategy

import (
	"math"
	"testing"
	"time"

	"equity-trading-bot/internal/indicators"
	"equity-trading-bot/internal/market"
)

var testNow = time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)

func flatSeries(symbol string, n int, lastClose, lastLow, lastHigh float64, lastVolume int64) *market.BarSeries {
	start := time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		bars[i] = market.Bar{
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      100, High: 102, Low: 98, Close: 100,
			Volume: 1000,
		}
	}
	last := &bars[n-1]
	last.Close = lastClose
	last.Low = lastLow
	last.High = lastHigh
	last.Volume = lastVolume
	return &market.BarSeries{Symbol: symbol, Interval: market.Interval15m, Bars: bars}
}

func undefinedSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = market.Undefined
	}
	return out
}

// frameWith builds a frame where each named indicator is undefined except at
// the last bar (and optionally the bar before it).
func frameWith(n int, last map[string]float64, prev map[string]float64) *market.IndicatorFrame {
	frame := market.NewIndicatorFrame(n)
	for name, v := range last {
		values := undefinedSeries(n)
		values[n-1] = v
		if p, ok := prev[name]; ok {
			values[n-2] = p
		}
		frame.Set(name, values)
	}
	return frame
}

func TestEMACrossoverSignal(t *testing.T) {
	series := flatSeries("RELIANCE", 30, 110, 108, 112, 1000)
	frame := frameWith(30,
		map[string]float64{
			indicators.NameEMA9:     102,
			indicators.NameEMA21:    101,
			indicators.NameATR14:    4,
			indicators.NameVolAvg20: 1000,
		},
		map[string]float64{
			indicators.NameEMA9:  100,
			indicators.NameEMA21: 100,
		})

	out := NewEMACrossover().Evaluate(series, frame, testNow)
	if len(out) != 1 {
		t.Fatalf("candidates = %d, want 1", len(out))
	}
	c := out[0]
	if err := c.Validate(); err != nil {
		t.Fatalf("invalid candidate: %v", err)
	}
	if c.Side != SideBuy || c.Entry != 110 {
		t.Errorf("candidate = %+v, want BUY at 110", c)
	}
	if c.Stop != 106 { // last low 108 - 0.5*ATR(4)
		t.Errorf("stop = %v, want 106", c.Stop)
	}
	if c.Target != 118 { // entry + 2*(entry-stop)
		t.Errorf("target = %v, want 118", c.Target)
	}
	if c.Category != CategoryDayTrading || c.Strategy != "ema_crossover" {
		t.Errorf("attribution = %s/%s", c.Category, c.Strategy)
	}
}

func TestEMACrossoverAlreadyAbove(t *testing.T) {
	series := flatSeries("RELIANCE", 30, 110, 108, 112, 1000)
	frame := frameWith(30,
		map[string]float64{
			indicators.NameEMA9:     103,
			indicators.NameEMA21:    101,
			indicators.NameATR14:    4,
			indicators.NameVolAvg20: 1000,
		},
		map[string]float64{
			indicators.NameEMA9:  102, // already above on the prior bar
			indicators.NameEMA21: 100,
		})

	if out := NewEMACrossover().Evaluate(series, frame, testNow); len(out) != 0 {
		t.Errorf("candidates = %d, want 0 without a fresh cross", len(out))
	}
}

func TestEMACrossoverLowVolume(t *testing.T) {
	series := flatSeries("RELIANCE", 30, 110, 108, 112, 500)
	frame := frameWith(30,
		map[string]float64{
			indicators.NameEMA9:     102,
			indicators.NameEMA21:    101,
			indicators.NameATR14:    4,
			indicators.NameVolAvg20: 1000,
		},
		map[string]float64{
			indicators.NameEMA9:  100,
			indicators.NameEMA21: 100,
		})

	if out := NewEMACrossover().Evaluate(series, frame, testNow); len(out) != 0 {
		t.Errorf("candidates = %d, want 0 at 0.5x volume", len(out))
	}
}

func TestBreakoutSignal(t *testing.T) {
	series := flatSeries("TCS", 30, 105, 103, 106, 2000)
	frame := frameWith(30, map[string]float64{
		indicators.NamePriorHigh5: 102,
		indicators.NameRSI14:      65,
		indicators.NameVolAvg20:   1000,
		indicators.NameATR14:      2,
	}, nil)

	out := NewBreakout().Evaluate(series, frame, testNow)
	if len(out) != 1 {
		t.Fatalf("candidates = %d, want 1", len(out))
	}
	c := out[0]
	if err := c.Validate(); err != nil {
		t.Fatalf("invalid candidate: %v", err)
	}
	if c.Stop != 101.8 { // prior high - 0.1*ATR
		t.Errorf("stop = %v, want 101.8", c.Stop)
	}
	if math.Abs(c.Target-111.4) > 1e-9 {
		t.Errorf("target = %v, want 111.4", c.Target)
	}
}

func TestBreakoutRSIOutOfBand(t *testing.T) {
	series := flatSeries("TCS", 30, 105, 103, 106, 2000)
	frame := frameWith(30, map[string]float64{
		indicators.NamePriorHigh5: 102,
		indicators.NameRSI14:      80,
		indicators.NameVolAvg20:   1000,
		indicators.NameATR14:      2,
	}, nil)

	if out := NewBreakout().Evaluate(series, frame, testNow); len(out) != 0 {
		t.Errorf("candidates = %d, want 0 with RSI 80", len(out))
	}
}

func TestOverboughtRejectionSignal(t *testing.T) {
	series := flatSeries("INFY", 30, 110, 108, 111, 2000)
	frame := frameWith(30, map[string]float64{
		indicators.NameRSI14:      80,
		indicators.NameBBUpper:    112,
		indicators.NameVolAvg20:   1000,
		indicators.NamePriorHigh5: 111,
		indicators.NameATR14:      2,
	}, nil)

	out := NewOverboughtRejection().Evaluate(series, frame, testNow)
	if len(out) != 1 {
		t.Fatalf("candidates = %d, want 1", len(out))
	}
	c := out[0]
	if err := c.Validate(); err != nil {
		t.Fatalf("invalid candidate: %v", err)
	}
	if c.Side != SideSell {
		t.Errorf("side = %s, want SELL", c.Side)
	}
	if math.Abs(c.Stop-111.2) > 1e-9 { // swing high 111 + 0.1*ATR
		t.Errorf("stop = %v, want 111.2", c.Stop)
	}
	if math.Abs(c.Target-107.6) > 1e-9 { // entry - 2*(stop-entry)
		t.Errorf("target = %v, want 107.6", c.Target)
	}
}

func TestOverboughtRejectionAboveBand(t *testing.T) {
	series := flatSeries("INFY", 30, 113, 108, 114, 2000)
	frame := frameWith(30, map[string]float64{
		indicators.NameRSI14:      80,
		indicators.NameBBUpper:    112, // close above the band: still extending
		indicators.NameVolAvg20:   1000,
		indicators.NamePriorHigh5: 111,
		indicators.NameATR14:      2,
	}, nil)

	if out := NewOverboughtRejection().Evaluate(series, frame, testNow); len(out) != 0 {
		t.Errorf("candidates = %d, want 0 when close is above the band", len(out))
	}
}

func TestMomentumSignal(t *testing.T) {
	series := flatSeries("SBIN", 60, 110, 108, 112, 1000)
	frame := frameWith(60, map[string]float64{
		indicators.NameEMA21:    105,
		indicators.NameSMA50:    100,
		indicators.NameRSI14:    60,
		indicators.NameReturn10: 5,
		indicators.NameATR14:    2,
	}, nil)

	out := NewMomentum().Evaluate(series, frame, testNow)
	if len(out) != 1 {
		t.Fatalf("candidates = %d, want 1", len(out))
	}
	c := out[0]
	if err := c.Validate(); err != nil {
		t.Fatalf("invalid candidate: %v", err)
	}
	if c.Stop != 104 { // EMA21 - 0.5*ATR
		t.Errorf("stop = %v, want 104", c.Stop)
	}
	if c.Target != 122 {
		t.Errorf("target = %v, want 122", c.Target)
	}
	if c.Category != CategoryShortTerm {
		t.Errorf("category = %s, want SHORT_TERM", c.Category)
	}
}

func TestTrendFollowSignal(t *testing.T) {
	series := flatSeries("ITC", 60, 110, 108, 112, 1000)
	frame := frameWith(60, map[string]float64{
		indicators.NameSMA50:    100,
		indicators.NameReturn30: 15,
	}, nil)

	out := NewTrendFollow().Evaluate(series, frame, testNow)
	if len(out) != 1 {
		t.Fatalf("candidates = %d, want 1", len(out))
	}
	c := out[0]
	if err := c.Validate(); err != nil {
		t.Fatalf("invalid candidate: %v", err)
	}
	if c.Stop != 99.5 { // SMA50 * 0.995
		t.Errorf("stop = %v, want 99.5", c.Stop)
	}
	if math.Abs(c.Target-132) > 1e-9 { // entry * 1.20
		t.Errorf("target = %v, want 132", c.Target)
	}
}

func TestStrategiesTotalOnShortSeries(t *testing.T) {
	series := flatSeries("RELIANCE", 5, 100, 98, 102, 1000)
	frame := market.NewIndicatorFrame(5)

	for _, s := range []Strategy{
		NewEMACrossover(), NewBreakout(), NewOverboughtRejection(), NewMomentum(), NewTrendFollow(),
	} {
		if out := s.Evaluate(series, frame, testNow); len(out) != 0 {
			t.Errorf("%s produced candidates on a 5-bar series", s.Name())
		}
	}
}

func TestStrategiesTotalOnUndefinedFrame(t *testing.T) {
	series := flatSeries("RELIANCE", 60, 100, 98, 102, 1000)
	frame := market.NewIndicatorFrame(60)
	for _, name := range []string{
		indicators.NameEMA9, indicators.NameEMA21, indicators.NameSMA50,
		indicators.NameRSI14, indicators.NameATR14, indicators.NameVolAvg20,
		indicators.NameBBUpper, indicators.NamePriorHigh5,
		indicators.NameReturn10, indicators.NameReturn30,
	} {
		frame.Set(name, undefinedSeries(60))
	}

	for _, s := range []Strategy{
		NewEMACrossover(), NewBreakout(), NewOverboughtRejection(), NewMomentum(), NewTrendFollow(),
	} {
		if out := s.Evaluate(series, frame, testNow); len(out) != 0 {
			t.Errorf("%s produced candidates from an all-undefined frame", s.Name())
		}
	}
}

func TestCandidateValidate(t *testing.T) {
	valid := Candidate{
		Symbol: "RELIANCE", Side: SideBuy, Entry: 100, Stop: 95, Target: 110,
		Confidence: 0.7, Strategy: "ema_crossover", Category: CategoryDayTrading,
		ProducedAt: testNow,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid candidate rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Candidate)
	}{
		{"buy stop above entry", func(c *Candidate) { c.Stop = 105 }},
		{"buy target below entry", func(c *Candidate) { c.Target = 99 }},
		{"sell levels inverted", func(c *Candidate) { c.Side = SideSell }},
		{"confidence above one", func(c *Candidate) { c.Confidence = 1.5 }},
		{"missing symbol", func(c *Candidate) { c.Symbol = "" }},
		{"unknown category", func(c *Candidate) { c.Category = "SCALPING" }},
		{"zero entry", func(c *Candidate) { c.Entry = 0 }},
	}
	for _, tc := range cases {
		c := valid
		tc.mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

type stubStrategy struct {
	name     string
	category Category
}

func (s *stubStrategy) Name() string       { return s.name }
func (s *stubStrategy) Category() Category { return s.category }
func (s *stubStrategy) MinHistory() int    { return 10 }
func (s *stubStrategy) Evaluate(*market.BarSeries, *market.IndicatorFrame, time.Time) []Candidate {
	return nil
}

func TestRegistryOrderAndLookup(t *testing.T) {
	r := NewRegistry()
	first := &stubStrategy{name: "first", category: CategoryDayTrading}
	second := &stubStrategy{name: "second", category: CategoryDayTrading}
	other := &stubStrategy{name: "other", category: CategoryLongTerm}
	r.Register(first)
	r.Register(second)
	r.Register(other)

	day := r.ForCategory(CategoryDayTrading)
	if len(day) != 2 || day[0].Name() != "first" || day[1].Name() != "second" {
		t.Fatalf("registration order not preserved: %v", day)
	}
	if got := r.ForCategory(CategoryShortSelling); len(got) != 0 {
		t.Errorf("empty category returned %d strategies", len(got))
	}

	// Duplicate registration keeps the original slot
	r.Register(&stubStrategy{name: "first", category: CategoryDayTrading})
	if got := len(r.ForCategory(CategoryDayTrading)); got != 2 {
		t.Errorf("duplicate registration grew the category to %d", got)
	}
}

func TestPickBestConfidenceThenOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubStrategy{name: "alpha", category: CategoryDayTrading})
	r.Register(&stubStrategy{name: "beta", category: CategoryDayTrading})

	best := r.PickBest([]Candidate{
		{Strategy: "alpha", Confidence: 0.6},
		{Strategy: "beta", Confidence: 0.8},
	})
	if best == nil || best.Strategy != "beta" {
		t.Fatalf("best = %+v, want beta on confidence", best)
	}

	best = r.PickBest([]Candidate{
		{Strategy: "beta", Confidence: 0.7},
		{Strategy: "alpha", Confidence: 0.7},
	})
	if best == nil || best.Strategy != "alpha" {
		t.Fatalf("best = %+v, want alpha on registration order tie-break", best)
	}

	if r.PickBest(nil) != nil {
		t.Error("PickBest of empty input should be nil")
	}
}

func TestDefaultRegistryCoversEveryCategory(t *testing.T) {
	r := NewDefaultRegistry()
	for _, cat := range AllCategories() {
		if len(r.ForCategory(cat)) == 0 {
			t.Errorf("category %s has no registered strategy", cat)
		}
		if r.MinBars(cat) == 0 {
			t.Errorf("category %s reports zero min history", cat)
		}
	}
}
