package indicators

import (
	"math"
	"testing"
	"time"

	"equity-trading-bot/internal/market"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func barsFromCloses(closes ...float64) []market.Bar {
	start := time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      c,
			High:      c + 2,
			Low:       c - 2,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func TestSMA(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4, 5}, 3)

	if market.Defined(out[0]) || market.Defined(out[1]) {
		t.Error("leading values should be undefined")
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if !almostEqual(out[i+2], w, 1e-9) {
			t.Errorf("SMA[%d] = %v, want %v", i+2, out[i+2], w)
		}
	}
}

func TestEMA(t *testing.T) {
	out := EMA([]float64{10, 11, 12, 13, 14}, 3)

	// Seeded with SMA(10,11,12)=11, multiplier 0.5
	if !almostEqual(out[2], 11, 1e-9) {
		t.Errorf("EMA seed = %v, want 11", out[2])
	}
	if !almostEqual(out[3], 12, 1e-9) { // 13*0.5 + 11*0.5
		t.Errorf("EMA[3] = %v, want 12", out[3])
	}
	if !almostEqual(out[4], 13, 1e-9) { // 14*0.5 + 12*0.5
		t.Errorf("EMA[4] = %v, want 13", out[4])
	}

	short := EMA([]float64{1, 2}, 3)
	for i, v := range short {
		if market.Defined(v) {
			t.Errorf("EMA with insufficient history defined at %d", i)
		}
	}
}

func TestRSIAllGains(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	out := RSI(closes, 14)

	if market.Defined(out[13]) {
		t.Error("RSI should need period+1 values")
	}
	if !almostEqual(out[14], 100, 1e-9) {
		t.Errorf("RSI of monotone gains = %v, want 100", out[14])
	}
}

func TestRSIMixed(t *testing.T) {
	// Alternating +2/-1 moves: avg gain 1.0, avg loss 0.5 over 14 -> RS=2 -> RSI≈66.67
	closes := make([]float64, 15)
	closes[0] = 100
	for i := 1; i < 15; i++ {
		if i%2 == 1 {
			closes[i] = closes[i-1] + 2
		} else {
			closes[i] = closes[i-1] - 1
		}
	}
	out := RSI(closes, 14)
	if !almostEqual(out[14], 66.666666, 1e-3) {
		t.Errorf("RSI = %v, want ~66.67", out[14])
	}
}

func TestMACDSignalIsEMAOfMACD(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	macd, signal, hist := MACD(closes, 12, 26, 9)

	if market.Defined(macd[24]) {
		t.Error("MACD defined before slow period")
	}
	if !market.Defined(macd[25]) {
		t.Error("MACD undefined at slow period boundary")
	}
	// Signal needs 9 defined MACD values
	if market.Defined(signal[25+7]) {
		t.Error("signal defined too early")
	}
	if !market.Defined(signal[25+8]) {
		t.Error("signal undefined after warmup")
	}
	last := len(closes) - 1
	if !almostEqual(hist[last], macd[last]-signal[last], 1e-9) {
		t.Errorf("histogram mismatch: %v != %v - %v", hist[last], macd[last], signal[last])
	}
}

func TestBollinger(t *testing.T) {
	closes := []float64{2, 4, 6, 8, 10}
	middle, upper, lower := Bollinger(closes, 5, 2)

	// mean 6, population sd sqrt(8)
	sd := math.Sqrt(8)
	if !almostEqual(middle[4], 6, 1e-9) {
		t.Errorf("middle = %v, want 6", middle[4])
	}
	if !almostEqual(upper[4], 6+2*sd, 1e-9) {
		t.Errorf("upper = %v, want %v", upper[4], 6+2*sd)
	}
	if !almostEqual(lower[4], 6-2*sd, 1e-9) {
		t.Errorf("lower = %v, want %v", lower[4], 6-2*sd)
	}
}

func TestATRConstantRange(t *testing.T) {
	// Flat closes, high-low range 4 everywhere -> ATR converges to 4
	bars := barsFromCloses(100, 100, 100, 100, 100, 100, 100, 100, 100, 100,
		100, 100, 100, 100, 100, 100)
	out := ATR(bars, 14)

	if market.Defined(out[13]) {
		t.Error("ATR defined before period+1 bars")
	}
	if !almostEqual(out[14], 4, 1e-9) {
		t.Errorf("ATR = %v, want 4", out[14])
	}
}

func TestGap(t *testing.T) {
	bars := barsFromCloses(100, 100)
	bars[1].Open = 103
	out := Gap(bars)

	if market.Defined(out[0]) {
		t.Error("gap undefined for first bar")
	}
	if !almostEqual(out[1], 3, 1e-9) {
		t.Errorf("gap = %v, want 3", out[1])
	}
}

func TestPriorHighMax(t *testing.T) {
	bars := barsFromCloses(10, 20, 15, 12, 11, 13, 14)
	out := PriorHighMax(bars, 5)

	// Index 5: highs of bars 0..4 are closes+2 -> max = 22
	if !almostEqual(out[5], 22, 1e-9) {
		t.Errorf("prior high = %v, want 22", out[5])
	}
	if market.Defined(out[4]) {
		t.Error("prior high defined with insufficient lookback")
	}
}

func TestReturn(t *testing.T) {
	closes := []float64{100, 0, 0, 0, 0, 0, 0, 0, 0, 0, 110}
	for i := 1; i < 10; i++ {
		closes[i] = 100
	}
	out := Return(closes, 10)
	if !almostEqual(out[10], 10, 1e-9) {
		t.Errorf("return = %v, want 10", out[10])
	}
}

func TestComputeFrameDeterministic(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i)/5)*10
	}
	series := &market.BarSeries{Symbol: "RELIANCE", Interval: market.Interval15m, Bars: barsFromCloses(closes...)}

	a := ComputeFrame(series)
	b := ComputeFrame(series)
	for _, name := range a.Names() {
		va, _ := a.Get(name)
		vb, _ := b.Get(name)
		for i := range va {
			if market.Defined(va[i]) != market.Defined(vb[i]) {
				t.Fatalf("%s[%d]: definedness differs", name, i)
			}
			if market.Defined(va[i]) && !almostEqual(va[i], vb[i], 1e-12) {
				t.Fatalf("%s[%d]: %v != %v", name, i, va[i], vb[i])
			}
		}
	}
	if a.Length != series.Len() {
		t.Errorf("frame length = %d, want %d", a.Length, series.Len())
	}
}
