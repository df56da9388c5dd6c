package broker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"equity-trading-bot/internal/market"
)

// MockClient provides simulated NSE market data for development and tests.
// Prices follow a seeded random walk so repeated fetches within a run stay
// coherent per symbol.
type MockClient struct {
	mu     sync.RWMutex
	rng    *rand.Rand
	prices map[string]float64
}

// NewMockClient creates a mock broker with realistic base prices
func NewMockClient(seed int64) *MockClient {
	mc := &MockClient{
		rng: rand.New(rand.NewSource(seed)),
		prices: map[string]float64{
			"RELIANCE":   2950.00,
			"TCS":        4100.00,
			"HDFCBANK":   1690.00,
			"INFY":       1850.00,
			"HINDUNILVR": 2450.00,
			"ICICIBANK":  1230.00,
			"KOTAKBANK":  1780.00,
			"LT":         3600.00,
			"ITC":        465.00,
			"AXISBANK":   1150.00,
			"SBIN":       830.00,
			"BHARTIARTL": 1540.00,
			"ASIANPAINT": 2900.00,
			"MARUTI":     12400.00,
			"BAJFINANCE": 6900.00,
			"EICHERMOT":  4800.00,
			"HEROMOTOCO": 5600.00,
			"DRREDDY":    6400.00,
			"ADANIENT":   3100.00,
			"HCLTECH":    1720.00,
			"WIPRO":      540.00,
			"ULTRACEMCO": 11200.00,
			"TITAN":      3400.00,
			"NESTLEIND":  2550.00,
			"POWERGRID":  330.00,
			"NTPC":       390.00,
		},
	}
	return mc
}

// FetchHistorical returns simulated bars covering the requested window
func (mc *MockClient) FetchHistorical(ctx context.Context, symbol string, interval market.Interval, window market.Window) (*market.BarSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(KindTimeout, symbol, err)
	}

	mc.mu.Lock()
	base, ok := mc.prices[symbol]
	if !ok {
		mc.mu.Unlock()
		return nil, NewError(KindNotFound, symbol, nil)
	}

	step := interval.Duration()
	count := int(window.To.Sub(window.From) / step)
	if count > 500 {
		count = 500
	}
	if count < 1 {
		count = 1
	}

	bars := make([]market.Bar, 0, count)
	price := base
	ts := window.To.Add(-time.Duration(count) * step)
	for i := 0; i < count; i++ {
		change := (mc.rng.Float64() - 0.495) * 0.006
		open := price
		price = price * (1 + change)
		high := open
		if price > high {
			high = price
		}
		high *= 1 + mc.rng.Float64()*0.002
		low := open
		if price < low {
			low = price
		}
		low *= 1 - mc.rng.Float64()*0.002
		bars = append(bars, market.Bar{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    int64(100000 + mc.rng.Intn(400000)),
		})
		ts = ts.Add(step)
	}
	mc.prices[symbol] = price
	mc.mu.Unlock()

	return &market.BarSeries{Symbol: symbol, Interval: interval, Bars: bars}, nil
}
