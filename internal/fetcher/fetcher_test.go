package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"equity-trading-bot/internal/broker"
	"equity-trading-bot/internal/circuit"
	"equity-trading-bot/internal/events"
	"equity-trading-bot/internal/logging"
	"equity-trading-bot/internal/market"
)

// scriptedClient returns one queued response per call, then repeats the last
type scriptedClient struct {
	mu        sync.Mutex
	responses []error
	delay     time.Duration
	calls     int
	series    *market.BarSeries
}

func (c *scriptedClient) FetchHistorical(ctx context.Context, symbol string, interval market.Interval, window market.Window) (*market.BarSeries, error) {
	c.mu.Lock()
	idx := c.calls
	c.calls++
	c.mu.Unlock()

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, broker.NewError(broker.KindTimeout, symbol, ctx.Err())
		}
	}

	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	if err := c.responses[idx]; err != nil {
		return nil, err
	}
	if c.series != nil {
		return c.series, nil
	}
	return &market.BarSeries{Symbol: symbol, Interval: interval}, nil
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testConfig() *Config {
	return &Config{
		TimeoutIntraday: 200 * time.Millisecond,
		TimeoutHistory:  400 * time.Millisecond,
		MaxAttempts:     3,
		BackoffBase:     5 * time.Millisecond,
		BackoffCap:      20 * time.Millisecond,
	}
}

func quietLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "FATAL", Output: "stderr", JSONFormat: true})
}

func TestFetchRetriesRateLimitedThenSucceeds(t *testing.T) {
	client := &scriptedClient{responses: []error{
		broker.NewError(broker.KindRateLimited, "RELIANCE", nil),
		broker.NewError(broker.KindRateLimited, "RELIANCE", nil),
		nil,
	}}
	f := New(client, nil, testConfig(), quietLogger())

	series, err := f.FetchBars(context.Background(), "RELIANCE", market.Interval15m, market.Window{})
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if series == nil {
		t.Fatal("expected series")
	}
	if got := client.callCount(); got != 3 {
		t.Errorf("broker calls = %d, want 3", got)
	}
}

func TestFetchUnauthorizedNoRetry(t *testing.T) {
	mc, err := market.NewMarketClock("Asia/Kolkata", "09:15", "15:30")
	if err != nil {
		t.Fatalf("NewMarketClock: %v", err)
	}
	clock := market.NewVirtualClock(mc, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	breaker := circuit.NewAuthBreaker(circuit.DefaultConfig(), clock, events.NewBus())

	client := &scriptedClient{responses: []error{
		broker.NewError(broker.KindUnauthorized, "TCS", errors.New("session expired")),
	}}
	f := New(client, breaker, testConfig(), quietLogger())

	_, err = f.FetchBars(context.Background(), "TCS", market.Interval15m, market.Window{})
	if broker.KindOf(err) != broker.KindUnauthorized {
		t.Fatalf("error kind = %s, want unauthorized", broker.KindOf(err))
	}
	if got := client.callCount(); got != 1 {
		t.Errorf("broker calls = %d, want 1 (no retries)", got)
	}

	// Breaker now pauses subsequent fetches without touching the broker
	_, err = f.FetchBars(context.Background(), "TCS", market.Interval15m, market.Window{})
	if !errors.Is(err, ErrFetchPaused) {
		t.Errorf("expected ErrFetchPaused, got %v", err)
	}
	if got := client.callCount(); got != 1 {
		t.Errorf("broker calls while paused = %d, want 1", got)
	}
}

func TestFetchNotFoundNoRetry(t *testing.T) {
	client := &scriptedClient{responses: []error{
		broker.NewError(broker.KindNotFound, "GONE", nil),
	}}
	f := New(client, nil, testConfig(), quietLogger())

	_, err := f.FetchBars(context.Background(), "GONE", market.Interval1D, market.Window{})
	if broker.KindOf(err) != broker.KindNotFound {
		t.Fatalf("error kind = %s, want not_found", broker.KindOf(err))
	}
	if got := client.callCount(); got != 1 {
		t.Errorf("broker calls = %d, want 1", got)
	}
}

func TestFetchPerCallTimeout(t *testing.T) {
	client := &scriptedClient{
		responses: []error{nil},
		delay:     500 * time.Millisecond, // Beyond the 200ms intraday cap
	}
	cfg := testConfig()
	cfg.MaxAttempts = 1
	f := New(client, nil, cfg, quietLogger())

	start := time.Now()
	_, err := f.FetchBars(context.Background(), "RELIANCE", market.Interval15m, market.Window{})
	elapsed := time.Since(start)

	if broker.KindOf(err) != broker.KindTimeout {
		t.Fatalf("error kind = %s, want timeout", broker.KindOf(err))
	}
	if elapsed > 350*time.Millisecond {
		t.Errorf("fetch took %v, cap should bound it near 200ms", elapsed)
	}
}

func TestFetchHonorsCallerDeadline(t *testing.T) {
	client := &scriptedClient{responses: []error{
		broker.NewError(broker.KindTransient, "RELIANCE", errors.New("502")),
	}}
	cfg := testConfig()
	cfg.BackoffBase = 200 * time.Millisecond
	f := New(client, nil, cfg, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.FetchBars(ctx, "RELIANCE", market.Interval15m, market.Window{})
	if err == nil {
		t.Fatal("expected error when caller deadline elapses during backoff")
	}
}
