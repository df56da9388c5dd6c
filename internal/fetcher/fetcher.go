package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"equity-trading-bot/internal/broker"
	"equity-trading-bot/internal/circuit"
	"equity-trading-bot/internal/logging"
	"equity-trading-bot/internal/market"
)

// ErrFetchPaused is returned while the auth breaker holds fetches during an
// unauthorized cooldown.
var ErrFetchPaused = errors.New("broker fetches paused during auth cooldown")

// Config holds fetcher timeout and retry policy
type Config struct {
	TimeoutIntraday time.Duration `json:"timeout_intraday"` // Per-call cap for intraday history
	TimeoutHistory  time.Duration `json:"timeout_history"`  // Per-call cap for daily history
	MaxAttempts     int           `json:"max_attempts"`     // Attempts per fetch, retryable errors only
	BackoffBase     time.Duration `json:"backoff_base"`
	BackoffCap      time.Duration `json:"backoff_cap"`
}

// DefaultConfig returns the standard fetch policy
func DefaultConfig() *Config {
	return &Config{
		TimeoutIntraday: 30 * time.Second,
		TimeoutHistory:  60 * time.Second,
		MaxAttempts:     3,
		BackoffBase:     500 * time.Millisecond,
		BackoffCap:      8 * time.Second,
	}
}

// Fetcher wraps the broker client with per-call timeouts, classified-error
// retries and the unauthorized-cooldown breaker. It holds no lock across
// broker calls.
type Fetcher struct {
	client  broker.Client
	breaker *circuit.AuthBreaker
	config  *Config
	log     *logging.Logger
}

// New creates a fetcher over the given broker client
func New(client broker.Client, breaker *circuit.AuthBreaker, config *Config, log *logging.Logger) *Fetcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &Fetcher{
		client:  client,
		breaker: breaker,
		config:  config,
		log:     log.WithComponent("fetcher"),
	}
}

// FetchBars fetches bars for one instrument within the caller's deadline.
// RateLimited and Transient errors are retried with jittered exponential
// backoff; everything else returns immediately.
func (f *Fetcher) FetchBars(ctx context.Context, symbol string, interval market.Interval, window market.Window) (*market.BarSeries, error) {
	if f.breaker != nil && !f.breaker.Allow() {
		return nil, broker.NewError(broker.KindUnauthorized, symbol, ErrFetchPaused)
	}

	callCap := f.config.TimeoutIntraday
	if !interval.IsIntraday() {
		callCap = f.config.TimeoutHistory
	}

	var series *market.BarSeries
	attempt := 0
	operation := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, callCap)
		result, err := f.client.FetchHistorical(callCtx, symbol, interval, window)
		cancel()
		if err == nil {
			series = result
			return nil
		}

		kind := broker.KindOf(err)
		switch kind {
		case broker.KindUnauthorized:
			if f.breaker != nil {
				f.breaker.Trip()
			}
			return backoff.Permanent(err)
		case broker.KindRateLimited:
			f.waitRetryAfter(ctx, err)
			return err
		case broker.KindTransient:
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.config.BackoffBase
	policy.MaxInterval = f.config.BackoffCap
	policy.RandomizationFactor = 1 // Full jitter
	policy.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithMaxRetries(backoff.WithContext(policy, ctx), uint64(f.config.MaxAttempts-1)))
	if err != nil {
		f.log.Warn("fetch failed",
			"instrument", symbol,
			"interval", string(interval),
			"attempts", attempt,
			"error_kind", string(broker.KindOf(err)),
			"error", err)
		return nil, err
	}

	if f.breaker != nil {
		f.breaker.RecordSuccess()
	}
	return series, nil
}

// waitRetryAfter honors an explicit broker delay hint within the caller's
// deadline before the next retry fires.
func (f *Fetcher) waitRetryAfter(ctx context.Context, err error) {
	var be *broker.Error
	if !errors.As(err, &be) || be.RetryAfter <= 0 {
		return
	}
	timer := time.NewTimer(be.RetryAfter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
