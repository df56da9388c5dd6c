package circuit

import (
	"sync"
	"time"

	"equity-trading-bot/internal/events"
	"equity-trading-bot/internal/market"
)

// BreakerState represents the auth breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Fetches allowed
	StateOpen     BreakerState = "open"      // Fetches paused (cooldown)
	StateHalfOpen BreakerState = "half_open" // One probe fetch allowed
)

// Config holds auth breaker configuration
type Config struct {
	Enabled  bool          `json:"enabled"`
	Cooldown time.Duration `json:"cooldown"` // Fetch pause after an auth failure
}

// DefaultConfig returns safe defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:  true,
		Cooldown: 5 * time.Minute,
	}
}

// AuthBreaker pauses broker fetches after an Unauthorized error. It emits a
// single observability event per cooldown window; repeated auth failures
// inside the window only extend bookkeeping, not the event stream.
type AuthBreaker struct {
	config *Config
	clock  market.Clock
	bus    *events.Bus

	mu        sync.Mutex
	state     BreakerState
	trippedAt time.Time
	tripCount int
}

// NewAuthBreaker creates a breaker in the closed state
func NewAuthBreaker(config *Config, clock market.Clock, bus *events.Bus) *AuthBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &AuthBreaker{
		config: config,
		clock:  clock,
		bus:    bus,
		state:  StateClosed,
	}
}

// Allow reports whether a fetch may proceed. In the open state it returns
// false until the cooldown elapses, then transitions to half-open and lets
// one probe through.
func (b *AuthBreaker) Allow() bool {
	if !b.config.Enabled {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.clock.Now().Sub(b.trippedAt) >= b.config.Cooldown {
			b.state = StateHalfOpen
			return true
		}
		return false
	}
	return true
}

// Trip records an Unauthorized failure and opens the breaker
func (b *AuthBreaker) Trip() {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	now := b.clock.Now()
	// One event per cooldown window: a trip while already inside the window
	// stays silent.
	insideWindow := b.state == StateOpen && now.Sub(b.trippedAt) < b.config.Cooldown
	b.state = StateOpen
	b.trippedAt = now
	b.tripCount++
	emit := !insideWindow
	b.mu.Unlock()

	if emit && b.bus != nil {
		b.bus.Emit(events.EventBrokerUnauthorized, map[string]interface{}{
			"cooldown_seconds": int(b.config.Cooldown.Seconds()),
			"trip_count":       b.tripCount,
		})
	}
}

// RecordSuccess closes the breaker after a successful probe fetch
func (b *AuthBreaker) RecordSuccess() {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	recovered := b.state != StateClosed
	b.state = StateClosed
	b.mu.Unlock()

	if recovered && b.bus != nil {
		b.bus.Emit(events.EventBrokerRecovered, nil)
	}
}

// State returns the current breaker state
func (b *AuthBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
