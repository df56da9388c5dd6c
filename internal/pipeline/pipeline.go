package pipeline

import (
	"context"
	"time"

	"equity-trading-bot/internal/events"
	"equity-trading-bot/internal/logging"
	"equity-trading-bot/internal/market"
	"equity-trading-bot/internal/risk"
	"equity-trading-bot/internal/signal"
	"equity-trading-bot/internal/strategy"
)

// Notifier delivers one grouped message per category per epoch
type Notifier interface {
	Notify(ctx context.Context, epochID string, category strategy.Category, signals []*signal.Signal) error
}

// Tracker is the optional Redis fast path for dedup checks. A nil tracker
// or a tracker miss falls through to the authoritative store lookup.
type Tracker interface {
	IsActive(ctx context.Context, key signal.DedupKey) bool
	Track(ctx context.Context, s *signal.Signal, window time.Duration) error
	Release(ctx context.Context, key signal.DedupKey)
}

// Config holds pipeline policy
type Config struct {
	SignalTimeout    time.Duration `json:"signal_timeout"`     // PENDING expiry, default 1h
	DedupQuietWindow time.Duration `json:"dedup_quiet_window"` // Duplicate suppression span, default 6h
	AutoTrade        bool          `json:"auto_trade"`
	AutoThreshold    float64       `json:"auto_threshold"` // Confidence needed for auto-approval
}

// DefaultConfig returns the standard pipeline policy
func DefaultConfig() *Config {
	return &Config{
		SignalTimeout:    time.Hour,
		DedupQuietWindow: 6 * time.Hour,
		AutoTrade:        false,
		AutoThreshold:    0.85,
	}
}

// Stats counts pipeline outcomes across one epoch
type Stats struct {
	Received          int
	InvalidCandidates int
	DedupSuppressed   int
	RiskRejected      int
	Persisted         int
	PersistFailed     int
	Approved          int
	Notified          int
	NotifyFailed      int
}

// SignalPipeline validates candidates, sizes them, persists signals and
// dispatches grouped notifications.
type SignalPipeline struct {
	config  *Config
	clock   market.Clock
	store   signal.Store
	tracker Tracker
	policy  risk.Policy
	notify  Notifier
	bus     *events.Bus
	log     *logging.Logger
}

// New creates a signal pipeline. tracker may be nil.
func New(config *Config, clock market.Clock, store signal.Store, tracker Tracker,
	policy risk.Policy, notify Notifier, bus *events.Bus, log *logging.Logger) *SignalPipeline {
	if config == nil {
		config = DefaultConfig()
	}
	return &SignalPipeline{
		config:  config,
		clock:   clock,
		store:   store,
		tracker: tracker,
		policy:  policy,
		notify:  notify,
		bus:     bus,
		log:     log.WithComponent("pipeline"),
	}
}

// Process runs all candidates of one epoch through the pipeline. Persistence
// is atomic per candidate; notifications go out as one batch per category
// after all candidates are handled.
func (p *SignalPipeline) Process(ctx context.Context, epochID string, candidates []strategy.Candidate) Stats {
	stats := Stats{Received: len(candidates)}
	log := logging.EpochLogger(p.log, epochID)

	batches := make(map[strategy.Category][]*signal.Signal)
	var order []strategy.Category

	for i := range candidates {
		c := &candidates[i]
		s := p.processOne(ctx, log, epochID, c, &stats)
		if s == nil {
			continue
		}
		if _, seen := batches[s.Category]; !seen {
			order = append(order, s.Category)
		}
		batches[s.Category] = append(batches[s.Category], s)
	}

	for _, category := range order {
		batch := batches[category]
		if err := p.notify.Notify(ctx, epochID, category, batch); err != nil {
			stats.NotifyFailed++
			log.Warn("notification batch failed", "category", string(category), "signals", len(batch), "error", err)
			continue
		}
		stats.Notified += len(batch)
	}
	return stats
}

func (p *SignalPipeline) processOne(ctx context.Context, log *logging.Logger, epochID string, c *strategy.Candidate, stats *Stats) *signal.Signal {
	if err := c.Validate(); err != nil {
		stats.InvalidCandidates++
		log.Warn("invalid candidate dropped", "symbol", c.Symbol, "strategy", c.Strategy, "error", err)
		return nil
	}

	now := p.clock.Now()
	key := signal.DedupKey{Symbol: c.Symbol, Side: c.Side, Strategy: c.Strategy}
	if p.isDuplicate(ctx, key, now) {
		stats.DedupSuppressed++
		log.Debug("duplicate candidate suppressed", "key", key.String())
		return nil
	}

	decision, err := p.policy.Evaluate(ctx, c)
	if err != nil {
		stats.RiskRejected++
		log.Warn("risk evaluation failed, candidate rejected", "symbol", c.Symbol, "strategy", c.Strategy, "error", err)
		return nil
	}
	if decision == nil {
		stats.RiskRejected++
		log.Debug("candidate rejected by risk policy", "symbol", c.Symbol, "strategy", c.Strategy)
		return nil
	}

	s := signal.FromCandidate(c, epochID, decision.Quantity, decision.Notes, now, p.config.SignalTimeout)
	if err := p.store.Create(ctx, s); err != nil {
		stats.PersistFailed++
		log.Error("failed to persist signal", "symbol", c.Symbol, "strategy", c.Strategy, "error", err)
		return nil
	}
	stats.Persisted++

	if p.tracker != nil {
		if err := p.tracker.Track(ctx, s, p.config.DedupQuietWindow); err != nil {
			log.Warn("failed to mirror signal into tracker", "signal_id", s.ID, "error", err)
		}
	}

	p.bus.Emit(events.EventSignalCreated, map[string]interface{}{
		"signal_id": s.ID,
		"symbol":    s.Symbol,
		"side":      string(s.Side),
		"strategy":  s.Strategy,
		"category":  string(s.Category),
	})

	if p.config.AutoTrade && s.Confidence >= p.config.AutoThreshold {
		if err := p.store.SetStatus(ctx, s.ID, signal.StatusPending, signal.StatusApproved); err != nil {
			log.Warn("auto-approval lost the status race", "signal_id", s.ID, "error", err)
		} else {
			s.Status = signal.StatusApproved
			stats.Approved++
			p.bus.Emit(events.EventSignalApproved, map[string]interface{}{
				"signal_id":  s.ID,
				"symbol":     s.Symbol,
				"confidence": s.Confidence,
			})
			log.Info("signal auto-approved", "signal_id", s.ID, "symbol", s.Symbol, "confidence", s.Confidence)
		}
	}

	return s
}

// isDuplicate checks the tracker fast path first, then the store
func (p *SignalPipeline) isDuplicate(ctx context.Context, key signal.DedupKey, now time.Time) bool {
	if p.tracker != nil && p.tracker.IsActive(ctx, key) {
		return true
	}
	cutoff := now.Add(-p.config.DedupQuietWindow)
	existing, err := p.store.FindActive(ctx, key, cutoff)
	if err != nil {
		// An undecidable dedup check lets the candidate through; the store
		// remains the single source of truth for later sweeps.
		p.log.Warn("dedup lookup failed", "key", key.String(), "error", err)
		return false
	}
	return existing != nil
}
