package scanner

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"equity-trading-bot/internal/broker"
	"equity-trading-bot/internal/cache"
	"equity-trading-bot/internal/events"
	"equity-trading-bot/internal/indicators"
	"equity-trading-bot/internal/logging"
	"equity-trading-bot/internal/market"
	"equity-trading-bot/internal/pipeline"
	"equity-trading-bot/internal/strategy"
)

// Config holds scanner concurrency and deadline policy
type Config struct {
	Parallelism   int           `json:"parallelism"`    // Concurrent per-symbol tasks, default 5
	EpochTimeout  time.Duration `json:"epoch_timeout"`  // Hard deadline for one scan, default 5m
	SymbolTimeout time.Duration `json:"symbol_timeout"` // Per-symbol budget, default 60s
}

// DefaultConfig returns the standard scanner policy
func DefaultConfig() *Config {
	return &Config{
		Parallelism:   5,
		EpochTimeout:  5 * time.Minute,
		SymbolTimeout: 60 * time.Second,
	}
}

// BarFetcher fetches price history for one instrument
type BarFetcher interface {
	FetchBars(ctx context.Context, symbol string, interval market.Interval, window market.Window) (*market.BarSeries, error)
}

// CandidateSink receives the candidates of one epoch
type CandidateSink interface {
	Process(ctx context.Context, epochID string, candidates []strategy.Candidate) pipeline.Stats
}

// UnifiedScanner runs one scan epoch: it unions the watchlists of the
// epoch's categories, fans per-symbol work out under bounded parallelism,
// runs every registered strategy over shared indicator data and forwards the
// surviving candidates to the pipeline.
type UnifiedScanner struct {
	config     *Config
	clock      market.Clock
	cache      *cache.SymbolCache
	fetcher    BarFetcher
	registry   *strategy.Registry
	watchlists Watchlists
	sink       CandidateSink
	bus        *events.Bus
	log        *logging.Logger
}

// New creates a unified scanner
func New(config *Config, clock market.Clock, symbolCache *cache.SymbolCache, fetcher BarFetcher,
	registry *strategy.Registry, watchlists Watchlists, sink CandidateSink,
	bus *events.Bus, log *logging.Logger) *UnifiedScanner {
	if config == nil {
		config = DefaultConfig()
	}
	return &UnifiedScanner{
		config:     config,
		clock:      clock,
		cache:      symbolCache,
		fetcher:    fetcher,
		registry:   registry,
		watchlists: watchlists,
		sink:       sink,
		bus:        bus,
		log:        log.WithComponent("scanner"),
	}
}

// Run executes one scan epoch to completion or its deadline. Stats are
// written exactly once, after the gather finishes.
func (s *UnifiedScanner) Run(ctx context.Context, epoch *ScanEpoch) *EpochStats {
	start := s.clock.Now()
	log := logging.EpochLogger(s.log, epoch.EpochID)

	plans := s.resolveSymbols(epoch.Categories)
	epoch.Stats.SymbolsTotal = len(plans)

	s.bus.Emit(events.EventEpochStarted, map[string]interface{}{
		"epoch_id": epoch.EpochID,
		"trigger":  epoch.TriggerName,
		"symbols":  len(plans),
	})
	log.Info("scan epoch started", "trigger", epoch.TriggerName,
		"categories", categoryNames(epoch.Categories), "symbols", len(plans))

	// The deadline is carried as a duration so virtual clocks and the wall
	// clock agree on the remaining budget.
	epochCtx, cancel := context.WithTimeout(ctx, epoch.Deadline.Sub(start))
	defer cancel()

	sem := semaphore.NewWeighted(int64(s.config.Parallelism))
	results := make(chan symbolResult, len(plans))
	for _, plan := range plans {
		go func(plan symbolPlan) {
			if err := sem.Acquire(epochCtx, 1); err != nil {
				results <- symbolResult{symbol: plan.symbol, timedOut: true, err: err}
				return
			}
			defer sem.Release(1)
			results <- s.scanSymbol(epochCtx, log, plan)
		}(plan)
	}

	var candidates []strategy.Candidate
	for i := 0; i < len(plans); i++ {
		r := <-results
		switch {
		case r.timedOut:
			epoch.Stats.TimedOut++
			log.Warn("symbol scan timed out", "instrument", r.symbol)
		case r.err != nil:
			epoch.Stats.Failed++
			log.WithFields(logging.FailureFields(r.symbol, "", string(broker.KindOf(r.err)))).
				Warn("symbol scan failed", "error", r.err)
		default:
			if r.fetched {
				epoch.Stats.Fetched++
			}
			if r.cacheHit {
				epoch.Stats.CacheHits++
			}
			candidates = append(candidates, r.candidates...)
		}
	}
	epoch.Stats.Candidates = len(candidates)

	// Deterministic hand-off order regardless of gather interleaving
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Symbol != candidates[j].Symbol {
			return candidates[i].Symbol < candidates[j].Symbol
		}
		return candidates[i].Category < candidates[j].Category
	})

	if len(candidates) > 0 {
		pstats := s.sink.Process(ctx, epoch.EpochID, candidates)
		epoch.Stats.Persisted = pstats.Persisted
		epoch.Stats.Notified = pstats.Notified
		epoch.Stats.Failed += pstats.PersistFailed + pstats.NotifyFailed
	}

	epoch.Stats.Duration = s.clock.Now().Sub(start)

	eventType := events.EventEpochCompleted
	if epoch.Stats.TimedOut > 0 {
		eventType = events.EventEpochTimedOut
	}
	s.bus.Emit(eventType, map[string]interface{}{
		"epoch_id":   epoch.EpochID,
		"candidates": epoch.Stats.Candidates,
		"persisted":  epoch.Stats.Persisted,
		"timed_out":  epoch.Stats.TimedOut,
		"duration":   epoch.Stats.Duration.String(),
	})
	log.Info("scan epoch finished",
		"fetched", epoch.Stats.Fetched,
		"cache_hits", epoch.Stats.CacheHits,
		"candidates", epoch.Stats.Candidates,
		"persisted", epoch.Stats.Persisted,
		"failed", epoch.Stats.Failed,
		"timed_out", epoch.Stats.TimedOut,
		"duration", epoch.Stats.Duration.String())

	return &epoch.Stats
}

// resolveSymbols unions the watchlists of the epoch's categories. Symbol
// order is sorted for determinism; each symbol keeps the category order of
// the epoch.
func (s *UnifiedScanner) resolveSymbols(categories []strategy.Category) []symbolPlan {
	bySymbol := make(map[string][]strategy.Category)
	for _, category := range categories {
		for _, symbol := range s.watchlists[category] {
			bySymbol[symbol] = append(bySymbol[symbol], category)
		}
	}

	plans := make([]symbolPlan, 0, len(bySymbol))
	for symbol, cats := range bySymbol {
		plans = append(plans, symbolPlan{symbol: symbol, categories: cats})
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].symbol < plans[j].symbol })
	return plans
}

// requirement picks the fetch spec for one symbol: the category needing the
// widest history wins; its interval is used for every strategy of the task.
func requirement(categories []strategy.Category) (market.Interval, time.Duration) {
	interval := categories[0].Interval()
	window := categories[0].HistoryWindow()
	for _, c := range categories[1:] {
		if c.HistoryWindow() > window {
			window = c.HistoryWindow()
			interval = c.Interval()
		}
	}
	return interval, window
}

// scanSymbol runs one per-symbol task: fetch-or-reuse the data snapshot,
// then apply every strategy of the symbol's categories in registration
// order, keeping the best candidate per category.
func (s *UnifiedScanner) scanSymbol(ctx context.Context, log *logging.Logger, plan symbolPlan) symbolResult {
	result := symbolResult{symbol: plan.symbol}

	symbolCtx, cancel := context.WithTimeout(ctx, s.config.SymbolTimeout)
	defer cancel()

	interval, window := requirement(plan.categories)
	key := market.Key{Symbol: plan.symbol, Interval: interval}

	fetched := false
	data, err := s.cache.GetOrFetch(symbolCtx, key, func(fetchCtx context.Context) (*market.SymbolData, error) {
		fetched = true
		now := s.clock.Now()
		series, err := s.fetcher.FetchBars(fetchCtx, plan.symbol, interval, market.Window{
			From: now.Add(-window),
			To:   now,
		})
		if err != nil {
			return nil, err
		}
		if err := series.Validate(now); err != nil {
			return nil, broker.NewError(broker.KindPermanent, plan.symbol, err)
		}
		return &market.SymbolData{
			Symbol:     plan.symbol,
			Interval:   interval,
			Series:     series,
			Indicators: indicators.ComputeFrame(series),
		}, nil
	})
	result.fetched = fetched
	if err != nil {
		if broker.KindOf(err) == broker.KindTimeout || ctx.Err() != nil {
			result.timedOut = true
		}
		result.err = err
		return result
	}
	// A task that joined another task's in-flight fetch is counted as a cache
	// hit: the broker saw one call either way.
	result.cacheHit = !fetched

	now := s.clock.Now()
	for _, category := range plan.categories {
		if err := symbolCtx.Err(); err != nil {
			result.timedOut = true
			result.err = err
			return result
		}
		var perCategory []strategy.Candidate
		for _, strat := range s.registry.ForCategory(category) {
			if data.Series.Len() < strat.MinHistory() {
				continue
			}
			perCategory = append(perCategory, strat.Evaluate(data.Series, data.Indicators, now)...)
		}
		if best := s.registry.PickBest(perCategory); best != nil {
			result.candidates = append(result.candidates, *best)
		}
	}
	return result
}

func categoryNames(categories []strategy.Category) []string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	return names
}
