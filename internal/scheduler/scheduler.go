package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"equity-trading-bot/internal/database"
	"equity-trading-bot/internal/events"
	"equity-trading-bot/internal/logging"
	"equity-trading-bot/internal/market"
	"equity-trading-bot/internal/pipeline"
	"equity-trading-bot/internal/scanner"
	"equity-trading-bot/internal/signal"
	"equity-trading-bot/internal/strategy"
)

// TriggerConfig names one scheduled scan
type TriggerConfig struct {
	Name        string              `json:"name"`
	Spec        string              `json:"spec"`         // "minute hour" cron subset
	SessionOnly bool                `json:"session_only"` // Fire only inside market session
	Categories  []strategy.Category `json:"categories"`
}

// Config holds scheduler policy
type Config struct {
	Triggers      []TriggerConfig `json:"triggers"`
	EpochTimeout  time.Duration   `json:"epoch_timeout"`  // Deadline per scan epoch
	SweepInterval time.Duration   `json:"sweep_interval"` // Signal expiry sweep cadence
	ShutdownGrace time.Duration   `json:"shutdown_grace"` // Wait for running epochs on Stop
}

// DefaultConfig returns the standard trigger set in exchange-local time
func DefaultConfig() *Config {
	return &Config{
		Triggers: []TriggerConfig{
			{
				Name: "frequent", Spec: "*/5 *", SessionOnly: true,
				Categories: []strategy.Category{strategy.CategoryDayTrading, strategy.CategoryShortSelling},
			},
			{
				Name: "regular", Spec: "15 9,11,13,15", SessionOnly: true,
				Categories: []strategy.Category{strategy.CategoryShortTerm},
			},
			{
				Name: "comprehensive", Spec: "0 10,14", SessionOnly: true,
				Categories: strategy.AllCategories(),
			},
			{
				Name: "daily", Spec: "0 16", SessionOnly: false,
				Categories: []strategy.Category{strategy.CategoryLongTerm},
			},
		},
		EpochTimeout:  5 * time.Minute,
		SweepInterval: time.Minute,
		ShutdownGrace: 30 * time.Second,
	}
}

// TriggerStats tracks execution counters per trigger
type TriggerStats struct {
	TotalRuns      int           `json:"total_runs"`
	SuccessfulRuns int           `json:"successful_runs"`
	FailedRuns     int           `json:"failed_runs"`
	SkippedOverlap int           `json:"skipped_overlap"`
	LastRun        time.Time     `json:"last_run"`
	LastDuration   time.Duration `json:"last_duration"`
	TotalDuration  time.Duration `json:"total_duration"`
}

// AvgDuration returns the mean epoch duration across completed runs
func (s TriggerStats) AvgDuration() time.Duration {
	if s.TotalRuns == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.TotalRuns)
}

type trigger struct {
	config  TriggerConfig
	spec    market.TriggerSpec
	running bool
	stats   TriggerStats
}

// SchedulerLoop owns the named triggers, dispatches scan epochs and sweeps
// expired signals. One epoch per trigger runs at a time; a fire that lands
// while the previous epoch is still running is skipped and counted.
type SchedulerLoop struct {
	config  *Config
	clock   market.Clock
	scanner *scanner.UnifiedScanner
	store   signal.Store
	tracker pipeline.Tracker
	bus     *events.Bus
	log     *logging.Logger

	mu       sync.Mutex
	triggers map[string]*trigger
	order    []string
	started  bool

	stopChan    chan struct{}
	loopWG      sync.WaitGroup
	epochWG     sync.WaitGroup
	epochCtx    context.Context
	cancelEpoch context.CancelFunc
}

// New creates a scheduler loop. tracker may be nil.
func New(config *Config, clock market.Clock, sc *scanner.UnifiedScanner, store signal.Store,
	tracker pipeline.Tracker, bus *events.Bus, log *logging.Logger) (*SchedulerLoop, error) {
	if config == nil {
		config = DefaultConfig()
	}

	s := &SchedulerLoop{
		config:   config,
		clock:    clock,
		scanner:  sc,
		store:    store,
		tracker:  tracker,
		bus:      bus,
		log:      log.WithComponent("scheduler"),
		triggers: make(map[string]*trigger),
		stopChan: make(chan struct{}),
	}
	for _, tc := range config.Triggers {
		spec, err := market.ParseTriggerSpec(tc.Spec, tc.SessionOnly)
		if err != nil {
			return nil, fmt.Errorf("trigger %s: %w", tc.Name, err)
		}
		if _, dup := s.triggers[tc.Name]; dup {
			return nil, fmt.Errorf("duplicate trigger name %s", tc.Name)
		}
		for _, c := range tc.Categories {
			if !c.Valid() {
				return nil, fmt.Errorf("trigger %s: unknown category %q", tc.Name, c)
			}
		}
		// A session-only spec whose hours never intersect the session has no
		// fire time at all; refuse it rather than park a dead trigger.
		if clock.NextFire(spec, clock.Now()).IsZero() {
			return nil, fmt.Errorf("trigger %s: spec %q never fires", tc.Name, tc.Spec)
		}
		s.triggers[tc.Name] = &trigger{config: tc, spec: spec}
		s.order = append(s.order, tc.Name)
	}
	return s, nil
}

// Start launches the trigger loops and the expiry sweeper
func (s *SchedulerLoop) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.stopChan = make(chan struct{})
	s.epochCtx, s.cancelEpoch = context.WithCancel(context.Background())
	s.mu.Unlock()

	now := s.clock.Now()
	for _, name := range s.order {
		t := s.triggers[name]
		next := s.clock.NextFire(t.spec, now)
		s.log.Info("trigger scheduled", "trigger", name, "spec", t.config.Spec,
			"next_fire", next.Format(time.RFC3339))

		s.loopWG.Add(1)
		go s.triggerLoop(t)
	}

	s.loopWG.Add(1)
	go s.sweepLoop()

	s.bus.Emit(events.EventSchedulerStarted, map[string]interface{}{
		"triggers": len(s.order),
	})
	s.log.Info("scheduler started", "triggers", len(s.order))
}

// Stop cancels running epochs and waits up to the grace period for them to
// wind down. Returns an error when the grace period elapses first.
func (s *SchedulerLoop) Stop(grace time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stopChan)
	s.mu.Unlock()

	s.loopWG.Wait()
	s.cancelEpoch()

	done := make(chan struct{})
	go func() {
		s.epochWG.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(grace):
		err = fmt.Errorf("shutdown grace period of %s exceeded with epochs still running", grace)
	}

	s.bus.Emit(events.EventSchedulerStopped, nil)
	s.log.Info("scheduler stopped")
	return err
}

// TriggerNow dispatches a named trigger immediately, subject to the same
// overlap rule as a scheduled fire.
func (s *SchedulerLoop) TriggerNow(name string) error {
	s.mu.Lock()
	t, ok := s.triggers[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown trigger %s", name)
	}
	started := s.started
	s.mu.Unlock()
	if !started {
		return fmt.Errorf("scheduler not running")
	}
	if !s.fire(t) {
		return fmt.Errorf("trigger %s already running", name)
	}
	return nil
}

// Stats returns a snapshot of per-trigger execution counters
func (s *SchedulerLoop) Stats() map[string]TriggerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]TriggerStats, len(s.triggers))
	for name, t := range s.triggers {
		out[name] = t.stats
	}
	return out
}

// NextRuns returns the upcoming fire time per trigger
func (s *SchedulerLoop) NextRuns() map[string]time.Time {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.triggers))
	for name, t := range s.triggers {
		out[name] = s.clock.NextFire(t.spec, now)
	}
	return out
}

func (s *SchedulerLoop) triggerLoop(t *trigger) {
	defer s.loopWG.Done()
	for {
		next := s.clock.NextFire(t.spec, s.clock.Now())
		if next.IsZero() {
			// No fire within a year; park instead of spinning
			s.log.Warn("trigger has no upcoming fire time", "trigger", t.config.Name, "spec", t.config.Spec)
			<-s.stopChan
			return
		}
		wait := next.Sub(s.clock.Now())
		if wait < 0 {
			wait = 0
		}
		select {
		case <-s.stopChan:
			return
		case <-time.After(wait):
			s.fire(t)
		}
	}
}

// fire dispatches one epoch for the trigger unless one is still running.
// Returns false on an overlap skip.
func (s *SchedulerLoop) fire(t *trigger) bool {
	s.mu.Lock()
	if t.running {
		t.stats.SkippedOverlap++
		s.mu.Unlock()
		s.bus.Emit(events.EventTriggerSkipped, map[string]interface{}{
			"trigger": t.config.Name,
			"reason":  "overlap",
		})
		s.log.Warn("trigger skipped, previous epoch still running", "trigger", t.config.Name)
		return false
	}
	t.running = true
	ctx := s.epochCtx
	s.mu.Unlock()

	s.epochWG.Add(1)
	go func() {
		defer s.epochWG.Done()
		s.runEpoch(ctx, t)
	}()
	return true
}

// EpochRecorder is implemented by stores that keep a scan_epochs audit trail
type EpochRecorder interface {
	SaveEpoch(ctx context.Context, e *database.EpochRecord) error
}

func (s *SchedulerLoop) runEpoch(ctx context.Context, t *trigger) {
	start := s.clock.Now()
	epoch := scanner.NewEpoch(t.config.Name, t.config.Categories, start, s.config.EpochTimeout)
	stats := s.scanner.Run(ctx, epoch)

	if recorder, ok := s.store.(EpochRecorder); ok {
		s.recordEpoch(recorder, epoch)
	}

	s.mu.Lock()
	t.running = false
	t.stats.TotalRuns++
	t.stats.LastRun = start
	t.stats.LastDuration = stats.Duration
	t.stats.TotalDuration += stats.Duration
	if stats.TimedOut > 0 || (stats.SymbolsTotal > 0 && stats.Failed == stats.SymbolsTotal) {
		t.stats.FailedRuns++
	} else {
		t.stats.SuccessfulRuns++
	}
	s.mu.Unlock()
}

// recordEpoch persists the epoch summary. Best effort; a failed write only
// logs.
func (s *SchedulerLoop) recordEpoch(recorder EpochRecorder, epoch *scanner.ScanEpoch) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	categories := make([]string, len(epoch.Categories))
	for i, c := range epoch.Categories {
		categories[i] = string(c)
	}
	record := &database.EpochRecord{
		EpochID:      epoch.EpochID,
		TriggerName:  epoch.TriggerName,
		Categories:   categories,
		TriggeredAt:  epoch.TriggeredAt,
		FinishedAt:   epoch.TriggeredAt.Add(epoch.Stats.Duration),
		SymbolsTotal: epoch.Stats.SymbolsTotal,
		Fetched:      epoch.Stats.Fetched,
		CacheHits:    epoch.Stats.CacheHits,
		Candidates:   epoch.Stats.Candidates,
		Persisted:    epoch.Stats.Persisted,
		Notified:     epoch.Stats.Notified,
		Failed:       epoch.Stats.Failed,
		TimedOut:     epoch.Stats.TimedOut,
		Duration:     epoch.Stats.Duration,
	}
	if err := recorder.SaveEpoch(ctx, record); err != nil {
		s.log.Error("failed to record scan epoch", "epoch_id", epoch.EpochID, "error", err)
	}
}

// sweepLoop periodically expires overdue PENDING signals
func (s *SchedulerLoop) sweepLoop() {
	defer s.loopWG.Done()
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.SweepExpired()
		}
	}
}

// SweepExpired runs one expiry pass and returns how many signals expired.
// Tracker markers for the expired keys are released so the dedup fast path
// stops suppressing keys whose signal is no longer active.
func (s *SchedulerLoop) SweepExpired() int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	expired, err := s.store.ExpireOverdue(ctx, s.clock.Now())
	if err != nil {
		s.log.Error("signal expiry sweep failed", "error", err)
		return 0
	}
	if s.tracker != nil {
		for _, sig := range expired {
			s.tracker.Release(ctx, sig.Key())
		}
	}
	if len(expired) > 0 {
		s.bus.Emit(events.EventSignalExpired, map[string]interface{}{
			"count": len(expired),
		})
		s.log.Info("expired overdue signals", "count", len(expired))
	}
	return len(expired)
}
