package scanner

import (
	"time"

	"github.com/google/uuid"

	"equity-trading-bot/internal/strategy"
)

// EpochStats holds the counters of one scan epoch, written once at terminal
// state.
type EpochStats struct {
	SymbolsTotal int           `json:"symbols_total"`
	Fetched      int           `json:"fetched"`
	CacheHits    int           `json:"cache_hits"`
	Candidates   int           `json:"candidates"`
	Persisted    int           `json:"persisted"`
	Notified     int           `json:"notified"`
	Failed       int           `json:"failed"`
	TimedOut     int           `json:"timed_out"`
	Duration     time.Duration `json:"duration"`
}

// ScanEpoch is one scan run: a set of categories under a hard deadline
type ScanEpoch struct {
	EpochID     string              `json:"epoch_id"`
	TriggerName string              `json:"trigger_name"`
	Categories  []strategy.Category `json:"categories"`
	TriggeredAt time.Time           `json:"triggered_at"`
	Deadline    time.Time           `json:"deadline"`
	Stats       EpochStats          `json:"stats"`
}

// NewEpoch creates a scan epoch with a fresh id and the given deadline
func NewEpoch(triggerName string, categories []strategy.Category, now time.Time, timeout time.Duration) *ScanEpoch {
	return &ScanEpoch{
		EpochID:     uuid.New().String()[:8],
		TriggerName: triggerName,
		Categories:  categories,
		TriggeredAt: now,
		Deadline:    now.Add(timeout),
	}
}

// Watchlists maps each category to the instruments it scans
type Watchlists map[strategy.Category][]string

// symbolPlan is the resolved fetch requirement for one instrument in one
// epoch: the union of its categories plus the coarsest interval and widest
// history window any of them needs.
type symbolPlan struct {
	symbol     string
	categories []strategy.Category
}

// symbolResult is the outcome of one per-symbol task
type symbolResult struct {
	symbol     string
	candidates []strategy.Candidate
	fetched    bool
	cacheHit   bool
	timedOut   bool
	err        error
}
