package strategy

import (
	"time"

	"equity-trading-bot/internal/market"
)

// Strategy is a pure evaluation over a bar series and its shared indicator
// frame. Implementations must be total: no panics, and an empty candidate
// list whenever the series is shorter than MinHistory or the needed
// indicator values are undefined.
type Strategy interface {
	Name() string
	Category() Category
	MinHistory() int
	Evaluate(series *market.BarSeries, frame *market.IndicatorFrame, now time.Time) []Candidate
}

// Registry holds the registered strategies grouped by category, preserving
// registration order within each category.
type Registry struct {
	byCategory map[Category][]Strategy
	order      map[string]int
	count      int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byCategory: make(map[Category][]Strategy),
		order:      make(map[string]int),
	}
}

// NewDefaultRegistry creates a registry with the built-in strategies
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewEMACrossover())
	r.Register(NewBreakout())
	r.Register(NewOverboughtRejection())
	r.Register(NewMomentum())
	r.Register(NewTrendFollow())
	return r
}

// Register appends a strategy to its category. A name registered twice keeps
// its original position.
func (r *Registry) Register(s Strategy) {
	if _, seen := r.order[s.Name()]; seen {
		return
	}
	r.order[s.Name()] = r.count
	r.count++
	r.byCategory[s.Category()] = append(r.byCategory[s.Category()], s)
}

// Count returns how many strategies are registered
func (r *Registry) Count() int {
	return r.count
}

// ForCategory returns the strategies for a category in registration order
func (r *Registry) ForCategory(category Category) []Strategy {
	return r.byCategory[category]
}

// MinBars returns the largest MinHistory any strategy in the category
// declares, i.e. how many bars a symbol fetch must cover to run them all.
func (r *Registry) MinBars(category Category) int {
	min := 0
	for _, s := range r.byCategory[category] {
		if s.MinHistory() > min {
			min = s.MinHistory()
		}
	}
	return min
}

// PickBest reduces candidates for one (symbol, category) pair to the single
// preferred candidate: highest confidence, ties broken by earliest
// registration. Returns nil on an empty input.
func (r *Registry) PickBest(candidates []Candidate) *Candidate {
	var best *Candidate
	for i := range candidates {
		c := &candidates[i]
		if best == nil {
			best = c
			continue
		}
		if c.Confidence > best.Confidence {
			best = c
			continue
		}
		if c.Confidence == best.Confidence && r.order[c.Strategy] < r.order[best.Strategy] {
			best = c
		}
	}
	return best
}
