package strategy

import (
	"fmt"
	"time"

	"equity-trading-bot/internal/market"
)

// Category identifies one of the trading styles the scanner runs
type Category string

const (
	CategoryDayTrading   Category = "DAY_TRADING"
	CategoryShortSelling Category = "SHORT_SELLING"
	CategoryShortTerm    Category = "SHORT_TERM"
	CategoryLongTerm     Category = "LONG_TERM"
)

// AllCategories returns the closed category set in canonical order
func AllCategories() []Category {
	return []Category{CategoryDayTrading, CategoryShortSelling, CategoryShortTerm, CategoryLongTerm}
}

// Valid reports whether the category is a member of the closed set
func (c Category) Valid() bool {
	switch c {
	case CategoryDayTrading, CategoryShortSelling, CategoryShortTerm, CategoryLongTerm:
		return true
	}
	return false
}

// Interval returns the candle interval the category's strategies evaluate on
func (c Category) Interval() market.Interval {
	switch c {
	case CategoryDayTrading, CategoryShortSelling:
		return market.Interval15m
	case CategoryShortTerm:
		return market.Interval1h
	case CategoryLongTerm:
		return market.Interval1D
	default:
		return market.Interval15m
	}
}

// HistoryWindow returns how far back the category needs bars
func (c Category) HistoryWindow() time.Duration {
	switch c {
	case CategoryDayTrading, CategoryShortSelling:
		return 5 * 24 * time.Hour
	case CategoryShortTerm:
		return 30 * 24 * time.Hour
	case CategoryLongTerm:
		return 365 * 24 * time.Hour
	default:
		return 5 * 24 * time.Hour
	}
}

// Side is the direction of a candidate trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Candidate is a potential trade produced by one strategy for one symbol
type Candidate struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Entry      float64   `json:"entry"`
	Stop       float64   `json:"stop"`
	Target     float64   `json:"target"`
	Confidence float64   `json:"confidence"`
	Strategy   string    `json:"strategy"`
	Category   Category  `json:"category"`
	Reason     string    `json:"reason,omitempty"`
	ProducedAt time.Time `json:"produced_at"`
}

// Validate checks the price ordering and confidence invariants. A BUY needs
// stop < entry < target; a SELL needs target < entry < stop.
func (c *Candidate) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("candidate missing symbol")
	}
	if !c.Category.Valid() {
		return fmt.Errorf("%s: unknown category %q", c.Symbol, c.Category)
	}
	if c.Strategy == "" {
		return fmt.Errorf("%s: candidate missing strategy name", c.Symbol)
	}
	if c.Entry <= 0 || c.Stop <= 0 || c.Target <= 0 {
		return fmt.Errorf("%s: non-positive price level", c.Symbol)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("%s: confidence %.3f outside [0,1]", c.Symbol, c.Confidence)
	}
	switch c.Side {
	case SideBuy:
		if !(c.Stop < c.Entry && c.Entry < c.Target) {
			return fmt.Errorf("%s: BUY levels must satisfy stop < entry < target (%.2f / %.2f / %.2f)",
				c.Symbol, c.Stop, c.Entry, c.Target)
		}
	case SideSell:
		if !(c.Target < c.Entry && c.Entry < c.Stop) {
			return fmt.Errorf("%s: SELL levels must satisfy target < entry < stop (%.2f / %.2f / %.2f)",
				c.Symbol, c.Target, c.Entry, c.Stop)
		}
	default:
		return fmt.Errorf("%s: unknown side %q", c.Symbol, c.Side)
	}
	return nil
}

// RiskPerShare returns the absolute distance between entry and stop
func (c *Candidate) RiskPerShare() float64 {
	if c.Side == SideSell {
		return c.Stop - c.Entry
	}
	return c.Entry - c.Stop
}
