package market

import (
	"fmt"
	"math"
	"time"
)

// Interval represents a candle interval
type Interval string

const (
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval1D  Interval = "1D"
)

// IsIntraday reports whether the interval is shorter than one trading day
func (i Interval) IsIntraday() bool {
	return i != Interval1D
}

// Duration returns the approximate wall duration of one candle
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval1D:
		return 24 * time.Hour
	default:
		return 15 * time.Minute
	}
}

// Bar represents a single OHLCV candle
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Window is a half-open time range [From, To)
type Window struct {
	From time.Time
	To   time.Time
}

// BarSeries is an ordered sequence of bars of one interval for one instrument
type BarSeries struct {
	Symbol   string
	Interval Interval
	Bars     []Bar
}

// Len returns the number of bars in the series
func (s *BarSeries) Len() int {
	return len(s.Bars)
}

// Last returns the most recent bar; ok is false on an empty series
func (s *BarSeries) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Closes returns the close prices in series order
func (s *BarSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the volumes in series order as floats
func (s *BarSeries) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = float64(b.Volume)
	}
	return out
}

// Validate checks the series invariants: strictly increasing timestamps,
// non-negative prices and volume, last timestamp not in the future.
func (s *BarSeries) Validate(now time.Time) error {
	if s.Symbol == "" {
		return fmt.Errorf("bar series missing symbol")
	}
	for i, b := range s.Bars {
		if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 {
			return fmt.Errorf("%s: negative price at bar %d", s.Symbol, i)
		}
		if b.Volume < 0 {
			return fmt.Errorf("%s: negative volume at bar %d", s.Symbol, i)
		}
		if b.High < b.Low {
			return fmt.Errorf("%s: high below low at bar %d", s.Symbol, i)
		}
		if i > 0 && !b.Timestamp.After(s.Bars[i-1].Timestamp) {
			return fmt.Errorf("%s: non-increasing timestamp at bar %d", s.Symbol, i)
		}
	}
	if last, ok := s.Last(); ok && last.Timestamp.After(now) {
		return fmt.Errorf("%s: last bar timestamp %s is in the future", s.Symbol, last.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// Key identifies one cached data set: one instrument at one interval
type Key struct {
	Symbol   string
	Interval Interval
}

func (k Key) String() string {
	return k.Symbol + ":" + string(k.Interval)
}

// Undefined is the sentinel marking indicator values with insufficient history
var Undefined = math.NaN()

// Defined reports whether an indicator value carries real data
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

// IndicatorFrame maps indicator names to value sequences aligned with a
// BarSeries. Leading positions without enough history hold the Undefined
// sentinel. A frame is immutable once published.
type IndicatorFrame struct {
	Length int
	series map[string][]float64
}

// NewIndicatorFrame creates an empty frame for a series of the given length
func NewIndicatorFrame(length int) *IndicatorFrame {
	return &IndicatorFrame{
		Length: length,
		series: make(map[string][]float64),
	}
}

// Set stores a value sequence under the given name. The sequence length must
// match the frame length.
func (f *IndicatorFrame) Set(name string, values []float64) error {
	if len(values) != f.Length {
		return fmt.Errorf("indicator %s: length %d does not match frame length %d", name, len(values), f.Length)
	}
	f.series[name] = values
	return nil
}

// Get returns the full value sequence for an indicator
func (f *IndicatorFrame) Get(name string) ([]float64, bool) {
	v, ok := f.series[name]
	return v, ok
}

// At returns the indicator value at index i, or Undefined when absent
func (f *IndicatorFrame) At(name string, i int) float64 {
	v, ok := f.series[name]
	if !ok || i < 0 || i >= len(v) {
		return Undefined
	}
	return v[i]
}

// LastValue returns the most recent value for an indicator, or Undefined
func (f *IndicatorFrame) LastValue(name string) float64 {
	return f.At(name, f.Length-1)
}

// Names returns the indicator names present in the frame
func (f *IndicatorFrame) Names() []string {
	names := make([]string, 0, len(f.series))
	for name := range f.series {
		names = append(names, name)
	}
	return names
}

// SymbolData is an immutable snapshot of fetched bars plus derived
// indicators for one (instrument, interval). Owned by the cache; readers
// must not mutate it.
type SymbolData struct {
	Symbol     string
	Interval   Interval
	Series     *BarSeries
	Indicators *IndicatorFrame
	FetchedAt  time.Time
	ValidUntil time.Time
}

// Fresh reports whether the snapshot is still valid at the given time
func (d *SymbolData) Fresh(now time.Time) bool {
	return now.Before(d.ValidUntil)
}
