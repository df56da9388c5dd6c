package market

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Clock abstracts wall time and the exchange calendar so tests can drive
// virtual time. No component outside this file reads the wall clock.
type Clock interface {
	Now() time.Time
	InSession(t time.Time) bool
	SessionBounds(day time.Time) (open, close time.Time)
	NextFire(spec TriggerSpec, after time.Time) time.Time
}

// TriggerSpec is a cron-like schedule with minute and hour fields,
// interpreted in the exchange's civil timezone. SessionOnly restricts fires
// to market hours.
type TriggerSpec struct {
	raw         string
	minutes     [60]bool
	hours       [24]bool
	SessionOnly bool
}

func (s TriggerSpec) String() string {
	return s.raw
}

// ParseTriggerSpec parses a two-field "minute hour" expression. Each field
// accepts "*", "*/n", a single value, or a comma list (e.g. "0 10,14").
func ParseTriggerSpec(expr string, sessionOnly bool) (TriggerSpec, error) {
	fields := strings.Fields(expr)
	if len(fields) != 2 {
		return TriggerSpec{}, fmt.Errorf("trigger spec %q: want 2 fields (minute hour), got %d", expr, len(fields))
	}

	spec := TriggerSpec{raw: expr, SessionOnly: sessionOnly}
	if err := parseCronField(fields[0], spec.minutes[:], 60); err != nil {
		return TriggerSpec{}, fmt.Errorf("trigger spec %q: minute field: %w", expr, err)
	}
	if err := parseCronField(fields[1], spec.hours[:], 24); err != nil {
		return TriggerSpec{}, fmt.Errorf("trigger spec %q: hour field: %w", expr, err)
	}
	return spec, nil
}

func parseCronField(field string, set []bool, max int) error {
	switch {
	case field == "*":
		for i := range set {
			set[i] = true
		}
		return nil
	case strings.HasPrefix(field, "*/"):
		step, err := strconv.Atoi(field[2:])
		if err != nil || step <= 0 || step >= max {
			return fmt.Errorf("bad step %q", field)
		}
		for i := 0; i < max; i += step {
			set[i] = true
		}
		return nil
	default:
		for _, part := range strings.Split(field, ",") {
			v, err := strconv.Atoi(part)
			if err != nil || v < 0 || v >= max {
				return fmt.Errorf("bad value %q", part)
			}
			set[v] = true
		}
		return nil
	}
}

func (s TriggerSpec) matches(t time.Time) bool {
	return s.minutes[t.Minute()] && s.hours[t.Hour()]
}

// MarketClock is the production clock: wall time plus a single-exchange
// session calendar (weekdays only).
type MarketClock struct {
	loc          *time.Location
	openMinutes  int
	closeMinutes int
}

// NewMarketClock builds a clock for the given IANA timezone and session
// bounds in "HH:MM" form (e.g. "09:15", "15:30").
func NewMarketClock(timezone, sessionOpen, sessionClose string) (*MarketClock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	open, err := parseClockTime(sessionOpen)
	if err != nil {
		return nil, fmt.Errorf("session open: %w", err)
	}
	close, err := parseClockTime(sessionClose)
	if err != nil {
		return nil, fmt.Errorf("session close: %w", err)
	}
	if close <= open {
		return nil, fmt.Errorf("session close %s not after open %s", sessionClose, sessionOpen)
	}
	return &MarketClock{loc: loc, openMinutes: open, closeMinutes: close}, nil
}

func parseClockTime(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}

// Now returns the current wall time in the exchange timezone
func (c *MarketClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the exchange civil timezone
func (c *MarketClock) Location() *time.Location {
	return c.loc
}

// InSession reports whether t falls inside market hours on a trading day
func (c *MarketClock) InSession(t time.Time) bool {
	t = t.In(c.loc)
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= c.openMinutes && minutes < c.closeMinutes
}

// SessionBounds returns the open and close instants for the day containing t
func (c *MarketClock) SessionBounds(day time.Time) (time.Time, time.Time) {
	day = day.In(c.loc)
	open := time.Date(day.Year(), day.Month(), day.Day(), c.openMinutes/60, c.openMinutes%60, 0, 0, c.loc)
	close := time.Date(day.Year(), day.Month(), day.Day(), c.closeMinutes/60, c.closeMinutes%60, 0, 0, c.loc)
	return open, close
}

// NextFire returns the first instant strictly after `after` matching the
// spec. Scans minute by minute; a zero time means no fire within a year.
func (c *MarketClock) NextFire(spec TriggerSpec, after time.Time) time.Time {
	t := after.In(c.loc).Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(1, 0, 0)
	for t.Before(limit) {
		if spec.matches(t) && (!spec.SessionOnly || c.InSession(t)) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

// VirtualClock is a manually driven clock for tests. Session calendar and
// fire computation reuse MarketClock rules over the virtual time.
type VirtualClock struct {
	inner *MarketClock
	mu    sync.Mutex
	now   time.Time
}

// NewVirtualClock creates a virtual clock starting at the given instant
func NewVirtualClock(inner *MarketClock, start time.Time) *VirtualClock {
	return &VirtualClock{inner: inner, now: start.In(inner.loc)}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves virtual time forward
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps virtual time to the given instant
func (c *VirtualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.In(c.inner.loc)
}

func (c *VirtualClock) InSession(t time.Time) bool { return c.inner.InSession(t) }

func (c *VirtualClock) SessionBounds(day time.Time) (time.Time, time.Time) {
	return c.inner.SessionBounds(day)
}

func (c *VirtualClock) NextFire(spec TriggerSpec, after time.Time) time.Time {
	return c.inner.NextFire(spec, after)
}
