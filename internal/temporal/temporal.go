// Package temporal derives time-of-day and weekend modifiers from a clock.
package temporal

import (
	"sync"
	"time"
)

// Clock is the engine's time source.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock, optionally in a fixed location.
type SystemClock struct {
	Location *time.Location
}

// Now implements Clock.
func (c SystemClock) Now() time.Time {
	if c.Location != nil {
		return time.Now().In(c.Location)
	}
	return time.Now()
}

// FixedClock returns a settable instant. Safe for concurrent use.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Band is a coarse part of the day.
type Band string

const (
	Morning   Band = "morning"
	Afternoon Band = "afternoon"
	Evening   Band = "evening"
	Night     Band = "night"
)

const weekendBoost = 1.3

// Context is the temporal input to a decision.
type Context struct {
	Hour            int     `json:"hour"`
	IsWeekend       bool    `json:"is_weekend"`
	Band            Band    `json:"band"`
	EnergyModifier  float64 `json:"energy_modifier"`
	WeekendModifier float64 `json:"weekend_modifier"`
}

// NowContext reads the clock and derives the context.
func NowContext(c Clock) Context {
	return At(c.Now())
}

// At derives the context for a given instant, in the instant's location.
func At(t time.Time) Context {
	hour := t.Hour()
	ctx := Context{
		Hour:            hour,
		WeekendModifier: 1.0,
	}
	switch {
	case hour >= 6 && hour < 12:
		ctx.Band, ctx.EnergyModifier = Morning, 1.2
	case hour >= 12 && hour < 18:
		ctx.Band, ctx.EnergyModifier = Afternoon, 1.0
	case hour >= 18 && hour < 22:
		ctx.Band, ctx.EnergyModifier = Evening, 0.8
		ctx.WeekendModifier = 1.1
	default:
		ctx.Band, ctx.EnergyModifier = Night, 0.6
	}

	wd := t.Weekday()
	ctx.IsWeekend = wd == time.Saturday || wd == time.Sunday
	if ctx.IsWeekend {
		ctx.WeekendModifier *= weekendBoost
	}
	return ctx
}
