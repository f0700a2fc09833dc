package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// 2026-10-14 is a Wednesday, 2026-10-17 a Saturday.
func wed(hour int) time.Time { return time.Date(2026, 10, 14, hour, 30, 0, 0, time.UTC) }
func sat(hour int) time.Time { return time.Date(2026, 10, 17, hour, 30, 0, 0, time.UTC) }

func TestBands(t *testing.T) {
	cases := []struct {
		hour    int
		band    Band
		energy  float64
		weekend float64
	}{
		{6, Morning, 1.2, 1.0},
		{11, Morning, 1.2, 1.0},
		{12, Afternoon, 1.0, 1.0},
		{17, Afternoon, 1.0, 1.0},
		{18, Evening, 0.8, 1.1},
		{21, Evening, 0.8, 1.1},
		{22, Night, 0.6, 1.0},
		{0, Night, 0.6, 1.0},
		{5, Night, 0.6, 1.0},
	}
	for _, tc := range cases {
		ctx := At(wed(tc.hour))
		assert.Equal(t, tc.hour, ctx.Hour)
		assert.Equal(t, tc.band, ctx.Band, "hour %d", tc.hour)
		assert.Equal(t, tc.energy, ctx.EnergyModifier, "hour %d", tc.hour)
		assert.Equal(t, tc.weekend, ctx.WeekendModifier, "hour %d", tc.hour)
		assert.False(t, ctx.IsWeekend)
	}
}

func TestWeekendBoost(t *testing.T) {
	ctx := At(sat(9))
	assert.True(t, ctx.IsWeekend)
	assert.InDelta(t, 1.3, ctx.WeekendModifier, 1e-12)

	ctx = At(sat(19))
	assert.InDelta(t, 1.43, ctx.WeekendModifier, 1e-12)
	assert.Equal(t, 0.8, ctx.EnergyModifier)
}

func TestFixedClock(t *testing.T) {
	c := NewFixedClock(wed(7))
	assert.Equal(t, Morning, NowContext(c).Band)
	c.Advance(6 * time.Hour)
	assert.Equal(t, Afternoon, NowContext(c).Band)
	c.Set(sat(23))
	ctx := NowContext(c)
	assert.Equal(t, Night, ctx.Band)
	assert.True(t, ctx.IsWeekend)
}
