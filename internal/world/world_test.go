package world

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Wednesday 10:00.
var start = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

type tickRecorder struct {
	mu    sync.Mutex
	ticks []time.Time
}

func (r *tickRecorder) OnTick(wt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, wt)
}

func (r *tickRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

func TestWorldClockAdvance(t *testing.T) {
	c := NewWorldClock(start, time.Second, 60, zap.NewNop())
	rec := &tickRecorder{}
	c.AddListener(rec)

	c.Advance(time.Minute)
	c.Advance(time.Minute)

	if got := c.Now(); !got.Equal(start.Add(2 * time.Minute)) {
		t.Fatalf("expected world time %v, got %v", start.Add(2*time.Minute), got)
	}
	if rec.count() != 2 {
		t.Fatalf("expected 2 ticks, got %d", rec.count())
	}
	if !rec.ticks[1].Equal(c.Now()) {
		t.Errorf("listener saw %v, want %v", rec.ticks[1], c.Now())
	}
}

func TestWorldClockStartStop(t *testing.T) {
	c := NewWorldClock(start, time.Millisecond, 60, zap.NewNop())
	rec := &tickRecorder{}
	c.AddListener(rec)

	c.Start()
	c.Start()
	if !c.Running() {
		t.Fatal("clock should be running")
	}
	deadline := time.Now().Add(2 * time.Second)
	for rec.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	c.Stop()
	c.Stop()

	if rec.count() < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", rec.count())
	}
	if c.Running() {
		t.Error("clock should be stopped")
	}
	if !c.Now().After(start) {
		t.Error("world time did not advance")
	}
}

func TestHeartbeatInterval(t *testing.T) {
	var calls atomic.Int32
	beat := func(ctx context.Context, id string) error {
		calls.Add(1)
		return nil
	}
	h := NewHeartbeat(30*time.Minute, beat, func() []string { return []string{"aurora", "blaze"} }, zap.NewNop())

	h.OnTick(start)
	h.OnTick(start.Add(29 * time.Minute))
	if calls.Load() != 0 {
		t.Fatalf("expected no beats before interval, got %d", calls.Load())
	}
	h.OnTick(start.Add(30 * time.Minute))
	if calls.Load() != 2 {
		t.Fatalf("expected 2 beats, got %d", calls.Load())
	}
	h.OnTick(start.Add(45 * time.Minute))
	if calls.Load() != 2 {
		t.Errorf("expected no extra beats, got %d", calls.Load())
	}
	if h.Beats() != 1 {
		t.Errorf("expected 1 round, got %d", h.Beats())
	}
}

func TestHeartbeatFireNow(t *testing.T) {
	beat := func(ctx context.Context, id string) error {
		if id == "broken" {
			return errors.New("boom")
		}
		return nil
	}
	h := NewHeartbeat(time.Hour, beat, nil, zap.NewNop())
	h.SetAgents([]string{"aurora", "broken", "blaze"})

	if fired := h.FireNow(); fired != 2 {
		t.Fatalf("expected 2 successful beats, got %d", fired)
	}
	if h.Beats() != 1 {
		t.Errorf("expected 1 round, got %d", h.Beats())
	}
}
