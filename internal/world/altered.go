package world

import (
	"sync"
	"time"

	"github.com/nidhogg/nuka-drive/internal/altered"
	"go.uber.org/zap"
)

// AlteredTicker decays every agent's altered state once per world minute.
type AlteredTicker struct {
	listFn   func() []AlteredStateHolder
	lastTick time.Time
	mu       sync.Mutex
	logger   *zap.Logger
}

// AlteredStateHolder is the part of an engine the ticker drives.
type AlteredStateHolder interface {
	ID() string
	TickAlteredState() bool
}

// NewAlteredTicker creates a ticker over the engines returned by listFn.
func NewAlteredTicker(listFn func() []AlteredStateHolder, logger *zap.Logger) *AlteredTicker {
	return &AlteredTicker{listFn: listFn, logger: logger}
}

// OnTick implements ClockListener. Catches up when world time jumped by more
// than one interval.
func (t *AlteredTicker) OnTick(worldTime time.Time) {
	t.mu.Lock()
	if t.lastTick.IsZero() {
		t.lastTick = worldTime
		t.mu.Unlock()
		return
	}
	n := int(worldTime.Sub(t.lastTick) / altered.TickInterval)
	if n <= 0 {
		t.mu.Unlock()
		return
	}
	t.lastTick = t.lastTick.Add(time.Duration(n) * altered.TickInterval)
	t.mu.Unlock()

	for _, e := range t.listFn() {
		for i := 0; i < n; i++ {
			if e.TickAlteredState() {
				t.logger.Info("altered state wore off", zap.String("agent", e.ID()))
				break
			}
		}
	}
}
