package world

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HeartbeatFunc is called when an agent's heartbeat fires.
type HeartbeatFunc func(ctx context.Context, agentID string) error

// ListAgentIDsFunc returns all registered agent IDs.
type ListAgentIDsFunc func() []string

// Heartbeat is a ClockListener that runs an autonomy round for every agent
// once per interval of world time.
type Heartbeat struct {
	interval time.Duration // how often (in world-time) to fire
	timeout  time.Duration
	lastBeat time.Time
	beats    int
	agentIDs []string
	beatFn   HeartbeatFunc
	listFn   ListAgentIDsFunc
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewHeartbeat creates a heartbeat listener.
func NewHeartbeat(interval time.Duration, beatFn HeartbeatFunc, listFn ListAgentIDsFunc, logger *zap.Logger) *Heartbeat {
	return &Heartbeat{
		interval: interval,
		timeout:  30 * time.Second,
		beatFn:   beatFn,
		listFn:   listFn,
		logger:   logger,
	}
}

// Interval returns the world-time interval between beats.
func (h *Heartbeat) Interval() time.Duration { return h.interval }

// Beats returns how many rounds have fired.
func (h *Heartbeat) Beats() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.beats
}

// SetAgents pins the agents that receive heartbeats. An empty list falls back
// to the list function.
func (h *Heartbeat) SetAgents(ids []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.agentIDs = ids
}

// FireNow forces an immediate heartbeat for all agents, bypassing the interval check.
func (h *Heartbeat) FireNow() int {
	h.mu.Lock()
	h.beats++
	h.mu.Unlock()
	return h.fire("forced heartbeat")
}

// OnTick implements ClockListener.
func (h *Heartbeat) OnTick(worldTime time.Time) {
	h.mu.Lock()
	if h.lastBeat.IsZero() {
		h.lastBeat = worldTime
		h.mu.Unlock()
		return
	}
	if worldTime.Sub(h.lastBeat) < h.interval {
		h.mu.Unlock()
		return
	}
	h.lastBeat = worldTime
	h.beats++
	h.mu.Unlock()

	h.fire("heartbeat")
}

func (h *Heartbeat) agents() []string {
	h.mu.Lock()
	agents := make([]string, len(h.agentIDs))
	copy(agents, h.agentIDs)
	h.mu.Unlock()

	if len(agents) == 0 && h.listFn != nil {
		agents = h.listFn()
	}
	return agents
}

func (h *Heartbeat) fire(label string) int {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	fired := 0
	for _, id := range h.agents() {
		if err := h.beatFn(ctx, id); err != nil {
			h.logger.Warn(label+" failed",
				zap.String("agent", id),
				zap.Error(err))
			continue
		}
		fired++
		h.logger.Debug(label+" fired", zap.String("agent", id))
	}
	return fired
}
