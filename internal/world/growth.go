package world

import (
	"sync"
	"time"

	"github.com/nidhogg/nuka-drive/internal/traits"
	"go.uber.org/zap"
)

// StageThreshold is what a relationship needs to reach Stage.
type StageThreshold struct {
	Stage        traits.Stage
	Interactions int
	Age          time.Duration
}

// DefaultThresholds promote a mentor relationship as it accumulates
// interactions and time.
var DefaultThresholds = []StageThreshold{
	{Stage: traits.StageDeveloping, Interactions: 10, Age: 7 * 24 * time.Hour},
	{Stage: traits.StageMature, Interactions: 40, Age: 30 * 24 * time.Hour},
}

// Evolution records a relationship stage change.
type Evolution struct {
	From traits.Stage `json:"from"`
	To   traits.Stage `json:"to"`
	At   time.Time    `json:"at"`
}

// Relationship is an agent's running relationship with its mentor.
type Relationship struct {
	AgentID      string       `json:"agent_id"`
	Stage        traits.Stage `json:"stage"`
	Interactions int          `json:"interactions"`
	Since        time.Time    `json:"since"`
	Evolutions   []Evolution  `json:"evolutions"`
}

// StageSetter is the part of an engine the tracker drives.
type StageSetter interface {
	SetStage(traits.Stage) error
}

// GrowthTracker evolves the relationship stage from mentor interactions.
type GrowthTracker struct {
	relations  map[string]*Relationship // agentID -> relationship
	thresholds []StageThreshold
	mu         sync.Mutex
	logger     *zap.Logger
}

// NewGrowthTracker creates a tracker. A nil thresholds uses DefaultThresholds.
func NewGrowthTracker(thresholds []StageThreshold, logger *zap.Logger) *GrowthTracker {
	if thresholds == nil {
		thresholds = DefaultThresholds
	}
	return &GrowthTracker{
		relations:  make(map[string]*Relationship),
		thresholds: thresholds,
		logger:     logger,
	}
}

// Get returns a copy of the agent's relationship.
func (t *GrowthTracker) Get(agentID string) (Relationship, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.relations[agentID]
	if !ok {
		return Relationship{}, false
	}
	out := *r
	out.Evolutions = append([]Evolution(nil), r.Evolutions...)
	return out, true
}

// RecordInteraction counts one mentor interaction at now and promotes the
// stage through e when a threshold is met. It returns the new stage if the
// relationship evolved.
func (t *GrowthTracker) RecordInteraction(agentID string, current traits.Stage, e StageSetter, now time.Time) (traits.Stage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.getOrCreate(agentID, current, now)
	r.Interactions++

	next := r.Stage
	for _, th := range t.thresholds {
		if r.Interactions >= th.Interactions && now.Sub(r.Since) >= th.Age {
			next = th.Stage
		}
	}
	if rank(next) <= rank(r.Stage) {
		return r.Stage, false
	}
	if err := e.SetStage(next); err != nil {
		t.logger.Warn("stage evolution rejected", zap.String("agent", agentID), zap.Error(err))
		return r.Stage, false
	}
	r.Evolutions = append(r.Evolutions, Evolution{From: r.Stage, To: next, At: now})
	t.logger.Info("relationship evolved",
		zap.String("agent", agentID),
		zap.String("from", string(r.Stage)),
		zap.String("to", string(next)),
		zap.Int("interactions", r.Interactions))
	r.Stage = next
	return next, true
}

// getOrCreate returns or initializes a relationship (caller must hold lock).
func (t *GrowthTracker) getOrCreate(agentID string, stage traits.Stage, now time.Time) *Relationship {
	r, ok := t.relations[agentID]
	if !ok {
		r = &Relationship{AgentID: agentID, Stage: stage, Since: now}
		t.relations[agentID] = r
	}
	return r
}

func rank(s traits.Stage) int {
	switch s {
	case traits.StageDeveloping:
		return 1
	case traits.StageMature:
		return 2
	}
	return 0
}
