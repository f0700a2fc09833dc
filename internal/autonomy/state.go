package autonomy

import (
	"fmt"
	"time"

	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/altered"
	"github.com/nidhogg/nuka-drive/internal/conflict"
	"github.com/nidhogg/nuka-drive/internal/desire"
	"github.com/nidhogg/nuka-drive/internal/history"
	"github.com/nidhogg/nuka-drive/internal/traits"
	"go.uber.org/zap"
)

// State is everything an engine persists between restarts.
type State struct {
	AgentID  string           `json:"agent_id"`
	Traits   traits.Vector    `json:"traits"`
	History  []history.Record `json:"history"`
	Altered  altered.State    `json:"altered"`
	Insights []Insight        `json:"insights,omitempty"`
	SavedAt  time.Time        `json:"saved_at"`
}

// State exports the engine for persistence.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := State{
		AgentID: e.id,
		Traits:  e.store.Vector(),
		History: e.history.Recent(history.Capacity),
		Altered: e.tracker.State(),
		SavedAt: e.clock.Now(),
	}
	if len(e.insights) > 0 {
		st.Insights = append([]Insight(nil), e.insights...)
	}
	return st
}

// RestoreState replaces the engine's state. If any part fails validation the
// whole state is rejected, the engine is reset to defaults and the error wraps
// traits.ErrCorruptedSnapshot.
func (e *Engine) RestoreState(st State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateState(st); err != nil {
		e.logger.Error("rejecting engine state", zap.Error(err))
		e.store.Reset("corrupted state")
		e.history = history.New()
		e.tracker.Restore(altered.State{})
		e.insights = nil
		return err
	}

	if err := e.store.Replace(st.Traits, "restore state"); err != nil {
		return err
	}
	e.history = history.FromRecords(st.History)
	e.tracker.Restore(st.Altered)
	e.insights = append([]Insight(nil), st.Insights...)
	if n := len(e.insights); n > MaxInsights {
		e.insights = e.insights[n-MaxInsights:]
	}
	e.logger.Info("engine state restored",
		zap.Int("records", len(st.History)),
		zap.Time("saved_at", st.SavedAt))
	return nil
}

func validateState(st State) error {
	if err := traits.Validate(st.Traits); err != nil {
		return err
	}
	for _, r := range st.History {
		if r.Probability < 0 || r.Probability > 1 {
			return fmt.Errorf("%w: record %s probability %v", traits.ErrCorruptedSnapshot, r.ID, r.Probability)
		}
		if err := traits.Validate(r.TraitSnapshot); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
	}
	return nil
}

// Summary is a point-in-time report of the engine.
type Summary struct {
	AgentID       string                    `json:"agent_id"`
	Traits        traits.Vector             `json:"traits"`
	Desires       map[activity.Kind]float64 `json:"desires"`
	Voices        []conflict.Voice          `json:"voices"`
	Altered       *altered.Modifier         `json:"altered_state,omitempty"`
	CooldownUntil *time.Time                `json:"cooldown_until,omitempty"`
	Decisions     int                       `json:"decisions"`
	Chosen        int                       `json:"chosen"`
	Insights      []Insight                 `json:"insights,omitempty"`
}

// Summary reports current traits, per-activity desire and recent activity.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := e.store.Vector()
	s := Summary{
		AgentID: e.id,
		Traits:  v,
		Desires: make(map[activity.Kind]float64, len(activity.All)),
		Voices:  conflict.Voices(v),
	}
	for _, k := range activity.All {
		s.Desires[k] = desire.Score(k, v)
	}
	if m, ok := e.tracker.Active(); ok {
		s.Altered = &m
	}
	if until := e.tracker.CooldownUntil(); until.After(e.clock.Now()) {
		s.CooldownUntil = &until
	}
	for _, r := range e.history.Recent(history.Capacity) {
		s.Decisions++
		if r.Chosen {
			s.Chosen++
		}
	}
	s.Insights = make([]Insight, len(e.insights))
	copy(s.Insights, e.insights)
	return s
}
