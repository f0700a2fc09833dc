// Package altered manages the time-boxed altered-state modifier.
package altered

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nidhogg/nuka-drive/internal/traits"
	"go.uber.org/zap"
)

var (
	ErrAlreadyActive  = errors.New("altered state already active")
	ErrCooldownActive = errors.New("altered state cooldown active")
	ErrUnknownState   = errors.New("unknown altered state")
)

const (
	// TickInterval is the duration removed from the active modifier per tick.
	TickInterval    = time.Minute
	DefaultCooldown = 120 * time.Minute
)

// Kind names an altered-state definition.
type Kind string

const (
	Mellow  Kind = "mellow"
	Buoyant Kind = "buoyant"
	Dreamy  Kind = "dreamy"
)

// Definition describes an altered state that can be activated.
type Definition struct {
	Kind        Kind                     `json:"kind" yaml:"kind"`
	Description string                   `json:"description" yaml:"description"`
	Effects     map[traits.Field]float64 `json:"effects" yaml:"effects"`
	Duration    time.Duration            `json:"duration" yaml:"duration"`
}

// DefaultDefinitions returns the built-in altered states.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Kind:        Mellow,
			Description: "slow, calm and unbothered",
			Effects: map[traits.Field]float64{
				traits.Stress:   -0.2,
				traits.Focus:    -0.1,
				traits.Serenity: 0.2,
			},
			Duration: 60 * time.Minute,
		},
		{
			Kind:        Buoyant,
			Description: "energetic with a stream of surreal ideas",
			Effects: map[traits.Field]float64{
				traits.Energy:     0.15,
				traits.Enthusiasm: 0.2,
				traits.Whimsy:     0.15,
			},
			Duration: 45 * time.Minute,
		},
		{
			Kind:        Dreamy,
			Description: "wandering, introspective thoughts",
			Effects: map[traits.Field]float64{
				traits.Curiosity:            0.2,
				traits.ExistentialCuriosity: 0.15,
				traits.Focus:                -0.15,
			},
			Duration: 90 * time.Minute,
		},
	}
}

// Modifier is the active altered state.
type Modifier struct {
	Kind        Kind                     `json:"kind"`
	Effects     map[traits.Field]float64 `json:"effects"`
	Remaining   time.Duration            `json:"remaining"`
	ActivatedAt time.Time                `json:"activated_at"`
}

// State is the persisted form of a Tracker.
type State struct {
	Active      *Modifier  `json:"active,omitempty"`
	LastExpired *time.Time `json:"last_expired,omitempty"`
}

// Tracker holds at most one active modifier and the cooldown stamp of the
// last one to expire. Not safe for concurrent use.
type Tracker struct {
	defs        map[Kind]Definition
	cooldown    time.Duration
	active      *Modifier
	lastExpired time.Time
	logger      *zap.Logger
}

// NewTracker creates a tracker. A nil or empty defs uses the built-in states;
// a non-positive cooldown uses DefaultCooldown.
func NewTracker(defs []Definition, cooldown time.Duration, logger *zap.Logger) *Tracker {
	if len(defs) == 0 {
		defs = DefaultDefinitions()
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	t := &Tracker{
		defs:     make(map[Kind]Definition, len(defs)),
		cooldown: cooldown,
		logger:   logger,
	}
	for _, d := range defs {
		t.defs[d.Kind] = d
	}
	return t
}

// Kinds lists the activatable states in name order.
func (t *Tracker) Kinds() []Kind {
	out := make([]Kind, 0, len(t.defs))
	for k := range t.defs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Definition looks up a state by kind.
func (t *Tracker) Definition(kind Kind) (Definition, bool) {
	d, ok := t.defs[kind]
	return d, ok
}

// Activate applies kind's effects once through s and starts its timer.
func (t *Tracker) Activate(kind Kind, now time.Time, s *traits.Store) (Modifier, error) {
	def, ok := t.defs[kind]
	if !ok {
		return Modifier{}, fmt.Errorf("%w: %q", ErrUnknownState, kind)
	}
	if t.active != nil {
		return Modifier{}, fmt.Errorf("%w: %s", ErrAlreadyActive, t.active.Kind)
	}
	if until := t.CooldownUntil(); now.Before(until) {
		return Modifier{}, fmt.Errorf("%w: %s remaining", ErrCooldownActive, until.Sub(now).Round(time.Second))
	}

	effects := make(map[traits.Field]float64, len(def.Effects))
	for f, d := range def.Effects {
		s.Adjust(f, d, "altered state "+string(kind))
		effects[f] = d
	}
	t.active = &Modifier{
		Kind:        kind,
		Effects:     effects,
		Remaining:   def.Duration,
		ActivatedAt: now,
	}
	t.logger.Info("altered state activated",
		zap.String("kind", string(kind)),
		zap.Duration("duration", def.Duration))
	return *t.active, nil
}

// Tick decays the active modifier by one TickInterval. It reports whether the
// modifier expired on this tick.
func (t *Tracker) Tick(now time.Time) bool {
	if t.active == nil {
		return false
	}
	t.active.Remaining -= TickInterval
	if t.active.Remaining > 0 {
		return false
	}
	t.logger.Info("altered state expired", zap.String("kind", string(t.active.Kind)))
	t.active = nil
	t.lastExpired = now
	return true
}

// Active returns a copy of the active modifier.
func (t *Tracker) Active() (Modifier, bool) {
	if t.active == nil {
		return Modifier{}, false
	}
	m := *t.active
	m.Effects = make(map[traits.Field]float64, len(t.active.Effects))
	for f, d := range t.active.Effects {
		m.Effects[f] = d
	}
	return m, true
}

// LastExpired is the cooldown stamp. Zero when nothing has expired yet.
func (t *Tracker) LastExpired() time.Time { return t.lastExpired }

// CooldownUntil is the earliest time a new state may be activated.
func (t *Tracker) CooldownUntil() time.Time {
	if t.lastExpired.IsZero() {
		return time.Time{}
	}
	return t.lastExpired.Add(t.cooldown)
}

// State exports the tracker for persistence.
func (t *Tracker) State() State {
	var st State
	if m, ok := t.Active(); ok {
		st.Active = &m
	}
	if !t.lastExpired.IsZero() {
		ts := t.lastExpired
		st.LastExpired = &ts
	}
	return st
}

// Restore replaces the tracker's state. Effects are not re-applied.
func (t *Tracker) Restore(st State) {
	t.active = nil
	t.lastExpired = time.Time{}
	if st.Active != nil {
		m := *st.Active
		t.active = &m
	}
	if st.LastExpired != nil {
		t.lastExpired = *st.LastExpired
	}
}
