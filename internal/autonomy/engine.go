// Package autonomy is the per-agent decision engine. It ties traits, desire,
// conflict, temporal context, choice sampling, history, learning and the
// altered state together behind one mutex.
package autonomy

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/altered"
	"github.com/nidhogg/nuka-drive/internal/choice"
	"github.com/nidhogg/nuka-drive/internal/conflict"
	"github.com/nidhogg/nuka-drive/internal/desire"
	"github.com/nidhogg/nuka-drive/internal/history"
	"github.com/nidhogg/nuka-drive/internal/learning"
	"github.com/nidhogg/nuka-drive/internal/temporal"
	"github.com/nidhogg/nuka-drive/internal/traits"
	"go.uber.org/zap"
)

// MaxInsights is how many corrections are kept for the learning report.
const MaxInsights = 10

var (
	ErrUnknownTrait = errors.New("unknown trait field")
	ErrUnknownStage = errors.New("unknown relationship stage")
)

// Options configures a new Engine. Zero values fall back to defaults.
type Options struct {
	ID       string
	Seed     *traits.Vector
	Clock    temporal.Clock
	RNG      choice.RNG
	Altered  []altered.Definition
	Cooldown time.Duration
}

// Engine is a single agent's decision engine. All methods are safe for
// concurrent use.
type Engine struct {
	id       string
	mu       sync.Mutex
	store    *traits.Store
	history  *history.History
	tracker  *altered.Tracker
	insights []Insight
	clock    temporal.Clock
	rng      choice.RNG
	logger   *zap.Logger
}

// Insight is a correction remembered for the learning report.
type Insight struct {
	Kind   activity.Kind            `json:"kind"`
	Reason string                   `json:"reason,omitempty"`
	Deltas map[traits.Field]float64 `json:"deltas"`
	At     time.Time                `json:"at"`
}

// DecisionContext carries caller-known inputs to a decision.
type DecisionContext struct {
	// HoursSinceContact is the time since the last social contact. Zero or
	// negative means unknown.
	HoursSinceContact float64
	// Source names the caller for logging, e.g. "heartbeat" or "api".
	Source string
}

// Decision is the full result of one decide call.
type Decision struct {
	RecordID       string           `json:"record_id"`
	Kind           activity.Kind    `json:"kind"`
	Chosen         bool             `json:"chosen"`
	Probability    float64          `json:"probability"`
	Desire         desire.Result    `json:"desire"`
	ConflictFactor float64          `json:"conflict_factor"`
	DominantVoice  *conflict.Voice  `json:"dominant_voice,omitempty"`
	Synthesis      choice.Outcome   `json:"synthesis"`
	Temporal       temporal.Context `json:"temporal"`
}

// New creates an engine from opts.
func New(opts Options, logger *zap.Logger) *Engine {
	seed := traits.Defaults()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if opts.Clock == nil {
		opts.Clock = temporal.SystemClock{}
	}
	if opts.RNG == nil {
		opts.RNG = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	logger = logger.With(zap.String("agent", opts.ID))
	return &Engine{
		id:      opts.ID,
		store:   traits.NewStore(seed, logger),
		history: history.New(),
		tracker: altered.NewTracker(opts.Altered, opts.Cooldown, logger),
		clock:   opts.Clock,
		rng:     opts.RNG,
		logger:  logger,
	}
}

// ID returns the agent ID this engine belongs to.
func (e *Engine) ID() string { return e.id }

// Clock returns the engine's time source.
func (e *Engine) Clock() temporal.Clock { return e.clock }

// Decide reports whether the agent chooses to perform kind now.
func (e *Engine) Decide(kind activity.Kind, dc DecisionContext) bool {
	return e.DecideDetailed(kind, dc).Chosen
}

// DecideDetailed runs the full pipeline and records the decision in history.
// Traits are not modified.
func (e *Engine) DecideDetailed(kind activity.Kind, dc DecisionContext) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !kind.Valid() {
		e.logger.Warn("deciding unknown activity kind", zap.String("kind", string(kind)))
	}

	in := desire.DefaultInputs()
	if dc.HoursSinceContact > 0 {
		in.HoursSinceContact = dc.HoursSinceContact
	}

	now := e.clock.Now()
	snap := e.store.Vector()
	tc := temporal.At(now)

	d := desire.Evaluate(kind, snap, in)
	cf, voice := conflict.Resolve(kind, snap)
	out := choice.Synthesize(d.Score, cf, tc, snap)
	chosen := choice.Sample(out.Probability, e.rng)

	factors := d.Breakdown()
	factors["conflict_factor"] = cf
	factors["sigmoid"] = out.Sigmoid
	factors["confidence_modifier"] = out.Confidence
	factors["whimsy_influence"] = out.Whimsy
	factors["raw_probability"] = out.Raw

	rec := history.Record{
		ID:            uuid.New().String(),
		Timestamp:     now,
		Kind:          kind,
		Chosen:        chosen,
		Probability:   out.Probability,
		DesireScore:   d.Score,
		Factors:       factors,
		TraitSnapshot: snap,
		DominantVoice: voice,
		Temporal:      tc,
	}
	e.history.Append(rec)

	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.Bool("chosen", chosen),
		zap.Float64("probability", out.Probability),
		zap.Float64("desire", d.Score),
		zap.Float64("conflict", cf),
	}
	if dc.Source != "" {
		fields = append(fields, zap.String("source", dc.Source))
	}
	e.logger.Info("autonomous decision", fields...)

	return Decision{
		RecordID:       rec.ID,
		Kind:           kind,
		Chosen:         chosen,
		Probability:    out.Probability,
		Desire:         d,
		ConflictFactor: cf,
		DominantVoice:  voice,
		Synthesis:      out,
		Temporal:       tc,
	}
}

// ApplyFeedback adjusts traits for outcome and annotates the newest
// unannotated record of kind. Praise and correction go to a chosen record
// when one is available, not_chosen to a declined one.
func (e *Engine) ApplyFeedback(kind activity.Kind, outcome learning.Outcome) history.Annotation {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := learning.Apply(e.store, kind, outcome, e.clock.Now())

	_, declined := outcome.(learning.NotChosen)
	if rec, ok := e.history.LatestUnannotated(kind, !declined); ok {
		if err := e.history.Annotate(rec.ID, a); err != nil {
			e.logger.Warn("choice not annotated",
				zap.String("record", rec.ID),
				zap.Error(err))
		}
	}

	if _, corrected := outcome.(learning.Corrected); corrected {
		e.insights = append(e.insights, Insight{
			Kind:   kind,
			Reason: a.Reason,
			Deltas: maps.Clone(a.Deltas),
			At:     a.At,
		})
		if n := len(e.insights); n > MaxInsights {
			e.insights = append([]Insight(nil), e.insights[n-MaxInsights:]...)
		}
	}

	e.logger.Info("feedback applied",
		zap.String("kind", string(kind)),
		zap.String("outcome", a.Outcome),
		zap.String("reason", a.Reason))
	return a
}

// Snapshot returns a copy of the current trait vector.
func (e *Engine) Snapshot() traits.Vector {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Vector()
}

// Restore replaces the trait vector. A vector that fails validation is
// rejected, the traits are reset to defaults and the error wraps
// traits.ErrCorruptedSnapshot.
func (e *Engine) Restore(v traits.Vector) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Replace(v, "restore"); err != nil {
		e.logger.Error("rejecting trait snapshot", zap.Error(err))
		e.store.Reset("corrupted snapshot")
		return err
	}
	return nil
}

// SetTrait writes a single trait, clamped to [0,1].
func (e *Engine) SetTrait(f traits.Field, value float64, reason string) (float64, error) {
	if !f.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTrait, f)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Set(f, value, reason), nil
}

// SetStage changes the relationship stage.
func (e *Engine) SetStage(stage traits.Stage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.store.SetStage(stage, "mentor") {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	return nil
}

// ActivateAlteredState starts an altered state. It fails with
// altered.ErrAlreadyActive, altered.ErrCooldownActive or
// altered.ErrUnknownState.
func (e *Engine) ActivateAlteredState(kind altered.Kind) (altered.Modifier, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Activate(kind, e.clock.Now(), e.store)
}

// TickAlteredState decays the active altered state by one interval and
// reports whether it expired.
func (e *Engine) TickAlteredState() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Tick(e.clock.Now())
}

// AlteredState returns the active modifier, if any.
func (e *Engine) AlteredState() (altered.Modifier, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Active()
}

// AlteredKinds lists the states that can be activated.
func (e *Engine) AlteredKinds() []altered.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Kinds()
}

// Recent returns up to n records, oldest first.
func (e *Engine) Recent(n int) []history.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Recent(n)
}

// Record returns a copy of the stored record id, if it is still retained.
func (e *Engine) Record(id string) (history.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Get(id)
}

// Insights returns the retained corrections, oldest first.
func (e *Engine) Insights() []Insight {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Insight, len(e.insights))
	copy(out, e.insights)
	return out
}

// DecayMood drifts mood toward its resting values.
func (e *Engine) DecayMood() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.DecayMood()
}

// DrainEnergy applies one step of natural energy loss.
func (e *Engine) DrainEnergy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.DrainEnergy()
}

// ApplyCatharsis applies the effects of a completed cathartic creation.
func (e *Engine) ApplyCatharsis(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.ApplyCatharsis(reason)
}
