package traits

import (
	"go.uber.org/zap"
)

// Store owns a trait vector and is the only way to mutate it.
// Every write is clamped and logged. Store is not safe for concurrent use;
// the owning engine serialises access.
type Store struct {
	v      Vector
	logger *zap.Logger
}

// NewStore creates a store seeded with v. Out-of-range values in v are clamped.
func NewStore(v Vector, logger *zap.Logger) *Store {
	s := &Store{logger: logger}
	s.v.Stage = v.Stage
	if !s.v.Stage.Valid() {
		s.v.Stage = StageNascent
	}
	for _, f := range Fields {
		s.v.set(f, v.Get(f))
	}
	return s
}

// Vector returns a copy of the current traits.
func (s *Store) Vector() Vector {
	return s.v
}

// Get reads a single field.
func (s *Store) Get(f Field) float64 {
	return s.v.Get(f)
}

// Set writes value to f, clamped to [0,1].
func (s *Store) Set(f Field, value float64, reason string) float64 {
	old := s.v.Get(f)
	stored, ok := s.v.set(f, value)
	if !ok {
		s.logger.Warn("unknown trait field", zap.String("field", string(f)), zap.String("reason", reason))
		return 0
	}
	if stored != old {
		s.logger.Debug("trait updated",
			zap.String("field", string(f)),
			zap.Float64("from", old),
			zap.Float64("to", stored),
			zap.String("reason", reason))
	}
	return stored
}

// Adjust adds delta to f and returns the change actually applied after clamping.
func (s *Store) Adjust(f Field, delta float64, reason string) float64 {
	old := s.v.Get(f)
	return s.Set(f, old+delta, reason) - old
}

// SetStage changes the relationship stage. Unknown stages are ignored.
func (s *Store) SetStage(stage Stage, reason string) bool {
	if !stage.Valid() {
		s.logger.Warn("unknown relationship stage", zap.String("stage", string(stage)))
		return false
	}
	if s.v.Stage != stage {
		s.logger.Info("relationship stage changed",
			zap.String("from", string(s.v.Stage)),
			zap.String("to", string(stage)),
			zap.String("reason", reason))
		s.v.Stage = stage
	}
	return true
}

// Replace swaps in a whole vector. A vector that fails Validate is rejected
// and the current one is kept.
func (s *Store) Replace(v Vector, reason string) error {
	if err := Validate(v); err != nil {
		return err
	}
	s.v = v
	s.logger.Info("trait vector replaced", zap.String("reason", reason))
	return nil
}

// Reset puts every trait back to its default.
func (s *Store) Reset(reason string) {
	s.v = Defaults()
	s.logger.Info("trait vector reset", zap.String("reason", reason))
}

const (
	moodDecayStep    = 0.02
	serenityBaseline = 0.5
	energyDecay      = 0.01
	energyFloor      = 0.1
	energyRecovery   = 0.02
	lowEnergy        = 0.3
)

// DecayMood drifts each mood field one step toward its resting value:
// serenity toward 0.5, enthusiasm and melancholy toward 0.
func (s *Store) DecayMood() {
	s.Set(Serenity, toward(s.v.Mood.Serenity, serenityBaseline, moodDecayStep), "mood decay")
	s.Set(Enthusiasm, toward(s.v.Mood.Enthusiasm, 0, moodDecayStep), "mood decay")
	s.Set(Melancholy, toward(s.v.Mood.Melancholy, 0, moodDecayStep), "mood decay")
}

// DrainEnergy applies natural energy loss with a floor and a small recovery
// once energy runs low.
func (s *Store) DrainEnergy() {
	e := s.v.Energy - energyDecay
	if e < energyFloor {
		e = energyFloor
	}
	if e < lowEnergy {
		e += energyRecovery
	}
	s.Set(Energy, e, "energy drain")
}

// ApplyCatharsis relieves stress and lifts mood after a cathartic activity.
func (s *Store) ApplyCatharsis(reason string) {
	relief := s.v.Stress * 0.5
	if relief > 0.3 {
		relief = 0.3
	}
	s.Adjust(Stress, -relief, reason)
	s.Adjust(Serenity, 0.2, reason)
	s.Adjust(Melancholy, -0.1, reason)
}

func toward(cur, target, step float64) float64 {
	if cur > target {
		if cur-step < target {
			return target
		}
		return cur - step
	}
	if cur+step > target {
		return target
	}
	return cur + step
}
