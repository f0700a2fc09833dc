package traits

import (
	"errors"
	"fmt"
	"math"
)

// ErrCorruptedSnapshot is returned when a restored vector fails validation.
var ErrCorruptedSnapshot = errors.New("corrupted trait snapshot")

// Field names a single scalar trait.
type Field string

const (
	Stress               Field = "stress"
	Energy               Field = "energy"
	Focus                Field = "focus"
	Curiosity            Field = "curiosity"
	Serenity             Field = "mood.serenity"
	Enthusiasm           Field = "mood.enthusiasm"
	Melancholy           Field = "mood.melancholy"
	CreativeUrge         Field = "creative_urge"
	ExistentialCuriosity Field = "existential_curiosity"
	SocialDesire         Field = "social_desire"
	SolitudePreference   Field = "solitude_preference"
	AutonomyConfidence   Field = "autonomy_confidence"
	Whimsy               Field = "whimsy"
	Empathy              Field = "empathy"
)

// Fields lists every scalar trait in a stable order.
var Fields = []Field{
	Stress, Energy, Focus, Curiosity,
	Serenity, Enthusiasm, Melancholy,
	CreativeUrge, ExistentialCuriosity, SocialDesire, SolitudePreference,
	AutonomyConfidence, Whimsy, Empathy,
}

// Valid reports whether f is a known trait field.
func (f Field) Valid() bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}

// Stage is the relationship stage between the agent and its mentor.
type Stage string

const (
	StageNascent    Stage = "nascent"
	StageDeveloping Stage = "developing"
	StageMature     Stage = "mature"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageNascent, StageDeveloping, StageMature:
		return true
	}
	return false
}

// Mood is the mood sub-vector.
type Mood struct {
	Serenity   float64 `json:"serenity" yaml:"serenity"`
	Enthusiasm float64 `json:"enthusiasm" yaml:"enthusiasm"`
	Melancholy float64 `json:"melancholy" yaml:"melancholy"`
}

// Vector is a value snapshot of every trait. Copies are independent.
type Vector struct {
	Stress               float64 `json:"stress" yaml:"stress"`
	Energy               float64 `json:"energy" yaml:"energy"`
	Focus                float64 `json:"focus" yaml:"focus"`
	Curiosity            float64 `json:"curiosity" yaml:"curiosity"`
	Mood                 Mood    `json:"mood" yaml:"mood"`
	CreativeUrge         float64 `json:"creative_urge" yaml:"creative_urge"`
	ExistentialCuriosity float64 `json:"existential_curiosity" yaml:"existential_curiosity"`
	SocialDesire         float64 `json:"social_desire" yaml:"social_desire"`
	SolitudePreference   float64 `json:"solitude_preference" yaml:"solitude_preference"`
	AutonomyConfidence   float64 `json:"autonomy_confidence" yaml:"autonomy_confidence"`
	Whimsy               float64 `json:"whimsy" yaml:"whimsy"`
	Empathy              float64 `json:"empathy" yaml:"empathy"`
	Stage                Stage   `json:"relationship_stage" yaml:"relationship_stage"`
}

// Defaults returns the resting personality of a freshly created agent.
func Defaults() Vector {
	return Vector{
		Stress:    0.0,
		Energy:    1.0,
		Focus:     0.7,
		Curiosity: 0.5,
		Mood: Mood{
			Serenity:   0.5,
			Enthusiasm: 0.3,
			Melancholy: 0.0,
		},
		CreativeUrge:         0.6,
		ExistentialCuriosity: 0.7,
		SocialDesire:         0.4,
		SolitudePreference:   0.3,
		AutonomyConfidence:   0.3,
		Whimsy:               0.4,
		Empathy:              0.5,
		Stage:                StageNascent,
	}
}

// Get returns the value of a field. Unknown fields read as 0.
func (v *Vector) Get(f Field) float64 {
	if p := v.ptr(f); p != nil {
		return *p
	}
	return 0
}

// set writes a clamped value and returns the stored result.
func (v *Vector) set(f Field, value float64) (float64, bool) {
	p := v.ptr(f)
	if p == nil {
		return 0, false
	}
	*p = Clamp01(value)
	return *p, true
}

func (v *Vector) ptr(f Field) *float64 {
	switch f {
	case Stress:
		return &v.Stress
	case Energy:
		return &v.Energy
	case Focus:
		return &v.Focus
	case Curiosity:
		return &v.Curiosity
	case Serenity:
		return &v.Mood.Serenity
	case Enthusiasm:
		return &v.Mood.Enthusiasm
	case Melancholy:
		return &v.Mood.Melancholy
	case CreativeUrge:
		return &v.CreativeUrge
	case ExistentialCuriosity:
		return &v.ExistentialCuriosity
	case SocialDesire:
		return &v.SocialDesire
	case SolitudePreference:
		return &v.SolitudePreference
	case AutonomyConfidence:
		return &v.AutonomyConfidence
	case Whimsy:
		return &v.Whimsy
	case Empathy:
		return &v.Empathy
	}
	return nil
}

// Validate checks that every field is in [0,1] and the stage is known.
// It never repairs the vector.
func Validate(v Vector) error {
	for _, f := range Fields {
		x := v.Get(f)
		if math.IsNaN(x) || x < 0 || x > 1 {
			return fmt.Errorf("%w: %s=%v out of range", ErrCorruptedSnapshot, f, x)
		}
	}
	if !v.Stage.Valid() {
		return fmt.Errorf("%w: unknown relationship stage %q", ErrCorruptedSnapshot, v.Stage)
	}
	return nil
}

// Clamp01 bounds x to [0,1]. NaN maps to 0.
func Clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
