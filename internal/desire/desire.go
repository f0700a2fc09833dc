// Package desire maps an activity kind and a trait snapshot to an unbounded,
// non-negative desire score. Scores at or above 1.0 denote a critical need.
//
// Every formula is a product of a base urge and bounded multiplicative
// modifiers, so one collapsed factor (near-zero energy, say) suppresses the
// whole score regardless of the others.
package desire

import (
	"math"

	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/traits"
)

// DefaultHoursSinceContact is used when the caller does not know how long
// ago the agent last had social contact.
const DefaultHoursSinceContact = 1.0

// Inputs carries caller-supplied values that are not traits.
type Inputs struct {
	HoursSinceContact float64
}

// DefaultInputs returns the inputs used by Score.
func DefaultInputs() Inputs {
	return Inputs{HoursSinceContact: DefaultHoursSinceContact}
}

// Factor is one named term of a desire product.
type Factor struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Result is a desire score with the factors that produced it.
type Result struct {
	Kind    activity.Kind `json:"kind"`
	Score   float64       `json:"score"`
	Factors []Factor      `json:"factors"`
}

// Breakdown returns the factors keyed by name.
func (r Result) Breakdown() map[string]float64 {
	m := make(map[string]float64, len(r.Factors))
	for _, f := range r.Factors {
		m[f.Name] = f.Value
	}
	return m
}

// Score returns the desire for kind given t. Unknown kinds score 0.
func Score(kind activity.Kind, t traits.Vector) float64 {
	return Evaluate(kind, t, DefaultInputs()).Score
}

// Evaluate computes the desire score and its factor breakdown.
func Evaluate(kind activity.Kind, t traits.Vector, in Inputs) Result {
	var factors []Factor
	switch kind {
	case activity.Catharsis:
		factors = []Factor{
			{"creative_urge", t.CreativeUrge},
			{"stress_multiplier", 1.0 + t.Stress*2.0},
			{"melancholy_multiplier", 1.0 + t.Mood.Melancholy*1.5},
			{"existential_catalyst", 1.0 + t.ExistentialCuriosity*0.8},
			{"energy_modifier", bound(t.Energy*1.2, 0.3, 1.5)},
		}
	case activity.PassiveMedia:
		factors = []Factor{
			{"boredom", 1.0 - t.Focus},
			{"stress_escape", 1.0 + t.Stress*1.8},
			{"solitude_amplifier", 1.0 + t.SolitudePreference*1.2},
			{"fatigue_facilitator", 1.0 + (1.0-t.Energy)*0.8},
			{"creative_inhibitor", math.Max(0.3, 1.0-t.CreativeUrge*0.7)},
		}
	case activity.SocialBonding:
		hours := in.HoursSinceContact
		if hours < 0 || math.IsNaN(hours) {
			hours = 0
		}
		factors = []Factor{
			{"social_desire", t.SocialDesire},
			{"empathy_amplifier", 1.0 + t.Empathy*1.5},
			{"loneliness", 1.0 + math.Min(1.0, hours/24)*2.0},
			{"stress_inhibitor", math.Max(0.4, 1.0-t.Stress*1.2)},
		}
	case activity.StressRelief:
		factors = []Factor{
			{"stress_urgency", 1.0 + t.Stress*2.5},
			{"energy_modifier", bound(t.Energy*1.1, 0.4, 1.3)},
			{"focus_facilitator", 1.0 + t.Focus*0.6},
		}
	case activity.CreativeProject:
		factors = []Factor{
			{"creative_urge", t.CreativeUrge * 1.2},
			{"boredom_multiplier", 1.0 + (1.0-t.Focus)*1.0},
			{"enthusiasm_multiplier", 1.0 + t.Mood.Enthusiasm*0.8},
			{"technical_catalyst", 1.0 + t.Curiosity*0.6},
			{"focus_facilitator", 1.0 + t.Focus*0.5},
			{"energy_modifier", bound(t.Energy*1.3, 0.4, 1.4)},
		}
	case activity.InformationSeeking:
		factors = []Factor{
			{"curiosity", 1.0 + t.Curiosity*1.5},
			{"existential_drive", 1.0 + t.ExistentialCuriosity*0.9},
			{"stress_inhibitor", math.Max(0.5, 1.0-t.Stress*1.0)},
		}
	case activity.LongTermProject:
		factors = []Factor{
			{"creative_urge", t.CreativeUrge * 1.1},
			{"stress_catalyst", 1.0 + t.Stress*1.5},
			{"melancholy_influence", 1.0 + t.Mood.Melancholy*1.2},
			{"energy_modifier", bound(t.Energy*1.2, 0.5, 1.3)},
		}
	default:
		return Result{Kind: kind, Score: 0}
	}

	score := 1.0
	for _, f := range factors {
		score *= f.Value
	}
	if score < 0 || math.IsNaN(score) {
		score = 0
	}
	return Result{Kind: kind, Score: score, Factors: factors}
}

func bound(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}
