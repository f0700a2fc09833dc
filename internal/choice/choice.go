// Package choice turns a desire score and its modifiers into a bounded
// probability and samples a decision from it.
package choice

import (
	"math"

	"github.com/nidhogg/nuka-drive/internal/temporal"
	"github.com/nidhogg/nuka-drive/internal/traits"
)

const (
	// Steepness of the sigmoid around a desire of 1.0.
	Steepness = 2.0
	// CriticalDesire is the desire score mapped to probability 0.5.
	CriticalDesire = 1.0
	// WhimsyLeverage scales the additive whimsy perturbation.
	WhimsyLeverage = 0.3
)

// RNG is the randomness capability used to sample decisions.
// *math/rand/v2.Rand satisfies it.
type RNG interface {
	Float64() float64
}

// Outcome holds every intermediate of the probability computation.
type Outcome struct {
	Sigmoid     float64 `json:"sigmoid"`
	Confidence  float64 `json:"confidence_modifier"`
	Whimsy      float64 `json:"whimsy_influence"`
	Raw         float64 `json:"raw"`
	Probability float64 `json:"probability"`
}

// Synthesize computes the clamped decision probability. It is pure.
func Synthesize(desire, conflict float64, tc temporal.Context, t traits.Vector) Outcome {
	var o Outcome
	o.Sigmoid = 1.0 / (1.0 + math.Exp(-Steepness*(desire-CriticalDesire)))

	p := o.Sigmoid * conflict * tc.EnergyModifier * tc.WeekendModifier
	o.Confidence = t.AutonomyConfidence*0.5 + 0.5
	p *= o.Confidence

	// Whimsy perturbs after the multiplicative chain.
	o.Whimsy = (t.Whimsy - 0.5) * WhimsyLeverage
	p += o.Whimsy

	o.Raw = p
	o.Probability = clamp(p)
	return o
}

// Decide synthesizes the probability and samples it with rng.
// It returns the decision and the final clamped probability.
func Decide(desire, conflict float64, tc temporal.Context, t traits.Vector, rng RNG) (bool, float64) {
	o := Synthesize(desire, conflict, tc, t)
	return Sample(o.Probability, rng), o.Probability
}

// Sample draws one decision for probability p.
func Sample(p float64, rng RNG) bool {
	return rng.Float64() < p
}

func clamp(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
