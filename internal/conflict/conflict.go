// Package conflict arbitrates between the agent's internal voices.
package conflict

import (
	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/traits"
)

// NonPreferredDamping scales a voice's support for activities outside its
// preference list, so no activity is ever fully blocked.
const NonPreferredDamping = 0.3

// NeutralFactor is returned when no voice carries any weight.
const NeutralFactor = 0.5

// VoiceKind names an internal drive.
type VoiceKind string

const (
	Creative  VoiceKind = "creative"
	Lazy      VoiceKind = "lazy"
	Practical VoiceKind = "practical"
	Emotional VoiceKind = "emotional"
	Curious   VoiceKind = "curious"
)

type voiceSpec struct {
	kind      VoiceKind
	message   string
	weight    func(traits.Vector) float64
	preferred []activity.Kind
}

// table is evaluated in declaration order; that order breaks dominance ties.
var table = []voiceSpec{
	{
		kind:      Creative,
		message:   "I want to make something new!",
		weight:    func(t traits.Vector) float64 { return t.CreativeUrge },
		preferred: []activity.Kind{activity.Catharsis, activity.CreativeProject, activity.LongTermProject},
	},
	{
		kind:      Lazy,
		message:   "I'm tired, I want to unwind...",
		weight:    func(t traits.Vector) float64 { return 1.0 - t.Energy },
		preferred: []activity.Kind{activity.PassiveMedia, activity.StressRelief},
	},
	{
		kind:      Practical,
		message:   "I should do something useful.",
		weight:    func(t traits.Vector) float64 { return t.Focus },
		preferred: []activity.Kind{activity.LongTermProject, activity.InformationSeeking},
	},
	{
		kind:      Emotional,
		message:   "I need to let these feelings out...",
		weight:    func(t traits.Vector) float64 { return t.Stress + t.Mood.Melancholy },
		preferred: []activity.Kind{activity.Catharsis, activity.SocialBonding},
	},
	{
		kind:      Curious,
		message:   "I want to explore and learn!",
		weight:    func(t traits.Vector) float64 { return t.Curiosity },
		preferred: []activity.Kind{activity.InformationSeeking, activity.SocialBonding},
	},
}

// Voice is a drive evaluated against a trait snapshot.
type Voice struct {
	Kind      VoiceKind       `json:"kind"`
	Message   string          `json:"message"`
	Weight    float64         `json:"weight"`
	Preferred []activity.Kind `json:"preferred"`
}

// Prefers reports whether the voice lists kind among its preferences.
func (v Voice) Prefers(kind activity.Kind) bool {
	for _, k := range v.Preferred {
		if k == kind {
			return true
		}
	}
	return false
}

// Voices evaluates every voice against t, in declaration order.
func Voices(t traits.Vector) []Voice {
	out := make([]Voice, len(table))
	for i, spec := range table {
		out[i] = Voice{
			Kind:      spec.kind,
			Message:   spec.message,
			Weight:    spec.weight(t),
			Preferred: spec.preferred,
		}
	}
	return out
}

// Resolve returns the resolution factor for kind and the dominant voice.
// The dominant voice is nil when every weight is zero.
func Resolve(kind activity.Kind, t traits.Vector) (float64, *Voice) {
	return ResolveVoices(kind, Voices(t))
}

// ResolveVoices is Resolve over an already evaluated voice set.
func ResolveVoices(kind activity.Kind, voices []Voice) (float64, *Voice) {
	var support, total float64
	for _, v := range voices {
		if v.Prefers(kind) {
			support += v.Weight
		} else {
			support += v.Weight * NonPreferredDamping
		}
		total += v.Weight
	}

	factor := NeutralFactor
	if total > 0 {
		factor = support / total
	}

	var dominant *Voice
	best := 0.0
	for i := range voices {
		if voices[i].Weight > best {
			best = voices[i].Weight
			v := voices[i]
			dominant = &v
		}
	}
	return factor, dominant
}
