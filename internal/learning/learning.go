// Package learning adjusts traits in response to mentor feedback.
package learning

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/history"
	"github.com/nidhogg/nuka-drive/internal/traits"
)

// Reason explains why a choice was corrected.
type Reason string

const (
	Timing    Reason = "timing"
	Intensity Reason = "intensity"
	Topic     Reason = "topic"
	Context   Reason = "context"
)

// ParseReason extracts a reason from free text. It returns nil when no
// known reason is mentioned.
func ParseReason(text string) *Reason {
	t := strings.ToLower(text)
	var r Reason
	switch {
	case strings.Contains(t, "timing"), strings.Contains(t, "tempismo"):
		r = Timing
	case strings.Contains(t, "intensity"), strings.Contains(t, "intensità"), strings.Contains(t, "intense"):
		r = Intensity
	case strings.Contains(t, "topic"), strings.Contains(t, "argomento"):
		r = Topic
	case strings.Contains(t, "context"), strings.Contains(t, "contesto"):
		r = Context
	default:
		return nil
	}
	return &r
}

// Outcome is a feedback signal about a past choice.
type Outcome interface {
	Name() string
}

// Praised means the mentor approved of the choice.
type Praised struct{}

// Corrected means the mentor disapproved; Reason may be nil.
type Corrected struct {
	Reason *Reason
}

// NotChosen records that the agent declined the activity.
type NotChosen struct{}

func (Praised) Name() string   { return "praised" }
func (Corrected) Name() string { return "corrected" }
func (NotChosen) Name() string { return "not_chosen" }

// Gain is the trait reinforcement for a praised activity.
type Gain struct {
	Confidence float64
	Whimsy     float64
}

var gains = map[activity.Kind]Gain{
	activity.Catharsis:          {Confidence: 0.08, Whimsy: 0.05},
	activity.PassiveMedia:       {Confidence: 0.03, Whimsy: 0.02},
	activity.SocialBonding:      {Confidence: 0.07, Whimsy: 0.04},
	activity.StressRelief:       {Confidence: 0.05, Whimsy: 0.03},
	activity.CreativeProject:    {Confidence: 0.09, Whimsy: 0.06},
	activity.InformationSeeking: {Confidence: 0.04, Whimsy: 0.02},
	activity.LongTermProject:    {Confidence: 0.10, Whimsy: 0.07},
}

var defaultGain = Gain{Confidence: 0.05, Whimsy: 0.03}

// GainFor returns the praise gain for kind.
func GainFor(kind activity.Kind) Gain {
	if g, ok := gains[kind]; ok {
		return g
	}
	return defaultGain
}

var associatedUrge = map[activity.Kind]traits.Field{
	activity.Catharsis:          traits.CreativeUrge,
	activity.CreativeProject:    traits.CreativeUrge,
	activity.LongTermProject:    traits.CreativeUrge,
	activity.SocialBonding:      traits.SocialDesire,
	activity.PassiveMedia:       traits.SolitudePreference,
	activity.StressRelief:       traits.SolitudePreference,
	activity.InformationSeeking: traits.ExistentialCuriosity,
}

// AssociatedUrge returns the urge field most tied to kind.
func AssociatedUrge(kind activity.Kind) (traits.Field, bool) {
	f, ok := associatedUrge[kind]
	return f, ok
}

const (
	PraiseUrgeNudge      = 0.02
	TimingWhimsyPenalty  = 0.1
	IntensityDampening   = 0.25
	TopicDampening       = 0.15
	ContextSolitudeGain  = 0.2
	GenericDampening     = 0.1
	GenericConfidenceCut = 0.05
	DeclineWhimsyCut     = 0.01
)

// Apply adjusts s for outcome on kind and returns the annotation describing
// what changed. Every write goes through the store and is clamped.
func Apply(s *traits.Store, kind activity.Kind, outcome Outcome, now time.Time) history.Annotation {
	a := history.Annotation{
		Outcome: outcome.Name(),
		Deltas:  make(map[traits.Field]float64),
		At:      now,
	}
	adjust := func(f traits.Field, delta float64, why string) {
		applied := s.Adjust(f, delta, fmt.Sprintf("%s for %s", why, kind))
		if applied != 0 {
			a.Deltas[f] += applied
		}
	}
	urge, hasUrge := AssociatedUrge(kind)

	switch o := outcome.(type) {
	case Praised:
		g := GainFor(kind)
		adjust(traits.AutonomyConfidence, g.Confidence, "praise")
		adjust(traits.Whimsy, g.Whimsy, "praise")
		if hasUrge {
			adjust(urge, PraiseUrgeNudge, "praise")
		}
	case Corrected:
		if o.Reason == nil {
			if hasUrge {
				adjust(urge, -GenericDampening, "correction")
			}
			adjust(traits.AutonomyConfidence, -GenericConfidenceCut, "correction")
			break
		}
		a.Reason = string(*o.Reason)
		switch *o.Reason {
		case Timing:
			adjust(traits.Whimsy, -TimingWhimsyPenalty, "timing correction")
		case Intensity:
			if hasUrge {
				adjust(urge, -IntensityDampening, "intensity correction")
			}
		case Topic:
			adjust(traits.ExistentialCuriosity, -TopicDampening, "topic correction")
		case Context:
			adjust(traits.SolitudePreference, ContextSolitudeGain, "context correction")
		}
	case NotChosen:
		adjust(traits.Whimsy, -DeclineWhimsyCut, "declined")
	}
	return a
}

var ErrUnknownOutcome = errors.New("unknown feedback outcome")

// ParseOutcome builds an Outcome from its name and an optional free-text
// reason. Only "corrected" uses the reason.
func ParseOutcome(name, reason string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "praised", "praise":
		return Praised{}, nil
	case "corrected", "correct", "correction":
		return Corrected{Reason: ParseReason(reason)}, nil
	case "not_chosen", "declined":
		return NotChosen{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOutcome, name)
}
