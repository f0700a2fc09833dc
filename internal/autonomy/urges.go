package autonomy

import (
	"math"

	"github.com/nidhogg/nuka-drive/internal/history"
	"github.com/nidhogg/nuka-drive/internal/learning"
	"github.com/nidhogg/nuka-drive/internal/traits"
)

// UrgeInputs are caller-supplied signals for UpdateUrges.
type UrgeInputs struct {
	// RecentSentiment is the average sentiment of recent memories in [-1,1].
	RecentSentiment float64
}

// UpdateUrges recomputes the derived urge fields from curiosity, energy,
// stress and mood.
func (e *Engine) UpdateUrges(in UrgeInputs) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := e.store.Vector()
	sentiment := in.RecentSentiment
	if math.IsNaN(sentiment) {
		sentiment = 0
	}
	sentiment = math.Max(-1, math.Min(1, sentiment))

	creative := 1.2 * (0.6*v.Curiosity + 0.4*v.Energy)
	social := 0.7*(1-v.Mood.Serenity) + 0.3
	existential := 1.1*(0.4*v.Stress+0.6*v.Mood.Melancholy) + 0.1*math.Max(0, -sentiment)

	e.store.Set(traits.CreativeUrge, creative, "urge update")
	social = e.store.Set(traits.SocialDesire, social, "urge update")
	e.store.Set(traits.SolitudePreference, 1-social, "urge update")
	e.store.Set(traits.ExistentialCuriosity, existential, "urge update")
}

// RecentSentiment averages mentor feedback on records: praise counts +1 and
// correction -1. Records without feedback are ignored.
func RecentSentiment(records []history.Record) float64 {
	sum, n := 0.0, 0
	for _, r := range records {
		if r.Annotation == nil {
			continue
		}
		switch r.Annotation.Outcome {
		case learning.Praised{}.Name():
			sum++
			n++
		case learning.Corrected{}.Name():
			sum--
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
