package conflict

import (
	"testing"

	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/traits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silent() traits.Vector {
	v := traits.Defaults()
	v.CreativeUrge = 0
	v.Energy = 1
	v.Focus = 0
	v.Stress = 0
	v.Mood.Melancholy = 0
	v.Curiosity = 0
	return v
}

func TestZeroWeightsAreNeutral(t *testing.T) {
	factor, dominant := Resolve(activity.Catharsis, silent())
	assert.Equal(t, 0.5, factor)
	assert.Nil(t, dominant)
}

func TestVoiceWeights(t *testing.T) {
	v := traits.Defaults()
	v.Energy = 0.25
	v.Stress = 0.4
	v.Mood.Melancholy = 0.3

	got := map[VoiceKind]float64{}
	for _, voice := range Voices(v) {
		got[voice.Kind] = voice.Weight
	}
	assert.Equal(t, v.CreativeUrge, got[Creative])
	assert.Equal(t, 0.75, got[Lazy])
	assert.Equal(t, v.Focus, got[Practical])
	assert.InDelta(t, 0.7, got[Emotional], 1e-12)
	assert.Equal(t, v.Curiosity, got[Curious])
}

func TestResolutionFactor(t *testing.T) {
	v := silent()
	v.CreativeUrge = 0.6
	v.Energy = 0.8 // lazy 0.2
	v.Focus = 0.4
	v.Curiosity = 0.2

	// creative prefers catharsis: 0.6 + 0.3*(0.2+0.4+0.2) = 0.84 over 1.4
	factor, dominant := Resolve(activity.Catharsis, v)
	assert.InDelta(t, 0.84/1.4, factor, 1e-12)
	require.NotNil(t, dominant)
	assert.Equal(t, Creative, dominant.Kind)
}

func TestUnknownKindGetsDampedSupportOnly(t *testing.T) {
	factor, _ := Resolve(activity.Kind("skydiving"), traits.Defaults())
	assert.InDelta(t, NonPreferredDamping, factor, 1e-12)
}

func TestDominantTieKeepsDeclarationOrder(t *testing.T) {
	v := silent()
	v.Focus = 0.5
	v.Curiosity = 0.5
	_, dominant := Resolve(activity.SocialBonding, v)
	require.NotNil(t, dominant)
	assert.Equal(t, Practical, dominant.Kind)

	v.CreativeUrge = 0.5
	_, dominant = Resolve(activity.SocialBonding, v)
	assert.Equal(t, Creative, dominant.Kind)
}

func TestFactorStaysInUnitInterval(t *testing.T) {
	v := traits.Defaults()
	for _, k := range activity.All {
		f, _ := Resolve(k, v)
		assert.GreaterOrEqual(t, f, NonPreferredDamping, k)
		assert.LessOrEqual(t, f, 1.0, k)
	}
}
