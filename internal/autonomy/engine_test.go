package autonomy

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/altered"
	"github.com/nidhogg/nuka-drive/internal/choice"
	"github.com/nidhogg/nuka-drive/internal/conflict"
	"github.com/nidhogg/nuka-drive/internal/desire"
	"github.com/nidhogg/nuka-drive/internal/learning"
	"github.com/nidhogg/nuka-drive/internal/temporal"
	"github.com/nidhogg/nuka-drive/internal/traits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedRNG float64

func (f fixedRNG) Float64() float64 { return float64(f) }

// Wednesday morning.
var start = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, seed *traits.Vector, rng choice.RNG) (*Engine, *temporal.FixedClock) {
	t.Helper()
	clock := temporal.NewFixedClock(start)
	if rng == nil {
		rng = rand.New(rand.NewPCG(1, 2))
	}
	e := New(Options{ID: "aurora", Seed: seed, Clock: clock, RNG: rng}, zap.NewNop())
	return e, clock
}

func catharsisTraits() *traits.Vector {
	v := traits.Defaults()
	v.Stress = 0.9
	v.Mood.Melancholy = 0.8
	v.CreativeUrge = 0.7
	v.ExistentialCuriosity = 0.5
	v.Energy = 0.6
	return &v
}

func TestDecideMatchesPipeline(t *testing.T) {
	seed := catharsisTraits()
	e, _ := newEngine(t, seed, fixedRNG(0.999999))

	d := e.DecideDetailed(activity.Catharsis, DecisionContext{Source: "test"})

	wantDesire := desire.Score(activity.Catharsis, *seed)
	assert.InDelta(t, 4.346496, d.Desire.Score, 1e-9)
	assert.Equal(t, wantDesire, d.Desire.Score)

	cf, voice := conflict.Resolve(activity.Catharsis, *seed)
	assert.Equal(t, cf, d.ConflictFactor)
	if diff := cmp.Diff(voice, d.DominantVoice); diff != "" {
		t.Errorf("dominant voice mismatch (-want +got):\n%s", diff)
	}

	tc := temporal.At(start)
	assert.Equal(t, temporal.Morning, d.Temporal.Band)
	out := choice.Synthesize(wantDesire, cf, tc, *seed)
	assert.Equal(t, out.Probability, d.Probability)
	assert.Equal(t, d.Probability > 0.999999, d.Chosen)
}

func TestDecideIsDeterministicModuloRNG(t *testing.T) {
	a, _ := newEngine(t, nil, fixedRNG(0))
	b, _ := newEngine(t, nil, fixedRNG(0.99))

	for _, k := range activity.All {
		da := a.DecideDetailed(k, DecisionContext{})
		db := b.DecideDetailed(k, DecisionContext{})
		assert.Equal(t, da.Desire.Score, db.Desire.Score, k)
		assert.Equal(t, da.ConflictFactor, db.ConflictFactor, k)
		assert.Equal(t, da.Probability, db.Probability, k)
	}
}

func TestDecideDoesNotMutateTraits(t *testing.T) {
	e, _ := newEngine(t, nil, nil)
	before := e.Snapshot()
	for _, k := range activity.All {
		e.Decide(k, DecisionContext{})
	}
	assert.Equal(t, before, e.Snapshot())
}

func TestDecideUnknownKindIsNotFatal(t *testing.T) {
	e, _ := newEngine(t, nil, fixedRNG(0.5))
	d := e.DecideDetailed("skydiving", DecisionContext{})
	assert.Zero(t, d.Desire.Score)
	assert.Equal(t, conflict.NonPreferredDamping, d.ConflictFactor)
	assert.GreaterOrEqual(t, d.Probability, 0.0)
	assert.LessOrEqual(t, d.Probability, 1.0)
	require.Len(t, e.Recent(1), 1)
}

func TestHoursSinceContact(t *testing.T) {
	e, _ := newEngine(t, nil, fixedRNG(0.5))
	unknown := e.DecideDetailed(activity.SocialBonding, DecisionContext{})
	long := e.DecideDetailed(activity.SocialBonding, DecisionContext{HoursSinceContact: 48})
	assert.InDelta(t, 0.7583333333333333, unknown.Desire.Score, 1e-9)
	assert.Greater(t, long.Desire.Score, unknown.Desire.Score)
}

func TestHistoryKeepsTwentyMostRecent(t *testing.T) {
	e, clock := newEngine(t, nil, nil)
	var ids []string
	for i := 0; i < 25; i++ {
		ids = append(ids, e.DecideDetailed(activity.All[i%len(activity.All)], DecisionContext{}).RecordID)
		clock.Advance(time.Minute)
	}

	recs := e.Recent(100)
	require.Len(t, recs, 20)
	for i, r := range recs {
		assert.Equal(t, ids[i+5], r.ID)
		if i > 0 {
			assert.True(t, r.Timestamp.After(recs[i-1].Timestamp))
		}
	}
	assert.Equal(t, start.Add(24*time.Minute), recs[19].Timestamp)
}

func TestRecordCarriesFactors(t *testing.T) {
	e, _ := newEngine(t, nil, fixedRNG(0))
	d := e.DecideDetailed(activity.CreativeProject, DecisionContext{})
	r := e.Recent(1)[0]

	assert.Equal(t, d.RecordID, r.ID)
	assert.Equal(t, d.Chosen, r.Chosen)
	assert.Equal(t, d.Desire.Score, r.DesireScore)
	assert.Equal(t, d.ConflictFactor, r.Factors["conflict_factor"])
	assert.Equal(t, d.Synthesis.Raw, r.Factors["raw_probability"])
	assert.Contains(t, r.Factors, "creative_urge")
	assert.Equal(t, traits.Defaults(), r.TraitSnapshot)
	assert.Nil(t, r.Annotation)
}

func TestApplyFeedbackTimingCorrection(t *testing.T) {
	seed := traits.Defaults()
	seed.Whimsy = 0.5
	e, _ := newEngine(t, &seed, fixedRNG(0))
	e.Decide(activity.Catharsis, DecisionContext{})

	timing := learning.Timing
	a := e.ApplyFeedback(activity.Catharsis, learning.Corrected{Reason: &timing})

	assert.InDelta(t, 0.4, e.Snapshot().Whimsy, 1e-12)
	rec := e.Recent(1)[0]
	require.NotNil(t, rec.Annotation)
	assert.Equal(t, "corrected", rec.Annotation.Outcome)
	assert.Equal(t, "timing", rec.Annotation.Reason)
	assert.InDelta(t, -0.1, a.Deltas[traits.Whimsy], 1e-12)
	assert.Equal(t, 0.5, rec.TraitSnapshot.Whimsy)

	ins := e.Insights()
	require.Len(t, ins, 1)
	assert.Equal(t, activity.Catharsis, ins[0].Kind)
}

func TestApplyFeedbackAnnotatesEachRecordOnce(t *testing.T) {
	e, clock := newEngine(t, nil, fixedRNG(0))
	first := e.DecideDetailed(activity.CreativeProject, DecisionContext{})
	clock.Advance(time.Minute)
	e.Decide(activity.PassiveMedia, DecisionContext{})

	e.ApplyFeedback(activity.CreativeProject, learning.Praised{})
	conf := e.Snapshot().AutonomyConfidence
	e.ApplyFeedback(activity.CreativeProject, learning.Praised{})

	recs := e.Recent(10)
	require.Len(t, recs, 2)
	assert.Equal(t, first.RecordID, recs[0].ID)
	require.NotNil(t, recs[0].Annotation)
	assert.Equal(t, "praised", recs[0].Annotation.Outcome)
	assert.InDelta(t, 0.09, recs[0].Annotation.Deltas[traits.AutonomyConfidence], 1e-12)
	assert.Nil(t, recs[1].Annotation)
	assert.Greater(t, e.Snapshot().AutonomyConfidence, conf)
	assert.Empty(t, e.Insights())
}

type seqRNG struct {
	vals []float64
	i    int
}

func (s *seqRNG) Float64() float64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func TestPraiseAnnotatesChosenRecordPastDeclined(t *testing.T) {
	e, clock := newEngine(t, nil, &seqRNG{vals: []float64{0, 0.9999}})
	chosen := e.DecideDetailed(activity.Catharsis, DecisionContext{})
	require.True(t, chosen.Chosen)
	clock.Advance(time.Minute)
	declined := e.DecideDetailed(activity.Catharsis, DecisionContext{})
	require.False(t, declined.Chosen)

	e.ApplyFeedback(activity.Catharsis, learning.NotChosen{})
	e.ApplyFeedback(activity.Catharsis, learning.Praised{})

	got, ok := e.Record(chosen.RecordID)
	require.True(t, ok)
	require.NotNil(t, got.Annotation)
	assert.Equal(t, "praised", got.Annotation.Outcome)

	got, ok = e.Record(declined.RecordID)
	require.True(t, ok)
	require.NotNil(t, got.Annotation)
	assert.Equal(t, "not_chosen", got.Annotation.Outcome)

	assert.InDelta(t, 1.0, RecentSentiment(e.Recent(20)), 1e-12)
}

func TestAnnotationIsNotOverwritten(t *testing.T) {
	e, _ := newEngine(t, nil, fixedRNG(0))
	d := e.DecideDetailed(activity.Catharsis, DecisionContext{})
	require.True(t, d.Chosen)

	e.ApplyFeedback(activity.Catharsis, learning.Praised{})
	e.ApplyFeedback(activity.Catharsis, learning.Corrected{})

	got, _ := e.Record(d.RecordID)
	require.NotNil(t, got.Annotation)
	assert.Equal(t, "praised", got.Annotation.Outcome)
}

func TestApplyFeedbackWithoutRecord(t *testing.T) {
	e, _ := newEngine(t, nil, nil)
	a := e.ApplyFeedback(activity.PassiveMedia, learning.NotChosen{})
	assert.Equal(t, "not_chosen", a.Outcome)
	assert.InDelta(t, 0.39, e.Snapshot().Whimsy, 1e-12)
}

func TestInsightsAreCapped(t *testing.T) {
	e, clock := newEngine(t, nil, nil)
	for i := 0; i < 15; i++ {
		clock.Advance(time.Minute)
		e.ApplyFeedback(activity.InformationSeeking, learning.Corrected{})
	}
	ins := e.Insights()
	require.Len(t, ins, MaxInsights)
	assert.Equal(t, start.Add(6*time.Minute), ins[0].At)
	assert.Equal(t, start.Add(15*time.Minute), ins[9].At)
}

func TestUpdateUrges(t *testing.T) {
	e, _ := newEngine(t, nil, nil)
	e.UpdateUrges(UrgeInputs{RecentSentiment: -0.5})

	v := e.Snapshot()
	assert.InDelta(t, 0.84, v.CreativeUrge, 1e-12)
	assert.InDelta(t, 0.65, v.SocialDesire, 1e-12)
	assert.InDelta(t, 0.35, v.SolitudePreference, 1e-12)
	assert.InDelta(t, 0.05, v.ExistentialCuriosity, 1e-12)
}

func TestUpdateUrgesClamps(t *testing.T) {
	seed := traits.Defaults()
	seed.Curiosity, seed.Energy = 1, 1
	seed.Stress, seed.Mood.Melancholy = 1, 1
	seed.Mood.Serenity = 0
	e, _ := newEngine(t, &seed, nil)
	e.UpdateUrges(UrgeInputs{RecentSentiment: -7})

	v := e.Snapshot()
	assert.Equal(t, 1.0, v.CreativeUrge)
	assert.Equal(t, 1.0, v.SocialDesire)
	assert.Equal(t, 0.0, v.SolitudePreference)
	assert.Equal(t, 1.0, v.ExistentialCuriosity)
}

func TestRestoreRejectsCorruptSnapshot(t *testing.T) {
	seed := traits.Defaults()
	seed.Whimsy = 0.9
	e, _ := newEngine(t, &seed, nil)

	bad := traits.Defaults()
	bad.Stress = 1.5
	err := e.Restore(bad)
	assert.ErrorIs(t, err, traits.ErrCorruptedSnapshot)
	assert.Equal(t, traits.Defaults(), e.Snapshot())

	good := traits.Defaults()
	good.Focus = 0.2
	require.NoError(t, e.Restore(good))
	assert.Equal(t, good, e.Snapshot())
}

func TestStateRoundTrip(t *testing.T) {
	e, clock := newEngine(t, catharsisTraits(), fixedRNG(0))
	e.Decide(activity.Catharsis, DecisionContext{})
	e.ApplyFeedback(activity.Catharsis, learning.Corrected{})
	_, err := e.ActivateAlteredState(altered.Dreamy)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	e.TickAlteredState()

	st := e.State()
	other, _ := newEngine(t, nil, nil)
	require.NoError(t, other.RestoreState(st))

	got := other.State()
	if diff := cmp.Diff(st.Traits, got.Traits); diff != "" {
		t.Errorf("traits mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(st.History, got.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	m, ok := other.AlteredState()
	require.True(t, ok)
	assert.Equal(t, 89*time.Minute, m.Remaining)
	assert.Len(t, other.Insights(), 1)
}

func TestRestoreStateRejectsWhole(t *testing.T) {
	e, _ := newEngine(t, nil, fixedRNG(0))
	e.Decide(activity.Catharsis, DecisionContext{})
	st := e.State()
	st.History[0].Probability = 1.2

	other, _ := newEngine(t, catharsisTraits(), fixedRNG(0))
	other.Decide(activity.PassiveMedia, DecisionContext{})
	err := other.RestoreState(st)
	assert.ErrorIs(t, err, traits.ErrCorruptedSnapshot)
	assert.Equal(t, traits.Defaults(), other.Snapshot())
	assert.Empty(t, other.Recent(10))
}

func TestAlteredStateLifecycle(t *testing.T) {
	e, clock := newEngine(t, nil, nil)
	_, err := e.ActivateAlteredState(altered.Mellow)
	require.NoError(t, err)

	_, err = e.ActivateAlteredState(altered.Mellow)
	assert.ErrorIs(t, err, altered.ErrAlreadyActive)

	var expiredAt time.Time
	for i := 0; i < 60; i++ {
		clock.Advance(time.Minute)
		if e.TickAlteredState() {
			expiredAt = clock.Now()
		}
	}
	_, ok := e.AlteredState()
	assert.False(t, ok)
	assert.Equal(t, start.Add(60*time.Minute), expiredAt)

	clock.Advance(30 * time.Minute)
	_, err = e.ActivateAlteredState(altered.Buoyant)
	assert.ErrorIs(t, err, altered.ErrCooldownActive)
	s := e.Summary()
	require.NotNil(t, s.CooldownUntil)
	assert.Equal(t, expiredAt.Add(altered.DefaultCooldown), *s.CooldownUntil)

	clock.Advance(90 * time.Minute)
	_, err = e.ActivateAlteredState(altered.Buoyant)
	assert.NoError(t, err)
}

func TestSetTraitAndStage(t *testing.T) {
	e, _ := newEngine(t, nil, nil)
	got, err := e.SetTrait(traits.Stress, 3, "test")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	_, err = e.SetTrait("charisma", 0.5, "test")
	assert.ErrorIs(t, err, ErrUnknownTrait)

	require.NoError(t, e.SetStage(traits.StageMature))
	assert.Equal(t, traits.StageMature, e.Snapshot().Stage)
	assert.ErrorIs(t, e.SetStage("bestie"), ErrUnknownStage)
}

func TestSummary(t *testing.T) {
	e, _ := newEngine(t, nil, fixedRNG(0))
	e.Decide(activity.StressRelief, DecisionContext{})
	e.Decide(activity.LongTermProject, DecisionContext{})

	s := e.Summary()
	assert.Equal(t, "aurora", s.AgentID)
	assert.Len(t, s.Desires, len(activity.All))
	assert.InDelta(t, 1.562, s.Desires[activity.StressRelief], 1e-9)
	assert.Len(t, s.Voices, 5)
	assert.Equal(t, 2, s.Decisions)
	assert.Nil(t, s.Altered)
	assert.Nil(t, s.CooldownUntil)
}

func TestBoundsUnderRandomOperations(t *testing.T) {
	ops := rand.New(rand.NewPCG(42, 7))
	e, clock := newEngine(t, nil, rand.New(rand.NewPCG(3, 4)))
	reasons := []learning.Reason{learning.Timing, learning.Intensity, learning.Topic, learning.Context}

	for i := 0; i < 2000; i++ {
		k := activity.All[ops.IntN(len(activity.All))]
		switch ops.IntN(9) {
		case 0:
			e.UpdateUrges(UrgeInputs{RecentSentiment: ops.Float64()*4 - 2})
		case 1:
			d := e.DecideDetailed(k, DecisionContext{HoursSinceContact: ops.Float64() * 100})
			require.GreaterOrEqual(t, d.Probability, 0.0)
			require.LessOrEqual(t, d.Probability, 1.0)
		case 2:
			e.ApplyFeedback(k, learning.Praised{})
		case 3:
			r := reasons[ops.IntN(len(reasons))]
			e.ApplyFeedback(k, learning.Corrected{Reason: &r})
		case 4:
			e.ApplyFeedback(k, learning.Corrected{})
		case 5:
			e.ApplyFeedback(k, learning.NotChosen{})
		case 6:
			e.DecayMood()
			e.DrainEnergy()
		case 7:
			e.ApplyCatharsis("test")
		case 8:
			kinds := e.AlteredKinds()
			_, _ = e.ActivateAlteredState(kinds[ops.IntN(len(kinds))])
		}
		clock.Advance(time.Minute)
		e.TickAlteredState()
		require.NoError(t, traits.Validate(e.Snapshot()), "step %d", i)
	}
}

func TestConcurrentEntryPoints(t *testing.T) {
	e, _ := newEngine(t, nil, nil)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				k := activity.All[(g+i)%len(activity.All)]
				e.UpdateUrges(UrgeInputs{RecentSentiment: -0.2})
				if !e.Decide(k, DecisionContext{}) {
					e.ApplyFeedback(k, learning.NotChosen{})
				}
				_ = e.Summary()
				e.TickAlteredState()
			}
		}(g)
	}
	wg.Wait()

	assert.Len(t, e.Recent(100), 20)
	assert.NoError(t, traits.Validate(e.Snapshot()))
}

func TestRecentSentiment(t *testing.T) {
	e, clock := newEngine(t, nil, fixedRNG(0))
	assert.Zero(t, RecentSentiment(e.Recent(20)))

	for _, k := range []activity.Kind{activity.Catharsis, activity.PassiveMedia, activity.SocialBonding, activity.StressRelief} {
		e.Decide(k, DecisionContext{})
		clock.Advance(time.Minute)
	}
	e.ApplyFeedback(activity.Catharsis, learning.Praised{})
	e.ApplyFeedback(activity.PassiveMedia, learning.Corrected{})
	e.ApplyFeedback(activity.SocialBonding, learning.Corrected{})
	e.ApplyFeedback(activity.StressRelief, learning.NotChosen{})

	assert.InDelta(t, -1.0/3.0, RecentSentiment(e.Recent(20)), 1e-12)
}
