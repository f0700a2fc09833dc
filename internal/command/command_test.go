package command

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/autonomy"
	"github.com/nidhogg/nuka-drive/internal/gateway"
	"github.com/nidhogg/nuka-drive/internal/store"
	"github.com/nidhogg/nuka-drive/internal/temporal"
	"github.com/nidhogg/nuka-drive/internal/traits"
	"github.com/nidhogg/nuka-drive/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Command{
		Name:        "ping",
		Description: "Ping test",
		Usage:       "/ping",
		Handler: func(ctx context.Context, args string, cc *CommandContext) (*CommandResult, error) {
			return &CommandResult{Content: "pong: " + args}, nil
		},
	})

	ctx := context.Background()
	cc := &CommandContext{Platform: "test"}

	result, err := reg.Dispatch(ctx, "/ping hello", cc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != "pong: hello" {
		t.Errorf("got %q, want %q", result.Content, "pong: hello")
	}

	result, err = reg.Dispatch(ctx, "/unknown", cc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Content, "Unknown command: /unknown") {
		t.Errorf("unexpected reply %q", result.Content)
	}
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Command{Name: "beta"})
	reg.Register(&Command{Name: "alpha"})

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("got %d commands, want 2", len(list))
	}
	if list[0].Name != "alpha" {
		t.Errorf("got %q first, want %q", list[0].Name, "alpha")
	}
}

func TestParse(t *testing.T) {
	name, args := Parse("  /Correct  creative_project  too intense ")
	assert.Equal(t, "correct", name)
	assert.Equal(t, "creative_project  too intense", args)

	name, args = Parse("/status")
	assert.Equal(t, "status", name)
	assert.Empty(t, args)
}

type zeroRNG struct{}

func (zeroRNG) Float64() float64 { return 0 }

type recordingAnnouncer struct {
	types []gateway.BroadcastType
	texts []string
}

func (r *recordingAnnouncer) Announce(_ context.Context, _ string, typ gateway.BroadcastType, _, content string) error {
	r.types = append(r.types, typ)
	r.texts = append(r.texts, content)
	return nil
}

var start = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

type fixture struct {
	reg    *Registry
	agents *autonomy.Registry
	clock  *temporal.FixedClock
	ann    *recordingAnnouncer
	mentor *Mentor
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	f := &fixture{
		reg:    NewRegistry(),
		agents: autonomy.NewRegistry(),
		clock:  temporal.NewFixedClock(start),
		ann:    &recordingAnnouncer{},
	}
	for _, id := range ids {
		f.agents.Register(autonomy.New(autonomy.Options{ID: id, Clock: f.clock, RNG: zeroRNG{}}, zap.NewNop()))
	}
	f.mentor = &Mentor{Agents: f.agents, Announcer: f.ann, Logger: zap.NewNop()}
	RegisterBuiltins(f.reg, nil)
	RegisterMentorCommands(f.reg, f.mentor)
	return f
}

func (f *fixture) run(t *testing.T, input string) string {
	t.Helper()
	res, err := f.reg.Dispatch(context.Background(), input, &CommandContext{Platform: "test"})
	require.NoError(t, err)
	return res.Content
}

func (f *fixture) engine(t *testing.T, id string) *autonomy.Engine {
	t.Helper()
	e, ok := f.agents.Get(id)
	require.True(t, ok)
	return e
}

func TestPraiseLatestChoice(t *testing.T) {
	f := newFixture(t, "nova")
	e := f.engine(t, "nova")

	assert.Equal(t, "Nothing to give feedback on yet.", f.run(t, "/praise"))

	d := e.DecideDetailed(activity.CreativeProject, autonomy.DecisionContext{})
	require.True(t, d.Chosen)

	out := f.run(t, "/praise")
	assert.Contains(t, out, "Noted: praised creative_project.")
	assert.Contains(t, out, "autonomy_confidence +0.09, creative_urge +0.02, whimsy +0.06")

	recs := e.Recent(1)
	require.NotNil(t, recs[0].Annotation)
	assert.Equal(t, "praised", recs[0].Annotation.Outcome)
}

func TestCorrectWithKindAndReason(t *testing.T) {
	f := newFixture(t, "nova")
	e := f.engine(t, "nova")
	e.DecideDetailed(activity.Catharsis, autonomy.DecisionContext{})

	out := f.run(t, "/correct catharsis bad timing")
	assert.Contains(t, out, "Noted: corrected catharsis. Reason: timing.")
	assert.Contains(t, out, "whimsy -0.10")
	assert.InDelta(t, 0.3, e.Snapshot().Whimsy, 1e-9)

	learned := f.run(t, "/learning")
	assert.Contains(t, learned, "Recent corrections:")
	assert.Contains(t, learned, "catharsis (timing)")
}

func TestCorrectWithoutReasonUsesGenericDampening(t *testing.T) {
	f := newFixture(t, "nova")
	e := f.engine(t, "nova")
	e.DecideDetailed(activity.InformationSeeking, autonomy.DecisionContext{})

	out := f.run(t, "/correct")
	assert.Contains(t, out, "corrected information_seeking")
	assert.Contains(t, out, "autonomy_confidence -0.05")
	assert.Contains(t, f.run(t, "/learning"), "(unspecified)")
}

func TestAlterLifecycle(t *testing.T) {
	f := newFixture(t, "nova")
	e := f.engine(t, "nova")

	assert.Contains(t, f.run(t, "/alter"), "Ready")

	out := f.run(t, "/alter mellow")
	assert.Contains(t, out, "Entered mellow for 1h0m0s")
	assert.Contains(t, out, "mood.serenity +0.20")
	assert.Equal(t, []gateway.BroadcastType{gateway.BroadcastAltered}, f.ann.types)

	assert.Contains(t, f.run(t, "/alter buoyant"), "Already in mellow")
	assert.Contains(t, f.run(t, "/alter"), "Active: mellow")

	for i := 0; i < 60; i++ {
		f.clock.Advance(time.Minute)
		e.TickAlteredState()
	}
	_, active := e.AlteredState()
	require.False(t, active)

	out = f.run(t, "/alter buoyant")
	assert.True(t, strings.HasPrefix(out, CooldownMessage), out)
	assert.Contains(t, out, "ready at 13:00")
	assert.Contains(t, f.run(t, "/alter"), "Cooling down until 13:00")

	assert.Contains(t, f.run(t, "/alter euphoric"), `Unknown state "euphoric"`)
}

func TestStatusAndChoices(t *testing.T) {
	f := newFixture(t, "nova")
	e := f.engine(t, "nova")

	assert.Equal(t, "No choices yet.", f.run(t, "/choices"))

	for _, k := range []activity.Kind{activity.Catharsis, activity.StressRelief, activity.PassiveMedia} {
		e.DecideDetailed(k, autonomy.DecisionContext{})
	}

	status := f.run(t, "/status")
	assert.Contains(t, status, "nova (nascent)")
	assert.Contains(t, status, "Desires:")
	assert.Contains(t, status, "Decisions: 3 recent, 3 chosen")

	choices := f.run(t, "/choices 2")
	lines := strings.Split(strings.TrimSpace(choices), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "passive_media")
	assert.Contains(t, lines[2], "stress_relief")

	assert.Equal(t, "Usage: /choices [n]", f.run(t, "/choices many"))
}

func TestAgentResolution(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "No agents running.", f.run(t, "/status"))

	f = newFixture(t, "nova", "echo")
	assert.Contains(t, f.run(t, "/status"), "address one with @id")

	res, err := f.reg.Dispatch(context.Background(), "/status", &CommandContext{AgentID: "echo"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "echo (nascent)")

	res, err = f.reg.Dispatch(context.Background(), "/status", &CommandContext{AgentID: "ghost"})
	require.NoError(t, err)
	assert.Equal(t, `Agent "ghost" not found.`, res.Content)
}

func TestFeedbackEvolvesRelationship(t *testing.T) {
	f := newFixture(t, "nova")
	f.mentor.Growth = world.NewGrowthTracker([]world.StageThreshold{
		{Stage: traits.StageDeveloping, Interactions: 2},
	}, zap.NewNop())
	e := f.engine(t, "nova")
	e.DecideDetailed(activity.SocialBonding, autonomy.DecisionContext{})

	f.run(t, "/praise")
	assert.Equal(t, traits.StageNascent, e.Snapshot().Stage)
	f.run(t, "/praise social_bonding")
	assert.Equal(t, traits.StageDeveloping, e.Snapshot().Stage)

	require.Len(t, f.ann.types, 1)
	assert.Equal(t, gateway.BroadcastStageChange, f.ann.types[0])
	assert.Contains(t, f.run(t, "/learning"), "Mentor interactions: 2")
}

func TestFeedbackPersistsState(t *testing.T) {
	f := newFixture(t, "nova")
	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "state.db"), zap.NewNop())
	require.NoError(t, err)
	defer db.Close()
	f.mentor.Store = db

	f.engine(t, "nova").DecideDetailed(activity.Catharsis, autonomy.DecisionContext{})
	f.run(t, "/praise")

	st, err := db.Load(context.Background(), "nova")
	require.NoError(t, err)
	require.Len(t, st.History, 1)
	require.NotNil(t, st.History[0].Annotation)
	assert.InDelta(t, 0.38, st.Traits.AutonomyConfidence, 1e-9)
}

type staticStatus []gateway.AdapterStatus

func (s staticStatus) StatusAll() []gateway.AdapterStatus { return s }

func TestHelpAndAdapters(t *testing.T) {
	reg := NewRegistry()
	RegisterBuiltins(reg, staticStatus{{Platform: "slack", Connected: true}, {Platform: "discord", Error: "open failed"}})
	RegisterMentorCommands(reg, &Mentor{Agents: autonomy.NewRegistry()})

	res, err := reg.Dispatch(context.Background(), "/help", &CommandContext{})
	require.NoError(t, err)
	for _, name := range []string{"/praise", "/correct", "/alter", "/status", "/learning", "/choices", "/help"} {
		assert.Contains(t, res.Content, name)
	}

	res, err = reg.Dispatch(context.Background(), "/adapters", &CommandContext{})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "slack: connected")
	assert.Contains(t, res.Content, "discord: disconnected (open failed)")
}
