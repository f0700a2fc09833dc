package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/altered"
	"github.com/nidhogg/nuka-drive/internal/autonomy"
	"github.com/nidhogg/nuka-drive/internal/gateway"
	"github.com/nidhogg/nuka-drive/internal/history"
	"github.com/nidhogg/nuka-drive/internal/learning"
	"github.com/nidhogg/nuka-drive/internal/store"
	"github.com/nidhogg/nuka-drive/internal/traits"
	"github.com/nidhogg/nuka-drive/internal/world"
	"go.uber.org/zap"
)

// CooldownMessage is shown when an altered state is requested too soon.
const CooldownMessage = "command unavailable during cooldown"

// DefaultChoices is how many records /choices shows without an argument.
const DefaultChoices = 5

// Announcer shares agent events. *gateway.Broadcaster satisfies it.
type Announcer interface {
	Announce(ctx context.Context, agentID string, typ gateway.BroadcastType, title, content string) error
}

// Mentor holds what the mentor commands act on. Growth, Store and Announcer
// are optional.
type Mentor struct {
	Agents    *autonomy.Registry
	Growth    *world.GrowthTracker
	Store     store.StateStore
	Announcer Announcer
	Logger    *zap.Logger
}

// RegisterMentorCommands registers /praise, /correct, /alter, /status,
// /learning and /choices.
func RegisterMentorCommands(reg *Registry, m *Mentor) {
	if m.Logger == nil {
		m.Logger = zap.NewNop()
	}
	reg.Register(m.praiseCommand())
	reg.Register(m.correctCommand())
	reg.Register(m.alterCommand())
	reg.Register(m.statusCommand())
	reg.Register(m.learningCommand())
	reg.Register(m.choicesCommand())
}

// engine resolves the addressed agent. The returned message is non-empty
// when no engine could be chosen.
func (m *Mentor) engine(cc *CommandContext) (*autonomy.Engine, string) {
	if cc != nil && cc.AgentID != "" {
		if e, ok := m.Agents.Get(cc.AgentID); ok {
			return e, ""
		}
		return nil, fmt.Sprintf("Agent %q not found.", cc.AgentID)
	}
	ids := m.Agents.IDs()
	switch len(ids) {
	case 0:
		return nil, "No agents running."
	case 1:
		e, _ := m.Agents.Get(ids[0])
		return e, ""
	default:
		return nil, fmt.Sprintf("Several agents are running (%s); address one with @id.", strings.Join(ids, ", "))
	}
}

// lastKind is the kind of the most recent chosen record, or of the most
// recent record when nothing was chosen.
func lastKind(e *autonomy.Engine) (activity.Kind, bool) {
	recs := e.Recent(history.Capacity)
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Chosen {
			return recs[i].Kind, true
		}
	}
	if len(recs) > 0 {
		return recs[len(recs)-1].Kind, true
	}
	return "", false
}

// splitKind takes a leading activity kind off args, if there is one.
func splitKind(args string) (activity.Kind, string, bool) {
	first, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	if first == "" {
		return "", "", false
	}
	k, err := activity.Parse(first)
	if err != nil {
		return "", strings.TrimSpace(args), false
	}
	return k, strings.TrimSpace(rest), true
}

func (m *Mentor) feedback(ctx context.Context, cc *CommandContext, args, outcomeName string) (*CommandResult, error) {
	e, msg := m.engine(cc)
	if e == nil {
		return &CommandResult{Content: msg}, nil
	}
	kind, reason, ok := splitKind(args)
	if !ok {
		if kind, ok = lastKind(e); !ok {
			return &CommandResult{Content: "Nothing to give feedback on yet."}, nil
		}
	}
	outcome, err := learning.ParseOutcome(outcomeName, reason)
	if err != nil {
		return nil, err
	}

	ann := e.ApplyFeedback(kind, outcome)
	m.interaction(ctx, e)
	m.persist(ctx, e)

	var b strings.Builder
	fmt.Fprintf(&b, "Noted: %s %s.", ann.Outcome, kind)
	if ann.Reason != "" {
		fmt.Fprintf(&b, " Reason: %s.", ann.Reason)
	}
	if d := formatDeltas(ann.Deltas); d != "" {
		fmt.Fprintf(&b, "\n  %s", d)
	}
	return &CommandResult{Content: b.String(), Data: ann}, nil
}

// interaction counts a mentor interaction and announces stage changes.
func (m *Mentor) interaction(ctx context.Context, e *autonomy.Engine) {
	if m.Growth == nil {
		return
	}
	stage, evolved := m.Growth.RecordInteraction(e.ID(), e.Snapshot().Stage, e, e.Clock().Now())
	if evolved && m.Announcer != nil {
		if err := m.Announcer.Announce(ctx, e.ID(), gateway.BroadcastStageChange,
			"Our relationship grew", fmt.Sprintf("%s now feels %s with their mentor.", e.ID(), stage)); err != nil {
			m.Logger.Warn("stage change not announced", zap.String("agent", e.ID()), zap.Error(err))
		}
	}
}

func (m *Mentor) persist(ctx context.Context, e *autonomy.Engine) {
	if m.Store == nil {
		return
	}
	if err := m.Store.Save(ctx, e.State()); err != nil {
		m.Logger.Warn("state not saved after command", zap.String("agent", e.ID()), zap.Error(err))
	}
}

func (m *Mentor) praiseCommand() *Command {
	return &Command{
		Name:        "praise",
		Description: "Praise the agent's latest (or the named) choice",
		Usage:       "/praise [activity]",
		Handler: func(ctx context.Context, args string, cc *CommandContext) (*CommandResult, error) {
			return m.feedback(ctx, cc, args, "praised")
		},
	}
}

func (m *Mentor) correctCommand() *Command {
	return &Command{
		Name:        "correct",
		Description: "Correct a choice; mention timing, intensity, topic or context",
		Usage:       "/correct [activity] [reason]",
		Handler: func(ctx context.Context, args string, cc *CommandContext) (*CommandResult, error) {
			return m.feedback(ctx, cc, args, "corrected")
		},
	}
}

func (m *Mentor) alterCommand() *Command {
	return &Command{
		Name:        "alter",
		Description: "Enter an altered state, or list them",
		Usage:       "/alter [state]",
		Handler: func(ctx context.Context, args string, cc *CommandContext) (*CommandResult, error) {
			e, msg := m.engine(cc)
			if e == nil {
				return &CommandResult{Content: msg}, nil
			}
			if args == "" {
				return &CommandResult{Content: alteredOverview(e)}, nil
			}

			kind := altered.Kind(strings.ToLower(args))
			mod, err := e.ActivateAlteredState(kind)
			switch {
			case errors.Is(err, altered.ErrCooldownActive):
				content := CooldownMessage
				if until := e.Summary().CooldownUntil; until != nil {
					content += fmt.Sprintf(" (ready at %s)", until.Format("15:04"))
				}
				return &CommandResult{Content: content}, nil
			case errors.Is(err, altered.ErrAlreadyActive):
				active, _ := e.AlteredState()
				return &CommandResult{Content: fmt.Sprintf("Already in %s, %s left.", active.Kind, active.Remaining)}, nil
			case errors.Is(err, altered.ErrUnknownState):
				return &CommandResult{Content: fmt.Sprintf("Unknown state %q. Available: %s.", args, joinKinds(e.AlteredKinds()))}, nil
			case err != nil:
				return nil, err
			}

			m.persist(ctx, e)
			text := fmt.Sprintf("Entered %s for %s: %s", mod.Kind, mod.Remaining, formatDeltas(mod.Effects))
			if m.Announcer != nil {
				if err := m.Announcer.Announce(ctx, e.ID(), gateway.BroadcastAltered, "Feeling different", text); err != nil {
					m.Logger.Warn("altered state not announced", zap.String("agent", e.ID()), zap.Error(err))
				}
			}
			return &CommandResult{Content: text, Data: mod}, nil
		},
	}
}

func alteredOverview(e *autonomy.Engine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Altered states: %s\n", joinKinds(e.AlteredKinds()))
	s := e.Summary()
	switch {
	case s.Altered != nil:
		fmt.Fprintf(&b, "Active: %s, %s left", s.Altered.Kind, s.Altered.Remaining)
	case s.CooldownUntil != nil:
		fmt.Fprintf(&b, "Cooling down until %s", s.CooldownUntil.Format("15:04"))
	default:
		b.WriteString("Ready")
	}
	return b.String()
}

func (m *Mentor) statusCommand() *Command {
	return &Command{
		Name:        "status",
		Description: "Show the agent's traits, desires and state",
		Usage:       "/status",
		Handler: func(_ context.Context, _ string, cc *CommandContext) (*CommandResult, error) {
			e, msg := m.engine(cc)
			if e == nil {
				return &CommandResult{Content: msg}, nil
			}
			s := e.Summary()
			t := s.Traits

			var b strings.Builder
			fmt.Fprintf(&b, "%s (%s)\n", s.AgentID, t.Stage)
			fmt.Fprintf(&b, "  energy %.2f  stress %.2f  focus %.2f  curiosity %.2f\n", t.Energy, t.Stress, t.Focus, t.Curiosity)
			fmt.Fprintf(&b, "  serenity %.2f  enthusiasm %.2f  melancholy %.2f\n", t.Mood.Serenity, t.Mood.Enthusiasm, t.Mood.Melancholy)
			fmt.Fprintf(&b, "  confidence %.2f  whimsy %.2f\n", t.AutonomyConfidence, t.Whimsy)

			kinds := make([]activity.Kind, 0, len(s.Desires))
			for k := range s.Desires {
				kinds = append(kinds, k)
			}
			sort.Slice(kinds, func(i, j int) bool {
				if s.Desires[kinds[i]] != s.Desires[kinds[j]] {
					return s.Desires[kinds[i]] > s.Desires[kinds[j]]
				}
				return kinds[i] < kinds[j]
			})
			b.WriteString("Desires:\n")
			for _, k := range kinds {
				marker := ""
				if s.Desires[k] >= 1.0 {
					marker = " !"
				}
				fmt.Fprintf(&b, "  %-20s %.3f%s\n", k, s.Desires[k], marker)
			}
			switch {
			case s.Altered != nil:
				fmt.Fprintf(&b, "Altered: %s, %s left\n", s.Altered.Kind, s.Altered.Remaining)
			case s.CooldownUntil != nil:
				fmt.Fprintf(&b, "Altered: cooling down until %s\n", s.CooldownUntil.Format("15:04"))
			}
			fmt.Fprintf(&b, "Decisions: %d recent, %d chosen", s.Decisions, s.Chosen)
			return &CommandResult{Content: b.String(), Data: s}, nil
		},
	}
}

func (m *Mentor) learningCommand() *Command {
	return &Command{
		Name:        "learning",
		Description: "Show what the agent learned from corrections",
		Usage:       "/learning",
		Handler: func(_ context.Context, _ string, cc *CommandContext) (*CommandResult, error) {
			e, msg := m.engine(cc)
			if e == nil {
				return &CommandResult{Content: msg}, nil
			}
			t := e.Snapshot()
			var b strings.Builder
			fmt.Fprintf(&b, "Confidence %.2f, whimsy %.2f, stage %s\n", t.AutonomyConfidence, t.Whimsy, t.Stage)
			if m.Growth != nil {
				if r, ok := m.Growth.Get(e.ID()); ok {
					fmt.Fprintf(&b, "Mentor interactions: %d since %s\n", r.Interactions, r.Since.Format(time.DateOnly))
				}
			}
			insights := e.Insights()
			if len(insights) == 0 {
				b.WriteString("No corrections yet.")
				return &CommandResult{Content: b.String()}, nil
			}
			b.WriteString("Recent corrections:\n")
			for i := len(insights) - 1; i >= 0; i-- {
				in := insights[i]
				reason := in.Reason
				if reason == "" {
					reason = "unspecified"
				}
				fmt.Fprintf(&b, "  %s %s (%s): %s\n", in.At.Format("01-02 15:04"), in.Kind, reason, formatDeltas(in.Deltas))
			}
			return &CommandResult{Content: b.String(), Data: insights}, nil
		},
	}
}

func (m *Mentor) choicesCommand() *Command {
	return &Command{
		Name:        "choices",
		Description: "Show recent autonomous choices",
		Usage:       "/choices [n]",
		Handler: func(_ context.Context, args string, cc *CommandContext) (*CommandResult, error) {
			e, msg := m.engine(cc)
			if e == nil {
				return &CommandResult{Content: msg}, nil
			}
			n := DefaultChoices
			if args != "" {
				v, err := strconv.Atoi(args)
				if err != nil || v <= 0 {
					return &CommandResult{Content: "Usage: /choices [n]"}, nil
				}
				n = v
			}
			recs := e.Recent(n)
			if len(recs) == 0 {
				return &CommandResult{Content: "No choices yet."}, nil
			}
			var b strings.Builder
			b.WriteString("Recent choices:\n")
			for i := len(recs) - 1; i >= 0; i-- {
				r := recs[i]
				verdict := "declined"
				if r.Chosen {
					verdict = "chosen"
				}
				fmt.Fprintf(&b, "  %s %-20s %-8s p=%.2f desire=%.2f", r.Timestamp.Format("01-02 15:04"), r.Kind, verdict, r.Probability, r.DesireScore)
				if r.Annotation != nil {
					fmt.Fprintf(&b, " [%s]", r.Annotation.Outcome)
				}
				b.WriteByte('\n')
			}
			return &CommandResult{Content: b.String(), Data: recs}, nil
		},
	}
}

// formatDeltas renders trait changes as "field +0.10, field -0.05", sorted
// by field.
func formatDeltas(d map[traits.Field]float64) string {
	fields := make([]string, 0, len(d))
	for f := range d {
		fields = append(fields, string(f))
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s %+.2f", f, d[traits.Field(f)])
	}
	return strings.Join(parts, ", ")
}

func joinKinds(kinds []altered.Kind) string {
	s := make([]string, len(kinds))
	for i, k := range kinds {
		s[i] = string(k)
	}
	return strings.Join(s, ", ")
}
