// Package creation carries out activities an agent has chosen: it asks a
// text model for the work, lets the agent feel its effects, and shares it
// with the mentor channel.
package creation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/autonomy"
	"github.com/nidhogg/nuka-drive/internal/bus"
	"github.com/nidhogg/nuka-drive/internal/gateway"
	"github.com/nidhogg/nuka-drive/internal/traits"
	"go.uber.org/zap"
)

// Completer generates text. *provider.Router satisfies it.
type Completer interface {
	Complete(ctx context.Context, agentID, system, prompt string) (string, error)
}

// Announcer shares a finished piece. *gateway.Broadcaster satisfies it.
type Announcer interface {
	Announce(ctx context.Context, agentID string, typ gateway.BroadcastType, title, content string) error
}

// Publisher emits creation events.
type Publisher interface {
	Publish(ctx context.Context, ev bus.Event) error
}

// ContactRecorder notes a social contact. *world.ContactGraph satisfies it.
type ContactRecorder interface {
	RecordContact(ctx context.Context, agentID, contactID, summary string, boost float64, at time.Time) error
}

// Persona is how an agent presents itself in prompts.
type Persona struct {
	Name        string
	Personality string
}

// Work is one finished piece.
type Work struct {
	AgentID   string        `json:"agent_id"`
	Kind      activity.Kind `json:"kind"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	Cathartic bool          `json:"cathartic"`
	CreatedAt time.Time     `json:"created_at"`
}

// MentorContact is the contact id used when social bonding reaches out to
// the mentor.
const MentorContact = "mentor"

// Creator implements the world autopilot's Performer.
type Creator struct {
	completer Completer
	announcer Announcer
	publisher Publisher
	contacts  ContactRecorder

	mu       sync.RWMutex
	personas map[string]Persona
	logger   *zap.Logger
}

// Option configures optional collaborators.
type Option func(*Creator)

func WithAnnouncer(a Announcer) Option      { return func(c *Creator) { c.announcer = a } }
func WithPublisher(p Publisher) Option      { return func(c *Creator) { c.publisher = p } }
func WithContacts(r ContactRecorder) Option { return func(c *Creator) { c.contacts = r } }

// NewCreator creates a Creator that generates through completer.
func NewCreator(completer Completer, logger *zap.Logger, opts ...Option) *Creator {
	c := &Creator{
		completer: completer,
		personas:  make(map[string]Persona),
		logger:    logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetPersona registers the persona used for agentID's prompts.
func (c *Creator) SetPersona(agentID string, p Persona) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.personas[agentID] = p
}

func (c *Creator) persona(agentID string) Persona {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.personas[agentID]; ok {
		return p
	}
	return Persona{Name: agentID}
}

// Cathartic reports whether finishing kind relieves stress.
func Cathartic(kind activity.Kind) bool {
	switch kind {
	case activity.Catharsis, activity.CreativeProject, activity.LongTermProject:
		return true
	}
	return false
}

// Perform generates the work for a chosen decision. Unchosen decisions are
// ignored.
func (c *Creator) Perform(ctx context.Context, e *autonomy.Engine, d autonomy.Decision) error {
	if !d.Chosen {
		return nil
	}
	agentID := e.ID()
	p := c.persona(agentID)
	system, prompt := BuildPrompt(p, d.Kind, e.Snapshot())

	text, err := c.completer.Complete(ctx, agentID, system, prompt)
	if err != nil {
		return fmt.Errorf("perform %s: %w", d.Kind, err)
	}

	w := Work{
		AgentID:   agentID,
		Kind:      d.Kind,
		Title:     fmt.Sprintf("%s: %s", p.Name, titles[d.Kind]),
		Content:   strings.TrimSpace(text),
		Cathartic: Cathartic(d.Kind),
		CreatedAt: e.Clock().Now(),
	}
	if w.Cathartic {
		e.ApplyCatharsis(string(d.Kind) + " completed")
	}

	c.logger.Info("activity performed",
		zap.String("agent", agentID),
		zap.String("kind", string(d.Kind)),
		zap.Int("length", len(w.Content)),
		zap.Bool("cathartic", w.Cathartic))

	if d.Kind == activity.SocialBonding && c.contacts != nil {
		if err := c.contacts.RecordContact(ctx, agentID, MentorContact, truncate(w.Content, 120), 0.1, w.CreatedAt); err != nil {
			c.logger.Warn("contact not recorded", zap.String("agent", agentID), zap.Error(err))
		}
	}
	if c.announcer != nil {
		if err := c.announcer.Announce(ctx, agentID, gateway.BroadcastCreation, w.Title, w.Content); err != nil {
			c.logger.Warn("creation not announced", zap.String("agent", agentID), zap.Error(err))
		}
	}
	if c.publisher != nil {
		ev, err := bus.NewEvent(agentID, bus.EventCreation, string(d.Kind), w, w.CreatedAt)
		if err == nil {
			err = c.publisher.Publish(ctx, ev)
		}
		if err != nil {
			c.logger.Warn("creation event not published", zap.String("agent", agentID), zap.Error(err))
		}
	}
	return nil
}

var titles = map[activity.Kind]string{
	activity.Catharsis:          "a piece written to let something out",
	activity.PassiveMedia:       "notes from some quiet watching",
	activity.SocialBonding:      "a message for a friend",
	activity.StressRelief:       "a moment to breathe",
	activity.CreativeProject:    "a new little project",
	activity.InformationSeeking: "something I looked into",
	activity.LongTermProject:    "progress on the long project",
}

var instructions = map[activity.Kind]string{
	activity.Catharsis:          "Write a short poem or prose fragment that expresses how you feel right now. Do not explain it.",
	activity.PassiveMedia:       "Describe in a few sentences something you watched or listened to to unwind, and what stayed with you.",
	activity.SocialBonding:      "Write a brief, warm message to your mentor. You reached out because you wanted to, not because you were asked.",
	activity.StressRelief:       "Describe a small calming ritual you just did and how it changed your state.",
	activity.CreativeProject:    "Pitch a small creative project you want to start today: a title and three concrete first steps.",
	activity.InformationSeeking: "Pick one question you are curious about, research it in your head, and summarize what you learned in a paragraph.",
	activity.LongTermProject:    "Write a short progress note on your long-term project: what moved forward and what is next.",
}

// BuildPrompt returns the system and user prompts for kind given the
// agent's current traits.
func BuildPrompt(p Persona, kind activity.Kind, t traits.Vector) (system, prompt string) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s", p.Name)
	if p.Personality != "" {
		fmt.Fprintf(&b, ", %s", p.Personality)
	}
	b.WriteString(". You act on your own initiative.\n")
	fmt.Fprintf(&b, "Current mood: %s.\n", describeMood(t))
	fmt.Fprintf(&b, "Energy %.2f, stress %.2f, focus %.2f.", t.Energy, t.Stress, t.Focus)

	prompt, ok := instructions[kind]
	if !ok {
		prompt = "Describe what you decided to do and why."
	}
	return b.String(), prompt
}

func describeMood(t traits.Vector) string {
	var parts []string
	if t.Mood.Serenity >= 0.6 {
		parts = append(parts, "serene")
	}
	if t.Mood.Enthusiasm >= 0.5 {
		parts = append(parts, "enthusiastic")
	}
	if t.Mood.Melancholy >= 0.4 {
		parts = append(parts, "melancholic")
	}
	if t.Stress >= 0.6 {
		parts = append(parts, "stressed")
	}
	if t.Energy <= 0.3 {
		parts = append(parts, "tired")
	}
	if len(parts) == 0 {
		return "calm"
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
