package world

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/autonomy"
	"github.com/nidhogg/nuka-drive/internal/bus"
	"github.com/nidhogg/nuka-drive/internal/history"
	"github.com/nidhogg/nuka-drive/internal/learning"
	"github.com/nidhogg/nuka-drive/internal/store"
	"go.uber.org/zap"
)

var ErrAgentNotFound = errors.New("agent not found")

// Publisher emits engine events.
type Publisher interface {
	Publish(ctx context.Context, ev bus.Event) error
}

// Performer carries out an activity the agent chose.
type Performer interface {
	Perform(ctx context.Context, e *autonomy.Engine, d autonomy.Decision) error
}

// ContactSource answers how long an agent has been without social contact.
type ContactSource interface {
	HoursSinceContact(ctx context.Context, agentID string, now time.Time) (float64, bool, error)
}

// Autopilot runs one autonomy round per heartbeat: it lets mood and energy
// drift, refreshes urges, then asks the engine about each activity in order
// and performs the first one chosen. Activities that are passed over get
// NotChosen feedback.
type Autopilot struct {
	registry   *autonomy.Registry
	activities []activity.Kind
	contacts   ContactSource
	publisher  Publisher
	performer  Performer
	store      store.StateStore
	logger     *zap.Logger
}

// AutopilotOption configures optional collaborators.
type AutopilotOption func(*Autopilot)

func WithContacts(c ContactSource) AutopilotOption { return func(a *Autopilot) { a.contacts = c } }
func WithPublisher(p Publisher) AutopilotOption    { return func(a *Autopilot) { a.publisher = p } }
func WithPerformer(p Performer) AutopilotOption    { return func(a *Autopilot) { a.performer = p } }
func WithStore(s store.StateStore) AutopilotOption { return func(a *Autopilot) { a.store = s } }

// NewAutopilot creates an autopilot over reg. An empty activities list uses
// every activity kind.
func NewAutopilot(reg *autonomy.Registry, activities []activity.Kind, logger *zap.Logger, opts ...AutopilotOption) *Autopilot {
	if len(activities) == 0 {
		activities = activity.All
	}
	a := &Autopilot{
		registry:   reg,
		activities: activities,
		logger:     logger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Activities returns the kinds evaluated each round.
func (a *Autopilot) Activities() []activity.Kind { return a.activities }

// Beat runs one round for agentID. It satisfies HeartbeatFunc.
func (a *Autopilot) Beat(ctx context.Context, agentID string) error {
	e, ok := a.registry.Get(agentID)
	if !ok {
		return fmt.Errorf("beat %s: %w", agentID, ErrAgentNotFound)
	}
	now := e.Clock().Now()

	e.DecayMood()
	e.DrainEnergy()
	e.UpdateUrges(autonomy.UrgeInputs{RecentSentiment: autonomy.RecentSentiment(e.Recent(history.Capacity))})

	dc := autonomy.DecisionContext{Source: "heartbeat"}
	if a.contacts != nil {
		hours, known, err := a.contacts.HoursSinceContact(ctx, agentID, now)
		if err != nil {
			a.logger.Warn("contact lookup failed", zap.String("agent", agentID), zap.Error(err))
		} else if known {
			dc.HoursSinceContact = hours
		}
	}

	performed := false
	for _, kind := range a.activities {
		if performed {
			break
		}
		d := e.DecideDetailed(kind, dc)
		a.record(ctx, e, d)

		if !d.Chosen {
			e.ApplyFeedback(kind, learning.NotChosen{})
			continue
		}
		performed = true
		if a.performer == nil {
			continue
		}
		if err := a.performer.Perform(ctx, e, d); err != nil {
			a.logger.Warn("activity failed",
				zap.String("agent", agentID),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}

	if a.store != nil {
		if err := a.store.Save(ctx, e.State()); err != nil {
			return fmt.Errorf("beat %s: %w", agentID, err)
		}
	}
	return nil
}

func (a *Autopilot) record(ctx context.Context, e *autonomy.Engine, d autonomy.Decision) {
	if a.store != nil {
		if rec, ok := e.Record(d.RecordID); ok {
			if err := a.store.AppendDecision(ctx, e.ID(), rec); err != nil {
				a.logger.Warn("decision log write failed", zap.String("agent", e.ID()), zap.Error(err))
			}
		}
	}
	if a.publisher != nil {
		ev, err := bus.NewEvent(e.ID(), bus.EventDecision, string(d.Kind), d, e.Clock().Now())
		if err == nil {
			err = a.publisher.Publish(ctx, ev)
		}
		if err != nil {
			a.logger.Warn("decision event not published", zap.String("agent", e.ID()), zap.Error(err))
		}
	}
}
