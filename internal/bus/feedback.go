package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/autonomy"
	"github.com/nidhogg/nuka-drive/internal/history"
	"github.com/nidhogg/nuka-drive/internal/learning"
	"go.uber.org/zap"
)

var ErrUnknownAgent = errors.New("unknown agent")

// FeedbackPayload is the body of an EventFeedback event.
type FeedbackPayload struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

// ApplyFeedback applies a feedback event to the matching engine in reg.
func ApplyFeedback(reg *autonomy.Registry, ev Event) (history.Annotation, error) {
	if ev.Type != EventFeedback {
		return history.Annotation{}, fmt.Errorf("apply feedback: unexpected event type %q", ev.Type)
	}
	e, ok := reg.Get(ev.AgentID)
	if !ok {
		return history.Annotation{}, fmt.Errorf("apply feedback: %w: %s", ErrUnknownAgent, ev.AgentID)
	}
	kind, err := activity.Parse(ev.Kind)
	if err != nil {
		return history.Annotation{}, fmt.Errorf("apply feedback: %w", err)
	}
	var p FeedbackPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return history.Annotation{}, fmt.Errorf("apply feedback: decode payload: %w", err)
	}
	outcome, err := learning.ParseOutcome(p.Outcome, p.Reason)
	if err != nil {
		return history.Annotation{}, fmt.Errorf("apply feedback: %w", err)
	}
	return e.ApplyFeedback(kind, outcome), nil
}

// ConsumeFeedback applies feedback events for agentID until ctx is cancelled.
func (b *Bus) ConsumeFeedback(ctx context.Context, reg *autonomy.Registry, agentID string) {
	for ev := range b.Subscribe(ctx, FeedbackStream(agentID)) {
		a, err := ApplyFeedback(reg, ev)
		if err != nil {
			b.logger.Warn("feedback event rejected", zap.String("event", ev.ID), zap.Error(err))
			continue
		}
		b.logger.Info("feedback event applied",
			zap.String("agent", ev.AgentID),
			zap.String("kind", ev.Kind),
			zap.String("outcome", a.Outcome))
	}
}
