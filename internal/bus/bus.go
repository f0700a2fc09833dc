// Package bus carries engine events and mentor feedback over Redis Streams.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType tags what an Event describes.
type EventType string

const (
	EventDecision EventType = "decision"
	EventFeedback EventType = "feedback"
	EventAltered  EventType = "altered"
	EventCreation EventType = "creation"
)

const (
	eventStreamPrefix    = "nuka-drive:events:"
	feedbackStreamPrefix = "nuka-drive:feedback:"
)

// Event is one message on a stream.
type Event struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agent_id"`
	Type      EventType       `json:"type"`
	Kind      string          `json:"kind,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent builds an event with payload encoded as JSON.
func NewEvent(agentID string, typ EventType, kind string, payload any, at time.Time) (Event, error) {
	ev := Event{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Type:      typ,
		Kind:      kind,
		Timestamp: at,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		ev.Payload = data
	}
	return ev, nil
}

// EventStream is the stream an agent's outgoing events are written to.
func EventStream(agentID string) string { return eventStreamPrefix + agentID }

// FeedbackStream is the stream mentor feedback for an agent is read from.
func FeedbackStream(agentID string) string { return feedbackStreamPrefix + agentID }

// Bus is a Redis Streams client.
type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New connects to redisURL.
func New(ctx context.Context, redisURL string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{rdb: rdb, logger: logger}, nil
}

// Publish appends ev to the agent's event stream.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	return b.publish(ctx, EventStream(ev.AgentID), ev)
}

// PublishFeedback appends ev to the agent's feedback stream.
func (b *Bus) PublishFeedback(ctx context.Context, ev Event) error {
	return b.publish(ctx, FeedbackStream(ev.AgentID), ev)
}

func (b *Bus) publish(ctx context.Context, stream string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}
	b.logger.Debug("published event",
		zap.String("stream", stream),
		zap.String("agent", ev.AgentID),
		zap.String("type", string(ev.Type)))
	return nil
}

// Subscribe reads new events from stream until ctx is cancelled. The channel
// is closed when the reader stops.
func (b *Bus) Subscribe(ctx context.Context, stream string) <-chan Event {
	ch := make(chan Event, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			if ctx.Err() != nil {
				return
			}
			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					b.logger.Warn("stream read failed", zap.String("stream", stream), zap.Error(err))
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					ev, ok := decode(msg.Values)
					if !ok {
						b.logger.Warn("dropping malformed event", zap.String("stream", stream), zap.String("id", msg.ID))
						continue
					}
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

func decode(values map[string]interface{}) (Event, bool) {
	data, ok := values["data"].(string)
	if !ok {
		return Event{}, false
	}
	var ev Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return Event{}, false
	}
	return ev, true
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
