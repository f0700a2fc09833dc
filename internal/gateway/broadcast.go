package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultHistory is the number of broadcast records kept.
const DefaultHistory = 50

// BroadcastRecord tracks a sent broadcast.
type BroadcastRecord struct {
	Message *BroadcastMessage `json:"message"`
	SentAt  time.Time         `json:"sent_at"`
	Targets []string          `json:"targets"`
}

// Broadcaster announces agent events to the mentor channels and keeps a
// bounded history of what was sent.
type Broadcaster struct {
	gateway *Gateway
	now     func() time.Time
	limit   int

	mu      sync.Mutex
	history []BroadcastRecord
	logger  *zap.Logger
}

// NewBroadcaster creates a broadcaster backed by the given gateway.
func NewBroadcaster(gw *Gateway, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		gateway: gw,
		now:     time.Now,
		limit:   DefaultHistory,
		logger:  logger,
	}
}

// Send broadcasts msg to all or the selected platforms.
func (b *Broadcaster) Send(ctx context.Context, msg *BroadcastMessage) error {
	if msg.Type == "" {
		return fmt.Errorf("broadcast type is required")
	}

	b.logger.Info("sending broadcast",
		zap.String("type", string(msg.Type)),
		zap.String("title", msg.Title),
		zap.String("agent", msg.AgentID),
	)

	targets, err := b.gateway.Broadcast(ctx, msg)
	if len(targets) > 0 {
		b.mu.Lock()
		b.history = append(b.history, BroadcastRecord{Message: msg, SentAt: b.now(), Targets: targets})
		if over := len(b.history) - b.limit; over > 0 {
			b.history = append([]BroadcastRecord(nil), b.history[over:]...)
		}
		b.mu.Unlock()
	}
	return err
}

// Announce is Send for a single agent event.
func (b *Broadcaster) Announce(ctx context.Context, agentID string, typ BroadcastType, title, content string) error {
	return b.Send(ctx, &BroadcastMessage{Type: typ, Title: title, Content: content, AgentID: agentID})
}

// History returns up to limit recent records, oldest first.
func (b *Broadcaster) History(limit int) []BroadcastRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}
	out := make([]BroadcastRecord, limit)
	copy(out, b.history[len(b.history)-limit:])
	return out
}
