package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var ErrNoAdapter = errors.New("no adapter for platform")

// Gateway manages all platform adapters and routes messages.
type Gateway struct {
	adapters map[string]Adapter
	handler  MessageHandler
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewGateway creates a gateway manager.
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// SetHandler sets the callback for all inbound messages.
func (g *Gateway) SetHandler(h MessageHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = h
}

// Register adds an adapter and wires its message handler.
func (g *Gateway) Register(adapter Adapter) {
	g.mu.Lock()
	defer g.mu.Unlock()

	platform := adapter.Platform()
	g.adapters[platform] = adapter
	adapter.OnMessage(g.dispatch)
	g.logger.Info("registered gateway adapter", zap.String("platform", platform))
}

func (g *Gateway) dispatch(msg *InboundMessage) {
	g.mu.RLock()
	h := g.handler
	g.mu.RUnlock()
	if h != nil {
		h(msg)
	}
}

// ConnectAll starts all registered adapters. A failing adapter is logged and
// skipped; the joined errors are returned.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	var errs []error
	for _, adapter := range g.sorted() {
		platform := adapter.Platform()
		if err := adapter.Connect(ctx); err != nil {
			g.logger.Error("adapter connect failed",
				zap.String("platform", platform), zap.Error(err))
			errs = append(errs, fmt.Errorf("connect %s: %w", platform, err))
			continue
		}
		g.logger.Info("adapter connected", zap.String("platform", platform))
	}
	return errors.Join(errs...)
}

// Send sends a message to a specific platform channel.
func (g *Gateway) Send(ctx context.Context, msg *OutboundMessage) error {
	g.mu.RLock()
	adapter, ok := g.adapters[msg.Platform]
	g.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAdapter, msg.Platform)
	}
	return adapter.Send(ctx, msg)
}

// Broadcast sends a message to all matching platform adapters and returns
// the platforms it reached.
func (g *Gateway) Broadcast(ctx context.Context, msg *BroadcastMessage) ([]string, error) {
	targets := g.sorted()
	if len(msg.Platforms) > 0 {
		want := make(map[string]bool, len(msg.Platforms))
		for _, p := range msg.Platforms {
			want[p] = true
		}
		filtered := targets[:0:0]
		for _, a := range targets {
			if want[a.Platform()] {
				filtered = append(filtered, a)
			}
		}
		targets = filtered
	}

	var reached []string
	var errs []error
	for _, adapter := range targets {
		if err := adapter.Broadcast(ctx, msg); err != nil {
			g.logger.Error("broadcast failed",
				zap.String("platform", adapter.Platform()), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		reached = append(reached, adapter.Platform())
	}
	if len(errs) > 0 {
		return reached, fmt.Errorf("broadcast failed on %d platform(s): %w", len(errs), errors.Join(errs...))
	}
	return reached, nil
}

// Close shuts down all adapters.
func (g *Gateway) Close() error {
	for _, adapter := range g.sorted() {
		if err := adapter.Close(); err != nil {
			g.logger.Error("adapter close failed",
				zap.String("platform", adapter.Platform()), zap.Error(err))
		}
	}
	return nil
}

// Adapters returns the registered platform names, sorted.
func (g *Gateway) Adapters() []string {
	adapters := g.sorted()
	names := make([]string, len(adapters))
	for i, a := range adapters {
		names[i] = a.Platform()
	}
	return names
}

// StatusAll reports every adapter. Adapters without their own status are
// reported as connected once registered.
func (g *Gateway) StatusAll() []AdapterStatus {
	adapters := g.sorted()
	out := make([]AdapterStatus, 0, len(adapters))
	for _, a := range adapters {
		if r, ok := a.(StatusReporter); ok {
			out = append(out, r.Status())
			continue
		}
		out = append(out, AdapterStatus{Platform: a.Platform(), Connected: true})
	}
	return out
}

func (g *Gateway) sorted() []Adapter {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Adapter, 0, len(g.adapters))
	for _, a := range g.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform() < out[j].Platform() })
	return out
}
