package autonomy

import (
	"sort"
	"sync"
)

// Registry maps agent IDs to their engines.
type Registry struct {
	engines map[string]*Engine
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]*Engine)}
}

// Register adds or replaces an engine under its ID.
func (r *Registry) Register(e *Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.ID()] = e
}

// Get returns the engine for agentID.
func (r *Registry) Get(agentID string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[agentID]
	return e, ok
}

// GetOrCreate returns the engine for agentID, building one with create if
// none is registered.
func (r *Registry) GetOrCreate(agentID string, create func(id string) *Engine) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[agentID]; ok {
		return e
	}
	e := create(agentID)
	r.engines[agentID] = e
	return e
}

// Remove drops an engine.
func (r *Registry) Remove(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engines, agentID)
}

// IDs returns the registered agent IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns the engines ordered by ID.
func (r *Registry) List() []*Engine {
	ids := r.IDs()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Engine, 0, len(ids))
	for _, id := range ids {
		if e, ok := r.engines[id]; ok {
			out = append(out, e)
		}
	}
	return out
}
