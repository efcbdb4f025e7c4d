package quiz

import (
	"context"
	"sync"
	"time"

	"checkin/internal/session"
)

// Registry keeps one Flow per session id and forgets flows left idle.
type Registry struct {
	deps     Deps
	cfg      Config
	sessions session.Provider
	idleTTL  time.Duration

	mu    sync.Mutex
	flows map[string]*Flow
}

// NewRegistry builds a registry. idleTTL <= 0 keeps flows forever.
func NewRegistry(deps Deps, cfg Config, sessions session.Provider, idleTTL time.Duration) *Registry {
	return &Registry{
		deps:     deps,
		cfg:      cfg,
		sessions: sessions,
		idleTTL:  idleTTL,
		flows:    make(map[string]*Flow),
	}
}

// Get returns the flow of a session, creating it on first use.
func (r *Registry) Get(sessionID string) *Flow {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[sessionID]
	if !ok {
		f = NewFlow(r.deps, r.cfg, r.sessions.For(sessionID))
		r.flows[sessionID] = f
	}
	return f
}

// Reset drops the flow of a session so the next Get starts over.
func (r *Registry) Reset(sessionID string) {
	r.mu.Lock()
	delete(r.flows, sessionID)
	r.mu.Unlock()
}

// Len returns the number of tracked flows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Sweep removes flows idle for longer than the TTL and returns how many were
// removed. Flows still loading are kept.
func (r *Registry) Sweep(now time.Time) int {
	if r.idleTTL <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, f := range r.flows {
		since, idle := f.IdleSince()
		if idle && now.Sub(since) > r.idleTTL {
			delete(r.flows, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx ends.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 && r.deps.Log != nil {
				r.deps.Log.Debugw("idle join flows removed", "count", n)
			}
		}
	}
}
