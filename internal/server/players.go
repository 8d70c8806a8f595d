package server

import (
	"context"
	"sync"

	"soundshift/internal/playback"
)

// PlayerRegistry owns one playback sync per logged-in user. Syncs are
// created lazily on first player request and stopped on logout or shutdown
// so no poller outlives its session.
type PlayerRegistry struct {
	baseCtx context.Context
	mu      sync.Mutex
	syncs   map[string]*playback.Sync
	factory func(userID string) *playback.Sync
}

// NewPlayerRegistry creates a registry that builds syncs with factory.
// Pollers run on baseCtx, not on any request context, so they survive the
// request that created them.
func NewPlayerRegistry(baseCtx context.Context, factory func(userID string) *playback.Sync) *PlayerRegistry {
	return &PlayerRegistry{
		baseCtx: baseCtx,
		syncs:   map[string]*playback.Sync{},
		factory: factory,
	}
}

// Get returns the running sync for userID, starting one on first use.
func (r *PlayerRegistry) Get(userID string) (*playback.Sync, error) {
	r.mu.Lock()
	if s, ok := r.syncs[userID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	s := r.factory(userID)
	r.syncs[userID] = s
	r.mu.Unlock()

	if err := s.Start(r.baseCtx); err != nil {
		r.mu.Lock()
		delete(r.syncs, userID)
		r.mu.Unlock()
		return nil, err
	}
	return s, nil
}

// Drop stops and removes the sync for userID, if any.
func (r *PlayerRegistry) Drop(userID string) {
	r.mu.Lock()
	s, ok := r.syncs[userID]
	delete(r.syncs, userID)
	r.mu.Unlock()

	if ok {
		s.Stop()
	}
}

// Shutdown stops every running sync.
func (r *PlayerRegistry) Shutdown() {
	r.mu.Lock()
	syncs := make([]*playback.Sync, 0, len(r.syncs))
	for _, s := range r.syncs {
		syncs = append(syncs, s)
	}
	r.syncs = map[string]*playback.Sync{}
	r.mu.Unlock()

	for _, s := range syncs {
		s.Stop()
	}
}
