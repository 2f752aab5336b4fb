// Package memory provides an in-process implementation of persist.Store.
// Suitable for tests and single-process hosts; snapshots do not survive a
// restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/formsmith/stepflow-go/persist"
	"github.com/formsmith/stepflow-go/state"
)

type entry struct {
	snap      state.Snapshot
	expiresAt time.Time // zero = no expiry
}

// Store implements persist.Store with a mutex-guarded map.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used for TTL expiry.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// New constructs an empty in-memory snapshot store.
func New(opts ...StoreOption) *Store {
	s := &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save implements persist.Store.
func (s *Store) Save(ctx context.Context, formID string, snap state.Snapshot, opts ...persist.Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	o := persist.Resolve(opts)

	e := entry{snap: snap}
	if o.TTL > 0 {
		e.expiresAt = s.now().Add(o.TTL)
	}

	s.mu.Lock()
	s.entries[formID] = e
	s.mu.Unlock()
	return nil
}

// Load implements persist.Store.
func (s *Store) Load(ctx context.Context, formID string) (state.Snapshot, error) {
	if ctx.Err() != nil {
		return state.Snapshot{}, ctx.Err()
	}

	s.mu.RLock()
	e, ok := s.entries[formID]
	s.mu.RUnlock()

	if !ok {
		return state.Snapshot{}, persist.ErrNotFound
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, formID)
		s.mu.Unlock()
		return state.Snapshot{}, persist.ErrNotFound
	}
	return e.snap, nil
}

// Delete implements persist.Store.
func (s *Store) Delete(ctx context.Context, formID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	delete(s.entries, formID)
	s.mu.Unlock()
	return nil
}

// Close implements persist.Store. The map is dropped so a late Load fails
// cleanly rather than returning stale data.
func (s *Store) Close() error {
	s.mu.Lock()
	s.entries = make(map[string]entry)
	s.mu.Unlock()
	return nil
}

var _ persist.Store = (*Store)(nil)
