// Package persist defines the snapshot store used to save and resume
// half-completed form sessions. A snapshot is the plain-data export of a
// session's state store plus step position; backends only ever see opaque
// JSON, so the engine and the store implementations evolve independently.
//
// Implementations:
//
//	persist/memory : in-process map with TTL expiry, for tests and
//	                 single-process hosts
//	persist/redis  : Redis-backed, for hosts that survive restarts or run
//	                 across instances
package persist

import (
	"context"
	"errors"
	"time"

	"github.com/formsmith/stepflow-go/state"
)

// ErrNotFound is returned by Load when no snapshot exists for the form id
// (including when a previous snapshot has expired).
var ErrNotFound = errors.New("snapshot not found")

// Store saves and restores session snapshots keyed by form id.
type Store interface {
	// Save stores the snapshot for formID, replacing any previous one.
	Save(ctx context.Context, formID string, snap state.Snapshot, opts ...Option) error

	// Load returns the stored snapshot for formID, or ErrNotFound.
	Load(ctx context.Context, formID string) (state.Snapshot, error)

	// Delete removes the snapshot for formID. Deleting a missing snapshot is
	// not an error.
	Delete(ctx context.Context, formID string) error

	// Close releases backend resources.
	Close() error
}

// Option configures a Save operation.
type Option func(*Options)

// Options holds resolved Save configuration.
type Options struct {
	// TTL bounds the snapshot's lifetime. Zero means no expiry.
	TTL time.Duration
}

// WithTTL sets the snapshot's time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) { o.TTL = ttl }
}

// Resolve applies opts to a zero Options value.
func Resolve(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
