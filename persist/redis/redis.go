// Package redis provides a Redis-backed implementation of persist.Store,
// for hosts that need form sessions to survive process restarts or be
// resumable from another instance.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/formsmith/stepflow-go/persist"
	"github.com/formsmith/stepflow-go/state"
)

// Config for the Redis snapshot store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all snapshot keys. ENV: STEPFLOW_KEY_PREFIX
	KeyPrefix string `env:"STEPFLOW_KEY_PREFIX,default=stepflow:forms:"`

	// Client, when set, is used instead of dialing RedisAddr. The caller
	// retains ownership; Close will not close it.
	Client *redis.Client
}

// Store implements persist.Store on a Redis string key per form id.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ownClient bool
}

// New constructs a Store from cfg, dialing Redis unless a client was
// supplied.
func New(cfg Config) (*Store, error) {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "stepflow:forms:"
	}

	client := cfg.Client
	ownClient := false
	if client == nil {
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{Addr: addr})
		ownClient = true
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	return &Store{client: client, keyPrefix: prefix, ownClient: ownClient}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	// Defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

func (s *Store) key(formID string) string { return s.keyPrefix + formID }

// Save implements persist.Store.
func (s *Store) Save(ctx context.Context, formID string, snap state.Snapshot, opts ...persist.Option) error {
	o := persist.Resolve(opts)

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(formID), data, o.TTL).Err(); err != nil {
		return fmt.Errorf("save snapshot %q: %w", formID, err)
	}
	return nil
}

// Load implements persist.Store.
func (s *Store) Load(ctx context.Context, formID string) (state.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(formID)).Bytes()
	if err == redis.Nil {
		return state.Snapshot{}, persist.ErrNotFound
	}
	if err != nil {
		return state.Snapshot{}, fmt.Errorf("load snapshot %q: %w", formID, err)
	}

	var snap state.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return state.Snapshot{}, fmt.Errorf("unmarshal snapshot %q: %w", formID, err)
	}
	return snap, nil
}

// Delete implements persist.Store.
func (s *Store) Delete(ctx context.Context, formID string) error {
	if err := s.client.Del(ctx, s.key(formID)).Err(); err != nil {
		return fmt.Errorf("delete snapshot %q: %w", formID, err)
	}
	return nil
}

// Close implements persist.Store, closing the client only if this store
// dialed it.
func (s *Store) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}

var _ persist.Store = (*Store)(nil)
