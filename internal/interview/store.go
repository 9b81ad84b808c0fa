package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"interview-concierge/internal/crypto"

	"github.com/redis/go-redis/v9"
)

// Store persists flow state between requests and restarts
type Store interface {
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, state *State) error
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps flows in process memory. Expired entries are dropped
// on Load and swept on Save at most once per sweepInterval.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryStore creates an in-memory store. ttl <= 0 keeps flows forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Load returns a copy of the stored state or ErrFlowNotFound
func (m *MemoryStore) Load(ctx context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrFlowNotFound
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(m.entries, id)
		return nil, ErrFlowNotFound
	}

	var state State
	if err := json.Unmarshal(entry.data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode flow: %w", err)
	}
	return &state, nil
}

// Save stores a snapshot of the state
func (m *MemoryStore) Save(ctx context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode flow: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.ttl > 0 && now.Sub(m.lastSweep) >= sweepInterval {
		m.lastSweep = now
		for id, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, id)
			}
		}
	}

	entry := memoryEntry{data: data}
	if m.ttl > 0 {
		entry.expiresAt = now.Add(m.ttl)
	}
	m.entries[state.ID] = entry
	return nil
}

// size counts stored flows, expired ones included until swept
func (m *MemoryStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RedisStore keeps flows in Redis under interview:flow:<id>. With a key
// set, snapshots are sealed with AES-256-GCM.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	key    []byte
}

// NewRedisStore connects to redisURL and checks the connection
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

// SetEncryptionKey seals snapshots written from now on with key
func (r *RedisStore) SetEncryptionKey(key []byte) {
	r.key = key
}

func flowKey(id string) string {
	return "interview:flow:" + id
}

// Load reads a flow or returns ErrFlowNotFound
func (r *RedisStore) Load(ctx context.Context, id string) (*State, error) {
	data, err := r.client.Get(ctx, flowKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load flow: %w", err)
	}
	if r.key != nil {
		if data, err = crypto.Open(data, r.key); err != nil {
			return nil, fmt.Errorf("failed to open flow: %w", err)
		}
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode flow: %w", err)
	}
	return &state, nil
}

// Save writes the flow and refreshes its TTL
func (r *RedisStore) Save(ctx context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode flow: %w", err)
	}
	if r.key != nil {
		if data, err = crypto.Seal(data, r.key); err != nil {
			return fmt.Errorf("failed to seal flow: %w", err)
		}
	}

	if err := r.client.Set(ctx, flowKey(state.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}
	return nil
}

// Close closes the redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}
