// Package cache provides the hash-keyed, time-bounded query result cache
// used by the RAG pipeline. The cache is an injected dependency scoped
// per tenant, with a pluggable backing store: an in-memory map for tests
// and development, a Postgres table in the tenant schema for production.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL bounds how long a cached response stays servable. Validity
// is computed at read time; expired entries linger until overwritten.
const DefaultTTL = 24 * time.Hour

// Entry is one cached response payload.
type Entry struct {
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Store is the backing key-value store for cached responses.
// Get returns (nil, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, payload []byte, createdAt time.Time) error
}

// KeyFor derives the cache key from the full request parameter set.
// Marshaling a map canonicalizes it (JSON object keys sort, recursively
// through nested maps), so semantically identical requests collide
// regardless of field order.
func KeyFor(params map[string]any) (string, error) {
	canonical, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize cache params: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// QueryCache wraps a Store with TTL validity checks.
type QueryCache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// New creates a QueryCache over the given store with DefaultTTL.
func New(store Store) *QueryCache {
	return NewWithTTL(store, DefaultTTL)
}

// NewWithTTL creates a QueryCache with an explicit TTL.
func NewWithTTL(store Store, ttl time.Duration) *QueryCache {
	return &QueryCache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the cached payload for key, or (nil, false) when the key
// is absent or the entry has aged out. Expired entries are treated as
// absent but not purged; the next Put overwrites them.
func (c *QueryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if entry == nil || !c.IsValid(entry) {
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

// Put stores payload under key, overwriting any previous entry
// (last writer wins for concurrent requests sharing a key).
func (c *QueryCache) Put(ctx context.Context, key string, payload []byte) error {
	return c.store.Put(ctx, key, payload, c.now().UTC())
}

// IsValid reports whether an entry is still within the TTL window.
func (c *QueryCache) IsValid(entry *Entry) bool {
	if entry == nil {
		return false
	}
	return c.now().Sub(entry.CreatedAt) < c.ttl
}

// MemoryStore is a process-local Store implementation. Contents are lost
// on restart, which only costs cache benefit, never correctness.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, payload []byte, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = Entry{Key: key, Payload: payload, CreatedAt: createdAt}
	return nil
}

// Len returns the number of stored entries, valid or expired.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
