package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

type memoryData struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// MemoryStore keeps sessions in process memory. Keys are namespaced by prefix,
// so views created with WithPrefix share one keyspace.
type MemoryStore struct {
	*memoryData
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(prefix string, ttl time.Duration) *MemoryStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		memoryData: &memoryData{entries: make(map[string]memoryEntry)},
		ttl:        ttl,
		prefix:     prefix,
		now:        time.Now,
	}
}

// WithPrefix returns a view of the same sessions under another namespace.
func (m *MemoryStore) WithPrefix(prefix string) *MemoryStore {
	return &MemoryStore{
		memoryData: m.memoryData,
		ttl:        m.ttl,
		prefix:     prefix,
		now:        m.now,
	}
}

// Caller must hold m.mu
func (m *MemoryStore) get(key string) *Session {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return e.session
}

// Caller must hold m.mu
func (m *MemoryStore) put(key string, s *Session) {
	m.entries[key] = memoryEntry{session: s.Clone(), expiresAt: m.now().Add(m.ttl)}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(m.prefix, s.ID)
	if m.get(key) != nil {
		return ErrConflict
	}
	now := m.now()
	s.CreatedAt = now
	s.UpdatedAt = now
	m.put(key, s)
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(Key(m.prefix, id)).Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = m.now()
	m.put(Key(m.prefix, s.ID), s)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(m.prefix, id)
	existed := m.get(key) != nil
	delete(m.entries, key)
	return existed, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, fn UpdateFunc) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(m.prefix, id)
	next, err := fn(m.get(key).Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		delete(m.entries, key)
		return nil, nil
	}
	next.ID = id
	next.UpdatedAt = m.now()
	m.put(key, next)
	return next.Clone(), nil
}

// Sweep drops expired sessions across all prefixes and returns how many went.
// Reads already ignore expired entries; Sweep only reclaims their memory.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions across all prefixes, expired
// entries included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) Close() error {
	return nil
}
