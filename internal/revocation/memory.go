package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local store for tests and single-node development.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   func() time.Time

	// FailReads forces read errors, simulating an unreachable store.
	FailReads bool
}

type memoryEntry struct {
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

var errStoreUnavailable = &unavailableError{}

type unavailableError struct{}

func (*unavailableError) Error() string { return "revocation: store unavailable" }

func (s *MemoryStore) Denylist(ctx context.Context, token string, ttl time.Duration) error {
	_ = ctx
	s.set(denyKey(token), ttl)
	return nil
}

func (s *MemoryStore) IsDenied(ctx context.Context, token string) (bool, error) {
	_ = ctx
	return s.exists(denyKey(token))
}

func (s *MemoryStore) CreateSession(ctx context.Context, id string, payload map[string]any, ttl time.Duration) error {
	_ = ctx
	_ = payload
	s.set(sessionKey(id), ttl)
	return nil
}

func (s *MemoryStore) TouchSession(ctx context.Context, id string, ttl time.Duration) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[sessionKey(id)]; ok {
		s.entries[sessionKey(id)] = memoryEntry{expiresAt: s.clock().Add(ttl)}
	}
	return nil
}

func (s *MemoryStore) SessionExists(ctx context.Context, id string) (bool, error) {
	_ = ctx
	return s.exists(sessionKey(id))
}

func (s *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionKey(id))
	return nil
}

func (s *MemoryStore) set(key string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{expiresAt: s.clock().Add(ttl)}
}

func (s *MemoryStore) exists(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReads {
		return false, errStoreUnavailable
	}
	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if s.clock().After(entry.expiresAt) {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}
