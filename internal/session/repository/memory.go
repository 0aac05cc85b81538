package repository

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"course-admin/backend/internal/session/domain"
)

type memEntry struct {
	s         *domain.Session
	expiresAt time.Time
}

// MemoryStore is an in-process Store with TTL expiry. For tests and single-instance development only;
// sessions do not survive a restart and are not shared between instances.
type MemoryStore struct {
	mu     sync.RWMutex
	m      map[string]memEntry
	byUser map[string]map[string]struct{}
	nowF   func() time.Time
}

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock returns an in-memory store that evaluates TTLs against now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		m:      make(map[string]memEntry),
		byUser: make(map[string]map[string]struct{}),
		nowF:   now,
	}
}

// Put upserts s with the given ttl.
func (s *MemoryStore) Put(ctx context.Context, sess *domain.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(sess, ttl)
	return nil
}

func (s *MemoryStore) putLocked(sess *domain.Session, ttl time.Duration) {
	s.m[sess.ID] = memEntry{s: sess.Clone(), expiresAt: s.nowF().Add(ttl)}
	ids, ok := s.byUser[sess.UserID]
	if !ok {
		ids = make(map[string]struct{})
		s.byUser[sess.UserID] = ids
	}
	ids[sess.ID] = struct{}{}
}

// Get returns the record for id, or nil when absent or expired.
func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(id)
	if !ok {
		return nil, nil
	}
	return e.s.Clone(), nil
}

// Delete removes the record for id and reports whether a live record existed.
func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(id)
	if !ok {
		return false, nil
	}
	delete(s.m, id)
	if ids := s.byUser[e.s.UserID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byUser, e.s.UserID)
		}
	}
	return true, nil
}

// ListByUser returns the ids indexed for userID. Expired ids may be included, as with the Redis store.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byUser[userID]
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out, nil
}

// Unindex removes ids from userID's index.
func (s *MemoryStore) Unindex(ctx context.Context, userID string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.byUser[userID]
	for _, id := range ids {
		delete(set, id)
	}
	if set != nil && len(set) == 0 {
		delete(s.byUser, userID)
	}
	return nil
}

// CompareAndSwap replaces the record if its stored refresh hash equals expectedRefreshHash.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, sess *domain.Session, expectedRefreshHash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(sess.ID)
	if !ok {
		return ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(e.s.RefreshTokenHash), []byte(expectedRefreshHash)) != 1 {
		return ErrConflict
	}
	s.putLocked(sess, ttl)
	return nil
}

// Touch writes s back unless it was deleted or rotated since it was read.
func (s *MemoryStore) Touch(ctx context.Context, sess *domain.Session, ttl time.Duration) error {
	return s.CompareAndSwap(ctx, sess, sess.RefreshTokenHash, ttl)
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// liveLocked returns the entry for id, dropping it if expired. Caller must hold the write lock.
func (s *MemoryStore) liveLocked(id string) (memEntry, bool) {
	e, ok := s.m[id]
	if !ok {
		return memEntry{}, false
	}
	if !e.expiresAt.After(s.nowF()) {
		delete(s.m, id)
		return memEntry{}, false
	}
	return e, true
}
