package repository

import (
	"context"
	"errors"
	"time"

	"course-admin/backend/internal/session/domain"
)

var (
	// ErrStoreUnavailable wraps transport failures and timeouts of the backing store.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrConflict is returned by CompareAndSwap and Touch when the stored refresh token hash no longer matches.
	ErrConflict = errors.New("session modified concurrently")
	// ErrNotFound is returned by CompareAndSwap and Touch when the record no longer exists.
	ErrNotFound = errors.New("session not found")
)

// Store is the key-value contract over the shared session store. Get returns (nil, nil) for an absent
// or expired record. ListByUser may return stale ids whose records have already expired.
type Store interface {
	Put(ctx context.Context, s *domain.Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]string, error)
	// Unindex drops ids from a user's index without touching their records.
	Unindex(ctx context.Context, userID string, ids ...string) error
	// CompareAndSwap replaces the record only if the stored refresh token hash equals expectedRefreshHash.
	CompareAndSwap(ctx context.Context, s *domain.Session, expectedRefreshHash string, ttl time.Duration) error
	// Touch re-persists s only if its record still exists and still carries s.RefreshTokenHash. It returns
	// ErrNotFound after a concurrent delete and ErrConflict after a concurrent rotation.
	Touch(ctx context.Context, s *domain.Session, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// SessionKey returns the store key of a session record.
func SessionKey(id string) string {
	return "session:" + id
}

// UserIndexKey returns the store key of a user's session id set.
func UserIndexKey(userID string) string {
	return "user_sessions:" + userID
}
