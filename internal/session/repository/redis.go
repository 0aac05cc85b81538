package repository

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"course-admin/backend/internal/session/domain"
)

const casMaxRetries = 3

// RedisStore implements Store on Redis. Records are JSON under session:<id> with a TTL; the per-user
// index is a set under user_sessions:<userId> that is pruned lazily by readers.
type RedisStore struct {
	rdb       redis.UniversalClient
	opTimeout time.Duration
	indexTTL  time.Duration
}

// NewRedisStore returns a RedisStore. opTimeout bounds every store call; indexTTL is the minimum
// lifetime of a user index set and should be the longest session lifetime.
func NewRedisStore(rdb redis.UniversalClient, opTimeout, indexTTL time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, opTimeout: opTimeout, indexTTL: indexTTL}
}

func (r *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

// Put upserts the record and adds its id to the owner's index.
func (r *RedisStore) Put(ctx context.Context, s *domain.Session, ttl time.Duration) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("repository: encode session: %w", err)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		r.queuePut(ctx, p, s.ID, s.UserID, b, ttl)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *RedisStore) queuePut(ctx context.Context, p redis.Pipeliner, id, userID string, b []byte, ttl time.Duration) {
	idx := UserIndexKey(userID)
	p.Set(ctx, SessionKey(id), b, ttl)
	p.SAdd(ctx, idx, id)
	p.Expire(ctx, idx, max(ttl, r.indexTTL))
}

// Get returns the record for id or (nil, nil) when absent. An undecodable record is treated as absent.
func (r *RedisStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	b, err := r.rdb.Get(ctx, SessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	s, ok := decode(id, b)
	if !ok {
		return nil, nil
	}
	return s, nil
}

// Delete removes the record and its index entry. It reports whether the record existed.
func (r *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	key := SessionKey(id)
	b, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, unavailable(err)
	}
	var userID string
	if err == nil {
		if s, ok := decode(id, b); ok {
			userID = s.UserID
		}
	}
	var del *redis.IntCmd
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, key)
		if userID != "" {
			p.SRem(ctx, UserIndexKey(userID), id)
		}
		return nil
	})
	if err != nil {
		return false, unavailable(err)
	}
	return del.Val() > 0, nil
}

// ListByUser returns the indexed session ids for userID. Callers must tolerate ids of expired records.
func (r *RedisStore) ListByUser(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	ids, err := r.rdb.SMembers(ctx, UserIndexKey(userID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return ids, nil
}

// Unindex removes ids from the user's index set.
func (r *RedisStore) Unindex(ctx context.Context, userID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := r.rdb.SRem(ctx, UserIndexKey(userID), members...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// CompareAndSwap writes s only if the stored refresh hash still equals expectedRefreshHash. Concurrent
// writes that leave the hash unchanged (e.g. a lastAccess touch) are retried.
func (r *RedisStore) CompareAndSwap(ctx context.Context, s *domain.Session, expectedRefreshHash string, ttl time.Duration) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("repository: encode session: %w", err)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	key := SessionKey(s.ID)
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		stored, ok := decode(s.ID, cur)
		if !ok {
			return ErrNotFound
		}
		if subtle.ConstantTimeCompare([]byte(stored.RefreshTokenHash), []byte(expectedRefreshHash)) != 1 {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			r.queuePut(ctx, p, s.ID, s.UserID, b, ttl)
			return nil
		})
		return err
	}
	for i := 0; i < casMaxRetries; i++ {
		err = r.rdb.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
			return err
		default:
			return unavailable(err)
		}
	}
	return ErrConflict
}

// Touch writes s back under WATCH unless the key is gone or its refresh hash changed, so a slow
// validate can neither resurrect a deleted session nor roll back a rotation.
func (r *RedisStore) Touch(ctx context.Context, s *domain.Session, ttl time.Duration) error {
	return r.CompareAndSwap(ctx, s, s.RefreshTokenHash, ttl)
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func decode(id string, b []byte) (*domain.Session, bool) {
	var s domain.Session
	if err := json.Unmarshal(b, &s); err != nil {
		log.Printf("repository: drop undecodable session %s: %v", id, err)
		return nil, false
	}
	return &s, true
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
