package repository

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"course-admin/backend/internal/session/domain"
)

// storeHarness lets the same contract tests run against every Store implementation.
type storeHarness struct {
	store   Store
	advance func(time.Duration)
}

func newMemoryHarness(t *testing.T) storeHarness {
	t.Helper()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStoreWithClock(func() time.Time { return now })
	return storeHarness{store: s, advance: func(d time.Duration) { now = now.Add(d) }}
}

func newRedisHarness(t *testing.T) storeHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return storeHarness{
		store:   NewRedisStore(rdb, time.Second, time.Hour),
		advance: mr.FastForward,
	}
}

var harnesses = map[string]func(*testing.T) storeHarness{
	"memory": newMemoryHarness,
	"redis":  newRedisHarness,
}

func testSession(id, userID, refreshHash string) *domain.Session {
	org := "org-1"
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Session{
		ID:               id,
		UserID:           userID,
		Username:         "jdoe",
		Role:             "instructor",
		OrganizationID:   &org,
		IPAddress:        "198.51.100.7",
		UserAgent:        "Mozilla/5.0",
		UAFingerprint:    "v1:abc",
		CreatedAt:        now,
		LastAccess:       now,
		ExpiresAt:        now.Add(time.Hour),
		IsActive:         true,
		SecurityLevel:    domain.SecurityLevelHigh,
		AccessJti:        "a1",
		RefreshJti:       "r1",
		RefreshTokenHash: refreshHash,
	}
}

func TestStore_PutGet(t *testing.T) {
	for name, mk := range harnesses {
		t.Run(name, func(t *testing.T) {
			h := mk(t)
			ctx := context.Background()
			in := testSession("s1", "u1", "h1")
			if err := h.store.Put(ctx, in, time.Hour); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := h.store.Get(ctx, "s1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got == nil {
				t.Fatal("Get returned nil")
			}
			if got.UserID != "u1" || got.OrgID() != "org-1" || got.SecurityLevel != domain.SecurityLevelHigh {
				t.Errorf("Get = %+v", got)
			}
			if !got.CreatedAt.Equal(in.CreatedAt) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, in.CreatedAt)
			}
			if got.RefreshTokenHash != "h1" || got.AccessJti != "a1" {
				t.Errorf("token fields not round-tripped: %+v", got)
			}
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, mk := range harnesses {
		t.Run(name, func(t *testing.T) {
			h := mk(t)
			got, err := h.store.Get(context.Background(), "nope")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != nil {
				t.Errorf("Get = %+v, want nil", got)
			}
		})
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	for name, mk := range harnesses {
		t.Run(name, func(t *testing.T) {
			h := mk(t)
			ctx := context.Background()
			if err := h.store.Put(ctx, testSession("s1", "u1", "h1"), time.Minute); err != nil {
				t.Fatalf("Put: %v", err)
			}
			h.advance(2 * time.Minute)
			got, err := h.store.Get(ctx, "s1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != nil {
				t.Error("record should have expired")
			}
		})
	}
}

func TestStore_DeleteIdempotent(t *testing.T) {
	for name, mk := range harnesses {
		t.Run(name, func(t *testing.T) {
			h := mk(t)
			ctx := context.Background()
			if err := h.store.Put(ctx, testSession("s1", "u1", "h1"), time.Hour); err != nil {
				t.Fatalf("Put: %v", err)
			}
			ok, err := h.store.Delete(ctx, "s1")
			if err != nil || !ok {
				t.Fatalf("first Delete = %v, %v; want true, nil", ok, err)
			}
			ok, err = h.store.Delete(ctx, "s1")
			if err != nil || ok {
				t.Fatalf("second Delete = %v, %v; want false, nil", ok, err)
			}
			ids, err := h.store.ListByUser(ctx, "u1")
			if err != nil {
				t.Fatalf("ListByUser: %v", err)
			}
			if len(ids) != 0 {
				t.Errorf("index still holds %v", ids)
			}
		})
	}
}

func TestStore_ListByUser(t *testing.T) {
	for name, mk := range harnesses {
		t.Run(name, func(t *testing.T) {
			h := mk(t)
			ctx := context.Background()
			for _, s := range []*domain.Session{
				testSession("s1", "u1", "h"),
				testSession("s2", "u1", "h"),
				testSession("s3", "u2", "h"),
			} {
				if err := h.store.Put(ctx, s, time.Hour); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}
			ids, err := h.store.ListByUser(ctx, "u1")
			if err != nil {
				t.Fatalf("ListByUser: %v", err)
			}
			sort.Strings(ids)
			if len(ids) != 2 || ids[0] != "s1" || ids[1] != "s2" {
				t.Errorf("ListByUser(u1) = %v", ids)
			}
			ids, _ = h.store.ListByUser(ctx, "nobody")
			if len(ids) != 0 {
				t.Errorf("ListByUser(nobody) = %v", ids)
			}
		})
	}
}

func TestStore_CompareAndSwap(t *testing.T) {
	for name, mk := range harnesses {
		t.Run(name, func(t *testing.T) {
			h := mk(t)
			ctx := context.Background()
			if err := h.store.Put(ctx, testSession("s1", "u1", "h1"), time.Hour); err != nil {
				t.Fatalf("Put: %v", err)
			}
			next := testSession("s1", "u1", "h2")
			next.RefreshJti = "r2"
			if err := h.store.CompareAndSwap(ctx, next, "h1", time.Hour); err != nil {
				t.Fatalf("CompareAndSwap: %v", err)
			}
			got, _ := h.store.Get(ctx, "s1")
			if got == nil || got.RefreshTokenHash != "h2" || got.RefreshJti != "r2" {
				t.Fatalf("after swap = %+v", got)
			}

			stale := testSession("s1", "u1", "h3")
			if err := h.store.CompareAndSwap(ctx, stale, "h1", time.Hour); !errors.Is(err, ErrConflict) {
				t.Errorf("stale swap err = %v, want ErrConflict", err)
			}
			got, _ = h.store.Get(ctx, "s1")
			if got.RefreshTokenHash != "h2" {
				t.Errorf("stale swap overwrote record: %s", got.RefreshTokenHash)
			}

			if err := h.store.CompareAndSwap(ctx, testSession("gone", "u1", "x"), "x", time.Hour); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing swap err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_Touch(t *testing.T) {
	for name, mk := range harnesses {
		t.Run(name, func(t *testing.T) {
			h := mk(t)
			ctx := context.Background()
			if err := h.store.Put(ctx, testSession("s1", "u1", "h1"), time.Hour); err != nil {
				t.Fatalf("Put: %v", err)
			}
			read, _ := h.store.Get(ctx, "s1")
			touched := *read
			touched.LastAccess = read.LastAccess.Add(time.Minute)
			if err := h.store.Touch(ctx, &touched, time.Hour); err != nil {
				t.Fatalf("Touch: %v", err)
			}
			got, _ := h.store.Get(ctx, "s1")
			if got == nil || !got.LastAccess.Equal(touched.LastAccess) {
				t.Fatalf("after touch = %+v", got)
			}

			// A rotation after the read wins over the touch.
			rotated := testSession("s1", "u1", "h2")
			if err := h.store.CompareAndSwap(ctx, rotated, "h1", time.Hour); err != nil {
				t.Fatalf("CompareAndSwap: %v", err)
			}
			if err := h.store.Touch(ctx, &touched, time.Hour); !errors.Is(err, ErrConflict) {
				t.Errorf("touch after rotation err = %v, want ErrConflict", err)
			}
			got, _ = h.store.Get(ctx, "s1")
			if got.RefreshTokenHash != "h2" {
				t.Errorf("touch rolled back rotation: %s", got.RefreshTokenHash)
			}

			// A delete after the read wins over the touch.
			if _, err := h.store.Delete(ctx, "s1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			touched.RefreshTokenHash = "h2"
			if err := h.store.Touch(ctx, &touched, time.Hour); !errors.Is(err, ErrNotFound) {
				t.Errorf("touch after delete err = %v, want ErrNotFound", err)
			}
			if got, _ := h.store.Get(ctx, "s1"); got != nil {
				t.Errorf("touch resurrected deleted session: %+v", got)
			}
			if ids, _ := h.store.ListByUser(ctx, "u1"); len(ids) != 0 {
				t.Errorf("index after touch = %v, want empty", ids)
			}
		})
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	store := NewRedisStore(rdb, 200*time.Millisecond, time.Hour)
	mr.Close()

	ctx := context.Background()
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Get err = %v, want ErrStoreUnavailable", err)
	}
	if err := store.Put(ctx, testSession("s1", "u1", "h"), time.Hour); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Put err = %v, want ErrStoreUnavailable", err)
	}
	if _, err := store.Delete(ctx, "s1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Delete err = %v, want ErrStoreUnavailable", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Ping err = %v, want ErrStoreUnavailable", err)
	}
}

func TestRedisStore_CorruptRecordIsAbsent(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := NewRedisStore(rdb, time.Second, time.Hour)
	if err := mr.Set(SessionKey("s1"), "{not json"); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(context.Background(), "s1")
	if err != nil || got != nil {
		t.Errorf("Get = %v, %v; want nil, nil", got, err)
	}
}

func TestRedisStore_IndexTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := NewRedisStore(rdb, time.Second, 2*time.Hour)
	if err := store.Put(context.Background(), testSession("s1", "u1", "h"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(UserIndexKey("u1")); ttl != 2*time.Hour {
		t.Errorf("index TTL = %v, want 2h", ttl)
	}
	if ttl := mr.TTL(SessionKey("s1")); ttl != time.Minute {
		t.Errorf("record TTL = %v, want 1m", ttl)
	}
}

func TestStore_UnindexKeepsRecord(t *testing.T) {
	for name, mk := range harnesses {
		t.Run(name, func(t *testing.T) {
			h := mk(t)
			ctx := context.Background()
			if err := h.store.Put(ctx, testSession("s1", "u1", "h"), time.Hour); err != nil {
				t.Fatal(err)
			}
			if err := h.store.Put(ctx, testSession("s2", "u1", "h"), time.Hour); err != nil {
				t.Fatal(err)
			}
			if err := h.store.Unindex(ctx, "u1", "s1"); err != nil {
				t.Fatalf("Unindex: %v", err)
			}
			ids, _ := h.store.ListByUser(ctx, "u1")
			if len(ids) != 1 || ids[0] != "s2" {
				t.Errorf("ListByUser = %v, want [s2]", ids)
			}
			if got, _ := h.store.Get(ctx, "s1"); got == nil {
				t.Error("Unindex removed the record")
			}
		})
	}
}
