package service

import (
	"context"
	"log"
	"sort"

	"course-admin/backend/internal/session/domain"
	"course-admin/backend/internal/session/repository"
)

// Limiter keeps the number of live sessions per user below a ceiling by evicting the least recently used.
type Limiter struct {
	store      repository.Store
	max        int
	invalidate invalidateFunc
}

// Enforce makes room for one new session of userID. It never fails: bookkeeping errors are logged and
// the login proceeds. It returns the number of sessions evicted.
func (l *Limiter) Enforce(ctx context.Context, userID string) int {
	ids, err := l.store.ListByUser(ctx, userID)
	if err != nil {
		log.Printf("session: limiter list for user %s: %v", userID, err)
		return 0
	}
	if len(ids) < l.max {
		return 0
	}
	live := make([]*domain.Session, 0, len(ids))
	var stale []string
	for _, id := range ids {
		rec, err := l.store.Get(ctx, id)
		if err != nil {
			log.Printf("session: limiter get %s: %v", shortID(id), err)
			return 0
		}
		if rec == nil {
			stale = append(stale, id)
			continue
		}
		live = append(live, rec)
	}
	if len(stale) > 0 {
		if err := l.store.Unindex(ctx, userID, stale...); err != nil {
			log.Printf("session: limiter prune for user %s: %v", userID, err)
		}
	}
	if len(live) < l.max {
		return 0
	}
	sort.Slice(live, func(i, j int) bool {
		a, b := live[i], live[j]
		if !a.LastAccess.Equal(b.LastAccess) {
			return a.LastAccess.Before(b.LastAccess)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	evict := len(live) - l.max + 1
	for _, rec := range live[:evict] {
		l.invalidate(ctx, rec, InvalidateLimitEviction)
	}
	return evict
}
