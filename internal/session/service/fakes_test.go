package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"course-admin/backend/internal/security"
	"course-admin/backend/internal/session/domain"
	"course-admin/backend/internal/session/policy"
	"course-admin/backend/internal/session/repository"
)

const (
	uaChrome120      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.109 Safari/537.36"
	uaChrome120Patch = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.130 Safari/537.36"
	uaFirefoxMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14.2; rv:121.0) Gecko/20100101 Firefox/121.0"
)

var errDown = errors.New("dial tcp: connection refused")

// flakyStore wraps a MemoryStore and fails selected operations.
type flakyStore struct {
	*repository.MemoryStore
	mu          sync.Mutex
	down        bool
	failPut     bool
	gets        int
	beforeCAS   func()
	beforeTouch func()
}

func (s *flakyStore) setDown(v bool) {
	s.mu.Lock()
	s.down = v
	s.mu.Unlock()
}

func (s *flakyStore) isDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

func (s *flakyStore) unavailable() error {
	return errors.Join(repository.ErrStoreUnavailable, errDown)
}

func (s *flakyStore) Put(ctx context.Context, sess *domain.Session, ttl time.Duration) error {
	s.mu.Lock()
	fail := s.down || s.failPut
	s.mu.Unlock()
	if fail {
		return s.unavailable()
	}
	return s.MemoryStore.Put(ctx, sess, ttl)
}

func (s *flakyStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	if s.isDown() {
		return nil, s.unavailable()
	}
	return s.MemoryStore.Get(ctx, id)
}

func (s *flakyStore) Delete(ctx context.Context, id string) (bool, error) {
	if s.isDown() {
		return false, s.unavailable()
	}
	return s.MemoryStore.Delete(ctx, id)
}

func (s *flakyStore) ListByUser(ctx context.Context, userID string) ([]string, error) {
	if s.isDown() {
		return nil, s.unavailable()
	}
	return s.MemoryStore.ListByUser(ctx, userID)
}

func (s *flakyStore) CompareAndSwap(ctx context.Context, sess *domain.Session, expected string, ttl time.Duration) error {
	if s.beforeCAS != nil {
		s.beforeCAS()
	}
	if s.isDown() {
		return s.unavailable()
	}
	return s.MemoryStore.CompareAndSwap(ctx, sess, expected, ttl)
}

func (s *flakyStore) Touch(ctx context.Context, sess *domain.Session, ttl time.Duration) error {
	if s.beforeTouch != nil {
		s.beforeTouch()
	}
	s.mu.Lock()
	fail := s.down || s.failPut
	s.mu.Unlock()
	if fail {
		return s.unavailable()
	}
	return s.MemoryStore.Touch(ctx, sess, ttl)
}

type auditEvent struct {
	orgID, userID, action, resource, metadata string
}

type fakeAudit struct {
	mu     sync.Mutex
	events []auditEvent
}

func (f *fakeAudit) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, auditEvent{orgID, userID, action, resource, metadata})
}

func (f *fakeAudit) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.action == action {
			n++
		}
	}
	return n
}

type fakeMetrics struct {
	mu          sync.Mutex
	validations map[string]int
	refreshes   map[string]int
	storeErrors map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{validations: map[string]int{}, refreshes: map[string]int{}, storeErrors: map[string]int{}}
}

func (f *fakeMetrics) SessionCreated(context.Context, string, bool) {}
func (f *fakeMetrics) Invalidation(context.Context, string)         {}

func (f *fakeMetrics) Validation(_ context.Context, outcome string) {
	f.mu.Lock()
	f.validations[outcome]++
	f.mu.Unlock()
}

func (f *fakeMetrics) Refresh(_ context.Context, outcome string) {
	f.mu.Lock()
	f.refreshes[outcome]++
	f.mu.Unlock()
}

func (f *fakeMetrics) StoreError(_ context.Context, op string) {
	f.mu.Lock()
	f.storeErrors[op]++
	f.mu.Unlock()
}

type harness struct {
	m       *Manager
	store   *flakyStore
	audit   *fakeAudit
	metrics *fakeMetrics
	policy  *policy.Engine
	advance func(time.Duration)
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	store := &flakyStore{MemoryStore: repository.NewMemoryStoreWithClock(clock)}
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	engine, err := policy.NewEngine(nil, cfg.RefreshTokenTTL)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	auditLog := &fakeAudit{}
	metrics := newFakeMetrics()
	m, err := newManager(cfg, store, tokens, engine, auditLog, metrics, clock)
	if err != nil {
		t.Fatalf("newManager: %v", err)
	}
	return &harness{
		m:       m,
		store:   store,
		audit:   auditLog,
		metrics: metrics,
		policy:  engine,
		advance: func(d time.Duration) {
			mu.Lock()
			now = now.Add(d)
			mu.Unlock()
		},
	}
}

func (h *harness) create(t *testing.T, userID, role, ip, ua string) *CreateResult {
	t.Helper()
	res, err := h.m.Create(context.Background(),
		domain.Identity{UserID: userID, Username: "user" + userID, Role: role, OrganizationID: "org-1"},
		domain.Origin{IPAddress: ip, UserAgent: ua},
	)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return res
}

func (h *harness) mustValidate(t *testing.T, id, ip, ua string) *ValidationResult {
	t.Helper()
	res, err := h.m.Validate(context.Background(), id, ip, ua)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return res
}
