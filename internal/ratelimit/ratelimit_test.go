package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu     sync.Mutex
	counts map[string]int64
	vals   map[string]string
	ttls   map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		counts: map[string]int64{},
		vals:   map[string]string{},
		ttls:   map[string]time.Duration{},
	}
}

func (m *memStore) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key], nil
}

func (m *memStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.counts, k)
		delete(m.vals, k)
		delete(m.ttls, k)
	}
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vals[key], nil
}

func (m *memStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = value.(string)
	m.ttls[key] = expiration
	return nil
}

func TestNilStore_FailsOpen(t *testing.T) {
	l := New(nil)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if ok, _ := l.CheckRegistration(ctx, "1.2.3.4"); !ok {
			t.Fatal("nil store must never rate limit")
		}
	}
	if locked, _ := l.CheckEmailLockout(ctx, "a@b.com"); locked {
		t.Error("nil store must never report lockout")
	}
}

func TestCheckRegistration_LimitsAfterFive(t *testing.T) {
	l := New(newMemStore())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if ok, _ := l.CheckRegistration(ctx, "10.0.0.9"); !ok {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	ok, retry := l.CheckRegistration(ctx, "10.0.0.9")
	if ok {
		t.Error("6th registration attempt should be blocked")
	}
	if retry < 1 {
		t.Errorf("retry-after should be positive, got %d", retry)
	}
}

func TestCheckVerification_PerUser(t *testing.T) {
	l := New(newMemStore())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if ok, _ := l.CheckVerification(ctx, "user-a"); !ok {
			t.Fatalf("verification %d for user-a should be allowed", i+1)
		}
	}
	if ok, _ := l.CheckVerification(ctx, "user-a"); ok {
		t.Error("11th verification in a minute should be blocked")
	}
	// A different user is unaffected.
	if ok, _ := l.CheckVerification(ctx, "user-b"); !ok {
		t.Error("user-b should not share user-a's counter")
	}
}

func TestLockoutLadder(t *testing.T) {
	l := New(newMemStore())
	ctx := context.Background()
	email := "victim@example.com"

	var lockoutSecs int
	for i := 0; i < 5; i++ {
		_, lockoutSecs, _ = l.RecordLoginFailure(ctx, email)
	}
	if lockoutSecs != 300 {
		t.Errorf("5 failures should lock for 300s, got %d", lockoutSecs)
	}

	for i := 0; i < 5; i++ {
		_, lockoutSecs, _ = l.RecordLoginFailure(ctx, email)
	}
	if lockoutSecs != 1800 {
		t.Errorf("10 failures should lock for 1800s, got %d", lockoutSecs)
	}

	for i := 0; i < 5; i++ {
		_, lockoutSecs, _ = l.RecordLoginFailure(ctx, email)
	}
	if lockoutSecs != 86400 {
		t.Errorf("15 failures should lock for 86400s, got %d", lockoutSecs)
	}
}

func TestLockoutNotifiedOncePerDay(t *testing.T) {
	l := New(newMemStore())
	ctx := context.Background()
	email := "victim@example.com"

	var first bool
	for i := 0; i < 5; i++ {
		_, _, first = l.RecordLoginFailure(ctx, email)
	}
	if !first {
		t.Error("first lockout of the day should be flagged for notification")
	}
	_, _, first = l.RecordLoginFailure(ctx, email)
	if first {
		t.Error("subsequent lockouts on the same day must not re-notify")
	}
}

func TestResetLoginEmail_ClearsLockout(t *testing.T) {
	l := New(newMemStore())
	ctx := context.Background()
	email := "victim@example.com"

	for i := 0; i < 5; i++ {
		l.RecordLoginFailure(ctx, email)
	}
	if locked, _ := l.CheckEmailLockout(ctx, email); !locked {
		t.Fatal("expected lockout after 5 failures")
	}
	l.ResetLoginEmail(ctx, email)
	if locked, _ := l.CheckEmailLockout(ctx, email); locked {
		t.Error("lockout should clear after successful login reset")
	}
}
