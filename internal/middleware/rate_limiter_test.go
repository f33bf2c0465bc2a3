package middleware

import (
	"testing"
	"time"
)

func TestKeyRateLimiterEnforcesBurst(t *testing.T) {
	limiter := NewKeyRateLimiter(1, time.Hour, 2, time.Minute)

	if !limiter.Allow("10.0.0.1") {
		t.Fatal("expected first request to pass")
	}
	if !limiter.Allow("10.0.0.1") {
		t.Fatal("expected second request within burst to pass")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatal("expected third request to be limited")
	}

	// Another key gets its own budget.
	if !limiter.Allow("10.0.0.2") {
		t.Fatal("expected different key to pass")
	}
}

func TestKeyRateLimiterEmptyKeyShareBucket(t *testing.T) {
	limiter := NewKeyRateLimiter(1, time.Hour, 1, time.Minute)

	if !limiter.Allow("") {
		t.Fatal("expected first anonymous request to pass")
	}
	if limiter.Allow("") {
		t.Fatal("expected second anonymous request to be limited")
	}
}

func TestKeyRateLimiterExpiresIdleVisitors(t *testing.T) {
	limiter := NewKeyRateLimiter(1, time.Hour, 1, time.Minute).(*keyRateLimiter)

	current := time.Now()
	limiter.now = func() time.Time { return current }

	if !limiter.Allow("10.0.0.1") {
		t.Fatal("expected first request to pass")
	}

	// After the ttl the visitor is garbage collected on the next call.
	current = current.Add(2 * time.Minute)
	limiter.Allow("10.0.0.2")

	limiter.mu.Lock()
	_, ok := limiter.visitors["10.0.0.1"]
	limiter.mu.Unlock()
	if ok {
		t.Fatal("expected idle visitor to be expired")
	}
}
