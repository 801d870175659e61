package security

import (
	"testing"
	"time"
)

// TestRateLimiterFallbackEnforcesLimit exercises the in-process degraded
// path directly, since a live Redis instance is not available to this test
// suite; the Redis-backed path uses the identical Allow/Blocked contract.
func TestRateLimiterFallbackEnforcesLimit(t *testing.T) {
	rl := &RateLimiter{
		limits:   map[Scope]int{ScopeAuth: 3},
		fallback: make(map[string][]time.Time),
		blocked:  make(map[string]time.Time),
	}

	for i := 0; i < 3; i++ {
		if !rl.allowFallback("1.2.3.4", rl.limits[ScopeAuth]) {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if rl.allowFallback("1.2.3.4", rl.limits[ScopeAuth]) {
		t.Error("4th request should exceed the limit")
	}
	if !rl.isBlockedFallback("1.2.3.4") {
		t.Error("expected identifier to be blocked after exceeding the limit")
	}
}

func TestRateLimiterFallbackBlockExpires(t *testing.T) {
	rl := &RateLimiter{
		fallback: make(map[string][]time.Time),
		blocked:  map[string]time.Time{"5.6.7.8": time.Now().Add(-time.Second)},
	}
	if rl.isBlockedFallback("5.6.7.8") {
		t.Error("expected expired block to no longer apply")
	}
}
