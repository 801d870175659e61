// Package security implements SecurityValidator: rate limiting, input
// sanitization, and response redaction, composed the way the teacher
// composes its login rate limiter but generalized to three named scopes.
package security

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vimarsh/guidance/internal/domain"
)

// Scope names one of the three independently-limited request classes.
type Scope string

const (
	ScopeGeneral Scope = "general"
	ScopeAdmin   Scope = "admin"
	ScopeAuth    Scope = "auth"
)

const blockDuration = 15 * time.Minute

// RateLimiter enforces a per-identifier, per-scope sliding window backed by
// Redis (shared across instances), adapted from the teacher's
// login-only RateLimiter (internal/auth/ratelimit.go) generalized to three
// named scopes with independent limits and a shared block list.
type RateLimiter struct {
	redis  *redis.Client
	limits map[Scope]int

	mu       sync.Mutex
	fallback map[string][]time.Time // identifier -> request timestamps, used when Redis is unreachable
	blocked  map[string]time.Time   // identifier -> block expiry
}

// NewRateLimiter creates a RateLimiter with one rpm limit per scope.
func NewRateLimiter(rdb *redis.Client, generalRPM, adminRPM, authRPM int) *RateLimiter {
	return &RateLimiter{
		redis: rdb,
		limits: map[Scope]int{
			ScopeGeneral: generalRPM,
			ScopeAdmin:   adminRPM,
			ScopeAuth:    authRPM,
		},
		fallback: make(map[string][]time.Time),
		blocked:  make(map[string]time.Time),
	}
}

// Allow records one request for identifier under scope and reports whether
// it falls within the limit. A violation adds identifier to the block list
// for 15 minutes.
func (rl *RateLimiter) Allow(ctx context.Context, identifier string, scope Scope) (bool, error) {
	if rl.isBlockedFallback(identifier) {
		return false, nil
	}

	limit := rl.limits[scope]
	key := fmt.Sprintf("ratelimit:%s:%s", scope, identifier)

	now := time.Now()
	pipe := rl.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprint(now.Add(-time.Minute).UnixNano()))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return rl.allowFallback(identifier, limit), nil
	}
	count := card.Val()

	if int(count) > limit {
		rl.block(ctx, identifier)
		return false, nil
	}
	return true, nil
}

// Blocked reports whether identifier is currently on the temporary block
// list, checking Redis first and falling back to the in-process list.
func (rl *RateLimiter) Blocked(ctx context.Context, identifier string) bool {
	blockKey := fmt.Sprintf("ratelimit:blocked:%s", identifier)
	exists, err := rl.redis.Exists(ctx, blockKey).Result()
	if err == nil {
		return exists > 0
	}
	return rl.isBlockedFallback(identifier)
}

func (rl *RateLimiter) block(ctx context.Context, identifier string) {
	blockKey := fmt.Sprintf("ratelimit:blocked:%s", identifier)
	if err := rl.redis.Set(ctx, blockKey, "1", blockDuration).Err(); err != nil {
		rl.mu.Lock()
		rl.blocked[identifier] = time.Now().Add(blockDuration)
		rl.mu.Unlock()
	}
}

// allowFallback is the in-process degraded path used when Redis is
// unreachable: a bounded map guarded by a mutex, logged as degraded by the
// caller rather than failing the request closed.
func (rl *RateLimiter) allowFallback(identifier string, limit int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Minute)
	kept := rl.fallback[identifier][:0]
	for _, t := range rl.fallback[identifier] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		rl.blocked[identifier] = now.Add(blockDuration)
		rl.fallback[identifier] = kept
		return false
	}

	rl.fallback[identifier] = append(kept, now)
	return true
}

func (rl *RateLimiter) isBlockedFallback(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	expiry, ok := rl.blocked[identifier]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(rl.blocked, identifier)
		return false
	}
	return true
}

// Check is a convenience wrapper returning domain errors directly, for
// callers (HTTP middleware) that want to short-circuit on rejection.
func (rl *RateLimiter) Check(ctx context.Context, identifier string, scope Scope) error {
	if rl.redis == nil {
		if rl.isBlockedFallback(identifier) {
			return domain.ErrIPBlocked
		}
		if !rl.allowFallback(identifier, rl.limits[scope]) {
			return domain.ErrRateLimitExceeded
		}
		return nil
	}
	if rl.Blocked(ctx, identifier) {
		return domain.ErrIPBlocked
	}
	allowed, err := rl.Allow(ctx, identifier, scope)
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if !allowed {
		return domain.ErrRateLimitExceeded
	}
	return nil
}
