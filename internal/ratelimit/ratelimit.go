// Package ratelimit implements three fixed-window limiter shapes over a
// shared Redis INCR+EXPIRE counter: process-wide, keyed by remote address,
// and keyed by client id with per-client quotas.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aegiscore/identity/pkg/apperr"
)

// Result is the outcome of a Check/Record call.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Bucket is a single fixed-window quota: the first request for a key opens
// a window of length window, and up to attempts requests are allowed until
// that window's counter expires. Capacity does not refill gradually within
// a window; all of it returns at once when the key expires.
type Bucket struct {
	rdb      *redis.Client
	keyspace string
	attempts int
	window   time.Duration
}

// NewBucket creates a bucket identified by keyspace (e.g. "login",
// "register", "password_reset") with the given attempts/window quota.
func NewBucket(rdb *redis.Client, keyspace string, attempts int, window time.Duration) *Bucket {
	return &Bucket{rdb: rdb, keyspace: keyspace, attempts: attempts, window: window}
}

// Allow checks and records one attempt for key. On exhaustion it returns a
// Result with Allowed false and RetryAfter set to the window's remaining
// TTL, and a nil error; an apperr.Unavailable error means Redis failed.
func (b *Bucket) Allow(ctx context.Context, key string) (*Result, error) {
	redisKey := fmt.Sprintf("ratelimit:%s:%s", b.keyspace, key)

	count, err := b.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "rate limiter unavailable", err)
	}
	if count == 1 {
		if err := b.rdb.Expire(ctx, redisKey, b.window).Err(); err != nil {
			return nil, apperr.Wrap(apperr.Unavailable, "rate limiter unavailable", err)
		}
	}

	if int(count) > b.attempts {
		ttl, err := b.rdb.TTL(ctx, redisKey).Result()
		if err != nil || ttl < 0 {
			ttl = b.window
		}
		return &Result{Allowed: false, RetryAfter: ttl}, nil
	}

	return &Result{Allowed: true, Remaining: b.attempts - int(count)}, nil
}

// Reset clears the counter for key (called on a successful attempt).
func (b *Bucket) Reset(ctx context.Context, key string) error {
	redisKey := fmt.Sprintf("ratelimit:%s:%s", b.keyspace, key)
	return b.rdb.Del(ctx, redisKey).Err()
}

// Unkeyed is a process-wide limiter.
type Unkeyed struct {
	bucket *Bucket
}

// NewUnkeyed wraps a Bucket under a single fixed key.
func NewUnkeyed(rdb *redis.Client, keyspace string, attempts int, window time.Duration) *Unkeyed {
	return &Unkeyed{bucket: NewBucket(rdb, keyspace, attempts, window)}
}

func (u *Unkeyed) Allow(ctx context.Context) (*Result, error) { return u.bucket.Allow(ctx, "_") }

// ByRemoteAddress keys by the caller's address, resolved via ClientAddr.
// If no address can be determined, callers must pass through with a
// warning — never block anonymously.
type ByRemoteAddress struct {
	bucket *Bucket
}

// ClientAddr resolves the address to key a caller by: the first
// X-Forwarded-For entry when present, else the connection's remote host.
// Returns "" when neither can be determined.
func ClientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func NewByRemoteAddress(rdb *redis.Client, keyspace string, attempts int, window time.Duration) *ByRemoteAddress {
	return &ByRemoteAddress{bucket: NewBucket(rdb, keyspace, attempts, window)}
}

func (r *ByRemoteAddress) Allow(ctx context.Context, remoteAddr string) (*Result, error) {
	return r.bucket.Allow(ctx, remoteAddr)
}

func (r *ByRemoteAddress) Reset(ctx context.Context, remoteAddr string) error {
	return r.bucket.Reset(ctx, remoteAddr)
}

// ByClientID gives each distinct client id its own independent unkeyed
// limiter with limit = client.rate_limit_per_min; limit == 0 means
// unlimited. Limiters are created lazily and cached.
type ByClientID struct {
	rdb      *redis.Client
	keyspace string
	window   time.Duration

	mu       sync.Mutex
	limiters map[string]*Bucket
}

func NewByClientID(rdb *redis.Client, keyspace string, window time.Duration) *ByClientID {
	return &ByClientID{rdb: rdb, keyspace: keyspace, window: window, limiters: make(map[string]*Bucket)}
}

func (c *ByClientID) bucketFor(clientID string, limitPerMin int) *Bucket {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.limiters[clientID]
	if !ok {
		b = NewBucket(c.rdb, c.keyspace+":"+clientID, limitPerMin, c.window)
		c.limiters[clientID] = b
	}
	return b
}

// Allow checks the quota for clientID. limitPerMin == 0 means unlimited.
func (c *ByClientID) Allow(ctx context.Context, clientID string, limitPerMin int) (*Result, error) {
	if limitPerMin == 0 {
		return &Result{Allowed: true}, nil
	}
	return c.bucketFor(clientID, limitPerMin).Allow(ctx, clientID)
}
