// Package cache implements the blacklist/nonce store: a short-TTL keyed
// presence store with optional value payload, shared by every
// identity-service replica.
package cache

import "context"

// Store is the blacklist/nonce contract. A present key may expire at any
// time at or after its TTL; callers never rely on exact timing.
type Store interface {
	SetWithTTL(ctx context.Context, key, value string, ttlSeconds int) error
	Get(ctx context.Context, key string) (string, bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	SetBlacklist(ctx context.Context, jti string, ttlSeconds int) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
	Health(ctx context.Context) error
	// SetNX atomically sets key only if absent, returning whether the set
	// happened. Used for nonce acceptance so two
	// concurrent requests with the same nonce are mutually exclusive.
	SetNX(ctx context.Context, key, value string, ttlSeconds int) (bool, error)
}

func blacklistKey(jti string) string { return "blacklist:" + jti }
