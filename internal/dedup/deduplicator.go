// Package dedup implements content-hash deduplication of incoming webhook
// bodies: a fast TTL cache in front of an authoritative store lookup.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Store is the subset of the event repository the deduplicator needs.
type Store interface {
	HashExists(ctx context.Context, provider, hash string) (bool, error)
}

// DefaultTTL is how long a hash is considered "recently seen" by the cache
// before the authoritative store is consulted again.
const DefaultTTL = 10 * time.Minute

// Deduplicator decides whether an incoming webhook body has already been
// processed for a given provider.
type Deduplicator struct {
	cache *cache
	store Store
}

// New returns a Deduplicator backed by store, with the cache's entries
// expiring after ttl.
func New(store Store, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Deduplicator{cache: newCache(ttl), store: store}
}

// Close stops the deduplicator's background cache eviction.
func (d *Deduplicator) Close() {
	d.cache.Close()
}

// ComputeHash returns the lowercase-hex SHA-256 digest of body.
func ComputeHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// IsDuplicate reports whether hash has already been stored for provider. A
// cache hit answers immediately; a cache miss falls through to the
// authoritative store check, and the key is cached either way — including on
// a miss. This is a negative cache: it is safe because the next pipeline
// step is a unique insert on (provider, hash), so if two concurrent requests
// both see a store miss, exactly one insert wins and the loser is routed to
// the duplicate-response path regardless of what this check answered.
func (d *Deduplicator) IsDuplicate(ctx context.Context, provider, hash string) (bool, error) {
	key := cacheKey(provider, hash)
	if d.cache.seen(key) {
		return true, nil
	}

	exists, err := d.store.HashExists(ctx, provider, hash)
	if err != nil {
		return false, fmt.Errorf("checking duplicate: %w", err)
	}
	d.cache.mark(key)
	return exists, nil
}

// Mark records hash as seen for provider, to be called right after a
// successful store so the next request for the same payload short-circuits
// on the cache.
func (d *Deduplicator) Mark(provider, hash string) {
	d.cache.mark(cacheKey(provider, hash))
}

func cacheKey(provider, hash string) string {
	return provider + ":" + hash
}
