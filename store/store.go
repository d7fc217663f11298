// Package store defines the storage abstraction used by erpcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte that was previously passed to Set for a key (no prepended
// or appended metadata, no re-encoding, no mutation). If a store performs
// internal transforms (e.g. compression), they MUST be fully reversed so the
// bytes returned by Get are identical to the bytes provided to Set.
//
// All operations are best-effort from the caller's point of view: the
// resolver converts every store error into an always-miss degradation, so an
// adapter should report errors honestly rather than retry forever.
package store

import (
	"context"
	"time"
)

// Store is a minimal byte store with per-entry TTLs plus a stats snapshot.
// Must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	// An entry is a hit iff its TTL has not elapsed; expired entries behave
	// as absent whether or not they were physically purged.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value for ttl. Returns ok=false when the store rejected
	// the write under pressure.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Delete removes a key (best-effort).
	Delete(ctx context.Context, key string) error

	// Stats reports a snapshot. An unreachable store is reported inside the
	// value (Connected=false, Err set), never as a panic or error return.
	Stats(ctx context.Context) Stats

	// Close releases resources.
	Close(ctx context.Context) error
}

// Stats is a point-in-time snapshot of the underlying store.
type Stats struct {
	Backend     string // "redis", "ristretto", "bigcache", "none"
	Connected   bool
	Keys        int64 // -1 when the backend cannot report a key count
	MemoryUsage string
	Uptime      string
	Err         string
}
