package cache

import (
	_ "crypto/sha256" // digest.Canonical

	digest "github.com/opencontainers/go-digest"
)

// Cache provides keyed storage for resource bytes.
//
// Implementations should handle their own size limits and eviction policies.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached bytes for key.
	// Returns nil, false if the key is not cached.
	// The returned slice must not be modified.
	Get(key digest.Digest) ([]byte, bool)

	// Put stores data under key. Writes are opportunistic: an entry larger
	// than the cache limit is silently skipped.
	Put(key digest.Digest, data []byte) error

	// Delete removes cached content for key.
	// Implementations should treat missing entries as a no-op.
	Delete(key digest.Digest) error

	// MaxBytes returns the configured cache size limit (0 = unlimited).
	MaxBytes() int64

	// SizeBytes returns the current cache size in bytes.
	SizeBytes() int64

	// Prune removes cached entries until the cache is at or below targetBytes.
	// Returns the number of bytes freed.
	Prune(targetBytes int64) (int64, error)
}

// Key returns the cache key for a resource location.
func Key(location string) digest.Digest {
	return digest.FromString(location)
}
