package cache

import (
	"errors"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	digest "github.com/opencontainers/go-digest"
)

// DefaultMemoryEntries is the default entry limit of a memory cache.
const DefaultMemoryEntries = 256

// Memory is an in-process LRU cache bounded by entry count and total bytes.
type Memory struct {
	mu       sync.Mutex // serializes mutations so byte accounting stays exact
	entries  *lru.Cache[digest.Digest, []byte]
	maxBytes int64
	bytes    atomic.Int64
}

var _ Cache = (*Memory)(nil)

// NewMemory creates a memory cache holding at most maxEntries entries and
// maxBytes bytes. maxEntries <= 0 selects DefaultMemoryEntries; maxBytes 0
// disables the byte limit.
func NewMemory(maxEntries int, maxBytes int64) (*Memory, error) {
	if maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	m := &Memory{maxBytes: maxBytes}
	entries, err := lru.NewWithEvict(maxEntries, func(_ digest.Digest, data []byte) {
		m.bytes.Add(-int64(len(data)))
	})
	if err != nil {
		return nil, err
	}
	m.entries = entries
	return m, nil
}

// Get implements Cache.
func (m *Memory) Get(key digest.Digest) ([]byte, bool) {
	return m.entries.Get(key)
}

// Put implements Cache.
func (m *Memory) Put(key digest.Digest, data []byte) error {
	size := int64(len(data))
	if m.maxBytes > 0 && size > m.maxBytes {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries.Remove(key)
	m.entries.Add(key, data)
	m.bytes.Add(size)
	if m.maxBytes > 0 {
		m.shrink(m.maxBytes)
	}
	return nil
}

// Delete implements Cache.
func (m *Memory) Delete(key digest.Digest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Remove(key)
	return nil
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	return m.entries.Len()
}

// MaxBytes implements Cache.
func (m *Memory) MaxBytes() int64 {
	return m.maxBytes
}

// SizeBytes implements Cache.
func (m *Memory) SizeBytes() int64 {
	return m.bytes.Load()
}

// Prune implements Cache. Least recently used entries go first.
func (m *Memory) Prune(targetBytes int64) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.bytes.Load()
	m.shrink(targetBytes)
	return before - m.bytes.Load(), nil
}

// shrink evicts least recently used entries until at most target bytes remain.
func (m *Memory) shrink(target int64) {
	for m.bytes.Load() > target {
		if _, _, ok := m.entries.RemoveOldest(); !ok {
			return
		}
	}
}
