// Package disk provides filesystem-backed resource and block caches.
package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	digest "github.com/opencontainers/go-digest"

	"github.com/exlimit/tangram-es/core/cache"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700

	lz4Suffix  = ".lz4"
	zstdSuffix = ".zst"
)

// Cache implements cache.Cache using the local filesystem.
// Files are stored in a directory hierarchy with optional sharding by key prefix.
// The cache is safe for concurrent use.
type Cache struct {
	dir            string       // root directory for cached files
	shardPrefixLen int          // number of hex chars for subdirectory sharding
	dirPerm        os.FileMode  // permissions for created directories
	maxBytes       int64        // maximum cache size (0 = unlimited)
	codec          Codec        // on-disk compression
	bytes          atomic.Int64 // current total size of cached files
	pruneMu        sync.Mutex   // serializes prune operations
}

var _ cache.Cache = (*Cache)(nil)

// Option configures a disk cache.
type Option func(*Cache)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the directory permissions used for cache directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithMaxBytes sets the maximum cache size in bytes, measured on disk.
// Values < 0 are invalid. Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// WithCompression stores entries lz4-compressed. Scene documents compress
// well; textures that are already compressed gain little.
func WithCompression(enabled bool) Option {
	return func(c *Cache) {
		c.codec = CodecNone
		if enabled {
			c.codec = CodecLZ4
		}
	}
}

// WithCodec selects the on-disk compression codec.
func WithCodec(codec Codec) Option {
	return func(c *Cache) {
		c.codec = codec
	}
}

// New creates a disk-backed cache rooted at dir.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	c := &Cache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.shardPrefixLen < 0 {
		return nil, errors.New("shard prefix length must be >= 0")
	}
	if c.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	if !c.codec.valid() {
		return nil, fmt.Errorf("invalid codec %s", c.codec)
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, err
	}
	c.bytes.Store(size)
	return c, nil
}

// Get returns the cached bytes for key.
// Returns nil, false if the key is not cached or the file is unreadable.
// A hit refreshes the file's modification time so pruning evicts the least
// recently used entries first.
func (c *Cache) Get(key digest.Digest) ([]byte, bool) {
	path, err := c.path(key)
	if err != nil {
		return nil, false
	}
	raw, err := os.ReadFile(path) //nolint:gosec // path is derived from a digest, not user input
	if err != nil {
		return nil, false
	}

	data, err := c.codec.decode(raw)
	if err != nil {
		_ = c.Delete(key) //nolint:errcheck // corrupt entries are dropped best-effort
		return nil, false
	}

	now := time.Now()
	_ = os.Chtimes(path, now, now) //nolint:errcheck // recency is advisory
	return data, true
}

// Put stores data under key. Entries larger than the size limit are skipped.
func (c *Cache) Put(key digest.Digest, data []byte) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if mkdirErr := os.MkdirAll(dir, c.dirPerm); mkdirErr != nil {
		return mkdirErr
	}

	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := c.writeTo(tmp, data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	written := info.Size()

	if ok, err := c.ensureCapacity(written); err != nil {
		_ = os.Remove(tmpPath)
		return err
	} else if !ok {
		_ = os.Remove(tmpPath)
		return nil
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}
		return err
	}
	c.bytes.Add(written)
	return nil
}

func (c *Cache) writeTo(w io.Writer, data []byte) error {
	return c.codec.encode(w, data)
}

// Delete removes cached content for key.
func (c *Cache) Delete(key digest.Digest) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return nil
		}
		return statErr
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	c.bytes.Add(-info.Size())
	return nil
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the current cache size in bytes.
func (c *Cache) SizeBytes() int64 {
	return c.bytes.Load()
}

// Prune removes least recently used entries until the cache is at or below
// targetBytes.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, targetBytes)
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

func (c *Cache) path(key digest.Digest) (string, error) {
	if err := key.Validate(); err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	name := key.Encoded() + c.codec.suffix()
	return shardPath(c.dir, c.shardPrefixLen, key.Encoded(), name), nil
}

func (c *Cache) ensureCapacity(need int64) (bool, error) {
	return ensureCapacity(c.maxBytes, need, c.SizeBytes, c.Prune)
}

// shardPath places name under dir, in a subdirectory named after the first
// prefixLen characters of hexKey.
func shardPath(dir string, prefixLen int, hexKey, name string) string {
	if prefixLen <= 0 {
		return filepath.Join(dir, name)
	}
	if prefixLen > len(hexKey) {
		prefixLen = len(hexKey)
	}
	return filepath.Join(dir, hexKey[:prefixLen], name)
}

// ensureCapacity reports whether need more bytes fit under maxBytes, pruning
// older entries to make room.
func ensureCapacity(maxBytes, need int64, size func() int64, prune func(int64) (int64, error)) (bool, error) {
	if maxBytes <= 0 {
		return true, nil
	}
	if need > maxBytes {
		return false, nil
	}
	if size()+need <= maxBytes {
		return true, nil
	}
	if _, err := prune(maxBytes - need); err != nil {
		return false, err
	}
	return size()+need <= maxBytes, nil
}
