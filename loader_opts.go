package tangram

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	corecache "github.com/exlimit/tangram-es/core/cache"
	coredisk "github.com/exlimit/tangram-es/core/cache/disk"
	"github.com/exlimit/tangram-es/core/platform"
)

// Option configures a Loader.
type Option func(*Loader) error

// Defaults for NewLoader and WithCacheDir.
const (
	DefaultArchiveStoreSize       = 16
	DefaultContentCacheSize int64 = 100 << 20 // 100 MB
	DefaultBlockCacheSize   int64 = 50 << 20  // 50 MB
)

// WithPlatform sets the platform used to fetch locations.
// The default serves files, HTTP(S) and OCI references through platform.Default.
func WithPlatform(p Platform) Option {
	return func(l *Loader) error {
		if p == nil {
			return errors.New("platform is nil")
		}
		l.platform = p
		return nil
	}
}

// WithArchiveStoreSize sets how many opened bundles are kept for reuse.
// Use 0 to disable the store.
func WithArchiveStoreSize(n int) Option {
	return func(l *Loader) error {
		if n < 0 {
			return errors.New("archive store size must be >= 0")
		}
		l.storeSize = n
		return nil
	}
}

// WithRangeArchives opens remote .zip bundles over HTTP range requests
// through h instead of downloading them whole.
func WithRangeArchives(h *platform.HTTP) Option {
	return func(l *Loader) error {
		l.web = h
		return nil
	}
}

// WithContentCache caches fetched bytes, keyed by location.
func WithContentCache(c corecache.Cache) Option {
	return func(l *Loader) error {
		l.contentCache = c
		return nil
	}
}

// WithBlockCache caches blocks of bundles opened with range requests.
// It has no effect without WithRangeArchives.
func WithBlockCache(c corecache.BlockCache) Option {
	return func(l *Loader) error {
		l.blockCache = c
		return nil
	}
}

// WithCacheDir enables disk caching of fetched content and remote bundle
// blocks under dir, with the default size limits. Content is lz4-compressed
// unless opts select another codec; opts apply to the content cache only.
func WithCacheDir(dir string, opts ...coredisk.Option) Option {
	return func(l *Loader) error {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}

		contentOpts := append([]coredisk.Option{
			coredisk.WithMaxBytes(DefaultContentCacheSize),
			coredisk.WithCompression(true),
		}, opts...)
		contentCache, err := coredisk.New(filepath.Join(dir, "content"), contentOpts...)
		if err != nil {
			return err
		}
		l.contentCache = contentCache

		blockCache, err := coredisk.NewBlockCache(
			filepath.Join(dir, "blocks"),
			coredisk.WithBlockMaxBytes(DefaultBlockCacheSize),
		)
		if err != nil {
			return err
		}
		l.blockCache = blockCache
		return nil
	}
}

// WithLogger sets a logger for the loader.
// The logger is propagated to resources and the caching platform.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) error {
		l.logger = logger
		return nil
	}
}

// WithResourceOptions sets options applied to every resource the loader opens.
func WithResourceOptions(opts ...ResourceOption) Option {
	return func(l *Loader) error {
		l.resourceOpts = append(l.resourceOpts, opts...)
		return nil
	}
}
