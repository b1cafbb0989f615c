package tangram

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/url"
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	asset "github.com/exlimit/tangram-es/core"
	corecache "github.com/exlimit/tangram-es/core/cache"
	"github.com/exlimit/tangram-es/core/platform"
)

// Loader opens scene locations as resources and reads them.
//
// Loader fetches a location once to tell plain documents from zip bundles.
// Bundles are parsed once and kept in an LRU store keyed by location, so
// repeated opens share one reader. A Loader is safe for concurrent use.
type Loader struct {
	platform     Platform
	web          *platform.HTTP
	contentCache corecache.Cache
	blockCache   corecache.BlockCache
	storeSize    int
	archives     *lru.Cache[string, *asset.ArchiveReader]
	logger       *slog.Logger
	resourceOpts []ResourceOption
}

// NewLoader creates a Loader with the given options.
//
// Without WithPlatform, locations are fetched through platform.Default
// behind an in-memory cache, so the bytes sniffed by Open are reused by the
// first read.
func NewLoader(opts ...Option) (*Loader, error) {
	l := &Loader{storeSize: DefaultArchiveStoreSize}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	switch {
	case l.platform == nil && l.contentCache == nil:
		l.platform = platform.NewCached(platform.Default(), platform.WithLogger(l.logger))
	case l.platform == nil:
		l.platform = platform.NewCached(platform.Default(),
			platform.WithCache(l.contentCache), platform.WithLogger(l.logger))
	case l.contentCache != nil:
		l.platform = platform.NewCached(l.platform,
			platform.WithCache(l.contentCache), platform.WithLogger(l.logger))
	}

	if l.storeSize > 0 {
		store, err := lru.NewWithEvict(l.storeSize, func(location string, _ *asset.ArchiveReader) {
			l.log().Debug("archive store evict", "location", location)
		})
		if err != nil {
			return nil, err
		}
		l.archives = store
	}

	// Loader-level logger first so explicit resource options override it.
	l.resourceOpts = append([]ResourceOption{asset.WithLogger(l.logger)}, l.resourceOpts...)
	return l, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (l *Loader) log() *slog.Logger {
	if l.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.logger
}

// Platform returns the platform the loader fetches through.
func (l *Loader) Platform() Platform {
	return l.platform
}

// Open returns the resource for location.
//
// Bundles (detected by their zip signature) become packaged resources at
// their root document; anything else is a plain resource. A bundle without a
// root document is returned with its Err set to ErrNoRootDocument so its
// entries remain reachable through Relative. Open fails when the location
// cannot be fetched or a bundle cannot be parsed.
func (l *Loader) Open(ctx context.Context, location string) (*Resource, error) {
	res, _, err := l.open(ctx, location)
	return res, err
}

// open is Open that also hands back the bytes fetched for a plain resource,
// so callers reading it right away skip a second fetch.
func (l *Loader) open(ctx context.Context, location string) (*Resource, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if ar, ok := l.storedArchive(location); ok {
		l.log().Debug("archive store hit", "location", location)
		return asset.NewArchiveResource(location, ar, l.resourceOpts...), nil, nil
	}

	if l.web != nil && isRemoteBundle(location) {
		res, err := l.openRange(ctx, location)
		return res, nil, err
	}

	data, err := l.platform.BytesFromFile(ctx, location)
	if err != nil {
		return nil, nil, err
	}
	if !asset.IsArchive(data) {
		return asset.NewResource(location, l.resourceOpts...), data, nil
	}

	res := asset.NewPackagedResource(location, data, l.resourceOpts...)
	if err := l.keep(location, res); err != nil {
		return nil, nil, err
	}
	return res, nil, nil
}

// openRange opens a remote bundle for random access.
func (l *Loader) openRange(ctx context.Context, location string) (*Resource, error) {
	src, err := l.web.OpenSource(ctx, location)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: location, Err: err}
	}

	var bs asset.ByteSource = src
	if l.blockCache != nil {
		wrapped, err := l.blockCache.Wrap(src)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: location, Err: err}
		}
		bs = wrapped
	}

	l.log().Debug("opening bundle with range requests", "location", location, "size", src.Size())
	res := asset.NewPackagedResourceFromSource(location, bs, l.resourceOpts...)
	if err := l.keep(location, res); err != nil {
		return nil, err
	}
	return res, nil
}

// keep stores a loaded bundle for reuse, or reports why it failed to load.
func (l *Loader) keep(location string, res *Resource) error {
	if errors.Is(res.Err(), asset.ErrNoArchive) {
		return &fs.PathError{Op: "open", Path: location, Err: res.Err()}
	}
	if l.archives != nil {
		l.archives.Add(location, res.Archive())
	}
	return nil
}

func (l *Loader) storedArchive(location string) (*asset.ArchiveReader, bool) {
	if l.archives == nil {
		return nil, false
	}
	return l.archives.Get(location)
}

// Forget drops the stored bundle for location, if any. The next Open
// fetches it again.
func (l *Loader) Forget(location string) {
	if l.archives != nil {
		l.archives.Remove(location)
	}
}

// StoredArchives returns the number of bundles held for reuse.
func (l *Loader) StoredArchives() int {
	if l.archives == nil {
		return 0
	}
	return l.archives.Len()
}

// ReadBytes reads res through the loader's platform.
func (l *Loader) ReadBytes(ctx context.Context, res *Resource) ([]byte, error) {
	if res == nil {
		return nil, errors.New("resource is nil")
	}
	return res.ReadBytes(ctx, l.platform)
}

// isRemoteBundle reports whether location is an http(s) URL naming a .zip file.
func isRemoteBundle(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".zip")
}
