package asset

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/exlimit/tangram-es/core/internal/archive"
)

// Kind identifies how a Resource obtains its bytes.
type Kind uint8

const (
	// KindPlain resources are fetched through a Platform.
	KindPlain Kind = iota

	// KindPackaged resources are entries of a zip bundle.
	KindPackaged
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindPackaged:
		return "packaged"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Resource is an addressable unit of scene data.
//
// A Resource is immutable and safe for concurrent use. Packaged resources
// derived from the same bundle share one ArchiveReader.
type Resource struct {
	kind     Kind
	location string

	// Packaged resources only.
	archive   *archive.Reader
	entryPath string
	err       error

	opts *options
}

// NewResource returns a plain resource for location.
func NewResource(location string, opts ...Option) *Resource {
	return &Resource{
		kind:     KindPlain,
		location: location,
		opts:     newOptions(opts),
	}
}

// NewPackagedResource loads data as a zip bundle and returns a packaged
// resource pointing at the bundle's root document. The resource takes
// ownership of data.
//
// Construction never fails. When data is not a valid archive, or when no
// root document exists, the returned resource's Err reports why and every
// ReadBytes call fails.
func NewPackagedResource(location string, data []byte, opts ...Option) *Resource {
	o := newOptions(opts)
	ar := archive.NewReader(o.archiveOptions()...)
	if err := ar.Load(data); err != nil {
		return newUnloaded(location, err, o)
	}
	return newRooted(location, ar, o)
}

// NewPackagedResourceFromSource is like NewPackagedResource but reads the
// bundle from src on demand instead of holding it in memory.
func NewPackagedResourceFromSource(location string, src ByteSource, opts ...Option) *Resource {
	o := newOptions(opts)
	ar := archive.NewReader(o.archiveOptions()...)
	if err := ar.LoadSource(src); err != nil {
		return newUnloaded(location, err, o)
	}
	return newRooted(location, ar, o)
}

// NewArchiveResource returns a packaged resource for the root document of
// an already loaded reader. The reader is shared, not copied.
func NewArchiveResource(location string, ar *ArchiveReader, opts ...Option) *Resource {
	o := newOptions(opts)
	if ar == nil || !ar.Loaded() {
		return newUnloaded(location, nil, o)
	}
	return newRooted(location, ar, o)
}

func newUnloaded(location string, cause error, o *options) *Resource {
	err := ErrNoArchive
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrNoArchive, cause)
	}
	return &Resource{
		kind:     KindPackaged,
		location: location,
		err:      err,
		opts:     o,
	}
}

func newRooted(location string, ar *archive.Reader, o *options) *Resource {
	r := &Resource{
		kind:     KindPackaged,
		location: location,
		archive:  ar,
		opts:     o,
	}
	root, ok := selectRoot(ar.Entries(), o.sceneExt)
	if !ok {
		r.err = ErrNoRootDocument
		return r
	}
	r.entryPath = root
	return r
}

// selectRoot picks the top-level entry whose path contains ext. When several
// qualify, the last one in directory order wins.
func selectRoot(entries []archive.Entry, ext string) (string, bool) {
	var root string
	found := false
	for _, e := range entries {
		if strings.Contains(e.Path, ext) && !strings.Contains(e.Path, "/") {
			root = e.Path
			found = true
		}
	}
	return root, found
}

// Kind returns how the resource obtains its bytes.
func (r *Resource) Kind() Kind { return r.kind }

// IsPackaged reports whether the resource is an entry of a bundle.
func (r *Resource) IsPackaged() bool { return r.kind == KindPackaged }

// Location returns the resource location. For packaged resources this is
// the location of the bundle.
func (r *Resource) Location() string { return r.location }

// EntryPath returns the bundle entry a packaged resource denotes, or "" for
// plain resources and bundles without a root document.
func (r *Resource) EntryPath() string { return r.entryPath }

// Archive returns the shared reader behind a packaged resource, or nil.
func (r *Resource) Archive() *ArchiveReader { return r.archive }

// Err reports why a packaged resource cannot be read, or nil.
func (r *Resource) Err() error { return r.err }

// String returns the location, with "!/" and the entry path appended for
// packaged resources.
func (r *Resource) String() string {
	if r.kind == KindPackaged {
		return r.location + "!/" + r.entryPath
	}
	return r.location
}

// ReadBytes returns the resource's bytes.
//
// Plain resources are fetched from p. Packaged resources are decompressed
// from the shared bundle and ignore p. On failure the returned slice is
// empty and the error describes the cause; failures never affect other
// resources sharing the bundle.
func (r *Resource) ReadBytes(ctx context.Context, p Platform) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch r.kind {
	case KindPackaged:
		return r.readEntry()
	default:
		return r.fetch(ctx, p)
	}
}

func (r *Resource) fetch(ctx context.Context, p Platform) ([]byte, error) {
	if p == nil {
		return nil, &fs.PathError{Op: "read", Path: r.location, Err: ErrNoPlatform}
	}
	data, err := p.BytesFromFile(ctx, r.location)
	if err != nil {
		r.opts.log().Debug("fetch failed", "location", r.location, "error", err)
		return nil, &fs.PathError{Op: "read", Path: r.location, Err: err}
	}
	return data, nil
}

func (r *Resource) readEntry() ([]byte, error) {
	if r.archive == nil || r.err != nil {
		return nil, &fs.PathError{Op: "read", Path: r.String(), Err: r.readErr()}
	}

	var out []byte
	err := r.archive.Decompress(r.entryPath, func(size int) []byte {
		if cap(out) < size {
			out = make([]byte, size)
		}
		out = out[:size]
		return out
	})
	if err != nil {
		r.opts.log().Error("cannot read archive entry",
			"path", r.entryPath,
			"location", r.location,
			"error", err)
		return nil, err
	}
	return out, nil
}

func (r *Resource) readErr() error {
	if r.err != nil {
		return r.err
	}
	return ErrNoArchive
}

// Relative resolves ref against the resource.
//
// For plain resources ref is combined with the location by the Resolver. For
// packaged resources an absolute ref yields a plain resource at ref, and any
// other ref names a sibling entry, taken literally from its path component,
// in the same bundle. The receiver is never modified.
func (r *Resource) Relative(ref string) (*Resource, error) {
	if r.kind == KindPackaged {
		if r.opts.resolver.IsAbsolute(ref) {
			return &Resource{kind: KindPlain, location: ref, opts: r.opts}, nil
		}
		return r.sibling(r.opts.resolver.Path(ref)), nil
	}

	loc, err := r.opts.resolver.Resolve(ref, r.location)
	if err != nil {
		return nil, fmt.Errorf("resolve %q against %q: %w", ref, r.location, err)
	}
	return &Resource{kind: KindPlain, location: loc, opts: r.opts}, nil
}

// sibling shares the bundle and points at path without validating it.
func (r *Resource) sibling(path string) *Resource {
	s := &Resource{
		kind:      KindPackaged,
		location:  r.location,
		archive:   r.archive,
		entryPath: path,
		opts:      r.opts,
	}
	if r.archive == nil {
		s.err = r.err
	}
	return s
}
