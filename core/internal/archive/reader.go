// Package archive reads zip bundles and decompresses single entries on demand.
//
// A Reader parses the central directory once at load time. Entry payloads stay
// compressed in the retained buffer (or behind a ByteSource) until Decompress
// is called, which inflates exactly one entry into memory supplied by the
// caller.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"github.com/klauspost/compress/zip"

	"github.com/exlimit/tangram-es/core/internal/sizing"
)

// Sentinel errors.
var (
	// ErrArchiveLoad is returned when a buffer is not a readable zip archive.
	ErrArchiveLoad = errors.New("asset: invalid archive")

	// ErrEntryNotFound is returned when no entry has the requested path.
	ErrEntryNotFound = errors.New("asset: archive entry not found")

	// ErrDecompress is returned when an entry payload is corrupt or does not
	// match its declared size.
	ErrDecompress = errors.New("asset: decompression failed")

	// ErrTooLarge is returned when an entry exceeds the configured size limit.
	ErrTooLarge = errors.New("asset: entry too large")
)

// DefaultMaxEntrySize is the default limit on a single entry's uncompressed size (256MB).
const DefaultMaxEntrySize = 256 << 20

// Compression methods understood by the reader.
const (
	MethodStore   = zip.Store
	MethodDeflate = zip.Deflate
)

// ByteSource provides random access to archive bytes.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// Allocator returns a destination of at least size bytes for one entry.
type Allocator func(size int) []byte

// Entry describes one record of the archive's central directory.
type Entry struct {
	// Path is the entry name exactly as stored in the directory.
	Path string

	// UncompressedSize is the declared size of the decompressed payload.
	// It is trusted until the entry is extracted.
	UncompressedSize uint64

	// CompressedSize is the size of the stored payload.
	CompressedSize uint64

	// Method is the zip compression method (MethodStore or MethodDeflate).
	Method uint16
}

// Reader holds at most one loaded archive.
//
// Entries are immutable after a successful load. Decompress may be called
// concurrently; Load, LoadSource and Reset exclude all readers.
type Reader struct {
	mu           sync.RWMutex
	buffer       []byte
	source       ByteSource
	zr           *zip.Reader
	entries      []Entry
	index        map[string]int
	maxEntrySize uint64
	inflaters    *InflatePool
}

// Option configures a Reader.
type Option func(*Reader)

// WithMaxEntrySize limits the uncompressed size of any single entry.
// Set limit to 0 to disable the limit.
func WithMaxEntrySize(limit uint64) Option {
	return func(r *Reader) {
		r.maxEntrySize = limit
	}
}

// WithInflatePool sets the pool used for deflate readers.
func WithInflatePool(p *InflatePool) Option {
	return func(r *Reader) {
		if p != nil {
			r.inflaters = p
		}
	}
}

// NewReader creates a Reader with no archive loaded.
func NewReader(opts ...Option) *Reader {
	r := &Reader{
		maxEntrySize: DefaultMaxEntrySize,
		inflaters:    defaultInflaters,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load parses the zip archive held in data. The reader takes ownership of
// data and retains it until the next load or Reset; callers must not modify
// it afterwards.
//
// On failure the reader is left empty and every Decompress call fails.
func (r *Reader) Load(data []byte) error {
	return r.load(data, nil, bytes.NewReader(data), int64(len(data)))
}

// LoadSource parses the zip archive behind src. Entry payloads are read from
// src on demand.
func (r *Reader) LoadSource(src ByteSource) error {
	if src == nil {
		r.Reset()
		return fmt.Errorf("%w: nil source", ErrArchiveLoad)
	}
	return r.load(nil, src, src, src.Size())
}

func (r *Reader) load(buf []byte, src ByteSource, ra io.ReaderAt, size int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()

	// Entries are never written to disk, so non-local names are accepted.
	zr, err := zip.NewReader(ra, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("%w: %v", ErrArchiveLoad, err)
	}
	zr.RegisterDecompressor(zip.Deflate, r.inflaters.Decompressor)

	entries := make([]Entry, 0, len(zr.File))
	index := make(map[string]int, len(zr.File))
	for i, f := range zr.File {
		entries = append(entries, Entry{
			Path:             f.Name,
			UncompressedSize: f.UncompressedSize64,
			CompressedSize:   f.CompressedSize64,
			Method:           f.Method,
		})
		// First match wins when a path repeats.
		if _, ok := index[f.Name]; !ok {
			index[f.Name] = i
		}
	}

	r.buffer = buf
	r.source = src
	r.zr = zr
	r.entries = entries
	r.index = index
	return nil
}

// Reset releases the loaded archive, if any.
func (r *Reader) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

func (r *Reader) reset() {
	r.buffer = nil
	r.source = nil
	r.zr = nil
	r.entries = nil
	r.index = nil
}

// Loaded reports whether an archive is currently loaded.
func (r *Reader) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.zr != nil
}

// Size returns the byte size of the loaded archive container.
func (r *Reader) Size() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.source != nil {
		return r.source.Size()
	}
	return int64(len(r.buffer))
}

// Len returns the number of directory entries.
func (r *Reader) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Entries returns a copy of the directory in archive order.
func (r *Reader) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Entry returns the first directory entry with the given path.
func (r *Reader) Entry(path string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[path]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Decompress inflates the entry stored under path into memory obtained from
// alloc. alloc is called once with the entry's declared uncompressed size and
// is not called at all when the path is absent.
//
// The whole entry is delivered or an error is returned; the contents of the
// allocated buffer are unspecified after a failure.
func (r *Reader) Decompress(path string, alloc Allocator) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[path]
	if !ok {
		return &fs.PathError{Op: "decompress", Path: path, Err: ErrEntryNotFound}
	}
	entry := r.entries[i]

	if !sizing.Within(entry.UncompressedSize, r.maxEntrySize) {
		return &fs.PathError{Op: "decompress", Path: path, Err: ErrTooLarge}
	}
	size, err := sizing.ToInt(entry.UncompressedSize, ErrTooLarge)
	if err != nil {
		return &fs.PathError{Op: "decompress", Path: path, Err: err}
	}

	dst := alloc(size)
	if len(dst) < size {
		return &fs.PathError{Op: "decompress", Path: path,
			Err: fmt.Errorf("%w: allocator returned %d of %d bytes", ErrDecompress, len(dst), size)}
	}

	rc, err := r.zr.File[i].Open()
	if err != nil {
		return &fs.PathError{Op: "decompress", Path: path, Err: fmt.Errorf("%w: %v", ErrDecompress, err)}
	}
	defer rc.Close()

	n, err := io.ReadFull(rc, dst[:size])
	if err != nil {
		return &fs.PathError{Op: "decompress", Path: path, Err: mapReadError(n, size, err)}
	}
	if err := ensureEOF(rc); err != nil {
		return &fs.PathError{Op: "decompress", Path: path, Err: err}
	}
	return nil
}

// ReadFile decompresses the entry at path into a new slice.
func (r *Reader) ReadFile(path string) ([]byte, error) {
	var out []byte
	err := r.Decompress(path, func(size int) []byte {
		out = make([]byte, size)
		return out
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ensureEOF drains the entry reader past its declared size. Reaching EOF is
// what triggers the zip layer's CRC and size checks.
func ensureEOF(r io.Reader) error {
	var scratch [1]byte
	for {
		n, err := r.Read(scratch[:])
		if n > 0 {
			return fmt.Errorf("%w: entry larger than declared size", ErrDecompress)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecompress, err)
		}
	}
}

// mapReadError converts read errors on an entry stream to ErrDecompress.
func mapReadError(n, expected int, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: short read (%d of %d bytes)", ErrDecompress, n, expected)
	}
	return fmt.Errorf("%w: %v", ErrDecompress, err)
}
