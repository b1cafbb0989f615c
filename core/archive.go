package asset

import (
	"bytes"

	"github.com/exlimit/tangram-es/core/internal/archive"
)

// Re-export types from internal/archive for public API.
type (
	// ArchiveReader parses a zip bundle's directory and decompresses entries on demand.
	ArchiveReader = archive.Reader

	// ArchiveEntry describes one record of a bundle's central directory.
	ArchiveEntry = archive.Entry

	// ArchiveOption configures an ArchiveReader.
	ArchiveOption = archive.Option

	// Allocator returns a destination of at least size bytes for one entry.
	Allocator = archive.Allocator

	// ByteSource provides random access to archive bytes.
	//
	// Implementations exist for in-memory buffers, local files and HTTP range requests.
	ByteSource = archive.ByteSource
)

// Re-export archive constructors and options.
var (
	NewArchiveReader        = archive.NewReader
	WithArchiveMaxEntrySize = archive.WithMaxEntrySize
)

// DefaultMaxEntrySize is the default limit on a single entry's uncompressed size.
const DefaultMaxEntrySize = archive.DefaultMaxEntrySize

var (
	localHeaderSig = []byte{'P', 'K', 0x03, 0x04}
	emptyEndSig    = []byte{'P', 'K', 0x05, 0x06}
)

// IsArchive reports whether data starts like a zip bundle. Empty archives,
// which consist of the end of central directory record alone, also match.
func IsArchive(data []byte) bool {
	return bytes.HasPrefix(data, localHeaderSig) || bytes.HasPrefix(data, emptyEndSig)
}
