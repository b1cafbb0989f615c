package asset

import (
	"errors"

	"github.com/exlimit/tangram-es/core/internal/archive"
)

// Sentinel errors re-exported from internal/archive.
var (
	// ErrArchiveLoad is returned when bytes are not a readable zip archive.
	ErrArchiveLoad = archive.ErrArchiveLoad

	// ErrEntryNotFound is returned when an archive has no entry with the requested path.
	ErrEntryNotFound = archive.ErrEntryNotFound

	// ErrDecompress is returned when an entry is corrupt or does not match its declared size.
	ErrDecompress = archive.ErrDecompress

	// ErrTooLarge is returned when an entry or fetched file exceeds a size limit.
	ErrTooLarge = archive.ErrTooLarge
)

// Sentinel errors specific to resources.
var (
	// ErrNoRootDocument is returned when reading a packaged resource whose
	// bundle has no top-level scene document.
	ErrNoRootDocument = errors.New("asset: no root document in archive")

	// ErrNoArchive is returned when reading a packaged resource whose bundle
	// failed to load.
	ErrNoArchive = errors.New("asset: no archive attached")

	// ErrUnsupportedScheme is returned by platforms for locations they cannot fetch.
	ErrUnsupportedScheme = errors.New("asset: unsupported location scheme")

	// ErrNoPlatform is returned when a plain resource is read without a Platform.
	ErrNoPlatform = errors.New("asset: no platform")
)
