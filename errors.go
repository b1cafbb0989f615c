package tangram

import (
	"errors"

	asset "github.com/exlimit/tangram-es/core"
	"github.com/exlimit/tangram-es/core/platform"
)

// Errors re-exported from core.
var (
	// ErrArchiveLoad is returned when bytes are not a readable zip archive.
	ErrArchiveLoad = asset.ErrArchiveLoad

	// ErrEntryNotFound is returned when a bundle has no entry with the requested path.
	ErrEntryNotFound = asset.ErrEntryNotFound

	// ErrDecompress is returned when an entry is corrupt or does not match its declared size.
	ErrDecompress = asset.ErrDecompress

	// ErrTooLarge is returned when an entry or fetched file exceeds a size limit.
	ErrTooLarge = asset.ErrTooLarge

	// ErrNoRootDocument is returned when a bundle has no top-level scene document.
	ErrNoRootDocument = asset.ErrNoRootDocument

	// ErrNoArchive is returned when a bundle failed to load.
	ErrNoArchive = asset.ErrNoArchive

	// ErrUnsupportedScheme is returned for locations no platform can fetch.
	ErrUnsupportedScheme = asset.ErrUnsupportedScheme
)

// Errors re-exported from core/platform.
var (
	// ErrInvalidReference is returned when an oci:// location cannot be parsed.
	ErrInvalidReference = platform.ErrInvalidReference

	// ErrNoLayer is returned when an OCI manifest has no matching bundle layer.
	ErrNoLayer = platform.ErrNoLayer

	// ErrUnauthorized is returned when a registry rejects the credentials.
	ErrUnauthorized = platform.ErrUnauthorized
)

// ErrInvalidScene is returned when a scene document is not valid YAML or its
// import list is malformed.
var ErrInvalidScene = errors.New("tangram: invalid scene document")
