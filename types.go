package tangram

import asset "github.com/exlimit/tangram-es/core"

// --- Re-exports from core ---

// Resource is a scene asset: a plain location or an entry of a bundle.
type Resource = asset.Resource

// Platform fetches the bytes stored at a location.
type Platform = asset.Platform

// ResourceOption configures resources opened by a Loader.
type ResourceOption = asset.Option

// ArchiveReader parses a zip bundle's directory and decompresses entries on demand.
type ArchiveReader = asset.ArchiveReader

// ArchiveEntry describes one record of a bundle's central directory.
type ArchiveEntry = asset.ArchiveEntry

// Kind tells plain resources from packaged ones.
type Kind = asset.Kind

// Resource kinds.
const (
	KindPlain    = asset.KindPlain
	KindPackaged = asset.KindPackaged
)
