// Package asset resolves scene resources for the map renderer.
//
// A Resource is either plain, in which case its bytes are fetched through a
// Platform, or packaged, in which case its bytes are an entry of a zip
// bundle held by an ArchiveReader. Packaged resources derived from one
// bundle share a single reader:
//   - Relative references without a scheme name sibling entries in the same bundle
//   - Absolute references leave the bundle and resolve to plain resources
//
// Entries are decompressed on demand, one at a time, into memory supplied by
// the caller.
package asset
