// Package cache stores fetched scene resources so repeated loads skip the
// network.
//
// Keys are digests of the resource location (see Key). Implementations live
// in this package (an in-memory LRU) and in the disk subpackage.
package cache
